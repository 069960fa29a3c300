package transcript

import (
	"strings"

	"github.com/kbukum/sonify/diarization"
)

// Block is a run of consecutive turns spoken by the same display name.
type Block struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
}

type mergeOptions struct {
	trueEnd bool
}

// MergeOption configures Merge.
type MergeOption func(*mergeOptions)

// WithTrueEnd ends each block at the end of its last turn instead of at
// the start of the turn that follows it.
func WithTrueEnd() MergeOption {
	return func(o *mergeOptions) { o.trueEnd = true }
}

// Merge groups consecutive turns whose labels map to the same name.
// Labels missing from names display as themselves.
//
// By default a block ends where the next block's first turn starts, and
// the final block ends at the start of the last turn.
func Merge(turns []diarization.AlignedTurn, names map[string]string, opts ...MergeOption) []Block {
	var o mergeOptions
	for _, opt := range opts {
		opt(&o)
	}

	blocks := make([]Block, 0, len(turns))
	var (
		cur   Block
		texts []string
		last  diarization.AlignedTurn
	)
	flush := func(end float64) {
		cur.End = end
		cur.Text = strings.Join(texts, " ")
		blocks = append(blocks, cur)
	}

	for i, turn := range turns {
		name := DisplayName(names, turn.Speaker)
		if i > 0 && name != cur.Speaker {
			if o.trueEnd {
				flush(last.End)
			} else {
				flush(turn.Start)
			}
		}
		if i == 0 || name != cur.Speaker {
			cur = Block{Speaker: name, Start: turn.Start}
			texts = texts[:0]
		}
		texts = append(texts, turn.Text)
		last = turn
	}
	if len(turns) > 0 {
		if o.trueEnd {
			flush(last.End)
		} else {
			flush(last.Start)
		}
	}
	return blocks
}

// DisplayName returns names[label], or label when it has no name.
func DisplayName(names map[string]string, label string) string {
	if name := strings.TrimSpace(names[label]); name != "" {
		return name
	}
	return label
}

// Speakers returns the distinct labels in order of first appearance.
func Speakers(turns []diarization.AlignedTurn) []string {
	seen := make(map[string]bool)
	var labels []string
	for _, t := range turns {
		if !seen[t.Speaker] {
			seen[t.Speaker] = true
			labels = append(labels, t.Speaker)
		}
	}
	return labels
}
