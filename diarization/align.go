package diarization

import "strings"

// Align attributes segments to turns. Turns are visited in order; each
// takes every not-yet-used segment whose interval overlaps its own
// (seg.Start < turn.End && seg.End > turn.Start), so a segment spanning two
// turns goes entirely to the first. Texts are trimmed and joined with a
// space in segment order. Turns that collect nothing are dropped.
func Align(turns []Turn, segments []Segment) []AlignedTurn {
	used := make([]bool, len(segments))
	aligned := make([]AlignedTurn, 0, len(turns))

	for _, turn := range turns {
		var texts []string
		for i, seg := range segments {
			if used[i] {
				continue
			}
			if seg.Start < turn.End && seg.End > turn.Start {
				texts = append(texts, strings.TrimSpace(seg.Text))
				used[i] = true
			}
		}
		if len(texts) == 0 {
			continue
		}
		aligned = append(aligned, AlignedTurn{
			Speaker: turn.Speaker,
			Start:   turn.Start,
			End:     turn.End,
			Text:    strings.Join(texts, " "),
		})
	}
	return aligned
}
