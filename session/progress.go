package session

import (
	"fmt"
	"time"

	"github.com/kbukum/sonify/diarization"
	"github.com/kbukum/sonify/transcript"
)

// Progress is a snapshot of a running step.
type Progress struct {
	Step      string        `json:"step"`
	Completed int           `json:"completed"`
	Total     int           `json:"total"`
	Percent   float64       `json:"percent"`
	Elapsed   time.Duration `json:"elapsed"`
	ETA       time.Duration `json:"eta"`
	Text      string        `json:"text"`
}

// StepChunks is the step name reported while transcribing.
const StepChunks = "chunks"

// newProgress computes the percentage and ETA for a step started at start.
// The ETA extrapolates linearly: elapsed/pct - elapsed.
func newProgress(step string, completed, total int, start, now time.Time) Progress {
	pct := diarization.Percent(completed, total)
	elapsed := now.Sub(start)
	var eta time.Duration
	if pct > 0 {
		eta = time.Duration(float64(elapsed)/pct) - elapsed
	}
	p := Progress{
		Step:      step,
		Completed: completed,
		Total:     total,
		Percent:   pct,
		Elapsed:   elapsed,
		ETA:       eta,
	}
	if step == StepChunks {
		p.Text = fmt.Sprintf("%d/%d chunks | %3d%% | Elapsed %s | ETA %s",
			completed, total, int(pct*100), transcript.Clock(elapsed.Seconds()), transcript.Clock(eta.Seconds()))
	} else {
		p.Text = diarization.ProgressText(step, completed, total)
	}
	return p
}
