package session

import (
	"fmt"
	"slices"

	"github.com/kbukum/sonify/errors"
)

// Phase is a session state.
type Phase string

// Phases.
const (
	PhaseStart        Phase = "start"
	PhaseUploaded     Phase = "uploaded"
	PhaseTranscribing Phase = "transcribing"
	PhaseTranscribed  Phase = "transcribed"
	PhaseDiarizing    Phase = "diarizing"
	PhaseDiarized     Phase = "diarized"
	PhaseFailed       Phase = "failed"
)

// transitions lists the allowed targets per phase. Restart is not listed;
// it is allowed from everywhere.
var transitions = map[Phase][]Phase{
	PhaseStart:        {PhaseUploaded},
	PhaseUploaded:     {PhaseTranscribing, PhaseTranscribed, PhaseDiarized},
	PhaseTranscribing: {PhaseTranscribed, PhaseUploaded, PhaseFailed},
	PhaseTranscribed:  {PhaseDiarizing, PhaseTranscribing},
	PhaseDiarizing:    {PhaseDiarized, PhaseTranscribed, PhaseFailed},
	PhaseDiarized:     {PhaseDiarizing, PhaseTranscribing},
	PhaseFailed:       {PhaseTranscribing, PhaseDiarizing},
}

// CanTransition reports whether from → to is allowed.
func CanTransition(from, to Phase) bool {
	if to == PhaseStart {
		return true
	}
	return slices.Contains(transitions[from], to)
}

// Running reports whether a pipeline run is in flight in p.
func (p Phase) Running() bool {
	return p == PhaseTranscribing || p == PhaseDiarizing
}

// transition returns a CONFLICT error for a disallowed move.
func transition(from, to Phase) error {
	if CanTransition(from, to) {
		return nil
	}
	return errors.Conflict(fmt.Sprintf("cannot move session from %s to %s", from, to)).
		WithDetail("from", string(from)).
		WithDetail("to", string(to))
}
