package diarization

import (
	"context"

	"github.com/kbukum/sonify/provider"
)

// Provider is the interface that diarization backends must implement.
type Provider interface {
	provider.Provider // embeds Name() and IsAvailable()

	// Diarize runs speaker diarization over req.AudioPath.
	Diarize(ctx context.Context, req Request) (*Response, error)
}
