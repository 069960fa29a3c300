package cache

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Domain is a cache namespace.
type Domain string

const (
	// DomainAudio maps original audio to its normalized WAV.
	DomainAudio Domain = "wav"
	// DomainTranscript holds whole-file transcripts.
	DomainTranscript Domain = "json"
	// DomainChunk holds per-chunk transcripts in chunk-local time.
	DomainChunk Domain = "chunks"
	// DomainTurns holds aligned diarization turns.
	DomainTurns Domain = "diar"
	// DomainRuns holds pipeline run records.
	DomainRuns Domain = "segments"
)

// Domains lists every domain a store must serve.
var Domains = []Domain{DomainAudio, DomainTranscript, DomainChunk, DomainTurns, DomainRuns}

// ErrNotFound is returned by Store.Read when no entry exists.
var ErrNotFound = errors.New("cache: entry not found")

// Store persists one raw document per (domain, key).
type Store interface {
	// Read returns the stored bytes or ErrNotFound.
	Read(ctx context.Context, domain Domain, key string) ([]byte, error)
	// Write replaces the entry atomically.
	Write(ctx context.Context, domain Domain, key string, data []byte) error
	// Delete removes the entry. Deleting a missing entry is not an error.
	Delete(ctx context.Context, domain Domain, key string) error
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

func validate(domain Domain, key string) error {
	if !keyPattern.MatchString(string(domain)) {
		return fmt.Errorf("cache: invalid domain %q", domain)
	}
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("cache: invalid key %q", key)
	}
	return nil
}
