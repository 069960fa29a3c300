package pipeline

import (
	"context"
	"time"

	"github.com/kbukum/sonify/cache"
	"github.com/kbukum/sonify/transcription"
)

// RecordSchema versions the cached Record encoding.
const RecordSchema = 1

// Record is a finished transcription run.
type Record struct {
	Identity  Identity                `json:"identity"`
	Text      string                  `json:"text"`
	Segments  []transcription.Segment `json:"segments"`
	ChunkSize float64                 `json:"chunk_size"`
	CreatedAt time.Time               `json:"created_at"`
}

// RunCache maps an Identity to its Record.
type RunCache struct {
	c *cache.Cache[Record]
}

// NewRunCache wraps c, which should live in cache.DomainRuns.
func NewRunCache(c *cache.Cache[Record]) *RunCache {
	return &RunCache{c: c}
}

// Get returns the record for id. A record stored under a colliding key
// for another identity is a miss.
func (r *RunCache) Get(ctx context.Context, id Identity) (*Record, bool, error) {
	rec, ok, err := r.c.Get(ctx, id.Key())
	if err != nil || !ok {
		return nil, false, err
	}
	if rec.Identity != id {
		return nil, false, nil
	}
	return &rec, true, nil
}

// Put stores rec under rec.Identity.
func (r *RunCache) Put(ctx context.Context, rec Record) error {
	return r.c.Put(ctx, rec.Identity.Key(), rec)
}

// Invalidate drops the record for id.
func (r *RunCache) Invalidate(ctx context.Context, id Identity) error {
	return r.c.Invalidate(ctx, id.Key())
}
