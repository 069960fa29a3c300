package diarization

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/sonify/cache"
	"github.com/kbukum/sonify/errors"
	"github.com/kbukum/sonify/logger"
	"github.com/kbukum/sonify/observability"
)

// EntrySchema versions the cached Entry encoding.
const EntrySchema = 1

// Entry is the cached form of an aligned run. Complete marks the entry as
// computed, so a run that aligned no turns is still a hit.
type Entry struct {
	Complete bool          `json:"complete"`
	Turns    []AlignedTurn `json:"turns"`
}

// Options configures one Aligner run.
type Options struct {
	// AudioPath is the normalized WAV.
	AudioPath string
	// FileID identifies the transcription run the segments came from.
	FileID string
	// Segments are the file-absolute transcript segments.
	Segments []Segment
	// Credential authorizes the backend. Required on a cache miss.
	Credential  string
	NumSpeakers int
	MinSpeakers int
	MaxSpeakers int
	// Force ignores and replaces any cached entry.
	Force      bool
	OnProgress ProgressFunc
}

// Aligner runs a Provider and aligns its turns with transcript segments.
type Aligner struct {
	provider Provider
	cache    *cache.Cache[Entry]
	log      *logger.Logger
	metrics  *observability.Metrics
}

// NewAligner creates an Aligner caching results in c.
func NewAligner(p Provider, c *cache.Cache[Entry], log *logger.Logger, metrics *observability.Metrics) *Aligner {
	if log == nil {
		log = logger.Nop()
	}
	return &Aligner{
		provider: p,
		cache:    c,
		log:      log.WithComponent("aligner"),
		metrics:  metrics,
	}
}

// Key returns the cache key for a file id and its segments.
func Key(fileID string, segments []Segment) (string, error) {
	timed := make([]cache.TimedText, len(segments))
	for i, seg := range segments {
		timed[i] = cache.TimedText(seg)
	}
	return cache.TurnsKey(fileID, timed)
}

// Cached returns the cached turns for fileID and segments, if any.
func (a *Aligner) Cached(ctx context.Context, fileID string, segments []Segment) ([]AlignedTurn, bool, error) {
	key, err := Key(fileID, segments)
	if err != nil {
		return nil, false, err
	}
	entry, ok, err := a.cache.Get(ctx, key)
	if err != nil || !ok || !entry.Complete {
		return nil, false, err
	}
	return entry.Turns, true, nil
}

// Run returns the aligned turns for opts, invoking the provider only on a
// cache miss. A missing credential fails before the provider is called.
func (a *Aligner) Run(ctx context.Context, opts Options) ([]AlignedTurn, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Canceled("diarization").WithCause(err)
	}

	key, err := Key(opts.FileID, opts.Segments)
	if err != nil {
		return nil, err
	}
	log := a.log.WithFields(logger.Fields(logger.FieldKey, key))

	if !opts.Force {
		entry, ok, err := a.cache.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok && entry.Complete {
			log.Debug("diarization served from cache", logger.Fields("turns", len(entry.Turns)))
			return entry.Turns, nil
		}
	}

	if opts.Credential == "" {
		return nil, errors.Configuration("diarization requires a credential; set diarization.credential")
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanDiarize, trace.WithAttributes(
		attribute.String(observability.AttrProvider, a.provider.Name()),
	))
	start := time.Now()
	resp, err := a.provider.Diarize(context.WithoutCancel(ctx), Request{
		AudioPath:   opts.AudioPath,
		Credential:  opts.Credential,
		NumSpeakers: opts.NumSpeakers,
		MinSpeakers: opts.MinSpeakers,
		MaxSpeakers: opts.MaxSpeakers,
		OnProgress:  opts.OnProgress,
	})
	status := observability.StatusOK
	if err != nil {
		status = observability.StatusError
	}
	a.metrics.RecordCapability(ctx, "diarization", a.provider.Name(), status, time.Since(start))
	observability.EndSpan(span, err)
	if err != nil {
		log.Error("diarization failed", logger.Fields(logger.FieldProvider, a.provider.Name(), logger.FieldError, err.Error()))
		return nil, err
	}

	aligned := Align(resp.Turns, opts.Segments)
	if err := a.cache.Put(ctx, key, Entry{Complete: true, Turns: aligned}); err != nil {
		return nil, err
	}
	log.Info("diarization aligned", logger.Fields(
		"turns", len(resp.Turns),
		"aligned", len(aligned),
		"speakers", resp.NumSpeakers,
	))
	return aligned, nil
}
