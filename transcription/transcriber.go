package transcription

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/sonify/audio"
	"github.com/kbukum/sonify/cache"
	"github.com/kbukum/sonify/errors"
	"github.com/kbukum/sonify/logger"
	"github.com/kbukum/sonify/observability"
)

// ResponseSchema versions the cached Response encoding.
const ResponseSchema = 1

// ProgressFunc receives (completed, total) after each unit of work.
type ProgressFunc func(completed, total int)

// Options configures one Transcribe call.
type Options struct {
	// AudioPath is a normalized WAV.
	AudioPath string
	Model     string
	Language  string
	// ChunkSize is the chunk length in seconds. Zero transcribes the whole
	// file in one capability call.
	ChunkSize float64
	// Force discards the whole-file cache entry before running. Chunk
	// entries are kept.
	Force bool
	// OnProgress is called synchronously, in chunk order.
	OnProgress ProgressFunc
}

// Result is the merged output of a Transcribe call.
type Result struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
	// Chunks is the number of chunks processed; 1 for the whole-file path.
	Chunks int `json:"chunks"`
}

// Transcriber drives a Provider over a file, chunk by chunk, caching each
// chunk's result as soon as it is produced.
type Transcriber struct {
	provider Provider
	whole    *cache.Cache[Response]
	chunks   *cache.Cache[Response]
	log      *logger.Logger
	metrics  *observability.Metrics
}

// NewTranscriber creates a Transcriber. whole caches whole-file results and
// chunks caches per-chunk results; they must be different domains.
func NewTranscriber(p Provider, whole, chunks *cache.Cache[Response], log *logger.Logger, metrics *observability.Metrics) *Transcriber {
	if log == nil {
		log = logger.Nop()
	}
	return &Transcriber{
		provider: p,
		whole:    whole,
		chunks:   chunks,
		log:      log.WithComponent("transcriber"),
		metrics:  metrics,
	}
}

// Transcribe runs the capability over opts.AudioPath. When ctx is canceled
// between chunks, the segments gathered so far are returned together with a
// CANCELED error; every finished chunk stays cached.
func (t *Transcriber) Transcribe(ctx context.Context, opts Options) (*Result, error) {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Language == "" {
		opts.Language = AutoLanguage
	}
	if opts.ChunkSize < 0 {
		return nil, errors.InvalidInput("chunk_size", "must not be negative")
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanTranscribe, trace.WithAttributes(
		attribute.String(observability.AttrModel, opts.Model),
		attribute.String(observability.AttrLanguage, opts.Language),
		attribute.String(observability.AttrProvider, t.provider.Name()),
	))

	var (
		res *Result
		err error
	)
	if opts.ChunkSize == 0 {
		res, err = t.transcribeWhole(ctx, opts)
	} else {
		res, err = t.transcribeChunked(ctx, opts)
	}
	observability.EndSpan(span, err)
	return res, err
}

func (t *Transcriber) transcribeWhole(ctx context.Context, opts Options) (*Result, error) {
	key, err := cache.FileTranscriptKey(opts.AudioPath, opts.Model, opts.Language)
	if err != nil {
		return nil, err
	}
	log := t.log.WithFields(logger.Fields(logger.FieldContent, key, logger.FieldModel, opts.Model))

	if opts.Force {
		if err := t.whole.Invalidate(ctx, key); err != nil {
			return nil, err
		}
		log.Debug("discarded whole-file transcript")
	} else {
		resp, ok, err := t.whole.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			report(opts.OnProgress, 1, 1)
			return &Result{Text: strings.TrimSpace(resp.Text), Segments: resp.Segments, Chunks: 1}, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return &Result{}, errors.Canceled("transcription").WithCause(err)
	}

	resp, err := t.invoke(ctx, opts.AudioPath, opts)
	if err != nil {
		return nil, err
	}
	if err := t.whole.Put(ctx, key, *resp); err != nil {
		return nil, err
	}
	log.Info("transcribed whole file", logger.Fields("segments", len(resp.Segments)))
	report(opts.OnProgress, 1, 1)
	return &Result{Text: strings.TrimSpace(resp.Text), Segments: resp.Segments, Chunks: 1}, nil
}

func (t *Transcriber) transcribeChunked(ctx context.Context, opts Options) (*Result, error) {
	src, err := audio.Open(opts.AudioPath, opts.ChunkSize)
	if err != nil {
		return nil, err
	}
	defer src.Close() //nolint:errcheck // temp chunk files only

	total := src.Len()
	res := &Result{Segments: []Segment{}}
	texts := make([]string, 0, total)

	for i := range total {
		if err := ctx.Err(); err != nil {
			res.Text = strings.Join(texts, " ")
			t.log.Info("transcription canceled", logger.Fields(logger.FieldChunkIndex, i, logger.FieldChunkTotal, total))
			return res, errors.Canceled("transcription").WithCause(err)
		}

		resp, err := t.chunk(ctx, src, i, total, opts)
		if err != nil {
			return nil, err
		}

		// Offsets use the nominal chunk size; only the last chunk may be shorter.
		// Times the capability reports past the chunk's end are cut back to it.
		offset := float64(i) * opts.ChunkSize
		end := min(offset+opts.ChunkSize, src.Duration())
		for _, seg := range resp.Segments {
			start := seg.Start + offset
			if start >= end {
				continue
			}
			res.Segments = append(res.Segments, Segment{
				Start: start,
				End:   min(seg.End+offset, end),
				Text:  seg.Text,
			})
		}
		if text := strings.TrimSpace(resp.Text); text != "" {
			texts = append(texts, text)
		}
		res.Chunks++
		report(opts.OnProgress, i+1, total)
	}

	res.Text = strings.Join(texts, " ")
	return res, nil
}

func (t *Transcriber) chunk(ctx context.Context, src *audio.ChunkSource, i, total int, opts Options) (*Response, error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanTranscribeChunk, trace.WithAttributes(
		attribute.Int(observability.AttrChunkIndex, i),
		attribute.Int(observability.AttrChunkTotal, total),
	))
	resp, hit, err := t.chunkResult(ctx, src, i, opts)
	span.SetAttributes(attribute.Bool(observability.AttrCacheHit, hit))
	observability.EndSpan(span, err)
	return resp, err
}

func (t *Transcriber) chunkResult(ctx context.Context, src *audio.ChunkSource, i int, opts Options) (*Response, bool, error) {
	c, err := src.Extract(ctx, i)
	if err != nil {
		return nil, false, err
	}
	key, err := cache.FileTranscriptKey(c.Path, opts.Model, opts.Language)
	if err != nil {
		return nil, false, err
	}

	cached, ok, err := t.chunks.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if ok {
		return &cached, true, nil
	}

	resp, err := t.invoke(ctx, c.Path, opts)
	if err != nil {
		return nil, false, err
	}
	if err := t.chunks.Put(ctx, key, *resp); err != nil {
		return nil, false, err
	}
	t.metrics.RecordChunk(ctx, opts.Model)
	t.log.Debug("transcribed chunk", logger.Fields(
		logger.FieldChunkIndex, i,
		logger.FieldKey, key,
		"segments", len(resp.Segments),
	))
	return resp, false, nil
}

// invoke calls the provider without ctx's cancellation so an inference is
// never abandoned halfway.
func (t *Transcriber) invoke(ctx context.Context, path string, opts Options) (*Response, error) {
	start := time.Now()
	resp, err := t.provider.Transcribe(context.WithoutCancel(ctx), Request{
		AudioPath: path,
		Model:     opts.Model,
		Language:  opts.Language,
	})
	status := observability.StatusOK
	if err != nil {
		status = observability.StatusError
	}
	t.metrics.RecordCapability(ctx, "transcription", t.provider.Name(), status, time.Since(start))
	if err != nil {
		t.log.Error("transcription failed", logger.Fields(logger.FieldProvider, t.provider.Name(), logger.FieldError, err.Error()))
		return nil, err
	}
	if resp.Segments == nil {
		resp.Segments = []Segment{}
	}
	return resp, nil
}

func report(fn ProgressFunc, completed, total int) {
	if fn != nil {
		fn(completed, total)
	}
}
