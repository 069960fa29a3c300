package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/sonify/audio"
	"github.com/kbukum/sonify/cache"
	"github.com/kbukum/sonify/diarization"
	"github.com/kbukum/sonify/errors"
	"github.com/kbukum/sonify/logger"
	"github.com/kbukum/sonify/observability"
	"github.com/kbukum/sonify/transcription"
)

// Components are the stages a Pipeline drives. Aligner may be nil when
// diarization is not configured.
type Components struct {
	Normalizer  audio.Normalizer
	Transcriber *transcription.Transcriber
	Aligner     *diarization.Aligner
	Runs        *RunCache
}

// DiarizationOptions are passed through to the aligner.
type DiarizationOptions struct {
	Credential  string
	NumSpeakers int
	MinSpeakers int
	MaxSpeakers int
}

// Request describes one run.
type Request struct {
	// Source is the uploaded file in any format ffmpeg reads.
	Source   string
	Model    string
	Language string
	// ChunkSize in seconds; zero transcribes the whole file at once.
	ChunkSize float64
	// Force recomputes the transcript even when a run record exists.
	Force bool
	// Diarize runs speaker diarization after transcription.
	Diarize     bool
	Diarization DiarizationOptions

	OnTranscribeProgress transcription.ProgressFunc
	OnDiarizeProgress    diarization.ProgressFunc
}

// Prepared is a normalized source ready for the capability stages.
type Prepared struct {
	Identity  Identity
	AudioPath string
}

// Output is the result of a run. Turns is nil until diarization ran.
type Output struct {
	Identity  Identity                  `json:"identity"`
	AudioPath string                    `json:"-"`
	Text      string                    `json:"text"`
	Segments  []transcription.Segment   `json:"segments"`
	Turns     []diarization.AlignedTurn `json:"turns,omitempty"`
	// Cached reports that the transcript came from the run cache.
	Cached bool `json:"cached"`
}

// Pipeline orchestrates the stages for one file at a time.
type Pipeline struct {
	c       Components
	log     *logger.Logger
	metrics *observability.Metrics
}

// New creates a Pipeline. Normalizer, Transcriber and Runs are required.
func New(c Components, log *logger.Logger, metrics *observability.Metrics) (*Pipeline, error) {
	if c.Normalizer == nil || c.Transcriber == nil || c.Runs == nil {
		return nil, errors.Configuration("pipeline requires a normalizer, a transcriber and a run cache")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Pipeline{c: c, log: log.WithComponent("pipeline"), metrics: metrics}, nil
}

// Prepare normalizes src and derives the run identity from the normalized
// bytes.
func (p *Pipeline) Prepare(ctx context.Context, src, model, language string) (*Prepared, error) {
	if model == "" {
		model = transcription.DefaultModel
	}
	if language == "" {
		language = transcription.AutoLanguage
	}
	wav, err := p.c.Normalizer.Normalize(ctx, src)
	if err != nil {
		return nil, err
	}
	hash, err := cache.FileKey(wav)
	if err != nil {
		return nil, err
	}
	return &Prepared{
		Identity:  Identity{ContentHash: hash, Model: model, Language: language},
		AudioPath: wav,
	}, nil
}

// Lookup returns whatever is already cached for prep: the run record and,
// when present, the aligned turns. ok is false when no record exists.
func (p *Pipeline) Lookup(ctx context.Context, prep *Prepared) (*Output, bool, error) {
	rec, ok, err := p.c.Runs.Get(ctx, prep.Identity)
	if err != nil || !ok {
		return nil, false, err
	}
	out := &Output{
		Identity:  prep.Identity,
		AudioPath: prep.AudioPath,
		Text:      rec.Text,
		Segments:  rec.Segments,
		Cached:    true,
	}
	if p.c.Aligner != nil {
		turns, ok, err := p.c.Aligner.Cached(ctx, prep.Identity.String(), rec.Segments)
		if err != nil {
			return nil, false, err
		}
		if ok {
			out.Turns = turns
		}
	}
	return out, true, nil
}

// Transcribe produces the transcript for prep. A cancellation returns the
// partial transcript with a CANCELED error and writes no run record.
func (p *Pipeline) Transcribe(ctx context.Context, prep *Prepared, req Request) (*Output, error) {
	log := p.log.WithFields(logger.Fields(
		logger.FieldContent, prep.Identity.ContentHash,
		logger.FieldModel, prep.Identity.Model,
		logger.FieldLanguage, prep.Identity.Language,
	))

	if req.Force {
		// The stale record goes first so a forced run that fails or is
		// canceled cannot leave it to be served again.
		if err := p.c.Runs.Invalidate(ctx, prep.Identity); err != nil {
			return nil, err
		}
	} else {
		rec, ok, err := p.c.Runs.Get(ctx, prep.Identity)
		if err != nil {
			return nil, err
		}
		if ok {
			log.Debug("transcript served from run cache")
			if req.OnTranscribeProgress != nil {
				req.OnTranscribeProgress(1, 1)
			}
			return &Output{
				Identity:  prep.Identity,
				AudioPath: prep.AudioPath,
				Text:      rec.Text,
				Segments:  rec.Segments,
				Cached:    true,
			}, nil
		}
	}

	res, err := p.c.Transcriber.Transcribe(ctx, transcription.Options{
		AudioPath:  prep.AudioPath,
		Model:      prep.Identity.Model,
		Language:   prep.Identity.Language,
		ChunkSize:  req.ChunkSize,
		Force:      req.Force,
		OnProgress: req.OnTranscribeProgress,
	})
	if err != nil {
		if res != nil {
			return &Output{Identity: prep.Identity, AudioPath: prep.AudioPath, Text: res.Text, Segments: res.Segments}, err
		}
		return nil, err
	}

	if err := p.c.Runs.Put(ctx, Record{
		Identity:  prep.Identity,
		Text:      res.Text,
		Segments:  res.Segments,
		ChunkSize: req.ChunkSize,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return nil, err
	}
	log.Info("transcription complete", logger.Fields("segments", len(res.Segments), "chunks", res.Chunks))

	return &Output{
		Identity:  prep.Identity,
		AudioPath: prep.AudioPath,
		Text:      res.Text,
		Segments:  res.Segments,
	}, nil
}

// Diarize aligns speaker turns with out's segments and stores them on out.
func (p *Pipeline) Diarize(ctx context.Context, out *Output, opts DiarizationOptions, force bool, onProgress diarization.ProgressFunc) error {
	if p.c.Aligner == nil {
		return errors.CapabilityUnavailable("diarization", "configure a diarization provider")
	}
	turns, err := p.c.Aligner.Run(ctx, diarization.Options{
		AudioPath:   out.AudioPath,
		FileID:      out.Identity.String(),
		Segments:    out.Segments,
		Credential:  opts.Credential,
		NumSpeakers: opts.NumSpeakers,
		MinSpeakers: opts.MinSpeakers,
		MaxSpeakers: opts.MaxSpeakers,
		Force:       force,
		OnProgress:  onProgress,
	})
	if err != nil {
		return err
	}
	out.Turns = turns
	return nil
}

// Process runs every requested stage for req.Source.
func (p *Pipeline) Process(ctx context.Context, req Request) (out *Output, err error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanPipelineRun, trace.WithAttributes(
		attribute.Bool("sonify.diarize", req.Diarize),
	))
	p.metrics.RunStarted(ctx)
	defer func() {
		p.metrics.RunFinished(ctx)
		observability.EndSpan(span, err)
	}()

	// Fail before any capability runs when diarization cannot proceed.
	if req.Diarize {
		if p.c.Aligner == nil {
			return nil, errors.CapabilityUnavailable("diarization", "configure a diarization provider")
		}
		if req.Diarization.Credential == "" {
			return nil, errors.Configuration("diarization requires a credential; set diarization.credential")
		}
	}

	prep, err := p.Prepare(ctx, req.Source, req.Model, req.Language)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String(observability.AttrContentHash, prep.Identity.ContentHash))

	out, err = p.Transcribe(ctx, prep, req)
	if err != nil {
		return out, err
	}
	if req.Diarize {
		if err := p.Diarize(ctx, out, req.Diarization, req.Force, req.OnDiarizeProgress); err != nil {
			return out, err
		}
	}
	return out, nil
}
