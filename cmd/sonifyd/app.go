package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/kbukum/sonify/audio"
	"github.com/kbukum/sonify/cache"
	"github.com/kbukum/sonify/config"
	"github.com/kbukum/sonify/diarization"
	"github.com/kbukum/sonify/diarization/pyannote"
	"github.com/kbukum/sonify/logger"
	"github.com/kbukum/sonify/observability"
	"github.com/kbukum/sonify/pipeline"
	"github.com/kbukum/sonify/server"
	"github.com/kbukum/sonify/session"
	"github.com/kbukum/sonify/sse"
	"github.com/kbukum/sonify/transcription"
	"github.com/kbukum/sonify/transcription/openai"
	"github.com/kbukum/sonify/transcription/whisper"
	"github.com/kbukum/sonify/version"
)

// app holds everything run starts and stops, in dependency order.
type app struct {
	log       *logger.Logger
	telemetry observability.ShutdownFunc
	store     cache.Store
	hub       *sse.Hub
	sessions  *session.Manager
	server    *server.Server
}

func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{log: log}

	shutdown, err := observability.Setup(ctx, cfg.Observability, cfg.Name, version.Version, cfg.Environment)
	if err != nil {
		return nil, err
	}
	a.telemetry = shutdown

	var metrics *observability.Metrics
	if cfg.Observability.Enabled {
		if metrics, err = observability.NewMetrics(observability.Meter(cfg.Name)); err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
	}

	if a.store, err = openStore(cfg.Cache); err != nil {
		a.close(ctx)
		return nil, err
	}

	normalizer, err := audio.NewFFmpegNormalizer(audio.FFmpegConfig{
		Binary:     cfg.Audio.FFmpegPath,
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
		Timeout:    cfg.Audio.Timeout,
		OutputDir:  filepath.Join(cfg.Cache.Dir, "audio"),
	}, cache.New[string](a.store, cache.DomainAudio, audio.PathSchema, log, metrics), log)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	stt, err := transcriptionProvider(cfg.Transcription)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	transcriber := transcription.NewTranscriber(stt,
		cache.New[transcription.Response](a.store, cache.DomainTranscript, transcription.ResponseSchema, log, metrics),
		cache.New[transcription.Response](a.store, cache.DomainChunk, transcription.ResponseSchema, log, metrics),
		log, metrics)

	diar, err := diarizationProvider(cfg.Diarization)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	aligner := diarization.NewAligner(diar,
		cache.New[diarization.Entry](a.store, cache.DomainTurns, diarization.EntrySchema, log, metrics),
		log, metrics)

	runner, err := pipeline.New(pipeline.Components{
		Normalizer:  normalizer,
		Transcriber: transcriber,
		Aligner:     aligner,
		Runs:        pipeline.NewRunCache(cache.New[pipeline.Record](a.store, cache.DomainRuns, pipeline.RecordSchema, log, metrics)),
	}, log, metrics)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	credential, err := cfg.Diarization.ResolveCredential()
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	if credential == "" {
		log.Warn("no diarization credential configured; diarization requests will be rejected")
	}

	settings := session.Settings{
		Model:     cfg.Transcription.Model,
		Language:  cfg.Transcription.Language,
		ChunkSize: cfg.Transcription.ChunkSize,
		Diarization: pipeline.DiarizationOptions{
			Credential:  credential,
			NumSpeakers: cfg.Diarization.NumSpeakers,
			MinSpeakers: cfg.Diarization.MinSpeakers,
			MaxSpeakers: cfg.Diarization.MaxSpeakers,
		},
		UploadDir:      cfg.Server.UploadDir,
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
	}

	a.hub = sse.NewHub(log)
	a.sessions = session.NewManager(runner, settings, log, session.WithBroadcaster(a.hub))

	a.server = server.New(cfg.Server, log)
	a.server.RegisterHealthRoutes(cfg.Name,
		observability.CapabilityChecker{Capability: "audio", Target: normalizer},
		observability.CapabilityChecker{Capability: "transcription", Target: stt},
		observability.CapabilityChecker{Capability: "diarization", Target: diar},
		a.hub,
	)
	server.NewAPI(a.sessions, runner, a.hub, settings, cfg.Server.MaxBatchFiles, log).Register(a.server.Engine())

	log.Info("sonifyd configured", logger.Fields(
		"transcription", stt.Name(),
		"diarization", diar.Name(),
		logger.FieldModel, cfg.Transcription.Model,
		logger.FieldLanguage, cfg.Transcription.Language,
		"chunk_size", cfg.Transcription.ChunkSize,
		"cache", cfg.Cache.Backend,
		"version", version.Get().Short(),
	))
	return a, nil
}

func (a *app) start(ctx context.Context) error {
	go a.hub.Run()
	return a.server.Start(ctx)
}

// close stops the components that were created, in reverse order.
func (a *app) close(ctx context.Context) {
	if a.server != nil {
		if err := a.server.Stop(ctx); err != nil {
			a.log.Error("stop server", logger.Fields(logger.FieldError, err.Error()))
		}
	}
	if a.sessions != nil {
		a.sessions.Close()
	}
	if a.hub != nil {
		a.hub.Stop()
	}
	if closer, ok := a.store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			a.log.Error("close cache", logger.Fields(logger.FieldError, err.Error()))
		}
	}
	if a.telemetry != nil {
		if err := a.telemetry(ctx); err != nil {
			a.log.Warn("flush telemetry", logger.Fields(logger.FieldError, err.Error()))
		}
	}
}

func openStore(cfg config.Cache) (cache.Store, error) {
	if cfg.Backend == "sqlite" {
		s, err := cache.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := cache.NewFileStore(cfg.Dir)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func transcriptionProvider(cfg config.Transcription) (transcription.Provider, error) {
	registry := transcription.NewRegistry()
	registry.RegisterFactory(whisper.ProviderName, whisper.Factory())
	registry.RegisterFactory(openai.ProviderName, openai.Factory())

	settings := map[string]any{}
	switch cfg.Provider {
	case whisper.ProviderName:
		settings["url"] = cfg.Whisper.URL
		settings["timeout"] = cfg.Whisper.Timeout
		settings["attempts"] = cfg.Whisper.Attempts
	case openai.ProviderName:
		settings["api_key"] = cfg.OpenAI.APIKey
		settings["base_url"] = cfg.OpenAI.BaseURL
		settings["model"] = cfg.OpenAI.Model
	}
	return registry.Resolve(cfg.Provider, settings)
}

func diarizationProvider(cfg config.Diarization) (diarization.Provider, error) {
	registry := diarization.NewRegistry()
	registry.RegisterFactory(pyannote.ProviderName, pyannote.Factory())
	return registry.Resolve(cfg.Provider, map[string]any{
		"url":      cfg.URL,
		"timeout":  cfg.Timeout,
		"attempts": cfg.Attempts,
	})
}
