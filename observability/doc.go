// Package observability wires OpenTelemetry tracing and metrics into the
// transcription pipeline.
//
// Tracing:
//
//	shutdown, err := observability.Setup(ctx, cfg)
//	defer shutdown(context.Background())
//
//	ctx, span := observability.StartSpan(ctx, observability.SpanTranscribeChunk)
//	defer span.End()
//
// Metrics:
//
//	m, err := observability.NewMetrics(observability.Meter(observability.InstrumentationName))
//	m.RecordCacheLookup(ctx, "json", observability.CacheHit)
//
// Every Metrics method is safe on a nil receiver, so components constructed
// without metrics simply skip recording.
//
// Health:
//
//	health := observability.NewServiceHealth("sonify", version.Version)
//	health.AddComponent(ffmpegChecker.CheckHealth(ctx))
package observability
