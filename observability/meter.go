package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/sonify/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// ServiceName is the name of the service.
	ServiceName string
	// ServiceVersion is the version of the service.
	ServiceVersion string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	// Insecure allows insecure connections (for development).
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// InitMeter initializes the OpenTelemetry meter provider.
// Returns a MeterProvider that should be shut down on application exit.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Cache lookup outcomes.
const (
	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheCorrupt = "corrupt"
)

// Capability call outcomes.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds the pipeline's metric instruments.
type Metrics struct {
	cacheLookups       metric.Int64Counter
	chunksTranscribed  metric.Int64Counter
	capabilityCalls    metric.Int64Counter
	capabilityDuration metric.Float64Histogram
	runsActive         metric.Int64UpDownCounter
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	cacheLookups, err := meter.Int64Counter("sonify.cache.lookups",
		metric.WithDescription("Cache lookups by domain and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sonify.cache.lookups counter: %w", err)
	}

	chunksTranscribed, err := meter.Int64Counter("sonify.chunks.transcribed",
		metric.WithDescription("Chunks sent to the transcription capability"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sonify.chunks.transcribed counter: %w", err)
	}

	capabilityCalls, err := meter.Int64Counter("sonify.capability.calls",
		metric.WithDescription("Capability invocations by capability, provider and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sonify.capability.calls counter: %w", err)
	}

	capabilityDuration, err := meter.Float64Histogram("sonify.capability.duration",
		metric.WithDescription("Duration of capability invocations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sonify.capability.duration histogram: %w", err)
	}

	runsActive, err := meter.Int64UpDownCounter("sonify.runs.active",
		metric.WithDescription("Pipeline runs currently in progress"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sonify.runs.active gauge: %w", err)
	}

	return &Metrics{
		cacheLookups:       cacheLookups,
		chunksTranscribed:  chunksTranscribed,
		capabilityCalls:    capabilityCalls,
		capabilityDuration: capabilityDuration,
		runsActive:         runsActive,
	}, nil
}

// RecordCacheLookup counts a cache lookup in domain with the given outcome.
func (m *Metrics) RecordCacheLookup(ctx context.Context, domain, outcome string) {
	if m == nil {
		return
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("domain", domain),
		attribute.String("outcome", outcome),
	))
}

// RecordChunk counts a chunk sent for transcription.
func (m *Metrics) RecordChunk(ctx context.Context, model string) {
	if m == nil {
		return
	}
	m.chunksTranscribed.Add(ctx, 1, metric.WithAttributes(attribute.String("model", model)))
}

// RecordCapability records one capability invocation.
func (m *Metrics) RecordCapability(ctx context.Context, capability, provider, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.capabilityCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("capability", capability),
		attribute.String("provider", provider),
		attribute.String("status", status),
	))
	m.capabilityDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("capability", capability),
		attribute.String("provider", provider),
	))
}

// RunStarted increments the active run gauge.
func (m *Metrics) RunStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.runsActive.Add(ctx, 1)
}

// RunFinished decrements the active run gauge.
func (m *Metrics) RunFinished(ctx context.Context) {
	if m == nil {
		return
	}
	m.runsActive.Add(ctx, -1)
}
