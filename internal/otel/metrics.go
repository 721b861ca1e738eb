package otel

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// MetricsConfig holds configuration for the OpenTelemetry metrics.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active. Default: false (no-op).
	Enabled bool

	// ServiceName is the name of the service for metric attribution.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// ExporterType specifies which exporter to use.
	ExporterType ExporterType

	// OTLPEndpoint is the endpoint for OTLP exporters (e.g., "localhost:4317").
	OTLPEndpoint string

	// OTLPInsecure disables TLS for OTLP connections.
	OTLPInsecure bool

	// Attributes are additional attributes to add to all metrics.
	Attributes map[string]string
}

// DefaultMetricsConfig returns a default configuration with metrics disabled.
func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Enabled:      false,
		ServiceName:  "keylime-perf-harness",
		ExporterType: ExporterNone,
	}
}

// Metrics wraps OpenTelemetry metrics functionality with harness-specific helpers.
type Metrics struct {
	config        *MetricsConfig
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	shutdown      func(context.Context) error
	mu            sync.RWMutex

	attemptLatency metric.Float64Histogram
	attemptCounter metric.Int64Counter
	retryCounter   metric.Int64Counter
	conflictCount  metric.Int64Counter
	tasksActive    metric.Int64UpDownCounter
}

var (
	globalMetrics   *Metrics
	globalMetricsMu sync.RWMutex
)

// NewMetrics creates a new Metrics instance with the given configuration.
func NewMetrics(ctx context.Context, cfg *MetricsConfig) (*Metrics, error) {
	if cfg == nil {
		cfg = DefaultMetricsConfig()
	}

	m := &Metrics{config: cfg}

	if !cfg.Enabled || cfg.ExporterType == ExporterNone {
		m.meterProvider = sdkmetric.NewMeterProvider()
		m.meter = m.meterProvider.Meter(cfg.ServiceName)
		m.shutdown = func(context.Context) error { return nil }
		return m, nil
	}

	exporter, err := m.createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics exporter: %w", err)
	}

	res, err := m.createResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics resource: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)

	m.meterProvider = mp
	m.meter = mp.Meter(cfg.ServiceName)
	m.shutdown = mp.Shutdown

	if err := m.registerInstruments(); err != nil {
		return nil, fmt.Errorf("failed to register metric instruments: %w", err)
	}

	return m, nil
}

func (m *Metrics) createExporter(ctx context.Context, cfg *MetricsConfig) (sdkmetric.Exporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		return stdoutmetric.New()

	case ExporterOTLPGRPC:
		var opts []otlpmetricgrpc.Option
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, opts...)

	case ExporterOTLPHTTP:
		var opts []otlpmetrichttp.Option
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unknown exporter type: %s", cfg.ExporterType)
	}
}

func (m *Metrics) createResource(cfg *MetricsConfig) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
	}

	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}

	for k, v := range cfg.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}

	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes("", attrs...),
	)
}

func (m *Metrics) registerInstruments() error {
	var err error

	m.attemptLatency, err = m.meter.Float64Histogram(
		"harness.attempt.latency",
		metric.WithDescription("Duration of a single create/update request attempt"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return fmt.Errorf("failed to create attempt latency histogram: %w", err)
	}

	m.attemptCounter, err = m.meter.Int64Counter(
		"harness.attempts",
		metric.WithDescription("Count of request attempts by action and outcome"),
	)
	if err != nil {
		return fmt.Errorf("failed to create attempt counter: %w", err)
	}

	m.retryCounter, err = m.meter.Int64Counter(
		"harness.retries",
		metric.WithDescription("Count of retry-after driven re-attempts"),
	)
	if err != nil {
		return fmt.Errorf("failed to create retry counter: %w", err)
	}

	m.conflictCount, err = m.meter.Int64Counter(
		"harness.conflicts",
		metric.WithDescription("Count of 409 responses observed"),
	)
	if err != nil {
		return fmt.Errorf("failed to create conflict counter: %w", err)
	}

	m.tasksActive, err = m.meter.Int64UpDownCounter(
		"harness.tasks.active",
		metric.WithDescription("Number of attestation tasks currently in flight"),
	)
	if err != nil {
		return fmt.Errorf("failed to create active tasks counter: %w", err)
	}

	return nil
}

// RecordAttempt records the latency and outcome of a single request attempt.
func (m *Metrics) RecordAttempt(ctx context.Context, action string, latencyMs float64, ok bool) {
	if m.attemptLatency == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("action", action),
		attribute.Bool("ok", ok),
	}
	m.attemptLatency.Record(ctx, latencyMs, metric.WithAttributes(attrs...))
	if m.attemptCounter != nil {
		m.attemptCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordRetry increments the retry counter.
func (m *Metrics) RecordRetry(ctx context.Context, action string) {
	if m.retryCounter == nil {
		return
	}
	m.retryCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

// RecordConflict increments the conflict counter.
func (m *Metrics) RecordConflict(ctx context.Context, action string) {
	if m.conflictCount == nil {
		return
	}
	m.conflictCount.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

// TaskStarted increments the active-tasks gauge.
func (m *Metrics) TaskStarted(ctx context.Context) {
	if m.tasksActive == nil {
		return
	}
	m.tasksActive.Add(ctx, 1)
}

// TaskConcluded decrements the active-tasks gauge.
func (m *Metrics) TaskConcluded(ctx context.Context) {
	if m.tasksActive == nil {
		return
	}
	m.tasksActive.Add(ctx, -1)
}

// Shutdown gracefully shuts down the metrics provider, flushing any pending metrics.
func (m *Metrics) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shutdown != nil {
		return m.shutdown(ctx)
	}
	return nil
}

// Enabled returns whether metrics collection is enabled.
func (m *Metrics) Enabled() bool {
	return m.config.Enabled && m.config.ExporterType != ExporterNone
}

// MeterProvider returns the underlying meter provider.
func (m *Metrics) MeterProvider() *sdkmetric.MeterProvider {
	return m.meterProvider
}

// SetGlobalMetrics sets the global metrics instance.
func SetGlobalMetrics(m *Metrics) {
	globalMetricsMu.Lock()
	defer globalMetricsMu.Unlock()
	globalMetrics = m

	if m != nil && m.Enabled() {
		otel.SetMeterProvider(m.meterProvider)
	}
}

// GetGlobalMetrics returns the global metrics instance.
// Returns a no-op metrics instance if none has been set.
func GetGlobalMetrics() *Metrics {
	globalMetricsMu.RLock()
	defer globalMetricsMu.RUnlock()

	if globalMetrics == nil {
		return NoopMetrics()
	}

	return globalMetrics
}

// NoopMetrics returns a metrics instance that does nothing (for testing or when disabled).
func NoopMetrics() *Metrics {
	cfg := DefaultMetricsConfig()
	mp := sdkmetric.NewMeterProvider()
	return &Metrics{
		config:        cfg,
		meterProvider: mp,
		meter:         mp.Meter(cfg.ServiceName),
		shutdown:      func(context.Context) error { return nil },
	}
}
