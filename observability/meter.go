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

	"github.com/kbukum/streamkit/logger"
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

// DefaultMeterConfig returns sensible defaults for development.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "dev",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter initializes the OpenTelemetry meter provider.
// Returns a MeterProvider that should be shut down on application exit.
func InitMeter(ctx context.Context, config MeterConfig) (*sdkmetric.MeterProvider, error) {
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

// Metrics holds the instruments recorded by pipeline runs and transform chains.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	itemsDistributed metric.Int64Counter
	itemsRetrieved   metric.Int64Counter
	runTotal         metric.Int64Counter
	runDuration      metric.Float64Histogram
	drainTotal       metric.Int64Counter
	drainBytes       metric.Int64Counter
	stageFailures    metric.Int64Counter
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	itemsDistributed, err := meter.Int64Counter("pipeline.items.distributed",
		metric.WithDescription("Items accepted into a pipeline buffer"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline.items.distributed counter: %w", err)
	}

	itemsRetrieved, err := meter.Int64Counter("pipeline.items.retrieved",
		metric.WithDescription("Items taken out of a pipeline buffer"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline.items.retrieved counter: %w", err)
	}

	runTotal, err := meter.Int64Counter("pipeline.run.total",
		metric.WithDescription("Completed pipeline runs by status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline.run.total counter: %w", err)
	}

	runDuration, err := meter.Float64Histogram("pipeline.run.duration",
		metric.WithDescription("Duration of pipeline runs in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline.run.duration histogram: %w", err)
	}

	drainTotal, err := meter.Int64Counter("transform.drain.total",
		metric.WithDescription("Completed transform chains by status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating transform.drain.total counter: %w", err)
	}

	drainBytes, err := meter.Int64Counter("transform.drain.bytes",
		metric.WithDescription("Bytes written to transform sinks"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating transform.drain.bytes counter: %w", err)
	}

	stageFailures, err := meter.Int64Counter("transform.stage.failures",
		metric.WithDescription("Transform stage failures by stage"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating transform.stage.failures counter: %w", err)
	}

	return &Metrics{
		itemsDistributed: itemsDistributed,
		itemsRetrieved:   itemsRetrieved,
		runTotal:         runTotal,
		runDuration:      runDuration,
		drainTotal:       drainTotal,
		drainBytes:       drainBytes,
		stageFailures:    stageFailures,
	}, nil
}

// RecordDistributed counts n items put into the named pipeline's buffer.
func (m *Metrics) RecordDistributed(ctx context.Context, pipeline string, n int64) {
	if m == nil {
		return
	}
	m.itemsDistributed.Add(ctx, n, metric.WithAttributes(attribute.String(AttrPipeline, pipeline)))
}

// RecordRetrieved counts n items taken from the named pipeline's buffer.
func (m *Metrics) RecordRetrieved(ctx context.Context, pipeline string, n int64) {
	if m == nil {
		return
	}
	m.itemsRetrieved.Add(ctx, n, metric.WithAttributes(attribute.String(AttrPipeline, pipeline)))
}

// RecordRun records a finished pipeline run.
func (m *Metrics) RecordRun(ctx context.Context, pipeline, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.runTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrPipeline, pipeline),
		attribute.String(AttrStatus, status),
	))
	m.runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(AttrPipeline, pipeline),
	))
}

// RecordDrain records a finished transform chain and the bytes it wrote.
func (m *Metrics) RecordDrain(ctx context.Context, status string, written int64) {
	if m == nil {
		return
	}
	m.drainTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrStatus, status)))
	if written > 0 {
		m.drainBytes.Add(ctx, written)
	}
}

// RecordStageFailure counts a failed transform stage.
func (m *Metrics) RecordStageFailure(ctx context.Context, stage string) {
	if m == nil {
		return
	}
	m.stageFailures.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrStage, stage)))
}

// Status values used by RecordRun and RecordDrain.
const (
	StatusOK        = "ok"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)
