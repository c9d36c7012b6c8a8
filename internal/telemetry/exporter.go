package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	serviceName    = "reviewlens"
	serviceVersion = "1.0.0"
)

// Recorder is a sentiment.Recorder that can be flushed on shutdown.
type Recorder interface {
	RecordPrediction(ctx context.Context, rows, cached int, took time.Duration)
	RecordEvaluation(ctx context.Context, macroF1 float64, rows int)
	RecordFailure(ctx context.Context, op string)
	Close(ctx context.Context) error
}

// Exporter exports inference metrics to an OTEL Collector.
type Exporter struct {
	provider     *sdkmetric.MeterProvider
	rowsTotal    metric.Int64Counter
	cachedTotal  metric.Int64Counter
	predictHist  metric.Float64Histogram
	evalsTotal   metric.Int64Counter
	macroF1Hist  metric.Float64Histogram
	failureTotal metric.Int64Counter
}

// NewExporter creates a new OTEL metrics exporter.
func NewExporter(ctx context.Context, cfg Config) (*Exporter, error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTEL exporter is disabled or endpoint not configured")
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	return newExporter(provider)
}

func newExporter(provider *sdkmetric.MeterProvider) (*Exporter, error) {
	meter := provider.Meter(serviceName)

	rowsTotal, err := meter.Int64Counter(
		"reviewlens_predicted_rows_total",
		metric.WithDescription("Rows labeled by the model or the cache"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating rows counter: %w", err)
	}

	cachedTotal, err := meter.Int64Counter(
		"reviewlens_cached_rows_total",
		metric.WithDescription("Rows answered from the prediction cache"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating cache counter: %w", err)
	}

	predictHist, err := meter.Float64Histogram(
		"reviewlens_predict_duration_seconds",
		metric.WithDescription("Wall time of a predict call"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating predict histogram: %w", err)
	}

	evalsTotal, err := meter.Int64Counter(
		"reviewlens_evaluations_total",
		metric.WithDescription("Total number of evaluate calls"),
		metric.WithUnit("{evaluation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating evaluations counter: %w", err)
	}

	macroF1Hist, err := meter.Float64Histogram(
		"reviewlens_macro_f1",
		metric.WithDescription("Macro-F1 reported by evaluate"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating macro-f1 histogram: %w", err)
	}

	failureTotal, err := meter.Int64Counter(
		"reviewlens_failures_total",
		metric.WithDescription("Internal failures by operation"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failures counter: %w", err)
	}

	return &Exporter{
		provider:     provider,
		rowsTotal:    rowsTotal,
		cachedTotal:  cachedTotal,
		predictHist:  predictHist,
		evalsTotal:   evalsTotal,
		macroF1Hist:  macroF1Hist,
		failureTotal: failureTotal,
	}, nil
}

// RecordPrediction records one completed predict call.
func (e *Exporter) RecordPrediction(ctx context.Context, rows, cached int, took time.Duration) {
	e.rowsTotal.Add(ctx, int64(rows))
	e.cachedTotal.Add(ctx, int64(cached))
	e.predictHist.Record(ctx, took.Seconds())
}

// RecordEvaluation records one completed evaluate call.
func (e *Exporter) RecordEvaluation(ctx context.Context, macroF1 float64, rows int) {
	opt := metric.WithAttributes(attribute.Int("rows", rows))
	e.evalsTotal.Add(ctx, 1)
	e.macroF1Hist.Record(ctx, macroF1, opt)
}

// RecordFailure counts an internal failure of op.
func (e *Exporter) RecordFailure(ctx context.Context, op string) {
	e.failureTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// Close shuts down the exporter and flushes any pending metrics.
func (e *Exporter) Close(ctx context.Context) error {
	return e.provider.Shutdown(ctx)
}

// Open returns an OTLP exporter when cfg enables one and a no-op recorder
// otherwise. An exporter that fails to start degrades to the no-op recorder.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		return NewNoOpExporter()
	}
	exp, err := NewExporter(ctx, cfg)
	if err != nil {
		logger.Warn("metrics exporter unavailable", zap.Error(err))
		return NewNoOpExporter()
	}
	logger.Info("exporting metrics", zap.String("endpoint", cfg.Endpoint))
	return exp
}
