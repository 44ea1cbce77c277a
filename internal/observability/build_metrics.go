package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// BuildMetrics holds custom metrics for page builds and batch applies.
type BuildMetrics struct {
	buildCounter    metric.Int64Counter
	buildErrors     metric.Int64Counter
	buildDuration   metric.Float64Histogram
	applyCounter    metric.Int64Counter
	applyErrors     metric.Int64Counter
	applyActions    metric.Int64Histogram
	lastSuccessUnix atomic.Int64
}

// InitBuildMetrics initializes page build metrics.
func InitBuildMetrics(logger *slog.Logger) (*BuildMetrics, error) {
	meter := otel.Meter("grist-mcp-server")

	buildCounter, err := meter.Int64Counter(
		"page.build.total",
		metric.WithDescription("Total number of page build attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create page build counter: %w", err)
	}

	buildErrors, err := meter.Int64Counter(
		"page.build.errors.total",
		metric.WithDescription("Total number of failed page builds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create page build error counter: %w", err)
	}

	buildDuration, err := meter.Float64Histogram(
		"page.build.duration",
		metric.WithDescription("Duration of page builds in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create page build duration histogram: %w", err)
	}

	applyCounter, err := meter.Int64Counter(
		"grist.apply.total",
		metric.WithDescription("Total number of user action batches sent to the Grist API"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create apply counter: %w", err)
	}

	applyErrors, err := meter.Int64Counter(
		"grist.apply.errors.total",
		metric.WithDescription("Total number of failed user action batches"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create apply error counter: %w", err)
	}

	applyActions, err := meter.Int64Histogram(
		"grist.apply.actions",
		metric.WithDescription("Number of user actions per batch"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create apply actions histogram: %w", err)
	}

	lastSuccessGauge, err := meter.Int64ObservableGauge(
		"page.build.last_success_unix",
		metric.WithDescription("Unix timestamp of the last successful page build"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create page build last success gauge: %w", err)
	}

	metrics := &BuildMetrics{
		buildCounter:  buildCounter,
		buildErrors:   buildErrors,
		buildDuration: buildDuration,
		applyCounter:  applyCounter,
		applyErrors:   applyErrors,
		applyActions:  applyActions,
	}

	_, err = meter.RegisterCallback(
		func(ctx context.Context, observer metric.Observer) error {
			value := metrics.lastSuccessUnix.Load()
			if value > 0 {
				observer.ObserveInt64(lastSuccessGauge, value)
			}
			return nil
		},
		lastSuccessGauge,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register page build gauge callback: %w", err)
	}

	logger.Info("page build metrics initialized")
	return metrics, nil
}

// RecordBuild records a page build attempt.
func (m *BuildMetrics) RecordBuild(ctx context.Context, pattern string, duration time.Duration, success bool) {
	attrs := []attribute.KeyValue{
		attribute.String("pattern", pattern),
		attribute.Bool("success", success),
	}

	m.buildCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.buildDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if !success {
		m.buildErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("pattern", pattern)))
		return
	}

	m.lastSuccessUnix.Store(time.Now().Unix())
}

// RecordApply records one batch of user actions sent to the Grist API.
func (m *BuildMetrics) RecordApply(ctx context.Context, actionCount int, success bool) {
	attrs := []attribute.KeyValue{
		attribute.Bool("success", success),
	}

	m.applyCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.applyActions.Record(ctx, int64(actionCount), metric.WithAttributes(attrs...))

	if !success {
		m.applyErrors.Add(ctx, 1)
	}
}
