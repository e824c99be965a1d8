package patternstore

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// storeMetrics holds the OpenTelemetry metric instruments for the store.
// Created once during construction when a meter provider is configured and
// reused for all operations. A nil *storeMetrics is a valid no-op recorder.
type storeMetrics struct {
	// storeCount increments for each accepted manifest.
	storeCount metric.Int64Counter

	// retrieveCount increments for each successful retrieval.
	retrieveCount metric.Int64Counter

	// retrieveMiss increments for each PatternNotFound result.
	retrieveMiss metric.Int64Counter

	// scoreHistogram records winning context resonance scores.
	scoreHistogram metric.Float64Histogram

	// optimizeDuration records maintenance pass duration in milliseconds.
	optimizeDuration metric.Float64Histogram

	// prunedCounter counts projections pruned by maintenance.
	prunedCounter metric.Int64Counter
}

// newStoreMetrics creates and initializes all metric instruments.
func newStoreMetrics(meter metric.Meter) (*storeMetrics, error) {
	m := &storeMetrics{}
	var err error

	m.storeCount, err = meter.Int64Counter(
		"patternstore.store.count",
		metric.WithDescription("Number of manifests accepted"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create store counter: %w", err)
	}

	m.retrieveCount, err = meter.Int64Counter(
		"patternstore.retrieve.count",
		metric.WithDescription("Number of successful retrievals"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create retrieve counter: %w", err)
	}

	m.retrieveMiss, err = meter.Int64Counter(
		"patternstore.retrieve.miss",
		metric.WithDescription("Number of retrievals that found no pattern"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create miss counter: %w", err)
	}

	m.scoreHistogram, err = meter.Float64Histogram(
		"patternstore.retrieve.score",
		metric.WithDescription("Winning context resonance score"),
		metric.WithUnit("1"), // dimensionless ratio
	)
	if err != nil {
		return nil, fmt.Errorf("create score histogram: %w", err)
	}

	m.optimizeDuration, err = meter.Float64Histogram(
		"patternstore.optimize.duration",
		metric.WithDescription("Maintenance pass duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create optimize histogram: %w", err)
	}

	m.prunedCounter, err = meter.Int64Counter(
		"patternstore.optimize.pruned",
		metric.WithDescription("Projections pruned by maintenance"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create pruned counter: %w", err)
	}

	return m, nil
}

func (m *storeMetrics) recordStore(ctx context.Context, tierLabel string) {
	if m == nil {
		return
	}
	m.storeCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("patternstore.tier", tierLabel),
	))
}

func (m *storeMetrics) recordRetrieve(ctx context.Context, tierLabel string, score float64) {
	if m == nil {
		return
	}
	opts := metric.WithAttributes(attribute.String("patternstore.tier", tierLabel))
	m.retrieveCount.Add(ctx, 1, opts)
	m.scoreHistogram.Record(ctx, score, opts)
}

func (m *storeMetrics) recordMiss(ctx context.Context) {
	if m == nil {
		return
	}
	m.retrieveMiss.Add(ctx, 1)
}

func (m *storeMetrics) recordOptimize(ctx context.Context, report *OptimizationReport) {
	if m == nil {
		return
	}
	m.optimizeDuration.Record(ctx, float64(report.Duration.Milliseconds()))
	if report.ProjectionsPruned > 0 {
		m.prunedCounter.Add(ctx, int64(report.ProjectionsPruned))
	}
}

// startSpan begins a span when a tracer is configured; otherwise it returns
// a no-op span so call sites need no nil checks.
func (s *Store) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return noop.NewTracerProvider().Tracer("").Start(ctx, name)
	}
	return s.tracer.Start(ctx, name)
}
