package patternstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func counterValue(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", m.Name)
	total := int64(0)
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetricsRecorded(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	s := newTestStore(t, WithMeterProvider(mp))
	ctx := context.Background()

	_, err := s.Store(ctx, greetManifest())
	require.NoError(t, err)
	_, err = s.Retrieve(ctx, "greet", "casual")
	require.NoError(t, err)
	_, err = s.Retrieve(ctx, "absent", "casual")
	require.ErrorIs(t, err, ErrPatternNotFound)
	_, err = s.Optimize(ctx, 0)
	require.NoError(t, err)

	metrics := collectMetrics(t, reader)

	stored, ok := metrics["patternstore.store.count"]
	require.True(t, ok, "store counter missing")
	assert.Equal(t, int64(1), counterValue(t, stored))

	retrieved, ok := metrics["patternstore.retrieve.count"]
	require.True(t, ok, "retrieve counter missing")
	assert.Equal(t, int64(1), counterValue(t, retrieved))

	missed, ok := metrics["patternstore.retrieve.miss"]
	require.True(t, ok, "miss counter missing")
	assert.Equal(t, int64(1), counterValue(t, missed))

	scores, ok := metrics["patternstore.retrieve.score"]
	require.True(t, ok, "score histogram missing")
	hist, ok := scores.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.NotEmpty(t, hist.DataPoints)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)

	_, ok = metrics["patternstore.optimize.duration"]
	assert.True(t, ok, "optimize histogram missing")
}

func TestMetricsDisabledByDefault(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Without a meter provider the recorders are no-ops; operations must
	// not panic on the nil metrics handle.
	_, err := s.Store(ctx, greetManifest())
	require.NoError(t, err)
	_, err = s.Retrieve(ctx, "greet", "casual")
	require.NoError(t, err)
	_, err = s.Optimize(ctx, 0)
	require.NoError(t, err)
	assert.Nil(t, s.metrics)
}
