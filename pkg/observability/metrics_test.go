package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/deltacov/pkg/observability"
)

func newManualMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()

	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for idx := range rm.ScopeMetrics {
		for midx := range rm.ScopeMetrics[idx].Metrics {
			if rm.ScopeMetrics[idx].Metrics[midx].Name == name {
				return &rm.ScopeMetrics[idx].Metrics[midx]
			}
		}
	}

	return nil
}

func sumValue(t *testing.T, m *metricdata.Metrics) int64 {
	t.Helper()
	require.NotNil(t, m)

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", m.Name)

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}

	return total
}

func TestREDMetrics_RecordRequest(t *testing.T) {
	t.Parallel()

	reader, mp := newManualMeter()

	red, err := observability.NewREDMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	red.RecordRequest(ctx, "deltacov_check", observability.StatusOK, 100*time.Millisecond)
	red.RecordRequest(ctx, "deltacov_check", observability.StatusError, time.Second)

	rm := collectMetrics(t, reader)

	assert.Equal(t, int64(2), sumValue(t, findMetric(rm, "deltacov.requests.total")))
	assert.Equal(t, int64(1), sumValue(t, findMetric(rm, "deltacov.errors.total")))
	require.NotNil(t, findMetric(rm, "deltacov.request.duration.seconds"))
}

func TestREDMetrics_TrackInflight(t *testing.T) {
	t.Parallel()

	reader, mp := newManualMeter()

	red, err := observability.NewREDMetrics(mp.Meter("test"))
	require.NoError(t, err)

	done := red.TrackInflight(context.Background(), "deltacov_check")
	assert.Equal(t, int64(1), sumValue(t, findMetric(collectMetrics(t, reader), "deltacov.inflight.requests")))

	done()
	assert.Equal(t, int64(0), sumValue(t, findMetric(collectMetrics(t, reader), "deltacov.inflight.requests")))
}

func TestRunMetrics_RecordRun(t *testing.T) {
	t.Parallel()

	reader, mp := newManualMeter()

	runs, err := observability.NewRunMetrics(mp.Meter("test"))
	require.NoError(t, err)

	runs.RecordRun(context.Background(), observability.RunStats{
		Files:          2,
		MissingReports: 1,
		Changed:        5,
		Covered:        2,
		Ratio:          0.4,
		Duration:       1500 * time.Millisecond,
	})

	rm := collectMetrics(t, reader)

	assert.Equal(t, int64(1), sumValue(t, findMetric(rm, "deltacov.runs.total")))
	assert.Equal(t, int64(2), sumValue(t, findMetric(rm, "deltacov.files.total")))
	assert.Equal(t, int64(1), sumValue(t, findMetric(rm, "deltacov.reports.missing.total")))

	runsTotal, ok := findMetric(rm, "deltacov.runs.total").Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, runsTotal.DataPoints, 1)

	verdict, found := runsTotal.DataPoints[0].Attributes.Value("verdict")
	require.True(t, found)
	assert.Equal(t, "fail", verdict.AsString())

	ratio := findMetric(rm, "deltacov.coverage.ratio")
	require.NotNil(t, ratio)

	gauge, ok := ratio.Data.(metricdata.Gauge[float64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.InDelta(t, 0.4, gauge.DataPoints[0].Value, 1e-9)
}

func TestRunMetrics_NilReceiver(t *testing.T) {
	t.Parallel()

	var runs *observability.RunMetrics

	assert.NotPanics(t, func() {
		runs.RecordRun(context.Background(), observability.RunStats{Passed: true})
	})
}

func TestMetrics_NoopMeter(t *testing.T) {
	t.Parallel()

	providers, err := observability.Init(observability.DefaultConfig())
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, providers.Shutdown(context.Background())) })

	red, err := observability.NewREDMetrics(providers.Meter)
	require.NoError(t, err)

	runs, err := observability.NewRunMetrics(providers.Meter)
	require.NoError(t, err)

	red.RecordRequest(context.Background(), "deltacov_check", observability.StatusOK, time.Millisecond)
	runs.RecordRun(context.Background(), observability.RunStats{Passed: true})
}
