package oteladapters_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/AntonStoeckl/book-lending-go/lending/oteladapters"
)

func newMeterWithReader() (*sdkmetric.ManualReader, *oteladapters.MetricsCollector) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	return reader, oteladapters.NewMetricsCollector(provider.Meter("test"))
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var resourceMetrics metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &resourceMetrics), "failed to collect metrics")

	return resourceMetrics
}

func findMetric(t *testing.T, resourceMetrics metricdata.ResourceMetrics, name string) metricdata.Metrics {
	t.Helper()

	for _, scopeMetrics := range resourceMetrics.ScopeMetrics {
		for _, m := range scopeMetrics.Metrics {
			if m.Name == name {
				return m
			}
		}
	}

	require.Failf(t, "metric not found", "metric %s was not recorded", name)

	return metricdata.Metrics{}
}

func Test_MetricsCollector_RecordDuration_InSeconds(t *testing.T) {
	reader, collector := newMeterWithReader()

	collector.RecordDuration("lending_operation_duration_seconds", 150*time.Millisecond, map[string]string{
		"operation": "borrow",
		"status":    "success",
	})

	m := findMetric(t, collect(t, reader), "lending_operation_duration_seconds")
	histogram, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok, "expected a float64 histogram")
	require.Len(t, histogram.DataPoints, 1)

	dataPoint := histogram.DataPoints[0]
	assert.Equal(t, uint64(1), dataPoint.Count)
	assert.InDelta(t, 0.15, dataPoint.Sum, 0.001)
	assert.Equal(t, "s", m.Unit)
	assert.Equal(t, "lending operation duration in seconds", m.Description)

	expectedAttrs := attribute.NewSet(
		attribute.String("operation", "borrow"),
		attribute.String("status", "success"),
	)
	assert.True(t, dataPoint.Attributes.Equals(&expectedAttrs))
}

func Test_MetricsCollector_IncrementCounter_AddsUp(t *testing.T) {
	reader, collector := newMeterWithReader()
	labels := map[string]string{"operation": "borrow", "outcome": "no_copies_available"}

	collector.IncrementCounter("lending_operation_outcomes_total", labels)
	collector.IncrementCounterContext(context.Background(), "lending_operation_outcomes_total", labels)
	collector.IncrementCounter("lending_operation_outcomes_total", map[string]string{"operation": "return", "outcome": "none"})

	m := findMetric(t, collect(t, reader), "lending_operation_outcomes_total")
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected an int64 sum")
	require.Len(t, sum.DataPoints, 2)
	assert.True(t, sum.IsMonotonic)

	expectedAttrs := attribute.NewSet(
		attribute.String("operation", "borrow"),
		attribute.String("outcome", "no_copies_available"),
	)

	for _, dataPoint := range sum.DataPoints {
		if dataPoint.Attributes.Equals(&expectedAttrs) {
			assert.Equal(t, int64(2), dataPoint.Value)
		} else {
			assert.Equal(t, int64(1), dataPoint.Value)
		}
	}
}

func Test_MetricsCollector_RecordValue_KeepsLastValue(t *testing.T) {
	reader, collector := newMeterWithReader()
	labels := map[string]string{"book_id": "b-1"}

	collector.RecordValue("lending_store_available_copies", 3, labels)
	collector.RecordValueContext(context.Background(), "lending_store_available_copies", 2, labels)

	m := findMetric(t, collect(t, reader), "lending_store_available_copies")
	gauge, ok := m.Data.(metricdata.Gauge[float64])
	require.True(t, ok, "expected a float64 gauge")
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, 2.0, gauge.DataPoints[0].Value)
}

func Test_MetricsCollector_IsSafeForConcurrentUse(t *testing.T) {
	reader, collector := newMeterWithReader()
	var wg sync.WaitGroup

	for range 20 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			collector.IncrementCounter("lending_retries_total", map[string]string{"operation": "borrow"})
			collector.RecordDuration("lending_retry_delay_seconds", time.Millisecond, nil)
		}()
	}

	wg.Wait()

	m := findMetric(t, collect(t, reader), "lending_retries_total")
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(20), sum.DataPoints[0].Value)
}
