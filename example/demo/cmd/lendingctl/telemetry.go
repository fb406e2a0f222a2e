package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AntonStoeckl/book-lending-go/lending/oteladapters"
)

const instrumentationName = "lendingctl"

// telemetry bundles in-process OpenTelemetry providers.
// Metrics are read with a ManualReader and summarized on stderr when the command finishes.
type telemetry struct {
	reader         *sdkmetric.ManualReader
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider

	logger  *oteladapters.SlogBridgeLogger
	metrics *oteladapters.MetricsCollector
	tracing *oteladapters.TracingCollector
}

func newTelemetry(handler slog.Handler) *telemetry {
	reader := sdkmetric.NewManualReader()
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	tracerProvider := sdktrace.NewTracerProvider()

	return &telemetry{
		reader:         reader,
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		logger:         oteladapters.NewSlogBridgeLoggerWithHandler(handler),
		metrics:        oteladapters.NewMetricsCollector(meterProvider.Meter(instrumentationName)),
		tracing:        oteladapters.NewTracingCollector(tracerProvider.Tracer(instrumentationName)),
	}
}

type metricSummary struct {
	Name       string `json:"name"`
	DataPoints int    `json:"data_points"`
}

func (t *telemetry) collect(ctx context.Context) ([]metricSummary, error) {
	var rm metricdata.ResourceMetrics
	if err := t.reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}

	var summaries []metricSummary

	for _, scopeMetrics := range rm.ScopeMetrics {
		for _, m := range scopeMetrics.Metrics {
			summaries = append(summaries, metricSummary{Name: m.Name, DataPoints: dataPointCount(m.Data)})
		}
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })

	return summaries, nil
}

func dataPointCount(data metricdata.Aggregation) int {
	switch d := data.(type) {
	case metricdata.Histogram[float64]:
		return len(d.DataPoints)
	case metricdata.Sum[int64]:
		return len(d.DataPoints)
	case metricdata.Gauge[float64]:
		return len(d.DataPoints)
	default:
		return 0
	}
}

func (t *telemetry) report(ctx context.Context, w io.Writer) error {
	summaries, err := t.collect(ctx)
	if err != nil {
		return err
	}

	return printJSON(w, map[string]any{"metrics": summaries})
}

func (t *telemetry) shutdown(ctx context.Context) error {
	return errors.Join(t.meterProvider.Shutdown(ctx), t.tracerProvider.Shutdown(ctx))
}
