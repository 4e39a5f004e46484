package app

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

// Telemetry collects the counters the storage layers publish through the
// global meter provider. It has to be installed before the database is
// opened, since instruments bind to the provider current at creation.
type Telemetry struct {
	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider
}

func NewTelemetry() *Telemetry {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	return &Telemetry{reader: reader, provider: provider}
}

// Counters sums every integer counter by name across its attributes.
func (t *Telemetry) Counters(ctx context.Context) (map[string]int64, error) {
	var rm metricdata.ResourceMetrics
	if err := t.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collect metrics: %w", err)
	}

	counters := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}

			for _, dp := range sum.DataPoints {
				counters[m.Name] += dp.Value
			}
		}
	}

	return counters, nil
}

// Report logs the current counters in name order.
func (t *Telemetry) Report(ctx context.Context, log *zap.SugaredLogger) error {
	counters, err := t.Counters(ctx)
	if err != nil {
		return err
	}

	fields := make([]any, 0, 2*len(counters))
	for _, name := range slices.Sorted(maps.Keys(counters)) {
		fields = append(fields, name, counters[name])
	}
	log.Infow("counters", fields...)

	return nil
}

func (t *Telemetry) Shutdown(ctx context.Context) error {
	if err := t.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown meter provider: %w", err)
	}

	return nil
}
