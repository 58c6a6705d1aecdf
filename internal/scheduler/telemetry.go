package scheduler

import (
	"context"
	"time"

	"github.com/vk/blockgrid/internal/runstore"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/vk/blockgrid/internal/scheduler"

// instruments are the scheduler's metrics.
type instruments struct {
	runs         metric.Int64Counter
	units        metric.Int64Counter
	unitDuration metric.Float64Histogram
	cacheHits    metric.Int64Counter
	exhaustions  metric.Int64Counter
}

func newInstruments(meter metric.Meter) (*instruments, error) {
	var (
		m   instruments
		err error
	)

	m.runs, err = meter.Int64Counter(
		"blockgrid.runs",
		metric.WithDescription("Runs finished, by final state"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	m.units, err = meter.Int64Counter(
		"blockgrid.units",
		metric.WithDescription("Units settled, by final status"),
		metric.WithUnit("{unit}"),
	)
	if err != nil {
		return nil, err
	}

	m.unitDuration, err = meter.Float64Histogram(
		"blockgrid.unit.duration",
		metric.WithDescription("Execution time of units that ran"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.cacheHits, err = meter.Int64Counter(
		"blockgrid.cache.hits",
		metric.WithDescription("Unit executions answered from the cache"),
	)
	if err != nil {
		return nil, err
	}

	m.exhaustions, err = meter.Int64Counter(
		"blockgrid.memory.exhaustions",
		metric.WithDescription("Allocations that found their pool exhausted"),
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *instruments) unitSettled(ctx context.Context, status runstore.Status, d time.Duration, cacheHit bool) {
	attrs := metric.WithAttributes(attribute.String("status", status.String()))
	m.units.Add(ctx, 1, attrs)
	if d > 0 {
		m.unitDuration.Record(ctx, d.Seconds(), attrs)
	}
	if cacheHit {
		m.cacheHits.Add(ctx, 1)
	}
}

func (m *instruments) runFinished(ctx context.Context, state State) {
	m.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state.String())))
}

func (m *instruments) poolExhausted(ctx context.Context) {
	m.exhaustions.Add(ctx, 1)
}

func startUnitSpan(ctx context.Context, tracer trace.Tracer, id string, stage int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "blockgrid.unit",
		trace.WithAttributes(
			attribute.String("unit.id", id),
			attribute.Int("stage.index", stage),
		),
	)
}

// endSpan records the outcome on span and ends it.
func endSpan(span trace.Span, status string, err error) {
	span.SetAttributes(attribute.String("status", status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
