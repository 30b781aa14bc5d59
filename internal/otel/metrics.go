package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "tab-switcher"

// Metrics holds the OTEL instruments for the switcher.
// All methods are nil-safe so callers can pass a nil *Metrics.
type Metrics struct {
	// Preview fetch counters
	FetchDispatched metric.Int64Counter
	FetchCompleted  metric.Int64Counter
	FetchFailed     metric.Int64Counter
	FetchDuration   metric.Float64Histogram

	// Overlay outcomes (partitioned by outcome: commit, cancel, activate_error)
	Outcomes metric.Int64Counter

	// Modifier polls (partitioned by held: true/false)
	Polls metric.Int64Counter
}

// NewMetrics creates all metric instruments. Returns no-op instruments
// when no MeterProvider is registered (safe to call unconditionally).
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.FetchDispatched, err = meter.Int64Counter("preview.fetch.dispatched",
		metric.WithDescription("Preview captures dispatched by the scheduler"))
	if err != nil {
		return nil, err
	}

	m.FetchCompleted, err = meter.Int64Counter("preview.fetch.completed",
		metric.WithDescription("Preview captures that returned text"))
	if err != nil {
		return nil, err
	}

	m.FetchFailed, err = meter.Int64Counter("preview.fetch.failed",
		metric.WithDescription("Preview captures that failed (retried through staleness)"))
	if err != nil {
		return nil, err
	}

	m.FetchDuration, err = meter.Float64Histogram("preview.fetch.duration",
		metric.WithDescription("Wall-clock time of a preview capture"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	m.Outcomes, err = meter.Int64Counter("switcher.outcomes",
		metric.WithDescription("Overlay sessions partitioned by outcome"))
	if err != nil {
		return nil, err
	}

	m.Polls, err = meter.Int64Counter("switcher.modifier_polls",
		metric.WithDescription("Modifier state samples taken by the poll loop"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordFetchDispatched records a scheduler dispatch.
func (m *Metrics) RecordFetchDispatched(ctx context.Context) {
	if m == nil {
		return
	}
	m.FetchDispatched.Add(ctx, 1)
}

// RecordFetchCompleted records a successful capture.
func (m *Metrics) RecordFetchCompleted(ctx context.Context) {
	if m == nil {
		return
	}
	m.FetchCompleted.Add(ctx, 1)
}

// RecordFetchFailed records a failed capture.
func (m *Metrics) RecordFetchFailed(ctx context.Context) {
	if m == nil {
		return
	}
	m.FetchFailed.Add(ctx, 1)
}

// RecordFetchDuration records how long a capture took.
func (m *Metrics) RecordFetchDuration(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Record(ctx, float64(d.Microseconds())/1000)
}

// RecordOutcome records how an overlay session ended.
func (m *Metrics) RecordOutcome(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.Outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("switcher.outcome", outcome),
	))
}

// RecordPoll records one modifier sample.
func (m *Metrics) RecordPoll(ctx context.Context, held bool) {
	if m == nil {
		return
	}
	m.Polls.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("modifier.held", held),
	))
}
