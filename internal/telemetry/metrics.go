package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RosterMeterName is the meter used for roster instruments
const RosterMeterName = "github.com/stacklok/toolhive-roster/roster"

// Event outcomes recorded by RecordEvent
const (
	OutcomeRejected  = "rejected"
	OutcomeChanged   = "changed"
	OutcomeUnchanged = "unchanged"
)

// RosterMetrics holds the instruments updated by the reconciliation engine.
// A nil *RosterMetrics records nothing.
type RosterMetrics struct {
	knownClients  metric.Int64Gauge
	activeClients metric.Int64Gauge
	events        metric.Int64Counter
	saveFailures  metric.Int64Counter
	opDuration    metric.Float64Histogram
}

// NewRosterMetrics creates the roster instruments. A nil provider returns nil.
func NewRosterMetrics(provider metric.MeterProvider) (*RosterMetrics, error) {
	if provider == nil {
		return nil, nil
	}
	meter := provider.Meter(RosterMeterName)

	known, err := meter.Int64Gauge(
		"thv_roster_clients_known",
		metric.WithDescription("Number of clients ever recorded in the roster"),
		metric.WithUnit("{client}"),
	)
	if err != nil {
		return nil, err
	}
	active, err := meter.Int64Gauge(
		"thv_roster_clients_active",
		metric.WithDescription("Number of clients currently connected"),
		metric.WithUnit("{client}"),
	)
	if err != nil {
		return nil, err
	}
	events, err := meter.Int64Counter(
		"thv_roster_events_total",
		metric.WithDescription("Roster operations by kind and outcome"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}
	saveFailures, err := meter.Int64Counter(
		"thv_roster_save_failures_total",
		metric.WithDescription("Roster writes that failed after retries"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}
	opDuration, err := meter.Float64Histogram(
		"thv_roster_operation_duration_seconds",
		metric.WithDescription("Duration of load, mutate and save cycles"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5),
	)
	if err != nil {
		return nil, err
	}

	return &RosterMetrics{
		knownClients:  known,
		activeClients: active,
		events:        events,
		saveFailures:  saveFailures,
		opDuration:    opDuration,
	}, nil
}

// RecordRosterSize records the known and active client counts
func (m *RosterMetrics) RecordRosterSize(ctx context.Context, known, active int) {
	if m == nil {
		return
	}
	m.knownClients.Record(ctx, int64(known))
	m.activeClients.Record(ctx, int64(active))
}

// RecordEvent counts one operation
func (m *RosterMetrics) RecordEvent(ctx context.Context, operation, outcome string) {
	if m == nil {
		return
	}
	m.events.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

// RecordSaveFailure counts one failed write
func (m *RosterMetrics) RecordSaveFailure(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.saveFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

// RecordOperationDuration records how long an operation held the roster
func (m *RosterMetrics) RecordOperationDuration(ctx context.Context, operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.opDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("operation", operation)))
}
