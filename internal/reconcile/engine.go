// Package reconcile applies connection lifecycle events to the persisted
// roster. Every operation runs one serialised load, mutate, save cycle and
// then notifies subscribers with the resulting registry.
package reconcile

//go:generate mockgen -destination=mocks/mock_notifier.go -package=mocks -source=engine.go Notifier

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/toolhive-roster/internal/logger"
	"github.com/stacklok/toolhive-roster/internal/otel"
	"github.com/stacklok/toolhive-roster/internal/roster"
	"github.com/stacklok/toolhive-roster/internal/store"
	"github.com/stacklok/toolhive-roster/internal/telemetry"
)

// TracerName is the tracer used for engine spans
const TracerName = "github.com/stacklok/toolhive-roster/reconcile"

// Operation names used in logs, spans and metrics
const (
	OpConnect    = "connect"
	OpDisconnect = "disconnect"
	OpReconcile  = "reconcile"
)

// Notifier is told about the registry after every accepted operation
type Notifier interface {
	RosterChanged(ctx context.Context, reg *roster.Registry)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, reg *roster.Registry)

// RosterChanged calls f
func (f NotifierFunc) RosterChanged(ctx context.Context, reg *roster.Registry) {
	f(ctx, reg)
}

// Outcome describes what an operation did. Operations never fail: a rejected
// input or a failed write is logged and reported here instead.
type Outcome struct {
	// Rejected is set when the input was ignored, e.g. a blank id
	Rejected bool
	// Changed is set when the normalized registry differs from what was loaded
	Changed bool
	// Persisted is set when the registry was written successfully
	Persisted bool
}

// String renders the outcome for logs and CLI output
func (o Outcome) String() string {
	switch {
	case o.Rejected:
		return telemetry.OutcomeRejected
	case !o.Persisted:
		return "not persisted"
	case o.Changed:
		return telemetry.OutcomeChanged
	default:
		return telemetry.OutcomeUnchanged
	}
}

// Option configures an Engine
type Option func(*Engine)

// WithTracer records a span per operation
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// WithMetrics records roster metrics per operation
func WithMetrics(m *telemetry.RosterMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// Engine mutates the roster held by a Store
type Engine struct {
	store   store.Store
	tracer  trace.Tracer
	metrics *telemetry.RosterMetrics

	// mu serialises load, mutate and save within this process; the store lock
	// covers other processes sharing the file
	mu sync.Mutex

	subMu       sync.RWMutex
	subscribers []Notifier
}

// New creates an engine over s
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{store: s}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Subscribe registers n to be notified after every accepted operation
func (e *Engine) Subscribe(n Notifier) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.subscribers = append(e.subscribers, n)
}

// ConnectOption supplies optional metadata to Connect
type ConnectOption func(*connectParams)

type connectParams struct {
	displayName string
	familyID    string
}

// WithDisplayName sets the client's display name. Blank values are ignored.
func WithDisplayName(name string) ConnectOption {
	return func(p *connectParams) {
		p.displayName = strings.TrimSpace(name)
	}
}

// WithFamilyID sets the client's family code. Blank values are ignored.
func WithFamilyID(familyID string) ConnectOption {
	return func(p *connectParams) {
		p.familyID = strings.TrimSpace(familyID)
	}
}

// Connect records id as known and active. A new client gets the supplied
// display name (or its id) and family code; an existing client only has
// non-blank values overwritten. No other client is touched.
func (e *Engine) Connect(ctx context.Context, id string, opts ...ConnectOption) Outcome {
	clean, err := roster.CleanID(id)
	if err != nil {
		return e.reject(ctx, OpConnect, err)
	}
	var p connectParams
	for _, opt := range opts {
		opt(&p)
	}

	return e.mutate(ctx, OpConnect, []trace.SpanStartOption{
		trace.WithAttributes(otel.AttrClientID.String(clean)),
	}, func(reg *roster.Registry) {
		i := reg.IndexOf(clean)
		if i < 0 {
			name := p.displayName
			if name == "" {
				name = clean
			}
			reg.IDs = append(reg.IDs, clean)
			reg.Names = append(reg.Names, name)
			reg.FamilyIDs = append(reg.FamilyIDs, p.familyID)
		} else {
			if p.displayName != "" {
				reg.Names[i] = p.displayName
			}
			if p.familyID != "" {
				reg.FamilyIDs[i] = p.familyID
			}
		}
		if !reg.IsActive(clean) {
			reg.Active = append(reg.Active, clean)
		}
	})
}

// Disconnect removes id from the active set. The client stays known.
func (e *Engine) Disconnect(ctx context.Context, id string) Outcome {
	clean, err := roster.CleanID(id)
	if err != nil {
		return e.reject(ctx, OpDisconnect, err)
	}

	return e.mutate(ctx, OpDisconnect, []trace.SpanStartOption{
		trace.WithAttributes(otel.AttrClientID.String(clean)),
	}, func(reg *roster.Registry) {
		kept := reg.Active[:0]
		for _, a := range reg.Active {
			if a != clean {
				kept = append(kept, a)
			}
		}
		reg.Active = kept
	})
}

// ReconcileLiveRoster makes the active set equal to liveIDs. Ids not yet known
// are recorded with their id as display name, in snapshot order. Blank ids in
// the snapshot are ignored.
func (e *Engine) ReconcileLiveRoster(ctx context.Context, liveIDs []string) Outcome {
	live := make([]string, 0, len(liveIDs))
	for _, id := range liveIDs {
		clean, err := roster.CleanID(id)
		if err != nil {
			logger.Debug("Ignoring blank id in live roster snapshot")
			continue
		}
		live = append(live, clean)
	}
	live = roster.DistinctInOrder(live)

	return e.mutate(ctx, OpReconcile, []trace.SpanStartOption{
		trace.WithAttributes(otel.AttrLiveCount.Int(len(live))),
	}, func(reg *roster.Registry) {
		liveSet := make(map[string]struct{}, len(live))
		for _, id := range live {
			liveSet[id] = struct{}{}
			if !reg.Known(id) {
				reg.IDs = append(reg.IDs, id)
				reg.Names = append(reg.Names, id)
				reg.FamilyIDs = append(reg.FamilyIDs, "")
			}
		}

		active := make([]string, 0, len(live))
		for _, a := range reg.Active {
			if _, ok := liveSet[a]; ok {
				active = append(active, a)
			}
		}
		wasActive := reg.ActiveSet()
		for _, id := range live {
			if _, ok := wasActive[id]; !ok {
				active = append(active, id)
			}
		}
		reg.Active = active
	})
}

// Snapshot returns a copy of the persisted registry
func (e *Engine) Snapshot(ctx context.Context) *roster.Registry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return store.LoadOrEmpty(ctx, e.store)
}

func (e *Engine) reject(ctx context.Context, op string, err error) Outcome {
	logger.Warnw("Ignoring roster operation", "operation", op, "error", err)
	e.metrics.RecordEvent(ctx, op, telemetry.OutcomeRejected)
	return Outcome{Rejected: true}
}

func (e *Engine) mutate(
	ctx context.Context,
	op string,
	spanOpts []trace.SpanStartOption,
	apply func(reg *roster.Registry),
) Outcome {
	ctx, span := otel.StartSpan(ctx, e.tracer, "reconcile."+op, spanOpts...)
	defer span.End()
	if p, ok := e.store.(interface{ Path() string }); ok {
		span.SetAttributes(otel.AttrRegistryFile.String(p.Path()))
	}
	start := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	unlock, err := e.store.Lock(ctx)
	if err != nil {
		logger.Warnw("Proceeding without roster file lock", "operation", op, "error", err)
		unlock = func() {}
	}

	loaded := roster.Normalize(store.LoadOrEmpty(ctx, e.store))
	working := loaded.Clone()
	apply(working)
	updated := roster.Normalize(working)

	outcome := Outcome{Changed: !reflect.DeepEqual(loaded, updated)}
	if err := e.store.Save(ctx, updated); err != nil {
		logger.Errorw("Failed to persist roster; continuing with unsaved state", "operation", op, "error", err)
		otel.RecordError(span, err)
		e.metrics.RecordSaveFailure(ctx, op)
	} else {
		outcome.Persisted = true
	}
	unlock()

	span.SetAttributes(
		otel.AttrOperation.String(op),
		otel.AttrChanged.Bool(outcome.Changed),
		otel.AttrKnownCount.Int(len(updated.IDs)),
		otel.AttrActiveCount.Int(len(updated.Active)),
	)
	e.metrics.RecordOperationDuration(ctx, op, time.Since(start))
	e.metrics.RecordRosterSize(ctx, len(updated.IDs), len(updated.Active))
	if outcome.Changed {
		e.metrics.RecordEvent(ctx, op, telemetry.OutcomeChanged)
	} else {
		e.metrics.RecordEvent(ctx, op, telemetry.OutcomeUnchanged)
	}
	logger.Debugw("Roster operation applied",
		"operation", op,
		"changed", outcome.Changed,
		"persisted", outcome.Persisted,
		"known", len(updated.IDs),
		"active", len(updated.Active),
	)

	e.notify(ctx, updated)
	return outcome
}

func (e *Engine) notify(ctx context.Context, reg *roster.Registry) {
	e.subMu.RLock()
	subscribers := append([]Notifier(nil), e.subscribers...)
	e.subMu.RUnlock()

	for _, n := range subscribers {
		n.RosterChanged(ctx, reg.Clone())
	}
}
