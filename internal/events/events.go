// Package events carries connection lifecycle notifications from event
// sources to the reconciliation engine.
package events

//go:generate mockgen -destination=mocks/mock_handler.go -package=mocks -source=events.go Handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/stacklok/toolhive-roster/internal/logger"
	"github.com/stacklok/toolhive-roster/internal/reconcile"
)

// Kind names an event type
type Kind string

const (
	// KindConnect reports a client connecting
	KindConnect Kind = "connect"
	// KindDisconnect reports a client disconnecting
	KindDisconnect Kind = "disconnect"
	// KindSnapshot carries the full set of live client ids
	KindSnapshot Kind = "snapshot"
)

// ErrUnknownKind is returned for events with an unrecognised type
var ErrUnknownKind = errors.New("unknown event type")

// Event is one lifecycle notification
type Event struct {
	Type        Kind     `json:"type"`
	ID          string   `json:"id,omitempty"`
	DisplayName string   `json:"displayName,omitempty"`
	FamilyID    string   `json:"familyId,omitempty"`
	IDs         []string `json:"ids,omitempty"`
}

// Handler is the capability an event source delivers to
type Handler interface {
	OnConnect(ctx context.Context, id, displayName, familyID string)
	OnDisconnect(ctx context.Context, id string)
	OnLiveRosterSnapshot(ctx context.Context, ids []string)
}

// Source produces events into a Handler until ctx is done or its input ends
type Source interface {
	Run(ctx context.Context, h Handler) error
}

// Deliver routes ev to the matching Handler method
func Deliver(ctx context.Context, h Handler, ev Event) error {
	switch ev.Type {
	case KindConnect:
		h.OnConnect(ctx, ev.ID, ev.DisplayName, ev.FamilyID)
	case KindDisconnect:
		h.OnDisconnect(ctx, ev.ID)
	case KindSnapshot:
		h.OnLiveRosterSnapshot(ctx, ev.IDs)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, ev.Type)
	}
	return nil
}

// EngineHandler applies events to a reconciliation engine
type EngineHandler struct {
	engine *reconcile.Engine
}

// NewEngineHandler returns a Handler backed by engine
func NewEngineHandler(engine *reconcile.Engine) *EngineHandler {
	return &EngineHandler{engine: engine}
}

// OnConnect implements Handler
func (h *EngineHandler) OnConnect(ctx context.Context, id, displayName, familyID string) {
	out := h.engine.Connect(ctx, id,
		reconcile.WithDisplayName(displayName),
		reconcile.WithFamilyID(familyID),
	)
	logger.Debugw("Connect event handled", "id", id, "outcome", out.String())
}

// OnDisconnect implements Handler
func (h *EngineHandler) OnDisconnect(ctx context.Context, id string) {
	out := h.engine.Disconnect(ctx, id)
	logger.Debugw("Disconnect event handled", "id", id, "outcome", out.String())
}

// OnLiveRosterSnapshot implements Handler
func (h *EngineHandler) OnLiveRosterSnapshot(ctx context.Context, ids []string) {
	out := h.engine.ReconcileLiveRoster(ctx, ids)
	logger.Debugw("Live roster snapshot handled", "count", len(ids), "outcome", out.String())
}
