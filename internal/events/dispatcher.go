package events

import (
	"context"
	"errors"
	"sync"

	"github.com/stacklok/toolhive-roster/internal/logger"
)

// DefaultQueueSize is the dispatcher buffer used when none is given
const DefaultQueueSize = 64

// ErrDispatcherStopped is returned by Submit once Run has returned
var ErrDispatcherStopped = errors.New("event dispatcher stopped")

// Dispatcher is a single-owner queue in front of a Handler. Any number of
// sources may submit events; one goroutine running Run delivers them in
// arrival order. It implements Handler itself so it can sit between a
// Source and the engine.
type Dispatcher struct {
	target  Handler
	queue   chan Event
	stopped chan struct{}
	once    sync.Once
}

// NewDispatcher creates a dispatcher delivering to target. A size below one
// uses DefaultQueueSize.
func NewDispatcher(target Handler, size int) *Dispatcher {
	if size < 1 {
		size = DefaultQueueSize
	}
	return &Dispatcher{
		target:  target,
		queue:   make(chan Event, size),
		stopped: make(chan struct{}),
	}
}

// Submit queues ev. It blocks while the queue is full, until ctx is done or
// the dispatcher stops.
func (d *Dispatcher) Submit(ctx context.Context, ev Event) error {
	select {
	case <-d.stopped:
		return ErrDispatcherStopped
	default:
	}
	select {
	case d.queue <- ev:
		return nil
	case <-d.stopped:
		return ErrDispatcherStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run delivers queued events until ctx is done. Events already queued when
// ctx ends are still delivered before Run returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		case <-ctx.Done():
			d.once.Do(func() { close(d.stopped) })
			d.drain(context.WithoutCancel(ctx))
			return nil
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	if err := Deliver(ctx, d.target, ev); err != nil {
		logger.Warnw("Dropping event", "type", ev.Type, "error", err)
	}
}

// OnConnect implements Handler by queueing a connect event
func (d *Dispatcher) OnConnect(ctx context.Context, id, displayName, familyID string) {
	d.submitOrLog(ctx, Event{Type: KindConnect, ID: id, DisplayName: displayName, FamilyID: familyID})
}

// OnDisconnect implements Handler by queueing a disconnect event
func (d *Dispatcher) OnDisconnect(ctx context.Context, id string) {
	d.submitOrLog(ctx, Event{Type: KindDisconnect, ID: id})
}

// OnLiveRosterSnapshot implements Handler by queueing a snapshot event
func (d *Dispatcher) OnLiveRosterSnapshot(ctx context.Context, ids []string) {
	d.submitOrLog(ctx, Event{Type: KindSnapshot, IDs: append([]string(nil), ids...)})
}

func (d *Dispatcher) submitOrLog(ctx context.Context, ev Event) {
	if err := d.Submit(ctx, ev); err != nil {
		logger.Warnw("Event not queued", "type", ev.Type, "error", err)
	}
}
