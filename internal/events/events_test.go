package events

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/toolhive-roster/internal/events/mocks"
	"github.com/stacklok/toolhive-roster/internal/reconcile"
	"github.com/stacklok/toolhive-roster/internal/store"
)

func TestDeliver(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	h := mocks.NewMockHandler(ctrl)
	ctx := context.Background()

	gomock.InOrder(
		h.EXPECT().OnConnect(ctx, "A", "Alice", "7"),
		h.EXPECT().OnDisconnect(ctx, "A"),
		h.EXPECT().OnLiveRosterSnapshot(ctx, []string{"B", "C"}),
	)

	require.NoError(t, Deliver(ctx, h, Event{Type: KindConnect, ID: "A", DisplayName: "Alice", FamilyID: "7"}))
	require.NoError(t, Deliver(ctx, h, Event{Type: KindDisconnect, ID: "A"}))
	require.NoError(t, Deliver(ctx, h, Event{Type: KindSnapshot, IDs: []string{"B", "C"}}))
	require.ErrorIs(t, Deliver(ctx, h, Event{Type: "rename"}), ErrUnknownKind)
}

func TestStreamSource(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	h := mocks.NewMockHandler(ctrl)

	input := strings.Join([]string{
		`{"type":"connect","id":"A","displayName":"Alice","familyId":"7"}`,
		``,
		`not json`,
		`{"type":"teleport","id":"A"}`,
		`{"type":"snapshot","ids":["A","B"]}`,
		`   {"type":"disconnect","id":"B"}   `,
	}, "\n")

	gomock.InOrder(
		h.EXPECT().OnConnect(gomock.Any(), "A", "Alice", "7"),
		h.EXPECT().OnLiveRosterSnapshot(gomock.Any(), []string{"A", "B"}),
		h.EXPECT().OnDisconnect(gomock.Any(), "B"),
	)

	require.NoError(t, NewStreamSource("test", strings.NewReader(input)).Run(context.Background(), h))
}

func TestStreamSource_CancelledContext(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	h := mocks.NewMockHandler(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewStreamSource("test", strings.NewReader(`{"type":"disconnect","id":"A"}`)).Run(ctx, h)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	h := mocks.NewMockHandler(ctrl)

	var mu sync.Mutex
	var seen []string
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s)
	}
	h.EXPECT().OnConnect(gomock.Any(), gomock.Any(), "", "").
		Do(func(_ context.Context, id, _, _ string) { record("connect:" + id) }).Times(3)
	h.EXPECT().OnDisconnect(gomock.Any(), "2").
		Do(func(_ context.Context, id string) { record("disconnect:" + id) })

	d := NewDispatcher(h, 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()

	d.OnConnect(ctx, "1", "", "")
	d.OnConnect(ctx, "2", "", "")
	d.OnDisconnect(ctx, "2")
	d.OnConnect(ctx, "3", "", "")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 4
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	assert.Equal(t, []string{"connect:1", "connect:2", "disconnect:2", "connect:3"}, seen)
	assert.ErrorIs(t, d.Submit(context.Background(), Event{Type: KindConnect, ID: "4"}), ErrDispatcherStopped)
}

func TestDispatcher_DrainsOnShutdown(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	h := mocks.NewMockHandler(ctrl)
	h.EXPECT().OnLiveRosterSnapshot(gomock.Any(), []string{"A"})
	h.EXPECT().OnLiveRosterSnapshot(gomock.Any(), []string{"B"})

	d := NewDispatcher(h, 4)
	require.NoError(t, d.Submit(context.Background(), Event{Type: KindSnapshot, IDs: []string{"A"}}))
	require.NoError(t, d.Submit(context.Background(), Event{Type: KindSnapshot, IDs: []string{"B"}}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.Run(ctx))
}

func TestDispatcher_SubmitRespectsContext(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	d := NewDispatcher(mocks.NewMockHandler(ctrl), 1)
	require.NoError(t, d.Submit(context.Background(), Event{Type: KindDisconnect, ID: "A"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, d.Submit(ctx, Event{Type: KindDisconnect, ID: "B"}), context.DeadlineExceeded)
}

func TestEngineHandler_EndToEnd(t *testing.T) {
	t.Parallel()

	s := store.NewFileStore(filepath.Join(t.TempDir(), store.DefaultFileName))
	engine := reconcile.New(s)
	d := NewDispatcher(NewEngineHandler(engine), 8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()

	input := strings.Join([]string{
		`{"type":"connect","id":"A","displayName":"Alice","familyId":"7"}`,
		`{"type":"connect","id":"B","displayName":"Bob","familyId":"3"}`,
		`{"type":"disconnect","id":"A"}`,
		`{"type":"snapshot","ids":["A","C"]}`,
		`{"type":"connect","id":"  "}`,
	}, "\n")
	require.NoError(t, NewStreamSource("stdin", strings.NewReader(input)).Run(ctx, d))

	cancel()
	<-done

	reg := engine.Snapshot(context.Background())
	assert.Equal(t, []string{"A", "B", "C"}, reg.IDs)
	assert.Equal(t, []string{"Alice", "Bob", "C"}, reg.Names)
	assert.ElementsMatch(t, []string{"A", "C"}, reg.Active)
}
