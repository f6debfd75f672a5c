package connection

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posfeed/internal/router"
	"posfeed/internal/store"
	"posfeed/internal/transport"
	"posfeed/pkg/types"
)

// fakeTransport is a channel-backed Transport: tests push events instead of
// standing up a socket.
type fakeTransport struct {
	mu      sync.Mutex
	events  chan types.Event
	sent    []sentMsg
	started bool
	closed  bool
}

type sentMsg struct {
	kind    string
	payload any
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan types.Event, 16)}
}

func (f *fakeTransport) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return transport.ErrTransportClosed
	}
	f.started = true
	return nil
}

func (f *fakeTransport) Events() <-chan types.Event { return f.events }

func (f *fakeTransport) Send(kind string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return transport.ErrNotConnected
	}
	f.sent = append(f.sent, sentMsg{kind, payload})
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

func (f *fakeTransport) push(kind string, payload any) {
	raw, _ := json.Marshal(payload)
	f.events <- types.Event{Kind: kind, Payload: raw}
}

func (f *fakeTransport) sentKinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	kinds := make([]string, len(f.sent))
	for i, s := range f.sent {
		kinds[i] = s.kind
	}
	return kinds
}

// recorder captures presentation dispatches.
type recorder struct {
	mu         sync.Mutex
	dispatched []types.Notification
}

func (r *recorder) Dispatch(n types.Notification, _ router.Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatched = append(r.dispatched, n)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.dispatched)
}

func (r *recorder) last() types.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dispatched[len(r.dispatched)-1]
}

type harness struct {
	mgr   *Manager
	tr    *fakeTransport
	store *store.Store
	pres  *recorder
	dials int
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		tr:    newFakeTransport(),
		store: store.New(),
		pres:  &recorder{},
	}
	dial := func(string) transport.Transport {
		h.dials++
		return h.tr
	}
	h.mgr = NewManager(dial, router.New(zerolog.Nop()), h.store, h.pres, zerolog.Nop())
	t.Cleanup(func() { _ = h.mgr.Disconnect() })
	return h
}

func (h *harness) connectAndAuth(t *testing.T, session types.Session) {
	t.Helper()
	require.NoError(t, h.mgr.Connect(context.Background(), "ws://pos.local/feed", session))
	h.tr.push(types.EventConnect, nil)

	require.Eventually(t, func() bool {
		kinds := h.tr.sentKinds()
		return len(kinds) >= 2
	}, time.Second, 5*time.Millisecond, "handshake not sent")

	h.tr.push(types.EventAuthenticated, types.AuthenticatedPayload{Success: true})
	require.Eventually(t, func() bool {
		return h.mgr.Status().Role == session.Role
	}, time.Second, 5*time.Millisecond, "never authenticated")
}

func cashier() types.Session {
	return types.Session{UserID: "u-cash", Role: types.RoleCashier}
}

func TestManager_ConnectAuthenticates(t *testing.T) {
	h := newHarness(t)
	h.connectAndAuth(t, cashier())

	st := h.mgr.Status()
	assert.True(t, st.IsConnected)
	assert.Equal(t, types.RoleCashier, st.Role)
	assert.Equal(t, types.StateAuthenticated, h.mgr.State())
	assert.Equal(t, []string{types.EventAuthenticate, types.EventJoinRole}, h.tr.sentKinds())
}

func TestManager_ConnectIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.connectAndAuth(t, cashier())

	// A second connect on a live connection reuses it.
	require.NoError(t, h.mgr.Connect(context.Background(), "ws://pos.local/feed", cashier()))
	assert.Equal(t, 1, h.dials, "live connection must be reused, not redialed")
}

func TestManager_DisconnectTwiceIsClean(t *testing.T) {
	h := newHarness(t)
	h.connectAndAuth(t, cashier())

	require.NoError(t, h.mgr.Disconnect())
	require.NoError(t, h.mgr.Disconnect())

	st := h.mgr.Status()
	assert.False(t, st.IsConnected)
	assert.Equal(t, types.Role(""), st.Role)
	assert.Equal(t, types.StateDisconnected, h.mgr.State())
}

func TestManager_DisconnectNeverConnected(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.mgr.Disconnect())
	assert.False(t, h.mgr.Status().IsConnected)
}

func TestManager_ReconnectResendsHandshake(t *testing.T) {
	h := newHarness(t)
	h.connectAndAuth(t, cashier())

	// Transport-level reconnect: authentication is not preserved.
	h.tr.push(types.EventConnect, nil)

	require.Eventually(t, func() bool {
		return len(h.tr.sentKinds()) == 4
	}, time.Second, 5*time.Millisecond, "handshake not re-sent after reconnect")

	st := h.mgr.Status()
	assert.True(t, st.IsConnected)
	assert.Equal(t, types.Role(""), st.Role, "role cleared until the new ack arrives")
	assert.Equal(t, types.StateAuthenticating, h.mgr.State())
}

func TestManager_AuthRejectionDropsEvents(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.mgr.Connect(context.Background(), "ws://pos.local/feed", cashier()))
	h.tr.push(types.EventConnect, nil)
	h.tr.push(types.EventAuthenticated, types.AuthenticatedPayload{Success: false})

	require.Eventually(t, func() bool { return h.pres.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, types.KindError, h.pres.last().Kind)

	// Connection stays open but unauthenticated; domain events are dropped.
	st := h.mgr.Status()
	assert.True(t, st.IsConnected)
	assert.Equal(t, types.Role(""), st.Role)

	h.tr.push(types.EventNewOrder, types.NewOrderPayload{
		Order:        types.OrderRef{ID: "o1", Table: &types.TableRef{Number: 5}},
		CustomerName: "Jane",
	})
	// A second rejection must not re-report.
	h.tr.push(types.EventAuthenticated, types.AuthenticatedPayload{Success: false})

	// Events are handled strictly in order, so once the queue drains the
	// drop is observable as an unchanged store.
	require.Eventually(t, func() bool {
		return len(h.tr.events) == 0
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, h.store.Len(), "events without a role must be dropped")
	assert.Equal(t, 1, h.pres.count(), "rejection reported once")
}

func TestManager_NewOrderForKitchen(t *testing.T) {
	h := newHarness(t)
	h.connectAndAuth(t, types.Session{UserID: "u-kitchen", Role: types.RoleKitchen})

	h.tr.push(types.EventNewOrder, types.NewOrderPayload{
		Order:        types.OrderRef{ID: "o1", Table: &types.TableRef{Number: 5}},
		CustomerName: "Jane",
	})

	require.Eventually(t, func() bool { return h.store.Len() == 1 }, time.Second, 5*time.Millisecond)
	entries, unread := h.store.Snapshot()
	assert.Equal(t, "o1-newOrder", entries[0].ID)
	assert.Equal(t, 1, unread)

	require.Eventually(t, func() bool { return h.pres.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, h.pres.last().Message, "Table 5")
	assert.Contains(t, h.pres.last().Message, "Jane")
}

func TestManager_PaymentRoleGating(t *testing.T) {
	payment := types.PaymentCompletedPayload{
		Amount:        42.50,
		PaymentMethod: "card",
		Order:         types.OrderRef{ID: "o9"},
	}

	t.Run("kitchen sees nothing", func(t *testing.T) {
		h := newHarness(t)
		h.connectAndAuth(t, types.Session{UserID: "u-k", Role: types.RoleKitchen})

		h.tr.push(types.EventPaymentCompleted, payment)
		// A follow-up event proves the payment was processed and dropped
		// rather than still in flight.
		h.tr.push(types.EventOrderStatusUpdate, types.OrderStatusUpdatePayload{
			Order:     types.OrderRef{ID: "o9"},
			NewStatus: "served",
		})

		require.Eventually(t, func() bool { return h.store.Len() == 1 }, time.Second, 5*time.Millisecond)
		entries, _ := h.store.Snapshot()
		assert.Equal(t, "o9-statusUpdate", entries[0].ID)
		assert.Equal(t, 1, h.pres.count(), "payment must not toast for kitchen")
	})

	t.Run("cashier sees the payment", func(t *testing.T) {
		h := newHarness(t)
		h.connectAndAuth(t, cashier())

		h.tr.push(types.EventPaymentCompleted, payment)

		require.Eventually(t, func() bool { return h.store.Len() == 1 }, time.Second, 5*time.Millisecond)
		entries, _ := h.store.Snapshot()
		assert.Equal(t, "o9-payment", entries[0].ID)
		assert.Equal(t, types.KindSuccess, entries[0].Kind)
		assert.Contains(t, entries[0].Message, "$42.50")
	})
}

func TestManager_DuplicateEventsBothRecorded(t *testing.T) {
	h := newHarness(t)
	h.connectAndAuth(t, types.Session{UserID: "u-k", Role: types.RoleKitchen})

	order := types.NewOrderPayload{
		Order:        types.OrderRef{ID: "o1", Table: &types.TableRef{Number: 5}},
		CustomerName: "Jane",
	}
	h.tr.push(types.EventNewOrder, order)
	h.tr.push(types.EventNewOrder, order)

	require.Eventually(t, func() bool { return h.store.Len() == 2 }, time.Second, 5*time.Millisecond)
	entries, unread := h.store.Snapshot()
	assert.Equal(t, "o1-newOrder", entries[0].ID)
	assert.Equal(t, "o1-newOrder", entries[1].ID)
	assert.Equal(t, 2, unread)
}

func TestManager_UnknownEventIgnored(t *testing.T) {
	h := newHarness(t)
	h.connectAndAuth(t, cashier())

	h.tr.events <- types.Event{Kind: "tableReassigned", Payload: json.RawMessage(`{}`)}
	h.tr.push(types.EventOrderStatusUpdate, types.OrderStatusUpdatePayload{
		Order:     types.OrderRef{ID: "o2"},
		NewStatus: "ready",
	})

	require.Eventually(t, func() bool { return h.store.Len() == 1 }, time.Second, 5*time.Millisecond)
	entries, _ := h.store.Snapshot()
	assert.Equal(t, "o2-statusUpdate", entries[0].ID)
}

func TestManager_TransportErrorIsTransient(t *testing.T) {
	h := newHarness(t)
	h.connectAndAuth(t, cashier())

	h.tr.push(types.EventConnectError, types.ConnectErrorPayload{Reason: "connection reset"})

	require.Eventually(t, func() bool {
		return h.mgr.State() == types.StateErrored
	}, time.Second, 5*time.Millisecond)
	assert.False(t, h.mgr.Status().IsConnected)

	// The transport's own retry succeeds; the manager re-authenticates.
	h.tr.push(types.EventConnect, nil)
	require.Eventually(t, func() bool {
		return len(h.tr.sentKinds()) == 4
	}, time.Second, 5*time.Millisecond, "handshake not re-sent after recovery")
	assert.Equal(t, types.StateAuthenticating, h.mgr.State())
}

func TestManager_DisconnectStopsEventProcessing(t *testing.T) {
	h := newHarness(t)
	h.connectAndAuth(t, cashier())
	require.NoError(t, h.mgr.Disconnect())

	// Disconnect drained the loop before releasing the transport, so
	// nothing can touch the store afterwards. The fake's channel is
	// closed by Close; a fresh manager-side write is impossible.
	assert.Equal(t, 0, h.store.Len())
	assert.True(t, h.tr.closed)
}

func TestManager_AuthenticateWithoutTransportIsNoop(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.mgr.Authenticate(cashier()))
	assert.Empty(t, h.tr.sentKinds())
}

func TestManager_InvalidRoleRejected(t *testing.T) {
	h := newHarness(t)
	err := h.mgr.Connect(context.Background(), "ws://pos.local/feed", types.Session{
		UserID: "u1",
		Role:   "manager",
	})
	assert.ErrorIs(t, err, types.ErrInvalidRole)
	assert.Equal(t, 0, h.dials)
}

func TestManager_ConnectAfterDisconnectRedials(t *testing.T) {
	h := newHarness(t)
	h.connectAndAuth(t, cashier())
	require.NoError(t, h.mgr.Disconnect())

	// The fake transport is one-shot, so give the dial func a fresh one.
	h.tr = newFakeTransport()
	require.NoError(t, h.mgr.Connect(context.Background(), "ws://pos.local/feed", cashier()))
	assert.Equal(t, 2, h.dials)

	h.tr.push(types.EventConnect, nil)
	require.Eventually(t, func() bool {
		return len(h.tr.sentKinds()) == 2
	}, time.Second, 5*time.Millisecond, "handshake not sent on the new connection")
}
