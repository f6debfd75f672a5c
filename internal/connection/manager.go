// Package connection owns the single live transport connection: it drives
// connect/authenticate/disconnect, tracks the connection state machine, and
// feeds inbound events through the router into the store and the
// presentation boundary.
package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"posfeed/internal/presenter"
	"posfeed/internal/router"
	"posfeed/internal/store"
	"posfeed/internal/transport"
	"posfeed/pkg/types"
)

// Status is a non-blocking snapshot of the connection.
type Status struct {
	IsConnected bool
	Role        types.Role
}

// Manager drives the connection lifecycle. One instance owns at most one
// transport and exactly one consume loop at a time; a new connect cycle
// always tears the previous one down first, so duplicate handlers cannot
// exist by construction.
//
// All inbound events are processed by the single consume goroutine in
// transport delivery order. The store and the presenter are only ever
// invoked from that goroutine, which is what gives the notification log its
// total order.
type Manager struct {
	dial      transport.DialFunc
	router    *router.Router
	store     *store.Store
	presenter presenter.Dispatcher
	log       zerolog.Logger

	mu         sync.Mutex
	state      types.ConnectionState
	session    types.Session
	authed     bool
	authFailed bool // auth rejection reported once per link
	tr         transport.Transport
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewManager creates a connection manager. The manager is owned by the
// composition root and handed to whatever needs to observe or drive the
// connection; there is no ambient instance.
func NewManager(dial transport.DialFunc, r *router.Router, s *store.Store, p presenter.Dispatcher, logger zerolog.Logger) *Manager {
	if p == nil {
		p = presenter.Nop{}
	}
	return &Manager{
		dial:      dial,
		router:    r,
		store:     s,
		presenter: p,
		log:       logger.With().Str("component", "connection").Logger(),
		state:     types.StateDisconnected,
	}
}

// Connect establishes the connection for the given session. Idempotent: a
// live connection is reused; otherwise any prior connection is torn down
// (handlers removed) before the new one is dialed. Fire-and-forget — the
// caller observes progress via Status.
func (m *Manager) Connect(ctx context.Context, endpoint string, session types.Session) error {
	if session.Role != "" && !session.Role.Valid() {
		return fmt.Errorf("%w: %q", types.ErrInvalidRole, session.Role)
	}

	m.mu.Lock()
	if m.tr != nil && m.state.Connected() {
		m.log.Debug().Str("state", m.state.String()).Msg("connect: reusing live connection")
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	// Self-healing teardown: a half-dead prior connection (Connecting or
	// Errored with a loop still attached) is stopped before redialing.
	m.stop()

	m.mu.Lock()
	// The prior cycle, if any, was torn down above; fold the machine back
	// to Disconnected before dialing.
	m.state, _ = m.state.Next(types.SignalClose)
	next, err := m.state.Next(types.SignalDial)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.state = next
	m.session = session

	tr := m.dial(endpoint)
	if err := tr.Connect(ctx); err != nil {
		m.state, _ = m.state.Next(types.SignalTransportError)
		m.mu.Unlock()
		return fmt.Errorf("start transport: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.tr = tr
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	m.log.Info().Str("endpoint", endpoint).Str("user", session.UserID).Str("role", string(session.Role)).Msg("connecting")
	go m.consume(loopCtx, tr, done)
	return nil
}

// Authenticate sends the handshake for session on the live transport. A
// call without a live transport is a no-op that only logs; the handshake is
// re-sent automatically on every transport-level reconnect.
func (m *Manager) Authenticate(session types.Session) error {
	m.mu.Lock()
	tr := m.tr
	if tr == nil || !m.state.Connected() {
		m.mu.Unlock()
		m.log.Warn().Msg("authenticate called without a live transport")
		return nil
	}
	m.session = session
	m.authed = false
	m.mu.Unlock()

	m.sendHandshake(tr, session)
	return nil
}

// Disconnect tears the connection down: the consume loop is stopped and
// drained before the transport is released, so queued events can never fire
// against a torn-down store. Safe to call repeatedly; a second call on a
// closed connection is a no-op.
func (m *Manager) Disconnect() error {
	m.stop()

	m.mu.Lock()
	m.state, _ = m.state.Next(types.SignalClose)
	m.session = types.Session{}
	m.authed = false
	m.authFailed = false
	m.mu.Unlock()

	m.log.Info().Msg("disconnected")
	return nil
}

// Status returns a snapshot of the connection. Role is only reported while
// the handshake is accepted; an unauthenticated-but-open link has no role.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{IsConnected: m.state.Connected()}
	if m.authed {
		st.Role = m.session.Role
	}
	return st
}

// State returns the current lifecycle state.
func (m *Manager) State() types.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Store exposes the notification log for the hosting UI.
func (m *Manager) Store() *store.Store {
	return m.store
}

// stop cancels and drains the consume loop, then releases the transport.
// It does not touch session state; Disconnect layers that on top.
func (m *Manager) stop() {
	m.mu.Lock()
	tr, cancel, done := m.tr, m.cancel, m.done
	m.tr, m.cancel, m.done = nil, nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	if tr != nil {
		_ = tr.Close()
	}
}

// consume is the single sequential handler chain: one event at a time, in
// transport delivery order.
func (m *Manager) consume(ctx context.Context, tr transport.Transport, done chan struct{}) {
	defer close(done)

	events := tr.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.handle(tr, ev)
		}
	}
}

func (m *Manager) handle(tr transport.Transport, ev types.Event) {
	switch ev.Kind {
	case types.EventConnect:
		m.handleTransportUp(tr)
	case types.EventAuthenticated:
		m.handleAuthAck(ev.Payload)
	case types.EventConnectError:
		m.handleTransportError(ev.Payload)
	default:
		m.handleDomainEvent(ev)
	}
}

// handleTransportUp runs on every (re)established link: enter Authenticating
// and re-send the handshake. Authentication never survives a reconnect.
func (m *Manager) handleTransportUp(tr transport.Transport) {
	m.mu.Lock()
	next, err := m.state.Next(types.SignalTransportUp)
	if err != nil {
		m.mu.Unlock()
		m.log.Debug().Err(err).Msg("ignoring transport_up")
		return
	}
	m.state = next
	m.authed = false
	m.authFailed = false
	session := m.session
	m.mu.Unlock()

	m.log.Info().Msg("transport up, authenticating")
	if session.Authenticated() {
		m.sendHandshake(tr, session)
	} else {
		m.log.Debug().Msg("no session identity, handshake deferred")
	}
}

func (m *Manager) sendHandshake(tr transport.Transport, session types.Session) {
	if err := tr.Send(types.EventAuthenticate, types.AuthenticatePayload{
		UserID: session.UserID,
		Role:   session.Role,
	}); err != nil {
		m.log.Warn().Err(err).Msg("handshake send failed")
		return
	}
	if err := tr.Send(types.EventJoinRole, types.JoinRolePayload{Role: session.Role}); err != nil {
		m.log.Warn().Err(err).Msg("join-role send failed")
	}
}

func (m *Manager) handleAuthAck(payload json.RawMessage) {
	var p types.AuthenticatedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		m.log.Debug().Err(err).Msg("malformed authenticated ack dropped")
		return
	}

	if p.Success {
		m.mu.Lock()
		next, err := m.state.Next(types.SignalAuthAccepted)
		if err != nil {
			m.mu.Unlock()
			m.log.Debug().Err(err).Msg("ignoring auth ack")
			return
		}
		m.state = next
		m.authed = true
		user := m.session.UserID
		m.mu.Unlock()
		m.log.Info().Str("user", user).Msg("authenticated")
		return
	}

	m.mu.Lock()
	m.state, _ = m.state.Next(types.SignalAuthRejected)
	m.authed = false
	report := !m.authFailed
	m.authFailed = true
	m.mu.Unlock()

	m.log.Warn().Msg("authentication rejected")
	if report {
		// Reported once per link via the presentation boundary. The link
		// stays open but role-scoped routing has no role, so subsequent
		// events are dropped.
		m.presenter.Dispatch(types.Notification{
			Message:   "Authentication failed — notifications are paused",
			Kind:      types.KindError,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}, router.Policy{Duration: 8 * time.Second, Sound: true})
	}
}

func (m *Manager) handleTransportError(payload json.RawMessage) {
	var p types.ConnectErrorPayload
	_ = json.Unmarshal(payload, &p)

	m.mu.Lock()
	wasLive := m.state.Connected()
	m.state, _ = m.state.Next(types.SignalTransportError)
	m.authed = false
	m.mu.Unlock()

	m.log.Warn().Str("reason", p.Reason).Msg("transport error")
	if wasLive {
		// A dropped live link is surfaced once; the retry churn that
		// follows stays a status indicator only.
		m.presenter.Dispatch(types.Notification{
			Message:   "Connection lost — reconnecting",
			Kind:      types.KindWarning,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}, router.Policy{Duration: 5 * time.Second})
	}
}

func (m *Manager) handleDomainEvent(ev types.Event) {
	m.mu.Lock()
	authed := m.authed
	role := m.session.Role
	m.mu.Unlock()

	if !authed || role == "" {
		m.log.Debug().Str("event", ev.Kind).Msg("event dropped: no authenticated role")
		return
	}

	draft, policy, err := m.router.Classify(ev.Kind, ev.Payload, role)
	if err != nil {
		m.log.Debug().Err(err).Str("event", ev.Kind).Msg("event dropped")
		return
	}
	if draft == nil {
		return
	}

	m.store.Add(*draft)
	if policy != nil {
		m.presenter.Dispatch(*draft, *policy)
	}
}
