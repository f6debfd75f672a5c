package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"posfeed/pkg/types"
)

// Options tunes the WebSocket transport. Zero values fall back to defaults.
type Options struct {
	DialTimeout        time.Duration
	WriteTimeout       time.Duration
	PingInterval       time.Duration
	PongTimeout        time.Duration
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
	EventBuffer        int
}

func (o Options) withDefaults() Options {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = 60 * time.Second
	}
	if o.ReconnectBaseDelay <= 0 {
		o.ReconnectBaseDelay = time.Second
	}
	if o.ReconnectMaxDelay <= 0 {
		o.ReconnectMaxDelay = 30 * time.Second
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 64
	}
	return o
}

// WS is the gorilla/websocket Transport. One goroutine owns the
// dial/read/redial cycle; all writes are serialized through writeMu so ping
// and protocol frames never interleave.
type WS struct {
	endpoint string
	opts     Options
	log      zerolog.Logger

	events chan types.Event

	// writeMu serializes every frame written to the socket: gorilla
	// permits one concurrent writer and ping frames share the link with
	// protocol sends.
	writeMu sync.Mutex

	mu      sync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	started bool
	closed  bool

	closeOnce sync.Once
}

// NewWS creates a WebSocket transport for endpoint.
func NewWS(endpoint string, opts Options, logger zerolog.Logger) *WS {
	o := opts.withDefaults()
	return &WS{
		endpoint: endpoint,
		opts:     o,
		log:      logger.With().Str("component", "transport").Str("endpoint", endpoint).Logger(),
		events:   make(chan types.Event, o.EventBuffer),
	}
}

// Dial returns a DialFunc that creates WS transports with the given options.
func Dial(opts Options, logger zerolog.Logger) DialFunc {
	return func(endpoint string) Transport {
		return NewWS(endpoint, opts, logger)
	}
}

// Connect starts the dial/read cycle in the background.
func (t *WS) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	if t.started {
		return ErrAlreadyStarted
	}
	t.started = true

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	go t.run(runCtx)
	return nil
}

// Events delivers inbound events. Closed when the transport stops.
func (t *WS) Events() <-chan types.Event {
	return t.events
}

// Send writes one protocol envelope on the live link.
func (t *WS) Send(kind string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(types.Event{Kind: kind, Payload: raw})
	if err != nil {
		return err
	}

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(t.opts.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Close stops the transport. Safe to call repeatedly and before Connect.
func (t *WS) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		cancel := t.cancel
		conn := t.conn
		started := t.started
		t.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if conn != nil {
			_ = conn.Close()
		}
		if !started {
			// No run loop exists to close the channel.
			close(t.events)
		}
	})
	return nil
}

// run owns the dial → read → redial cycle with exponential backoff.
func (t *WS) run(ctx context.Context) {
	defer close(t.events)

	delay := t.opts.ReconnectBaseDelay
	dialer := websocket.Dialer{HandshakeTimeout: t.opts.DialTimeout}

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := dialer.DialContext(ctx, t.endpoint, nil)
		if err != nil {
			t.log.Debug().Err(err).Dur("retry_in", delay).Msg("dial failed")
			t.emitConnectError(ctx, err.Error())
			if !sleep(ctx, delay) {
				return
			}
			delay = min(delay*2, t.opts.ReconnectMaxDelay)
			continue
		}
		delay = t.opts.ReconnectBaseDelay

		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			_ = conn.Close()
			return
		}
		t.conn = conn
		t.mu.Unlock()

		t.log.Debug().Msg("link established")
		t.emit(ctx, types.Event{Kind: types.EventConnect})

		pingCtx, pingCancel := context.WithCancel(ctx)
		go t.pingLoop(pingCtx, conn)

		readErr := t.readLoop(ctx, conn)
		pingCancel()

		t.mu.Lock()
		if t.conn == conn {
			t.conn = nil
		}
		t.mu.Unlock()
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		reason := "connection lost"
		if readErr != nil {
			reason = readErr.Error()
		}
		t.log.Debug().Str("reason", reason).Msg("link dropped, reconnecting")
		t.emitConnectError(ctx, reason)
	}
}

// readLoop reads frames until the link drops. Malformed frames are skipped;
// the protocol's ignore policy means they never surface as errors.
func (t *WS) readLoop(ctx context.Context, conn *websocket.Conn) error {
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(t.opts.PongTimeout))
	})
	_ = conn.SetReadDeadline(time.Now().Add(t.opts.PongTimeout))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var ev types.Event
		if err := json.Unmarshal(data, &ev); err != nil || ev.Kind == "" {
			t.log.Debug().Msg("malformed frame dropped")
			continue
		}
		// Deliver in read order; the buffer absorbs bursts while the
		// consumer drains sequentially.
		t.emit(ctx, ev)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// pingLoop keeps the link alive until the context is cancelled.
func (t *WS) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(t.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(t.opts.WriteTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			t.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (t *WS) emit(ctx context.Context, ev types.Event) {
	select {
	case t.events <- ev:
	case <-ctx.Done():
	}
}

func (t *WS) emitConnectError(ctx context.Context, reason string) {
	raw, err := json.Marshal(types.ConnectErrorPayload{Reason: reason})
	if err != nil {
		return
	}
	t.emit(ctx, types.Event{Kind: types.EventConnectError, Payload: raw})
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
