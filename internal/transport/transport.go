// Package transport owns the persistent bidirectional link to the POS
// backend. It pushes typed protocol events onto a channel in delivery order;
// consumers never register callbacks on the socket itself.
package transport

import (
	"context"

	"posfeed/pkg/types"
)

// Transport is a single-use connection to the notification feed. Connect
// starts it, Close ends it; a closed transport is never restarted — the
// connection manager dials a fresh one per connect cycle.
//
// Reconnection after a dropped link is the transport's own responsibility.
// Each (re)established link is announced as a synthetic "connect" event and
// each failure as "connect_error", so consumers observe the full lifecycle
// on the Events channel in order.
type Transport interface {
	// Connect starts the dial/read cycle. Fire-and-forget: progress is
	// observed via Events, not a blocking wait.
	Connect(ctx context.Context) error
	// Events delivers inbound and synthetic lifecycle events in transport
	// delivery order. The channel is closed once the transport stops.
	Events() <-chan types.Event
	// Send emits an outbound protocol message on the live link.
	Send(kind string, payload any) error
	// Close tears the link down. Idempotent; safe on a transport that
	// never connected.
	Close() error
}

// DialFunc produces a fresh Transport for an endpoint. The connection
// manager calls it once per connect cycle, which keeps transports one-shot
// and lets tests inject a fake.
type DialFunc func(endpoint string) Transport
