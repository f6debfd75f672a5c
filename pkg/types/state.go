package types

import "fmt"

// ConnectionState is the lifecycle state of the single managed connection.
// Exactly one instance exists per connection manager; it is rebuilt on every
// connect cycle rather than preserved across them.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateAuthenticating
	StateAuthenticated
	StateErrored
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Connected reports whether a live transport link exists in this state.
func (s ConnectionState) Connected() bool {
	return s == StateAuthenticating || s == StateAuthenticated
}

// Signal is an input to the connection state machine.
type Signal int

const (
	// SignalDial: a connect cycle was initiated.
	SignalDial Signal = iota
	// SignalTransportUp: the transport established or re-established a link.
	SignalTransportUp
	// SignalAuthAccepted: the server acknowledged the handshake.
	SignalAuthAccepted
	// SignalAuthRejected: the server refused the handshake. The link stays
	// open but unauthenticated.
	SignalAuthRejected
	// SignalTransportError: the dial failed or the link dropped. Treated as
	// transient; a later SignalDial retries.
	SignalTransportError
	// SignalClose: disconnect was requested. Legal from every state.
	SignalClose
)

func (sig Signal) String() string {
	switch sig {
	case SignalDial:
		return "dial"
	case SignalTransportUp:
		return "transport_up"
	case SignalAuthAccepted:
		return "auth_accepted"
	case SignalAuthRejected:
		return "auth_rejected"
	case SignalTransportError:
		return "transport_error"
	case SignalClose:
		return "close"
	default:
		return fmt.Sprintf("unknown(%d)", int(sig))
	}
}

// Next is the single transition function for the connection state machine.
// Re-registration of handlers is made illegal by construction: only a legal
// (state, signal) pair moves the machine, everything else returns
// ErrIllegalTransition with the offending pair.
//
//	Disconnected/Errored --dial--> Connecting
//	Connecting/Errored --transport_up--> Authenticating
//	Authenticating --auth_accepted--> Authenticated
//	Authenticating --auth_rejected--> Authenticating (open, unauthenticated)
//	Authenticating/Authenticated --transport_up--> Authenticating (reconnect)
//	any --transport_error--> Errored
//	any --close--> Disconnected
func (s ConnectionState) Next(sig Signal) (ConnectionState, error) {
	switch sig {
	case SignalClose:
		return StateDisconnected, nil
	case SignalTransportError:
		return StateErrored, nil
	}

	switch s {
	case StateDisconnected:
		if sig == SignalDial {
			return StateConnecting, nil
		}
	case StateErrored:
		// The transport retries on its own; a successful redial arrives
		// as transport_up without an intervening dial request.
		switch sig {
		case SignalDial:
			return StateConnecting, nil
		case SignalTransportUp:
			return StateAuthenticating, nil
		}
	case StateConnecting:
		if sig == SignalTransportUp {
			return StateAuthenticating, nil
		}
	case StateAuthenticating:
		switch sig {
		case SignalAuthAccepted:
			return StateAuthenticated, nil
		case SignalAuthRejected, SignalTransportUp:
			return StateAuthenticating, nil
		}
	case StateAuthenticated:
		// Every transport-level reconnect re-enters Authenticating; the
		// handshake is never carried across links.
		if sig == SignalTransportUp {
			return StateAuthenticating, nil
		}
	}

	return s, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, sig, s)
}
