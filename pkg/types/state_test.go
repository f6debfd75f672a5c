package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionState_HappyPath(t *testing.T) {
	s := StateDisconnected

	s, err := s.Next(SignalDial)
	require.NoError(t, err)
	assert.Equal(t, StateConnecting, s)

	s, err = s.Next(SignalTransportUp)
	require.NoError(t, err)
	assert.Equal(t, StateAuthenticating, s)

	s, err = s.Next(SignalAuthAccepted)
	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, s)
}

func TestConnectionState_ReconnectReentersAuthenticating(t *testing.T) {
	s := StateAuthenticated

	s, err := s.Next(SignalTransportUp)
	require.NoError(t, err)
	assert.Equal(t, StateAuthenticating, s, "reconnect must force a fresh handshake")
}

func TestConnectionState_AuthRejectionStaysConnected(t *testing.T) {
	s := StateAuthenticating

	s, err := s.Next(SignalAuthRejected)
	require.NoError(t, err)
	assert.Equal(t, StateAuthenticating, s)
	assert.True(t, s.Connected())
}

func TestConnectionState_CloseAndErrorLegalEverywhere(t *testing.T) {
	all := []ConnectionState{
		StateDisconnected, StateConnecting, StateAuthenticating,
		StateAuthenticated, StateErrored,
	}
	for _, from := range all {
		s, err := from.Next(SignalClose)
		require.NoError(t, err, "close from %s", from)
		assert.Equal(t, StateDisconnected, s)

		s, err = from.Next(SignalTransportError)
		require.NoError(t, err, "error from %s", from)
		assert.Equal(t, StateErrored, s)
	}
}

func TestConnectionState_ErroredIsTransient(t *testing.T) {
	s, err := StateErrored.Next(SignalDial)
	require.NoError(t, err)
	assert.Equal(t, StateConnecting, s)

	// The transport's own retry surfaces as transport_up with no new dial.
	s, err = StateErrored.Next(SignalTransportUp)
	require.NoError(t, err)
	assert.Equal(t, StateAuthenticating, s)
}

func TestConnectionState_IllegalTransitions(t *testing.T) {
	cases := []struct {
		from ConnectionState
		sig  Signal
	}{
		{StateDisconnected, SignalTransportUp},
		{StateDisconnected, SignalAuthAccepted},
		{StateConnecting, SignalDial},
		{StateConnecting, SignalAuthAccepted},
		{StateAuthenticating, SignalDial},
		{StateAuthenticated, SignalDial},
		{StateAuthenticated, SignalAuthAccepted},
	}
	for _, tc := range cases {
		got, err := tc.from.Next(tc.sig)
		assert.ErrorIs(t, err, ErrIllegalTransition, "%s on %s", tc.sig, tc.from)
		assert.Equal(t, tc.from, got, "state must not move on illegal input")
	}
}

func TestRole_Valid(t *testing.T) {
	for _, r := range []Role{RoleAdmin, RoleCashier, RoleKitchen, RoleStaff, RoleOther} {
		assert.True(t, r.Valid(), "role %s", r)
	}
	assert.False(t, Role("").Valid())
	assert.False(t, Role("manager").Valid())
}

func TestSession_Authenticated(t *testing.T) {
	assert.False(t, Session{}.Authenticated())
	assert.False(t, Session{UserID: "u1"}.Authenticated())
	assert.False(t, Session{Role: RoleCashier}.Authenticated())
	assert.True(t, Session{UserID: "u1", Role: RoleCashier}.Authenticated())
}
