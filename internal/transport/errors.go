package transport

import "errors"

var (
	ErrNotConnected    = errors.New("transport not connected")
	ErrAlreadyStarted  = errors.New("transport already started")
	ErrTransportClosed = errors.New("transport closed")
)
