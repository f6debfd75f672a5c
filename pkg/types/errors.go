package types

import "errors"

var (
	ErrInvalidRole       = errors.New("invalid role")
	ErrIllegalTransition = errors.New("illegal connection state transition")
)
