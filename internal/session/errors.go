package session

import "errors"

var (
	ErrInvalidToken    = errors.New("invalid session token")
	ErrTokenExpired    = errors.New("session token expired")
	ErrMissingIdentity = errors.New("token carries no user identity")
)
