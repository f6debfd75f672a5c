package router

import "errors"

var (
	ErrMalformedPayload = errors.New("malformed event payload")
)
