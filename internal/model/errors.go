package model

import "errors"

// Error classes surfaced to clients. Operations wrap these with context.
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotImplemented = errors.New("not implemented")
	ErrNotFound       = errors.New("not found")
)
