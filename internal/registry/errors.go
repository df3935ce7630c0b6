package registry

import "errors"

// Registry error codes for protocol misuse and lookup conditions
var (
	ErrNotAuthenticated     = errors.New("NOT_AUTHENTICATED")
	ErrAlreadyAuthenticated = errors.New("ALREADY_AUTHENTICATED")
	ErrUnknownConnection    = errors.New("UNKNOWN_CONNECTION")
)
