package domain

import (
	"errors"
	"fmt"
)

// Authentication errors.
var (
	ErrAuthenticationRejected = errors.New("authentication rejected")
	ErrSessionExpired         = errors.New("session expired")
	ErrRenewalUnavailable     = errors.New("session renewal unavailable")
	ErrNotAuthenticated       = errors.New("not authenticated")
	ErrAlreadyBootstrapped    = errors.New("session already bootstrapped")
)

// Request errors.
var (
	ErrRequestFailed = errors.New("request failed")
	ErrTransport     = errors.New("transport error")
)

// Storage errors. ErrStorageUnavailable is logged, never returned to callers.
var (
	ErrStorageUnavailable = errors.New("credential storage unavailable")
)

// RequestError is a non-success response carrying the server's detail text.
type RequestError struct {
	Status int
	Detail string
}

func (e *RequestError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return e.Detail
}

// Is reports RequestError as ErrRequestFailed for errors.Is checks.
func (e *RequestError) Is(target error) bool {
	return target == ErrRequestFailed
}
