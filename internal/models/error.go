package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound           = errors.New("resource not found")
	ErrConflict           = errors.New("resource already exists")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrBadRequest         = errors.New("bad request")
	ErrInternalServer     = errors.New("internal server error")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// Login policy rejections. These are expected outcomes of the login pipeline
// and are never retried.
var (
	ErrTooManyAttempts    = errors.New("too many login attempts")
	ErrSuspiciousActivity = errors.New("suspicious login activity")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
)

// Infrastructure failures. Both wrap ErrServiceUnavailable so callers can
// treat them uniformly.
var (
	ErrRateLimiterUnavailable = fmt.Errorf("%w: rate limiter", ErrServiceUnavailable)
	ErrLedgerUnavailable      = fmt.Errorf("%w: attempt ledger", ErrServiceUnavailable)
)
