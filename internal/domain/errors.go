package domain

import "errors"

// Sentinel errors shared across the application. Backend packages wrap these
// so callers can branch with errors.Is without importing driver packages.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the caller supplied malformed or out-of-range data.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates missing or rejected credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates the upstream API returned 429.
	ErrRateLimited = errors.New("rate limited")

	// ErrExchange indicates an upstream exchange error (5xx or malformed reply).
	ErrExchange = errors.New("exchange error")

	// ErrConflict indicates a concurrent modification or duplicate write.
	ErrConflict = errors.New("conflict")

	// ErrFeedClosed indicates the websocket feed was closed and will not
	// deliver further events.
	ErrFeedClosed = errors.New("feed closed")
)
