package audit

import "errors"

// Sentinel errors for orchestrator construction and lifecycle failures.
// Callers should use errors.Is() to check for these.
var (
	// ErrMissingResource indicates an Options field referenced a file
	// that does not exist (the cookie jar path, at construction time).
	ErrMissingResource = errors.New("audit: missing resource")

	// ErrAlreadyRunning indicates Run was called on an orchestrator
	// that is already mid-scan; only one audit runs at a time.
	ErrAlreadyRunning = errors.New("audit: already running")
)
