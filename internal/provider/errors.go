package provider

import "errors"

// Sentinel errors for the upstream profile source. The coordinator maps
// ErrRateLimited to its own retryable code and collapses everything else
// into a uniform not-found answer for end users, logging the real cause
// server-side.
var (
	ErrNotFound    = errors.New("profile not found upstream")
	ErrRateLimited = errors.New("upstream rate limit hit")
	ErrUnavailable = errors.New("upstream provider unavailable")
)
