package domain

import "errors"

// Provider and pipeline error taxonomy. Adapters map transport failures onto
// these sentinels; the worker classifies with errors.Is to pick retry
// behavior.
var (
	// ErrRateLimited means the upstream throttled us; retryable.
	ErrRateLimited = errors.New("provider rate limited")
	// ErrUpstreamUnavailable means the upstream failed transiently; retryable.
	ErrUpstreamUnavailable = errors.New("provider unavailable")
	// ErrAuth means credentials are invalid or expired; never retried.
	ErrAuth = errors.New("provider authentication failed")
	// ErrMalformedJob means a queue payload failed to parse or validate.
	ErrMalformedJob = errors.New("malformed job payload")
)
