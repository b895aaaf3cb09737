package market

import "errors"

// Fetch errors, classified for the orchestrator's retry policy.
var (
	// ErrRateLimited means the provider refused the call under quota
	// pressure; retryable with backoff.
	ErrRateLimited = errors.New("provider rate limited")

	// ErrNotFound means the provider has no data for the requested
	// security/date; terminal for that item.
	ErrNotFound = errors.New("no data for security/date")

	// ErrTransient covers network failures and provider 5xx responses;
	// retryable with backoff.
	ErrTransient = errors.New("transient provider failure")
)
