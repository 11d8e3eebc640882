// Package clients holds the outbound HTTP plumbing used to reach the
// publishing platform.
package clients

import "errors"

// Transport-level failures. The acl package translates them into
// domain.PublishError values.
var (
	// ErrCircuitOpen means the breaker refused the request without sending it.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrMaxRetriesExceeded wraps the last error once no attempt produced a
	// usable response.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)
