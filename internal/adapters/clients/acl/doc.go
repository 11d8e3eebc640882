// Package acl is the anti-corruption layer between quotebot and the
// microblogging platform it posts to.
//
// Everything that knows about the X API lives here: request and response
// DTOs, credential handling, status codes and error bodies. Callers only see
// ports.Publisher, domain.PublishReceipt and domain.PublishError.
//
// # Publishers
//
// Two implementations of ports.Publisher are provided:
//
//   - XPublisher posts to the v2 "create post" endpoint through a
//     clients.Client, signing requests with OAuth 1.0a user context or a
//     bearer token.
//   - DryRunPublisher logs the message and returns a synthetic receipt.
//
// NewPublisher picks one from config.PublisherConfig.
//
// # Error Translation
//
// Failures are classified into domain.PublishFailureReason values:
//
//	401, 403                  → authentication
//	429, open rate-limit window → rate_limited
//	transport failure, 5xx     → network
//	text over the length limit → message_too_long
//	anything else              → unknown
//
// X also reports some conditions through error codes in the body (for
// example 186 for an over-long post), which take precedence over the status.
//
// # Throttling
//
// XPublisher waits on a golang.org/x/time/rate limiter before each post so
// that manual triggers cannot burst past publisher.min_interval.
package acl
