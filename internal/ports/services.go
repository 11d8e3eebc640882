// Package ports defines interfaces for external dependencies.
// Ports are contracts that adapters implement, allowing the application layer
// to depend on abstractions rather than concrete implementations.
//
// Port Design Principles:
//   - Context as first parameter (always) for cancellation and deadlines
//   - Return domain types, never storage records or API payloads
//   - Error returns use domain error types (ErrStorageUnavailable, ErrPublishFailed, etc.)
//   - Keep interfaces small and focused
package ports

import (
	"context"

	"github.com/jsamuelsen/quotebot/internal/domain"
)

// QuoteStore persists the whole QuoteSet.
// There is no partial update: callers load, mutate in memory, then save,
// all inside WithLock so no other writer can interleave.
//
// Example usage in application layer:
//
//	return store.WithLock(ctx, func(ctx context.Context) error {
//	    set, err := store.Load(ctx)
//	    if err != nil {
//	        return err
//	    }
//	    return store.Save(ctx, set.Append(q))
//	})
type QuoteStore interface {
	// WithLock runs fn while holding the exclusive write lock of the storage
	// resource. The lock is shared by every process using the same file or
	// database. Load and Save must be called with the ctx passed to fn.
	// It blocks until the lock is free or ctx is done, and is not reentrant.
	// Returns domain.ErrStorageUnavailable if the lock cannot be taken.
	WithLock(ctx context.Context, fn func(ctx context.Context) error) error

	// Load reads the full collection.
	// Returns domain.ErrStorageUnavailable if the resource cannot be read,
	// domain.ErrMalformedData if its content does not have the expected shape.
	Load(ctx context.Context) (domain.QuoteSet, error)

	// Save replaces the persisted collection with set.
	// The write is all-or-nothing; a failed save leaves the previous content intact.
	// Returns domain.ErrStorageUnavailable on failure.
	Save(ctx context.Context, set domain.QuoteSet) error
}

// Publisher submits a formatted message to the external platform.
// One instance is built at startup and shared by every trigger.
//
// Key considerations:
//   - Respect context deadlines; the caller bounds each attempt
//   - Map platform failures to *domain.PublishError
//   - Never log credentials
type Publisher interface {
	// Publish posts message and returns the platform's confirmation.
	// A nil error means the post was accepted.
	Publish(ctx context.Context, message string) (*domain.PublishReceipt, error)
}
