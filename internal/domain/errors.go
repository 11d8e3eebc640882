// Package domain holds quotes, themes, the selection rules and the errors
// they raise. Adapters translate these errors into HTTP statuses and CLI exit
// codes; nothing here knows about either.
package domain

import (
	"errors"
	"fmt"
)

// Sentinels matched with errors.Is. Each typed error below unwraps to one.
var (
	ErrValidation           = errors.New("validation failed")
	ErrStorageUnavailable   = errors.New("storage unavailable")
	ErrMalformedData        = errors.New("malformed quote data")
	ErrNoQuotesForSelection = errors.New("no quotes for selection")
	ErrPublishFailed        = errors.New("publish failed")
)

// ValidationError rejects caller input before anything is loaded or posted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}

	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// StorageError means the collection could not be read or written. Op is
// the failed action ("load", "save", "lock" and so on); Path is the file or DSN.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	cause := "storage unavailable"
	if e.Err != nil {
		cause = e.Err.Error()
	}

	return fmt.Sprintf("%s quotes from %s: %s", e.Op, e.Path, cause)
}

// Unwrap matches both ErrStorageUnavailable and the cause.
func (e *StorageError) Unwrap() []error {
	return withCause(ErrStorageUnavailable, e.Err)
}

func NewStorageError(op, path string, err error) error {
	return &StorageError{Op: op, Path: path, Err: err}
}

// MalformedDataError means persisted content does not have the quote shape.
// Index is the offending record, or -1 when the document itself is wrong.
type MalformedDataError struct {
	Index  int
	Field  string
	Reason string
}

func (e *MalformedDataError) Error() string {
	where := e.Field
	if e.Index >= 0 {
		where = fmt.Sprintf("quotes[%d]", e.Index)
		if e.Field != "" {
			where += "." + e.Field
		}
	}

	if where == "" {
		return "malformed quote data: " + e.Reason
	}

	return fmt.Sprintf("malformed quote data: %s: %s", where, e.Reason)
}

func (e *MalformedDataError) Unwrap() error { return ErrMalformedData }

func NewMalformedDataError(index int, field, reason string) error {
	return &MalformedDataError{Index: index, Field: field, Reason: reason}
}

// NoQuotesError means nothing was eligible even after the used flags were
// reset. Theme is empty for unthemed selection.
type NoQuotesError struct {
	Theme string
}

func (e *NoQuotesError) Error() string {
	if e.Theme == "" {
		return "no quotes available"
	}

	return fmt.Sprintf("no quotes available for theme %q", e.Theme)
}

func (e *NoQuotesError) Unwrap() error { return ErrNoQuotesForSelection }

func NewNoQuotesError(theme string) error {
	return &NoQuotesError{Theme: theme}
}

// PublishFailureReason classifies a failed publish.
type PublishFailureReason string

const (
	PublishRateLimited    PublishFailureReason = "rate_limited"
	PublishAuthentication PublishFailureReason = "authentication"
	PublishNetwork        PublishFailureReason = "network"
	PublishTooLong        PublishFailureReason = "message_too_long"
	PublishUnknown        PublishFailureReason = "unknown"
)

// PublishError means the platform did not confirm the post. StatusCode is 0
// when no HTTP response arrived.
type PublishError struct {
	Reason     PublishFailureReason
	StatusCode int
	Err        error
}

func (e *PublishError) Error() string {
	msg := "publish failed: " + string(e.Reason)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap matches both ErrPublishFailed and the cause.
func (e *PublishError) Unwrap() []error {
	return withCause(ErrPublishFailed, e.Err)
}

func NewPublishError(reason PublishFailureReason, statusCode int, err error) error {
	return &PublishError{Reason: reason, StatusCode: statusCode, Err: err}
}

func withCause(sentinel, cause error) []error {
	if cause == nil {
		return []error{sentinel}
	}

	return []error{sentinel, cause}
}

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

func IsStorageUnavailable(err error) bool { return errors.Is(err, ErrStorageUnavailable) }

func IsMalformedData(err error) bool { return errors.Is(err, ErrMalformedData) }

func IsNoQuotes(err error) bool { return errors.Is(err, ErrNoQuotesForSelection) }

func IsPublishFailed(err error) bool { return errors.Is(err, ErrPublishFailed) }
