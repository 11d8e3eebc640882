package commands

import (
	"errors"

	"github.com/jsamuelsen/quotebot/internal/domain"
)

// Exit codes.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitUsage         = 2
	ExitNoQuotes      = 3
	ExitPublishFailed = 4
	ExitStorage       = 5
)

// usageError marks bad flags, arguments or configuration.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	var usage usageError

	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &usage), domain.IsValidation(err):
		return ExitUsage
	case domain.IsNoQuotes(err):
		return ExitNoQuotes
	case domain.IsPublishFailed(err):
		return ExitPublishFailed
	case domain.IsStorageUnavailable(err), domain.IsMalformedData(err):
		return ExitStorage
	default:
		return ExitFailure
	}
}
