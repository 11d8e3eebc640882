package acl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/jsamuelsen/quotebot/internal/adapters/clients"
	"github.com/jsamuelsen/quotebot/internal/domain"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// ErrorResponse is an error body from the X API. v2 endpoints answer with
// problem details (title/detail); older endpoints and some gateway errors
// carry an errors array instead.
type ErrorResponse struct {
	Title  string        `json:"title,omitempty"`
	Detail string        `json:"detail,omitempty"`
	Type   string        `json:"type,omitempty"`
	Errors []ErrorDetail `json:"errors,omitempty"`
}

// ErrorDetail is one entry of the errors array.
type ErrorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// GetMessage returns the most specific message available.
func (e *ErrorResponse) GetMessage() string {
	switch {
	case e.Detail != "":
		return e.Detail
	case len(e.Errors) > 0 && e.Errors[0].Message != "":
		return e.Errors[0].Message
	default:
		return e.Title
	}
}

// HasCode reports whether any entry of the errors array carries code.
func (e *ErrorResponse) HasCode(code int) bool {
	for _, d := range e.Errors {
		if d.Code == code {
			return true
		}
	}

	return false
}

// Error codes X reports in the body that refine the HTTP status.
const (
	ExternalCodeBadAuthentication = 32
	ExternalCodeRateLimit         = 88
	ExternalCodeInvalidToken      = 89
	ExternalCodeTooLong           = 186
	ExternalCodeDuplicate         = 187
)

// ParseErrorResponse attempts to parse an error response body.
// Returns nil if the body is empty or cannot be parsed.
func ParseErrorResponse(body io.Reader) *ErrorResponse {
	if body == nil {
		return nil
	}

	var errResp ErrorResponse
	if err := json.NewDecoder(io.LimitReader(body, maxErrorBody)).Decode(&errResp); err != nil {
		return nil
	}

	if errResp.GetMessage() == "" && len(errResp.Errors) == 0 {
		return nil
	}

	return &errResp
}

// MapPublishError maps a failed post to a *domain.PublishError.
// resp may be nil when clientErr is set. A 2xx response maps to nil.
func MapPublishError(resp *http.Response, clientErr error) error {
	if clientErr != nil {
		return mapClientError(clientErr)
	}

	if resp == nil {
		return domain.NewPublishError(domain.PublishNetwork, 0, errors.New("no response received"))
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}

	var errResp *ErrorResponse
	if resp.Body != nil {
		errResp = ParseErrorResponse(resp.Body)
	}

	return mapStatusCode(resp.StatusCode, errResp)
}

// mapClientError translates client-level errors, where no usable response arrived.
func mapClientError(err error) error {
	switch {
	case errors.Is(err, clients.ErrCircuitOpen):
		return domain.NewPublishError(domain.PublishNetwork, 0, err)
	case errors.Is(err, context.Canceled):
		return domain.NewPublishError(domain.PublishUnknown, 0, err)
	default:
		return domain.NewPublishError(domain.PublishNetwork, 0, err)
	}
}

// mapStatusCode translates an HTTP status and optional body to a publish error.
func mapStatusCode(status int, errResp *ErrorResponse) error {
	message := defaultMessageForStatus(status)
	if errResp != nil && errResp.GetMessage() != "" {
		message = errResp.GetMessage()
	}

	cause := errors.New(message)

	if errResp != nil {
		switch {
		case errResp.HasCode(ExternalCodeTooLong):
			return domain.NewPublishError(domain.PublishTooLong, status, cause)
		case errResp.HasCode(ExternalCodeRateLimit):
			return domain.NewPublishError(domain.PublishRateLimited, status, cause)
		case errResp.HasCode(ExternalCodeBadAuthentication), errResp.HasCode(ExternalCodeInvalidToken):
			return domain.NewPublishError(domain.PublishAuthentication, status, cause)
		case errResp.HasCode(ExternalCodeDuplicate):
			return domain.NewPublishError(domain.PublishUnknown, status, cause)
		}
	}

	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return domain.NewPublishError(domain.PublishAuthentication, status, cause)
	case status == http.StatusTooManyRequests:
		return domain.NewPublishError(domain.PublishRateLimited, status, cause)
	case status >= http.StatusInternalServerError:
		return domain.NewPublishError(domain.PublishNetwork, status, cause)
	default:
		return domain.NewPublishError(domain.PublishUnknown, status, cause)
	}
}

func defaultMessageForStatus(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "authentication required"
	case http.StatusForbidden:
		return "access denied"
	case http.StatusTooManyRequests:
		return "rate limit exceeded"
	case http.StatusServiceUnavailable:
		return "service temporarily unavailable"
	default:
		return fmt.Sprintf("create post failed with status %d", status)
	}
}
