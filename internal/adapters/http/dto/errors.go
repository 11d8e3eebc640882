// Package dto holds the request and response shapes of the admin API and the
// mapping from domain errors onto them.
package dto

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/quotebot/internal/domain"
	"github.com/jsamuelsen/quotebot/internal/platform/logging"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error   ErrorDetail `json:"error"`
	TraceID string      `json:"traceId,omitempty"`
}

// ErrorDetail.Details holds per-field messages for validation failures and
// the failure reason for publish errors.
type ErrorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Machine-readable error codes.
const (
	ErrorCodeNoQuotes     = "NO_QUOTES"
	ErrorCodeValidation   = "VALIDATION_ERROR"
	ErrorCodeBadRequest   = "BAD_REQUEST"
	ErrorCodeUnauthorized = "UNAUTHORIZED"
	ErrorCodeForbidden    = "FORBIDDEN"
	ErrorCodeStorage      = "STORAGE_UNAVAILABLE"
	ErrorCodeMalformed    = "MALFORMED_DATA"
	ErrorCodePublish      = "PUBLISH_FAILED"
	ErrorCodeTimeout      = "TIMEOUT"
	ErrorCodeInternal     = "INTERNAL_ERROR"
)

var statusByCode = map[string]int{
	ErrorCodeNoQuotes:     http.StatusNotFound,
	ErrorCodeValidation:   http.StatusBadRequest,
	ErrorCodeBadRequest:   http.StatusBadRequest,
	ErrorCodeUnauthorized: http.StatusUnauthorized,
	ErrorCodeForbidden:    http.StatusForbidden,
	ErrorCodeStorage:      http.StatusServiceUnavailable,
	ErrorCodeMalformed:    http.StatusInternalServerError,
	ErrorCodePublish:      http.StatusBadGateway,
	ErrorCodeTimeout:      http.StatusGatewayTimeout,
}

const traceIDKey = "trace_id"

func NewErrorResponse(code, message string) *ErrorResponse {
	return NewErrorResponseWithDetails(code, message, nil)
}

func NewErrorResponseWithDetails(code, message string, details map[string]string) *ErrorResponse {
	return &ErrorResponse{Error: ErrorDetail{Code: code, Message: message, Details: details}}
}

func (e *ErrorResponse) WithTraceID(traceID string) *ErrorResponse {
	e.TraceID = traceID
	return e
}

// HTTPStatusFromCode returns 500 for codes it does not know.
func HTTPStatusFromCode(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}

	return http.StatusInternalServerError
}

// MapDomainError picks the status and body for err. Errors outside the domain
// taxonomy become a 500 whose message hides the original text.
func MapDomainError(err error) (int, *ErrorResponse) {
	if err == nil {
		return http.StatusOK, nil
	}

	code, details := classify(err)

	message := err.Error()
	if code == ErrorCodeInternal {
		message = "an internal error occurred"
	}

	return HTTPStatusFromCode(code), NewErrorResponseWithDetails(code, message, details)
}

func classify(err error) (string, map[string]string) {
	var (
		validationErr *domain.ValidationError
		publishErr    *domain.PublishError
	)

	switch {
	case errors.As(err, &validationErr):
		if validationErr.Field == "" {
			return ErrorCodeValidation, nil
		}

		return ErrorCodeValidation, map[string]string{validationErr.Field: validationErr.Message}
	case domain.IsValidation(err):
		return ErrorCodeValidation, nil
	case domain.IsNoQuotes(err):
		return ErrorCodeNoQuotes, nil
	case errors.Is(err, context.DeadlineExceeded):
		if errors.As(err, &publishErr) {
			return ErrorCodeTimeout, map[string]string{"reason": string(publishErr.Reason)}
		}

		return ErrorCodeTimeout, nil
	case errors.As(err, &publishErr):
		return ErrorCodePublish, map[string]string{"reason": string(publishErr.Reason)}
	case domain.IsPublishFailed(err):
		return ErrorCodePublish, nil
	case domain.IsStorageUnavailable(err):
		return ErrorCodeStorage, nil
	case domain.IsMalformedData(err):
		return ErrorCodeMalformed, nil
	default:
		return ErrorCodeInternal, nil
	}
}

// GetTraceID returns the best identifier for correlating a response with logs:
// an explicit trace_id on the gin context, the active span, then X-Request-ID.
func GetTraceID(c *gin.Context) string {
	if v, ok := c.Get(traceIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}

		return ""
	}

	if c.Request == nil {
		return ""
	}

	if sc := trace.SpanFromContext(c.Request.Context()).SpanContext(); sc.HasTraceID() {
		return sc.TraceID().String()
	}

	return c.Request.Header.Get("X-Request-ID")
}

// HandleError writes the mapped error response. 5xx errors are logged with
// the original error, since the response carries only a summary.
func HandleError(c *gin.Context, err error) {
	status, resp := MapDomainError(err)
	resp.TraceID = GetTraceID(c)

	if status >= http.StatusInternalServerError {
		logging.FromContext(c.Request.Context()).ErrorContext(c.Request.Context(), "request failed",
			slog.Int("status", status),
			slog.String("code", resp.Error.Code),
			slog.Any("error", err),
		)
	}

	c.JSON(status, resp)
}

// AbortWithCode aborts the chain with a response for code.
func AbortWithCode(c *gin.Context, code, message string) {
	resp := NewErrorResponse(code, message).WithTraceID(GetTraceID(c))
	c.AbortWithStatusJSON(HTTPStatusFromCode(code), resp)
}
