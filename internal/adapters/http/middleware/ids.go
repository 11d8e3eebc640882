package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jsamuelsen/quotebot/internal/platform/logging"
)

const (
	// HeaderRequestID identifies a single request.
	HeaderRequestID = "X-Request-ID"

	// HeaderCorrelationID tracks a transaction across services.
	HeaderCorrelationID = "X-Correlation-ID"

	// ContextKeyRequestID is the gin context key for the request ID.
	ContextKeyRequestID = "request_id"

	// ContextKeyCorrelationID is the gin context key for the correlation ID.
	ContextKeyCorrelationID = "correlation_id"

	// maxIDLength caps IDs accepted from clients; longer ones are replaced.
	maxIDLength = 128
)

// idSpec describes one ID header handled by idMiddleware.
type idSpec struct {
	header     string
	ginKey     string
	withLogger func(context.Context, string) context.Context
	withValue  func(context.Context, string) context.Context
}

// RequestID extracts X-Request-ID or generates a UUID. The ID is echoed in the
// response, stored on the gin context and attached to the context logger.
func RequestID() gin.HandlerFunc {
	return idMiddleware(idSpec{
		header:     HeaderRequestID,
		ginKey:     ContextKeyRequestID,
		withLogger: logging.WithRequestID,
		withValue:  ContextWithRequestID,
	})
}

// CorrelationID does the same for X-Correlation-ID. Outbound clients forward it.
func CorrelationID() gin.HandlerFunc {
	return idMiddleware(idSpec{
		header:     HeaderCorrelationID,
		ginKey:     ContextKeyCorrelationID,
		withLogger: logging.WithCorrelationID,
		withValue:  ContextWithCorrelationID,
	})
}

func idMiddleware(spec idSpec) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(spec.header)
		if !validID(id) {
			id = uuid.NewString()
		}

		c.Set(spec.ginKey, id)
		c.Header(spec.header, id)

		ctx := spec.withValue(c.Request.Context(), id)
		ctx = spec.withLogger(ctx, id)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// validID accepts non-empty printable ASCII up to maxIDLength.
func validID(id string) bool {
	if id == "" || len(id) > maxIDLength {
		return false
	}

	for i := range len(id) {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}

	return true
}

// GetRequestID returns the request ID set by RequestID, or "".
func GetRequestID(c *gin.Context) string {
	return c.GetString(ContextKeyRequestID)
}

// GetCorrelationID returns the correlation ID set by CorrelationID, or "".
func GetCorrelationID(c *gin.Context) string {
	return c.GetString(ContextKeyCorrelationID)
}
