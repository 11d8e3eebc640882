package http

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/quotebot/internal/adapters/http/handlers"
	"github.com/jsamuelsen/quotebot/internal/adapters/http/middleware"
	"github.com/jsamuelsen/quotebot/internal/platform/config"
	"github.com/jsamuelsen/quotebot/internal/platform/telemetry"
)

// DefaultRequestTimeout bounds API and form requests when RouterConfig.Timeout
// is unset. Config validation keeps server.request_timeout above publisher.timeout.
const DefaultRequestTimeout = 45 * time.Second

// RouterConfig contains configuration for setting up the router.
type RouterConfig struct {
	Logger     *slog.Logger
	AppConfig  *config.AppConfig
	AuthConfig *config.AuthConfig

	HealthHandler *handlers.HealthHandler
	QuoteHandler  *handlers.QuoteHandler

	// WebHandler serves the HTML pages. Nil leaves them unregistered.
	WebHandler *handlers.WebHandler

	// Timeout defaults to DefaultRequestTimeout.
	Timeout time.Duration
}

// SetupRouter configures all routes and middleware on the Gin engine.
// Middleware is applied in the following order (first to last):
//  1. Recovery
//  2. Context logger
//  3. Request ID
//  4. Correlation ID
//  5. OpenTelemetry tracing, then HTTP metrics
//  6. Logging (skips /-/)
//
// Routes:
//   - /-/ operational endpoints, never guarded
//   - / and /add HTML pages
//   - /api/v1/ JSON API
//
// Mutating routes (form posts and API POSTs) pass through the claims guard.
func SetupRouter(engine *gin.Engine, cfg RouterConfig) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	serviceName := "quotebot"
	if cfg.AppConfig != nil && cfg.AppConfig.Name != "" {
		serviceName = cfg.AppConfig.Name
	}

	engine.Use(
		middleware.Recovery(),
		middleware.ContextLogger(logger),
		middleware.RequestID(),
		middleware.CorrelationID(),
		telemetry.TracingMiddleware(serviceName),
		telemetry.Middleware(serviceName),
		middleware.Logging("/-/"),
	)

	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterHealthRoutesOnEngine(engine)
	}

	guard := middleware.RequireClaims(cfg.AuthConfig)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	if cfg.WebHandler != nil {
		cfg.WebHandler.RegisterRoutes(engine, chain(middleware.Timeout(timeout), guard))
	}

	if cfg.QuoteHandler != nil {
		apiV1 := engine.Group("/api/v1")
		apiV1.Use(middleware.Timeout(timeout))
		cfg.QuoteHandler.RegisterRoutes(apiV1, guard)
	}
}

// chain runs handlers in order as one middleware, stopping if one aborts.
func chain(handlers ...gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, h := range handlers {
			h(c)

			if c.IsAborted() {
				return
			}
		}
	}
}

// NewDefaultRouterConfig creates a RouterConfig with the default timeout.
func NewDefaultRouterConfig(
	logger *slog.Logger,
	appCfg *config.AppConfig,
	authCfg *config.AuthConfig,
	healthHandler *handlers.HealthHandler,
) RouterConfig {
	return RouterConfig{
		Logger:        logger,
		AuthConfig:    authCfg,
		AppConfig:     appCfg,
		HealthHandler: healthHandler,
		Timeout:       DefaultRequestTimeout,
	}
}
