package clients

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/quotebot/internal/adapters/http/middleware"
	"github.com/jsamuelsen/quotebot/internal/platform/config"
	"github.com/jsamuelsen/quotebot/internal/platform/logging"
)

const instrumentationName = "github.com/jsamuelsen/quotebot/internal/adapters/clients"

// Fallbacks for zero config values.
const (
	defaultTimeout             = 30 * time.Second
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultIdleConnTimeout     = 90 * time.Second
)

// Config configures a Client.
type Config struct {
	// BaseURL prefixes every request path.
	BaseURL string

	// ServiceName names the platform in logs, spans and metrics.
	ServiceName string

	// Timeout bounds each attempt. Retries and backoff add to the total.
	Timeout time.Duration

	Retry     config.RetryConfig
	Circuit   config.CircuitBreakerConfig
	Transport config.TransportConfig

	// AuthFunc, if set, decorates every attempt, retries included.
	AuthFunc func(*http.Request)

	// WrapTransport, if set, decorates the pooled transport, as the OAuth 1.0a
	// signer does.
	WrapTransport func(http.RoundTripper) http.RoundTripper

	// RetryNonIdempotent lets POSTs be replayed after a 5xx or a timeout.
	// Without it a POST is retried only when the connection was never made.
	RetryNonIdempotent bool

	// RateLimitResetHeader names a response header holding the Unix time a
	// 429 window ends. Retry-After is used when it is missing.
	RateLimitResetHeader string

	Logger *slog.Logger
}

// Client is the instrumented HTTP client the publisher talks to the platform
// through. Every request passes the circuit breaker, is traced and counted,
// carries the caller's request and correlation IDs, and is retried with
// jittered exponential backoff where replaying it is safe. A 429 holds the
// circuit open until the platform's reset time.
type Client struct {
	http    *http.Client
	baseURL string
	cfg     *Config
	logger  *slog.Logger
	breaker *CircuitBreaker
	tracer  trace.Tracer

	duration metric.Float64Histogram
	requests metric.Int64Counter
}

// New builds a Client from cfg. ServiceName is required.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	if cfg.ServiceName == "" {
		return nil, errors.New("service name is required")
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With(slog.String("component", "clients.Client"), slog.String("downstream", cfg.ServiceName))

	breaker := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:   cfg.Circuit.MaxFailures,
		Timeout:       cfg.Circuit.Timeout,
		HalfOpenLimit: cfg.Circuit.HalfOpenLimit,
	})
	breaker.OnStateChange(func(from, to State) {
		logger.Warn("circuit breaker state changed", slog.String("from", from.String()), slog.String("to", to.String()))
	})

	meter := otel.Meter(instrumentationName)

	duration, err := meter.Float64Histogram("http.client.request.duration",
		metric.WithDescription("Duration of requests to the publishing platform"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration metric: %w", err)
	}

	requests, err := meter.Int64Counter("http.client.request.total",
		metric.WithDescription("Requests to the publishing platform"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating request counter: %w", err)
	}

	var rt http.RoundTripper = newTransport(cfg.Transport)
	if cfg.WrapTransport != nil {
		rt = cfg.WrapTransport(rt)
	}

	return &Client{
		http:     &http.Client{Timeout: cfg.Timeout, Transport: rt},
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		cfg:      cfg,
		logger:   logger,
		breaker:  breaker,
		tracer:   otel.Tracer(instrumentationName),
		duration: duration,
		requests: requests,
	}, nil
}

func newTransport(tc config.TransportConfig) *http.Transport {
	orDefault := func(v, def int) int {
		if v <= 0 {
			return def
		}

		return v
	}

	idle := tc.IdleConnTimeout
	if idle <= 0 {
		idle = defaultIdleConnTimeout
	}

	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        orDefault(tc.MaxIdleConns, defaultMaxIdleConns),
		MaxIdleConnsPerHost: orDefault(tc.MaxIdleConnsPerHost, defaultMaxIdleConnsPerHost),
		IdleConnTimeout:     idle,
	}
}

// Get sends a GET to path.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL(path), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	return c.Do(ctx, req)
}

// Post sends a JSON body to path.
func (c *Client) Post(ctx context.Context, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL(path), body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	return c.Do(ctx, req)
}

// Do sends req. Any HTTP response that survives the retry policy is
// returned, whatever its status. An error means no usable response arrived:
// ErrCircuitOpen when the breaker refused the call, otherwise an error
// wrapping both ErrMaxRetriesExceeded and the last transport error.
//
// Bodies are rewound through req.GetBody between attempts.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	start := time.Now()
	logger := logging.FromContextOr(ctx, c.logger).With(
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
	)

	if !c.breaker.Allow() {
		c.observe(ctx, req.Method, 0, start, "circuit_open")
		logger.Warn("request blocked by circuit breaker", slog.Duration("retry_after", c.breaker.RetryAfter()))

		return nil, ErrCircuitOpen
	}

	ctx, span := c.tracer.Start(ctx, "HTTP "+req.Method+" "+c.cfg.ServiceName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.url", req.URL.String()),
			attribute.String("peer.service", c.cfg.ServiceName),
		),
	)
	defer span.End()

	if id := middleware.RequestIDFromContext(ctx); id != "" {
		req.Header.Set(middleware.HeaderRequestID, id)
	}

	if id := middleware.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set(middleware.HeaderCorrelationID, id)
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.send(ctx, req, logger)
	if err != nil {
		c.breaker.RecordFailure()
		span.SetStatus(codes.Error, err.Error())
		c.observe(ctx, req.Method, 0, start, "error")
		logger.Error("request failed", slog.Duration("duration", time.Since(start)), slog.Any("error", err))

		return nil, fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		until := c.rateLimitReset(resp)
		c.breaker.TripUntil(until)
		logger.Warn("rate limited by downstream", slog.Time("reset", until))
	case resp.StatusCode >= http.StatusInternalServerError:
		c.breaker.RecordFailure()
	default:
		c.breaker.RecordSuccess()
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusBadRequest {
		span.SetStatus(codes.Error, "HTTP "+strconv.Itoa(resp.StatusCode))
	}

	c.observe(ctx, req.Method, resp.StatusCode, start, strconv.Itoa(resp.StatusCode/100)+"xx")
	logger.Debug("request completed", slog.Int("status", resp.StatusCode), slog.Duration("duration", time.Since(start)))

	return resp, nil
}

// send runs the attempt loop. The last 5xx response is returned rather than
// an error when every attempt got one.
func (c *Client) send(ctx context.Context, req *http.Request, logger *slog.Logger) (*http.Response, error) {
	replayable := c.cfg.RetryNonIdempotent || isIdempotent(req.Method)
	attempts := max(c.cfg.Retry.MaxAttempts, 1)

	var lastErr error

	for attempt := range attempts {
		if attempt > 0 {
			if err := c.rewind(ctx, req, attempt, logger); err != nil {
				return nil, err
			}
		}

		if c.cfg.AuthFunc != nil {
			c.cfg.AuthFunc(req)
		}

		resp, err := c.http.Do(req.WithContext(ctx))

		switch {
		case err != nil:
			if !isRetryableError(err) || (!replayable && !isDialError(err)) {
				return nil, err
			}

			logger.Debug("attempt failed", slog.Int("attempt", attempt+1), slog.Any("error", err))
			lastErr = err

		case resp.StatusCode >= http.StatusInternalServerError && replayable:
			logger.Debug("attempt got server error", slog.Int("attempt", attempt+1), slog.Int("status", resp.StatusCode))
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)

		default:
			return resp, nil
		}
	}

	return nil, lastErr
}

// rewind sleeps for the backoff and resets the body for the next attempt.
func (c *Client) rewind(ctx context.Context, req *http.Request, attempt int, logger *slog.Logger) error {
	backoff := c.calculateBackoff(attempt)
	logger.Debug("retrying request", slog.Int("attempt", attempt+1), slog.Duration("backoff", backoff))

	timer := time.NewTimer(backoff)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	if req.GetBody == nil {
		return nil
	}

	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("rewinding request body: %w", err)
	}

	req.Body = body

	return nil
}

// CircuitState returns the breaker's state.
func (c *Client) CircuitState() State {
	return c.breaker.State()
}

// RetryAfter reports how long the breaker keeps refusing requests.
func (c *Client) RetryAfter() time.Duration {
	return c.breaker.RetryAfter()
}

// rateLimitReset returns when a 429 window ends: the configured reset header
// (Unix seconds), else Retry-After (seconds), else the circuit timeout.
func (c *Client) rateLimitReset(resp *http.Response) time.Time {
	now := time.Now()

	if name := c.cfg.RateLimitResetHeader; name != "" {
		if sec, err := strconv.ParseInt(resp.Header.Get(name), 10, 64); err == nil {
			if t := time.Unix(sec, 0); t.After(now) {
				return t
			}
		}
	}

	if sec, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && sec > 0 {
		return now.Add(time.Duration(sec) * time.Second)
	}

	return now.Add(c.cfg.Circuit.Timeout)
}

func (c *Client) buildURL(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return c.baseURL + path
}

// calculateBackoff returns initial*multiplier^attempt, capped at the max
// interval, then spread by ±JitterFactor.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	r := c.cfg.Retry
	backoff := math.Min(
		float64(r.InitialInterval)*math.Pow(r.Multiplier, float64(attempt)),
		float64(r.MaxInterval),
	)

	spread := (rand.Float64()*2 - 1) * r.JitterFactor //nolint:gosec // jitter only

	return time.Duration(backoff * (1 + spread))
}

func (c *Client) observe(ctx context.Context, method string, status int, start time.Time, result string) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("peer.service", c.cfg.ServiceName),
		attribute.String("result", result),
	}

	if status > 0 {
		attrs = append(attrs, attribute.Int("http.status_code", status))
	}

	opt := metric.WithAttributes(attrs...)
	c.duration.Record(ctx, time.Since(start).Seconds(), opt)
	c.requests.Add(ctx, 1, opt)
}

// isRetryableError reports transport failures worth another attempt:
// timeouts and connection-level errors, never caller cancellation.
func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError

	return errors.As(err, &opErr)
}

// isDialError reports whether err happened before a connection existed, so
// the server cannot have seen the request.
func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}
