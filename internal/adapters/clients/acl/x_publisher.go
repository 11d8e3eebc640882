package acl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/jsamuelsen/quotebot/internal/adapters/clients"
	"github.com/jsamuelsen/quotebot/internal/domain"
	"github.com/jsamuelsen/quotebot/internal/platform/logging"
)

const (
	// createPostPath is the X API v2 endpoint for creating a post.
	createPostPath = "/2/tweets"

	// xServiceName identifies the platform in logs, traces and health output.
	xServiceName = "x-api"
)

// XPublisherConfig contains configuration for the X publisher.
type XPublisherConfig struct {
	// Client is the HTTP client to use for requests.
	// Its BaseURL should point at the API host and its transport should sign requests.
	Client *clients.Client

	// MaxLength is the post length limit in characters. Zero disables the check.
	MaxLength int

	// MinInterval is the minimum spacing between posts. Zero disables throttling.
	MinInterval time.Duration

	// Logger is the structured logger.
	Logger *slog.Logger
}

// XPublisher implements ports.Publisher against the X API v2.
type XPublisher struct {
	BaseAdapter

	maxLength int
	limiter   *rate.Limiter
	logger    *slog.Logger

	mu           sync.Mutex
	limitedUntil time.Time
}

// NewXPublisher creates a new X publisher.
// Panics if Client is nil. Defaults logger to slog.Default() if nil.
func NewXPublisher(cfg XPublisherConfig) *XPublisher {
	if cfg.Client == nil {
		panic("XPublisher: Client is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.MinInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}

	return &XPublisher{
		BaseAdapter: NewBaseAdapter(cfg.Client, xServiceName),
		maxLength:   cfg.MaxLength,
		limiter:     limiter,
		logger:      logger.With(slog.String("component", "acl.XPublisher")),
	}
}

// createPostRequest is the request body of POST /2/tweets.
type createPostRequest struct {
	Text string `json:"text"`
}

// createPostResponse is the external DTO returned on success.
type createPostResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// Publish submits message as a new post.
func (p *XPublisher) Publish(ctx context.Context, message string) (*domain.PublishReceipt, error) {
	if err := p.precheck(message); err != nil {
		return nil, err
	}

	if until, limited := p.rateLimited(); limited {
		return nil, domain.NewPublishError(domain.PublishRateLimited, 0,
			fmt.Errorf("rate limit window open until %s", until.Format(time.RFC3339)))
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, domain.NewPublishError(domain.PublishRateLimited, 0,
			fmt.Errorf("waiting for post slot: %w", err))
	}

	payload, err := json.Marshal(createPostRequest{Text: message})
	if err != nil {
		return nil, domain.NewPublishError(domain.PublishUnknown, 0, fmt.Errorf("encoding post: %w", err))
	}

	logging.Trace(ctx, p.logger, "posting", slog.String("path", createPostPath), slog.Int("length", len(payload)))

	body, err := p.Post(ctx, createPostPath, bytes.NewReader(payload))
	if err != nil {
		p.noteFailure(ctx, err)
		return nil, err
	}

	resp, err := DecodeResponse[createPostResponse](body)
	if err != nil {
		return nil, domain.NewPublishError(domain.PublishUnknown, 0, err)
	}

	if resp.Data.ID == "" {
		return nil, domain.NewPublishError(domain.PublishUnknown, 0, errors.New("response did not include a post id"))
	}

	receipt := p.translateToDomain(resp, message)

	p.logger.InfoContext(ctx, "post published", slog.String("post_id", receipt.ID))

	return receipt, nil
}

// precheck rejects messages the platform would refuse without a round trip.
func (p *XPublisher) precheck(message string) error {
	if err := ValidateRequired(message, "message"); err != nil {
		return domain.NewPublishError(domain.PublishUnknown, 0, err)
	}

	if n := utf8.RuneCountInString(message); p.maxLength > 0 && n > p.maxLength {
		return domain.NewPublishError(domain.PublishTooLong, 0,
			fmt.Errorf("%d characters exceeds the limit of %d", n, p.maxLength))
	}

	return nil
}

// translateToDomain converts the external DTO to a receipt.
func (p *XPublisher) translateToDomain(resp *createPostResponse, message string) *domain.PublishReceipt {
	text := resp.Data.Text
	if text == "" {
		text = message
	}

	return &domain.PublishReceipt{
		ID:          resp.Data.ID,
		Text:        text,
		PublishedAt: time.Now().UTC(),
	}
}

// noteFailure remembers rate-limit windows so later attempts fail fast
// with the right reason instead of a generic circuit-open error.
func (p *XPublisher) noteFailure(ctx context.Context, err error) {
	var pubErr *domain.PublishError
	if !errors.As(err, &pubErr) {
		return
	}

	if pubErr.Reason == domain.PublishRateLimited {
		until := time.Now().Add(p.Client().RetryAfter())

		p.mu.Lock()
		if until.After(p.limitedUntil) {
			p.limitedUntil = until
		}
		p.mu.Unlock()
	}

	p.logger.WarnContext(ctx, "post rejected",
		slog.String("reason", string(pubErr.Reason)),
		slog.Int("status_code", pubErr.StatusCode),
	)
}

func (p *XPublisher) rateLimited() (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.limitedUntil, time.Now().Before(p.limitedUntil)
}

// Name implements ports.HealthChecker.
func (p *XPublisher) Name() string {
	return "publisher"
}

// Check reports the publisher unhealthy while its circuit is open.
// It never posts; the platform has no side-effect-free check for user context.
func (p *XPublisher) Check(_ context.Context) error {
	if wait := p.Client().RetryAfter(); wait > 0 {
		return fmt.Errorf("%s circuit open, retry in %s", xServiceName, wait.Round(time.Second))
	}

	return nil
}
