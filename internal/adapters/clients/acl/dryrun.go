package acl

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/jsamuelsen/quotebot/internal/domain"
)

// DryRunPublisher logs messages instead of posting them.
// It applies the same length limit as the real platform.
type DryRunPublisher struct {
	maxLength int
	logger    *slog.Logger
}

// NewDryRunPublisher creates a publisher that only logs.
func NewDryRunPublisher(maxLength int, logger *slog.Logger) *DryRunPublisher {
	if logger == nil {
		logger = slog.Default()
	}

	return &DryRunPublisher{
		maxLength: maxLength,
		logger:    logger.With(slog.String("component", "acl.DryRunPublisher")),
	}
}

// Publish logs message and returns a receipt with a random "dry-" ID.
func (p *DryRunPublisher) Publish(ctx context.Context, message string) (*domain.PublishReceipt, error) {
	if n := utf8.RuneCountInString(message); p.maxLength > 0 && n > p.maxLength {
		return nil, domain.NewPublishError(domain.PublishTooLong, 0,
			fmt.Errorf("%d characters exceeds the limit of %d", n, p.maxLength))
	}

	receipt := &domain.PublishReceipt{
		ID:          "dry-" + uuid.NewString(),
		Text:        message,
		PublishedAt: time.Now().UTC(),
	}

	p.logger.InfoContext(ctx, "dry run: message not posted",
		slog.String("post_id", receipt.ID),
		slog.String("message", message),
	)

	return receipt, nil
}

// Name implements ports.HealthChecker.
func (p *DryRunPublisher) Name() string { return "publisher" }

// Check always succeeds.
func (p *DryRunPublisher) Check(context.Context) error { return nil }
