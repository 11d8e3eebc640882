package acl

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jsamuelsen/quotebot/internal/adapters/clients"
	"github.com/jsamuelsen/quotebot/internal/platform/config"
	"github.com/jsamuelsen/quotebot/internal/ports"
)

// rateLimitResetHeader carries the Unix time at which an X rate-limit window ends.
const rateLimitResetHeader = "x-rate-limit-reset"

// Publisher is a ports.Publisher that also reports its health.
type Publisher interface {
	ports.Publisher
	ports.HealthChecker
}

// NewPublisher builds the publisher selected by pc.Driver.
// cc supplies the retry, circuit breaker and transport settings for the x driver.
func NewPublisher(pc *config.PublisherConfig, cc *config.ClientConfig, logger *slog.Logger) (Publisher, error) {
	switch pc.Driver {
	case config.PublisherDriverDryRun:
		return NewDryRunPublisher(pc.MaxLength, logger), nil
	case config.PublisherDriverX:
		return newXPublisherFromConfig(pc, cc, logger)
	default:
		return nil, fmt.Errorf("unknown publisher driver: %q", pc.Driver)
	}
}

func newXPublisherFromConfig(pc *config.PublisherConfig, cc *config.ClientConfig, logger *slog.Logger) (*XPublisher, error) {
	clientCfg := &clients.Config{
		BaseURL:              pc.BaseURL,
		ServiceName:          xServiceName,
		Timeout:              cc.Timeout,
		Retry:                cc.Retry,
		Circuit:              cc.CircuitBreaker,
		Transport:            cc.Transport,
		RateLimitResetHeader: rateLimitResetHeader,
		Logger:               logger,
	}

	creds := pc.Credentials

	switch {
	case creds.HasOAuth1():
		clientCfg.WrapTransport = OAuth1Transport(creds.APIKey, creds.APISecretKey, creds.AccessToken, creds.AccessTokenSecret)
	case creds.BearerToken != "":
		clientCfg.AuthFunc = BearerAuth(creds.BearerToken)
	default:
		return nil, errors.New("x publisher requires OAuth 1.0a credentials or a bearer token")
	}

	client, err := clients.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("creating x client: %w", err)
	}

	return NewXPublisher(XPublisherConfig{
		Client:      client,
		MaxLength:   pc.MaxLength,
		MinInterval: pc.MinInterval,
		Logger:      logger,
	}), nil
}
