// Package app contains application services that orchestrate use cases.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jsamuelsen/quotebot/internal/domain"
	"github.com/jsamuelsen/quotebot/internal/platform/logging"
	"github.com/jsamuelsen/quotebot/internal/ports"
)

// DefaultPublishTimeout bounds a single publisher call when none is configured.
const DefaultPublishTimeout = 30 * time.Second

// QuoteService runs the load → select → publish → save cycle and the
// collection management use cases. Every load-mutate-save runs inside the
// store's WithLock, which also excludes other processes on the same file or
// database. mu queues writers of this process before they reach the store lock.
type QuoteService struct {
	store          ports.QuoteStore
	publisher      ports.Publisher
	selector       *domain.Selector
	metrics        *Metrics
	exec           *Executor
	logger         *slog.Logger
	publishTimeout time.Duration

	mu sync.Mutex
}

// QuoteServiceConfig contains dependencies for the quote service.
type QuoteServiceConfig struct {
	Store     ports.QuoteStore
	Publisher ports.Publisher

	// Selector defaults to domain.NewSelector().
	Selector *domain.Selector

	// Metrics may be nil.
	Metrics *Metrics

	// PublishTimeout defaults to DefaultPublishTimeout.
	PublishTimeout time.Duration

	Logger *slog.Logger
}

// NewQuoteService creates a new quote service with the provided dependencies.
// Panics if Store or Publisher is nil.
func NewQuoteService(cfg QuoteServiceConfig) *QuoteService {
	if cfg.Store == nil {
		panic("QuoteService: Store is required")
	}

	if cfg.Publisher == nil {
		panic("QuoteService: Publisher is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With(slog.String("component", "app.QuoteService"))

	selector := cfg.Selector
	if selector == nil {
		selector = domain.NewSelector()
	}

	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}

	return &QuoteService{
		store:          cfg.Store,
		publisher:      cfg.Publisher,
		selector:       selector,
		metrics:        cfg.Metrics,
		exec:           NewExecutor(logger),
		logger:         logger,
		publishTimeout: timeout,
	}
}

// PostMode selects which quotes are eligible for a post.
type PostMode string

// Post modes.
const (
	// ModeRandomTheme picks a theme uniformly at random, then a quote within it.
	ModeRandomTheme PostMode = "random_theme"
	// ModeTheme posts from PostRequest.Theme.
	ModeTheme PostMode = "theme"
	// ModeAny picks from the whole collection regardless of theme.
	ModeAny PostMode = "any"
)

// PostRequest describes one trigger.
type PostRequest struct {
	Mode  PostMode
	Theme string
}

// PostResult reports a completed post.
type PostResult struct {
	// Index is the position of Quote in the collection.
	Index   int
	Quote   domain.Quote
	Message string
	Receipt *domain.PublishReceipt

	// Reset is true if the scope was exhausted and reset before choosing.
	Reset bool
}

// attempt carries the in-memory state between the perform and archive steps.
type attempt struct {
	set       domain.QuoteSet
	selection domain.Selection
	message   string
	receipt   *domain.PublishReceipt
}

// Post runs one full cycle. The collection is saved only after the publisher
// confirms the post, so a failed publish leaves the stored state untouched.
func (s *QuoteService) Post(ctx context.Context, req PostRequest) (*PostResult, error) {
	op := Operation[PostRequest, *attempt, *attempt, *PostResult]{
		Name:     "post",
		Validate: s.validatePost,
		Perform:  s.selectAndPublish,
		Verify:   verifyReceipt,
		Archive: func(ctx context.Context, _ PostRequest, a *attempt) error {
			if err := s.store.Save(ctx, a.set); err != nil {
				return fmt.Errorf("saving quotes after post %s: %w", a.receipt.ID, err)
			}

			return nil
		},
		Respond: func(_ context.Context, _ PostRequest, a *attempt) (*PostResult, error) {
			return &PostResult{
				Index:   a.selection.Index,
				Quote:   a.selection.Quote,
				Message: a.message,
				Receipt: a.receipt,
				Reset:   a.selection.Reset,
			}, nil
		},
	}

	var result *PostResult

	err := s.locked(ctx, func(ctx context.Context) (err error) {
		result, err = Execute(ctx, s.exec, op, req)
		return err
	})
	s.metrics.observePost(postOutcome(err))

	if err != nil {
		return nil, err
	}

	if result.Reset {
		s.metrics.observeReset()
	}

	return result, nil
}

// locked runs fn under the process mutex and the store lock.
func (s *QuoteService) locked(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.store.WithLock(ctx, fn)
}

// PostRandomTheme posts a quote from a uniformly chosen theme.
func (s *QuoteService) PostRandomTheme(ctx context.Context) (*PostResult, error) {
	return s.Post(ctx, PostRequest{Mode: ModeRandomTheme})
}

// PostTheme posts a quote from theme. It never falls back to another theme.
func (s *QuoteService) PostTheme(ctx context.Context, theme string) (*PostResult, error) {
	return s.Post(ctx, PostRequest{Mode: ModeTheme, Theme: theme})
}

// PostAny posts a quote chosen from the whole collection.
func (s *QuoteService) PostAny(ctx context.Context) (*PostResult, error) {
	return s.Post(ctx, PostRequest{Mode: ModeAny})
}

func (s *QuoteService) validatePost(_ context.Context, req PostRequest) error {
	switch req.Mode {
	case ModeRandomTheme, ModeAny, "":
		return nil
	case ModeTheme:
		if strings.TrimSpace(req.Theme) == "" {
			return domain.NewValidationError("theme", "is required")
		}

		return nil
	default:
		return domain.NewValidationError("mode", fmt.Sprintf("unknown post mode %q", req.Mode))
	}
}

// selectAndPublish loads the collection, mutates it in memory and publishes.
func (s *QuoteService) selectAndPublish(ctx context.Context, req PostRequest) (*attempt, error) {
	logger := logging.FromContextOr(ctx, s.logger)

	set, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading quotes: %w", err)
	}

	selection, err := s.choose(set, req)
	if err != nil {
		return nil, err
	}

	logging.Trace(ctx, logger, "quote selected",
		slog.Int("index", selection.Index),
		slog.String("theme", selection.Quote.Theme),
		slog.Bool("reset", selection.Reset),
	)

	message := domain.FormatMessage(selection.Quote)

	pubCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()

	start := time.Now()
	receipt, err := s.publisher.Publish(pubCtx, message)
	s.metrics.observePublish(err == nil, time.Since(start).Seconds())

	if err != nil {
		return nil, err
	}

	return &attempt{set: set, selection: selection, message: message, receipt: receipt}, nil
}

func (s *QuoteService) choose(set domain.QuoteSet, req PostRequest) (domain.Selection, error) {
	switch req.Mode {
	case ModeAny:
		return s.selector.Select(set)
	case ModeTheme:
		return s.selector.SelectTheme(set, strings.TrimSpace(req.Theme))
	default:
		theme, err := s.selector.PickTheme(set)
		if err != nil {
			return domain.Selection{}, err
		}

		return s.selector.SelectTheme(set, theme)
	}
}

func verifyReceipt(_ context.Context, _ PostRequest, a *attempt) (*attempt, error) {
	if a == nil || a.receipt == nil || a.receipt.ID == "" {
		return nil, domain.NewPublishError(domain.PublishUnknown, 0, errors.New("publisher returned no receipt"))
	}

	return a, nil
}

func postOutcome(err error) string {
	switch {
	case err == nil:
		return ResultPosted
	case domain.IsNoQuotes(err):
		return ResultNoQuotes
	case domain.IsPublishFailed(err):
		return ResultPublishFailed
	case domain.IsValidation(err):
		return ResultInvalid
	default:
		return ResultStorageError
	}
}

// AddedQuote is a quote stored by AddQuote.
type AddedQuote struct {
	Quote domain.Quote

	// Index is the position of the new quote, always the last one.
	Index int
}

// AddQuote validates and appends a new quote with used=false.
func (s *QuoteService) AddQuote(ctx context.Context, text, author, theme string) (AddedQuote, error) {
	var q domain.Quote

	op := Operation[struct{}, domain.QuoteSet, domain.QuoteSet, AddedQuote]{
		Name: "add_quote",
		Validate: func(context.Context, struct{}) error {
			var err error
			q, err = domain.NewQuote(text, author, theme)

			return err
		},
		Perform: func(ctx context.Context, _ struct{}) (domain.QuoteSet, error) {
			set, err := s.store.Load(ctx)
			if err != nil {
				return nil, fmt.Errorf("loading quotes: %w", err)
			}

			return set.Append(q), nil
		},
		Archive: func(ctx context.Context, _ struct{}, set domain.QuoteSet) error {
			if err := s.store.Save(ctx, set); err != nil {
				return fmt.Errorf("saving quotes: %w", err)
			}

			return nil
		},
		Respond: func(_ context.Context, _ struct{}, set domain.QuoteSet) (AddedQuote, error) {
			return AddedQuote{Quote: q, Index: len(set) - 1}, nil
		},
	}

	var added AddedQuote

	err := s.locked(ctx, func(ctx context.Context) (err error) {
		added, err = Execute(ctx, s.exec, op, struct{}{})
		return err
	})
	if err != nil {
		return AddedQuote{}, err
	}

	s.metrics.observeAdded()

	return added, nil
}

// ListQuotes returns the collection, optionally restricted to one theme.
// It reads without the lock; both stores replace their content atomically.
func (s *QuoteService) ListQuotes(ctx context.Context, theme string) (domain.QuoteSet, error) {
	set, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading quotes: %w", err)
	}

	if theme = strings.TrimSpace(theme); theme != "" {
		return set.FilterTheme(theme), nil
	}

	return set, nil
}

// Themes returns the distinct themes in the collection, sorted.
func (s *QuoteService) Themes(ctx context.Context) ([]string, error) {
	set, err := s.ListQuotes(ctx, "")
	if err != nil {
		return nil, err
	}

	return domain.Themes(set), nil
}
