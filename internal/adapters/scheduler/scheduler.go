// Package scheduler triggers posts on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/jsamuelsen/quotebot/internal/app"
	"github.com/jsamuelsen/quotebot/internal/domain"
	"github.com/jsamuelsen/quotebot/internal/platform/config"
)

const (
	defaultHistorySize = 20
	defaultJobTimeout  = time.Minute
)

// Poster runs one post cycle. *app.QuoteService implements it.
type Poster interface {
	Post(ctx context.Context, req app.PostRequest) (*app.PostResult, error)
}

// Config controls the scheduler.
type Config struct {
	Spec        string        // cron expression, 5 or 6 fields, or a descriptor like @daily
	Timezone    string        // IANA name; "" or "Local" means the host zone
	Mode        string        // random_theme or any
	JobTimeout  time.Duration // bound on a single run
	HistorySize int           // runs kept for inspection
}

// ConfigFrom maps the scheduler section of the application config.
func ConfigFrom(c *config.SchedulerConfig) Config {
	return Config{
		Spec:        c.Spec,
		Timezone:    c.Timezone,
		Mode:        c.Mode,
		JobTimeout:  c.JobTimeout,
		HistorySize: c.HistorySize,
	}
}

// RunRecord describes one scheduled run.
type RunRecord struct {
	ID       string
	Started  time.Time
	Duration time.Duration
	PostID   string
	Quote    string
	Reset    bool
	Error    string
}

// OK reports whether the run posted successfully.
func (r RunRecord) OK() bool { return r.Error == "" }

// Scheduler fires app posts on a cron schedule. Overlapping runs are skipped.
type Scheduler struct {
	cfg    Config
	poster Poster
	logger *slog.Logger
	loc    *time.Location
	sched  cron.Schedule
	req    app.PostRequest

	mu      sync.Mutex
	c       *cron.Cron
	entryID cron.EntryID
	history []RunRecord
}

// New validates cfg and returns a stopped scheduler.
func New(cfg Config, poster Poster, logger *slog.Logger) (*Scheduler, error) {
	if poster == nil {
		return nil, errors.New("scheduler: poster is required")
	}

	if logger == nil {
		logger = slog.Default()
	}

	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}

	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaultJobTimeout
	}

	loc, err := loadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	sched, err := parser().Parse(strings.TrimSpace(cfg.Spec))
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid spec %q: %w", cfg.Spec, err)
	}

	req, err := requestFor(cfg.Mode)
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		cfg:    cfg,
		poster: poster,
		logger: logger.With(slog.String("component", "scheduler")),
		loc:    loc,
		sched:  sched,
		req:    req,
	}, nil
}

// parser accepts both 5-field and 6-field (with seconds) specs plus descriptors.
func parser() cron.Parser {
	return cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

func loadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid timezone %q: %w", name, err)
	}

	return loc, nil
}

func requestFor(mode string) (app.PostRequest, error) {
	switch mode {
	case "", config.ScheduleModeRandomTheme:
		return app.PostRequest{Mode: app.ModeRandomTheme}, nil
	case config.ScheduleModeAny:
		return app.PostRequest{Mode: app.ModeAny}, nil
	default:
		return app.PostRequest{}, fmt.Errorf("scheduler: unknown mode %q", mode)
	}
}

// Start begins firing. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.c != nil {
		return
	}

	cl := cronLogger{logger: s.logger}
	s.c = cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	// Runs outlive the caller's cancellation only until Stop drains them.
	runCtx := context.WithoutCancel(ctx)
	s.entryID = s.c.Schedule(s.sched, cron.FuncJob(func() { s.RunOnce(runCtx) }))
	s.c.Start()

	s.logger.InfoContext(ctx, "scheduler started",
		slog.String("spec", s.cfg.Spec),
		slog.String("timezone", s.loc.String()),
		slog.String("mode", string(s.req.Mode)),
		slog.Time("next", s.c.Entry(s.entryID).Next),
	)
}

// Stop halts firing and waits for an in-flight run, or until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.entryID = 0
	s.mu.Unlock()

	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
		s.logger.InfoContext(ctx, "scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler: waiting for running job: %w", ctx.Err())
	}
}

// Run starts the scheduler and blocks until ctx is cancelled, then stops it,
// giving an in-flight run up to the job timeout to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start(ctx)
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.JobTimeout)
	defer cancel()

	return s.Stop(stopCtx)
}

// RunOnce performs one post immediately and records it in the history.
func (s *Scheduler) RunOnce(ctx context.Context) RunRecord {
	rec := RunRecord{ID: uuid.NewString(), Started: time.Now()}
	logger := s.logger.With(slog.String("run_id", rec.ID))

	ctx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	result, err := s.poster.Post(ctx, s.req)
	rec.Duration = time.Since(rec.Started)

	if err != nil {
		rec.Error = err.Error()
		logger.ErrorContext(ctx, "scheduled post failed",
			slog.String("mode", string(s.req.Mode)),
			slog.String("reason", failureReason(err)),
			slog.Any("error", err),
		)
	} else {
		rec.PostID = result.Receipt.ID
		rec.Quote = result.Message
		rec.Reset = result.Reset
		logger.InfoContext(ctx, "scheduled post published",
			slog.String("post_id", rec.PostID),
			slog.Bool("reset", rec.Reset),
			slog.Duration("took", rec.Duration),
		)
	}

	s.record(rec)

	return rec
}

func failureReason(err error) string {
	var pubErr *domain.PublishError
	switch {
	case errors.As(err, &pubErr):
		return string(pubErr.Reason)
	case domain.IsNoQuotes(err):
		return "no_quotes"
	case domain.IsMalformedData(err):
		return "malformed_data"
	case domain.IsStorageUnavailable(err):
		return "storage_unavailable"
	default:
		return "unknown"
	}
}

func (s *Scheduler) record(rec RunRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, rec)
	if len(s.history) > s.cfg.HistorySize {
		s.history = s.history[len(s.history)-s.cfg.HistorySize:]
	}
}

// History returns the most recent runs, oldest first.
func (s *Scheduler) History() []RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]RunRecord, len(s.history))
	copy(out, s.history)

	return out
}

// Next returns the next fire time, or the zero time when stopped.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.c == nil {
		return time.Time{}
	}

	return s.c.Entry(s.entryID).Next
}

// NextAfter returns when the schedule fires after t, in the configured zone.
func (s *Scheduler) NextAfter(t time.Time) time.Time {
	return s.sched.Next(t.In(s.loc))
}

// Name implements ports.HealthChecker.
func (s *Scheduler) Name() string { return "scheduler" }

// Check fails while the scheduler is not running.
func (s *Scheduler) Check(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.c == nil {
		return errors.New("scheduler not running")
	}

	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{slog.Any("error", err)}, keysAndValues...)...)
}
