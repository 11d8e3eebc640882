package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/quotebot/internal/domain"
	"github.com/jsamuelsen/quotebot/internal/mocks"
)

// discardLogger returns a logger that discards all output.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seededSelector() *domain.Selector {
	return domain.NewSelectorWithRand(rand.New(rand.NewPCG(7, 11)))
}

func receipt(id string) *domain.PublishReceipt {
	return &domain.PublishReceipt{ID: id, PublishedAt: time.Now()}
}

// memStore is a QuoteStore that copies on every load and save like a real backend.
// Services sharing one memStore behave like processes sharing one file.
type memStore struct {
	lock  sync.Mutex
	mu    sync.Mutex
	set   domain.QuoteSet
	saves int
}

func (m *memStore) WithLock(ctx context.Context, fn func(context.Context) error) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	return fn(ctx)
}

func (m *memStore) Load(context.Context) (domain.QuoteSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.set.Clone(), nil
}

func (m *memStore) Save(_ context.Context, set domain.QuoteSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.set = set.Clone()
	m.saves++

	return nil
}

func (m *memStore) snapshot() domain.QuoteSet {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.set.Clone()
}

// countingPublisher accepts every message and records it.
type countingPublisher struct {
	mu       sync.Mutex
	messages []string
}

func (p *countingPublisher) Publish(_ context.Context, message string) (*domain.PublishReceipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.messages = append(p.messages, message)

	return receipt(fmt.Sprintf("%d", len(p.messages))), nil
}

func newTestService(t *testing.T, store *mocks.MockQuoteStore, pub *mocks.MockPublisher) (*QuoteService, *Metrics) {
	t.Helper()

	metrics := NewMetrics(prometheus.NewRegistry())

	store.EXPECT().WithLock(mock.Anything, mock.Anything).
		RunAndReturn(func(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) }).
		Maybe()

	return NewQuoteService(QuoteServiceConfig{
		Store:     store,
		Publisher: pub,
		Selector:  seededSelector(),
		Metrics:   metrics,
		Logger:    discardLogger(),
	}), metrics
}

func sampleSet() domain.QuoteSet {
	return domain.QuoteSet{
		{Text: "Be water", Author: "Bruce Lee", Theme: "zen"},
		{Text: "Amor fati", Author: "Nietzsche", Theme: "stoic"},
		{Text: "Memento mori", Author: "", Theme: "stoic"},
	}
}

func TestNewQuoteService_PanicsWithoutDependencies(t *testing.T) {
	assert.Panics(t, func() {
		NewQuoteService(QuoteServiceConfig{Publisher: mocks.NewMockPublisher(t)})
	})
	assert.Panics(t, func() {
		NewQuoteService(QuoteServiceConfig{Store: mocks.NewMockQuoteStore(t)})
	})
}

func TestNewQuoteService_Defaults(t *testing.T) {
	svc := NewQuoteService(QuoteServiceConfig{
		Store:     mocks.NewMockQuoteStore(t),
		Publisher: mocks.NewMockPublisher(t),
	})

	require.NotNil(t, svc)
	assert.NotNil(t, svc.selector)
	assert.Equal(t, DefaultPublishTimeout, svc.publishTimeout)
}

func TestQuoteService_PostTheme_Success(t *testing.T) {
	store := mocks.NewMockQuoteStore(t)
	pub := mocks.NewMockPublisher(t)
	svc, metrics := newTestService(t, store, pub)

	store.EXPECT().Load(mock.Anything).Return(sampleSet(), nil)
	pub.EXPECT().Publish(mock.Anything, `"Be water" - Bruce Lee`).
		Run(func(ctx context.Context, _ string) {
			_, ok := ctx.Deadline()
			assert.True(t, ok, "publish must be bounded")
		}).
		Return(receipt("123"), nil)

	var saved domain.QuoteSet
	store.EXPECT().Save(mock.Anything, mock.Anything).
		Run(func(_ context.Context, set domain.QuoteSet) { saved = set }).
		Return(nil)

	result, err := svc.PostTheme(context.Background(), " zen ")

	require.NoError(t, err)
	assert.Equal(t, "123", result.Receipt.ID)
	assert.Equal(t, `"Be water" - Bruce Lee`, result.Message)
	assert.True(t, result.Quote.Used)
	assert.False(t, result.Reset)

	require.Len(t, saved, 3)
	assert.True(t, saved[0].Used)
	assert.False(t, saved[1].Used)
	assert.False(t, saved[2].Used)

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.posts.WithLabelValues(ResultPosted)), 0)
}

func TestQuoteService_Post_PublishFailureDoesNotSave(t *testing.T) {
	store := mocks.NewMockQuoteStore(t)
	pub := mocks.NewMockPublisher(t)
	svc, metrics := newTestService(t, store, pub)

	store.EXPECT().Load(mock.Anything).Return(sampleSet(), nil)
	pub.EXPECT().Publish(mock.Anything, mock.Anything).
		Return(nil, domain.NewPublishError(domain.PublishRateLimited, 429, errors.New("slow down")))

	result, err := svc.PostAny(context.Background())

	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, domain.IsPublishFailed(err))

	step, ok := GetExecutionStep(err)
	require.True(t, ok)
	assert.Equal(t, StepPerform, step)

	store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.posts.WithLabelValues(ResultPublishFailed)), 0)
}

func TestQuoteService_Post_MissingReceiptDoesNotSave(t *testing.T) {
	store := mocks.NewMockQuoteStore(t)
	pub := mocks.NewMockPublisher(t)
	svc, _ := newTestService(t, store, pub)

	store.EXPECT().Load(mock.Anything).Return(sampleSet(), nil)
	pub.EXPECT().Publish(mock.Anything, mock.Anything).Return(nil, nil)

	_, err := svc.PostRandomTheme(context.Background())

	require.Error(t, err)
	assert.True(t, domain.IsPublishFailed(err))

	step, _ := GetExecutionStep(err)
	assert.Equal(t, StepVerify, step)
	store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestQuoteService_Post_UnknownTheme(t *testing.T) {
	store := mocks.NewMockQuoteStore(t)
	pub := mocks.NewMockPublisher(t)
	svc, metrics := newTestService(t, store, pub)

	store.EXPECT().Load(mock.Anything).Return(sampleSet(), nil)

	_, err := svc.PostTheme(context.Background(), "cats")

	require.Error(t, err)
	assert.True(t, domain.IsNoQuotes(err))

	var noQuotes *domain.NoQuotesError
	require.ErrorAs(t, err, &noQuotes)
	assert.Equal(t, "cats", noQuotes.Theme)

	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.posts.WithLabelValues(ResultNoQuotes)), 0)
}

func TestQuoteService_Post_EmptyCollection(t *testing.T) {
	store := mocks.NewMockQuoteStore(t)
	pub := mocks.NewMockPublisher(t)
	svc, _ := newTestService(t, store, pub)

	store.EXPECT().Load(mock.Anything).Return(domain.QuoteSet{}, nil).Twice()

	_, err := svc.PostRandomTheme(context.Background())
	assert.True(t, domain.IsNoQuotes(err))

	_, err = svc.PostAny(context.Background())
	assert.True(t, domain.IsNoQuotes(err))
}

func TestQuoteService_Post_StorageErrors(t *testing.T) {
	t.Run("load", func(t *testing.T) {
		store := mocks.NewMockQuoteStore(t)
		pub := mocks.NewMockPublisher(t)
		svc, metrics := newTestService(t, store, pub)

		store.EXPECT().Load(mock.Anything).
			Return(nil, domain.NewStorageError("load", "quotes.json", errors.New("permission denied")))

		_, err := svc.PostAny(context.Background())

		require.Error(t, err)
		assert.True(t, domain.IsStorageUnavailable(err))
		assert.InDelta(t, 1, testutil.ToFloat64(metrics.posts.WithLabelValues(ResultStorageError)), 0)
	})

	t.Run("malformed", func(t *testing.T) {
		store := mocks.NewMockQuoteStore(t)
		pub := mocks.NewMockPublisher(t)
		svc, _ := newTestService(t, store, pub)

		store.EXPECT().Load(mock.Anything).
			Return(nil, domain.NewMalformedDataError(2, "theme", "must not be empty"))

		_, err := svc.PostAny(context.Background())

		assert.True(t, domain.IsMalformedData(err))
	})

	t.Run("save after publish", func(t *testing.T) {
		store := mocks.NewMockQuoteStore(t)
		pub := mocks.NewMockPublisher(t)
		svc, _ := newTestService(t, store, pub)

		store.EXPECT().Load(mock.Anything).Return(sampleSet(), nil)
		pub.EXPECT().Publish(mock.Anything, mock.Anything).Return(receipt("9"), nil)
		store.EXPECT().Save(mock.Anything, mock.Anything).
			Return(domain.NewStorageError("save", "quotes.json", errors.New("disk full")))

		_, err := svc.PostAny(context.Background())

		require.Error(t, err)
		assert.True(t, domain.IsStorageUnavailable(err))
		assert.Contains(t, err.Error(), "post 9")

		step, _ := GetExecutionStep(err)
		assert.Equal(t, StepArchive, step)
	})
}

func TestQuoteService_Post_Validation(t *testing.T) {
	store := mocks.NewMockQuoteStore(t)
	pub := mocks.NewMockPublisher(t)
	svc, _ := newTestService(t, store, pub)

	_, err := svc.PostTheme(context.Background(), "   ")
	assert.True(t, domain.IsValidation(err))

	_, err = svc.Post(context.Background(), PostRequest{Mode: "weekly"})
	assert.True(t, domain.IsValidation(err))

	step, _ := GetExecutionStep(err)
	assert.Equal(t, StepValidate, step)
}

func TestQuoteService_PostAny_RotatesThenResets(t *testing.T) {
	store := &memStore{set: sampleSet()}
	pub := &countingPublisher{}
	metrics := NewMetrics(prometheus.NewRegistry())

	svc := NewQuoteService(QuoteServiceConfig{
		Store:     store,
		Publisher: pub,
		Selector:  seededSelector(),
		Metrics:   metrics,
		Logger:    discardLogger(),
	})

	ctx := context.Background()
	seen := map[string]bool{}

	for range 3 {
		result, err := svc.PostAny(ctx)
		require.NoError(t, err)
		assert.False(t, result.Reset)
		assert.False(t, seen[result.Quote.Text], "no repeats before exhaustion")
		seen[result.Quote.Text] = true
	}

	assert.Equal(t, 0, store.snapshot().CountUnused())

	result, err := svc.PostAny(ctx)
	require.NoError(t, err)
	assert.True(t, result.Reset)
	assert.Equal(t, 2, store.snapshot().CountUnused())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.resets), 0)
	assert.Len(t, pub.messages, 4)
}

func TestQuoteService_PostTheme_SingleQuoteRepeats(t *testing.T) {
	store := &memStore{set: sampleSet()}
	svc := NewQuoteService(QuoteServiceConfig{
		Store:     store,
		Publisher: &countingPublisher{},
		Selector:  seededSelector(),
		Logger:    discardLogger(),
	})

	ctx := context.Background()

	first, err := svc.PostTheme(ctx, "zen")
	require.NoError(t, err)
	assert.False(t, first.Reset)

	for range 3 {
		again, err := svc.PostTheme(ctx, "zen")
		require.NoError(t, err)
		assert.Equal(t, first.Quote.Text, again.Quote.Text)
		assert.True(t, again.Reset)
	}

	// The stoic quotes were never touched by the zen resets.
	for _, q := range store.snapshot().FilterTheme("stoic") {
		assert.False(t, q.Used)
	}
}

func TestQuoteService_ConcurrentPostsDoNotLoseUpdates(t *testing.T) {
	set := make(domain.QuoteSet, 0, 40)
	for i := range 40 {
		set = append(set, domain.Quote{Text: fmt.Sprintf("q%d", i), Theme: "t"})
	}

	store := &memStore{set: set}
	pub := &countingPublisher{}
	svc := NewQuoteService(QuoteServiceConfig{
		Store:     store,
		Publisher: pub,
		Logger:    discardLogger(),
	})

	var wg sync.WaitGroup
	for range 40 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := svc.PostAny(context.Background())
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	assert.Equal(t, 0, store.snapshot().CountUnused(), "every quote posted exactly once")

	unique := map[string]bool{}
	for _, m := range pub.messages {
		unique[m] = true
	}

	assert.Len(t, unique, 40)
}

func TestQuoteService_AddQuote(t *testing.T) {
	store := mocks.NewMockQuoteStore(t)
	pub := mocks.NewMockPublisher(t)
	svc, metrics := newTestService(t, store, pub)

	existing := domain.QuoteSet{{Text: "Be water", Author: "Bruce Lee", Theme: "zen", Used: true}}

	store.EXPECT().Load(mock.Anything).Return(existing, nil)
	store.EXPECT().Save(mock.Anything, domain.QuoteSet{
		{Text: "Be water", Author: "Bruce Lee", Theme: "zen", Used: true},
		{Text: "Amor fati", Author: "Nietzsche", Theme: "stoic", Used: false},
	}).Return(nil)

	added, err := svc.AddQuote(context.Background(), "  Amor fati ", "Nietzsche", "stoic")

	require.NoError(t, err)
	assert.Equal(t, domain.Quote{Text: "Amor fati", Author: "Nietzsche", Theme: "stoic"}, added.Quote)
	assert.Equal(t, 1, added.Index)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.added), 0)
}

func TestQuoteService_AddQuote_Errors(t *testing.T) {
	t.Run("empty text", func(t *testing.T) {
		store := mocks.NewMockQuoteStore(t)
		svc, _ := newTestService(t, store, mocks.NewMockPublisher(t))

		_, err := svc.AddQuote(context.Background(), " ", "a", "zen")

		var vErr *domain.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "text", vErr.Field)
		store.AssertNotCalled(t, "Load", mock.Anything)
	})

	t.Run("empty theme", func(t *testing.T) {
		svc, _ := newTestService(t, mocks.NewMockQuoteStore(t), mocks.NewMockPublisher(t))

		_, err := svc.AddQuote(context.Background(), "text", "a", "")

		var vErr *domain.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "theme", vErr.Field)
	})

	t.Run("save fails", func(t *testing.T) {
		store := mocks.NewMockQuoteStore(t)
		svc, metrics := newTestService(t, store, mocks.NewMockPublisher(t))

		store.EXPECT().Load(mock.Anything).Return(domain.QuoteSet{}, nil)
		store.EXPECT().Save(mock.Anything, mock.Anything).
			Return(domain.NewStorageError("save", "q.json", errors.New("read-only file system")))

		_, err := svc.AddQuote(context.Background(), "text", "", "zen")

		assert.True(t, domain.IsStorageUnavailable(err))
		assert.InDelta(t, 0, testutil.ToFloat64(metrics.added), 0)
	})
}

func TestQuoteService_ListQuotesAndThemes(t *testing.T) {
	store := mocks.NewMockQuoteStore(t)
	svc, _ := newTestService(t, store, mocks.NewMockPublisher(t))

	store.EXPECT().Load(mock.Anything).Return(sampleSet(), nil)

	ctx := context.Background()

	all, err := svc.ListQuotes(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	stoic, err := svc.ListQuotes(ctx, "stoic")
	require.NoError(t, err)
	assert.Len(t, stoic, 2)

	themes, err := svc.Themes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"stoic", "zen"}, themes)
}

func TestQuoteService_ListQuotes_StorageError(t *testing.T) {
	store := mocks.NewMockQuoteStore(t)
	svc, _ := newTestService(t, store, mocks.NewMockPublisher(t))

	store.EXPECT().Load(mock.Anything).Return(nil, domain.NewStorageError("load", "q.json", errors.New("eio")))

	_, err := svc.Themes(context.Background())
	assert.True(t, domain.IsStorageUnavailable(err))
}

// slowPublisher holds every post open until release is closed.
type slowPublisher struct {
	started chan struct{}
	release chan struct{}
}

func (p *slowPublisher) Publish(ctx context.Context, _ string) (*domain.PublishReceipt, error) {
	close(p.started)

	select {
	case <-p.release:
		return receipt("slow-1"), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestQuoteService_AddDuringPostFromAnotherService(t *testing.T) {
	store := &memStore{set: domain.QuoteSet{{Text: "first", Author: "a", Theme: "t"}}}
	slow := &slowPublisher{started: make(chan struct{}), release: make(chan struct{})}

	poster := NewQuoteService(QuoteServiceConfig{Store: store, Publisher: slow, Logger: discardLogger()})
	adder := NewQuoteService(QuoteServiceConfig{Store: store, Publisher: &countingPublisher{}, Logger: discardLogger()})

	posted := make(chan error, 1)
	go func() {
		_, err := poster.PostAny(context.Background())
		posted <- err
	}()

	<-slow.started

	added := make(chan error, 1)
	go func() {
		_, err := adder.AddQuote(context.Background(), "added by cli", "b", "t")
		added <- err
	}()

	select {
	case err := <-added:
		t.Fatalf("add finished while the post held the store lock: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(slow.release)
	require.NoError(t, <-posted)
	require.NoError(t, <-added)

	set := store.snapshot()
	require.Len(t, set, 2)
	assert.True(t, set[0].Used)
	assert.Equal(t, "added by cli", set[1].Text)
	assert.False(t, set[1].Used)
}

func TestQuoteService_LockUnavailable(t *testing.T) {
	store := mocks.NewMockQuoteStore(t)
	pub := mocks.NewMockPublisher(t)

	lockErr := domain.NewStorageError("lock", "quotes.json.lock", errors.New("permission denied"))
	store.EXPECT().WithLock(mock.Anything, mock.Anything).Return(lockErr).Once()

	svc, metrics := newTestService(t, store, pub)

	_, err := svc.PostAny(context.Background())
	require.ErrorIs(t, err, lockErr)
	assert.True(t, domain.IsStorageUnavailable(err))
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.posts.WithLabelValues(ResultStorageError)), 0)

	store.AssertNotCalled(t, "Load", mock.Anything)
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}
