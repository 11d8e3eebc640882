//go:build integration

package integration

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/quotebot/internal/adapters/storage"
	"github.com/jsamuelsen/quotebot/internal/app"
	"github.com/jsamuelsen/quotebot/internal/domain"
	"github.com/jsamuelsen/quotebot/internal/platform/config"
)

// openStores returns one store per driver, each in its own temp dir.
func openStores(t *testing.T) map[string]storage.Store {
	t.Helper()

	stores := make(map[string]storage.Store)

	for _, driver := range []string{config.StorageDriverJSON, config.StorageDriverSQLite} {
		s, err := storage.Open(context.Background(), &config.StorageConfig{
			Driver:      driver,
			Path:        filepath.Join(t.TempDir(), "quotes."+driver),
			BusyTimeout: 5 * time.Second,
		}, quietLogger())
		require.NoError(t, err)

		t.Cleanup(func() { _ = s.Close() })
		stores[driver] = s
	}

	return stores
}

func seed(t *testing.T, store storage.Store, n int) {
	t.Helper()

	set := make(domain.QuoteSet, 0, n)
	for i := range n {
		set = append(set, domain.Quote{Text: fmt.Sprintf("quote %d", i), Author: "anon", Theme: "bulk"})
	}

	require.NoError(t, store.Save(context.Background(), set))
}

// TestConcurrent_PostsNeverRepeat verifies concurrent triggers against one
// service each take a different quote until the collection is exhausted.
func TestConcurrent_PostsNeverRepeat(t *testing.T) {
	const n = 25

	for driver, store := range openStores(t) {
		t.Run(driver, func(t *testing.T) {
			seed(t, store, n)

			x := newFakeX(t)
			svc := app.NewQuoteService(app.QuoteServiceConfig{
				Store:     store,
				Publisher: newXPublisher(t, x),
				Logger:    quietLogger(),
			})

			var wg sync.WaitGroup

			errs := make(chan error, n)

			for range n {
				wg.Add(1)

				go func() {
					defer wg.Done()

					if _, err := svc.Post(context.Background(), app.PostRequest{Mode: app.ModeAny}); err != nil {
						errs <- err
					}
				}()
			}

			wg.Wait()
			close(errs)

			for err := range errs {
				t.Errorf("post failed: %v", err)
			}

			posted := x.received()
			require.Len(t, posted, n)

			seen := make(map[string]bool, n)
			for _, p := range posted {
				assert.False(t, seen[p], "posted twice: %s", p)
				seen[p] = true
			}

			set, err := store.Load(context.Background())
			require.NoError(t, err)
			assert.Zero(t, set.CountUnused())
		})
	}
}

// TestConcurrent_AddsAreNotLost verifies concurrent adds all persist.
func TestConcurrent_AddsAreNotLost(t *testing.T) {
	const n = 20

	for driver, store := range openStores(t) {
		t.Run(driver, func(t *testing.T) {
			svc := app.NewQuoteService(app.QuoteServiceConfig{
				Store:     store,
				Publisher: newXPublisher(t, newFakeX(t)),
				Logger:    quietLogger(),
			})

			var wg sync.WaitGroup

			for i := range n {
				wg.Add(1)

				go func() {
					defer wg.Done()

					_, err := svc.AddQuote(context.Background(), fmt.Sprintf("added %d", i), "", "new")
					assert.NoError(t, err)
				}()
			}

			wg.Wait()

			set, err := store.Load(context.Background())
			require.NoError(t, err)
			assert.Len(t, set, n)
		})
	}
}

// TestConcurrent_SecondProcessAddDuringPost verifies a service on its own
// store handle, as the CLI runs beside the daemon, cannot overwrite an add
// with a post that loaded the collection first.
func TestConcurrent_SecondProcessAddDuringPost(t *testing.T) {
	for _, driver := range []string{config.StorageDriverJSON, config.StorageDriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			cfg := &config.StorageConfig{
				Driver:      driver,
				Path:        filepath.Join(t.TempDir(), "quotes."+driver),
				BusyTimeout: 5 * time.Second,
			}

			open := func() storage.Store {
				s, err := storage.Open(context.Background(), cfg, quietLogger())
				require.NoError(t, err)
				t.Cleanup(func() { _ = s.Close() })

				return s
			}

			daemonStore, cliStore := open(), open()
			require.NoError(t, daemonStore.Save(context.Background(), domain.QuoteSet{{Text: "first", Author: "a", Theme: "t"}}))

			x := newFakeX(t)
			x.slow(300 * time.Millisecond)

			daemon := app.NewQuoteService(app.QuoteServiceConfig{
				Store:     daemonStore,
				Publisher: newXPublisher(t, x),
				Logger:    quietLogger(),
			})
			cli := app.NewQuoteService(app.QuoteServiceConfig{
				Store:     cliStore,
				Publisher: newXPublisher(t, newFakeX(t)),
				Logger:    quietLogger(),
			})

			posted := make(chan error, 1)
			go func() {
				_, err := daemon.PostAny(context.Background())
				posted <- err
			}()

			require.Eventually(t, func() bool { return x.callCount() == 1 }, 2*time.Second, 5*time.Millisecond)

			_, err := cli.AddQuote(context.Background(), "added by cli", "b", "t")
			require.NoError(t, err)
			require.NoError(t, <-posted)

			set, err := cliStore.Load(context.Background())
			require.NoError(t, err)
			require.Len(t, set, 2)
			assert.True(t, set[0].Used)
			assert.Equal(t, "added by cli", set[1].Text)
		})
	}
}

// TestConcurrent_FailedPostLeavesStoreUntouched verifies the save happens
// only after the platform confirms the post.
func TestConcurrent_FailedPostLeavesStoreUntouched(t *testing.T) {
	for driver, store := range openStores(t) {
		t.Run(driver, func(t *testing.T) {
			seed(t, store, 3)

			x := newFakeX(t)
			x.reject(503, `{"title":"Service Unavailable"}`, nil)

			svc := app.NewQuoteService(app.QuoteServiceConfig{
				Store:     store,
				Publisher: newXPublisher(t, x),
				Logger:    quietLogger(),
			})

			_, err := svc.Post(context.Background(), app.PostRequest{Mode: app.ModeAny})
			require.Error(t, err)
			assert.True(t, domain.IsPublishFailed(err))

			set, err := store.Load(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 3, set.CountUnused())
		})
	}
}
