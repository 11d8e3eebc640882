package benchmark

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/quotebot/internal/adapters/clients/acl"
	"github.com/jsamuelsen/quotebot/internal/adapters/http/handlers"
	"github.com/jsamuelsen/quotebot/internal/adapters/storage"
	"github.com/jsamuelsen/quotebot/internal/app"
	"github.com/jsamuelsen/quotebot/internal/domain"
	"github.com/jsamuelsen/quotebot/internal/ports"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

func createGinContext(w http.ResponseWriter, r *http.Request) *gin.Context {
	c, _ := gin.CreateTestContext(w)
	c.Request = r
	return c
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// largeSet builds n quotes spread evenly over the given number of themes.
func largeSet(n, themes int) domain.QuoteSet {
	set := make(domain.QuoteSet, n)
	for i := range set {
		set[i] = domain.Quote{
			Text:   fmt.Sprintf("Quote number %d.", i),
			Author: fmt.Sprintf("Author %d", i%97),
			Theme:  fmt.Sprintf("theme-%02d", i%themes),
		}
	}

	return set
}

// seededStore writes set to a JSON file store under b.TempDir.
func seededStore(b *testing.B, set domain.QuoteSet) *storage.JSONFileStore {
	b.Helper()

	store := storage.NewJSONFileStore(filepath.Join(b.TempDir(), "quotes.json"), discardLogger())
	if err := store.Save(context.Background(), set); err != nil {
		b.Fatal(err)
	}

	return store
}

func setupHealthHandler(checkers ...ports.HealthChecker) *handlers.HealthHandler {
	registry := ports.NewHealthRegistry()
	for _, c := range checkers {
		_ = registry.Register(c)
	}

	buildInfo := handlers.NewBuildInfo("1.0.0", "abc123", "2024-01-01T00:00:00Z")
	return handlers.NewHealthHandler(registry, buildInfo)
}

// BenchmarkLivenessHandler measures the liveness check, which should never touch storage.
func BenchmarkLivenessHandler(b *testing.B) {
	handler := setupHealthHandler()
	req := httptest.NewRequest(http.MethodGet, "/-/live", http.NoBody)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		c := createGinContext(w, req)
		handler.Liveness(c)
	}
}

// BenchmarkReadinessHandler_QuoteStore measures readiness with the JSON store registered.
func BenchmarkReadinessHandler_QuoteStore(b *testing.B) {
	handler := setupHealthHandler(seededStore(b, largeSet(100, 5)))
	req := httptest.NewRequest(http.MethodGet, "/-/ready", http.NoBody)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		c := createGinContext(w, req)
		handler.Readiness(c)
	}
}

func BenchmarkSelector_Select(b *testing.B) {
	set := largeSet(10_000, 20)
	selector := domain.NewSelectorWithRand(rand.New(rand.NewPCG(1, 2)))

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := selector.Select(set); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSelector_SelectTheme includes the periodic per-theme reset.
func BenchmarkSelector_SelectTheme(b *testing.B) {
	set := largeSet(10_000, 20)
	selector := domain.NewSelectorWithRand(rand.New(rand.NewPCG(1, 2)))

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		theme, err := selector.PickTheme(set)
		if err != nil {
			b.Fatal(err)
		}

		if _, err := selector.SelectTheme(set, theme); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFormatMessage(b *testing.B) {
	q := domain.Quote{Text: "The obstacle is the way.", Author: "Marcus Aurelius", Theme: "stoic"}

	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = domain.FormatMessage(q)
	}
}

func BenchmarkJSONFileStore_LoadSave(b *testing.B) {
	for _, n := range []int{100, 1_000, 10_000} {
		b.Run(fmt.Sprintf("quotes=%d", n), func(b *testing.B) {
			store := seededStore(b, largeSet(n, 10))
			ctx := context.Background()

			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				set, err := store.Load(ctx)
				if err != nil {
					b.Fatal(err)
				}

				if err := store.Save(ctx, set); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkQuoteService_Post measures a full load, select, publish and save cycle.
func BenchmarkQuoteService_Post(b *testing.B) {
	logger := discardLogger()
	svc := app.NewQuoteService(app.QuoteServiceConfig{
		Store:     seededStore(b, largeSet(1_000, 10)),
		Publisher: acl.NewDryRunPublisher(280, logger),
		Logger:    logger,
	})
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := svc.PostRandomTheme(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkListQuotesHandler(b *testing.B) {
	logger := discardLogger()
	svc := app.NewQuoteService(app.QuoteServiceConfig{
		Store:     seededStore(b, largeSet(1_000, 10)),
		Publisher: acl.NewDryRunPublisher(280, logger),
		Logger:    logger,
	})

	router := gin.New()
	handlers.NewQuoteHandler(svc).RegisterRoutes(router.Group("/api/v1"), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/quotes?theme=theme-03&limit=50", http.NoBody)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			b.Fatalf("status %d: %s", w.Code, w.Body.String())
		}
	}
}

// BenchmarkMiddlewareChain measures bare gin routing overhead as a baseline.
func BenchmarkMiddlewareChain(b *testing.B) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
	}
}
