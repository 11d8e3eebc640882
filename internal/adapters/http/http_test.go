package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/quotebot/internal/adapters/clients/acl"
	"github.com/jsamuelsen/quotebot/internal/adapters/http/dto"
	"github.com/jsamuelsen/quotebot/internal/adapters/http/handlers"
	"github.com/jsamuelsen/quotebot/internal/adapters/storage"
	"github.com/jsamuelsen/quotebot/internal/app"
	"github.com/jsamuelsen/quotebot/internal/domain"
	"github.com/jsamuelsen/quotebot/internal/platform/config"
	"github.com/jsamuelsen/quotebot/internal/ports"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testServerConfig() *config.ServerConfig {
	return &config.ServerConfig{
		Host:            "127.0.0.1",
		Port:            0,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     30 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		MaxRequestSize:  1 << 20,
	}
}

type fixture struct {
	engine *gin.Engine
	store  *storage.JSONFileStore
}

// newFixture wires the full router over a JSON file store seeded with two
// quotes and a dry-run publisher.
func newFixture(t *testing.T, auth *config.AuthConfig) fixture {
	t.Helper()

	logger := discardLogger()

	store := storage.NewJSONFileStore(filepath.Join(t.TempDir(), "quotes.json"), logger)
	require.NoError(t, store.Save(context.Background(), domain.QuoteSet{
		{Text: "Stay hungry.", Author: "Jobs", Theme: "drive"},
		{Text: "Know thyself.", Author: "Socrates", Theme: "wisdom"},
	}))

	svc := app.NewQuoteService(app.QuoteServiceConfig{
		Store:     store,
		Publisher: acl.NewDryRunPublisher(280, logger),
		Logger:    logger,
	})

	registry := ports.NewHealthRegistry()
	require.NoError(t, registry.Register(store))

	web, err := handlers.NewWebHandler(svc)
	require.NoError(t, err)

	cfg := NewDefaultRouterConfig(
		logger,
		&config.AppConfig{Name: "quotebot", Version: "test", Environment: "test"},
		auth,
		handlers.NewHealthHandler(registry, handlers.NewBuildInfo("test", "abc123", "now")),
	)
	cfg.QuoteHandler = handlers.NewQuoteHandler(svc)
	cfg.WebHandler = web

	engine := gin.New()
	SetupRouter(engine, cfg)

	return fixture{engine: engine, store: store}
}

func (f fixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	return w
}

func TestSetupRouter_OperationalRoutes(t *testing.T) {
	f := newFixture(t, nil)

	for _, path := range []string{"/-/live", "/-/ready", "/-/build", "/-/metrics"} {
		t.Run(path, func(t *testing.T) {
			w := f.do(http.MethodGet, path, "", nil)
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestSetupRouter_RequestIDs(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/api/v1/themes", "", map[string]string{"X-Request-ID": "req-42"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))

	w = f.do(http.MethodGet, "/api/v1/themes", "", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestSetupRouter_API(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/api/v1/themes", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var themes dto.ThemesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &themes))
	assert.Equal(t, []string{"drive", "wisdom"}, themes.Themes)

	w = f.do(http.MethodPost, "/api/v1/posts", `{"theme":"wisdom"}`, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var post dto.PostResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &post))
	assert.Equal(t, `"Know thyself." - Socrates`, post.Message)
	assert.True(t, strings.HasPrefix(post.ID, "dry-"))

	set, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, set[1].Used)
	assert.False(t, set[0].Used)
}

func TestSetupRouter_UnknownThemeIsNotFound(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/api/v1/posts", `{"theme":"missing"}`, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), dto.ErrorCodeNoQuotes)
}

func TestSetupRouter_GuardsMutatingRoutes(t *testing.T) {
	auth := &config.AuthConfig{
		Enabled:       true,
		SubjectHeader: "X-User-ID",
		RolesHeader:   "X-User-Roles",
		RequiredRole:  "poster",
	}
	f := newFixture(t, auth)

	t.Run("reads stay open", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/quotes", "", nil).Code)
		assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/", "", nil).Code)
	})

	t.Run("anonymous post rejected", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/v1/posts", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing role rejected", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/v1/posts", "", map[string]string{"X-User-ID": "ana"})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("web form rejected", func(t *testing.T) {
		w := f.do(http.MethodPost, "/theme", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("authorized post accepted", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/v1/posts", "", map[string]string{
			"X-User-ID":    "ana",
			"X-User-Roles": "viewer, poster",
		})
		assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	})
}

func TestSetupRouter_NilHandlers(t *testing.T) {
	engine := gin.New()
	SetupRouter(engine, RouterConfig{})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/-/live", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNewDefaultRouterConfig(t *testing.T) {
	logger := discardLogger()
	appCfg := &config.AppConfig{Name: "quotebot"}

	cfg := NewDefaultRouterConfig(logger, appCfg, nil, nil)

	assert.Equal(t, logger, cfg.Logger)
	assert.Equal(t, appCfg, cfg.AppConfig)
	assert.Equal(t, DefaultRequestTimeout, cfg.Timeout)
	assert.Nil(t, cfg.QuoteHandler)
}

func TestServerNew(t *testing.T) {
	cfg := testServerConfig()
	srv := New(cfg, discardLogger())

	require.NotNil(t, srv.Engine())
	assert.Equal(t, cfg, srv.Config())
	assert.Equal(t, "127.0.0.1:0", srv.Addr())
}

func TestServerRun_StopsOnCancel(t *testing.T) {
	srv := New(testServerConfig(), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServerRun_ListenError(t *testing.T) {
	cfg := testServerConfig()
	cfg.Port = 99999

	err := New(cfg, discardLogger()).Run(context.Background())
	assert.Error(t, err)
}

func TestMaxBodySize(t *testing.T) {
	cfg := testServerConfig()
	cfg.MaxRequestSize = 100

	srv := New(cfg, discardLogger())
	srv.Engine().POST("/echo", func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}

		c.JSON(http.StatusOK, gin.H{"received": len(body)})
	})

	tests := []struct {
		name string
		size int
		want int
	}{
		{"under limit", 50, http.StatusOK},
		{"over limit", 200, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(strings.Repeat("x", tt.size)))
			srv.Engine().ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
		})
	}
}

// stalledPublisher never answers; it fails the way the x publisher does once
// the caller's deadline passes.
type stalledPublisher struct{}

func (stalledPublisher) Publish(ctx context.Context, _ string) (*domain.PublishReceipt, error) {
	<-ctx.Done()
	return nil, domain.NewPublishError(domain.PublishNetwork, 0, ctx.Err())
}

func TestSetupRouter_RequestTimeoutBoundsPost(t *testing.T) {
	logger := discardLogger()

	store := storage.NewJSONFileStore(filepath.Join(t.TempDir(), "quotes.json"), logger)
	require.NoError(t, store.Save(context.Background(), domain.QuoteSet{{Text: "Wait.", Author: "a", Theme: "patience"}}))

	svc := app.NewQuoteService(app.QuoteServiceConfig{
		Store:          store,
		Publisher:      stalledPublisher{},
		PublishTimeout: time.Minute,
		Logger:         logger,
	})

	engine := gin.New()
	SetupRouter(engine, RouterConfig{
		Logger:       logger,
		QuoteHandler: handlers.NewQuoteHandler(svc),
		Timeout:      50 * time.Millisecond,
	})

	start := time.Now()
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/posts", nil))

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)

	var body dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, dto.ErrorCodeTimeout, body.Error.Code)

	set, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, set[0].Used)
}
