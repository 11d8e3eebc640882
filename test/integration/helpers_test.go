//go:build integration

package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jsamuelsen/quotebot/internal/platform/config"
)

// fakeX imitates the X API v2 create-post endpoint. By default it accepts
// every post; reject switches it to answer with a fixed status and body.
type fakeX struct {
	*httptest.Server

	mu      sync.Mutex
	posts   []string
	auth    []string
	calls   int
	status  int
	body    string
	headers map[string]string
	delay   time.Duration
}

func newFakeX(t *testing.T) *fakeX {
	t.Helper()

	f := &fakeX{}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.Close)

	return f
}

func (f *fakeX) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/2/tweets" {
		http.NotFound(w, r)
		return
	}

	f.mu.Lock()
	f.calls++
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	status, body, headers, delay := f.status, f.body, f.headers, f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	for k, v := range headers {
		w.Header().Set(k, v)
	}

	w.Header().Set("Content-Type", "application/json")

	if status != 0 {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)

		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.posts = append(f.posts, req.Text)
	id := fmt.Sprintf("18%05d", len(f.posts))
	f.mu.Unlock()

	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": map[string]string{"id": id, "text": req.Text},
	})
}

// reject makes every following request fail with status and body.
func (f *fakeX) reject(status int, body string, headers map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.status, f.body, f.headers = status, body, headers
}

func (f *fakeX) accept() {
	f.reject(0, "", nil)
}

func (f *fakeX) slow(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.delay = d
}

func (f *fakeX) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.posts...)
}

func (f *fakeX) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}

func (f *fakeX) authHeaders() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.auth...)
}

// publisherConfig targets the x driver at baseURL with a bearer token.
func publisherConfig(baseURL string) *config.PublisherConfig {
	return &config.PublisherConfig{
		Driver:    config.PublisherDriverX,
		BaseURL:   baseURL,
		Timeout:   2 * time.Second,
		MaxLength: 280,
		Credentials: config.CredentialsConfig{
			BearerToken: "integration-token",
		},
	}
}

// clientConfig keeps retries and circuit windows short.
func clientConfig() *config.ClientConfig {
	return &config.ClientConfig{
		Timeout: 2 * time.Second,
		Retry: config.RetryConfig{
			MaxAttempts:     2,
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     50 * time.Millisecond,
			Multiplier:      2.0,
		},
		CircuitBreaker: config.CircuitBreakerConfig{
			MaxFailures:   3,
			Timeout:       200 * time.Millisecond,
			HalfOpenLimit: 1,
		},
		Transport: config.TransportConfig{
			MaxIdleConns:        4,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     time.Second,
		},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
