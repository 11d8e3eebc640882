package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/quotebot/internal/domain"
)

func webRouter(t *testing.T, store *memStore, pub *stubPublisher) *gin.Engine {
	t.Helper()

	h, err := NewWebHandler(newService(store, pub))
	require.NoError(t, err)

	router := gin.New()
	h.RegisterRoutes(router, nil)

	return router
}

func postForm(router *gin.Engine, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w
}

func TestWebHandler_Index(t *testing.T) {
	router := webRouter(t, &memStore{set: sampleQuotes()}, &stubPublisher{})

	w := get(t, router, "/?flash=Posted")

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, body, "Be water")
	assert.Contains(t, body, `<option value="philosophy">`)
	assert.Contains(t, body, "Posted")
}

func TestWebHandler_IndexEscapesQuotes(t *testing.T) {
	set := domain.QuoteSet{{Text: "<script>alert(1)</script>", Author: "x", Theme: "t"}}
	router := webRouter(t, &memStore{set: set}, &stubPublisher{})

	w := get(t, router, "/")

	assert.NotContains(t, w.Body.String(), "<script>alert(1)</script>")
	assert.Contains(t, w.Body.String(), "&lt;script&gt;")
}

func TestWebHandler_IndexStorageError(t *testing.T) {
	store := &memStore{loadErr: domain.NewStorageError("read", "quotes.json", errors.New("no such file"))}
	router := webRouter(t, store, &stubPublisher{})

	w := get(t, router, "/")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "no such file")
}

func TestWebHandler_AddForm(t *testing.T) {
	router := webRouter(t, &memStore{set: sampleQuotes()}, &stubPublisher{})

	w := get(t, router, "/add")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `<form method="post" action="/add">`)
	assert.Contains(t, w.Body.String(), `<option value="wisdom">`)
}

func TestWebHandler_Add(t *testing.T) {
	store := &memStore{set: sampleQuotes()}
	router := webRouter(t, store, &stubPublisher{})

	w := postForm(router, "/add", url.Values{"text": {"Amor fati"}, "author": {"Nietzsche"}, "theme": {"stoic"}})

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "/?flash="))
	require.Len(t, store.set, 4)
	assert.Equal(t, domain.Quote{Text: "Amor fati", Author: "Nietzsche", Theme: "stoic"}, store.set[3])
}

func TestWebHandler_AddInvalid(t *testing.T) {
	store := &memStore{set: sampleQuotes()}
	router := webRouter(t, store, &stubPublisher{})

	w := postForm(router, "/add", url.Values{"text": {"Amor fati"}, "author": {"Nietzsche"}, "theme": {" "}})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "must not be empty")
	assert.Contains(t, w.Body.String(), "Amor fati")
	assert.Zero(t, store.saves)
}

func TestWebHandler_PostTheme(t *testing.T) {
	store := &memStore{set: sampleQuotes()}
	pub := &stubPublisher{}
	router := webRouter(t, store, pub)

	w := postForm(router, "/theme", url.Values{"theme": {"philosophy"}})

	assert.Equal(t, http.StatusSeeOther, w.Code)
	require.Len(t, pub.messages, 1)
	assert.Equal(t, `"I think, therefore I am" - Descartes`, pub.messages[0])
	assert.True(t, store.set[1].Used)
}

func TestWebHandler_PostThemeFailure(t *testing.T) {
	store := &memStore{set: sampleQuotes()}
	pub := &stubPublisher{err: domain.NewPublishError(domain.PublishRateLimited, 429, errors.New("too many requests"))}
	router := webRouter(t, store, pub)

	w := postForm(router, "/theme", url.Values{"theme": {"wisdom"}})

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "rate_limited")
	assert.Zero(t, store.saves)
	assert.False(t, store.set[0].Used)
}

func TestWebHandler_PostThemeMissing(t *testing.T) {
	router := webRouter(t, &memStore{set: sampleQuotes()}, &stubPublisher{})

	w := postForm(router, "/theme", url.Values{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
