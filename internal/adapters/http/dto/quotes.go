package dto

import (
	"time"

	"github.com/jsamuelsen/quotebot/internal/app"
	"github.com/jsamuelsen/quotebot/internal/domain"
)

// QuoteResponse is a stored quote. Index is its position in the collection.
type QuoteResponse struct {
	Index  int    `json:"index"`
	Text   string `json:"text"`
	Author string `json:"author"`
	Theme  string `json:"theme"`
	Used   bool   `json:"used"`
}

// ToQuoteResponse converts a domain quote at position i.
func ToQuoteResponse(i int, q domain.Quote) QuoteResponse {
	return QuoteResponse{Index: i, Text: q.Text, Author: q.Author, Theme: q.Theme, Used: q.Used}
}

// ListQuotesRequest is the query of GET /api/v1/quotes.
type ListQuotesRequest struct {
	PaginationRequest
	Theme string `form:"theme"`
}

// CreateQuoteRequest adds a quote. It binds from JSON and from the HTML form.
type CreateQuoteRequest struct {
	Text   string `json:"text"   form:"text"   validate:"notblank,max=1000"`
	Author string `json:"author" form:"author" validate:"max=200"`
	Theme  string `json:"theme"  form:"theme"  validate:"notblank,max=100"`
}

// PostRequest triggers a post. An empty body posts from a random theme.
type PostRequest struct {
	Theme string `json:"theme" form:"theme" validate:"max=100"`
	Mode  string `json:"mode"  form:"mode"  validate:"omitempty,oneof=random_theme theme any"`
}

// ToApp converts the request to an app.PostRequest. A theme without a mode
// means a themed post.
func (r PostRequest) ToApp() app.PostRequest {
	mode := app.PostMode(r.Mode)
	if mode == "" {
		mode = app.ModeRandomTheme
		if r.Theme != "" {
			mode = app.ModeTheme
		}
	}

	return app.PostRequest{Mode: mode, Theme: r.Theme}
}

// PostResponse reports a published quote.
type PostResponse struct {
	ID          string        `json:"id"`
	Message     string        `json:"message"`
	Quote       QuoteResponse `json:"quote"`
	Reset       bool          `json:"reset"`
	PublishedAt time.Time     `json:"publishedAt"`
}

// ToPostResponse converts an app result.
func ToPostResponse(r *app.PostResult) PostResponse {
	return PostResponse{
		ID:          r.Receipt.ID,
		Message:     r.Message,
		Quote:       ToQuoteResponse(r.Index, r.Quote),
		Reset:       r.Reset,
		PublishedAt: r.Receipt.PublishedAt,
	}
}

// ThemesResponse lists the distinct themes.
type ThemesResponse struct {
	Themes []string `json:"themes"`
}
