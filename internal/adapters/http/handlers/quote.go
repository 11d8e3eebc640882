package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/quotebot/internal/adapters/http/dto"
	"github.com/jsamuelsen/quotebot/internal/app"
	"github.com/jsamuelsen/quotebot/internal/domain"
)

// QuoteService is the application surface the HTTP handlers drive.
// *app.QuoteService implements it.
type QuoteService interface {
	Post(ctx context.Context, req app.PostRequest) (*app.PostResult, error)
	AddQuote(ctx context.Context, text, author, theme string) (app.AddedQuote, error)
	ListQuotes(ctx context.Context, theme string) (domain.QuoteSet, error)
	Themes(ctx context.Context) ([]string, error)
}

// QuoteHandler serves the JSON API.
type QuoteHandler struct {
	service QuoteService
}

// NewQuoteHandler creates a new quote handler.
func NewQuoteHandler(service QuoteService) *QuoteHandler {
	return &QuoteHandler{service: service}
}

// ListQuotes handles GET /api/v1/quotes.
//
// @Summary List quotes
// @Tags quotes
// @Produce json
// @Param theme query string false "Only quotes with this theme"
// @Param cursor query string false "Cursor from a previous page"
// @Param limit query int false "Page size (1-100)"
// @Success 200 {object} dto.PaginatedResponse[dto.QuoteResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /api/v1/quotes [get]
func (h *QuoteHandler) ListQuotes(c *gin.Context) {
	var req dto.ListQuotesRequest
	if err := dto.BindQueryAndValidate(c, &req); err != nil {
		respondBindError(c, err)
		return
	}

	set, err := h.service.ListQuotes(c.Request.Context(), "")
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	// Indexes refer to the whole collection, so filter after numbering.
	items := make([]dto.QuoteResponse, 0, len(set))
	for i, q := range set {
		if req.Theme == "" || q.Theme == req.Theme {
			items = append(items, dto.ToQuoteResponse(i, q))
		}
	}

	page, err := dto.Paginate(items, req.PaginationRequest, req.Theme)
	if err != nil {
		dto.AbortWithCode(c, dto.ErrorCodeBadRequest, err.Error())
		return
	}

	c.JSON(http.StatusOK, page)
}

// CreateQuote handles POST /api/v1/quotes.
//
// @Summary Add a quote
// @Tags quotes
// @Accept json
// @Produce json
// @Success 201 {object} dto.QuoteResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /api/v1/quotes [post]
func (h *QuoteHandler) CreateQuote(c *gin.Context) {
	var req dto.CreateQuoteRequest
	if err := dto.BindAndValidate(c, &req); err != nil {
		respondBindError(c, err)
		return
	}

	added, err := h.service.AddQuote(c.Request.Context(), req.Text, req.Author, req.Theme)
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToQuoteResponse(added.Index, added.Quote))
}

// ListThemes handles GET /api/v1/themes.
func (h *QuoteHandler) ListThemes(c *gin.Context) {
	themes, err := h.service.Themes(c.Request.Context())
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	if themes == nil {
		themes = []string{}
	}

	c.JSON(http.StatusOK, dto.ThemesResponse{Themes: themes})
}

// CreatePost handles POST /api/v1/posts. The body is optional:
// {"theme": "wisdom"} posts from one theme, {"mode": "any"} from the whole
// collection, and no body from a random theme.
//
// @Summary Publish a quote now
// @Tags posts
// @Accept json
// @Produce json
// @Success 201 {object} dto.PostResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Router /api/v1/posts [post]
func (h *QuoteHandler) CreatePost(c *gin.Context) {
	var req dto.PostRequest

	if c.Request.ContentLength != 0 {
		err := dto.BindAndValidate(c, &req)
		if err != nil && !errors.Is(err, io.EOF) {
			respondBindError(c, err)
			return
		}
	}

	result, err := h.service.Post(c.Request.Context(), req.ToApp())
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToPostResponse(result))
}

// RegisterRoutes registers the API on rg. guard wraps the mutating routes.
func (h *QuoteHandler) RegisterRoutes(rg *gin.RouterGroup, guard gin.HandlerFunc) {
	rg.GET("/quotes", h.ListQuotes)
	rg.GET("/themes", h.ListThemes)

	mutating := rg.Group("")
	if guard != nil {
		mutating.Use(guard)
	}

	mutating.POST("/quotes", h.CreateQuote)
	mutating.POST("/posts", h.CreatePost)
}

// respondBindError writes a 400 for binding or struct validation failures.
func respondBindError(c *gin.Context, err error) {
	if dto.IsValidationError(err) {
		resp := dto.NewErrorResponseWithDetails(dto.ErrorCodeValidation, "request validation failed", dto.ValidationErrors(err))
		c.JSON(http.StatusBadRequest, resp.WithTraceID(dto.GetTraceID(c)))

		return
	}

	dto.AbortWithCode(c, dto.ErrorCodeBadRequest, "malformed request body")
}
