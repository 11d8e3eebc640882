package handlers

import (
	"embed"
	"html/template"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"

	"github.com/jsamuelsen/quotebot/internal/adapters/http/dto"
	"github.com/jsamuelsen/quotebot/internal/app"
	"github.com/jsamuelsen/quotebot/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

// flashParam carries a one-line confirmation across the post/redirect/get cycle.
const flashParam = "flash"

// WebHandler serves the HTML pages: the quote list with a theme picker and
// the add form.
type WebHandler struct {
	service QuoteService
	tmpl    *template.Template
}

// NewWebHandler parses the embedded templates.
func NewWebHandler(service QuoteService) (*WebHandler, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &WebHandler{service: service, tmpl: tmpl}, nil
}

type page struct {
	Title  string
	Flash  string
	Error  string
	Quotes domain.QuoteSet
	Themes []string
	Form   dto.CreateQuoteRequest
	Fields map[string]string
}

func (h *WebHandler) render(c *gin.Context, status int, name string, p page) {
	if p.Fields == nil {
		p.Fields = map[string]string{}
	}

	c.Render(status, render.HTML{Template: h.tmpl, Name: name, Data: p})
}

// Index handles GET /.
func (h *WebHandler) Index(c *gin.Context) {
	h.renderIndex(c, http.StatusOK, page{Flash: c.Query(flashParam)})
}

// renderIndex loads the collection into p. A load failure is shown on the
// page with the mapped status.
func (h *WebHandler) renderIndex(c *gin.Context, status int, p page) {
	p.Title = "Quotes"

	set, err := h.service.ListQuotes(c.Request.Context(), "")
	if err != nil {
		status, resp := dto.MapDomainError(err)
		p.Error = resp.Error.Message
		h.render(c, status, "index.html", p)

		return
	}

	p.Quotes = set
	p.Themes = domain.Themes(set)

	h.render(c, status, "index.html", p)
}

// AddForm handles GET /add.
func (h *WebHandler) AddForm(c *gin.Context) {
	p := page{Title: "Add a quote"}

	if themes, err := h.service.Themes(c.Request.Context()); err == nil {
		p.Themes = themes
	}

	h.render(c, http.StatusOK, "add.html", p)
}

// Add handles POST /add and redirects to / on success.
func (h *WebHandler) Add(c *gin.Context) {
	var form dto.CreateQuoteRequest

	if err := dto.BindFormAndValidate(c, &form); err != nil {
		h.render(c, http.StatusBadRequest, "add.html", page{
			Title:  "Add a quote",
			Error:  "Please fix the highlighted fields.",
			Form:   form,
			Fields: dto.ValidationErrors(err),
		})

		return
	}

	added, err := h.service.AddQuote(c.Request.Context(), form.Text, form.Author, form.Theme)
	if err != nil {
		status, resp := dto.MapDomainError(err)
		h.render(c, status, "add.html", page{
			Title:  "Add a quote",
			Error:  resp.Error.Message,
			Form:   form,
			Fields: resp.Error.Details,
		})

		return
	}

	redirectHome(c, "Added a quote to "+added.Quote.Theme+".")
}

// PostTheme handles POST /theme: publish a quote from the chosen theme and
// redirect to /.
func (h *WebHandler) PostTheme(c *gin.Context) {
	var req dto.PostRequest
	if err := dto.BindFormAndValidate(c, &req); err != nil {
		h.renderIndex(c, http.StatusBadRequest, page{Error: "invalid theme"})
		return
	}

	result, err := h.service.Post(c.Request.Context(), app.PostRequest{Mode: app.ModeTheme, Theme: req.Theme})
	if err != nil {
		status, resp := dto.MapDomainError(err)
		h.renderIndex(c, status, page{Error: resp.Error.Message})

		return
	}

	redirectHome(c, "Posted: "+result.Message)
}

// RegisterRoutes registers the pages on engine. guard wraps the form posts.
func (h *WebHandler) RegisterRoutes(engine *gin.Engine, guard gin.HandlerFunc) {
	engine.GET("/", h.Index)
	engine.GET("/add", h.AddForm)

	mutating := engine.Group("")
	if guard != nil {
		mutating.Use(guard)
	}

	mutating.POST("/add", h.Add)
	mutating.POST("/theme", h.PostTheme)
}

func redirectHome(c *gin.Context, flash string) {
	c.Redirect(http.StatusSeeOther, "/?"+url.Values{flashParam: {flash}}.Encode())
}
