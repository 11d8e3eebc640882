// Package handlers provides HTTP request handlers for the service.
package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jsamuelsen/quotebot/internal/adapters/scheduler"
	"github.com/jsamuelsen/quotebot/internal/ports"
)

// BuildInfo contains build-time information injected with ldflags.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
}

// NewBuildInfo creates a BuildInfo with the Go version automatically set.
func NewBuildInfo(version, commit, buildTime string) BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
	}
}

// SchedulerStatus is the read side of the scheduler. *scheduler.Scheduler implements it.
type SchedulerStatus interface {
	Next() time.Time
	History() []scheduler.RunRecord
}

// HealthHandler serves the operational endpoints under /-/.
type HealthHandler struct {
	registry  ports.HealthRegistry
	buildInfo BuildInfo
	metrics   http.Handler
	scheduler SchedulerStatus
}

// HealthOption configures a HealthHandler.
type HealthOption func(*HealthHandler)

// WithGatherer serves /-/metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) HealthOption {
	return func(h *HealthHandler) {
		h.metrics = promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	}
}

// WithScheduler exposes scheduler status at /-/scheduler.
func WithScheduler(s SchedulerStatus) HealthOption {
	return func(h *HealthHandler) {
		h.scheduler = s
	}
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(registry ports.HealthRegistry, buildInfo BuildInfo, opts ...HealthOption) *HealthHandler {
	h := &HealthHandler{
		registry:  registry,
		buildInfo: buildInfo,
		metrics:   promhttp.Handler(),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

type livenessResponse struct {
	Status string `json:"status"`
}

// Liveness handles /-/live. It never checks dependencies.
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, livenessResponse{Status: "ok"})
}

type readinessResponse struct {
	Status string                        `json:"status"`
	Checks map[string]*ports.CheckResult `json:"checks,omitempty"`
}

// Readiness handles /-/ready: 200 when every registered check passes,
// 503 otherwise. The store and the publisher register checks.
func (h *HealthHandler) Readiness(c *gin.Context) {
	result := h.registry.CheckAll(c.Request.Context())

	status := http.StatusOK
	if result.Status == ports.HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, readinessResponse{
		Status: string(result.Status),
		Checks: result.Checks,
	})
}

// BuildInfoHandler handles /-/build.
func (h *HealthHandler) BuildInfoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, h.buildInfo)
}

type schedulerRun struct {
	ID         string    `json:"id"`
	Started    time.Time `json:"started"`
	DurationMS int64     `json:"durationMs"`
	PostID     string    `json:"postId,omitempty"`
	Reset      bool      `json:"reset,omitempty"`
	Error      string    `json:"error,omitempty"`
}

type schedulerResponse struct {
	Running bool           `json:"running"`
	Next    *time.Time     `json:"next,omitempty"`
	Runs    []schedulerRun `json:"runs"`
}

// Scheduler handles /-/scheduler: next fire time and recent runs, newest first.
func (h *HealthHandler) Scheduler(c *gin.Context) {
	if h.scheduler == nil {
		c.JSON(http.StatusOK, schedulerResponse{Runs: []schedulerRun{}})
		return
	}

	history := h.scheduler.History()
	resp := schedulerResponse{Runs: make([]schedulerRun, 0, len(history))}

	if next := h.scheduler.Next(); !next.IsZero() {
		resp.Running = true
		resp.Next = &next
	}

	for i := len(history) - 1; i >= 0; i-- {
		r := history[i]
		resp.Runs = append(resp.Runs, schedulerRun{
			ID:         r.ID,
			Started:    r.Started,
			DurationMS: r.Duration.Milliseconds(),
			PostID:     r.PostID,
			Reset:      r.Reset,
			Error:      r.Error,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// RegisterHealthRoutes registers the operational routes on rg:
//   - GET /live
//   - GET /ready
//   - GET /build
//   - GET /metrics
//   - GET /scheduler
func (h *HealthHandler) RegisterHealthRoutes(rg *gin.RouterGroup) {
	rg.GET("/live", h.Liveness)
	rg.GET("/ready", h.Readiness)
	rg.GET("/build", h.BuildInfoHandler)
	rg.GET("/metrics", gin.WrapH(h.metrics))
	rg.GET("/scheduler", h.Scheduler)
}

// RegisterHealthRoutesOnEngine registers the routes under /-/.
func (h *HealthHandler) RegisterHealthRoutesOnEngine(engine *gin.Engine) {
	h.RegisterHealthRoutes(engine.Group("/-"))
}
