// Package httpapi implements the HTTP trigger surfaces of the lead engine.
//
// All routes except /health* expect an x-user-id header forwarded by the
// Gateway.
//
// Routes:
//
//	GET  /health                   → liveness
//	GET  /health/engine            → scheduler record, job and lead counters
//	GET  /jobs                     → list the caller's monitoring jobs
//	POST /products/{id}/monitor    → ensure an active job for a product
//	POST /jobs/{id}/pause          → pause a job
//	POST /jobs/{id}/resume         → resume a job (due immediately)
//	POST /jobs/{id}/run            → force-run a job now, synchronously
//	POST /search                   → quota-limited ad-hoc search
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/truleado/truleado-sub002/internal/adhoc"
	"github.com/truleado/truleado-sub002/internal/jobs"
	"github.com/truleado/truleado-sub002/internal/model"
	"github.com/truleado/truleado-sub002/internal/platform"
	"github.com/truleado/truleado-sub002/internal/products"
	"github.com/truleado/truleado-sub002/internal/scheduler"
)

const userIDKey = "userID"

// ─── Dependencies ────────────────────────────────────────────────────────────

// JobService is the user-facing job API.
type JobService interface {
	Monitor(ctx context.Context, userID, productID string) (model.Job, bool, error)
	Pause(ctx context.Context, userID, jobID string) (model.Job, error)
	Resume(ctx context.Context, userID, jobID string) (model.Job, error)
	List(ctx context.Context, userID string) ([]model.Job, error)
}

// Runner force-runs jobs and reports the scheduler's state.
type Runner interface {
	RunNow(ctx context.Context, userID, jobID string) (scheduler.Report, error)
	Status(ctx context.Context) (scheduler.Status, error)
	InFlight() int
}

// AdhocSearcher runs interactive searches.
type AdhocSearcher interface {
	Search(ctx context.Context, req adhoc.Request) (adhoc.Response, error)
}

// JobCounter reports jobs per status.
type JobCounter interface {
	CountByStatus(ctx context.Context) (map[model.JobStatus]int, error)
}

// LeadCounter reports recent lead creation.
type LeadCounter interface {
	CountSince(ctx context.Context, since time.Time) (int, error)
}

// Deps groups the Handler's collaborators.
type Deps struct {
	Jobs    JobService
	Runner  Runner
	Adhoc   AdhocSearcher
	JobsN   JobCounter
	LeadsN  LeadCounter
	Version string
	Logger  *slog.Logger
}

// ─── Handler ─────────────────────────────────────────────────────────────────

// Handler holds shared dependencies.
type Handler struct {
	deps   Deps
	now    func() time.Time
	logger *slog.Logger
}

// NewHandler returns a configured Handler.
func NewHandler(deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{deps: deps, now: time.Now, logger: logger}
}

// RegisterRoutes mounts all engine routes on r.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.health)
	r.GET("/health/engine", h.engineHealth)

	authed := r.Group("/", requireUser)
	authed.GET("/jobs", h.listJobs)
	authed.POST("/products/:id/monitor", h.monitorProduct)
	authed.POST("/jobs/:id/pause", h.pauseJob)
	authed.POST("/jobs/:id/resume", h.resumeJob)
	authed.POST("/jobs/:id/run", h.runJob)
	authed.POST("/search", h.search)
}

// NewRouter returns a gin engine with recovery and the engine routes.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.accessLog)
	h.RegisterRoutes(r)
	return r
}

func requireUser(c *gin.Context) {
	userID := c.GetHeader("x-user-id")
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing x-user-id header"})
		return
	}
	c.Set(userIDKey, userID)
	c.Next()
}

func (h *Handler) accessLog(c *gin.Context) {
	start := h.now()
	c.Next()
	h.logger.Debug("http request",
		"method", c.Request.Method, "path", c.FullPath(),
		"status", c.Writer.Status(), "duration", time.Since(start))
}

// ─── Health ──────────────────────────────────────────────────────────────────

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "lead-engine",
		"version": h.deps.Version,
	})
}

type engineHealth struct {
	Status       string                  `json:"status"`
	Scheduler    scheduler.Status        `json:"scheduler"`
	InFlight     int                     `json:"inFlight"`
	Jobs         map[model.JobStatus]int `json:"jobs"`
	LeadsLast24h int                     `json:"leadsLast24h"`
	Errors       []string                `json:"errors,omitempty"`
}

func (h *Handler) engineHealth(c *gin.Context) {
	ctx := c.Request.Context()
	resp := engineHealth{Status: "ok", InFlight: h.deps.Runner.InFlight()}

	st, err := h.deps.Runner.Status(ctx)
	if err != nil {
		resp.Errors = append(resp.Errors, "scheduler status: "+err.Error())
	}
	resp.Scheduler = st
	if st.State != scheduler.StateRunning {
		resp.Status = "degraded"
	}

	if resp.Jobs, err = h.deps.JobsN.CountByStatus(ctx); err != nil {
		resp.Errors = append(resp.Errors, "job counts: "+err.Error())
	}
	if resp.LeadsLast24h, err = h.deps.LeadsN.CountSince(ctx, h.now().Add(-24*time.Hour)); err != nil {
		resp.Errors = append(resp.Errors, "lead counts: "+err.Error())
	}
	if len(resp.Errors) > 0 {
		resp.Status = "degraded"
	}

	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

// ─── Jobs ────────────────────────────────────────────────────────────────────

func (h *Handler) listJobs(c *gin.Context) {
	list, err := h.deps.Jobs.List(c.Request.Context(), c.GetString(userIDKey))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) monitorProduct(c *gin.Context) {
	job, created, err := h.deps.Jobs.Monitor(c.Request.Context(), c.GetString(userIDKey), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	c.JSON(code, job)
}

func (h *Handler) pauseJob(c *gin.Context) {
	job, err := h.deps.Jobs.Pause(c.Request.Context(), c.GetString(userIDKey), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *Handler) resumeJob(c *gin.Context) {
	job, err := h.deps.Jobs.Resume(c.Request.Context(), c.GetString(userIDKey), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *Handler) runJob(c *gin.Context) {
	rep, err := h.deps.Runner.RunNow(c.Request.Context(), c.GetString(userIDKey), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// ─── Ad-hoc search ───────────────────────────────────────────────────────────

func (h *Handler) search(c *gin.Context) {
	var req adhoc.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	req.UserID = c.GetString(userIDKey)

	resp, err := h.deps.Adhoc.Search(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ─── Errors ──────────────────────────────────────────────────────────────────

func (h *Handler) writeError(c *gin.Context, err error) {
	var ve *jobs.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Msg})
	case errors.Is(err, jobs.ErrNotFound), errors.Is(err, products.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, jobs.ErrAlreadyClaimed), errors.Is(err, jobs.ErrJobPaused), errors.Is(err, jobs.ErrProductInactive):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, adhoc.ErrQuotaExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.Is(err, platform.ErrCredentialExpired):
		c.JSON(http.StatusBadGateway, gin.H{"error": "platform credential expired: reconnect the account"})
	default:
		h.logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
