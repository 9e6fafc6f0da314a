package opsapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"alertrelay/internal/deduplication"
	"alertrelay/internal/logger"
	"alertrelay/internal/pipeline"
	"alertrelay/internal/scheduler"
	"alertrelay/pkg/errors"
	"alertrelay/pkg/health"
)

type SummarySource interface {
	LastSummary() (pipeline.CycleSummary, bool)
}

type StatusSource interface {
	Status() scheduler.Status
}

type BucketReader interface {
	Buckets(ctx context.Context) ([]deduplication.BucketKey, error)
	Members(ctx context.Context, day deduplication.BucketKey) ([]string, error)
}

// StatusResponse is served by GET /api/v1/status. Scheduler is absent outside serve mode.
type StatusResponse struct {
	LastCycle *pipeline.CycleSummary `json:"lastCycle"`
	Scheduler *scheduler.Status      `json:"scheduler,omitempty"`
}

type BucketListResponse struct {
	Buckets []deduplication.BucketKey `json:"buckets"`
}

type BucketResponse struct {
	Day  deduplication.BucketKey `json:"day"`
	Keys []string                `json:"keys"`
}

type Handler struct {
	health    *health.CheckerRegistry
	summaries SummarySource
	scheduler StatusSource
	buckets   BucketReader
	logger    logger.Logger
}

func NewHandler(registry *health.CheckerRegistry, summaries SummarySource, sched StatusSource, buckets BucketReader, log logger.Logger) *Handler {
	return &Handler{
		health:    registry,
		summaries: summaries,
		scheduler: sched,
		buckets:   buckets,
		logger:    log,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", h.Status)

		dedup := v1.Group("/dedup")
		{
			dedup.GET("/buckets", h.ListBuckets)
			dedup.GET("/buckets/:day", h.GetBucket)
		}
	}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
}

// Health godoc
// @Summary      Service health
// @Description  Aggregated checker results. Degraded answers 200, unhealthy 503
// @Tags         health
// @Produce      json
// @Success      200  {object}  health.Health
// @Failure      503  {object}  health.Health
// @Router       /health [get]
func (h *Handler) Health(c *gin.Context) {
	result := h.health.Check(c.Request.Context())
	status := http.StatusOK
	if result.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, result)
}

// Status godoc
// @Summary      Pipeline status
// @Description  Last cycle summary and, in serve mode, the scheduler phase
// @Tags         status
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /api/v1/status [get]
func (h *Handler) Status(c *gin.Context) {
	var resp StatusResponse
	if h.summaries != nil {
		if s, ok := h.summaries.LastSummary(); ok {
			resp.LastCycle = &s
		}
	}
	if h.scheduler != nil {
		st := h.scheduler.Status()
		resp.Scheduler = &st
	}
	c.JSON(http.StatusOK, resp)
}

// ListBuckets godoc
// @Summary      List dedup buckets
// @Description  Lists the days that have a dedup bucket, oldest first
// @Tags         dedup
// @Produce      json
// @Success      200  {object}  BucketListResponse
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /api/v1/dedup/buckets [get]
func (h *Handler) ListBuckets(c *gin.Context) {
	days, err := h.buckets.Buckets(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	if days == nil {
		days = []deduplication.BucketKey{}
	}
	c.JSON(http.StatusOK, BucketListResponse{Buckets: days})
}

// GetBucket godoc
// @Summary      Get one dedup bucket
// @Description  Returns the identity keys committed for one local day
// @Tags         dedup
// @Produce      json
// @Param        day  path      string  true  "Local day as YYYYMMDD"
// @Success      200  {object}  BucketResponse
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /api/v1/dedup/buckets/{day} [get]
func (h *Handler) GetBucket(c *gin.Context) {
	day, err := deduplication.ParseBucketKey(c.Param("day"))
	if err != nil {
		h.handleError(c, errors.ErrValidation.WithCause(err).WithDetail("day", c.Param("day")))
		return
	}

	keys, err := h.buckets.Members(c.Request.Context(), day)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, BucketResponse{Day: day, Keys: keys})
}
