package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"maintenance-monitor-backend/internal/analysis"
	"maintenance-monitor-backend/internal/ingest"
	"maintenance-monitor-backend/internal/model"
	"maintenance-monitor-backend/internal/parse"
	"maintenance-monitor-backend/internal/report"
	"maintenance-monitor-backend/internal/store"
)

// AnalysisRunner starts and tracks background batch analyses.
type AnalysisRunner interface {
	Start(ctx context.Context, opts analysis.Options) (string, bool)
	Get(id string) (*analysis.Run, bool)
}

// ReportBuilder aggregates a report without sending it.
type ReportBuilder interface {
	Build(ctx context.Context, req report.Request) (*report.Report, error)
}

// ReportSender builds and mails a report.
type ReportSender interface {
	Send(ctx context.Context, req report.Request) (*report.Report, error)
}

// Deps are the collaborators of the API handlers.
type Deps struct {
	Store    store.Store
	Recorder ingest.Recorder
	Analysis AnalysisRunner
	Builder  ReportBuilder
	Reports  ReportSender
	WebPush  *webpush.Options
	Clock    clock.PassiveClock
	Logger   *zap.Logger

	// Background outlives requests and bounds jobs they start.
	Background       context.Context
	AnalysisDefaults analysis.Options
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store            store.Store
	recorder         ingest.Recorder
	analysis         AnalysisRunner
	builder          ReportBuilder
	reports          ReportSender
	webpush          *webpush.Options
	clock            clock.PassiveClock
	logger           *zap.Logger
	background       context.Context
	analysisDefaults analysis.Options
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	if d.Background == nil {
		d.Background = context.Background()
	}
	if d.Clock == nil {
		d.Clock = clock.RealClock{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.AnalysisDefaults.MinSensorKinds == 0 {
		d.AnalysisDefaults = analysis.DefaultOptions()
	}
	return &Handler{
		store:            d.Store,
		recorder:         d.Recorder,
		analysis:         d.Analysis,
		builder:          d.Builder,
		reports:          d.Reports,
		webpush:          d.WebPush,
		clock:            d.Clock,
		logger:           d.Logger,
		background:       d.Background,
		analysisDefaults: d.AnalysisDefaults,
	}
}

// Healthz reports whether the database answers.
func (h *Handler) Healthz(c *gin.Context) {
	sqlDB, err := h.store.DB().DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Dashboard serves the landing page counters.
func (h *Handler) Dashboard(c *gin.Context) {
	stats, err := h.store.Dashboard(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// fail maps domain errors onto HTTP responses.
func (h *Handler) fail(c *gin.Context, err error) {
	var verr *parse.ValidationError
	switch {
	case errors.As(err, &verr):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": verr.Fields})
	case errors.Is(err, store.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, store.ErrConflict):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "already exists"})
	case errors.Is(err, model.ErrInvalidThresholds):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// bindOptionalJSON binds a JSON body when one was sent.
func bindOptionalJSON(c *gin.Context, obj any) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
