package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"maintenance-monitor-backend/internal/ingest"
	"maintenance-monitor-backend/internal/model"
)

const (
	defaultReadingsLimit = 50
	maxReadingsLimit     = 500
)

type readingResponse struct {
	Reading    model.Reading  `json:"lectura"`
	Alert      *model.Alert   `json:"alerta,omitempty"`
	Prediction map[string]any `json:"prediccion,omitempty"`
}

// CreateReading handles POST /api/sensors/:id/readings with the same payload as the MQTT topic.
func (h *Handler) CreateReading(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req ingest.ReadingMessage
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Value == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "valor is required"})
		return
	}
	var capturedAt time.Time
	if req.CapturedAt != nil {
		capturedAt = *req.CapturedAt
	}

	res, err := h.recorder.Record(c.Request.Context(), id, *req.Value, capturedAt, ingest.SourceHTTP)
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := readingResponse{Reading: res.Reading, Alert: res.Alert}
	if res.Prediction != nil {
		resp.Prediction = res.Prediction.Raw
	}
	c.JSON(http.StatusCreated, resp)
}

// ListReadings handles GET /api/sensors/:id/readings?limit=.
func (h *Handler) ListReadings(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	limit := defaultReadingsLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(n, maxReadingsLimit)
	}

	if _, err := h.store.GetSensor(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	readings, err := h.store.ListReadings(c.Request.Context(), id, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, readings)
}
