package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"maintenance-monitor-backend/internal/model"
	"maintenance-monitor-backend/internal/store"
)

// ListAlerts handles GET /api/alerts?status=&severity=&equipment_id=&limit=.
func (h *Handler) ListAlerts(c *gin.Context) {
	filter := store.AlertFilter{
		Status:   model.AlertStatus(c.Query("status")),
		Severity: model.Severity(c.Query("severity")),
		Limit:    100,
	}
	if filter.Status != "" && filter.Status != model.AlertActive && filter.Status != model.AlertResolved {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}
	if filter.Severity != "" && !filter.Severity.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid severity"})
		return
	}
	if raw := c.Query("equipment_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid equipment_id"})
			return
		}
		filter.EquipmentID = &id
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		filter.Limit = min(n, 500)
	}

	alerts, err := h.store.ListAlerts(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, alerts)
}

// ResolveAlert handles PATCH /api/alerts/:id/resolve.
func (h *Handler) ResolveAlert(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	alert, err := h.store.ResolveAlert(c.Request.Context(), id, h.clock.Now())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}
