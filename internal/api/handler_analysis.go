package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"maintenance-monitor-backend/internal/analysis"
)

type analysisRequest struct {
	MinSensorKinds *int    `json:"min_sensor_kinds" binding:"omitempty,gte=1"`
	GenerateAlerts *bool   `json:"generate_alerts"`
	AnalysisType   *string `json:"tipo_analisis"`
}

// StartAnalysis handles POST /api/analysis. The run continues in the background; its id is
// returned with 202 Accepted.
func (h *Handler) StartAnalysis(c *gin.Context) {
	var req analysisRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opts := h.analysisDefaults
	if req.MinSensorKinds != nil {
		opts.MinSensorKinds = *req.MinSensorKinds
	}
	if req.GenerateAlerts != nil {
		opts.GenerateAlerts = *req.GenerateAlerts
	}
	if req.AnalysisType != nil && *req.AnalysisType != "" {
		opts.AnalysisType = *req.AnalysisType
	}

	id, started := h.analysis.Start(h.background, opts)
	if !started {
		c.JSON(http.StatusConflict, gin.H{"error": "an analysis is already running"})
		return
	}
	c.Header("Location", "/api/analysis/"+id)
	c.JSON(http.StatusAccepted, gin.H{"id": id, "estado": analysis.RunPending})
}

// GetAnalysis handles GET /api/analysis/:id.
func (h *Handler) GetAnalysis(c *gin.Context) {
	run, found := h.analysis.Get(c.Param("id"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "analysis run not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}
