package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"maintenance-monitor-backend/internal/model"
	"maintenance-monitor-backend/internal/parse"
	"maintenance-monitor-backend/internal/store"
)

// ListEquipment handles GET /api/equipment?status=&type=.
func (h *Handler) ListEquipment(c *gin.Context) {
	filter := store.EquipmentFilter{
		Status: model.EquipmentStatus(c.Query("status")),
		Type:   c.Query("type"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	equipment, err := h.store.ListEquipment(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, equipment)
}

type createEquipmentRequest struct {
	Code           string     `json:"code"`
	Name           string     `json:"name" binding:"required"`
	Type           string     `json:"type" binding:"required"`
	Location       string     `json:"location" binding:"required"`
	Description    string     `json:"description"`
	InstalledAt    *time.Time `json:"installed_at"`
	OperatingHours *float64   `json:"operating_hours" binding:"omitempty,gte=0"`
}

// CreateEquipment handles POST /api/equipment.
func (h *Handler) CreateEquipment(c *gin.Context) {
	var req createEquipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in, err := parse.Equipment(parse.EquipmentInput{
		Code:        req.Code,
		Name:        req.Name,
		Type:        req.Type,
		Location:    req.Location,
		Description: req.Description,
		InstalledAt: req.InstalledAt,
	}, h.clock.Now())
	if err != nil {
		h.fail(c, err)
		return
	}

	eq := &model.Equipment{
		Name:           in.Name,
		Type:           in.Type,
		Location:       in.Location,
		Description:    in.Description,
		InstalledAt:    in.InstalledAt,
		OperatingHours: req.OperatingHours,
		Status:         model.EquipmentActive,
	}
	if in.Code != "" {
		eq.Code = &in.Code
	}
	if err := h.store.CreateEquipment(c.Request.Context(), eq); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, eq)
}

// GetEquipment handles GET /api/equipment/:id.
func (h *Handler) GetEquipment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	eq, err := h.store.GetEquipment(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, eq)
}

type statusRequest struct {
	Status model.EquipmentStatus `json:"status" binding:"required"`
}

// UpdateEquipmentStatus handles PATCH /api/equipment/:id/status.
func (h *Handler) UpdateEquipmentStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	eq, err := h.store.UpdateEquipmentStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, eq)
}

// DeleteEquipment handles DELETE /api/equipment/:id.
func (h *Handler) DeleteEquipment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteEquipment(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type techniciansRequest struct {
	UserIDs []int64 `json:"user_ids"`
}

// AssignTechnicians handles PUT /api/equipment/:id/technicians.
func (h *Handler) AssignTechnicians(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req techniciansRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.AssignTechnicians(c.Request.Context(), id, req.UserIDs); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListSensors handles GET /api/equipment/:id/sensors.
func (h *Handler) ListSensors(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if _, err := h.store.GetEquipment(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	sensors, err := h.store.ListSensors(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sensors)
}

type createSensorRequest struct {
	Kind          string   `json:"kind" binding:"required"`
	RangeMin      *float64 `json:"range_min"`
	RangeMax      *float64 `json:"range_max"`
	LowThreshold  *float64 `json:"low_threshold"`
	HighThreshold *float64 `json:"high_threshold"`
}

// CreateSensor handles POST /api/equipment/:id/sensors.
func (h *Handler) CreateSensor(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req createSensorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sensor := &model.Sensor{
		EquipmentID:   id,
		Kind:          req.Kind,
		RangeMin:      req.RangeMin,
		RangeMax:      req.RangeMax,
		LowThreshold:  req.LowThreshold,
		HighThreshold: req.HighThreshold,
	}
	if err := sensor.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.CreateSensor(c.Request.Context(), sensor); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sensor)
}

// GetSensor handles GET /api/sensors/:id.
func (h *Handler) GetSensor(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	sensor, err := h.store.GetSensor(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sensor)
}
