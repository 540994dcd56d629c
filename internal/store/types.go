package store

import "maintenance-monitor-backend/internal/model"

// EquipmentFilter narrows equipment listings. Zero values match everything.
type EquipmentFilter struct {
	Status model.EquipmentStatus
	Type   string
}

// AlertFilter narrows alert listings. Zero values match everything.
type AlertFilter struct {
	Status      model.AlertStatus
	Severity    model.Severity
	EquipmentID *int64
	Limit       int
}

// CriticalEquipment is one row of the critical equipment section of a report.
type CriticalEquipment struct {
	EquipmentID      int64  `json:"id"`
	Name             string `json:"nombre"`
	Location         string `json:"ubicacion"`
	CriticalReadings int64  `json:"alertas_recientes"`
}

// DashboardStats is the summary served to the dashboard.
type DashboardStats struct {
	TotalEquipment int64                    `json:"total_equipos"`
	TotalSensors   int64                    `json:"total_sensores"`
	ActiveAlerts   int64                    `json:"alertas_activas"`
	RecentAlerts   []model.Alert            `json:"alertas_recientes"`
	BySeverity     map[model.Severity]int64 `json:"alertas_por_severidad"`
}
