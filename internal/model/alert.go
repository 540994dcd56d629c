package model

import (
	"time"

	"gorm.io/datatypes"
)

// Severity is the canonical alert severity set.
type Severity string

const (
	SeverityLow      Severity = "bajo"
	SeverityMedium   Severity = "medio"
	SeverityHigh     Severity = "alto"
	SeverityCritical Severity = "critico"
)

// Rank orders severities; unknown values rank lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	}
	return 0
}

// Valid reports whether s is one of the canonical severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// MaxSeverity returns the more severe of a and b.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

const (
	AlertActive   AlertStatus = "activa"
	AlertResolved AlertStatus = "resuelta"
)

// AlertSource records which path created an alert.
type AlertSource string

const (
	SourceCriticalReading AlertSource = "lectura_critica"
	SourcePrediction      AlertSource = "prediccion"
)

// Alert is a derived, deduplicated record of a threshold or risk breach.
type Alert struct {
	ID           int64             `gorm:"primaryKey" json:"id"`
	EquipmentID  *int64            `gorm:"index:idx_alertas_dedup,priority:1" json:"equipment_id,omitempty"`
	SensorID     *int64            `gorm:"index:idx_alertas_dedup,priority:2" json:"sensor_id,omitempty"`
	ReadingID    *int64            `gorm:"index" json:"reading_id,omitempty"`
	Severity     Severity          `gorm:"size:16;not null;index" json:"severity"`
	Source       AlertSource       `gorm:"size:32;not null" json:"source"`
	FailureType  string            `gorm:"size:100;not null" json:"failure_type"`
	Title        string            `gorm:"size:200" json:"title"`
	Description  string            `gorm:"type:text" json:"description,omitempty"`
	TriggerValue *float64          `json:"trigger_value,omitempty"`
	Occurrences  int               `gorm:"not null;default:1" json:"occurrences"`
	Status       AlertStatus       `gorm:"size:16;not null;default:activa;index:idx_alertas_dedup,priority:3" json:"status"`
	Prediction   datatypes.JSONMap `json:"prediction,omitempty"`
	LastSeenAt   time.Time         `gorm:"not null" json:"last_seen_at"`
	CreatedAt    time.Time         `gorm:"index:idx_alertas_dedup,priority:4" json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`

	Equipment *Equipment `gorm:"constraint:OnDelete:SET NULL" json:"equipment,omitempty"`
}

// TableName keeps the table name used by the existing schema.
func (Alert) TableName() string {
	return "alertas"
}
