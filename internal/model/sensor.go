package model

import (
	"errors"
	"time"
)

// Well-known sensor kinds. The set is open; these are the ones the predictor understands.
const (
	KindTemperature = "temperatura"
	KindVibration   = "vibracion"
	KindPressure    = "presion"
)

// ErrInvalidThresholds is returned when a sensor's low threshold exceeds its high threshold.
var ErrInvalidThresholds = errors.New("low threshold must not exceed high threshold")

// Sensor is a measurement source attached to a piece of equipment.
type Sensor struct {
	ID            int64     `gorm:"primaryKey" json:"id"`
	EquipmentID   int64     `gorm:"index;not null" json:"equipment_id"`
	Kind          string    `gorm:"size:50;not null;index" json:"kind"`
	RangeMin      *float64  `json:"range_min,omitempty"`
	RangeMax      *float64  `json:"range_max,omitempty"`
	LowThreshold  *float64  `json:"low_threshold,omitempty"`
	HighThreshold *float64  `json:"high_threshold,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Associations
	Equipment *Equipment `json:"equipment,omitempty"`
	Readings  []Reading  `gorm:"foreignKey:SensorID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName keeps the table name used by the existing schema.
func (Sensor) TableName() string {
	return "sensores"
}

// Validate checks the threshold and range invariants.
func (s *Sensor) Validate() error {
	if s.LowThreshold != nil && s.HighThreshold != nil && *s.LowThreshold > *s.HighThreshold {
		return ErrInvalidThresholds
	}
	if s.RangeMin != nil && s.RangeMax != nil && *s.RangeMin > *s.RangeMax {
		return errors.New("range_min must not exceed range_max")
	}
	return nil
}
