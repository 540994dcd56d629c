package model

import "time"

// ReadingStatus is the status derived from a sensor's thresholds when a reading is stored.
type ReadingStatus string

const (
	StatusNormal   ReadingStatus = "normal"
	StatusWarning  ReadingStatus = "alerta"
	StatusCritical ReadingStatus = "critico"
)

// Rank orders statuses by severity.
func (s ReadingStatus) Rank() int {
	switch s {
	case StatusCritical:
		return 2
	case StatusWarning:
		return 1
	}
	return 0
}

// Reading is one timestamped measurement from a sensor. Readings are append-only.
type Reading struct {
	ID         int64         `gorm:"primaryKey" json:"id"`
	SensorID   int64         `gorm:"not null;index:idx_lecturas_sensor_captured,priority:1" json:"sensor_id"`
	Value      float64       `gorm:"not null" json:"value"`
	CapturedAt time.Time     `gorm:"not null;index:idx_lecturas_sensor_captured,priority:2" json:"captured_at"`
	Status     ReadingStatus `gorm:"size:16;not null;index" json:"status"`
	CreatedAt  time.Time     `json:"created_at"`

	Sensor *Sensor `json:"-"`
}

// TableName keeps the table name used by the existing schema.
func (Reading) TableName() string {
	return "lecturas"
}
