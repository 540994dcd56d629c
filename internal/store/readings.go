package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"maintenance-monitor-backend/internal/model"
)

func (s *gormStore) ListSensors(ctx context.Context, equipmentID int64) ([]model.Sensor, error) {
	var sensors []model.Sensor
	if err := s.db.WithContext(ctx).Where("equipment_id = ?", equipmentID).Order("id").Find(&sensors).Error; err != nil {
		return nil, fmt.Errorf("failed to list sensors of equipment %d: %w", equipmentID, err)
	}
	return sensors, nil
}

// GetSensor loads a sensor with its equipment.
func (s *gormStore) GetSensor(ctx context.Context, id int64) (*model.Sensor, error) {
	var sensor model.Sensor
	if err := s.db.WithContext(ctx).Preload("Equipment").First(&sensor, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &sensor, nil
}

// CreateSensor validates the thresholds and inserts the sensor under an existing equipment.
func (s *gormStore) CreateSensor(ctx context.Context, sensor *model.Sensor) error {
	if err := sensor.Validate(); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var eq model.Equipment
		if err := tx.Select("id").First(&eq, sensor.EquipmentID).Error; err != nil {
			return notFound(err)
		}
		if err := tx.Omit("Equipment", "Readings").Create(sensor).Error; err != nil {
			return fmt.Errorf("failed to create sensor for equipment %d: %w", sensor.EquipmentID, err)
		}
		return nil
	})
}

// CreateReading appends a reading. Readings are never updated.
func (s *gormStore) CreateReading(ctx context.Context, reading *model.Reading) error {
	if err := s.db.WithContext(ctx).Omit("Sensor").Create(reading).Error; err != nil {
		return fmt.Errorf("failed to store reading for sensor %d: %w", reading.SensorID, err)
	}
	return nil
}

// ListReadings returns the most recent readings of a sensor, newest first.
func (s *gormStore) ListReadings(ctx context.Context, sensorID int64, limit int) ([]model.Reading, error) {
	if limit <= 0 {
		limit = 100
	}
	var readings []model.Reading
	err := s.db.WithContext(ctx).
		Where("sensor_id = ?", sensorID).
		Order("captured_at DESC").
		Limit(limit).
		Find(&readings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list readings of sensor %d: %w", sensorID, err)
	}
	return readings, nil
}

// LatestReadingsByKind returns, for each sensor kind of the equipment, its most recent reading.
func (s *gormStore) LatestReadingsByKind(ctx context.Context, equipmentID int64) (map[string]model.Reading, error) {
	sensors, err := s.ListSensors(ctx, equipmentID)
	if err != nil {
		return nil, err
	}

	latest := make(map[string]model.Reading, len(sensors))
	for _, sensor := range sensors {
		var readings []model.Reading
		err := s.db.WithContext(ctx).
			Where("sensor_id = ?", sensor.ID).
			Order("captured_at DESC").
			Limit(1).
			Find(&readings).Error
		if err != nil {
			return nil, fmt.Errorf("failed to load latest reading of sensor %d: %w", sensor.ID, err)
		}
		if len(readings) == 0 {
			continue
		}
		if cur, ok := latest[sensor.Kind]; !ok || readings[0].CapturedAt.After(cur.CapturedAt) {
			latest[sensor.Kind] = readings[0]
		}
	}
	return latest, nil
}
