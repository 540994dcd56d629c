package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"maintenance-monitor-backend/internal/model"
)

// RecordAlert stores candidate unless an active alert for the same equipment and sensor
// was opened within window before now. In that case the existing alert absorbs the
// occurrence: its counter is incremented, the trigger value and last-seen time refreshed,
// and its severity raised when the candidate is more severe. The returned flag reports
// whether a new row was inserted.
func (s *gormStore) RecordAlert(ctx context.Context, candidate model.Alert, now time.Time, window time.Duration) (*model.Alert, bool, error) {
	var (
		result  model.Alert
		created bool
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("status = ? AND created_at >= ?", model.AlertActive, now.Add(-window))
		if candidate.EquipmentID != nil {
			q = q.Where("equipment_id = ?", *candidate.EquipmentID)
		} else {
			q = q.Where("equipment_id IS NULL")
		}
		if candidate.SensorID != nil {
			q = q.Where("sensor_id = ?", *candidate.SensorID)
		} else {
			q = q.Where("sensor_id IS NULL")
		}
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var existing []model.Alert
		if err := q.Order("created_at DESC").Limit(1).Find(&existing).Error; err != nil {
			return fmt.Errorf("failed to look up open alerts: %w", err)
		}

		if len(existing) == 0 {
			result = candidate
			result.ID = 0
			result.Status = model.AlertActive
			result.Occurrences = 1
			result.LastSeenAt = now
			result.CreatedAt = now
			result.UpdatedAt = now
			if err := tx.Omit("Equipment").Create(&result).Error; err != nil {
				return fmt.Errorf("failed to create alert: %w", err)
			}
			created = true
			return nil
		}

		result = existing[0]
		updates := map[string]any{
			"occurrences":   gorm.Expr("occurrences + ?", 1),
			"trigger_value": candidate.TriggerValue,
			"last_seen_at":  now,
			"updated_at":    now,
		}
		if candidate.Severity.Rank() > result.Severity.Rank() {
			updates["severity"] = candidate.Severity
		}
		if candidate.Prediction != nil {
			updates["prediction"] = candidate.Prediction
		}
		if candidate.ReadingID != nil {
			updates["reading_id"] = *candidate.ReadingID
		}
		if err := tx.Model(&model.Alert{}).Where("id = ?", result.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update alert %d: %w", result.ID, err)
		}
		if err := tx.First(&result, result.ID).Error; err != nil {
			return fmt.Errorf("failed to reload alert %d: %w", result.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &result, created, nil
}

// ListAlerts returns alerts newest first with their equipment.
func (s *gormStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error) {
	q := s.db.WithContext(ctx).Preload("Equipment").Order("created_at DESC")
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Severity != "" {
		q = q.Where("severity = ?", filter.Severity)
	}
	if filter.EquipmentID != nil {
		q = q.Where("equipment_id = ?", *filter.EquipmentID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var alerts []model.Alert
	if err := q.Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

// ResolveAlert marks an alert as resolved. Resolving twice is a no-op.
func (s *gormStore) ResolveAlert(ctx context.Context, id int64, now time.Time) (*model.Alert, error) {
	var alert model.Alert
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&alert, id).Error; err != nil {
			return notFound(err)
		}
		if alert.Status == model.AlertResolved {
			return nil
		}
		if err := tx.Model(&model.Alert{}).Where("id = ?", id).Updates(map[string]any{
			"status":     model.AlertResolved,
			"updated_at": now,
		}).Error; err != nil {
			return fmt.Errorf("failed to resolve alert %d: %w", id, err)
		}
		alert.Status = model.AlertResolved
		alert.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &alert, nil
}
