package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"maintenance-monitor-backend/internal/model"
)

func (s *gormStore) ListEquipment(ctx context.Context, filter EquipmentFilter) ([]model.Equipment, error) {
	q := s.db.WithContext(ctx).Order("name")
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}

	var equipment []model.Equipment
	if err := q.Find(&equipment).Error; err != nil {
		return nil, fmt.Errorf("failed to list equipment: %w", err)
	}
	return equipment, nil
}

// GetEquipment loads one piece of equipment with its sensors.
func (s *gormStore) GetEquipment(ctx context.Context, id int64) (*model.Equipment, error) {
	var eq model.Equipment
	err := s.db.WithContext(ctx).
		Preload("Sensors", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&eq, id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &eq, nil
}

// CreateEquipment inserts eq after checking that its name and code are free.
func (s *gormStore) CreateEquipment(ctx context.Context, eq *model.Equipment) error {
	if eq.Status == "" {
		eq.Status = model.EquipmentActive
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		q := tx.Model(&model.Equipment{}).Where("name = ?", eq.Name)
		if eq.Code != nil {
			q = q.Or("code = ?", *eq.Code)
		}
		if err := q.Count(&taken).Error; err != nil {
			return fmt.Errorf("failed to check equipment uniqueness: %w", err)
		}
		if taken > 0 {
			return ErrConflict
		}

		if err := tx.Omit("Sensors", "Technicians").Create(eq).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrConflict
			}
			return fmt.Errorf("failed to create equipment %q: %w", eq.Name, err)
		}
		return nil
	})
}

func (s *gormStore) UpdateEquipmentStatus(ctx context.Context, id int64, status model.EquipmentStatus) (*model.Equipment, error) {
	var eq model.Equipment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&eq, id).Error; err != nil {
			return notFound(err)
		}
		if err := tx.Model(&eq).Update("status", status).Error; err != nil {
			return fmt.Errorf("failed to update status of equipment %d: %w", id, err)
		}
		eq.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &eq, nil
}

// DeleteEquipment removes the equipment together with its sensors and readings.
// Alerts keep their history with the equipment reference cleared.
func (s *gormStore) DeleteEquipment(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var eq model.Equipment
		if err := tx.Select("id").First(&eq, id).Error; err != nil {
			return notFound(err)
		}

		var sensorIDs []int64
		if err := tx.Model(&model.Sensor{}).Where("equipment_id = ?", id).Pluck("id", &sensorIDs).Error; err != nil {
			return fmt.Errorf("failed to list sensors of equipment %d: %w", id, err)
		}

		if len(sensorIDs) > 0 {
			if err := tx.Where("sensor_id IN ?", sensorIDs).Delete(&model.Reading{}).Error; err != nil {
				return fmt.Errorf("failed to delete readings of equipment %d: %w", id, err)
			}
			if err := tx.Where("owner_kind = ? AND owner_id IN ?", model.OwnerSensor, sensorIDs).Delete(&model.Comment{}).Error; err != nil {
				return fmt.Errorf("failed to delete sensor comments of equipment %d: %w", id, err)
			}
			if err := tx.Model(&model.Alert{}).Where("sensor_id IN ?", sensorIDs).Update("sensor_id", nil).Error; err != nil {
				return fmt.Errorf("failed to detach alerts from sensors of equipment %d: %w", id, err)
			}
			if err := tx.Where("equipment_id = ?", id).Delete(&model.Sensor{}).Error; err != nil {
				return fmt.Errorf("failed to delete sensors of equipment %d: %w", id, err)
			}
		}

		if err := tx.Model(&model.Alert{}).Where("equipment_id = ?", id).Update("equipment_id", nil).Error; err != nil {
			return fmt.Errorf("failed to detach alerts from equipment %d: %w", id, err)
		}
		if err := tx.Where("owner_kind = ? AND owner_id = ?", model.OwnerEquipment, id).Delete(&model.Comment{}).Error; err != nil {
			return fmt.Errorf("failed to delete comments of equipment %d: %w", id, err)
		}
		if err := tx.Model(&eq).Association("Technicians").Clear(); err != nil {
			return fmt.Errorf("failed to clear technicians of equipment %d: %w", id, err)
		}
		if err := tx.Exec("DELETE FROM subscription_equipment_mapping WHERE equipment_id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to clear subscriptions of equipment %d: %w", id, err)
		}
		if err := tx.Delete(&model.Equipment{}, id).Error; err != nil {
			return fmt.Errorf("failed to delete equipment %d: %w", id, err)
		}
		return nil
	})
}

// AssignTechnicians replaces the technicians assigned to the equipment.
func (s *gormStore) AssignTechnicians(ctx context.Context, equipmentID int64, userIDs []int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var eq model.Equipment
		if err := tx.Select("id").First(&eq, equipmentID).Error; err != nil {
			return notFound(err)
		}

		var users []*model.User
		if len(userIDs) > 0 {
			if err := tx.Find(&users, userIDs).Error; err != nil {
				return fmt.Errorf("failed to load technicians: %w", err)
			}
			if len(users) != len(uniqueIDs(userIDs)) {
				return fmt.Errorf("unknown user in %v: %w", userIDs, ErrNotFound)
			}
		}

		if err := tx.Model(&eq).Association("Technicians").Replace(&users); err != nil {
			return fmt.Errorf("failed to assign technicians to equipment %d: %w", equipmentID, err)
		}
		return nil
	})
}

func uniqueIDs(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
