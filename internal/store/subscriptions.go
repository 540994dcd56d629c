package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"maintenance-monitor-backend/internal/model"
)

// SaveSubscription creates or replaces a push subscription and the equipment it follows.
func (s *gormStore) SaveSubscription(ctx context.Context, sub *model.PushSubscription, equipmentIDs []int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Equipment").Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
		}).Create(sub).Error; err != nil {
			return fmt.Errorf("failed to upsert subscription: %w", err)
		}

		var equipment []*model.Equipment
		if len(equipmentIDs) > 0 {
			if err := tx.Find(&equipment, equipmentIDs).Error; err != nil {
				return fmt.Errorf("failed to load subscribed equipment: %w", err)
			}
		}

		if err := tx.Model(sub).Association("Equipment").Replace(&equipment); err != nil {
			return fmt.Errorf("failed to replace subscribed equipment: %w", err)
		}
		sub.Equipment = equipment
		return nil
	})
}

func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).Preload("Equipment").First(&sub, "endpoint = ?", endpoint).Error; err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub := model.PushSubscription{Endpoint: endpoint}
		if err := tx.Model(&sub).Association("Equipment").Clear(); err != nil {
			return fmt.Errorf("failed to clear subscription mapping: %w", err)
		}
		if err := tx.Delete(&sub).Error; err != nil {
			return fmt.Errorf("failed to delete subscription: %w", err)
		}
		return nil
	})
}

// SubscriptionsForEquipment returns the browsers following the equipment.
func (s *gormStore) SubscriptionsForEquipment(ctx context.Context, equipmentID int64) ([]model.PushSubscription, error) {
	var subscriptions []model.PushSubscription
	err := s.db.WithContext(ctx).
		Joins("JOIN subscription_equipment_mapping sem ON sem.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("sem.equipment_id = ?", equipmentID).
		Find(&subscriptions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load subscriptions of equipment %d: %w", equipmentID, err)
	}
	return subscriptions, nil
}
