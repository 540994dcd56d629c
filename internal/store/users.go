package store

import (
	"context"
	"fmt"

	"maintenance-monitor-backend/internal/model"
)

// AlertRecipients returns the active technicians assigned to the equipment, falling back to
// every active technician and supervisor when none is assigned or the equipment is unknown.
func (s *gormStore) AlertRecipients(ctx context.Context, equipmentID *int64) ([]model.User, error) {
	if equipmentID != nil {
		var assigned []model.User
		err := s.db.WithContext(ctx).
			Joins("JOIN equipment_technicians et ON et.user_id = usuarios.id").
			Where("et.equipment_id = ? AND usuarios.active = ?", *equipmentID, true).
			Order("usuarios.id").
			Find(&assigned).Error
		if err != nil {
			return nil, fmt.Errorf("failed to load technicians of equipment %d: %w", *equipmentID, err)
		}
		if len(assigned) > 0 {
			return assigned, nil
		}
	}
	return s.UsersByRoles(ctx, model.RoleTechnician, model.RoleSupervisor)
}

// UsersByRoles returns the active users holding any of the roles.
func (s *gormStore) UsersByRoles(ctx context.Context, roles ...string) ([]model.User, error) {
	var users []model.User
	err := s.db.WithContext(ctx).
		Where("role IN ? AND active = ?", roles, true).
		Order("id").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load users with roles %v: %w", roles, err)
	}
	return users, nil
}
