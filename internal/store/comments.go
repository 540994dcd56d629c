package store

import (
	"context"
	"fmt"

	"maintenance-monitor-backend/internal/model"
)

// CreateComment attaches a comment to an existing owner.
func (s *gormStore) CreateComment(ctx context.Context, comment *model.Comment) error {
	if err := s.ownerExists(ctx, comment.OwnerKind, comment.OwnerID); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(comment).Error; err != nil {
		return fmt.Errorf("failed to create comment on %s %d: %w", comment.OwnerKind, comment.OwnerID, err)
	}
	return nil
}

// ListComments returns the comments of an owner, oldest first.
func (s *gormStore) ListComments(ctx context.Context, kind model.OwnerKind, ownerID int64) ([]model.Comment, error) {
	var comments []model.Comment
	err := s.db.WithContext(ctx).
		Where("owner_kind = ? AND owner_id = ?", kind, ownerID).
		Order("created_at, id").
		Find(&comments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list comments of %s %d: %w", kind, ownerID, err)
	}
	return comments, nil
}

func (s *gormStore) ownerExists(ctx context.Context, kind model.OwnerKind, id int64) error {
	var owner any
	switch kind {
	case model.OwnerEquipment:
		owner = &model.Equipment{}
	case model.OwnerSensor:
		owner = &model.Sensor{}
	case model.OwnerAlert:
		owner = &model.Alert{}
	default:
		return fmt.Errorf("unknown comment owner kind %q", kind)
	}

	var n int64
	if err := s.db.WithContext(ctx).Model(owner).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("failed to look up %s %d: %w", kind, id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
