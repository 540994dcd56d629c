package store

import (
	"context"
	"fmt"
	"time"

	"maintenance-monitor-backend/internal/model"
)

// CountEquipment returns the total number of equipment and how many are active.
func (s *gormStore) CountEquipment(ctx context.Context) (int64, int64, error) {
	var total, active int64
	if err := s.db.WithContext(ctx).Model(&model.Equipment{}).Count(&total).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count equipment: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&model.Equipment{}).Where("status = ?", model.EquipmentActive).Count(&active).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count active equipment: %w", err)
	}
	return total, active, nil
}

// AlertsBetween returns the alerts created in [start, end] with their equipment.
func (s *gormStore) AlertsBetween(ctx context.Context, start, end time.Time) ([]model.Alert, error) {
	var alerts []model.Alert
	err := s.db.WithContext(ctx).
		Preload("Equipment").
		Where("created_at >= ? AND created_at <= ?", start, end).
		Order("created_at").
		Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load alerts between %s and %s: %w", start, end, err)
	}
	return alerts, nil
}

func (s *gormStore) CountAlertsBetween(ctx context.Context, start, end time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Alert{}).
		Where("created_at >= ? AND created_at <= ?", start, end).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count alerts between %s and %s: %w", start, end, err)
	}
	return n, nil
}

// CriticalEquipmentSince lists equipment with at least one critical reading captured after since.
func (s *gormStore) CriticalEquipmentSince(ctx context.Context, since time.Time) ([]CriticalEquipment, error) {
	var rows []CriticalEquipment
	err := s.db.WithContext(ctx).
		Table("lecturas").
		Select("equipos.id AS equipment_id, equipos.name AS name, equipos.location AS location, COUNT(lecturas.id) AS critical_readings").
		Joins("JOIN sensores ON sensores.id = lecturas.sensor_id").
		Joins("JOIN equipos ON equipos.id = sensores.equipment_id").
		Where("lecturas.status = ? AND lecturas.captured_at >= ?", model.StatusCritical, since).
		Group("equipos.id, equipos.name, equipos.location").
		Order("critical_readings DESC, equipos.name").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load critical equipment: %w", err)
	}
	return rows, nil
}

// ReadingValuesByKind returns the reading values captured in [start, end] grouped by sensor kind.
func (s *gormStore) ReadingValuesByKind(ctx context.Context, start, end time.Time) (map[string][]float64, error) {
	var rows []struct {
		Kind  string
		Value float64
	}
	err := s.db.WithContext(ctx).
		Table("lecturas").
		Select("sensores.kind AS kind, lecturas.value AS value").
		Joins("JOIN sensores ON sensores.id = lecturas.sensor_id").
		Where("lecturas.captured_at >= ? AND lecturas.captured_at <= ?", start, end).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load readings between %s and %s: %w", start, end, err)
	}

	values := make(map[string][]float64)
	for _, r := range rows {
		values[r.Kind] = append(values[r.Kind], r.Value)
	}
	return values, nil
}

// Dashboard gathers the counters shown on the landing page.
func (s *gormStore) Dashboard(ctx context.Context) (*DashboardStats, error) {
	stats := &DashboardStats{BySeverity: make(map[model.Severity]int64)}
	db := s.db.WithContext(ctx)

	if err := db.Model(&model.Equipment{}).Count(&stats.TotalEquipment).Error; err != nil {
		return nil, fmt.Errorf("failed to count equipment: %w", err)
	}
	if err := db.Model(&model.Sensor{}).Count(&stats.TotalSensors).Error; err != nil {
		return nil, fmt.Errorf("failed to count sensors: %w", err)
	}
	if err := db.Model(&model.Alert{}).
		Where("status = ? AND severity <> ?", model.AlertActive, model.SeverityLow).
		Count(&stats.ActiveAlerts).Error; err != nil {
		return nil, fmt.Errorf("failed to count active alerts: %w", err)
	}

	recent, err := s.ListAlerts(ctx, AlertFilter{Limit: 5})
	if err != nil {
		return nil, err
	}
	stats.RecentAlerts = recent

	var bySeverity []struct {
		Severity model.Severity
		Count    int64
	}
	if err := db.Model(&model.Alert{}).
		Select("severity, COUNT(*) AS count").
		Group("severity").
		Scan(&bySeverity).Error; err != nil {
		return nil, fmt.Errorf("failed to group alerts by severity: %w", err)
	}
	for _, row := range bySeverity {
		stats.BySeverity[row.Severity] = row.Count
	}
	return stats, nil
}
