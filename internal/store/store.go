package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"maintenance-monitor-backend/internal/model"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a unique attribute is already taken.
	ErrConflict = errors.New("record already exists")
)

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB

	ListEquipment(ctx context.Context, filter EquipmentFilter) ([]model.Equipment, error)
	GetEquipment(ctx context.Context, id int64) (*model.Equipment, error)
	CreateEquipment(ctx context.Context, eq *model.Equipment) error
	UpdateEquipmentStatus(ctx context.Context, id int64, status model.EquipmentStatus) (*model.Equipment, error)
	DeleteEquipment(ctx context.Context, id int64) error
	AssignTechnicians(ctx context.Context, equipmentID int64, userIDs []int64) error

	ListSensors(ctx context.Context, equipmentID int64) ([]model.Sensor, error)
	GetSensor(ctx context.Context, id int64) (*model.Sensor, error)
	CreateSensor(ctx context.Context, sensor *model.Sensor) error

	CreateReading(ctx context.Context, reading *model.Reading) error
	ListReadings(ctx context.Context, sensorID int64, limit int) ([]model.Reading, error)
	LatestReadingsByKind(ctx context.Context, equipmentID int64) (map[string]model.Reading, error)

	RecordAlert(ctx context.Context, candidate model.Alert, now time.Time, window time.Duration) (*model.Alert, bool, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error)
	ResolveAlert(ctx context.Context, id int64, now time.Time) (*model.Alert, error)

	CreateComment(ctx context.Context, comment *model.Comment) error
	ListComments(ctx context.Context, kind model.OwnerKind, ownerID int64) ([]model.Comment, error)

	AlertRecipients(ctx context.Context, equipmentID *int64) ([]model.User, error)
	UsersByRoles(ctx context.Context, roles ...string) ([]model.User, error)

	SaveSubscription(ctx context.Context, sub *model.PushSubscription, equipmentIDs []int64) error
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	SubscriptionsForEquipment(ctx context.Context, equipmentID int64) ([]model.PushSubscription, error)

	CountEquipment(ctx context.Context) (total int64, active int64, err error)
	AlertsBetween(ctx context.Context, start, end time.Time) ([]model.Alert, error)
	CountAlertsBetween(ctx context.Context, start, end time.Time) (int64, error)
	CriticalEquipmentSince(ctx context.Context, since time.Time) ([]CriticalEquipment, error)
	ReadingValuesByKind(ctx context.Context, start, end time.Time) (map[string][]float64, error)
	Dashboard(ctx context.Context) (*DashboardStats, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// DB exposes the underlying connection for health checks and ad-hoc queries.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// notFound maps gorm's sentinel onto ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
