package store

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"maintenance-monitor-backend/internal/model"
)

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

// newSQLiteDB opens a private in-memory database with the full schema.
func newSQLiteDB(t *testing.T) *gorm.DB {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Equipment{},
		&model.Sensor{},
		&model.Reading{},
		&model.Alert{},
		&model.Comment{},
		&model.PushSubscription{},
	))
	return db
}

func ptr[T any](v T) *T { return &v }

func seedEquipment(t *testing.T, s Store, name string) (*model.Equipment, *model.Sensor) {
	ctx := context.Background()
	eq := &model.Equipment{Name: name, Type: "bomba", Location: "Planta 1"}
	require.NoError(t, s.CreateEquipment(ctx, eq))

	sensor := &model.Sensor{EquipmentID: eq.ID, Kind: model.KindTemperature, LowThreshold: ptr(50.0), HighThreshold: ptr(80.0)}
	require.NoError(t, s.CreateSensor(ctx, sensor))
	return eq, sensor
}

func TestGormStore_RecordAlert_UpdatesExistingRow(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	columns := []string{"id", "equipment_id", "sensor_id", "severity", "source", "failure_type", "occurrences", "status", "created_at"}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "alertas" WHERE .*status = \$1 AND created_at >= \$2.*equipment_id = \$3.*sensor_id = \$4.*ORDER BY created_at DESC LIMIT \$5 FOR UPDATE`).
		WithArgs(model.AlertActive, now.Add(-time.Hour), int64(7), int64(70), 1).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(3, 7, 70, "alto", "lectura_critica", "temperatura", 1, "activa", now.Add(-10*time.Minute)))
	mock.ExpectExec(`UPDATE "alertas" SET .*"occurrences"=occurrences \+ \$`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM "alertas" WHERE .*"alertas"."id"`).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(3, 7, 70, "critico", "lectura_critica", "temperatura", 2, "activa", now.Add(-10*time.Minute)))
	mock.ExpectCommit()

	alert, created, err := s.RecordAlert(context.Background(), model.Alert{
		EquipmentID:  ptr(int64(7)),
		SensorID:     ptr(int64(70)),
		Severity:     model.SeverityCritical,
		Source:       model.SourceCriticalReading,
		FailureType:  "temperatura",
		TriggerValue: ptr(91.0),
	}, now, time.Hour)

	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(3), alert.ID)
	assert.Equal(t, 2, alert.Occurrences)
	assert.Equal(t, model.SeverityCritical, alert.Severity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_RecordAlert_RollsBackOnLookupError(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "alertas"`).WillReturnError(fmt.Errorf("connection reset"))
	mock.ExpectRollback()

	_, _, err := s.RecordAlert(context.Background(), model.Alert{Severity: model.SeverityHigh}, time.Now(), time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_RecordAlert_Deduplication(t *testing.T) {
	s := NewGormStore(newSQLiteDB(t))
	ctx := context.Background()
	eq, sensor := seedEquipment(t, s, "Bomba-01")

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	candidate := func(value float64, severity model.Severity) model.Alert {
		return model.Alert{
			EquipmentID:  &eq.ID,
			SensorID:     &sensor.ID,
			Severity:     severity,
			Source:       model.SourceCriticalReading,
			FailureType:  sensor.Kind,
			Title:        "Lectura fuera de rango",
			TriggerValue: ptr(value),
		}
	}

	first, created, err := s.RecordAlert(ctx, candidate(85, model.SeverityHigh), start, time.Hour)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 1, first.Occurrences)
	assert.Equal(t, model.AlertActive, first.Status)

	second, created, err := s.RecordAlert(ctx, candidate(92, model.SeverityCritical), start.Add(10*time.Minute), time.Hour)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Occurrences)
	assert.Equal(t, model.SeverityCritical, second.Severity, "severity is raised by a more severe occurrence")
	require.NotNil(t, second.TriggerValue)
	assert.Equal(t, 92.0, *second.TriggerValue)

	third, created, err := s.RecordAlert(ctx, candidate(81, model.SeverityHigh), start.Add(20*time.Minute), time.Hour)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 3, third.Occurrences)
	assert.Equal(t, model.SeverityCritical, third.Severity, "severity is never lowered")

	later, created, err := s.RecordAlert(ctx, candidate(90, model.SeverityHigh), start.Add(61*time.Minute), time.Hour)
	require.NoError(t, err)
	assert.True(t, created, "an alert older than the window is not reused")
	assert.NotEqual(t, first.ID, later.ID)

	var count int64
	require.NoError(t, s.DB().Model(&model.Alert{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestGormStore_RecordAlert_NullSensorIsItsOwnKey(t *testing.T) {
	s := NewGormStore(newSQLiteDB(t))
	ctx := context.Background()
	eq, sensor := seedEquipment(t, s, "Compresor-02")
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	_, created, err := s.RecordAlert(ctx, model.Alert{EquipmentID: &eq.ID, SensorID: &sensor.ID, Severity: model.SeverityHigh, Source: model.SourceCriticalReading, FailureType: "temperatura"}, now, time.Hour)
	require.NoError(t, err)
	assert.True(t, created)

	predictive, created, err := s.RecordAlert(ctx, model.Alert{EquipmentID: &eq.ID, Severity: model.SeverityMedium, Source: model.SourcePrediction, FailureType: "prediccion_ia"}, now, time.Hour)
	require.NoError(t, err)
	assert.True(t, created, "a predictive alert without sensor does not merge into a sensor alert")

	again, created, err := s.RecordAlert(ctx, model.Alert{EquipmentID: &eq.ID, Severity: model.SeverityHigh, Source: model.SourcePrediction, FailureType: "prediccion_ia"}, now.Add(time.Minute), time.Hour)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, predictive.ID, again.ID)
}

func TestGormStore_RecordAlert_ResolvedAlertIsNotReused(t *testing.T) {
	s := NewGormStore(newSQLiteDB(t))
	ctx := context.Background()
	eq, sensor := seedEquipment(t, s, "Motor-03")
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	alert := model.Alert{EquipmentID: &eq.ID, SensorID: &sensor.ID, Severity: model.SeverityHigh, Source: model.SourceCriticalReading, FailureType: "temperatura"}
	first, _, err := s.RecordAlert(ctx, alert, now, time.Hour)
	require.NoError(t, err)

	resolved, err := s.ResolveAlert(ctx, first.ID, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, model.AlertResolved, resolved.Status)

	_, created, err := s.RecordAlert(ctx, alert, now.Add(2*time.Minute), time.Hour)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestGormStore_CreateEquipmentConflict(t *testing.T) {
	s := NewGormStore(newSQLiteDB(t))
	ctx := context.Background()

	require.NoError(t, s.CreateEquipment(ctx, &model.Equipment{Name: "Turbina-A", Type: "turbina", Code: ptr("EQ-2025-0001")}))

	err := s.CreateEquipment(ctx, &model.Equipment{Name: "Turbina-A", Type: "turbina"})
	assert.ErrorIs(t, err, ErrConflict)

	err = s.CreateEquipment(ctx, &model.Equipment{Name: "Turbina-B", Type: "turbina", Code: ptr("EQ-2025-0001")})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestGormStore_CreateSensorValidation(t *testing.T) {
	s := NewGormStore(newSQLiteDB(t))
	ctx := context.Background()
	eq, _ := seedEquipment(t, s, "Generador-01")

	err := s.CreateSensor(ctx, &model.Sensor{EquipmentID: eq.ID, Kind: model.KindPressure, LowThreshold: ptr(9.0), HighThreshold: ptr(3.0)})
	assert.ErrorIs(t, err, model.ErrInvalidThresholds)

	err = s.CreateSensor(ctx, &model.Sensor{EquipmentID: 999, Kind: model.KindPressure})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStore_DeleteEquipmentCascades(t *testing.T) {
	s := NewGormStore(newSQLiteDB(t))
	ctx := context.Background()
	eq, sensor := seedEquipment(t, s, "Bomba-09")
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateReading(ctx, &model.Reading{SensorID: sensor.ID, Value: 90, CapturedAt: now, Status: model.StatusCritical}))
	alert, _, err := s.RecordAlert(ctx, model.Alert{EquipmentID: &eq.ID, SensorID: &sensor.ID, Severity: model.SeverityCritical, Source: model.SourceCriticalReading, FailureType: "temperatura"}, now, time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.CreateComment(ctx, &model.Comment{OwnerKind: model.OwnerEquipment, OwnerID: eq.ID, Body: "revisar rodamientos"}))

	require.NoError(t, s.DeleteEquipment(ctx, eq.ID))

	_, err = s.GetEquipment(ctx, eq.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetSensor(ctx, sensor.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	var readings int64
	require.NoError(t, s.DB().Model(&model.Reading{}).Count(&readings).Error)
	assert.Zero(t, readings)

	alerts, err := s.ListAlerts(ctx, AlertFilter{})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, alert.ID, alerts[0].ID)
	assert.Nil(t, alerts[0].EquipmentID)

	assert.ErrorIs(t, s.DeleteEquipment(ctx, eq.ID), ErrNotFound)
}

func TestGormStore_LatestReadingsByKind(t *testing.T) {
	s := NewGormStore(newSQLiteDB(t))
	ctx := context.Background()
	eq, temp := seedEquipment(t, s, "Compresor-07")
	vib := &model.Sensor{EquipmentID: eq.ID, Kind: model.KindVibration}
	require.NoError(t, s.CreateSensor(ctx, vib))
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateReading(ctx, &model.Reading{SensorID: temp.ID, Value: 41, CapturedAt: base, Status: model.StatusNormal}))
	require.NoError(t, s.CreateReading(ctx, &model.Reading{SensorID: temp.ID, Value: 63, CapturedAt: base.Add(time.Minute), Status: model.StatusWarning}))
	require.NoError(t, s.CreateReading(ctx, &model.Reading{SensorID: vib.ID, Value: 12, CapturedAt: base, Status: model.StatusNormal}))

	latest, err := s.LatestReadingsByKind(ctx, eq.ID)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, 63.0, latest[model.KindTemperature].Value)
	assert.Equal(t, 12.0, latest[model.KindVibration].Value)
}

func TestGormStore_AlertRecipients(t *testing.T) {
	s := NewGormStore(newSQLiteDB(t))
	ctx := context.Background()
	eq, _ := seedEquipment(t, s, "Turbina-04")

	users := []*model.User{
		{Name: "Ana", Email: "ana@example.com", Role: model.RoleTechnician, Active: true},
		{Name: "Luis", Email: "luis@example.com", Role: model.RoleSupervisor, Active: true},
		{Name: "Eva", Email: "eva@example.com", Role: model.RoleUser, Active: true},
	}
	for _, u := range users {
		require.NoError(t, s.DB().Create(u).Error)
	}

	fallback, err := s.AlertRecipients(ctx, &eq.ID)
	require.NoError(t, err)
	assert.Len(t, fallback, 2, "technicians and supervisors when nobody is assigned")

	require.NoError(t, s.AssignTechnicians(ctx, eq.ID, []int64{users[0].ID}))
	assigned, err := s.AlertRecipients(ctx, &eq.ID)
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, "ana@example.com", assigned[0].Email)

	err = s.AssignTechnicians(ctx, eq.ID, []int64{users[0].ID, 4242})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStore_CriticalEquipmentSince(t *testing.T) {
	s := NewGormStore(newSQLiteDB(t))
	ctx := context.Background()
	_, hot := seedEquipment(t, s, "Motor-Caliente")
	_, cold := seedEquipment(t, s, "Motor-Frio")
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateReading(ctx, &model.Reading{SensorID: hot.ID, Value: 95, CapturedAt: now.Add(-time.Hour), Status: model.StatusCritical}))
	require.NoError(t, s.CreateReading(ctx, &model.Reading{SensorID: hot.ID, Value: 97, CapturedAt: now.Add(-2 * time.Hour), Status: model.StatusCritical}))
	require.NoError(t, s.CreateReading(ctx, &model.Reading{SensorID: cold.ID, Value: 99, CapturedAt: now.Add(-48 * time.Hour), Status: model.StatusCritical}))
	require.NoError(t, s.CreateReading(ctx, &model.Reading{SensorID: cold.ID, Value: 30, CapturedAt: now.Add(-time.Hour), Status: model.StatusNormal}))

	rows, err := s.CriticalEquipmentSince(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Motor-Caliente", rows[0].Name)
	assert.Equal(t, int64(2), rows[0].CriticalReadings)
}

func TestGormStore_Subscriptions(t *testing.T) {
	s := NewGormStore(newSQLiteDB(t))
	ctx := context.Background()
	eq, _ := seedEquipment(t, s, "Bomba-22")

	sub := &model.PushSubscription{Endpoint: "https://push.example.com/abc", P256DH: "key", Auth: "auth"}
	require.NoError(t, s.SaveSubscription(ctx, sub, []int64{eq.ID}))

	subs, err := s.SubscriptionsForEquipment(ctx, eq.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, sub.Endpoint, subs[0].Endpoint)

	got, err := s.GetSubscription(ctx, sub.Endpoint)
	require.NoError(t, err)
	require.Len(t, got.Equipment, 1)

	require.NoError(t, s.DeleteSubscription(ctx, sub.Endpoint))
	_, err = s.GetSubscription(ctx, sub.Endpoint)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStore_CommentsRequireOwner(t *testing.T) {
	s := NewGormStore(newSQLiteDB(t))
	ctx := context.Background()
	_, sensor := seedEquipment(t, s, "Generador-05")

	require.NoError(t, s.CreateComment(ctx, &model.Comment{OwnerKind: model.OwnerSensor, OwnerID: sensor.ID, Author: "ana", Body: "calibrado"}))
	err := s.CreateComment(ctx, &model.Comment{OwnerKind: model.OwnerAlert, OwnerID: 77, Body: "?"})
	assert.ErrorIs(t, err, ErrNotFound)

	comments, err := s.ListComments(ctx, model.OwnerSensor, sensor.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "calibrado", comments[0].Body)
}
