package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"maintenance-monitor-backend/internal/alerting"
	"maintenance-monitor-backend/internal/metrics"
	"maintenance-monitor-backend/internal/model"
	"maintenance-monitor-backend/internal/predictor"
)

// Sources of a reading.
const (
	SourceHTTP = "http"
	SourceMQTT = "mqtt"
)

// Store is the persistence the ingest service needs.
type Store interface {
	GetSensor(ctx context.Context, id int64) (*model.Sensor, error)
	CreateReading(ctx context.Context, reading *model.Reading) error
	LatestReadingsByKind(ctx context.Context, equipmentID int64) (map[string]model.Reading, error)
}

// Predictor returns the failure risk of a feature set.
type Predictor interface {
	Predict(ctx context.Context, f predictor.Features) predictor.Prediction
}

// AlertHandler reacts to a persisted reading.
type AlertHandler interface {
	HandleReading(ctx context.Context, ev alerting.ReadingEvent) (*model.Alert, error)
}

// Result is the outcome of recording one reading.
type Result struct {
	Reading    model.Reading
	Alert      *model.Alert
	Prediction *predictor.Prediction
}

// Service classifies, stores and evaluates incoming sensor readings.
type Service struct {
	store     Store
	predictor Predictor
	alerts    AlertHandler
	clock     clock.PassiveClock
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewService creates an ingest service. A nil predictor disables the per-reading prediction.
func NewService(store Store, p Predictor, alerts AlertHandler, clk clock.PassiveClock, logger *zap.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:     store,
		predictor: p,
		alerts:    alerts,
		clock:     clk,
		logger:    logger,
		metrics:   m,
	}
}

// Record stores a reading for the sensor. A zero capturedAt means now. The reading is stored
// even when alert evaluation fails; such failures are logged.
func (s *Service) Record(ctx context.Context, sensorID int64, value float64, capturedAt time.Time, source string) (*Result, error) {
	sensor, err := s.store.GetSensor(ctx, sensorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sensor %d: %w", sensorID, err)
	}
	if sensor.Equipment == nil {
		return nil, fmt.Errorf("sensor %d has no equipment", sensorID)
	}
	if capturedAt.IsZero() {
		capturedAt = s.clock.Now()
	}

	status := alerting.Classify(value, sensor.LowThreshold, sensor.HighThreshold)

	result := &Result{}
	var prediction predictor.Prediction
	if s.predictor != nil {
		prediction = s.predict(ctx, sensor, value)
		reported := prediction.OrFallback()
		result.Prediction = &reported
		status = alerting.Combine(status, prediction)
	}

	reading := model.Reading{
		SensorID:   sensor.ID,
		Value:      value,
		CapturedAt: capturedAt,
		Status:     status,
	}
	if err := s.store.CreateReading(ctx, &reading); err != nil {
		return nil, fmt.Errorf("failed to store reading: %w", err)
	}
	result.Reading = reading
	s.metrics.ReadingsIngested.WithLabelValues(string(status), source).Inc()

	alert, err := s.alerts.HandleReading(ctx, alerting.ReadingEvent{
		Equipment:  *sensor.Equipment,
		Sensor:     *sensor,
		Reading:    reading,
		Prediction: prediction,
	})
	if err != nil {
		s.logger.Error("alert evaluation failed",
			zap.Int64("sensor_id", sensor.ID),
			zap.Int64("reading_id", reading.ID),
			zap.Error(err))
	}
	result.Alert = alert
	return result, nil
}

// predict asks for the risk of the equipment using the latest value of every sensor kind with
// the new value in place.
func (s *Service) predict(ctx context.Context, sensor *model.Sensor, value float64) predictor.Prediction {
	latest, err := s.store.LatestReadingsByKind(ctx, sensor.EquipmentID)
	if err != nil {
		s.logger.Warn("failed to load latest readings for prediction",
			zap.Int64("equipment_id", sensor.EquipmentID), zap.Error(err))
	}
	snapshot := make(map[string]float64, len(latest)+1)
	for kind, r := range latest {
		snapshot[kind] = r.Value
	}
	snapshot[sensor.Kind] = value

	return s.predictor.Predict(ctx, predictor.FeaturesFrom(snapshot, sensor.Equipment.OperatingHours))
}
