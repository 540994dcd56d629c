package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"maintenance-monitor-backend/internal/alerting"
	"maintenance-monitor-backend/internal/metrics"
	"maintenance-monitor-backend/internal/model"
	"maintenance-monitor-backend/internal/predictor"
	"maintenance-monitor-backend/internal/store"
)

// ErrPredictorUnavailable is returned when the prediction service does not answer the probe.
var ErrPredictorUnavailable = errors.New("prediction service unavailable")

// NoteInsufficientData marks equipment skipped for lack of readings.
const NoteInsufficientData = "datos insuficientes"

// Store is the persistence the analyzer needs.
type Store interface {
	ListEquipment(ctx context.Context, filter store.EquipmentFilter) ([]model.Equipment, error)
	LatestReadingsByKind(ctx context.Context, equipmentID int64) (map[string]model.Reading, error)
}

// Predictor is the prediction service.
type Predictor interface {
	Available(ctx context.Context) bool
	Predict(ctx context.Context, f predictor.Features) predictor.Prediction
}

// AlertRaiser records predictive alerts.
type AlertRaiser interface {
	RaisePredictive(ctx context.Context, ev alerting.PredictiveEvent) (*model.Alert, error)
}

// Options controls one batch run.
type Options struct {
	MinSensorKinds int
	AnalysisType   string
	GenerateAlerts bool
}

// DefaultOptions returns the options of a scheduled run.
func DefaultOptions() Options {
	return Options{MinSensorKinds: 3, AnalysisType: "completo", GenerateAlerts: true}
}

// Detail is the outcome for one piece of equipment.
type Detail struct {
	EquipmentID     int64          `json:"equipo_id"`
	EquipmentName   string         `json:"equipo_nombre"`
	Analyzed        bool           `json:"analizado"`
	AlertGenerated  bool           `json:"alerta_generada"`
	AlertID         *int64         `json:"alerta_id,omitempty"`
	SensorsAnalyzed int            `json:"sensores_analizados"`
	RiskLevel       string         `json:"nivel_riesgo,omitempty"`
	Prediction      map[string]any `json:"prediccion,omitempty"`
	Note            string         `json:"nota,omitempty"`
	Error           string         `json:"error,omitempty"`
}

// Result summarises a batch run.
type Result struct {
	ID               string         `json:"id"`
	AnalysisType     string         `json:"tipo_analisis"`
	TotalEquipment   int            `json:"total_equipos"`
	Analyzed         int            `json:"equipos_analizados"`
	AlertsGenerated  int            `json:"alertas_generadas"`
	Errors           int            `json:"errores"`
	SuccessRate      float64        `json:"tasa_exito"`
	RiskDistribution map[string]int `json:"distribucion_riesgos"`
	Details          []Detail       `json:"detalles"`
	StartedAt        time.Time      `json:"inicio"`
	FinishedAt       time.Time      `json:"fin"`
}

// Analyzer runs the predictor over every piece of equipment.
type Analyzer struct {
	store     Store
	predictor Predictor
	alerts    AlertRaiser
	clock     clock.PassiveClock
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(st Store, p Predictor, alerts AlertRaiser, clk clock.PassiveClock, logger *zap.Logger, m *metrics.Metrics) *Analyzer {
	return &Analyzer{
		store:     st,
		predictor: p,
		alerts:    alerts,
		clock:     clk,
		logger:    logger,
		metrics:   m,
	}
}

// NewRunID returns the identifier of a new run.
func NewRunID() string {
	return uuid.NewString()
}

// Run analyses all equipment. A failure on one piece of equipment is recorded in its detail
// and never stops the batch.
func (a *Analyzer) Run(ctx context.Context, opts Options) (*Result, error) {
	return a.RunWithID(ctx, NewRunID(), opts)
}

// RunWithID is Run with a caller supplied run id.
func (a *Analyzer) RunWithID(ctx context.Context, id string, opts Options) (*Result, error) {
	if opts.MinSensorKinds <= 0 {
		opts.MinSensorKinds = 3
	}
	if opts.AnalysisType == "" {
		opts.AnalysisType = "completo"
	}

	if !a.predictor.Available(ctx) {
		a.logger.Error("prediction service unavailable, skipping equipment analysis")
		a.metrics.AnalysisRuns.WithLabelValues("unavailable").Inc()
		return nil, ErrPredictorUnavailable
	}

	equipment, err := a.store.ListEquipment(ctx, store.EquipmentFilter{})
	if err != nil {
		a.metrics.AnalysisRuns.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to list equipment: %w", err)
	}

	res := &Result{
		ID:             id,
		AnalysisType:   opts.AnalysisType,
		TotalEquipment: len(equipment),
		RiskDistribution: map[string]int{
			string(predictor.RiskLow):      0,
			string(predictor.RiskModerate): 0,
			string(predictor.RiskHigh):     0,
			string(predictor.RiskCritical): 0,
		},
		Details:   make([]Detail, 0, len(equipment)),
		StartedAt: a.clock.Now(),
	}
	a.logger.Info("starting equipment analysis",
		zap.String("run_id", id),
		zap.Int("equipment", len(equipment)),
		zap.String("type", opts.AnalysisType),
		zap.Int("min_sensor_kinds", opts.MinSensorKinds))

	for _, eq := range equipment {
		if err := ctx.Err(); err != nil {
			a.metrics.AnalysisRuns.WithLabelValues("canceled").Inc()
			return nil, err
		}

		detail, err := a.analyzeSafely(ctx, eq, opts)
		if err != nil {
			res.Errors++
			a.logger.Error("equipment analysis failed",
				zap.Int64("equipment_id", eq.ID),
				zap.String("equipment", eq.Name),
				zap.Error(err))
			res.Details = append(res.Details, Detail{
				EquipmentID:   eq.ID,
				EquipmentName: eq.Name,
				Error:         err.Error(),
			})
			continue
		}

		if detail.Analyzed {
			res.Analyzed++
			res.RiskDistribution[detail.RiskLevel]++
			a.metrics.RiskLevels.WithLabelValues(detail.RiskLevel).Inc()
		}
		if detail.AlertGenerated {
			res.AlertsGenerated++
		}
		res.Details = append(res.Details, detail)
	}

	if res.TotalEquipment > 0 {
		res.SuccessRate = math.Round(float64(res.Analyzed)/float64(res.TotalEquipment)*100*100) / 100
	}
	res.FinishedAt = a.clock.Now()
	a.metrics.AnalysisRuns.WithLabelValues("completed").Inc()

	a.logger.Info("equipment analysis completed",
		zap.String("run_id", id),
		zap.Int("analyzed", res.Analyzed),
		zap.Int("alerts", res.AlertsGenerated),
		zap.Int("errors", res.Errors),
		zap.Float64("success_rate", res.SuccessRate),
		zap.Any("risk_distribution", res.RiskDistribution))
	return res, nil
}

// analyzeSafely turns a panic while analysing one piece of equipment into an error.
func (a *Analyzer) analyzeSafely(ctx context.Context, eq model.Equipment, opts Options) (detail Detail, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic analysing equipment %d: %v", eq.ID, r)
		}
	}()
	return a.analyze(ctx, eq, opts)
}

func (a *Analyzer) analyze(ctx context.Context, eq model.Equipment, opts Options) (Detail, error) {
	detail := Detail{EquipmentID: eq.ID, EquipmentName: eq.Name}

	latest, err := a.store.LatestReadingsByKind(ctx, eq.ID)
	if err != nil {
		return detail, fmt.Errorf("failed to load latest readings: %w", err)
	}

	if len(latest) < opts.MinSensorKinds {
		a.logger.Warn("not enough sensor data for analysis",
			zap.Int64("equipment_id", eq.ID),
			zap.Int("sensor_kinds", len(latest)),
			zap.Int("required", opts.MinSensorKinds))
		detail.Note = NoteInsufficientData
		return detail, nil
	}

	snapshot := make(map[string]float64, len(latest))
	var newest *model.Reading
	for kind, r := range latest {
		snapshot[kind] = r.Value
		if newest == nil || r.CapturedAt.After(newest.CapturedAt) {
			r := r
			newest = &r
		}
	}

	p := a.predictor.Predict(ctx, predictor.FeaturesFrom(snapshot, eq.OperatingHours))
	if !p.OK() {
		a.logger.Warn("prediction failed, equipment skipped",
			zap.Int64("equipment_id", eq.ID), zap.Error(p.Err))
		detail.Note = "predicción no disponible"
		return detail, nil
	}

	detail.Analyzed = true
	detail.SensorsAnalyzed = len(latest)
	detail.RiskLevel = string(p.Level)
	detail.Prediction = p.Raw

	if opts.GenerateAlerts && p.Level.Actionable() {
		var readingID *int64
		if newest != nil {
			readingID = &newest.ID
		}
		alert, err := a.alerts.RaisePredictive(ctx, alerting.PredictiveEvent{
			Equipment:  eq,
			Prediction: p,
			Snapshot:   snapshot,
			ReadingID:  readingID,
		})
		if err != nil {
			return detail, fmt.Errorf("failed to raise predictive alert: %w", err)
		}
		detail.AlertGenerated = true
		detail.AlertID = &alert.ID
		a.logger.Info("predictive alert raised",
			zap.Int64("equipment_id", eq.ID),
			zap.Int64("alert_id", alert.ID),
			zap.String("risk", string(p.Level)),
			zap.String("recommendation", p.Recommendation))
	}
	return detail, nil
}
