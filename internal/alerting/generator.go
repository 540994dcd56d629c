package alerting

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"k8s.io/utils/clock"

	"maintenance-monitor-backend/internal/metrics"
	"maintenance-monitor-backend/internal/model"
	"maintenance-monitor-backend/internal/notification"
	"maintenance-monitor-backend/internal/predictor"
)

// Realtime events and channels.
const (
	EventCriticalReading = "lectura-critica"
	EventNewAlert        = "nueva-alerta"
	ChannelAlerts        = "alertas"
)

// EquipmentChannel is the realtime channel of a single piece of equipment.
func EquipmentChannel(equipmentID int64) string {
	return ChannelAlerts + "." + strconv.FormatInt(equipmentID, 10)
}

// AlertStore is the persistence the generator needs.
type AlertStore interface {
	RecordAlert(ctx context.Context, candidate model.Alert, now time.Time, window time.Duration) (*model.Alert, bool, error)
	AlertRecipients(ctx context.Context, equipmentID *int64) ([]model.User, error)
}

// Notifier queues outbound notification tasks.
type Notifier interface {
	Dispatch(task notification.Task) bool
}

// Broadcaster publishes realtime events to subscribed clients.
type Broadcaster interface {
	Broadcast(channel, event string, data any)
}

// Config holds the generator settings.
type Config struct {
	DedupWindow time.Duration
	// BaseURL is the public address of the dashboard, used for links in notifications.
	BaseURL string
}

// ReadingEvent describes a persisted reading together with its context.
type ReadingEvent struct {
	Equipment  model.Equipment
	Sensor     model.Sensor
	Reading    model.Reading
	Prediction predictor.Prediction
}

// PredictiveEvent describes an actionable risk prediction for a piece of equipment.
type PredictiveEvent struct {
	Equipment  model.Equipment
	Prediction predictor.Prediction
	// Snapshot holds the latest value per sensor kind the prediction was made from.
	Snapshot  map[string]float64
	ReadingID *int64
}

// Generator turns classified readings and predictions into alerts and notifications.
type Generator struct {
	cfg      Config
	store    AlertStore
	notifier Notifier
	hub      Broadcaster
	cooldown *Cooldown
	clock    clock.PassiveClock
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewGenerator creates a generator.
func NewGenerator(cfg Config, store AlertStore, notifier Notifier, hub Broadcaster, cooldown *Cooldown, clk clock.PassiveClock, logger *zap.Logger, m *metrics.Metrics) *Generator {
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = time.Hour
	}
	return &Generator{
		cfg:      cfg,
		store:    store,
		notifier: notifier,
		hub:      hub,
		cooldown: cooldown,
		clock:    clk,
		logger:   logger,
		metrics:  m,
	}
}

// HandleReading raises or refreshes an alert for a reading that is not normal. It returns nil
// for normal readings.
func (g *Generator) HandleReading(ctx context.Context, ev ReadingEvent) (*model.Alert, error) {
	status := ev.Reading.Status
	if status == model.StatusNormal {
		return nil, nil
	}

	now := g.clock.Now()
	equipmentID := ev.Equipment.ID
	sensorID := ev.Sensor.ID
	readingID := ev.Reading.ID
	value := ev.Reading.Value

	candidate := model.Alert{
		EquipmentID:  &equipmentID,
		SensorID:     &sensorID,
		ReadingID:    &readingID,
		Severity:     SeverityFor(status, ev.Prediction),
		Source:       model.SourceCriticalReading,
		FailureType:  fmt.Sprintf("Lectura %s - %s", status, ev.Sensor.Kind),
		Title:        fmt.Sprintf("Lectura %s en %s", status, ev.Equipment.Name),
		Description:  fmt.Sprintf("El sensor %s registró un valor de %.2f", ev.Sensor.Kind, value),
		TriggerValue: &value,
	}
	if ev.Prediction.OK() {
		candidate.Prediction = datatypes.JSONMap(ev.Prediction.Raw)
	}

	alert, created, err := g.store.RecordAlert(ctx, candidate, now, g.cfg.DedupWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to record reading alert: %w", err)
	}
	g.recorded(model.SourceCriticalReading, created)

	g.hub.Broadcast(EquipmentChannel(equipmentID), EventCriticalReading, map[string]any{
		"lectura": ev.Reading,
		"equipo":  map[string]any{"id": equipmentID, "nombre": ev.Equipment.Name, "ubicacion": ev.Equipment.Location},
		"sensor":  map[string]any{"id": sensorID, "tipo": ev.Sensor.Kind},
		"alerta":  alert,
	})

	if status != model.StatusCritical {
		return alert, nil
	}
	if !g.cooldown.Allow(equipmentID) {
		g.logger.Debug("critical notification suppressed by cooldown", zap.Int64("equipment_id", equipmentID))
		return alert, nil
	}

	mail := notification.AlertMail{
		Title:         alert.Title,
		EquipmentID:   equipmentID,
		EquipmentName: ev.Equipment.Name,
		Location:      ev.Equipment.Location,
		SensorID:      &sensorID,
		SensorKind:    ev.Sensor.Kind,
		Value:         &value,
		Level:         string(status),
		LowThreshold:  ev.Sensor.LowThreshold,
		HighThreshold: ev.Sensor.HighThreshold,
		ObservedAt:    ev.Reading.CapturedAt,
		DetailsURL:    g.equipmentURL(equipmentID),
		GeneratedAt:   now,
	}
	if ev.Prediction.OK() {
		mail.RiskLevel = string(ev.Prediction.Level)
		mail.Probability = ev.Prediction.Probability
		mail.Recommendation = ev.Prediction.Recommendation
	}
	fields := []notification.Field{
		{Title: "Equipo", Value: ev.Equipment.Name},
		{Title: "Ubicación", Value: ev.Equipment.Location},
		{Title: "Sensor", Value: ev.Sensor.Kind},
		{Title: "Valor", Value: fmt.Sprintf("%.2f", value)},
	}
	g.notify(ctx, alert, equipmentID, mail, alert.Description, fields)
	return alert, nil
}

// RaisePredictive raises or refreshes a prediction alert for the equipment.
func (g *Generator) RaisePredictive(ctx context.Context, ev PredictiveEvent) (*model.Alert, error) {
	p := ev.Prediction
	if !p.OK() {
		return nil, fmt.Errorf("prediction for equipment %d is not usable: %w", ev.Equipment.ID, p.Err)
	}

	now := g.clock.Now()
	equipmentID := ev.Equipment.ID
	severity := MapRiskLevel(p.Level)

	candidate := model.Alert{
		EquipmentID:  &equipmentID,
		ReadingID:    ev.ReadingID,
		Severity:     severity,
		Source:       model.SourcePrediction,
		FailureType:  "Análisis Predictivo Completo - " + string(p.Level),
		Title:        "Alerta Predictiva - " + ev.Equipment.Name,
		Description:  predictiveDescription(ev),
		TriggerValue: p.Probability,
		Prediction:   datatypes.JSONMap(p.Raw),
	}

	alert, created, err := g.store.RecordAlert(ctx, candidate, now, g.cfg.DedupWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to record predictive alert: %w", err)
	}
	g.recorded(model.SourcePrediction, created)

	g.hub.Broadcast(ChannelAlerts, EventNewAlert, map[string]any{
		"alerta":     alert,
		"equipo":     map[string]any{"id": equipmentID, "nombre": ev.Equipment.Name, "ubicacion": ev.Equipment.Location},
		"prediccion": p.Raw,
	})

	// Moderate risk is recorded and broadcast only.
	if severity.Rank() < model.SeverityHigh.Rank() {
		return alert, nil
	}
	if !g.cooldown.Allow(equipmentID) {
		g.logger.Debug("predictive notification suppressed by cooldown", zap.Int64("equipment_id", equipmentID))
		return alert, nil
	}

	mail := notification.AlertMail{
		Title:          alert.Title,
		EquipmentID:    equipmentID,
		EquipmentName:  ev.Equipment.Name,
		Location:       ev.Equipment.Location,
		Level:          string(severity),
		RiskLevel:      string(p.Level),
		Probability:    p.Probability,
		Recommendation: p.Recommendation,
		ObservedAt:     now,
		DetailsURL:     g.equipmentURL(equipmentID),
		GeneratedAt:    now,
	}
	fields := []notification.Field{
		{Title: "Equipo", Value: ev.Equipment.Name},
		{Title: "Ubicación", Value: ev.Equipment.Location},
		{Title: "Nivel de riesgo", Value: string(p.Level)},
		{Title: "Probabilidad de fallo", Value: formatPercent(p.Probability)},
	}
	g.notify(ctx, alert, equipmentID, mail, p.Recommendation, fields)
	return alert, nil
}

// notify queues the e-mail, chat and push tasks of an alert. Failures are logged only.
func (g *Generator) notify(ctx context.Context, alert *model.Alert, equipmentID int64, mail notification.AlertMail, summary string, fields []notification.Field) {
	url := g.equipmentURL(equipmentID)

	recipients, err := g.store.AlertRecipients(ctx, &equipmentID)
	if err != nil {
		g.logger.Error("failed to resolve alert recipients", zap.Int64("equipment_id", equipmentID), zap.Error(err))
	}
	if len(recipients) > 0 {
		html, err := notification.RenderAlertMail(mail)
		if err != nil {
			g.logger.Error("failed to render alert mail", zap.Int64("alert_id", alert.ID), zap.Error(err))
		} else {
			emails := make([]string, 0, len(recipients))
			for _, u := range recipients {
				emails = append(emails, u.Email)
			}
			g.notifier.Dispatch(notification.Task{
				Channel:     notification.ChannelEmail,
				EquipmentID: equipmentID,
				Severity:    alert.Severity,
				Subject:     alert.Title,
				Body:        html,
				Recipients:  emails,
			})
		}
	} else {
		g.logger.Warn("no recipients for alert", zap.Int64("alert_id", alert.ID), zap.Int64("equipment_id", equipmentID))
	}

	g.notifier.Dispatch(notification.Task{
		Channel:     notification.ChannelChat,
		EquipmentID: equipmentID,
		Severity:    alert.Severity,
		Subject:     alert.Title,
		Body:        summary,
		Fields:      fields,
		URL:         url,
	})
	g.notifier.Dispatch(notification.Task{
		Channel:     notification.ChannelPush,
		EquipmentID: equipmentID,
		Severity:    alert.Severity,
		Subject:     alert.Title,
		Body:        summary,
		URL:         url,
	})
}

func (g *Generator) recorded(source model.AlertSource, created bool) {
	outcome := "deduplicated"
	if created {
		outcome = "created"
	}
	g.metrics.AlertsRecorded.WithLabelValues(string(source), outcome).Inc()
}

func (g *Generator) equipmentURL(equipmentID int64) string {
	if g.cfg.BaseURL == "" {
		return ""
	}
	return strings.TrimRight(g.cfg.BaseURL, "/") + "/equipos/" + strconv.FormatInt(equipmentID, 10)
}

func predictiveDescription(ev PredictiveEvent) string {
	p := ev.Prediction
	var b strings.Builder
	fmt.Fprintf(&b, "Equipo: %s\n", ev.Equipment.Name)
	fmt.Fprintf(&b, "Ubicación: %s\n", ev.Equipment.Location)
	fmt.Fprintf(&b, "Nivel de riesgo: %s\n", p.Level)
	fmt.Fprintf(&b, "Probabilidad de fallo: %s\n", formatPercent(p.Probability))

	if len(ev.Snapshot) > 0 {
		b.WriteString("\nDatos de sensores:\n")
		kinds := make([]string, 0, len(ev.Snapshot))
		for kind := range ev.Snapshot {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			fmt.Fprintf(&b, "- %s: %.2f\n", kind, ev.Snapshot[kind])
		}
	}

	if p.Recommendation != "" {
		fmt.Fprintf(&b, "\nRecomendación: %s", p.Recommendation)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatPercent(p *float64) string {
	if p == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.2f%%", *p)
}
