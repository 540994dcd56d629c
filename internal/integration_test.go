package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"k8s.io/utils/clock"

	"maintenance-monitor-backend/config"
	"maintenance-monitor-backend/internal/alerting"
	"maintenance-monitor-backend/internal/analysis"
	"maintenance-monitor-backend/internal/api"
	"maintenance-monitor-backend/internal/db"
	"maintenance-monitor-backend/internal/ingest"
	"maintenance-monitor-backend/internal/metrics"
	"maintenance-monitor-backend/internal/model"
	"maintenance-monitor-backend/internal/mw"
	"maintenance-monitor-backend/internal/notification"
	"maintenance-monitor-backend/internal/predictor"
	"maintenance-monitor-backend/internal/realtime"
	"maintenance-monitor-backend/internal/report"
	"maintenance-monitor-backend/internal/store"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []notification.Mail
}

func (m *recordingMailer) Send(_ context.Context, mail notification.Mail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, mail)
	return nil
}

func (m *recordingMailer) Sent() []notification.Mail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notification.Mail(nil), m.sent...)
}

type stack struct {
	db      *gorm.DB
	metrics *metrics.Metrics
	mailer  *recordingMailer
	server  *httptest.Server
}

// newStack wires the service the way serve does, on in-memory sqlite and a fake prediction
// service that reports critical risk for hot equipment.
func newStack(t *testing.T) *stack {
	gin.SetMode(gin.TestMode)

	predictorSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/docs":
			w.WriteHeader(http.StatusOK)
		case "/predecir":
			var f predictor.Features
			if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			level := "bajo"
			if f.Temperature >= 90 {
				level = "crítico"
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"nivel_riesgo":       level,
				"probabilidad_fallo": 0.9,
				"recomendacion":      "Revisar rodamientos",
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(predictorSrv.Close)

	cfg := &config.Config{
		Database:  config.DatabaseConfig{DSN: fmt.Sprintf("sqlite:file:%s?mode=memory&cache=shared", t.Name()), MaxOpenConns: 1},
		Predictor: config.PredictorConfig{BaseURL: predictorSrv.URL},
	}
	cfg.ApplyDefaults()

	logger := zap.NewNop()
	gormDB, err := db.Open(&cfg.Database)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gormDB, &cfg.Database, logger))
	t.Cleanup(func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			sqlDB.Close()
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	clk := clock.RealClock{}
	st := store.NewGormStore(gormDB)
	m := metrics.New()
	hub := realtime.NewHub(logger, m)
	go hub.Run(ctx)

	mailer := &recordingMailer{}
	dispatcher := notification.NewDispatcher(notification.Options{Workers: 2, QueueSize: 16, Mailer: mailer}, st, logger, m)
	dispatcher.Start(ctx)

	cooldown := alerting.NewCooldown(clk, cfg.Notification.Cooldown, cfg.Notification.CooldownExpiry)
	gen := alerting.NewGenerator(alerting.Config{DedupWindow: cfg.Notification.DedupWindow}, st, dispatcher, hub, cooldown, clk, logger, m)
	pred := predictor.NewClient(cfg.Predictor, logger, m)
	svc := ingest.NewService(st, pred, gen, clk, logger, m)
	analyzer := analysis.NewAnalyzer(st, pred, gen, clk, logger, m)
	agg := report.NewAggregator(st, clk, time.UTC, logger)

	h := api.NewHandler(api.Deps{
		Store:      st,
		Recorder:   svc,
		Analysis:   analysis.NewTracker(analyzer, time.Hour),
		Builder:    agg,
		Reports:    report.NewSender(agg, mailer, logger, m),
		Clock:      clk,
		Logger:     logger,
		Background: ctx,
	})
	router := api.NewRouter(h, api.RouterOptions{
		Server:  config.ServerConfig{RateLimitPerSec: 1000, RateLimitBurst: 1000, CacheTTLSeconds: 30},
		Auth:    mw.NewAuthenticator("", ""),
		Metrics: m.Handler(),
		WS:      hub.ServeWS,
		Logger:  logger,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &stack{db: gormDB, metrics: m, mailer: mailer, server: srv}
}

func (s *stack) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func float(v float64) *float64 { return &v }

// seedPump creates a pump with temperature, vibration and pressure sensors and one technician
// assigned to it.
func seedPump(t *testing.T, gormDB *gorm.DB) (model.Equipment, map[string]model.Sensor) {
	tech := model.User{Name: "Tecnico Uno", Email: "tecnico@example.com", Role: model.RoleTechnician, Active: true}
	require.NoError(t, gormDB.Create(&tech).Error)

	pump := model.Equipment{Name: "Bomba Principal", Type: "bomba", Location: "Planta Norte", Status: model.EquipmentActive}
	require.NoError(t, gormDB.Create(&pump).Error)
	require.NoError(t, gormDB.Model(&pump).Association("Technicians").Append(&tech))

	sensors := map[string]model.Sensor{
		model.KindTemperature: {EquipmentID: pump.ID, Kind: model.KindTemperature, LowThreshold: float(10), HighThreshold: float(80)},
		model.KindVibration:   {EquipmentID: pump.ID, Kind: model.KindVibration, LowThreshold: float(0), HighThreshold: float(50)},
		model.KindPressure:    {EquipmentID: pump.ID, Kind: model.KindPressure, LowThreshold: float(1), HighThreshold: float(6)},
	}
	for kind, s := range sensors {
		require.NoError(t, gormDB.Create(&s).Error)
		sensors[kind] = s
	}
	return pump, sensors
}

// TestCriticalReadingPipeline follows one critical reading from the HTTP API through
// classification and alerting to the websocket subscriber and the technician's mailbox.
func TestCriticalReadingPipeline(t *testing.T) {
	s := newStack(t)
	pump, sensors := seedPump(t, s.db)

	wsURL := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws?channel=" + alerting.EquipmentChannel(pump.ID)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(s.metrics.RealtimeClients) == 1
	}, 2*time.Second, 10*time.Millisecond)

	temp := sensors[model.KindTemperature]
	resp, body := s.do(t, http.MethodPost, fmt.Sprintf("/api/sensors/%d/readings", temp.ID), map[string]any{"valor": 95.5})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	reading := body["lectura"].(map[string]any)
	assert.Equal(t, string(model.StatusCritical), reading["status"])
	alert := body["alerta"].(map[string]any)
	assert.Equal(t, string(model.SeverityCritical), alert["severity"])
	assert.NotNil(t, body["prediccion"], "the predictor is consulted for every reading")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg realtime.Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, alerting.EventCriticalReading, msg.Event)

	var stored []model.Alert
	require.NoError(t, s.db.Where("equipment_id = ?", pump.ID).Find(&stored).Error)
	require.Len(t, stored, 1)
	assert.Equal(t, model.SourceCriticalReading, stored[0].Source)

	require.Eventually(t, func() bool { return len(s.mailer.Sent()) == 1 }, 2*time.Second, 10*time.Millisecond)
	mail := s.mailer.Sent()[0]
	assert.Equal(t, []string{"tecnico@example.com"}, mail.To)
	assert.Contains(t, mail.HTML, "Bomba Principal")

	// A second breach within the dedup window refreshes the same alert.
	resp, _ = s.do(t, http.MethodPost, fmt.Sprintf("/api/sensors/%d/readings", temp.ID), map[string]any{"valor": 97})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NoError(t, s.db.Where("equipment_id = ?", pump.ID).Find(&stored).Error)
	require.Len(t, stored, 1)
	assert.Equal(t, 2, stored[0].Occurrences)
}

// TestBatchAnalysisPipeline runs a background analysis through the API against the fake
// prediction service and checks the predictive alert it raises.
func TestBatchAnalysisPipeline(t *testing.T) {
	s := newStack(t)
	pump, sensors := seedPump(t, s.db)

	for kind, value := range map[string]float64{
		model.KindTemperature: 92,
		model.KindVibration:   30,
		model.KindPressure:    3.5,
	} {
		resp, _ := s.do(t, http.MethodPost, fmt.Sprintf("/api/sensors/%d/readings", sensors[kind].ID), map[string]any{"valor": value})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, body := s.do(t, http.MethodPost, "/api/analysis", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	id := body["id"].(string)

	var run map[string]any
	require.Eventually(t, func() bool {
		_, run = s.do(t, http.MethodGet, "/api/analysis/"+id, nil)
		return run["estado"] == analysis.RunCompleted
	}, 5*time.Second, 20*time.Millisecond)

	result := run["resultado"].(map[string]any)
	assert.Equal(t, 1.0, result["equipos_analizados"])
	assert.Equal(t, 1.0, result["alertas_generadas"])
	assert.Equal(t, 100.0, result["tasa_exito"])

	var predictive model.Alert
	require.NoError(t, s.db.Where("equipment_id = ? AND source = ?", pump.ID, model.SourcePrediction).First(&predictive).Error)
	assert.Equal(t, model.SeverityHigh, predictive.Severity)
	assert.Equal(t, "crítico", predictive.Prediction["nivel_riesgo"])
}
