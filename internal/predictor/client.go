package predictor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"maintenance-monitor-backend/config"
	"maintenance-monitor-backend/internal/metrics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RiskLevel is the normalised risk class returned by the prediction service.
type RiskLevel string

const (
	RiskLow      RiskLevel = "bajo"
	RiskModerate RiskLevel = "moderado"
	RiskHigh     RiskLevel = "alto"
	RiskCritical RiskLevel = "crítico"
)

// ParseRiskLevel normalises the spellings the service and older clients use.
func ParseRiskLevel(raw string) (RiskLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "bajo":
		return RiskLow, true
	case "moderado", "medio":
		return RiskModerate, true
	case "alto":
		return RiskHigh, true
	case "crítico", "critico":
		return RiskCritical, true
	}
	return "", false
}

// Actionable reports whether the level warrants a predictive alert.
func (l RiskLevel) Actionable() bool {
	return l == RiskModerate || l == RiskHigh || l == RiskCritical
}

// Features is the request body of a prediction.
type Features struct {
	Temperature    float64 `json:"temperatura"`
	Vibration      float64 `json:"vibracion"`
	Pressure       float64 `json:"presion"`
	OperatingHours float64 `json:"horas_operacion"`
}

// Values used for sensor kinds without a recent reading.
const (
	DefaultTemperature    = 40.0
	DefaultVibration      = 20.0
	DefaultPressure       = 2.0
	DefaultOperatingHours = 1000.0
)

// FeaturesFrom builds the request features from the latest value per sensor kind.
func FeaturesFrom(snapshot map[string]float64, operatingHours *float64) Features {
	f := Features{
		Temperature:    DefaultTemperature,
		Vibration:      DefaultVibration,
		Pressure:       DefaultPressure,
		OperatingHours: DefaultOperatingHours,
	}
	if v, ok := snapshot["temperatura"]; ok {
		f.Temperature = v
	}
	if v, ok := snapshot["vibracion"]; ok {
		f.Vibration = v
	}
	if v, ok := snapshot["presion"]; ok {
		f.Pressure = v
	}
	if operatingHours != nil {
		f.OperatingHours = *operatingHours
	}
	return f
}

// NoPredictionRecommendation is the recommendation of a degraded prediction.
const NoPredictionRecommendation = "Sin predicción disponible"

// Prediction is the outcome of one call. A failed call carries Err and no level.
type Prediction struct {
	Level          RiskLevel
	Probability    *float64
	Recommendation string
	Raw            map[string]any
	Err            error
}

// OK reports whether the prediction carries a usable risk level.
func (p Prediction) OK() bool {
	return p.Err == nil && p.Level != ""
}

// OrFallback returns p, or a low-risk placeholder when the call failed.
func (p Prediction) OrFallback() Prediction {
	if p.OK() {
		return p
	}
	return Prediction{
		Level:          RiskLow,
		Recommendation: NoPredictionRecommendation,
		Raw: map[string]any{
			"nivel_riesgo":  string(RiskLow),
			"recomendacion": NoPredictionRecommendation,
		},
		Err: p.Err,
	}
}

// Client talks to the risk prediction service over HTTP.
type Client struct {
	baseURL      string
	client       *http.Client
	probeTimeout time.Duration
	logger       *zap.Logger
	metrics      *metrics.Metrics
}

// NewClient creates a prediction client. Every call is bounded by the configured timeouts.
func NewClient(cfg config.PredictorConfig, logger *zap.Logger, m *metrics.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	probe := cfg.ProbeTimeout
	if probe <= 0 {
		probe = 3 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		client:       &http.Client{Timeout: timeout},
		probeTimeout: probe,
		logger:       logger,
		metrics:      m,
	}
}

// Predict asks the service for the failure risk of the given features. It never returns an
// error: failures are reported through Prediction.Err.
func (c *Client) Predict(ctx context.Context, f Features) Prediction {
	start := time.Now()
	p := c.predict(ctx, f)

	outcome := "ok"
	if p.Err != nil {
		outcome = "error"
		c.logger.Warn("risk prediction failed", zap.Error(p.Err), zap.Any("features", f))
	}
	c.metrics.PredictorLatency.WithLabelValues("predict", outcome).Observe(time.Since(start).Seconds())
	return p
}

func (c *Client) predict(ctx context.Context, f Features) Prediction {
	body, err := json.Marshal(f)
	if err != nil {
		return Prediction{Err: fmt.Errorf("failed to marshal features: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predecir", bytes.NewReader(body))
	if err != nil {
		return Prediction{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Prediction{Err: fmt.Errorf("http request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Prediction{Err: fmt.Errorf("received non-2xx status code: %d", resp.StatusCode)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Prediction{Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Prediction{Err: fmt.Errorf("failed to unmarshal prediction: %w", err)}
	}
	return fromPayload(payload)
}

func fromPayload(payload map[string]any) Prediction {
	if msg, ok := payload["error"]; ok {
		return Prediction{Raw: payload, Err: fmt.Errorf("prediction service error: %v", msg)}
	}

	rawLevel, _ := payload["nivel_riesgo"].(string)
	level, ok := ParseRiskLevel(rawLevel)
	if !ok {
		return Prediction{Raw: payload, Err: fmt.Errorf("unknown risk level %q", rawLevel)}
	}

	p := Prediction{Level: level, Raw: payload}
	if prob, ok := payload["probabilidad_fallo"].(float64); ok {
		p.Probability = &prob
	}
	p.Recommendation, _ = payload["recomendacion"].(string)
	return p
}

// Available probes the service documentation endpoint; any 2xx answer means available.
func (c *Client) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	start := time.Now()
	ok := c.available(ctx)
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	c.metrics.PredictorLatency.WithLabelValues("probe", outcome).Observe(time.Since(start).Seconds())
	return ok
}

func (c *Client) available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/docs", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			c.logger.Info("prediction service unreachable", zap.Error(err))
		}
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}
