package predictor

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"maintenance-monitor-backend/config"
	"maintenance-monitor-backend/internal/metrics"
)

func newTestClient(url string, timeout time.Duration) *Client {
	return NewClient(config.PredictorConfig{
		BaseURL:      url,
		Timeout:      timeout,
		ProbeTimeout: timeout,
	}, zap.NewNop(), metrics.New())
}

func TestClient_Predict(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/predecir", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"probabilidad_fallo": 72.5, "nivel_riesgo": "alto", "recomendacion": "Programar mantenimiento en las próximas 24 horas", "modelo": "rf-v2"}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL, time.Second)
	p := c.Predict(context.Background(), Features{Temperature: 85, Vibration: 31, Pressure: 4.2, OperatingHours: 1200})

	require.NoError(t, p.Err)
	assert.True(t, p.OK())
	assert.Equal(t, RiskHigh, p.Level)
	require.NotNil(t, p.Probability)
	assert.Equal(t, 72.5, *p.Probability)
	assert.Equal(t, "Programar mantenimiento en las próximas 24 horas", p.Recommendation)
	assert.Equal(t, "rf-v2", p.Raw["modelo"], "the raw payload is kept verbatim")

	assert.Equal(t, 85.0, received["temperatura"])
	assert.Equal(t, 31.0, received["vibracion"])
	assert.Equal(t, 4.2, received["presion"])
	assert.Equal(t, 1200.0, received["horas_operacion"])
}

func TestClient_PredictFailuresDegrade(t *testing.T) {
	testCases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "error body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"error": "Modelo no disponible"}`))
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`<html>`))
			},
		},
		{
			name: "unknown risk level",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"nivel_riesgo": "extremo"}`))
			},
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(200 * time.Millisecond)
				_, _ = w.Write([]byte(`{"nivel_riesgo": "bajo"}`))
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()

			c := newTestClient(server.URL, 50*time.Millisecond)
			p := c.Predict(context.Background(), Features{})

			assert.Error(t, p.Err)
			assert.False(t, p.OK())

			fallback := p.OrFallback()
			assert.Equal(t, RiskLow, fallback.Level)
			assert.Equal(t, NoPredictionRecommendation, fallback.Recommendation)
		})
	}
}

func TestClient_PredictUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	p := newTestClient(url, time.Second).Predict(context.Background(), Features{})
	assert.Error(t, p.Err)
}

func TestClient_Available(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/docs", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()
	assert.True(t, newTestClient(up.URL, time.Second).Available(context.Background()))

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	assert.False(t, newTestClient(down.URL, time.Second).Available(context.Background()))
}

func TestParseRiskLevel(t *testing.T) {
	testCases := []struct {
		raw      string
		expected RiskLevel
		ok       bool
	}{
		{"bajo", RiskLow, true},
		{"moderado", RiskModerate, true},
		{"medio", RiskModerate, true},
		{"Alto", RiskHigh, true},
		{"crítico", RiskCritical, true},
		{"critico", RiskCritical, true},
		{"", "", false},
		{"desconocido", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			level, ok := ParseRiskLevel(tc.raw)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.expected, level)
		})
	}
}

func TestFeaturesFrom(t *testing.T) {
	f := FeaturesFrom(map[string]float64{"temperatura": 71.5}, nil)
	assert.Equal(t, Features{Temperature: 71.5, Vibration: 20, Pressure: 2, OperatingHours: 1000}, f)

	hours := 4200.0
	f = FeaturesFrom(map[string]float64{"vibracion": 33, "presion": 5.5, "humedad": 60}, &hours)
	assert.Equal(t, Features{Temperature: 40, Vibration: 33, Pressure: 5.5, OperatingHours: 4200}, f)
}
