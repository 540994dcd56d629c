package alerting

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"maintenance-monitor-backend/internal/model"
	"maintenance-monitor-backend/internal/predictor"
)

func ptr(v float64) *float64 { return &v }

func TestClassify(t *testing.T) {
	testCases := []struct {
		name      string
		value     float64
		low, high *float64
		want      model.ReadingStatus
	}{
		{"below low", 29.9, ptr(30), ptr(70), model.StatusNormal},
		{"at low", 30, ptr(30), ptr(70), model.StatusWarning},
		{"between", 69.99, ptr(30), ptr(70), model.StatusWarning},
		{"at high", 70, ptr(30), ptr(70), model.StatusCritical},
		{"above high", 120, ptr(30), ptr(70), model.StatusCritical},
		{"defaults normal", 49.9, nil, nil, model.StatusNormal},
		{"defaults warning", 50, nil, nil, model.StatusWarning},
		{"defaults critical", 80, nil, nil, model.StatusCritical},
		{"only high set", 60, nil, ptr(100), model.StatusWarning},
		{"negative value", -5, ptr(0), ptr(10), model.StatusNormal},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.value, tc.low, tc.high))
		})
	}
}

func TestCombine(t *testing.T) {
	critical := predictor.Prediction{Level: predictor.RiskCritical}
	high := predictor.Prediction{Level: predictor.RiskHigh}
	low := predictor.Prediction{Level: predictor.RiskLow}
	failed := predictor.Prediction{Err: errors.New("timeout")}

	statuses := []model.ReadingStatus{model.StatusNormal, model.StatusWarning, model.StatusCritical}
	for _, s := range statuses {
		assert.Equal(t, model.StatusCritical, Combine(s, critical), "crítico forces critico from %s", s)
		assert.Equal(t, s, Combine(s, failed), "failed prediction keeps %s", s)
		assert.Equal(t, s, Combine(s, low), "low risk keeps %s", s)
		assert.GreaterOrEqual(t, Combine(s, high).Rank(), s.Rank(), "alto never lowers %s", s)
	}

	assert.Equal(t, model.StatusWarning, Combine(model.StatusNormal, high))
	assert.Equal(t, model.StatusCritical, Combine(model.StatusCritical, high))
}

func TestMapRiskLevel(t *testing.T) {
	assert.Equal(t, model.SeverityLow, MapRiskLevel(predictor.RiskLow))
	assert.Equal(t, model.SeverityMedium, MapRiskLevel(predictor.RiskModerate))
	assert.Equal(t, model.SeverityHigh, MapRiskLevel(predictor.RiskHigh))
	assert.Equal(t, model.SeverityHigh, MapRiskLevel(predictor.RiskCritical))
	assert.Equal(t, model.SeverityMedium, MapRiskLevel("desconocido"))
}

func TestSeverityFor(t *testing.T) {
	none := predictor.Prediction{}

	assert.Equal(t, model.SeverityCritical, SeverityFor(model.StatusCritical, none))
	assert.Equal(t, model.SeverityMedium, SeverityFor(model.StatusWarning, none))
	assert.Equal(t, model.SeverityCritical, SeverityFor(model.StatusNormal, predictor.Prediction{Level: predictor.RiskCritical}))
	assert.Equal(t, model.SeverityHigh, SeverityFor(model.StatusWarning, predictor.Prediction{Level: predictor.RiskHigh}))
	assert.Equal(t, model.SeverityCritical, SeverityFor(model.StatusCritical, predictor.Prediction{Level: predictor.RiskLow}))
}
