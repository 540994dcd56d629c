package alerting

import (
	"maintenance-monitor-backend/internal/model"
	"maintenance-monitor-backend/internal/predictor"
)

// Thresholds used when a sensor has none configured.
const (
	DefaultLowThreshold  = 50.0
	DefaultHighThreshold = 80.0
)

// Classify derives the status of a reading from the sensor thresholds.
// value >= high is critical, low <= value < high is a warning, anything else is normal.
func Classify(value float64, low, high *float64) model.ReadingStatus {
	lo, hi := DefaultLowThreshold, DefaultHighThreshold
	if low != nil {
		lo = *low
	}
	if high != nil {
		hi = *high
	}

	switch {
	case value >= hi:
		return model.StatusCritical
	case value >= lo:
		return model.StatusWarning
	}
	return model.StatusNormal
}

// Combine folds a prediction into a threshold status. A critical risk forces the critical
// status and a high risk raises a normal reading to a warning. A status is never lowered.
func Combine(status model.ReadingStatus, p predictor.Prediction) model.ReadingStatus {
	if !p.OK() {
		return status
	}
	switch p.Level {
	case predictor.RiskCritical:
		return model.StatusCritical
	case predictor.RiskHigh:
		if status != model.StatusCritical {
			return model.StatusWarning
		}
	}
	return status
}

// MapRiskLevel translates a risk level to an alert severity.
func MapRiskLevel(level predictor.RiskLevel) model.Severity {
	switch level {
	case predictor.RiskLow:
		return model.SeverityLow
	case predictor.RiskModerate:
		return model.SeverityMedium
	case predictor.RiskHigh, predictor.RiskCritical:
		return model.SeverityHigh
	}
	return model.SeverityMedium
}

// statusSeverity is the alert severity implied by a reading status alone.
func statusSeverity(status model.ReadingStatus) model.Severity {
	switch status {
	case model.StatusCritical:
		return model.SeverityCritical
	case model.StatusWarning:
		return model.SeverityMedium
	}
	return model.SeverityLow
}

// SeverityFor returns the severity of an alert raised for a reading: the more severe of the
// severity implied by the combined status and the mapped risk level.
func SeverityFor(status model.ReadingStatus, p predictor.Prediction) model.Severity {
	severity := statusSeverity(Combine(status, p))
	if p.OK() {
		severity = model.MaxSeverity(severity, MapRiskLevel(p.Level))
	}
	return severity
}
