package report

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"k8s.io/utils/clock"

	"maintenance-monitor-backend/internal/model"
	"maintenance-monitor-backend/internal/store"
)

// Type is the reporting period.
type Type string

const (
	Daily   Type = "diario"
	Weekly  Type = "semanal"
	Monthly Type = "mensual"
)

// ParseType validates a raw report type. An empty value means daily.
func ParseType(raw string) (Type, error) {
	switch t := Type(raw); t {
	case "":
		return Daily, nil
	case Daily, Weekly, Monthly:
		return t, nil
	}
	return "", fmt.Errorf("unknown report type %q", raw)
}

// Label is the human readable name of the type.
func (t Type) Label() string {
	switch t {
	case Weekly:
		return "Semanal"
	case Monthly:
		return "Mensual"
	}
	return "Diario"
}

// Trend directions.
const (
	TrendUp     = "aumento"
	TrendDown   = "disminucion"
	TrendStable = "estable"
)

// UnassignedEquipment groups alerts whose equipment no longer exists.
const UnassignedEquipment = "Sin asignar"

// Store is the persistence the aggregator reads from.
type Store interface {
	CountEquipment(ctx context.Context) (total int64, active int64, err error)
	AlertsBetween(ctx context.Context, start, end time.Time) ([]model.Alert, error)
	CountAlertsBetween(ctx context.Context, start, end time.Time) (int64, error)
	CriticalEquipmentSince(ctx context.Context, since time.Time) ([]store.CriticalEquipment, error)
	ReadingValuesByKind(ctx context.Context, start, end time.Time) (map[string][]float64, error)
	UsersByRoles(ctx context.Context, roles ...string) ([]model.User, error)
}

// Request selects the report to build. Start and End override the period derived from Type.
type Request struct {
	Type       Type
	Start      *time.Time
	End        *time.Time
	Recipients []string
}

// Period is the time window of a report.
type Period struct {
	Start time.Time `json:"inicio"`
	End   time.Time `json:"fin"`
	Type  Type      `json:"tipo"`
}

// GeneralStats are the headline counters.
type GeneralStats struct {
	TotalEquipment  int64 `json:"total_equipos"`
	ActiveEquipment int64 `json:"equipos_activos"`
	TotalAlerts     int64 `json:"total_alertas"`
	CriticalAlerts  int64 `json:"alertas_criticas"`
	ModerateAlerts  int64 `json:"alertas_moderadas"`
	LowAlerts       int64 `json:"alertas_bajas"`
}

// EquipmentAlerts summarises the alerts of one piece of equipment.
type EquipmentAlerts struct {
	Equipment string     `json:"equipo"`
	Total     int        `json:"total_alertas"`
	Critical  int        `json:"criticas"`
	Moderate  int        `json:"moderadas"`
	LastAlert *time.Time `json:"ultima_alerta"`
}

// Trend compares the alert count with the previous period of equal length.
type Trend struct {
	Current       int64   `json:"actual"`
	Previous      int64   `json:"anterior"`
	Difference    int64   `json:"diferencia"`
	PercentChange float64 `json:"porcentaje_cambio"`
	Direction     string  `json:"tendencia"`
}

// Recommendation is an action suggested by the report.
type Recommendation struct {
	Type    string `json:"tipo"`
	Message string `json:"mensaje"`
	Action  string `json:"accion"`
}

// KindStats describes the readings of one sensor kind in the period.
type KindStats struct {
	Kind   string  `json:"tipo"`
	Count  int     `json:"lecturas"`
	Mean   float64 `json:"promedio"`
	StdDev float64 `json:"desviacion"`
	Max    float64 `json:"maximo"`
}

// Report is the aggregated maintenance report.
type Report struct {
	Period            Period                    `json:"periodo"`
	Stats             GeneralStats              `json:"estadisticas_generales"`
	AlertsByEquipment []EquipmentAlerts         `json:"alertas_por_equipo"`
	CriticalEquipment []store.CriticalEquipment `json:"equipos_criticos"`
	Trend             Trend                     `json:"tendencias"`
	Recommendations   []Recommendation          `json:"recomendaciones"`
	Readings          []KindStats               `json:"lecturas"`
	Recipients        []string                  `json:"destinatarios"`
	GeneratedAt       time.Time                 `json:"generado"`
}

// Aggregator builds reports from the store.
type Aggregator struct {
	store    Store
	clock    clock.PassiveClock
	location *time.Location
	logger   *zap.Logger
}

// NewAggregator creates an aggregator computing periods in loc. A nil loc means UTC.
func NewAggregator(st Store, clk clock.PassiveClock, loc *time.Location, logger *zap.Logger) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{store: st, clock: clk, location: loc, logger: logger}
}

// Build aggregates the report for the request.
func (a *Aggregator) Build(ctx context.Context, req Request) (*Report, error) {
	now := a.clock.Now().In(a.location)
	period := PeriodFor(req.Type, now)
	if req.Start != nil {
		period.Start = *req.Start
	}
	if req.End != nil {
		period.End = *req.End
	}
	if period.End.Before(period.Start) {
		return nil, fmt.Errorf("report period ends before it starts")
	}

	r := &Report{Period: period, GeneratedAt: now}

	total, active, err := a.store.CountEquipment(ctx)
	if err != nil {
		return nil, err
	}
	r.Stats.TotalEquipment, r.Stats.ActiveEquipment = total, active

	alerts, err := a.store.AlertsBetween(ctx, period.Start, period.End)
	if err != nil {
		return nil, err
	}
	r.Stats.TotalAlerts = int64(len(alerts))
	for _, al := range alerts {
		switch severityBucket(al.Severity) {
		case bucketCritical:
			r.Stats.CriticalAlerts++
		case bucketModerate:
			r.Stats.ModerateAlerts++
		default:
			r.Stats.LowAlerts++
		}
	}
	r.AlertsByEquipment = groupByEquipment(alerts)

	r.CriticalEquipment, err = a.store.CriticalEquipmentSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}

	prevStart, prevEnd := PreviousPeriod(period.Start, period.End)
	previous, err := a.store.CountAlertsBetween(ctx, prevStart, prevEnd)
	if err != nil {
		return nil, err
	}
	r.Trend = ComputeTrend(r.Stats.TotalAlerts, previous)
	r.Recommendations = Recommendations(len(r.CriticalEquipment), r.Trend)

	values, err := a.store.ReadingValuesByKind(ctx, period.Start, period.End)
	if err != nil {
		return nil, err
	}
	r.Readings = readingStats(values)

	r.Recipients, err = a.recipients(ctx, req.Recipients)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("maintenance report built",
		zap.String("type", string(period.Type)),
		zap.Time("start", period.Start),
		zap.Time("end", period.End),
		zap.Int64("alerts", r.Stats.TotalAlerts))
	return r, nil
}

func (a *Aggregator) recipients(ctx context.Context, explicit []string) ([]string, error) {
	if len(explicit) > 0 {
		return explicit, nil
	}
	users, err := a.store.UsersByRoles(ctx, model.RoleAdmin, model.RoleSupervisor)
	if err != nil {
		return nil, err
	}
	emails := make([]string, 0, len(users))
	for _, u := range users {
		emails = append(emails, u.Email)
	}
	return emails, nil
}

// PeriodFor returns the period of the given type containing now, in now's location.
func PeriodFor(t Type, now time.Time) Period {
	y, m, d := now.Date()
	loc := now.Location()
	startOfDay := time.Date(y, m, d, 0, 0, 0, 0, loc)

	var start, end time.Time
	switch t {
	case Weekly:
		offset := (int(now.Weekday()) + 6) % 7 // days since Monday
		start = startOfDay.AddDate(0, 0, -offset)
		end = start.AddDate(0, 0, 7)
	case Monthly:
		start = time.Date(y, m, 1, 0, 0, 0, 0, loc)
		end = start.AddDate(0, 1, 0)
	default:
		t = Daily
		start = startOfDay
		end = start.AddDate(0, 0, 1)
	}
	return Period{Start: start, End: end.Add(-time.Nanosecond), Type: t}
}

// PreviousPeriod returns the window of equal length ending right before start.
func PreviousPeriod(start, end time.Time) (time.Time, time.Time) {
	length := end.Sub(start) + time.Nanosecond
	return start.Add(-length), start.Add(-time.Nanosecond)
}

// ComputeTrend compares two alert counts. The percentage is relative to the previous count,
// rounded to two decimals, and zero when there were no previous alerts.
func ComputeTrend(current, previous int64) Trend {
	diff := current - previous
	t := Trend{Current: current, Previous: previous, Difference: diff, Direction: TrendStable}
	if previous > 0 {
		t.PercentChange = round2(float64(diff) / float64(previous) * 100)
	}
	switch {
	case diff > 0:
		t.Direction = TrendUp
	case diff < 0:
		t.Direction = TrendDown
	}
	return t
}

// Recommendations derives the suggested actions from the critical equipment count and trend.
func Recommendations(criticalEquipment int, trend Trend) []Recommendation {
	var out []Recommendation
	if criticalEquipment > 0 {
		out = append(out, Recommendation{
			Type:    "critico",
			Message: fmt.Sprintf("Atención inmediata requerida para %d equipos con alertas críticas", criticalEquipment),
			Action:  "Revisar equipos críticos inmediatamente",
		})
	}
	if trend.Direction == TrendUp {
		out = append(out, Recommendation{
			Type:    "advertencia",
			Message: "Aumento del " + strconv.FormatFloat(math.Abs(trend.PercentChange), 'f', -1, 64) + "% en alertas",
			Action:  "Investigar causas del aumento de alertas",
		})
	}
	return out
}

type bucket int

const (
	bucketLow bucket = iota
	bucketModerate
	bucketCritical
)

func severityBucket(s model.Severity) bucket {
	switch s {
	case model.SeverityHigh, model.SeverityCritical:
		return bucketCritical
	case model.SeverityMedium:
		return bucketModerate
	}
	return bucketLow
}

func groupByEquipment(alerts []model.Alert) []EquipmentAlerts {
	groups := make(map[string]*EquipmentAlerts)
	for _, al := range alerts {
		name := UnassignedEquipment
		if al.Equipment != nil {
			name = al.Equipment.Name
		}
		g, ok := groups[name]
		if !ok {
			g = &EquipmentAlerts{Equipment: name}
			groups[name] = g
		}
		g.Total++
		switch severityBucket(al.Severity) {
		case bucketCritical:
			g.Critical++
		case bucketModerate:
			g.Moderate++
		}
		if g.LastAlert == nil || al.CreatedAt.After(*g.LastAlert) {
			created := al.CreatedAt
			g.LastAlert = &created
		}
	}

	out := make([]EquipmentAlerts, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Equipment < out[j].Equipment
	})
	return out
}

func readingStats(values map[string][]float64) []KindStats {
	kinds := make([]string, 0, len(values))
	for kind, v := range values {
		if len(v) > 0 {
			kinds = append(kinds, kind)
		}
	}
	sort.Strings(kinds)

	out := make([]KindStats, 0, len(kinds))
	for _, kind := range kinds {
		v := values[kind]
		ks := KindStats{Kind: kind, Count: len(v), Max: floats.Max(v)}
		if len(v) > 1 {
			ks.Mean, ks.StdDev = stat.MeanStdDev(v, nil)
		} else {
			ks.Mean = v[0]
		}
		ks.Mean, ks.StdDev = round2(ks.Mean), round2(ks.StdDev)
		out = append(out, ks)
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
