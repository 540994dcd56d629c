package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"go.uber.org/zap"

	"maintenance-monitor-backend/internal/metrics"
	"maintenance-monitor-backend/internal/notification"
)

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"date":     func(t time.Time) string { return t.Format("02/01/2006") },
	"datetime": func(t time.Time) string { return t.Format("02/01/2006 15:04") },
	"upper":    strings.ToUpper,
	"pct":      func(v float64) string { return fmt.Sprintf("%.1f", v) },
	"num":      func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"signed": func(v int64) string {
		if v > 0 {
			return fmt.Sprintf("+%d", v)
		}
		return fmt.Sprintf("%d", v)
	},
}).Parse(`<!DOCTYPE html>
<html lang="es">
<head>
<meta charset="UTF-8">
<title>Reporte de Mantenimiento Predictivo</title>
<style>
body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; line-height: 1.6; color: #333; margin: 0; background-color: #f4f4f4; }
.container { max-width: 800px; margin: 0 auto; background: white; }
.header { background: #667eea; color: white; padding: 30px; text-align: center; }
.content { padding: 30px; }
.section { margin-bottom: 30px; border: 1px solid #e0e0e0; border-radius: 8px; }
.section-header { background: #f8f9fa; padding: 15px 20px; border-bottom: 1px solid #e0e0e0; font-weight: bold; }
.section-content { padding: 20px; }
.table { width: 100%; border-collapse: collapse; }
.table th, .table td { padding: 12px; text-align: left; border-bottom: 1px solid #e0e0e0; }
.aumento { color: #dc3545; }
.disminucion { color: #28a745; }
.estable { color: #6c757d; }
.footer { background: #343a40; color: white; padding: 20px; text-align: center; font-size: 12px; }
</style>
</head>
<body>
<div class="container">
  <div class="header">
    <h1>Reporte de Mantenimiento Predictivo</h1>
    <h2>{{.Report.Period.Type.Label}} - {{date .Report.Period.Start}} al {{date .Report.Period.End}}</h2>
    <p>Generado el: {{datetime .Report.GeneratedAt}}</p>
  </div>
  <div class="content">
    <div class="section">
      <div class="section-header">Estadísticas Generales</div>
      <div class="section-content">
        <table class="table">
          <tr><th>Total Equipos</th><td>{{.Report.Stats.TotalEquipment}}</td></tr>
          <tr><th>Equipos Activos</th><td>{{.Report.Stats.ActiveEquipment}}</td></tr>
          <tr><th>Total Alertas</th><td>{{.Report.Stats.TotalAlerts}}</td></tr>
          <tr><th>Alertas Críticas</th><td>{{.Report.Stats.CriticalAlerts}}</td></tr>
          <tr><th>Alertas Moderadas</th><td>{{.Report.Stats.ModerateAlerts}}</td></tr>
          <tr><th>Alertas Bajas</th><td>{{.Report.Stats.LowAlerts}}</td></tr>
        </table>
      </div>
    </div>
    {{- if .Report.AlertsByEquipment}}
    <div class="section">
      <div class="section-header">Alertas por Equipo</div>
      <div class="section-content">
        <table class="table">
          <thead><tr><th>Equipo</th><th>Total Alertas</th><th>Críticas</th><th>Moderadas</th><th>Última Alerta</th></tr></thead>
          <tbody>
          {{- range .Report.AlertsByEquipment}}
            <tr><td><strong>{{.Equipment}}</strong></td><td>{{.Total}}</td><td>{{.Critical}}</td><td>{{.Moderate}}</td><td>{{if .LastAlert}}{{datetime .LastAlert}}{{else}}N/A{{end}}</td></tr>
          {{- end}}
          </tbody>
        </table>
      </div>
    </div>
    {{- end}}
    {{- if .Report.CriticalEquipment}}
    <div class="section">
      <div class="section-header">Equipos Requiriendo Atención Inmediata</div>
      <div class="section-content">
      {{- range .Report.CriticalEquipment}}
        <p><strong>{{.Name}}</strong> ({{.Location}})<br><small>Lecturas críticas recientes: {{.CriticalReadings}}</small></p>
      {{- end}}
      </div>
    </div>
    {{- end}}
    <div class="section">
      <div class="section-header">Tendencias y Comparativas</div>
      <div class="section-content">
        <ul>
          <li>Alertas actuales: <strong>{{.Report.Trend.Current}}</strong></li>
          <li>Alertas período anterior: <strong>{{.Report.Trend.Previous}}</strong></li>
          <li>Diferencia: <strong class="{{.Report.Trend.Direction}}">{{signed .Report.Trend.Difference}} ({{pct .Report.Trend.PercentChange}}%)</strong></li>
        </ul>
        <p class="{{.Report.Trend.Direction}}"><strong>Tendencia: {{.Report.Trend.Direction}}</strong></p>
      </div>
    </div>
    {{- if .Report.Readings}}
    <div class="section">
      <div class="section-header">Lecturas por Tipo de Sensor</div>
      <div class="section-content">
        <table class="table">
          <thead><tr><th>Tipo</th><th>Lecturas</th><th>Promedio</th><th>Desviación</th><th>Máximo</th></tr></thead>
          <tbody>
          {{- range .Report.Readings}}
            <tr><td>{{.Kind}}</td><td>{{.Count}}</td><td>{{num .Mean}}</td><td>{{num .StdDev}}</td><td>{{num .Max}}</td></tr>
          {{- end}}
          </tbody>
        </table>
      </div>
    </div>
    {{- end}}
    {{- if .Report.Recommendations}}
    <div class="section">
      <div class="section-header">Recomendaciones</div>
      <div class="section-content">
      {{- range .Report.Recommendations}}
        <p><strong>{{upper .Type}}:</strong> {{.Message}}<br><em>Acción recomendada: {{.Action}}</em></p>
      {{- end}}
      </div>
    </div>
    {{- end}}
    <div class="section">
      <div class="section-header">Información del Reporte</div>
      <div class="section-content">
        <p><strong>Reporte generado para:</strong> {{.Recipient}}</p>
        <p><strong>Período cubierto:</strong> {{datetime .Report.Period.Start}} - {{datetime .Report.Period.End}}</p>
      </div>
    </div>
  </div>
  <div class="footer">
    <p><strong>Sistema de Mantenimiento Predictivo</strong></p>
    <p>Este reporte fue generado automáticamente por el sistema de monitoreo.</p>
  </div>
</div>
</body>
</html>
`))

// Render renders the HTML report addressed to recipient.
func Render(r *Report, recipient string) (string, error) {
	var buf bytes.Buffer
	err := reportTemplate.Execute(&buf, struct {
		Report    *Report
		Recipient string
	}{r, recipient})
	if err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return buf.String(), nil
}

// Subject is the e-mail subject of a report.
func Subject(r *Report) string {
	return fmt.Sprintf("Reporte de Mantenimiento Predictivo - %s - %s", r.Period.Type.Label(), r.GeneratedAt.Format("02/01/2006"))
}

// Sender builds reports and mails them.
type Sender struct {
	aggregator *Aggregator
	mailer     notification.Mailer
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewSender creates a sender.
func NewSender(a *Aggregator, mailer notification.Mailer, logger *zap.Logger, m *metrics.Metrics) *Sender {
	return &Sender{aggregator: a, mailer: mailer, logger: logger, metrics: m}
}

// Send builds the report and mails one copy to every recipient. Delivery continues past a
// failed recipient; all failures are logged and returned together.
func (s *Sender) Send(ctx context.Context, req Request) (*Report, error) {
	r, err := s.aggregator.Build(ctx, req)
	if err != nil {
		s.metrics.ReportsSent.WithLabelValues("failed").Inc()
		s.logger.Error("failed to build maintenance report", zap.String("type", string(req.Type)), zap.Error(err))
		return nil, fmt.Errorf("failed to build report: %w", err)
	}
	if len(r.Recipients) == 0 {
		s.logger.Warn("maintenance report has no recipients", zap.String("type", string(r.Period.Type)))
		return r, nil
	}

	subject := Subject(r)
	var errs []error
	for _, to := range r.Recipients {
		html, err := Render(r, to)
		if err == nil {
			err = s.mailer.Send(ctx, notification.Mail{To: []string{to}, Subject: subject, HTML: html})
		}
		if err != nil {
			s.metrics.ReportsSent.WithLabelValues("failed").Inc()
			s.logger.Error("failed to send maintenance report",
				zap.String("type", string(r.Period.Type)),
				zap.String("recipient", to),
				zap.Time("period_start", r.Period.Start),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", to, err))
			continue
		}
		s.metrics.ReportsSent.WithLabelValues("sent").Inc()
		s.logger.Info("maintenance report sent",
			zap.String("type", string(r.Period.Type)),
			zap.String("recipient", to))
	}
	return r, errors.Join(errs...)
}
