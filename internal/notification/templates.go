package notification

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// AlertMail is the data of the alert e-mail.
type AlertMail struct {
	Title          string
	EquipmentID    int64
	EquipmentName  string
	Location       string
	SensorID       *int64
	SensorKind     string
	Value          *float64
	Level          string
	LowThreshold   *float64
	HighThreshold  *float64
	RiskLevel      string
	Probability    *float64
	Recommendation string
	ObservedAt     time.Time
	DetailsURL     string
	GeneratedAt    time.Time
}

var alertTemplate = template.Must(template.New("alert").Funcs(template.FuncMap{
	"num": formatOptional,
	"ts":  func(t time.Time) string { return t.Format("02/01/2006 15:04:05") },
}).Parse(`<!DOCTYPE html>
<html lang="es">
<head>
<meta charset="UTF-8">
<title>{{.Title}}</title>
<style>
body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
.container { max-width: 600px; margin: 0 auto; padding: 20px; }
.header { background: #dc3545; color: white; padding: 20px; text-align: center; }
.content { background: #f8f9fa; padding: 20px; border: 1px solid #dee2e6; }
.critical { color: #dc3545; font-weight: bold; }
.footer { background: #6c757d; color: white; padding: 15px; text-align: center; font-size: 12px; }
</style>
</head>
<body>
<div class="container">
  <div class="header">
    <h1>ALERTA DE MANTENIMIENTO</h1>
    <h2>{{.EquipmentName}}</h2>
  </div>
  <div class="content">
    <h3 class="critical">{{.Title}}</h3>
    <p><strong>Equipo:</strong> {{.EquipmentName}}</p>
    <p><strong>Ubicación:</strong> {{.Location}}</p>
    {{- if .SensorKind}}
    <p><strong>Sensor:</strong> {{.SensorKind}}</p>
    {{- end}}
    {{- if .Value}}
    <p><strong>Valor actual:</strong> <span class="critical">{{num .Value}}</span></p>
    {{- end}}
    <p><strong>Nivel:</strong> <span class="critical">{{.Level}}</span></p>
    <p><strong>Fecha:</strong> {{ts .ObservedAt}}</p>
    {{- if .RiskLevel}}
    <h4>Predicción</h4>
    <ul>
      <li><strong>Nivel de riesgo:</strong> {{.RiskLevel}}</li>
      {{- if .Probability}}
      <li><strong>Probabilidad de fallo:</strong> {{num .Probability}}%</li>
      {{- end}}
      {{- if .Recommendation}}
      <li><strong>Recomendación:</strong> {{.Recommendation}}</li>
      {{- end}}
    </ul>
    {{- end}}
    <h4>Detalles técnicos</h4>
    <ul>
      <li><strong>ID del equipo:</strong> {{.EquipmentID}}</li>
      {{- if .SensorID}}
      <li><strong>ID del sensor:</strong> {{.SensorID}}</li>
      <li><strong>Límite superior:</strong> {{num .HighThreshold}}</li>
      <li><strong>Límite inferior:</strong> {{num .LowThreshold}}</li>
      {{- end}}
    </ul>
    {{- if .DetailsURL}}
    <p><a href="{{.DetailsURL}}">Ver detalles del equipo</a></p>
    {{- end}}
  </div>
  <div class="footer">
    <p><strong>Sistema de Mantenimiento Predictivo</strong></p>
    <p>Generado el: {{ts .GeneratedAt}}</p>
  </div>
</div>
</body>
</html>
`))

// RenderAlertMail renders the HTML body of an alert e-mail.
func RenderAlertMail(data AlertMail) (string, error) {
	var buf bytes.Buffer
	if err := alertTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render alert mail: %w", err)
	}
	return buf.String(), nil
}

func formatOptional(v *float64) string {
	if v == nil {
		return "No definido"
	}
	return fmt.Sprintf("%.2f", *v)
}
