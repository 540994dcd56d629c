package notification

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maintenance-monitor-backend/config"
	"maintenance-monitor-backend/internal/model"
)

func TestSMTPMailer_Send(t *testing.T) {
	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotMsg  string
	)
	m := NewSMTPMailer(config.SMTPConfig{Host: "smtp.example.com", Port: 587, From: "noreply@example.com"})
	m.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)
		assert.Nil(t, a)
		return nil
	}

	err := m.Send(context.Background(), Mail{
		To:      []string{"a@example.com", "b@example.com"},
		Subject: "Reporte de Mantenimiento",
		HTML:    "<h1>ok</h1>",
	})
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "noreply@example.com", gotFrom)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "To: a@example.com, b@example.com\r\n")
	assert.Contains(t, gotMsg, "Content-Type: text/html")
	assert.True(t, strings.HasSuffix(gotMsg, "\r\n\r\n<h1>ok</h1>"))
}

func TestSMTPMailer_Errors(t *testing.T) {
	m := NewSMTPMailer(config.SMTPConfig{})
	assert.ErrorIs(t, m.Send(context.Background(), Mail{To: []string{"a@example.com"}}), ErrNotConfigured)

	m = NewSMTPMailer(config.SMTPConfig{Host: "smtp.example.com", Port: 25})
	assert.Error(t, m.Send(context.Background(), Mail{}))

	m.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		return assert.AnError
	}
	err := m.Send(context.Background(), Mail{To: []string{"a@example.com"}})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestWebhookNotifier_Post(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(config.SlackConfig{WebhookURL: srv.URL, Channel: "#mantenimiento"})
	err := n.Post(context.Background(), ChatMessage{
		Text:     "Alerta Predictiva - Bomba 1",
		Body:     "Probabilidad de fallo 82.50%",
		Severity: model.SeverityCritical,
		Fields:   []Field{{Title: "Ubicación", Value: "Planta A"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "#mantenimiento", got.Channel)
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, "danger", got.Attachments[0].Color)
	assert.Equal(t, "Probabilidad de fallo 82.50%", got.Attachments[0].Text)
	require.Len(t, got.Attachments[0].Fields, 1)
	assert.Equal(t, "Planta A", got.Attachments[0].Fields[0].Value)
}

func TestWebhookNotifier_Errors(t *testing.T) {
	n := NewWebhookNotifier(config.SlackConfig{})
	assert.ErrorIs(t, n.Post(context.Background(), ChatMessage{}), ErrNotConfigured)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n = NewWebhookNotifier(config.SlackConfig{WebhookURL: srv.URL})
	err := n.Post(context.Background(), ChatMessage{Text: "x"})
	assert.ErrorContains(t, err, "status 500")
}

func TestRenderAlertMail(t *testing.T) {
	value, high := 95.0, 80.0
	sensorID := int64(3)
	html, err := RenderAlertMail(AlertMail{
		Title:         "Lectura critico en Bomba <1>",
		EquipmentID:   1,
		EquipmentName: "Bomba <1>",
		Location:      "Planta A",
		SensorID:      &sensorID,
		SensorKind:    "temperatura",
		Value:         &value,
		Level:         "critico",
		HighThreshold: &high,
		ObservedAt:    time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC),
		GeneratedAt:   time.Date(2024, 3, 1, 10, 30, 5, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Contains(t, html, "Bomba &lt;1&gt;")
	assert.Contains(t, html, "95.00")
	assert.Contains(t, html, "01/03/2024 10:30:00")
	assert.Contains(t, html, "<li><strong>ID del sensor:</strong> 3</li>")
	assert.Contains(t, html, "<li><strong>Límite inferior:</strong> No definido</li>")
	assert.NotContains(t, html, "Predicción")
}
