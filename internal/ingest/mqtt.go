package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
	"go.uber.org/zap"

	"maintenance-monitor-backend/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Recorder stores one reading.
type Recorder interface {
	Record(ctx context.Context, sensorID int64, value float64, capturedAt time.Time, source string) (*Result, error)
}

// ReadingMessage is the payload published on sensores/<id>/lecturas.
type ReadingMessage struct {
	Value      *float64   `json:"valor"`
	CapturedAt *time.Time `json:"fecha,omitempty"`
}

// ParseTopic extracts the sensor id of a reading topic.
func ParseTopic(topic string) (int64, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "sensores" || parts[2] != "lecturas" {
		return 0, fmt.Errorf("unexpected topic %q", topic)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid sensor id in topic %q", topic)
	}
	return id, nil
}

// ReadingHook records readings published to the broker.
type ReadingHook struct {
	mqtt.HookBase
	recorder Recorder
	logger   *zap.Logger
	timeout  time.Duration
}

// NewReadingHook creates the hook.
func NewReadingHook(recorder Recorder, logger *zap.Logger) *ReadingHook {
	return &ReadingHook{recorder: recorder, logger: logger, timeout: 10 * time.Second}
}

// ID returns the hook id.
func (h *ReadingHook) ID() string {
	return "maintenance-readings"
}

// Provides indicates which hook methods this hook provides.
func (h *ReadingHook) Provides(b byte) bool {
	return bytes.Contains([]byte{
		mqtt.OnConnect,
		mqtt.OnPublish,
	}, []byte{b})
}

// OnConnect is called when a client connects to the server.
func (h *ReadingHook) OnConnect(cl *mqtt.Client, pk packets.Packet) error {
	h.logger.Debug("mqtt client connected", zap.String("client", cl.ID))
	return nil
}

// OnPublish records readings. Messages on other topics pass through untouched, and invalid
// readings are logged and dropped without disconnecting the client.
func (h *ReadingHook) OnPublish(cl *mqtt.Client, pk packets.Packet) (packets.Packet, error) {
	if !strings.HasPrefix(pk.TopicName, "sensores/") {
		return pk, nil
	}
	if err := h.handle(pk.TopicName, pk.Payload); err != nil {
		h.logger.Warn("mqtt reading rejected",
			zap.String("client", cl.ID),
			zap.String("topic", pk.TopicName),
			zap.Error(err))
	}
	return pk, nil
}

func (h *ReadingHook) handle(topic string, payload []byte) error {
	sensorID, err := ParseTopic(topic)
	if err != nil {
		return err
	}

	var msg ReadingMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if msg.Value == nil {
		return errors.New("payload has no valor")
	}

	var capturedAt time.Time
	if msg.CapturedAt != nil {
		capturedAt = *msg.CapturedAt
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	_, err = h.recorder.Record(ctx, sensorID, *msg.Value, capturedAt, SourceMQTT)
	return err
}

// Broker is the embedded MQTT broker readings are published to.
type Broker struct {
	server *mqtt.Server
	logger *zap.Logger
}

// NewBroker creates a broker listening on the configured TCP address.
func NewBroker(cfg config.MQTTConfig, recorder Recorder, logger *zap.Logger) (*Broker, error) {
	server := mqtt.New(nil)

	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("failed to add auth hook: %w", err)
	}
	if err := server.AddHook(NewReadingHook(recorder, logger), nil); err != nil {
		return nil, fmt.Errorf("failed to add reading hook: %w", err)
	}

	tcp := listeners.NewTCP(listeners.Config{
		ID:      "t1",
		Address: cfg.Address,
	})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("failed to add TCP listener: %w", err)
	}
	return &Broker{server: server, logger: logger}, nil
}

// Run serves until ctx is done, then closes the broker.
func (b *Broker) Run(ctx context.Context) error {
	if err := b.server.Serve(); err != nil {
		return fmt.Errorf("failed to start MQTT server: %w", err)
	}
	b.logger.Info("mqtt broker started")
	<-ctx.Done()
	b.logger.Info("shutting down mqtt broker")
	return b.server.Close()
}
