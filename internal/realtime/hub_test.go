package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"maintenance-monitor-backend/internal/metrics"
)

func newTestHub(t *testing.T) (*Hub, *metrics.Metrics, string) {
	m := metrics.New()
	hub := NewHub(zap.NewNop(), m)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)
	return hub, m, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func TestHub_BroadcastToChannel(t *testing.T) {
	hub, m, url := newTestHub(t)

	all := dial(t, url+"?channel=alertas")
	one := dial(t, url+"?channel=alertas.7")
	other := dial(t, url+"?channel=alertas.8")

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.RealtimeClients) == 3
	}, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast("alertas.7", "lectura-critica", map[string]any{"valor": 95.5})
	hub.Broadcast("alertas", "nueva-alerta", map[string]any{"id": 1})

	msg := readMessage(t, one)
	assert.Equal(t, "alertas.7", msg.Channel)
	assert.Equal(t, "lectura-critica", msg.Event)
	assert.Equal(t, 95.5, msg.Data.(map[string]any)["valor"])

	msg = readMessage(t, all)
	assert.Equal(t, "nueva-alerta", msg.Event)

	require.NoError(t, other.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := other.ReadMessage()
	assert.Error(t, err, "client on another channel receives nothing")
}

func TestHub_DefaultChannelAndUnregister(t *testing.T) {
	hub, m, url := newTestHub(t)

	conn := dial(t, url)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.RealtimeClients) == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(DefaultChannel, "nueva-alerta", nil)
	assert.Equal(t, DefaultChannel, readMessage(t, conn).Channel)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.RealtimeClients) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	hub := NewHub(zap.NewNop(), metrics.New())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Broadcast("alertas", "nueva-alerta", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked without a running hub")
	}
}
