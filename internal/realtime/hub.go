package realtime

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"maintenance-monitor-backend/internal/metrics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultChannel is used when a client does not name a channel.
const DefaultChannel = "alertas"

// Message is the envelope of every event pushed to clients.
type Message struct {
	Channel string `json:"channel"`
	Event   string `json:"event"`
	Data    any    `json:"data"`
}

type outbound struct {
	channel string
	payload []byte
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub maintains the set of active clients and broadcasts messages to the ones subscribed to
// a channel.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewHub creates a hub. Run must be started before clients connect.
func NewHub(logger *zap.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
		metrics:    m,
	}
}

// Run serves registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.metrics.RealtimeClients.Inc()
			h.logger.Debug("websocket client registered",
				zap.String("remote", client.conn.RemoteAddr().String()),
				zap.String("channel", client.channel))

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			for client := range h.clients {
				if client.channel != msg.channel {
					continue
				}
				select {
				case client.send <- msg.payload:
				default:
					// Client is blocked or gone.
					h.logger.Warn("websocket client send buffer full, removing",
						zap.String("remote", client.conn.RemoteAddr().String()))
					h.remove(client)
				}
			}

		case <-ctx.Done():
			for client := range h.clients {
				h.remove(client)
			}
			return
		}
	}
}

func (h *Hub) remove(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	h.metrics.RealtimeClients.Dec()
}

// Broadcast publishes an event on a channel. It never blocks; when the hub is saturated the
// event is dropped.
func (h *Hub) Broadcast(channel, event string, data any) {
	payload, err := json.Marshal(Message{Channel: channel, Event: event, Data: data})
	if err != nil {
		h.logger.Error("failed to marshal realtime message", zap.String("event", event), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- outbound{channel: channel, payload: payload}:
	default:
		h.logger.Warn("realtime broadcast queue full, dropping event",
			zap.String("channel", channel), zap.String("event", event))
	}
}

// ServeWS upgrades the request and subscribes the connection to the channel named by the
// "channel" query parameter.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	channel := strings.TrimSpace(r.URL.Query().Get("channel"))
	if channel == "" {
		channel = DefaultChannel
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{hub: h, conn: conn, channel: channel, send: make(chan []byte, 256)}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
