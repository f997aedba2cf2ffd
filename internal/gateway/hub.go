package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/bajo34/wa-pro/internal/domain"
	"github.com/bajo34/wa-pro/internal/logging"
)

// Frame is a single event pushed to dashboard subscribers.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
	Ts    string `json:"ts"`
}

// MessageEvent is the payload for inbound/outbound message frames.
type MessageEvent struct {
	Instance  string `json:"instance"`
	RemoteJid string `json:"remoteJid"`
	Text      string `json:"text"`
	ImageURL  string `json:"imageUrl,omitempty"`
}

// Hub broadcasts conversation activity to connected WebSocket
// clients. The feed is one-way; client frames are read only to
// detect disconnects.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*hubConn
	log   *logging.Logger
}

type hubConn struct {
	mu     sync.Mutex
	socket *websocket.Conn
}

func (c *hubConn) send(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.socket.WriteJSON(f)
}

// NewHub creates an empty hub.
func NewHub(log *logging.Logger) *Hub {
	return &Hub{
		conns: make(map[string]*hubConn),
		log:   log.Sub("hub"),
	}
}

// Attach registers a connection and blocks until it disconnects.
func (h *Hub) Attach(socket *websocket.Conn) {
	id := uuid.New().String()
	conn := &hubConn{socket: socket}

	h.mu.Lock()
	h.conns[id] = conn
	h.mu.Unlock()
	h.log.Info().Str("connId", id).Msg("subscriber connected")

	for {
		if _, _, err := socket.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.conns, id)
	h.mu.Unlock()
	socket.Close()
	h.log.Info().Str("connId", id).Msg("subscriber disconnected")
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Broadcast sends an event frame to every subscriber.
func (h *Hub) Broadcast(event string, data any) {
	frame := Frame{Event: event, Data: data, Ts: time.Now().UTC().Format(time.RFC3339)}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.conns {
		if err := c.send(frame); err != nil {
			h.log.Warn().Err(err).Str("connId", id).Msg("broadcast send failed")
		}
	}
}

// NotifyInbound publishes a customer message to subscribers.
func (h *Hub) NotifyInbound(key domain.Key, text string) {
	h.Broadcast("message.in", MessageEvent{
		Instance:  key.Instance,
		RemoteJid: key.RemoteJid,
		Text:      text,
	})
}

// NotifyOutgoing publishes a bot reply to subscribers.
func (h *Hub) NotifyOutgoing(key domain.Key, text, imageURL string) {
	h.Broadcast("message.out", MessageEvent{
		Instance:  key.Instance,
		RemoteJid: key.RemoteJid,
		Text:      text,
		ImageURL:  imageURL,
	})
}

// CloseAll disconnects every subscriber.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.conns {
		c.socket.Close()
		delete(h.conns, id)
	}
}
