package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

const (
	sendBuffer   = 32
	writeTimeout = 10 * time.Second
)

// Envelope is the outbound wire frame for every observer event.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Conn is the write side of an observer connection. *websocket.Conn satisfies
// it; tests use fakes.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// textMessage matches websocket.TextMessage.
const textMessage = 1

// Hub fans identical global state out to every registered observer. There is
// no per-observer filtering.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

type Client struct {
	hub  *Hub
	conn Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// Register adopts a connection and starts its write pump.
func (h *Hub) Register(conn Conn) *Client {
	c := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	go c.writePump()
	return c
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.stop()
}

// Broadcast pushes an event to every observer. A client whose send buffer is
// full is dropped rather than allowed to stall the rest.
func (h *Hub) Broadcast(event string, data any) {
	payload, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		slog.Error("broadcast marshal", "event", event, "err", err)
		return
	}

	h.mu.Lock()
	var slow []*Client
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		delete(h.clients, c)
	}
	h.mu.Unlock()

	for _, c := range slow {
		slog.Warn("dropping slow observer")
		c.stop()
	}
}

// ClientCount reports the number of connected observers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Send delivers an event to this observer only.
func (c *Client) Send(event string, data any) {
	payload, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		slog.Error("send marshal", "event", event, "err", err)
		return
	}
	select {
	case <-c.done:
	case c.send <- payload:
	default:
		c.hub.Unregister(c)
	}
}

func (c *Client) stop() {
	c.once.Do(func() {
		close(c.done)
	})
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(textMessage, msg); err != nil {
				return
			}
		}
	}
}
