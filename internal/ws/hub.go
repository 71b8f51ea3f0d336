// Package ws pushes job state changes to websocket subscribers.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lvcoi/ytmp4/internal/jobs"
)

const (
	// TypeProgress tags every state message.
	TypeProgress = "progress"

	sendBuffer   = 64
	writeTimeout = 10 * time.Second
)

// Message is the envelope written to subscribers.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// ProgressPayload carries one job state.
type ProgressPayload struct {
	ID    string     `json:"id"`
	State jobs.State `json:"state"`
}

// SnapshotFunc lists the current state of every job.
type SnapshotFunc func() map[string]jobs.State

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Message
}

// Hub maintains the set of connected clients and fans out job updates.
type Hub struct {
	logger   *slog.Logger
	snapshot SnapshotFunc
	upgrader websocket.Upgrader

	clients    map[*client]struct{}
	broadcast  chan Message
	register   chan *client
	unregister chan *client
	done       chan struct{}
	closeOnce  sync.Once
}

// NewHub returns a hub. allowOrigin follows the HTTP CORS setting: "*"
// accepts any origin, an empty value keeps gorilla's same-host check.
func NewHub(snapshot SnapshotFunc, allowOrigin string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		logger:     logger,
		snapshot:   snapshot,
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan Message, 1024),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowOrigin),
	}
	return h
}

func originChecker(allowOrigin string) func(*http.Request) bool {
	switch allowOrigin {
	case "":
		return nil
	case "*":
		return func(*http.Request) bool { return true }
	default:
		return func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || origin == allowOrigin
		}
	}
}

// Run serves registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer h.closeOnce.Do(func() { close(h.done) })
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.logger.Warn("client send buffer full, disconnecting", "remote_addr", c.conn.RemoteAddr().String())
					_ = c.conn.Close()
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
}

// Publish queues a job state for every subscriber. It matches jobs.Observer
// and never blocks the job driver.
func (h *Hub) Publish(id string, state jobs.State) {
	msg := Message{Type: TypeProgress, Payload: ProgressPayload{ID: id, State: state}}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("broadcast buffer full, dropping message", "job_id", id)
	}
}

// ServeHTTP upgrades the connection and greets it with one message per
// known job before streaming updates.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &client{hub: h, conn: conn, send: make(chan Message, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}
	h.logger.Debug("client connected", "remote_addr", conn.RemoteAddr().String())

	var greeting []Message
	if h.snapshot != nil {
		for id, state := range h.snapshot() {
			greeting = append(greeting, Message{Type: TypeProgress, Payload: ProgressPayload{ID: id, State: state}})
		}
	}
	go c.writePump(greeting)
	go c.readPump()
}

func (c *client) writePump(greeting []Message) {
	defer func() {
		_ = c.conn.Close()
	}()
	for _, msg := range greeting {
		if err := c.write(msg); err != nil {
			c.hub.logger.Debug("websocket write failed", "error", err)
			return
		}
	}
	for msg := range c.send {
		if err := c.write(msg); err != nil {
			c.hub.logger.Debug("websocket write failed", "error", err)
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
}

func (c *client) write(msg Message) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(msg)
}

// readPump discards inbound frames and unregisters the client once the
// connection closes.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
