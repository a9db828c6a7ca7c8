// Package stream pushes webhook delivery outcomes to websocket clients.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendBuffer      = 16
	broadcastBuffer = 64
	writeWait       = 10 * time.Second
)

// Event describes one processed webhook delivery.
type Event struct {
	Type       string    `json:"type"`
	Event      string    `json:"event"`
	DeliveryID string    `json:"delivery_id"`
	Status     string    `json:"status"`
	Repository string    `json:"repository,omitempty"`
	Error      string    `json:"error,omitempty"`
	Time       time.Time `json:"time"`
}

type broadcastMessage struct {
	event string
	data  []byte
}

// Hub fans events out to connected clients. Clients may restrict the events
// they receive with an "events" query parameter or a subscribe message.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan broadcastMessage
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	count      atomic.Int64
	upgrader   websocket.Upgrader // zero value only accepts same-origin browsers
	logger     *slog.Logger
}

// NewHub creates a hub. Run must be started before clients connect.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan broadcastMessage, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run processes registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.remove(client)
			}
			return
		case client := <-h.register:
			h.clients[client] = true
			h.count.Store(int64(len(h.clients)))
		case client := <-h.unregister:
			h.remove(client)
		case message := <-h.broadcast:
			for client := range h.clients {
				if !client.subscribedTo(message.event) {
					continue
				}
				select {
				case client.send <- message.data:
				default:
					h.logger.Warn("Dropping slow stream client", "remote", client.conn.RemoteAddr().String())
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		h.count.Store(int64(len(h.clients)))
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

// Publish queues ev for delivery without blocking. It reports false when the
// event was dropped.
func (h *Hub) Publish(ev Event) bool {
	if ev.Type == "" {
		ev.Type = "delivery"
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("Failed to encode stream event", "error", err)
		return false
	}

	select {
	case h.broadcast <- broadcastMessage{event: ev.Event, data: data}:
		return true
	default:
		h.logger.Warn("Stream broadcast dropped", "event", ev.Event, "delivery_id", ev.DeliveryID)
		return false
	}
}

// ServeHTTP upgrades the request to a websocket and streams events until the
// client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}
	h.logger.Debug("Stream client connected", "remote", r.RemoteAddr)

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	if events := r.URL.Query().Get("events"); events != "" {
		client.setEvents(strings.Split(events, ","))
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	client.readPump()

	h.logger.Debug("Stream client disconnected", "remote", r.RemoteAddr)
}

// Client is a connected websocket.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	events   []string
	eventsMu sync.RWMutex
}

type subscribeMessage struct {
	Type   string   `json:"type"`
	Events []string `json:"events"`
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg subscribeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type != "subscribe" {
			continue
		}
		c.setEvents(msg.Events)
		c.hub.logger.Debug("Stream client subscribed", "remote", c.conn.RemoteAddr().String(), "events", msg.Events)
	}
}

func (c *Client) writePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for message := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (c *Client) setEvents(events []string) {
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()

	c.events = nil
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			c.events = append(c.events, e)
		}
	}
}

func (c *Client) subscribedTo(event string) bool {
	c.eventsMu.RLock()
	defer c.eventsMu.RUnlock()
	if len(c.events) == 0 {
		return true
	}
	for _, candidate := range c.events {
		if candidate == event {
			return true
		}
	}
	return false
}
