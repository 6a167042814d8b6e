// Package ws pushes attendance updates to connected dashboards so a scan
// shows up without waiting for the next poll.
package ws

import (
	"encoding/json"
	"log"
	"time"

	gws "github.com/gorilla/websocket"

	"absengo/internal/attendance"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Hub fans broadcast messages out to registered dashboard clients.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 16),
	}
}

// Run processes registrations and broadcasts until the process exits.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// Register adds a dashboard client.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// BroadcastRecord announces a newly accepted record and the updated today
// count to every dashboard.
func (h *Hub) BroadcastRecord(rec attendance.Record, todayCount int) {
	payload := struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}{
		Type: "attendance:new",
		Payload: map[string]any{
			"record":      rec,
			"today_count": todayCount,
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal broadcast payload: %v", err)
		return
	}
	h.broadcast <- data
}

// Client is one dashboard socket.
type Client struct {
	hub  *Hub
	conn *gws.Conn
	send chan []byte
}

// NewClient wraps an upgraded connection.
func NewClient(hub *Hub, conn *gws.Conn) *Client {
	return &Client{hub: hub, conn: conn, send: make(chan []byte, 256)}
}

// Send queues a message for this client, dropping it if the client is slow.
func (c *Client) Send(message []byte) {
	select {
	case c.send <- message:
	default:
		log.Println("dropping websocket message: slow client")
	}
}

// ReadPump drains the connection to keep ping-pong alive; dashboards never
// send application data.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if gws.IsUnexpectedCloseError(err, gws.CloseGoingAway, gws.CloseAbnormalClosure) {
				log.Printf("websocket read error: %v", err)
			}
			break
		}
	}
}

// WritePump flushes queued messages and pings on an owned ticker.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(gws.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(gws.TextMessage)
			if err != nil {
				return
			}
			if _, err := w.Write(message); err != nil {
				return
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(gws.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
