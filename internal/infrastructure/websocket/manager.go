package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"workbee/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Envelope is the frame pushed to websocket clients.
type Envelope struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Client is one websocket connection owned by a user. A user may hold several.
type Client struct {
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte
}

func NewClient(userID string, conn *websocket.Conn) *Client {
	return &Client{
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
	}
}

// Manager tracks the notification connections of every online user.
type Manager struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mutex      sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Start runs the registration loop until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		defer close(m.done)
		for {
			select {
			case client := <-m.register:
				m.mutex.Lock()
				if m.clients[client.UserID] == nil {
					m.clients[client.UserID] = make(map[*Client]struct{})
				}
				m.clients[client.UserID][client] = struct{}{}
				m.mutex.Unlock()
				logger.Debug("Websocket client registered: %s", client.UserID)

			case client := <-m.unregister:
				m.remove(client)
				logger.Debug("Websocket client unregistered: %s", client.UserID)

			case <-ctx.Done():
				return
			}
		}
	}()
}

// Add registers client. Once the loop has stopped the client is closed
// instead.
func (m *Manager) Add(client *Client) {
	select {
	case m.register <- client:
	case <-m.done:
		close(client.Send)
	}
}

// Remove unregisters client and closes its send buffer. It never blocks
// after the loop has stopped.
func (m *Manager) Remove(client *Client) {
	select {
	case m.unregister <- client:
	case <-m.done:
		m.remove(client)
	}
}

func (m *Manager) remove(client *Client) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	set, ok := m.clients[client.UserID]
	if !ok {
		return
	}
	if _, ok := set[client]; ok {
		delete(set, client)
		close(client.Send)
	}
	if len(set) == 0 {
		delete(m.clients, client.UserID)
	}
}

// IsOnline reports whether userID has at least one open connection.
func (m *Manager) IsOnline(userID string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clients[userID]) > 0
}

// Notify pushes an event to every connection of userID. Connections whose
// buffers are full are skipped.
func (m *Manager) Notify(userID, eventType string, data interface{}) {
	payload, err := json.Marshal(Envelope{Type: eventType, Data: data, Timestamp: time.Now()})
	if err != nil {
		logger.Error("Failed to encode websocket event %s: %v", eventType, err)
		return
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for client := range m.clients[userID] {
		select {
		case client.Send <- payload:
		default:
			logger.Warn("Dropping %s event for slow client %s", eventType, userID)
		}
	}
}

// ReadPump drains client frames so pings and close frames are processed.
// The onClose callback runs once the connection is gone.
func (c *Client) ReadPump(onClose func()) {
	defer func() {
		onClose()
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("Websocket read error for %s: %v", c.UserID, err)
			}
			return
		}
	}
}

// WritePump writes queued frames and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warn("Websocket write error for %s: %v", c.UserID, err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
