package utils

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeDeadline = 100 * time.Millisecond

// WebSocketHub fans events out to connected clients. Each client has its own
// write lock since a gorilla connection allows a single concurrent writer.
type WebSocketHub struct {
	clients map[*websocket.Conn]*sync.Mutex
	mu      sync.Mutex
}

func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		clients: make(map[*websocket.Conn]*sync.Mutex),
	}
}

func (h *WebSocketHub) AddClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = &sync.Mutex{}
}

// Ping sends a ping control frame to conn under its write lock.
func (h *WebSocketHub) Ping(conn *websocket.Conn) error {
	h.mu.Lock()
	writeMu, ok := h.clients[conn]
	h.mu.Unlock()
	if !ok {
		return websocket.ErrCloseSent
	}

	writeMu.Lock()
	defer writeMu.Unlock()
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
}

func (h *WebSocketHub) RemoveClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
}

func (h *WebSocketHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast writes event to every client. Clients that fail the write are
// dropped.
func (h *WebSocketHub) Broadcast(event WebSocketEvent) {
	h.mu.Lock()
	clients := make(map[*websocket.Conn]*sync.Mutex, len(h.clients))
	for conn, writeMu := range h.clients {
		clients[conn] = writeMu
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	var failedClients []*websocket.Conn
	var failedMu sync.Mutex

	for conn, writeMu := range clients {
		wg.Add(1)
		go func(c *websocket.Conn, writeMu *sync.Mutex) {
			defer wg.Done()

			writeMu.Lock()
			defer writeMu.Unlock()

			// Slow clients must not hold up session callbacks.
			c.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.WriteJSON(event); err != nil {
				failedMu.Lock()
				failedClients = append(failedClients, c)
				failedMu.Unlock()
			}
		}(conn, writeMu)
	}

	wg.Wait()

	if len(failedClients) > 0 {
		h.mu.Lock()
		for _, conn := range failedClients {
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
		}
		h.mu.Unlock()
	}
}
