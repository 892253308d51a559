// Package display pushes ad-screen state to connected zone displays over
// websockets. The core never waits on a display: slow clients are dropped.
package display

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"mall-census-go/internal/logger"
	"mall-census-go/internal/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Displays connect from kiosk browsers on the venue network.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks connected display clients and broadcasts screen updates.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool
	log     *logrus.Entry
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]bool),
		log:     logger.New().WithComponent("display.hub"),
	}
}

// Handle upgrades an incoming request to a websocket display session.
func (h *Hub) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("display upgrade failed")
		return
	}
	c := &client{conn: conn, send: make(chan []byte, 8)}

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	h.log.WithField("remote", conn.RemoteAddr().String()).Info("display connected")

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) writePump(c *client) {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			break
		}
	}
	c.conn.Close()
}

// readPump discards inbound frames; its job is noticing the close.
func (h *Hub) readPump(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
	h.drop(c)
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
}

// ClientCount returns the number of connected displays.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type screenUpdate struct {
	Type    string                        `json:"type"`
	Screens map[types.Zone]types.AdScreen `json:"screens"`
}

// PublishScreens broadcasts the full zone -> screen map to every display.
// Clients whose send buffer is full are dropped rather than awaited.
func (h *Hub) PublishScreens(screens map[types.Zone]types.AdScreen) {
	msg, err := json.Marshal(screenUpdate{Type: "zone_status", Screens: screens})
	if err != nil {
		return
	}

	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn("dropping slow display client")
		h.drop(c)
	}
}
