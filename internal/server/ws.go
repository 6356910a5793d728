package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/ayusman/headtrack/internal/pose"
	"github.com/gorilla/websocket"
)

const writeWait = time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// PoseHandler broadcasts every published pose sample via WebSocket.
type PoseHandler struct {
	cancel  func()
	samples chan pose.Sample
	done    chan struct{}
	once    sync.Once

	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
}

// NewPoseHandler subscribes to src and starts the broadcast goroutine.
func NewPoseHandler(src PoseSource) *PoseHandler {
	h := &PoseHandler{
		samples: make(chan pose.Sample, 16),
		done:    make(chan struct{}),
		clients: make(map[*websocket.Conn]bool),
	}
	// The subscriber runs on the poll goroutine, so it never blocks.
	h.cancel = src.Subscribe(func(s pose.Sample) {
		select {
		case h.samples <- s:
		default:
		}
	})
	go h.broadcast()
	return h
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *PoseHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Clients returns the number of connected clients.
func (h *PoseHandler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close unsubscribes from the pose source and closes all connections.
func (h *PoseHandler) Close() {
	h.once.Do(func() {
		h.cancel()
		close(h.done)

		h.mu.Lock()
		for conn := range h.clients {
			conn.Close()
		}
		h.mu.Unlock()
	})
}

// broadcast sends each sample to all connected clients.
func (h *PoseHandler) broadcast() {
	for {
		var s pose.Sample
		select {
		case <-h.done:
			return
		case s = <-h.samples:
		}

		msg, err := json.Marshal(s)
		if err != nil {
			continue
		}

		h.mu.RLock()
		for conn := range h.clients {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Printf("websocket write error: %v", err)
			}
		}
		h.mu.RUnlock()
	}
}
