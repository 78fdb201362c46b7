package ws

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Hub manages active WebSocket connections and broadcasts events to one or
// more subscribers. The two live-update registries are independent Hub
// instances with different key types: the internal staff registry is keyed
// by party ID, the external buyer registry by portal identity key.
type Hub[K comparable] struct {
	mu    sync.RWMutex
	conns map[K]map[*websocket.Conn]*sync.Mutex
}

func NewHub[K comparable]() *Hub[K] {
	return &Hub[K]{
		conns: make(map[K]map[*websocket.Conn]*sync.Mutex),
	}
}

// Register adds a connection for the given key.
func (h *Hub[K]) Register(key K, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conns[key] == nil {
		h.conns[key] = make(map[*websocket.Conn]*sync.Mutex)
	}
	h.conns[key][conn] = &sync.Mutex{}
}

// Unregister removes a connection for the given key.
func (h *Hub[K]) Unregister(key K, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.conns[key]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.conns, key)
		}
	}
}

// Broadcast sends the payload to all active connections of the given keys.
// Returns the number of connections written. Each connection carries its own
// write lock: gorilla/websocket allows at most one concurrent writer per
// connection, and broadcasts may overlap. Failed connections are closed;
// actual removal is best-effort and a stale conn may linger until the next
// Register/Unregister.
func (h *Hub[K]) Broadcast(keys []K, payload any) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, key := range keys {
		conns, ok := h.conns[key]
		if !ok {
			continue
		}
		for conn, wmu := range conns {
			wmu.Lock()
			err := conn.WriteJSON(payload)
			wmu.Unlock()
			if err != nil {
				conn.Close()
				continue
			}
			delivered++
		}
	}
	return delivered
}

// Subscribers reports how many distinct keys currently have at least one
// connection.
func (h *Hub[K]) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
