// Package room implements the collaborative session layer: one logical
// room per screenshot carrying presence, a shared last-writer-wins
// annotation map, and fire-and-forget broadcast events. The server side
// is the Hub with its per-connection read/write pumps; the client side
// is Session, which adds reconnect with capped exponential backoff.
package room

import (
	"log"
	"sync"
	"time"

	"shotmark/internal/models"
)

// Hub manages all active room connections. Membership changes and
// broadcasts are serialized through the event-loop goroutine;
// cross-client races on the shared storage resolve by receipt order
// there, not in client logic.
type Hub struct {
	rooms      map[string]map[*Conn]bool // roomID -> set of connections
	register   chan *Conn
	unregister chan *Conn
	broadcast  chan *broadcastMessage
	mu         sync.RWMutex

	// Ephemeral presence, cleared the instant a connection drops.
	presence map[string]map[string]models.Presence // roomID -> sessionID -> state
	presMu   sync.RWMutex

	// Shared LWW storage per room.
	storage map[string]*Storage
	storMu  sync.Mutex

	done     chan struct{}
	stopOnce sync.Once
}

type broadcastMessage struct {
	roomID  string
	payload []byte
	sender  *Conn // skipped when broadcasting, nil means everyone
}

// NewHub creates a hub with no rooms.
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Conn]bool),
		register:   make(chan *Conn),
		unregister: make(chan *Conn),
		broadcast:  make(chan *broadcastMessage, 256),
		presence:   make(map[string]map[string]models.Presence),
		storage:    make(map[string]*Storage),
		done:       make(chan struct{}),
	}
}

// Start begins the hub event loop and the stale-connection sweeper.
func (h *Hub) Start() {
	log.Println("🔄 Starting room hub...")

	go func() {
		for {
			select {
			case <-h.done:
				log.Println("Room hub shutting down...")
				return
			case conn := <-h.register:
				h.handleRegister(conn)
			case conn := <-h.unregister:
				h.handleUnregister(conn)
			case msg := <-h.broadcast:
				h.handleBroadcast(msg)
			}
		}
	}()

	go h.sweepLoop()

	log.Println("✓ Room hub started")
}

func (h *Hub) handleRegister(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[conn.roomID] == nil {
		h.rooms[conn.roomID] = make(map[*Conn]bool)
	}
	h.rooms[conn.roomID][conn] = true

	log.Printf("  Session %s joined room %s (total: %d users)",
		conn.session.ID, conn.roomID, len(h.rooms[conn.roomID]))

	h.queueEvent(conn.roomID, models.RoomEvent{
		Type: models.EventUserJoined,
		User: conn.session.User,
	}, conn)
}

func (h *Hub) handleUnregister(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.rooms[conn.roomID]
	if !ok {
		return
	}
	if _, ok := conns[conn]; !ok {
		return
	}
	delete(conns, conn)
	close(conn.send)

	if len(conns) == 0 {
		delete(h.rooms, conn.roomID)
	}

	log.Printf("  Session %s left room %s (remaining: %d users)",
		conn.session.ID, conn.roomID, len(conns))

	// Presence is not persisted: clear it the moment the connection
	// drops.
	h.presMu.Lock()
	if states, ok := h.presence[conn.roomID]; ok {
		delete(states, conn.session.ID)
		if len(states) == 0 {
			delete(h.presence, conn.roomID)
		}
	}
	h.presMu.Unlock()

	h.queueEvent(conn.roomID, models.RoomEvent{
		Type: models.EventUserLeft,
		User: conn.session.User,
	}, nil)
}

func (h *Hub) handleBroadcast(msg *broadcastMessage) {
	// The lock is held across the sends so Shutdown cannot close a
	// send channel mid-fanout. Sends never block, the full-buffer case
	// falls through to eviction.
	h.mu.RLock()
	var slow []*Conn
	for conn := range h.rooms[msg.roomID] {
		if msg.sender != nil && conn == msg.sender {
			continue
		}
		select {
		case conn.send <- msg.payload:
		default:
			// Buffer full: the connection is slow or dead. Evicted
			// directly, this already runs on the event-loop goroutine.
			log.Printf("⚠️  Session %s buffer full, closing connection", conn.session.ID)
			slow = append(slow, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range slow {
		h.handleUnregister(conn)
	}
}

// Broadcast sends an encoded envelope to every connection in the room
// except sender. Messages queued after Shutdown are dropped.
func (h *Hub) Broadcast(roomID string, payload []byte, sender *Conn) {
	h.enqueue(&broadcastMessage{roomID: roomID, payload: payload, sender: sender})
}

func (h *Hub) enqueue(msg *broadcastMessage) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// PublishEvent broadcasts a one-shot event into a room on behalf of the
// server (e.g. after a REST delete). Events are never retried.
func (h *Hub) PublishEvent(roomID string, event models.RoomEvent) {
	h.queueEvent(roomID, event, nil)
}

func (h *Hub) queueEvent(roomID string, event models.RoomEvent, sender *Conn) {
	payload, err := (Envelope{Type: MessageEvent, Event: &event}).Encode()
	if err != nil {
		log.Printf("Failed to encode %s event: %v", event.Type, err)
		return
	}
	h.enqueue(&broadcastMessage{roomID: roomID, payload: payload, sender: sender})
}

// UpdatePresence records a connection's latest ephemeral state.
// Last value wins per connection.
func (h *Hub) UpdatePresence(roomID string, p models.Presence) {
	h.presMu.Lock()
	defer h.presMu.Unlock()
	if h.presence[roomID] == nil {
		h.presence[roomID] = make(map[string]models.Presence)
	}
	h.presence[roomID][p.SessionID] = p
}

// Presence returns the current presence list for a room.
func (h *Hub) Presence(roomID string) []models.Presence {
	h.presMu.RLock()
	defer h.presMu.RUnlock()
	states := h.presence[roomID]
	out := make([]models.Presence, 0, len(states))
	for _, p := range states {
		out = append(out, p)
	}
	return out
}

// RoomStorage returns the shared storage for a room, creating it on
// first use.
func (h *Hub) RoomStorage(roomID string) *Storage {
	h.storMu.Lock()
	defer h.storMu.Unlock()
	st, ok := h.storage[roomID]
	if !ok {
		st = NewStorage()
		h.storage[roomID] = st
	}
	return st
}

// Conns returns the active connections for a room.
func (h *Hub) Conns(roomID string) []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := h.rooms[roomID]
	out := make([]*Conn, 0, len(conns))
	for c := range conns {
		out = append(out, c)
	}
	return out
}

func (h *Hub) sweepLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.sweep()
		}
	}
}

// sweep evicts connections idle past the pong timeout window.
func (h *Hub) sweep() {
	h.mu.RLock()
	var stale []*Conn
	now := time.Now()
	for _, conns := range h.rooms {
		for conn := range conns {
			if now.Sub(conn.session.LastActiveAt) > 5*time.Minute {
				stale = append(stale, conn)
			}
		}
	}
	h.mu.RUnlock()

	for _, conn := range stale {
		log.Printf("  Cleaning up inactive session %s", conn.session.ID)
		h.unregister <- conn
	}
}

// Shutdown closes every connection and stops the event loop. Safe to
// call more than once.
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() {
		log.Println("🛑 Shutting down room hub...")

		close(h.done)

		h.mu.Lock()
		defer h.mu.Unlock()
		for _, conns := range h.rooms {
			for conn := range conns {
				close(conn.send)
				conn.ws.Close()
			}
		}
		h.rooms = make(map[string]map[*Conn]bool)

		log.Println("✓ Room hub shutdown complete")
	})
}
