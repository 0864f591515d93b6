package room

import (
	"log"
	"time"

	"github.com/gorilla/websocket"

	"shotmark/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Conn is one server-side websocket connection bound to a room.
type Conn struct {
	hub     *Hub
	ws      *websocket.Conn
	send    chan []byte
	roomID  string
	session *models.RoomSession
}

// NewConn wraps an upgraded websocket connection.
func NewConn(hub *Hub, ws *websocket.Conn, roomID string, session *models.RoomSession) *Conn {
	return &Conn{
		hub:     hub,
		ws:      ws,
		send:    make(chan []byte, 256),
		roomID:  roomID,
		session: session,
	}
}

// ReadPump reads envelopes off the wire and applies them to the room.
// Each connection gets its own reading goroutine.
func (c *Conn) ReadPump() {
	defer func() {
		// After Shutdown the event loop is gone, do not block on it.
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.ws.Close()
	}()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		c.session.LastActiveAt = time.Now()
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		c.session.LastActiveAt = time.Now()

		env, err := DecodeEnvelope(message)
		if err != nil {
			log.Printf("Dropping bad message from session %s: %v", c.session.ID, err)
			continue
		}
		c.handleEnvelope(env, message)
	}
}

// handleEnvelope applies one inbound message. The three client-sent
// concerns route differently: presence fans out unrecorded in history,
// storage mutations merge into the shared map before fan-out, and
// events pass through untouched.
func (c *Conn) handleEnvelope(env Envelope, raw []byte) {
	switch env.Type {
	case MessagePresence:
		env.Presence.SessionID = c.session.ID
		env.Presence.User = c.session.User
		c.hub.UpdatePresence(c.roomID, *env.Presence)
		if payload, err := env.Encode(); err == nil {
			c.hub.Broadcast(c.roomID, payload, c)
		}
	case MessageStorageSet:
		c.hub.RoomStorage(c.roomID).Set(env.Storage.AnnotationID, env.Storage.Fields)
		c.hub.Broadcast(c.roomID, raw, c)
	case MessageStorageDelete:
		c.hub.RoomStorage(c.roomID).Delete(env.Storage.AnnotationID)
		c.hub.Broadcast(c.roomID, raw, c)
	case MessageEvent:
		c.hub.Broadcast(c.roomID, raw, c)
	default:
		// Sync is server-to-client only.
		log.Printf("Ignoring %s message from session %s", env.Type, c.session.ID)
	}
}

// WritePump drains the send channel to the wire and keeps the
// connection alive with pings. A separate writing goroutine prevents
// blocking on slow clients.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One envelope per frame so the peer can decode each message
			// independently.
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
