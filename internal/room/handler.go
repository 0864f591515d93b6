package room

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"

	"shotmark/internal/middleware"
	"shotmark/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: validate origin against the configured frontend host
		return true
	},
}

// Handler upgrades HTTP requests into room connections.
type Handler struct {
	hub       *Hub
	authToken string
}

// NewHandler creates a websocket handler. An empty authToken disables
// the token check (local development).
func NewHandler(hub *Hub, authToken string) *Handler {
	return &Handler{hub: hub, authToken: authToken}
}

// HandleRoomConnection joins the caller to the room for one screenshot.
// Auth is checked before the upgrade so a rejected client gets a plain
// 401 rather than a half-open socket; clients treat that as fatal and
// do not retry.
func (h *Handler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)
	screenshotID := vars["screenshotID"]

	if h.authToken != "" && r.URL.Query().Get("token") != h.authToken {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	user := models.UserInfo{
		ID:    r.URL.Query().Get("user_id"),
		Name:  r.URL.Query().Get("user_name"),
		Color: r.URL.Query().Get("user_color"),
	}
	if user.ID == "" {
		user.ID = "anonymous"
	}
	if user.Name == "" {
		user.Name = "Anonymous"
	}

	ctx, span := middleware.StartSpan(ctx, "Room.Connect",
		attribute.String("screenshot.id", screenshotID),
		attribute.String("user.id", user.ID),
	)
	defer span.End()

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade WebSocket: %v", err)
		middleware.AddSpanError(ctx, err)
		return
	}

	session := models.NewRoomSession(screenshotID, user)
	roomID := RoomID(screenshotID)
	conn := NewConn(h.hub, ws, roomID, session)

	h.hub.register <- conn

	// First frame the client sees is the full room state, so it renders
	// collaborators and in-flight edits before any live traffic arrives.
	h.sendSync(conn)

	go conn.WritePump()
	go conn.ReadPump()

	log.Printf("✓ Room connection established for screenshot %s (user: %s)",
		screenshotID, user.Name)
}

func (h *Handler) sendSync(conn *Conn) {
	payload, err := (Envelope{
		Type: MessageSync,
		Sync: &SyncPayload{
			Storage:  h.hub.RoomStorage(conn.roomID).Snapshot(),
			Presence: h.hub.Presence(conn.roomID),
		},
	}).Encode()
	if err != nil {
		log.Printf("Failed to encode sync payload: %v", err)
		return
	}
	select {
	case conn.send <- payload:
	default:
		log.Printf("Failed to send initial sync to session %s", conn.session.ID)
	}
}
