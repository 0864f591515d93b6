package room

import (
	"encoding/json"
	"fmt"

	"shotmark/internal/models"
)

// MessageType discriminates the closed set of wire messages exchanged
// within a room. Each variant carries exactly one payload field.
type MessageType string

const (
	// MessagePresence carries a throttled, last-value-wins presence
	// update for one connection.
	MessagePresence MessageType = "presence"
	// MessageStorageSet merges fields into the shared annotation map.
	MessageStorageSet MessageType = "storage_set"
	// MessageStorageDelete removes an annotation from shared storage.
	MessageStorageDelete MessageType = "storage_delete"
	// MessageEvent is a fire-and-forget room notification.
	MessageEvent MessageType = "event"
	// MessageSync is the server-to-client initial state on join.
	MessageSync MessageType = "sync"
)

// StorageMutation is one shared-storage write. Fields is the partial
// field set for storage_set and ignored for storage_delete.
type StorageMutation struct {
	AnnotationID string         `json:"annotation_id"`
	Fields       map[string]any `json:"fields,omitempty"`
}

// SyncPayload is the room state a client receives on join: the shared
// storage snapshot plus the presence of everyone already connected.
type SyncPayload struct {
	Storage  map[string]map[string]any `json:"storage"`
	Presence []models.Presence         `json:"presence"`
}

// Envelope is the tagged union for room traffic.
type Envelope struct {
	Type     MessageType       `json:"type"`
	Presence *models.Presence  `json:"presence,omitempty"`
	Storage  *StorageMutation  `json:"storage,omitempty"`
	Event    *models.RoomEvent `json:"event,omitempty"`
	Sync     *SyncPayload      `json:"sync,omitempty"`
}

// DecodeEnvelope parses and validates one wire message. Every variant's
// payload shape is checked exhaustively; unknown types are rejected
// rather than passed through.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("malformed room message: %w", err)
	}
	switch env.Type {
	case MessagePresence:
		// SessionID is stamped server-side per connection, so clients
		// legitimately send presence without one.
		if env.Presence == nil {
			return Envelope{}, fmt.Errorf("presence message: missing payload")
		}
	case MessageStorageSet:
		if env.Storage == nil || env.Storage.AnnotationID == "" || env.Storage.Fields == nil {
			return Envelope{}, fmt.Errorf("storage_set message: missing payload")
		}
	case MessageStorageDelete:
		if env.Storage == nil || env.Storage.AnnotationID == "" {
			return Envelope{}, fmt.Errorf("storage_delete message: missing payload")
		}
	case MessageEvent:
		if env.Event == nil {
			return Envelope{}, fmt.Errorf("event message: missing payload")
		}
		if err := env.Event.Validate(); err != nil {
			return Envelope{}, err
		}
	case MessageSync:
		if env.Sync == nil {
			return Envelope{}, fmt.Errorf("sync message: missing payload")
		}
	default:
		return Envelope{}, fmt.Errorf("unknown room message type %q", env.Type)
	}
	return env, nil
}

// Encode serializes an envelope for the wire.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// RoomID derives the room identifier for a screenshot. Every session
// viewing the same screenshot lands in the same room.
func RoomID(screenshotID string) string {
	return "screenshot:" + screenshotID
}
