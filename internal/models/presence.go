package models

import (
	"fmt"
	"time"

	"github.com/segmentio/ksuid"
)

// RoomSession identifies one live connection to a screenshot room.
type RoomSession struct {
	ID           string    `json:"id"`
	ScreenshotID string    `json:"screenshot_id"`
	User         UserInfo  `json:"user"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

func NewRoomSession(screenshotID string, user UserInfo) *RoomSession {
	now := time.Now()
	return &RoomSession{
		ID:           ksuid.New().String(),
		ScreenshotID: screenshotID,
		User:         user,
		ConnectedAt:  now,
		LastActiveAt: now,
	}
}

// UserInfo is the stable identity a session carries for presence
// rendering. Authentication happens upstream.
type UserInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"` // avatar/cursor hex color
}

// CursorPosition is a normalized position over the screenshot.
type CursorPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Presence is the ephemeral per-connection state broadcast to other
// room members. It is never persisted and is cleared the instant a
// connection drops. Cursor is nil while the pointer is off the canvas.
type Presence struct {
	SessionID  string          `json:"session_id"`
	User       UserInfo        `json:"user"`
	Cursor     *CursorPosition `json:"cursor,omitempty"`
	SelectedID string          `json:"selected_id,omitempty"`
	Typing     bool            `json:"typing,omitempty"`
}

// EventType discriminates the closed set of one-shot room events.
type EventType string

const (
	EventUserJoined        EventType = "USER_JOINED"
	EventUserLeft          EventType = "USER_LEFT"
	EventAnnotationCreated EventType = "ANNOTATION_CREATED"
	EventAnnotationDeleted EventType = "ANNOTATION_DELETED"
)

// RoomEvent is a fire-and-forget notification consumed for toast-style
// feedback. Events are not retried and are not part of durable state: a
// client offline when one fired reloads the authoritative document on
// reconnect instead.
type RoomEvent struct {
	Type EventType `json:"type"`
	User UserInfo  `json:"user"`
	// Set for the ANNOTATION_* variants.
	AnnotationID string `json:"annotation_id,omitempty"`
}

// Validate rejects payloads outside the closed union so each variant's
// shape is checked rather than assumed.
func (e RoomEvent) Validate() error {
	switch e.Type {
	case EventUserJoined, EventUserLeft:
		if e.User.ID == "" {
			return fmt.Errorf("%s event: missing user", e.Type)
		}
	case EventAnnotationCreated, EventAnnotationDeleted:
		if e.AnnotationID == "" {
			return fmt.Errorf("%s event: missing annotation id", e.Type)
		}
	default:
		return fmt.Errorf("unknown room event type %q", e.Type)
	}
	return nil
}
