package room

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"shotmark/internal/models"
)

// ErrUnauthorized is returned when the server rejects the join before
// the upgrade. It is fatal: the session surfaces it and does not retry,
// since retrying a bad credential can never succeed.
var ErrUnauthorized = errors.New("room: unauthorized")

// Status is the client connection lifecycle.
type Status string

const (
	StatusInitial      Status = "initial"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusDisconnected Status = "disconnected"
)

// presenceInterval throttles outbound presence. Intermediate cursor
// positions within a window are dropped, never queued; only the latest
// value goes out.
const presenceInterval = 50 * time.Millisecond

// maxReconnectAttempts bounds the retry loop before the session gives
// up and reports itself disconnected.
const maxReconnectAttempts = 10

// SessionCallbacks receive inbound room traffic. All callbacks fire on
// the session's reader goroutine.
type SessionCallbacks struct {
	OnSync     func(SyncPayload)
	OnPresence func(models.Presence)
	OnStorage  func(Envelope)
	OnEvent    func(models.RoomEvent)
	OnStatus   func(Status)
	// OnRestored fires after a dropped connection comes back, once the
	// fresh sync payload has been delivered. Callers reload the
	// authoritative annotation set here rather than trusting events
	// missed while offline.
	OnRestored func()
}

// Session is the client half of a room connection. It dials, decodes
// inbound envelopes into callbacks, throttles outbound presence, and
// reconnects with capped exponential backoff when the link drops.
type Session struct {
	url       string
	callbacks SessionCallbacks

	mu     sync.Mutex
	ws     *websocket.Conn
	status Status

	pending   *models.Presence // latest unsent presence, last value wins
	pendingMu sync.Mutex

	backoff      Backoff
	attemptLimit int
	wasOnline    bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSession prepares a client session for the given room URL. Connect
// starts it.
func NewSession(url string, callbacks SessionCallbacks) *Session {
	return &Session{
		url:          url,
		callbacks:    callbacks,
		status:       StatusInitial,
		attemptLimit: maxReconnectAttempts,
		done:         make(chan struct{}),
	}
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) setStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
	if s.callbacks.OnStatus != nil {
		s.callbacks.OnStatus(st)
	}
}

// Connect dials the room and runs the session until ctx is cancelled or
// Close is called. A 401 on the initial dial returns ErrUnauthorized
// immediately; any later drop triggers reconnection instead of an
// error.
func (s *Session) Connect(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.setStatus(StatusConnecting)
	if err := s.dial(ctx); err != nil {
		s.setStatus(StatusDisconnected)
		cancel()
		return err
	}
	s.setStatus(StatusConnected)

	go s.presenceLoop(ctx)
	go s.run(ctx)
	return nil
}

func (s *Session) dial(ctx context.Context) error {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return ErrUnauthorized
		}
		return fmt.Errorf("dial room: %w", err)
	}
	s.mu.Lock()
	s.ws = ws
	s.mu.Unlock()
	s.backoff.Reset()
	return nil
}

// run reads frames until the connection drops, then reconnects. When
// the session ends, the context is cancelled so the presence loop
// stops with it.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer func() {
		s.mu.Lock()
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	}()
	for {
		s.readLoop(ctx)
		if ctx.Err() != nil {
			s.setStatus(StatusDisconnected)
			return
		}

		s.wasOnline = true
		s.setStatus(StatusReconnecting)
		if !s.reconnect(ctx) {
			s.setStatus(StatusDisconnected)
			return
		}
		s.setStatus(StatusConnected)
	}
}

func (s *Session) readLoop(ctx context.Context) {
	s.mu.Lock()
	ws := s.ws
	s.mu.Unlock()
	if ws == nil {
		return
	}
	defer ws.Close()

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPingHandler(func(appData string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return ws.WriteControl(websocket.PongMessage, nil, time.Now().Add(writeWait))
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("Room connection lost: %v", err)
			}
			return
		}
		env, err := DecodeEnvelope(message)
		if err != nil {
			log.Printf("Dropping bad server message: %v", err)
			continue
		}
		s.dispatch(env)
	}
}

func (s *Session) dispatch(env Envelope) {
	switch env.Type {
	case MessageSync:
		if s.callbacks.OnSync != nil {
			s.callbacks.OnSync(*env.Sync)
		}
		if s.wasOnline {
			s.wasOnline = false
			if s.callbacks.OnRestored != nil {
				s.callbacks.OnRestored()
			}
		}
	case MessagePresence:
		if s.callbacks.OnPresence != nil {
			s.callbacks.OnPresence(*env.Presence)
		}
	case MessageStorageSet, MessageStorageDelete:
		if s.callbacks.OnStorage != nil {
			s.callbacks.OnStorage(env)
		}
	case MessageEvent:
		if s.callbacks.OnEvent != nil {
			s.callbacks.OnEvent(*env.Event)
		}
	}
}

// reconnect retries the dial with capped exponential backoff until it
// succeeds, the attempt budget runs out, or ctx is cancelled. An auth
// rejection stops retrying immediately.
func (s *Session) reconnect(ctx context.Context) bool {
	for attempt := 0; attempt < s.attemptLimit; attempt++ {
		delay := s.backoff.Next()
		log.Printf("Reconnecting to room in %s...", delay)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}

		err := s.dial(ctx)
		if err == nil {
			return true
		}
		if errors.Is(err, ErrUnauthorized) {
			log.Printf("Room rejected credentials, giving up")
			return false
		}
		log.Printf("Reconnect failed: %v", err)
	}
	log.Printf("Room unreachable after %d attempts, giving up", s.attemptLimit)
	return false
}

// SendPresence queues a presence update. Calls faster than the throttle
// window overwrite each other; the latest value wins.
func (s *Session) SendPresence(p models.Presence) {
	s.pendingMu.Lock()
	s.pending = &p
	s.pendingMu.Unlock()
}

func (s *Session) presenceLoop(ctx context.Context) {
	ticker := time.NewTicker(presenceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pendingMu.Lock()
			p := s.pending
			s.pending = nil
			s.pendingMu.Unlock()
			if p == nil {
				continue
			}
			if err := s.send(Envelope{Type: MessagePresence, Presence: p}); err != nil {
				// Dropped, next tick carries a fresher value anyway.
				continue
			}
		}
	}
}

// SendStorageSet publishes a shared-storage field merge.
func (s *Session) SendStorageSet(annotationID string, fields map[string]any) error {
	return s.send(Envelope{
		Type:    MessageStorageSet,
		Storage: &StorageMutation{AnnotationID: annotationID, Fields: fields},
	})
}

// SendStorageDelete publishes a shared-storage removal.
func (s *Session) SendStorageDelete(annotationID string) error {
	return s.send(Envelope{
		Type:    MessageStorageDelete,
		Storage: &StorageMutation{AnnotationID: annotationID},
	})
}

// SendEvent publishes a fire-and-forget event. Failures are not
// retried.
func (s *Session) SendEvent(event models.RoomEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	return s.send(Envelope{Type: MessageEvent, Event: &event})
}

func (s *Session) send(env Envelope) error {
	payload, err := env.Encode()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ws == nil || s.status != StatusConnected {
		return fmt.Errorf("room: not connected")
	}
	s.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return s.ws.WriteMessage(websocket.TextMessage, payload)
}

// Close ends the session.
func (s *Session) Close() {
	s.mu.Lock()
	cancel := s.cancel
	ws := s.ws
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if ws != nil {
		ws.Close()
	}
}
