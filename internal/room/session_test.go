package room

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shotmark/internal/models"
)

func TestSendPresenceReachesRoom(t *testing.T) {
	hub, srv := newTestServer(t, "")
	roomID := RoomID("shot-p")

	sess := NewSession(wsURL(srv, "shot-p", "user_id=ua&user_name=Ada"), SessionCallbacks{})
	require.NoError(t, sess.Connect(context.Background()))
	t.Cleanup(sess.Close)

	// The client never knows its server-side session id; the server
	// stamps it on receipt.
	sess.SendPresence(models.Presence{
		Cursor:     &models.CursorPosition{X: 0.25, Y: 0.75},
		SelectedID: "a1",
	})

	require.Eventually(t, func() bool {
		return len(hub.Presence(roomID)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	p := hub.Presence(roomID)[0]
	assert.NotEmpty(t, p.SessionID)
	assert.Equal(t, "ua", p.User.ID)
	require.NotNil(t, p.Cursor)
	assert.InDelta(t, 0.25, p.Cursor.X, 1e-9)
	assert.Equal(t, "a1", p.SelectedID)
}

func TestPresenceThrottleKeepsLatestValue(t *testing.T) {
	hub, srv := newTestServer(t, "")
	roomID := RoomID("shot-q")

	sess := NewSession(wsURL(srv, "shot-q", "user_id=ua"), SessionCallbacks{})
	require.NoError(t, sess.Connect(context.Background()))
	t.Cleanup(sess.Close)

	// A burst faster than the throttle window: intermediate positions
	// may be dropped but the final one always lands.
	for i := 0; i <= 100; i++ {
		sess.SendPresence(models.Presence{
			Cursor: &models.CursorPosition{X: float64(i) / 100, Y: 0.5},
		})
	}

	require.Eventually(t, func() bool {
		states := hub.Presence(roomID)
		return len(states) == 1 && states[0].Cursor != nil && states[0].Cursor.X == 1.0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSessionReconnectFiresRestored(t *testing.T) {
	hub, srv := newTestServer(t, "")
	roomID := RoomID("shot-r")

	restored := make(chan struct{}, 1)
	statusCh := make(chan Status, 32)
	sess := NewSession(wsURL(srv, "shot-r", "user_id=ua"), SessionCallbacks{
		OnRestored: func() { restored <- struct{}{} },
		OnStatus:   func(st Status) { statusCh <- st },
	})
	sess.backoff.Initial = 10 * time.Millisecond
	require.NoError(t, sess.Connect(context.Background()))
	t.Cleanup(sess.Close)

	require.Eventually(t, func() bool {
		return len(hub.Conns(roomID)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Server drops the link; the client must come back on its own and
	// signal the authoritative re-fetch.
	for _, c := range hub.Conns(roomID) {
		c.ws.Close()
	}

	select {
	case <-restored:
	case <-time.After(5 * time.Second):
		t.Fatal("session never recovered after connection loss")
	}
	assert.Equal(t, StatusConnected, sess.Status())

	var sawReconnecting bool
	for len(statusCh) > 0 {
		if <-statusCh == StatusReconnecting {
			sawReconnecting = true
		}
	}
	assert.True(t, sawReconnecting, "drop must surface as a reconnecting status")
}

func TestSessionGivesUpAfterAttemptBudget(t *testing.T) {
	hub, srv := newTestServer(t, "")
	roomID := RoomID("shot-g")

	sess := NewSession(wsURL(srv, "shot-g", "user_id=ua"), SessionCallbacks{})
	sess.backoff.Initial = 5 * time.Millisecond
	sess.attemptLimit = 2
	require.NoError(t, sess.Connect(context.Background()))
	t.Cleanup(sess.Close)

	require.Eventually(t, func() bool {
		return sess.Status() == StatusConnected
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(hub.Conns(roomID)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Take the whole server away: every redial fails, and after the
	// budget the session reports itself disconnected instead of
	// spinning forever. httptest forgets hijacked connections, so the
	// live websocket must be severed explicitly after the listener is
	// closed.
	srv.CloseClientConnections()
	srv.Close()
	for _, c := range hub.Conns(roomID) {
		c.ws.Close()
	}

	require.Eventually(t, func() bool {
		return sess.Status() == StatusDisconnected
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSessionUnauthorizedIsFatal(t *testing.T) {
	_, srv := newTestServer(t, "secret")

	sess := NewSession(wsURL(srv, "shot-a", "token=wrong"), SessionCallbacks{})
	err := sess.Connect(context.Background())

	// Distinct from a transient failure: surfaced immediately, no
	// retry loop.
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, StatusDisconnected, sess.Status())
}

func TestSessionStorageRoundTrip(t *testing.T) {
	hub, srv := newTestServer(t, "")
	roomID := RoomID("shot-s")

	sess := NewSession(wsURL(srv, "shot-s", "user_id=ua"), SessionCallbacks{})
	require.NoError(t, sess.Connect(context.Background()))
	t.Cleanup(sess.Close)

	require.NoError(t, sess.SendStorageSet("a1", map[string]any{"x": 0.4}))

	require.Eventually(t, func() bool {
		entry, ok := hub.RoomStorage(roomID).Get("a1")
		return ok && entry["x"] == 0.4
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, sess.SendStorageDelete("a1"))
	require.Eventually(t, func() bool {
		_, ok := hub.RoomStorage(roomID).Get("a1")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}
