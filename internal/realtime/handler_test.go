package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"proctorboard/internal/auth"
	"proctorboard/internal/config"
	"proctorboard/internal/permissions"
	"proctorboard/pkg/interfaces"
	"proctorboard/pkg/types"
)

const handlerTestSecret = "ws-test-secret"

// sessionOnlyStore serves GetSession for the gate; the embedded interface
// panics on anything else.
type sessionOnlyStore struct {
	interfaces.Store

	sessions map[string]*types.Session
}

func (s *sessionOnlyStore) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, interfaces.ErrSessionNotFound
	}
	return session, nil
}

func testWSConfig() *config.WebSocketConfig {
	return &config.WebSocketConfig{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 2 * time.Second,
		BufferSize:   10,
	}
}

func wsToken(t *testing.T, userID string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(handlerTestSecret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return signed
}

func startTestHandler(t *testing.T, sessions ...*types.Session) (*Registry, string) {
	t.Helper()

	store := &sessionOnlyStore{sessions: make(map[string]*types.Session)}
	for _, session := range sessions {
		store.sessions[session.ID] = session
	}

	registry := NewRegistry()
	handler := NewHandler(registry,
		permissions.NewGate(store),
		auth.NewVerifier(handlerTestSecret),
		testWSConfig())

	srv := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(srv.Close)
	return registry, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialHandler(t *testing.T, url, userID string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+wsToken(t, userID), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) serverFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	var frame serverFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("Bad frame %q: %v", data, err)
	}
	return frame
}

func sendEvent(t *testing.T, conn *websocket.Conn, event clientEvent) {
	t.Helper()
	if err := conn.WriteJSON(event); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
}

func TestHandler_RejectsMissingToken(t *testing.T) {
	_, url := startTestHandler(t)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("Expected dial rejection without token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 before upgrade, got %+v", resp)
	}
}

func TestHandler_JoinThenBroadcast(t *testing.T) {
	registry, url := startTestHandler(t, &types.Session{ID: "session-1", OwnerID: "owner-1"})
	conn := dialHandler(t, url, "owner-1")

	sendEvent(t, conn, clientEvent{Event: "join-session", SessionID: "session-1"})
	frame := readFrame(t, conn)
	if frame.Event != "joined" {
		t.Fatalf("Event = %q, want joined", frame.Event)
	}

	// Membership must be registered before the confirmation arrives.
	if members := registry.MembersOf("session-1"); len(members) != 1 {
		t.Fatalf("Expected 1 member, got %d", len(members))
	}

	dispatcher := NewDispatcher(registry)
	dispatcher.Broadcast("session-1", types.EventRoomUpdated,
		map[string]interface{}{"room": "r1"}, nil, nil)

	frame = readFrame(t, conn)
	if frame.Event != "session-update" {
		t.Errorf("Event = %q, want session-update", frame.Event)
	}
}

func TestHandler_JoinDeniedForStranger(t *testing.T) {
	registry, url := startTestHandler(t, &types.Session{ID: "session-1", OwnerID: "owner-1"})
	conn := dialHandler(t, url, "stranger")

	sendEvent(t, conn, clientEvent{Event: "join-session", SessionID: "session-1"})
	frame := readFrame(t, conn)
	if frame.Event != "error" {
		t.Errorf("Event = %q, want error", frame.Event)
	}
	if members := registry.MembersOf("session-1"); len(members) != 0 {
		t.Errorf("Denied join must not register membership, got %d", len(members))
	}
}

func TestHandler_JoinUnknownSession(t *testing.T) {
	_, url := startTestHandler(t)
	conn := dialHandler(t, url, "owner-1")

	sendEvent(t, conn, clientEvent{Event: "join-session", SessionID: "ghost"})
	if frame := readFrame(t, conn); frame.Event != "error" {
		t.Errorf("Event = %q, want error", frame.Event)
	}
}

func TestHandler_PingPong(t *testing.T) {
	_, url := startTestHandler(t)
	conn := dialHandler(t, url, "owner-1")

	sendEvent(t, conn, clientEvent{Event: "ping"})
	if frame := readFrame(t, conn); frame.Event != "pong" {
		t.Errorf("Event = %q, want pong", frame.Event)
	}
}

func TestHandler_DisconnectClearsMembership(t *testing.T) {
	registry, url := startTestHandler(t, &types.Session{ID: "session-1", OwnerID: "owner-1"})
	conn := dialHandler(t, url, "owner-1")

	sendEvent(t, conn, clientEvent{Event: "join-session", SessionID: "session-1"})
	if frame := readFrame(t, conn); frame.Event != "joined" {
		t.Fatalf("Event = %q", frame.Event)
	}

	_ = conn.Close()

	// The server read loop notices the close and leaves the session.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(registry.MembersOf("session-1")) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("Membership not cleared after disconnect: %d members", len(registry.MembersOf("session-1")))
}
