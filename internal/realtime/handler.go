package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"proctorboard/internal/auth"
	"proctorboard/internal/config"
	"proctorboard/internal/permissions"
	"proctorboard/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is delegated to the deployment's reverse proxy.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// clientEvent is the inbound wire shape for named events.
type clientEvent struct {
	Event     string `json:"event"`
	SessionID string `json:"session_id,omitempty"`
}

// Handler upgrades websocket requests and serves the named-event protocol:
// join-session, leave-session, ping. Disconnects clear membership.
type Handler struct {
	registry *Registry
	gate     *permissions.Gate
	verifier *auth.Verifier
	cfg      *config.WebSocketConfig
}

// NewHandler creates a websocket handler with injected dependencies.
func NewHandler(registry *Registry, gate *permissions.Gate, verifier *auth.Verifier, cfg *config.WebSocketConfig) *Handler {
	return &Handler{
		registry: registry,
		gate:     gate,
		verifier: verifier,
		cfg:      cfg,
	}
}

// HandleWebSocket authenticates, upgrades, and runs the connection
// lifecycle. Authentication happens before the upgrade so rejected
// clients get a proper HTTP status.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	userID, err := h.verifier.VerifyToken(token)
	if err != nil {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	conn := NewConnection(wsConn, userID, h.cfg.BufferSize, h.cfg.WriteTimeout)
	log.Printf("Observer connected: id=%s user=%s", conn.ID(), userID)

	go h.serveConnection(conn)
}

// serveConnection owns the read loop and heartbeat for one observer.
func (h *Handler) serveConnection(conn *Connection) {
	defer func() {
		// Disconnect is idempotent; a no-op when the observer never joined.
		h.registry.Disconnect(conn.ID())
		_ = conn.Close()
		log.Printf("Observer disconnected: id=%s user=%s", conn.ID(), conn.UserID())
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(h.cfg.WriteTimeout)
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error for observer %s: %v", conn.ID(), err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var event clientEvent
		if err := json.Unmarshal(data, &event); err != nil {
			h.sendError(conn, "malformed event")
			continue
		}
		h.handleEvent(conn, event)
	}
}

// handleEvent dispatches one named client event.
func (h *Handler) handleEvent(conn *Connection, event clientEvent) {
	switch event.Event {
	case "join-session":
		h.handleJoin(conn, event.SessionID)

	case "leave-session":
		if event.SessionID == "" {
			h.sendError(conn, "session_id is required")
			return
		}
		h.registry.Leave(conn.ID(), event.SessionID)

	case "ping":
		if err := conn.WriteEvent("pong", nil); err != nil {
			log.Printf("Failed to send pong to observer %s: %v", conn.ID(), err)
		}

	default:
		h.sendError(conn, "unknown event "+event.Event)
	}
}

// handleJoin verifies the observer may view the session before adding it
// to the membership set.
func (h *Handler) handleJoin(conn *Connection, sessionID string) {
	if sessionID == "" {
		h.sendError(conn, "session_id is required")
		return
	}

	perms, err := h.gate.Resolve(context.Background(), conn.UserID(), sessionID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			h.sendError(conn, "session not found")
		} else {
			h.sendError(conn, "not authorized for this session")
		}
		return
	}
	if err := permissions.Require(perms, permissions.CapabilityView); err != nil {
		h.sendError(conn, "not authorized for this session")
		return
	}

	h.registry.Join(conn, sessionID)
	if err := conn.WriteEvent("joined", map[string]string{"session_id": sessionID}); err != nil {
		log.Printf("Failed to confirm join for observer %s: %v", conn.ID(), err)
	}
}

func (h *Handler) sendError(conn *Connection, message string) {
	if err := conn.WriteEvent("error", map[string]string{"message": message}); err != nil {
		log.Printf("Failed to send error to observer %s: %v", conn.ID(), err)
	}
}
