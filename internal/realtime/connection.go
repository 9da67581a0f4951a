package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"proctorboard/pkg/types"
)

// serverFrame is the outbound wire shape. Broadcast envelopes travel as
// the single "session-update" event; the handler also emits "pong" and
// "error" frames.
type serverFrame struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

// Connection wraps a websocket with a single-writer channel so concurrent
// broadcasts never interleave frames. One Connection is one observer.
type Connection struct {
	conn         *websocket.Conn
	id           string
	userID       string
	writeCh      chan []byte
	writeTimeout time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once
}

// NewConnection creates a connection wrapper and starts its writer
// goroutine. The observer id is server-assigned and unique per connect.
func NewConnection(conn *websocket.Conn, userID string, bufferSize int, writeTimeout time.Duration) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:         conn,
		id:           uuid.New().String(),
		userID:       userID,
		writeCh:      make(chan []byte, bufferSize),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()

	return c
}

// ID returns the server-assigned observer id.
func (c *Connection) ID() string {
	return c.id
}

// UserID returns the authenticated user behind this connection.
func (c *Connection) UserID() string {
	return c.userID
}

// writeLoop is the single writer for the underlying socket. writeCh is
// never closed; cancellation gates both ends, so a late writeFrame fails
// with ErrConnectionClosed instead of hitting a closed channel.
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				c.cancel()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.cancel()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// Deliver sends a session-update envelope to this observer. Best-effort:
// the caller logs failures and moves on.
func (c *Connection) Deliver(envelope *types.UpdateEnvelope) error {
	return c.writeFrame(serverFrame{Event: "session-update", Payload: envelope})
}

// WriteEvent sends an arbitrary named frame (pong, error).
func (c *Connection) WriteEvent(event string, payload interface{}) error {
	return c.writeFrame(serverFrame{Event: event, Payload: payload})
}

func (c *Connection) writeFrame(frame serverFrame) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(c.writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close tears the connection down exactly once. Cancellation stops the
// writer goroutine and fails any pending Deliver; writeCh itself stays
// open for the life of the connection.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}
