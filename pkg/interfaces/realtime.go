package interfaces

import (
	"proctorboard/pkg/types"
)

// Observer is an ephemeral connection identity subscribed to at most one
// session at a time. Deliver is best-effort; a failed delivery must not
// affect other observers or the originating mutation.
type Observer interface {
	ID() string
	Deliver(envelope *types.UpdateEnvelope) error
}

// Registry tracks which observers are watching which session. It is
// process-local and non-persistent; reconnecting observers rejoin.
type Registry interface {
	Join(observer Observer, sessionID string)
	Leave(observerID, sessionID string)
	Disconnect(observerID string)
	MembersOf(sessionID string) []Observer
	Stats() map[string]int
}

// Broadcaster fans a state-change notification out to every observer of
// a session. Zero registered observers is a safe no-op.
type Broadcaster interface {
	Broadcast(sessionID string, eventType types.EventType, data map[string]interface{}, actingUser *types.User, logEntry *types.ActivityLogEntry)
}
