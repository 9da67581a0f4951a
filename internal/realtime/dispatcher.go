package realtime

import (
	"log"

	"proctorboard/pkg/interfaces"
	"proctorboard/pkg/types"
)

// Dispatcher fans state-change notifications out to every observer of a
// session. Delivery is fire-and-forget: no acknowledgement, no retry,
// no ordering guarantee across distinct sessions.
type Dispatcher struct {
	registry interfaces.Registry
}

// NewDispatcher creates a dispatcher over the given membership registry.
func NewDispatcher(registry interfaces.Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Broadcast builds a validated update envelope and delivers it to all
// members of the session at call time. Zero registered observers is a
// safe no-op. A failed delivery to one observer is logged and never
// affects the others or the originating mutation.
func (d *Dispatcher) Broadcast(sessionID string, eventType types.EventType, data map[string]interface{}, actingUser *types.User, logEntry *types.ActivityLogEntry) {
	envelope, err := types.NewUpdateEnvelope(eventType, sessionID, data, actingUser, logEntry)
	if err != nil {
		log.Printf("Dropping malformed broadcast for session %s: %v", sessionID, err)
		return
	}

	members := d.registry.MembersOf(sessionID)
	if len(members) == 0 {
		return
	}

	for _, observer := range members {
		if err := observer.Deliver(envelope); err != nil {
			log.Printf("Failed to deliver %s to observer %s: %v",
				envelope.Type, observer.ID(), err)
		}
	}
}
