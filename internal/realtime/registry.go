package realtime

import (
	"sync"

	"proctorboard/pkg/interfaces"
)

// Registry maps sessions to their currently-joined observers and each
// observer back to its session. It is process-local and non-persistent:
// membership does not survive a restart and reconnecting observers must
// rejoin explicitly. Constructed per process, injectable for tests.
type Registry struct {
	mu              sync.RWMutex
	sessions        map[string]map[string]interfaces.Observer // sessionID -> observerID -> Observer
	observerSession map[string]string                         // observerID -> sessionID
}

// NewRegistry creates an empty membership registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions:        make(map[string]map[string]interfaces.Observer),
		observerSession: make(map[string]string),
	}
}

// Join adds the observer to the session's membership set, creating the
// set on demand, and records the reverse mapping. A stale entry from a
// previous session is left as-is; only an explicit Leave or Disconnect
// clears it, so callers are expected to leave before joining elsewhere.
func (r *Registry) Join(observer interfaces.Observer, sessionID string) {
	if observer == nil || sessionID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	members, exists := r.sessions[sessionID]
	if !exists {
		members = make(map[string]interfaces.Observer)
		r.sessions[sessionID] = members
	}
	members[observer.ID()] = observer
	r.observerSession[observer.ID()] = sessionID
}

// Leave removes the observer from the named session's set, deleting the
// set when it becomes empty, and clears the reverse mapping. Idempotent.
func (r *Registry) Leave(observerID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(observerID, sessionID)
}

// Disconnect resolves the observer's current session via the reverse
// mapping and leaves it. No-op when the observer has no active session.
func (r *Registry) Disconnect(observerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessionID, exists := r.observerSession[observerID]
	if !exists {
		return
	}
	r.leaveLocked(observerID, sessionID)
}

// leaveLocked requires r.mu to be held for writing.
func (r *Registry) leaveLocked(observerID, sessionID string) {
	if members, exists := r.sessions[sessionID]; exists {
		delete(members, observerID)
		if len(members) == 0 {
			// No dangling session keys for empty sets.
			delete(r.sessions, sessionID)
		}
	}

	// Only clear the reverse mapping if it still points at this session;
	// an observer that already joined elsewhere keeps its newer mapping.
	if current, exists := r.observerSession[observerID]; exists && current == sessionID {
		delete(r.observerSession, observerID)
	}
}

// MembersOf returns the observers currently joined to the session.
func (r *Registry) MembersOf(sessionID string) []interfaces.Observer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, exists := r.sessions[sessionID]
	if !exists {
		return nil
	}
	observers := make([]interfaces.Observer, 0, len(members))
	for _, observer := range members {
		observers = append(observers, observer)
	}
	return observers
}

// Stats returns registry counters for diagnostics.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"watched_sessions": len(r.sessions),
		"joined_observers": len(r.observerSession),
	}
}
