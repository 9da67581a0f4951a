package realtime

import (
	"fmt"
	"sync"
	"testing"

	"proctorboard/pkg/types"
)

// fakeObserver records deliveries for registry and dispatcher tests.
type fakeObserver struct {
	id string

	mu        sync.Mutex
	delivered []*types.UpdateEnvelope
	failWith  error
}

func (f *fakeObserver) ID() string { return f.id }

func (f *fakeObserver) Deliver(envelope *types.UpdateEnvelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.delivered = append(f.delivered, envelope)
	return nil
}

func (f *fakeObserver) deliveredCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delivered)
}

func TestRegistry_JoinThenLeaveRestoresState(t *testing.T) {
	registry := NewRegistry()
	observer := &fakeObserver{id: "obs-1"}

	registry.Join(observer, "session-1")
	if members := registry.MembersOf("session-1"); len(members) != 1 {
		t.Fatalf("Expected 1 member after join, got %d", len(members))
	}

	registry.Leave("obs-1", "session-1")
	if members := registry.MembersOf("session-1"); len(members) != 0 {
		t.Errorf("Expected 0 members after leave, got %d", len(members))
	}

	// Empty-set cleanup: the session key itself must be gone.
	stats := registry.Stats()
	if stats["watched_sessions"] != 0 {
		t.Errorf("Expected 0 watched sessions after cleanup, got %d", stats["watched_sessions"])
	}
	if stats["joined_observers"] != 0 {
		t.Errorf("Expected 0 joined observers after leave, got %d", stats["joined_observers"])
	}
}

func TestRegistry_DisconnectEquivalentToLeave(t *testing.T) {
	left := NewRegistry()
	disconnected := NewRegistry()
	observer := &fakeObserver{id: "obs-1"}

	left.Join(observer, "session-1")
	left.Leave("obs-1", "session-1")

	disconnected.Join(observer, "session-1")
	disconnected.Disconnect("obs-1")

	for name, registry := range map[string]*Registry{"leave": left, "disconnect": disconnected} {
		stats := registry.Stats()
		if stats["watched_sessions"] != 0 || stats["joined_observers"] != 0 {
			t.Errorf("%s: expected empty registry, got %v", name, stats)
		}
	}
}

func TestRegistry_DisconnectIsIdempotent(t *testing.T) {
	registry := NewRegistry()
	observer := &fakeObserver{id: "obs-1"}

	registry.Join(observer, "session-1")
	registry.Disconnect("obs-1")
	registry.Disconnect("obs-1")
	registry.Disconnect("never-joined")

	stats := registry.Stats()
	if stats["watched_sessions"] != 0 || stats["joined_observers"] != 0 {
		t.Errorf("Expected empty registry, got %v", stats)
	}
}

func TestRegistry_LeaveWrongSessionKeepsMembership(t *testing.T) {
	registry := NewRegistry()
	observer := &fakeObserver{id: "obs-1"}

	registry.Join(observer, "session-1")
	registry.Leave("obs-1", "session-2")

	if members := registry.MembersOf("session-1"); len(members) != 1 {
		t.Errorf("Leave for a different session must not remove membership, got %d members", len(members))
	}
	if stats := registry.Stats(); stats["joined_observers"] != 1 {
		t.Errorf("Reverse mapping must survive a mismatched leave, got %v", stats)
	}
}

func TestRegistry_RejoinThenLeaveOldSession(t *testing.T) {
	registry := NewRegistry()
	observer := &fakeObserver{id: "obs-1"}

	registry.Join(observer, "session-1")
	registry.Join(observer, "session-2")
	registry.Leave("obs-1", "session-1")

	// The newer mapping wins: leaving the old session must not clear it.
	if members := registry.MembersOf("session-2"); len(members) != 1 {
		t.Errorf("Expected membership in session-2 to survive, got %d members", len(members))
	}
	registry.Disconnect("obs-1")
	if members := registry.MembersOf("session-2"); len(members) != 0 {
		t.Errorf("Disconnect should leave the current session, got %d members", len(members))
	}
}

func TestRegistry_NilAndEmptyArgumentsIgnored(t *testing.T) {
	registry := NewRegistry()

	registry.Join(nil, "session-1")
	registry.Join(&fakeObserver{id: "obs-1"}, "")

	stats := registry.Stats()
	if stats["watched_sessions"] != 0 || stats["joined_observers"] != 0 {
		t.Errorf("Invalid joins must be ignored, got %v", stats)
	}
}

func TestRegistry_MembersOfUnknownSession(t *testing.T) {
	registry := NewRegistry()
	if members := registry.MembersOf("nope"); members != nil {
		t.Errorf("Expected nil for unknown session, got %v", members)
	}
}

func TestRegistry_ConcurrentJoinLeave(t *testing.T) {
	registry := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("obs-%d", n)
			observer := &fakeObserver{id: id}
			registry.Join(observer, "session-1")
			registry.Leave(id, "session-1")
		}(i)
	}
	wg.Wait()

	stats := registry.Stats()
	if stats["watched_sessions"] != 0 || stats["joined_observers"] != 0 {
		t.Errorf("Expected empty registry after paired join/leave, got %v", stats)
	}
}
