package activity

import (
	"context"
	"log"

	"proctorboard/pkg/interfaces"
	"proctorboard/pkg/types"
)

// Recorder appends narrative entries to a session's bounded log through
// the store. Logging is best-effort relative to the primary mutation:
// a failed or skipped append never fails the caller.
type Recorder struct {
	store interfaces.Store
}

// NewRecorder creates a recorder backed by store.
func NewRecorder(store interfaces.Store) *Recorder {
	return &Recorder{store: store}
}

// Record appends entry to the session's log and returns the stored entry
// with its server-assigned id and timestamp. Returns nil when entry is
// nil, the session does not exist, or the append fails.
func (r *Recorder) Record(ctx context.Context, sessionID string, entry *types.ActivityLogEntry) *types.ActivityLogEntry {
	if entry == nil {
		return nil
	}

	stored, err := r.store.AppendActivity(ctx, sessionID, entry)
	if err != nil {
		log.Printf("Failed to record activity for session %s: %v", sessionID, err)
		return nil
	}
	return stored
}
