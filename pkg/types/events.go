package types

import (
	"time"
)

// EventType identifies the kind of state change carried by an update
// envelope. The set is closed; NewUpdateEnvelope rejects unknown values.
type EventType string

const (
	EventRoomCreated         EventType = "room-created"
	EventRoomUpdated         EventType = "room-updated"
	EventRoomDeleted         EventType = "room-deleted"
	EventSectionUpdated      EventType = "section-updated"
	EventSectionAssigned     EventType = "section-assigned"
	EventSessionUpdated      EventType = "session-updated"
	EventInvalidationAdded   EventType = "invalidation-added"
	EventInvalidationRemoved EventType = "invalidation-removed"
	EventCollaboratorJoined  EventType = "collaborator-joined"
)

var validEventTypes = map[EventType]bool{
	EventRoomCreated:         true,
	EventRoomUpdated:         true,
	EventRoomDeleted:         true,
	EventSectionUpdated:      true,
	EventSectionAssigned:     true,
	EventSessionUpdated:      true,
	EventInvalidationAdded:   true,
	EventInvalidationRemoved: true,
	EventCollaboratorJoined:  true,
}

// IsValid reports whether t is one of the declared event types.
func (t EventType) IsValid() bool {
	return validEventTypes[t]
}

// UpdateEnvelope is the single outbound broadcast payload. Data always
// carries a "userName" key identifying the acting collaborator.
type UpdateEnvelope struct {
	Type      EventType              `json:"type"`
	SessionID string                 `json:"session_id"`
	Data      map[string]interface{} `json:"data"`
	LogEntry  *ActivityLogEntry      `json:"log_entry,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewUpdateEnvelope constructs a validated envelope. The acting user's
// display name is stamped into Data without mutating the caller's map.
func NewUpdateEnvelope(eventType EventType, sessionID string, data map[string]interface{}, actingUser *User, logEntry *ActivityLogEntry) (*UpdateEnvelope, error) {
	if !eventType.IsValid() {
		return nil, NewValidationError("type", "unknown event type "+string(eventType))
	}
	if !IsValidID(sessionID) {
		return nil, NewValidationError("session_id", "must be a valid session ID")
	}

	payload := make(map[string]interface{}, len(data)+1)
	for k, v := range data {
		payload[k] = v
	}
	payload["userName"] = actingUser.DisplayName()

	return &UpdateEnvelope{
		Type:      eventType,
		SessionID: sessionID,
		Data:      payload,
		LogEntry:  logEntry,
		Timestamp: time.Now(),
	}, nil
}
