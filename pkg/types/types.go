package types

import (
	"time"
)

// Room status values. A room is either being actively administered or has
// been marked completed by a proctor.
const (
	RoomStatusActive    = "active"
	RoomStatusCompleted = "completed"
)

// Invitation status values.
const (
	InvitationPending  = "pending"
	InvitationAccepted = "accepted"
	InvitationDeclined = "declined"
)

// ActivityLogCap bounds the per-session activity log. Appends beyond the cap
// evict the oldest entries at insertion time.
const ActivityLogCap = 100

// PermissionSet is the effective capability set for a (user, session) pair.
// Owner permissions are computed, never persisted as a collaborator row.
type PermissionSet struct {
	View   bool `json:"view"`
	Edit   bool `json:"edit"`
	Manage bool `json:"manage"`
}

// FullPermissions returns the owner capability set.
func FullPermissions() PermissionSet {
	return PermissionSet{View: true, Edit: true, Manage: true}
}

// User is an account known to the system. Only identity and display fields
// matter here; credentials live with the external auth collaborator.
type User struct {
	ID        string `json:"id" db:"id"`
	Email     string `json:"email" db:"email"`
	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`
}

// DisplayName renders the "First Last" form used in activity entries and
// broadcast envelopes. A nil or nameless user renders as "Unknown User".
func (u *User) DisplayName() string {
	if u == nil || (u.FirstName == "" && u.LastName == "") {
		return "Unknown User"
	}
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Collaborator attaches an explicit permission set to a user on a session.
type Collaborator struct {
	UserID      string        `json:"user_id" db:"user_id"`
	Permissions PermissionSet `json:"permissions"`
}

// Session is a scheduled testing event aggregating rooms and sections.
// Ownership and collaborator records drive the permission gate.
type Session struct {
	ID            string         `json:"id" db:"id"`
	Name          string         `json:"name" db:"name"`
	Date          time.Time      `json:"date" db:"date"`
	OwnerID       string         `json:"owner_id" db:"owner_id"`
	Collaborators []Collaborator `json:"collaborators"`
	RoomIDs       []string       `json:"room_ids"`
	SectionIDs    []string       `json:"section_ids"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
}

// Room is a physical space with supplies, proctors and assigned sections.
// PresentStudents is recorded when the room is marked completed.
type Room struct {
	ID              string   `json:"id" db:"id"`
	Name            string   `json:"name" db:"name"`
	Status          string   `json:"status" db:"status"`
	Supplies        []string `json:"supplies"`
	Proctors        []string `json:"proctors"`
	Notes           string   `json:"notes" db:"notes"`
	PresentStudents *int     `json:"present_students,omitempty" db:"present_students"`
	SectionIDs      []string `json:"section_ids"`
}

// Section is a group of students with a number and count, assignable to rooms.
type Section struct {
	ID           string `json:"id" db:"id"`
	Number       string `json:"number" db:"number"`
	Name         string `json:"name" db:"name"`
	StudentCount int    `json:"student_count" db:"student_count"`
}

// Invitation records a pending offer of collaborator access to a session.
// At most one invitation exists per (session, email) pair.
type Invitation struct {
	ID          string        `json:"id" db:"id"`
	SessionID   string        `json:"session_id" db:"session_id"`
	Email       string        `json:"email" db:"email"`
	Permissions PermissionSet `json:"permissions"`
	Status      string        `json:"status" db:"status"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
}

// ActivityLogEntry is an immutable narrative record of one state change.
// Entries belong to exactly one session and are ordered most-recent-first.
type ActivityLogEntry struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	UserName  string    `json:"user_name"`
	RoomName  string    `json:"room_name,omitempty"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Invalidation flags a test-section/room combination with a reason,
// scoped to a session.
type Invalidation struct {
	ID        string    `json:"id" db:"id"`
	SessionID string    `json:"session_id" db:"session_id"`
	RoomID    string    `json:"room_id" db:"room_id"`
	SectionID string    `json:"section_id" db:"section_id"`
	Reason    string    `json:"reason" db:"reason"`
	CreatedBy string    `json:"created_by" db:"created_by"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}
