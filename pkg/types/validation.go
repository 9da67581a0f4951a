package types

import (
	"regexp"
)

// Compiled once at package initialization; identifiers are validated on
// every request so the regexes are hot.
var (
	idRegex    = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// IsValidID reports whether id is a well-formed entity identifier:
// 1-64 characters, alphanumeric plus underscore/hyphen.
func IsValidID(id string) bool {
	return len(id) >= 1 && len(id) <= 64 && idRegex.MatchString(id)
}

// IsValidEmail performs a shallow shape check; deliverability is the
// invitation mailer's problem, not ours.
func IsValidEmail(email string) bool {
	return len(email) <= 254 && emailRegex.MatchString(email)
}

// IsValidRoomStatus reports whether status is one of the two room states.
func IsValidRoomStatus(status string) bool {
	return status == RoomStatusActive || status == RoomStatusCompleted
}

// Validate ensures the session meets creation requirements.
func (s *Session) Validate() error {
	if len(s.Name) < 1 || len(s.Name) > 200 {
		return NewValidationError("name", "must be 1-200 characters")
	}
	if !IsValidID(s.OwnerID) {
		return NewValidationError("owner_id", "must be a valid user ID")
	}
	return nil
}

// Validate ensures the room meets creation requirements.
func (r *Room) Validate() error {
	if len(r.Name) < 1 || len(r.Name) > 200 {
		return NewValidationError("name", "must be 1-200 characters")
	}
	if r.Status != "" && !IsValidRoomStatus(r.Status) {
		return NewValidationError("status", "must be 'active' or 'completed'")
	}
	return nil
}

// Validate ensures the section meets creation requirements.
func (s *Section) Validate() error {
	if s.Number == "" {
		return NewValidationError("number", "is required")
	}
	if s.StudentCount < 0 {
		return NewValidationError("student_count", "cannot be negative")
	}
	return nil
}
