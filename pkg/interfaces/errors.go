package interfaces

import "errors"

// Shared sentinel errors crossing component boundaries. Components compare
// against these rather than inspecting store internals.
var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrRoomNotFound         = errors.New("room not found")
	ErrSectionNotFound      = errors.New("section not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrInvitationNotFound   = errors.New("invitation not found")
	ErrInvalidationNotFound = errors.New("invalidation not found")
	ErrDuplicateInvite      = errors.New("invitation already exists for this email")
	ErrDuplicateMember      = errors.New("user is already a collaborator")
)
