package interfaces

import (
	"context"

	"proctorboard/pkg/types"
)

// Store is the persistence collaborator. It owns documents for sessions,
// rooms, sections, users and invitations; the real-time core treats the
// entities as opaque beyond the fields it diffs and displays.
type Store interface {
	// Session operations
	CreateSession(ctx context.Context, session *types.Session) error
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)
	UpdateSession(ctx context.Context, session *types.Session) error
	DeleteSession(ctx context.Context, sessionID string) error
	ListSessionsForUser(ctx context.Context, userID string) ([]*types.Session, error)

	// Room operations. FindSessionContainingRoom resolves the owning
	// session for permission checks and broadcast scoping.
	CreateRoom(ctx context.Context, sessionID string, room *types.Room) error
	GetRoom(ctx context.Context, roomID string) (*types.Room, error)
	UpdateRoom(ctx context.Context, room *types.Room) error
	DeleteRoom(ctx context.Context, roomID string) error
	FindSessionContainingRoom(ctx context.Context, roomID string) (*types.Session, error)

	// Section operations
	CreateSection(ctx context.Context, sessionID string, section *types.Section) error
	GetSection(ctx context.Context, sectionID string) (*types.Section, error)
	UpdateSection(ctx context.Context, section *types.Section) error
	FindSessionContainingSection(ctx context.Context, sectionID string) (*types.Session, error)

	// User operations
	GetUser(ctx context.Context, userID string) (*types.User, error)
	GetUserByEmail(ctx context.Context, email string) (*types.User, error)

	// Collaborator operations. The owner is never stored as a row.
	AddCollaborator(ctx context.Context, sessionID string, collab types.Collaborator) error
	RemoveCollaborator(ctx context.Context, sessionID, userID string) error
	GetCollaborator(ctx context.Context, sessionID, userID string) (*types.Collaborator, error)

	// Invitation operations. Creating a duplicate (session, email) pair
	// fails with ErrDuplicateInvite.
	CreateInvitation(ctx context.Context, inv *types.Invitation) error
	GetInvitation(ctx context.Context, invitationID string) (*types.Invitation, error)
	UpdateInvitation(ctx context.Context, inv *types.Invitation) error
	ListInvitations(ctx context.Context, sessionID string) ([]*types.Invitation, error)

	// Activity log. AppendActivity is atomic insert-and-trim: the stored
	// log never exceeds types.ActivityLogCap entries. Returns the stored
	// entry, or nil (no error) when the session does not exist.
	AppendActivity(ctx context.Context, sessionID string, entry *types.ActivityLogEntry) (*types.ActivityLogEntry, error)
	ListActivity(ctx context.Context, sessionID string) ([]*types.ActivityLogEntry, error)

	// Invalidation records
	AddInvalidation(ctx context.Context, inv *types.Invalidation) error
	RemoveInvalidation(ctx context.Context, invalidationID string) error
	ListInvalidations(ctx context.Context, sessionID string) ([]*types.Invalidation, error)

	// Health and lifecycle
	HealthCheck(ctx context.Context) error
	Close() error
}
