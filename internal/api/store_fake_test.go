package api

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"proctorboard/pkg/interfaces"
	"proctorboard/pkg/types"
)

// fakeStore is an in-memory Store for handler tests. It mirrors the real
// store's semantics where handlers depend on them: session-scoped rooms
// and sections, duplicate checks, the bounded activity log.
type fakeStore struct {
	mu sync.Mutex

	sessions    map[string]*types.Session
	rooms       map[string]*types.Room
	roomSession map[string]string
	sections    map[string]*types.Section
	sectSession map[string]string
	users       map[string]*types.User
	invitations map[string]*types.Invitation
	activity    map[string][]*types.ActivityLogEntry
	flags       map[string]*types.Invalidation
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions:    make(map[string]*types.Session),
		rooms:       make(map[string]*types.Room),
		roomSession: make(map[string]string),
		sections:    make(map[string]*types.Section),
		sectSession: make(map[string]string),
		users:       make(map[string]*types.User),
		invitations: make(map[string]*types.Invitation),
		activity:    make(map[string][]*types.ActivityLogEntry),
		flags:       make(map[string]*types.Invalidation),
	}
}

func (f *fakeStore) CreateSession(ctx context.Context, session *types.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *session
	f.sessions[session.ID] = &copied
	return nil
}

func (f *fakeStore) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[sessionID]
	if !ok {
		return nil, interfaces.ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (f *fakeStore) UpdateSession(ctx context.Context, session *types.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[session.ID]; !ok {
		return interfaces.ErrSessionNotFound
	}
	copied := *session
	f.sessions[session.ID] = &copied
	return nil
}

func (f *fakeStore) DeleteSession(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[sessionID]; !ok {
		return interfaces.ErrSessionNotFound
	}
	delete(f.sessions, sessionID)
	for roomID, sid := range f.roomSession {
		if sid == sessionID {
			delete(f.rooms, roomID)
			delete(f.roomSession, roomID)
		}
	}
	return nil
}

func (f *fakeStore) ListSessionsForUser(ctx context.Context, userID string) ([]*types.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sessions []*types.Session
	for _, session := range f.sessions {
		if session.OwnerID == userID {
			copied := *session
			sessions = append(sessions, &copied)
			continue
		}
		for _, collab := range session.Collaborators {
			if collab.UserID == userID {
				copied := *session
				sessions = append(sessions, &copied)
				break
			}
		}
	}
	return sessions, nil
}

func (f *fakeStore) CreateRoom(ctx context.Context, sessionID string, room *types.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *room
	f.rooms[room.ID] = &copied
	f.roomSession[room.ID] = sessionID
	return nil
}

func (f *fakeStore) GetRoom(ctx context.Context, roomID string) (*types.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[roomID]
	if !ok {
		return nil, interfaces.ErrRoomNotFound
	}
	copied := *room
	return &copied, nil
}

func (f *fakeStore) UpdateRoom(ctx context.Context, room *types.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rooms[room.ID]; !ok {
		return interfaces.ErrRoomNotFound
	}
	copied := *room
	f.rooms[room.ID] = &copied
	return nil
}

func (f *fakeStore) DeleteRoom(ctx context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rooms[roomID]; !ok {
		return interfaces.ErrRoomNotFound
	}
	delete(f.rooms, roomID)
	delete(f.roomSession, roomID)
	return nil
}

func (f *fakeStore) FindSessionContainingRoom(ctx context.Context, roomID string) (*types.Session, error) {
	f.mu.Lock()
	sessionID, ok := f.roomSession[roomID]
	f.mu.Unlock()
	if !ok {
		return nil, interfaces.ErrRoomNotFound
	}
	return f.GetSession(ctx, sessionID)
}

func (f *fakeStore) CreateSection(ctx context.Context, sessionID string, section *types.Section) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *section
	f.sections[section.ID] = &copied
	f.sectSession[section.ID] = sessionID
	return nil
}

func (f *fakeStore) GetSection(ctx context.Context, sectionID string) (*types.Section, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	section, ok := f.sections[sectionID]
	if !ok {
		return nil, interfaces.ErrSectionNotFound
	}
	copied := *section
	return &copied, nil
}

func (f *fakeStore) UpdateSection(ctx context.Context, section *types.Section) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sections[section.ID]; !ok {
		return interfaces.ErrSectionNotFound
	}
	copied := *section
	f.sections[section.ID] = &copied
	return nil
}

func (f *fakeStore) FindSessionContainingSection(ctx context.Context, sectionID string) (*types.Session, error) {
	f.mu.Lock()
	sessionID, ok := f.sectSession[sectionID]
	f.mu.Unlock()
	if !ok {
		return nil, interfaces.ErrSectionNotFound
	}
	return f.GetSession(ctx, sessionID)
}

func (f *fakeStore) GetUser(ctx context.Context, userID string) (*types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return nil, interfaces.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (*types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if strings.EqualFold(user.Email, email) {
			copied := *user
			return &copied, nil
		}
	}
	return nil, interfaces.ErrUserNotFound
}

func (f *fakeStore) AddCollaborator(ctx context.Context, sessionID string, collab types.Collaborator) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[sessionID]
	if !ok {
		return interfaces.ErrSessionNotFound
	}
	for _, existing := range session.Collaborators {
		if existing.UserID == collab.UserID {
			return interfaces.ErrDuplicateMember
		}
	}
	session.Collaborators = append(session.Collaborators, collab)
	return nil
}

func (f *fakeStore) RemoveCollaborator(ctx context.Context, sessionID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[sessionID]
	if !ok {
		return interfaces.ErrSessionNotFound
	}
	for i, collab := range session.Collaborators {
		if collab.UserID == userID {
			session.Collaborators = append(session.Collaborators[:i], session.Collaborators[i+1:]...)
			return nil
		}
	}
	return interfaces.ErrUserNotFound
}

func (f *fakeStore) GetCollaborator(ctx context.Context, sessionID, userID string) (*types.Collaborator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[sessionID]
	if !ok {
		return nil, interfaces.ErrSessionNotFound
	}
	for _, collab := range session.Collaborators {
		if collab.UserID == userID {
			copied := collab
			return &copied, nil
		}
	}
	return nil, interfaces.ErrUserNotFound
}

func (f *fakeStore) CreateInvitation(ctx context.Context, inv *types.Invitation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.invitations {
		if existing.SessionID == inv.SessionID && strings.EqualFold(existing.Email, inv.Email) {
			return interfaces.ErrDuplicateInvite
		}
	}
	copied := *inv
	f.invitations[inv.ID] = &copied
	return nil
}

func (f *fakeStore) GetInvitation(ctx context.Context, invitationID string) (*types.Invitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invitations[invitationID]
	if !ok {
		return nil, interfaces.ErrInvitationNotFound
	}
	copied := *inv
	return &copied, nil
}

func (f *fakeStore) UpdateInvitation(ctx context.Context, inv *types.Invitation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.invitations[inv.ID]; !ok {
		return interfaces.ErrInvitationNotFound
	}
	copied := *inv
	f.invitations[inv.ID] = &copied
	return nil
}

func (f *fakeStore) ListInvitations(ctx context.Context, sessionID string) ([]*types.Invitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var invitations []*types.Invitation
	for _, inv := range f.invitations {
		if inv.SessionID == sessionID {
			copied := *inv
			invitations = append(invitations, &copied)
		}
	}
	return invitations, nil
}

func (f *fakeStore) AppendActivity(ctx context.Context, sessionID string, entry *types.ActivityLogEntry) (*types.ActivityLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[sessionID]; !ok {
		return nil, nil
	}
	stored := *entry
	stored.ID = uuid.New().String()
	stored.Timestamp = time.Now()

	log := append([]*types.ActivityLogEntry{&stored}, f.activity[sessionID]...)
	if len(log) > types.ActivityLogCap {
		log = log[:types.ActivityLogCap]
	}
	f.activity[sessionID] = log
	return &stored, nil
}

func (f *fakeStore) ListActivity(ctx context.Context, sessionID string) ([]*types.ActivityLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*types.ActivityLogEntry{}, f.activity[sessionID]...), nil
}

func (f *fakeStore) AddInvalidation(ctx context.Context, inv *types.Invalidation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *inv
	f.flags[inv.ID] = &copied
	return nil
}

func (f *fakeStore) RemoveInvalidation(ctx context.Context, invalidationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.flags[invalidationID]; !ok {
		return interfaces.ErrInvalidationNotFound
	}
	delete(f.flags, invalidationID)
	return nil
}

func (f *fakeStore) ListInvalidations(ctx context.Context, sessionID string) ([]*types.Invalidation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var invalidations []*types.Invalidation
	for _, inv := range f.flags {
		if inv.SessionID == sessionID {
			copied := *inv
			invalidations = append(invalidations, &copied)
		}
	}
	return invalidations, nil
}

func (f *fakeStore) HealthCheck(ctx context.Context) error { return nil }
func (f *fakeStore) Close() error                          { return nil }
