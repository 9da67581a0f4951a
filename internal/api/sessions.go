package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"proctorboard/internal/auth"
	"proctorboard/internal/permissions"
	"proctorboard/pkg/types"
)

// Request/response shapes for the session surface.

type createSessionRequest struct {
	Name string    `json:"name" validate:"required,min=1,max=200"`
	Date time.Time `json:"date" validate:"required"`
}

type updateSessionRequest struct {
	Name *string    `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Date *time.Time `json:"date,omitempty"`
}

type inviteRequest struct {
	Email       string              `json:"email" validate:"required,email"`
	Permissions types.PermissionSet `json:"permissions"`
}

type respondInvitationRequest struct {
	Accept bool `json:"accept"`
}

type invalidationRequest struct {
	RoomID    string `json:"room_id" validate:"required"`
	SectionID string `json:"section_id" validate:"required"`
	Reason    string `json:"reason" validate:"required,min=1,max=500"`
}

type sessionResponse struct {
	Session *types.Session `json:"session"`
}

// handleSessions serves the sessions collection.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createSession(w, r)
	case http.MethodGet:
		s.listSessions(w, r)
	default:
		s.sendJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed", Code: http.StatusMethodNotAllowed})
	}
}

// handleSessionSubtree routes /api/sessions/{id}[/...] paths.
func (s *Server) handleSessionSubtree(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		s.sendError(w, types.NewValidationError("path", "session ID required"))
		return
	}
	sessionID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.getSession(w, r, sessionID)
		case http.MethodPatch:
			s.updateSession(w, r, sessionID)
		case http.MethodDelete:
			s.deleteSession(w, r, sessionID)
		default:
			s.sendJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed", Code: http.StatusMethodNotAllowed})
		}
		return
	}

	switch parts[1] {
	case "rooms":
		s.createRoom(w, r, sessionID)
	case "sections":
		s.createSection(w, r, sessionID)
	case "activity":
		s.listActivity(w, r, sessionID)
	case "invitations":
		s.handleInvitations(w, r, sessionID)
	case "collaborators":
		s.handleCollaborators(w, r, sessionID, parts[2:])
	case "invalidations":
		s.handleInvalidations(w, r, sessionID, parts[2:])
	default:
		s.sendError(w, types.ErrNotFound)
	}
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.sendError(w, err)
		return
	}

	userID, ok := authUser(r, s, w)
	if !ok {
		return
	}

	session := &types.Session{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Date:      req.Date,
		OwnerID:   userID,
		CreatedAt: time.Now(),
	}
	if err := session.Validate(); err != nil {
		s.sendError(w, err)
		return
	}
	if err := s.store.CreateSession(r.Context(), session); err != nil {
		s.sendError(w, err)
		return
	}

	s.sendJSON(w, http.StatusCreated, sessionResponse{Session: session})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := authUser(r, s, w)
	if !ok {
		return
	}

	sessions, err := s.store.ListSessionsForUser(r.Context(), userID)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if _, err := s.authorize(r, sessionID, permissions.CapabilityView); err != nil {
		s.sendError(w, err)
		return
	}

	session, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, sessionResponse{Session: session})
}

func (s *Server) updateSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	userID, err := s.authorize(r, sessionID, permissions.CapabilityEdit)
	if err != nil {
		s.sendError(w, err)
		return
	}

	var req updateSessionRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.sendError(w, err)
		return
	}

	session, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		s.sendError(w, err)
		return
	}
	if req.Name != nil {
		session.Name = *req.Name
	}
	if req.Date != nil {
		session.Date = *req.Date
	}
	if err := s.store.UpdateSession(r.Context(), session); err != nil {
		s.sendError(w, err)
		return
	}

	user := s.actingUser(r, userID)
	s.broadcaster.Broadcast(sessionID, types.EventSessionUpdated,
		map[string]interface{}{"session": session}, user, nil)
	s.sendJSON(w, http.StatusOK, sessionResponse{Session: session})
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if _, err := s.authorize(r, sessionID, permissions.CapabilityManage); err != nil {
		s.sendError(w, err)
		return
	}
	if err := s.store.DeleteSession(r.Context(), sessionID); err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusNoContent, nil)
}

// --- activity ---

func (s *Server) listActivity(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		s.sendJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed", Code: http.StatusMethodNotAllowed})
		return
	}
	if _, err := s.authorize(r, sessionID, permissions.CapabilityView); err != nil {
		s.sendError(w, err)
		return
	}

	entries, err := s.store.ListActivity(r.Context(), sessionID)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]interface{}{"activity": entries})
}

// --- invitations ---

func (s *Server) handleInvitations(w http.ResponseWriter, r *http.Request, sessionID string) {
	switch r.Method {
	case http.MethodPost:
		s.createInvitation(w, r, sessionID)
	case http.MethodGet:
		s.listInvitations(w, r, sessionID)
	default:
		s.sendJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed", Code: http.StatusMethodNotAllowed})
	}
}

func (s *Server) createInvitation(w http.ResponseWriter, r *http.Request, sessionID string) {
	if _, err := s.authorize(r, sessionID, permissions.CapabilityManage); err != nil {
		s.sendError(w, err)
		return
	}

	var req inviteRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.sendError(w, err)
		return
	}

	// Invited collaborators always get at least view access.
	perms := req.Permissions
	perms.View = true

	inv := &types.Invitation{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		Email:       strings.ToLower(req.Email),
		Permissions: perms,
		Status:      types.InvitationPending,
		CreatedAt:   time.Now(),
	}
	if err := s.store.CreateInvitation(r.Context(), inv); err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, map[string]interface{}{"invitation": inv})
}

func (s *Server) listInvitations(w http.ResponseWriter, r *http.Request, sessionID string) {
	if _, err := s.authorize(r, sessionID, permissions.CapabilityManage); err != nil {
		s.sendError(w, err)
		return
	}

	invitations, err := s.store.ListInvitations(r.Context(), sessionID)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]interface{}{"invitations": invitations})
}

// handleInvitationByID serves POST /api/invitations/{id}/respond.
func (s *Server) handleInvitationByID(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/invitations/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "respond" || r.Method != http.MethodPost {
		s.sendError(w, types.ErrNotFound)
		return
	}
	s.respondInvitation(w, r, parts[0])
}

// respondInvitation accepts or declines an invitation addressed to the
// authenticated user's email. Accepting creates the collaborator row and
// announces the new collaborator to current observers.
func (s *Server) respondInvitation(w http.ResponseWriter, r *http.Request, invitationID string) {
	userID, ok := authUser(r, s, w)
	if !ok {
		return
	}

	var req respondInvitationRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.sendError(w, err)
		return
	}

	inv, err := s.store.GetInvitation(r.Context(), invitationID)
	if err != nil {
		s.sendError(w, err)
		return
	}
	if inv.Status != types.InvitationPending {
		s.sendError(w, types.ErrConflict)
		return
	}

	user, err := s.store.GetUser(r.Context(), userID)
	if err != nil {
		s.sendError(w, err)
		return
	}
	if !strings.EqualFold(user.Email, inv.Email) {
		s.sendError(w, types.ErrForbidden)
		return
	}

	if !req.Accept {
		inv.Status = types.InvitationDeclined
		if err := s.store.UpdateInvitation(r.Context(), inv); err != nil {
			s.sendError(w, err)
			return
		}
		s.sendJSON(w, http.StatusOK, map[string]interface{}{"invitation": inv})
		return
	}

	inv.Status = types.InvitationAccepted
	if err := s.store.UpdateInvitation(r.Context(), inv); err != nil {
		s.sendError(w, err)
		return
	}
	collab := types.Collaborator{UserID: userID, Permissions: inv.Permissions}
	if err := s.store.AddCollaborator(r.Context(), inv.SessionID, collab); err != nil {
		s.sendError(w, err)
		return
	}

	entry := s.recorder.Record(r.Context(), inv.SessionID, &types.ActivityLogEntry{
		Action:   fmt.Sprintf("%s joined the session as a collaborator", user.DisplayName()),
		UserName: user.DisplayName(),
	})
	s.broadcaster.Broadcast(inv.SessionID, types.EventCollaboratorJoined,
		map[string]interface{}{"collaborator": collab}, user, entry)

	s.sendJSON(w, http.StatusOK, map[string]interface{}{"invitation": inv})
}

// --- collaborators ---

func (s *Server) handleCollaborators(w http.ResponseWriter, r *http.Request, sessionID string, rest []string) {
	if r.Method != http.MethodDelete || len(rest) != 1 || rest[0] == "" {
		s.sendError(w, types.ErrNotFound)
		return
	}
	if _, err := s.authorize(r, sessionID, permissions.CapabilityManage); err != nil {
		s.sendError(w, err)
		return
	}
	if err := s.store.RemoveCollaborator(r.Context(), sessionID, rest[0]); err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusNoContent, nil)
}

// --- invalidations ---

func (s *Server) handleInvalidations(w http.ResponseWriter, r *http.Request, sessionID string, rest []string) {
	switch {
	case r.Method == http.MethodPost && len(rest) == 0:
		s.addInvalidation(w, r, sessionID)
	case r.Method == http.MethodGet && len(rest) == 0:
		s.listInvalidations(w, r, sessionID)
	case r.Method == http.MethodDelete && len(rest) == 1 && rest[0] != "":
		s.removeInvalidation(w, r, sessionID, rest[0])
	default:
		s.sendError(w, types.ErrNotFound)
	}
}

func (s *Server) addInvalidation(w http.ResponseWriter, r *http.Request, sessionID string) {
	userID, err := s.authorize(r, sessionID, permissions.CapabilityEdit)
	if err != nil {
		s.sendError(w, err)
		return
	}

	var req invalidationRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.sendError(w, err)
		return
	}

	inv := &types.Invalidation{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		RoomID:    req.RoomID,
		SectionID: req.SectionID,
		Reason:    req.Reason,
		CreatedBy: userID,
		Timestamp: time.Now(),
	}
	if err := s.store.AddInvalidation(r.Context(), inv); err != nil {
		s.sendError(w, err)
		return
	}

	user := s.actingUser(r, userID)
	room, _ := s.store.GetRoom(r.Context(), req.RoomID)
	section, _ := s.store.GetSection(r.Context(), req.SectionID)
	entry := s.recorder.Record(r.Context(), sessionID, invalidationEntry(user, room, section, req.Reason))
	s.broadcaster.Broadcast(sessionID, types.EventInvalidationAdded,
		map[string]interface{}{"invalidation": inv}, user, entry)

	s.sendJSON(w, http.StatusCreated, map[string]interface{}{"invalidation": inv})
}

func invalidationEntry(user *types.User, room *types.Room, section *types.Section, reason string) *types.ActivityLogEntry {
	roomName := ""
	if room != nil {
		roomName = room.Name
	}
	sectionNumber := "unknown"
	if section != nil {
		sectionNumber = section.Number
	}
	return &types.ActivityLogEntry{
		Action: fmt.Sprintf("%s invalidated Section %s in Room %s",
			user.DisplayName(), sectionNumber, roomName),
		UserName: user.DisplayName(),
		RoomName: roomName,
		Details:  reason,
	}
}

func (s *Server) listInvalidations(w http.ResponseWriter, r *http.Request, sessionID string) {
	if _, err := s.authorize(r, sessionID, permissions.CapabilityView); err != nil {
		s.sendError(w, err)
		return
	}
	invalidations, err := s.store.ListInvalidations(r.Context(), sessionID)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]interface{}{"invalidations": invalidations})
}

func (s *Server) removeInvalidation(w http.ResponseWriter, r *http.Request, sessionID, invalidationID string) {
	userID, err := s.authorize(r, sessionID, permissions.CapabilityEdit)
	if err != nil {
		s.sendError(w, err)
		return
	}
	if err := s.store.RemoveInvalidation(r.Context(), invalidationID); err != nil {
		s.sendError(w, err)
		return
	}

	user := s.actingUser(r, userID)
	s.broadcaster.Broadcast(sessionID, types.EventInvalidationRemoved,
		map[string]interface{}{"invalidation_id": invalidationID}, user, nil)
	s.sendJSON(w, http.StatusNoContent, nil)
}

// authUser pulls the authenticated user id or writes a 401.
func authUser(r *http.Request, s *Server, w http.ResponseWriter) (string, bool) {
	userID, ok := auth.UserIDFrom(r.Context())
	if !ok {
		s.sendError(w, types.ErrUnauthorized)
		return "", false
	}
	return userID, true
}
