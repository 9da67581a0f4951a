package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"proctorboard/internal/activity"
	"proctorboard/internal/permissions"
	"proctorboard/pkg/types"
)

type createRoomRequest struct {
	Name       string   `json:"name" validate:"required,min=1,max=200"`
	Supplies   []string `json:"supplies,omitempty"`
	Proctors   []string `json:"proctors,omitempty"`
	SectionIDs []string `json:"section_ids,omitempty"`
}

type createSectionRequest struct {
	Number       string `json:"number" validate:"required,min=1,max=50"`
	Name         string `json:"name,omitempty" validate:"max=200"`
	StudentCount int    `json:"student_count" validate:"min=0"`
}

type updateSectionRequest struct {
	Number       *string `json:"number,omitempty" validate:"omitempty,min=1,max=50"`
	Name         *string `json:"name,omitempty" validate:"omitempty,max=200"`
	StudentCount *int    `json:"student_count,omitempty" validate:"omitempty,min=0"`
}

type roomResponse struct {
	Room *types.Room `json:"room"`
}

func (s *Server) createRoom(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost {
		s.sendJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed", Code: http.StatusMethodNotAllowed})
		return
	}
	userID, err := s.authorize(r, sessionID, permissions.CapabilityEdit)
	if err != nil {
		s.sendError(w, err)
		return
	}

	var req createRoomRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.sendError(w, err)
		return
	}

	room := &types.Room{
		ID:         uuid.New().String(),
		Name:       req.Name,
		Status:     types.RoomStatusActive,
		Supplies:   req.Supplies,
		Proctors:   req.Proctors,
		SectionIDs: req.SectionIDs,
	}
	if err := room.Validate(); err != nil {
		s.sendError(w, err)
		return
	}
	if err := s.store.CreateRoom(r.Context(), sessionID, room); err != nil {
		s.sendError(w, err)
		return
	}

	user := s.actingUser(r, userID)
	entry := s.recorder.Record(r.Context(), sessionID, &types.ActivityLogEntry{
		Action:   user.DisplayName() + " created Room " + room.Name,
		UserName: user.DisplayName(),
		RoomName: room.Name,
	})
	s.broadcaster.Broadcast(sessionID, types.EventRoomCreated,
		map[string]interface{}{"room": room}, user, entry)

	s.sendJSON(w, http.StatusCreated, roomResponse{Room: room})
}

// handleRoomByID serves PATCH and DELETE on /api/rooms/{id}.
func (s *Server) handleRoomByID(w http.ResponseWriter, r *http.Request) {
	roomID := strings.TrimPrefix(r.URL.Path, "/api/rooms/")
	if roomID == "" || strings.Contains(roomID, "/") {
		s.sendError(w, types.ErrNotFound)
		return
	}
	switch r.Method {
	case http.MethodPatch:
		s.updateRoom(w, r, roomID)
	case http.MethodDelete:
		s.deleteRoom(w, r, roomID)
	default:
		s.sendJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed", Code: http.StatusMethodNotAllowed})
	}
}

// updateRoom is the core mutation pipeline: resolve the owning session,
// authorize, collapse the patch to one logical change, apply it, narrate
// the before/after difference, record the log entry and broadcast the
// update with the entry attached.
func (s *Server) updateRoom(w http.ResponseWriter, r *http.Request, roomID string) {
	session, err := s.store.FindSessionContainingRoom(r.Context(), roomID)
	if err != nil {
		s.sendError(w, err)
		return
	}
	userID, err := s.authorize(r, session.ID, permissions.CapabilityEdit)
	if err != nil {
		s.sendError(w, err)
		return
	}

	var patch types.RoomPatch
	if err := s.decodeAndValidate(r, &patch); err != nil {
		s.sendError(w, err)
		return
	}
	change := types.ResolveRoomChange(patch)
	if change == nil {
		s.sendError(w, types.NewValidationError("body", "no recognized change"))
		return
	}

	room, err := s.store.GetRoom(r.Context(), roomID)
	if err != nil {
		s.sendError(w, err)
		return
	}
	before := *room
	applyRoomChange(room, change)
	if err := room.Validate(); err != nil {
		s.sendError(w, err)
		return
	}
	if err := s.store.UpdateRoom(r.Context(), room); err != nil {
		s.sendError(w, err)
		return
	}

	user := s.actingUser(r, userID)
	entry := s.recorder.Record(r.Context(), session.ID,
		activity.Narrate(change, &before, user.DisplayName(), s.sectionNumbers(r, change)))
	s.broadcaster.Broadcast(session.ID, types.EventRoomUpdated,
		map[string]interface{}{"room": room}, user, entry)

	s.sendJSON(w, http.StatusOK, roomResponse{Room: room})
}

// applyRoomChange writes one logical change onto the room. Reactivating a
// completed room clears its present-student count.
func applyRoomChange(room *types.Room, change types.RoomChange) {
	switch c := change.(type) {
	case types.StatusChange:
		room.Status = c.Status
		if c.Status == types.RoomStatusCompleted {
			room.PresentStudents = c.PresentStudents
		} else {
			room.PresentStudents = nil
		}
	case types.SuppliesChange:
		room.Supplies = c.Supplies
	case types.NotesChange:
		room.Notes = c.Notes
	case types.ProctorsChange:
		room.Proctors = c.Proctors
	case types.SectionsChange:
		room.SectionIDs = c.SectionIDs
	}
}

// sectionNumbers resolves section IDs touched by a sections change to their
// display numbers for the narrative. Unresolvable IDs are left out; the
// narrator falls back to the raw ID.
func (s *Server) sectionNumbers(r *http.Request, change types.RoomChange) map[string]string {
	sc, ok := change.(types.SectionsChange)
	if !ok {
		return nil
	}
	numbers := make(map[string]string, len(sc.SectionIDs))
	for _, id := range sc.SectionIDs {
		section, err := s.store.GetSection(r.Context(), id)
		if err != nil {
			continue
		}
		numbers[id] = section.Number
	}
	return numbers
}

func (s *Server) deleteRoom(w http.ResponseWriter, r *http.Request, roomID string) {
	session, err := s.store.FindSessionContainingRoom(r.Context(), roomID)
	if err != nil {
		s.sendError(w, err)
		return
	}
	userID, err := s.authorize(r, session.ID, permissions.CapabilityEdit)
	if err != nil {
		s.sendError(w, err)
		return
	}
	room, err := s.store.GetRoom(r.Context(), roomID)
	if err != nil {
		s.sendError(w, err)
		return
	}
	if err := s.store.DeleteRoom(r.Context(), roomID); err != nil {
		s.sendError(w, err)
		return
	}

	user := s.actingUser(r, userID)
	entry := s.recorder.Record(r.Context(), session.ID, &types.ActivityLogEntry{
		Action:   user.DisplayName() + " deleted Room " + room.Name,
		UserName: user.DisplayName(),
		RoomName: room.Name,
	})
	s.broadcaster.Broadcast(session.ID, types.EventRoomDeleted,
		map[string]interface{}{"room_id": roomID}, user, entry)

	s.sendJSON(w, http.StatusNoContent, nil)
}

// --- sections ---

func (s *Server) createSection(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost {
		s.sendJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed", Code: http.StatusMethodNotAllowed})
		return
	}
	userID, err := s.authorize(r, sessionID, permissions.CapabilityEdit)
	if err != nil {
		s.sendError(w, err)
		return
	}

	var req createSectionRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.sendError(w, err)
		return
	}

	section := &types.Section{
		ID:           uuid.New().String(),
		Number:       req.Number,
		Name:         req.Name,
		StudentCount: req.StudentCount,
	}
	if err := section.Validate(); err != nil {
		s.sendError(w, err)
		return
	}
	if err := s.store.CreateSection(r.Context(), sessionID, section); err != nil {
		s.sendError(w, err)
		return
	}

	user := s.actingUser(r, userID)
	s.broadcaster.Broadcast(sessionID, types.EventSectionAssigned,
		map[string]interface{}{"section": section}, user, nil)

	s.sendJSON(w, http.StatusCreated, map[string]interface{}{"section": section})
}

// handleSectionByID serves PATCH on /api/sections/{id}.
func (s *Server) handleSectionByID(w http.ResponseWriter, r *http.Request) {
	sectionID := strings.TrimPrefix(r.URL.Path, "/api/sections/")
	if sectionID == "" || strings.Contains(sectionID, "/") || r.Method != http.MethodPatch {
		s.sendError(w, types.ErrNotFound)
		return
	}

	session, err := s.store.FindSessionContainingSection(r.Context(), sectionID)
	if err != nil {
		s.sendError(w, err)
		return
	}
	userID, err := s.authorize(r, session.ID, permissions.CapabilityEdit)
	if err != nil {
		s.sendError(w, err)
		return
	}

	var req updateSectionRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.sendError(w, err)
		return
	}

	section, err := s.store.GetSection(r.Context(), sectionID)
	if err != nil {
		s.sendError(w, err)
		return
	}
	before := *section
	if req.Number != nil {
		section.Number = *req.Number
	}
	if req.Name != nil {
		section.Name = *req.Name
	}
	if req.StudentCount != nil {
		section.StudentCount = *req.StudentCount
	}
	if err := section.Validate(); err != nil {
		s.sendError(w, err)
		return
	}
	if err := s.store.UpdateSection(r.Context(), section); err != nil {
		s.sendError(w, err)
		return
	}

	user := s.actingUser(r, userID)
	entry := s.recorder.Record(r.Context(), session.ID,
		activity.NarrateSectionUpdate(&before, section, user.DisplayName()))
	s.broadcaster.Broadcast(session.ID, types.EventSectionUpdated,
		map[string]interface{}{"section": section}, user, entry)

	s.sendJSON(w, http.StatusOK, map[string]interface{}{"section": section})
}
