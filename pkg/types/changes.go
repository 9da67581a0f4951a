package types

// RoomChange is one logical edit to a room. Exactly one concrete change
// type is carried per mutation, so narrative precedence is structural
// rather than inferred from which optional fields happen to be present.
type RoomChange interface {
	Kind() string
}

// SuppliesChange replaces the room's supply list.
type SuppliesChange struct {
	Supplies []string
}

// StatusChange transitions the room between active and completed.
// PresentStudents accompanies a transition to completed.
type StatusChange struct {
	Status          string
	PresentStudents *int
}

// NotesChange replaces the room's notes text.
type NotesChange struct {
	Notes string
}

// ProctorsChange replaces the room's proctor assignments.
type ProctorsChange struct {
	Proctors []string
}

// SectionsChange replaces the room's assigned section list.
type SectionsChange struct {
	SectionIDs []string
}

func (SuppliesChange) Kind() string { return "supplies" }
func (StatusChange) Kind() string   { return "status" }
func (NotesChange) Kind() string    { return "notes" }
func (ProctorsChange) Kind() string { return "proctors" }
func (SectionsChange) Kind() string { return "sections" }

// RoomPatch is the legacy multi-field update payload. Clients that have
// not migrated to single-purpose changes may still send several fields
// at once; ResolveRoomChange collapses the patch to one logical edit.
type RoomPatch struct {
	Status          *string  `json:"status,omitempty"`
	PresentStudents *int     `json:"present_students,omitempty"`
	Supplies        []string `json:"supplies,omitempty"`
	Notes           *string  `json:"notes,omitempty"`
	Proctors        []string `json:"proctors,omitempty"`
	SectionIDs      []string `json:"section_ids,omitempty"`
}

// ResolveRoomChange selects the single logical edit a patch represents.
// Precedence: completion > reactivation without a present count > supplies
// > notes > proctors > sections. Returns nil when the patch is empty.
func ResolveRoomChange(p RoomPatch) RoomChange {
	if p.Status != nil && *p.Status == RoomStatusCompleted {
		return StatusChange{Status: RoomStatusCompleted, PresentStudents: p.PresentStudents}
	}
	if p.Status != nil && *p.Status == RoomStatusActive && p.PresentStudents == nil {
		return StatusChange{Status: RoomStatusActive}
	}
	if p.Supplies != nil {
		return SuppliesChange{Supplies: p.Supplies}
	}
	if p.Notes != nil {
		return NotesChange{Notes: *p.Notes}
	}
	if p.Proctors != nil {
		return ProctorsChange{Proctors: p.Proctors}
	}
	if p.SectionIDs != nil {
		return SectionsChange{SectionIDs: p.SectionIDs}
	}
	return nil
}
