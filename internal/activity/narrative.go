package activity

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"proctorboard/pkg/types"
)

// initialPrefix marks a supply item carried over from room setup. The
// prefix is stripped during normalization and surfaces as an "(initial)"
// qualifier in narrative text.
const initialPrefix = "INITIAL_"

// quantityRegex matches a trailing " (<n>)" quantity marker.
var quantityRegex = regexp.MustCompile(`\s\((\d+)\)$`)

// Known supply nouns whose plural/singular forms don't follow the default
// append-s rule.
var irregularPlurals = map[string]string{
	"box":      "boxes",
	"battery":  "batteries",
	"compass":  "compasses",
	"scissors": "scissors",
}

var irregularSingulars = map[string]string{
	"boxes":     "box",
	"batteries": "battery",
	"compasses": "compass",
	"scissors":  "scissors",
}

// Narrate turns one logical room edit into an activity log entry, or nil
// when the edit is a no-op. It never fails; absent fields are treated as
// empty-equivalent. sectionNumbers maps section ids to display numbers
// and is only consulted for section assignment changes.
func Narrate(change types.RoomChange, old *types.Room, userName string, sectionNumbers map[string]string) *types.ActivityLogEntry {
	if change == nil {
		return nil
	}
	if old == nil {
		old = &types.Room{}
	}
	if userName == "" {
		userName = "Unknown User"
	}

	switch c := change.(type) {
	case types.StatusChange:
		return narrateStatus(c, old, userName)
	case types.SuppliesChange:
		return narrateSupplies(old.Supplies, c.Supplies, userName, old.Name)
	case types.NotesChange:
		return narrateNotes(old.Notes, c.Notes, userName, old.Name)
	case types.ProctorsChange:
		return narrateProctors(old.Proctors, c.Proctors, userName, old.Name)
	case types.SectionsChange:
		return narrateSections(old.SectionIDs, c.SectionIDs, userName, old.Name, sectionNumbers)
	default:
		return nil
	}
}

// NarrateSectionUpdate describes a direct edit to a section's fields.
func NarrateSectionUpdate(old, updated *types.Section, userName string) *types.ActivityLogEntry {
	if old == nil || updated == nil || reflect.DeepEqual(old, updated) {
		return nil
	}
	if userName == "" {
		userName = "Unknown User"
	}

	if old.StudentCount != updated.StudentCount {
		return &types.ActivityLogEntry{
			Action: fmt.Sprintf("%s updated Section %s student count from %d to %d",
				userName, updated.Number, old.StudentCount, updated.StudentCount),
			UserName: userName,
		}
	}
	return &types.ActivityLogEntry{
		Action:   fmt.Sprintf("%s updated Section %s", userName, updated.Number),
		UserName: userName,
	}
}

// --- status ---

func narrateStatus(c types.StatusChange, old *types.Room, userName string) *types.ActivityLogEntry {
	switch c.Status {
	case types.RoomStatusCompleted:
		if old.Status == types.RoomStatusCompleted && equalPresent(old.PresentStudents, c.PresentStudents) {
			return nil
		}
		present := 0
		if c.PresentStudents != nil {
			present = *c.PresentStudents
		}
		return &types.ActivityLogEntry{
			Action: fmt.Sprintf("%s marked Room %s as completed with %d students present",
				userName, old.Name, present),
			UserName: userName,
			RoomName: old.Name,
		}

	case types.RoomStatusActive:
		if old.Status == types.RoomStatusActive {
			return nil
		}
		// Wording depends on whether a non-zero present count was recorded
		// before the room went back to active.
		if old.PresentStudents != nil && *old.PresentStudents > 0 {
			return &types.ActivityLogEntry{
				Action: fmt.Sprintf("%s reopened Room %s (was completed with %d students present)",
					userName, old.Name, *old.PresentStudents),
				UserName: userName,
				RoomName: old.Name,
			}
		}
		return &types.ActivityLogEntry{
			Action:   fmt.Sprintf("%s reactivated Room %s", userName, old.Name),
			UserName: userName,
			RoomName: old.Name,
		}
	}
	return nil
}

func equalPresent(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// --- supplies ---

// supplyKey identifies a normalized supply group. Initial-provenance items
// are summarized separately from regular ones.
type supplyKey struct {
	name    string
	initial bool
}

// supplyCounts is a multiset of normalized supply names in first-seen order.
type supplyCounts struct {
	counts map[supplyKey]int
	order  []supplyKey
}

// normalizeSupplies builds per-name counts. A trailing quantity marker
// sets the count for its name (explicit quantity wins over repetition);
// unmarked tokens count once per occurrence.
func normalizeSupplies(items []string) *supplyCounts {
	sc := &supplyCounts{counts: make(map[supplyKey]int)}
	explicit := make(map[supplyKey]bool)

	for _, raw := range items {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}

		initial := strings.HasPrefix(name, initialPrefix)
		if initial {
			name = strings.TrimPrefix(name, initialPrefix)
		}

		quantity := 0
		if m := quantityRegex.FindStringSubmatch(name); m != nil {
			quantity, _ = strconv.Atoi(m[1])
			name = strings.TrimSpace(name[:len(name)-len(m[0])])
		}
		if name == "" {
			continue
		}

		key := supplyKey{name: name, initial: initial}
		if _, seen := sc.counts[key]; !seen {
			sc.order = append(sc.order, key)
		}
		switch {
		case quantity > 0:
			sc.counts[key] = quantity
			explicit[key] = true
		case !explicit[key]:
			sc.counts[key]++
		}
	}
	return sc
}

func (sc *supplyCounts) count(key supplyKey) int {
	return sc.counts[key]
}

// mergedOrder returns keys from a then b, first appearance wins.
func mergedOrder(a, b *supplyCounts) []supplyKey {
	seen := make(map[supplyKey]bool)
	var keys []supplyKey
	for _, key := range append(append([]supplyKey{}, a.order...), b.order...) {
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	return keys
}

// summarizeGroups renders "(count) (noun)" segments joined by commas,
// singular when the count is one, with the initial qualifier per group.
func summarizeGroups(keys []supplyKey, counts map[supplyKey]int) string {
	var segments []string
	for _, key := range keys {
		count := counts[key]
		if count <= 0 {
			continue
		}
		noun := pluralize(key.name)
		if count == 1 {
			noun = singularize(key.name)
		}
		segment := fmt.Sprintf("%d %s", count, noun)
		if key.initial {
			segment += " (initial)"
		}
		segments = append(segments, segment)
	}
	return strings.Join(segments, ", ")
}

func pluralize(name string) string {
	if plural, ok := irregularPlurals[name]; ok {
		return plural
	}
	if strings.HasSuffix(name, "s") {
		return name
	}
	return name + "s"
}

func singularize(name string) string {
	if singular, ok := irregularSingulars[name]; ok {
		return singular
	}
	if strings.HasSuffix(name, "s") && !strings.HasSuffix(name, "ss") {
		return name[:len(name)-1]
	}
	return name
}

func narrateSupplies(oldItems, newItems []string, userName, roomName string) *types.ActivityLogEntry {
	oldCounts := normalizeSupplies(oldItems)
	newCounts := normalizeSupplies(newItems)
	keys := mergedOrder(oldCounts, newCounts)

	added := make(map[supplyKey]int)
	removed := make(map[supplyKey]int)
	for _, key := range keys {
		delta := newCounts.count(key) - oldCounts.count(key)
		if delta > 0 {
			added[key] = delta
		} else if delta < 0 {
			removed[key] = -delta
		}
	}

	addedSummary := summarizeGroups(keys, added)
	removedSummary := summarizeGroups(keys, removed)

	// Order-only change or duplicate resubmission produces no entry.
	if addedSummary == "" && removedSummary == "" {
		return nil
	}

	var action, details string
	switch {
	case addedSummary != "" && removedSummary != "":
		action = fmt.Sprintf("%s added %s and removed %s in Room %s",
			userName, addedSummary, removedSummary, roomName)
		details = fmt.Sprintf("Added: %s; Removed: %s", addedSummary, removedSummary)
	case addedSummary != "":
		action = fmt.Sprintf("%s added %s in Room %s", userName, addedSummary, roomName)
		details = fmt.Sprintf("Added: %s", addedSummary)
	default:
		action = fmt.Sprintf("%s removed %s in Room %s", userName, removedSummary, roomName)
		details = fmt.Sprintf("Removed: %s", removedSummary)
	}

	return &types.ActivityLogEntry{
		Action:   action,
		UserName: userName,
		RoomName: roomName,
		Details:  details,
	}
}

// --- notes ---

func narrateNotes(oldNotes, newNotes, userName, roomName string) *types.ActivityLogEntry {
	oldTrimmed := strings.TrimSpace(oldNotes)
	newTrimmed := strings.TrimSpace(newNotes)
	if oldTrimmed == newTrimmed {
		return nil
	}

	var action, details string
	switch {
	case oldTrimmed == "":
		action = fmt.Sprintf("%s added notes to Room %s", userName, roomName)
		details = newTrimmed
	case newTrimmed == "":
		action = fmt.Sprintf("%s removed notes from Room %s", userName, roomName)
	default:
		action = fmt.Sprintf("%s updated notes for Room %s", userName, roomName)
		details = newTrimmed
	}

	return &types.ActivityLogEntry{
		Action:   action,
		UserName: userName,
		RoomName: roomName,
		Details:  details,
	}
}

// --- proctors ---

// Proctor wording is count-based only; the narrative does not name which
// proctors changed, just the direction of the change.
func narrateProctors(oldProctors, newProctors []string, userName, roomName string) *types.ActivityLogEntry {
	if equalStringSlices(oldProctors, newProctors) {
		return nil
	}

	var action string
	switch {
	case len(newProctors) > len(oldProctors):
		action = fmt.Sprintf("%s added proctor(s) to Room %s", userName, roomName)
	case len(newProctors) < len(oldProctors):
		action = fmt.Sprintf("%s removed proctor(s) from Room %s", userName, roomName)
	default:
		action = fmt.Sprintf("%s reassigned proctor(s) in Room %s", userName, roomName)
	}

	return &types.ActivityLogEntry{
		Action:   action,
		UserName: userName,
		RoomName: roomName,
		Details:  strings.Join(newProctors, ", "),
	}
}

// --- sections ---

func narrateSections(oldIDs, newIDs []string, userName, roomName string, numbers map[string]string) *types.ActivityLogEntry {
	oldSet := toSet(oldIDs)
	newSet := toSet(newIDs)

	var added, removed []string
	for _, id := range newIDs {
		if !oldSet[id] {
			added = append(added, sectionLabel(id, numbers))
		}
	}
	for _, id := range oldIDs {
		if !newSet[id] {
			removed = append(removed, sectionLabel(id, numbers))
		}
	}
	if len(added) == 0 && len(removed) == 0 {
		return nil
	}

	var action, details string
	switch {
	case len(added) > 0 && len(removed) > 0:
		action = fmt.Sprintf("%s updated section assignments for Room %s", userName, roomName)
		details = fmt.Sprintf("Assigned: %s; Removed: %s",
			strings.Join(added, ", "), strings.Join(removed, ", "))
	case len(added) > 0:
		action = fmt.Sprintf("%s assigned section(s) %s to Room %s",
			userName, strings.Join(added, ", "), roomName)
	default:
		action = fmt.Sprintf("%s removed section(s) %s from Room %s",
			userName, strings.Join(removed, ", "), roomName)
	}

	return &types.ActivityLogEntry{
		Action:   action,
		UserName: userName,
		RoomName: roomName,
		Details:  details,
	}
}

func sectionLabel(id string, numbers map[string]string) string {
	if number, ok := numbers[id]; ok && number != "" {
		return number
	}
	return id
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func equalStringSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
