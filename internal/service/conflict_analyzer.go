package service

import (
	"fmt"
	"strings"

	"github.com/arkan-dika/timetable-api/internal/models"
)

// DefaultCapacityHardExcess is the room overflow beyond which a capacity
// conflict stops being a tolerable squeeze and becomes critical.
const DefaultCapacityHardExcess = 10

// ConflictAnalyzer inspects a slot set for scheduling conflicts. Analysis is
// pure: the same slots always produce the same conflicts in the same order.
type ConflictAnalyzer struct {
	hardExcess int
}

// NewConflictAnalyzer constructs an analyzer. A non-positive hard excess
// falls back to the default threshold.
func NewConflictAnalyzer(hardExcess int) *ConflictAnalyzer {
	if hardExcess <= 0 {
		hardExcess = DefaultCapacityHardExcess
	}
	return &ConflictAnalyzer{hardExcess: hardExcess}
}

// Analyze reports double-bookings first, then unassigned slots, then room
// capacity overflows. Double-booking entries reference both involved slots.
func (a *ConflictAnalyzer) Analyze(slots []models.TimetableSlot) []models.ConflictDetail {
	var conflicts []models.ConflictDetail

	for i := 0; i < len(slots); i++ {
		for j := i + 1; j < len(slots); j++ {
			conflicts = append(conflicts, pairConflicts(slots[i], slots[j])...)
		}
	}

	for _, slot := range slots {
		if slot.Assigned() {
			continue
		}
		conflicts = append(conflicts, unassignedConflict(slot))
	}

	for _, slot := range slots {
		if !slot.Assigned() || slot.RoomCapacity == nil {
			continue
		}
		excess := slot.GroupSize - *slot.RoomCapacity
		if excess <= 0 {
			continue
		}
		conflicts = append(conflicts, capacityConflict(slot, excess, a.hardExcess))
	}

	return conflicts
}

func pairConflicts(a, b models.TimetableSlot) []models.ConflictDetail {
	if !a.OverlapsWith(b) {
		return nil
	}
	var conflicts []models.ConflictDetail
	if a.TeacherID != nil && b.TeacherID != nil && *a.TeacherID != "" && *a.TeacherID == *b.TeacherID {
		conflicts = append(conflicts, doubleBooking(a, b, models.ConflictKindTeacherDoubleBooked,
			fmt.Sprintf("teacher %s has overlapping slots for %s and %s on day %d", *a.TeacherID, a.CourseID, b.CourseID, a.DayOfWeek)))
	}
	if a.RoomID != nil && b.RoomID != nil && *a.RoomID != "" && *a.RoomID == *b.RoomID {
		conflicts = append(conflicts, doubleBooking(a, b, models.ConflictKindRoomDoubleBooked,
			fmt.Sprintf("room %s hosts %s and %s at the same time on day %d", *a.RoomID, a.CourseID, b.CourseID, a.DayOfWeek)))
	}
	if a.GroupID != "" && a.GroupID == b.GroupID {
		conflicts = append(conflicts, doubleBooking(a, b, models.ConflictKindGroupDoubleBooked,
			fmt.Sprintf("group %s attends %s and %s at the same time on day %d", a.GroupID, a.CourseID, b.CourseID, a.DayOfWeek)))
	}
	return conflicts
}

func doubleBooking(a, b models.TimetableSlot, kind models.ConflictKind, description string) models.ConflictDetail {
	return models.ConflictDetail{
		SlotIDs:     []string{a.ID, b.ID},
		CourseIDs:   []string{a.CourseID, b.CourseID},
		Kind:        kind,
		Severity:    models.SeverityForKind(kind),
		Description: description,
	}
}

func unassignedConflict(slot models.TimetableSlot) models.ConflictDetail {
	var missing []string
	if slot.TeacherID == nil || *slot.TeacherID == "" {
		missing = append(missing, "teacher")
	}
	if slot.RoomID == nil || *slot.RoomID == "" {
		missing = append(missing, "room")
	}
	return models.ConflictDetail{
		SlotIDs:     []string{slot.ID},
		CourseIDs:   []string{slot.CourseID},
		Kind:        models.ConflictKindUnassignedResource,
		Severity:    models.SeverityForKind(models.ConflictKindUnassignedResource),
		Description: fmt.Sprintf("course %s for group %s is missing %s", slot.CourseID, slot.GroupID, strings.Join(missing, " and ")),
	}
}

func capacityConflict(slot models.TimetableSlot, excess, hardExcess int) models.ConflictDetail {
	return models.ConflictDetail{
		SlotIDs:     []string{slot.ID},
		CourseIDs:   []string{slot.CourseID},
		Kind:        models.ConflictKindCapacityExceeded,
		Severity:    models.CapacitySeverity(excess, hardExcess),
		Description: fmt.Sprintf("room %s seats %d but group %s brings %d students", *slot.RoomID, *slot.RoomCapacity, slot.GroupID, slot.GroupSize),
	}
}
