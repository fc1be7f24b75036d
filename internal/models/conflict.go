package models

// ConflictKind enumerates the categories the analyzer can report.
type ConflictKind string

const (
	ConflictKindTeacherDoubleBooked ConflictKind = "TEACHER_DOUBLE_BOOKED"
	ConflictKindRoomDoubleBooked    ConflictKind = "ROOM_DOUBLE_BOOKED"
	ConflictKindGroupDoubleBooked   ConflictKind = "GROUP_DOUBLE_BOOKED"
	ConflictKindUnassignedResource  ConflictKind = "UNASSIGNED_RESOURCE"
	ConflictKindCapacityExceeded    ConflictKind = "CAPACITY_EXCEEDED"
	ConflictKindOther               ConflictKind = "OTHER"
)

// ConflictSeverity ranks how badly a conflict degrades a timetable.
type ConflictSeverity string

const (
	ConflictSeverityCritical ConflictSeverity = "CRITICAL"
	ConflictSeverityMajor    ConflictSeverity = "MAJOR"
	ConflictSeverityMinor    ConflictSeverity = "MINOR"
)

var severityRank = map[ConflictSeverity]int{
	ConflictSeverityCritical: 3,
	ConflictSeverityMajor:    2,
	ConflictSeverityMinor:    1,
}

// Rank returns a comparable weight, higher meaning more severe.
func (s ConflictSeverity) Rank() int {
	return severityRank[s]
}

// Blocking reports whether the severity prevents publication.
func (s ConflictSeverity) Blocking() bool {
	return s == ConflictSeverityCritical
}

// SeverityForKind maps a conflict kind to its severity. Double-bookings break
// physical exclusivity and are always critical; a missing teacher or room
// leaves the slot unusable but repairable; everything else starts minor.
func SeverityForKind(kind ConflictKind) ConflictSeverity {
	switch kind {
	case ConflictKindTeacherDoubleBooked, ConflictKindRoomDoubleBooked, ConflictKindGroupDoubleBooked:
		return ConflictSeverityCritical
	case ConflictKindUnassignedResource:
		return ConflictSeverityMajor
	default:
		return ConflictSeverityMinor
	}
}

// CapacitySeverity classifies a room overflow. Small overflows are livable;
// past the hard excess the room physically cannot host the group.
func CapacitySeverity(excess, hardExcess int) ConflictSeverity {
	if hardExcess > 0 && excess > hardExcess {
		return ConflictSeverityCritical
	}
	return ConflictSeverityMinor
}

// ConflictDetail describes one conflict found in a set of slots. Double-booking
// conflicts reference both involved slots; per-slot conflicts reference one.
type ConflictDetail struct {
	SlotIDs     []string         `json:"slot_ids"`
	CourseIDs   []string         `json:"course_ids"`
	Kind        ConflictKind     `json:"kind"`
	Severity    ConflictSeverity `json:"severity"`
	Description string           `json:"description"`
}
