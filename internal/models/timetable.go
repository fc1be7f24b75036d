package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// TimetableStatus represents lifecycle phases for generated timetables.
type TimetableStatus string

const (
	TimetableStatusDraft     TimetableStatus = "DRAFT"
	TimetableStatusPublished TimetableStatus = "PUBLISHED"
	TimetableStatusArchived  TimetableStatus = "ARCHIVED"
)

// Timetable captures a versioned generated schedule for a term.
type Timetable struct {
	ID        string          `db:"id" json:"id"`
	TermID    string          `db:"term_id" json:"term_id"`
	Version   int             `db:"version" json:"version"`
	Status    TimetableStatus `db:"status" json:"status"`
	Meta      types.JSONText  `db:"meta" json:"meta"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// TimetableSlot is a concrete teaching slot inside a timetable. Teacher and
// room stay nil while the slot is unresolved; day and minutes stay zero so an
// unplaced slot occupies no window on the grid.
type TimetableSlot struct {
	ID           string    `db:"id" json:"id"`
	TimetableID  string    `db:"timetable_id" json:"timetable_id"`
	CourseID     string    `db:"course_id" json:"course_id"`
	GroupID      string    `db:"group_id" json:"group_id"`
	GroupSize    int       `db:"group_size" json:"group_size"`
	TeacherID    *string   `db:"teacher_id" json:"teacher_id,omitempty"`
	RoomID       *string   `db:"room_id" json:"room_id,omitempty"`
	RoomCapacity *int      `db:"room_capacity" json:"room_capacity,omitempty"`
	DayOfWeek    int       `db:"day_of_week" json:"day_of_week"`
	StartMinute  int       `db:"start_minute" json:"start_minute"`
	EndMinute    int       `db:"end_minute" json:"end_minute"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Assigned reports whether the slot has both a teacher and a room.
func (s TimetableSlot) Assigned() bool {
	return s.TeacherID != nil && *s.TeacherID != "" && s.RoomID != nil && *s.RoomID != ""
}

// OverlapsWith reports whether two slots occupy intersecting time windows on
// the same day. Zero-width windows never overlap anything.
func (s TimetableSlot) OverlapsWith(other TimetableSlot) bool {
	if s.DayOfWeek == 0 || s.DayOfWeek != other.DayOfWeek {
		return false
	}
	return s.StartMinute < other.EndMinute && other.StartMinute < s.EndMinute
}

// TimetableSummary aggregates versions available for a term.
type TimetableSummary struct {
	TermID    string              `json:"term_id"`
	ActiveID  *string             `json:"active_id,omitempty"`
	Versions  []TimetableOverview `json:"versions"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// TimetableOverview represents lightweight metadata for list views.
type TimetableOverview struct {
	ID         string          `json:"id"`
	Version    int             `json:"version"`
	Status     TimetableStatus `json:"status"`
	Completion float64         `json:"completion"`
	CreatedAt  time.Time       `json:"created_at"`
}
