package models

import (
	"fmt"
	"time"
)

// DefaultAcceptanceFloor is the completion percentage a draft must reach
// before it counts as an acceptable result.
const DefaultAcceptanceFloor = 90.0

// Recommendation texts keyed by completion tier.
const (
	RecommendationPublish    = "complete, ready to publish."
	RecommendationReview     = "mostly complete; review conflicts or accept as-is."
	RecommendationRegenerate = "partial; fix high-priority conflicts and regenerate."
	RecommendationAttention  = "needs attention; address critical data issues before regenerating."
)

// CourseDemand describes one course that needs weekly slots on the grid.
type CourseDemand struct {
	CourseID         string `json:"course_id"`
	TeacherID        string `json:"teacher_id"`
	GroupID          string `json:"group_id"`
	GroupSize        int    `json:"group_size"`
	WeeklyCount      int    `json:"weekly_count"`
	Difficulty       int    `json:"difficulty,omitempty"`
	PreferredPeriods []int  `json:"preferred_periods,omitempty"`
}

// RoomOption describes a bookable room.
type RoomOption struct {
	RoomID   string `json:"room_id"`
	Capacity int    `json:"capacity"`
}

// ConstraintConfig carries per-request solver constraints.
type ConstraintConfig struct {
	MaxTeacherLoadPerDay int `json:"max_teacher_load_per_day,omitempty"`
}

// GenerationRequest is the full input for one generation run.
type GenerationRequest struct {
	TermID         string           `json:"term_id"`
	Days           []int            `json:"days"`
	PeriodsPerDay  int              `json:"periods_per_day"`
	PeriodMinutes  int              `json:"period_minutes"`
	DayStartMinute int              `json:"day_start_minute"`
	Courses        []CourseDemand   `json:"courses"`
	Rooms          []RoomOption     `json:"rooms"`
	Constraints    ConstraintConfig `json:"constraints"`
}

// GenerationResult is the outcome of a generation or re-analysis run.
type GenerationResult struct {
	ID                 string           `json:"id"`
	TermID             string           `json:"term_id"`
	TimetableID        *string          `json:"timetable_id,omitempty"`
	Status             TimetableStatus  `json:"status"`
	Fallback           bool             `json:"fallback"`
	Slots              []TimetableSlot  `json:"slots"`
	Conflicts          []ConflictDetail `json:"conflicts"`
	TotalCourses       int              `json:"total_courses"`
	ScheduledCourses   int              `json:"scheduled_courses"`
	UnscheduledCourses int              `json:"unscheduled_courses"`
	CriticalConflicts  int              `json:"critical_conflicts"`
	MajorConflicts     int              `json:"major_conflicts"`
	MinorConflicts     int              `json:"minor_conflicts"`
	Completion         float64          `json:"completion"`
	AcceptanceFloor    float64          `json:"acceptance_floor"`
	Recommendation     string           `json:"recommendation"`
	DurationMS         int64            `json:"duration_ms"`
	GeneratedAt        time.Time        `json:"generated_at"`
}

// IsSuccess reports whether the result is usable without another run. A
// published timetable always qualifies; a draft qualifies when nothing
// critical remains and completion clears the acceptance floor.
func (r *GenerationResult) IsSuccess() bool {
	if r == nil {
		return false
	}
	if r.Status == TimetableStatusPublished {
		return true
	}
	floor := r.AcceptanceFloor
	if floor <= 0 {
		floor = DefaultAcceptanceFloor
	}
	return r.Status == TimetableStatusDraft && r.CriticalConflicts == 0 && r.Completion >= floor
}

// HardConstraintError signals that a strict solve could not place every course
// without breaking a hard constraint. It is the only solver failure that
// permits a best-effort retry.
type HardConstraintError struct {
	Violations int
}

func (e *HardConstraintError) Error() string {
	if e.Violations == 1 {
		return "hard constraint violation: 1 course cannot be placed"
	}
	return fmt.Sprintf("hard constraint violation: %d courses cannot be placed", e.Violations)
}

// FallbackError reports that both the strict solve and the best-effort retry
// failed. Both causes stay reachable for errors.Is and errors.As.
type FallbackError struct {
	Strict     error
	BestEffort error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("generation failed after fallback: strict: %v; best-effort: %v", e.Strict, e.BestEffort)
}

// Unwrap exposes both underlying failures.
func (e *FallbackError) Unwrap() []error {
	return []error{e.Strict, e.BestEffort}
}
