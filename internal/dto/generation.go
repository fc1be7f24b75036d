package dto

import (
	"sort"
	"time"

	"github.com/arkan-dika/timetable-api/internal/models"
)

const (
	defaultPeriodMinutes  = 45
	defaultDayStartMinute = 7*60 + 30
)

// CourseDemandRequest describes one course needing weekly slots.
type CourseDemandRequest struct {
	CourseID         string `json:"courseId" validate:"required"`
	TeacherID        string `json:"teacherId" validate:"required"`
	GroupID          string `json:"groupId" validate:"required"`
	GroupSize        int    `json:"groupSize" validate:"required,min=1,max=500"`
	WeeklyCount      int    `json:"weeklyCount" validate:"required,min=1,max=20"`
	Difficulty       int    `json:"difficulty" validate:"omitempty,min=1,max=10"`
	PreferredPeriods []int  `json:"preferredPeriods" validate:"omitempty,dive,min=1,max=16"`
}

// RoomOptionRequest describes a bookable room.
type RoomOptionRequest struct {
	RoomID   string `json:"roomId" validate:"required"`
	Capacity int    `json:"capacity" validate:"required,min=1,max=1000"`
}

// ConstraintRequest carries optional solver constraints.
type ConstraintRequest struct {
	MaxTeacherLoadPerDay int `json:"maxTeacherLoadPerDay" validate:"omitempty,min=1,max=16"`
}

// GenerateTimetableRequest is the payload for generation runs, synchronous or
// queued.
type GenerateTimetableRequest struct {
	TermID         string                `json:"termId" validate:"required"`
	Days           []int                 `json:"days" validate:"required,min=1,max=7,dive,min=1,max=7"`
	PeriodsPerDay  int                   `json:"periodsPerDay" validate:"required,min=1,max=16"`
	PeriodMinutes  int                   `json:"periodMinutes" validate:"omitempty,min=5,max=240"`
	DayStartMinute int                   `json:"dayStartMinute" validate:"omitempty,min=0,max=1439"`
	Courses        []CourseDemandRequest `json:"courses" validate:"required,min=1,dive"`
	Rooms          []RoomOptionRequest   `json:"rooms" validate:"required,min=1,dive"`
	Constraints    ConstraintRequest     `json:"constraints"`
}

// ToModel converts the payload into the domain request, applying grid
// defaults and normalising the day list.
func (r GenerateTimetableRequest) ToModel() models.GenerationRequest {
	periodMinutes := r.PeriodMinutes
	if periodMinutes <= 0 {
		periodMinutes = defaultPeriodMinutes
	}
	dayStart := r.DayStartMinute
	if dayStart <= 0 {
		dayStart = defaultDayStartMinute
	}

	seen := make(map[int]bool, len(r.Days))
	days := make([]int, 0, len(r.Days))
	for _, day := range r.Days {
		if day < 1 || day > 7 || seen[day] {
			continue
		}
		seen[day] = true
		days = append(days, day)
	}
	sort.Ints(days)

	courses := make([]models.CourseDemand, 0, len(r.Courses))
	for _, course := range r.Courses {
		courses = append(courses, models.CourseDemand{
			CourseID:         course.CourseID,
			TeacherID:        course.TeacherID,
			GroupID:          course.GroupID,
			GroupSize:        course.GroupSize,
			WeeklyCount:      course.WeeklyCount,
			Difficulty:       course.Difficulty,
			PreferredPeriods: course.PreferredPeriods,
		})
	}
	rooms := make([]models.RoomOption, 0, len(r.Rooms))
	for _, room := range r.Rooms {
		rooms = append(rooms, models.RoomOption{RoomID: room.RoomID, Capacity: room.Capacity})
	}

	return models.GenerationRequest{
		TermID:         r.TermID,
		Days:           days,
		PeriodsPerDay:  r.PeriodsPerDay,
		PeriodMinutes:  periodMinutes,
		DayStartMinute: dayStart,
		Courses:        courses,
		Rooms:          rooms,
		Constraints:    models.ConstraintConfig{MaxTeacherLoadPerDay: r.Constraints.MaxTeacherLoadPerDay},
	}
}

// AcceptTimetableRequest persists a pending generation result.
type AcceptTimetableRequest struct {
	ResultID string `json:"resultId" validate:"required"`
}

// AcceptTimetableResponse returns the stored timetable identifier.
type AcceptTimetableResponse struct {
	TimetableID string `json:"timetableId"`
}

// GenerationJobResponse confirms job creation.
type GenerationJobResponse struct {
	ID       string                     `json:"id"`
	Status   models.GenerationJobStatus `json:"status"`
	Progress int                        `json:"progress"`
}

// GenerationJobStatusResponse reports queued-run progress to pollers. The
// full result is attached once the job finishes and the pending result is
// still available.
type GenerationJobStatusResponse struct {
	ID       string                     `json:"id"`
	Status   models.GenerationJobStatus `json:"status"`
	Progress int                        `json:"progress"`
	Message  *string                    `json:"message,omitempty"`
	ResultID *string                    `json:"resultId,omitempty"`
	Error    *string                    `json:"error,omitempty"`
	Result   *models.GenerationResult   `json:"result,omitempty"`
}

// TermAnalysisEntry summarises one analyzed version during a term sweep.
type TermAnalysisEntry struct {
	TimetableID       string                 `json:"timetableId"`
	Version           int                    `json:"version"`
	Status            models.TimetableStatus `json:"status"`
	Completion        float64                `json:"completion"`
	CriticalConflicts int                    `json:"criticalConflicts"`
	MajorConflicts    int                    `json:"majorConflicts"`
	MinorConflicts    int                    `json:"minorConflicts"`
	Recommendation    string                 `json:"recommendation"`
}

// TermAnalysisResponse aggregates a sweep across every stored version of a
// term, newest version first.
type TermAnalysisResponse struct {
	TermID   string              `json:"termId"`
	Analyzed int                 `json:"analyzed"`
	Entries  []TermAnalysisEntry `json:"entries"`
}

// ExportRequest asks for a rendered conflict report of a stored timetable.
type ExportRequest struct {
	TimetableID string `json:"timetableId" validate:"required"`
	Format      string `json:"format" validate:"required,oneof=csv pdf"`
}

// ExportResponse carries the signed download location.
type ExportResponse struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	Format    string    `json:"format"`
	ExpiresAt time.Time `json:"expiresAt"`
}
