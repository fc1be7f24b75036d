package solver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arkan-dika/timetable-api/internal/models"
)

func baseRequest() models.GenerationRequest {
	return models.GenerationRequest{
		TermID:         "term-1",
		Days:           []int{1, 2, 3, 4, 5},
		PeriodsPerDay:  6,
		PeriodMinutes:  45,
		DayStartMinute: 450,
		Courses: []models.CourseDemand{
			{CourseID: "math", TeacherID: "t-1", GroupID: "g-a", GroupSize: 28, WeeklyCount: 4, Difficulty: 9},
			{CourseID: "physics", TeacherID: "t-2", GroupID: "g-a", GroupSize: 28, WeeklyCount: 3, Difficulty: 8},
			{CourseID: "history", TeacherID: "t-3", GroupID: "g-a", GroupSize: 28, WeeklyCount: 2, Difficulty: 4},
			{CourseID: "math", TeacherID: "t-1", GroupID: "g-b", GroupSize: 30, WeeklyCount: 4, Difficulty: 9},
			{CourseID: "art", TeacherID: "t-4", GroupID: "g-b", GroupSize: 30, WeeklyCount: 2, Difficulty: 2},
		},
		Rooms: []models.RoomOption{
			{RoomID: "r-101", Capacity: 30},
			{RoomID: "r-102", Capacity: 32},
			{RoomID: "r-aula", Capacity: 120},
		},
	}
}

func totalWeekly(req models.GenerationRequest) int {
	total := 0
	for _, demand := range req.Courses {
		total += demand.WeeklyCount
	}
	return total
}

func requireExclusive(t *testing.T, slots []models.TimetableSlot) {
	t.Helper()
	for i := 0; i < len(slots); i++ {
		for j := i + 1; j < len(slots); j++ {
			a, b := slots[i], slots[j]
			if !a.OverlapsWith(b) {
				continue
			}
			if a.TeacherID != nil && b.TeacherID != nil {
				require.NotEqual(t, *a.TeacherID, *b.TeacherID, "teacher double booked")
			}
			if a.RoomID != nil && b.RoomID != nil {
				require.NotEqual(t, *a.RoomID, *b.RoomID, "room double booked")
			}
			require.NotEqual(t, a.GroupID, b.GroupID, "group double booked")
		}
	}
}

func TestEngineSolveStrictPlacesAllDemands(t *testing.T) {
	engine := New()
	req := baseRequest()

	slots, err := engine.Solve(context.Background(), req, true)
	require.NoError(t, err)
	require.Len(t, slots, totalWeekly(req))
	for _, slot := range slots {
		require.True(t, slot.Assigned())
		require.GreaterOrEqual(t, slot.DayOfWeek, 1)
		require.Less(t, slot.StartMinute, slot.EndMinute)
	}
	requireExclusive(t, slots)
}

func TestEngineSolveStrictFailsOnImpossibleLoad(t *testing.T) {
	engine := New()
	req := baseRequest()
	req.Days = []int{1}
	req.PeriodsPerDay = 2
	req.Courses = []models.CourseDemand{
		{CourseID: "math", TeacherID: "t-1", GroupID: "g-a", GroupSize: 20, WeeklyCount: 3},
	}

	slots, err := engine.Solve(context.Background(), req, true)
	require.Nil(t, slots)
	var hardErr *models.HardConstraintError
	require.ErrorAs(t, err, &hardErr)
	require.Equal(t, 1, hardErr.Violations)
}

func TestEngineSolveBestEffortKeepsPartialPlacements(t *testing.T) {
	engine := New()
	req := baseRequest()
	req.Days = []int{1}
	req.PeriodsPerDay = 2
	req.Courses = []models.CourseDemand{
		{CourseID: "math", TeacherID: "t-1", GroupID: "g-a", GroupSize: 20, WeeklyCount: 3},
	}

	slots, err := engine.Solve(context.Background(), req, false)
	require.NoError(t, err)
	require.Len(t, slots, 3)

	assigned := 0
	for _, slot := range slots {
		if slot.Assigned() {
			assigned++
			continue
		}
		require.Zero(t, slot.DayOfWeek)
		require.Zero(t, slot.StartMinute)
		require.Zero(t, slot.EndMinute)
	}
	require.Equal(t, 2, assigned)
	requireExclusive(t, slots)
}

func TestEngineSolveStrictRefusesOvercrowdedRoom(t *testing.T) {
	engine := New()
	req := baseRequest()
	req.Rooms = []models.RoomOption{{RoomID: "r-tiny", Capacity: 10}}
	req.Courses = []models.CourseDemand{
		{CourseID: "math", TeacherID: "t-1", GroupID: "g-a", GroupSize: 30, WeeklyCount: 1},
	}

	_, err := engine.Solve(context.Background(), req, true)
	var hardErr *models.HardConstraintError
	require.ErrorAs(t, err, &hardErr)
}

func TestEngineSolveBestEffortOverflowsSmallRoom(t *testing.T) {
	engine := New()
	req := baseRequest()
	req.Rooms = []models.RoomOption{{RoomID: "r-tiny", Capacity: 10}}
	req.Courses = []models.CourseDemand{
		{CourseID: "math", TeacherID: "t-1", GroupID: "g-a", GroupSize: 30, WeeklyCount: 1},
	}

	slots, err := engine.Solve(context.Background(), req, false)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	require.True(t, slots[0].Assigned())
	require.NotNil(t, slots[0].RoomCapacity)
	require.Equal(t, 10, *slots[0].RoomCapacity)
	require.Equal(t, 30, slots[0].GroupSize)
}

func TestEngineSolveHonorsPreferredPeriods(t *testing.T) {
	engine := New()
	req := baseRequest()
	req.Courses = []models.CourseDemand{
		{CourseID: "math", TeacherID: "t-1", GroupID: "g-a", GroupSize: 20, WeeklyCount: 1, PreferredPeriods: []int{3}},
	}

	slots, err := engine.Solve(context.Background(), req, true)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	require.Equal(t, 450+2*45, slots[0].StartMinute)
	require.Equal(t, 450+3*45, slots[0].EndMinute)
}

func TestEngineSolveDeterministic(t *testing.T) {
	engine := New()
	first, err := engine.Solve(context.Background(), baseRequest(), true)
	require.NoError(t, err)
	second, err := engine.Solve(context.Background(), baseRequest(), true)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestEngineSolveRespectsMaxTeacherLoadPerDay(t *testing.T) {
	engine := New()
	req := baseRequest()
	req.Days = []int{1, 2}
	req.PeriodsPerDay = 6
	req.Constraints.MaxTeacherLoadPerDay = 2
	req.Courses = []models.CourseDemand{
		{CourseID: "math", TeacherID: "t-1", GroupID: "g-a", GroupSize: 20, WeeklyCount: 4},
	}

	slots, err := engine.Solve(context.Background(), req, true)
	require.NoError(t, err)
	perDay := make(map[int]int)
	for _, slot := range slots {
		perDay[slot.DayOfWeek]++
	}
	for day, count := range perDay {
		require.LessOrEqual(t, count, 2, "day %d over teacher load", day)
	}
}

func TestEngineSolveStopsOnCancelledContext(t *testing.T) {
	engine := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Solve(ctx, baseRequest(), true)
	require.True(t, errors.Is(err, context.Canceled))
}
