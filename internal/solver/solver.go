package solver

import (
	"context"
	"fmt"
	"sort"

	"github.com/arkan-dika/timetable-api/internal/models"
)

const repairIterationCap = 64

// Engine performs deterministic greedy placement of course demands onto a
// weekly grid. Identical requests always yield identical slot sets.
type Engine struct{}

// New constructs a placement engine.
func New() *Engine {
	return &Engine{}
}

// Solve places every course demand of the request. In strict mode any demand
// that cannot be placed without breaking teacher, room or group exclusivity
// (including room capacity) fails the whole run with a HardConstraintError.
// In best-effort mode unplaceable demands become unassigned slots and rooms
// may be over capacity, but exclusivity is never violated.
func (e *Engine) Solve(ctx context.Context, req models.GenerationRequest, strict bool) ([]models.TimetableSlot, error) {
	days := normalizeDays(req.Days)
	if len(days) == 0 {
		return nil, fmt.Errorf("no teaching days configured")
	}
	if req.PeriodsPerDay <= 0 {
		return nil, fmt.Errorf("periods per day must be positive")
	}

	st := newState(req, days)

	demands := orderDemands(req.Courses)
	violations := 0
	for _, demand := range demands {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for occurrence := 0; occurrence < demand.WeeklyCount; occurrence++ {
			if st.assign(demand, strict) {
				continue
			}
			violations++
			if !strict {
				st.markUnplaced(demand)
			}
		}
	}

	if strict && violations > 0 {
		return nil, &models.HardConstraintError{Violations: violations}
	}

	st.repairGaps(repairIterationCap)
	return st.exportSlots(), nil
}

func orderDemands(demands []models.CourseDemand) []models.CourseDemand {
	ordered := make([]models.CourseDemand, len(demands))
	copy(ordered, demands)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].WeeklyCount != ordered[j].WeeklyCount {
			return ordered[i].WeeklyCount > ordered[j].WeeklyCount
		}
		if ordered[i].Difficulty != ordered[j].Difficulty {
			return ordered[i].Difficulty > ordered[j].Difficulty
		}
		if ordered[i].GroupSize != ordered[j].GroupSize {
			return ordered[i].GroupSize > ordered[j].GroupSize
		}
		return ordered[i].CourseID < ordered[j].CourseID
	})
	return ordered
}

// --- Grid state ---

type gridKey struct {
	Day    int
	Period int
}

type placement struct {
	demand models.CourseDemand
	day    int
	period int
	room   *models.RoomOption
}

type state struct {
	days          []int
	periods       int
	periodMinutes int
	dayStart      int

	rooms     []models.RoomOption
	roomBusy  map[gridKey]map[string]bool
	groupBusy map[string]map[gridKey]*placement
	teachers  map[string]*teacherLedger
	groupLoad map[string]map[int]int

	placed   []*placement
	unplaced []models.CourseDemand
}

func newState(req models.GenerationRequest, days []int) *state {
	rooms := make([]models.RoomOption, len(req.Rooms))
	copy(rooms, req.Rooms)
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].Capacity != rooms[j].Capacity {
			return rooms[i].Capacity < rooms[j].Capacity
		}
		return rooms[i].RoomID < rooms[j].RoomID
	})

	teachers := make(map[string]*teacherLedger)
	for _, demand := range req.Courses {
		if _, ok := teachers[demand.TeacherID]; !ok {
			teachers[demand.TeacherID] = newTeacherLedger(req.Constraints.MaxTeacherLoadPerDay)
		}
	}

	return &state{
		days:          days,
		periods:       req.PeriodsPerDay,
		periodMinutes: req.PeriodMinutes,
		dayStart:      req.DayStartMinute,
		rooms:         rooms,
		roomBusy:      make(map[gridKey]map[string]bool),
		groupBusy:     make(map[string]map[gridKey]*placement),
		teachers:      teachers,
		groupLoad:     make(map[string]map[int]int),
	}
}

func (s *state) assign(demand models.CourseDemand, strict bool) bool {
	for _, day := range s.candidateDays(demand) {
		for _, period := range s.candidatePeriods(demand) {
			if !s.freeForGroupAndTeacher(demand, day, period) {
				continue
			}
			room := s.pickRoom(day, period, demand.GroupSize, strict)
			if room == nil {
				continue
			}
			s.place(demand, day, period, room)
			return true
		}
	}
	return false
}

// candidateDays orders days so occurrences of one course spread out and group
// load stays balanced. Ties fall back to the day number to keep runs stable.
func (s *state) candidateDays(demand models.CourseDemand) []int {
	order := make([]int, len(s.days))
	copy(order, s.days)
	sort.SliceStable(order, func(i, j int) bool {
		di, dj := order[i], order[j]
		ci, cj := s.courseCount(demand, di), s.courseCount(demand, dj)
		if ci != cj {
			return ci < cj
		}
		li, lj := s.groupLoad[demand.GroupID][di], s.groupLoad[demand.GroupID][dj]
		if li != lj {
			return li < lj
		}
		return di < dj
	})
	return order
}

func (s *state) courseCount(demand models.CourseDemand, day int) int {
	count := 0
	for key, p := range s.groupBusy[demand.GroupID] {
		if key.Day == day && p.demand.CourseID == demand.CourseID {
			count++
		}
	}
	return count
}

func (s *state) candidatePeriods(demand models.CourseDemand) []int {
	var result []int
	seen := make(map[int]bool)
	for _, period := range demand.PreferredPeriods {
		if period < 1 || period > s.periods || seen[period] {
			continue
		}
		result = append(result, period)
		seen[period] = true
	}
	for period := 1; period <= s.periods; period++ {
		if seen[period] {
			continue
		}
		result = append(result, period)
	}
	return result
}

func (s *state) freeForGroupAndTeacher(demand models.CourseDemand, day, period int) bool {
	key := gridKey{Day: day, Period: period}
	if _, busy := s.groupBusy[demand.GroupID][key]; busy {
		return false
	}
	teacher := s.teachers[demand.TeacherID]
	if teacher == nil {
		return false
	}
	return teacher.canTeach(day, period)
}

// pickRoom selects the smallest free room that fits the group. Best-effort
// runs fall back to the largest free room when nothing fits, trading a
// capacity overflow for a placement.
func (s *state) pickRoom(day, period, groupSize int, strict bool) *models.RoomOption {
	key := gridKey{Day: day, Period: period}
	busy := s.roomBusy[key]
	for i := range s.rooms {
		room := &s.rooms[i]
		if busy[room.RoomID] {
			continue
		}
		if room.Capacity >= groupSize {
			return room
		}
	}
	if strict {
		return nil
	}
	for i := len(s.rooms) - 1; i >= 0; i-- {
		room := &s.rooms[i]
		if !busy[room.RoomID] {
			return room
		}
	}
	return nil
}

func (s *state) place(demand models.CourseDemand, day, period int, room *models.RoomOption) {
	key := gridKey{Day: day, Period: period}
	p := &placement{demand: demand, day: day, period: period, room: room}

	if s.groupBusy[demand.GroupID] == nil {
		s.groupBusy[demand.GroupID] = make(map[gridKey]*placement)
	}
	s.groupBusy[demand.GroupID][key] = p

	if s.roomBusy[key] == nil {
		s.roomBusy[key] = make(map[string]bool)
	}
	s.roomBusy[key][room.RoomID] = true

	s.teachers[demand.TeacherID].reserve(day, period)

	if s.groupLoad[demand.GroupID] == nil {
		s.groupLoad[demand.GroupID] = make(map[int]int)
	}
	s.groupLoad[demand.GroupID][day]++

	s.placed = append(s.placed, p)
}

func (s *state) markUnplaced(demand models.CourseDemand) {
	s.unplaced = append(s.unplaced, demand)
}

// repairGaps compacts each group's day by pulling later placements into idle
// periods, as long as the teacher and a room stay available at the target.
func (s *state) repairGaps(maxIterations int) int {
	iterations := 0
	groups := s.groupIDs()
	for iterations < maxIterations {
		moved := false
		for _, group := range groups {
			for _, day := range s.days {
				periods := s.periodsForGroupDay(group, day)
				if len(periods) < 2 {
					continue
				}
				for i := 0; i < len(periods)-1; i++ {
					current := periods[i]
					next := periods[i+1]
					if next-current <= 1 {
						continue
					}
					if s.moveSlot(group, day, next, current+1) {
						moved = true
						break
					}
				}
				if moved {
					break
				}
			}
			if moved {
				break
			}
		}
		if !moved {
			break
		}
		iterations++
	}
	return iterations
}

func (s *state) groupIDs() []string {
	ids := make([]string, 0, len(s.groupBusy))
	for id := range s.groupBusy {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *state) periodsForGroupDay(group string, day int) []int {
	var periods []int
	for key := range s.groupBusy[group] {
		if key.Day == day {
			periods = append(periods, key.Period)
		}
	}
	sort.Ints(periods)
	return periods
}

func (s *state) moveSlot(group string, day, fromPeriod, toPeriod int) bool {
	fromKey := gridKey{Day: day, Period: fromPeriod}
	toKey := gridKey{Day: day, Period: toPeriod}
	p := s.groupBusy[group][fromKey]
	if p == nil {
		return false
	}
	if _, busy := s.groupBusy[group][toKey]; busy {
		return false
	}
	teacher := s.teachers[p.demand.TeacherID]
	teacher.release(day, fromPeriod)
	if !teacher.canTeach(day, toPeriod) {
		teacher.reserve(day, fromPeriod)
		return false
	}
	if s.roomBusy[toKey][p.room.RoomID] {
		teacher.reserve(day, fromPeriod)
		return false
	}

	delete(s.groupBusy[group], fromKey)
	delete(s.roomBusy[fromKey], p.room.RoomID)
	p.period = toPeriod
	s.groupBusy[group][toKey] = p
	if s.roomBusy[toKey] == nil {
		s.roomBusy[toKey] = make(map[string]bool)
	}
	s.roomBusy[toKey][p.room.RoomID] = true
	teacher.reserve(day, toPeriod)
	return true
}

func (s *state) exportSlots() []models.TimetableSlot {
	slots := make([]models.TimetableSlot, 0, len(s.placed)+len(s.unplaced))
	for _, p := range s.placed {
		start := s.dayStart + (p.period-1)*s.periodMinutes
		teacherID := p.demand.TeacherID
		roomID := p.room.RoomID
		capacity := p.room.Capacity
		slots = append(slots, models.TimetableSlot{
			CourseID:     p.demand.CourseID,
			GroupID:      p.demand.GroupID,
			GroupSize:    p.demand.GroupSize,
			TeacherID:    &teacherID,
			RoomID:       &roomID,
			RoomCapacity: &capacity,
			DayOfWeek:    p.day,
			StartMinute:  start,
			EndMinute:    start + s.periodMinutes,
		})
	}
	for _, demand := range s.unplaced {
		slots = append(slots, models.TimetableSlot{
			CourseID:  demand.CourseID,
			GroupID:   demand.GroupID,
			GroupSize: demand.GroupSize,
		})
	}
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].GroupID != slots[j].GroupID {
			return slots[i].GroupID < slots[j].GroupID
		}
		if slots[i].DayOfWeek != slots[j].DayOfWeek {
			return slots[i].DayOfWeek < slots[j].DayOfWeek
		}
		if slots[i].StartMinute != slots[j].StartMinute {
			return slots[i].StartMinute < slots[j].StartMinute
		}
		return slots[i].CourseID < slots[j].CourseID
	})
	return slots
}

// --- Teacher ledger ---

type teacherLedger struct {
	maxPerDay int
	perDay    map[int]int
	assigned  map[int]map[int]bool
}

func newTeacherLedger(maxPerDay int) *teacherLedger {
	return &teacherLedger{
		maxPerDay: maxPerDay,
		perDay:    make(map[int]int),
		assigned:  make(map[int]map[int]bool),
	}
}

func (t *teacherLedger) canTeach(day, period int) bool {
	if t.assigned[day] != nil && t.assigned[day][period] {
		return false
	}
	if t.maxPerDay > 0 && t.perDay[day] >= t.maxPerDay {
		return false
	}
	return true
}

func (t *teacherLedger) reserve(day, period int) {
	if t.assigned[day] == nil {
		t.assigned[day] = make(map[int]bool)
	}
	t.assigned[day][period] = true
	t.perDay[day]++
}

func (t *teacherLedger) release(day, period int) {
	if t.assigned[day] != nil {
		delete(t.assigned[day], period)
	}
	if t.perDay[day] > 0 {
		t.perDay[day]--
	}
}

func normalizeDays(days []int) []int {
	unique := make(map[int]struct{})
	for _, day := range days {
		if day < 1 || day > 7 {
			continue
		}
		unique[day] = struct{}{}
	}
	result := make([]int, 0, len(unique))
	for day := range unique {
		result = append(result, day)
	}
	sort.Ints(result)
	return result
}
