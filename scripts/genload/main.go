// Command genload writes a synthetic generation request for exercising the
// solver, sized by flags. Feed the output to timetable-ctl generate -f.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"

	"github.com/arkan-dika/timetable-api/internal/dto"
)

func main() {
	var (
		out      string
		termID   string
		courses  int
		rooms    int
		teachers int
		groups   int
		days     int
		periods  int
		seed     int64
	)

	flag.StringVar(&out, "out", "request.json", "output file")
	flag.StringVar(&termID, "term", "term-demo", "term identifier")
	flag.IntVar(&courses, "courses", 24, "number of course demands")
	flag.IntVar(&rooms, "rooms", 6, "number of rooms")
	flag.IntVar(&teachers, "teachers", 10, "number of teachers")
	flag.IntVar(&groups, "groups", 6, "number of student groups")
	flag.IntVar(&days, "days", 5, "teaching days per week")
	flag.IntVar(&periods, "periods", 8, "periods per day")
	flag.Int64Var(&seed, "seed", 1, "random seed")
	flag.Parse()

	if courses < 1 || rooms < 1 || teachers < 1 || groups < 1 {
		log.Fatal("courses, rooms, teachers and groups must all be positive")
	}
	if days < 1 || days > 7 {
		log.Fatal("days must be between 1 and 7")
	}

	rng := rand.New(rand.NewSource(seed))
	req := buildRequest(rng, termID, courses, rooms, teachers, groups, days, periods)

	data, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		log.Fatalf("marshal request: %v", err)
	}
	if err := os.WriteFile(out, append(data, '\n'), 0o644); err != nil {
		log.Fatalf("write %s: %v", out, err)
	}

	sessions := 0
	for _, c := range req.Courses {
		sessions += c.WeeklyCount
	}
	capacity := rooms * days * periods
	fmt.Printf("wrote %s: %d courses, %d sessions over %d room-slots (%.0f%% utilisation)\n",
		out, len(req.Courses), sessions, capacity, float64(sessions)/float64(capacity)*100)
}

func buildRequest(rng *rand.Rand, termID string, courses, rooms, teachers, groups, days, periods int) dto.GenerateTimetableRequest {
	dayList := make([]int, days)
	for i := range dayList {
		dayList[i] = i + 1
	}

	req := dto.GenerateTimetableRequest{
		TermID:         termID,
		Days:           dayList,
		PeriodsPerDay:  periods,
		PeriodMinutes:  45,
		DayStartMinute: 7 * 60,
	}

	for i := 0; i < rooms; i++ {
		req.Rooms = append(req.Rooms, dto.RoomOptionRequest{
			RoomID:   fmt.Sprintf("room-%02d", i+1),
			Capacity: 24 + rng.Intn(16),
		})
	}

	for i := 0; i < courses; i++ {
		course := dto.CourseDemandRequest{
			CourseID:    fmt.Sprintf("course-%02d", i+1),
			TeacherID:   fmt.Sprintf("teacher-%02d", rng.Intn(teachers)+1),
			GroupID:     fmt.Sprintf("group-%02d", rng.Intn(groups)+1),
			GroupSize:   20 + rng.Intn(15),
			WeeklyCount: 2 + rng.Intn(4),
		}
		if rng.Intn(2) == 0 {
			course.Difficulty = 1 + rng.Intn(10)
		}
		if rng.Intn(4) == 0 {
			course.PreferredPeriods = []int{1 + rng.Intn(periods)}
		}
		req.Courses = append(req.Courses, course)
	}

	return req
}
