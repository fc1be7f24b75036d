package service

import (
	"time"

	"github.com/arkan-dika/timetable-api/internal/models"
)

// ResultBuilder turns raw slots and conflicts into a classified result with
// completion metrics and a recommendation. Build is pure so rebuilding from
// the same inputs always yields the same result.
type ResultBuilder struct {
	acceptanceFloor float64
}

// NewResultBuilder constructs a builder. A non-positive floor falls back to
// the default acceptance floor.
func NewResultBuilder(acceptanceFloor float64) *ResultBuilder {
	if acceptanceFloor <= 0 {
		acceptanceFloor = models.DefaultAcceptanceFloor
	}
	return &ResultBuilder{acceptanceFloor: acceptanceFloor}
}

// Build derives counts and the recommendation tier. Unscheduled courses are
// the slots flagged with an unassigned-resource conflict; the analyzer emits
// at most one of those per slot, so the count never double-books a course.
// Double-bookings leave both slots placed and do not reduce the scheduled
// count, they surface through the severity tally instead.
func (b *ResultBuilder) Build(slots []models.TimetableSlot, status models.TimetableStatus, conflicts []models.ConflictDetail, duration time.Duration) *models.GenerationResult {
	total := len(slots)
	unscheduled := countUnscheduled(conflicts)
	scheduled := total - unscheduled
	if scheduled < 0 {
		scheduled = 0
	}

	var completion float64
	if total > 0 {
		completion = float64(scheduled) / float64(total) * 100
	}

	critical, major, minor := countBySeverity(conflicts)

	return &models.GenerationResult{
		Status:             status,
		Slots:              slots,
		Conflicts:          conflicts,
		TotalCourses:       total,
		ScheduledCourses:   scheduled,
		UnscheduledCourses: unscheduled,
		CriticalConflicts:  critical,
		MajorConflicts:     major,
		MinorConflicts:     minor,
		Completion:         completion,
		AcceptanceFloor:    b.acceptanceFloor,
		Recommendation:     recommendationFor(completion),
		DurationMS:         duration.Milliseconds(),
	}
}

// countUnscheduled tallies slots flagged as missing a resource. Conflicts are
// deduplicated by slot so a slot missing both teacher and room counts once.
// Slots without an identifier cannot be deduplicated and count individually.
func countUnscheduled(conflicts []models.ConflictDetail) int {
	seen := make(map[string]bool)
	count := 0
	for _, conflict := range conflicts {
		if conflict.Kind != models.ConflictKindUnassignedResource {
			continue
		}
		for _, slotID := range conflict.SlotIDs {
			if slotID != "" && seen[slotID] {
				continue
			}
			seen[slotID] = true
			count++
		}
	}
	return count
}

func recommendationFor(completion float64) string {
	switch {
	case completion >= 100:
		return models.RecommendationPublish
	case completion >= 90:
		return models.RecommendationReview
	case completion >= 70:
		return models.RecommendationRegenerate
	default:
		return models.RecommendationAttention
	}
}

func countBySeverity(conflicts []models.ConflictDetail) (critical, major, minor int) {
	for _, conflict := range conflicts {
		switch conflict.Severity {
		case models.ConflictSeverityCritical:
			critical++
		case models.ConflictSeverityMajor:
			major++
		case models.ConflictSeverityMinor:
			minor++
		}
	}
	return critical, major, minor
}
