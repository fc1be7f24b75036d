package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/arkan-dika/timetable-api/internal/models"
)

// TimetableSlotRepository manages slots belonging to stored timetables.
type TimetableSlotRepository struct {
	db *sqlx.DB
}

// NewTimetableSlotRepository builds repository.
func NewTimetableSlotRepository(db *sqlx.DB) *TimetableSlotRepository {
	return &TimetableSlotRepository{db: db}
}

func (r *TimetableSlotRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// UpsertBatch inserts or updates slots for a timetable. Slots conflict on
// their identifier rather than a grid position because unplaced slots share
// day zero.
func (r *TimetableSlotRepository) UpsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.TimetableSlot) error {
	if len(slots) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()

	const query = `
INSERT INTO timetable_slots (id, timetable_id, course_id, group_id, group_size, teacher_id, room_id, room_capacity, day_of_week, start_minute, end_minute, created_at)
VALUES (:id, :timetable_id, :course_id, :group_id, :group_size, :teacher_id, :room_id, :room_capacity, :day_of_week, :start_minute, :end_minute, :created_at)
ON CONFLICT (id) DO UPDATE
SET teacher_id = EXCLUDED.teacher_id,
    room_id = EXCLUDED.room_id,
    room_capacity = EXCLUDED.room_capacity,
    day_of_week = EXCLUDED.day_of_week,
    start_minute = EXCLUDED.start_minute,
    end_minute = EXCLUDED.end_minute`

	for i := range slots {
		slot := &slots[i]
		if slot.ID == "" {
			slot.ID = uuid.NewString()
		}
		if slot.CreatedAt.IsZero() {
			slot.CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, slot); err != nil {
			return fmt.Errorf("upsert timetable slot: %w", err)
		}
	}
	return nil
}

// ListByTimetable returns slots ordered by day and start time.
func (r *TimetableSlotRepository) ListByTimetable(ctx context.Context, timetableID string) ([]models.TimetableSlot, error) {
	const query = `SELECT id, timetable_id, course_id, group_id, group_size, teacher_id, room_id, room_capacity, day_of_week, start_minute, end_minute, created_at
FROM timetable_slots WHERE timetable_id = $1 ORDER BY day_of_week ASC, start_minute ASC, course_id ASC`
	var slots []models.TimetableSlot
	if err := r.db.SelectContext(ctx, &slots, query, timetableID); err != nil {
		return nil, fmt.Errorf("list timetable slots: %w", err)
	}
	return slots, nil
}

// DeleteByTimetable removes every slot for a timetable.
func (r *TimetableSlotRepository) DeleteByTimetable(ctx context.Context, exec sqlx.ExtContext, timetableID string) error {
	target := r.exec(exec)
	const query = `DELETE FROM timetable_slots WHERE timetable_id = $1`
	if _, err := target.ExecContext(ctx, query, timetableID); err != nil {
		return fmt.Errorf("delete timetable slots: %w", err)
	}
	return nil
}
