package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/volunteer-scheduler-api/internal/models"
)

// ShiftOwner pairs a shift with the posting fields needed to authorise signups on it.
type ShiftOwner struct {
	ShiftID         string               `db:"shift_id"`
	PostingID       string               `db:"posting_id"`
	PostingStatus   models.PostingStatus `db:"posting_status"`
	AutoClosingDate models.Date          `db:"auto_closing_date"`
}

// ShiftRepository persists generated shifts.
type ShiftRepository struct {
	db *sqlx.DB
}

// NewShiftRepository constructs a ShiftRepository.
func NewShiftRepository(db *sqlx.DB) *ShiftRepository {
	return &ShiftRepository{db: db}
}

func (r *ShiftRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// InsertBatch stores shifts for a posting.
func (r *ShiftRepository) InsertBatch(ctx context.Context, exec sqlx.ExtContext, shifts []models.Shift) error {
	if len(shifts) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()

	const query = `
INSERT INTO shifts (id, posting_id, start_time, end_time, created_at)
VALUES (:id, :posting_id, :start_time, :end_time, :created_at)
ON CONFLICT (posting_id, start_time, end_time) DO NOTHING`

	for i := range shifts {
		shift := &shifts[i]
		if shift.ID == "" {
			shift.ID = uuid.NewString()
		}
		if shift.CreatedAt.IsZero() {
			shift.CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, shift); err != nil {
			return fmt.Errorf("insert shift: %w", err)
		}
	}
	return nil
}

// DeleteByPosting removes every shift of a posting, cascading to signups.
func (r *ShiftRepository) DeleteByPosting(ctx context.Context, exec sqlx.ExtContext, postingID string) (int64, error) {
	result, err := r.exec(exec).ExecContext(ctx, `DELETE FROM shifts WHERE posting_id = $1`, postingID)
	if err != nil {
		return 0, fmt.Errorf("delete shifts: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete shifts rows affected: %w", err)
	}
	return affected, nil
}

// ListByPosting returns a posting's shifts ordered by start time.
func (r *ShiftRepository) ListByPosting(ctx context.Context, postingID string) ([]models.Shift, error) {
	const query = `SELECT id, posting_id, start_time, end_time, created_at FROM shifts WHERE posting_id = $1 ORDER BY start_time ASC, end_time ASC`
	shifts := []models.Shift{}
	if err := r.db.SelectContext(ctx, &shifts, query, postingID); err != nil {
		return nil, fmt.Errorf("list shifts: %w", err)
	}
	return shifts, nil
}

// FindOwners returns the owning posting of each shift id that exists.
func (r *ShiftRepository) FindOwners(ctx context.Context, exec sqlx.ExtContext, shiftIDs []string) ([]ShiftOwner, error) {
	owners := []ShiftOwner{}
	if len(shiftIDs) == 0 {
		return owners, nil
	}
	const query = `
SELECT s.id AS shift_id, p.id AS posting_id, p.status AS posting_status, p.auto_closing_date
FROM shifts s JOIN postings p ON p.id = s.posting_id
WHERE s.id = ANY($1)`
	if err := sqlx.SelectContext(ctx, r.exec(exec), &owners, query, pq.Array(shiftIDs)); err != nil {
		return nil, fmt.Errorf("find shift owners: %w", err)
	}
	return owners, nil
}
