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

const signupColumns = `s.id, s.shift_id, s.user_id, s.num_volunteers, s.note, s.status, s.created_at, s.updated_at`

// SignupRepository persists signups and serves the review read model.
type SignupRepository struct {
	db *sqlx.DB
}

// NewSignupRepository constructs a SignupRepository.
func NewSignupRepository(db *sqlx.DB) *SignupRepository {
	return &SignupRepository{db: db}
}

func (r *SignupRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Upsert inserts the signup or updates the existing one for the same (shift, user).
// The stored row is scanned back into signup.
func (r *SignupRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, signup *models.Signup) error {
	if signup.ID == "" {
		signup.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	signup.CreatedAt, signup.UpdatedAt = now, now

	const query = `
INSERT INTO signups (id, shift_id, user_id, num_volunteers, note, status, created_at, updated_at)
VALUES (:id, :shift_id, :user_id, :num_volunteers, :note, :status, :created_at, :updated_at)
ON CONFLICT (shift_id, user_id) DO UPDATE
SET num_volunteers = EXCLUDED.num_volunteers,
    note = EXCLUDED.note,
    status = EXCLUDED.status,
    updated_at = EXCLUDED.updated_at
RETURNING id, created_at, status`

	rows, err := sqlx.NamedQueryContext(ctx, r.exec(exec), query, signup)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrMissingReference
		}
		return fmt.Errorf("upsert signup: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&signup.ID, &signup.CreatedAt, &signup.Status); err != nil {
			return fmt.Errorf("scan upserted signup: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("upsert signup rows: %w", err)
	}
	return nil
}

// DeleteByKey removes the signup of userID on shiftID and reports whether one existed.
func (r *SignupRepository) DeleteByKey(ctx context.Context, exec sqlx.ExtContext, key models.SignupKey) (bool, error) {
	result, err := r.exec(exec).ExecContext(ctx, `DELETE FROM signups WHERE shift_id = $1 AND user_id = $2`, key.ShiftID, key.UserID)
	if err != nil {
		return false, fmt.Errorf("delete signup: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete signup rows affected: %w", err)
	}
	return affected > 0, nil
}

// FindByKeys loads the signups matching keys and locks them for the transaction.
func (r *SignupRepository) FindByKeys(ctx context.Context, exec sqlx.ExtContext, keys []models.SignupKey) ([]models.Signup, error) {
	signups := []models.Signup{}
	if len(keys) == 0 {
		return signups, nil
	}
	shiftIDs := make([]string, len(keys))
	userIDs := make([]string, len(keys))
	for i, key := range keys {
		shiftIDs[i], userIDs[i] = key.ShiftID, key.UserID
	}
	query := `SELECT ` + signupColumns + `
FROM signups s JOIN UNNEST($1::uuid[], $2::uuid[]) AS k(shift_id, user_id)
  ON s.shift_id = k.shift_id AND s.user_id = k.user_id
FOR UPDATE OF s`
	if err := sqlx.SelectContext(ctx, r.exec(exec), &signups, query, pq.Array(shiftIDs), pq.Array(userIDs)); err != nil {
		return nil, fmt.Errorf("find signups by key: %w", err)
	}
	return signups, nil
}

// ListByPosting returns every signup on the posting's shifts, locked for update.
func (r *SignupRepository) ListByPosting(ctx context.Context, exec sqlx.ExtContext, postingID string) ([]models.Signup, error) {
	query := `SELECT ` + signupColumns + `
FROM signups s JOIN shifts sh ON sh.id = s.shift_id
WHERE sh.posting_id = $1
ORDER BY sh.start_time ASC, s.created_at ASC
FOR UPDATE OF s`
	signups := []models.Signup{}
	if err := sqlx.SelectContext(ctx, r.exec(exec), &signups, query, postingID); err != nil {
		return nil, fmt.Errorf("list posting signups: %w", err)
	}
	return signups, nil
}

// ApplyStatuses writes the status of every given signup in one statement.
func (r *SignupRepository) ApplyStatuses(ctx context.Context, exec sqlx.ExtContext, signups []models.Signup) (int64, error) {
	if len(signups) == 0 {
		return 0, nil
	}
	ids := make([]string, len(signups))
	statuses := make([]string, len(signups))
	for i, s := range signups {
		ids[i], statuses[i] = s.ID, string(s.Status)
	}
	const query = `
UPDATE signups AS s SET status = v.status, updated_at = $3
FROM UNNEST($1::uuid[], $2::text[]) AS v(id, status)
WHERE s.id = v.id`
	result, err := r.exec(exec).ExecContext(ctx, query, pq.Array(ids), pq.Array(statuses), time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("apply signup statuses: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("apply signup statuses rows affected: %w", err)
	}
	return affected, nil
}

// ListReviewRows returns one row per (shift, signup) of a posting, plus one
// row per shift without signups.
func (r *SignupRepository) ListReviewRows(ctx context.Context, postingID string) ([]models.ReviewRow, error) {
	const query = `
SELECT sh.id AS shift_id, sh.start_time AS shift_start, sh.end_time AS shift_end,
       s.id AS signup_id, s.user_id, s.num_volunteers, s.note, s.status,
       u.first_name, u.last_name, u.email, u.phone_number
FROM shifts sh
LEFT JOIN signups s ON s.shift_id = sh.id
LEFT JOIN users u ON u.id = s.user_id
WHERE sh.posting_id = $1
ORDER BY sh.start_time ASC, sh.end_time ASC`
	rows := []models.ReviewRow{}
	if err := r.db.SelectContext(ctx, &rows, query, postingID); err != nil {
		return nil, fmt.Errorf("list review rows: %w", err)
	}
	return rows, nil
}

// ListByUser returns a volunteer's signups with shift and posting details.
func (r *SignupRepository) ListByUser(ctx context.Context, userID string) ([]models.SignupDetail, error) {
	query := `SELECT ` + signupColumns + `, p.id AS posting_id, p.title AS posting_title,
       sh.start_time AS shift_start, sh.end_time AS shift_end
FROM signups s
JOIN shifts sh ON sh.id = s.shift_id
JOIN postings p ON p.id = sh.posting_id
WHERE s.user_id = $1
ORDER BY sh.start_time ASC`
	details := []models.SignupDetail{}
	if err := r.db.SelectContext(ctx, &details, query, userID); err != nil {
		return nil, fmt.Errorf("list user signups: %w", err)
	}
	return details, nil
}
