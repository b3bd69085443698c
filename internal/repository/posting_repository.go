package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/volunteer-scheduler-api/internal/models"
)

const postingSummaryColumns = `p.id, p.branch_id, p.title, p.description, p.start_date, p.end_date, p.auto_closing_date,
p.num_volunteers, p.recurrence_interval, p.status, p.times, p.created_by, p.created_at, p.updated_at,
(SELECT COUNT(*) FROM shifts s WHERE s.posting_id = p.id) AS shift_count`

// PostingRepository persists postings and their skill and contact relations.
type PostingRepository struct {
	db *sqlx.DB
}

// NewPostingRepository constructs a PostingRepository.
func NewPostingRepository(db *sqlx.DB) *PostingRepository {
	return &PostingRepository{db: db}
}

func (r *PostingRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a posting row.
func (r *PostingRepository) Create(ctx context.Context, exec sqlx.ExtContext, posting *models.Posting) error {
	if posting.ID == "" {
		posting.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	posting.CreatedAt, posting.UpdatedAt = now, now

	const query = `
INSERT INTO postings (id, branch_id, title, description, start_date, end_date, auto_closing_date, num_volunteers, recurrence_interval, status, times, created_by, created_at, updated_at)
VALUES (:id, :branch_id, :title, :description, :start_date, :end_date, :auto_closing_date, :num_volunteers, :recurrence_interval, :status, :times, :created_by, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, posting); err != nil {
		return fmt.Errorf("insert posting: %w", err)
	}
	return nil
}

// Update rewrites the editable columns and the status of a posting.
func (r *PostingRepository) Update(ctx context.Context, exec sqlx.ExtContext, posting *models.Posting) error {
	posting.UpdatedAt = time.Now().UTC()
	const query = `
UPDATE postings SET branch_id = :branch_id, title = :title, description = :description, start_date = :start_date,
end_date = :end_date, auto_closing_date = :auto_closing_date, num_volunteers = :num_volunteers,
recurrence_interval = :recurrence_interval, status = :status, times = :times, updated_at = :updated_at
WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, posting)
	if err != nil {
		return fmt.Errorf("update posting: %w", err)
	}
	return requireAffected(result, "update posting")
}

// FindByID loads a posting with its shift count.
func (r *PostingRepository) FindByID(ctx context.Context, id string) (*models.PostingSummary, error) {
	return r.find(ctx, r.db, id, false)
}

// FindForUpdate loads a posting inside a transaction and locks its row.
func (r *PostingRepository) FindForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.PostingSummary, error) {
	return r.find(ctx, r.exec(exec), id, true)
}

func (r *PostingRepository) find(ctx context.Context, exec sqlx.ExtContext, id string, lock bool) (*models.PostingSummary, error) {
	query := `SELECT ` + postingSummaryColumns + ` FROM postings p WHERE p.id = $1`
	if lock {
		query += ` FOR UPDATE OF p`
	}
	var posting models.PostingSummary
	if err := sqlx.GetContext(ctx, exec, &posting, query, id); err != nil {
		return nil, err
	}
	return &posting, nil
}

// List returns a page of postings matching filter, newest start date first.
func (r *PostingRepository) List(ctx context.Context, filter models.PostingFilter) ([]models.PostingSummary, int, error) {
	where, args := postingConditions(filter)
	page, pageSize := normalizePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT %s FROM postings p%s ORDER BY p.start_date DESC, p.created_at DESC LIMIT %d OFFSET %d`,
		postingSummaryColumns, where, pageSize, (page-1)*pageSize)
	postings := []models.PostingSummary{}
	if err := r.db.SelectContext(ctx, &postings, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list postings: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM postings p`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count postings: %w", err)
	}
	return postings, total, nil
}

// ListAll returns every posting matching filter without paging.
func (r *PostingRepository) ListAll(ctx context.Context, filter models.PostingFilter) ([]models.PostingSummary, error) {
	where, args := postingConditions(filter)
	query := fmt.Sprintf(`SELECT %s FROM postings p%s ORDER BY p.start_date DESC, p.created_at DESC`, postingSummaryColumns, where)
	postings := []models.PostingSummary{}
	if err := r.db.SelectContext(ctx, &postings, query, args...); err != nil {
		return nil, fmt.Errorf("list all postings: %w", err)
	}
	return postings, nil
}

func postingConditions(filter models.PostingFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	if filter.BranchID != "" {
		args = append(args, filter.BranchID)
		conditions = append(conditions, fmt.Sprintf("p.branch_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("p.status = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("LOWER(p.title) LIKE $%d", len(args)))
	}
	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// Delete removes a posting; shifts and signups cascade.
func (r *PostingRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	result, err := r.exec(exec).ExecContext(ctx, `DELETE FROM postings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete posting: %w", err)
	}
	return requireAffected(result, "delete posting")
}

// ReplaceSkills swaps the posting's skill set for skillIDs.
func (r *PostingRepository) ReplaceSkills(ctx context.Context, exec sqlx.ExtContext, postingID string, skillIDs []string) error {
	return r.replaceRelation(ctx, exec, "posting_skills", "skill_id", postingID, skillIDs)
}

// ReplaceEmployees swaps the posting's points of contact for userIDs.
func (r *PostingRepository) ReplaceEmployees(ctx context.Context, exec sqlx.ExtContext, postingID string, userIDs []string) error {
	return r.replaceRelation(ctx, exec, "posting_employees", "user_id", postingID, userIDs)
}

func (r *PostingRepository) replaceRelation(ctx context.Context, exec sqlx.ExtContext, table, column, postingID string, ids []string) error {
	target := r.exec(exec)
	if _, err := target.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE posting_id = $1`, table), postingID); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`INSERT INTO %s (posting_id, %s) SELECT $1, UNNEST($2::uuid[]) ON CONFLICT DO NOTHING`, table, column)
	if _, err := target.ExecContext(ctx, query, postingID, pq.Array(ids)); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

// Relations returns the skill ids and contact user ids of a posting.
func (r *PostingRepository) Relations(ctx context.Context, postingID string) (skillIDs, employeeIDs []string, err error) {
	skillIDs = []string{}
	if err = r.db.SelectContext(ctx, &skillIDs, `SELECT skill_id FROM posting_skills WHERE posting_id = $1 ORDER BY skill_id`, postingID); err != nil {
		return nil, nil, fmt.Errorf("list posting skills: %w", err)
	}
	employeeIDs = []string{}
	if err = r.db.SelectContext(ctx, &employeeIDs, `SELECT user_id FROM posting_employees WHERE posting_id = $1 ORDER BY user_id`, postingID); err != nil {
		return nil, nil, fmt.Errorf("list posting employees: %w", err)
	}
	return skillIDs, employeeIDs, nil
}
