package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/volunteer-scheduler-api/internal/models"
)

const inviteColumns = `id, email, role, token, invited_by, expires_at, used_at, created_at`

// InviteRepository persists user invites.
type InviteRepository struct {
	db *sqlx.DB
}

// NewInviteRepository constructs an InviteRepository.
func NewInviteRepository(db *sqlx.DB) *InviteRepository {
	return &InviteRepository{db: db}
}

func (r *InviteRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create stores a new invite.
func (r *InviteRepository) Create(ctx context.Context, invite *models.UserInvite) error {
	if invite.ID == "" {
		invite.ID = uuid.NewString()
	}
	if invite.CreatedAt.IsZero() {
		invite.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO user_invites (` + inviteColumns + `) VALUES (:id, :email, :role, :token, :invited_by, :expires_at, :used_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, invite); err != nil {
		return fmt.Errorf("create invite: %w", err)
	}
	return nil
}

// FindByID loads an invite, locking it when exec is a transaction.
func (r *InviteRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.UserInvite, error) {
	query := `SELECT ` + inviteColumns + ` FROM user_invites WHERE id = $1`
	if exec != nil {
		query += ` FOR UPDATE`
	}
	var invite models.UserInvite
	if err := sqlx.GetContext(ctx, r.exec(exec), &invite, query, id); err != nil {
		return nil, err
	}
	return &invite, nil
}

// List returns invites newest first; used ones only when includeUsed is set.
func (r *InviteRepository) List(ctx context.Context, includeUsed bool) ([]models.UserInvite, error) {
	query := `SELECT ` + inviteColumns + ` FROM user_invites`
	if !includeUsed {
		query += ` WHERE used_at IS NULL`
	}
	query += ` ORDER BY created_at DESC`
	invites := []models.UserInvite{}
	if err := r.db.SelectContext(ctx, &invites, query); err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	return invites, nil
}

// MarkUsed stamps an unused invite as redeemed.
func (r *InviteRepository) MarkUsed(ctx context.Context, exec sqlx.ExtContext, id string, usedAt time.Time) error {
	result, err := r.exec(exec).ExecContext(ctx, `UPDATE user_invites SET used_at = $2 WHERE id = $1 AND used_at IS NULL`, id, usedAt)
	if err != nil {
		return fmt.Errorf("mark invite used: %w", err)
	}
	return requireAffected(result, "mark invite used")
}

// Delete revokes an invite.
func (r *InviteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM user_invites WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete invite: %w", err)
	}
	return requireAffected(result, "delete invite")
}
