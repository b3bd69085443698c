package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/volunteer-scheduler-api/internal/models"
	"github.com/noah-isme/volunteer-scheduler-api/internal/scheduling"
	appErrors "github.com/noah-isme/volunteer-scheduler-api/pkg/errors"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Actor identifies the authenticated caller of a use case.
type Actor struct {
	ID        string
	Role      models.UserRole
	IP        string
	UserAgent string
}

// IsAdmin reports whether the actor holds the ADMIN role.
func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

func (a Actor) auditLog(action, resource, resourceID string, oldValues, newValues interface{}) *models.AuditLog {
	entry := &models.AuditLog{
		Action:    action,
		Resource:  resource,
		IPAddress: a.IP,
		UserAgent: a.UserAgent,
	}
	if a.ID != "" {
		id := a.ID
		entry.UserID = &id
	}
	if resourceID != "" {
		entry.ResourceID = &resourceID
	}
	if oldValues != nil {
		entry.OldValues, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		entry.NewValues, _ = json.Marshal(newValues)
	}
	return entry
}

// schedulingError maps domain rule violations onto API errors.
func schedulingError(err error) *appErrors.Error {
	switch {
	case errors.Is(err, scheduling.ErrSignupFinalized):
		return appErrors.Wrap(err, appErrors.ErrFinalized.Code, appErrors.ErrFinalized.Status, err.Error())
	case errors.Is(err, scheduling.ErrNoConfirmedSignups):
		return appErrors.Wrap(err, appErrors.ErrPreconditionFailed.Code, appErrors.ErrPreconditionFailed.Status, err.Error())
	case errors.Is(err, scheduling.ErrInvalidTransition), errors.Is(err, scheduling.ErrPostingPublished):
		return appErrors.Wrap(err, appErrors.ErrInvalidTransition.Code, appErrors.ErrInvalidTransition.Status, err.Error())
	}
	return appErrors.Validation(err, err.Error())
}

func notFoundOrInternal(err error, what string) *appErrors.Error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, what+" not found")
	}
	return appErrors.Internal(err, "failed to load "+what)
}

func paginationOf(page, pageSize, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}
}

// normalizeEmail trims and lowercases an address. Run it before validating so
// pasted addresses with stray whitespace are accepted.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
