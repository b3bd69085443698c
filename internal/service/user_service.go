package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/volunteer-scheduler-api/internal/dto"
	"github.com/noah-isme/volunteer-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/volunteer-scheduler-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Update(ctx context.Context, exec sqlx.ExtContext, user *models.User) error
	Delete(ctx context.Context, id string) error
	ReplaceMemberships(ctx context.Context, exec sqlx.ExtContext, userID string, kind models.CatalogKind, ids []string) error
	ListMemberships(ctx context.Context, userID string, kind models.CatalogKind) ([]models.CatalogItem, error)
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type catalogCounter interface {
	CountExisting(ctx context.Context, kind models.CatalogKind, ids []string) (int, error)
}

var membershipKinds = []models.CatalogKind{models.CatalogBranches, models.CatalogSkills, models.CatalogLanguages}

// UserService handles user management workflows.
type UserService struct {
	repo      userRepository
	catalog   catalogCounter
	tx        txProvider
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, catalog catalogCounter, tx txProvider, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, catalog: catalog, tx: tx, validator: validate, logger: logger}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, query dto.UserListQuery) ([]models.User, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user query")
	}

	filter := models.UserFilter{
		Active:    query.Active,
		BranchID:  query.BranchID,
		Search:    strings.TrimSpace(query.Search),
		Page:      query.Page,
		PageSize:  query.PageSize,
		SortBy:    query.SortBy,
		SortOrder: query.SortOrder,
	}
	if query.Role != "" {
		role := models.UserRole(query.Role)
		filter.Role = &role
	}

	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	if users == nil {
		users = []models.User{}
	}
	return users, paginationOf(filter.Page, filter.PageSize, total), nil
}

// Get returns a user with their memberships. Non-admins may only read themselves.
func (s *UserService) Get(ctx context.Context, actor Actor, id string) (*models.UserProfile, error) {
	if !actor.IsAdmin() && actor.ID != id {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot view other users")
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return s.profile(ctx, user)
}

// Update edits a profile and replaces its memberships in one transaction.
// Nil membership slices are left untouched. Only admins may change role or
// active state.
func (s *UserService) Update(ctx context.Context, actor Actor, id string, req dto.UpdateUserRequest) (profile *models.UserProfile, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}
	if !actor.IsAdmin() {
		if actor.ID != id {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot edit other users")
		}
		if req.Role != nil || req.Active != nil {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can change role or active state")
		}
	}

	memberships := map[models.CatalogKind][]string{
		models.CatalogBranches:  req.BranchIDs,
		models.CatalogSkills:    req.SkillIDs,
		models.CatalogLanguages: req.LanguageIDs,
	}
	for _, kind := range membershipKinds {
		ids := memberships[kind]
		if ids == nil {
			continue
		}
		ids = unique(ids)
		memberships[kind] = ids
		if err := s.checkCatalog(ctx, kind, ids); err != nil {
			return nil, err
		}
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"role": user.Role, "active": user.Active})

	user.FirstName = strings.TrimSpace(req.FirstName)
	user.LastName = strings.TrimSpace(req.LastName)
	user.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	if req.Role != nil {
		user.Role = *req.Role
	}
	if req.Active != nil {
		user.Active = *req.Active
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.repo.Update(ctx, tx, user); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
		return nil, err
	}
	for _, kind := range membershipKinds {
		ids := memberships[kind]
		if ids == nil {
			continue
		}
		if err = s.repo.ReplaceMemberships(ctx, tx, user.ID, kind, ids); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update "+string(kind))
			return nil, err
		}
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit user update")
		return nil, err
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"role": user.Role, "active": user.Active})
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.ID,
		Action:     models.AuditActionUserUpdate,
		Resource:   "users",
		ResourceID: &user.ID,
		OldValues:  oldPayload,
		NewValues:  newPayload,
		IPAddress:  actor.IP,
		UserAgent:  actor.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record user update audit log", zap.Error(err))
	}

	return s.profile(ctx, user)
}

// Delete performs a soft delete (inactive) on a user and ends their sessions.
func (s *UserService) Delete(ctx context.Context, actor Actor, id string) error {
	if actor.ID == id {
		return appErrors.Clone(appErrors.ErrValidation, "cannot deactivate your own account")
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}
	if err := s.repo.RevokeUserRefreshTokens(ctx, id); err != nil {
		s.logger.Warn("failed to revoke refresh tokens of deleted user", zap.String("user_id", id), zap.Error(err))
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"active": user.Active})
	newPayload, _ := json.Marshal(map[string]interface{}{"active": false})

	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.ID,
		Action:     models.AuditActionUserDelete,
		Resource:   "users",
		ResourceID: &user.ID,
		OldValues:  oldPayload,
		NewValues:  newPayload,
		IPAddress:  actor.IP,
		UserAgent:  actor.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record user delete audit log", zap.Error(err))
	}

	return nil
}

func (s *UserService) checkCatalog(ctx context.Context, kind models.CatalogKind, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := s.catalog.CountExisting(ctx, kind, ids)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check "+string(kind))
	}
	if found != len(ids) {
		return appErrors.Clone(appErrors.ErrValidation, "unknown "+string(kind))
	}
	return nil
}

func (s *UserService) profile(ctx context.Context, user *models.User) (*models.UserProfile, error) {
	profile := &models.UserProfile{User: *user}
	targets := map[models.CatalogKind]*[]models.CatalogItem{
		models.CatalogBranches:  &profile.Branches,
		models.CatalogSkills:    &profile.Skills,
		models.CatalogLanguages: &profile.Languages,
	}
	for _, kind := range membershipKinds {
		items, err := s.repo.ListMemberships(ctx, user.ID, kind)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load "+string(kind))
		}
		*targets[kind] = items
	}
	return profile, nil
}
