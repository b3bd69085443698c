package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/volunteer-scheduler-api/internal/dto"
	"github.com/noah-isme/volunteer-scheduler-api/internal/models"
	"github.com/noah-isme/volunteer-scheduler-api/internal/repository"
	"github.com/noah-isme/volunteer-scheduler-api/internal/scheduling"
	appErrors "github.com/noah-isme/volunteer-scheduler-api/pkg/errors"
)

type signupRepository interface {
	Upsert(ctx context.Context, exec sqlx.ExtContext, signup *models.Signup) error
	DeleteByKey(ctx context.Context, exec sqlx.ExtContext, key models.SignupKey) (bool, error)
	FindByKeys(ctx context.Context, exec sqlx.ExtContext, keys []models.SignupKey) ([]models.Signup, error)
	ListByUser(ctx context.Context, userID string) ([]models.SignupDetail, error)
}

type shiftOwnerFinder interface {
	FindOwners(ctx context.Context, exec sqlx.ExtContext, shiftIDs []string) ([]repository.ShiftOwner, error)
}

// SignupService applies batched signup mutations for volunteers and admins.
type SignupService struct {
	signups   signupRepository
	shifts    shiftOwnerFinder
	tx        txProvider
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	loc       *time.Location
	now       func() time.Time
}

// NewSignupService wires signup dependencies.
func NewSignupService(signups signupRepository, shifts shiftOwnerFinder, tx txProvider, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, loc *time.Location) *SignupService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &SignupService{
		signups:   signups,
		shifts:    shifts,
		tx:        tx,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		loc:       loc,
		now:       time.Now,
	}
}

// Batch applies every upsert and delete of req in one transaction or none of them.
//
// Volunteers act on their own PENDING signups of published postings that are
// still open. Admins act on anyone's signups and may set CONFIRMED directly.
// CANCELED and PUBLISHED signups cannot be changed. An upsert without a status
// keeps the current one. Deleting a signup that does not exist is a no-op.
func (s *SignupService) Batch(ctx context.Context, actor Actor, req dto.SignupBatchRequest) (*dto.SignupBatchResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid signup batch")
	}
	if len(req.Upserts) == 0 && len(req.Deletes) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "batch is empty")
	}
	if actor.Role != models.RoleAdmin && actor.Role != models.RoleVolunteer {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only volunteers and admins manage signups")
	}

	seen := make(map[models.SignupKey]struct{}, len(req.Upserts)+len(req.Deletes))
	keys := make([]models.SignupKey, 0, len(req.Upserts)+len(req.Deletes))
	claim := func(key models.SignupKey) error {
		if _, dup := seen[key]; dup {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("shift %s appears more than once for the same volunteer", key.ShiftID))
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
		return nil
	}

	upserts := make([]models.Signup, 0, len(req.Upserts))
	keepStatus := make([]bool, 0, len(req.Upserts))
	for _, u := range req.Upserts {
		userID, err := s.subject(actor, u.UserID)
		if err != nil {
			return nil, err
		}
		status := u.Status
		keepStatus = append(keepStatus, status == "")
		if status == "" {
			status = models.SignupStatusPending
		}
		if !actor.IsAdmin() && status != models.SignupStatusPending {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "volunteers cannot confirm signups")
		}
		key := models.SignupKey{ShiftID: u.ShiftID, UserID: userID}
		if err := claim(key); err != nil {
			return nil, err
		}
		upserts = append(upserts, models.Signup{
			ShiftID:       u.ShiftID,
			UserID:        userID,
			NumVolunteers: u.NumVolunteers,
			Note:          strings.TrimSpace(u.Note),
			Status:        status,
		})
	}
	deletes := make([]models.SignupKey, 0, len(req.Deletes))
	for _, d := range req.Deletes {
		userID, err := s.subject(actor, d.UserID)
		if err != nil {
			return nil, err
		}
		key := models.SignupKey{ShiftID: d.ShiftID, UserID: userID}
		if err := claim(key); err != nil {
			return nil, err
		}
		deletes = append(deletes, key)
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.checkShifts(ctx, tx, actor, keys); err != nil {
		return nil, err
	}

	var existing []models.Signup
	if existing, err = s.signups.FindByKeys(ctx, tx, keys); err != nil {
		err = appErrors.Internal(err, "failed to load signups")
		return nil, err
	}
	current := make(map[models.SignupKey]models.Signup, len(existing))
	for _, signup := range existing {
		current[models.SignupKey{ShiftID: signup.ShiftID, UserID: signup.UserID}] = signup
	}

	resp := &dto.SignupBatchResponse{Upserted: make([]models.Signup, 0, len(upserts))}
	for i := range upserts {
		next := &upserts[i]
		if prev, ok := current[models.SignupKey{ShiftID: next.ShiftID, UserID: next.UserID}]; ok {
			if keepStatus[i] {
				next.Status = prev.Status
			}
			if err = s.checkChange(actor, prev, &next.Status); err != nil {
				return nil, err
			}
			next.ID = prev.ID
		}
		if err = s.signups.Upsert(ctx, tx, next); err != nil {
			if errors.Is(err, repository.ErrMissingReference) {
				err = appErrors.Clone(appErrors.ErrValidation, "unknown volunteer")
				return nil, err
			}
			err = appErrors.Internal(err, "failed to save signup")
			return nil, err
		}
		resp.Upserted = append(resp.Upserted, *next)
	}
	for _, key := range deletes {
		prev, ok := current[key]
		if !ok {
			continue
		}
		if err = s.checkChange(actor, prev, nil); err != nil {
			return nil, err
		}
		var removed bool
		if removed, err = s.signups.DeleteByKey(ctx, tx, key); err != nil {
			err = appErrors.Internal(err, "failed to delete signup")
			return nil, err
		}
		if removed {
			resp.Deleted++
		}
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Internal(err, "failed to commit signups")
		return nil, err
	}

	s.metrics.RecordSignupBatch(len(resp.Upserted), resp.Deleted)
	s.logger.Debug("signup batch applied",
		zap.String("actor_id", actor.ID),
		zap.Int("upserted", len(resp.Upserted)),
		zap.Int("deleted", resp.Deleted),
	)
	return resp, nil
}

// ListByUser returns a volunteer's signups. Volunteers only see their own.
func (s *SignupService) ListByUser(ctx context.Context, actor Actor, userID string) ([]models.SignupDetail, error) {
	if actor.Role == models.RoleVolunteer && actor.ID != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "volunteers can only list their own signups")
	}
	details, err := s.signups.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list signups")
	}
	return details, nil
}

// subject resolves whose signup an entry refers to.
func (s *SignupService) subject(actor Actor, requested string) (string, error) {
	if actor.IsAdmin() {
		if requested == "" {
			return "", appErrors.Clone(appErrors.ErrValidation, "user_id is required")
		}
		return requested, nil
	}
	if requested != "" && requested != actor.ID {
		return "", appErrors.Clone(appErrors.ErrForbidden, "volunteers can only manage their own signups")
	}
	return actor.ID, nil
}

// checkShifts verifies that every shift exists and that its posting accepts
// changes from actor.
func (s *SignupService) checkShifts(ctx context.Context, exec sqlx.ExtContext, actor Actor, keys []models.SignupKey) error {
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, key.ShiftID)
	}
	ids = unique(ids)

	owners, err := s.shifts.FindOwners(ctx, exec, ids)
	if err != nil {
		return appErrors.Internal(err, "failed to load shifts")
	}
	if len(owners) != len(ids) {
		return appErrors.Clone(appErrors.ErrNotFound, "shift not found")
	}

	now := s.now()
	for _, owner := range owners {
		posting := models.PostingSummary{
			Posting:    models.Posting{ID: owner.PostingID, Status: owner.PostingStatus, AutoClosingDate: owner.AutoClosingDate},
			ShiftCount: 1,
		}
		if actor.IsAdmin() {
			if posting.Status != models.PostingStatusPublished {
				return appErrors.Clone(appErrors.ErrSignupsClosed, "posting is not published")
			}
			continue
		}
		if !scheduling.AcceptsSignups(posting, now, s.loc) {
			return appErrors.Clone(appErrors.ErrSignupsClosed, "posting no longer accepts signups")
		}
	}
	return nil
}

// checkChange validates replacing prev by an upsert to *next, or deleting it when next is nil.
func (s *SignupService) checkChange(actor Actor, prev models.Signup, next *models.SignupStatus) error {
	if scheduling.IsTerminal(prev.Status) {
		return schedulingError(scheduling.ErrSignupFinalized)
	}
	if !actor.IsAdmin() {
		if prev.Status != models.SignupStatusPending {
			return appErrors.Clone(appErrors.ErrForbidden, "confirmed signups can only be changed by an admin")
		}
		return nil
	}
	if next == nil {
		return nil
	}
	if err := scheduling.ValidateReviewTransition(prev.Status, *next); err != nil {
		return schedulingError(err)
	}
	return nil
}
