package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/volunteer-scheduler-api/internal/dto"
	"github.com/noah-isme/volunteer-scheduler-api/internal/models"
	"github.com/noah-isme/volunteer-scheduler-api/internal/scheduling"
	appErrors "github.com/noah-isme/volunteer-scheduler-api/pkg/errors"
)

type reviewPostingReader interface {
	FindByID(ctx context.Context, id string) (*models.PostingSummary, error)
	FindForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.PostingSummary, error)
}

type reviewSignupRepository interface {
	ListByPosting(ctx context.Context, exec sqlx.ExtContext, postingID string) ([]models.Signup, error)
	ApplyStatuses(ctx context.Context, exec sqlx.ExtContext, signups []models.Signup) (int64, error)
	ListReviewRows(ctx context.Context, postingID string) ([]models.ReviewRow, error)
}

// ReviewService serves the schedule review table and its admin actions.
type ReviewService struct {
	postings  reviewPostingReader
	signups   reviewSignupRepository
	audit     auditRecorder
	tx        txProvider
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	loc       *time.Location
	now       func() time.Time
}

// NewReviewService wires review dependencies.
func NewReviewService(postings reviewPostingReader, signups reviewSignupRepository, audit auditRecorder, tx txProvider, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, loc *time.Location) *ReviewService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &ReviewService{
		postings:  postings,
		signups:   signups,
		audit:     audit,
		tx:        tx,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		loc:       loc,
		now:       time.Now,
	}
}

// Get builds the review table of a posting for actor. Admins get the editable
// view until the posting closes; everyone else sees confirmed and published
// signups only. Volunteers do not see other volunteers' contact details.
func (s *ReviewService) Get(ctx context.Context, actor Actor, postingID string) (*dto.ReviewResponse, error) {
	posting, err := s.postings.FindByID(ctx, postingID)
	if err != nil {
		return nil, notFoundOrInternal(err, "posting")
	}
	if actor.Role == models.RoleVolunteer && posting.Status != models.PostingStatusPublished {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "posting not found")
	}

	display := scheduling.DisplayStatusOf(*posting, s.now(), s.loc)
	mode := scheduling.ReviewModeFor(actor.Role, display)

	rows, err := s.signups.ListReviewRows(ctx, postingID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load review")
	}
	review := scheduling.BuildReview(rows, mode, s.loc)
	if actor.Role == models.RoleVolunteer {
		hideContacts(&review, actor.ID)
	}

	return &dto.ReviewResponse{
		PostingID:     posting.ID,
		Title:         posting.Title,
		NumVolunteers: posting.NumVolunteers,
		DisplayStatus: display,
		Review:        review,
	}, nil
}

// Confirm moves the selected signups, or every open signup when SelectAll is
// set, to CONFIRMED (or back to PENDING when Confirmed is false).
func (s *ReviewService) Confirm(ctx context.Context, actor Actor, postingID string, req dto.ReviewConfirmRequest) (*dto.ReviewConfirmResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid confirm payload")
	}
	if !req.SelectAll && len(req.SignupIDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "signup_ids or select_all is required")
	}
	target := models.SignupStatusPending
	if req.Confirmed {
		target = models.SignupStatusConfirmed
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

	posting, err := s.lockPublished(ctx, tx, postingID)
	if err != nil {
		return nil, err
	}
	display := scheduling.DisplayStatusOf(*posting, s.now(), s.loc)
	if scheduling.ReviewModeFor(actor.Role, display) != scheduling.ReviewEditable {
		err = appErrors.Clone(appErrors.ErrSignupsClosed, "review is read-only")
		return nil, err
	}

	var signups []models.Signup
	if signups, err = s.signups.ListByPosting(ctx, tx, postingID); err != nil {
		err = appErrors.Internal(err, "failed to load signups")
		return nil, err
	}

	var changed []models.Signup
	if changed, err = planConfirm(signups, req, target); err != nil {
		return nil, err
	}

	var updated int64
	if updated, err = s.signups.ApplyStatuses(ctx, tx, changed); err != nil {
		err = appErrors.Internal(err, "failed to update signups")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Internal(err, "failed to commit review")
		return nil, err
	}

	s.metrics.RecordSignupReview(string(target), int(updated))
	ids := make([]string, len(changed))
	for i, signup := range changed {
		ids[i] = signup.ID
	}
	s.record(ctx, actor.auditLog(models.AuditActionSignupReview, "postings", postingID, nil, map[string]interface{}{
		"status": target, "signup_ids": ids, "select_all": req.SelectAll,
	}))
	return &dto.ReviewConfirmResponse{Updated: int(updated)}, nil
}

// Publish finalises the schedule: CONFIRMED signups become PUBLISHED and
// PENDING ones CANCELED in one statement. It fails when nothing is confirmed.
func (s *ReviewService) Publish(ctx context.Context, actor Actor, postingID string) (*dto.PublishScheduleResponse, error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = s.lockPublished(ctx, tx, postingID); err != nil {
		return nil, err
	}

	var signups []models.Signup
	if signups, err = s.signups.ListByPosting(ctx, tx, postingID); err != nil {
		err = appErrors.Internal(err, "failed to load signups")
		return nil, err
	}

	var changed []models.Signup
	changed, err = scheduling.PlanPublish(signups)
	if err != nil {
		err = schedulingError(err)
		return nil, err
	}

	var updated int64
	if updated, err = s.signups.ApplyStatuses(ctx, tx, changed); err != nil {
		err = appErrors.Internal(err, "failed to publish schedule")
		return nil, err
	}
	if updated != int64(len(changed)) {
		err = appErrors.Clone(appErrors.ErrConflict, "signups changed while publishing, retry")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Internal(err, "failed to commit schedule")
		return nil, err
	}

	resp := &dto.PublishScheduleResponse{}
	for _, signup := range changed {
		switch signup.Status {
		case models.SignupStatusPublished:
			resp.Published++
		case models.SignupStatusCanceled:
			resp.Canceled++
		}
	}

	s.metrics.RecordSchedulePublished(resp.Published, resp.Canceled)
	s.logger.Info("schedule published",
		zap.String("posting_id", postingID),
		zap.Int("published", resp.Published),
		zap.Int("canceled", resp.Canceled),
	)
	s.record(ctx, actor.auditLog(models.AuditActionSchedulePublish, "postings", postingID, nil, resp))
	return resp, nil
}

func (s *ReviewService) lockPublished(ctx context.Context, exec sqlx.ExtContext, postingID string) (*models.PostingSummary, error) {
	posting, err := s.postings.FindForUpdate(ctx, exec, postingID)
	if err != nil {
		return nil, notFoundOrInternal(err, "posting")
	}
	if posting.Status != models.PostingStatusPublished {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "posting is not published")
	}
	return posting, nil
}

func (s *ReviewService) record(ctx context.Context, entry *models.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record review audit log", zap.String("action", entry.Action), zap.Error(err))
	}
}

// planConfirm returns the signups whose status moves to target.
func planConfirm(signups []models.Signup, req dto.ReviewConfirmRequest, target models.SignupStatus) ([]models.Signup, error) {
	changed := make([]models.Signup, 0)
	if req.SelectAll {
		for _, signup := range signups {
			if scheduling.IsTerminal(signup.Status) || signup.Status == target {
				continue
			}
			signup.Status = target
			changed = append(changed, signup)
		}
		return changed, nil
	}

	byID := make(map[string]models.Signup, len(signups))
	for _, signup := range signups {
		byID[signup.ID] = signup
	}
	for _, id := range unique(req.SignupIDs) {
		signup, ok := byID[id]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "signup "+id+" not found on posting")
		}
		if err := scheduling.ValidateReviewTransition(signup.Status, target); err != nil {
			return nil, schedulingError(err)
		}
		if signup.Status == target {
			continue
		}
		signup.Status = target
		changed = append(changed, signup)
	}
	return changed, nil
}

func hideContacts(review *scheduling.Review, viewerID string) {
	for d := range review.Days {
		for sh := range review.Days[d].Shifts {
			signups := review.Days[d].Shifts[sh].Signups
			for i := range signups {
				if signups[i].UserID == viewerID {
					continue
				}
				signups[i].Email = ""
				signups[i].PhoneNumber = ""
				signups[i].Note = ""
			}
		}
	}
}
