package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/noah-isme/volunteer-scheduler-api/internal/dto"
	"github.com/noah-isme/volunteer-scheduler-api/internal/models"
	"github.com/noah-isme/volunteer-scheduler-api/internal/scheduling"
	appErrors "github.com/noah-isme/volunteer-scheduler-api/pkg/errors"
)

const postingCachePattern = "postings:*"

type postingRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, posting *models.Posting) error
	Update(ctx context.Context, exec sqlx.ExtContext, posting *models.Posting) error
	FindByID(ctx context.Context, id string) (*models.PostingSummary, error)
	FindForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.PostingSummary, error)
	List(ctx context.Context, filter models.PostingFilter) ([]models.PostingSummary, int, error)
	ListAll(ctx context.Context, filter models.PostingFilter) ([]models.PostingSummary, error)
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
	ReplaceSkills(ctx context.Context, exec sqlx.ExtContext, postingID string, skillIDs []string) error
	ReplaceEmployees(ctx context.Context, exec sqlx.ExtContext, postingID string, userIDs []string) error
	Relations(ctx context.Context, postingID string) ([]string, []string, error)
}

type shiftRepository interface {
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, shifts []models.Shift) error
	DeleteByPosting(ctx context.Context, exec sqlx.ExtContext, postingID string) (int64, error)
	ListByPosting(ctx context.Context, postingID string) ([]models.Shift, error)
}

type catalogReader interface {
	FindByID(ctx context.Context, kind models.CatalogKind, id string) (*models.CatalogItem, error)
	CountExisting(ctx context.Context, kind models.CatalogKind, ids []string) (int, error)
}

type staffCounter interface {
	CountActiveByRoles(ctx context.Context, ids []string, roles []models.UserRole) (int, error)
}

type postingCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

// PostingConfig tunes the posting service.
type PostingConfig struct {
	Location *time.Location
	CacheTTL time.Duration
}

// PostingService implements the posting lifecycle: create, edit, publish and list.
type PostingService struct {
	postings  postingRepository
	shifts    shiftRepository
	catalog   catalogReader
	staff     staffCounter
	audit     auditRecorder
	cache     postingCache
	metrics   *MetricsService
	tx        txProvider
	validator *validator.Validate
	logger    *zap.Logger
	cfg       PostingConfig
	policy    *bluemonday.Policy
	strict    *bluemonday.Policy
	now       func() time.Time
}

// NewPostingService wires posting dependencies.
func NewPostingService(
	postings postingRepository,
	shifts shiftRepository,
	catalog catalogReader,
	staff staffCounter,
	audit auditRecorder,
	cache postingCache,
	metrics *MetricsService,
	tx txProvider,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg PostingConfig,
) *PostingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &PostingService{
		postings:  postings,
		shifts:    shifts,
		catalog:   catalog,
		staff:     staff,
		audit:     audit,
		cache:     cache,
		metrics:   metrics,
		tx:        tx,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		policy:    bluemonday.UGCPolicy(),
		strict:    bluemonday.StrictPolicy(),
		now:       time.Now,
	}
}

// Create stores a posting with the requested status and returns its id.
// Published postings get their shifts generated in the same transaction.
func (s *PostingService) Create(ctx context.Context, actor Actor, req dto.CreatePostingRequest) (*dto.CreatePostingResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid posting payload")
	}
	if err := scheduling.ValidatePostingTransition("", req.Status); err != nil {
		return nil, schedulingError(err)
	}
	posting, err := s.buildPosting(ctx, req.PostingRequest)
	if err != nil {
		return nil, err
	}
	posting.Status = req.Status
	if actor.ID != "" {
		createdBy := actor.ID
		posting.CreatedBy = &createdBy
	}

	shifts, err := s.expand(posting)
	if err != nil {
		return nil, err
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

	if err = s.postings.Create(ctx, tx, posting); err != nil {
		err = appErrors.Internal(err, "failed to create posting")
		return nil, err
	}
	if err = s.writeRelations(ctx, tx, posting.ID, req.PostingRequest); err != nil {
		return nil, err
	}
	if err = s.writeShifts(ctx, tx, posting.ID, shifts); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Internal(err, "failed to commit posting")
		return nil, err
	}

	if posting.Status == models.PostingStatusPublished {
		s.logger.Info("posting published", zap.String("posting_id", posting.ID), zap.Int("shifts", len(shifts)))
		s.metrics.RecordPostingPublished()
	}
	s.record(ctx, actor.auditLog(models.AuditActionPostingCreate, "postings", posting.ID, nil, map[string]interface{}{
		"status": posting.Status, "shifts": len(shifts),
	}))
	s.invalidate(ctx)
	return &dto.CreatePostingResponse{ID: posting.ID}, nil
}

// Update edits a posting in place. Editing the schedule of a published
// posting regenerates its shifts, which drops their signups.
func (s *PostingService) Update(ctx context.Context, actor Actor, id string, req dto.PostingRequest) (*dto.PostingResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid posting payload")
	}
	next, err := s.buildPosting(ctx, req)
	if err != nil {
		return nil, err
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

	current, err := s.postings.FindForUpdate(ctx, tx, id)
	if err != nil {
		err = notFoundOrInternal(err, "posting")
		return nil, err
	}

	next.ID = current.ID
	next.Status = current.Status
	next.CreatedBy = current.CreatedBy
	next.CreatedAt = current.CreatedAt

	if err = s.postings.Update(ctx, tx, next); err != nil {
		err = appErrors.Internal(err, "failed to update posting")
		return nil, err
	}
	if err = s.writeRelations(ctx, tx, next.ID, req); err != nil {
		return nil, err
	}

	shiftCount := current.ShiftCount
	regenerated := false
	if next.Status == models.PostingStatusPublished && scheduleChanged(current.Posting, *next) {
		var shifts []models.Shift
		if shifts, err = s.expand(next); err != nil {
			return nil, err
		}
		if _, err = s.shifts.DeleteByPosting(ctx, tx, next.ID); err != nil {
			err = appErrors.Internal(err, "failed to clear shifts")
			return nil, err
		}
		if err = s.writeShifts(ctx, tx, next.ID, shifts); err != nil {
			return nil, err
		}
		shiftCount = len(shifts)
		regenerated = true
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Internal(err, "failed to commit posting")
		return nil, err
	}

	s.record(ctx, actor.auditLog(models.AuditActionPostingUpdate, "postings", next.ID,
		map[string]interface{}{"title": current.Title, "start_date": current.StartDate, "end_date": current.EndDate},
		map[string]interface{}{"title": next.Title, "start_date": next.StartDate, "end_date": next.EndDate, "shifts_regenerated": regenerated},
	))
	s.invalidate(ctx)

	summary := models.PostingSummary{Posting: *next, ShiftCount: shiftCount}
	resp := s.toResponse(summary)
	resp.SkillIDs, resp.EmployeeIDs = nonNil(req.SkillIDs), nonNil(req.EmployeeIDs)
	return &resp, nil
}

// Publish promotes a draft and generates its shifts. Publishing an already
// published posting is a no-op.
func (s *PostingService) Publish(ctx context.Context, actor Actor, id string) (*dto.PostingResponse, error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	current, err := s.postings.FindForUpdate(ctx, tx, id)
	if err != nil {
		err = notFoundOrInternal(err, "posting")
		return nil, err
	}
	if err = scheduling.ValidatePostingTransition(current.Status, models.PostingStatusPublished); err != nil {
		err = schedulingError(err)
		return nil, err
	}
	if current.Status == models.PostingStatusPublished {
		_ = tx.Rollback()
		resp := s.toResponse(*current)
		return &resp, nil
	}

	posting := current.Posting
	posting.Status = models.PostingStatusPublished
	var shifts []models.Shift
	if shifts, err = s.expand(&posting); err != nil {
		return nil, err
	}
	if err = s.postings.Update(ctx, tx, &posting); err != nil {
		err = appErrors.Internal(err, "failed to publish posting")
		return nil, err
	}
	if err = s.writeShifts(ctx, tx, posting.ID, shifts); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Internal(err, "failed to commit posting")
		return nil, err
	}

	s.logger.Info("posting published", zap.String("posting_id", posting.ID), zap.Int("shifts", len(shifts)))
	s.metrics.RecordPostingPublished()
	s.record(ctx, actor.auditLog(models.AuditActionPostingPublish, "postings", posting.ID,
		map[string]interface{}{"status": current.Status},
		map[string]interface{}{"status": posting.Status, "shifts": len(shifts)},
	))
	s.invalidate(ctx)

	resp := s.toResponse(models.PostingSummary{Posting: posting, ShiftCount: len(shifts)})
	return &resp, nil
}

// Delete removes a posting together with its shifts and signups.
func (s *PostingService) Delete(ctx context.Context, actor Actor, id string) error {
	if err := s.postings.Delete(ctx, nil, id); err != nil {
		return notFoundOrInternal(err, "posting")
	}
	s.record(ctx, actor.auditLog(models.AuditActionPostingDelete, "postings", id, nil, nil))
	s.invalidate(ctx)
	return nil
}

// Get returns a posting visible to actor.
func (s *PostingService) Get(ctx context.Context, actor Actor, id string) (*dto.PostingResponse, error) {
	posting, err := s.visiblePosting(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	skills, employees, err := s.postings.Relations(ctx, id)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load posting relations")
	}
	resp := s.toResponse(*posting)
	resp.SkillIDs, resp.EmployeeIDs = skills, employees
	return &resp, nil
}

// postingRows is the cached form of a listing. Display status depends on the
// clock, so only raw rows are cached and the status is derived on every read.
type postingRows struct {
	Rows  []models.PostingSummary `json:"rows"`
	Total int                     `json:"total"`
}

// List returns postings matching query. Volunteers only see published
// postings. Filtering by display status is done after deriving it.
func (s *PostingService) List(ctx context.Context, actor Actor, query dto.PostingListQuery) ([]dto.PostingResponse, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Validation(err, "invalid posting query")
	}
	filter := models.PostingFilter{
		BranchID: query.BranchID,
		Search:   strings.TrimSpace(query.Search),
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	if query.Status != "" {
		status := models.PostingStatus(query.Status)
		filter.Status = &status
	}
	if actor.Role == models.RoleVolunteer {
		if filter.Status != nil && *filter.Status != models.PostingStatusPublished {
			return []dto.PostingResponse{}, paginationOf(filter.Page, filter.PageSize, 0), nil
		}
		published := models.PostingStatusPublished
		filter.Status = &published
	}

	if query.DisplayStatus == "" {
		page, err := s.cachedRows(ctx, postingCacheKey(actor.Role, filter, false), func() (postingRows, error) {
			rows, total, err := s.postings.List(ctx, filter)
			return postingRows{Rows: rows, Total: total}, err
		})
		if err != nil {
			return nil, nil, appErrors.Internal(err, "failed to list postings")
		}
		return s.toResponses(page.Rows), paginationOf(filter.Page, filter.PageSize, page.Total), nil
	}

	all, err := s.cachedRows(ctx, postingCacheKey(actor.Role, filter, true), func() (postingRows, error) {
		rows, err := s.postings.ListAll(ctx, filter)
		return postingRows{Rows: rows, Total: len(rows)}, err
	})
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list postings")
	}
	want := models.PostingDisplayStatus(query.DisplayStatus)
	matched := make([]dto.PostingResponse, 0, len(all.Rows))
	for _, item := range s.toResponses(all.Rows) {
		if item.DisplayStatus == want {
			matched = append(matched, item)
		}
	}
	return pageOf(matched, filter.Page, filter.PageSize), paginationOf(filter.Page, filter.PageSize, len(matched)), nil
}

func (s *PostingService) cachedRows(ctx context.Context, key string, load func() (postingRows, error)) (postingRows, error) {
	var page postingRows
	if s.cache != nil {
		if hit, err := s.cache.Get(ctx, key, &page); err == nil && hit {
			return page, nil
		}
	}
	page, err := load()
	if err != nil {
		return postingRows{}, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, page, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("failed to cache posting list", zap.Error(err))
		}
	}
	return page, nil
}

// ListShifts returns the generated shifts of a posting.
func (s *PostingService) ListShifts(ctx context.Context, actor Actor, id string) ([]models.Shift, error) {
	if _, err := s.visiblePosting(ctx, actor, id); err != nil {
		return nil, err
	}
	shifts, err := s.shifts.ListByPosting(ctx, id)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list shifts")
	}
	return shifts, nil
}

// PreviewShifts expands a schedule without persisting anything.
func (s *PostingService) PreviewShifts(req dto.ShiftPreviewRequest) (*dto.ShiftPreviewResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid preview payload")
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		return nil, schedulingError(scheduling.ErrMissingScheduleDate)
	}
	windows, err := scheduling.ExpandShifts(scheduling.Recurrence{
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Interval:  req.RecurrenceInterval,
		Blocks:    req.Times,
		Location:  s.cfg.Location,
	})
	if err != nil {
		return nil, schedulingError(err)
	}
	return &dto.ShiftPreviewResponse{Count: len(windows), Shifts: windows}, nil
}

// ReviewDraft runs the posting wizard over a client-held draft and returns
// the final review step.
func (s *PostingService) ReviewDraft(ctx context.Context, req dto.DraftReviewRequest) (*scheduling.DraftReview, error) {
	draft := scheduling.NewPostingDraft()
	req.BasicInfo.Description = s.policy.Sanitize(req.BasicInfo.Description)
	if strings.TrimSpace(s.strict.Sanitize(req.BasicInfo.Description)) == "" {
		req.BasicInfo.Description = ""
	}
	if err := draft.SetBasicInfo(req.BasicInfo); err != nil {
		return nil, schedulingError(err)
	}
	if err := s.ensureBranch(ctx, req.BasicInfo.BranchID); err != nil {
		return nil, err
	}
	if err := draft.SetSchedule(req.Schedule); err != nil {
		return nil, schedulingError(err)
	}
	review, err := draft.Review(s.now(), s.cfg.Location)
	if err != nil {
		return nil, schedulingError(err)
	}
	return review, nil
}

func (s *PostingService) visiblePosting(ctx context.Context, actor Actor, id string) (*models.PostingSummary, error) {
	posting, err := s.postings.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOrInternal(err, "posting")
	}
	if actor.Role == models.RoleVolunteer && posting.Status != models.PostingStatusPublished {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "posting not found")
	}
	return posting, nil
}

// buildPosting validates a payload against the catalogue and the scheduling
// rules and returns the posting it describes.
func (s *PostingService) buildPosting(ctx context.Context, req dto.PostingRequest) (*models.Posting, error) {
	description := s.policy.Sanitize(req.Description)
	if strings.TrimSpace(s.strict.Sanitize(description)) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "description must contain text")
	}
	if err := scheduling.ValidatePostingDates(req.StartDate, req.EndDate, req.AutoClosingDate); err != nil {
		return nil, schedulingError(err)
	}
	if _, err := scheduling.IntervalWeeks(req.RecurrenceInterval); err != nil {
		return nil, schedulingError(err)
	}
	if err := scheduling.ValidateTimeBlocks(req.Times); err != nil {
		return nil, schedulingError(err)
	}
	if err := s.ensureBranch(ctx, req.BranchID); err != nil {
		return nil, err
	}

	skillIDs := unique(req.SkillIDs)
	if len(skillIDs) > 0 {
		found, err := s.catalog.CountExisting(ctx, models.CatalogSkills, skillIDs)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to verify skills")
		}
		if found != len(skillIDs) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown skill")
		}
	}
	employeeIDs := unique(req.EmployeeIDs)
	if len(employeeIDs) > 0 {
		found, err := s.staff.CountActiveByRoles(ctx, employeeIDs, []models.UserRole{models.RoleAdmin, models.RoleEmployee})
		if err != nil {
			return nil, appErrors.Internal(err, "failed to verify contacts")
		}
		if found != len(employeeIDs) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "contacts must be active admins or employees")
		}
	}

	return &models.Posting{
		BranchID:           req.BranchID,
		Title:              strings.TrimSpace(req.Title),
		Description:        description,
		StartDate:          req.StartDate,
		EndDate:            req.EndDate,
		AutoClosingDate:    req.AutoClosingDate,
		NumVolunteers:      req.NumVolunteers,
		RecurrenceInterval: req.RecurrenceInterval,
		Times:              models.TimeBlocks(req.Times),
	}, nil
}

func (s *PostingService) ensureBranch(ctx context.Context, branchID string) error {
	_, err := s.catalog.FindByID(ctx, models.CatalogBranches, branchID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrValidation, "unknown branch")
	}
	return appErrors.Internal(err, "failed to load branch")
}

// expand returns the shifts of a published posting; drafts have none.
func (s *PostingService) expand(p *models.Posting) ([]models.Shift, error) {
	if p.Status != models.PostingStatusPublished {
		return nil, nil
	}
	windows, err := scheduling.ExpandShifts(scheduling.Recurrence{
		StartDate: p.StartDate,
		EndDate:   p.EndDate,
		Interval:  p.RecurrenceInterval,
		Blocks:    p.Times,
		Location:  s.cfg.Location,
	})
	if err != nil {
		return nil, schedulingError(err)
	}
	shifts := make([]models.Shift, len(windows))
	for i, w := range windows {
		shifts[i] = models.Shift{PostingID: p.ID, StartTime: w.Start, EndTime: w.End}
	}
	return shifts, nil
}

func (s *PostingService) writeRelations(ctx context.Context, tx sqlx.ExtContext, postingID string, req dto.PostingRequest) error {
	if err := s.postings.ReplaceSkills(ctx, tx, postingID, unique(req.SkillIDs)); err != nil {
		return appErrors.Internal(err, "failed to store posting skills")
	}
	if err := s.postings.ReplaceEmployees(ctx, tx, postingID, unique(req.EmployeeIDs)); err != nil {
		return appErrors.Internal(err, "failed to store posting contacts")
	}
	return nil
}

func (s *PostingService) writeShifts(ctx context.Context, tx sqlx.ExtContext, postingID string, shifts []models.Shift) error {
	for i := range shifts {
		shifts[i].PostingID = postingID
	}
	if err := s.shifts.InsertBatch(ctx, tx, shifts); err != nil {
		return appErrors.Internal(err, "failed to store shifts")
	}
	return nil
}

func (s *PostingService) toResponse(p models.PostingSummary) dto.PostingResponse {
	return dto.PostingResponse{
		Posting:       p.Posting,
		ShiftCount:    p.ShiftCount,
		DisplayStatus: scheduling.DisplayStatusOf(p, s.now(), s.cfg.Location),
	}
}

func (s *PostingService) toResponses(rows []models.PostingSummary) []dto.PostingResponse {
	items := make([]dto.PostingResponse, len(rows))
	for i, row := range rows {
		items[i] = s.toResponse(row)
	}
	return items
}

func (s *PostingService) record(ctx context.Context, entry *models.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record posting audit log", zap.String("action", entry.Action), zap.Error(err))
	}
}

func (s *PostingService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, postingCachePattern); err != nil {
		s.logger.Warn("failed to invalidate posting cache", zap.Error(err))
	}
}

// postingCacheKey keys a raw listing. Unpaged keys hold every matching row
// for display status filtering, which pages after deriving the status.
func postingCacheKey(role models.UserRole, filter models.PostingFilter, unpaged bool) string {
	status := ""
	if filter.Status != nil {
		status = string(*filter.Status)
	}
	base := fmt.Sprintf("postings:%s:branch=%s:status=%s:q=%s", role, filter.BranchID, status, strings.ToLower(filter.Search))
	if unpaged {
		return base + ":all"
	}
	return fmt.Sprintf("%s:page=%d:size=%d", base, filter.Page, filter.PageSize)
}

func scheduleChanged(a, b models.Posting) bool {
	if a.StartDate != b.StartDate || a.EndDate != b.EndDate || a.RecurrenceInterval != b.RecurrenceInterval {
		return true
	}
	if len(a.Times) != len(b.Times) {
		return true
	}
	for i := range a.Times {
		if a.Times[i] != b.Times[i] {
			return true
		}
	}
	return false
}

func pageOf(items []dto.PostingResponse, page, pageSize int) []dto.PostingResponse {
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []dto.PostingResponse{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
