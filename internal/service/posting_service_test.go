package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/volunteer-scheduler-api/internal/dto"
	"github.com/noah-isme/volunteer-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/volunteer-scheduler-api/pkg/errors"
)

const (
	testBranchID  = "cccccccc-0000-0000-0000-000000000001"
	testPostingID = "dddddddd-0000-0000-0000-000000000001"
)

var postingNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type postingRepoStub struct {
	postings  map[string]*models.PostingSummary
	created   []*models.Posting
	updated   []*models.Posting
	deleted   []string
	skills    map[string][]string
	employees map[string][]string
	listCalls int
	listAll   []models.PostingSummary
	lastList  models.PostingFilter
}

func newPostingRepoStub() *postingRepoStub {
	return &postingRepoStub{
		postings:  map[string]*models.PostingSummary{},
		skills:    map[string][]string{},
		employees: map[string][]string{},
	}
}

func (r *postingRepoStub) Create(ctx context.Context, exec sqlx.ExtContext, posting *models.Posting) error {
	if posting.ID == "" {
		posting.ID = testPostingID
	}
	r.created = append(r.created, posting)
	r.postings[posting.ID] = &models.PostingSummary{Posting: *posting}
	return nil
}

func (r *postingRepoStub) Update(ctx context.Context, exec sqlx.ExtContext, posting *models.Posting) error {
	r.updated = append(r.updated, posting)
	return nil
}

func (r *postingRepoStub) FindByID(ctx context.Context, id string) (*models.PostingSummary, error) {
	p, ok := r.postings[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *p
	return &copied, nil
}

func (r *postingRepoStub) FindForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.PostingSummary, error) {
	return r.FindByID(ctx, id)
}

func (r *postingRepoStub) List(ctx context.Context, filter models.PostingFilter) ([]models.PostingSummary, int, error) {
	r.listCalls++
	r.lastList = filter
	rows := make([]models.PostingSummary, 0, len(r.postings))
	for _, p := range r.postings {
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		rows = append(rows, *p)
	}
	return rows, len(rows), nil
}

func (r *postingRepoStub) ListAll(ctx context.Context, filter models.PostingFilter) ([]models.PostingSummary, error) {
	r.listCalls++
	r.lastList = filter
	return r.listAll, nil
}

func (r *postingRepoStub) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if _, ok := r.postings[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.postings, id)
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *postingRepoStub) ReplaceSkills(ctx context.Context, exec sqlx.ExtContext, postingID string, skillIDs []string) error {
	r.skills[postingID] = skillIDs
	return nil
}

func (r *postingRepoStub) ReplaceEmployees(ctx context.Context, exec sqlx.ExtContext, postingID string, userIDs []string) error {
	r.employees[postingID] = userIDs
	return nil
}

func (r *postingRepoStub) Relations(ctx context.Context, postingID string) ([]string, []string, error) {
	return nonNil(r.skills[postingID]), nonNil(r.employees[postingID]), nil
}

type shiftRepoStub struct {
	inserted      []models.Shift
	deletedFor    []string
	byPosting     []models.Shift
	insertedCalls int
}

func (s *shiftRepoStub) InsertBatch(ctx context.Context, exec sqlx.ExtContext, shifts []models.Shift) error {
	s.insertedCalls++
	s.inserted = append(s.inserted, shifts...)
	return nil
}

func (s *shiftRepoStub) DeleteByPosting(ctx context.Context, exec sqlx.ExtContext, postingID string) (int64, error) {
	s.deletedFor = append(s.deletedFor, postingID)
	return 2, nil
}

func (s *shiftRepoStub) ListByPosting(ctx context.Context, postingID string) ([]models.Shift, error) {
	return s.byPosting, nil
}

type catalogReaderStub struct {
	branches map[string]bool
	skills   map[string]bool
}

func (c catalogReaderStub) FindByID(ctx context.Context, kind models.CatalogKind, id string) (*models.CatalogItem, error) {
	if kind == models.CatalogBranches && c.branches[id] {
		return &models.CatalogItem{ID: id, Name: "Downtown"}, nil
	}
	return nil, sql.ErrNoRows
}

func (c catalogReaderStub) CountExisting(ctx context.Context, kind models.CatalogKind, ids []string) (int, error) {
	n := 0
	for _, id := range ids {
		if c.skills[id] {
			n++
		}
	}
	return n, nil
}

type staffCounterStub struct{ count int }

func (s staffCounterStub) CountActiveByRoles(ctx context.Context, ids []string, roles []models.UserRole) (int, error) {
	return s.count, nil
}

type memoryCache struct {
	entries     map[string][]byte
	invalidated int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}}
}

func (c *memoryCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	return nil
}

func (c *memoryCache) Invalidate(ctx context.Context, pattern string) error {
	c.invalidated++
	c.entries = map[string][]byte{}
	return nil
}

type postingFixture struct {
	svc    *PostingService
	repo   *postingRepoStub
	shifts *shiftRepoStub
	audit  *auditStub
	cache  *memoryCache
}

func newPostingFixture(t *testing.T, tx txProvider) postingFixture {
	t.Helper()
	f := postingFixture{
		repo:   newPostingRepoStub(),
		shifts: &shiftRepoStub{},
		audit:  &auditStub{},
		cache:  newMemoryCache(),
	}
	catalog := catalogReaderStub{
		branches: map[string]bool{testBranchID: true},
		skills:   map[string]bool{skillA: true},
	}
	f.svc = NewPostingService(f.repo, f.shifts, catalog, staffCounterStub{}, f.audit, f.cache, nil, tx,
		validator.New(), zap.NewNop(), PostingConfig{Location: time.UTC, CacheTTL: time.Minute})
	f.svc.now = func() time.Time { return postingNow }
	return f
}

func samplePostingRequest() dto.PostingRequest {
	return dto.PostingRequest{
		BranchID:           testBranchID,
		Title:              " Food bank sorting ",
		Description:        `<p>Sort donations</p><script>alert(1)</script>`,
		SkillIDs:           []string{skillA},
		StartDate:          models.MustDate("2026-06-01"),
		EndDate:            models.MustDate("2026-06-14"),
		AutoClosingDate:    models.MustDate("2026-05-25"),
		NumVolunteers:      4,
		RecurrenceInterval: models.RecurrenceWeekly,
		Times:              []models.TimeBlock{{Weekday: time.Monday, Start: "09:00", End: "11:00"}},
	}
}

func TestPostingServiceCreateDraftHasNoShifts(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	f := newPostingFixture(t, tx)
	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := f.svc.Create(context.Background(), adminActor, dto.CreatePostingRequest{
		PostingRequest: samplePostingRequest(),
		Status:         models.PostingStatusDraft,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, testPostingID, resp.ID)
	require.Len(t, f.repo.created, 1)
	created := f.repo.created[0]
	assert.Equal(t, "Food bank sorting", created.Title)
	assert.NotContains(t, created.Description, "<script>")
	assert.Contains(t, created.Description, "Sort donations")
	assert.Equal(t, models.PostingStatusDraft, created.Status)
	assert.Empty(t, f.shifts.inserted)
	assert.Equal(t, []string{skillA}, f.repo.skills[testPostingID])
	assert.Equal(t, []string{models.AuditActionPostingCreate}, f.audit.actions())
	assert.Equal(t, 1, f.cache.invalidated)
}

func TestPostingServiceCreatePublishedGeneratesShifts(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	f := newPostingFixture(t, tx)
	mock.ExpectBegin()
	mock.ExpectCommit()

	_, err := f.svc.Create(context.Background(), adminActor, dto.CreatePostingRequest{
		PostingRequest: samplePostingRequest(),
		Status:         models.PostingStatusPublished,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, f.shifts.inserted, 2)
	assert.Equal(t, time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC), f.shifts.inserted[0].StartTime)
	assert.Equal(t, time.Date(2026, 6, 8, 11, 0, 0, 0, time.UTC), f.shifts.inserted[1].EndTime)
	for _, shift := range f.shifts.inserted {
		assert.Equal(t, testPostingID, shift.PostingID)
	}
}

func TestPostingServiceCreateValidation(t *testing.T) {
	f := newPostingFixture(t, nil)
	cases := map[string]func(*dto.PostingRequest){
		"markup only description": func(r *dto.PostingRequest) { r.Description = "<script>alert(1)</script>" },
		"unknown branch":          func(r *dto.PostingRequest) { r.BranchID = "eeeeeeee-0000-0000-0000-000000000001" },
		"closing after start":     func(r *dto.PostingRequest) { r.AutoClosingDate = models.MustDate("2026-06-02") },
		"end before start":        func(r *dto.PostingRequest) { r.EndDate = models.MustDate("2026-05-30") },
		"unknown skill":           func(r *dto.PostingRequest) { r.SkillIDs = []string{branchA} },
		"inactive contact":        func(r *dto.PostingRequest) { r.EmployeeIDs = []string{employeeActor.ID} },
		"reversed time block": func(r *dto.PostingRequest) {
			r.Times = []models.TimeBlock{{Weekday: time.Monday, Start: "11:00", End: "09:00"}}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := samplePostingRequest()
			mutate(&req)
			_, err := f.svc.Create(context.Background(), adminActor, dto.CreatePostingRequest{PostingRequest: req, Status: models.PostingStatusDraft})
			assertAppError(t, err, appErrors.ErrValidation)
		})
	}
	assert.Empty(t, f.repo.created)
}

func seedPosting(f postingFixture, status models.PostingStatus, shiftCount int) {
	req := samplePostingRequest()
	f.repo.postings[testPostingID] = &models.PostingSummary{
		Posting: models.Posting{
			ID:                 testPostingID,
			BranchID:           req.BranchID,
			Title:              "Food bank sorting",
			Description:        "Sort donations",
			StartDate:          req.StartDate,
			EndDate:            req.EndDate,
			AutoClosingDate:    req.AutoClosingDate,
			NumVolunteers:      req.NumVolunteers,
			RecurrenceInterval: req.RecurrenceInterval,
			Status:             status,
			Times:              models.TimeBlocks(req.Times),
		},
		ShiftCount: shiftCount,
	}
}

func TestPostingServicePublishDraft(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	f := newPostingFixture(t, tx)
	seedPosting(f, models.PostingStatusDraft, 0)
	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := f.svc.Publish(context.Background(), adminActor, testPostingID)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, models.PostingStatusPublished, resp.Status)
	assert.Equal(t, 2, resp.ShiftCount)
	assert.Equal(t, models.DisplayStatusScheduled, resp.DisplayStatus)
	require.Len(t, f.repo.updated, 1)
	assert.Equal(t, models.PostingStatusPublished, f.repo.updated[0].Status)
	assert.Len(t, f.shifts.inserted, 2)
	assert.Equal(t, []string{models.AuditActionPostingPublish}, f.audit.actions())
}

func TestPostingServicePublishIsIdempotent(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	f := newPostingFixture(t, tx)
	seedPosting(f, models.PostingStatusPublished, 2)
	mock.ExpectBegin()
	mock.ExpectRollback()

	resp, err := f.svc.Publish(context.Background(), adminActor, testPostingID)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, 2, resp.ShiftCount)
	assert.Empty(t, f.repo.updated)
	assert.Empty(t, f.shifts.inserted)
	assert.Empty(t, f.audit.logs)
}

func TestPostingServicePublishMissing(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	f := newPostingFixture(t, tx)
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := f.svc.Publish(context.Background(), adminActor, testPostingID)
	assertAppError(t, err, appErrors.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostingServiceUpdateRegeneratesPublishedSchedule(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	f := newPostingFixture(t, tx)
	seedPosting(f, models.PostingStatusPublished, 2)
	mock.ExpectBegin()
	mock.ExpectCommit()

	req := samplePostingRequest()
	req.EndDate = models.MustDate("2026-06-21")
	resp, err := f.svc.Update(context.Background(), adminActor, testPostingID, req)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, []string{testPostingID}, f.shifts.deletedFor)
	assert.Len(t, f.shifts.inserted, 3)
	assert.Equal(t, 3, resp.ShiftCount)
	assert.Equal(t, models.PostingStatusPublished, resp.Status)
}

func TestPostingServiceUpdateKeepsShiftsWhenScheduleUnchanged(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	f := newPostingFixture(t, tx)
	seedPosting(f, models.PostingStatusPublished, 2)
	mock.ExpectBegin()
	mock.ExpectCommit()

	req := samplePostingRequest()
	req.Title = "Renamed"
	resp, err := f.svc.Update(context.Background(), adminActor, testPostingID, req)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Empty(t, f.shifts.deletedFor)
	assert.Equal(t, 0, f.shifts.insertedCalls)
	assert.Equal(t, 2, resp.ShiftCount)
	assert.Equal(t, "Renamed", resp.Title)
}

func TestPostingServiceGetHidesDraftsFromVolunteers(t *testing.T) {
	f := newPostingFixture(t, nil)
	seedPosting(f, models.PostingStatusDraft, 0)

	_, err := f.svc.Get(context.Background(), volunteerActor, testPostingID)
	assertAppError(t, err, appErrors.ErrNotFound)

	resp, err := f.svc.Get(context.Background(), employeeActor, testPostingID)
	require.NoError(t, err)
	assert.Equal(t, models.DisplayStatusDraft, resp.DisplayStatus)
	assert.NotNil(t, resp.SkillIDs)
}

func TestPostingServiceListForcesPublishedForVolunteersAndCaches(t *testing.T) {
	f := newPostingFixture(t, nil)
	seedPosting(f, models.PostingStatusPublished, 2)

	items, page, err := f.svc.List(context.Background(), volunteerActor, dto.PostingListQuery{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, page.TotalCount)
	require.NotNil(t, f.repo.lastList.Status)
	assert.Equal(t, models.PostingStatusPublished, *f.repo.lastList.Status)

	_, _, err = f.svc.List(context.Background(), volunteerActor, dto.PostingListQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, f.repo.listCalls)

	items, _, err = f.svc.List(context.Background(), volunteerActor, dto.PostingListQuery{Status: "DRAFT"})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestPostingServiceListFiltersByDisplayStatus(t *testing.T) {
	f := newPostingFixture(t, nil)
	past := models.PostingSummary{Posting: models.Posting{ID: "p-past", Status: models.PostingStatusPublished, AutoClosingDate: models.MustDate("2026-04-01")}, ShiftCount: 1}
	scheduled := models.PostingSummary{Posting: models.Posting{ID: "p-open", Status: models.PostingStatusPublished, AutoClosingDate: models.MustDate("2026-05-20")}, ShiftCount: 3}
	unscheduled := models.PostingSummary{Posting: models.Posting{ID: "p-empty", Status: models.PostingStatusPublished, AutoClosingDate: models.MustDate("2026-05-20")}}
	f.repo.listAll = []models.PostingSummary{past, scheduled, unscheduled}

	items, page, err := f.svc.List(context.Background(), adminActor, dto.PostingListQuery{DisplayStatus: "SCHEDULED"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "p-open", items[0].ID)
	assert.Equal(t, 1, page.TotalCount)
}

func TestPostingServiceListDerivesStatusAfterCacheRead(t *testing.T) {
	f := newPostingFixture(t, nil)
	seedPosting(f, models.PostingStatusPublished, 2)
	f.repo.postings[testPostingID].AutoClosingDate = models.MustDate("2026-05-02")
	f.repo.listAll = []models.PostingSummary{*f.repo.postings[testPostingID]}

	items, _, err := f.svc.List(context.Background(), adminActor, dto.PostingListQuery{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.DisplayStatusScheduled, items[0].DisplayStatus)

	scheduled, _, err := f.svc.List(context.Background(), adminActor, dto.PostingListQuery{DisplayStatus: "SCHEDULED"})
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	calls := f.repo.listCalls

	f.svc.now = func() time.Time { return time.Date(2026, 5, 2, 1, 0, 0, 0, time.UTC) }

	items, _, err = f.svc.List(context.Background(), adminActor, dto.PostingListQuery{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.DisplayStatusPast, items[0].DisplayStatus)

	got, err := f.svc.Get(context.Background(), adminActor, testPostingID)
	require.NoError(t, err)
	assert.Equal(t, got.DisplayStatus, items[0].DisplayStatus)

	scheduled, page, err := f.svc.List(context.Background(), adminActor, dto.PostingListQuery{DisplayStatus: "SCHEDULED"})
	require.NoError(t, err)
	assert.Empty(t, scheduled)
	assert.Equal(t, 0, page.TotalCount)
	past, _, err := f.svc.List(context.Background(), adminActor, dto.PostingListQuery{DisplayStatus: "PAST"})
	require.NoError(t, err)
	require.Len(t, past, 1)

	assert.Equal(t, calls, f.repo.listCalls, "listings after the clock moved are served from cache")
}

func TestPostingServiceDelete(t *testing.T) {
	f := newPostingFixture(t, nil)
	seedPosting(f, models.PostingStatusDraft, 0)

	require.NoError(t, f.svc.Delete(context.Background(), adminActor, testPostingID))
	assert.Equal(t, []string{testPostingID}, f.repo.deleted)
	assert.Equal(t, []string{models.AuditActionPostingDelete}, f.audit.actions())

	err := f.svc.Delete(context.Background(), adminActor, testPostingID)
	assertAppError(t, err, appErrors.ErrNotFound)
}

func TestPostingServicePreviewShifts(t *testing.T) {
	f := newPostingFixture(t, nil)
	resp, err := f.svc.PreviewShifts(dto.ShiftPreviewRequest{
		StartDate:          models.MustDate("2026-06-01"),
		EndDate:            models.MustDate("2026-06-30"),
		RecurrenceInterval: models.RecurrenceBiweekly,
		Times:              []models.TimeBlock{{Weekday: time.Monday, Start: "09:00", End: "11:00"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Count)

	_, err = f.svc.PreviewShifts(dto.ShiftPreviewRequest{RecurrenceInterval: models.RecurrenceNone, Times: []models.TimeBlock{{Start: "09:00", End: "10:00"}}})
	assertAppError(t, err, appErrors.ErrValidation)
}
