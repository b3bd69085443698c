package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/volunteer-scheduler-api/internal/dto"
	"github.com/noah-isme/volunteer-scheduler-api/internal/models"
	"github.com/noah-isme/volunteer-scheduler-api/internal/scheduling"
	appErrors "github.com/noah-isme/volunteer-scheduler-api/pkg/errors"
)

const (
	signupPending   = "99999999-0000-0000-0000-000000000001"
	signupConfirmed = "99999999-0000-0000-0000-000000000002"
	signupPublished = "99999999-0000-0000-0000-000000000003"
)

type reviewSignupStub struct {
	signups       []models.Signup
	rows          []models.ReviewRow
	applied       []models.Signup
	affectedDelta int64
}

func (r *reviewSignupStub) ListByPosting(ctx context.Context, exec sqlx.ExtContext, postingID string) ([]models.Signup, error) {
	return r.signups, nil
}

func (r *reviewSignupStub) ApplyStatuses(ctx context.Context, exec sqlx.ExtContext, signups []models.Signup) (int64, error) {
	r.applied = append(r.applied, signups...)
	return int64(len(signups)) + r.affectedDelta, nil
}

func (r *reviewSignupStub) ListReviewRows(ctx context.Context, postingID string) ([]models.ReviewRow, error) {
	return r.rows, nil
}

type reviewFixture struct {
	svc      *ReviewService
	postings *postingRepoStub
	signups  *reviewSignupStub
	audit    *auditStub
}

func newReviewFixture(t *testing.T, tx txProvider, status models.PostingStatus, closing string) reviewFixture {
	t.Helper()
	f := reviewFixture{
		postings: newPostingRepoStub(),
		signups: &reviewSignupStub{signups: []models.Signup{
			{ID: signupPending, Status: models.SignupStatusPending},
			{ID: signupConfirmed, Status: models.SignupStatusConfirmed},
		}},
		audit: &auditStub{},
	}
	f.postings.postings[testPostingID] = &models.PostingSummary{
		Posting: models.Posting{
			ID:              testPostingID,
			Title:           "Food bank sorting",
			NumVolunteers:   4,
			Status:          status,
			AutoClosingDate: models.MustDate(closing),
		},
		ShiftCount: 1,
	}
	f.svc = NewReviewService(f.postings, f.signups, f.audit, tx, nil, validator.New(), zap.NewNop(), time.UTC)
	f.svc.now = func() time.Time { return postingNow }
	return f
}

func strPtr(s string) *string { return &s }

func reviewRow(signupID, userID, first, email string, status models.SignupStatus) models.ReviewRow {
	n := 1
	return models.ReviewRow{
		ShiftID:       shiftOpen,
		ShiftStart:    time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC),
		ShiftEnd:      time.Date(2026, 6, 1, 11, 0, 0, 0, time.UTC),
		SignupID:      strPtr(signupID),
		UserID:        strPtr(userID),
		NumVolunteers: &n,
		Note:          strPtr("note from " + first),
		Status:        &status,
		FirstName:     strPtr(first),
		LastName:      strPtr("Tester"),
		Email:         strPtr(email),
		PhoneNumber:   strPtr("555-0100"),
	}
}

func TestReviewServiceGetModes(t *testing.T) {
	f := newReviewFixture(t, nil, models.PostingStatusPublished, "2026-05-20")
	f.signups.rows = []models.ReviewRow{
		reviewRow(signupPending, adminActor.ID, "Ada", "ada@example.com", models.SignupStatusPending),
		reviewRow(signupConfirmed, volunteerActor.ID, "Bea", "bea@example.com", models.SignupStatusConfirmed),
	}

	admin, err := f.svc.Get(context.Background(), adminActor, testPostingID)
	require.NoError(t, err)
	assert.Equal(t, scheduling.ReviewEditable, admin.Mode)
	assert.Equal(t, models.DisplayStatusScheduled, admin.DisplayStatus)
	require.Len(t, admin.Days, 1)
	assert.Len(t, admin.Days[0].Shifts[0].Signups, 2)
	assert.True(t, admin.HasConfirmedSignup)

	employee, err := f.svc.Get(context.Background(), employeeActor, testPostingID)
	require.NoError(t, err)
	assert.Equal(t, scheduling.ReviewReadOnly, employee.Mode)
	require.Len(t, employee.Days[0].Shifts[0].Signups, 1)
	assert.Equal(t, "bea@example.com", employee.Days[0].Shifts[0].Signups[0].Email)
}

func TestReviewServiceGetHidesOtherContactsFromVolunteers(t *testing.T) {
	f := newReviewFixture(t, nil, models.PostingStatusPublished, "2026-05-20")
	other := "44444444-4444-4444-4444-444444444444"
	f.signups.rows = []models.ReviewRow{
		reviewRow(signupConfirmed, volunteerActor.ID, "Bea", "bea@example.com", models.SignupStatusConfirmed),
		reviewRow(signupPublished, other, "Cy", "cy@example.com", models.SignupStatusPublished),
	}

	resp, err := f.svc.Get(context.Background(), volunteerActor, testPostingID)
	require.NoError(t, err)
	signups := resp.Days[0].Shifts[0].Signups
	require.Len(t, signups, 2)
	assert.Equal(t, "bea@example.com", signups[0].Email)
	assert.Empty(t, signups[1].Email)
	assert.Empty(t, signups[1].PhoneNumber)
	assert.Equal(t, "Cy Tester", signups[1].VolunteerName)
}

func TestReviewServiceGetDraftHiddenFromVolunteers(t *testing.T) {
	f := newReviewFixture(t, nil, models.PostingStatusDraft, "2026-05-20")
	_, err := f.svc.Get(context.Background(), volunteerActor, testPostingID)
	assertAppError(t, err, appErrors.ErrNotFound)
}

func TestReviewServiceConfirmSelected(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	f := newReviewFixture(t, tx, models.PostingStatusPublished, "2026-05-20")
	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := f.svc.Confirm(context.Background(), adminActor, testPostingID, dto.ReviewConfirmRequest{
		SignupIDs: []string{signupPending, signupConfirmed},
		Confirmed: true,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, 1, resp.Updated)
	require.Len(t, f.signups.applied, 1)
	assert.Equal(t, signupPending, f.signups.applied[0].ID)
	assert.Equal(t, models.SignupStatusConfirmed, f.signups.applied[0].Status)
	assert.Equal(t, []string{models.AuditActionSignupReview}, f.audit.actions())
}

func TestReviewServiceUnconfirmAll(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	f := newReviewFixture(t, tx, models.PostingStatusPublished, "2026-05-20")
	f.signups.signups = append(f.signups.signups, models.Signup{ID: signupPublished, Status: models.SignupStatusPublished})
	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := f.svc.Confirm(context.Background(), adminActor, testPostingID, dto.ReviewConfirmRequest{SelectAll: true, Confirmed: false})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, 1, resp.Updated)
	require.Len(t, f.signups.applied, 1)
	assert.Equal(t, signupConfirmed, f.signups.applied[0].ID)
	assert.Equal(t, models.SignupStatusPending, f.signups.applied[0].Status)
}

func TestReviewServiceConfirmErrors(t *testing.T) {
	cases := []struct {
		name    string
		actor   Actor
		status  models.PostingStatus
		closing string
		req     dto.ReviewConfirmRequest
		want    *appErrors.Error
	}{
		{"past posting", adminActor, models.PostingStatusPublished, "2026-04-01", dto.ReviewConfirmRequest{SelectAll: true, Confirmed: true}, appErrors.ErrSignupsClosed},
		{"employee", employeeActor, models.PostingStatusPublished, "2026-05-20", dto.ReviewConfirmRequest{SelectAll: true, Confirmed: true}, appErrors.ErrSignupsClosed},
		{"draft posting", adminActor, models.PostingStatusDraft, "2026-05-20", dto.ReviewConfirmRequest{SelectAll: true, Confirmed: true}, appErrors.ErrPreconditionFailed},
		{"unknown signup", adminActor, models.PostingStatusPublished, "2026-05-20", dto.ReviewConfirmRequest{SignupIDs: []string{signupPublished}, Confirmed: true}, appErrors.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx, mock := newTxProviderMock(t)
			f := newReviewFixture(t, tx, tc.status, tc.closing)
			mock.ExpectBegin()
			mock.ExpectRollback()

			_, err := f.svc.Confirm(context.Background(), tc.actor, testPostingID, tc.req)
			assertAppError(t, err, tc.want)
			require.NoError(t, mock.ExpectationsWereMet())
			assert.Empty(t, f.signups.applied)
		})
	}
}

func TestReviewServiceConfirmFinalizedSignup(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	f := newReviewFixture(t, tx, models.PostingStatusPublished, "2026-05-20")
	f.signups.signups = append(f.signups.signups, models.Signup{ID: signupPublished, Status: models.SignupStatusPublished})
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := f.svc.Confirm(context.Background(), adminActor, testPostingID, dto.ReviewConfirmRequest{SignupIDs: []string{signupPublished}, Confirmed: false})
	assertAppError(t, err, appErrors.ErrFinalized)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewServiceConfirmRequiresSelection(t *testing.T) {
	f := newReviewFixture(t, nil, models.PostingStatusPublished, "2026-05-20")
	_, err := f.svc.Confirm(context.Background(), adminActor, testPostingID, dto.ReviewConfirmRequest{Confirmed: true})
	assertAppError(t, err, appErrors.ErrValidation)
}

func TestReviewServicePublish(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	f := newReviewFixture(t, tx, models.PostingStatusPublished, "2026-04-01")
	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := f.svc.Publish(context.Background(), adminActor, testPostingID)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, 1, resp.Published)
	assert.Equal(t, 1, resp.Canceled)
	statuses := map[string]models.SignupStatus{}
	for _, s := range f.signups.applied {
		statuses[s.ID] = s.Status
	}
	assert.Equal(t, models.SignupStatusCanceled, statuses[signupPending])
	assert.Equal(t, models.SignupStatusPublished, statuses[signupConfirmed])
	assert.Equal(t, []string{models.AuditActionSchedulePublish}, f.audit.actions())
}

func TestReviewServicePublishWithoutConfirmed(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	f := newReviewFixture(t, tx, models.PostingStatusPublished, "2026-05-20")
	f.signups.signups = []models.Signup{{ID: signupPending, Status: models.SignupStatusPending}}
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := f.svc.Publish(context.Background(), adminActor, testPostingID)
	assertAppError(t, err, appErrors.ErrPreconditionFailed)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Empty(t, f.signups.applied)
}

func TestReviewServicePublishDetectsConcurrentChange(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	f := newReviewFixture(t, tx, models.PostingStatusPublished, "2026-05-20")
	f.signups.affectedDelta = -1
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := f.svc.Publish(context.Background(), adminActor, testPostingID)
	assertAppError(t, err, appErrors.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Empty(t, f.audit.logs)
}
