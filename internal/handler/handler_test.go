package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/volunteer-scheduler-api/internal/dto"
	"github.com/noah-isme/volunteer-scheduler-api/internal/middleware"
	"github.com/noah-isme/volunteer-scheduler-api/internal/models"
	"github.com/noah-isme/volunteer-scheduler-api/internal/service"
	appErrors "github.com/noah-isme/volunteer-scheduler-api/pkg/errors"
)

type authStub struct {
	login       models.LoginRequest
	logoutToken string
	logoutUser  string
	err         error
}

func (s *authStub) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	s.login = req
	if s.err != nil {
		return nil, s.err
	}
	return &models.LoginResponse{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (s *authStub) Signup(ctx context.Context, req models.SignupRequest) (*models.LoginResponse, error) {
	return &models.LoginResponse{AccessToken: "access"}, s.err
}

func (s *authStub) RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	return &models.RefreshTokenResponse{}, s.err
}

func (s *authStub) Logout(ctx context.Context, refreshToken string, userID string, meta models.LoginRequest) error {
	s.logoutToken, s.logoutUser = refreshToken, userID
	return s.err
}

func (s *authStub) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error {
	return s.err
}

func (s *authStub) ForgotPassword(ctx context.Context, req models.ForgotPasswordRequest) (*models.ForgotPasswordResponse, error) {
	return &models.ForgotPasswordResponse{}, s.err
}

func (s *authStub) ResetPassword(ctx context.Context, req models.ResetPasswordRequest) error {
	return s.err
}

type profileStub struct{ asked service.Actor }

func (s *profileStub) Get(ctx context.Context, actor service.Actor, id string) (*models.UserProfile, error) {
	s.asked = actor
	return &models.UserProfile{User: models.User{ID: id, Email: "me@example.org"}}, nil
}

type signupStub struct {
	actor service.Actor
	req   dto.SignupBatchRequest
	err   error
}

func (s *signupStub) Batch(ctx context.Context, actor service.Actor, req dto.SignupBatchRequest) (*dto.SignupBatchResponse, error) {
	s.actor, s.req = actor, req
	if s.err != nil {
		return nil, s.err
	}
	return &dto.SignupBatchResponse{Deleted: len(req.Deletes)}, nil
}

func (s *signupStub) ListByUser(ctx context.Context, actor service.Actor, userID string) ([]models.SignupDetail, error) {
	return nil, s.err
}

type reviewStub struct {
	confirm dto.ReviewConfirmRequest
	err     error
}

func (s *reviewStub) Get(ctx context.Context, actor service.Actor, postingID string) (*dto.ReviewResponse, error) {
	return &dto.ReviewResponse{PostingID: postingID}, s.err
}

func (s *reviewStub) Confirm(ctx context.Context, actor service.Actor, postingID string, req dto.ReviewConfirmRequest) (*dto.ReviewConfirmResponse, error) {
	s.confirm = req
	if s.err != nil {
		return nil, s.err
	}
	return &dto.ReviewConfirmResponse{Updated: len(req.SignupIDs)}, nil
}

func (s *reviewStub) Publish(ctx context.Context, actor service.Actor, postingID string) (*dto.PublishScheduleResponse, error) {
	return &dto.PublishScheduleResponse{Published: 1}, s.err
}

type exportStub struct {
	query dto.ExportQuery
	err   error
}

func (s *exportStub) Roster(ctx context.Context, actor service.Actor, postingID string, query dto.ExportQuery) (*service.ExportResult, error) {
	s.query = query
	if s.err != nil {
		return nil, s.err
	}
	return &service.ExportResult{Filename: "roster-pantry.csv", ContentType: "text/csv", Data: []byte("a,b\n")}, nil
}

// withTestClaims authenticates requests carrying X-Test-User.
func withTestClaims() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := c.GetHeader("X-Test-User"); id != "" {
			c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: id, Role: models.UserRole(c.GetHeader("X-Test-Role"))})
		}
		c.Next()
	}
}

func newHandlerRouter(auth *authStub, profiles *profileStub, signups *signupStub, reviews *reviewStub, exports *exportStub) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(withTestClaims())

	authHandler := NewAuthHandler(auth, profiles)
	r.POST("/auth/login", authHandler.Login)
	r.POST("/auth/signup", authHandler.Signup)
	r.POST("/auth/logout", authHandler.Logout)
	r.POST("/auth/forgot-password", authHandler.ForgotPassword)
	r.GET("/auth/me", authHandler.Me)

	signupHandler := NewSignupHandler(signups)
	r.POST("/signups/batch", signupHandler.Batch)

	reviewHandler := NewReviewHandler(reviews, exports)
	r.POST("/postings/:id/review/confirm", reviewHandler.Confirm)
	r.GET("/postings/:id/review/export", reviewHandler.Export)
	return r
}

func performRequest(r http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func volunteer(id string) map[string]string {
	return map[string]string{"X-Test-User": id, "X-Test-Role": string(models.RoleVolunteer)}
}

func TestAuthHandlerLogin(t *testing.T) {
	auth := &authStub{}
	r := newHandlerRouter(auth, &profileStub{}, &signupStub{}, &reviewStub{}, &exportStub{})

	resp := performRequest(r, http.MethodPost, "/auth/login", `{"email":"ada@example.org","password":"secret"}`,
		map[string]string{"User-Agent": "handler-test"})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"access_token":"access"`)
	assert.Equal(t, "ada@example.org", auth.login.Email)
	assert.Equal(t, "handler-test", auth.login.UserAgent)

	resp = performRequest(r, http.MethodPost, "/auth/login", `{"email":`, nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), `"code":"VALIDATION_ERROR"`)

	auth.err = appErrors.ErrInvalidCredentials
	resp = performRequest(r, http.MethodPost, "/auth/login", `{"email":"ada@example.org","password":"nope"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestAuthHandlerSignupCreated(t *testing.T) {
	r := newHandlerRouter(&authStub{}, &profileStub{}, &signupStub{}, &reviewStub{}, &exportStub{})
	resp := performRequest(r, http.MethodPost, "/auth/signup", `{"invite_token":"t","email":"a@b.c","password":"long-enough","first_name":"A","last_name":"B"}`, nil)
	assert.Equal(t, http.StatusCreated, resp.Code)
}

func TestAuthHandlerLogout(t *testing.T) {
	auth := &authStub{}
	r := newHandlerRouter(auth, &profileStub{}, &signupStub{}, &reviewStub{}, &exportStub{})

	resp := performRequest(r, http.MethodPost, "/auth/logout", `{"refresh_token":"r-1"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = performRequest(r, http.MethodPost, "/auth/logout", `{}`, volunteer("u-1"))
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = performRequest(r, http.MethodPost, "/auth/logout", `{"refresh_token":"r-1"}`, volunteer("u-1"))
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Equal(t, "r-1", auth.logoutToken)
	assert.Equal(t, "u-1", auth.logoutUser)
}

func TestAuthHandlerForgotPasswordAccepted(t *testing.T) {
	r := newHandlerRouter(&authStub{}, &profileStub{}, &signupStub{}, &reviewStub{}, &exportStub{})
	resp := performRequest(r, http.MethodPost, "/auth/forgot-password", `{"email":"ghost@example.org"}`, nil)
	assert.Equal(t, http.StatusAccepted, resp.Code)
	assert.Contains(t, resp.Body.String(), "a reset link will be sent")
}

func TestAuthHandlerMeUsesCaller(t *testing.T) {
	profiles := &profileStub{}
	r := newHandlerRouter(&authStub{}, profiles, &signupStub{}, &reviewStub{}, &exportStub{})

	resp := performRequest(r, http.MethodGet, "/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = performRequest(r, http.MethodGet, "/auth/me", "", volunteer("u-7"))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "u-7", profiles.asked.ID)
	assert.Equal(t, models.RoleVolunteer, profiles.asked.Role)
	assert.Contains(t, resp.Body.String(), `"email":"me@example.org"`)
}

func TestSignupHandlerBatch(t *testing.T) {
	signups := &signupStub{}
	r := newHandlerRouter(&authStub{}, &profileStub{}, signups, &reviewStub{}, &exportStub{})

	body := `{"upsert_shift_signups":[{"shift_id":"s-1","num_volunteers":2}],"delete_shift_signups":[{"shift_id":"s-2"}]}`
	resp := performRequest(r, http.MethodPost, "/signups/batch", body, volunteer("u-1"))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "u-1", signups.actor.ID)
	require.Len(t, signups.req.Upserts, 1)
	assert.Equal(t, 2, signups.req.Upserts[0].NumVolunteers)
	assert.Contains(t, resp.Body.String(), `"deleted":1`)

	signups.err = appErrors.ErrSignupsClosed
	resp = performRequest(r, http.MethodPost, "/signups/batch", body, volunteer("u-1"))
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Contains(t, resp.Body.String(), `"code":"SIGNUPS_CLOSED"`)
}

func TestReviewHandlerConfirm(t *testing.T) {
	reviews := &reviewStub{}
	r := newHandlerRouter(&authStub{}, &profileStub{}, &signupStub{}, reviews, &exportStub{})
	admin := map[string]string{"X-Test-User": "a-1", "X-Test-Role": string(models.RoleAdmin)}

	resp := performRequest(r, http.MethodPost, "/postings/p-1/review/confirm", `{"signup_ids":["x","y"],"confirmed":true}`, admin)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, reviews.confirm.Confirmed)
	assert.Contains(t, resp.Body.String(), `"updated":2`)

	resp = performRequest(r, http.MethodPost, "/postings/p-1/review/confirm", `not json`, admin)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestReviewHandlerExport(t *testing.T) {
	exports := &exportStub{}
	r := newHandlerRouter(&authStub{}, &profileStub{}, &signupStub{}, &reviewStub{}, exports)

	resp := performRequest(r, http.MethodGet, "/postings/p-1/review/export?format=csv", "", volunteer("u-1"))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "csv", exports.query.Format)
	assert.Equal(t, `attachment; filename="roster-pantry.csv"`, resp.Header().Get("Content-Disposition"))
	assert.Equal(t, "no-store", resp.Header().Get("Cache-Control"))
	assert.Equal(t, "a,b\n", resp.Body.String())

	exports.err = appErrors.ErrNotFound
	resp = performRequest(r, http.MethodGet, "/postings/p-1/review/export", "", volunteer("u-1"))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
