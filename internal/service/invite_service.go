package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/volunteer-scheduler-api/internal/dto"
	"github.com/noah-isme/volunteer-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/volunteer-scheduler-api/pkg/errors"
	"github.com/noah-isme/volunteer-scheduler-api/pkg/token"
)

type inviteRepository interface {
	Create(ctx context.Context, invite *models.UserInvite) error
	List(ctx context.Context, includeUsed bool) ([]models.UserInvite, error)
	Delete(ctx context.Context, id string) error
}

type emailLookup interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

// InviteService lets admins invite people to register with a given role.
type InviteService struct {
	invites   inviteRepository
	users     emailLookup
	signer    tokenSigner
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
	ttl       time.Duration
	now       func() time.Time
}

// NewInviteService wires invite dependencies. ttl defaults to one week.
func NewInviteService(invites inviteRepository, users emailLookup, signer tokenSigner, audit auditRecorder, validate *validator.Validate, logger *zap.Logger, ttl time.Duration) *InviteService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &InviteService{
		invites:   invites,
		users:     users,
		signer:    signer,
		audit:     audit,
		validator: validate,
		logger:    logger,
		ttl:       ttl,
		now:       time.Now,
	}
}

// Create stores an invite and returns it with its signed token. The token is
// bound to a random nonce kept on the invite row, so revoking the invite also
// kills the token.
func (s *InviteService) Create(ctx context.Context, actor Actor, req dto.CreateInviteRequest) (*dto.InviteResponse, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid invite payload")
	}
	email := req.Email

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to check email")
	}

	invite := &models.UserInvite{
		ID:        uuid.NewString(),
		Email:     email,
		Role:      req.Role,
		Token:     uuid.NewString(),
		ExpiresAt: s.now().UTC().Add(s.ttl),
		CreatedAt: s.now().UTC(),
	}
	if actor.ID != "" {
		invitedBy := actor.ID
		invite.InvitedBy = &invitedBy
	}

	raw, expiresAt, err := s.signer.Generate(token.PurposeInvite, invite.ID, invite.Token, s.ttl)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign invite")
	}
	invite.ExpiresAt = expiresAt

	if err := s.invites.Create(ctx, invite); err != nil {
		return nil, appErrors.Internal(err, "failed to create invite")
	}

	if s.audit != nil {
		entry := actor.auditLog(models.AuditActionInviteCreate, "user_invites", invite.ID, nil, map[string]interface{}{
			"email": invite.Email, "role": invite.Role,
		})
		if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
			s.logger.Warn("failed to record invite audit log", zap.Error(err))
		}
	}
	s.logger.Info("user invited", zap.String("invite_id", invite.ID), zap.String("role", string(invite.Role)))

	return &dto.InviteResponse{UserInvite: *invite, InviteToken: raw}, nil
}

// List returns open invites, or every invite when includeUsed is set.
func (s *InviteService) List(ctx context.Context, includeUsed bool) ([]models.UserInvite, error) {
	invites, err := s.invites.List(ctx, includeUsed)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list invites")
	}
	return invites, nil
}

// Delete revokes an invite.
func (s *InviteService) Delete(ctx context.Context, id string) error {
	if err := s.invites.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "invite not found")
		}
		return appErrors.Internal(err, "failed to delete invite")
	}
	return nil
}
