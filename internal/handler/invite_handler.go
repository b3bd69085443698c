package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/volunteer-scheduler-api/internal/dto"
	"github.com/noah-isme/volunteer-scheduler-api/internal/models"
	"github.com/noah-isme/volunteer-scheduler-api/internal/service"
	"github.com/noah-isme/volunteer-scheduler-api/pkg/response"
)

type inviteService interface {
	Create(ctx context.Context, actor service.Actor, req dto.CreateInviteRequest) (*dto.InviteResponse, error)
	List(ctx context.Context, includeUsed bool) ([]models.UserInvite, error)
	Delete(ctx context.Context, id string) error
}

// InviteHandler exposes admin invite management.
type InviteHandler struct {
	service inviteService
}

// NewInviteHandler constructs the handler.
func NewInviteHandler(svc inviteService) *InviteHandler {
	return &InviteHandler{service: svc}
}

// Create godoc
// @Summary Invite a user
// @Tags Invites
// @Accept json
// @Produce json
// @Param payload body dto.CreateInviteRequest true "Invite payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /user-invites [post]
func (h *InviteHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateInviteRequest
	if !bindJSON(c, &req, "invalid invite payload") {
		return
	}

	invite, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, invite)
}

// List godoc
// @Summary List invites
// @Tags Invites
// @Produce json
// @Param include_used query bool false "Include redeemed invites"
// @Success 200 {object} response.Envelope
// @Router /user-invites [get]
func (h *InviteHandler) List(c *gin.Context) {
	includeUsed, _ := strconv.ParseBool(c.DefaultQuery("include_used", "false"))
	invites, err := h.service.List(c.Request.Context(), includeUsed)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, invites)
}

// Delete godoc
// @Summary Revoke an invite
// @Tags Invites
// @Param id path string true "Invite ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /user-invites/{id} [delete]
func (h *InviteHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
