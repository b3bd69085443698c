package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/volunteer-scheduler-api/internal/dto"
	"github.com/noah-isme/volunteer-scheduler-api/internal/models"
	"github.com/noah-isme/volunteer-scheduler-api/internal/service"
	"github.com/noah-isme/volunteer-scheduler-api/pkg/response"
)

type signupService interface {
	Batch(ctx context.Context, actor service.Actor, req dto.SignupBatchRequest) (*dto.SignupBatchResponse, error)
	ListByUser(ctx context.Context, actor service.Actor, userID string) ([]models.SignupDetail, error)
}

// SignupHandler exposes shift signup endpoints.
type SignupHandler struct {
	service signupService
}

// NewSignupHandler constructs the handler.
func NewSignupHandler(svc signupService) *SignupHandler {
	return &SignupHandler{service: svc}
}

// Batch godoc
// @Summary Upsert and delete signups
// @Description Applies every upsert and delete in one transaction or none of them
// @Tags Signups
// @Accept json
// @Produce json
// @Param payload body dto.SignupBatchRequest true "Batch"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /signups/batch [post]
func (h *SignupHandler) Batch(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.SignupBatchRequest
	if !bindJSON(c, &req, "invalid signup batch") {
		return
	}
	res, err := h.service.Batch(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// ListByUser godoc
// @Summary List a user's signups
// @Tags Signups
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Router /users/{id}/signups [get]
func (h *SignupHandler) ListByUser(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	signups, err := h.service.ListByUser(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, signups)
}
