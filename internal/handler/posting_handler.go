package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/volunteer-scheduler-api/internal/dto"
	"github.com/noah-isme/volunteer-scheduler-api/internal/models"
	"github.com/noah-isme/volunteer-scheduler-api/internal/scheduling"
	"github.com/noah-isme/volunteer-scheduler-api/internal/service"
	"github.com/noah-isme/volunteer-scheduler-api/pkg/response"
)

type postingService interface {
	Create(ctx context.Context, actor service.Actor, req dto.CreatePostingRequest) (*dto.CreatePostingResponse, error)
	Update(ctx context.Context, actor service.Actor, id string, req dto.PostingRequest) (*dto.PostingResponse, error)
	Publish(ctx context.Context, actor service.Actor, id string) (*dto.PostingResponse, error)
	Delete(ctx context.Context, actor service.Actor, id string) error
	Get(ctx context.Context, actor service.Actor, id string) (*dto.PostingResponse, error)
	List(ctx context.Context, actor service.Actor, query dto.PostingListQuery) ([]dto.PostingResponse, *models.Pagination, error)
	ListShifts(ctx context.Context, actor service.Actor, id string) ([]models.Shift, error)
	PreviewShifts(req dto.ShiftPreviewRequest) (*dto.ShiftPreviewResponse, error)
	ReviewDraft(ctx context.Context, req dto.DraftReviewRequest) (*scheduling.DraftReview, error)
}

// PostingHandler exposes posting and shift endpoints.
type PostingHandler struct {
	service postingService
}

// NewPostingHandler constructs the handler.
func NewPostingHandler(svc postingService) *PostingHandler {
	return &PostingHandler{service: svc}
}

// List godoc
// @Summary List postings
// @Description Volunteers only see published postings
// @Tags Postings
// @Produce json
// @Param branch_id query string false "Branch"
// @Param status query string false "DRAFT or PUBLISHED"
// @Param display_status query string false "DRAFT, UNSCHEDULED, SCHEDULED or PAST"
// @Param search query string false "Title search"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /postings [get]
func (h *PostingHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var query dto.PostingListQuery
	if !bindQuery(c, &query, "invalid posting query") {
		return
	}

	postings, pagination, err := h.service.List(c.Request.Context(), actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, postings, pagination, withMeta(c))
}

// Get godoc
// @Summary Get posting
// @Tags Postings
// @Produce json
// @Param id path string true "Posting ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /postings/{id} [get]
func (h *PostingHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	posting, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, posting)
}

// Create godoc
// @Summary Create posting
// @Description Creates a draft, or a published posting with its shifts generated
// @Tags Postings
// @Accept json
// @Produce json
// @Param payload body dto.CreatePostingRequest true "Posting"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /postings [post]
func (h *PostingHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CreatePostingRequest
	if !bindJSON(c, &req, "invalid posting payload") {
		return
	}
	res, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// Update godoc
// @Summary Update posting
// @Description Editing a published schedule regenerates its shifts
// @Tags Postings
// @Accept json
// @Produce json
// @Param id path string true "Posting ID"
// @Param payload body dto.PostingRequest true "Posting"
// @Success 200 {object} response.Envelope
// @Router /postings/{id} [put]
func (h *PostingHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.PostingRequest
	if !bindJSON(c, &req, "invalid posting payload") {
		return
	}
	res, err := h.service.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// Publish godoc
// @Summary Publish a draft posting
// @Tags Postings
// @Produce json
// @Param id path string true "Posting ID"
// @Success 200 {object} response.Envelope
// @Router /postings/{id}/publish [post]
func (h *PostingHandler) Publish(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	res, err := h.service.Publish(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// Delete godoc
// @Summary Delete posting
// @Tags Postings
// @Param id path string true "Posting ID"
// @Success 204 {object} response.Envelope
// @Router /postings/{id} [delete]
func (h *PostingHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ReviewDraft godoc
// @Summary Review a posting draft
// @Description Validates the wizard steps and summarises the posting without saving it
// @Tags Postings
// @Accept json
// @Produce json
// @Param payload body dto.DraftReviewRequest true "Draft"
// @Success 200 {object} response.Envelope
// @Router /postings/drafts/review [post]
func (h *PostingHandler) ReviewDraft(c *gin.Context) {
	var req dto.DraftReviewRequest
	if !bindJSON(c, &req, "invalid draft payload") {
		return
	}
	review, err := h.service.ReviewDraft(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, review)
}

// Shifts godoc
// @Summary List a posting's shifts
// @Tags Shifts
// @Produce json
// @Param id path string true "Posting ID"
// @Success 200 {object} response.Envelope
// @Router /postings/{id}/shifts [get]
func (h *PostingHandler) Shifts(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	shifts, err := h.service.ListShifts(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, shifts)
}

// PreviewShifts godoc
// @Summary Preview recurrence expansion
// @Tags Shifts
// @Accept json
// @Produce json
// @Param payload body dto.ShiftPreviewRequest true "Schedule"
// @Success 200 {object} response.Envelope
// @Router /shifts/preview [post]
func (h *PostingHandler) PreviewShifts(c *gin.Context) {
	var req dto.ShiftPreviewRequest
	if !bindJSON(c, &req, "invalid schedule payload") {
		return
	}
	preview, err := h.service.PreviewShifts(req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, preview)
}
