package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/volunteer-scheduler-api/internal/dto"
	"github.com/noah-isme/volunteer-scheduler-api/internal/service"
	"github.com/noah-isme/volunteer-scheduler-api/pkg/response"
)

type reviewService interface {
	Get(ctx context.Context, actor service.Actor, postingID string) (*dto.ReviewResponse, error)
	Confirm(ctx context.Context, actor service.Actor, postingID string, req dto.ReviewConfirmRequest) (*dto.ReviewConfirmResponse, error)
	Publish(ctx context.Context, actor service.Actor, postingID string) (*dto.PublishScheduleResponse, error)
}

type rosterExporter interface {
	Roster(ctx context.Context, actor service.Actor, postingID string, query dto.ExportQuery) (*service.ExportResult, error)
}

// ReviewHandler exposes the schedule review table, its actions and the roster download.
type ReviewHandler struct {
	service  reviewService
	exporter rosterExporter
}

// NewReviewHandler constructs the handler.
func NewReviewHandler(svc reviewService, exporter rosterExporter) *ReviewHandler {
	return &ReviewHandler{service: svc, exporter: exporter}
}

// Get godoc
// @Summary Schedule review table
// @Description Signups grouped by day and shift; read-only unless an admin views an open posting
// @Tags Review
// @Produce json
// @Param id path string true "Posting ID"
// @Success 200 {object} response.Envelope
// @Router /postings/{id}/review [get]
func (h *ReviewHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	review, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, review)
}

// Confirm godoc
// @Summary Confirm or unconfirm signups
// @Tags Review
// @Accept json
// @Produce json
// @Param id path string true "Posting ID"
// @Param payload body dto.ReviewConfirmRequest true "Selection"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /postings/{id}/review/confirm [post]
func (h *ReviewHandler) Confirm(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.ReviewConfirmRequest
	if !bindJSON(c, &req, "invalid confirm payload") {
		return
	}
	res, err := h.service.Confirm(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// Publish godoc
// @Summary Publish the schedule
// @Description Confirmed signups become published and pending ones are canceled
// @Tags Review
// @Produce json
// @Param id path string true "Posting ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /postings/{id}/review/publish [post]
func (h *ReviewHandler) Publish(c *gin.Context) {
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

// Export godoc
// @Summary Download the roster
// @Tags Review
// @Produce octet-stream
// @Param id path string true "Posting ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Router /postings/{id}/review/export [get]
func (h *ReviewHandler) Export(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var query dto.ExportQuery
	if !bindQuery(c, &query, "invalid export query") {
		return
	}
	result, err := h.exporter.Roster(c.Request.Context(), actor, c.Param("id"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Data)
}
