package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/volunteer-scheduler-api/internal/dto"
	"github.com/noah-isme/volunteer-scheduler-api/internal/models"
	"github.com/noah-isme/volunteer-scheduler-api/pkg/response"
)

type catalogService interface {
	List(ctx context.Context, kind models.CatalogKind) ([]models.CatalogItem, error)
	Create(ctx context.Context, kind models.CatalogKind, req dto.CatalogRequest) (*models.CatalogItem, error)
	Rename(ctx context.Context, kind models.CatalogKind, id string, req dto.CatalogRequest) (*models.CatalogItem, error)
	Delete(ctx context.Context, kind models.CatalogKind, id string) error
}

// CatalogHandler serves one catalogue (branches, skills or languages).
type CatalogHandler struct {
	service catalogService
	kind    models.CatalogKind
}

// NewCatalogHandler constructs a handler bound to kind.
func NewCatalogHandler(svc catalogService, kind models.CatalogKind) *CatalogHandler {
	return &CatalogHandler{service: svc, kind: kind}
}

// List godoc
// @Summary List catalogue items
// @Tags Catalogue
// @Produce json
// @Param kind path string true "branches, skills or languages"
// @Success 200 {object} response.Envelope
// @Router /{kind} [get]
func (h *CatalogHandler) List(c *gin.Context) {
	items, err := h.service.List(c.Request.Context(), h.kind)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// Create godoc
// @Summary Add a catalogue item
// @Tags Catalogue
// @Accept json
// @Produce json
// @Param kind path string true "branches, skills or languages"
// @Param payload body dto.CatalogRequest true "Item"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /{kind} [post]
func (h *CatalogHandler) Create(c *gin.Context) {
	var req dto.CatalogRequest
	if !bindJSON(c, &req, "invalid catalogue payload") {
		return
	}
	item, err := h.service.Create(c.Request.Context(), h.kind, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Rename godoc
// @Summary Rename a catalogue item
// @Tags Catalogue
// @Accept json
// @Produce json
// @Param kind path string true "branches, skills or languages"
// @Param id path string true "Item ID"
// @Param payload body dto.CatalogRequest true "Item"
// @Success 200 {object} response.Envelope
// @Router /{kind}/{id} [put]
func (h *CatalogHandler) Rename(c *gin.Context) {
	var req dto.CatalogRequest
	if !bindJSON(c, &req, "invalid catalogue payload") {
		return
	}
	item, err := h.service.Rename(c.Request.Context(), h.kind, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, item)
}

// Delete godoc
// @Summary Delete a catalogue item
// @Tags Catalogue
// @Param kind path string true "branches, skills or languages"
// @Param id path string true "Item ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /{kind}/{id} [delete]
func (h *CatalogHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), h.kind, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
