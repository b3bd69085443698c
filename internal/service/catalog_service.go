package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/volunteer-scheduler-api/internal/dto"
	"github.com/noah-isme/volunteer-scheduler-api/internal/models"
	"github.com/noah-isme/volunteer-scheduler-api/internal/repository"
	appErrors "github.com/noah-isme/volunteer-scheduler-api/pkg/errors"
)

type catalogRepository interface {
	List(ctx context.Context, kind models.CatalogKind) ([]models.CatalogItem, error)
	Create(ctx context.Context, kind models.CatalogKind, item *models.CatalogItem) error
	Rename(ctx context.Context, kind models.CatalogKind, id, name string) error
	Delete(ctx context.Context, kind models.CatalogKind, id string) error
	FindByID(ctx context.Context, kind models.CatalogKind, id string) (*models.CatalogItem, error)
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

// CatalogService manages branches, skills and languages.
type CatalogService struct {
	repo      catalogRepository
	cache     cacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCatalogService constructs a CatalogService. cache may be nil.
func NewCatalogService(repo catalogRepository, cache cacheInvalidator, validate *validator.Validate, logger *zap.Logger) *CatalogService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// List returns every item of kind.
func (s *CatalogService) List(ctx context.Context, kind models.CatalogKind) ([]models.CatalogItem, error) {
	items, err := s.repo.List(ctx, kind)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list "+string(kind))
	}
	return items, nil
}

// Create adds an item. Names are unique per catalogue.
func (s *CatalogService) Create(ctx context.Context, kind models.CatalogKind, req dto.CatalogRequest) (*models.CatalogItem, error) {
	name, err := s.name(req)
	if err != nil {
		return nil, err
	}
	item := &models.CatalogItem{Name: name}
	if err := s.repo.Create(ctx, kind, item); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, string(kind)+" name already exists")
		}
		return nil, appErrors.Internal(err, "failed to create "+string(kind))
	}
	return item, nil
}

// Rename changes an item's name. Posting listings embed branch names, so the
// posting cache is dropped.
func (s *CatalogService) Rename(ctx context.Context, kind models.CatalogKind, id string, req dto.CatalogRequest) (*models.CatalogItem, error) {
	name, err := s.name(req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Rename(ctx, kind, id, name); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, string(kind)+" item not found")
		case errors.Is(err, repository.ErrDuplicate):
			return nil, appErrors.Clone(appErrors.ErrConflict, string(kind)+" name already exists")
		}
		return nil, appErrors.Internal(err, "failed to rename "+string(kind))
	}
	s.invalidate(ctx, kind)

	item, err := s.repo.FindByID(ctx, kind, id)
	if err != nil {
		return nil, notFoundOrInternal(err, string(kind)+" item")
	}
	return item, nil
}

// Delete removes an item that nothing references any more.
func (s *CatalogService) Delete(ctx context.Context, kind models.CatalogKind, id string) error {
	if err := s.repo.Delete(ctx, kind, id); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return appErrors.Clone(appErrors.ErrNotFound, string(kind)+" item not found")
		case errors.Is(err, repository.ErrInUse):
			return appErrors.Clone(appErrors.ErrConflict, string(kind)+" item is still in use")
		}
		return appErrors.Internal(err, "failed to delete "+string(kind))
	}
	s.invalidate(ctx, kind)
	return nil
}

func (s *CatalogService) name(req dto.CatalogRequest) (string, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return "", appErrors.Validation(err, "invalid catalogue payload")
	}
	return req.Name, nil
}

func (s *CatalogService) invalidate(ctx context.Context, kind models.CatalogKind) {
	if s.cache == nil || kind != models.CatalogBranches {
		return
	}
	if err := s.cache.Invalidate(ctx, postingCachePattern); err != nil {
		s.logger.Warn("failed to invalidate posting cache", zap.Error(err))
	}
}
