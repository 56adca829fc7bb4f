package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Ananth-NQI/convo-followups/internal/followup"
	"github.com/Ananth-NQI/convo-followups/internal/models"
	"github.com/Ananth-NQI/convo-followups/internal/storage"
)

// CatalogService manages follow-up categories and their templates
type CatalogService struct {
	store storage.Store
}

// NewCatalogService creates a new catalog service
func NewCatalogService(store storage.Store) *CatalogService {
	return &CatalogService{store: store}
}

// CreateCategory validates and stores a new category
func (s *CatalogService) CreateCategory(ctx context.Context, in models.CategoryInput) (*models.Category, error) {
	if err := followup.ValidateCategory(in); err != nil {
		return nil, err
	}
	return s.store.CreateCategory(ctx, &models.Category{
		OwnerID: strings.TrimSpace(in.OwnerID),
		Name:    strings.TrimSpace(in.Name),
	})
}

// GetCategory returns a category
func (s *CatalogService) GetCategory(ctx context.Context, id uint) (*models.Category, error) {
	return s.store.GetCategory(ctx, id)
}

// ListCategories lists categories, optionally for one owner
func (s *CatalogService) ListCategories(ctx context.Context, ownerID string) ([]*models.Category, error) {
	return s.store.ListCategories(ctx, ownerID)
}

// DeleteCategory removes a category with its templates. Conversations
// attached to it are detached.
func (s *CatalogService) DeleteCategory(ctx context.Context, id uint) error {
	return s.store.DeleteCategory(ctx, id)
}

// CreateTemplate adds a template to an existing category
func (s *CatalogService) CreateTemplate(ctx context.Context, categoryID uint, in models.TemplateInput) (*models.Template, error) {
	if err := followup.ValidateTemplate(in); err != nil {
		return nil, err
	}
	t, err := s.store.CreateTemplate(ctx, &models.Template{
		CategoryID:   categoryID,
		Name:         strings.TrimSpace(in.Name),
		Message:      in.Message,
		DelayMinutes: in.DelayMinutes,
	})
	if errors.Is(err, followup.ErrNotFound) {
		return nil, &followup.ValidationError{Field: "category_id", Reason: fmt.Sprintf("category %d does not exist", categoryID)}
	}
	if err != nil {
		return nil, err
	}
	// A new template is unsent in every epoch.
	if err := s.store.ResetCompletedForCategory(ctx, categoryID); err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateTemplate rewrites a template's name, message and delay
func (s *CatalogService) UpdateTemplate(ctx context.Context, id uint, in models.TemplateInput) (*models.Template, error) {
	if err := followup.ValidateTemplate(in); err != nil {
		return nil, err
	}
	t, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Name = strings.TrimSpace(in.Name)
	t.Message = in.Message
	t.DelayMinutes = in.DelayMinutes
	if err := s.store.UpdateTemplate(ctx, t); err != nil {
		return nil, err
	}
	return s.store.GetTemplate(ctx, id)
}

// DeleteTemplate removes a template. Its ledger rows stay for audit.
func (s *CatalogService) DeleteTemplate(ctx context.Context, id uint) error {
	return s.store.DeleteTemplate(ctx, id)
}

// ListTemplates returns a category's templates in cadence order
func (s *CatalogService) ListTemplates(ctx context.Context, categoryID uint) ([]models.Template, error) {
	if _, err := s.store.GetCategory(ctx, categoryID); err != nil {
		return nil, err
	}
	return s.store.ListTemplates(ctx, categoryID)
}
