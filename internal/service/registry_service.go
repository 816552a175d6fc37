package service

import (
	"context"
	"fmt"
	"time"

	"github.com/de3sec/pagesight/internal/logging"
	"github.com/de3sec/pagesight/internal/models"
	"github.com/de3sec/pagesight/internal/repository"
)

// RegistryService manages the tenant website registry. All operations are
// owner-scoped; someone else's website behaves exactly like a missing one.
type RegistryService struct {
	store  repository.WebsiteRepository
	logger *logging.Logger
}

func NewRegistryService(store repository.WebsiteRepository, logger *logging.Logger) *RegistryService {
	return &RegistryService{store: store, logger: logger}
}

// UpdateWebsiteRequest carries the mutable fields. Nil means leave as is.
type UpdateWebsiteRequest struct {
	Name     *string                 `json:"name,omitempty"`
	Domain   *string                 `json:"domain,omitempty"`
	Active   *bool                   `json:"isActive,omitempty"`
	Settings *models.WebsiteSettings `json:"settings,omitempty"`
}

// CreateWebsite registers a new tracked site with fresh identifiers and
// default settings.
func (s *RegistryService) CreateWebsite(ctx context.Context, ownerID, name, domain string) (*models.Website, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name", ErrMissingField)
	}
	if domain == "" {
		return nil, fmt.Errorf("%w: domain", ErrMissingField)
	}

	website := models.NewWebsite(ownerID, name, domain)
	if err := s.store.CreateWebsite(ctx, website); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "website registered",
		logging.WebsiteID(website.ID), "domain", domain)
	return website, nil
}

func (s *RegistryService) ListWebsites(ctx context.Context, ownerID string) ([]*models.Website, error) {
	return s.store.ListWebsitesByOwner(ctx, ownerID)
}

func (s *RegistryService) GetWebsite(ctx context.Context, websiteID, ownerID string) (*models.Website, error) {
	website, err := s.store.GetWebsiteByID(ctx, websiteID)
	if err != nil {
		return nil, err
	}
	if website.OwnerID != ownerID {
		return nil, repository.ErrWebsiteNotFound
	}
	return website, nil
}

// UpdateWebsite applies a partial update. The tracking id never changes;
// deactivation (Active=false) is how collection is stopped, since events
// keep referencing the website row.
func (s *RegistryService) UpdateWebsite(ctx context.Context, websiteID, ownerID string, req *UpdateWebsiteRequest) (*models.Website, error) {
	website, err := s.GetWebsite(ctx, websiteID, ownerID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		if *req.Name == "" {
			return nil, fmt.Errorf("%w: name", ErrMissingField)
		}
		website.Name = *req.Name
	}
	if req.Domain != nil {
		if *req.Domain == "" {
			return nil, fmt.Errorf("%w: domain", ErrMissingField)
		}
		website.Domain = *req.Domain
	}
	if req.Active != nil {
		website.Active = *req.Active
	}
	if req.Settings != nil {
		settings := *req.Settings
		if settings.SamplingRate < 0 {
			settings.SamplingRate = 0
		}
		if settings.SamplingRate > 1 {
			settings.SamplingRate = 1
		}
		website.Settings = settings
	}
	website.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateWebsite(ctx, website); err != nil {
		return nil, err
	}
	return website, nil
}
