package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"labreserve/internal/database"
	"labreserve/internal/model"
)

// ListResources returns resources matching filter, newest first. A facility
// filter takes precedence over a campus filter.
func (s *Service) ListResources(ctx context.Context, filter model.ResourceFilter) ([]model.Resource, error) {
	filter.Status = strings.TrimSpace(filter.Status)
	filter.Kind = strings.TrimSpace(filter.Kind)
	return s.store.ListResources(ctx, filter)
}

// ResourceKinds returns the distinct kinds in use, sorted.
func (s *Service) ResourceKinds(ctx context.Context) ([]string, error) {
	return s.store.ListResourceKinds(ctx)
}

func (s *Service) GetResource(ctx context.Context, id int64) (*model.Resource, error) {
	resource, err := s.store.GetResource(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrResourceNotFound
	}
	return resource, err
}

func (s *Service) CreateResource(ctx context.Context, resource model.Resource) (*model.Resource, error) {
	resource.ID = 0
	resource.Facility = nil
	model.ResourceUpdate{Kind: &resource.Kind, Status: &resource.Status}.Apply(&resource)
	if resource.Kind == "" || resource.Status == "" {
		return nil, fmt.Errorf("%w: kind and status are required", model.ErrInvalid)
	}
	if _, err := s.GetFacility(ctx, resource.FacilityID); err != nil {
		return nil, err
	}

	if err := s.store.CreateResource(ctx, &resource); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("resource_id", resource.ID).Str("kind", resource.Kind).Msg("resource created")
	return s.GetResource(ctx, resource.ID)
}

func (s *Service) UpdateResource(ctx context.Context, id int64, upd model.ResourceUpdate) (*model.Resource, error) {
	if upd.Empty() {
		return nil, model.ErrEmptyUpdate
	}
	resource, err := s.GetResource(ctx, id)
	if err != nil {
		return nil, err
	}
	upd.Apply(resource)
	if resource.Kind == "" || resource.Status == "" {
		return nil, fmt.Errorf("%w: kind and status are required", model.ErrInvalid)
	}
	if upd.FacilityID != nil {
		if _, err := s.GetFacility(ctx, resource.FacilityID); err != nil {
			return nil, err
		}
	}

	resource.Facility = nil
	if err := s.store.SaveResource(ctx, resource); err != nil {
		return nil, err
	}
	return s.GetResource(ctx, id)
}

// DeleteResource removes a resource that no loan references.
func (s *Service) DeleteResource(ctx context.Context, id int64) error {
	if _, err := s.GetResource(ctx, id); err != nil {
		return err
	}
	n, err := s.store.CountLoansOfResource(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %d loans", ErrResourceInUse, n)
	}
	if err := s.store.DeleteResource(ctx, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrResourceNotFound
		}
		return err
	}
	s.logger.Info().Int64("resource_id", id).Msg("resource deleted")
	return nil
}
