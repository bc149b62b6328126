// Package inventory manages campuses, facilities, resources and loans.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"labreserve/internal/database"
	"labreserve/internal/events"
	"labreserve/internal/model"
	"labreserve/internal/svcclient"
)

var (
	ErrCampusNotFound    = errors.New("campus not found")
	ErrFacilityNotFound  = errors.New("facility not found")
	ErrResourceNotFound  = errors.New("resource not found")
	ErrLoanNotFound      = errors.New("loan not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrForbidden         = errors.New("not allowed to act for another user")
	ErrCampusInUse       = errors.New("campus still has facilities")
	ErrFacilityInUse     = errors.New("facility still has resources")
	ErrFacilityBooked    = errors.New("facility still has active bookings")
	ErrResourceInUse     = errors.New("resource still has loans")
	ErrInvalidTransition = errors.New("loan status transition not allowed")
	ErrPeerUnavailable   = errors.New("dependent service unavailable")
	ErrNameRequired      = fmt.Errorf("%w: name is required", model.ErrInvalid)
	ErrInvalidCapacity   = fmt.Errorf("%w: capacity must not be negative", model.ErrInvalid)
	ErrInvalidLoanWindow = fmt.Errorf("%w: start must be before end", model.ErrInvalid)
	ErrInvalidQuantity   = fmt.Errorf("%w: quantity must be at least 1", model.ErrInvalid)
)

// Store persists the inventory.
type Store interface {
	CreateCampus(ctx context.Context, campus *model.Campus) error
	GetCampus(ctx context.Context, id int64) (*model.Campus, error)
	ListCampuses(ctx context.Context) ([]model.Campus, error)
	SaveCampus(ctx context.Context, campus *model.Campus) error
	DeleteCampus(ctx context.Context, id int64) error
	CountFacilitiesInCampus(ctx context.Context, campusID int64) (int64, error)

	CreateFacility(ctx context.Context, facility *model.Facility) error
	GetFacility(ctx context.Context, id int64) (*model.Facility, error)
	ListFacilities(ctx context.Context, campusID int64) ([]model.Facility, error)
	SaveFacility(ctx context.Context, facility *model.Facility) error
	DeleteFacility(ctx context.Context, id int64) error

	CreateResource(ctx context.Context, resource *model.Resource) error
	GetResource(ctx context.Context, id int64) (*model.Resource, error)
	ListResources(ctx context.Context, filter model.ResourceFilter) ([]model.Resource, error)
	ListResourceKinds(ctx context.Context) ([]string, error)
	SaveResource(ctx context.Context, resource *model.Resource) error
	DeleteResource(ctx context.Context, id int64) error
	CountResourcesInFacility(ctx context.Context, facilityID int64) (int64, error)
	CountLoansOfResource(ctx context.Context, resourceID int64) (int64, error)

	CreateLoan(ctx context.Context, loan *model.Loan) error
	GetLoan(ctx context.Context, id int64) (*model.Loan, error)
	ListLoans(ctx context.Context, filter database.LoanFilter) ([]model.Loan, error)
	UpdateLoanStatus(ctx context.Context, id int64, from, to model.LoanStatus, comment string) error
}

// Bookings reports how many active bookings hold a facility.
type Bookings interface {
	ActiveBookings(ctx context.Context, facilityID int64) (int64, error)
}

// Identity resolves loan requesters.
type Identity interface {
	GetUser(ctx context.Context, id int64) (*svcclient.UserInfo, error)
}

// Publisher receives inventory events.
type Publisher interface {
	Publish(ctx context.Context, event events.Event)
}

// Service provides inventory operations.
type Service struct {
	store    Store
	bookings Bookings
	identity Identity
	events   Publisher
	logger   zerolog.Logger
}

func NewService(store Store, bookings Bookings, identity Identity, publisher Publisher, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{
		store:    store,
		bookings: bookings,
		identity: identity,
		events:   publisher,
		logger:   logger.With().Str("component", "inventory").Logger(),
	}
}

func (s *Service) ListCampuses(ctx context.Context) ([]model.Campus, error) {
	return s.store.ListCampuses(ctx)
}

func (s *Service) GetCampus(ctx context.Context, id int64) (*model.Campus, error) {
	campus, err := s.store.GetCampus(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrCampusNotFound
	}
	return campus, err
}

func (s *Service) CreateCampus(ctx context.Context, campus model.Campus) (*model.Campus, error) {
	campus.ID = 0
	model.CampusUpdate{Name: &campus.Name, Address: &campus.Address}.Apply(&campus)
	if campus.Name == "" {
		return nil, ErrNameRequired
	}
	if err := s.store.CreateCampus(ctx, &campus); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("campus_id", campus.ID).Msg("campus created")
	return &campus, nil
}

func (s *Service) UpdateCampus(ctx context.Context, id int64, upd model.CampusUpdate) (*model.Campus, error) {
	if upd.Empty() {
		return nil, model.ErrEmptyUpdate
	}
	campus, err := s.GetCampus(ctx, id)
	if err != nil {
		return nil, err
	}
	upd.Apply(campus)
	if campus.Name == "" {
		return nil, ErrNameRequired
	}
	if err := s.store.SaveCampus(ctx, campus); err != nil {
		return nil, err
	}
	return campus, nil
}

// DeleteCampus removes a campus that no facility references.
func (s *Service) DeleteCampus(ctx context.Context, id int64) error {
	if _, err := s.GetCampus(ctx, id); err != nil {
		return err
	}
	n, err := s.store.CountFacilitiesInCampus(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %d facilities", ErrCampusInUse, n)
	}
	if err := s.store.DeleteCampus(ctx, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrCampusNotFound
		}
		return err
	}
	s.logger.Info().Int64("campus_id", id).Msg("campus deleted")
	return nil
}

// ListFacilities lists every facility, or one campus's when campusID > 0.
func (s *Service) ListFacilities(ctx context.Context, campusID int64) ([]model.Facility, error) {
	return s.store.ListFacilities(ctx, campusID)
}

func (s *Service) GetFacility(ctx context.Context, id int64) (*model.Facility, error) {
	facility, err := s.store.GetFacility(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrFacilityNotFound
	}
	return facility, err
}

func (s *Service) CreateFacility(ctx context.Context, facility model.Facility) (*model.Facility, error) {
	facility.ID = 0
	facility.Campus = nil
	model.FacilityUpdate{Name: &facility.Name, Location: &facility.Location}.Apply(&facility)
	if err := s.checkFacility(ctx, &facility); err != nil {
		return nil, err
	}

	if err := s.store.CreateFacility(ctx, &facility); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("facility_id", facility.ID).Str("name", facility.Name).Msg("facility created")
	return s.GetFacility(ctx, facility.ID)
}

func (s *Service) UpdateFacility(ctx context.Context, id int64, upd model.FacilityUpdate) (*model.Facility, error) {
	if upd.Empty() {
		return nil, model.ErrEmptyUpdate
	}
	facility, err := s.GetFacility(ctx, id)
	if err != nil {
		return nil, err
	}
	upd.Apply(facility)
	if err := s.checkFacility(ctx, facility); err != nil {
		return nil, err
	}

	facility.Campus = nil
	if err := s.store.SaveFacility(ctx, facility); err != nil {
		return nil, err
	}
	s.publish(ctx, events.Event{Type: events.FacilityChanged, FacilityID: id})
	return s.GetFacility(ctx, id)
}

// DeleteFacility refuses while resources exist or while the reservation
// service reports active bookings. An unreachable reservation service
// blocks the delete.
func (s *Service) DeleteFacility(ctx context.Context, id int64) error {
	if _, err := s.GetFacility(ctx, id); err != nil {
		return err
	}

	n, err := s.store.CountResourcesInFacility(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %d resources", ErrFacilityInUse, n)
	}

	active, err := s.bookings.ActiveBookings(ctx, id)
	if err != nil {
		s.logger.Warn().Err(err).Int64("facility_id", id).Msg("active booking count failed")
		return fmt.Errorf("%w: %v", ErrPeerUnavailable, err)
	}
	if active > 0 {
		return fmt.Errorf("%w: %d bookings", ErrFacilityBooked, active)
	}

	if err := s.store.DeleteFacility(ctx, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrFacilityNotFound
		}
		return err
	}
	s.logger.Info().Int64("facility_id", id).Msg("facility deleted")
	s.publish(ctx, events.Event{Type: events.FacilityDeleted, FacilityID: id})
	return nil
}

func (s *Service) checkFacility(ctx context.Context, facility *model.Facility) error {
	if facility.Name == "" {
		return ErrNameRequired
	}
	if facility.Capacity < 0 {
		return ErrInvalidCapacity
	}
	if facility.CampusID != nil {
		if _, err := s.GetCampus(ctx, *facility.CampusID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.events != nil {
		s.events.Publish(ctx, event)
	}
}
