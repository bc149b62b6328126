// Package schedule manages the weekly rules and date exceptions that feed
// the availability evaluator.
package schedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"labreserve/internal/database"
	"labreserve/internal/model"
)

var (
	ErrRuleNotFound      = errors.New("weekly rule not found")
	ErrExceptionNotFound = errors.New("date exception not found")
	ErrFacilityNotFound  = errors.New("facility not found")
)

// Store persists rules and exceptions.
type Store interface {
	CreateRule(ctx context.Context, rule *model.WeeklyRule) error
	GetRule(ctx context.Context, id int64) (*model.WeeklyRule, error)
	ListRules(ctx context.Context, facilityID int64) ([]model.WeeklyRule, error)
	SaveRule(ctx context.Context, rule *model.WeeklyRule) error
	DeleteRule(ctx context.Context, id int64) error

	CreateException(ctx context.Context, exc *model.DateException) error
	GetException(ctx context.Context, id int64) (*model.DateException, error)
	ListExceptions(ctx context.Context, facilityID int64) ([]model.DateException, error)
	SaveException(ctx context.Context, exc *model.DateException) error
	DeleteException(ctx context.Context, id int64) error
}

// FacilityLookup checks that a referenced facility exists.
type FacilityLookup interface {
	GetFacility(ctx context.Context, id int64) (*model.Facility, error)
}

// Service validates schedule changes before storing them.
type Service struct {
	store      Store
	facilities FacilityLookup
	logger     zerolog.Logger
}

func NewService(store Store, facilities FacilityLookup, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{
		store:      store,
		facilities: facilities,
		logger:     logger.With().Str("component", "schedule").Logger(),
	}
}

// CreateRule stores a new weekly rule. An empty interval kind means
// "available".
func (s *Service) CreateRule(ctx context.Context, rule model.WeeklyRule) (*model.WeeklyRule, error) {
	rule.ID = 0
	if rule.IntervalKind == "" {
		rule.IntervalKind = model.KindAvailable
	}
	if err := rule.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalid, err)
	}
	if err := s.checkFacility(ctx, rule.FacilityID); err != nil {
		return nil, err
	}

	if err := s.store.CreateRule(ctx, &rule); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("rule_id", rule.ID).Int("day_of_week", rule.DayOfWeek).Msg("weekly rule created")
	return &rule, nil
}

func (s *Service) GetRule(ctx context.Context, id int64) (*model.WeeklyRule, error) {
	rule, err := s.store.GetRule(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrRuleNotFound
	}
	return rule, err
}

// ListRules lists every rule, or only one facility's own rules when
// facilityID is positive.
func (s *Service) ListRules(ctx context.Context, facilityID int64) ([]model.WeeklyRule, error) {
	return s.store.ListRules(ctx, facilityID)
}

// UpdateRule applies the set fields and re-validates the merged rule.
func (s *Service) UpdateRule(ctx context.Context, id int64, upd model.WeeklyRuleUpdate) (*model.WeeklyRule, error) {
	if upd.Empty() {
		return nil, model.ErrEmptyUpdate
	}
	rule, err := s.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}

	upd.Apply(rule)
	if rule.IntervalKind == "" {
		rule.IntervalKind = model.KindAvailable
	}
	if err := rule.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalid, err)
	}
	if upd.FacilityID != nil {
		if err := s.checkFacility(ctx, rule.FacilityID); err != nil {
			return nil, err
		}
	}

	rule.Facility = nil
	if err := s.store.SaveRule(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *Service) DeleteRule(ctx context.Context, id int64) error {
	err := s.store.DeleteRule(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return ErrRuleNotFound
	}
	if err == nil {
		s.logger.Info().Int64("rule_id", id).Msg("weekly rule deleted")
	}
	return err
}

// CreateException stores a new date exception.
func (s *Service) CreateException(ctx context.Context, exc model.DateException) (*model.DateException, error) {
	exc.ID = 0
	if err := exc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalid, err)
	}
	if err := s.checkFacility(ctx, exc.FacilityID); err != nil {
		return nil, err
	}

	if err := s.store.CreateException(ctx, &exc); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("exception_id", exc.ID).Str("date", exc.Date).Msg("date exception created")
	return &exc, nil
}

func (s *Service) GetException(ctx context.Context, id int64) (*model.DateException, error) {
	exc, err := s.store.GetException(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrExceptionNotFound
	}
	return exc, err
}

// ListExceptions lists exceptions, newest date first.
func (s *Service) ListExceptions(ctx context.Context, facilityID int64) ([]model.DateException, error) {
	return s.store.ListExceptions(ctx, facilityID)
}

// UpdateException applies the set fields and re-validates the merged
// exception, so a change to one bound is checked against the stored other.
func (s *Service) UpdateException(ctx context.Context, id int64, upd model.DateExceptionUpdate) (*model.DateException, error) {
	if upd.Empty() {
		return nil, model.ErrEmptyUpdate
	}
	exc, err := s.GetException(ctx, id)
	if err != nil {
		return nil, err
	}

	upd.Apply(exc)
	if err := exc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalid, err)
	}
	if upd.FacilityID != nil {
		if err := s.checkFacility(ctx, exc.FacilityID); err != nil {
			return nil, err
		}
	}

	exc.Facility = nil
	if err := s.store.SaveException(ctx, exc); err != nil {
		return nil, err
	}
	return exc, nil
}

func (s *Service) DeleteException(ctx context.Context, id int64) error {
	err := s.store.DeleteException(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return ErrExceptionNotFound
	}
	if err == nil {
		s.logger.Info().Int64("exception_id", id).Msg("date exception deleted")
	}
	return err
}

func (s *Service) checkFacility(ctx context.Context, id *int64) error {
	if id == nil {
		return nil
	}
	_, err := s.facilities.GetFacility(ctx, *id)
	if errors.Is(err, database.ErrNotFound) {
		return ErrFacilityNotFound
	}
	if err != nil {
		return fmt.Errorf("get facility: %w", err)
	}
	return nil
}
