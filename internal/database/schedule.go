package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"labreserve/internal/model"
)

func (db *DB) CreateRule(ctx context.Context, rule *model.WeeklyRule) error {
	if err := db.WithContext(ctx).Omit("Facility").Create(rule).Error; err != nil {
		return fmt.Errorf("create rule: %w", translate(err))
	}
	return nil
}

func (db *DB) GetRule(ctx context.Context, id int64) (*model.WeeklyRule, error) {
	var rule model.WeeklyRule
	if err := db.WithContext(ctx).First(&rule, id).Error; err != nil {
		return nil, translate(err)
	}
	return &rule, nil
}

// ListRules returns rules ordered by facility (general first) and weekday,
// limited to one facility's own rules when facilityID is positive.
func (db *DB) ListRules(ctx context.Context, facilityID int64) ([]model.WeeklyRule, error) {
	q := db.WithContext(ctx)
	if facilityID > 0 {
		q = q.Where("facility_id = ?", facilityID)
	}
	var rules []model.WeeklyRule
	err := q.
		Order("CASE WHEN facility_id IS NULL THEN 0 ELSE 1 END, facility_id, day_of_week, start_time, id").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rules, nil
}

// RulesFor returns the rules that may apply to a facility: its own and the
// general ones.
func (db *DB) RulesFor(ctx context.Context, facilityID int64) ([]model.WeeklyRule, error) {
	return rulesFor(db.WithContext(ctx), facilityID)
}

func rulesFor(tx *gorm.DB, facilityID int64) ([]model.WeeklyRule, error) {
	var rules []model.WeeklyRule
	err := tx.Where("facility_id = ? OR facility_id IS NULL", facilityID).
		Order("day_of_week, start_time, id").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return rules, nil
}

func (db *DB) SaveRule(ctx context.Context, rule *model.WeeklyRule) error {
	if err := db.WithContext(ctx).Omit("Facility").Save(rule).Error; err != nil {
		return fmt.Errorf("save rule: %w", translate(err))
	}
	return nil
}

func (db *DB) DeleteRule(ctx context.Context, id int64) error {
	return db.deleteByID(ctx, &model.WeeklyRule{}, id, "rule")
}

func (db *DB) CreateException(ctx context.Context, exc *model.DateException) error {
	if err := db.WithContext(ctx).Omit("Facility").Create(exc).Error; err != nil {
		return fmt.Errorf("create exception: %w", translate(err))
	}
	return nil
}

func (db *DB) GetException(ctx context.Context, id int64) (*model.DateException, error) {
	var exc model.DateException
	if err := db.WithContext(ctx).First(&exc, id).Error; err != nil {
		return nil, translate(err)
	}
	return &exc, nil
}

// ListExceptions returns exceptions newest date first, limited to one
// facility's own exceptions when facilityID is positive.
func (db *DB) ListExceptions(ctx context.Context, facilityID int64) ([]model.DateException, error) {
	q := db.WithContext(ctx)
	if facilityID > 0 {
		q = q.Where("facility_id = ?", facilityID)
	}
	var exceptions []model.DateException
	if err := q.Order("date DESC, id ASC").Find(&exceptions).Error; err != nil {
		return nil, fmt.Errorf("list exceptions: %w", err)
	}
	return exceptions, nil
}

// ExceptionsFor returns the facility's own and general exceptions dated
// within [fromDate, toDate] (YYYY-MM-DD, inclusive).
func (db *DB) ExceptionsFor(ctx context.Context, facilityID int64, fromDate, toDate string) ([]model.DateException, error) {
	return exceptionsFor(db.WithContext(ctx), facilityID, fromDate, toDate)
}

func exceptionsFor(tx *gorm.DB, facilityID int64, fromDate, toDate string) ([]model.DateException, error) {
	var exceptions []model.DateException
	err := tx.Where("(facility_id = ? OR facility_id IS NULL) AND date >= ? AND date <= ?", facilityID, fromDate, toDate).
		Order("date ASC, id ASC").
		Find(&exceptions).Error
	if err != nil {
		return nil, fmt.Errorf("load exceptions: %w", err)
	}
	return exceptions, nil
}

func (db *DB) SaveException(ctx context.Context, exc *model.DateException) error {
	if err := db.WithContext(ctx).Omit("Facility").Save(exc).Error; err != nil {
		return fmt.Errorf("save exception: %w", translate(err))
	}
	return nil
}

func (db *DB) DeleteException(ctx context.Context, id int64) error {
	return db.deleteByID(ctx, &model.DateException{}, id, "exception")
}
