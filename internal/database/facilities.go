package database

import (
	"context"
	"fmt"

	"labreserve/internal/model"
)

func (db *DB) CreateCampus(ctx context.Context, campus *model.Campus) error {
	if err := db.WithContext(ctx).Create(campus).Error; err != nil {
		return fmt.Errorf("create campus: %w", translate(err))
	}
	return nil
}

func (db *DB) GetCampus(ctx context.Context, id int64) (*model.Campus, error) {
	var campus model.Campus
	if err := db.WithContext(ctx).First(&campus, id).Error; err != nil {
		return nil, translate(err)
	}
	return &campus, nil
}

func (db *DB) ListCampuses(ctx context.Context) ([]model.Campus, error) {
	var campuses []model.Campus
	if err := db.WithContext(ctx).Order("name ASC, id ASC").Find(&campuses).Error; err != nil {
		return nil, fmt.Errorf("list campuses: %w", err)
	}
	return campuses, nil
}

func (db *DB) SaveCampus(ctx context.Context, campus *model.Campus) error {
	if err := db.WithContext(ctx).Save(campus).Error; err != nil {
		return fmt.Errorf("save campus: %w", translate(err))
	}
	return nil
}

func (db *DB) DeleteCampus(ctx context.Context, id int64) error {
	return db.deleteByID(ctx, &model.Campus{}, id, "campus")
}

func (db *DB) CountFacilitiesInCampus(ctx context.Context, campusID int64) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&model.Facility{}).Where("campus_id = ?", campusID).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count facilities: %w", err)
	}
	return n, nil
}

func (db *DB) CreateFacility(ctx context.Context, facility *model.Facility) error {
	if err := db.WithContext(ctx).Omit("Campus").Create(facility).Error; err != nil {
		return fmt.Errorf("create facility: %w", translate(err))
	}
	return nil
}

func (db *DB) GetFacility(ctx context.Context, id int64) (*model.Facility, error) {
	var facility model.Facility
	if err := db.WithContext(ctx).Preload("Campus").First(&facility, id).Error; err != nil {
		return nil, translate(err)
	}
	return &facility, nil
}

// ListFacilities returns every facility, or those of one campus when
// campusID is positive.
func (db *DB) ListFacilities(ctx context.Context, campusID int64) ([]model.Facility, error) {
	q := db.WithContext(ctx).Preload("Campus")
	if campusID > 0 {
		q = q.Where("campus_id = ?", campusID)
	}
	var facilities []model.Facility
	if err := q.Order("name ASC, id ASC").Find(&facilities).Error; err != nil {
		return nil, fmt.Errorf("list facilities: %w", err)
	}
	return facilities, nil
}

func (db *DB) SaveFacility(ctx context.Context, facility *model.Facility) error {
	if err := db.WithContext(ctx).Omit("Campus").Save(facility).Error; err != nil {
		return fmt.Errorf("save facility: %w", translate(err))
	}
	return nil
}

func (db *DB) DeleteFacility(ctx context.Context, id int64) error {
	return db.deleteByID(ctx, &model.Facility{}, id, "facility")
}

func (db *DB) deleteByID(ctx context.Context, value interface{}, id int64, what string) error {
	res := db.WithContext(ctx).Delete(value, id)
	if res.Error != nil {
		return fmt.Errorf("delete %s: %w", what, translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
