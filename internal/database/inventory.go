package database

import (
	"context"
	"fmt"

	"labreserve/internal/model"
)

func (db *DB) CreateResource(ctx context.Context, resource *model.Resource) error {
	if err := db.WithContext(ctx).Omit("Facility").Create(resource).Error; err != nil {
		return fmt.Errorf("create resource: %w", translate(err))
	}
	return nil
}

func (db *DB) GetResource(ctx context.Context, id int64) (*model.Resource, error) {
	var resource model.Resource
	if err := db.WithContext(ctx).Preload("Facility").First(&resource, id).Error; err != nil {
		return nil, translate(err)
	}
	return &resource, nil
}

func (db *DB) ListResources(ctx context.Context, filter model.ResourceFilter) ([]model.Resource, error) {
	q := db.WithContext(ctx).Preload("Facility")
	switch {
	case filter.FacilityID > 0:
		q = q.Where("resources.facility_id = ?", filter.FacilityID)
	case filter.CampusID > 0:
		q = q.Where("resources.facility_id IN (?)",
			db.WithContext(ctx).Model(&model.Facility{}).Select("id").Where("campus_id = ?", filter.CampusID))
	}
	if filter.Status != "" {
		q = q.Where("resources.status = ?", filter.Status)
	}
	if filter.Kind != "" {
		q = q.Where("resources.kind = ?", filter.Kind)
	}

	var resources []model.Resource
	if err := q.Order("resources.id DESC").Find(&resources).Error; err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return resources, nil
}

// ListResourceKinds returns the distinct non-blank kinds in alphabetical
// order.
func (db *DB) ListResourceKinds(ctx context.Context) ([]string, error) {
	var kinds []string
	err := db.WithContext(ctx).Model(&model.Resource{}).
		Where("TRIM(kind) <> ''").
		Distinct("kind").Order("kind ASC").Pluck("kind", &kinds).Error
	if err != nil {
		return nil, fmt.Errorf("list resource kinds: %w", err)
	}
	return kinds, nil
}

func (db *DB) SaveResource(ctx context.Context, resource *model.Resource) error {
	if err := db.WithContext(ctx).Omit("Facility").Save(resource).Error; err != nil {
		return fmt.Errorf("save resource: %w", translate(err))
	}
	return nil
}

func (db *DB) DeleteResource(ctx context.Context, id int64) error {
	return db.deleteByID(ctx, &model.Resource{}, id, "resource")
}

func (db *DB) CountResourcesInFacility(ctx context.Context, facilityID int64) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&model.Resource{}).Where("facility_id = ?", facilityID).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count resources: %w", err)
	}
	return n, nil
}

func (db *DB) CountLoansOfResource(ctx context.Context, resourceID int64) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&model.Loan{}).Where("resource_id = ?", resourceID).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count loans: %w", err)
	}
	return n, nil
}

func (db *DB) CreateLoan(ctx context.Context, loan *model.Loan) error {
	if err := db.WithContext(ctx).Omit("Resource", "User").Create(loan).Error; err != nil {
		return fmt.Errorf("create loan: %w", translate(err))
	}
	return nil
}

func (db *DB) GetLoan(ctx context.Context, id int64) (*model.Loan, error) {
	var loan model.Loan
	if err := db.WithContext(ctx).Preload("Resource").First(&loan, id).Error; err != nil {
		return nil, translate(err)
	}
	return &loan, nil
}

// LoanFilter narrows ListLoans. Zero values are ignored.
type LoanFilter struct {
	UserID int64
	Status model.LoanStatus
}

// ListLoans returns matching loans, newest first.
func (db *DB) ListLoans(ctx context.Context, filter LoanFilter) ([]model.Loan, error) {
	q := db.WithContext(ctx).Preload("Resource")
	if filter.UserID > 0 {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	var loans []model.Loan
	if err := q.Order("start_at DESC, id DESC").Find(&loans).Error; err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	return loans, nil
}

// UpdateLoanStatus moves a loan from one status to another. The current
// status is part of the WHERE clause so concurrent decisions cannot both win.
func (db *DB) UpdateLoanStatus(ctx context.Context, id int64, from, to model.LoanStatus, comment string) error {
	updates := map[string]interface{}{"status": to}
	if comment != "" {
		updates["comment"] = comment
	}
	res := db.WithContext(ctx).Model(&model.Loan{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update loan status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
