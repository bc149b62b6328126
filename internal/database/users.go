package database

import (
	"context"
	"fmt"
	"strings"

	"labreserve/internal/model"
)

// UserFilter narrows ListUsers. Query matches name, email or username.
type UserFilter struct {
	Query string
	Role  model.Role
}

func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	if err := db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("create user: %w", translate(err))
	}
	return nil
}

func (db *DB) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	if err := db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// GetUserByLogin finds a user by email or username.
func (db *DB) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	login = strings.TrimSpace(login)
	var user model.User
	err := db.WithContext(ctx).
		Where("email = ? OR username = ?", model.NormalizeEmail(login), login).
		First(&user).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (db *DB) ListUsers(ctx context.Context, filter UserFilter) ([]model.User, error) {
	q := db.WithContext(ctx).Model(&model.User{})
	if s := strings.TrimSpace(filter.Query); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ? OR LOWER(username) LIKE ?", like, like, like)
	}
	if filter.Role != "" {
		q = q.Where("role = ?", filter.Role)
	}

	var users []model.User
	if err := q.Order("name ASC, id ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// SaveUser writes every column of an existing user.
func (db *DB) SaveUser(ctx context.Context, user *model.User) error {
	if err := db.WithContext(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("save user: %w", translate(err))
	}
	return nil
}

func (db *DB) SetPasswordHash(ctx context.Context, id int64, hash string) error {
	res := db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Update("password_hash", hash)
	if res.Error != nil {
		return fmt.Errorf("set password: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) DeleteUser(ctx context.Context, id int64) error {
	res := db.WithContext(ctx).Delete(&model.User{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete user: %w", translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
