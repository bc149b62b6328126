// Package users handles accounts, credentials and tokens.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"labreserve/internal/auth"
	"labreserve/internal/database"
	"labreserve/internal/model"
)

var (
	ErrInvalidCredentials = errors.New("incorrect username or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrWrongPassword      = errors.New("current password is incorrect")
	ErrForbidden          = errors.New("operation not allowed on own account")
	ErrRoleNotAllowed     = fmt.Errorf("%w: self-registration allows teacher or student only", model.ErrInvalid)
)

// AdminUsername is the account created by SeedAdmin.
const AdminUsername = "admin"

// Store persists users.
type Store interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, id int64) (*model.User, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	ListUsers(ctx context.Context, filter database.UserFilter) ([]model.User, error)
	SaveUser(ctx context.Context, user *model.User) error
	SetPasswordHash(ctx context.Context, id int64, hash string) error
	DeleteUser(ctx context.Context, id int64) error
}

// Session is the result of a successful login.
type Session struct {
	AccessToken   string      `json:"access_token"`
	TokenType     string      `json:"token_type"`
	User          *model.User `json:"user"`
	AllowedRoutes []string    `json:"allowed_routes"`
}

// Registration is a self-service sign-up.
type Registration struct {
	Name     string
	Email    string
	Username string
	Password string
	Role     model.Role
}

// Service provides account operations.
type Service struct {
	store      Store
	tokens     *auth.TokenManager
	bcryptCost int
	logger     zerolog.Logger
}

func NewService(store Store, tokens *auth.TokenManager, bcryptCost int, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{
		store:      store,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		logger:     logger.With().Str("component", "users").Logger(),
	}
}

// Login checks credentials; login is a username or an email address.
func (s *Service) Login(ctx context.Context, login, password string) (*Session, error) {
	user, err := s.store.GetUserByLogin(ctx, login)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		s.logger.Info().Str("login", login).Msg("failed login")
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &Session{
		AccessToken:   token,
		TokenType:     "bearer",
		User:          user,
		AllowedRoutes: auth.AllowedRoutes(user.Role),
	}, nil
}

// Register creates a teacher or student account. An empty role means
// student.
func (s *Service) Register(ctx context.Context, reg Registration) (*model.User, error) {
	if reg.Role == "" {
		reg.Role = model.RoleStudent
	}
	if reg.Role != model.RoleTeacher && reg.Role != model.RoleStudent {
		return nil, ErrRoleNotAllowed
	}
	user, err := s.create(ctx, reg)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("user_id", user.ID).Str("role", string(user.Role)).Msg("user registered")
	return user, nil
}

func (s *Service) create(ctx context.Context, reg Registration) (*model.User, error) {
	hash, err := auth.HashPassword(reg.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		Name:         strings.TrimSpace(reg.Name),
		Email:        model.NormalizeEmail(reg.Email),
		Username:     strings.TrimSpace(reg.Username),
		PasswordHash: hash,
		Role:         reg.Role,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.store.GetUser(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// Exists backs the token middleware's deleted-user check.
func (s *Service) Exists(ctx context.Context, id int64) (bool, error) {
	_, err := s.store.GetUser(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// UpdateProfile lets users change their own name, username and email.
func (s *Service) UpdateProfile(ctx context.Context, id int64, upd model.UserUpdate) (*model.User, error) {
	upd.Role = nil
	return s.update(ctx, id, upd)
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, id int64, oldPassword, newPassword string) error {
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(user.PasswordHash, oldPassword) {
		return ErrWrongPassword
	}
	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return err
	}
	if err := s.store.SetPasswordHash(ctx, id, hash); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	s.logger.Info().Int64("user_id", id).Msg("password changed")
	return nil
}

func (s *Service) List(ctx context.Context, filter database.UserFilter) ([]model.User, error) {
	return s.store.ListUsers(ctx, filter)
}

// AdminUpdate edits any user. Admins cannot revoke their own admin role.
func (s *Service) AdminUpdate(ctx context.Context, callerID, id int64, upd model.UserUpdate) (*model.User, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if id == callerID && upd.Role != nil && *upd.Role != model.RoleAdmin {
		return nil, ErrForbidden
	}
	return s.update(ctx, id, upd)
}

func (s *Service) update(ctx context.Context, id int64, upd model.UserUpdate) (*model.User, error) {
	if upd.Empty() {
		return nil, model.ErrEmptyUpdate
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	upd.Apply(user)
	if err := s.store.SaveUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Delete removes a user. Users that own bookings or loans stay, and the
// store reports database.ErrReferenced.
func (s *Service) Delete(ctx context.Context, callerID, id int64) error {
	if id == callerID {
		return ErrForbidden
	}
	err := s.store.DeleteUser(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}
	s.logger.Info().Int64("user_id", id).Int64("by", callerID).Msg("user deleted")
	return nil
}

// SeedAdmin creates the admin account when it does not exist yet.
func (s *Service) SeedAdmin(ctx context.Context, password string) (bool, error) {
	_, err := s.store.GetUserByLogin(ctx, AdminUsername)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return false, err
	}

	user, err := s.create(ctx, Registration{
		Name:     "Administrator",
		Email:    "admin@localhost",
		Username: AdminUsername,
		Password: password,
		Role:     model.RoleAdmin,
	})
	if err != nil {
		return false, fmt.Errorf("seed admin: %w", err)
	}
	s.logger.Info().Int64("user_id", user.ID).Msg("admin account created")
	return true, nil
}
