// Package users exposes the users service over HTTP.
package users

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"labreserve/internal/api"
	"labreserve/internal/auth"
	"labreserve/internal/database"
	"labreserve/internal/model"
	"labreserve/internal/users"
)

// Options tunes the public auth endpoints.
type Options struct {
	InternalAPIKey    string
	LoginPerMinute    int
	RegisterPerMinute int
}

type Handler struct {
	svc    *users.Service
	tokens *auth.TokenManager
}

func NewHandler(svc *users.Service, tokens *auth.TokenManager) *Handler {
	return &Handler{svc: svc, tokens: tokens}
}

// Register mounts the routes on r.
func (h *Handler) Register(r fiber.Router, opts Options) {
	r.Post("/token", api.RateLimit(opts.LoginPerMinute, time.Minute, "too many login attempts, try again later"), h.login)
	r.Post("/register", api.RateLimit(opts.RegisterPerMinute, time.Minute, "too many sign-ups, try again later"), h.register)

	r.Get("/users/internal/:id", auth.RequireAPIKey(opts.InternalAPIKey), h.internalUser)

	authed := auth.RequireUser(h.tokens, h.svc.Exists)
	r.Get("/users/me", authed, h.me)
	r.Get("/users/verify", authed, h.verify)
	r.Put("/users/me/profile", authed, h.updateProfile)
	r.Put("/users/me/password", authed, h.changePassword)

	admin := auth.RequireRoles(model.RoleAdmin)
	r.Get("/users", authed, admin, h.list)
	r.Put("/users/:id", authed, admin, h.adminUpdate)
	r.Delete("/users/:id", authed, admin, h.delete)
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) login(c *fiber.Ctx) error {
	var req loginRequest
	if err := api.Bind(c, &req); err != nil {
		return err
	}
	session, err := h.svc.Login(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return err
	}
	return api.Success(c, "login successful", session)
}

type registerRequest struct {
	Name     string     `json:"name" validate:"required,max=120"`
	Email    string     `json:"email" validate:"required,email,max=160"`
	Username string     `json:"username" validate:"required,min=3,max=80"`
	Password string     `json:"password" validate:"required"`
	Role     model.Role `json:"role" validate:"omitempty,oneof=teacher student"`
}

func (h *Handler) register(c *fiber.Ctx) error {
	var req registerRequest
	if err := api.Bind(c, &req); err != nil {
		return err
	}
	user, err := h.svc.Register(c.UserContext(), users.Registration{
		Name:     req.Name,
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		return err
	}
	return api.SuccessWithCode(c, fiber.StatusCreated, "user registered", user)
}

type profile struct {
	*model.User
	AllowedRoutes []string `json:"allowed_routes"`
}

func (h *Handler) me(c *fiber.Ctx) error {
	user, err := h.svc.Get(c.UserContext(), auth.ClaimsFrom(c).UserID)
	if err != nil {
		return err
	}
	return api.Success(c, "ok", profile{User: user, AllowedRoutes: auth.AllowedRoutes(user.Role)})
}

func (h *Handler) verify(c *fiber.Ctx) error {
	claims := auth.ClaimsFrom(c)
	return api.Success(c, "token valid", fiber.Map{
		"sub":            claims.Username,
		"id":             claims.UserID,
		"rol":            claims.Role,
		"exp":            claims.ExpiresAt.Unix(),
		"allowed_routes": auth.AllowedRoutes(claims.Role),
	})
}

type profileRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=120"`
	Email    *string `json:"email" validate:"omitempty,email,max=160"`
	Username *string `json:"username" validate:"omitempty,min=3,max=80"`
}

func (h *Handler) updateProfile(c *fiber.Ctx) error {
	var req profileRequest
	if err := api.Bind(c, &req); err != nil {
		return err
	}
	user, err := h.svc.UpdateProfile(c.UserContext(), auth.ClaimsFrom(c).UserID, model.UserUpdate{
		Name:     req.Name,
		Email:    req.Email,
		Username: req.Username,
	})
	if err != nil {
		return err
	}
	return api.Success(c, "profile updated", user)
}

type passwordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

func (h *Handler) changePassword(c *fiber.Ctx) error {
	var req passwordRequest
	if err := api.Bind(c, &req); err != nil {
		return err
	}
	if err := h.svc.ChangePassword(c.UserContext(), auth.ClaimsFrom(c).UserID, req.OldPassword, req.NewPassword); err != nil {
		return err
	}
	return api.Success(c, "password updated", nil)
}

func (h *Handler) list(c *fiber.Ctx) error {
	list, err := h.svc.List(c.UserContext(), database.UserFilter{
		Query: c.Query("q"),
		Role:  model.Role(c.Query("role")),
	})
	if err != nil {
		return err
	}
	return api.Success(c, "ok", list)
}

func (h *Handler) adminUpdate(c *fiber.Ctx) error {
	id, err := api.ParamID(c, "id")
	if err != nil {
		return err
	}
	var upd model.UserUpdate
	if err := api.Bind(c, &upd); err != nil {
		return err
	}
	user, err := h.svc.AdminUpdate(c.UserContext(), auth.ClaimsFrom(c).UserID, id, upd)
	if err != nil {
		return err
	}
	return api.Success(c, "user updated", user)
}

func (h *Handler) delete(c *fiber.Ctx) error {
	id, err := api.ParamID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.UserContext(), auth.ClaimsFrom(c).UserID, id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) internalUser(c *fiber.Ctx) error {
	id, err := api.ParamID(c, "id")
	if err != nil {
		return err
	}
	user, err := h.svc.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return api.Success(c, "ok", user)
}
