// Package reservations exposes schedules and bookings over HTTP.
package reservations

import (
	"bytes"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"labreserve/internal/api"
	"labreserve/internal/audit"
	"labreserve/internal/auth"
	"labreserve/internal/booking"
	"labreserve/internal/model"
	"labreserve/internal/schedule"
	"labreserve/internal/svcclient"
)

// maxExportDays caps the spreadsheet export range.
const maxExportDays = 366

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Options struct {
	InternalAPIKey string
	MaxRangeDays   int
	// CreatorRoles may create bookings. Empty means admin and teacher.
	CreatorRoles []model.Role
	Now          func() time.Time
}

type Handler struct {
	bookings *booking.Service
	schedule *schedule.Service
	exporter *audit.Exporter
	tokens   *auth.TokenManager
	opts     Options
}

func NewHandler(bookings *booking.Service, sched *schedule.Service, exporter *audit.Exporter, tokens *auth.TokenManager, opts Options) *Handler {
	if len(opts.CreatorRoles) == 0 {
		opts.CreatorRoles = []model.Role{model.RoleAdmin, model.RoleTeacher}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Handler{bookings: bookings, schedule: sched, exporter: exporter, tokens: tokens, opts: opts}
}

// Register mounts the routes on r.
func (h *Handler) Register(r fiber.Router) {
	authed := auth.RequireUser(h.tokens, nil)
	admin := auth.RequireRoles(model.RoleAdmin)

	r.Post("/admin/schedule/rules", authed, admin, h.createRule)
	r.Get("/admin/schedule/rules", authed, admin, h.listRules)
	r.Get("/admin/schedule/rules/:id", authed, admin, h.getRule)
	r.Put("/admin/schedule/rules/:id", authed, admin, h.updateRule)
	r.Delete("/admin/schedule/rules/:id", authed, admin, h.deleteRule)

	r.Post("/admin/schedule/exceptions", authed, admin, h.createException)
	r.Get("/admin/schedule/exceptions", authed, admin, h.listExceptions)
	r.Get("/admin/schedule/exceptions/:id", authed, admin, h.getException)
	r.Put("/admin/schedule/exceptions/:id", authed, admin, h.updateException)
	r.Delete("/admin/schedule/exceptions/:id", authed, admin, h.deleteException)

	r.Get("/admin/bookings/export", authed, admin, h.export)

	r.Get("/facilities/:id/bookings/count", auth.RequireAPIKey(h.opts.InternalAPIKey), h.activeCount)
	r.Get("/facilities/:id/schedule", authed, h.facilitySchedule)
	r.Get("/facilities/:id/bookings", authed, h.facilityBookings)

	r.Get("/bookings/mine", authed, h.myBookings)
	r.Post("/bookings", authed, auth.RequireRoles(h.opts.CreatorRoles...), h.createBooking)
	r.Put("/bookings/:id/cancel", authed, h.cancelBooking)
}

type ruleRequest struct {
	FacilityID   *int64 `json:"facility_id" validate:"omitempty,min=1"`
	DayOfWeek    int    `json:"day_of_week" validate:"min=0,max=6"`
	StartTime    string `json:"start_time" validate:"required"`
	EndTime      string `json:"end_time" validate:"required"`
	IsEnabled    *bool  `json:"is_enabled"`
	IntervalKind string `json:"interval_kind" validate:"max=50"`
}

func (h *Handler) createRule(c *fiber.Ctx) error {
	var req ruleRequest
	if err := api.Bind(c, &req); err != nil {
		return err
	}
	enabled := true
	if req.IsEnabled != nil {
		enabled = *req.IsEnabled
	}
	rule, err := h.schedule.CreateRule(c.UserContext(), model.WeeklyRule{
		FacilityID:   req.FacilityID,
		DayOfWeek:    req.DayOfWeek,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		IsEnabled:    enabled,
		IntervalKind: req.IntervalKind,
	})
	if err != nil {
		return err
	}
	return api.SuccessWithCode(c, fiber.StatusCreated, "rule created", rule)
}

func (h *Handler) listRules(c *fiber.Ctx) error {
	facilityID, err := api.QueryID(c, "facility_id")
	if err != nil {
		return err
	}
	rules, err := h.schedule.ListRules(c.UserContext(), facilityID)
	if err != nil {
		return err
	}
	return api.Success(c, "ok", rules)
}

func (h *Handler) getRule(c *fiber.Ctx) error {
	id, err := api.ParamID(c, "id")
	if err != nil {
		return err
	}
	rule, err := h.schedule.GetRule(c.UserContext(), id)
	if err != nil {
		return err
	}
	return api.Success(c, "ok", rule)
}

func (h *Handler) updateRule(c *fiber.Ctx) error {
	id, err := api.ParamID(c, "id")
	if err != nil {
		return err
	}
	var upd model.WeeklyRuleUpdate
	if err := api.Bind(c, &upd); err != nil {
		return err
	}
	rule, err := h.schedule.UpdateRule(c.UserContext(), id, upd)
	if err != nil {
		return err
	}
	return api.Success(c, "rule updated", rule)
}

func (h *Handler) deleteRule(c *fiber.Ctx) error {
	id, err := api.ParamID(c, "id")
	if err != nil {
		return err
	}
	if err := h.schedule.DeleteRule(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type exceptionRequest struct {
	FacilityID  *int64  `json:"facility_id" validate:"omitempty,min=1"`
	Date        string  `json:"date" validate:"required"`
	StartTime   *string `json:"start_time"`
	EndTime     *string `json:"end_time"`
	IsEnabled   bool    `json:"is_enabled"`
	Description *string `json:"description" validate:"omitempty,max=200"`
}

func (h *Handler) createException(c *fiber.Ctx) error {
	var req exceptionRequest
	if err := api.Bind(c, &req); err != nil {
		return err
	}
	exc, err := h.schedule.CreateException(c.UserContext(), model.DateException{
		FacilityID:  req.FacilityID,
		Date:        req.Date,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		IsEnabled:   req.IsEnabled,
		Description: req.Description,
	})
	if err != nil {
		return err
	}
	return api.SuccessWithCode(c, fiber.StatusCreated, "exception created", exc)
}

func (h *Handler) listExceptions(c *fiber.Ctx) error {
	facilityID, err := api.QueryID(c, "facility_id")
	if err != nil {
		return err
	}
	list, err := h.schedule.ListExceptions(c.UserContext(), facilityID)
	if err != nil {
		return err
	}
	return api.Success(c, "ok", list)
}

func (h *Handler) getException(c *fiber.Ctx) error {
	id, err := api.ParamID(c, "id")
	if err != nil {
		return err
	}
	exc, err := h.schedule.GetException(c.UserContext(), id)
	if err != nil {
		return err
	}
	return api.Success(c, "ok", exc)
}

func (h *Handler) updateException(c *fiber.Ctx) error {
	id, err := api.ParamID(c, "id")
	if err != nil {
		return err
	}
	var upd model.DateExceptionUpdate
	if err := api.Bind(c, &upd); err != nil {
		return err
	}
	exc, err := h.schedule.UpdateException(c.UserContext(), id, upd)
	if err != nil {
		return err
	}
	return api.Success(c, "exception updated", exc)
}

func (h *Handler) deleteException(c *fiber.Ctx) error {
	id, err := api.ParamID(c, "id")
	if err != nil {
		return err
	}
	if err := h.schedule.DeleteException(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) facilitySchedule(c *fiber.Ctx) error {
	id, err := api.ParamID(c, "id")
	if err != nil {
		return err
	}
	from, to, err := api.DateRange(c, h.opts.MaxRangeDays)
	if err != nil {
		return err
	}
	sched, err := h.bookings.Schedule(c.UserContext(), id, from, to)
	if err != nil {
		return err
	}
	return api.Success(c, "ok", sched)
}

func (h *Handler) facilityBookings(c *fiber.Ctx) error {
	id, err := api.ParamID(c, "id")
	if err != nil {
		return err
	}
	from, to, err := api.DateRange(c, h.opts.MaxRangeDays)
	if err != nil {
		return err
	}
	list, err := h.bookings.FacilityBookings(c.UserContext(), id, from, to)
	if err != nil {
		return err
	}
	return api.Success(c, "ok", list)
}

func (h *Handler) activeCount(c *fiber.Ctx) error {
	id, err := api.ParamID(c, "id")
	if err != nil {
		return err
	}
	n, err := h.bookings.ActiveCount(c.UserContext(), id, h.opts.Now())
	if err != nil {
		return err
	}
	return api.Success(c, "ok", svcclient.ActiveCount{FacilityID: id, ActiveCount: n})
}

func (h *Handler) myBookings(c *fiber.Ctx) error {
	list, err := h.bookings.RequesterBookings(c.UserContext(), auth.ClaimsFrom(c).UserID)
	if err != nil {
		return err
	}
	return api.Success(c, "ok", list)
}

type bookingRequest struct {
	FacilityID  int64     `json:"facility_id" validate:"required,min=1"`
	RequesterID int64     `json:"requester_id" validate:"required,min=1"`
	Start       time.Time `json:"start" validate:"required"`
	End         time.Time `json:"end" validate:"required"`
}

func (h *Handler) createBooking(c *fiber.Ctx) error {
	var req bookingRequest
	if err := api.Bind(c, &req); err != nil {
		return err
	}
	b, err := h.bookings.Reserve(c.UserContext(), booking.ReserveRequest{
		FacilityID:  req.FacilityID,
		RequesterID: req.RequesterID,
		Start:       req.Start,
		End:         req.End,
	}, h.opts.Now())
	if err != nil {
		return err
	}
	return api.SuccessWithCode(c, fiber.StatusCreated, "booking created", b)
}

func (h *Handler) cancelBooking(c *fiber.Ctx) error {
	id, err := api.ParamID(c, "id")
	if err != nil {
		return err
	}
	claims := auth.ClaimsFrom(c)
	b, err := h.bookings.Cancel(c.UserContext(), id, claims.UserID, claims.Role)
	if err != nil {
		return err
	}
	return api.Success(c, "booking cancelled", b)
}

// export answers with a workbook of the bookings starting within the
// inclusive day range.
func (h *Handler) export(c *fiber.Ctx) error {
	from, to, err := api.DateRange(c, maxExportDays)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if _, err := h.exporter.Export(c.UserContext(), from, to.AddDate(0, 0, 1), &buf); err != nil {
		return err
	}
	name := fmt.Sprintf("bookings_%s_%s.xlsx", from.Format(model.DateLayout), to.Format(model.DateLayout))
	c.Attachment(name)
	c.Set(fiber.HeaderContentType, xlsxContentType)
	return c.Send(buf.Bytes())
}
