// Package inventory exposes campuses, facilities, resources and loans over
// HTTP.
package inventory

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"labreserve/internal/api"
	"labreserve/internal/auth"
	"labreserve/internal/inventory"
	"labreserve/internal/model"
)

type Handler struct {
	svc    *inventory.Service
	tokens *auth.TokenManager
}

func NewHandler(svc *inventory.Service, tokens *auth.TokenManager) *Handler {
	return &Handler{svc: svc, tokens: tokens}
}

// Register mounts the routes on r. Tokens are trusted as issued; only the
// users service re-checks that the account still exists.
func (h *Handler) Register(r fiber.Router) {
	authed := auth.RequireUser(h.tokens, nil)
	admin := auth.RequireRoles(model.RoleAdmin)

	r.Get("/campuses", authed, h.listCampuses)
	r.Get("/campuses/:id", authed, h.getCampus)
	r.Post("/campuses", authed, admin, h.createCampus)
	r.Put("/campuses/:id", authed, admin, h.updateCampus)
	r.Delete("/campuses/:id", authed, admin, h.deleteCampus)

	r.Get("/facilities", authed, h.listFacilities)
	r.Get("/facilities/:id", authed, h.getFacility)
	r.Post("/facilities", authed, admin, h.createFacility)
	r.Put("/facilities/:id", authed, admin, h.updateFacility)
	r.Delete("/facilities/:id", authed, admin, h.deleteFacility)

	r.Get("/resources", authed, h.listResources)
	r.Get("/resources/kinds", authed, h.resourceKinds)
	r.Get("/resources/:id", authed, h.getResource)
	r.Post("/resources", authed, admin, h.createResource)
	r.Put("/resources/:id", authed, admin, h.updateResource)
	r.Delete("/resources/:id", authed, admin, h.deleteResource)

	r.Get("/loans/mine", authed, h.myLoans)
	r.Post("/loans", authed, h.requestLoan)
	r.Get("/loans", authed, admin, h.listLoans)
	r.Put("/loans/:id/status", authed, admin, h.decideLoan)
}

type campusRequest struct {
	Name    string `json:"name" validate:"required,max=160"`
	Address string `json:"address" validate:"max=200"`
}

func (h *Handler) listCampuses(c *fiber.Ctx) error {
	list, err := h.svc.ListCampuses(c.UserContext())
	if err != nil {
		return err
	}
	return api.Success(c, "ok", list)
}

func (h *Handler) getCampus(c *fiber.Ctx) error {
	id, err := api.ParamID(c, "id")
	if err != nil {
		return err
	}
	campus, err := h.svc.GetCampus(c.UserContext(), id)
	if err != nil {
		return err
	}
	return api.Success(c, "ok", campus)
}

func (h *Handler) createCampus(c *fiber.Ctx) error {
	var req campusRequest
	if err := api.Bind(c, &req); err != nil {
		return err
	}
	campus, err := h.svc.CreateCampus(c.UserContext(), model.Campus{Name: req.Name, Address: req.Address})
	if err != nil {
		return err
	}
	return api.SuccessWithCode(c, fiber.StatusCreated, "campus created", campus)
}

func (h *Handler) updateCampus(c *fiber.Ctx) error {
	id, err := api.ParamID(c, "id")
	if err != nil {
		return err
	}
	var upd model.CampusUpdate
	if err := api.Bind(c, &upd); err != nil {
		return err
	}
	campus, err := h.svc.UpdateCampus(c.UserContext(), id, upd)
	if err != nil {
		return err
	}
	return api.Success(c, "campus updated", campus)
}

func (h *Handler) deleteCampus(c *fiber.Ctx) error {
	id, err := api.ParamID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteCampus(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type facilityRequest struct {
	Name     string `json:"name" validate:"required,max=160"`
	Location string `json:"location" validate:"max=160"`
	Capacity int    `json:"capacity" validate:"min=0"`
	CampusID *int64 `json:"campus_id" validate:"omitempty,min=1"`
}

func (h *Handler) listFacilities(c *fiber.Ctx) error {
	campusID, err := api.QueryID(c, "campus_id")
	if err != nil {
		return err
	}
	list, err := h.svc.ListFacilities(c.UserContext(), campusID)
	if err != nil {
		return err
	}
	return api.Success(c, "ok", list)
}

func (h *Handler) getFacility(c *fiber.Ctx) error {
	id, err := api.ParamID(c, "id")
	if err != nil {
		return err
	}
	facility, err := h.svc.GetFacility(c.UserContext(), id)
	if err != nil {
		return err
	}
	return api.Success(c, "ok", facility)
}

func (h *Handler) createFacility(c *fiber.Ctx) error {
	var req facilityRequest
	if err := api.Bind(c, &req); err != nil {
		return err
	}
	facility, err := h.svc.CreateFacility(c.UserContext(), model.Facility{
		Name:     req.Name,
		Location: req.Location,
		Capacity: req.Capacity,
		CampusID: req.CampusID,
	})
	if err != nil {
		return err
	}
	return api.SuccessWithCode(c, fiber.StatusCreated, "facility created", facility)
}

func (h *Handler) updateFacility(c *fiber.Ctx) error {
	id, err := api.ParamID(c, "id")
	if err != nil {
		return err
	}
	var upd model.FacilityUpdate
	if err := api.Bind(c, &upd); err != nil {
		return err
	}
	facility, err := h.svc.UpdateFacility(c.UserContext(), id, upd)
	if err != nil {
		return err
	}
	return api.Success(c, "facility updated", facility)
}

func (h *Handler) deleteFacility(c *fiber.Ctx) error {
	id, err := api.ParamID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteFacility(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type resourceRequest struct {
	FacilityID int64  `json:"facility_id" validate:"required,min=1"`
	Kind       string `json:"kind" validate:"required,max=80"`
	Status     string `json:"status" validate:"required,max=40"`
	Specs      string `json:"specs"`
}

func (h *Handler) listResources(c *fiber.Ctx) error {
	campusID, err := api.QueryID(c, "campus_id")
	if err != nil {
		return err
	}
	facilityID, err := api.QueryID(c, "facility_id")
	if err != nil {
		return err
	}
	list, err := h.svc.ListResources(c.UserContext(), model.ResourceFilter{
		CampusID:   campusID,
		FacilityID: facilityID,
		Status:     c.Query("status"),
		Kind:       c.Query("kind"),
	})
	if err != nil {
		return err
	}
	return api.Success(c, "ok", list)
}

func (h *Handler) resourceKinds(c *fiber.Ctx) error {
	kinds, err := h.svc.ResourceKinds(c.UserContext())
	if err != nil {
		return err
	}
	return api.Success(c, "ok", kinds)
}

func (h *Handler) getResource(c *fiber.Ctx) error {
	id, err := api.ParamID(c, "id")
	if err != nil {
		return err
	}
	resource, err := h.svc.GetResource(c.UserContext(), id)
	if err != nil {
		return err
	}
	return api.Success(c, "ok", resource)
}

func (h *Handler) createResource(c *fiber.Ctx) error {
	var req resourceRequest
	if err := api.Bind(c, &req); err != nil {
		return err
	}
	resource, err := h.svc.CreateResource(c.UserContext(), model.Resource{
		FacilityID: req.FacilityID,
		Kind:       req.Kind,
		Status:     req.Status,
		Specs:      req.Specs,
	})
	if err != nil {
		return err
	}
	return api.SuccessWithCode(c, fiber.StatusCreated, "resource created", resource)
}

func (h *Handler) updateResource(c *fiber.Ctx) error {
	id, err := api.ParamID(c, "id")
	if err != nil {
		return err
	}
	var upd model.ResourceUpdate
	if err := api.Bind(c, &upd); err != nil {
		return err
	}
	resource, err := h.svc.UpdateResource(c.UserContext(), id, upd)
	if err != nil {
		return err
	}
	return api.Success(c, "resource updated", resource)
}

func (h *Handler) deleteResource(c *fiber.Ctx) error {
	id, err := api.ParamID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteResource(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type loanRequest struct {
	ResourceID int64     `json:"resource_id" validate:"required,min=1"`
	UserID     int64     `json:"user_id" validate:"omitempty,min=1"`
	Quantity   int       `json:"quantity" validate:"omitempty,min=1"`
	Start      time.Time `json:"start" validate:"required"`
	End        time.Time `json:"end" validate:"required"`
	Comment    string    `json:"comment" validate:"max=1000"`
}

type decisionRequest struct {
	Status  model.LoanStatus `json:"status" validate:"required,oneof=approved rejected returned"`
	Comment string           `json:"comment" validate:"max=1000"`
}

func (h *Handler) myLoans(c *fiber.Ctx) error {
	list, err := h.svc.MyLoans(c.UserContext(), auth.ClaimsFrom(c).UserID)
	if err != nil {
		return err
	}
	return api.Success(c, "ok", list)
}

// requestLoan books for the caller unless user_id names someone else.
func (h *Handler) requestLoan(c *fiber.Ctx) error {
	var req loanRequest
	if err := api.Bind(c, &req); err != nil {
		return err
	}
	claims := auth.ClaimsFrom(c)
	if req.UserID == 0 {
		req.UserID = claims.UserID
	}
	loan, err := h.svc.RequestLoan(c.UserContext(), inventory.LoanRequest{
		ResourceID: req.ResourceID,
		UserID:     req.UserID,
		Quantity:   req.Quantity,
		Start:      req.Start,
		End:        req.End,
		Comment:    req.Comment,
	}, claims.UserID, claims.Role)
	if err != nil {
		return err
	}
	return api.SuccessWithCode(c, fiber.StatusCreated, "loan requested", loan)
}

func (h *Handler) listLoans(c *fiber.Ctx) error {
	status := model.LoanStatus(strings.TrimSpace(c.Query("status")))
	list, err := h.svc.ListLoans(c.UserContext(), status)
	if err != nil {
		return err
	}
	return api.Success(c, "ok", list)
}

func (h *Handler) decideLoan(c *fiber.Ctx) error {
	id, err := api.ParamID(c, "id")
	if err != nil {
		return err
	}
	var req decisionRequest
	if err := api.Bind(c, &req); err != nil {
		return err
	}
	loan, err := h.svc.DecideLoan(c.UserContext(), id, req.Status, req.Comment)
	if err != nil {
		return err
	}
	return api.Success(c, "loan updated", loan)
}
