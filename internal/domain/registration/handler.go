package registration

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/vduzgezen/lumera-dental-api/internal/platform/apperr"
	"github.com/vduzgezen/lumera-dental-api/internal/platform/auth"
	"github.com/vduzgezen/lumera-dental-api/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the public signup endpoint and the admin review
// endpoints.
func (h *Handler) RegisterRoutes(g *echo.Group, public *echo.Group) {
	public.POST("/register", h.submit)

	g.GET("/admin/requests", h.list, auth.RequireRole(auth.RoleAdmin))
	g.GET("/admin/requests/:id", h.get, auth.RequireRole(auth.RoleAdmin))
	g.POST("/admin/requests/:id/approve", h.approve, auth.RequireRole(auth.RoleAdmin))
}

type submitRequest struct {
	Email      string  `json:"email"`
	Name       string  `json:"name"`
	Phone      *string `json:"phone"`
	ClinicName string  `json:"clinic_name"`
	Street     string  `json:"street"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	Zip        string  `json:"zip"`
}

func (h *Handler) submit(c echo.Context) error {
	var body submitRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req := &Request{
		Email:      body.Email,
		Name:       body.Name,
		Phone:      body.Phone,
		ClinicName: body.ClinicName,
		Street:     body.Street,
		City:       body.City,
		State:      body.State,
		Zip:        body.Zip,
	}
	if err := h.svc.Submit(c.Request().Context(), req); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, req)
}

func (h *Handler) list(c echo.Context) error {
	p := pagination.FromContext(c)
	var status *RequestStatus
	if s := c.QueryParam("status"); s != "" {
		st := RequestStatus(s)
		status = &st
	}
	reqs, total, err := h.svc.List(c.Request().Context(), status, p.Limit, p.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(reqs, total, p.Limit, p.Offset))
}

func (h *Handler) get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request id")
	}
	req, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, req)
}

type approveRequest struct {
	Action string `json:"action"`
}

// approve handles both outcomes of review: an empty body approves, while
// {"action":"reject"} rejects.
func (h *Handler) approve(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request id")
	}
	var body approveRequest
	if err := c.Bind(&body); err != nil && err != echo.ErrUnsupportedMediaType {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if body.Action == "reject" {
		req, err := h.svc.Reject(c.Request().Context(), id)
		if err != nil {
			return apperr.ToHTTP(err)
		}
		return c.JSON(http.StatusOK, req)
	}

	result, err := h.svc.Approve(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, result)
}
