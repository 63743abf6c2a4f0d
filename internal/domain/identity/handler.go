package identity

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

// RegisterRoutes mounts user and address management under the authenticated
// group and the one-time account setup endpoint under the public group.
func (h *Handler) RegisterRoutes(g *echo.Group, public *echo.Group) {
	g.POST("/users", h.createUser, auth.RequireRole(auth.RoleAdmin))
	g.GET("/users", h.listUsers, auth.RequireRole(auth.RoleAdmin))
	g.GET("/users/:id", h.getUser, auth.RequireRole(auth.RoleAdmin))
	g.PUT("/users/:id", h.updateUser, auth.RequireRole(auth.RoleAdmin))
	g.POST("/users/:id/clinics", h.addAffiliation, auth.RequireRole(auth.RoleAdmin))

	g.POST("/addresses", h.createAddress, auth.RequireRole(auth.RoleAdmin))
	g.GET("/addresses/:id", h.getAddress, auth.RequireRole(auth.RoleAdmin))

	public.POST("/account/setup", h.completeSetup)
}

type createUserRequest struct {
	Email    string     `json:"email"`
	Name     string     `json:"name"`
	Phone    *string    `json:"phone"`
	Role     auth.Role  `json:"role"`
	ClinicID *uuid.UUID `json:"clinic_id"`
}

func (h *Handler) createUser(c echo.Context) error {
	var req createUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	u := &User{
		Email:    req.Email,
		Name:     req.Name,
		Phone:    req.Phone,
		Role:     req.Role,
		ClinicID: req.ClinicID,
	}
	if err := h.svc.CreateUser(c.Request().Context(), u); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) listUsers(c echo.Context) error {
	p := pagination.FromContext(c)
	users, total, err := h.svc.ListUsers(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(users, total, p.Limit, p.Offset))
}

func (h *Handler) getUser(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	u, err := h.svc.GetUser(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, u)
}

type updateUserRequest struct {
	Name     string     `json:"name"`
	Phone    *string    `json:"phone"`
	Role     auth.Role  `json:"role"`
	ClinicID *uuid.UUID `json:"clinic_id"`
}

func (h *Handler) updateUser(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	var req updateUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	u, err := h.svc.UpdateUser(c.Request().Context(), id, req.Name, req.Phone, req.Role, req.ClinicID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, u)
}

type addAffiliationRequest struct {
	ClinicID uuid.UUID `json:"clinic_id"`
}

func (h *Handler) addAffiliation(c echo.Context) error {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	var req addAffiliationRequest
	if err := c.Bind(&req); err != nil || req.ClinicID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "clinic_id is required")
	}
	if err := h.svc.AddClinicAffiliation(c.Request().Context(), userID, req.ClinicID); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) createAddress(c echo.Context) error {
	var a Address
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.CreateAddress(c.Request().Context(), &a); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) getAddress(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid address id")
	}
	a, err := h.svc.GetAddress(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

type setupRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h *Handler) completeSetup(c echo.Context) error {
	var req setupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.CompleteSetup(c.Request().Context(), req.Token, req.Password); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
