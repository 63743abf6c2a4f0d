package shipping

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/vduzgezen/lumera-dental-api/internal/platform/apperr"
	"github.com/vduzgezen/lumera-dental-api/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/cases/batch/ship", h.shipBatch, auth.RequireRole(auth.RoleMilling, auth.RoleAdmin))
}

type shipBatchRequest struct {
	IDs          []uuid.UUID `json:"ids"`
	Tracking     string      `json:"tracking"`
	Carrier      string      `json:"carrier"`
	ShippingCost *float64    `json:"shipping_cost"`
}

func (h *Handler) shipBatch(c echo.Context) error {
	ident, ok := auth.IdentityFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	var req shipBatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	result, err := h.svc.ShipBatch(c.Request().Context(), ident, req.IDs, req.Tracking, req.Carrier, req.ShippingCost)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, result)
}
