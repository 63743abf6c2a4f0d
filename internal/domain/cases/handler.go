package cases

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/vduzgezen/lumera-dental-api/internal/domain/pricing"
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

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/cases", h.create)
	g.GET("/cases", h.list)
	g.GET("/cases/triage", h.triage)
	g.GET("/cases/:id", h.get)
	g.POST("/cases/:id/transition", h.transition)
	g.POST("/cases/:id/stage", h.changeStage)
	g.POST("/cases/:id/review", h.review)
	g.POST("/cases/:id/assign", h.assign, auth.RequireRole(auth.RoleAdmin))
	g.POST("/cases/:id/notes", h.notes, auth.RequireRole(auth.RoleLab, auth.RoleAdmin, auth.RoleMilling))
	g.POST("/cases/:id/shipping", h.ship, auth.RequireRole(auth.RoleLab, auth.RoleAdmin, auth.RoleMilling))
	g.GET("/cases/:id/events", h.listEvents)
	g.POST("/cases/:id/comments", h.addComment)
	g.GET("/cases/:id/comments", h.listComments)
	g.POST("/cases/:id/files/upload-url", h.uploadURL, auth.RequireRole(auth.RoleLab, auth.RoleAdmin, auth.RoleMilling))
	g.POST("/cases/:id/files", h.confirmFile, auth.RequireRole(auth.RoleLab, auth.RoleAdmin, auth.RoleMilling))
	g.GET("/cases/:id/files", h.listFiles)
	g.POST("/cases/:id/read", h.markRead)
}

func identityOr401(c echo.Context) (auth.Identity, error) {
	ident, ok := auth.IdentityFromContext(c.Request().Context())
	if !ok {
		return auth.Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return ident, nil
}

func caseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid case id")
	}
	return id, nil
}

type createCaseRequest struct {
	ClinicID    uuid.UUID  `json:"clinic_id"`
	DoctorID    *uuid.UUID `json:"doctor_user_id"`
	PatientRef  string     `json:"patient_ref"`
	ProductType string     `json:"product_type"`
	Material    string     `json:"material"`
	Units       int        `json:"units"`
	BillingType string     `json:"billing_type"`
}

func (h *Handler) create(c echo.Context) error {
	ident, err := identityOr401(c)
	if err != nil {
		return err
	}
	var req createCaseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	dc := &DentalCase{
		ClinicID:    req.ClinicID,
		PatientRef:  req.PatientRef,
		ProductType: req.ProductType,
		Material:    req.Material,
		Units:       req.Units,
	}
	if req.BillingType != "" {
		dc.BillingType = pricing.BillingType(req.BillingType)
	}
	if req.DoctorID != nil {
		dc.DoctorUserID = *req.DoctorID
	}
	if err := h.svc.Create(c.Request().Context(), ident, dc); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, dc)
}

func (h *Handler) list(c echo.Context) error {
	ident, err := identityOr401(c)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)

	var f SearchFilter
	if s := c.QueryParam("status"); s != "" {
		st := Status(s)
		f.Status = &st
	}
	if s := c.QueryParam("stage"); s != "" {
		sg := Stage(s)
		f.Stage = &sg
	}
	if s := c.QueryParam("clinic_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid clinic_id")
		}
		f.ClinicID = &id
	}
	if s := c.QueryParam("needs_review"); s != "" {
		b := s == "true"
		f.NeedsReview = &b
	}
	if s := c.QueryParam("batch_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid batch_id")
		}
		f.BatchID = &id
	}

	list, total, err := h.svc.List(c.Request().Context(), ident, f, p.Limit, p.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(list, total, p.Limit, p.Offset))
}

func (h *Handler) triage(c echo.Context) error {
	ident, err := identityOr401(c)
	if err != nil {
		return err
	}
	counts, err := h.svc.Triage(c.Request().Context(), ident)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, counts)
}

func (h *Handler) get(c echo.Context) error {
	ident, err := identityOr401(c)
	if err != nil {
		return err
	}
	id, err := caseID(c)
	if err != nil {
		return err
	}
	dc, err := h.svc.Get(c.Request().Context(), ident, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, dc)
}

type transitionRequest struct {
	To   Status  `json:"to"`
	Note *string `json:"note"`
}

func (h *Handler) transition(c echo.Context) error {
	ident, err := identityOr401(c)
	if err != nil {
		return err
	}
	id, err := caseID(c)
	if err != nil {
		return err
	}
	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	dc, err := h.svc.Transition(c.Request().Context(), ident, id, req.To, req.Note)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, dc)
}

type stageRequest struct {
	Stage Stage   `json:"stage"`
	Note  *string `json:"note"`
}

func (h *Handler) changeStage(c echo.Context) error {
	ident, err := identityOr401(c)
	if err != nil {
		return err
	}
	id, err := caseID(c)
	if err != nil {
		return err
	}
	var req stageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	dc, err := h.svc.ChangeStage(c.Request().Context(), ident, id, req.Stage, req.Note)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, dc)
}

type reviewRequest struct {
	NeedsReview bool   `json:"needs_review"`
	Question    string `json:"question"`
}

func (h *Handler) review(c echo.Context) error {
	ident, err := identityOr401(c)
	if err != nil {
		return err
	}
	id, err := caseID(c)
	if err != nil {
		return err
	}
	var req reviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	dc, err := h.svc.SetReview(c.Request().Context(), ident, id, req.NeedsReview, req.Question)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, dc)
}

type assignRequest struct {
	AssigneeID *uuid.UUID `json:"assignee_id"`
}

func (h *Handler) assign(c echo.Context) error {
	ident, err := identityOr401(c)
	if err != nil {
		return err
	}
	id, err := caseID(c)
	if err != nil {
		return err
	}
	var req assignRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	dc, err := h.svc.Assign(c.Request().Context(), ident, id, req.AssigneeID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, dc)
}

type notesRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) notes(c echo.Context) error {
	ident, err := identityOr401(c)
	if err != nil {
		return err
	}
	id, err := caseID(c)
	if err != nil {
		return err
	}
	var req notesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	dc, err := h.svc.SetNotes(c.Request().Context(), ident, id, req.Notes)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, dc)
}

type shipRequest struct {
	Carrier  string     `json:"carrier"`
	Tracking string     `json:"tracking"`
	Eta      *time.Time `json:"eta"`
}

func (h *Handler) ship(c echo.Context) error {
	ident, err := identityOr401(c)
	if err != nil {
		return err
	}
	id, err := caseID(c)
	if err != nil {
		return err
	}
	var req shipRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	dc, err := h.svc.Ship(c.Request().Context(), ident, id, req.Carrier, req.Tracking, req.Eta)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, dc)
}

func (h *Handler) listEvents(c echo.Context) error {
	ident, err := identityOr401(c)
	if err != nil {
		return err
	}
	id, err := caseID(c)
	if err != nil {
		return err
	}
	events, err := h.svc.ListEvents(c.Request().Context(), ident, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, events)
}

type commentRequest struct {
	Body string `json:"body"`
}

func (h *Handler) addComment(c echo.Context) error {
	ident, err := identityOr401(c)
	if err != nil {
		return err
	}
	id, err := caseID(c)
	if err != nil {
		return err
	}
	var req commentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	cm, err := h.svc.AddComment(c.Request().Context(), ident, id, req.Body)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, cm)
}

func (h *Handler) listComments(c echo.Context) error {
	ident, err := identityOr401(c)
	if err != nil {
		return err
	}
	id, err := caseID(c)
	if err != nil {
		return err
	}
	comments, err := h.svc.ListComments(c.Request().Context(), ident, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, comments)
}

type uploadURLRequest struct {
	Kind        string `json:"kind"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

func (h *Handler) uploadURL(c echo.Context) error {
	ident, err := identityOr401(c)
	if err != nil {
		return err
	}
	id, err := caseID(c)
	if err != nil {
		return err
	}
	var req uploadURLRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	target, err := h.svc.CreateUploadURL(c.Request().Context(), ident, id, req.Kind, req.Filename, req.ContentType)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, target)
}

type confirmFileRequest struct {
	Kind  string `json:"kind"`
	Key   string `json:"key"`
	Label string `json:"label"`
}

func (h *Handler) confirmFile(c echo.Context) error {
	ident, err := identityOr401(c)
	if err != nil {
		return err
	}
	id, err := caseID(c)
	if err != nil {
		return err
	}
	var req confirmFileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	f, err := h.svc.ConfirmFile(c.Request().Context(), ident, id, req.Kind, req.Key, req.Label)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, f)
}

func (h *Handler) listFiles(c echo.Context) error {
	ident, err := identityOr401(c)
	if err != nil {
		return err
	}
	id, err := caseID(c)
	if err != nil {
		return err
	}
	files, err := h.svc.ListFiles(c.Request().Context(), ident, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, files)
}

func (h *Handler) markRead(c echo.Context) error {
	ident, err := identityOr401(c)
	if err != nil {
		return err
	}
	id, err := caseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.MarkRead(c.Request().Context(), ident, id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
