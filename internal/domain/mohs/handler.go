package mohs

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mohs/mohs/internal/platform/auth"
	"github.com/mohs/mohs/internal/platform/db"
	"github.com/mohs/mohs/pkg/pagination"
)

const queryDateLayout = "2006-01-02"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/mohs")

	// Read endpoints: admin, physician, surgeon, nurse
	readGroup := g.Group("", auth.RequireRole("admin", "physician", "surgeon", "nurse"))
	readGroup.GET("/cases", h.ListCases)
	readGroup.GET("/cases/:id", h.GetCase)
	readGroup.GET("/cases/:id/report", h.GetReport)
	readGroup.GET("/cpt", h.CalculateCodes)
	readGroup.GET("/stats", h.GetStats)

	// Write endpoints: admin, physician, surgeon
	writeGroup := g.Group("", auth.RequireRole("admin", "physician", "surgeon"))
	writeGroup.POST("/cases", h.CreateCase)
	writeGroup.PATCH("/cases/:id/status", h.UpdateCaseStatus)
	writeGroup.DELETE("/cases/:id", h.DeleteCase)
	writeGroup.POST("/cases/:id/stages", h.AddStage)
	writeGroup.PUT("/cases/:id/stages/:stageId/margins", h.RecordMargins)
	writeGroup.POST("/cases/:id/closure", h.CloseCase)
	writeGroup.POST("/cases/:id/maps", h.SaveMap)
}

// httpError maps service error kinds onto HTTP status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidArgument):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
	}
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func queryUUID(c echo.Context, name string) (*uuid.UUID, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return &id, nil
}

func queryDate(c echo.Context, name string) (*time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(queryDateLayout, v)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name+", expected YYYY-MM-DD")
	}
	return &t, nil
}

func tenantAndActor(c echo.Context) (string, string) {
	ctx := c.Request().Context()
	return db.TenantFromContext(ctx), auth.UserIDFromContext(ctx)
}

// -- Case Handlers --

func (h *Handler) CreateCase(c echo.Context) error {
	var mc Case
	if err := c.Bind(&mc); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	tenant, actor := tenantAndActor(c)
	out, err := h.svc.CreateCase(c.Request().Context(), tenant, &mc, actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *Handler) GetCase(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	tenant, _ := tenantAndActor(c)
	d, err := h.svc.GetCase(c.Request().Context(), tenant, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListCases(c echo.Context) error {
	pg := pagination.FromContext(c)
	var f CaseFilter
	var err error
	if f.SurgeonID, err = queryUUID(c, "surgeon_id"); err != nil {
		return err
	}
	if f.PatientID, err = queryUUID(c, "patient_id"); err != nil {
		return err
	}
	if f.From, err = queryDate(c, "from"); err != nil {
		return err
	}
	if f.To, err = queryDate(c, "to"); err != nil {
		return err
	}
	if v := c.QueryParam("status"); v != "" {
		st := CaseStatus(v)
		f.Status = &st
	}
	if v := c.QueryParam("tumor_type"); v != "" {
		f.TumorType = &v
	}

	tenant, _ := tenantAndActor(c)
	items, total, err := h.svc.ListCases(c.Request().Context(), tenant, f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type statusRequest struct {
	Status CaseStatus `json:"status"`
}

func (h *Handler) UpdateCaseStatus(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	tenant, actor := tenantAndActor(c)
	out, err := h.svc.UpdateCaseStatus(c.Request().Context(), tenant, id, req.Status, actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) DeleteCase(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	tenant, actor := tenantAndActor(c)
	if err := h.svc.DeleteCase(c.Request().Context(), tenant, id, actor); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) CloseCase(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var cl Closure
	if err := c.Bind(&cl); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	tenant, actor := tenantAndActor(c)
	out, err := h.svc.CloseCase(c.Request().Context(), tenant, id, &cl, actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"case": out, "closure": &cl})
}

// -- Stage Handlers --

func (h *Handler) AddStage(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var st Stage
	if err := c.Bind(&st); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	tenant, actor := tenantAndActor(c)
	out, err := h.svc.AddStage(c.Request().Context(), tenant, id, &st, actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, out)
}

type marginsRequest struct {
	Blocks []*Block `json:"blocks"`
}

func (h *Handler) RecordMargins(c echo.Context) error {
	caseID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	stageID, err := parseID(c, "stageId")
	if err != nil {
		return err
	}
	var req marginsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	tenant, actor := tenantAndActor(c)
	res, err := h.svc.RecordCaseMargins(c.Request().Context(), tenant, caseID, stageID, req.Blocks, actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// -- Map Handlers --

func (h *Handler) SaveMap(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var m Map
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	tenant, actor := tenantAndActor(c)
	out, err := h.svc.SaveMap(c.Request().Context(), tenant, id, &m, actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, out)
}

// -- Report, Codes and Stats Handlers --

func (h *Handler) GetReport(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	tenant, _ := tenantAndActor(c)
	r, err := h.svc.GenerateReport(c.Request().Context(), tenant, id)
	if err != nil {
		return httpError(err)
	}
	if c.QueryParam("format") == "text" {
		return c.String(http.StatusOK, r.Text)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) CalculateCodes(c echo.Context) error {
	location := c.QueryParam("location")
	if location == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "location is required")
	}
	stages, err := strconv.Atoi(c.QueryParam("stages"))
	if err != nil || stages < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "stages must be a non-negative integer")
	}
	blocks := 0
	if v := c.QueryParam("blocks"); v != "" {
		if blocks, err = strconv.Atoi(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "blocks must be an integer")
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"location": location,
		"complex":  IsComplexLocation(location),
		"codes":    CalculateCodes(location, stages, blocks),
	})
}

func (h *Handler) GetStats(c echo.Context) error {
	var f StatsFilter
	var err error
	if f.SurgeonID, err = queryUUID(c, "surgeon_id"); err != nil {
		return err
	}
	if f.From, err = queryDate(c, "from"); err != nil {
		return err
	}
	if f.To, err = queryDate(c, "to"); err != nil {
		return err
	}
	tenant, _ := tenantAndActor(c)
	st, err := h.svc.GetStats(c.Request().Context(), tenant, f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, st)
}
