package indexcheck

import (
	"errors"
	"os"

	"index-checker/core/logger"
	"index-checker/core/reconcile"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for index checks.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the index check routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/indexcheck")
	group.Get("/models", h.HandleModels)
	group.Post("/run", h.HandleRun)
	group.Post("/repair", h.HandleRepair)
	group.Get("/index", h.HandleIndexStatus)
	group.Get("/index/terms/:field", h.HandleTermValues)
	group.Get("/reports", h.HandleListReports)
	group.Get("/reports/:name", h.HandleGetReport)
}

type modelView struct {
	Name         string                 `json:"name"`
	Table        string                 `json:"table"`
	PrimaryKey   string                 `json:"primary_key"`
	Attributes   []string               `json:"attributes"`
	Capabilities reconcile.Capabilities `json:"capabilities"`
	Filter       string                 `json:"filter,omitempty"`
}

func newModelView(m *reconcile.ModelDescriptor) modelView {
	v := modelView{
		Name:         m.Name(),
		Table:        m.Table(),
		PrimaryKey:   m.PrimaryKey(),
		Attributes:   m.Attributes(),
		Capabilities: m.Capabilities(),
	}
	if f := m.Filter(); f != nil {
		v.Filter = f.String()
	}
	return v
}

// HandleModels lists the models a run would check.
func (h *Handler) HandleModels(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	models, failed, err := h.service.Models(c.Context(), nil)
	if err != nil {
		l.Error("Listing models failed", zap.Error(err))
		return errorResponse(c, err)
	}

	views := make([]modelView, 0, len(models))
	for _, m := range models {
		views = append(views, newModelView(m))
	}
	return c.JSON(fiber.Map{
		"models": views,
		"errors": failed,
	})
}

// HandleRun runs a check. The body is optional; every field falls back to
// the configured default.
func (h *Handler) HandleRun(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	var req RunRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
	}

	l.Info("Index check requested", zap.Strings("models", req.Models), zap.Int64s("companies", req.Companies))
	report, err := h.service.Run(c.Context(), req)
	if err != nil {
		l.Error("Index check failed", zap.Error(err))
		return errorResponse(c, err)
	}
	return c.JSON(report)
}

// HandleRepair runs a check and plans repairs. Changes are only applied
// with "confirm": true and "dry_run": false.
func (h *Handler) HandleRepair(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	req := RepairRequest{DryRun: true}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
	}

	result, err := h.service.Repair(c.Context(), req)
	if err != nil {
		l.Error("Index repair failed", zap.Error(err))
		if result != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":  err.Error(),
				"result": result,
			})
		}
		return errorResponse(c, err)
	}
	return c.JSON(result)
}

// HandleIndexStatus reports whether the index is reachable and how many
// documents it holds.
func (h *Handler) HandleIndexStatus(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	status, err := h.service.IndexStatus(c.Context())
	if err != nil {
		l.Error("Index status failed", zap.Error(err))
		return errorResponse(c, err)
	}
	return c.JSON(status)
}

// HandleTermValues lists the distinct values of an index field.
func (h *Handler) HandleTermValues(c *fiber.Ctx) error {
	field := c.Params("field")
	l := logger.WithRayID(h.service.logger, c)

	values, err := h.service.TermValues(c.Context(), field)
	if err != nil {
		l.Error("Term values failed", zap.String("field", field), zap.Error(err))
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"field":  field,
		"values": values,
	})
}

// HandleListReports lists saved reports, newest first.
func (h *Handler) HandleListReports(c *fiber.Ctx) error {
	reports := h.service.Reports()
	if reports == nil {
		return c.JSON(fiber.Map{"reports": []ReportInfo{}})
	}

	list, err := reports.List(c.Context())
	if err != nil {
		logger.WithRayID(h.service.logger, c).Error("Listing reports failed", zap.Error(err))
		return errorResponse(c, err)
	}
	if list == nil {
		list = []ReportInfo{}
	}
	return c.JSON(fiber.Map{"reports": list})
}

// HandleGetReport returns a saved report.
func (h *Handler) HandleGetReport(c *fiber.Ctx) error {
	name := c.Params("name")
	reports := h.service.Reports()
	if reports == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "reports are disabled"})
	}

	data, err := reports.Load(c.Context(), name)
	if errors.Is(err, os.ErrNotExist) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "report not found"})
	}
	if err != nil {
		logger.WithRayID(h.service.logger, c).Error("Loading report failed", zap.String("name", name), zap.Error(err))
		return errorResponse(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(data)
}

// errorResponse maps the error taxonomy to a status code.
func errorResponse(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, reconcile.ErrConfiguration):
		status = fiber.StatusBadRequest
	case errors.Is(err, reconcile.ErrStoreUnavailable), errors.Is(err, reconcile.ErrIndexUnavailable):
		status = fiber.StatusServiceUnavailable
	case errors.Is(err, errors.ErrUnsupported):
		status = fiber.StatusNotImplemented
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}
