package api

import (
	"errors"

	models "ChainCast/internal/domain/models"
	"ChainCast/internal/registry"
	svcmetrics "ChainCast/internal/service/metrics"
	xhttp "ChainCast/pkg/http"
	xlogger "ChainCast/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RegistryHandler exposes model versions and A/B tests.
type RegistryHandler struct {
	logger *xlogger.Logger
	reg    *registry.Registry
}

func NewRegistryHandler(logger *xlogger.Logger, reg *registry.Registry) *RegistryHandler {
	svcmetrics.Register()
	return &RegistryHandler{logger: logger, reg: reg}
}

func (h *RegistryHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/models", h.ListModels)
	g.POST("/models/:id/metrics", h.UpdateMetrics)
	g.POST("/models/:id/load", h.LoadModel)
	g.POST("/abtests", h.CreateABTest)
	g.GET("/abtests", h.ListABTests)
	g.GET("/abtests/:id/assign", h.Assign)
	g.POST("/abtests/:id/stop", h.StopABTest)
}

func (h *RegistryHandler) ListModels(c echo.Context) error {
	versions := h.reg.ListVersions()
	return xhttp.ListResponse(c, versions, int64(len(versions)))
}

func (h *RegistryHandler) UpdateMetrics(c echo.Context) error {
	req := &models.MetricsUpdateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	err := h.reg.UpdateMetrics(c.Param("id"), models.Performance{
		Accuracy:  req.Accuracy,
		Precision: req.Precision,
		Recall:    req.Recall,
		F1:        req.F1,
	})
	if err != nil {
		return h.registryError(c, "update metrics", err)
	}
	v, _ := h.reg.GetVersion(c.Param("id"))
	return xhttp.SuccessResponse(c, v)
}

// LoadModel deploys a stored artifact into the live model. A missing or
// corrupt artifact reports loaded=false rather than failing the request.
func (h *RegistryHandler) LoadModel(c echo.Context) error {
	loaded := h.reg.LoadVersionedModel(c.Param("id"))
	result := "ok"
	if !loaded {
		result = "failed"
	}
	svcmetrics.ModelLoads.WithLabelValues(result).Inc()
	return xhttp.SuccessResponse(c, map[string]bool{"loaded": loaded})
}

func (h *RegistryHandler) CreateABTest(c echo.Context) error {
	req := &models.ABTestCreateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	test, err := h.reg.CreateABTest(req.ModelA, req.ModelB, req.TrafficSplit)
	if err != nil {
		return h.registryError(c, "create abtest", err)
	}
	return xhttp.CreatedResponse(c, test)
}

func (h *RegistryHandler) ListABTests(c echo.Context) error {
	tests := h.reg.ListABTests()
	return xhttp.ListResponse(c, tests, int64(len(tests)))
}

func (h *RegistryHandler) Assign(c echo.Context) error {
	userID := c.QueryParam("user")
	if userID == "" {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("user required"))
	}
	model, err := h.reg.ModelForUser(c.Param("id"), userID)
	if err != nil {
		return h.registryError(c, "assign", err)
	}
	svcmetrics.ABAssignments.WithLabelValues(model).Inc()
	return xhttp.SuccessResponse(c, map[string]string{"user": userID, "model": model})
}

func (h *RegistryHandler) StopABTest(c echo.Context) error {
	if err := h.reg.StopABTest(c.Param("id")); err != nil {
		return h.registryError(c, "stop abtest", err)
	}
	return xhttp.NoContentResponse(c)
}

func (h *RegistryHandler) registryError(c echo.Context, op string, err error) error {
	switch {
	case errors.Is(err, registry.ErrVersionNotFound), errors.Is(err, registry.ErrTestNotFound):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError(err.Error()))
	case errors.Is(err, registry.ErrTestInactive), errors.Is(err, registry.ErrBadSplit):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	default:
		h.logger.Error(op+" registry error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
}
