package api

import (
	"errors"
	"net/http"
	"time"

	models "ChainCast/internal/domain/models"
	"ChainCast/internal/agent"
	"ChainCast/internal/predictor"
	"ChainCast/internal/usecase"
	xhttp "ChainCast/pkg/http"
	xlogger "ChainCast/pkg/logger"

	"github.com/labstack/echo/v4"
)

// PipelineHandler serves predictions, decisions, and observation history.
type PipelineHandler struct {
	logger   *xlogger.Logger
	pipeline *usecase.Pipeline
	history  *usecase.History
}

func NewPipelineHandler(logger *xlogger.Logger, pipeline *usecase.Pipeline, history *usecase.History) *PipelineHandler {
	return &PipelineHandler{logger: logger, pipeline: pipeline, history: history}
}

func (h *PipelineHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/predict", h.Predict)
	g.POST("/decide", h.Decide)
	g.GET("/observations", h.Observations)
}

func (h *PipelineHandler) Predict(c echo.Context) error {
	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	forecast, err := h.pipeline.Forecast(c.Request().Context(), req.Observations)
	if err != nil {
		return h.modelError(c, "predict", err)
	}
	return xhttp.SuccessResponse(c, models.PredictResponse{
		Price:      forecast.Price,
		Confidence: forecast.Confidence * 100,
		Direction:  forecast.Direction,
		Timestamp:  forecast.Timestamp,
	})
}

func (h *PipelineHandler) Decide(c echo.Context) error {
	req := &models.DecideRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	decision, err := h.pipeline.Decide(c.Request().Context(), req.Feature.Vector(), *req.PortfolioRatio)
	if err != nil {
		return h.modelError(c, "decide", err)
	}
	return xhttp.SuccessResponse(c, models.DecideResponse{
		Action:     decision.Action,
		Confidence: decision.Confidence,
		Timestamp:  time.Now().UTC(),
	})
}

func (h *PipelineHandler) Observations(c echo.Context) error {
	from := xhttp.ParseTimeDefault(c.QueryParam("from"), time.Now().Add(-24*time.Hour))
	if s := c.QueryParam("from"); s != "" {
		if _, ok := xhttp.ParseTime(s); !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError("invalid from"))
		}
	}
	to := xhttp.ParseTimeDefault(c.QueryParam("to"), time.Now())
	if s := c.QueryParam("to"); s != "" {
		if _, ok := xhttp.ParseTime(s); !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError("invalid to"))
		}
	}
	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 1000)

	res, err := h.history.Get(c.Request().Context(), usecase.HistoryParams{
		From:  from,
		To:    to,
		Limit: limit,
	})
	if err != nil {
		h.logger.Error("observations usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	return xhttp.SuccessResponse(c, res)
}

// modelError distinguishes untrained models (503) from bad input (400).
func (h *PipelineHandler) modelError(c echo.Context, op string, err error) error {
	switch {
	case errors.Is(err, predictor.ErrNotReady), errors.Is(err, agent.ErrNotReady):
		return xhttp.AppErrorResponse(c,
			xhttp.NewAppError("ERR_MODEL_NOT_READY", "", "model not trained yet", http.StatusServiceUnavailable))
	case errors.Is(err, predictor.ErrInsufficientData),
		errors.Is(err, usecase.ErrBadWindow),
		errors.Is(err, agent.ErrBadRatio):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	default:
		h.logger.Error(op+" usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
}
