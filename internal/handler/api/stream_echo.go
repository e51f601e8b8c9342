package api

import (
	"ChainCast/internal/stream"
	xhttp "ChainCast/pkg/http"
	xlogger "ChainCast/pkg/logger"

	"github.com/labstack/echo/v4"
)

// StreamHandler controls the streaming coordinator over HTTP.
type StreamHandler struct {
	logger *xlogger.Logger
	coord  *stream.Coordinator
}

func NewStreamHandler(logger *xlogger.Logger, coord *stream.Coordinator) *StreamHandler {
	return &StreamHandler{logger: logger, coord: coord}
}

func (h *StreamHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/stream")
	g.POST("/start", h.Start)
	g.POST("/stop", h.Stop)
	g.GET("/status", h.Status)
}

func (h *StreamHandler) Start(c echo.Context) error {
	if err := h.coord.Start(c.Request().Context()); err != nil {
		h.logger.Error("stream start error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("stream start: %v", err))
	}
	return xhttp.SuccessResponse(c, h.coord.Status())
}

func (h *StreamHandler) Stop(c echo.Context) error {
	if err := h.coord.Stop(); err != nil {
		h.logger.Warn("stream stop error", xlogger.Error(err))
	}
	return xhttp.SuccessResponse(c, h.coord.Status())
}

func (h *StreamHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.coord.Status())
}
