package api

import (
	"errors"
	"net/http"

	models "ChainCast/internal/domain/models"
	"ChainCast/internal/oracle"
	xhttp "ChainCast/pkg/http"
	xlogger "ChainCast/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// keyHeader carries the caller's publisher or owner key. The on-chain
// analogue is msg.sender; over HTTP it is a shared-secret header.
const keyHeader = "X-Oracle-Key"

// OracleHandler exposes the gate's ABI surface plus the trade contract.
type OracleHandler struct {
	logger   *xlogger.Logger
	gate     *oracle.Gate
	executor *oracle.Executor
}

func NewOracleHandler(logger *xlogger.Logger, gate *oracle.Gate, executor *oracle.Executor) *OracleHandler {
	return &OracleHandler{logger: logger, gate: gate, executor: executor}
}

func (h *OracleHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/oracle")
	g.POST("/publish", h.Publish)
	g.GET("/prediction", h.Prediction)
	g.GET("/valid", h.Valid)
	g.POST("/invalidate", h.Invalidate)
	g.POST("/threshold", h.Threshold)

	t := e.Group("/api/trade")
	t.POST("/swap", h.Swap)
	t.POST("/pause", h.Pause)
	t.POST("/unpause", h.Unpause)
}

func (h *OracleHandler) Publish(c echo.Context) error {
	req := &models.OraclePublishRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	key := c.Request().Header.Get(keyHeader)
	if err := h.gate.Publish(key, req.Price, req.Confidence, req.ExpiresAt); err != nil {
		return h.gateError(c, "publish", err)
	}
	pred, _ := h.gate.Prediction()
	return xhttp.SuccessResponse(c, pred)
}

func (h *OracleHandler) Prediction(c echo.Context) error {
	pred, ok := h.gate.Prediction()
	if !ok {
		return xhttp.NotFoundResponse(c, "no prediction published")
	}
	return xhttp.SuccessResponse(c, pred)
}

func (h *OracleHandler) Valid(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"valid":     h.gate.IsValid(),
		"state":     h.gate.State(),
		"threshold": h.gate.Threshold(),
	})
}

func (h *OracleHandler) Invalidate(c echo.Context) error {
	key := c.Request().Header.Get(keyHeader)
	if err := h.gate.Invalidate(key); err != nil {
		return h.gateError(c, "invalidate", err)
	}
	return xhttp.SuccessResponse(c, map[string]string{"state": string(h.gate.State())})
}

func (h *OracleHandler) Threshold(c echo.Context) error {
	req := &models.OracleThresholdRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	key := c.Request().Header.Get(keyHeader)
	if err := h.gate.UpdateConfidenceThreshold(key, req.Threshold); err != nil {
		return h.gateError(c, "threshold", err)
	}
	return xhttp.SuccessResponse(c, map[string]int64{"threshold": h.gate.Threshold()})
}

func (h *OracleHandler) Swap(c echo.Context) error {
	req := &models.SwapRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("invalid amount"))
	}

	receipt, err := h.executor.ExecuteSwap(oracle.SwapParams{
		TokenIn:  req.TokenIn,
		TokenOut: req.TokenOut,
		Amount:   amount,
		Deadline: req.Deadline,
	})
	if err != nil {
		return h.gateError(c, "swap", err)
	}
	return xhttp.SuccessResponse(c, receipt)
}

func (h *OracleHandler) Pause(c echo.Context) error {
	if err := h.executor.Pause(c.Request().Header.Get(keyHeader)); err != nil {
		return h.gateError(c, "pause", err)
	}
	return xhttp.SuccessResponse(c, map[string]bool{"paused": true})
}

func (h *OracleHandler) Unpause(c echo.Context) error {
	if err := h.executor.Unpause(c.Request().Header.Get(keyHeader)); err != nil {
		return h.gateError(c, "unpause", err)
	}
	return xhttp.SuccessResponse(c, map[string]bool{"paused": false})
}

// gateError maps contract errors onto HTTP statuses. A closed gate is a
// conflict, not a server fault, and carries the observed confidence.
func (h *OracleHandler) gateError(c echo.Context, op string, err error) error {
	var closed *oracle.GateClosedError
	switch {
	case errors.Is(err, oracle.ErrUnauthorized):
		return xhttp.AppErrorResponse(c, xhttp.UnauthorizedError("caller key rejected"))
	case errors.As(err, &closed):
		return xhttp.AppErrorResponse(c,
			xhttp.NewAppError("ERR_GATE_CLOSED", "", closed.Error(), http.StatusConflict).
				WithParam("confidence", closed.Confidence))
	case errors.Is(err, oracle.ErrPaused):
		return xhttp.AppErrorResponse(c,
			xhttp.NewAppError("ERR_TRADING_PAUSED", "", err.Error(), http.StatusConflict))
	case errors.Is(err, oracle.ErrBadPrice),
		errors.Is(err, oracle.ErrBadConfidence),
		errors.Is(err, oracle.ErrBadExpiry),
		errors.Is(err, oracle.ErrBadAmount),
		errors.Is(err, oracle.ErrBadTokens),
		errors.Is(err, oracle.ErrBadDeadline):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	default:
		h.logger.Error(op+" gate error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
}
