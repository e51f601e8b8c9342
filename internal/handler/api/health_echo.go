package api

import (
	"context"
	"net/http"
	"time"

	drepo "ChainCast/internal/domain/repository"
	xhttp "ChainCast/pkg/http"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// HealthHandler reports reachability of the storage dependencies.
type HealthHandler struct {
	store drepo.ObservationStore
	redis *redis.Client
}

func NewHealthHandler(store drepo.ObservationStore, redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{store: store, redis: redisClient}
}

func (h *HealthHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
}

func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if h.store != nil {
		if err := h.store.Health(ctx); err != nil {
			checks["clickhouse"] = err.Error()
			healthy = false
		} else {
			checks["clickhouse"] = "ok"
		}
	}
	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}

	if !healthy {
		appErr := xhttp.NewAppError("ERR_UNHEALTHY", "", "dependency check failed", http.StatusServiceUnavailable)
		for name, state := range checks {
			appErr = appErr.WithParam(name, state)
		}
		return xhttp.AppErrorResponse(c, appErr)
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"status": "ok",
		"checks": checks,
	})
}
