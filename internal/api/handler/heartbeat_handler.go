package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ovialab/admin-portal/internal/api/metrics"
	"github.com/ovialab/admin-portal/internal/core/ports"
)

// HeartbeatHandler receives liveness pings from authenticated clients.
type HeartbeatHandler struct {
	tracker ports.LivenessTracker
	log     zerolog.Logger
}

func NewHeartbeatHandler(tracker ports.LivenessTracker, log zerolog.Logger) *HeartbeatHandler {
	return &HeartbeatHandler{tracker: tracker, log: log}
}

// Receive handles POST /v1/session/heartbeat. Clients treat any 2xx as
// success and swallow failures, so a tracker error is logged but still
// answered with 204; the next tick retries anyway.
//
// @Summary      Record a client heartbeat
// @Tags         session
// @Accept       json
// @Param        body  body  heartbeatRequest  true  "Heartbeat"
// @Success      204   "recorded"
// @Failure      422   {object}  errorResponse
// @Router       /v1/session/heartbeat [post]
func (h *HeartbeatHandler) Receive(c echo.Context) error {
	var req heartbeatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	if err := h.tracker.Ping(c.Request().Context(), req.UserID); err != nil {
		metrics.HeartbeatsTotal.WithLabelValues("error").Inc()
		h.log.Warn().Err(err).Str("user_id", req.UserID).Msg("heartbeat not recorded")
		return c.NoContent(http.StatusNoContent)
	}

	metrics.HeartbeatsTotal.WithLabelValues("ok").Inc()
	return c.NoContent(http.StatusNoContent)
}
