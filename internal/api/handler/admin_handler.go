package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ovialab/admin-portal/internal/api/metrics"
	"github.com/ovialab/admin-portal/internal/core/ports"
)

// AdminHandler exposes administrator actions on user accounts.
type AdminHandler struct {
	profiles ports.ProfileRepository
	feed     ports.ChangeFeed
	log      zerolog.Logger
}

func NewAdminHandler(profiles ports.ProfileRepository, feed ports.ChangeFeed, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{profiles: profiles, feed: feed, log: log}
}

// ForceLogout handles POST /v1/admin/users/:id/force-logout. It stamps the
// profile and publishes the update on the change feed; the user's session
// record is untouched and expires lazily at the next gate check.
//
// @Summary      Force a user's session to be invalidated
// @Tags         admin
// @Produce      json
// @Param        id   path      string  true  "User id"
// @Success      200  {object}  forceLogoutResponse
// @Failure      404  {object}  errorResponse
// @Router       /v1/admin/users/{id}/force-logout [post]
func (h *AdminHandler) ForceLogout(c echo.Context) error {
	userID := c.Param("id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing user id")
	}

	// Millisecond precision matches what the bson datetime stores, so the
	// value on the feed equals the value a later profile fetch returns.
	at := time.Now().UTC().Truncate(time.Millisecond)
	if err := h.profiles.ForceLogout(c.Request().Context(), userID, at); err != nil {
		return err
	}

	// Feed delivery is best effort: a tab that misses the event still gets
	// caught by the gate on its next request.
	if err := h.feed.Publish(c.Request().Context(), ports.ProfileEvent{
		UserID:            userID,
		LastForceLogoutAt: &at,
	}); err != nil {
		h.log.Warn().Err(err).Str("user_id", userID).Msg("force-logout event not published")
	}

	metrics.ForceLogoutsTotal.Inc()
	h.log.Info().Str("user_id", userID).Time("at", at).Msg("forced logout issued")

	return c.JSON(http.StatusOK, forceLogoutResponse{UserID: userID, LastForceLogoutAt: at})
}
