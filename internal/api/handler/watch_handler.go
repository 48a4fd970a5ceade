package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ovialab/admin-portal/internal/api/metrics"
	"github.com/ovialab/admin-portal/internal/core/ports"
)

// WatchHandler bridges the server-side change feed to browser tabs over
// server-sent events. Each tab holds exactly one stream; convergence across
// tabs depends on each one's own stream delivering the event.
type WatchHandler struct {
	feed ports.ChangeFeed
	log  zerolog.Logger
}

func NewWatchHandler(feed ports.ChangeFeed, log zerolog.Logger) *WatchHandler {
	return &WatchHandler{feed: feed, log: log}
}

// Watch handles GET /v1/session/watch — an SSE stream of profile updates for
// the authenticated user. The stream ends when the client disconnects.
//
// @Summary      Stream profile updates for the current user
// @Tags         session
// @Produce      text/event-stream
// @Success      200  "event stream"
// @Failure      401  {object}  errorResponse
// @Router       /v1/session/watch [get]
func (h *WatchHandler) Watch(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "no authenticated session")
	}

	sub, err := h.feed.Subscribe(c.Request().Context(), userID)
	if err != nil {
		return fmt.Errorf("watch subscribe: %w", err)
	}
	defer sub.Close()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	metrics.ActiveWatchStreams.Inc()
	defer metrics.ActiveWatchStreams.Dec()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-sub.Events():
			if !ok {
				return nil
			}
			payload, err := json.Marshal(event)
			if err != nil {
				h.log.Warn().Err(err).Str("user_id", userID).Msg("profile event not encodable")
				continue
			}
			if _, err := fmt.Fprintf(res, "event: profile\ndata: %s\n\n", payload); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}
