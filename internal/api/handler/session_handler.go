package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ovialab/admin-portal/internal/api/metrics"
	"github.com/ovialab/admin-portal/internal/core/domain"
	"github.com/ovialab/admin-portal/internal/core/ports"
)

// CookieConfig describes the session cookie the handler issues.
type CookieConfig struct {
	Name   string
	Secure bool
}

// SessionHandler exposes session creation and sign-out.
type SessionHandler struct {
	authority ports.SessionAuthority
	verifier  *IdentityVerifier
	replay    ports.TokenReplayGuard
	cookie    CookieConfig
}

func NewSessionHandler(authority ports.SessionAuthority, verifier *IdentityVerifier, replay ports.TokenReplayGuard, cookie CookieConfig) *SessionHandler {
	return &SessionHandler{authority: authority, verifier: verifier, replay: replay, cookie: cookie}
}

// Create handles POST /auth/session — exchanges an identity token for an
// exclusive session.
//
// @Summary      Create the user's exclusive session
// @Tags         session
// @Accept       json
// @Produce      json
// @Param        body  body      createSessionRequest  true  "Identity token"
// @Success      201   {object}  createSessionResponse
// @Failure      401   {object}  errorResponse
// @Failure      409   {object}  conflictResponse
// @Router       /auth/session [post]
func (h *SessionHandler) Create(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	userID, err := h.verifier.VerifyIDToken(req.IDToken)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid identity token")
	}

	ctx := c.Request().Context()
	if used, err := h.replay.Used(ctx, req.IDToken); err != nil {
		return err
	} else if used {
		return echo.NewHTTPError(http.StatusUnauthorized, "identity token already exchanged")
	}

	session, err := h.authority.Create(ctx, userID, req.Force)
	if err != nil {
		var conflict *domain.SessionConflictError
		if errors.As(err, &conflict) {
			// No cookie is ever set for the rejected attempt.
			metrics.SessionsCreatedTotal.WithLabelValues("conflict").Inc()
			return c.JSON(http.StatusConflict, conflictResponse{
				Error:   "SESSION_EXISTS",
				Details: conflictDetails{LastLoginAt: conflict.LastLoginAt},
			})
		}
		return err
	}

	result := "created"
	if req.Force {
		result = "reclaimed"
	}
	metrics.SessionsCreatedTotal.WithLabelValues(result).Inc()

	// Best effort: a missed mark only widens the replay window to the
	// token's own expiry.
	_ = h.replay.Mark(ctx, req.IDToken)

	c.SetCookie(&http.Cookie{
		Name:     h.cookie.Name,
		Value:    session.SessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return c.JSON(http.StatusCreated, createSessionResponse{Success: true, Session: session})
}

// Delete handles DELETE /auth/session — explicit sign-out.
//
// @Summary      Delete the current session
// @Tags         session
// @Success      204  "signed out"
// @Router       /auth/session [delete]
func (h *SessionHandler) Delete(c echo.Context) error {
	cookie, err := c.Cookie(h.cookie.Name)
	if err == nil && cookie.Value != "" {
		if err := h.authority.Delete(c.Request().Context(), cookie.Value); err != nil {
			return err
		}
	}

	c.SetCookie(&http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return c.NoContent(http.StatusNoContent)
}
