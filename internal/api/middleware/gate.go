package middleware

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ovialab/admin-portal/internal/api/metrics"
	"github.com/ovialab/admin-portal/internal/core/domain"
	"github.com/ovialab/admin-portal/internal/core/ports"
)

const (
	// LoginPath is where every authentication failure lands.
	LoginPath = "/login"
	// UnauthorizedPath is where authenticated users with the wrong role land.
	UnauthorizedPath = "/unauthorized"

	// ReasonUnauthenticated marks a session or profile that could not be
	// resolved; the login page treats it as an ordinary expiry.
	ReasonUnauthenticated = "unauthenticated"
	// ReasonForceLogout distinguishes administrator-invalidated sessions.
	ReasonForceLogout = "force_logout"
	// ReasonServerError is the generic fail-closed reason.
	ReasonServerError = "server_error"
)

// publicPrefixes bypass the gate entirely. Security headers still apply;
// they are attached by the headers middleware ahead of the gate.
var publicPrefixes = []string{
	LoginPath,
	UnauthorizedPath,
	"/auth/",
	"/static/",
	"/assets/",
	"/health",
	"/metrics",
	"/favicon.ico",
}

// publicExtensions cover icon and image requests issued outside the static
// prefix (browser favicons, manifest icons).
var publicExtensions = []string{".ico", ".png", ".jpg", ".jpeg", ".svg", ".gif", ".webp"}

// sensitivePrefixes are admin-only regardless of any other rule.
var sensitivePrefixes = []string{"/v1/admin", "/v1/configuracion", "/v1/usuarios"}

// routeFamily groups related route prefixes under one role allow-list.
type routeFamily struct {
	name     string
	prefixes []string
	allowed  map[string]struct{}
}

func (f *routeFamily) owns(path string) bool {
	for _, p := range f.prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func (f *routeFamily) allows(role string) bool {
	_, ok := f.allowed[role]
	return ok
}

var routeFamilies = []routeFamily{
	{
		name:     "laboratorio",
		prefixes: []string{"/v1/recepcion", "/v1/agenda", "/v1/laboratorio"},
		allowed: roleSet(
			"tecnico", "quimico", "analista",
			"recepcion", "recepcionista", "laboratorista",
		),
	},
	{
		name:     "comercial",
		prefixes: []string{"/v1/clientes", "/v1/cotizaciones", "/v1/comercial", "/v1/proyectos"},
		allowed: roleSet(
			"comercial", "ventas", "vendedor", "gerencia",
		),
	},
}

func roleSet(roles ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// GateConfig carries the dependencies of the access gate.
type GateConfig struct {
	Authority  ports.SessionAuthority
	Profiles   ports.ProfileRepository
	CookieName string
	Log        zerolog.Logger
}

// Gate is the per-request enforcement point that runs before any protected
// content is served. Each request makes exactly one pass:
//
//  1. public routes pass through;
//  2. no session cookie → login;
//  3. unknown session → login with an unauthenticated reason, cookie cleared;
//  4. missing profile → same as 3;
//  5. profile force-logout newer than the login → delete the stale session,
//     clear the cookie, login with a force_logout reason;
//  6. role checks: admin bypasses everything, sensitive prefixes are
//     admin-only, route families consult their allow-list; a role outside
//     the list lands on the unauthorized page, not on login;
//  7. anything unexpected fails closed to login with a server_error reason.
//
// The gate holds no state of its own; session exclusivity belongs entirely
// to the authority.
func Gate(cfg GateConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if isPublic(path) {
				return next(c)
			}

			cookie, err := c.Cookie(cfg.CookieName)
			if err != nil || cookie.Value == "" {
				return redirectLogin(c, cfg.CookieName, "", false)
			}

			ctx := c.Request().Context()
			session, err := cfg.Authority.Verify(ctx, cookie.Value)
			if err != nil {
				if errors.Is(err, domain.ErrSessionNotFound) {
					return redirectLogin(c, cfg.CookieName, ReasonUnauthenticated, true)
				}
				cfg.Log.Error().Err(err).Str("path", path).Msg("session verification failed")
				return redirectLogin(c, cfg.CookieName, ReasonServerError, true)
			}

			profile, err := cfg.Profiles.FindByID(ctx, session.UserID)
			if err != nil {
				if errors.Is(err, domain.ErrProfileNotFound) {
					return redirectLogin(c, cfg.CookieName, ReasonUnauthenticated, true)
				}
				cfg.Log.Error().Err(err).Str("user_id", session.UserID).Msg("profile load failed")
				return redirectLogin(c, cfg.CookieName, ReasonServerError, true)
			}

			if profile.ForcedOut(session.LastLoginAt) {
				// Lazy invalidation: the stale record is dropped here, at the
				// first check that touches it.
				if err := cfg.Authority.Delete(ctx, session.SessionID); err != nil {
					cfg.Log.Warn().Err(err).Str("session_id", session.SessionID).Msg("stale session cleanup failed")
				}
				cfg.Log.Info().
					Str("user_id", session.UserID).
					Time("last_login_at", session.LastLoginAt).
					Msg("stale session rejected after forced logout")
				return redirectLogin(c, cfg.CookieName, ReasonForceLogout, true)
			}

			c.Set("user_id", session.UserID)
			c.Set("role", profile.Role)

			role := strings.TrimSpace(profile.Role)
			if strings.EqualFold(role, domain.RoleAdmin) {
				metrics.GateDecisionsTotal.WithLabelValues("allowed").Inc()
				return next(c)
			}
			if isSensitive(path) {
				return redirectUnauthorized(c)
			}
			for i := range routeFamilies {
				family := &routeFamilies[i]
				if family.owns(path) && !family.allows(role) {
					return redirectUnauthorized(c)
				}
			}

			metrics.GateDecisionsTotal.WithLabelValues("allowed").Inc()
			return next(c)
		}
	}
}

func isPublic(path string) bool {
	for _, p := range publicPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	for _, ext := range publicExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func isSensitive(path string) bool {
	for _, p := range sensitivePrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func redirectLogin(c echo.Context, cookieName, reason string, clearCookie bool) error {
	if clearCookie {
		expireCookie(c, cookieName)
	}

	outcome := "login_redirect"
	if reason != "" {
		outcome = reason
	}
	metrics.GateDecisionsTotal.WithLabelValues(outcome).Inc()

	target := LoginPath
	if reason != "" {
		target += "?reason=" + url.QueryEscape(reason)
	}
	return c.Redirect(http.StatusFound, target)
}

func redirectUnauthorized(c echo.Context) error {
	metrics.GateDecisionsTotal.WithLabelValues("unauthorized").Inc()
	return c.Redirect(http.StatusFound, UnauthorizedPath)
}

// expireCookie overwrites the session cookie with an already-expired one.
func expireCookie(c echo.Context, name string) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
