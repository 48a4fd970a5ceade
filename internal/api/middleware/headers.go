package middleware

import "github.com/labstack/echo/v4"

// securityHeaders are attached to every response, including gate rejections.
var securityHeaders = map[string]string{
	"X-Frame-Options":           "DENY",
	"X-Content-Type-Options":    "nosniff",
	"Referrer-Policy":           "strict-origin-when-cross-origin",
	"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	"Permissions-Policy":        "camera=(), geolocation=(), microphone=()",
}

// SecurityHeaders attaches the baseline security headers. It runs ahead of
// the gate so rejected requests carry them too.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Response().Header()
			for name, value := range securityHeaders {
				header.Set(name, value)
			}
			return next(c)
		}
	}
}
