package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
)

// ClientKeyFromCtx extracts the authenticated API key set by APIKeyMiddleware.
func ClientKeyFromCtx(c echo.Context) (string, bool) {
	v := c.Get("client_key")
	key, ok := v.(string)
	return key, ok
}

// APIKeyMiddleware authenticates requests using the X-API-Key header against
// a static key list. An empty list disables authentication (dev mode).
// Comparison is constant-time.
func APIKeyMiddleware(keys []string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if len(keys) == 0 {
				return next(c)
			}

			key := strings.TrimSpace(c.Request().Header.Get("X-API-Key"))
			if key == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing api key"})
			}

			for _, known := range keys {
				if subtle.ConstantTimeCompare([]byte(key), []byte(known)) == 1 {
					c.Set("client_key", key)
					return next(c)
				}
			}

			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
		}
	}
}
