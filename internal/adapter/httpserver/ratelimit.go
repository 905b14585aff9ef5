package httpserver

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	apperrors "github.com/satoshiwasHere/alx-polly/internal/platform/errors"
)

const rateLimiterExpiry = 5 * time.Minute

func newMemoryRateLimiterStore(ratePerSecond float64, burst int) middleware.RateLimiterStore {
	return middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
}

// newRateLimiter limits requests per client IP. Callers identified by the
// user header get their own bucket so voters behind one NAT do not starve
// each other.
func newRateLimiter(store middleware.RateLimiterStore) echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			if user := c.Request().Header.Get(userIDHeader); user != "" && len(user) <= maxUserIDLen {
				return c.RealIP() + "|" + user, nil
			}
			return c.RealIP(), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			apperrors.HTTPErrorsTotal.WithLabelValues(string(apperrors.TypeValidation)).Inc()
			c.Response().Header().Set("Retry-After", "1")
			resp := apperrors.ValidationError("rate limit exceeded").ToResponse()
			return c.JSON(http.StatusTooManyRequests, resp)
		},
	})
}
