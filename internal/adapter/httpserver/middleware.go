package httpserver

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/satoshiwasHere/alx-polly/internal/domain"
	"github.com/satoshiwasHere/alx-polly/internal/platform/correlation"
	apperrors "github.com/satoshiwasHere/alx-polly/internal/platform/errors"
)

// userIDHeader carries the caller identity set by the upstream proxy. It is
// trusted as is.
const userIDHeader = "X-User-ID"

const maxUserIDLen = 128

func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := correlation.FromHeader(c.Request().Header.Get(correlation.HeaderName))
		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		c.Response().Header().Set(correlation.HeaderName, id)
		return next(c)
	}
}

// userID returns the trimmed identity header, or "" for anonymous callers.
// The value is also stored on the context for error logging.
func userID(c echo.Context) (string, error) {
	id := strings.TrimSpace(c.Request().Header.Get(userIDHeader))
	if len(id) > maxUserIDLen {
		return "", apperrors.ValidationError("user id too long").WithField("max_length", maxUserIDLen)
	}
	if id != "" {
		c.Set("userID", id)
	}
	return id, nil
}

// toAppError maps domain and store errors onto structured HTTP errors.
func toAppError(err error, pollID string) error {
	switch {
	case errors.Is(err, domain.ErrPollNotFound):
		return apperrors.NotFoundError("poll not found").WithField("poll_id", pollID)
	case errors.Is(err, domain.ErrOptionNotFound):
		return apperrors.NotFoundError("option not found").WithField("poll_id", pollID)
	case errors.Is(err, domain.ErrPollInactive):
		return apperrors.ConflictError("poll is not active").WithField("poll_id", pollID).WithField("reason", "inactive")
	case errors.Is(err, domain.ErrPollExpired):
		return apperrors.ConflictError("poll has expired").WithField("poll_id", pollID).WithField("reason", "expired")
	case errors.Is(err, domain.ErrAlreadyVoted):
		return apperrors.ConflictError("already voted on this poll").WithField("poll_id", pollID).WithField("reason", "already_voted")
	case errors.Is(err, domain.ErrPollExists):
		return apperrors.ConflictError("poll already exists").WithField("poll_id", pollID).WithField("reason", "exists")
	case errors.Is(err, domain.ErrInvalidPoll):
		return apperrors.ValidationError(err.Error())
	case errors.Is(err, domain.ErrForbidden):
		return apperrors.ForbiddenError("only the poll creator may do this").WithField("poll_id", pollID)
	case errors.Is(err, domain.ErrStoreTimeout):
		return apperrors.TimeoutError("vote store timed out", err).WithField("poll_id", pollID)
	case errors.Is(err, domain.ErrStoreUnavailable):
		return apperrors.UnavailableError("vote store unavailable", err).WithField("poll_id", pollID)
	default:
		return apperrors.InternalError("request failed", err).WithField("poll_id", pollID)
	}
}
