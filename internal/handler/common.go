// Package handler defines the HTTP handlers.  Handlers parse and
// validate requests, call into the service or repository layer, and
// shape JSON responses; business rules live below them.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/infinitedim/skyvix/internal/model"
	"github.com/infinitedim/skyvix/internal/repository"
	"github.com/infinitedim/skyvix/internal/service"
)

// getUserID extracts the user_id from echo.Context and converts it to uint64.
func getUserID(c echo.Context) (uint64, error) {
	v := c.Get("user_id")
	switch t := v.(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// isAdmin reports whether the authenticated request carries the admin role.
func isAdmin(c echo.Context) bool {
	role, _ := c.Get("role").(string)
	return role == model.RoleAdmin
}

// pathID parses a positive integer path parameter.
func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid " + name)
	}
	return id, nil
}

// queryInt parses an optional integer query parameter.
func queryInt(c echo.Context, name string, def int) int {
	v := c.QueryParam(name)
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return def
}

// respondError maps sentinel errors from the repository and service
// layers onto HTTP responses.  Anything unrecognized becomes a 500
// with a generic message so internals never leak to clients.
func respondError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrPaymentNotFound),
		errors.Is(err, repository.ErrBookingNotFound),
		errors.Is(err, repository.ErrScheduleNotFound),
		errors.Is(err, repository.ErrSeatNotFound),
		errors.Is(err, repository.ErrStationNotFound),
		errors.Is(err, repository.ErrRouteNotFound),
		errors.Is(err, repository.ErrTrainNotFound),
		errors.Is(err, repository.ErrUserNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, repository.ErrSeatUnavailable):
		return c.JSON(http.StatusConflict, echo.Map{"error": "seat is no longer available"})
	case errors.Is(err, repository.ErrActivePaymentExists):
		return c.JSON(http.StatusConflict, echo.Map{"error": "order already has a pending payment"})
	case errors.Is(err, service.ErrInvalidState):
		return c.JSON(http.StatusConflict, echo.Map{
			"error": "operation not allowed in current state",
			"kind":  "invalid_state",
		})
	case errors.Is(err, service.ErrScheduleInactive):
		return c.JSON(http.StatusConflict, echo.Map{"error": "schedule is not active"})
	case errors.Is(err, service.ErrDepartureOutsideSchedule):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "departure date not served by schedule"})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "conflicting state"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
