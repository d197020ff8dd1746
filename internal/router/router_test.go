package router

import (
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/infinitedim/skyvix/internal/handler"
)

func TestRegisterWiresExpectedRoutes(t *testing.T) {
	e := echo.New()
	Register(e, Handlers{
		Auth:     &handler.AuthHandler{},
		User:     &handler.UserHandler{},
		Order:    &handler.OrderHandler{},
		Payment:  &handler.PaymentHandler{},
		Booking:  &handler.BookingHandler{},
		Schedule: &handler.ScheduleHandler{},
		Catalog:  &handler.CatalogHandler{},
	}, "secret", nil)

	registered := map[string]bool{}
	for _, r := range e.Routes() {
		registered[r.Method+" "+r.Path] = true
	}

	want := []string{
		http.MethodGet + " /healthz",
		http.MethodPost + " /webhooks/payment",
		http.MethodPost + " /v1/auth/register",
		http.MethodGet + " /v1/me",
		http.MethodPatch + " /v1/me",
		http.MethodPost + " /v1/me/password",
		http.MethodPost + " /v1/payments",
		http.MethodPatch + " /v1/payments/:id",
		http.MethodPost + " /v1/payments/:id/sync",
		http.MethodPost + " /v1/bookings/:id/cancel",
		http.MethodGet + " /v1/admin/users",
		http.MethodPatch + " /v1/admin/users/:id/active",
		http.MethodPost + " /v1/admin/payments/:id/refund",
	}
	for _, route := range want {
		assert.True(t, registered[route], "missing route %s", route)
	}
}
