package router

import (
	"github.com/labstack/echo/v4"

	"github.com/infinitedim/skyvix/internal/handler"
	"github.com/infinitedim/skyvix/internal/middleware"
	"github.com/infinitedim/skyvix/internal/model"
)

// Handlers bundles every handler the router wires up.  main constructs
// the set once and hands it over in a single call.
type Handlers struct {
	Auth     *handler.AuthHandler
	User     *handler.UserHandler
	Order    *handler.OrderHandler
	Payment  *handler.PaymentHandler
	Booking  *handler.BookingHandler
	Schedule *handler.ScheduleHandler
	Catalog  *handler.CatalogHandler
}

// Register attaches all routes to the Echo instance.  Endpoints fall
// into four tiers: unauthenticated (health, auth, webhook), browse
// endpoints open to any authenticated user, user-owned resources
// (orders, payments, bookings), and admin-only catalog management.
// cache, when non-nil, wraps the catalog and schedule browse routes;
// user-owned resources are never cached.
func Register(e *echo.Echo, h Handlers, jwtSecret string, cache echo.MiddlewareFunc) {
	e.GET("/healthz", handler.Health)

	// The payment gateway calls back here with its own token scheme,
	// so the route stays outside the JWT group.
	e.POST("/webhooks/payment", h.Payment.Webhook)

	auth := e.Group("/v1/auth")
	auth.POST("/register", h.Auth.Register)
	auth.POST("/login", h.Auth.Login)
	// /refresh rotates the refresh token; /refresh-access issues a new
	// access token while keeping the current refresh token valid.
	auth.POST("/refresh", h.Auth.Refresh)
	auth.POST("/refresh-access", h.Auth.RefreshAccess)

	v1 := e.Group("/v1")
	v1.Use(middleware.JWTAuth(jwtSecret))

	v1.POST("/auth/logout", h.Auth.Logout)
	v1.GET("/me", h.Auth.Me)
	v1.PATCH("/me", h.User.UpdateMe)
	v1.POST("/me/password", h.User.ChangePassword)

	var browseMW []echo.MiddlewareFunc
	if cache != nil {
		browseMW = append(browseMW, cache)
	}

	// Catalog browsing is read-only for every authenticated user.
	v1.GET("/stations", h.Catalog.ListStations, browseMW...)
	v1.GET("/stations/:id", h.Catalog.GetStation, browseMW...)
	v1.GET("/trains", h.Catalog.ListTrains, browseMW...)
	v1.GET("/trains/:id", h.Catalog.GetTrain, browseMW...)
	v1.GET("/routes", h.Catalog.ListRoutes, browseMW...)
	v1.GET("/routes/:id", h.Catalog.GetRoute, browseMW...)

	v1.GET("/schedules", h.Schedule.List, browseMW...)
	v1.GET("/schedules/search", h.Schedule.Search, browseMW...)
	v1.GET("/schedules/:id", h.Schedule.Get, browseMW...)
	// Seat availability changes on every booking, so it stays uncached.
	v1.GET("/schedules/:id/seats", h.Schedule.ListSeats)

	v1.POST("/orders", h.Order.Create)
	v1.GET("/orders", h.Order.List)
	v1.GET("/orders/:id", h.Order.Get)
	v1.PUT("/orders/:id", h.Order.Update)
	v1.DELETE("/orders/:id", h.Order.Delete)

	v1.POST("/payments", h.Payment.Create)
	v1.GET("/payments", h.Payment.List)
	v1.GET("/payments/:id", h.Payment.Get)
	v1.PATCH("/payments/:id", h.Payment.Update)
	v1.POST("/payments/:id/cancel", h.Payment.Cancel)
	v1.POST("/payments/:id/retry", h.Payment.Retry)
	v1.POST("/payments/:id/sync", h.Payment.Sync)

	v1.POST("/bookings", h.Booking.Create)
	v1.GET("/bookings", h.Booking.List)
	v1.GET("/bookings/code/:code", h.Booking.GetByCode)
	v1.GET("/bookings/:id", h.Booking.Get)
	v1.POST("/bookings/:id/cancel", h.Booking.Cancel)

	admin := v1.Group("/admin")
	admin.Use(middleware.RequireRole(model.RoleAdmin))

	admin.GET("/users", h.User.AdminList)
	admin.GET("/users/:id", h.User.AdminGet)
	admin.PATCH("/users/:id/active", h.User.SetActive)

	admin.POST("/stations", h.Catalog.CreateStation)
	admin.DELETE("/stations/:id", h.Catalog.DeleteStation)
	admin.POST("/trains", h.Catalog.CreateTrain)
	admin.POST("/routes", h.Catalog.CreateRoute)

	admin.POST("/schedules", h.Schedule.Create)
	admin.PATCH("/schedules/:id/active", h.Schedule.SetActive)
	admin.DELETE("/schedules/:id", h.Schedule.Delete)
	admin.POST("/schedules/:id/seats", h.Schedule.CreateSeats)

	admin.PATCH("/orders/:id/status", h.Order.UpdateStatus)
	admin.PATCH("/bookings/:id/status", h.Booking.UpdateStatus)
	admin.POST("/payments/:id/refund", h.Payment.Refund)
	admin.GET("/payments/stats", h.Payment.Stats)
}
