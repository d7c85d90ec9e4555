package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/eventure/ticketing/internal/handler"    // import the handlers that implement business logic
	"github.com/eventure/ticketing/internal/middleware" // import middleware for JWT authentication and role enforcement
)

// Deps bundles everything the route table needs.  The rate limiter is
// optional; a nil middleware leaves booking creation unthrottled.
type Deps struct {
	Health        *handler.Health
	Events        *handler.EventHandler
	Bookings      *handler.BookingHandler
	Receipts      *handler.ReceiptHandler
	Notifications *handler.NotificationHandler
	WS            *handler.WSHandler
	JWTSecret     string
	RateLimit     echo.MiddlewareFunc
}

// Register wires the full route table onto the provided Echo instance.
// Everything except the health check requires a valid access token from
// the external auth service; roles mirror the token's "role" claim.
func Register(e *echo.Echo, d Deps) {
	// Health check endpoint for load balancers and monitoring systems.
	e.GET("/healthz", d.Health.Check)

	// All protected endpoints live under /v1 behind JWT validation.
	// Fine-grained ownership checks (booking owner, event owner,
	// receipt verifier) happen in the domain layer, not here.
	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(d.JWTSecret))
	auth.Use(middleware.RequireRole("attendee", "organizer", "admin"))

	// Organizer surface: event creation and lifecycle changes.  The
	// role guard narrows further; ownership is checked per request.
	organizer := auth.Group("/events", middleware.RequireRole("organizer", "admin"))
	organizer.POST("", d.Events.Create)
	organizer.PATCH("/:id/status", d.Events.UpdateStatus)

	// Event reads are open to every authenticated role.
	auth.GET("/events/:id", d.Events.Get)

	// Booking surface.  Creation is the contention hot path and is the
	// only route behind the distributed rate limiter.
	if d.RateLimit != nil {
		auth.POST("/bookings", d.Bookings.Create, d.RateLimit)
	} else {
		auth.POST("/bookings", d.Bookings.Create)
	}
	auth.GET("/my-bookings", d.Bookings.List)
	auth.GET("/bookings/:id", d.Bookings.Get)
	auth.DELETE("/bookings/:id", d.Bookings.Cancel)

	// Payment receipt surface: attendees submit, organizers and admins
	// resolve.
	auth.POST("/payments/receipts", d.Receipts.Submit)
	resolve := auth.Group("/payments/receipts", middleware.RequireRole("organizer", "admin"))
	resolve.POST("/:id/confirm", d.Receipts.Confirm)
	resolve.POST("/:id/reject", d.Receipts.Reject)

	// Notification inbox plus the live websocket channel.
	auth.GET("/notifications", d.Notifications.List)
	auth.POST("/notifications/:id/read", d.Notifications.MarkRead)
	auth.GET("/ws", d.WS.Serve)
}
