package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eventure/ticketing/internal/booking"
)

// BookingHandler exposes the booking orchestrator over HTTP.  All
// routes require an authenticated attendee; ownership checks happen in
// the orchestrator so the handler stays a thin binding layer.
type BookingHandler struct {
	Orchestrator *booking.Orchestrator
}

// NewBookingHandler constructs a BookingHandler.
func NewBookingHandler(orch *booking.Orchestrator) *BookingHandler {
	if orch == nil {
		panic("nil orchestrator passed to NewBookingHandler")
	}
	return &BookingHandler{Orchestrator: orch}
}

type bookingItemBody struct {
	Category string `json:"category"`
	Quantity uint32 `json:"quantity"`
}

type createBookingBody struct {
	EventID       string            `json:"event_id"`
	Items         []bookingItemBody `json:"items"`
	PaymentMethod string            `json:"payment_method"`
	Notes         *string           `json:"notes"`
}

// Create handles POST /v1/bookings.  All requested categories are
// reserved atomically; a partial failure reserves nothing.
func (h *BookingHandler) Create(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body createBookingBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.EventID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "event_id is required"})
	}
	if len(body.Items) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "items is required"})
	}
	req := booking.Request{
		EventID:       body.EventID,
		UserID:        userID,
		PaymentMethod: body.PaymentMethod,
		Notes:         body.Notes,
	}
	for _, it := range body.Items {
		req.Items = append(req.Items, booking.ItemRequest{
			CategoryName: it.Category,
			Quantity:     it.Quantity,
		})
	}
	b, err := h.Orchestrator.Create(c.Request().Context(), req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, b)
}

// Get handles GET /v1/bookings/:id.  Only the owner sees the booking.
func (h *BookingHandler) Get(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	b, err := h.Orchestrator.Get(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// List handles GET /v1/my-bookings, newest first.
func (h *BookingHandler) List(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	bs, err := h.Orchestrator.ListForUser(c.Request().Context(), userID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": bs})
}

// Cancel handles DELETE /v1/bookings/:id.  Only pending bookings can be
// cancelled by their owner; the held inventory is returned.
func (h *BookingHandler) Cancel(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	b, err := h.Orchestrator.Cancel(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, b)
}
