package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/eventure/ticketing/internal/model"
	"github.com/eventure/ticketing/internal/notify"
	"github.com/eventure/ticketing/internal/repository"
)

// EventHandler serves the organizer-facing event surface: creation,
// reads and lifecycle status changes.  Status changes to cancelled or
// postponed fan out notifications to everyone holding a live booking.
type EventHandler struct {
	Events     *repository.EventRepo
	Dispatcher *notify.Dispatcher
	Log        *logrus.Logger
}

// NewEventHandler constructs an EventHandler.  All dependencies must be
// non-nil.
func NewEventHandler(events *repository.EventRepo, dispatcher *notify.Dispatcher, log *logrus.Logger) *EventHandler {
	if events == nil || dispatcher == nil {
		panic("nil dependency passed to NewEventHandler")
	}
	return &EventHandler{Events: events, Dispatcher: dispatcher, Log: log}
}

type createEventCategory struct {
	Name           string `json:"name"`
	UnitPriceCents uint32 `json:"unit_price_cents"`
	Capacity       uint32 `json:"capacity"`
}

type createEventBody struct {
	Title          string                `json:"title"`
	Location       string                `json:"location"`
	StartsAt       time.Time             `json:"starts_at"`
	OwnerName      string                `json:"owner_name"`
	OwnerContact   string                `json:"owner_contact"`
	Categories     []createEventCategory `json:"categories"`
	PaymentMethods []string              `json:"payment_methods"`
}

// Create handles POST /v1/events.  The caller becomes the owner; the
// event is created published with zeroed inventory counters.
func (h *EventHandler) Create(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body createEventBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.Title == "" || body.StartsAt.IsZero() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title and starts_at are required"})
	}
	if len(body.Categories) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "at least one ticket category is required"})
	}
	seen := make(map[string]struct{}, len(body.Categories))
	for _, cat := range body.Categories {
		if cat.Name == "" || cat.Capacity == 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "category name and capacity are required"})
		}
		if _, dup := seen[cat.Name]; dup {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "duplicate category name"})
		}
		seen[cat.Name] = struct{}{}
	}

	evt := &model.Event{
		ID:           uuid.NewString(),
		OwnerID:      userID,
		OwnerName:    body.OwnerName,
		OwnerContact: body.OwnerContact,
		Title:        body.Title,
		Location:     body.Location,
		StartsAt:     body.StartsAt.UTC(),
		Status:       model.EventStatusPublished,
	}
	for _, cat := range body.Categories {
		evt.Categories = append(evt.Categories, model.TicketCategory{
			EventID:        evt.ID,
			Name:           cat.Name,
			UnitPriceCents: cat.UnitPriceCents,
			Capacity:       cat.Capacity,
		})
	}
	for _, name := range body.PaymentMethods {
		if name == "" {
			continue
		}
		evt.PaymentMethods = append(evt.PaymentMethods, model.PaymentMethod{
			EventID: evt.ID,
			Name:    name,
			Active:  true,
		})
	}
	if err := h.Events.Create(c.Request().Context(), evt); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, evt)
}

// Get handles GET /v1/events/:id.
func (h *EventHandler) Get(c echo.Context) error {
	evt, err := h.Events.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, evt)
}

type updateStatusBody struct {
	Status      model.EventStatus `json:"status"`
	Reason      *string           `json:"reason"`
	NewStartsAt *time.Time        `json:"new_starts_at"`
	NewLocation *string           `json:"new_location"`
}

// UpdateStatus handles PATCH /v1/events/:id/status.  Only the owner may
// change status.  Cancellation and postponement notify every user with
// a non-cancelled booking on the event.
func (h *EventHandler) UpdateStatus(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body updateStatusBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	switch body.Status {
	case model.EventStatusPublished, model.EventStatusCancelled, model.EventStatusPostponed, model.EventStatusUpdated:
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status"})
	}

	ctx := c.Request().Context()
	eventID := c.Param("id")
	if err := h.Events.UpdateStatus(ctx, eventID, userID, body.Status, body.Reason, body.NewStartsAt, body.NewLocation); err != nil {
		return fail(c, err)
	}
	evt, err := h.Events.GetByID(ctx, eventID)
	if err != nil {
		return fail(c, err)
	}

	if body.Status == model.EventStatusCancelled || body.Status == model.EventStatusPostponed {
		h.fanOut(c, evt, body)
	}
	return c.JSON(http.StatusOK, evt)
}

// fanOut notifies every live booker about a cancellation or
// postponement.  Notification failures are logged and skipped so one
// bad row never blocks the rest of the audience.
func (h *EventHandler) fanOut(c echo.Context, evt *model.Event, body updateStatusBody) {
	ctx := c.Request().Context()
	userIDs, err := h.Events.ListBookingUserIDs(ctx, evt.ID)
	if err != nil {
		h.Log.WithError(err).WithField("event_id", evt.ID).Warn("status fan-out audience lookup failed")
		return
	}

	typ := model.NotificationEventCancelled
	title := "Event cancelled"
	message := fmt.Sprintf("%q has been cancelled.", evt.Title)
	if body.Status == model.EventStatusPostponed {
		typ = model.NotificationEventPostponed
		title = "Event postponed"
		message = fmt.Sprintf("%q has been postponed.", evt.Title)
	}
	payload := map[string]any{
		"event_id": evt.ID,
		"status":   string(body.Status),
	}
	if body.Reason != nil {
		payload["reason"] = *body.Reason
	}
	if body.NewStartsAt != nil {
		payload["new_starts_at"] = body.NewStartsAt.UTC().Format(time.RFC3339)
	}
	if body.NewLocation != nil {
		payload["new_location"] = *body.NewLocation
	}
	for _, uid := range userIDs {
		if err := h.Dispatcher.Publish(ctx, uid, typ, title, message, payload); err != nil {
			h.Log.WithError(err).WithFields(logrus.Fields{
				"event_id": evt.ID,
				"user_id":  uid,
			}).Warn("status fan-out publish failed")
		}
	}
}
