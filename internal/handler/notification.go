package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/eventure/ticketing/internal/repository"
)

// defaultNotificationLimit bounds the inbox listing when the client
// does not ask for a specific page size.
const defaultNotificationLimit = 50

// NotificationHandler serves the persisted notification inbox.  Live
// delivery goes over the websocket broker; this surface is the durable
// record behind it.
type NotificationHandler struct {
	Notifications *repository.NotificationRepo
}

// NewNotificationHandler constructs a NotificationHandler.
func NewNotificationHandler(notifications *repository.NotificationRepo) *NotificationHandler {
	if notifications == nil {
		panic("nil repository passed to NewNotificationHandler")
	}
	return &NotificationHandler{Notifications: notifications}
}

// List handles GET /v1/notifications, newest first.  An optional
// "limit" query parameter caps the page size.
func (h *NotificationHandler) List(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	limit := defaultNotificationLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid limit"})
		}
		limit = n
	}
	ns, err := h.Notifications.ListByUser(c.Request().Context(), userID, limit)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"notifications": ns})
}

// MarkRead handles POST /v1/notifications/:id/read.  Marking an
// already-read notification succeeds; marking someone else's returns
// 403.
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ok, err := h.Notifications.MarkRead(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return fail(c, err)
	}
	if !ok {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	return c.JSON(http.StatusOK, echo.Map{"read": true})
}
