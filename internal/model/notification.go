package model

import "time"

// NotificationType is the closed set of notification kinds the core
// emits.  Clients switch on the type to render the structured payload.
type NotificationType string

const (
	NotificationBookingConfirmed NotificationType = "booking_confirmed"
	NotificationPaymentReceipt   NotificationType = "payment_receipt"
	NotificationPaymentConfirmed NotificationType = "payment_confirmed"
	NotificationPaymentRejected  NotificationType = "payment_rejected"
	NotificationPaymentReminder  NotificationType = "payment_reminder"
	NotificationEventPostponed   NotificationType = "event_postponed"
	NotificationEventCancelled   NotificationType = "event_cancelled"
	NotificationTicketGenerated  NotificationType = "ticket_generated"
)

// Notification is a durably recorded domain event addressed to one
// user.  It is created by the dispatcher and mutated only by the owning
// user marking it read.  The durable row is the source of truth for
// ordering; live delivery is best effort.
type Notification struct {
	ID        string           `json:"id"`         // notifications.id
	UserID    string           `json:"user_id"`    // notifications.user_id
	Type      NotificationType `json:"type"`       // notifications.type
	Title     string           `json:"title"`      // notifications.title
	Message   string           `json:"message"`    // notifications.message
	Payload   map[string]any   `json:"payload"`    // notifications.payload (JSON)
	Read      bool             `json:"read"`       // notifications.read_flag
	CreatedAt time.Time        `json:"created_at"` // notifications.created_at
}
