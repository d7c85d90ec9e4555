// Package queue defines the wire payloads exchanged over the message
// broker and the background consumer feeding the channel broker.
package queue

import (
	"time"

	"github.com/eventure/ticketing/internal/model"
)

// NotificationCreated is published to the notification.created queue
// after the dispatcher has persisted a notification row.  It carries
// the full notification so downstream consumers can deliver without
// querying the primary database.
type NotificationCreated struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewNotificationCreated builds the wire payload for a persisted
// notification.
func NewNotificationCreated(n model.Notification) NotificationCreated {
	return NotificationCreated{
		ID:        n.ID,
		UserID:    n.UserID,
		Type:      string(n.Type),
		Title:     n.Title,
		Message:   n.Message,
		Payload:   n.Payload,
		CreatedAt: n.CreatedAt,
	}
}

// Notification converts the wire payload back into the domain model.
func (e NotificationCreated) Notification() model.Notification {
	return model.Notification{
		ID:        e.ID,
		UserID:    e.UserID,
		Type:      model.NotificationType(e.Type),
		Title:     e.Title,
		Message:   e.Message,
		Payload:   e.Payload,
		CreatedAt: e.CreatedAt,
	}
}
