package model

import "time"

// EventStatus enumerates the lifecycle states of an event.  Status
// transitions are performed by the organizer; bookings are rejected
// for cancelled events and events whose start time has passed.
type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusPublished EventStatus = "published"
	EventStatusCancelled EventStatus = "cancelled"
	EventStatusPostponed EventStatus = "postponed"
	EventStatusUpdated   EventStatus = "updated"
)

// PayAtEvent is the reserved payment method keyword meaning the attendee
// pays on site.  Bookings made with it skip the receipt verification
// flow and are confirmed immediately.
const PayAtEvent = "pay_at_event"

// Event is the organizer-owned aggregate describing a published event
// and its ticket categories.  Inventory counters on the categories are
// mutated only through the ledger; everything else is mutated by the
// organizer.
//
// Fields:
//  ID             – primary key identifier (UUID).
//  OwnerID        – organizer who created the event.
//  OwnerName      – denormalized organizer display name, included in
//                   rejection notifications as the recourse contact.
//  OwnerContact   – organizer contact detail (email or phone).
//  Title          – event title.
//  Location       – venue description.
//  StartsAt       – scheduled start time in UTC.
//  Status         – lifecycle status (draft/published/cancelled/...).
//  StatusReason   – optional reason attached to the last status change.
//  NewStartsAt    – replacement start time when postponed.
//  NewLocation    – replacement location when postponed.
//  Categories     – ticket categories with capacity counters.
//  PaymentMethods – payment methods the organizer accepts.
type Event struct {
	ID             string          // events.id
	OwnerID        string          // events.owner_id
	OwnerName      string          // events.owner_name
	OwnerContact   string          // events.owner_contact
	Title          string          // events.title
	Location       string          // events.location
	StartsAt       time.Time       // events.starts_at
	Status         EventStatus     // events.status
	StatusReason   *string         // events.status_reason (nullable)
	NewStartsAt    *time.Time      // events.new_starts_at (nullable)
	NewLocation    *string         // events.new_location (nullable)
	Categories     []TicketCategory
	PaymentMethods []PaymentMethod
	CreatedAt      time.Time // events.created_at
	UpdatedAt      time.Time // events.updated_at
}

// TicketCategory carries the per-category capacity counters.  The
// invariant confirmed_count <= reserved_count <= capacity is enforced by
// the ledger's conditional updates, never by callers.
type TicketCategory struct {
	EventID        string // ticket_categories.event_id
	Name           string // ticket_categories.name
	UnitPriceCents uint32 // ticket_categories.unit_price_cents
	Capacity       uint32 // ticket_categories.capacity
	ReservedCount  uint32 // ticket_categories.reserved_count
	ConfirmedCount uint32 // ticket_categories.confirmed_count
}

// PaymentMethod is a payment option the organizer accepts for an event.
// Inactive methods remain on record but are rejected for new bookings.
type PaymentMethod struct {
	EventID string // payment_methods.event_id
	Name    string // payment_methods.name
	Active  bool   // payment_methods.active
}

// Category returns the category with the given name, or nil.
func (e *Event) Category(name string) *TicketCategory {
	for i := range e.Categories {
		if e.Categories[i].Name == name {
			return &e.Categories[i]
		}
	}
	return nil
}

// AcceptsPaymentMethod reports whether the given method may be used for
// a new booking.  The pay-at-event keyword is always accepted.
func (e *Event) AcceptsPaymentMethod(name string) bool {
	if name == PayAtEvent {
		return true
	}
	for _, m := range e.PaymentMethods {
		if m.Name == name && m.Active {
			return true
		}
	}
	return false
}
