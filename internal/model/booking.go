package model

import "time"

// BookingStatus enumerates the overall lifecycle of a booking.  A
// booking is never deleted once confirmed; cancellation is a status.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// PaymentStatus tracks the payment side of a booking independently of
// its overall status.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// Booking records an attendee's claim on ticket units for an event.
// It holds a weak reference to the event (id plus denormalized display
// fields) so the financial record survives event deletion.  The line
// item prices are captured at reservation time and are immune to later
// category price edits.
//
// Fields:
//  ID              – primary key identifier (UUID).
//  UserID          – attendee who made the booking.
//  EventID         – referenced event.
//  EventTitle      – denormalized event title.
//  EventStartsAt   – denormalized event start time in UTC.
//  Items           – ordered line items (category, quantity, unit price).
//  TotalAmountCents – Σ(unit price × quantity) at reservation time.
//  PaymentMethod   – method chosen at creation.
//  PaymentStatus   – pending/completed/failed/refunded.
//  Status          – pending/confirmed/cancelled.
//  Notes           – optional free-form note from the attendee.
type Booking struct {
	ID               string        // bookings.id
	UserID           string        // bookings.user_id
	EventID          string        // bookings.event_id
	EventTitle       string        // bookings.event_title
	EventStartsAt    time.Time     // bookings.event_starts_at
	Items            []BookingItem
	TotalAmountCents uint32        // bookings.total_amount_cents
	PaymentMethod    string        // bookings.payment_method
	PaymentStatus    PaymentStatus // bookings.payment_status
	Status           BookingStatus // bookings.status
	Notes            *string       // bookings.notes (nullable)
	CreatedAt        time.Time     // bookings.created_at
	UpdatedAt        time.Time     // bookings.updated_at
}

// BookingItem is one line of a booking.  The quantity equals the
// inventory units reserved for this line.
type BookingItem struct {
	BookingID      string // booking_items.booking_id
	CategoryName   string // booking_items.category_name
	Quantity       uint32 // booking_items.quantity
	UnitPriceCents uint32 // booking_items.unit_price_cents
}
