package model

import "time"

// ReceiptStatus enumerates the receipt state machine.  The only legal
// transitions are pending -> confirmed and pending -> rejected, exactly
// once, never reversed.
type ReceiptStatus string

const (
	ReceiptStatusPending   ReceiptStatus = "pending"
	ReceiptStatusConfirmed ReceiptStatus = "confirmed"
	ReceiptStatusRejected  ReceiptStatus = "rejected"
)

// PaymentReceipt is an attendee-submitted proof of an off-platform
// payment.  The proof reference is produced by the external file
// storage collaborator and passed through opaquely.  Resolution fields
// are written exactly once by an authorized verifier.
//
// Fields:
//  ID             – primary key identifier (UUID).
//  BookingID      – booking the payment covers.
//  EventID        – event the booking belongs to.
//  UserID         – attendee who submitted the proof.
//  ProofRef       – opaque reference to the uploaded proof.
//  AmountCents    – amount the attendee claims to have paid.
//  PaymentMethod  – method used off platform.
//  TransactionRef – optional external transaction reference.
//  Notes          – optional submitter notes.
//  Status         – pending/confirmed/rejected.
//  VerifiedBy     – verifier identity once resolved.
//  VerifiedAt     – resolution timestamp.
//  VerifierNotes  – verifier's notes, surfaced to the payer on rejection.
type PaymentReceipt struct {
	ID             string        // payment_receipts.id
	BookingID      string        // payment_receipts.booking_id
	EventID        string        // payment_receipts.event_id
	UserID         string        // payment_receipts.user_id
	ProofRef       string        // payment_receipts.proof_ref
	AmountCents    uint32        // payment_receipts.amount_cents
	PaymentMethod  string        // payment_receipts.payment_method
	TransactionRef *string       // payment_receipts.transaction_ref (nullable)
	Notes          *string       // payment_receipts.notes (nullable)
	Status         ReceiptStatus // payment_receipts.status
	VerifiedBy     *string       // payment_receipts.verified_by (nullable)
	VerifiedAt     *time.Time    // payment_receipts.verified_at (nullable)
	VerifierNotes  *string       // payment_receipts.verifier_notes (nullable)
	CreatedAt      time.Time     // payment_receipts.created_at
}
