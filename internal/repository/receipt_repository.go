package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/eventure/ticketing/internal/model"
)

// ReceiptRepo provides data access to payment receipts.  A receipt is
// written once on submission and resolved exactly once; Resolve is the
// guarded transition that makes the pending -> terminal step one-shot.
type ReceiptRepo struct {
	db *sql.DB
}

// NewReceiptRepo returns a new ReceiptRepo bound to the provided database.
func NewReceiptRepo(db *sql.DB) *ReceiptRepo { return &ReceiptRepo{db: db} }

// Create inserts a pending receipt.
func (r *ReceiptRepo) Create(ctx context.Context, rec *model.PaymentReceipt) error {
	rec.CreatedAt = time.Now().UTC()
	const ins = `INSERT INTO payment_receipts (id, booking_id, event_id, user_id, proof_ref, amount_cents,
											   payment_method, transaction_ref, notes, status, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, ins,
		rec.ID, rec.BookingID, rec.EventID, rec.UserID, rec.ProofRef, rec.AmountCents,
		rec.PaymentMethod, rec.TransactionRef, rec.Notes, rec.Status, rec.CreatedAt,
	)
	return err
}

// GetByID loads a receipt.  sql.ErrNoRows is returned when it does
// not exist.
func (r *ReceiptRepo) GetByID(ctx context.Context, id string) (*model.PaymentReceipt, error) {
	const q = `SELECT id, booking_id, event_id, user_id, proof_ref, amount_cents, payment_method,
					  transaction_ref, notes, status, verified_by, verified_at, verifier_notes, created_at
			   FROM payment_receipts WHERE id = ?`
	var rec model.PaymentReceipt
	var txRef, notes, verifiedBy, verifierNotes sql.NullString
	var verifiedAt sql.NullTime
	if err := r.db.QueryRowContext(ctx, q, id).Scan(
		&rec.ID, &rec.BookingID, &rec.EventID, &rec.UserID, &rec.ProofRef, &rec.AmountCents, &rec.PaymentMethod,
		&txRef, &notes, &rec.Status, &verifiedBy, &verifiedAt, &verifierNotes, &rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	if txRef.Valid {
		s := txRef.String
		rec.TransactionRef = &s
	}
	if notes.Valid {
		s := notes.String
		rec.Notes = &s
	}
	if verifiedBy.Valid {
		s := verifiedBy.String
		rec.VerifiedBy = &s
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time.UTC()
		rec.VerifiedAt = &t
	}
	if verifierNotes.Valid {
		s := verifierNotes.String
		rec.VerifierNotes = &s
	}
	return &rec, nil
}

// HasUnresolved reports whether the booking has a pending receipt.
func (r *ReceiptRepo) HasUnresolved(ctx context.Context, bookingID string) (bool, error) {
	const q = `SELECT COUNT(*) FROM payment_receipts WHERE booking_id = ? AND status = 'pending'`
	var n int
	if err := r.db.QueryRowContext(ctx, q, bookingID).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Resolve moves a pending receipt to a terminal state and records the
// verifier.  It reports false when the receipt was no longer pending,
// in which case nothing was written; terminal states never flip.
func (r *ReceiptRepo) Resolve(ctx context.Context, id string, to model.ReceiptStatus, verifierID string, notes *string, at time.Time) (bool, error) {
	const upd = `UPDATE payment_receipts
				 SET status = ?, verified_by = ?, verified_at = ?, verifier_notes = ?
				 WHERE id = ? AND status = 'pending'`
	result, err := r.db.ExecContext(ctx, upd, to, verifierID, at.UTC(), notes, id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}
