package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eventure/ticketing/internal/model"
	"github.com/eventure/ticketing/internal/payment"
)

// ReceiptHandler exposes receipt submission for attendees and the
// confirm/reject verification pair for organizers and admins.
type ReceiptHandler struct {
	Verifier *payment.Verifier
}

// NewReceiptHandler constructs a ReceiptHandler.
func NewReceiptHandler(verifier *payment.Verifier) *ReceiptHandler {
	if verifier == nil {
		panic("nil verifier passed to NewReceiptHandler")
	}
	return &ReceiptHandler{Verifier: verifier}
}

type submitReceiptBody struct {
	BookingID      string  `json:"booking_id"`
	ProofRef       string  `json:"proof_ref"`
	AmountCents    uint32  `json:"amount_cents"`
	PaymentMethod  string  `json:"payment_method"`
	TransactionRef *string `json:"transaction_ref"`
	Notes          *string `json:"notes"`
}

// Submit handles POST /v1/payments/receipts.  One unresolved receipt
// per booking; the proof reference points at an already uploaded file.
func (h *ReceiptHandler) Submit(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body submitReceiptBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.BookingID == "" || body.ProofRef == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "booking_id and proof_ref are required"})
	}
	rec, err := h.Verifier.Submit(c.Request().Context(), payment.SubmitRequest{
		BookingID:      body.BookingID,
		UserID:         userID,
		ProofRef:       body.ProofRef,
		AmountCents:    body.AmountCents,
		PaymentMethod:  body.PaymentMethod,
		TransactionRef: body.TransactionRef,
		Notes:          body.Notes,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, rec)
}

type resolveReceiptBody struct {
	Notes *string `json:"notes"`
}

// Confirm handles POST /v1/payments/receipts/:id/confirm.
func (h *ReceiptHandler) Confirm(c echo.Context) error {
	return h.resolve(c, true)
}

// Reject handles POST /v1/payments/receipts/:id/reject.
func (h *ReceiptHandler) Reject(c echo.Context) error {
	return h.resolve(c, false)
}

func (h *ReceiptHandler) resolve(c echo.Context, confirm bool) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body resolveReceiptBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	ctx := c.Request().Context()
	id := c.Param("id")
	admin := isAdmin(c)

	var rec *model.PaymentReceipt
	if confirm {
		rec, err = h.Verifier.Confirm(ctx, id, userID, admin, body.Notes)
	} else {
		rec, err = h.Verifier.Reject(ctx, id, userID, admin, body.Notes)
	}
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}
