package handler

import (
	"database/sql" // for sentinel errors returned from repository
	"errors"       // for errors.Is comparisons
	"net/http"     // HTTP status codes

	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/eventure/ticketing/internal/booking"
	"github.com/eventure/ticketing/internal/ledger"
	"github.com/eventure/ticketing/internal/payment"
	"github.com/eventure/ticketing/internal/repository"
)

// getUserID extracts the authenticated user's ID from the echo context.
// JWTAuth stores the token's subject claim under "user_id"; the claim
// decodes as a string.  An error means the middleware did not run or
// the token carried no subject.
func getUserID(c echo.Context) (string, error) {
	if s, ok := c.Get("user_id").(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("invalid user_id in context")
}

// isAdmin reports whether the authenticated user carries the admin role.
func isAdmin(c echo.Context) bool {
	role, _ := c.Get("role").(string)
	return role == "admin"
}

// fail translates domain errors into JSON error responses with stable
// machine-readable codes.  Unrecognized errors become a 500 without
// leaking internals.
func fail(c echo.Context, err error) error {
	var capErr *ledger.CapacityError
	switch {
	case errors.As(err, &capErr):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":     "capacity_exceeded",
			"category":  capErr.CategoryName,
			"requested": capErr.Requested,
			"remaining": capErr.Remaining,
		})
	case errors.Is(err, ledger.ErrCapacityExceeded):
		return c.JSON(http.StatusConflict, echo.Map{"error": "capacity_exceeded"})
	case errors.Is(err, booking.ErrInvalidCategory), errors.Is(err, ledger.ErrCategoryNotFound):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_category"})
	case errors.Is(err, booking.ErrInvalidQuantity):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_quantity"})
	case errors.Is(err, booking.ErrInvalidPaymentMethod):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_payment_method"})
	case errors.Is(err, booking.ErrNotBookable):
		return c.JSON(http.StatusConflict, echo.Map{"error": "not_bookable"})
	case errors.Is(err, booking.ErrSelfBookingForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "self_booking_forbidden"})
	case errors.Is(err, payment.ErrDuplicateReceipt):
		return c.JSON(http.StatusConflict, echo.Map{"error": "duplicate_receipt"})
	case errors.Is(err, payment.ErrStateViolation),
		errors.Is(err, ledger.ErrNotOutstanding),
		errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "state_violation"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, sql.ErrNoRows):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found"})
	default:
		c.Logger().Errorf("unhandled error: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
	}
}
