// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios. For
// example, ErrForbidden indicates that the current user is not
// authorized to perform an operation on a resource owned by someone
// else, while ErrSeatUnavailable signals that a compare-and-set on a
// seat's availability flag found the seat already taken.
package repository

import (
	"errors"
	"strings"
)

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a delete or update cannot be
// performed because of conflicting state, such as attempting to
// delete a schedule that still has active bookings. Handlers should
// translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// Per-entity not-found sentinels.  Repositories return these instead of
// raw sql.ErrNoRows so callers do not need to know which query missed.
var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrPaymentNotFound  = errors.New("payment not found")
	ErrBookingNotFound  = errors.New("booking not found")
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrSeatNotFound     = errors.New("seat not found")
	ErrStationNotFound  = errors.New("station not found")
	ErrRouteNotFound    = errors.New("route not found")
	ErrTrainNotFound    = errors.New("train not found")
)

// ErrSeatUnavailable is returned when a seat reservation compare-and-set
// observes the seat already held by another live booking.
var ErrSeatUnavailable = errors.New("seat unavailable")

// ErrDuplicateBookingCode is returned when a booking insert hits the
// unique constraint on booking_code.  Callers regenerate the code and
// retry a bounded number of times.
var ErrDuplicateBookingCode = errors.New("duplicate booking code")

// ErrActivePaymentExists is returned when creating a payment for an
// order that already has a pending (non-terminal) payment attempt.
var ErrActivePaymentExists = errors.New("active payment already exists for order")

// isDeadlock reports whether err is MySQL error 1213.  The driver
// formats server errors as "Error 1213: Deadlock found ...", so a
// substring check on the number is enough without depending on the
// driver's error types.
func isDeadlock(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Error 1213")
}
