// Package service holds the business rules that sit between the HTTP
// handlers and the repositories.  Services validate state machines,
// coordinate the payment gateway and the message broker, and keep the
// handlers limited to request parsing and response shaping.
package service

import "errors"

// ErrInvalidState is returned when an operation is not permitted in
// the entity's current lifecycle state, such as cancelling a payment
// that already completed. Handlers translate this into HTTP 409.
var ErrInvalidState = errors.New("invalid state for operation")

// ErrScheduleInactive is returned when booking against a schedule that
// is not accepting bookings.
var ErrScheduleInactive = errors.New("schedule is not active")

// ErrDepartureOutsideSchedule is returned when the requested travel
// date falls outside the schedule's validity window or operating days.
var ErrDepartureOutsideSchedule = errors.New("departure date not served by schedule")
