package model

import "time"

// BookingStatus enumerates the lifecycle states of a train booking.
// The success path is PENDING -> CONFIRMED -> PAID.  PENDING and
// CONFIRMED bookings may be cancelled; CANCELLED and PAID are terminal.
type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingPaid      BookingStatus = "PAID"
	BookingCancelled BookingStatus = "CANCELLED"
)

// ValidBookingStatus reports whether the given string is a known booking status.
func ValidBookingStatus(s string) bool {
	switch BookingStatus(s) {
	case BookingPending, BookingConfirmed, BookingPaid, BookingCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is a permitted
// booking state transition.  No transition leaves CANCELLED or PAID.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	switch s {
	case BookingPending:
		return next == BookingConfirmed || next == BookingPaid || next == BookingCancelled
	case BookingConfirmed:
		return next == BookingPaid || next == BookingCancelled
	}
	return false
}

// Cancellable reports whether a booking in state s may still be cancelled.
func (s BookingStatus) Cancellable() bool {
	return s == BookingPending || s == BookingConfirmed
}

// TrainBooking links a user to a schedule and optionally to one seat.
// The booking code is the human-readable identifier printed on tickets;
// it is globally unique and distinct from the numeric primary key.  A
// booking that holds a seat and that seat's unavailability are always
// written in the same transaction so neither can be observed without
// the other.
//
// Fields:
//  ID              – primary key identifier.
//  UserID          – user who made the booking.
//  ScheduleID      – schedule being booked.
//  SeatID          – seat held by this booking (nullable).
//  BookingCode     – unique human-readable code, e.g. BK12345678ABCD.
//  PassengerName   – name of the travelling passenger.
//  PassengerIDCard – government id card number of the passenger.
//  PassengerPhone  – contact phone number.
//  PassengerEmail  – contact email address.
//  DepartureDate   – concrete travel date within the schedule validity.
//  TotalPriceCents – total price in cents.
//  Status          – current lifecycle state.
//  CancelledAt     – when the booking was cancelled (nullable).
//  CreatedAt       – creation timestamp.
//  UpdatedAt       – last update timestamp.
type TrainBooking struct {
	ID              uint64        // train_bookings.id
	UserID          uint64        // train_bookings.user_id
	ScheduleID      uint64        // train_bookings.schedule_id
	SeatID          *uint64       // train_bookings.seat_id (nullable)
	BookingCode     string        // train_bookings.booking_code
	PassengerName   string        // train_bookings.passenger_name
	PassengerIDCard string        // train_bookings.passenger_id_card
	PassengerPhone  string        // train_bookings.passenger_phone
	PassengerEmail  string        // train_bookings.passenger_email
	DepartureDate   time.Time     // train_bookings.departure_date
	TotalPriceCents int64         // train_bookings.total_price_cents
	Status          BookingStatus // train_bookings.status
	CancelledAt     *time.Time    // train_bookings.cancelled_at (nullable)
	CreatedAt       time.Time     // train_bookings.created_at
	UpdatedAt       time.Time     // train_bookings.updated_at
}
