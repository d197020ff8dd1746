// Package queue defines message payloads exchanged over the message broker.
package queue

// Queue names used for publishing and consuming.  Routing key equals
// queue name because everything goes through the default exchange.
const (
	PaymentCompletedQueue = "payment.completed"
	BookingCreatedQueue   = "booking.created"
)

// PaymentCompletedEvent is published when a webhook confirms that a
// payment settled.  It contains enough information for downstream
// consumers to log, notify, or trigger analytics without querying the
// primary database.
type PaymentCompletedEvent struct {
	PaymentID   uint64 `json:"payment_id"`
	OrderID     uint64 `json:"order_id"`
	UserID      uint64 `json:"user_id"`
	Reference   string `json:"reference"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	PaidAt      string `json:"paid_at"`
}

// BookingCreatedEvent is published when a train booking is created.
type BookingCreatedEvent struct {
	BookingID       uint64  `json:"booking_id"`
	UserID          uint64  `json:"user_id"`
	ScheduleID      uint64  `json:"schedule_id"`
	SeatID          *uint64 `json:"seat_id,omitempty"`
	BookingCode     string  `json:"booking_code"`
	PassengerName   string  `json:"passenger_name"`
	DepartureDate   string  `json:"departure_date"`
	TotalPriceCents int64   `json:"total_price_cents"`
	CreatedAt       string  `json:"created_at"`
}
