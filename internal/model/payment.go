package model

import "time"

// PaymentStatus enumerates the lifecycle states of a payment attempt.
// PENDING is the only non-terminal state: a payment waits there until
// the gateway notifies us of the outcome or the attempt is cancelled.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentExpired   PaymentStatus = "EXPIRED"
	PaymentCancelled PaymentStatus = "CANCELLED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

// Terminal reports whether no further gateway-driven transition is
// permitted from s.  REFUNDED is reachable from COMPLETED only through
// the explicit refund operation, never through webhook reconciliation.
func (s PaymentStatus) Terminal() bool {
	return s != PaymentPending
}

// ValidPaymentStatus reports whether the given string is a known payment status.
func ValidPaymentStatus(s string) bool {
	switch PaymentStatus(s) {
	case PaymentPending, PaymentCompleted, PaymentFailed, PaymentExpired,
		PaymentCancelled, PaymentRefunded:
		return true
	}
	return false
}

// Payment represents one payment attempt against exactly one order.
// The Reference field is the external correlation id handed to the
// payment gateway when the invoice is created; webhooks resolve back
// to the payment through it.  ExternalResponse stores the raw gateway
// payload verbatim for audit and is never interpreted beyond logging.
//
// Fields:
//  ID               – primary key identifier.
//  OrderID          – order this attempt pays for.
//  UserID           – user who initiated the payment.
//  Reference        – unique external correlation id (e.g. PAY-...).
//  AmountCents      – amount in cents; matches the order at creation.
//  Currency         – ISO 4217 currency code.
//  Method           – payment method chosen by the payer (nullable).
//  Status           – current lifecycle state.
//  InvoiceURL       – hosted payment page returned by the gateway (nullable).
//  ExternalResponse – raw gateway payload, stored verbatim (nullable JSON).
//  FailureReason    – why the payment failed (nullable).
//  PaidAt           – when the gateway reported the payment settled (nullable).
//  CreatedAt        – creation timestamp.
//  UpdatedAt        – last update timestamp.
type Payment struct {
	ID               uint64        // payments.id
	OrderID          uint64        // payments.order_id
	UserID           uint64        // payments.user_id
	Reference        string        // payments.reference
	AmountCents      int64         // payments.amount_cents
	Currency         string        // payments.currency
	Method           *string       // payments.method (nullable)
	Status           PaymentStatus // payments.status
	InvoiceURL       *string       // payments.invoice_url (nullable)
	ExternalResponse []byte        // payments.external_response (nullable JSON)
	FailureReason    *string       // payments.failure_reason (nullable)
	PaidAt           *time.Time    // payments.paid_at (nullable)
	CreatedAt        time.Time     // payments.created_at
	UpdatedAt        time.Time     // payments.updated_at
}
