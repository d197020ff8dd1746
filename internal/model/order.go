package model

import "time"

// OrderStatus enumerates the lifecycle states of an order.  An order
// starts as PENDING and moves to exactly one of the terminal states.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderCompleted OrderStatus = "COMPLETED"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderFailed    OrderStatus = "FAILED"
)

// Terminal reports whether no further transition is permitted from s.
func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled || s == OrderFailed
}

// ValidOrderStatus reports whether the given string is a known order status.
func ValidOrderStatus(s string) bool {
	switch OrderStatus(s) {
	case OrderPending, OrderCompleted, OrderCancelled, OrderFailed:
		return true
	}
	return false
}

// Order represents a purchasable unit owned by a user.  Amounts are
// stored in minor currency units (cents) to avoid floating point
// rounding.  The Metadata column holds an opaque JSON blob supplied by
// the client; the application never branches on its contents.
//
// Fields:
//  ID          – primary key identifier.
//  UserID      – owning user.
//  AmountCents – monetary amount in cents.
//  Currency    – ISO 4217 currency code, e.g. "IDR".
//  Status      – current lifecycle state.
//  Description – optional free-form description.
//  Metadata    – raw JSON payload preserved verbatim (nullable).
//  CreatedAt   – creation timestamp.
//  UpdatedAt   – last update timestamp.
type Order struct {
	ID          uint64      // orders.id
	UserID      uint64      // orders.user_id
	AmountCents int64       // orders.amount_cents
	Currency    string      // orders.currency
	Status      OrderStatus // orders.status
	Description *string     // orders.description (nullable)
	Metadata    []byte      // orders.metadata (nullable JSON)
	CreatedAt   time.Time   // orders.created_at
	UpdatedAt   time.Time   // orders.updated_at
}

// OrderItem is a single line item belonging to an order.
//
// Fields:
//  ID             – primary key identifier.
//  OrderID        – owning order.
//  Name           – human-readable description of the item.
//  Quantity       – number of units, always >= 1.
//  UnitPriceCents – price per unit in cents.
type OrderItem struct {
	ID             uint64 // order_items.id
	OrderID        uint64 // order_items.order_id
	Name           string // order_items.name
	Quantity       uint32 // order_items.quantity
	UnitPriceCents int64  // order_items.unit_price_cents
}
