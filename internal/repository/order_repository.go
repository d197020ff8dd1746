package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/infinitedim/skyvix/internal/model"
)

// OrderRepo provides CRUD operations for orders and their line items.
// All timestamp fields are stored in UTC.
type OrderRepo struct {
	db *sql.DB
}

// NewOrderRepo returns a new OrderRepo bound to the given database.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

const orderCols = `id, user_id, amount_cents, currency, status, description, metadata, created_at, updated_at`

// Create inserts an order together with its line items in a single
// transaction and populates the generated IDs on the passed structs.
func (r *OrderRepo) Create(ctx context.Context, o *model.Order, items []model.OrderItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO orders (user_id, amount_cents, currency, status, description, metadata) VALUES (?,?,?,?,?,?)`,
		o.UserID, o.AmountCents, o.Currency, string(o.Status), o.Description, nullBytes(o.Metadata))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	o.ID = uint64(id)
	for i := range items {
		items[i].OrderID = o.ID
		res, err := tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, name, quantity, unit_price_cents) VALUES (?,?,?,?)`,
			items[i].OrderID, items[i].Name, items[i].Quantity, items[i].UnitPriceCents)
		if err != nil {
			return err
		}
		itemID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		items[i].ID = uint64(itemID)
	}
	// Query back timestamps and defaults.
	if err := tx.QueryRowContext(ctx,
		`SELECT created_at, updated_at FROM orders WHERE id = ?`, o.ID,
	).Scan(&o.CreatedAt, &o.UpdatedAt); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// GetByID returns a single order.  When userID is non-zero the order
// must belong to that user; a miss either way yields ErrOrderNotFound.
func (r *OrderRepo) GetByID(ctx context.Context, id, userID uint64) (*model.Order, error) {
	q := `SELECT ` + orderCols + ` FROM orders WHERE id = ?`
	args := []any{id}
	if userID != 0 {
		q += ` AND user_id = ?`
		args = append(args, userID)
	}
	o, err := scanOrder(r.db.QueryRowContext(ctx, q, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return o, nil
}

// List returns orders newest first.  When userID is non-zero only that
// user's orders are returned.
func (r *OrderRepo) List(ctx context.Context, userID uint64) ([]model.Order, error) {
	q := `SELECT ` + orderCols + ` FROM orders`
	args := []any{}
	if userID != 0 {
		q += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	q += ` ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// ListItems returns the line items of an order.
func (r *OrderRepo) ListItems(ctx context.Context, orderID uint64) ([]model.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, order_id, name, quantity, unit_price_cents FROM order_items WHERE order_id = ? ORDER BY id`,
		orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.OrderItem, 0)
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.Name, &it.Quantity, &it.UnitPriceCents); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// UpdateStatus performs the administrative status transition.  The
// update is guarded so an order never leaves a terminal state: the
// WHERE clause only matches rows still in PENDING, and a zero row
// count against an existing order reports ErrConflict.
func (r *OrderRepo) UpdateStatus(ctx context.Context, id uint64, status model.OrderStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = NOW() WHERE id = ? AND status = 'PENDING'`,
		string(status), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.GetByID(ctx, id, 0); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

// Update changes the mutable fields of a pending order.  Amount and
// currency are immutable once any payment for the order completed; the
// caller enforces that rule before calling.
func (r *OrderRepo) Update(ctx context.Context, o *model.Order) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET amount_cents = ?, currency = ?, description = ?, metadata = ?, updated_at = NOW() WHERE id = ?`,
		o.AmountCents, o.Currency, o.Description, nullBytes(o.Metadata), o.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	_ = n // zero rows is fine: the values may be unchanged
	return nil
}

// Delete removes an order that has never been paid.  The guard joins
// against completed payments so a paid order is never hard-deleted.
func (r *OrderRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM orders
		 WHERE id = ?
		   AND NOT EXISTS (SELECT 1 FROM payments p WHERE p.order_id = orders.id AND p.status IN ('COMPLETED','REFUNDED'))`,
		id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.GetByID(ctx, id, 0); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

type orderScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row orderScanner) (*model.Order, error) {
	var (
		o        model.Order
		status   string
		desc     sql.NullString
		metadata []byte
	)
	if err := row.Scan(&o.ID, &o.UserID, &o.AmountCents, &o.Currency, &status,
		&desc, &metadata, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Status = model.OrderStatus(status)
	if desc.Valid {
		v := desc.String
		o.Description = &v
	}
	o.Metadata = metadata
	return &o, nil
}

// nullBytes maps an empty slice to NULL so the JSON column stays NULL
// instead of holding an empty string.
func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
