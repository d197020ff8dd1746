package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/infinitedim/skyvix/internal/model"
)

// PaymentRepo provides persistence for payment attempts.  The invariants
// it enforces at the SQL level are the ones that concurrent requests can
// race on: at most one non-terminal payment per order, and no status
// regression out of a terminal state.  Both use the same shape: an
// UPDATE or SELECT ... FOR UPDATE guarded by a status predicate, with
// the row count deciding the outcome.
type PaymentRepo struct {
	db *sql.DB
}

// NewPaymentRepo returns a new PaymentRepo bound to the given database.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

const paymentCols = `id, order_id, user_id, reference, amount_cents, currency, method, status,
	   invoice_url, external_response, failure_reason, paid_at, created_at, updated_at`

// Create inserts a new pending payment.  The one-active-payment-per-order
// rule is checked inside the same transaction with a locking read, so two
// concurrent checkouts for the same order cannot both succeed.
func (r *PaymentRepo) Create(ctx context.Context, p *model.Payment) error {
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
	var existing uint64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM payments WHERE order_id = ? AND status = 'PENDING' LIMIT 1 FOR UPDATE`,
		p.OrderID).Scan(&existing)
	switch {
	case err == nil:
		return ErrActivePaymentExists
	case errors.Is(err, sql.ErrNoRows):
		// no active attempt, proceed
	default:
		return err
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO payments (order_id, user_id, reference, amount_cents, currency, method, status) VALUES (?,?,?,?,?,?,?)`,
		p.OrderID, p.UserID, p.Reference, p.AmountCents, p.Currency, p.Method, string(p.Status))
	if err != nil {
		// With no matching row the locking read above takes a gap lock,
		// so two truly concurrent creates for the same order resolve by
		// deadlock.  The loser lost to the surviving attempt.
		if isDeadlock(err) {
			return ErrActivePaymentExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	if err := tx.QueryRowContext(ctx,
		`SELECT created_at, updated_at FROM payments WHERE id = ?`, p.ID,
	).Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		if isDeadlock(err) {
			return ErrActivePaymentExists
		}
		return err
	}
	committed = true
	return nil
}

// GetByID returns a single payment or ErrPaymentNotFound.
func (r *PaymentRepo) GetByID(ctx context.Context, id uint64) (*model.Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx,
		`SELECT `+paymentCols+` FROM payments WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return p, nil
}

// GetByReference resolves a payment by its external correlation id.
func (r *PaymentRepo) GetByReference(ctx context.Context, reference string) (*model.Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx,
		`SELECT `+paymentCols+` FROM payments WHERE reference = ? LIMIT 1`, reference))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return p, nil
}

// SetInvoice records the hosted payment URL returned by the gateway.
func (r *PaymentRepo) SetInvoice(ctx context.Context, id uint64, invoiceURL string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payments SET invoice_url = ?, updated_at = NOW() WHERE id = ?`,
		invoiceURL, id)
	return err
}

// MarkFailed transitions a pending payment to FAILED with a reason.
// A payment already past PENDING is left untouched.
func (r *PaymentRepo) MarkFailed(ctx context.Context, id uint64, reason string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payments SET status = 'FAILED', failure_reason = ?, updated_at = NOW() WHERE id = ? AND status = 'PENDING'`,
		reason, id)
	return err
}

// ApplyStatus moves a pending payment to the given status, storing the
// raw gateway payload and optional paid timestamp.  When the new status
// is COMPLETED the linked order is completed inside the same
// transaction.  The status predicate makes the call a compare-and-set:
// if the payment already left PENDING the update matches zero rows and
// the method reports applied=false without touching anything.
func (r *PaymentRepo) ApplyStatus(ctx context.Context, id uint64, status model.PaymentStatus, rawPayload []byte, paidAt *time.Time) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	res, err := tx.ExecContext(ctx,
		`UPDATE payments SET status = ?, external_response = ?, paid_at = ?, updated_at = NOW() WHERE id = ? AND status = 'PENDING'`,
		string(status), nullBytes(rawPayload), paidAt, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if status == model.PaymentCompleted {
		if _, err := tx.ExecContext(ctx,
			`UPDATE orders o
			 JOIN payments p ON p.order_id = o.id
			 SET o.status = 'COMPLETED', o.updated_at = NOW()
			 WHERE p.id = ? AND o.status = 'PENDING'`,
			id); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	committed = true
	return true, nil
}

// UpdateStatus performs a plain guarded transition used by cancel,
// refund and retry.  fromStatuses lists the states the transition is
// valid from; a zero row count against an existing payment reports
// ErrConflict so callers can surface an invalid-state error.
func (r *PaymentRepo) UpdateStatus(ctx context.Context, id uint64, to model.PaymentStatus, clearFailure bool, fromStatuses ...model.PaymentStatus) error {
	set := `status = ?, updated_at = NOW()`
	if clearFailure {
		set += `, failure_reason = NULL`
	}
	placeholders := make([]string, 0, len(fromStatuses))
	args := []any{string(to), id}
	for _, s := range fromStatuses {
		placeholders = append(placeholders, "?")
		args = append(args, string(s))
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE payments SET `+set+` WHERE id = ? AND status IN (`+strings.Join(placeholders, ",")+`)`,
		args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

// UpdateMethod changes the payment method of a pending payment.  Once
// a payment left PENDING its record is frozen, so zero matched rows
// against an existing payment reports ErrConflict.
func (r *PaymentRepo) UpdateMethod(ctx context.Context, id uint64, method string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payments SET method = ?, updated_at = NOW() WHERE id = ? AND status = 'PENDING'`,
		method, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

// PaymentFilter defines filters & pagination for listing payments.
type PaymentFilter struct {
	Search    string // matches reference, case-insensitive
	OrderID   uint64
	UserID    uint64
	Status    string
	Method    string
	Currency  string
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	PageSize  int
}

// List returns payments matching the filter, newest first, along with
// the total number of matches for pagination metadata.
func (r *PaymentRepo) List(ctx context.Context, f PaymentFilter) ([]model.Payment, int64, error) {
	where := []string{}
	args := []any{}
	if f.Search != "" {
		where = append(where, "LOWER(reference) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Search)+"%")
	}
	if f.OrderID != 0 {
		where = append(where, "order_id = ?")
		args = append(args, f.OrderID)
	}
	if f.UserID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Method != "" {
		where = append(where, "method = ?")
		args = append(args, f.Method)
	}
	if f.Currency != "" {
		where = append(where, "currency = ?")
		args = append(args, f.Currency)
	}
	if f.StartDate != nil {
		where = append(where, "created_at >= ?")
		args = append(args, f.StartDate.UTC())
	}
	if f.EndDate != nil {
		where = append(where, "created_at <= ?")
		args = append(args, f.EndDate.UTC())
	}
	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payments WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := f.PageSize
	if limit <= 0 {
		limit = 10
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit
	argsData := append(append([]any{}, args...), limit, offset)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paymentCols+` FROM payments WHERE `+cond+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		argsData...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]model.Payment, 0, limit)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// PaymentStats aggregates counts and the completed sum over a period.
type PaymentStats struct {
	Total             int64 `json:"total_payments"`
	Completed         int64 `json:"completed_payments"`
	Pending           int64 `json:"pending_payments"`
	Failed            int64 `json:"failed_payments"`
	CompletedSumCents int64 `json:"completed_amount_cents"`
}

// Stats computes payment statistics in one aggregate query.
func (r *PaymentRepo) Stats(ctx context.Context, start, end *time.Time) (*PaymentStats, error) {
	where := "1=1"
	args := []any{}
	if start != nil {
		where += " AND created_at >= ?"
		args = append(args, start.UTC())
	}
	if end != nil {
		where += " AND created_at <= ?"
		args = append(args, end.UTC())
	}
	var s PaymentStats
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
				COALESCE(SUM(status = 'COMPLETED'), 0),
				COALESCE(SUM(status = 'PENDING'), 0),
				COALESCE(SUM(status = 'FAILED'), 0),
				COALESCE(SUM(CASE WHEN status = 'COMPLETED' THEN amount_cents ELSE 0 END), 0)
		 FROM payments WHERE `+where,
		args...).Scan(&s.Total, &s.Completed, &s.Pending, &s.Failed, &s.CompletedSumCents)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

type paymentScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row paymentScanner) (*model.Payment, error) {
	var (
		p          model.Payment
		status     string
		method     sql.NullString
		invoiceURL sql.NullString
		failure    sql.NullString
		paidAt     sql.NullTime
		raw        []byte
	)
	if err := row.Scan(&p.ID, &p.OrderID, &p.UserID, &p.Reference, &p.AmountCents,
		&p.Currency, &method, &status, &invoiceURL, &raw, &failure, &paidAt,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Status = model.PaymentStatus(status)
	p.ExternalResponse = raw
	if method.Valid {
		v := method.String
		p.Method = &v
	}
	if invoiceURL.Valid {
		v := invoiceURL.String
		p.InvoiceURL = &v
	}
	if failure.Valid {
		v := failure.String
		p.FailureReason = &v
	}
	if paidAt.Valid {
		t := paidAt.Time
		p.PaidAt = &t
	}
	return &p, nil
}
