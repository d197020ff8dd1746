package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/infinitedim/skyvix/internal/model"
)

// BookingRepo provides persistence for train bookings.  Booking
// creation and cancellation are the two places where a booking row and
// a seat's availability flag must change together; both run inside a
// single transaction here so neither state is ever observable without
// the other.
type BookingRepo struct {
	db    *sql.DB
	seats *SeatRepo
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo {
	return &BookingRepo{db: db, seats: NewSeatRepo(db)}
}

const bookingCols = `id, user_id, schedule_id, seat_id, booking_code, passenger_name, passenger_id_card,
	   passenger_phone, passenger_email, departure_date, total_price_cents, status, cancelled_at, created_at, updated_at`

// Create inserts a booking and, when a seat is attached, reserves that
// seat in the same transaction.  If the seat compare-and-set fails the
// whole transaction rolls back and ErrSeatUnavailable (or
// ErrSeatNotFound) is returned.  A unique-constraint hit on the booking
// code yields ErrDuplicateBookingCode so the caller can regenerate.
func (r *BookingRepo) Create(ctx context.Context, b *model.TrainBooking) error {
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
	if b.SeatID != nil {
		if err := r.seats.ReserveTx(ctx, tx, *b.SeatID, b.ScheduleID); err != nil {
			return err
		}
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO train_bookings
		 (user_id, schedule_id, seat_id, booking_code, passenger_name, passenger_id_card,
		  passenger_phone, passenger_email, departure_date, total_price_cents, status)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		b.UserID, b.ScheduleID, b.SeatID, b.BookingCode, b.PassengerName, b.PassengerIDCard,
		b.PassengerPhone, b.PassengerEmail, b.DepartureDate.UTC(), b.TotalPriceCents, string(b.Status))
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return ErrDuplicateBookingCode
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	if err := tx.QueryRowContext(ctx,
		`SELECT created_at, updated_at FROM train_bookings WHERE id = ?`, b.ID,
	).Scan(&b.CreatedAt, &b.UpdatedAt); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// GetByID returns a booking or ErrBookingNotFound.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (*model.TrainBooking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx,
		`SELECT `+bookingCols+` FROM train_bookings WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return b, nil
}

// GetByCode resolves a booking by its human-readable code.
func (r *BookingRepo) GetByCode(ctx context.Context, code string) (*model.TrainBooking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx,
		`SELECT `+bookingCols+` FROM train_bookings WHERE booking_code = ? LIMIT 1`,
		strings.ToUpper(strings.TrimSpace(code))))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return b, nil
}

// BookingFilter defines filters & pagination for listing bookings.
type BookingFilter struct {
	UserID     uint64
	ScheduleID uint64
	Status     string
	Page       int
	PageSize   int
}

// List returns bookings matching the filter, newest first, along with
// the total match count.
func (r *BookingRepo) List(ctx context.Context, f BookingFilter) ([]model.TrainBooking, int64, error) {
	where := []string{}
	args := []any{}
	if f.UserID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.ScheduleID != 0 {
		where = append(where, "schedule_id = ?")
		args = append(args, f.ScheduleID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM train_bookings WHERE `+cond, args...).Scan(&total); err != nil {
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
		`SELECT `+bookingCols+` FROM train_bookings WHERE `+cond+`
		 ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		argsData...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]model.TrainBooking, 0, limit)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// UpdateStatus transitions a booking and, when the new status is
// CANCELLED, stamps the cancellation time and releases the held seat in
// the same transaction.  The fromStatuses guard makes the transition a
// compare-and-set; a zero row count against an existing booking
// reports ErrConflict.
func (r *BookingRepo) UpdateStatus(ctx context.Context, id uint64, to model.BookingStatus, fromStatuses ...model.BookingStatus) (*model.TrainBooking, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	set := `status = ?, updated_at = NOW()`
	if to == model.BookingCancelled {
		set += `, cancelled_at = UTC_TIMESTAMP()`
	}
	placeholders := make([]string, 0, len(fromStatuses))
	args := []any{string(to), id}
	for _, s := range fromStatuses {
		placeholders = append(placeholders, "?")
		args = append(args, string(s))
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE train_bookings SET `+set+` WHERE id = ? AND status IN (`+strings.Join(placeholders, ",")+`)`,
		args...)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		var exists uint64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM train_bookings WHERE id = ?`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		if err != nil {
			return nil, err
		}
		return nil, ErrConflict
	}

	b, err := scanBooking(tx.QueryRowContext(ctx,
		`SELECT `+bookingCols+` FROM train_bookings WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if to == model.BookingCancelled && b.SeatID != nil {
		if err := r.seats.ReleaseTx(ctx, tx, *b.SeatID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return b, nil
}

type bookingScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row bookingScanner) (*model.TrainBooking, error) {
	var (
		b           model.TrainBooking
		seatID      sql.NullInt64
		status      string
		cancelledAt sql.NullTime
	)
	if err := row.Scan(&b.ID, &b.UserID, &b.ScheduleID, &seatID, &b.BookingCode,
		&b.PassengerName, &b.PassengerIDCard, &b.PassengerPhone, &b.PassengerEmail,
		&b.DepartureDate, &b.TotalPriceCents, &status, &cancelledAt,
		&b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.Status = model.BookingStatus(status)
	if seatID.Valid {
		v := uint64(seatID.Int64)
		b.SeatID = &v
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time
		b.CancelledAt = &t
	}
	return &b, nil
}
