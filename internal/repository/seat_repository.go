package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/infinitedim/skyvix/internal/model"
)

// SeatRepo provides persistence for per-schedule seats.  The
// availability flag is only ever flipped through the ReserveTx /
// ReleaseTx compare-and-set pair, always inside the transaction that
// creates or cancels the holding booking.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo returns a new SeatRepo bound to the given database.
func NewSeatRepo(db *sql.DB) *SeatRepo { return &SeatRepo{db: db} }

const seatCols = `id, schedule_id, car_number, seat_number, seat_class, price_cents, is_available, created_at, updated_at`

// CreateBulk inserts seats for one schedule in a single statement.
// Car+seat number must be unique within the schedule; a duplicate
// yields ErrConflict.  Passing an empty slice has no effect.
func (r *SeatRepo) CreateBulk(ctx context.Context, seats []model.TrainSeat) error {
	if len(seats) == 0 {
		return nil
	}
	query := `INSERT INTO train_seats (schedule_id, car_number, seat_number, seat_class, price_cents, is_available) VALUES `
	args := make([]any, 0, len(seats)*6)
	for i, s := range seats {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?)"
		args = append(args, s.ScheduleID, s.CarNumber, s.SeatNumber, s.SeatClass, s.PriceCents, s.IsAvailable)
	}
	_, err := r.db.ExecContext(ctx, query, args...)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "1062") {
		return ErrConflict
	}
	return err
}

// GetByID returns a seat or ErrSeatNotFound.
func (r *SeatRepo) GetByID(ctx context.Context, id uint64) (*model.TrainSeat, error) {
	s, err := scanSeat(r.db.QueryRowContext(ctx,
		`SELECT `+seatCols+` FROM train_seats WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSeatNotFound
		}
		return nil, err
	}
	return s, nil
}

// ListBySchedule returns the seats of a schedule ordered by car and
// seat number.  When availableOnly is true, held seats are omitted.
func (r *SeatRepo) ListBySchedule(ctx context.Context, scheduleID uint64, availableOnly bool) ([]model.TrainSeat, error) {
	q := `SELECT ` + seatCols + ` FROM train_seats WHERE schedule_id = ?`
	if availableOnly {
		q += ` AND is_available = 1`
	}
	q += ` ORDER BY car_number, seat_number`
	rows, err := r.db.QueryContext(ctx, q, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.TrainSeat, 0)
	for rows.Next() {
		s, err := scanSeat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// ReserveTx atomically flips an available seat to unavailable within
// the caller's transaction.  The WHERE clause is the compare-and-set:
// the seat must exist, belong to the given schedule and still be
// available.  When another booking got there first, zero rows match and
// ErrSeatUnavailable is returned; the caller rolls back.
func (r *SeatRepo) ReserveTx(ctx context.Context, tx *sql.Tx, seatID, scheduleID uint64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE train_seats SET is_available = 0, updated_at = NOW()
		 WHERE id = ? AND schedule_id = ? AND is_available = 1`,
		seatID, scheduleID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists uint64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM train_seats WHERE id = ? AND schedule_id = ?`,
			seatID, scheduleID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrSeatNotFound
		}
		if err != nil {
			return err
		}
		return ErrSeatUnavailable
	}
	return nil
}

// ReleaseTx marks a seat available again within the caller's
// transaction.  Releasing an already-available seat is a no-op, which
// makes the operation idempotent.
func (r *SeatRepo) ReleaseTx(ctx context.Context, tx *sql.Tx, seatID uint64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE train_seats SET is_available = 1, updated_at = NOW() WHERE id = ?`,
		seatID)
	return err
}

type seatScanner interface {
	Scan(dest ...any) error
}

func scanSeat(row seatScanner) (*model.TrainSeat, error) {
	var s model.TrainSeat
	if err := row.Scan(&s.ID, &s.ScheduleID, &s.CarNumber, &s.SeatNumber,
		&s.SeatClass, &s.PriceCents, &s.IsAvailable, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}
