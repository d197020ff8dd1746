package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/infinitedim/skyvix/internal/model"
)

// ScheduleRepo provides persistence for train schedules.  Operating
// days are stored as a comma-separated list of upper-case weekday
// names; MySQL has no array column and the set is tiny.
type ScheduleRepo struct {
	db *sql.DB
}

// NewScheduleRepo returns a new ScheduleRepo bound to the given database.
func NewScheduleRepo(db *sql.DB) *ScheduleRepo { return &ScheduleRepo{db: db} }

const scheduleCols = `id, route_id, train_id, departure_time, arrival_time, valid_from, valid_until, operating_days, is_active, created_at, updated_at`

// Create inserts a schedule.  The train id is denormalized from the
// route at creation time so listings avoid a join.
func (r *ScheduleRepo) Create(ctx context.Context, s *model.TrainSchedule) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO train_schedules (route_id, train_id, departure_time, arrival_time, valid_from, valid_until, operating_days, is_active) VALUES (?,?,?,?,?,?,?,?)`,
		s.RouteID, s.TrainID, s.DepartureTime, s.ArrivalTime,
		s.ValidFrom.UTC(), s.ValidUntil.UTC(), joinDays(s.OperatingDays), s.IsActive)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	return r.db.QueryRowContext(ctx,
		`SELECT created_at, updated_at FROM train_schedules WHERE id = ?`, s.ID,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
}

// GetByID returns a schedule or ErrScheduleNotFound.
func (r *ScheduleRepo) GetByID(ctx context.Context, id uint64) (*model.TrainSchedule, error) {
	s, err := scanSchedule(r.db.QueryRowContext(ctx,
		`SELECT `+scheduleCols+` FROM train_schedules WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}
	return s, nil
}

// ScheduleFilter defines filters & pagination for listing schedules.
type ScheduleFilter struct {
	RouteID  uint64
	TrainID  uint64
	Date     *time.Time // within the validity window
	IsActive *bool
	Page     int
	PageSize int
}

// List returns schedules matching the filter ordered by validity start,
// along with the total match count.
func (r *ScheduleRepo) List(ctx context.Context, f ScheduleFilter) ([]model.TrainSchedule, int64, error) {
	where := []string{}
	args := []any{}
	if f.RouteID != 0 {
		where = append(where, "route_id = ?")
		args = append(args, f.RouteID)
	}
	if f.TrainID != 0 {
		where = append(where, "train_id = ?")
		args = append(args, f.TrainID)
	}
	if f.Date != nil {
		where = append(where, "valid_from <= ? AND valid_until >= ?")
		args = append(args, f.Date.UTC(), f.Date.UTC())
	}
	if f.IsActive != nil {
		where = append(where, "is_active = ?")
		args = append(args, *f.IsActive)
	}
	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM train_schedules WHERE `+cond, args...).Scan(&total); err != nil {
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
		`SELECT `+scheduleCols+` FROM train_schedules WHERE `+cond+`
		 ORDER BY valid_from ASC, departure_time ASC LIMIT ? OFFSET ?`,
		argsData...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]model.TrainSchedule, 0, limit)
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Search returns active schedules operating between the two stations on
// the given travel date.  The weekday check uses FIND_IN_SET against the
// CSV operating_days column.
func (r *ScheduleRepo) Search(ctx context.Context, departureStationID, arrivalStationID uint64, date time.Time) ([]model.TrainSchedule, error) {
	day := strings.ToUpper(date.UTC().Weekday().String())
	rows, err := r.db.QueryContext(ctx,
		`SELECT s.id, s.route_id, s.train_id, s.departure_time, s.arrival_time,
				s.valid_from, s.valid_until, s.operating_days, s.is_active,
				s.created_at, s.updated_at
		 FROM train_schedules s
		 JOIN train_routes tr ON tr.id = s.route_id
		 WHERE s.is_active = 1
		   AND tr.is_active = 1
		   AND tr.departure_station_id = ?
		   AND tr.arrival_station_id = ?
		   AND s.valid_from <= ?
		   AND s.valid_until >= ?
		   AND FIND_IN_SET(?, s.operating_days) > 0
		 ORDER BY s.departure_time ASC`,
		departureStationID, arrivalStationID, date.UTC(), date.UTC(), day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.TrainSchedule, 0)
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// SetActive toggles the activation flag, the only mutation a schedule
// permits after creation.
func (r *ScheduleRepo) SetActive(ctx context.Context, id uint64, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE train_schedules SET is_active = ?, updated_at = NOW() WHERE id = ?`,
		active, id)
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
	}
	return nil
}

// Delete removes a schedule that has no active bookings.  The guard and
// the delete run in one statement so a booking created concurrently
// cannot slip between a check and the delete.
func (r *ScheduleRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM train_schedules
		 WHERE id = ?
		   AND NOT EXISTS (SELECT 1 FROM train_bookings b
						   WHERE b.schedule_id = train_schedules.id
							 AND b.status IN ('PENDING','CONFIRMED','PAID'))`,
		id)
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

type scheduleScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row scheduleScanner) (*model.TrainSchedule, error) {
	var (
		s    model.TrainSchedule
		days string
	)
	if err := row.Scan(&s.ID, &s.RouteID, &s.TrainID, &s.DepartureTime, &s.ArrivalTime,
		&s.ValidFrom, &s.ValidUntil, &days, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.OperatingDays = splitDays(days)
	return &s, nil
}

func joinDays(days []string) string {
	up := make([]string, 0, len(days))
	for _, d := range days {
		d = strings.ToUpper(strings.TrimSpace(d))
		if d != "" {
			up = append(up, d)
		}
	}
	return strings.Join(up, ",")
}

func splitDays(csv string) []string {
	if csv == "" {
		return []string{}
	}
	return strings.Split(csv, ",")
}
