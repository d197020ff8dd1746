package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/infinitedim/skyvix/internal/model"
)

// StationRepo provides CRUD operations for stations.
type StationRepo struct {
	db *sql.DB
}

// NewStationRepo returns a new StationRepo bound to the given database.
func NewStationRepo(db *sql.DB) *StationRepo { return &StationRepo{db: db} }

const stationCols = `id, code, name, city, created_at, updated_at`

// Create inserts a station.  The code must be unique; a duplicate
// yields ErrConflict.
func (r *StationRepo) Create(ctx context.Context, s *model.Station) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO stations (code, name, city) VALUES (?,?,?)`,
		strings.ToUpper(strings.TrimSpace(s.Code)), s.Name, s.City)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return ErrConflict
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	return r.db.QueryRowContext(ctx,
		`SELECT created_at, updated_at FROM stations WHERE id = ?`, s.ID,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
}

// GetByID returns a station or ErrStationNotFound.
func (r *StationRepo) GetByID(ctx context.Context, id uint64) (*model.Station, error) {
	var s model.Station
	err := r.db.QueryRowContext(ctx,
		`SELECT `+stationCols+` FROM stations WHERE id = ?`, id,
	).Scan(&s.ID, &s.Code, &s.Name, &s.City, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStationNotFound
		}
		return nil, err
	}
	return &s, nil
}

// List returns all stations ordered by code.  An optional city filter
// matches case-insensitively.
func (r *StationRepo) List(ctx context.Context, city string) ([]model.Station, error) {
	q := `SELECT ` + stationCols + ` FROM stations`
	args := []any{}
	if city != "" {
		q += ` WHERE LOWER(city) LIKE ?`
		args = append(args, "%"+strings.ToLower(city)+"%")
	}
	q += ` ORDER BY code`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Station, 0)
	for rows.Next() {
		var s model.Station
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.City, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Delete removes a station that no route references.
func (r *StationRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM stations
		 WHERE id = ?
		   AND NOT EXISTS (SELECT 1 FROM train_routes tr WHERE tr.departure_station_id = stations.id OR tr.arrival_station_id = stations.id)`,
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
