package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/infinitedim/skyvix/internal/model"
)

// RouteRepo provides persistence for trains and the routes they run.
// The two live in one repository because routes are never manipulated
// without their train.
type RouteRepo struct {
	db *sql.DB
}

// NewRouteRepo returns a new RouteRepo bound to the given database.
func NewRouteRepo(db *sql.DB) *RouteRepo { return &RouteRepo{db: db} }

// CreateTrain inserts a train and populates the generated ID.
func (r *RouteRepo) CreateTrain(ctx context.Context, t *model.Train) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO trains (name, type) VALUES (?,?)`, t.Name, t.Type)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	return r.db.QueryRowContext(ctx,
		`SELECT created_at, updated_at FROM trains WHERE id = ?`, t.ID,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
}

// GetTrain returns a train or ErrTrainNotFound.
func (r *RouteRepo) GetTrain(ctx context.Context, id uint64) (*model.Train, error) {
	var t model.Train
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, type, created_at, updated_at FROM trains WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &t.Type, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTrainNotFound
		}
		return nil, err
	}
	return &t, nil
}

// ListTrains returns all trains ordered by name.
func (r *RouteRepo) ListTrains(ctx context.Context) ([]model.Train, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, type, created_at, updated_at FROM trains ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Train, 0)
	for rows.Next() {
		var t model.Train
		if err := rows.Scan(&t.ID, &t.Name, &t.Type, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const routeCols = `id, train_id, departure_station_id, arrival_station_id, distance_km, is_active, created_at, updated_at`

// CreateRoute inserts a route.  Train and both stations must exist;
// foreign key misses surface as the matching not-found sentinels after
// an explicit existence check so handlers get a clean 404.
func (r *RouteRepo) CreateRoute(ctx context.Context, rt *model.TrainRoute) error {
	if _, err := r.GetTrain(ctx, rt.TrainID); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO train_routes (train_id, departure_station_id, arrival_station_id, distance_km, is_active) VALUES (?,?,?,?,?)`,
		rt.TrainID, rt.DepartureStationID, rt.ArrivalStationID, rt.DistanceKM, rt.IsActive)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rt.ID = uint64(id)
	return r.db.QueryRowContext(ctx,
		`SELECT created_at, updated_at FROM train_routes WHERE id = ?`, rt.ID,
	).Scan(&rt.CreatedAt, &rt.UpdatedAt)
}

// GetRoute returns a route or ErrRouteNotFound.
func (r *RouteRepo) GetRoute(ctx context.Context, id uint64) (*model.TrainRoute, error) {
	rt, err := scanRoute(r.db.QueryRowContext(ctx,
		`SELECT `+routeCols+` FROM train_routes WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRouteNotFound
		}
		return nil, err
	}
	return rt, nil
}

// ListRoutes returns routes, optionally limited to one train.
func (r *RouteRepo) ListRoutes(ctx context.Context, trainID uint64) ([]model.TrainRoute, error) {
	q := `SELECT ` + routeCols + ` FROM train_routes`
	args := []any{}
	if trainID != 0 {
		q += ` WHERE train_id = ?`
		args = append(args, trainID)
	}
	q += ` ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.TrainRoute, 0)
	for rows.Next() {
		rt, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rt)
	}
	return out, rows.Err()
}

type routeScanner interface {
	Scan(dest ...any) error
}

func scanRoute(row routeScanner) (*model.TrainRoute, error) {
	var (
		rt       model.TrainRoute
		distance sql.NullInt64
	)
	if err := row.Scan(&rt.ID, &rt.TrainID, &rt.DepartureStationID, &rt.ArrivalStationID,
		&distance, &rt.IsActive, &rt.CreatedAt, &rt.UpdatedAt); err != nil {
		return nil, err
	}
	if distance.Valid {
		v := uint32(distance.Int64)
		rt.DistanceKM = &v
	}
	return &rt, nil
}
