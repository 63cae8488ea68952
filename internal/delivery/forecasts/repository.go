package forecasts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/odyssey-fleet/internal/shared"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const forecastColumns = `id, party_id, vehicle_plate, scheduled_for, route, quantity::float8, status, notes, created_at, updated_at`

func scanForecast(row pgx.Row) (Forecast, error) {
	var f Forecast
	err := row.Scan(&f.ID, &f.PartyID, &f.VehiclePlate, &f.ScheduledFor, &f.Route, &f.Quantity, &f.Status, &f.Notes, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Forecast{}, shared.ErrNotFound
	}
	return f, err
}

func getForecast(ctx context.Context, q DBTX, id int64) (Forecast, error) {
	return scanForecast(q.QueryRow(ctx, `SELECT `+forecastColumns+` FROM delivery_forecasts WHERE id = $1`, id))
}

func lockForecast(ctx context.Context, q DBTX, id int64) (Forecast, error) {
	return scanForecast(q.QueryRow(ctx, `SELECT `+forecastColumns+` FROM delivery_forecasts WHERE id = $1 FOR UPDATE`, id))
}

func partyExists(ctx context.Context, q DBTX, partyID int64) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM parties WHERE id = $1)`, partyID).Scan(&exists)
	return exists, err
}

func insertForecast(ctx context.Context, q DBTX, f Forecast) (Forecast, error) {
	return scanForecast(q.QueryRow(ctx, `INSERT INTO delivery_forecasts (party_id, vehicle_plate, scheduled_for, route, quantity, status, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING `+forecastColumns,
		f.PartyID, f.VehiclePlate, f.ScheduledFor, f.Route, f.Quantity, f.Status, f.Notes))
}

func updateForecast(ctx context.Context, q DBTX, f Forecast) (Forecast, error) {
	return scanForecast(q.QueryRow(ctx, `UPDATE delivery_forecasts
SET party_id = $1, vehicle_plate = $2, scheduled_for = $3, route = $4, quantity = $5, status = $6, notes = $7, updated_at = NOW()
WHERE id = $8
RETURNING `+forecastColumns,
		f.PartyID, f.VehiclePlate, f.ScheduledFor, f.Route, f.Quantity, f.Status, f.Notes, f.ID))
}

func deleteForecast(ctx context.Context, q DBTX, id int64) error {
	tag, err := q.Exec(ctx, `DELETE FROM delivery_forecasts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func listForecasts(ctx context.Context, q DBTX, w Window) ([]Forecast, error) {
	rows, err := q.Query(ctx, `SELECT `+forecastColumns+` FROM delivery_forecasts
WHERE scheduled_for BETWEEN $1 AND $2
ORDER BY scheduled_for ASC, id ASC`, w.From, w.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Forecast{}
	for rows.Next() {
		f, err := scanForecast(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
