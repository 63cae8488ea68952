package parties

import (
	"context"
	"errors"
	"strconv"

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

const partyColumns = `id, kind, name, tax_id, email, phone, address, created_at, updated_at`

type repository struct{}

func scanParty(row pgx.Row) (Party, error) {
	var p Party
	err := row.Scan(&p.ID, &p.Kind, &p.Name, &p.TaxID, &p.Email, &p.Phone, &p.Address, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Party{}, shared.ErrNotFound
	}
	return p, err
}

func (repository) get(ctx context.Context, q DBTX, id int64) (Party, error) {
	return scanParty(q.QueryRow(ctx, `SELECT `+partyColumns+` FROM parties WHERE id = $1`, id))
}

func (repository) lock(ctx context.Context, q DBTX, id int64) (Party, error) {
	return scanParty(q.QueryRow(ctx, `SELECT `+partyColumns+` FROM parties WHERE id = $1 FOR UPDATE`, id))
}

func (repository) insert(ctx context.Context, q DBTX, p Party) (Party, error) {
	return scanParty(q.QueryRow(ctx, `INSERT INTO parties (kind, name, tax_id, email, phone, address)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+partyColumns, p.Kind, p.Name, p.TaxID, p.Email, p.Phone, p.Address))
}

func (repository) update(ctx context.Context, q DBTX, p Party) (Party, error) {
	return scanParty(q.QueryRow(ctx, `UPDATE parties
SET kind = $1, name = $2, tax_id = $3, email = $4, phone = $5, address = $6, updated_at = NOW()
WHERE id = $7
RETURNING `+partyColumns, p.Kind, p.Name, p.TaxID, p.Email, p.Phone, p.Address, p.ID))
}

func (repository) delete(ctx context.Context, q DBTX, id int64) error {
	tag, err := q.Exec(ctx, `DELETE FROM parties WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (repository) list(ctx context.Context, q DBTX, filters ListFilters) ([]Party, error) {
	query := `SELECT ` + partyColumns + ` FROM parties WHERE 1=1`
	args := []any{}
	if filters.Kind != "" {
		args = append(args, filters.Kind)
		query += ` AND kind = $` + strconv.Itoa(len(args))
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		query += ` AND (name ILIKE $` + strconv.Itoa(len(args)) + ` OR tax_id ILIKE $` + strconv.Itoa(len(args)) + `)`
	}
	query += ` ORDER BY name ASC, id ASC`
	args = append(args, filters.Limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))
	args = append(args, (filters.Page-1)*filters.Limit)
	query += ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Party{}
	for rows.Next() {
		p, err := scanParty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
