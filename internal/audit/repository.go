package audit

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Reader is the subset of pgxpool.Pool the reporting repository needs.
type Reader interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository reads audit_events for reporting. It exposes no write path.
type Repository interface {
	List(ctx context.Context, filters Filters, limit, offset int) ([]EventView, error)
	History(ctx context.Context, table string, recordID int64) ([]EventView, error)
}

type repository struct {
	db Reader
}

// NewRepository returns a pgx backed Repository.
func NewRepository(db Reader) Repository {
	return &repository{db: db}
}

const selectEventsSQL = `SELECT e.id, e.actor_id, e.affected_table, e.affected_record_id, e.action,
       e.before_state, e.after_state, e.source_address, e.created_at,
       COALESCE(NULLIF(u.name, ''), u.email, '') AS actor_name
FROM audit_events e
LEFT JOIN users u ON u.id = e.actor_id`

func (r *repository) List(ctx context.Context, filters Filters, limit, offset int) ([]EventView, error) {
	query := selectEventsSQL + ` WHERE 1=1`
	args := []any{}
	add := func(clause string, value any) {
		args = append(args, value)
		query += " AND " + strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(args)))
	}
	if t := strings.TrimSpace(filters.Table); t != "" {
		add("e.affected_table = ?", t)
	}
	if filters.RecordID > 0 {
		add("e.affected_record_id = ?", filters.RecordID)
	}
	if filters.ActorID > 0 {
		add("e.actor_id = ?", filters.ActorID)
	}
	if a := strings.TrimSpace(filters.Action); a != "" {
		add("e.action = ?", a)
	}
	if !filters.From.IsZero() {
		add("e.created_at >= ?", filters.From)
	}
	if !filters.To.IsZero() {
		add("e.created_at < ?", filters.To)
	}
	query += ` ORDER BY e.created_at DESC, e.id DESC`
	if limit > 0 {
		args = append(args, limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}
	return r.query(ctx, query, args...)
}

func (r *repository) History(ctx context.Context, table string, recordID int64) ([]EventView, error) {
	query := selectEventsSQL + ` WHERE e.affected_table = $1 AND e.affected_record_id = $2 ORDER BY e.created_at DESC, e.id DESC`
	return r.query(ctx, query, table, recordID)
}

func (r *repository) query(ctx context.Context, query string, args ...any) ([]EventView, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query events: %w", err)
	}
	defer rows.Close()

	var out []EventView
	for rows.Next() {
		var (
			v      EventView
			before []byte
			after  []byte
		)
		if err := rows.Scan(&v.ID, &v.ActorID, &v.AffectedTable, &v.AffectedRecordID, &v.Action,
			&before, &after, &v.SourceAddress, &v.CreatedAt, &v.ActorName); err != nil {
			return nil, fmt.Errorf("audit: scan event: %w", err)
		}
		if len(before) > 0 {
			v.Before = before
		}
		if len(after) > 0 {
			v.After = after
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: query events: %w", err)
	}
	return out, nil
}
