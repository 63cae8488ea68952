package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-fleet/internal/platform/db"
	"github.com/odyssey-erp/odyssey-fleet/internal/shared"
)

// Querier is the subset of pgxpool.Pool used by the store.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	lookupSQL = `SELECT allowed FROM permission_rules WHERE role = $1 AND module = $2 AND action = $3`
	upsertSQL = `INSERT INTO permission_rules (role, module, action, allowed, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (role, module, action) DO UPDATE SET allowed = EXCLUDED.allowed, updated_at = NOW()
WHERE permission_rules.allowed IS DISTINCT FROM EXCLUDED.allowed`
	matrixSQL = `SELECT role, module, action FROM permission_rules WHERE allowed ORDER BY role, module, action`

	// matrixReadTimeout bounds the shared matrix query, which outlives any single caller.
	matrixReadTimeout = 10 * time.Second
)

// RowFailure describes one rejected row of a batch save.
type RowFailure struct {
	Index  int    `json:"index"`
	Rule   Rule   `json:"rule"`
	Reason string `json:"reason"`
}

// BatchResult reports the outcome of UpsertBatch.
type BatchResult struct {
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Failures  []RowFailure `json:"failures,omitempty"`
}

// Store is the durable permission_rules table. It is the only writer of that table.
type Store struct {
	db        Querier
	catalog   *Catalog
	reserved  map[string]struct{}
	validate  *validator.Validate
	logger    *slog.Logger
	matrixRun singleflight.Group
}

// NewStore builds a Store. Rules naming a reserved role (the super-role and its aliases)
// are rejected since that role never consults the table.
func NewStore(db Querier, catalog *Catalog, logger *slog.Logger, reservedRoles ...string) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	reserved := make(map[string]struct{}, len(reservedRoles))
	for _, r := range reservedRoles {
		if r = strings.TrimSpace(r); r != "" {
			reserved[r] = struct{}{}
		}
	}
	return &Store{db: db, catalog: catalog, reserved: reserved, validate: validator.New(), logger: logger}
}

// Catalog exposes the module catalog used for validation.
func (s *Store) Catalog() *Catalog {
	return s.catalog
}

// Lookup returns the stored value for the tuple. found is false when no row exists.
func (s *Store) Lookup(ctx context.Context, role, module, action string) (allowed bool, found bool, err error) {
	if s == nil || s.db == nil {
		return false, false, shared.ErrStoreUnavailable
	}
	err = s.db.QueryRow(ctx, lookupSQL, role, module, action).Scan(&allowed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, false, nil
		}
		if db.IsUnavailable(err) {
			return false, false, fmt.Errorf("%w: lookup rule: %w", shared.ErrStoreUnavailable, err)
		}
		return false, false, fmt.Errorf("authz: lookup rule: %w", err)
	}
	return allowed, true, nil
}

// UpsertOne validates and writes one rule. Repeating the call is a no-op.
func (s *Store) UpsertOne(ctx context.Context, rule Rule) error {
	if s == nil || s.db == nil {
		return shared.ErrStoreUnavailable
	}
	rule = normalizeRule(rule)
	if err := s.check(rule); err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, upsertSQL, rule.Role, rule.Module, rule.Action, rule.Allowed); err != nil {
		return fmt.Errorf("authz: upsert rule: %w", err)
	}
	return nil
}

// UpsertBatch applies each rule independently. A failing row never aborts the others.
func (s *Store) UpsertBatch(ctx context.Context, rules []Rule) BatchResult {
	var result BatchResult
	for i, rule := range rules {
		if err := s.UpsertOne(ctx, rule); err != nil {
			result.Failed++
			reason := "could not save rule"
			if errors.Is(err, shared.ErrValidation) {
				reason = err.Error()
			} else {
				s.logger.Error("authz upsert rule", slog.Int("index", i), slog.Any("error", err))
			}
			result.Failures = append(result.Failures, RowFailure{Index: i, Rule: rule, Reason: reason})
			continue
		}
		result.Succeeded++
	}
	return result
}

// ReadFullMatrix materializes every allowed rule. Concurrent callers share one query.
func (s *Store) ReadFullMatrix(ctx context.Context) (Matrix, error) {
	if s == nil || s.db == nil {
		return nil, shared.ErrStoreUnavailable
	}
	ch := s.matrixRun.DoChan("matrix", func() (any, error) {
		// Detached from the first caller so its cancellation does not fail the others.
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), matrixReadTimeout)
		defer cancel()
		return s.readMatrix(readCtx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		// Shared results are copied so callers may not alias each other.
		return cloneMatrix(res.Val.(Matrix)), nil
	}
}

func (s *Store) readMatrix(ctx context.Context) (Matrix, error) {
	rows, err := s.db.Query(ctx, matrixSQL)
	if err != nil {
		if db.IsUnavailable(err) {
			return nil, fmt.Errorf("%w: read matrix: %w", shared.ErrStoreUnavailable, err)
		}
		return nil, fmt.Errorf("authz: read matrix: %w", err)
	}
	defer rows.Close()

	matrix := make(Matrix)
	for rows.Next() {
		var role, module, action string
		if err := rows.Scan(&role, &module, &action); err != nil {
			return nil, fmt.Errorf("authz: scan matrix row: %w", err)
		}
		matrix.set(role, module, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("authz: read matrix: %w", err)
	}
	return matrix, nil
}

func (s *Store) check(rule Rule) error {
	if err := s.validate.Struct(rule); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed %q", shared.ErrValidation, strings.ToLower(verrs[0].Field()), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	if _, ok := s.reserved[rule.Role]; ok {
		return fmt.Errorf("%w: role %q bypasses the permission table", shared.ErrValidation, rule.Role)
	}
	if s.catalog != nil {
		if err := s.catalog.Validate(rule); err != nil {
			return err
		}
	}
	return nil
}

func normalizeRule(r Rule) Rule {
	r.Role = strings.TrimSpace(r.Role)
	r.Module = strings.TrimSpace(r.Module)
	r.Action = strings.TrimSpace(r.Action)
	return r
}

func cloneMatrix(m Matrix) Matrix {
	out := make(Matrix, len(m))
	for role, modules := range m {
		for module, actions := range modules {
			for action := range actions {
				out.set(role, module, action)
			}
		}
	}
	return out
}
