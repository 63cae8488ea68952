// Package mutation composes the policy check, the domain write and the audit record
// into one unit. A business change and its audit row commit together or not at all.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-fleet/internal/audit"
	"github.com/odyssey-erp/odyssey-fleet/internal/authz"
	"github.com/odyssey-erp/odyssey-fleet/internal/platform/db"
	"github.com/odyssey-erp/odyssey-fleet/internal/shared"
)

// Decider is the policy engine contract.
type Decider interface {
	Decide(ctx context.Context, role, module, action string) authz.Decision
}

// Recorder appends audit events on the given transaction.
type Recorder interface {
	Record(ctx context.Context, q audit.Querier, entry audit.Entry, principal *shared.Principal) (audit.Event, error)
}

// Observer receives the terminal outcome of every Execute call.
type Observer interface {
	ObserveMutation(module, action string, outcome Outcome)
}

// Outcome is the terminal state of a mutation request.
type Outcome string

const (
	OutcomeRejected   Outcome = "rejected"
	OutcomeCommitted  Outcome = "committed"
	OutcomeRolledBack Outcome = "rolled_back"
)

// Change is what a domain write reports back for the audit row.
type Change struct {
	Table    string
	RecordID int64
	Before   any
	After    any
}

// WriteFunc performs the domain insert/update/delete on tx.
type WriteFunc func(ctx context.Context, tx pgx.Tx) (Change, error)

// Result identifies the committed change.
type Result struct {
	RecordID int64
	AuditID  int64
}

// Gateway runs guarded, audited mutations. It holds no per-request state.
type Gateway struct {
	policy   Decider
	db       db.TxBeginner
	trail    Recorder
	logger   *slog.Logger
	observer Observer
}

// Option customises a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger for rollback diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithObserver registers an outcome observer.
func WithObserver(o Observer) Option {
	return func(g *Gateway) { g.observer = o }
}

// NewGateway builds a Gateway.
func NewGateway(policy Decider, pool db.TxBeginner, trail Recorder, opts ...Option) *Gateway {
	g := &Gateway{policy: policy, db: pool, trail: trail, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize checks a read or other non-mutating action.
func (g *Gateway) Authorize(ctx context.Context, principal shared.Principal, module, action string) error {
	if !g.policy.Decide(ctx, principal.Role, module, action).Allowed() {
		return shared.ErrForbidden
	}
	return nil
}

// Execute checks the policy, then runs write and the audit insert in one transaction.
//
// Errors returned: shared.ErrForbidden when denied (write never runs);
// shared.ErrValidation or shared.ErrNotFound when the write reported them;
// shared.ErrConflict on serialization failure or deadlock; shared.ErrStoreUnavailable
// when the database could not be reached or timed out; shared.ErrOperationFailed
// otherwise. Storage error text is logged, never returned.
func (g *Gateway) Execute(ctx context.Context, principal shared.Principal, module, action string, write WriteFunc) (Result, error) {
	if !authz.IsMutation(action) {
		return Result{}, fmt.Errorf("%w: %q is not a mutation", shared.ErrValidation, action)
	}
	if write == nil {
		return Result{}, fmt.Errorf("%w: no write supplied", shared.ErrValidation)
	}

	if !g.policy.Decide(ctx, principal.Role, module, action).Allowed() {
		g.observe(module, action, OutcomeRejected)
		return Result{}, shared.ErrForbidden
	}

	var result Result
	err := db.WithTx(ctx, g.db, func(tx pgx.Tx) error {
		change, err := write(ctx, tx)
		if err != nil {
			return err
		}
		ev, err := g.trail.Record(ctx, tx, audit.Entry{
			Action:        action,
			Table:         change.Table,
			RecordID:      change.RecordID,
			Before:        change.Before,
			After:         change.After,
			ActorID:       principal.ID,
			SourceAddress: principal.SourceAddress,
		}, &principal)
		if err != nil {
			return err
		}
		result = Result{RecordID: change.RecordID, AuditID: ev.ID}
		return nil
	})
	if err != nil {
		g.observe(module, action, OutcomeRolledBack)
		return Result{}, g.surface(module, action, principal, err)
	}

	g.observe(module, action, OutcomeCommitted)
	return result, nil
}

// surface converts a rollback cause into the error the caller may see.
func (g *Gateway) surface(module, action string, principal shared.Principal, err error) error {
	attrs := []any{
		slog.String("module", module),
		slog.String("action", action),
		slog.Int64("actor_id", principal.ID),
		slog.Any("error", err),
	}
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return shared.ErrNotFound
	case errors.Is(err, shared.ErrValidation):
		// Domain validation messages are written for users; keep them.
		return err
	case db.IsConflict(err):
		g.logger.Warn("mutation rolled back on conflict", attrs...)
		return shared.ErrConflict
	case db.IsUnavailable(err):
		g.logger.Error("mutation rolled back, store unavailable", attrs...)
		return shared.ErrStoreUnavailable
	default:
		g.logger.Error("mutation rolled back", attrs...)
		return shared.ErrOperationFailed
	}
}

func (g *Gateway) observe(module, action string, outcome Outcome) {
	if g.observer != nil {
		g.observer.ObserveMutation(module, action, outcome)
	}
}
