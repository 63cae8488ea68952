package mutation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-fleet/internal/audit"
	"github.com/odyssey-erp/odyssey-fleet/internal/authz"
	"github.com/odyssey-erp/odyssey-fleet/internal/mutation"
	"github.com/odyssey-erp/odyssey-fleet/internal/shared"
)

type stubDecider struct {
	allow bool
	calls int
}

func (s *stubDecider) Decide(ctx context.Context, role, module, action string) authz.Decision {
	s.calls++
	if s.allow {
		return authz.Allow
	}
	return authz.Deny
}

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []mutation.Outcome
}

func (o *outcomeRecorder) ObserveMutation(module, action string, outcome mutation.Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

var salesperson = shared.Principal{ID: 3, Role: "Salesperson", SourceAddress: "10.0.0.1"}

func newMockGateway(t *testing.T, allow bool) (*mutation.Gateway, pgxmock.PgxPoolIface, *stubDecider, *outcomeRecorder) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	decider := &stubDecider{allow: allow}
	observer := &outcomeRecorder{}
	gw := mutation.NewGateway(decider, mock, audit.NewTrail(), mutation.WithObserver(observer))
	return gw, mock, decider, observer
}

func expectBegin(mock pgxmock.PgxPoolIface) {
	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
}

func insertPartyWrite(ctx context.Context, tx pgx.Tx) (mutation.Change, error) {
	var id int64
	if err := tx.QueryRow(ctx, "INSERT INTO parties (name) VALUES ($1) RETURNING id", "Acme").Scan(&id); err != nil {
		return mutation.Change{}, err
	}
	return mutation.Change{Table: "parties", RecordID: id, After: map[string]any{"id": id, "name": "Acme"}}, nil
}

func TestExecuteCommitsWriteAndAuditTogether(t *testing.T) {
	gw, mock, _, observer := newMockGateway(t, true)

	expectBegin(mock)
	mock.ExpectQuery("INSERT INTO parties").
		WithArgs("Acme").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(9)))
	mock.ExpectQuery("INSERT INTO audit_events").
		WithArgs(int64(3), "parties", int64(9), audit.ActionCreate, nil, pgxmock.AnyArg(), "10.0.0.1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(77), time.Now()))
	mock.ExpectCommit()

	result, err := gw.Execute(context.Background(), salesperson, shared.ModuleParties, authz.ActionCreate, insertPartyWrite)
	require.NoError(t, err)
	assert.Equal(t, int64(9), result.RecordID)
	assert.Equal(t, int64(77), result.AuditID)
	assert.Equal(t, []mutation.Outcome{mutation.OutcomeCommitted}, observer.outcomes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteDeniedNeverWrites(t *testing.T) {
	gw, mock, decider, observer := newMockGateway(t, false)
	called := false

	_, err := gw.Execute(context.Background(), salesperson, shared.ModuleParties, authz.ActionDelete,
		func(ctx context.Context, tx pgx.Tx) (mutation.Change, error) {
			called = true
			return mutation.Change{}, nil
		})
	assert.ErrorIs(t, err, shared.ErrForbidden)
	assert.False(t, called)
	assert.Equal(t, 1, decider.calls)
	assert.Equal(t, []mutation.Outcome{mutation.OutcomeRejected}, observer.outcomes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteAuditFailureRollsBack(t *testing.T) {
	gw, mock, _, observer := newMockGateway(t, true)

	expectBegin(mock)
	mock.ExpectQuery("INSERT INTO parties").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(9)))
	mock.ExpectQuery("INSERT INTO audit_events").
		WillReturnError(errors.New("relation audit_events is read only"))
	mock.ExpectRollback()

	_, err := gw.Execute(context.Background(), salesperson, shared.ModuleParties, authz.ActionCreate, insertPartyWrite)
	assert.ErrorIs(t, err, shared.ErrOperationFailed)
	assert.NotContains(t, err.Error(), "audit_events")
	assert.Equal(t, []mutation.Outcome{mutation.OutcomeRolledBack}, observer.outcomes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteWriteFailureSkipsAudit(t *testing.T) {
	gw, mock, _, _ := newMockGateway(t, true)

	expectBegin(mock)
	mock.ExpectQuery("INSERT INTO parties").
		WillReturnError(errors.New(`null value in column "name" violates not-null constraint`))
	mock.ExpectRollback()

	_, err := gw.Execute(context.Background(), salesperson, shared.ModuleParties, authz.ActionCreate, insertPartyWrite)
	assert.ErrorIs(t, err, shared.ErrOperationFailed)
	assert.NotContains(t, err.Error(), "null value")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteSerializationFailureIsConflict(t *testing.T) {
	for _, code := range []string{"40001", "40P01"} {
		t.Run(code, func(t *testing.T) {
			gw, mock, _, _ := newMockGateway(t, true)

			expectBegin(mock)
			mock.ExpectQuery("INSERT INTO parties").
				WillReturnError(&pgconn.PgError{Code: code, Message: "could not serialize access"})
			mock.ExpectRollback()

			_, err := gw.Execute(context.Background(), salesperson, shared.ModuleParties, authz.ActionCreate, insertPartyWrite)
			assert.ErrorIs(t, err, shared.ErrConflict)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestExecuteUnavailableStore(t *testing.T) {
	cases := map[string]error{
		"statement timeout": &pgconn.PgError{Code: "57014", Message: "canceling statement due to statement timeout"},
		"deadline":          context.DeadlineExceeded,
	}
	for name, cause := range cases {
		t.Run(name, func(t *testing.T) {
			gw, mock, _, observer := newMockGateway(t, true)

			expectBegin(mock)
			mock.ExpectQuery("INSERT INTO parties").WillReturnError(cause)
			mock.ExpectRollback()

			_, err := gw.Execute(context.Background(), salesperson, shared.ModuleParties, authz.ActionCreate, insertPartyWrite)
			assert.ErrorIs(t, err, shared.ErrStoreUnavailable)
			assert.NotContains(t, err.Error(), "statement timeout")
			assert.Equal(t, []mutation.Outcome{mutation.OutcomeRolledBack}, observer.outcomes)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestExecuteBeginFailureIsUnavailable(t *testing.T) {
	gw, mock, _, _ := newMockGateway(t, true)
	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead}).WillReturnError(context.DeadlineExceeded)

	_, err := gw.Execute(context.Background(), salesperson, shared.ModuleParties, authz.ActionCreate, insertPartyWrite)
	assert.ErrorIs(t, err, shared.ErrStoreUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutePassesDomainErrorsThrough(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"validation", errors.Join(shared.ErrValidation, errors.New("route is required")), shared.ErrValidation},
		{"not found", shared.ErrNotFound, shared.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gw, mock, _, _ := newMockGateway(t, true)
			expectBegin(mock)
			mock.ExpectRollback()

			_, err := gw.Execute(context.Background(), salesperson, shared.ModuleParties, authz.ActionUpdate,
				func(ctx context.Context, tx pgx.Tx) (mutation.Change, error) {
					return mutation.Change{}, tc.err
				})
			assert.ErrorIs(t, err, tc.want)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestExecuteCommitFailureRollsBack(t *testing.T) {
	gw, mock, _, observer := newMockGateway(t, true)

	expectBegin(mock)
	mock.ExpectQuery("INSERT INTO parties").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(9)))
	mock.ExpectQuery("INSERT INTO audit_events").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(77), time.Now()))
	mock.ExpectCommit().WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := gw.Execute(context.Background(), salesperson, shared.ModuleParties, authz.ActionCreate, insertPartyWrite)
	assert.ErrorIs(t, err, shared.ErrOperationFailed)
	assert.Equal(t, []mutation.Outcome{mutation.OutcomeRolledBack}, observer.outcomes)
}

func TestExecuteRejectsNonMutations(t *testing.T) {
	gw, mock, decider, _ := newMockGateway(t, true)

	_, err := gw.Execute(context.Background(), salesperson, shared.ModuleParties, authz.ActionRead, insertPartyWrite)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = gw.Execute(context.Background(), salesperson, shared.ModuleParties, authz.ActionCreate, nil)
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.Zero(t, decider.calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteSystemActorWithoutPrincipalIdentity(t *testing.T) {
	gw, mock, _, _ := newMockGateway(t, true)

	expectBegin(mock)
	mock.ExpectQuery("INSERT INTO parties").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(4)))
	mock.ExpectQuery("INSERT INTO audit_events").
		WithArgs(audit.SystemActorID, "parties", int64(4), audit.ActionCreate, nil, pgxmock.AnyArg(), audit.InternalSource).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), time.Now()))
	mock.ExpectCommit()

	_, err := gw.Execute(context.Background(), shared.Principal{Role: "Administrador"}, shared.ModuleParties, authz.ActionCreate, insertPartyWrite)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthorize(t *testing.T) {
	gw, _, _, _ := newMockGateway(t, false)
	assert.ErrorIs(t, gw.Authorize(context.Background(), salesperson, shared.ModuleParties, authz.ActionRead), shared.ErrForbidden)

	gw, _, _, _ = newMockGateway(t, true)
	assert.NoError(t, gw.Authorize(context.Background(), salesperson, shared.ModuleParties, authz.ActionRead))
}
