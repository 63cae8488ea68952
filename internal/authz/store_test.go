package authz

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-fleet/internal/shared"
)

func newMockStore(t *testing.T, reserved ...string) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	catalog, err := DefaultCatalog()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewStore(mock, catalog, logger, reserved...), mock
}

func TestStoreLookup(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(lookupSQL).WithArgs("Salesperson", "Previsoes", "Create").
		WillReturnRows(pgxmock.NewRows([]string{"allowed"}).AddRow(true))
	allowed, found, err := store.Lookup(ctx, "Salesperson", "Previsoes", "Create")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, allowed)

	mock.ExpectQuery(lookupSQL).WithArgs("Salesperson", "Previsoes", "Delete").
		WillReturnError(pgx.ErrNoRows)
	allowed, found, err = store.Lookup(ctx, "Salesperson", "Previsoes", "Delete")
	require.NoError(t, err)
	assert.False(t, found)
	assert.False(t, allowed)

	mock.ExpectQuery(lookupSQL).WithArgs("Manager", "Parties", "Read").
		WillReturnError(errors.New("connection reset by peer"))
	_, _, err = store.Lookup(ctx, "Manager", "Parties", "Read")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, shared.ErrStoreUnavailable)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreLookupUnavailable(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(lookupSQL).WithArgs("Manager", "Parties", "Read").
		WillReturnError(&pgconn.PgError{Code: "57014", Message: "canceling statement due to statement timeout"})

	_, found, err := store.Lookup(context.Background(), "Manager", "Parties", "Read")
	assert.ErrorIs(t, err, shared.ErrStoreUnavailable)
	assert.False(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreUpsertIsIdempotent(t *testing.T) {
	store, mock := newMockStore(t)
	rule := Rule{Role: "Salesperson", Module: "Previsoes", Action: "Create", Allowed: true}

	// The same statement runs twice; the second call changes nothing.
	mock.ExpectExec(upsertSQL).WithArgs("Salesperson", "Previsoes", "Create", true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(upsertSQL).WithArgs("Salesperson", "Previsoes", "Create", true).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	require.NoError(t, store.UpsertOne(context.Background(), rule))
	require.NoError(t, store.UpsertOne(context.Background(), rule))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreUpsertTrimsInput(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(upsertSQL).WithArgs("Manager", "Parties", "Delete", false).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.UpsertOne(context.Background(), Rule{Role: " Manager ", Module: "Parties ", Action: " Delete"}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreUpsertRejectsInvalidRules(t *testing.T) {
	store, mock := newMockStore(t, "Administrador")
	ctx := context.Background()

	cases := map[string]Rule{
		"unknown action":  {Role: "Manager", Module: "Parties", Action: "Approve"},
		"unknown module":  {Role: "Manager", Module: "Previsao", Action: "Read"},
		"read-only":       {Role: "Manager", Module: "Audit", Action: "Delete"},
		"blank role":      {Role: " ", Module: "Parties", Action: "Read"},
		"super-role rule": {Role: "Administrador", Module: "Parties", Action: "Read", Allowed: true},
	}
	for name, rule := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, store.UpsertOne(ctx, rule), shared.ErrValidation)
		})
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreUpsertBatchPartialFailure(t *testing.T) {
	store, mock := newMockStore(t)
	rules := []Rule{
		{Role: "Salesperson", Module: "Previsoes", Action: "Create", Allowed: true},
		{Role: "Salesperson", Module: "Previsoes", Action: "Read", Allowed: true},
		{Role: "Salesperson", Module: "Previsoes", Action: "Fly", Allowed: true},
		{Role: "Salesperson", Module: "Parties", Action: "Read", Allowed: true},
		{Role: "Salesperson", Module: "Parties", Action: "Delete", Allowed: false},
	}
	for i, r := range rules {
		if i == 2 {
			continue
		}
		mock.ExpectExec(upsertSQL).WithArgs(r.Role, r.Module, r.Action, r.Allowed).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	result := store.UpsertBatch(context.Background(), rules)
	assert.Equal(t, 4, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, 2, result.Failures[0].Index)
	assert.Contains(t, result.Failures[0].Reason, "action")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreUpsertBatchHidesStorageErrors(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(upsertSQL).WithArgs("Manager", "Parties", "Read", true).
		WillReturnError(errors.New(`pq: relation "permission_rules" does not exist`))

	result := store.UpsertBatch(context.Background(), []Rule{{Role: "Manager", Module: "Parties", Action: "Read", Allowed: true}})
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "could not save rule", result.Failures[0].Reason)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreReadFullMatrix(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(matrixSQL).WillReturnRows(pgxmock.NewRows([]string{"role", "module", "action"}).
		AddRow("Manager", "Parties", "Read").
		AddRow("Manager", "Parties", "Update").
		AddRow("Salesperson", "Previsoes", "Create"))

	matrix, err := store.ReadFullMatrix(context.Background())
	require.NoError(t, err)
	assert.True(t, matrix.Allows("Manager", "Parties", "Update"))
	assert.True(t, matrix.Allows("Salesperson", "Previsoes", "Create"))
	assert.False(t, matrix.Allows("Salesperson", "Previsoes", "Delete"))
	assert.Len(t, matrix, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreReadFullMatrixError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(matrixSQL).WillReturnError(errors.New("boom"))

	_, err := store.ReadFullMatrix(context.Background())
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreReadFullMatrixUnavailable(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(matrixSQL).WillReturnError(context.DeadlineExceeded)

	_, err := store.ReadFullMatrix(context.Background())
	assert.ErrorIs(t, err, shared.ErrStoreUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

// slowQuerier holds every matrix query until release is closed or the query context ends.
type slowQuerier struct {
	Querier
	once    sync.Once
	started chan struct{}
	release chan struct{}
	mu      sync.Mutex
	calls   int
}

func (q *slowQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.mu.Lock()
	q.calls++
	q.mu.Unlock()
	q.once.Do(func() { close(q.started) })
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.release:
	}
	return pgxmock.NewRows([]string{"role", "module", "action"}).
		AddRow("Manager", "Parties", "Read").Kind(), nil
}

func TestStoreReadFullMatrixSurvivesFirstCallerCancel(t *testing.T) {
	q := &slowQuerier{started: make(chan struct{}), release: make(chan struct{})}
	catalog, err := DefaultCatalog()
	require.NoError(t, err)
	store := NewStore(q, catalog, slog.New(slog.NewTextHandler(io.Discard, nil)))

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := store.ReadFullMatrix(firstCtx)
		firstErr <- err
	}()
	<-q.started

	secondCtx, cancelSecond := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelSecond()
	type outcome struct {
		matrix Matrix
		err    error
	}
	second := make(chan outcome, 1)
	go func() {
		m, err := store.ReadFullMatrix(secondCtx)
		second <- outcome{m, err}
	}()

	// Give the second caller time to join the in-flight read.
	time.Sleep(50 * time.Millisecond)
	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(q.release)
	got := <-second
	require.NoError(t, got.err)
	assert.True(t, got.matrix.Allows("Manager", "Parties", "Read"))
}

func TestNilStoreIsUnavailable(t *testing.T) {
	var store *Store
	_, _, err := store.Lookup(context.Background(), "Manager", "Parties", "Read")
	assert.ErrorIs(t, err, shared.ErrStoreUnavailable)
}
