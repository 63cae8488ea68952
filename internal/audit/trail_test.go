package audit_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-fleet/internal/audit"
	"github.com/odyssey-erp/odyssey-fleet/internal/shared"
)

type fakeRow struct {
	id  int64
	at  time.Time
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*int64) = r.id
	*dest[1].(*time.Time) = r.at
	return nil
}

type captureQuerier struct {
	calls int
	args  []any
	row   fakeRow
}

func (q *captureQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	q.calls++
	q.args = args
	return q.row
}

type snapshot struct {
	Name  string `json:"name"`
	Total int    `json:"total"`
}

func TestRecordCreateUsesPrincipal(t *testing.T) {
	q := &captureQuerier{row: fakeRow{id: 42, at: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}}
	principal := &shared.Principal{ID: 9, Role: "Salesperson", SourceAddress: "10.0.0.5"}

	ev, err := audit.NewTrail().Record(context.Background(), q, audit.Entry{
		Action:   audit.ActionCreate,
		Table:    "delivery_forecasts",
		RecordID: 17,
		After:    snapshot{Name: "Rota Norte", Total: 3},
	}, principal)
	require.NoError(t, err)

	assert.Equal(t, int64(42), ev.ID)
	assert.Equal(t, int64(9), ev.ActorID)
	assert.Equal(t, "10.0.0.5", ev.SourceAddress)
	assert.Nil(t, ev.Before)
	assert.JSONEq(t, `{"name":"Rota Norte","total":3}`, string(ev.After))

	require.Len(t, q.args, 7)
	assert.Equal(t, int64(9), q.args[0])
	assert.Equal(t, "delivery_forecasts", q.args[1])
	assert.Equal(t, int64(17), q.args[2])
	assert.Equal(t, audit.ActionCreate, q.args[3])
	assert.Nil(t, q.args[4])
	assert.NotNil(t, q.args[5])
	assert.Equal(t, "10.0.0.5", q.args[6])
}

func TestRecordFallsBackToSystemActor(t *testing.T) {
	q := &captureQuerier{row: fakeRow{id: 1}}

	ev, err := audit.NewTrail().Record(context.Background(), q, audit.Entry{
		Action:   audit.ActionDelete,
		Table:    "parties",
		RecordID: 3,
		Before:   map[string]any{"name": "ACME"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, audit.SystemActorID, ev.ActorID)
	assert.Equal(t, audit.InternalSource, ev.SourceAddress)
}

func TestRecordExplicitEntryWinsOverPrincipal(t *testing.T) {
	q := &captureQuerier{row: fakeRow{id: 1}}
	principal := &shared.Principal{ID: 9, Role: "Manager", SourceAddress: "10.0.0.5"}

	ev, err := audit.NewTrail().Record(context.Background(), q, audit.Entry{
		Action:        audit.ActionUpdate,
		Table:         "parties",
		RecordID:      3,
		Before:        map[string]any{"name": "ACME"},
		After:         map[string]any{"name": "ACME Ltda"},
		ActorID:       5,
		SourceAddress: "172.16.0.1",
	}, principal)
	require.NoError(t, err)
	assert.Equal(t, int64(5), ev.ActorID)
	assert.Equal(t, "172.16.0.1", ev.SourceAddress)
}

func TestRecordBlankPrincipalSource(t *testing.T) {
	q := &captureQuerier{row: fakeRow{id: 1}}
	ev, err := audit.NewTrail().Record(context.Background(), q, audit.Entry{
		Action: audit.ActionCreate, Table: "parties", RecordID: 1, After: map[string]any{"id": 1},
	}, &shared.Principal{ID: 4, Role: "Manager", SourceAddress: "  "})
	require.NoError(t, err)
	assert.Equal(t, int64(4), ev.ActorID)
	assert.Equal(t, audit.InternalSource, ev.SourceAddress)
}

func TestRecordEnforcesSnapshotShape(t *testing.T) {
	state := map[string]any{"id": 1}
	cases := map[string]audit.Entry{
		"create with before":         {Action: audit.ActionCreate, Before: state, After: state},
		"create without after":       {Action: audit.ActionCreate},
		"update missing after":       {Action: audit.ActionUpdate, Before: state},
		"update missing before":      {Action: audit.ActionUpdate, After: state},
		"delete with after":          {Action: audit.ActionDelete, Before: state, After: state},
		"delete without before":      {Action: audit.ActionDelete},
		"unknown action":             {Action: "Approve", After: state},
		"json null counts as absent": {Action: audit.ActionCreate, After: json.RawMessage("null")},
	}
	for name, entry := range cases {
		t.Run(name, func(t *testing.T) {
			entry.Table = "parties"
			entry.RecordID = 1
			q := &captureQuerier{}
			_, err := audit.NewTrail().Record(context.Background(), q, entry, nil)
			assert.ErrorIs(t, err, audit.ErrInvalidEvent)
			assert.Zero(t, q.calls)
		})
	}
}

func TestRecordRejectsUnchangedUpdate(t *testing.T) {
	cases := map[string]audit.Entry{
		"same struct": {Before: snapshot{Name: "ACME", Total: 2}, After: snapshot{Name: "ACME", Total: 2}},
		"same json":   {Before: json.RawMessage(`{"name": "ACME"}`), After: json.RawMessage(`{"name":"ACME"}`)},
	}
	for name, entry := range cases {
		t.Run(name, func(t *testing.T) {
			entry.Action = audit.ActionUpdate
			entry.Table = "parties"
			entry.RecordID = 3
			q := &captureQuerier{}
			_, err := audit.NewTrail().Record(context.Background(), q, entry, nil)
			assert.ErrorIs(t, err, audit.ErrNoChange)
			assert.ErrorIs(t, err, shared.ErrValidation)
			assert.Zero(t, q.calls)
		})
	}
}

func TestRecordRequiresTarget(t *testing.T) {
	q := &captureQuerier{}
	_, err := audit.NewTrail().Record(context.Background(), q, audit.Entry{Action: audit.ActionCreate, After: map[string]any{}, RecordID: 1}, nil)
	assert.ErrorIs(t, err, audit.ErrInvalidEvent)

	_, err = audit.NewTrail().Record(context.Background(), q, audit.Entry{Action: audit.ActionCreate, After: map[string]any{}, Table: "parties"}, nil)
	assert.ErrorIs(t, err, audit.ErrInvalidEvent)
	assert.Zero(t, q.calls)
}

func TestRecordSurfacesInsertFailure(t *testing.T) {
	q := &captureQuerier{row: fakeRow{err: errors.New("insert failed")}}
	_, err := audit.NewTrail().Record(context.Background(), q, audit.Entry{
		Action: audit.ActionCreate, Table: "parties", RecordID: 1, After: map[string]any{"id": 1},
	}, nil)
	require.Error(t, err)
	assert.Equal(t, 1, q.calls)
}

func TestRecordRejectsUnencodableSnapshot(t *testing.T) {
	q := &captureQuerier{}
	_, err := audit.NewTrail().Record(context.Background(), q, audit.Entry{
		Action: audit.ActionCreate, Table: "parties", RecordID: 1, After: map[string]any{"ch": make(chan int)},
	}, nil)
	require.Error(t, err)
	assert.Zero(t, q.calls)
}
