package audit_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-fleet/internal/audit"
)

type stubRepo struct {
	rows        []audit.EventView
	lastLimit   int
	lastOffset  int
	lastFilters audit.Filters
	history     map[string][]audit.EventView
}

func (s *stubRepo) List(ctx context.Context, filters audit.Filters, limit, offset int) ([]audit.EventView, error) {
	s.lastFilters, s.lastLimit, s.lastOffset = filters, limit, offset
	if offset >= len(s.rows) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.rows) {
		end = len(s.rows)
	}
	return s.rows[offset:end], nil
}

func (s *stubRepo) History(ctx context.Context, table string, recordID int64) ([]audit.EventView, error) {
	return s.history[table], nil
}

func makeRows(n int) []audit.EventView {
	rows := make([]audit.EventView, n)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := range rows {
		rows[i] = audit.EventView{Event: audit.Event{
			ID:               int64(n - i),
			ActorID:          2,
			AffectedTable:    "parties",
			AffectedRecordID: 10,
			Action:           audit.ActionUpdate,
			CreatedAt:        base.Add(-time.Duration(i) * time.Minute),
		}, ActorName: "Gerente"}
	}
	return rows
}

func TestListPagination(t *testing.T) {
	repo := &stubRepo{rows: makeRows(45)}
	svc := audit.NewService(repo)

	first, err := svc.List(context.Background(), audit.Filters{})
	require.NoError(t, err)
	assert.Len(t, first.Rows, 20)
	assert.True(t, first.Paging.HasNext)
	assert.Equal(t, 2, first.Paging.NextPage)
	assert.Zero(t, first.Paging.PrevPage)
	assert.Equal(t, 21, repo.lastLimit)

	last, err := svc.List(context.Background(), audit.Filters{Page: 3})
	require.NoError(t, err)
	assert.Len(t, last.Rows, 5)
	assert.False(t, last.Paging.HasNext)
	assert.Equal(t, 2, last.Paging.PrevPage)
	assert.Equal(t, 40, repo.lastOffset)
}

func TestListClampsPageSize(t *testing.T) {
	repo := &stubRepo{rows: makeRows(3)}
	svc := audit.NewService(repo)

	result, err := svc.List(context.Background(), audit.Filters{PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, 50, result.Paging.PageSize)
	assert.Equal(t, 51, repo.lastLimit)
}

func TestListEmptyIsNotNil(t *testing.T) {
	svc := audit.NewService(&stubRepo{})
	result, err := svc.List(context.Background(), audit.Filters{})
	require.NoError(t, err)

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"rows":[]`)
}

func TestHistory(t *testing.T) {
	repo := &stubRepo{history: map[string][]audit.EventView{"parties": makeRows(2)}}
	svc := audit.NewService(repo)

	rows, err := svc.History(context.Background(), " parties ", 10)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = svc.History(context.Background(), "parties", 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestServiceWithoutRepository(t *testing.T) {
	svc := audit.NewService(nil)
	_, err := svc.List(context.Background(), audit.Filters{})
	assert.Error(t, err)
}

func TestWriteCSV(t *testing.T) {
	rows := makeRows(1)
	rows[0].Before = json.RawMessage(`{"name":"ACME"}`)
	rows[0].After = json.RawMessage(`{"name":"ACME, Ltda"}`)

	var buf bytes.Buffer
	require.NoError(t, audit.WriteCSV(&buf, rows))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "actor", records[0][3])
	assert.Equal(t, "Gerente", records[1][3])
	assert.Equal(t, `{"name":"ACME, Ltda"}`, records[1][9])
}
