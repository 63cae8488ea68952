package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-fleet/internal/shared"
)

// ErrInvalidEvent marks an entry that violates the audit row invariants.
var ErrInvalidEvent = errors.New("audit: invalid event")

// ErrNoChange rejects an update whose before and after snapshots are identical.
var ErrNoChange = fmt.Errorf("%w: update changes nothing", shared.ErrValidation)

// Querier is satisfied by pgx.Tx; Record must run on the caller's transaction.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const insertEventSQL = `INSERT INTO audit_events
    (actor_id, affected_table, affected_record_id, action, before_state, after_state, source_address)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, created_at`

// Trail appends audit events. It is the only writer of audit_events.
type Trail struct{}

// NewTrail returns a Trail.
func NewTrail() *Trail {
	return &Trail{}
}

// Record validates entry, resolves actor and source, and inserts the row through q.
// The principal is only consulted when entry leaves ActorID or SourceAddress unset.
func (t *Trail) Record(ctx context.Context, q Querier, entry Entry, principal *shared.Principal) (Event, error) {
	if q == nil {
		return Event{}, errors.New("audit: no transaction")
	}
	before, err := encodeSnapshot(entry.Before)
	if err != nil {
		return Event{}, fmt.Errorf("audit: encode before: %w", err)
	}
	after, err := encodeSnapshot(entry.After)
	if err != nil {
		return Event{}, fmt.Errorf("audit: encode after: %w", err)
	}

	ev := Event{
		ActorID:          resolveActor(entry.ActorID, principal),
		AffectedTable:    strings.TrimSpace(entry.Table),
		AffectedRecordID: entry.RecordID,
		Action:           entry.Action,
		Before:           before,
		After:            after,
		SourceAddress:    resolveSource(entry.SourceAddress, principal),
	}
	if err := validate(ev); err != nil {
		return Event{}, err
	}

	err = q.QueryRow(ctx, insertEventSQL,
		ev.ActorID, ev.AffectedTable, ev.AffectedRecordID, ev.Action,
		nullableJSON(ev.Before), nullableJSON(ev.After), ev.SourceAddress,
	).Scan(&ev.ID, &ev.CreatedAt)
	if err != nil {
		return Event{}, fmt.Errorf("audit: insert event: %w", err)
	}
	return ev, nil
}

func validate(ev Event) error {
	if ev.AffectedTable == "" {
		return fmt.Errorf("%w: table required", ErrInvalidEvent)
	}
	if ev.AffectedRecordID <= 0 {
		return fmt.Errorf("%w: record id required", ErrInvalidEvent)
	}
	hasBefore, hasAfter := ev.Before != nil, ev.After != nil
	switch ev.Action {
	case ActionCreate:
		if hasBefore || !hasAfter {
			return fmt.Errorf("%w: create needs after only", ErrInvalidEvent)
		}
	case ActionUpdate:
		if !hasBefore || !hasAfter {
			return fmt.Errorf("%w: update needs before and after", ErrInvalidEvent)
		}
		if sameJSON(ev.Before, ev.After) {
			return ErrNoChange
		}
	case ActionDelete:
		if !hasBefore || hasAfter {
			return fmt.Errorf("%w: delete needs before only", ErrInvalidEvent)
		}
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidEvent, ev.Action)
	}
	return nil
}

func resolveActor(actorID int64, principal *shared.Principal) int64 {
	if actorID > 0 {
		return actorID
	}
	if principal != nil && principal.ID > 0 {
		return principal.ID
	}
	return SystemActorID
}

func resolveSource(source string, principal *shared.Principal) string {
	if s := strings.TrimSpace(source); s != "" {
		return s
	}
	if principal != nil {
		if s := strings.TrimSpace(principal.SourceAddress); s != "" {
			return s
		}
	}
	return InternalSource
}

func sameJSON(a, b json.RawMessage) bool {
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}

// encodeSnapshot returns nil for an absent snapshot, including a JSON null.
func encodeSnapshot(v any) (json.RawMessage, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(s) == 0 || string(s) == "null" {
			return nil, nil
		}
		if !json.Valid(s) {
			return nil, errors.New("invalid json snapshot")
		}
		return s, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return nil, nil
	}
	return data, nil
}

func nullableJSON(raw json.RawMessage) any {
	if raw == nil {
		return nil
	}
	return []byte(raw)
}
