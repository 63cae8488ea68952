package audit

import (
	"encoding/json"
	"time"
)

// Action kinds recorded in audit_events.
const (
	ActionCreate = "Create"
	ActionUpdate = "Update"
	ActionDelete = "Delete"
)

const (
	// SystemActorID is recorded when no authenticated principal is available.
	SystemActorID int64 = 1
	// InternalSource is recorded as the source address outside a network context.
	InternalSource = "internal"
)

// Entry is the input to Trail.Record.
type Entry struct {
	Action        string
	Table         string
	RecordID      int64
	Before        any
	After         any
	ActorID       int64
	SourceAddress string
}

// Event is one persisted audit row.
type Event struct {
	ID               int64           `json:"id"`
	ActorID          int64           `json:"actor_id"`
	AffectedTable    string          `json:"affected_table"`
	AffectedRecordID int64           `json:"affected_record_id"`
	Action           string          `json:"action"`
	Before           json.RawMessage `json:"before"`
	After            json.RawMessage `json:"after"`
	SourceAddress    string          `json:"source_address"`
	CreatedAt        time.Time       `json:"created_at"`
}

// EventView is an Event joined with the actor's display name.
type EventView struct {
	Event
	ActorName string `json:"actor_name"`
}

// Filters narrows the reporting listing.
type Filters struct {
	Table    string
	RecordID int64
	ActorID  int64
	Action   string
	From     time.Time
	To       time.Time
	Page     int
	PageSize int
}

// PagingInfo menyimpan metadata pagination sederhana.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result membungkus hasil listing dengan informasi paging.
type Result struct {
	Rows   []EventView `json:"rows"`
	Paging PagingInfo  `json:"paging"`
}
