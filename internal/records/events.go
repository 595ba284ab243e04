package records

// Action is the kind of change a record event describes
type Action string

const (
	ActionCreated Action = "Created"
	ActionUpdated Action = "Updated"
	ActionDeleted Action = "Deleted"
)

// Record is a projected row: declared fields plus id/created_at/updated_at
type Record map[string]interface{}

// Event is emitted after a write statement commits. OldRecord carries the
// pre-image for updates and deletes.
type Event struct {
	Collection string  `json:"collection_name"`
	Action     Action  `json:"action"`
	RecordID   int64   `json:"record_id"`
	Record     Record  `json:"record,omitempty"`
	OldRecord  Record  `json:"old_record,omitempty"`
	UserID     *int64  `json:"user_id,omitempty"`
}

// EventPublisher receives record events for realtime fan-out. Publish must
// not block the write path.
type EventPublisher interface {
	Publish(event Event)
}

// NopPublisher discards events; used when realtime is disabled and in tests.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}
