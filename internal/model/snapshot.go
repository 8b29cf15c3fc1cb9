package model

import "time"

// Action names the operation that produced a snapshot.
type Action string

const (
	ActionFetch  Action = "fetch"
	ActionUpdate Action = "update"
	ActionRemove Action = "remove"
	ActionReset  Action = "reset"
)

// Snapshot is a server status recorded locally after a successful call.
type Snapshot struct {
	// ID is the unique identifier for this snapshot.
	ID string `json:"id" db:"id"`

	// Username is the account the status belongs to.
	Username string `json:"username" db:"username"`

	// Action is the operation whose response was recorded.
	Action Action `json:"action" db:"action"`

	// Status is the server response.
	Status Status `json:"status" db:"-"`

	// RecordedAt is when the client received the response.
	RecordedAt time.Time `json:"recorded_at" db:"recorded_at"`
}
