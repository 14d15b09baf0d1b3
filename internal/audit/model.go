// Package audit records who changed what across the tracked resources.
// Entries are produced by the Recorder middleware and listed through the
// log endpoint, newest first.
package audit

import "time"

// Actions classify the mutating HTTP methods.
const (
	ActionAdd     = "Add"
	ActionEdit    = "Edit"
	ActionDelete  = "Delete"
	ActionUnknown = "Unknown"
)

// GuestUser is recorded when no authenticated actor is on the request.
const GuestUser = "Guest"

// Entry is a single audit event.
type Entry struct {
	ID        string    `json:"_id"`
	User      string    `json:"user"`
	EnName    string    `json:"en_name"`
	ArName    string    `json:"ar_name"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	Details   string    `json:"details"`
	Method    string    `json:"method"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
}
