// Package chat holds the room's event model and the bounded, ordered log
// that clients read from by polling with a cursor.
package chat

// Kind distinguishes user-authored events from synthetic notices.
type Kind string

const (
	KindUser   Kind = "user"
	KindSystem Kind = "system"
)

// SystemSender is the sender recorded on join/leave notices.
const SystemSender = "system"

// ChatEvent is a single entry in the room log. It is created once and never
// mutated; it leaves the log only through eviction.
type ChatEvent struct {
	Sender    string
	Content   string
	Timestamp int64 // unix millis, ordering and cursor key only
	Kind      Kind
}
