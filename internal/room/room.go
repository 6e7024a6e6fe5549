// Package room composes the roster and the message log into the four
// operations a client performs against the shared room: login, send, poll
// and logout. It holds no I/O; transports resolve identities and parse
// cursors before calling in.
package room

import (
	"errors"
	"strings"

	"github.com/whisper/roomchat/internal/chat"
	"github.com/whisper/roomchat/internal/roster"
)

// Errors returned to callers. Their text is safe to show to users.
var (
	ErrEmptyName    = errors.New("username cannot be empty")
	ErrNameTaken    = errors.New("username already taken, please choose another")
	ErrEmptyContent = errors.New("message content cannot be empty")
	ErrNotLoggedIn  = errors.New("please log in first")
)

// Ack is returned by successful Login and Send calls.
type Ack struct {
	Name  string         // canonical (trimmed) user name
	Event chat.ChatEvent // the event appended to the log
}

// Snapshot is the result of a poll.
type Snapshot struct {
	Events []chat.ChatEvent
	Cursor int64
	Users  []string
}

// Stats is a point-in-time view used for health and metrics.
type Stats struct {
	Online  int
	Logged  int
	Evicted uint64
}

// Coordinator owns the room state for the lifetime of the service.
type Coordinator struct {
	roster *roster.Roster
	log    *chat.MessageLog
}

// New creates a Coordinator around the given roster and log.
func New(r *roster.Roster, l *chat.MessageLog) *Coordinator {
	return &Coordinator{roster: r, log: l}
}

// NewDefault creates a Coordinator with an empty roster and a log of the
// given capacity.
func NewDefault(capacity int) *Coordinator {
	return New(roster.New(), chat.NewMessageLog(capacity))
}

// Login admits name to the room and records a join notice.
func (c *Coordinator) Login(name string) (Ack, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Ack{}, ErrEmptyName
	}
	if err := c.roster.Join(name); err != nil {
		if errors.Is(err, roster.ErrAlreadyPresent) {
			return Ack{}, ErrNameTaken
		}
		return Ack{}, err
	}

	ev := c.log.Record(chat.SystemSender, name+" joined the room", chat.KindSystem)
	return Ack{Name: name, Event: ev}, nil
}

// Send records a user message. An empty name means the caller has no
// resolved identity. The sender does not have to be in the roster.
func (c *Coordinator) Send(name, content string) (Ack, error) {
	if name == "" {
		return Ack{}, ErrNotLoggedIn
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return Ack{}, ErrEmptyContent
	}

	ev := c.log.Record(name, content, chat.KindUser)
	return Ack{Name: name, Event: ev}, nil
}

// Poll returns the events newer than cursor, the next cursor and the
// current roster. It never mutates state.
func (c *Coordinator) Poll(cursor int64) Snapshot {
	events, next := c.log.Since(cursor)
	return Snapshot{
		Events: events,
		Cursor: next,
		Users:  c.roster.Snapshot(),
	}
}

// Logout removes name from the roster. A leave notice is recorded only when
// the name was actually present; the bool reports whether that happened.
func (c *Coordinator) Logout(name string) (chat.ChatEvent, bool) {
	if name == "" || !c.roster.Leave(name) {
		return chat.ChatEvent{}, false
	}
	return c.log.Record(chat.SystemSender, name+" left the room", chat.KindSystem), true
}

// Stats reports roster size, log length and eviction count.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Online:  c.roster.Len(),
		Logged:  c.log.Len(),
		Evicted: c.log.Evicted(),
	}
}
