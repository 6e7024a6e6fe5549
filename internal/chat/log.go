package chat

import (
	"sync"
	"time"
)

// DefaultCapacity is the number of events the room log retains.
const DefaultCapacity = 1000

// MessageLog is the room's append-only event log, bounded by capacity. Once
// full, every append evicts exactly the oldest event. It is goroutine-safe and
// uses a ring buffer internally.
type MessageLog struct {
	mu      sync.RWMutex
	items   []ChatEvent
	pos     int // next write slot
	count   int
	evicted uint64
	last    int64 // newest timestamp ever appended
	now     func() int64
}

// NewMessageLog creates an empty log stamped by the wall clock.
func NewMessageLog(capacity int) *MessageLog {
	return NewMessageLogWithClock(capacity, func() int64 { return time.Now().UnixMilli() })
}

// NewMessageLogWithClock creates an empty log whose Record calls read the
// given millisecond clock. A capacity <= 0 selects DefaultCapacity.
func NewMessageLogWithClock(capacity int, now func() int64) *MessageLog {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MessageLog{
		items: make([]ChatEvent, capacity),
		now:   now,
	}
}

// Append adds ev at the tail, overwriting the oldest event when full.
func (l *MessageLog) Append(ev ChatEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appendLocked(ev)
}

// Record stamps a new event and appends it in one critical section, so log
// order and timestamp order agree under concurrent writers. Stamps are
// strictly increasing: a clock that stalls or steps back yields last+1.
func (l *MessageLog) Record(sender, content string, kind Kind) ChatEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.now()
	if ts <= l.last {
		ts = l.last + 1
	}
	ev := ChatEvent{Sender: sender, Content: content, Timestamp: ts, Kind: kind}
	l.appendLocked(ev)
	return ev
}

func (l *MessageLog) appendLocked(ev ChatEvent) {
	capacity := len(l.items)
	l.items[l.pos] = ev
	l.pos = (l.pos + 1) % capacity
	if l.count < capacity {
		l.count++
	} else {
		l.evicted++
	}
	if ev.Timestamp > l.last {
		l.last = ev.Timestamp
	}
}

// Since returns every event with Timestamp > cursor in log order (oldest
// first), and the cursor the caller should send next: the timestamp of the
// newest event in the log, never lower than the cursor passed in.
func (l *MessageLog) Since(cursor int64) ([]ChatEvent, int64) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	capacity := len(l.items)
	start := (l.pos - l.count + capacity) % capacity

	result := make([]ChatEvent, 0)
	for i := 0; i < l.count; i++ {
		ev := l.items[(start+i)%capacity]
		if ev.Timestamp > cursor {
			result = append(result, ev)
		}
	}

	next := cursor
	if l.count > 0 {
		if newest := l.items[(l.pos-1+capacity)%capacity].Timestamp; newest > next {
			next = newest
		}
	}
	return result, next
}

// Len returns the number of events currently held.
func (l *MessageLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// Evicted returns how many events have been dropped from the head.
func (l *MessageLog) Evicted() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.evicted
}
