package chat

import (
	"fmt"
	"sync"
	"testing"
)

func TestAppendAndSince(t *testing.T) {
	l := NewMessageLog(DefaultCapacity)

	l.Append(ChatEvent{Sender: "a", Content: "hello", Timestamp: 1, Kind: KindUser})
	l.Append(ChatEvent{Sender: "b", Content: "hi", Timestamp: 2, Kind: KindUser})
	l.Append(ChatEvent{Sender: "a", Content: "how are you?", Timestamp: 3, Kind: KindUser})

	events, cursor := l.Since(0)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Content != "hello" {
		t.Errorf("expected first event 'hello', got %q", events[0].Content)
	}
	if events[1].Content != "hi" {
		t.Errorf("expected second event 'hi', got %q", events[1].Content)
	}
	if events[2].Content != "how are you?" {
		t.Errorf("expected third event 'how are you?', got %q", events[2].Content)
	}
	if cursor != 3 {
		t.Errorf("expected cursor 3, got %d", cursor)
	}
}

func TestSinceFiltersByCursor(t *testing.T) {
	l := NewMessageLog(DefaultCapacity)
	for i := 1; i <= 5; i++ {
		l.Append(ChatEvent{Sender: "a", Content: fmt.Sprintf("msg-%d", i), Timestamp: int64(i * 10)})
	}

	tests := []struct {
		name       string
		cursor     int64
		wantFirst  string
		wantCount  int
		wantCursor int64
	}{
		{"zero returns all", 0, "msg-1", 5, 50},
		{"between events", 25, "msg-3", 3, 50},
		{"exact timestamp is exclusive", 30, "msg-4", 2, 50},
		{"at newest", 50, "", 0, 50},
		{"beyond newest keeps cursor", 90, "", 0, 90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, cursor := l.Since(tt.cursor)
			if len(events) != tt.wantCount {
				t.Fatalf("Since(%d) returned %d events, want %d", tt.cursor, len(events), tt.wantCount)
			}
			if tt.wantCount > 0 && events[0].Content != tt.wantFirst {
				t.Errorf("Since(%d) first = %q, want %q", tt.cursor, events[0].Content, tt.wantFirst)
			}
			if cursor != tt.wantCursor {
				t.Errorf("Since(%d) cursor = %d, want %d", tt.cursor, cursor, tt.wantCursor)
			}
		})
	}
}

func TestSinceEmptyLog(t *testing.T) {
	l := NewMessageLog(DefaultCapacity)

	events, cursor := l.Since(42)
	if events == nil {
		t.Fatal("expected non-nil empty slice, got nil")
	}
	if len(events) != 0 {
		t.Fatalf("expected 0 events, got %d", len(events))
	}
	if cursor != 42 {
		t.Fatalf("expected cursor unchanged at 42, got %d", cursor)
	}
}

func TestEvictionWraparound(t *testing.T) {
	l := NewMessageLog(5)

	// Append 7 events; the log holds only 5.
	for i := 1; i <= 7; i++ {
		l.Append(ChatEvent{Sender: "sender", Content: fmt.Sprintf("msg-%d", i), Timestamp: int64(i)})
	}

	events, _ := l.Since(0)
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}
	for i, ev := range events {
		expected := fmt.Sprintf("msg-%d", i+3)
		if ev.Content != expected {
			t.Errorf("index %d: expected %q, got %q", i, expected, ev.Content)
		}
	}
	if l.Evicted() != 2 {
		t.Errorf("expected 2 evictions, got %d", l.Evicted())
	}
}

func TestBoundedAtDefaultCapacity(t *testing.T) {
	l := NewMessageLog(0)
	total := DefaultCapacity + 234

	for i := 1; i <= total; i++ {
		l.Append(ChatEvent{Content: fmt.Sprintf("msg-%d", i), Timestamp: int64(i)})
	}

	if l.Len() != DefaultCapacity {
		t.Fatalf("expected length %d, got %d", DefaultCapacity, l.Len())
	}
	events, cursor := l.Since(0)
	if len(events) != DefaultCapacity {
		t.Fatalf("expected %d events, got %d", DefaultCapacity, len(events))
	}
	for i, ev := range events {
		want := fmt.Sprintf("msg-%d", total-DefaultCapacity+i+1)
		if ev.Content != want {
			t.Fatalf("index %d: expected %q, got %q", i, want, ev.Content)
		}
	}
	if cursor != int64(total) {
		t.Errorf("expected cursor %d, got %d", total, cursor)
	}
}

func TestEqualTimestampsKeepAppendOrder(t *testing.T) {
	l := NewMessageLog(DefaultCapacity)

	l.Append(ChatEvent{Content: "before", Timestamp: 5})
	for i := 0; i < 4; i++ {
		l.Append(ChatEvent{Content: fmt.Sprintf("tie-%d", i), Timestamp: 7})
	}

	events, cursor := l.Since(5)
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	for i, ev := range events {
		if want := fmt.Sprintf("tie-%d", i); ev.Content != want {
			t.Errorf("index %d: expected %q, got %q", i, want, ev.Content)
		}
	}
	if cursor != 7 {
		t.Errorf("expected cursor 7, got %d", cursor)
	}
}

func TestRecordStampsStrictlyIncreasing(t *testing.T) {
	// A clock stuck at 100 must still yield distinct, ordered stamps.
	l := NewMessageLogWithClock(DefaultCapacity, func() int64 { return 100 })

	a := l.Record("alice", "one", KindUser)
	b := l.Record("alice", "two", KindUser)
	c := l.Record(SystemSender, "alice left the room", KindSystem)

	if a.Timestamp != 100 || b.Timestamp != 101 || c.Timestamp != 102 {
		t.Fatalf("unexpected stamps %d, %d, %d", a.Timestamp, b.Timestamp, c.Timestamp)
	}
	if c.Kind != KindSystem || c.Sender != SystemSender {
		t.Errorf("unexpected system event %+v", c)
	}

	events, _ := l.Since(a.Timestamp)
	if len(events) != 2 || events[0] != b || events[1] != c {
		t.Errorf("Since returned %+v", events)
	}
}

func TestRecordClockStepsBack(t *testing.T) {
	clock := int64(500)
	l := NewMessageLogWithClock(DefaultCapacity, func() int64 { return clock })

	first := l.Record("a", "x", KindUser)
	clock = 200
	second := l.Record("a", "y", KindUser)

	if second.Timestamp <= first.Timestamp {
		t.Fatalf("expected %d > %d", second.Timestamp, first.Timestamp)
	}
}

func TestSinceReturnsCopy(t *testing.T) {
	l := NewMessageLog(DefaultCapacity)
	l.Append(ChatEvent{Content: "original", Timestamp: 1})

	events, _ := l.Since(0)
	events[0].Content = "mutated"

	again, _ := l.Since(0)
	if again[0].Content != "original" {
		t.Fatalf("log was mutated through returned slice: %q", again[0].Content)
	}
}

func TestConcurrentAccess(t *testing.T) {
	l := NewMessageLog(50)
	goroutines := 100
	eventsPerGoroutine := 20

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for g := 0; g < goroutines; g++ {
		go func(id int) {
			defer wg.Done()
			for m := 0; m < eventsPerGoroutine; m++ {
				l.Record(fmt.Sprintf("sender-%d", id), fmt.Sprintf("g%d-m%d", id, m), KindUser)
				// Interleave reads to stress the RWMutex.
				_, _ = l.Since(0)
			}
		}(g)
	}

	wg.Wait()

	events, cursor := l.Since(0)
	if len(events) != 50 {
		t.Fatalf("expected 50 events after concurrent writes, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp <= events[i-1].Timestamp {
			t.Fatalf("stamps out of order at %d: %d then %d", i, events[i-1].Timestamp, events[i].Timestamp)
		}
	}
	if cursor != events[len(events)-1].Timestamp {
		t.Errorf("cursor %d does not match newest event %d", cursor, events[len(events)-1].Timestamp)
	}
	if got := l.Evicted(); got != uint64(goroutines*eventsPerGoroutine-50) {
		t.Errorf("expected %d evictions, got %d", goroutines*eventsPerGoroutine-50, got)
	}
}
