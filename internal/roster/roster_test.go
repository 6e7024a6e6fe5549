package roster

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func TestJoinAndSnapshot(t *testing.T) {
	r := New()

	for _, name := range []string{"alice", "bob", "carol"} {
		if err := r.Join(name); err != nil {
			t.Fatalf("Join(%q) error: %v", name, err)
		}
	}

	got := r.Snapshot()
	want := []string{"alice", "bob", "carol"}
	if len(got) != len(want) {
		t.Fatalf("expected %d names, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestJoinDuplicate(t *testing.T) {
	r := New()

	if err := r.Join("alice"); err != nil {
		t.Fatalf("first Join error: %v", err)
	}
	if err := r.Join("alice"); !errors.Is(err, ErrAlreadyPresent) {
		t.Fatalf("expected ErrAlreadyPresent, got %v", err)
	}
	// Membership is case-sensitive.
	if err := r.Join("Alice"); err != nil {
		t.Fatalf("Join(\"Alice\") error: %v", err)
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 members, got %d", r.Len())
	}
}

func TestLeave(t *testing.T) {
	r := New()
	_ = r.Join("alice")
	_ = r.Join("bob")
	_ = r.Join("carol")

	if !r.Leave("bob") {
		t.Fatal("Leave(bob) reported absent")
	}
	if r.Leave("bob") {
		t.Fatal("second Leave(bob) reported present")
	}
	if r.Leave("nobody") {
		t.Fatal("Leave(nobody) reported present")
	}

	got := r.Snapshot()
	if len(got) != 2 || got[0] != "alice" || got[1] != "carol" {
		t.Fatalf("unexpected snapshot %v", got)
	}
	if r.Contains("bob") {
		t.Error("bob still present")
	}

	// The slot can be reclaimed after leaving.
	if err := r.Join("bob"); err != nil {
		t.Fatalf("rejoin error: %v", err)
	}
	if !r.Contains("carol") || !r.Contains("bob") {
		t.Error("index lost track of members after rejoin")
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	r := New()
	_ = r.Join("alice")

	snap := r.Snapshot()
	_ = r.Join("bob")
	snap[0] = "mallory"

	if len(snap) != 1 {
		t.Fatalf("snapshot grew to %d", len(snap))
	}
	if got := r.Snapshot(); got[0] != "alice" {
		t.Fatalf("roster mutated through snapshot: %v", got)
	}
}

func TestSnapshotEmptyNotNil(t *testing.T) {
	if New().Snapshot() == nil {
		t.Fatal("expected non-nil empty snapshot")
	}
}

func TestConcurrentJoinSameName(t *testing.T) {
	r := New()
	goroutines := 64

	var (
		wg        sync.WaitGroup
		successes int32
	)
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			if err := r.Join("alice"); err == nil {
				atomic.AddInt32(&successes, 1)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly 1 successful join, got %d", successes)
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 member, got %d", r.Len())
	}
}

func TestConcurrentJoinLeave(t *testing.T) {
	r := New()
	goroutines := 50

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(id int) {
			defer wg.Done()
			name := fmt.Sprintf("user-%d", id)
			for i := 0; i < 20; i++ {
				_ = r.Join(name)
				_ = r.Snapshot()
				r.Leave(name)
			}
			_ = r.Join(name)
		}(g)
	}
	wg.Wait()

	if r.Len() != goroutines {
		t.Fatalf("expected %d members, got %d", goroutines, r.Len())
	}
	seen := make(map[string]bool)
	for _, name := range r.Snapshot() {
		if seen[name] {
			t.Fatalf("duplicate member %q", name)
		}
		seen[name] = true
	}
}
