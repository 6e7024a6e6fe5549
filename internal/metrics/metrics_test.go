package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/whisper/roomchat/internal/room"
)

type fixedStats room.Stats

func (f fixedStats) Stats() room.Stats { return room.Stats(f) }

func TestRegisterRoom(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := RegisterRoom(reg, fixedStats{Online: 3, Logged: 1000, Evicted: 42}); err != nil {
		t.Fatalf("RegisterRoom: %v", err)
	}

	expected := `
# HELP roomchat_log_evictions_total Events evicted from the head of the room log
# TYPE roomchat_log_evictions_total counter
roomchat_log_evictions_total 42
# HELP roomchat_log_events Events currently retained in the room log
# TYPE roomchat_log_events gauge
roomchat_log_events 1000
# HELP roomchat_online_users Users currently in the roster
# TYPE roomchat_online_users gauge
roomchat_online_users 3
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected)); err != nil {
		t.Fatal(err)
	}

	if err := RegisterRoom(reg, fixedStats{}); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestRegisterRoomReadsLiveStats(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := room.NewDefault(0)
	if err := RegisterRoom(reg, c); err != nil {
		t.Fatalf("RegisterRoom: %v", err)
	}

	if _, err := c.Login("alice"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := c.Send("alice", "hi"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if got := testutil.CollectAndCount(reg); got != 3 {
		t.Fatalf("expected 3 series, got %d", got)
	}
	expected := `
# HELP roomchat_online_users Users currently in the roster
# TYPE roomchat_online_users gauge
roomchat_online_users 1
# HELP roomchat_log_events Events currently retained in the room log
# TYPE roomchat_log_events gauge
roomchat_log_events 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "roomchat_online_users", "roomchat_log_events"); err != nil {
		t.Fatal(err)
	}
}

func TestRequestsTotal(t *testing.T) {
	before := testutil.ToFloat64(RequestsTotal.WithLabelValues("send", OutcomeRejected))
	RequestsTotal.WithLabelValues("send", OutcomeRejected).Inc()
	if got := testutil.ToFloat64(RequestsTotal.WithLabelValues("send", OutcomeRejected)); got != before+1 {
		t.Fatalf("expected %v, got %v", before+1, got)
	}
}
