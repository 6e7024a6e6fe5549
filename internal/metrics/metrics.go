// Package metrics provides Prometheus instrumentation for the chat room:
// request outcomes and latency per operation, appended events per kind, and
// live views of the roster and log registered with RegisterRoom.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/whisper/roomchat/internal/room"
)

const namespace = "roomchat"

// Request outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeLimited  = "rate_limited"
	OutcomeError    = "error"
)

var (
	// RequestsTotal counts chat requests by op ("login", "send", "poll",
	// "logout") and outcome.
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Chat requests handled, by operation and outcome",
	}, []string{"op", "outcome"})

	// EventsTotal counts events appended to the room log, by kind.
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Events appended to the room log",
	}, []string{"type"})

	// RequestLatency records handler latency in seconds, by op.
	RequestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "request_latency_seconds",
		Help:      "Chat request latency in seconds",
		Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"op"})

	// ModerationFlagged counts moderation verdicts received for user events.
	ModerationFlagged = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "moderation_flagged_total",
		Help:      "User events flagged by the moderator",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		EventsTotal,
		RequestLatency,
		ModerationFlagged,
	)
}

// StatsSource is implemented by *room.Coordinator.
type StatsSource interface {
	Stats() room.Stats
}

// RegisterRoom registers collectors that read src on every scrape.
func RegisterRoom(reg prometheus.Registerer, src StatsSource) error {
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_users",
			Help:      "Users currently in the roster",
		}, func() float64 { return float64(src.Stats().Online) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "log_events",
			Help:      "Events currently retained in the room log",
		}, func() float64 { return float64(src.Stats().Logged) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_evictions_total",
			Help:      "Events evicted from the head of the room log",
		}, func() float64 { return float64(src.Stats().Evicted) }),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
