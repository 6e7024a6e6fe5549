// Package stats aggregates load test measurements from many client
// goroutines and prints a summary with percentile distributions.
package stats

import (
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"
)

// Collector aggregates metrics from load test clients. It is safe for
// concurrent use.
type Collector struct {
	mu                sync.Mutex
	loginLatencies    []time.Duration
	deliveryLatencies []time.Duration
	pollLatencies     []time.Duration
	logins            int
	sent              int
	errors            int
	rateLimited       int
	startTime         time.Time
	scraper           *Scraper
}

// NewCollector creates a Collector whose clock starts now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// SetScraper attaches a server metrics scraper whose report is appended to
// Report's output.
func (c *Collector) SetScraper(s *Scraper) {
	c.mu.Lock()
	c.scraper = s
	c.mu.Unlock()
}

// AddLogin records a successful login and its latency.
func (c *Collector) AddLogin(d time.Duration) {
	c.mu.Lock()
	c.loginLatencies = append(c.loginLatencies, d)
	c.logins++
	c.mu.Unlock()
}

// AddSent records one accepted message.
func (c *Collector) AddSent() {
	c.mu.Lock()
	c.sent++
	c.mu.Unlock()
}

// AddDelivery records the time from sending a message to seeing it in a poll.
func (c *Collector) AddDelivery(d time.Duration) {
	c.mu.Lock()
	c.deliveryLatencies = append(c.deliveryLatencies, d)
	c.mu.Unlock()
}

// AddPoll records one poll round trip.
func (c *Collector) AddPoll(d time.Duration) {
	c.mu.Lock()
	c.pollLatencies = append(c.pollLatencies, d)
	c.mu.Unlock()
}

// AddError increments the error counter.
func (c *Collector) AddError() {
	c.mu.Lock()
	c.errors++
	c.mu.Unlock()
}

// AddRateLimited increments the rate-limited counter.
func (c *Collector) AddRateLimited() {
	c.mu.Lock()
	c.rateLimited++
	c.mu.Unlock()
}

// LoginCount returns the number of recorded logins.
func (c *Collector) LoginCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logins
}

// ErrorCount returns the number of recorded errors.
func (c *Collector) ErrorCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errors
}

// Report writes a summary of everything collected so far to w.
func (c *Collector) Report(w io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.startTime)

	fmt.Fprintln(w, "\n=== Load Test Results ===")
	fmt.Fprintf(w, "Duration:      %s\n", elapsed.Round(time.Second))
	fmt.Fprintf(w, "Logins:        %d\n", c.logins)
	fmt.Fprintf(w, "Messages sent: %d\n", c.sent)
	fmt.Fprintf(w, "Rate limited:  %d\n", c.rateLimited)
	fmt.Fprintf(w, "Errors:        %d\n", c.errors)

	if c.sent > 0 {
		fmt.Fprintf(w, "Delivered:     %.2f%%\n", float64(len(c.deliveryLatencies))/float64(c.sent)*100)
	}

	sections := []struct {
		title string
		data  []time.Duration
	}{
		{"Login Latency", c.loginLatencies},
		{"Poll Latency", c.pollLatencies},
		{"Send to Seen Latency", c.deliveryLatencies},
	}
	for _, s := range sections {
		if len(s.data) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", s.title)
		fmt.Fprintln(w, "  "+Summarize(s.data).String())
	}

	if c.scraper != nil {
		c.scraper.Report(w)
	}
	fmt.Fprintln(w)
}

// Summary is a percentile digest of a latency sample.
type Summary struct {
	N                       int
	Avg, P50, P95, P99, Max time.Duration
}

// Summarize computes a Summary. It sorts durations in place.
func Summarize(durations []time.Duration) Summary {
	n := len(durations)
	if n == 0 {
		return Summary{}
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	return Summary{
		N:   n,
		Avg: sum / time.Duration(n),
		P50: durations[n/2],
		P95: durations[rank(n, 0.95)],
		P99: durations[rank(n, 0.99)],
		Max: durations[n-1],
	}
}

func rank(n int, q float64) int {
	return int(math.Ceil(float64(n)*q)) - 1
}

func (s Summary) String() string {
	return fmt.Sprintf("avg: %v  p50: %v  p95: %v  p99: %v  max: %v  (n=%d)",
		s.Avg.Round(time.Microsecond),
		s.P50.Round(time.Microsecond),
		s.P95.Round(time.Microsecond),
		s.P99.Round(time.Microsecond),
		s.Max.Round(time.Microsecond),
		s.N,
	)
}
