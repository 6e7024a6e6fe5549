package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/whisper/roomchat/internal/loadtest/client"
	"github.com/whisper/roomchat/internal/loadtest/stats"
)

// probePrefix marks load test messages: "lt|<unix-nanos>|<seq>|<padding>".
const probePrefix = "lt|"

// runChat logs in N users, has each send M messages at a fixed interval while
// polling, and measures how long each message takes to show up in its
// sender's own poll.
func runChat(args []string) int {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	baseURL := fs.String("url", "http://localhost:8080", "Chat server base URL")
	users := fs.Int("users", 50, "Number of concurrent users")
	messages := fs.Int("messages", 20, "Messages sent per user")
	rampUp := fs.Duration("ramp", 5*time.Second, "Ramp-up duration for logins")
	msgInterval := fs.Duration("msg-interval", time.Second, "Interval between messages per user")
	pollInterval := fs.Duration("poll-interval", 500*time.Millisecond, "Interval between polls per user")
	drain := fs.Duration("drain", 3*time.Second, "How long to keep polling after the last send")
	msgSize := fs.Int("msg-size", 64, "Approximate size of each message in bytes")
	timeout := fs.Duration("timeout", 10*time.Second, "Per-request timeout")
	metricsURL := fs.String("metrics-url", "", "Prometheus endpoint to scrape (default <url>/metrics)")
	scrapeInterval := fs.Duration("scrape-interval", 2*time.Second, "Interval between metrics scrapes")
	fs.Parse(args)

	if *metricsURL == "" {
		*metricsURL = strings.TrimRight(*baseURL, "/") + "/metrics"
	}

	fmt.Printf("Chat test: %d users x %d messages against %s (ramp=%s, msg-interval=%s, poll-interval=%s)\n",
		*users, *messages, *baseURL, *rampUp, *msgInterval, *pollInterval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()
	scraper := stats.NewScraper(*metricsURL, *scrapeInterval)
	collector.SetScraper(scraper)
	scraper.Start(ctx)

	padding := strings.Repeat("x", max(*msgSize-32, 0))
	runID := strconv.FormatInt(time.Now().UnixNano()%1_000_000, 36)

	step := *rampUp / time.Duration(max(*users, 1))
	var (
		wg     sync.WaitGroup
		active atomic.Int64
	)

	progressDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fmt.Printf("  [chat] active: %d  logins: %d  errors: %d\n",
					active.Load(), collector.LoginCount(), collector.ErrorCount())
			case <-progressDone:
				return
			}
		}
	}()

	for i := 0; i < *users; i++ {
		select {
		case <-ctx.Done():
			fmt.Println("\nInterrupted during ramp-up.")
		case <-time.After(step):
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			active.Add(1)
			defer active.Add(-1)

			u := chatUser{
				name:         fmt.Sprintf("lt-%s-%d", runID, id),
				messages:     *messages,
				msgInterval:  *msgInterval,
				pollInterval: *pollInterval,
				drain:        *drain,
				padding:      padding,
				collector:    collector,
			}
			u.run(ctx, *baseURL, *timeout)
		}(i)
	}

	wg.Wait()
	close(progressDone)
	scraper.Stop()
	collector.Report(os.Stdout)

	if collector.ErrorCount() > 0 {
		return 1
	}
	return 0
}

type chatUser struct {
	name         string
	messages     int
	msgInterval  time.Duration
	pollInterval time.Duration
	drain        time.Duration
	padding      string
	collector    *stats.Collector
}

func (u *chatUser) run(ctx context.Context, baseURL string, timeout time.Duration) {
	c, err := client.New(baseURL, timeout)
	if err != nil {
		u.collector.AddError()
		return
	}
	if err := c.Login(ctx, u.name); err != nil {
		u.record(err)
		return
	}
	u.collector.AddLogin(c.GetMetrics().LoginLatency)
	defer func() {
		// Leave even when ctx is already cancelled.
		logoutCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := c.Logout(logoutCtx); err != nil {
			u.collector.AddError()
		}
	}()

	// Skip the backlog so only this run's traffic is measured.
	if _, _, err := c.Poll(ctx); err != nil {
		u.record(err)
		return
	}

	pollTicker := time.NewTicker(u.pollInterval)
	defer pollTicker.Stop()
	sendTicker := time.NewTicker(u.msgInterval)
	defer sendTicker.Stop()

	sent := 0
	var drainUntil <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-drainUntil:
			u.poll(ctx, c)
			return
		case <-pollTicker.C:
			u.poll(ctx, c)
		case <-sendTicker.C:
			if sent >= u.messages {
				continue
			}
			sent++
			content := probePrefix + strconv.FormatInt(time.Now().UnixNano(), 10) + "|" + strconv.Itoa(sent) + "|" + u.padding
			if err := c.Send(ctx, content); err != nil {
				u.record(err)
			} else {
				u.collector.AddSent()
			}
			if sent == u.messages {
				drainUntil = time.After(u.drain)
			}
		}
	}
}

func (u *chatUser) poll(ctx context.Context, c *client.Client) {
	start := time.Now()
	msgs, _, err := c.Poll(ctx)
	if err != nil {
		u.record(err)
		return
	}
	u.collector.AddPoll(time.Since(start))

	now := time.Now()
	for _, m := range msgs {
		if m.Sender != u.name {
			continue
		}
		if sentAt, ok := parseProbe(m.Content); ok {
			u.collector.AddDelivery(now.Sub(sentAt))
		}
	}
}

func (u *chatUser) record(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	if errors.Is(err, client.ErrRateLimited) {
		u.collector.AddRateLimited()
		return
	}
	u.collector.AddError()
}

func parseProbe(content string) (time.Time, bool) {
	rest, ok := strings.CutPrefix(content, probePrefix)
	if !ok {
		return time.Time{}, false
	}
	nanos, _, ok := strings.Cut(rest, "|")
	if !ok {
		return time.Time{}, false
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, n), true
}
