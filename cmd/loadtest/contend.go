package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/whisper/roomchat/internal/loadtest/client"
	"github.com/whisper/roomchat/internal/loadtest/stats"
)

// runContend fires N simultaneous logins for one name. The server must
// accept exactly one.
func runContend(args []string) int {
	fs := flag.NewFlagSet("contend", flag.ExitOnError)
	baseURL := fs.String("url", "http://localhost:8080", "Chat server base URL")
	clients := fs.Int("clients", 200, "Number of concurrent login attempts")
	name := fs.String("name", "", "Name to contend for (default derived from the clock)")
	timeout := fs.Duration("timeout", 10*time.Second, "Per-request timeout")
	fs.Parse(args)

	if *name == "" {
		*name = fmt.Sprintf("contend-%d", time.Now().UnixNano())
	}
	fmt.Printf("Contend test: %d clients logging in as %q against %s\n", *clients, *name, *baseURL)

	ctx := context.Background()
	collector := stats.NewCollector()

	sessions := make([]*client.Client, 0, *clients)
	for i := 0; i < *clients; i++ {
		c, err := client.New(*baseURL, *timeout)
		if err != nil {
			fmt.Printf("client setup failed: %v\n", err)
			return 1
		}
		sessions = append(sessions, c)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  []*client.Client
		rejected int
		start    = make(chan struct{})
	)
	for _, c := range sessions {
		wg.Add(1)
		go func(c *client.Client) {
			defer wg.Done()
			<-start
			err := c.Login(ctx, *name)

			var rej *client.RejectedError
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, c)
				collector.AddLogin(c.GetMetrics().LoginLatency)
			case errors.As(err, &rej):
				rejected++
			case errors.Is(err, client.ErrRateLimited):
				collector.AddRateLimited()
			default:
				collector.AddError()
			}
		}(c)
	}
	close(start)
	wg.Wait()

	for _, w := range winners {
		_ = w.Logout(ctx)
	}

	collector.Report(os.Stdout)
	fmt.Printf("Accepted: %d  Rejected: %d\n", len(winners), rejected)
	if len(winners) != 1 {
		fmt.Printf("FAIL: expected exactly one accepted login, got %d\n", len(winners))
		return 1
	}
	fmt.Println("PASS")
	return 0
}
