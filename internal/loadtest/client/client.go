// Package client is a polling chat client for load tests. Each Client holds
// its own cookie jar, so one Client is one chat session.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/whisper/roomchat/internal/protocol"
)

// ErrRateLimited is returned when the server answers 429.
var ErrRateLimited = errors.New("client: rate limited")

// RejectedError carries a failure message returned by the server with a
// success=false envelope.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return "client: rejected: " + e.Message
}

// Metrics tracks per-session performance data.
type Metrics struct {
	LoginLatency time.Duration
	Sent         int
	Received     int
	Polls        int
	Errors       int
}

// Client is a single chat session against one server.
type Client struct {
	base string
	http *http.Client

	mu      sync.Mutex
	name    string
	cursor  int64
	metrics Metrics
}

// New creates a Client for the server at baseURL (e.g. http://localhost:8080).
func New(baseURL string, timeout time.Duration) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("client: cookie jar: %w", err)
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Jar: jar, Timeout: timeout},
	}, nil
}

// Name returns the name bound by the last successful Login.
func (c *Client) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// Login joins the room as name.
func (c *Client) Login(ctx context.Context, name string) error {
	start := time.Now()
	var resp protocol.Response
	if err := c.post(ctx, "/chat/login", url.Values{"username": {name}}, &resp); err != nil {
		return err
	}

	c.mu.Lock()
	c.name = resp.Username
	c.metrics.LoginLatency = time.Since(start)
	c.mu.Unlock()
	return nil
}

// Send posts one message.
func (c *Client) Send(ctx context.Context, content string) error {
	var resp protocol.Response
	if err := c.post(ctx, "/chat/send", url.Values{"content": {content}}, &resp); err != nil {
		return err
	}
	c.mu.Lock()
	c.metrics.Sent++
	c.mu.Unlock()
	return nil
}

// Poll fetches events newer than the client's cursor and advances it.
func (c *Client) Poll(ctx context.Context) ([]protocol.Message, []string, error) {
	c.mu.Lock()
	cursor := c.cursor
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.base+"/chat/messages?lastTime="+strconv.FormatInt(cursor, 10), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("client: build poll: %w", err)
	}

	var resp protocol.PollResponse
	if err := c.do(req, &resp); err != nil {
		return nil, nil, err
	}
	if !resp.Success {
		c.countError()
		return nil, nil, &RejectedError{Message: "poll failed"}
	}

	c.mu.Lock()
	if resp.LastTime > c.cursor {
		c.cursor = resp.LastTime
	}
	c.metrics.Polls++
	c.metrics.Received += len(resp.Messages)
	c.mu.Unlock()
	return resp.Messages, resp.Users, nil
}

// Logout leaves the room and drops the session.
func (c *Client) Logout(ctx context.Context) error {
	var resp protocol.Response
	if err := c.post(ctx, "/chat/logout", url.Values{}, &resp); err != nil {
		return err
	}
	c.mu.Lock()
	c.name = ""
	c.mu.Unlock()
	return nil
}

// GetMetrics returns a snapshot of the session's metrics.
func (c *Client) GetMetrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

func (c *Client) post(ctx context.Context, path string, form url.Values, out *protocol.Response) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("client: build %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if err := c.do(req, out); err != nil {
		return err
	}
	if !out.Success {
		c.countError()
		return &RejectedError{Message: out.Message}
	}
	return nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		c.countError()
		return fmt.Errorf("client: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.countError()
		_, _ = io.Copy(io.Discard, resp.Body)
		return ErrRateLimited
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.countError()
		return fmt.Errorf("client: %s %s: status %d: %w", req.Method, req.URL.Path, resp.StatusCode, err)
	}
	return nil
}

func (c *Client) countError() {
	c.mu.Lock()
	c.metrics.Errors++
	c.mu.Unlock()
}
