// Package protocol defines the JSON shapes exchanged with polling clients and
// published on the room event feed. Field names are fixed: existing browser
// clients read them directly.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/whisper/roomchat/internal/chat"
)

// User-facing messages that are not core errors.
const (
	MsgLoginOK     = "login successful"
	MsgServerError = "server error"
	MsgRateLimited = "too many requests, slow down"
	MsgInvalidPath = "invalid request path: "
)

// Message is one chat event as clients see it.
type Message struct {
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
	Type      string `json:"type"`
}

// Response is the envelope for login, send, logout and every failure.
type Response struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	Username string `json:"username,omitempty"`
}

// PollResponse is returned by the messages endpoint.
type PollResponse struct {
	Success  bool      `json:"success"`
	Messages []Message `json:"messages"`
	LastTime int64     `json:"lastTime"`
	Users    []string  `json:"users"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Online int    `json:"online"`
	Logged int    `json:"logged"`
	Uptime string `json:"uptime"`
}

// OK is the bare success envelope.
func OK() Response { return Response{Success: true} }

// Fail builds a failure envelope carrying a user-facing message.
func Fail(message string) Response { return Response{Success: false, Message: message} }

// LoggedIn builds the login success envelope.
func LoggedIn(username string) Response {
	return Response{Success: true, Username: username, Message: MsgLoginOK}
}

// FromEvent converts a log event to its wire form.
func FromEvent(ev chat.ChatEvent) Message {
	return Message{
		Sender:    ev.Sender,
		Content:   ev.Content,
		Timestamp: ev.Timestamp,
		Type:      string(ev.Kind),
	}
}

// NewPollResponse converts a poll result. Messages and users are always
// encoded as arrays, never null.
func NewPollResponse(events []chat.ChatEvent, cursor int64, users []string) PollResponse {
	msgs := make([]Message, len(events))
	for i, ev := range events {
		msgs[i] = FromEvent(ev)
	}
	if users == nil {
		users = []string{}
	}
	return PollResponse{
		Success:  true,
		Messages: msgs,
		LastTime: cursor,
		Users:    users,
	}
}

// EncodeEvent marshals an event for the room event feed.
func EncodeEvent(ev chat.ChatEvent) ([]byte, error) {
	data, err := json.Marshal(FromEvent(ev))
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal event: %w", err)
	}
	return data, nil
}

// DecodeEvent parses an event published on the room event feed.
func DecodeEvent(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("protocol: failed to parse event: %w", err)
	}
	if m.Type != string(chat.KindUser) && m.Type != string(chat.KindSystem) {
		return Message{}, fmt.Errorf("protocol: unknown event type: %q", m.Type)
	}
	return m, nil
}
