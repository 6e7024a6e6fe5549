package moderation

// Result is published on room.moderation for every flagged user event.
type Result struct {
	Sender    string `json:"sender"`
	Timestamp int64  `json:"timestamp"`
	Blocked   bool   `json:"blocked"`
	Reason    string `json:"reason"`
	Term      string `json:"term"`
}
