// Package models defines the data types shared across the harness:
// queue rows, Slack payload shapes, and bot identity.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Payload is the opaque upstream event document stored in the queue.
// It round-trips through the jsonb event column untouched.
type Payload map[string]any

// Event is a live work-queue row.
//
// Attempts counts claims, VT is the visibility timestamp (the row is hidden
// from claimers until VT has passed), and Claimed records one timestamp per
// successful claim.
type Event struct {
	ID       int64
	EventTS  time.Time
	Attempts int
	VT       time.Time
	Claimed  []time.Time
	Event    Payload
}

// HistEvent is a terminal history row. Every event id lands here exactly
// once after leaving the live queue; Processed records whether the handler
// completed for it.
type HistEvent struct {
	Event
	Processed bool
}

// MentionPayload is the typed view of a queued Slack message or mention.
// Extra fields in the payload are preserved in Event.Event; this struct
// carries only what the harness and handlers address directly.
type MentionPayload struct {
	TS          string `json:"ts"`
	ThreadTS    string `json:"thread_ts,omitempty"`
	Team        string `json:"team,omitempty"`
	Text        string `json:"text,omitempty"`
	Type        string `json:"type"`
	Subtype     string `json:"subtype,omitempty"`
	User        string `json:"user"`
	Channel     string `json:"channel"`
	ChannelType string `json:"channel_type,omitempty"`
	EventTS     string `json:"event_ts,omitempty"`
}

// Validate enforces the minimum shape the dispatcher requires before a
// handler is invoked. Rows failing this are poison and are retired without
// a handler call.
func (m *MentionPayload) Validate() error {
	switch {
	case m.Type == "":
		return fmt.Errorf("payload missing type")
	case m.User == "":
		return fmt.Errorf("payload missing user")
	case m.Channel == "":
		return fmt.Errorf("payload missing channel")
	case m.TS == "":
		return fmt.Errorf("payload missing ts")
	}
	return nil
}

// ReplyTS returns the timestamp a threaded reply should target: the thread
// parent when the message is in a thread, otherwise the message itself.
func (m *MentionPayload) ReplyTS() string {
	if m.ThreadTS != "" {
		return m.ThreadTS
	}
	return m.TS
}

// ParseMention converts an opaque payload into its typed view, validating
// the required fields.
func ParseMention(p Payload) (*MentionPayload, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	var m MentionPayload
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// UserID extracts the author from the raw payload without full parsing.
// Returns "" when absent or not a string.
func (p Payload) UserID() string {
	u, _ := p["user"].(string)
	return u
}
