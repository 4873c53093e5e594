package models

import "time"

// SlackCommand is the subset of a slash-command invocation the router and
// its handlers consume. Handled synchronously on the ingress path; never
// queued.
type SlackCommand struct {
	ChannelID   string `json:"channel_id"`
	ChannelName string `json:"channel_name"`
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name"`
	Command     string `json:"command"`
	Text        string `json:"text"`
}

// IgnoredUser is a row of the ignore list maintained via slash commands.
type IgnoredUser struct {
	UserID  string
	EventTS time.Time
}
