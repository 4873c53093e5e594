package models

// BotInfo is the bot's own identity, fetched once at startup from
// auth.test and bots.info and read-only thereafter. Ingress uses UserID to
// filter out the bot's own messages.
type BotInfo struct {
	BotID  string
	UserID string
	TeamID string
	AppID  string
	URL    string
	Name   string
	Team   string
}
