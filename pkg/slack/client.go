// Package slack wraps the slack-go SDK with the small API surface the
// harness and handlers need: bot identity, ephemeral messaging, reactions,
// and threaded replies.
package slack

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"

	"github.com/droverhq/drover/pkg/models"
)

// Client is a thin wrapper around the slack-go SDK.
type Client struct {
	api    *goslack.Client
	logger *slog.Logger
}

// NewClient creates a Slack API client. appToken may be empty for
// handler-only clients that never open a Socket Mode connection.
func NewClient(botToken, appToken string) *Client {
	opts := []goslack.Option{}
	if appToken != "" {
		opts = append(opts, goslack.OptionAppLevelToken(appToken))
	}
	return &Client{
		api:    goslack.New(botToken, opts...),
		logger: slog.Default().With("component", "slack-client"),
	}
}

// NewClientWithAPIURL creates a client that targets a custom API URL.
// Useful for testing with a mock server.
func NewClientWithAPIURL(botToken, appToken, apiURL string) *Client {
	opts := []goslack.Option{goslack.OptionAPIURL(apiURL)}
	if appToken != "" {
		opts = append(opts, goslack.OptionAppLevelToken(appToken))
	}
	return &Client{
		api:    goslack.New(botToken, opts...),
		logger: slog.Default().With("component", "slack-client"),
	}
}

// API exposes the underlying SDK client (the Socket Mode adapter needs it).
func (c *Client) API() *goslack.Client {
	return c.api
}

// FetchBotInfo resolves the bot's own identity via auth.test and bots.info.
// Called once after startup; the result is read-only thereafter.
func (c *Client) FetchBotInfo(ctx context.Context) (*models.BotInfo, error) {
	auth, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth.test failed: %w", err)
	}

	bot, err := c.api.GetBotInfoContext(ctx, goslack.GetBotInfoParameters{Bot: auth.BotID})
	if err != nil {
		return nil, fmt.Errorf("bots.info failed: %w", err)
	}

	return &models.BotInfo{
		BotID:  auth.BotID,
		UserID: auth.UserID,
		TeamID: auth.TeamID,
		AppID:  bot.AppID,
		URL:    auth.URL,
		Name:   bot.Name,
		Team:   auth.Team,
	}, nil
}

// AddReaction adds an emoji reaction to a message. Fail-soft: errors are
// logged and swallowed so visual feedback never disrupts the main flow.
func (c *Client) AddReaction(ctx context.Context, channel, ts, emoji string) {
	err := c.api.AddReactionContext(ctx, emoji, goslack.ItemRef{Channel: channel, Timestamp: ts})
	if err != nil {
		c.logger.Debug("reactions.add failed", "channel", channel, "ts", ts, "emoji", emoji, "error", err)
	}
}

// RemoveReaction removes an emoji reaction from a message. Fail-soft.
func (c *Client) RemoveReaction(ctx context.Context, channel, ts, emoji string) {
	err := c.api.RemoveReactionContext(ctx, emoji, goslack.ItemRef{Channel: channel, Timestamp: ts})
	if err != nil {
		c.logger.Debug("reactions.remove failed", "channel", channel, "ts", ts, "emoji", emoji, "error", err)
	}
}

// PostResponse posts text as a threaded reply under threadTS.
func (c *Client) PostResponse(ctx context.Context, channel, threadTS, text string) error {
	_, _, err := c.api.PostMessageContext(ctx, channel,
		goslack.MsgOptionText(text, false),
		goslack.MsgOptionTS(threadTS),
	)
	if err != nil {
		return fmt.Errorf("chat.postMessage failed: %w", err)
	}
	return nil
}

// PostEphemeral posts a user-only message built from blocks.
func (c *Client) PostEphemeral(ctx context.Context, channel, user string, blocks []goslack.Block) error {
	_, err := c.api.PostEphemeralContext(ctx, channel, user, goslack.MsgOptionBlocks(blocks...))
	if err != nil {
		return fmt.Errorf("chat.postEphemeral failed: %w", err)
	}
	return nil
}

// ReplaceEphemeral swaps an ephemeral message for plain text via its
// response URL.
func (c *Client) ReplaceEphemeral(ctx context.Context, responseURL, text string) error {
	err := goslack.PostWebhookContext(ctx, responseURL, &goslack.WebhookMessage{
		Text:            text,
		ReplaceOriginal: true,
	})
	if err != nil {
		return fmt.Errorf("replacing ephemeral message: %w", err)
	}
	return nil
}

// DeleteEphemeral removes an ephemeral message via its response URL.
func (c *Client) DeleteEphemeral(ctx context.Context, responseURL string) error {
	err := goslack.PostWebhookContext(ctx, responseURL, &goslack.WebhookMessage{
		DeleteOriginal: true,
	})
	if err != nil {
		return fmt.Errorf("deleting ephemeral message: %w", err)
	}
	return nil
}

// RespondEphemeral sends an ephemeral reply through a slash command's
// response URL.
func (c *Client) RespondEphemeral(ctx context.Context, responseURL, text string) error {
	err := goslack.PostWebhookContext(ctx, responseURL, &goslack.WebhookMessage{
		Text:         text,
		ResponseType: "ephemeral",
	})
	if err != nil {
		return fmt.Errorf("responding to command: %w", err)
	}
	return nil
}
