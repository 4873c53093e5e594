// Package ingress connects the Slack Socket Mode stream to the durable
// queue. Inbound deliveries are classified, persisted, acknowledged, and a
// worker is woken; slash commands and button actions are handled
// synchronously without touching the live queue.
package ingress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/droverhq/drover/pkg/config"
	"github.com/droverhq/drover/pkg/models"
	droverslack "github.com/droverhq/drover/pkg/slack"
)

// EventStore is the subset of the queue store the ingress path uses.
type EventStore interface {
	InsertEvent(ctx context.Context, payload models.Payload) error
	InsertEventHist(ctx context.Context, payload models.Payload) (int64, error)
	GetEventHist(ctx context.Context, id int64) (*models.HistEvent, error)
}

// Dispatcher re-dispatches an archived event in-process when the user
// confirms a proactive prompt.
type Dispatcher interface {
	ProcessEvent(ctx context.Context, event *models.Event) error
}

// Waker pokes one queue worker after a successful insert.
type Waker interface {
	Wake()
}

// CommandRouter resolves slash-command text to an ephemeral reply.
type CommandRouter interface {
	Route(ctx context.Context, cmd models.SlackCommand) (string, error)
}

// Ingress owns the Socket Mode event loop.
type Ingress struct {
	client     *socketmode.Client
	slack      *droverslack.Client
	store      EventStore
	dispatcher Dispatcher
	pool       Waker
	router     CommandRouter
	cfg        *config.SlackConfig
	bot        *models.BotInfo
	logger     *slog.Logger
}

// New creates the ingress over an established Slack client and bot
// identity.
func New(slackClient *droverslack.Client, st EventStore, dispatcher Dispatcher, pool Waker, router CommandRouter, cfg *config.SlackConfig, bot *models.BotInfo) *Ingress {
	return &Ingress{
		client:     socketmode.New(slackClient.API()),
		slack:      slackClient,
		store:      st,
		dispatcher: dispatcher,
		pool:       pool,
		router:     router,
		cfg:        cfg,
		bot:        bot,
		logger:     slog.Default().With("component", "ingress"),
	}
}

// Run opens the Socket Mode connection and consumes deliveries until the
// context is cancelled. Reconnects are handled inside the socket client.
func (i *Ingress) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- i.client.RunContext(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("socket mode connection: %w", err)
			}
			return nil
		case evt, ok := <-i.client.Events:
			if !ok {
				return nil
			}
			i.handleSocketEvent(ctx, evt)
		}
	}
}

// handleSocketEvent routes one Socket Mode delivery.
func (i *Ingress) handleSocketEvent(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		i.logger.Info("connecting to Slack")
	case socketmode.EventTypeConnected:
		i.logger.Info("connected to Slack")
	case socketmode.EventTypeConnectionError:
		i.logger.Error("socket connection error", "event", evt.Type)

	case socketmode.EventTypeEventsAPI:
		apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok || evt.Request == nil {
			i.logger.Warn("malformed events api delivery")
			return
		}
		i.handleEventsAPI(ctx, evt.Request, apiEvent)

	case socketmode.EventTypeInteractive:
		callback, ok := evt.Data.(goslack.InteractionCallback)
		if !ok || evt.Request == nil {
			i.logger.Warn("malformed interactive delivery")
			return
		}
		i.client.Ack(*evt.Request)
		i.handleInteraction(ctx, callback)

	case socketmode.EventTypeSlashCommand:
		cmd, ok := evt.Data.(goslack.SlashCommand)
		if !ok || evt.Request == nil {
			i.logger.Warn("malformed slash command delivery")
			return
		}
		i.client.Ack(*evt.Request)
		i.handleSlashCommand(ctx, cmd)
	}
}

// handleEventsAPI classifies an Events API delivery and routes it to the
// queue or the proactive-prompt path. Every delivery is acknowledged
// exactly once, promptly, to prevent upstream redelivery.
func (i *Ingress) handleEventsAPI(ctx context.Context, req *socketmode.Request, apiEvent slackevents.EventsAPIEvent) {
	payload, err := innerPayload(req.Payload)
	if err != nil {
		i.logger.Error("failed to decode event payload", "error", err)
		i.client.Ack(*req)
		return
	}

	switch ev := apiEvent.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		i.enqueue(ctx, req, payload)

	case *slackevents.MessageEvent:
		i.handleMessage(ctx, req, ev, payload)

	default:
		i.logger.Warn("unrouted event", "type", apiEvent.InnerEvent.Type)
		i.client.Ack(*req)
	}
}

// msgRoute is the classification outcome for one message event.
type msgRoute int

const (
	routeDrop msgRoute = iota
	routeQueue
	routePrompt
)

// classifyMessage decides where a message event goes: direct messages join
// the queue like mentions; top-level channel messages in proactive channels
// get an opt-in prompt; everything else is dropped.
func classifyMessage(ev *slackevents.MessageEvent, bot *models.BotInfo, cfg *config.SlackConfig) msgRoute {
	// The bot's own messages and other bots' messages never queue.
	if ev.User == "" || ev.User == bot.UserID || ev.BotID != "" {
		return routeDrop
	}
	// Edits, deletes, joins and similar carry a subtype; skip them.
	if ev.SubType != "" {
		return routeDrop
	}

	switch {
	case ev.ChannelType == "im":
		// mpim messages are not handled here: the bot only responds
		// there when explicitly mentioned, which arrives as app_mention.
		return routeQueue
	case cfg.IsProactiveChannel(ev.Channel) && ev.ThreadTimeStamp == "":
		return routePrompt
	default:
		return routeDrop
	}
}

// handleMessage acks and dispatches a message event per its classification.
func (i *Ingress) handleMessage(ctx context.Context, req *socketmode.Request, ev *slackevents.MessageEvent, payload models.Payload) {
	route := classifyMessage(ev, i.bot, i.cfg)
	if route == routeDrop {
		i.client.Ack(*req)
		return
	}

	// Queue rows synthesize a subtype from the channel type so handlers
	// can tell DMs from channel messages without re-checking channel_type.
	if _, present := payload["subtype"]; !present {
		payload["subtype"] = ev.ChannelType
	}

	if route == routeQueue {
		i.enqueue(ctx, req, payload)
		return
	}
	i.proactivePrompt(ctx, req, ev, payload)
}

// enqueue persists the payload, acknowledges upstream, and wakes a worker.
// Persist comes first so an ack never outruns durability; a persist
// failure still acks (and logs) to avoid redelivery amplification.
func (i *Ingress) enqueue(ctx context.Context, req *socketmode.Request, payload models.Payload) {
	err := i.store.InsertEvent(ctx, payload)
	if err != nil {
		i.logger.Error("failed to persist event", "error", err)
	}
	i.client.Ack(*req)
	if err == nil {
		i.pool.Wake()
	}
}

// proactivePrompt archives the message straight to history and offers the
// author an ephemeral opt-in. The live queue is not touched unless the
// user confirms.
func (i *Ingress) proactivePrompt(ctx context.Context, req *socketmode.Request, ev *slackevents.MessageEvent, payload models.Payload) {
	id, err := i.store.InsertEventHist(ctx, payload)
	if err != nil {
		i.logger.Error("failed to archive proactive candidate", "error", err)
		i.client.Ack(*req)
		return
	}
	i.client.Ack(*req)

	if err := i.slack.PostEphemeral(ctx, ev.Channel, ev.User, droverslack.BuildProactivePrompt(id)); err != nil {
		i.logger.Error("failed to post proactive prompt", "hist_id", id, "error", err)
	}
}

// innerPayload extracts the raw inner event document from the Events API
// envelope, preserving fields the typed structs do not model.
func innerPayload(raw json.RawMessage) (models.Payload, error) {
	var envelope struct {
		Event models.Payload `json:"event"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decoding event envelope: %w", err)
	}
	if envelope.Event == nil {
		return nil, fmt.Errorf("event envelope has no event")
	}
	return envelope.Event, nil
}
