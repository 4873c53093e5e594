package ingress

import (
	"context"
	"strconv"

	goslack "github.com/slack-go/slack"

	"github.com/droverhq/drover/pkg/models"
	droverslack "github.com/droverhq/drover/pkg/slack"
)

// handleInteraction services the proactive-prompt buttons. Confirm loads
// the archived payload and dispatches it synchronously; dismiss just
// removes the prompt. Anything else is logged and dropped.
func (i *Ingress) handleInteraction(ctx context.Context, callback goslack.InteractionCallback) {
	if callback.Type != goslack.InteractionTypeBlockActions || len(callback.ActionCallback.BlockActions) == 0 {
		i.logger.Warn("unrouted interaction", "type", callback.Type)
		return
	}
	action := callback.ActionCallback.BlockActions[0]

	switch action.ActionID {
	case droverslack.ActionProactiveConfirm:
		i.confirmProactive(ctx, callback, action.Value)

	case droverslack.ActionProactiveDismiss:
		if err := i.slack.DeleteEphemeral(ctx, callback.ResponseURL); err != nil {
			i.logger.Error("failed to remove proactive prompt", "error", err)
		}

	default:
		i.logger.Warn("unrouted block action", "action_id", action.ActionID)
	}
}

// confirmProactive turns a confirmed prompt into an immediate dispatch.
// The prompt is replaced before processing so the user sees feedback right
// away; the reply itself lands in the message thread.
func (i *Ingress) confirmProactive(ctx context.Context, callback goslack.InteractionCallback, value string) {
	histID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		i.logger.Error("malformed proactive button value", "value", value)
		return
	}

	hist, err := i.store.GetEventHist(ctx, histID)
	if err != nil {
		i.logger.Error("failed to load archived event", "hist_id", histID, "error", err)
		return
	}

	if err := i.slack.ReplaceEphemeral(ctx, callback.ResponseURL, droverslack.ProactiveConfirmedText); err != nil {
		i.logger.Error("failed to replace proactive prompt", "hist_id", histID, "error", err)
	}

	if err := i.dispatcher.ProcessEvent(ctx, &hist.Event); err != nil {
		i.logger.Error("proactive dispatch failed", "hist_id", histID, "error", err)
	}
}

// handleSlashCommand routes an already-acknowledged slash command through
// the command tree and replies ephemerally.
func (i *Ingress) handleSlashCommand(ctx context.Context, cmd goslack.SlashCommand) {
	reply, err := i.router.Route(ctx, models.SlackCommand{
		ChannelID:   cmd.ChannelID,
		ChannelName: cmd.ChannelName,
		UserID:      cmd.UserID,
		UserName:    cmd.UserName,
		Command:     cmd.Command,
		Text:        cmd.Text,
	})
	if err != nil {
		i.logger.Error("slash command failed", "command", cmd.Command, "user", cmd.UserID, "error", err)
		reply = "Something went wrong running that command."
	}
	if reply == "" {
		return
	}
	if err := i.slack.RespondEphemeral(ctx, cmd.ResponseURL, reply); err != nil {
		i.logger.Error("failed to respond to slash command", "command", cmd.Command, "error", err)
	}
}
