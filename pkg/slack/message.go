package slack

import (
	"strconv"

	goslack "github.com/slack-go/slack"
)

// Action IDs carried by the proactive-prompt buttons. The button value is
// the history id of the archived payload.
const (
	ActionProactiveConfirm = "proactive_confirm"
	ActionProactiveDismiss = "proactive_dismiss"

	proactiveBlockID = "proactive_prompt"
)

// ProactiveConfirmedText replaces the prompt once the user opts in.
const ProactiveConfirmedText = ":saluting_face: On it — I'll reply in the thread."

// BuildProactivePrompt creates Block Kit blocks for the ephemeral opt-in
// prompt shown for non-mention messages in configured channels.
func BuildProactivePrompt(histID int64) []goslack.Block {
	value := strconv.FormatInt(histID, 10)
	text := ":wave: Looks like I might be able to help with that. Want me to take a look?"

	confirm := goslack.NewButtonBlockElement(
		ActionProactiveConfirm, value,
		goslack.NewTextBlockObject(goslack.PlainTextType, "Yes, take a look", false, false),
	)
	confirm.Style = goslack.StylePrimary

	dismiss := goslack.NewButtonBlockElement(
		ActionProactiveDismiss, value,
		goslack.NewTextBlockObject(goslack.PlainTextType, "No thanks", false, false),
	)

	return []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		),
		goslack.NewActionBlock(proactiveBlockID, confirm, dismiss),
	}
}
