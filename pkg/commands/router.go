// Package commands routes slash-command text through a tree of pattern-keyed
// commands. Handled synchronously on the ingress path; replies are posted
// ephemerally to the invoking user.
//
// The tree:
//
//	admin
//	├── ignore
//	│   ├── <@U…|name>   ignore a user
//	│   └── list         show the ignore list
//	└── unignore <@U…|name>
package commands

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/droverhq/drover/pkg/models"
)

// Store is the subset of the queue store the command handlers use.
type Store interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
	InsertIgnoredUser(ctx context.Context, userID string, command models.SlackCommand) error
	DeleteIgnoredUser(ctx context.Context, userID string) error
	ListIgnoredUsers(ctx context.Context) ([]models.IgnoredUser, error)
}

// Invocation carries one slash-command call through the tree.
type Invocation struct {
	Store   Store
	Command models.SlackCommand
}

// runner is a node in the command tree: either a leaf Command or a Group.
type runner interface {
	// matches reports whether token selects this node and whether the
	// token itself is an argument (pattern keys) rather than a keyword.
	matches(token string) (ok, consumeAsArg bool)
	label() string
	run(ctx context.Context, inv *Invocation, args []string) (string, error)
}

// Command is a leaf node executing a handler with a fixed argument count.
type Command struct {
	// Key matches the selecting token: an exact keyword, or a regular
	// expression for argument-like keys (user mentions).
	Key string
	// Name overrides Key in usage listings.
	Name           string
	ExpectedParams int
	Func           func(ctx context.Context, inv *Invocation, args []string) (string, error)

	pattern *regexp.Regexp
}

func (c *Command) compile() {
	c.pattern = regexp.MustCompile("^(?:" + c.Key + ")")
}

func (c *Command) matches(token string) (bool, bool) {
	if token == c.Key {
		return true, false
	}
	return c.pattern.MatchString(token), true
}

func (c *Command) label() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Key
}

func (c *Command) run(ctx context.Context, inv *Invocation, args []string) (string, error) {
	if len(args) != c.ExpectedParams {
		return fmt.Sprintf("Incorrect number of parameters given for <%s>", c.label()), nil
	}
	return c.Func(ctx, inv, args)
}

// Group routes the first token to the first matching child.
type Group struct {
	Key      string
	Name     string
	Commands []runner
}

func (g *Group) matches(token string) (bool, bool) {
	return token == g.Key, false
}

func (g *Group) label() string {
	if g.Name != "" {
		return g.Name
	}
	return g.Key
}

func (g *Group) run(ctx context.Context, inv *Invocation, args []string) (string, error) {
	var curr string
	if len(args) > 0 {
		curr, args = args[0], args[1:]
	}

	if curr != "" {
		for _, cmd := range g.Commands {
			ok, consumeAsArg := cmd.matches(curr)
			if !ok {
				continue
			}
			if consumeAsArg {
				// Pattern keys (user mentions) are arguments themselves.
				args = append([]string{curr}, args...)
			}
			return cmd.run(ctx, inv, args)
		}
	}

	usage := g.usage()
	if curr != "" {
		return fmt.Sprintf("<%s> is an invalid command.\nAvailable commands:\n%s", curr, usage), nil
	}
	return "Available commands:\n" + usage, nil
}

// usage lists child commands, with one level of sub-commands indented.
func (g *Group) usage() string {
	var lines []string
	for _, cmd := range g.Commands {
		lines = append(lines, cmd.label())
		if sub, ok := cmd.(*Group); ok {
			for _, subCmd := range sub.Commands {
				lines = append(lines, "\t\t"+sub.label()+" "+subCmd.label())
			}
		}
	}
	return strings.Join(lines, "\n")
}

// Router is the root of the command tree, built once at startup.
type Router struct {
	root  *Group
	store Store
}

// tokenize collapses whitespace and splits on spaces, keeping <...> spans
// (Slack mentions) together.
var tokenPattern = regexp.MustCompile(`<[^>]+>|\S+`)

func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.TrimSpace(text), -1)
}

// mentionPattern matches a Slack user mention, with or without the
// trailing display name.
var mentionPattern = regexp.MustCompile(`^<@([A-Z0-9]+)(?:\|([^>]*))?>$`)

// ParseUserMention extracts the user id and display name from a Slack
// mention token. The name may be empty; ok is false for non-mentions.
func ParseUserMention(token string) (userID, name string, ok bool) {
	m := mentionPattern.FindStringSubmatch(token)
	if m == nil {
		return "", "", false
	}
	userID = m[1]
	name = m[2]
	if name == "" {
		name = userID
	}
	return userID, name, true
}

// NewRouter builds the command tree over the given store.
func NewRouter(st Store) *Router {
	ignoreUser := &Command{
		Key:            `<@[A-Z0-9]+\|[^>]+>`,
		Name:           "<@username>",
		ExpectedParams: 1,
		Func:           handleIgnore,
	}
	ignoreList := &Command{
		Key:  "list",
		Func: handleIgnoreList,
	}
	unignore := &Command{
		Key:            "unignore",
		ExpectedParams: 1,
		Func:           handleUnignore,
	}
	for _, c := range []*Command{ignoreUser, ignoreList, unignore} {
		c.compile()
	}

	return &Router{
		store: st,
		root: &Group{
			Commands: []runner{
				&Group{
					Key: "admin",
					Commands: []runner{
						&Group{
							Key:      "ignore",
							Commands: []runner{ignoreUser, ignoreList},
						},
						unignore,
					},
				},
			},
		},
	}
}

// Route dispatches one slash command and returns the ephemeral reply text.
// Non-admin users are refused before any parsing.
func (r *Router) Route(ctx context.Context, cmd models.SlackCommand) (string, error) {
	admin, err := r.store.IsAdmin(ctx, cmd.UserID)
	if err != nil {
		return "", fmt.Errorf("checking admin: %w", err)
	}
	if !admin {
		return "Slash commands can only be used by admins.", nil
	}

	inv := &Invocation{Store: r.store, Command: cmd}
	return r.root.run(ctx, inv, tokenize(cmd.Text))
}

func handleIgnore(ctx context.Context, inv *Invocation, args []string) (string, error) {
	userID, name, ok := ParseUserMention(args[0])
	if !ok {
		return "Argument needs to be a Slack username", nil
	}
	if err := inv.Store.InsertIgnoredUser(ctx, userID, inv.Command); err != nil {
		return "", err
	}
	return fmt.Sprintf("Ignored <%s>", name), nil
}

func handleUnignore(ctx context.Context, inv *Invocation, args []string) (string, error) {
	userID, name, ok := ParseUserMention(args[0])
	if !ok {
		return "Argument needs to be a Slack username", nil
	}
	if err := inv.Store.DeleteIgnoredUser(ctx, userID); err != nil {
		return "", err
	}
	return fmt.Sprintf("Unignored <%s>", name), nil
}

func handleIgnoreList(ctx context.Context, inv *Invocation, _ []string) (string, error) {
	users, err := inv.Store.ListIgnoredUsers(ctx)
	if err != nil {
		return "", err
	}
	if len(users) == 0 {
		return "No users are currently ignored.", nil
	}
	var lines []string
	for _, u := range users {
		lines = append(lines, fmt.Sprintf("<@%s> (ignored since %s)", u.UserID, u.EventTS.Format("2006-01-02 15:04")))
	}
	return fmt.Sprintf("Currently ignored users (%d):\n%s", len(users), strings.Join(lines, "\n")), nil
}
