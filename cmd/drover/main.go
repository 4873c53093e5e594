// Drover — a Slack assistant harness over a durable Postgres event queue.
// The bundled handler echoes messages back with reaction feedback; real
// deployments swap it for their own queue.Handler.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/droverhq/drover/pkg/config"
	"github.com/droverhq/drover/pkg/harness"
	"github.com/droverhq/drover/pkg/models"
	"github.com/droverhq/drover/pkg/queue"
	"github.com/droverhq/drover/pkg/version"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("could not load .env file, continuing with existing environment", "error", err)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("starting drover",
		"version", version.GitCommit,
		"workers", cfg.Queue.WorkerCount,
		"http_addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	h := harness.New(cfg, echoHandler(cfg))
	if err := h.Run(ctx); err != nil {
		slog.Error("harness stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

// echoHandler replies to each message with its own text, with reaction
// feedback mirroring the processing state: spinner while working, check on
// success, x plus an apology on failure.
func echoHandler(cfg *config.Config) queue.Handler {
	return queue.HandlerFunc(func(ctx context.Context, hctx *queue.HarnessContext, event *models.Event) error {
		mention, err := models.ParseMention(event.Event)
		if err != nil {
			return fmt.Errorf("parsing event %d: %w", event.ID, err)
		}

		ignored, err := hctx.Store.IsIgnoredUser(ctx, mention.User)
		if err != nil {
			return fmt.Errorf("checking ignore list: %w", err)
		}
		if ignored {
			slog.Info("dropping event from ignored user", "event_id", event.ID, "user", mention.User)
			return nil
		}

		if cfg.RateLimit.AllowedRequests > 0 {
			count, err := hctx.Store.CountUserRequests(ctx, mention.User, cfg.RateLimit.Interval)
			if err != nil {
				return fmt.Errorf("checking rate limit: %w", err)
			}
			if count > int64(cfg.RateLimit.AllowedRequests) {
				slog.Info("rate limited", "event_id", event.ID, "user", mention.User, "count", count)
				return hctx.Slack.PostResponse(ctx, mention.Channel, mention.ReplyTS(),
					"You've sent quite a few requests recently. Please wait a bit and try again.")
			}
		}

		hctx.Slack.AddReaction(ctx, mention.Channel, mention.TS, "spinthinking")

		err = hctx.Slack.PostResponse(ctx, mention.Channel, mention.ReplyTS(),
			"echo: "+mention.Text)
		if err != nil {
			hctx.Slack.RemoveReaction(ctx, mention.Channel, mention.TS, "spinthinking")
			hctx.Slack.AddReaction(ctx, mention.Channel, mention.TS, "x")
			apology := "I experienced an issue trying to respond. I will try again."
			if event.Attempts >= cfg.Queue.MaxAttempts {
				apology = "I give up. Sorry."
			}
			if postErr := hctx.Slack.PostResponse(ctx, mention.Channel, mention.ReplyTS(), apology); postErr != nil {
				slog.Error("failed to post apology", "event_id", event.ID, "error", postErr)
			}
			return fmt.Errorf("responding to event %d: %w", event.ID, err)
		}

		hctx.Slack.RemoveReaction(ctx, mention.Channel, mention.TS, "spinthinking")
		hctx.Slack.AddReaction(ctx, mention.Channel, mention.TS, "white_check_mark")

		slog.Info("responded to event", "event_id", event.ID)
		return nil
	})
}
