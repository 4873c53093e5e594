// Package harness wires the full application: database, queue store, worker
// pool, Slack clients, command router, Socket Mode ingress, and the optional
// health API. Callers hand it a Handler and a Config and call Run.
package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/droverhq/drover/pkg/api"
	"github.com/droverhq/drover/pkg/commands"
	"github.com/droverhq/drover/pkg/config"
	"github.com/droverhq/drover/pkg/database"
	"github.com/droverhq/drover/pkg/ingress"
	"github.com/droverhq/drover/pkg/models"
	"github.com/droverhq/drover/pkg/queue"
	droverslack "github.com/droverhq/drover/pkg/slack"
	"github.com/droverhq/drover/pkg/store"
)

// Harness runs the event-dispatch loop for one Handler.
type Harness struct {
	cfg     *config.Config
	handler queue.Handler
	logger  *slog.Logger
}

// New creates a harness for the given configuration and handler. The
// configuration must already be validated.
func New(cfg *config.Config, handler queue.Handler) *Harness {
	return &Harness{
		cfg:     cfg,
		handler: handler,
		logger:  slog.Default().With("component", "harness"),
	}
}

// Run connects everything and blocks until ctx is cancelled, then shuts
// down in reverse order: ingress stops feeding, workers drain, HTTP and the
// pool close last.
func (h *Harness) Run(ctx context.Context) error {
	// Workers and ingress each need a connection; keep headroom for
	// handler-owned queries.
	dbCfg, err := database.LoadConfigFromEnv(h.cfg.Queue.WorkerCount + 2)
	if err != nil {
		return fmt.Errorf("loading database config: %w", err)
	}

	db, err := database.NewClient(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()
	h.logger.Info("connected to PostgreSQL")

	st := store.New(db.Pool())

	slackClient := droverslack.NewClient(h.cfg.Slack.BotToken, h.cfg.Slack.AppToken)
	bot, err := slackClient.FetchBotInfo(ctx)
	if err != nil {
		return fmt.Errorf("resolving bot identity: %w", err)
	}
	h.logger.Info("bot identity resolved", "bot_id", bot.BotID, "user_id", bot.UserID, "name", bot.Name)

	hctx := &queue.HarnessContext{
		Slack:    slackClient,
		DB:       db.Pool(),
		Store:    st,
		Bot:      bot,
		BotToken: h.cfg.Slack.BotToken,
	}

	dispatcher := queue.NewDispatcher(st, h.handler, hctx, &h.cfg.Queue)
	pool := queue.NewPool(&h.cfg.Queue, st, dispatcher)
	router := commands.NewRouter(st)
	ing := ingress.New(slackClient, st, dispatcher, pool, router, &h.cfg.Slack, bot)

	pool.Start(ctx)
	defer pool.Stop()

	httpErrCh := make(chan error, 1)
	if h.cfg.HTTPAddr != "" {
		server := api.NewServer(db, pool, st)
		go func() {
			h.logger.Info("health API listening", "addr", h.cfg.HTTPAddr)
			if err := server.Start(h.cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				httpErrCh <- err
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				h.logger.Error("health API shutdown error", "error", err)
			}
		}()
	}

	ingErrCh := make(chan error, 1)
	go func() {
		ingErrCh <- ing.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		h.logger.Info("shutting down")
		return nil
	case err := <-ingErrCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("ingress stopped: %w", err)
		}
		return nil
	case err := <-httpErrCh:
		return fmt.Errorf("health API stopped: %w", err)
	}
}

// Handler re-exports the queue handler contract so applications embedding
// the harness only import this package.
type Handler = queue.Handler

// HandlerFunc adapts a function to Handler.
type HandlerFunc = queue.HandlerFunc

// HarnessContext carries the shared resources given to handlers.
type HarnessContext = queue.HarnessContext

// Event is one claimed queue row.
type Event = models.Event
