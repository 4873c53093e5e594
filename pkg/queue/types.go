// Package queue provides the worker pool and dispatch infrastructure that
// drains the durable event queue.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/droverhq/drover/pkg/models"
	droverslack "github.com/droverhq/drover/pkg/slack"
	"github.com/droverhq/drover/pkg/store"
)

// Sentinel errors for queue operations.
var (
	// ErrNoEventsAvailable indicates no claimable events are in the queue.
	ErrNoEventsAvailable = errors.New("no events available")

	// ErrHandlerFailed wraps a handler error; the claimed row stays live
	// and becomes claimable again once its lease expires.
	ErrHandlerFailed = errors.New("handler failed")
)

// EventStore is the subset of the queue store the pool and dispatcher use.
type EventStore interface {
	ClaimEvent(ctx context.Context, maxAttempts int, lease time.Duration) (*models.Event, error)
	DeleteEvent(ctx context.Context, id int64, processed bool) error
	DeleteExpiredEvents(ctx context.Context, maxAttempts int, maxAge time.Duration) (int64, error)
}

// HarnessContext carries the shared resources handed to every handler
// invocation. It is constructed once at startup and passed explicitly; the
// harness keeps no process-wide mutable state.
type HarnessContext struct {
	// Slack is the Web API client for reactions, replies, and lookups.
	Slack *droverslack.Client

	// DB is the shared connection pool for handler-owned queries.
	DB *pgxpool.Pool

	// Store exposes the queue store over DB for handlers that consult the
	// ignore list, rate limits, or history.
	Store *store.Store

	// Bot is the bot's own identity, fetched once after startup.
	Bot *models.BotInfo

	// BotToken is the raw bot token for handlers that build their own
	// clients.
	BotToken string
}

// Handler processes one claimed event. Returning nil marks the event
// processed; returning an error (or panicking) leaves the row live for
// retry after its lease expires. Handlers own all application semantics
// including idempotence across retries.
type Handler interface {
	Process(ctx context.Context, hctx *HarnessContext, event *models.Event) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, hctx *HarnessContext, event *models.Event) error

// Process implements Handler.
func (f HandlerFunc) Process(ctx context.Context, hctx *HarnessContext, event *models.Event) error {
	return f(ctx, hctx, event)
}

// ExecutionResult is the explicit outcome of one handler invocation.
// Handler errors and panics are both mapped into Err at the dispatch
// boundary.
type ExecutionResult struct {
	Err error
}

// Ok reports whether the invocation completed without error.
func (r ExecutionResult) Ok() bool {
	return r.Err == nil
}

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// WorkerHealth contains health information for a single worker.
type WorkerHealth struct {
	ID              int          `json:"id"`
	Status          WorkerStatus `json:"status"`
	EventsProcessed int          `json:"events_processed"`
	LastActivity    time.Time    `json:"last_activity"`
}

// PoolHealth contains health information for the whole pool.
type PoolHealth struct {
	Started      bool           `json:"started"`
	TotalWorkers int            `json:"total_workers"`
	WorkerStats  []WorkerHealth `json:"worker_stats"`
}
