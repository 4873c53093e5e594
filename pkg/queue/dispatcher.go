package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/droverhq/drover/pkg/config"
	"github.com/droverhq/drover/pkg/models"
)

// Dispatcher owns the claim → handle → delete sequence for single events.
type Dispatcher struct {
	store   EventStore
	handler Handler
	hctx    *HarnessContext
	cfg     *config.QueueConfig
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher invoking handler with the given
// context for every claimed event.
func NewDispatcher(store EventStore, handler Handler, hctx *HarnessContext, cfg *config.QueueConfig) *Dispatcher {
	return &Dispatcher{
		store:   store,
		handler: handler,
		hctx:    hctx,
		cfg:     cfg,
		logger:  slog.Default().With("component", "dispatcher"),
	}
}

// ProcessNext claims one event and runs it to completion.
//
// Returns ErrNoEventsAvailable when the queue is empty, ErrHandlerFailed
// (wrapped) when the handler errored — the row stays live and is retried
// after lease expiry — and nil when the event was processed or retired as
// poison.
func (d *Dispatcher) ProcessNext(ctx context.Context) error {
	event, err := d.store.ClaimEvent(ctx, d.cfg.MaxAttempts, d.cfg.Lease)
	if err != nil {
		return fmt.Errorf("claiming event: %w", err)
	}
	if event == nil {
		return ErrNoEventsAvailable
	}

	// Rows whose payload cannot be parsed would fail identically on every
	// retry; retire them immediately without invoking the handler.
	if _, err := models.ParseMention(event.Event); err != nil {
		d.logger.Error("claimed malformed event, discarding",
			"event_id", event.ID, "error", err)
		if delErr := d.store.DeleteEvent(ctx, event.ID, false); delErr != nil {
			return fmt.Errorf("discarding poison event %d: %w", event.ID, delErr)
		}
		return nil
	}

	result := d.invoke(ctx, event)
	if !result.Ok() {
		d.logger.Error("event processing failed",
			"event_id", event.ID, "attempts", event.Attempts, "error", result.Err)
		// Row stays live; the lease expiry makes it claimable again.
		return fmt.Errorf("%w: event %d: %v", ErrHandlerFailed, event.ID, result.Err)
	}

	if err := d.store.DeleteEvent(ctx, event.ID, true); err != nil {
		return fmt.Errorf("completing event %d: %w", event.ID, err)
	}

	d.logger.Info("event processed", "event_id", event.ID, "attempts", event.Attempts)
	return nil
}

// ProcessEvent invokes the handler directly on an event that is not in the
// live queue. The proactive-prompt confirmation path uses this to
// re-dispatch an archived history row in-process.
func (d *Dispatcher) ProcessEvent(ctx context.Context, event *models.Event) error {
	result := d.invoke(ctx, event)
	if !result.Ok() {
		return fmt.Errorf("%w: event %d: %v", ErrHandlerFailed, event.ID, result.Err)
	}
	return nil
}

// invoke runs the handler, mapping both returned errors and panics into an
// ExecutionResult at the outermost boundary.
func (d *Dispatcher) invoke(ctx context.Context, event *models.Event) (result ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			result = ExecutionResult{Err: fmt.Errorf("handler panic: %v", r)}
		}
	}()
	result = ExecutionResult{Err: d.handler.Process(ctx, d.hctx, event)}
	return result
}
