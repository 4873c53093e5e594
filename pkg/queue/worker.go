package queue

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/droverhq/drover/pkg/config"
)

// maxBatchSize bounds a single wake's claim/dispatch iterations so one busy
// worker cannot run uninterrupted indefinitely.
const maxBatchSize = 20

// Worker is a single long-lived queue worker. It wakes on the shared
// trigger or on a jittered timeout, drains up to maxBatchSize events, then
// sweeps expired rows.
type Worker struct {
	id         int
	cfg        *config.QueueConfig
	store      EventStore
	dispatcher *Dispatcher
	trigger    <-chan struct{}
	initial    time.Duration
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup

	// Health tracking
	mu              sync.RWMutex
	status          WorkerStatus
	eventsProcessed int
	lastActivity    time.Time
}

// NewWorker creates a queue worker. initial staggers the worker's first
// cycle to spread polling across the base interval.
func NewWorker(id int, cfg *config.QueueConfig, store EventStore, dispatcher *Dispatcher, trigger <-chan struct{}, initial time.Duration) *Worker {
	return &Worker{
		id:           id,
		cfg:          cfg,
		store:        store,
		dispatcher:   dispatcher,
		trigger:      trigger,
		initial:      initial,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish. The in-flight
// claim/dispatch completes; it is safe to call Stop multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health status.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:              w.id,
		Status:          w.status,
		EventsProcessed: w.eventsProcessed,
		LastActivity:    w.lastActivity,
	}
}

// run is the main worker loop.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id)

	if w.initial > 0 {
		log.Info("worker initial sleep", "initial_sleep", w.initial)
		if !w.sleep(ctx, w.initial) {
			return
		}
	}

	log.Info("worker started")
	for {
		timer := time.NewTimer(w.sleepInterval())
		select {
		case <-w.stopCh:
			timer.Stop()
			log.Info("worker shutting down")
			return
		case <-ctx.Done():
			timer.Stop()
			log.Info("context cancelled, worker shutting down")
			return
		case _, ok := <-w.trigger:
			timer.Stop()
			if !ok {
				log.Info("trigger closed, worker shutting down")
				return
			}
			w.runCycle(ctx, log, "triggered")
		case <-timer.C:
			w.runCycle(ctx, log, "timeout")
		}
	}
}

// runCycle drains a batch of events and sweeps expired rows.
func (w *Worker) runCycle(ctx context.Context, log *slog.Logger, reason string) {
	log.Debug("worker run", "reason", reason)
	w.setStatus(WorkerStatusWorking)
	defer w.setStatus(WorkerStatusIdle)

	w.processEvents(ctx, log)

	retired, err := w.store.DeleteExpiredEvents(ctx, w.cfg.MaxAttempts, w.cfg.MaxAge)
	if err != nil {
		log.Error("failed to sweep expired events", "error", err)
	} else if retired > 0 {
		log.Info("retired expired events", "count", retired)
	}
}

// processEvents claims and dispatches up to maxBatchSize events, stopping
// early when the queue is empty or a handler fails.
func (w *Worker) processEvents(ctx context.Context, log *slog.Logger) {
	for i := 0; i < maxBatchSize; i++ {
		err := w.dispatcher.ProcessNext(ctx)
		switch {
		case err == nil:
			w.mu.Lock()
			w.eventsProcessed++
			w.mu.Unlock()
		case errors.Is(err, ErrNoEventsAvailable):
			log.Debug("no event found")
			return
		case errors.Is(err, ErrHandlerFailed):
			// Stop working for now; the periodic timeout retries later.
			return
		default:
			log.Error("error processing event", "error", err)
			return
		}
	}
}

// sleepInterval returns the base poll interval with uniform jitter drawn
// from [MinJitter, MaxJitter).
func (w *Worker) sleepInterval() time.Duration {
	span := w.cfg.MaxJitter - w.cfg.MinJitter
	if span <= 0 {
		return w.cfg.WorkerSleep
	}
	jitter := w.cfg.MinJitter + time.Duration(rand.Int64N(int64(span)))
	return w.cfg.WorkerSleep + jitter
}

// sleep waits for d, returning false if stop or cancellation arrived first.
func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-w.stopCh:
		return false
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// setStatus updates the worker's health tracking state.
func (w *Worker) setStatus(status WorkerStatus) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.lastActivity = time.Now()
}
