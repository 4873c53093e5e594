package queue

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/droverhq/drover/pkg/config"
)

// Pool manages a fixed set of queue workers sharing one trigger channel.
//
// The trigger is a coalescing wake signal: capacity 1, extra sends dropped.
// Ingress calls Wake once per persisted event so some worker claims it
// within a second instead of waiting for the next poll; the periodic
// jittered timeout guarantees liveness when a wake is coalesced away.
type Pool struct {
	cfg        *config.QueueConfig
	store      EventStore
	dispatcher *Dispatcher
	trigger    chan struct{}
	stopOnce   sync.Once

	mu      sync.RWMutex
	workers []*Worker
	started bool
	stopped bool
}

// NewPool creates a worker pool draining the store through dispatcher.
func NewPool(cfg *config.QueueConfig, store EventStore, dispatcher *Dispatcher) *Pool {
	return &Pool{
		cfg:        cfg,
		store:      store,
		dispatcher: dispatcher,
		trigger:    make(chan struct{}, 1),
		workers:    make([]*Worker, 0, cfg.WorkerCount),
	}
}

// Start spawns the worker goroutines with staggered initial offsets:
// worker 0 starts immediately, the rest spread over distinct offsets within
// the base poll interval to avoid synchronized wake storms. Safe to call
// once; subsequent calls are no-ops.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		slog.Warn("worker pool already started, ignoring duplicate Start call")
		return
	}
	p.started = true

	slog.Info("starting worker pool", "worker_count", p.cfg.WorkerCount)

	offsets := staggerOffsets(p.cfg.WorkerCount, p.cfg.WorkerSleep)
	for i := 0; i < p.cfg.WorkerCount; i++ {
		worker := NewWorker(i, p.cfg, p.store, p.dispatcher, p.trigger, offsets[i])
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}
	p.mu.Unlock()

	slog.Info("worker pool started")
}

// Wake pokes one worker to run a claim cycle. Non-blocking: when a wake is
// already pending the send is dropped, which is safe because any pending
// wake drains the whole batch. After Stop it is a no-op; the read lock
// holds off the trigger close so the send never races it.
func (p *Pool) Wake() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return
	}
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Stop closes the trigger and waits for all workers to finish their
// current cycle. Safe to call while ingress is still delivering wakes.
func (p *Pool) Stop() {
	slog.Info("stopping worker pool")
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
		close(p.trigger)
	})
	p.mu.RLock()
	workers := p.workers
	p.mu.RUnlock()
	for _, worker := range workers {
		worker.Stop()
	}
	slog.Info("worker pool stopped")
}

// Health returns the pool's current health snapshot.
func (p *Pool) Health() *PoolHealth {
	p.mu.RLock()
	started := p.started
	workers := make([]*Worker, len(p.workers))
	copy(workers, p.workers)
	p.mu.RUnlock()

	stats := make([]WorkerHealth, len(workers))
	for i, worker := range workers {
		stats[i] = worker.Health()
	}
	return &PoolHealth{
		Started:      started,
		TotalWorkers: len(workers),
		WorkerStats:  stats,
	}
}

// staggerOffsets returns n initial delays: 0 for the first worker and
// distinct random whole-second offsets in (0, sleep) for the rest. When the
// interval is too short to hand out distinct offsets it falls back to
// uniform random ones.
func staggerOffsets(n int, sleep time.Duration) []time.Duration {
	offsets := make([]time.Duration, 0, n)
	offsets = append(offsets, 0)

	span := int(sleep / time.Second)
	if span-1 >= n-1 {
		// Sample n-1 distinct values from 1..span-1.
		perm := rand.Perm(span - 1)
		for _, v := range perm[:n-1] {
			offsets = append(offsets, time.Duration(v+1)*time.Second)
		}
	} else {
		for i := 1; i < n; i++ {
			offsets = append(offsets, time.Duration(rand.Int64N(int64(sleep))))
		}
	}
	return offsets
}
