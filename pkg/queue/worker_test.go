package queue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droverhq/drover/pkg/config"
	"github.com/droverhq/drover/pkg/models"
)

func fastQueueConfig() *config.QueueConfig {
	return &config.QueueConfig{
		WorkerCount: 1,
		WorkerSleep: time.Hour, // timers never fire; tests drive the trigger
		MinJitter:   -time.Minute,
		MaxJitter:   time.Minute,
		MaxAttempts: 3,
		MaxAge:      time.Hour,
		Lease:       10 * time.Minute,
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestSleepIntervalStaysWithinJitterBounds(t *testing.T) {
	cfg := &config.QueueConfig{
		WorkerSleep: 60 * time.Second,
		MinJitter:   -15 * time.Second,
		MaxJitter:   15 * time.Second,
	}
	w := NewWorker(0, cfg, newFakeStore(), nil, nil, 0)

	for i := 0; i < 1000; i++ {
		d := w.sleepInterval()
		assert.GreaterOrEqual(t, d, 45*time.Second)
		assert.Less(t, d, 75*time.Second)
	}
}

func TestSleepIntervalWithoutJitterSpan(t *testing.T) {
	cfg := &config.QueueConfig{WorkerSleep: 30 * time.Second}
	w := NewWorker(0, cfg, newFakeStore(), nil, nil, 0)
	assert.Equal(t, 30*time.Second, w.sleepInterval())
}

func TestWorkerDrainsQueueOnTrigger(t *testing.T) {
	st := newFakeStore(validEvent(1), validEvent(2), validEvent(3))
	d := newTestDispatcher(st, HandlerFunc(func(context.Context, *HarnessContext, *models.Event) error {
		return nil
	}))

	trigger := make(chan struct{}, 1)
	w := NewWorker(0, fastQueueConfig(), st, d, trigger, 0)
	w.Start(context.Background())
	defer w.Stop()

	trigger <- struct{}{}

	waitFor(t, func() bool {
		_, ok1 := st.deletedProcessed(1)
		_, ok2 := st.deletedProcessed(2)
		_, ok3 := st.deletedProcessed(3)
		return ok1 && ok2 && ok3
	}, "worker did not drain the queue after a trigger")

	assert.Equal(t, 3, w.Health().EventsProcessed)
}

func TestWorkerSweepsAfterCycle(t *testing.T) {
	st := newFakeStore()
	d := newTestDispatcher(st, HandlerFunc(func(context.Context, *HarnessContext, *models.Event) error {
		return nil
	}))

	trigger := make(chan struct{}, 1)
	w := NewWorker(0, fastQueueConfig(), st, d, trigger, 0)
	w.Start(context.Background())
	defer w.Stop()

	trigger <- struct{}{}

	waitFor(t, func() bool {
		st.mu.Lock()
		defer st.mu.Unlock()
		return st.swept > 0
	}, "worker did not sweep expired events")
}

func TestWorkerExitsOnClosedTrigger(t *testing.T) {
	trigger := make(chan struct{})
	w := NewWorker(0, fastQueueConfig(), newFakeStore(), nil, trigger, 0)
	w.Start(context.Background())

	close(trigger)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit after trigger close")
	}
}

func TestWorkerStopDuringInitialSleep(t *testing.T) {
	w := NewWorker(0, fastQueueConfig(), newFakeStore(), nil, make(chan struct{}), time.Hour)
	w.Start(context.Background())

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not interrupt the initial sleep")
	}
}

func TestWorkerStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(0, fastQueueConfig(), newFakeStore(), nil, make(chan struct{}), 0)
	w.Start(ctx)

	cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit on context cancellation")
	}
}

func TestWorkerStopsBatchOnHandlerFailure(t *testing.T) {
	st := newFakeStore(validEvent(1), validEvent(2))
	var calls atomic.Int32
	d := newTestDispatcher(st, HandlerFunc(func(context.Context, *HarnessContext, *models.Event) error {
		calls.Add(1)
		return assert.AnError
	}))

	trigger := make(chan struct{}, 1)
	w := NewWorker(0, fastQueueConfig(), st, d, trigger, 0)
	w.Start(context.Background())
	defer w.Stop()

	trigger <- struct{}{}

	waitFor(t, func() bool {
		st.mu.Lock()
		defer st.mu.Unlock()
		return st.swept > 0
	}, "cycle did not finish")

	// The batch stops at the first failure; event 2 is left for a later
	// cycle after the lease expires.
	require.Equal(t, int32(1), calls.Load())
	assert.Zero(t, w.Health().EventsProcessed)
}
