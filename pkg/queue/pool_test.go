package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droverhq/drover/pkg/models"
)

func TestStaggerOffsetsFirstWorkerImmediate(t *testing.T) {
	offsets := staggerOffsets(5, 60*time.Second)
	require.Len(t, offsets, 5)
	assert.Zero(t, offsets[0])
}

func TestStaggerOffsetsDistinctWithinInterval(t *testing.T) {
	sleep := 60 * time.Second
	offsets := staggerOffsets(5, sleep)

	seen := make(map[time.Duration]bool)
	for _, off := range offsets[1:] {
		assert.Greater(t, off, time.Duration(0))
		assert.Less(t, off, sleep)
		assert.False(t, seen[off], "offset %v handed out twice", off)
		seen[off] = true
	}
}

func TestStaggerOffsetsShortInterval(t *testing.T) {
	// Too few whole seconds for distinct offsets; falls back to uniform
	// random delays, still inside the interval.
	sleep := 2 * time.Second
	offsets := staggerOffsets(5, sleep)
	require.Len(t, offsets, 5)
	assert.Zero(t, offsets[0])
	for _, off := range offsets[1:] {
		assert.GreaterOrEqual(t, off, time.Duration(0))
		assert.Less(t, off, sleep)
	}
}

func TestPoolWakeIsNonBlocking(t *testing.T) {
	p := NewPool(fastQueueConfig(), newFakeStore(), nil)

	// Never started, so nothing drains the trigger; repeated wakes must
	// coalesce instead of blocking.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			p.Wake()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wake blocked with a full trigger")
	}
	assert.Len(t, p.trigger, 1)
}

func TestPoolProcessesWakes(t *testing.T) {
	st := newFakeStore(validEvent(1))
	d := newTestDispatcher(st, HandlerFunc(func(context.Context, *HarnessContext, *models.Event) error {
		return nil
	}))

	cfg := fastQueueConfig()
	cfg.WorkerCount = 3
	p := NewPool(cfg, st, d)
	p.Start(context.Background())
	defer p.Stop()

	p.Wake()

	waitFor(t, func() bool {
		_, ok := st.deletedProcessed(1)
		return ok
	}, "no worker picked up the wake")
}

func TestPoolWakeAfterStopIsNoOp(t *testing.T) {
	p := NewPool(fastQueueConfig(), newFakeStore(), newTestDispatcher(newFakeStore(), HandlerFunc(
		func(context.Context, *HarnessContext, *models.Event) error { return nil })))
	p.Start(context.Background())
	p.Stop()

	// Ingress can still deliver wakes while shutdown is in flight; they
	// must be dropped, not sent into the closed trigger.
	p.Wake()
	p.Wake()
}

func TestPoolWakeDuringStopDoesNotPanic(t *testing.T) {
	p := NewPool(fastQueueConfig(), newFakeStore(), newTestDispatcher(newFakeStore(), HandlerFunc(
		func(context.Context, *HarnessContext, *models.Event) error { return nil })))
	p.Start(context.Background())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			p.Wake()
		}
		close(done)
	}()

	p.Stop()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("waker did not finish")
	}
}

func TestPoolStopTerminatesWorkers(t *testing.T) {
	p := NewPool(fastQueueConfig(), newFakeStore(), newTestDispatcher(newFakeStore(), HandlerFunc(
		func(context.Context, *HarnessContext, *models.Event) error { return nil })))
	p.Start(context.Background())

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not terminate the pool")
	}

	health := p.Health()
	assert.True(t, health.Started)
	assert.Equal(t, 1, health.TotalWorkers)
}

func TestPoolStartIsIdempotent(t *testing.T) {
	p := NewPool(fastQueueConfig(), newFakeStore(), newTestDispatcher(newFakeStore(), HandlerFunc(
		func(context.Context, *HarnessContext, *models.Event) error { return nil })))
	p.Start(context.Background())
	defer p.Stop()

	p.Start(context.Background())
	assert.Equal(t, 1, p.Health().TotalWorkers)
}
