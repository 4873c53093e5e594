package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droverhq/drover/pkg/config"
	"github.com/droverhq/drover/pkg/models"
)

// fakeStore is an in-memory EventStore for dispatcher and worker tests.
type fakeStore struct {
	mu      sync.Mutex
	events  []*models.Event
	deleted map[int64]bool // id -> processed flag
	swept   int
}

func newFakeStore(events ...*models.Event) *fakeStore {
	return &fakeStore{events: events, deleted: make(map[int64]bool)}
}

func (f *fakeStore) ClaimEvent(_ context.Context, _ int, _ time.Duration) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return nil, nil
	}
	ev := f.events[0]
	f.events = f.events[1:]
	return ev, nil
}

func (f *fakeStore) DeleteEvent(_ context.Context, id int64, processed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted[id] = processed
	return nil
}

func (f *fakeStore) DeleteExpiredEvents(_ context.Context, _ int, _ time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.swept++
	return 0, nil
}

func (f *fakeStore) deletedProcessed(id int64) (processed, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	processed, ok = f.deleted[id]
	return processed, ok
}

func validEvent(id int64) *models.Event {
	return &models.Event{
		ID:       id,
		EventTS:  time.Now(),
		Attempts: 1,
		Event: models.Payload{
			"type":    "app_mention",
			"user":    "U1",
			"channel": "C1",
			"ts":      "1700000000.000100",
			"text":    "hello",
		},
	}
}

func newTestDispatcher(st EventStore, handler Handler) *Dispatcher {
	return NewDispatcher(st, handler, &HarnessContext{}, config.DefaultQueueConfig())
}

func TestProcessNextSuccess(t *testing.T) {
	st := newFakeStore(validEvent(1))
	var handled int
	d := newTestDispatcher(st, HandlerFunc(func(ctx context.Context, hctx *HarnessContext, ev *models.Event) error {
		handled++
		return nil
	}))

	require.NoError(t, d.ProcessNext(context.Background()))
	assert.Equal(t, 1, handled)

	processed, ok := st.deletedProcessed(1)
	require.True(t, ok, "event should have been deleted")
	assert.True(t, processed)
}

func TestProcessNextEmptyQueue(t *testing.T) {
	d := newTestDispatcher(newFakeStore(), HandlerFunc(func(context.Context, *HarnessContext, *models.Event) error {
		t.Fatal("handler must not run on an empty queue")
		return nil
	}))

	err := d.ProcessNext(context.Background())
	assert.ErrorIs(t, err, ErrNoEventsAvailable)
}

func TestProcessNextHandlerFailureKeepsRowLive(t *testing.T) {
	st := newFakeStore(validEvent(7))
	d := newTestDispatcher(st, HandlerFunc(func(context.Context, *HarnessContext, *models.Event) error {
		return errors.New("boom")
	}))

	err := d.ProcessNext(context.Background())
	assert.ErrorIs(t, err, ErrHandlerFailed)

	_, ok := st.deletedProcessed(7)
	assert.False(t, ok, "failed event must stay in the live queue")
}

func TestProcessNextPoisonPayload(t *testing.T) {
	poison := &models.Event{ID: 9, Event: models.Payload{"type": "app_mention"}} // missing user/channel/ts
	st := newFakeStore(poison)
	d := newTestDispatcher(st, HandlerFunc(func(context.Context, *HarnessContext, *models.Event) error {
		t.Fatal("handler must not run for poison payloads")
		return nil
	}))

	require.NoError(t, d.ProcessNext(context.Background()))

	processed, ok := st.deletedProcessed(9)
	require.True(t, ok, "poison event should be retired")
	assert.False(t, processed)
}

func TestProcessNextNilPayloadIsPoison(t *testing.T) {
	st := newFakeStore(&models.Event{ID: 11, Event: nil})
	d := newTestDispatcher(st, HandlerFunc(func(context.Context, *HarnessContext, *models.Event) error {
		t.Fatal("handler must not run for nil payloads")
		return nil
	}))

	require.NoError(t, d.ProcessNext(context.Background()))

	processed, ok := st.deletedProcessed(11)
	require.True(t, ok)
	assert.False(t, processed)
}

func TestProcessNextHandlerPanicBecomesFailure(t *testing.T) {
	st := newFakeStore(validEvent(3))
	d := newTestDispatcher(st, HandlerFunc(func(context.Context, *HarnessContext, *models.Event) error {
		panic("handler exploded")
	}))

	err := d.ProcessNext(context.Background())
	require.ErrorIs(t, err, ErrHandlerFailed)
	assert.Contains(t, err.Error(), "handler exploded")

	_, ok := st.deletedProcessed(3)
	assert.False(t, ok)
}

func TestProcessEventDirectDispatch(t *testing.T) {
	st := newFakeStore()
	var got *models.Event
	d := newTestDispatcher(st, HandlerFunc(func(_ context.Context, _ *HarnessContext, ev *models.Event) error {
		got = ev
		return nil
	}))

	ev := validEvent(21)
	require.NoError(t, d.ProcessEvent(context.Background(), ev))
	assert.Equal(t, ev, got)

	// Direct dispatch never touches the queue.
	_, ok := st.deletedProcessed(21)
	assert.False(t, ok)
}

func TestProcessEventError(t *testing.T) {
	d := newTestDispatcher(newFakeStore(), HandlerFunc(func(context.Context, *HarnessContext, *models.Event) error {
		return errors.New("nope")
	}))

	err := d.ProcessEvent(context.Background(), validEvent(1))
	assert.ErrorIs(t, err, ErrHandlerFailed)
}
