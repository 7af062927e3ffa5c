package fetchstate

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/registrydash/internal/foundation/errors"
	"git.home.luguber.info/inful/registrydash/internal/metrics"
)

func newContainer[T any](t *testing.T, producer Producer[T], def T, cfg Config) *Container[T] {
	t.Helper()
	c, err := New(producer, def, cfg)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestNewValidates(t *testing.T) {
	_, err := New[int](nil, 0, Config{})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))

	_, err = New(func(context.Context, APIOptions) (int, error) { return 1, nil }, 0, Config{RefreshRate: -time.Second})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestInitialState(t *testing.T) {
	g := newGate[[]string]()
	c := newContainer(t, g.producer, []string{}, Config{Name: "models"})

	data, loaded, err := c.Result()
	assert.Equal(t, []string{}, data)
	assert.False(t, loaded)
	assert.NoError(t, err)
	assert.Equal(t, uint64(0), c.Generation())
	assert.Equal(t, "models", c.Name())
	assert.NotEmpty(t, c.ID())
}

func TestSuccessCommits(t *testing.T) {
	g := newGate[string]()
	c := newContainer(t, g.producer, "default", Config{})

	done := c.Start(context.Background())
	g.next(t).resolve("registry-a")
	waitDone(t, done)

	s := c.State()
	assert.Equal(t, "registry-a", s.Data)
	assert.True(t, s.Loaded)
	assert.NoError(t, s.Err)
	assert.Equal(t, uint64(1), c.Generation())
}

func TestLatestIntentWins(t *testing.T) {
	g := newGate[string]()
	rec := newCountingRecorder()
	c := newContainer(t, g.producer, "", Config{Recorder: rec})

	doneA := c.Start(context.Background())
	a := g.next(t)
	doneB := c.Refresh()
	b := g.next(t)

	// A is superseded before it settles.
	waitDone(t, doneA)
	assert.ErrorIs(t, a.ctx.Err(), context.Canceled)

	b.resolve("B")
	waitDone(t, doneB)
	a.resolve("A")

	require.Eventually(t, func() bool { return rec.count(metrics.OutcomeStale) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "B", c.State().Data)
	assert.Equal(t, 1, rec.count(metrics.OutcomeSuccess))
}

func TestLatestIntentWinsOnRejection(t *testing.T) {
	g := newGate[string]()
	rec := newCountingRecorder()
	c := newContainer(t, g.producer, "", Config{Recorder: rec})

	c.Start(context.Background())
	a := g.next(t)
	doneB := c.Refresh()
	b := g.next(t)

	b.resolve("B")
	waitDone(t, doneB)
	a.reject(fmt.Errorf("boom"))

	require.Eventually(t, func() bool { return rec.count(metrics.OutcomeStale) == 1 }, time.Second, 5*time.Millisecond)
	s := c.State()
	assert.Equal(t, "B", s.Data)
	assert.NoError(t, s.Err)
}

func TestRapidRefreshesOnlyLastObservable(t *testing.T) {
	g := newGate[int]()
	rec := newCountingRecorder()
	c := newContainer(t, g.producer, 0, Config{Recorder: rec})

	var observed []int
	var mu sync.Mutex
	c.Subscribe(func(s State[int]) {
		mu.Lock()
		defer mu.Unlock()
		observed = append(observed, s.Data)
	})

	calls := make([]*call[int], 0, 5)
	var last <-chan struct{}
	for i := 0; i < 5; i++ {
		last = c.Refresh()
		calls = append(calls, g.next(t))
	}
	// settle in reverse order: the newest first
	for i := len(calls) - 1; i >= 0; i-- {
		calls[i].resolve(i + 1)
	}
	waitDone(t, last)
	require.Eventually(t, func() bool { return rec.count(metrics.OutcomeStale) == 4 }, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{5}, observed)
	assert.Equal(t, 5, c.State().Data)
	assert.Equal(t, uint64(5), c.Generation())
}

func TestLoadedNeverReverts(t *testing.T) {
	g := newGate[string]()
	c := newContainer(t, g.producer, "", Config{})

	done := c.Start(context.Background())
	g.next(t).resolve("v1")
	waitDone(t, done)
	require.True(t, c.State().Loaded)

	done = c.Refresh()
	assert.True(t, c.State().Loaded, "refresh must not flicker back to loading")
	assert.Equal(t, "v1", c.State().Data)
	g.next(t).reject(errors.NotReady("host path"))
	waitDone(t, done)
	assert.True(t, c.State().Loaded)

	done = c.Refresh()
	g.next(t).reject(fmt.Errorf("dial tcp: connection refused"))
	waitDone(t, done)
	s := c.State()
	assert.True(t, s.Loaded)
	assert.Equal(t, "v1", s.Data, "data keeps the last good value")
	require.Error(t, s.Err)

	done = c.Refresh()
	g.next(t).resolve("v2")
	waitDone(t, done)
	s = c.State()
	assert.True(t, s.Loaded)
	assert.Equal(t, "v2", s.Data)
	assert.NoError(t, s.Err)
}

func TestUnknownErrorIsNormalized(t *testing.T) {
	g := newGate[string]()
	c := newContainer(t, g.producer, "", Config{})

	raw := fmt.Errorf("pq: relation \"secret_table\" does not exist")
	done := c.Start(context.Background())
	g.next(t).reject(raw)
	waitDone(t, done)

	s := c.State()
	assert.True(t, s.Loaded)
	require.Error(t, s.Err)
	classified, ok := errors.AsClassified(s.Err)
	require.True(t, ok)
	assert.Equal(t, errors.UnknownErrorMessage, classified.UserMessage())
	assert.NotContains(t, classified.UserMessage(), "secret_table")
	assert.ErrorIs(t, s.Err, raw, "original detail stays reachable for logging")
}

func TestProducerPanicBecomesError(t *testing.T) {
	c := newContainer(t, func(context.Context, APIOptions) (int, error) {
		panic("nil map")
	}, 7, Config{})

	waitDone(t, c.Start(context.Background()))
	s := c.State()
	assert.True(t, s.Loaded)
	assert.Equal(t, 7, s.Data)
	assert.True(t, errors.HasCategory(s.Err, errors.CategoryInternal))
}

func TestFirstNotReadyStaysUnloaded(t *testing.T) {
	g := newGate[string]()
	c := newContainer(t, g.producer, "", Config{})

	done := c.Start(context.Background())
	g.next(t).reject(errors.NotReady("model id"))
	waitDone(t, done)
	s := c.State()
	assert.False(t, s.Loaded)
	assert.NoError(t, s.Err)

	done = c.Refresh()
	g.next(t).reject(errors.NotReady("model id"))
	waitDone(t, done)
	s = c.State()
	assert.True(t, s.Loaded, "a later not-ready settles the container")
	assert.NoError(t, s.Err)
}

func TestLoadOnFirstNotReady(t *testing.T) {
	g := newGate[string]()
	c := newContainer(t, g.producer, "", Config{LoadOnFirstNotReady: true})

	done := c.Start(context.Background())
	g.next(t).reject(fmt.Errorf("listing: %w", errors.NotReady("host path")))
	waitDone(t, done)
	s := c.State()
	assert.True(t, s.Loaded)
	assert.NoError(t, s.Err)
}

func TestCommonStateErrorBypassesState(t *testing.T) {
	g := newGate[string]()
	var handled []error
	var mu sync.Mutex
	c := newContainer(t, g.producer, "", Config{
		OnCommonStateError: func(err error) {
			mu.Lock()
			defer mu.Unlock()
			handled = append(handled, err)
		},
	})

	authErr := errors.AuthError("token expired").Build()
	done := c.Start(context.Background())
	g.next(t).reject(authErr)
	waitDone(t, done)

	s := c.State()
	assert.False(t, s.Loaded)
	assert.NoError(t, s.Err)

	mu.Lock()
	require.Len(t, handled, 1)
	assert.Same(t, authErr, handled[0], "propagated unchanged")
	mu.Unlock()

	// a common state error after load keeps loaded and the old data
	done = c.Refresh()
	g.next(t).resolve("ok")
	waitDone(t, done)
	done = c.Refresh()
	g.next(t).reject(errors.WrapError(fmt.Errorf("disk full"), errors.CategoryEventStore, "event store unavailable").Build())
	waitDone(t, done)
	s = c.State()
	assert.True(t, s.Loaded)
	assert.Equal(t, "ok", s.Data)
	assert.NoError(t, s.Err)
}

func TestCommonStateDoesNotCountAsAttempt(t *testing.T) {
	g := newGate[string]()
	c := newContainer(t, g.producer, "", Config{})

	done := c.Start(context.Background())
	g.next(t).reject(errors.WrapError(fmt.Errorf("x"), errors.CategoryCommonState, "owned elsewhere").Build())
	waitDone(t, done)

	done = c.Refresh()
	g.next(t).reject(errors.NotReady("host path"))
	waitDone(t, done)
	assert.False(t, c.State().Loaded, "first counted attempt was not ready")
}

func TestCloseDropsLateResult(t *testing.T) {
	g := newGate[string]()
	rec := newCountingRecorder()
	c := newContainer(t, g.producer, "default", Config{Recorder: rec})

	done := c.Start(context.Background())
	pending := g.next(t)
	c.Close()
	waitDone(t, done)
	assert.True(t, c.Closed())
	assert.ErrorIs(t, pending.ctx.Err(), context.Canceled)

	pending.resolve("late")
	require.Eventually(t, func() bool { return rec.count(metrics.OutcomeStale) == 1 }, time.Second, 5*time.Millisecond)

	s := c.State()
	assert.Equal(t, "default", s.Data)
	assert.False(t, s.Loaded)

	// a closed container ignores further intents
	waitDone(t, c.Refresh())
	c.Close()
	assert.Equal(t, "default", c.State().Data)
}

func TestStartContextCancellationClosesContainer(t *testing.T) {
	g := newGate[string]()
	c := newContainer(t, g.producer, "", Config{})

	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	pending := g.next(t)
	cancel()

	require.Eventually(t, c.Closed, time.Second, 5*time.Millisecond)
	pending.resolve("late")
	assert.False(t, c.State().Loaded)
}

func TestStartTwiceIsNoop(t *testing.T) {
	g := newGate[string]()
	c := newContainer(t, g.producer, "", Config{})

	first := c.Start(context.Background())
	second := c.Start(context.Background())
	g.next(t).resolve("x")
	waitDone(t, first)
	waitDone(t, second)
	assert.Equal(t, uint64(1), c.Generation())
	assert.Empty(t, g.calls)
}

func TestSetProducerResetsState(t *testing.T) {
	g := newGate[string]()
	c := newContainer(t, g.producer, "default", Config{})

	done := c.Start(context.Background())
	g.next(t).resolve("from-a")
	waitDone(t, done)

	other := newGate[string]()
	done = c.SetProducer(other.producer)
	s := c.State()
	assert.Equal(t, "default", s.Data)
	assert.False(t, s.Loaded)

	other.next(t).resolve("from-b")
	waitDone(t, done)
	assert.Equal(t, "from-b", c.State().Data)
}

func TestSetProducerWithPurityKeepsState(t *testing.T) {
	g := newGate[string]()
	c := newContainer(t, g.producer, "default", Config{InitialPromisePurity: true})

	done := c.Start(context.Background())
	g.next(t).resolve("from-a")
	waitDone(t, done)

	other := newGate[string]()
	done = c.SetProducer(other.producer)
	s := c.State()
	assert.Equal(t, "from-a", s.Data)
	assert.True(t, s.Loaded)

	other.next(t).resolve("from-b")
	waitDone(t, done)
	assert.Equal(t, "from-b", c.State().Data)
}

func TestSetProducerDiscardsOldProducerResult(t *testing.T) {
	g := newGate[string]()
	rec := newCountingRecorder()
	c := newContainer(t, g.producer, "", Config{Recorder: rec})

	c.Start(context.Background())
	old := g.next(t)

	other := newGate[string]()
	done := c.SetProducer(other.producer)
	other.next(t).resolve("new")
	waitDone(t, done)
	old.resolve("old")

	require.Eventually(t, func() bool { return rec.count(metrics.OutcomeStale) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "new", c.State().Data)
}

func TestOnBeforeRunAndOptions(t *testing.T) {
	var gens []uint64
	var mu sync.Mutex
	var seen APIOptions
	c := newContainer(t, func(_ context.Context, opts APIOptions) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		seen = opts
		return 1, nil
	}, 0, Config{
		APIOptions: APIOptions{DryRun: true, RawBody: true},
		OnBeforeRun: func(gen uint64) {
			mu.Lock()
			defer mu.Unlock()
			gens = append(gens, gen)
		},
	})

	waitDone(t, c.Start(context.Background()))
	waitDone(t, c.Refresh())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{1, 2}, gens)
	assert.Equal(t, APIOptions{DryRun: true, RawBody: true}, seen)
}

func TestWait(t *testing.T) {
	g := newGate[string]()
	c := newContainer(t, g.producer, "", Config{})

	require.NoError(t, c.Wait(context.Background()), "idle container")

	c.Start(context.Background())
	pending := g.next(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Wait(ctx), context.DeadlineExceeded)

	pending.resolve("x")
	require.NoError(t, c.Wait(context.Background()))
	assert.Equal(t, "x", c.State().Data)
}

func TestUnsubscribe(t *testing.T) {
	c := newContainer(t, func(context.Context, APIOptions) (int, error) { return 1, nil }, 0, Config{})

	var calls int
	var mu sync.Mutex
	unsubscribe := c.Subscribe(func(State[int]) {
		mu.Lock()
		defer mu.Unlock()
		calls++
	})
	waitDone(t, c.Refresh())
	unsubscribe()
	waitDone(t, c.Refresh())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestOnSettleReportsCommittedRunsOnly(t *testing.T) {
	g := newGate[int]()
	var mu sync.Mutex
	var settled []Settlement
	c := newContainer(t, g.producer, 0, Config{
		OnSettle: func(s Settlement) {
			mu.Lock()
			defer mu.Unlock()
			settled = append(settled, s)
		},
	})

	c.Start(context.Background())
	stale := g.next(t)
	done := c.Refresh()
	current := g.next(t)

	stale.resolve(1)
	current.reject(errors.NotReady("model id"))
	waitDone(t, done)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, settled, 1)
	assert.Equal(t, uint64(2), settled[0].Generation)
	assert.Equal(t, errors.ClassNotReady, settled[0].Class)
	assert.True(t, errors.IsNotReady(settled[0].Err))
}

func TestSubscriberMaySwapProducer(t *testing.T) {
	c := newContainer(t, func(context.Context, APIOptions) (int, error) { return 1, nil }, 0, Config{})

	var mu sync.Mutex
	var observed []int
	swapped := make(chan (<-chan struct{}), 1)
	var once sync.Once
	c.Subscribe(func(s State[int]) {
		mu.Lock()
		observed = append(observed, s.Data)
		mu.Unlock()
		once.Do(func() {
			swapped <- c.SetProducer(func(context.Context, APIOptions) (int, error) { return 2, nil })
		})
	})

	waitDone(t, c.Refresh())
	select {
	case done := <-swapped:
		waitDone(t, done)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "SetProducer from a subscriber did not return")
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(observed) == 3
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 0, 2}, observed, "the reset and the new result follow the state that triggered the swap")
	assert.Equal(t, 2, c.State().Data)
}

func TestRefreshTicketTracksItsGeneration(t *testing.T) {
	g := newGate[int]()
	c := newContainer(t, g.producer, 0, Config{})

	first := c.RefreshTicket()
	firstCall := g.next(t)
	second := c.RefreshTicket()
	waitDone(t, first.Done)
	assert.NotEqual(t, first.Generation, c.Generation(), "the first run was superseded")

	firstCall.resolve(1)
	g.next(t).resolve(2)
	waitDone(t, second.Done)
	assert.Equal(t, second.Generation, c.Generation())
	assert.Equal(t, 2, c.State().Data)

	c.Close()
	closed := c.RefreshTicket()
	waitDone(t, closed.Done)
	assert.Zero(t, closed.Generation)
}
