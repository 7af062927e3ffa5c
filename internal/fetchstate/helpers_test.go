package fetchstate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/registrydash/internal/metrics"
)

type outcome[T any] struct {
	value T
	err   error
}

// call is one blocked producer invocation waiting for its result.
type call[T any] struct {
	ctx    context.Context
	result chan outcome[T]
}

func (c *call[T]) resolve(v T) {
	c.result <- outcome[T]{value: v}
}

func (c *call[T]) reject(err error) {
	c.result <- outcome[T]{err: err}
}

// gate hands every producer invocation to the test, which settles it
// explicitly. The producer ignores ctx on purpose.
type gate[T any] struct {
	calls chan *call[T]
}

func newGate[T any]() *gate[T] {
	return &gate[T]{calls: make(chan *call[T], 16)}
}

func (g *gate[T]) producer(ctx context.Context, _ APIOptions) (T, error) {
	c := &call[T]{ctx: ctx, result: make(chan outcome[T], 1)}
	g.calls <- c
	o := <-c.result
	return o.value, o.err
}

func (g *gate[T]) next(t *testing.T) *call[T] {
	t.Helper()
	select {
	case c := <-g.calls:
		return c
	case <-time.After(2 * time.Second):
		require.FailNow(t, "producer was not called")
		return nil
	}
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "run did not finish")
	}
}

type countingRecorder struct {
	metrics.NoopRecorder

	mu       sync.Mutex
	outcomes map[metrics.OutcomeLabel]int
	polls    int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{outcomes: make(map[metrics.OutcomeLabel]int)}
}

func (r *countingRecorder) IncFetchOutcome(_ string, o metrics.OutcomeLabel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[o]++
}

func (r *countingRecorder) IncPollIteration(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polls++
}

func (r *countingRecorder) count(o metrics.OutcomeLabel) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcomes[o]
}
