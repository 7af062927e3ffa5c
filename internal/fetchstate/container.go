package fetchstate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/registrydash/internal/foundation/errors"
	"git.home.luguber.info/inful/registrydash/internal/logfields"
	"git.home.luguber.info/inful/registrydash/internal/metrics"
)

// closedCh is handed out when no run was started.
var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// run tracks one producer invocation. done closes when the run settles, is
// superseded, or the container closes, whichever happens first.
type run struct {
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (r *run) finish() {
	r.once.Do(func() {
		r.cancel()
		close(r.done)
	})
}

// Container holds the fetch state of one resource for one owner.
type Container[T any] struct {
	id           string
	cfg          Config
	log          *slog.Logger
	rec          metrics.FetchRecorder
	defaultValue T

	rootCtx    context.Context
	rootCancel context.CancelFunc

	mu        sync.Mutex
	producer  Producer[T]
	state     State[T]
	attempts  int // settled attempts since the current producer was installed
	gen       uint64
	current   *run
	lastClass errors.Class
	started   bool
	closed    bool
	pollDone  chan struct{}
	stopWatch func() bool
	seq       uint64 // bumped on every observable state change
	subs      map[uint64]func(State[T])
	nextSub   uint64

	notifyMu   sync.Mutex
	notified   uint64
	queued     []delivery[T]
	delivering bool
}

// delivery is one committed state waiting to reach subscribers.
type delivery[T any] struct {
	seq   uint64
	state State[T]
	subs  []func(State[T])
}

// New validates cfg and returns an idle container holding defaultValue. Nothing
// is fetched until Start or Refresh is called.
func New[T any](producer Producer[T], defaultValue T, cfg Config) (*Container[T], error) {
	if producer == nil {
		return nil, errors.ValidationError("producer is required").Build()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	return &Container[T]{
		id:           id,
		cfg:          cfg,
		log:          cfg.Logger.With(logfields.Resource(cfg.Name), logfields.FetchID(id)),
		rec:          cfg.Recorder,
		defaultValue: defaultValue,
		rootCtx:      ctx,
		rootCancel:   cancel,
		producer:     producer,
		state:        State[T]{Data: defaultValue},
		subs:         make(map[uint64]func(State[T])),
	}, nil
}

// ID returns the container's instance id used in logs.
func (c *Container[T]) ID() string {
	return c.id
}

// Name returns the configured resource name.
func (c *Container[T]) Name() string {
	return c.cfg.Name
}

// Start issues the first run and, when RefreshRate is set, begins polling.
// Cancelling ctx tears the container down exactly like Close. The returned
// channel closes when the first run finishes. Calling Start again is a no-op.
func (c *Container[T]) Start(ctx context.Context) <-chan struct{} {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return c.pending()
	}
	c.started = true
	if c.cfg.RefreshRate > 0 {
		c.pollDone = make(chan struct{})
	}
	c.stopWatch = context.AfterFunc(ctx, c.Close)
	c.mu.Unlock()

	done := c.Refresh()
	if c.cfg.RefreshRate > 0 {
		go c.poll()
	}
	return done
}

// Refresh starts a new generation, invalidating any run still in flight. It
// never resets Data or Loaded. The returned channel closes when this run
// settles or is itself superseded.
func (c *Container[T]) Refresh() <-chan struct{} {
	return c.RefreshTicket().Done
}

// RefreshTicket is Refresh, also reporting the generation of the started run.
// Once Done is closed, Generation() still equal to the ticket's generation
// means the run's outcome is the current state. On a closed container the
// ticket has generation 0 and Done is already closed.
func (c *Container[T]) RefreshTicket() Ticket {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Ticket{Done: closedCh}
	}
	r := c.beginLocked()
	producer := c.producer
	c.mu.Unlock()

	go c.execute(r, producer)
	return Ticket{Generation: r.gen, Done: r.done}
}

// refreshIfIdle starts a run unless one is already in flight or the container
// is closed. It reports whether a run was started.
func (c *Container[T]) refreshIfIdle() bool {
	c.mu.Lock()
	if c.closed || c.current != nil {
		c.mu.Unlock()
		return false
	}
	r := c.beginLocked()
	producer := c.producer
	c.mu.Unlock()

	go c.execute(r, producer)
	return true
}

// SetProducer replaces the producer and starts a run with it. Results of the
// old producer are discarded. Unless InitialPromisePurity is set, the state is
// reset to the default value and loaded=false first.
func (c *Container[T]) SetProducer(producer Producer[T]) <-chan struct{} {
	if producer == nil {
		return closedCh
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return closedCh
	}
	c.producer = producer
	c.attempts = 0
	var reset bool
	if !c.cfg.InitialPromisePurity {
		c.state = State[T]{Data: c.defaultValue}
		c.seq++
		reset = true
	}
	seq, snapshot, subs := c.seq, c.state, c.subscribersLocked()
	r := c.beginLocked()
	c.mu.Unlock()

	if reset {
		c.publish(seq, snapshot, subs)
	}
	go c.execute(r, producer)
	return r.done
}

// Close invalidates the current generation, cancels the in-flight run and
// stops polling. Late results are dropped. Close is idempotent and waits for
// the poller to exit.
func (c *Container[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.gen++
	if c.current != nil {
		c.current.finish()
		c.current = nil
	}
	c.rootCancel()
	pollDone, stopWatch := c.pollDone, c.stopWatch
	c.mu.Unlock()

	if stopWatch != nil {
		stopWatch()
	}
	if pollDone != nil {
		<-pollDone
	}
	c.log.Debug("Fetch state closed")
}

// State returns a snapshot of the current state.
func (c *Container[T]) State() State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Result returns the (data, loaded, error) triple.
func (c *Container[T]) Result() (T, bool, error) {
	s := c.State()
	return s.Data, s.Loaded, s.Err
}

// Generation returns the current generation.
func (c *Container[T]) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Closed reports whether Close has been called.
func (c *Container[T]) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Subscribe registers fn to receive every committed state change. Calls are
// serialized and never deliver an older state after a newer one. fn may call
// back into the container; the resulting states are delivered after fn returns.
func (c *Container[T]) Subscribe(fn func(State[T])) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// Wait blocks until no run is in flight, the container is closed, or ctx is done.
func (c *Container[T]) Wait(ctx context.Context) error {
	for {
		c.mu.Lock()
		r := c.current
		c.mu.Unlock()
		if r == nil {
			return nil
		}
		select {
		case <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Container[T]) pending() <-chan struct{} {
	if c.current != nil {
		return c.current.done
	}
	return closedCh
}

// beginLocked opens a new generation. c.mu must be held.
func (c *Container[T]) beginLocked() *run {
	if c.current != nil {
		c.current.finish()
	}
	c.gen++
	ctx, cancel := context.WithCancel(c.rootCtx)
	r := &run{gen: c.gen, ctx: ctx, cancel: cancel, done: make(chan struct{})}
	c.current = r
	return r
}

func (c *Container[T]) subscribersLocked() []func(State[T]) {
	subs := make([]func(State[T]), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	return subs
}

func (c *Container[T]) execute(r *run, producer Producer[T]) {
	defer r.finish()

	if hook := c.cfg.OnBeforeRun; hook != nil {
		hook(r.gen)
	}

	start := time.Now()
	v, err := c.call(r.ctx, producer)
	c.settle(r, v, err, time.Since(start))
}

// call invokes producer, turning a panic into an internal error.
func (c *Container[T]) call(ctx context.Context, producer Producer[T]) (v T, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.InternalError("producer panicked").
				WithContext("panic", fmt.Sprint(p)).
				Build()
		}
	}()
	return producer(ctx, c.cfg.APIOptions)
}

func (c *Container[T]) settle(r *run, v T, err error, elapsed time.Duration) {
	class := errors.Classify(err)

	c.mu.Lock()
	if c.closed || r.gen != c.gen {
		c.mu.Unlock()
		c.rec.IncFetchOutcome(c.cfg.Name, metrics.OutcomeStale)
		c.log.Debug("Discarding stale fetch result",
			logfields.Generation(r.gen),
			logfields.FetchClass(class.String()))
		return
	}

	first := c.attempts == 0
	if class != errors.ClassCommonState {
		c.attempts++
	}
	c.current = nil
	c.lastClass = class

	before := c.state
	var normalized *errors.ClassifiedError
	switch class {
	case errors.ClassNone:
		c.state = State[T]{Data: v, Loaded: true}
	case errors.ClassNotReady:
		if !first || c.cfg.LoadOnFirstNotReady {
			c.state.Loaded = true
		}
	case errors.ClassUnknown:
		normalized = errors.Normalize(err)
		c.state.Loaded = true
		c.state.Err = normalized
	}
	changed := class == errors.ClassNone || before.Loaded != c.state.Loaded || before.Err != c.state.Err
	if changed {
		c.seq++
	}
	seq, snapshot, subs := c.seq, c.state, c.subscribersLocked()
	c.mu.Unlock()

	c.record(r.gen, class, err, elapsed)
	if class == errors.ClassCommonState {
		if handler := c.cfg.OnCommonStateError; handler != nil {
			handler(err)
		} else {
			c.log.Debug("Common state error left to its owning layer", logfields.Error(err))
		}
	}
	if changed {
		c.publish(seq, snapshot, subs)
	}
	if hook := c.cfg.OnSettle; hook != nil {
		hook(Settlement{Generation: r.gen, Class: class, Err: err, Duration: elapsed})
	}
}

func (c *Container[T]) record(gen uint64, class errors.Class, err error, elapsed time.Duration) {
	var outcome metrics.OutcomeLabel
	switch class {
	case errors.ClassNone:
		outcome = metrics.OutcomeSuccess
		c.log.Debug("Fetch succeeded", logfields.Generation(gen), logfields.Duration(elapsed))
	case errors.ClassNotReady:
		outcome = metrics.OutcomeNotReady
	case errors.ClassCommonState:
		outcome = metrics.OutcomeCommonState
	default:
		outcome = metrics.OutcomeError
		c.log.Warn("Fetch failed",
			logfields.Generation(gen),
			logfields.Duration(elapsed),
			logfields.Error(err))
	}
	c.rec.ObserveFetchDuration(c.cfg.Name, outcome, elapsed)
	c.rec.IncFetchOutcome(c.cfg.Name, outcome)
}

// publish queues a snapshot for subscribers. The first caller drains the
// queue; a call made while a delivery is running, including one made from
// inside a subscriber, only enqueues and returns. Snapshots older than one
// already delivered are skipped.
func (c *Container[T]) publish(seq uint64, snapshot State[T], subs []func(State[T])) {
	c.notifyMu.Lock()
	c.queued = append(c.queued, delivery[T]{seq: seq, state: snapshot, subs: subs})
	if c.delivering {
		c.notifyMu.Unlock()
		return
	}
	c.delivering = true
	for len(c.queued) > 0 {
		d := c.queued[0]
		c.queued = c.queued[1:]
		if d.seq <= c.notified {
			continue
		}
		c.notified = d.seq
		c.notifyMu.Unlock()
		for _, fn := range d.subs {
			fn(d.state)
		}
		c.notifyMu.Lock()
	}
	c.queued = nil
	c.delivering = false
	c.notifyMu.Unlock()
}

func (c *Container[T]) lastRunFailed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastClass == errors.ClassUnknown
}
