// Package apigate derives an API client from a backend host path and reports
// whether that client can be used yet.
package apigate

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"git.home.luguber.info/inful/registrydash/internal/fetchstate"
	"git.home.luguber.info/inful/registrydash/internal/foundation/errors"
	"git.home.luguber.info/inful/registrydash/internal/logfields"
	"git.home.luguber.info/inful/registrydash/internal/metrics"
)

// Constructor builds an API client for hostPath. It is called even when
// hostPath is empty, so it must always return a usable value.
type Constructor[T any] func(hostPath string) T

// State pairs an API client with its availability.
type State[T any] struct {
	Available bool
	API       T
	HostPath  string
	// Version increases on every recomputation.
	Version uint64
}

// Option configures a Gate.
type Option func(*options)

type options struct {
	name     string
	logger   *slog.Logger
	recorder metrics.FetchRecorder
}

// WithName labels the gate in logs and the api_available gauge.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithRecorder(r metrics.FetchRecorder) Option {
	return func(o *options) { o.recorder = r }
}

// Gate recomputes its State when the host path changes or Toggle is called.
type Gate[T any] struct {
	construct Constructor[T]
	opts      options

	mu      sync.RWMutex
	state   State[T]
	subs    map[int]func(State[T])
	nextSub int

	notifyMu   sync.Mutex
	notified   uint64
	queued     []queuedState[T]
	delivering bool
}

type queuedState[T any] struct {
	st   State[T]
	subs []func(State[T])
}

// New builds the initial state for hostPath.
func New[T any](hostPath string, construct Constructor[T], opts ...Option) *Gate[T] {
	o := options{name: "api", logger: slog.Default(), recorder: metrics.NoopRecorder{}}
	for _, opt := range opts {
		opt(&o)
	}
	g := &Gate[T]{
		construct: construct,
		opts:      o,
		subs:      make(map[int]func(State[T])),
	}
	g.mu.Lock()
	st := g.recomputeLocked(hostPath)
	g.mu.Unlock()
	g.opts.recorder.SetAPIAvailable(o.name, st.Available)
	return g
}

// State returns the current state.
func (g *Gate[T]) State() State[T] {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Available reports whether the current host path is set.
func (g *Gate[T]) Available() bool {
	return g.State().Available
}

// SetHostPath recomputes the state if hostPath differs from the current one.
// It reports whether a recomputation happened.
func (g *Gate[T]) SetHostPath(hostPath string) bool {
	g.mu.Lock()
	if hostPath == g.state.HostPath {
		g.mu.Unlock()
		return false
	}
	st, subs := g.recomputeLocked(hostPath), g.subscribersLocked()
	g.mu.Unlock()

	g.publish(st, subs)
	return true
}

// Toggle forces a recomputation with the current host path, for changes the
// gate cannot see such as rotated credentials.
func (g *Gate[T]) Toggle() State[T] {
	g.mu.Lock()
	st, subs := g.recomputeLocked(g.state.HostPath), g.subscribersLocked()
	g.mu.Unlock()

	g.publish(st, subs)
	return st
}

// Subscribe registers fn for every recomputed state.
func (g *Gate[T]) Subscribe(fn func(State[T])) (unsubscribe func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextSub
	g.nextSub++
	g.subs[id] = fn
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.subs, id)
	}
}

func (g *Gate[T]) recomputeLocked(hostPath string) State[T] {
	g.state = State[T]{
		Available: strings.TrimSpace(hostPath) != "",
		API:       g.construct(hostPath),
		HostPath:  hostPath,
		Version:   g.state.Version + 1,
	}
	return g.state
}

func (g *Gate[T]) subscribersLocked() []func(State[T]) {
	subs := make([]func(State[T]), 0, len(g.subs))
	for _, fn := range g.subs {
		subs = append(subs, fn)
	}
	return subs
}

// publish delivers st unless a newer state already went out. A publish made
// while another is delivering, for example a subscriber calling Toggle, is
// queued and delivered by that caller once the current subscribers return.
func (g *Gate[T]) publish(st State[T], subs []func(State[T])) {
	g.notifyMu.Lock()
	g.queued = append(g.queued, queuedState[T]{st: st, subs: subs})
	if g.delivering {
		g.notifyMu.Unlock()
		return
	}
	g.delivering = true
	for len(g.queued) > 0 {
		q := g.queued[0]
		g.queued = g.queued[1:]
		if q.st.Version <= g.notified {
			continue
		}
		g.notified = q.st.Version
		g.notifyMu.Unlock()

		g.opts.recorder.SetAPIAvailable(g.opts.name, q.st.Available)
		g.opts.logger.Debug("API state recomputed",
			logfields.Resource(g.opts.name),
			logfields.HostPath(q.st.HostPath),
			slog.Bool("available", q.st.Available))
		for _, fn := range q.subs {
			fn(q.st)
		}
		g.notifyMu.Lock()
	}
	g.queued = nil
	g.delivering = false
	g.notifyMu.Unlock()
}

// Call is one request made through a gated API client.
type Call[A, T any] func(ctx context.Context, api A, opts fetchstate.APIOptions) (T, error)

// Bind turns call into a producer that reads the gate's state on every
// invocation and fails with NotReady while the API is unavailable.
func Bind[A, T any](g *Gate[A], call Call[A, T]) fetchstate.Producer[T] {
	return func(ctx context.Context, opts fetchstate.APIOptions) (T, error) {
		st := g.State()
		if !st.Available {
			var zero T
			return zero, errors.NotReady("host path").WithContext("api", g.opts.name)
		}
		return call(ctx, st.API, opts)
	}
}
