package apigate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/registrydash/internal/fetchstate"
	"git.home.luguber.info/inful/registrydash/internal/foundation/errors"
	"git.home.luguber.info/inful/registrydash/internal/metrics"
)

type fakeAPI struct {
	base  string
	build int
}

func (f *fakeAPI) List(context.Context) ([]string, error) {
	if f.base == "" {
		return nil, errors.NotReady("host path")
	}
	return []string{f.base + "/a"}, nil
}

type availabilityRecorder struct {
	metrics.NoopRecorder
	last map[string]bool
}

func (r *availabilityRecorder) SetAPIAvailable(api string, available bool) {
	r.last[api] = available
}

func counter() (Constructor[*fakeAPI], *int) {
	n := 0
	return func(hostPath string) *fakeAPI {
		n++
		return &fakeAPI{base: hostPath, build: n}
	}, &n
}

func TestEmptyHostPathIsUnavailable(t *testing.T) {
	ctor, _ := counter()
	g := New("", ctor)

	st := g.State()
	assert.False(t, st.Available)
	require.NotNil(t, st.API, "api is constructed even without a host path")

	_, err := st.API.List(context.Background())
	assert.True(t, errors.IsNotReady(err))
}

func TestWhitespaceHostPathIsUnavailable(t *testing.T) {
	ctor, _ := counter()
	assert.False(t, New("  ", ctor).Available())
}

func TestHostPathMakesAvailable(t *testing.T) {
	ctor, _ := counter()
	g := New("https://host", ctor)

	st := g.State()
	assert.True(t, st.Available)
	assert.Equal(t, "https://host", st.API.base)
	assert.Equal(t, uint64(1), st.Version)
}

func TestSetHostPathRecomputesOnChangeOnly(t *testing.T) {
	ctor, builds := counter()
	g := New("", ctor)

	var seen []State[*fakeAPI]
	g.Subscribe(func(st State[*fakeAPI]) { seen = append(seen, st) })

	assert.False(t, g.SetHostPath(""))
	assert.Equal(t, 1, *builds)

	assert.True(t, g.SetHostPath("https://host"))
	assert.Equal(t, 2, *builds)
	assert.True(t, g.Available())

	assert.False(t, g.SetHostPath("https://host"))
	require.Len(t, seen, 1)
	assert.True(t, seen[0].Available)
	assert.Equal(t, uint64(2), seen[0].Version)

	assert.True(t, g.SetHostPath(""))
	assert.False(t, g.Available())
}

func TestToggleRebuildsClient(t *testing.T) {
	ctor, builds := counter()
	g := New("https://host", ctor)
	before := g.State().API

	st := g.Toggle()
	assert.Equal(t, 2, *builds)
	assert.NotSame(t, before, st.API)
	assert.Equal(t, "https://host", st.HostPath)
	assert.Equal(t, uint64(2), st.Version)
}

func TestUnsubscribe(t *testing.T) {
	ctor, _ := counter()
	g := New("", ctor)
	calls := 0
	unsubscribe := g.Subscribe(func(State[*fakeAPI]) { calls++ })
	g.Toggle()
	unsubscribe()
	g.Toggle()
	assert.Equal(t, 1, calls)
}

func TestRecorderTracksAvailability(t *testing.T) {
	rec := &availabilityRecorder{last: map[string]bool{}}
	ctor, _ := counter()
	g := New("", ctor, WithName("model_registry"), WithRecorder(rec))
	assert.False(t, rec.last["model_registry"])

	g.SetHostPath("https://host")
	assert.True(t, rec.last["model_registry"])
}

func TestBindShortCircuitsWhileUnavailable(t *testing.T) {
	ctor, _ := counter()
	g := New("", ctor)
	calls := 0
	producer := Bind(g, func(ctx context.Context, api *fakeAPI, _ fetchstate.APIOptions) ([]string, error) {
		calls++
		return api.List(ctx)
	})

	_, err := producer(context.Background(), fetchstate.APIOptions{})
	assert.True(t, errors.IsNotReady(err))
	assert.Equal(t, 0, calls)

	g.SetHostPath("https://host")
	got, err := producer(context.Background(), fetchstate.APIOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://host/a"}, got)
}

func TestBindWithContainer(t *testing.T) {
	ctor, _ := counter()
	g := New("", ctor)
	c, err := fetchstate.New(Bind(g, func(ctx context.Context, api *fakeAPI, _ fetchstate.APIOptions) ([]string, error) {
		return api.List(ctx)
	}), []string(nil), fetchstate.Config{Name: "registries"})
	require.NoError(t, err)
	defer c.Close()

	waitDone(t, c.Start(context.Background()))
	st := c.State()
	assert.False(t, st.Loaded, "first not-ready keeps the container unloaded")
	assert.NoError(t, st.Err)

	g.SetHostPath("https://host")
	waitDone(t, c.Refresh())
	st = c.State()
	assert.True(t, st.Loaded)
	assert.Equal(t, []string{"https://host/a"}, st.Data)
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "run did not finish")
	}
}

func TestSubscriberMayToggle(t *testing.T) {
	ctor, builds := counter()
	g := New("", ctor)

	var versions []uint64
	g.Subscribe(func(st State[*fakeAPI]) {
		versions = append(versions, st.Version)
		if st.Version == 2 {
			assert.Equal(t, uint64(3), g.Toggle().Version)
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		g.SetHostPath("https://host")
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "Toggle from a subscriber did not return")
	}

	assert.Equal(t, []uint64{2, 3}, versions)
	assert.Equal(t, 3, *builds)
}
