package acquire

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gometr/gometr/internal/trace"
)

// fakeFetcher returns a canned trace per call, counting fetches
type fakeFetcher struct {
	mu      sync.Mutex
	fetches []string
	err     error
}

func (f *fakeFetcher) Fetch(ctx context.Context, source string) (*trace.Trace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.fetches = append(f.fetches, source)
	return trace.New("Scope", source, []float64{0, 1}, []float64{0.5, 0.6}), nil
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetches)
}

type fakeSaver struct {
	mu    sync.Mutex
	saved []*trace.Trace
}

func (s *fakeSaver) Save(ctx context.Context, t *trace.Trace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, t)
	return nil
}

func TestSingleSweep(t *testing.T) {
	ff := &fakeFetcher{}
	e := New(ff)

	traces, err := e.Single(context.Background(), []string{"CHAN1", "CHAN2"})
	require.NoError(t, err)
	require.Len(t, traces, 2)
	assert.Equal(t, "CHAN1", traces[0].Source)
	assert.Equal(t, "CHAN2", traces[1].Source)
	assert.NotEqual(t, traces[0].ID, traces[1].ID)
}

func TestSingleSweepPersists(t *testing.T) {
	ff := &fakeFetcher{}
	fs := &fakeSaver{}
	e := New(ff, WithSaver(fs))

	_, err := e.Single(context.Background(), []string{"CHAN1"})
	require.NoError(t, err)
	assert.Len(t, fs.saved, 1)
}

func TestSingleSweepStopsOnError(t *testing.T) {
	ff := &fakeFetcher{err: assert.AnError}
	e := New(ff)

	traces, err := e.Single(context.Background(), []string{"CHAN1", "CHAN2"})
	require.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, traces)
}

func TestContinuousRun(t *testing.T) {
	ff := &fakeFetcher{}
	e := New(ff, WithInterval(time.Millisecond))

	require.NoError(t, e.Start(context.Background(), []string{"CHAN1"}))
	assert.True(t, e.Running())

	// Double start is rejected while running.
	err := e.Start(context.Background(), []string{"CHAN1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	deadline := time.After(2 * time.Second)
	for ff.count() < 3 {
		select {
		case <-deadline:
			t.Fatal("no sweeps happened")
		case <-time.After(time.Millisecond):
		}
	}

	e.Stop()
	assert.False(t, e.Running())

	// Engine can be started again after a clean stop.
	require.NoError(t, e.Start(context.Background(), []string{"CHAN1"}))
	e.Stop()
}

func TestStartRequiresSources(t *testing.T) {
	e := New(&fakeFetcher{})
	require.Error(t, e.Start(context.Background(), nil))
	assert.False(t, e.Running())
}

func TestStopIdleEngine(t *testing.T) {
	e := New(&fakeFetcher{})
	e.Stop()
	assert.False(t, e.Running())
}

func TestParentContextCancelStopsRun(t *testing.T) {
	ff := &fakeFetcher{}
	e := New(ff, WithInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, e.Start(ctx, []string{"CHAN1"}))
	cancel()

	deadline := time.After(2 * time.Second)
	for e.Running() {
		select {
		case <-deadline:
			t.Fatal("engine did not observe parent cancellation")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestSubscribe(t *testing.T) {
	ff := &fakeFetcher{}
	e := New(ff)

	ch, unsubscribe := e.Subscribe()
	defer unsubscribe()

	_, err := e.Single(context.Background(), []string{"CHAN1"})
	require.NoError(t, err)

	select {
	case tr := <-ch:
		assert.Equal(t, "CHAN1", tr.Source)
	case <-time.After(time.Second):
		t.Fatal("subscriber received nothing")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	e := New(&fakeFetcher{})
	ch, unsubscribe := e.Subscribe()
	unsubscribe()

	_, open := <-ch
	assert.False(t, open)

	// Unsubscribing twice is safe.
	unsubscribe()
}

func TestSlowSubscriberDropsTraces(t *testing.T) {
	ff := &fakeFetcher{}
	e := New(ff)

	ch, unsubscribe := e.Subscribe()
	defer unsubscribe()

	// Fill the buffer beyond capacity; Single must not block.
	sources := make([]string, 20)
	for i := range sources {
		sources[i] = "CHAN1"
	}
	done := make(chan struct{})
	go func() {
		_, _ = e.Single(context.Background(), sources)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.LessOrEqual(t, len(ch), 16)
}
