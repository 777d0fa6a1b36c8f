// Package acquire runs waveform acquisition sweeps against a live
// instrument: single-shot captures and a continuous loop that publishes
// traces to subscribers and optionally persists them.
package acquire

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gometr/gometr/internal/trace"
)

// Fetcher captures one trace from one source. Implementations talk SCPI;
// tests substitute fakes.
type Fetcher interface {
	Fetch(ctx context.Context, source string) (*trace.Trace, error)
}

// Saver persists captured traces. *store.Store satisfies this.
type Saver interface {
	Save(ctx context.Context, t *trace.Trace) error
}

// Engine coordinates acquisition sweeps. Run state is a context plus an
// atomic flag: Start and Stop are safe to call from any goroutine, and a
// sweep in flight observes cancellation between source fetches.
type Engine struct {
	fetcher  Fetcher
	saver    Saver // nil disables persistence
	interval time.Duration
	logger   *zap.Logger

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}

	mu      sync.Mutex
	subs    map[int]chan *trace.Trace
	nextSub int
}

// Option configures an Engine
type Option func(*Engine)

// WithInterval sets the delay between continuous sweeps. Default 1s.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) { e.interval = d }
}

// WithSaver enables persistence of every captured trace
func WithSaver(s Saver) Option {
	return func(e *Engine) { e.saver = s }
}

// WithLogger attaches a logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New creates an engine around a fetcher
func New(fetcher Fetcher, opts ...Option) *Engine {
	e := &Engine{
		fetcher:  fetcher,
		interval: time.Second,
		logger:   zap.NewNop(),
		subs:     make(map[int]chan *trace.Trace),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Running reports whether a continuous run is active
func (e *Engine) Running() bool { return e.running.Load() }

// Subscribe registers a trace consumer. The returned cancel function must
// be called when the consumer goes away; a slow consumer drops traces
// rather than stalling acquisition.
func (e *Engine) Subscribe() (<-chan *trace.Trace, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextSub
	e.nextSub++
	ch := make(chan *trace.Trace, 16)
	e.subs[id] = ch

	return ch, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if existing, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(existing)
		}
	}
}

// Single performs one sweep over the given sources and returns the captured
// traces. Partial results come back with the first error encountered.
func (e *Engine) Single(ctx context.Context, sources []string) ([]*trace.Trace, error) {
	runID := uuid.New()
	traces := make([]*trace.Trace, 0, len(sources))
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return traces, err
		}
		t, err := e.capture(ctx, runID, source)
		if err != nil {
			return traces, err
		}
		traces = append(traces, t)
	}
	return traces, nil
}

// Start begins continuous acquisition over the given sources. It returns
// immediately; the loop runs until Stop is called or the parent context is
// cancelled. Starting a running engine is an error.
func (e *Engine) Start(ctx context.Context, sources []string) error {
	if len(sources) == 0 {
		return fmt.Errorf("no sources selected for acquisition")
	}
	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("acquisition already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})

	e.logger.Info("continuous acquisition started",
		zap.Strings("sources", sources),
		zap.Duration("interval", e.interval))

	go e.loop(runCtx, sources)
	return nil
}

// Stop ends a continuous run and waits for the in-flight sweep to finish.
// Stopping an idle engine is a no-op.
func (e *Engine) Stop() {
	if !e.running.Load() {
		return
	}
	e.cancel()
	<-e.done
}

func (e *Engine) loop(ctx context.Context, sources []string) {
	defer func() {
		e.running.Store(false)
		close(e.done)
		e.logger.Info("continuous acquisition stopped")
	}()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		runID := uuid.New()
		for _, source := range sources {
			if ctx.Err() != nil {
				return
			}
			if _, err := e.capture(ctx, runID, source); err != nil {
				if ctx.Err() != nil {
					return
				}
				e.logger.Error("capture failed",
					zap.String("source", source),
					zap.Error(err))
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// capture fetches one trace, publishes it, and persists it
func (e *Engine) capture(ctx context.Context, runID uuid.UUID, source string) (*trace.Trace, error) {
	t, err := e.fetcher.Fetch(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", source, err)
	}

	e.publish(t)

	if e.saver != nil {
		if err := e.saver.Save(ctx, t); err != nil {
			e.logger.Error("trace persistence failed",
				zap.String("id", t.ID.String()),
				zap.Error(err))
		}
	}

	e.logger.Debug("trace captured",
		zap.String("run", runID.String()),
		zap.String("source", source),
		zap.Int("points", t.Points()))
	return t, nil
}

func (e *Engine) publish(t *trace.Trace) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- t:
		default:
		}
	}
}
