// Package watch keeps the driver registry synchronized with the driver
// directory: edits and new files reload, deletions unregister.
package watch

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/gometr/gometr/internal/driver/registry"
)

// Watcher monitors a driver directory and reloads changed files into the
// registry after a debounce window.
type Watcher struct {
	dir       string
	registry  *registry.Registry
	debouncer *debouncer
	onReload  func(files []string)
	logger    *zap.Logger

	fsw      *fsnotify.Watcher
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// Option configures a Watcher
type Option func(*Watcher)

// WithDebounce sets the window that coalesces rapid successive writes,
// such as an editor's save-and-rename dance.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debouncer.duration = d }
}

// WithLogger sets the watcher's logger
func WithLogger(logger *zap.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithOnReload registers a callback invoked after a batch of driver files
// has been reloaded or removed.
func WithOnReload(fn func(files []string)) Option {
	return func(w *Watcher) { w.onReload = fn }
}

// New creates a watcher over dir feeding reg
func New(dir string, reg *registry.Registry, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	w := &Watcher{
		dir:       dir,
		registry:  reg,
		debouncer: newDebouncer(100 * time.Millisecond),
		logger:    zap.NewNop(),
		fsw:       fsw,
		stopChan:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.debouncer.callback = w.reload
	return w, nil
}

// Start begins watching; it returns immediately
func (w *Watcher) Start() error {
	if err := w.fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching driver directory", zap.String("dir", w.dir))

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop stops the watcher. Safe to call more than once.
func (w *Watcher) Stop() error {
	select {
	case <-w.stopChan:
		return nil
	default:
		close(w.stopChan)
	}
	err := w.fsw.Close()
	w.wg.Wait()
	w.debouncer.stop()
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !isDriverFile(event.Name) {
				continue
			}
			switch {
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
				w.debouncer.add(event.Name)
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				w.registry.Remove(event.Name)
				w.logger.Info("driver file removed", zap.String("file", event.Name))
				if w.onReload != nil {
					w.onReload([]string{event.Name})
				}
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("driver watch error", zap.Error(err))

		case <-w.stopChan:
			return
		}
	}
}

// reload runs on the debouncer's timer goroutine
func (w *Watcher) reload(files []string) {
	for _, file := range files {
		if err := w.registry.LoadFile(file); err != nil {
			// A half-saved file often fails to parse; the next write
			// triggers another reload attempt.
			w.logger.Warn("driver reload failed", zap.String("file", file), zap.Error(err))
			continue
		}
		w.logger.Info("driver reloaded", zap.String("file", file))
	}
	if w.onReload != nil {
		w.onReload(files)
	}
}

// isDriverFile accepts non-hidden Python sources
func isDriverFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return strings.HasSuffix(base, ".py")
}

// debouncer collects changed files and fires the callback after a quiet
// period.
type debouncer struct {
	duration time.Duration
	timer    *time.Timer
	files    map[string]struct{}
	mutex    sync.Mutex
	callback func([]string)
}

func newDebouncer(duration time.Duration) *debouncer {
	return &debouncer{
		duration: duration,
		files:    make(map[string]struct{}),
	}
}

func (d *debouncer) add(file string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.files[file] = struct{}{}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.duration, d.flush)
}

func (d *debouncer) flush() {
	d.mutex.Lock()
	if len(d.files) == 0 {
		d.mutex.Unlock()
		return
	}
	files := make([]string, 0, len(d.files))
	for file := range d.files {
		files = append(files, file)
	}
	d.files = make(map[string]struct{})
	callback := d.callback
	d.mutex.Unlock()

	if callback != nil {
		callback(files)
	}
}

func (d *debouncer) stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}
