package toggle

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 100 * time.Millisecond

// SpecWatcher reloads a spec file whenever it is written and hands each
// document that parses to the registered callbacks. Documents that fail to
// parse are reported on Errors and the previous File stays current.
type SpecWatcher struct {
	path     string
	debounce time.Duration

	mu       sync.RWMutex
	current  File
	onChange []func(File)

	watcher *fsnotify.Watcher
	errs    chan error
	cancel  context.CancelFunc
	done    chan struct{}
	timer   *time.Timer
}

// WatcherOption configures a SpecWatcher.
type WatcherOption func(*SpecWatcher)

// WithDebounce coalesces bursts of writes into one reload.
func WithDebounce(delay time.Duration) WatcherOption {
	return func(w *SpecWatcher) {
		if delay > 0 {
			w.debounce = delay
		}
	}
}

// NewSpecWatcher loads path once and returns a watcher that is not yet running.
func NewSpecWatcher(path string, opts ...WatcherOption) (*SpecWatcher, error) {
	file, err := LoadSpecs(path)
	if err != nil {
		return nil, err
	}
	w := &SpecWatcher{
		path:     path,
		debounce: defaultDebounce,
		current:  file,
		errs:     make(chan error, 1),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// Current returns the last successfully parsed document.
func (w *SpecWatcher) Current() File {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers fn. Register callbacks before calling Watch.
func (w *SpecWatcher) OnChange(fn func(File)) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.onChange = append(w.onChange, fn)
	w.mu.Unlock()
}

// Errors reports reload failures. Errors are dropped when nobody is reading.
func (w *SpecWatcher) Errors() <-chan error {
	return w.errs
}

// Watch starts watching the file's directory until ctx is done or Close is
// called. Editors that replace the file by rename are handled the same as
// in-place writes.
func (w *SpecWatcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("toggle: create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("toggle: watch %s: %w", filepath.Dir(w.path), err)
	}
	ctx, cancel := context.WithCancel(ctx)
	w.watcher = watcher
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(ctx)
	return nil
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *SpecWatcher) Close() error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	err := w.watcher.Close()
	<-w.done
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return err
}

func (w *SpecWatcher) loop(ctx context.Context) {
	defer close(w.done)
	name := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.schedule()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.report(err)
		}
	}
}

func (w *SpecWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *SpecWatcher) reload() {
	file, err := LoadSpecs(w.path)
	if err != nil {
		w.report(fmt.Errorf("toggle: reload: %w", err))
		return
	}
	w.mu.Lock()
	w.current = file
	callbacks := slices.Clone(w.onChange)
	w.mu.Unlock()
	for _, fn := range callbacks {
		fn(file)
	}
}

func (w *SpecWatcher) report(err error) {
	select {
	case w.errs <- err:
	default:
	}
}
