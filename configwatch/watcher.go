// Package configwatch reloads a configuration document when its file
// changes on disk.
package configwatch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/GoCodeAlone/modgraph/config"
	"github.com/GoCodeAlone/modgraph/feeders"
)

// DefaultDebounce is the quiet period after the last file event before the
// document is parsed again.
const DefaultDebounce = 250 * time.Millisecond

var ErrNoCallback = errors.New("configwatch: OnChange callback is required")

// Logger is the logging surface the watcher needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}
func (noopLogger) Error(string, ...any) {}

// ChangeFunc receives every successfully parsed new version of the
// document.
type ChangeFunc func(ctx context.Context, root *config.Node) error

// Watcher watches one configuration file. The file's directory is watched
// so that editors replacing the file by rename are noticed.
type Watcher struct {
	path     string
	onChange ChangeFunc
	debounce time.Duration
	logger   Logger

	mu      sync.Mutex
	reloads int
}

// Option configures a Watcher.
type Option func(*Watcher)

func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

func WithLogger(l Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a watcher for path calling onChange after each change.
func New(path string, onChange ChangeFunc, opts ...Option) (*Watcher, error) {
	if onChange == nil {
		return nil, ErrNoCallback
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("configwatch: resolve %s: %w", path, err)
	}
	w := &Watcher{path: abs, onChange: onChange, debounce: DefaultDebounce, logger: noopLogger{}}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Reloads returns how many times onChange was called.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// Run watches until ctx is done. Parse failures and callback errors are
// logged; the previous configuration stays in effect.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("configwatch: create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("configwatch: watch %s: %w", filepath.Dir(w.path), err)
	}
	w.logger.Debug("Watching configuration", "path", w.path)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug("Configuration file changed", "path", w.path, "op", event.Op.String())
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Configuration watcher error", "path", w.path, "error", err)
		case <-timer.C:
			if err := w.reload(ctx); err != nil {
				w.logger.Error("Configuration reload failed", "path", w.path, "error", err)
			}
		}
	}
}

func (w *Watcher) reload(ctx context.Context) error {
	root, err := feeders.Load(w.path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()
	return w.onChange(ctx, root)
}
