package console

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay is the time to wait after a file event before reading new content.
// Editors often save with several writes; this coalesces them into a single read.
var debounceDelay = 100 * time.Millisecond

// newWatcherFunc creates an fsnotify watcher; tests may replace it to inject errors.
type newWatcherFunc func() (*fsnotify.Watcher, error)

// SourceWatcher watches one source file and delivers its new contents via a
// callback whenever it is written, created or replaced (editors that save
// through a rename).
type SourceWatcher struct {
	path         string
	logger       *slog.Logger
	watcher      *fsnotify.Watcher
	done         chan struct{}
	mu           sync.Mutex
	running      bool
	newWatcherFn newWatcherFunc // nil means use fsnotify.NewWatcher
}

// NewSourceWatcher creates a watcher for path. Call Start to begin watching
// and Stop to release resources.
func NewSourceWatcher(path string, logger *slog.Logger) *SourceWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &SourceWatcher{path: path, logger: logger}
}

// Path returns the watched file.
func (w *SourceWatcher) Path() string {
	return w.path
}

// Start begins watching. The callback runs on a separate goroutine. Start must
// not be called more than once without an intervening Stop.
func (w *SourceWatcher) Start(callback func(contents string)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if callback == nil {
		return errors.New("source watcher: callback must not be nil")
	}
	if w.running {
		return errors.New("source watcher: already started")
	}

	// Watch the parent directory so replace-on-save is seen as a Create.
	newWatcher := fsnotify.NewWatcher
	if w.newWatcherFn != nil {
		newWatcher = w.newWatcherFn
	}
	watcher, err := newWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return err
	}

	w.watcher = watcher
	w.done = make(chan struct{})
	w.running = true
	go w.eventLoop(w.watcher, w.done, callback)
	return nil
}

// Stop ceases watching and releases resources. Safe to call even if not started.
func (w *SourceWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	close(w.done)
	err := w.watcher.Close()
	w.running = false
	return err
}

func (w *SourceWatcher) eventLoop(watcher *fsnotify.Watcher, done <-chan struct{}, callback func(string)) {
	target := filepath.Base(w.path)
	var debounceTimer *time.Timer

	for {
		select {
		case <-done:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDelay, func() {
				select {
				case <-done:
					return
				default:
				}
				data, err := os.ReadFile(w.path)
				if err != nil {
					w.logger.Warn("source watcher: read failed", "path", w.path, "error", err)
					return
				}
				callback(string(data))
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("source watcher: fsnotify error", "path", w.path, "error", err)
		}
	}
}
