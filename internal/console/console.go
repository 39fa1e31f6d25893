package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"webdbg/internal/buffer"
	"webdbg/internal/config"
	"webdbg/internal/domain"
	"webdbg/internal/gateway"
	"webdbg/internal/queue"
	"webdbg/internal/retry"
)

// bindTimeout bounds how long New waits for the listener to come up.
var bindTimeout = 5 * time.Second

// FrameSource supplies the frame snapshot shown next to the console. It is
// called after every console write and must not block on the interpreter.
type FrameSource interface {
	FrameData() (domain.FrameSnapshot, error)
}

// FrameSourceFunc adapts a function to FrameSource.
type FrameSourceFunc func() (domain.FrameSnapshot, error)

// FrameData calls f.
func (f FrameSourceFunc) FrameData() (domain.FrameSnapshot, error) { return f() }

// Option is a functional option for configuring a Console.
type Option func(*Console)

// WithLogger sets a structured logger for the Console and its HTTP server.
// If l is nil it is ignored and the default slog logger is used.
func WithLogger(l *slog.Logger) Option {
	return func(c *Console) {
		if l != nil {
			c.logger = l
		}
	}
}

// Console is the blocking duplex channel between the debugger and the web
// client. The debugger goroutine reads commands with ReadLine and writes
// output with Write; HTTP goroutines only touch the buffers and the queue.
type Console struct {
	cfg       domain.ConsoleConfig
	source    FrameSource
	logger    *slog.Logger
	sessionID string

	history *buffer.Buffer[string]
	frame   *buffer.Buffer[domain.FrameSnapshot]
	queue   *queue.CommandQueue

	server    *gateway.Server
	stop      chan struct{}
	done      chan error
	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool

	readMu  sync.Mutex
	pending []byte

	watchMu sync.Mutex
	watcher *SourceWatcher
}

// New creates a console serving cfg.Server and starts its HTTP listener. It
// returns once the listener is bound, or with the listen error. A port of
// config.RandomPort is retried on a fresh random port while the chosen one is
// taken. source may be nil; the frame panel then shows the sentinel.
func New(cfg *domain.Config, source FrameSource, opts ...Option) (*Console, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	c := &Console{
		cfg:       config.ConsoleWithDefaults(cfg.Console),
		source:    source,
		sessionID: uuid.NewString(),
		history:   buffer.NewBuffer[string](),
		frame:     buffer.NewBufferWith(domain.NoFrameSnapshot()),
		queue:     queue.NewCommandQueue(),
	}
	for _, opt := range opts {
		opt(c)
	}

	listen := func() error {
		scfg := cfg.Server
		scfg.Port = config.ResolvePort(scfg.Port)
		return c.start(scfg)
	}
	var err error
	if cfg.Server.Port == config.RandomPort {
		err = retry.Do(context.Background(), retry.Fixed(5, 10*time.Millisecond), listen, isAddrInUse)
	} else {
		err = listen()
	}
	if err != nil {
		return nil, fmt.Errorf("console: %w", err)
	}
	c.log().Info("web console started", "addr", c.Addr(), "session", c.sessionID)
	return c, nil
}

func isAddrInUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}

func (c *Console) start(scfg domain.ServerConfig) error {
	srv, err := gateway.NewServer(scfg, c,
		gateway.WithLogger(c.log()),
		gateway.WithGzipMinSize(c.cfg.GzipMinSize),
	)
	if err != nil {
		return err
	}
	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- srv.Run(stop) }()

	deadline := time.After(bindTimeout)
	for srv.Addr() == "" {
		select {
		case err := <-done:
			if err == nil {
				err = errors.New("server stopped before binding")
			}
			return err
		case <-deadline:
			close(stop)
			return errors.New("timed out waiting for the listener")
		case <-time.After(5 * time.Millisecond):
		}
	}
	c.server, c.stop, c.done = srv, stop, done
	return nil
}

// log returns the Console's logger, falling back to the default slog logger.
func (c *Console) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.Default()
}

// =============================================================================
// Debugger side
// =============================================================================

// ReadLine blocks until a command is submitted or the console is closed. The
// command is echoed into the history and returned with a trailing newline. On
// close it returns "\n", an empty command that resumes nothing by itself.
func (c *Console) ReadLine() string {
	poll := config.PollInterval(c.cfg)
	for {
		select {
		case <-c.stop:
			return "\n"
		default:
		}
		cmd, ok := c.queue.Pop(poll)
		if !ok {
			continue
		}
		if c.Closed() {
			return "\n"
		}
		if !strings.HasSuffix(cmd, "\n") {
			cmd += "\n"
		}
		c.WriteString(cmd)
		return cmd
	}
}

// Read implements io.Reader on top of ReadLine so the console can stand in for
// a program's standard input. It returns io.EOF once the console is closed.
func (c *Console) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	if len(c.pending) == 0 {
		if c.Closed() {
			return 0, io.EOF
		}
		c.pending = []byte(c.ReadLine())
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

// Write appends p to the history and refreshes the frame panel. It never fails.
func (c *Console) Write(p []byte) (int, error) {
	return c.WriteString(string(p))
}

// WriteString is Write for strings.
func (c *Console) WriteString(s string) (int, error) {
	if s != "" {
		commit := func() {
			c.history.Update(func(h string) string { return h + s })
		}
		if c.server != nil {
			c.server.Hub().Publish(s, commit)
		} else {
			commit()
		}
	}
	c.Refresh()
	return len(s), nil
}

// Refresh re-reads the frame source without touching the history. A failing
// or panicking source yields the "no data" snapshot.
func (c *Console) Refresh() {
	c.frame.Set(c.snapshot())
}

func (c *Console) snapshot() (snap domain.FrameSnapshot) {
	if c.source == nil {
		return domain.NoFrameSnapshot()
	}
	defer func() {
		if r := recover(); r != nil {
			c.log().Warn("frame source panicked", "panic", r)
			snap = domain.NoFrameSnapshot()
		}
	}()
	snap, err := c.source.FrameData()
	if err != nil {
		c.log().Debug("frame data unavailable", "error", err)
		return domain.NoFrameSnapshot()
	}
	return snap
}

// Flush gives a polling client the chance to pick up pending output. It waits
// while the history is unread, at most FlushRetries checks FlushInterval apart.
// Connected websocket clients already received the text, so Flush returns at
// once when there are any.
func (c *Console) Flush() {
	cfg := retry.Fixed(c.cfg.FlushRetries, config.FlushInterval(c.cfg))
	retry.Until(context.Background(), cfg, func() bool {
		if c.Closed() || !c.history.IsDirty() {
			return true
		}
		return c.server != nil && c.server.Hub().ClientCount() > 0
	})
}

// Close stops the listener and unblocks ReadLine. After Close returns no
// further requests are served. Safe to call more than once.
func (c *Console) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.queue.Close()
		c.stopWatching()
		if c.stop != nil {
			close(c.stop)
			c.closeErr = <-c.done
		}
		c.history.Reset()
		c.log().Info("web console closed", "session", c.sessionID)
	})
	return c.closeErr
}

// Closed reports whether Close has been called.
func (c *Console) Closed() bool {
	return c.closed.Load()
}

// Addr returns the bound listener address.
func (c *Console) Addr() string {
	if c.server == nil {
		return ""
	}
	return c.server.Addr()
}

// SessionID identifies this console; a post-mortem session gets a new one.
func (c *Console) SessionID() string {
	return c.sessionID
}

// =============================================================================
// HTTP side (gateway.Backend)
// =============================================================================

// History returns the full transcript without marking it read.
func (c *Console) History() string {
	return c.history.Peek()
}

// FrameData returns the latest frame snapshot without marking it read.
func (c *Console) FrameData() domain.FrameSnapshot {
	return c.frame.Peek()
}

// Poll returns the combined state. Unless full is set it reports false when
// neither the history nor the frame changed since the previous poll.
func (c *Console) Poll(full bool) (domain.Update, bool) {
	if !full && !c.history.IsDirty() && !c.frame.IsDirty() {
		return domain.Update{}, false
	}
	return domain.Update{
		Session:   c.sessionID,
		History:   c.history.Get(),
		FrameData: c.frame.Get(),
	}, true
}

// Submit enqueues a command from the web client.
func (c *Console) Submit(cmd string) bool {
	if c.Closed() {
		return false
	}
	return c.queue.Push(cmd)
}

var _ gateway.Backend = (*Console)(nil)

// =============================================================================
// Source watching
// =============================================================================

// WatchSource follows path on disk and reloads the listing when it changes.
// Watching a new path replaces the previous watch. It is a no-op when source
// watching is disabled.
func (c *Console) WatchSource(path string) error {
	if !c.cfg.WatchSource || path == "" || c.Closed() {
		return nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	if c.watcher != nil {
		if c.watcher.Path() == abs {
			return nil
		}
		c.watcher.Stop()
		c.watcher = nil
	}
	w := NewSourceWatcher(abs, c.log())
	if err := w.Start(func(listing string) { c.reloadListing(abs, listing) }); err != nil {
		return fmt.Errorf("console watch %s: %w", abs, err)
	}
	c.watcher = w
	return nil
}

func (c *Console) stopWatching() {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	if c.watcher != nil {
		c.watcher.Stop()
		c.watcher = nil
	}
}

func (c *Console) reloadListing(path, listing string) {
	cur := c.frame.Peek()
	if cur.IsSentinel() || filepath.Join(cur.Dirname, cur.Filename) != path || cur.FileListing == listing {
		return
	}
	c.frame.Update(func(s domain.FrameSnapshot) domain.FrameSnapshot {
		if filepath.Join(s.Dirname, s.Filename) != path {
			return s
		}
		s.FileListing = listing
		s.TotalLines = CountLines(listing)
		return s
	})
}

// CountLines returns the number of lines in a listing; a trailing newline
// does not start a new line.
func CountLines(listing string) int {
	if listing == "" {
		return 0
	}
	n := strings.Count(listing, "\n")
	if !strings.HasSuffix(listing, "\n") {
		n++
	}
	return n
}
