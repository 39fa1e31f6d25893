package debugger

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"webdbg/internal/config"
	"webdbg/internal/console"
	"webdbg/internal/domain"
)

// Banners written into the console at session boundaries.
const (
	AbortBanner      = "*** Aborting program ***\n"
	FinishedBanner   = "*** Thread finished ***\n"
	PostMortemBanner = "*** Web-PDB post-mortem ***\n"
)

// Options configures a new session. A nil Config means config.Default().
type Options struct {
	Config *domain.Config
	Logger *slog.Logger
	// History, if set, records every command typed at the prompt.
	History CommandLog
	// OnStart is called once the web console of a new session listens.
	OnStart func(s *Session)
}

func (o Options) config() *domain.Config {
	if o.Config == nil {
		return config.Default()
	}
	return o.Config
}

func (o Options) log() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// =============================================================================
// Registry
// =============================================================================

// registry holds the single active session of the process.
var registry struct {
	mu     sync.Mutex
	active *Session
}

// Active returns the active session, or nil.
func Active() *Session {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	return registry.active
}

func clearActive(s *Session) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if registry.active == s {
		registry.active = nil
	}
}

// =============================================================================
// Session
// =============================================================================

// Session is one debugging attachment: a Debugger, the Console it talks
// through and the stream redirections made for it. It implements Tracer.
type Session struct {
	dbg     *Debugger
	console *console.Console
	streams *Streams
	patch   bool
	logger  *slog.Logger

	mu     sync.Mutex
	tracee Tracee
	ended  bool
}

// stdFiles are the process streams redirected when PatchStdStreams is set.
var stdFiles = []**os.File{&os.Stdout, &os.Stderr}

func newSession(opts Options) (*Session, error) {
	cfg := opts.config()
	logger := opts.log()
	d := New(nil, WithLogger(logger))
	con, err := console.New(cfg, d, console.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	d.console = con
	d.history, d.sessionID = opts.History, con.SessionID()
	s := &Session{
		dbg:     d,
		console: con,
		streams: NewStreams(),
		patch:   cfg.Server.PatchStdStreams,
		logger:  logger,
	}
	if s.patch {
		if err := s.streams.Redirect(con, stdFiles...); err != nil {
			logger.Warn("cannot redirect standard streams", "error", err)
		}
	}
	logger.Info("debugger session started", "addr", con.Addr(), "session", con.SessionID())
	if opts.OnStart != nil {
		opts.OnStart(s)
	}
	return s, nil
}

// Attach starts tracing tracee. The first call creates the process-wide
// session with its own web console; later calls reuse it and rebind it to
// tracee without tearing the console down, so every call acts as a
// breakpoint in the same browser session.
func Attach(tracee Tracee, opts Options) (*Session, error) {
	if tracee == nil {
		return nil, errors.New("debugger: tracee must not be nil")
	}
	registry.mu.Lock()
	s := registry.active
	if s == nil {
		var err error
		s, err = newSession(opts)
		if err != nil {
			registry.mu.Unlock()
			return nil, fmt.Errorf("debugger attach: %w", err)
		}
		registry.active = s
	}
	registry.mu.Unlock()

	s.bind(tracee)
	return s, nil
}

func (s *Session) bind(tracee Tracee) {
	s.mu.Lock()
	prev := s.tracee
	s.tracee = tracee
	s.mu.Unlock()

	if prev != nil && prev != tracee {
		prev.SetTracer(nil)
	}
	if prev != tracee && s.patch {
		if r, ok := tracee.(StdioRouter); ok {
			s.streams.Push(r.SetStdio(s.console, s.console))
		}
	}
	s.dbg.rebind()
	tracee.SetTracer(s)
}

// TraceLine implements Tracer.
func (s *Session) TraceLine(t Target, loc Location) {
	if !s.dbg.shouldStop(t, loc) {
		return
	}
	switch s.dbg.interact(t) {
	case outcomeQuit:
		s.quit()
	case outcomeClosed:
		s.dbg.detach()
	}
}

// TraceFinished implements Tracer. The program ran to completion: the
// session ends unless the console was already closed.
func (s *Session) TraceFinished() {
	s.finish()
}

func (s *Session) quit() {
	s.streams.Restore()
	s.console.WriteString(AbortBanner)
	s.console.Flush()
	s.end()
}

func (s *Session) finish() {
	s.console.WriteString(FinishedBanner)
	if s.console.Closed() {
		s.detachTracee()
		return
	}
	s.console.Flush()
	s.streams.Restore()
	s.end()
}

// end closes the console, clears the registry slot and detaches the tracer.
func (s *Session) end() {
	s.dbg.detach()
	if err := s.console.Close(); err != nil {
		s.logger.Warn("closing web console", "error", err)
	}
	clearActive(s)
	s.detachTracee()
	s.logger.Info("debugger session ended", "session", s.console.SessionID())
}

func (s *Session) detachTracee() {
	s.mu.Lock()
	t := s.tracee
	s.tracee = nil
	s.ended = true
	s.mu.Unlock()
	if t != nil {
		t.SetTracer(nil)
	}
}

// Close ends the session from outside the debugger goroutine, e.g. on a
// shutdown signal. A program blocked at a prompt resumes without the debugger.
func (s *Session) Close() error {
	s.streams.Restore()
	err := s.console.Close()
	clearActive(s)
	return err
}

// Ended reports whether the session has been torn down by quit or completion.
func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// Console returns the session's web console.
func (s *Session) Console() *console.Console {
	return s.console
}

// Debugger returns the session's command interpreter, e.g. to Register commands.
func (s *Session) Debugger() *Debugger {
	return s.dbg
}

// Addr returns the address the web console listens on.
func (s *Session) Addr() string {
	return s.console.Addr()
}
