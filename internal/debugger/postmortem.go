package debugger

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Traceback is a fault together with the frames it happened in.
type Traceback struct {
	Err    error
	Target Target // frames at the fault, innermost last
	Text   string // preformatted traceback; built from Target and Err when empty
}

// Format returns the traceback as shown in the console.
func (tb *Traceback) Format() string {
	if tb.Text != "" {
		if strings.HasSuffix(tb.Text, "\n") {
			return tb.Text
		}
		return tb.Text + "\n"
	}
	var sb strings.Builder
	sb.WriteString("Traceback (most recent call last):\n")
	if tb.Target != nil {
		for _, f := range tb.Target.Stack() {
			fmt.Fprintf(&sb, "  File \"%s\", line %d, in %s\n", f.Filename, f.Line, functionName(f))
			if src, err := tb.Target.Source(f.Filename); err == nil {
				if lines := splitLines(src); f.Line >= 1 && f.Line <= len(lines) {
					fmt.Fprintf(&sb, "    %s\n", strings.TrimSpace(lines[f.Line-1]))
				}
			}
		}
	}
	if tb.Err != nil {
		sb.WriteString(tb.Err.Error() + "\n")
	}
	return sb.String()
}

// TracebackProvider is implemented by errors that carry their own frames,
// such as interpreter runtime faults.
type TracebackProvider interface {
	Traceback() *Traceback
}

// =============================================================================
// Post-mortem entry points
// =============================================================================

// PostMortem opens a new session and lets the user inspect the frames of tb.
// It blocks until the user resumes or quits. It fails with
// ErrSessionConflict while another session is active and with ErrNoTraceback
// when tb carries no frames.
func PostMortem(tb *Traceback, opts Options) error {
	registry.mu.Lock()
	if registry.active != nil {
		registry.mu.Unlock()
		return ErrSessionConflict
	}
	if tb == nil || tb.Target == nil {
		registry.mu.Unlock()
		return ErrNoTraceback
	}
	s, err := newSession(opts)
	if err != nil {
		registry.mu.Unlock()
		return fmt.Errorf("debugger post-mortem: %w", err)
	}
	registry.active = s
	registry.mu.Unlock()

	s.runPostMortem(tb)
	return nil
}

func (s *Session) runPostMortem(tb *Traceback) {
	s.dbg.postMortem = true
	s.dbg.rebind()
	s.console.WriteString(PostMortemBanner)
	s.console.WriteString(tb.Format())
	switch s.dbg.interact(tb.Target) {
	case outcomeQuit:
		s.quit()
	case outcomeClosed:
		s.dbg.detach()
		clearActive(s)
	default:
		// The program is already dead; resuming ends the session.
		s.finish()
	}
}

// CatchPostMortem runs fn. When fn returns an error or panics, the fault is
// opened in a post-mortem session instead of being propagated. It returns nil
// once the fault was debugged, or the fault joined with the reason no session
// could be opened.
func CatchPostMortem(opts Options, fn func() error) error {
	tb := capture(fn)
	if tb == nil {
		return nil
	}
	if err := PostMortem(tb, opts); err != nil {
		return errors.Join(tb.Err, err)
	}
	return nil
}

func capture(fn func() error) (tb *Traceback) {
	defer func() {
		if r := recover(); r != nil {
			tb = TracebackFromPanic(r)
		}
	}()
	if err := fn(); err != nil {
		return TracebackFromError(err)
	}
	return nil
}

// Recover is deferred to open a post-mortem session for the panic in flight:
//
//	defer debugger.Recover(opts)
//
// The panic is swallowed once debugged. When no session can be opened the
// panic continues.
func Recover(opts Options) {
	r := recover()
	if r == nil {
		return
	}
	tb := TracebackFromPanic(r)
	if err := PostMortem(tb, opts); err != nil {
		opts.log().Error("post-mortem unavailable", "error", err)
		panic(r)
	}
}

// TracebackFromError uses the frames err carries, or the Go call stack of the
// caller when it carries none.
func TracebackFromError(err error) *Traceback {
	var p TracebackProvider
	if errors.As(err, &p) {
		if tb := p.Traceback(); tb != nil {
			return tb
		}
	}
	return &Traceback{Err: err, Target: &goTarget{frames: callerFrames(3)}}
}

// TracebackFromPanic builds a traceback for a recovered panic value. Called
// from a deferred function, the Go frames are those of the panicking code.
func TracebackFromPanic(r any) *Traceback {
	var err error
	switch v := r.(type) {
	case error:
		var p TracebackProvider
		if errors.As(v, &p) {
			if tb := p.Traceback(); tb != nil {
				return tb
			}
		}
		err = fmt.Errorf("panic: %w", v)
	default:
		err = fmt.Errorf("panic: %v", v)
	}
	return &Traceback{Err: err, Target: &goTarget{frames: callerFrames(3)}}
}

// =============================================================================
// Go frames
// =============================================================================

// callerFrames returns the Go call stack, outermost first. When a panic is in
// flight only the frames below the panic are kept. runtime frames are dropped.
func callerFrames(skip int) []Frame {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(skip, pcs)
	it := runtime.CallersFrames(pcs[:n])

	var inner []Frame // innermost first
	for {
		f, more := it.Next()
		switch {
		case f.Function == "runtime.gopanic":
			inner = inner[:0]
		case strings.HasPrefix(f.Function, "runtime."):
		default:
			inner = append(inner, Frame{Filename: f.File, Line: f.Line, Function: f.Function})
		}
		if !more {
			break
		}
	}
	frames := make([]Frame, len(inner))
	for i, f := range inner {
		frames[len(inner)-1-i] = f
	}
	return frames
}

var errGoFrame = errors.New("expressions cannot be evaluated in Go frames")

// goTarget exposes Go call frames; it can list source but not evaluate.
type goTarget struct {
	frames []Frame
}

func (g *goTarget) Stack() []Frame                         { return g.frames }
func (g *goTarget) Locals(int) []Variable                  { return nil }
func (g *goTarget) Args(int) []Variable                    { return nil }
func (g *goTarget) Globals() []Variable                    { return nil }
func (g *goTarget) LookupLocal(int, string) (Object, bool) { return Object{}, false }
func (g *goTarget) LookupGlobal(string) (Object, bool)     { return Object{}, false }
func (g *goTarget) Eval(int, string, bool) (string, error) { return "", errGoFrame }
func (g *goTarget) Exec(int, string) error                 { return errGoFrame }

func (g *goTarget) Source(filename string) (string, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
