// Package luaengine runs Lua scripts under the debugger. Scripts are compiled
// from an instrumented syntax tree that reports every source line to the
// installed tracer, so gopher-lua needs no debug hooks.
package luaengine

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/h2non/filetype"
	ftypes "github.com/h2non/filetype/types"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"webdbg/internal/debugger"
)

// ModuleName is the global table scripts use to reach the debugger.
const ModuleName = "webdbg"

// ErrNotScript is returned by RunFile for binary files.
var ErrNotScript = errors.New("luaengine: not a Lua script")

// filetypeMatch detects binary formats from a file header; tests swap it.
var filetypeMatch func([]byte) (ftypes.Type, error) = filetype.Match

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithLogger sets a structured logger for the Engine. If l is nil it is
// ignored and the default slog logger is used.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithStdio sets the streams print, io.write and io.read use.
func WithStdio(in io.Reader, out io.Writer) Option {
	return func(e *Engine) {
		if in != nil {
			e.in = bufio.NewReader(in)
		}
		if out != nil {
			e.out = out
		}
	}
}

// WithDebugOptions sets the options sessions opened from scripts use.
func WithDebugOptions(opts debugger.Options) Option {
	return func(e *Engine) {
		e.dbgOpts = opts
	}
}

// Engine is a Lua interpreter that can be traced by the debugger. It
// implements debugger.Tracee and debugger.StdioRouter. An Engine is not safe
// for concurrent use; scripts run on the goroutine that calls Run.
type Engine struct {
	L       *lua.LState
	logger  *slog.Logger
	dbgOpts debugger.Options

	mu      sync.Mutex
	tracer  debugger.Tracer
	sources map[string]string

	ioMu sync.Mutex
	in   *bufio.Reader
	out  io.Writer

	builtin    map[string]bool
	evaluating bool
}

// New creates an engine with the standard Lua libraries and the webdbg module.
func New(opts ...Option) *Engine {
	e := &Engine{
		sources: make(map[string]string),
		in:      bufio.NewReader(os.Stdin),
		out:     os.Stdout,
		builtin: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.L = lua.NewState()
	e.installBuiltins()
	e.globals().ForEach(func(k, _ lua.LValue) {
		if name, ok := k.(lua.LString); ok {
			e.builtin[string(name)] = true
		}
	})
	return e
}

// log returns the Engine's logger, falling back to the default slog logger.
func (e *Engine) log() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return slog.Default()
}

// Close releases the interpreter.
func (e *Engine) Close() {
	e.L.Close()
}

func (e *Engine) globals() *lua.LTable {
	return e.L.Get(lua.GlobalsIndex).(*lua.LTable)
}

// =============================================================================
// Running scripts
// =============================================================================

// RunFile runs the script at path. Runtime errors are returned as *Fault.
func (e *Engine) RunFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	if err := checkScript(abs, data); err != nil {
		return err
	}
	return e.RunString(abs, string(data))
}

// CheckFile reports whether path is a Lua script that compiles, without
// running it.
func CheckFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	if err := checkScript(path, data); err != nil {
		return err
	}
	chunk, err := parse.Parse(strings.NewReader(string(data)), path)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if _, err := lua.Compile(Instrument(chunk), path); err != nil {
		return fmt.Errorf("compile %s: %w", path, err)
	}
	return nil
}

// checkScript rejects files whose header identifies a known binary format.
func checkScript(path string, data []byte) error {
	head := data
	if len(head) > 261 {
		head = head[:261]
	}
	kind, err := filetypeMatch(head)
	if err != nil {
		return fmt.Errorf("detect script type: %w", err)
	}
	if kind != filetype.Unknown {
		return fmt.Errorf("%w: %s is %s", ErrNotScript, path, kind.MIME.Value)
	}
	return nil
}

// RunString runs src as a chunk called name. Runtime errors are returned as
// *Fault; syntax errors are returned as is.
func (e *Engine) RunString(name, src string) error {
	fn, err := e.compile(name, src)
	if err != nil {
		return err
	}
	var fault *Fault
	e.L.Push(fn)
	err = e.L.PCall(0, 0, e.faultHandler(&fault))
	e.finished()
	if err != nil {
		if fault != nil {
			return fault
		}
		return fmt.Errorf("run %s: %w", name, err)
	}
	return nil
}

func (e *Engine) compile(name, src string) (*lua.LFunction, error) {
	chunk, err := parse.Parse(strings.NewReader(src), name)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	proto, err := lua.Compile(Instrument(chunk), name)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	e.mu.Lock()
	e.sources[name] = src
	e.mu.Unlock()
	return e.L.NewFunctionFromProto(proto), nil
}

// finished tells the tracer the program ran to its end.
func (e *Engine) finished() {
	if tr := e.currentTracer(); tr != nil {
		tr.TraceFinished()
	}
}

// source returns the text of a chunk run by this engine, or the file on disk.
func (e *Engine) source(name string) (string, error) {
	e.mu.Lock()
	src, ok := e.sources[name]
	e.mu.Unlock()
	if ok {
		return src, nil
	}
	if strings.HasPrefix(name, "<") {
		return "", fmt.Errorf("%w: %s", debugger.ErrNoSource, name)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// =============================================================================
// Tracing
// =============================================================================

// SetTracer implements debugger.Tracee. A nil tracer stops tracing.
func (e *Engine) SetTracer(t debugger.Tracer) {
	e.mu.Lock()
	e.tracer = t
	e.mu.Unlock()
}

func (e *Engine) currentTracer() debugger.Tracer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracer
}

// trace is the __trace__ builtin called before every instrumented line.
func (e *Engine) trace(L *lua.LState) int {
	if e.evaluating {
		return 0
	}
	tr := e.currentTracer()
	if tr == nil {
		return 0
	}
	loc := debugger.Location{Line: L.CheckInt(1)}
	for level := 1; ; level++ {
		dbg, ok := L.GetStack(level)
		if !ok {
			break
		}
		if !isLuaFrame(L, dbg) {
			continue
		}
		if loc.Depth == 0 {
			loc.Filename = dbg.Source
		}
		loc.Depth++
	}
	tr.TraceLine(newLiveTarget(e, L, loc.Line), loc)
	return 0
}

// call runs fn with tracing suspended and returns its results.
func (e *Engine) call(fn *lua.LFunction) ([]lua.LValue, error) {
	prev := e.evaluating
	e.evaluating = true
	defer func() { e.evaluating = prev }()

	L := e.L
	top := L.GetTop()
	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		L.SetTop(top)
		return nil, errors.New(luaMessage(err))
	}
	results := make([]lua.LValue, 0, L.GetTop()-top)
	for i := top + 1; i <= L.GetTop(); i++ {
		results = append(results, L.Get(i))
	}
	L.SetTop(top)
	return results, nil
}

// luaMessage strips the Lua stack trace from interpreter errors.
func luaMessage(err error) string {
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) && apiErr.Object != nil && apiErr.Object != lua.LNil {
		return apiErr.Object.String()
	}
	return err.Error()
}

// =============================================================================
// Standard streams
// =============================================================================

// SetStdio implements debugger.StdioRouter.
func (e *Engine) SetStdio(in io.Reader, out io.Writer) func() {
	e.ioMu.Lock()
	prevIn, prevOut := e.in, e.out
	e.in, e.out = bufio.NewReader(in), out
	e.ioMu.Unlock()
	return func() {
		e.ioMu.Lock()
		e.in, e.out = prevIn, prevOut
		e.ioMu.Unlock()
	}
}

func (e *Engine) write(s string) {
	e.ioMu.Lock()
	out := e.out
	e.ioMu.Unlock()
	if _, err := io.WriteString(out, s); err != nil {
		e.log().Debug("script output dropped", "error", err)
	}
}

func (e *Engine) reader() *bufio.Reader {
	e.ioMu.Lock()
	defer e.ioMu.Unlock()
	return e.in
}

var (
	_ debugger.Tracee      = (*Engine)(nil)
	_ debugger.StdioRouter = (*Engine)(nil)
)
