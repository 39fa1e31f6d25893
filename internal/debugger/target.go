package debugger

import (
	"errors"
	"io"
)

// Sentinel errors.
var (
	ErrSessionConflict = errors.New("debugger: a debugging session is already active")
	ErrNoTraceback     = errors.New("debugger: a valid traceback must be passed if no fault is being handled")
	ErrNoFrame         = errors.New("debugger: no current execution frame")
	ErrNoSource        = errors.New("debugger: source not available")
)

// =============================================================================
// Interpreter capabilities
// =============================================================================

// Frame is one level of the call stack of a stopped program.
type Frame struct {
	Filename string // as reported by the interpreter; absolute for files loaded from disk
	Line     int
	Function string // "" for the main chunk
	// FirstLine and LastLine delimit the enclosing function; both are 0 for the main chunk.
	FirstLine int
	LastLine  int
}

// Variable is a binding and the representation of its value.
type Variable struct {
	Name  string
	Value string
}

// Object describes a value for the inspect command.
type Object struct {
	Type    string
	Members []Variable // representations are pretty-printed
}

// Location is the statement the interpreter is about to execute.
type Location struct {
	Filename string
	Line     int
	Depth    int // number of frames on the stack, 1 for the main chunk
}

// Target is a paused program. Frame indexes refer to Stack(): 0 is the
// outermost frame, len-1 the innermost. Methods are only called on the
// interpreter goroutine while the program is stopped.
type Target interface {
	Stack() []Frame
	Locals(frame int) []Variable
	Args(frame int) []Variable
	Globals() []Variable
	LookupLocal(frame int, name string) (Object, bool)
	LookupGlobal(name string) (Object, bool)
	// Eval evaluates expr in the scope of frame and returns its representation.
	Eval(frame int, expr string, pretty bool) (string, error)
	// Exec runs stmt in the scope of frame.
	Exec(frame int, stmt string) error
	// Source returns the full text of a file the program was loaded from.
	Source(filename string) (string, error)
}

// Tracer receives trace events from an interpreter.
type Tracer interface {
	// TraceLine is called before every statement. It may block while the
	// debugger interacts with the user.
	TraceLine(t Target, loc Location)
	// TraceFinished is called when the outermost frame returns.
	TraceFinished()
}

// Tracee is an interpreter that can report its execution to a Tracer.
// SetTracer(nil) removes the hook.
type Tracee interface {
	SetTracer(Tracer)
}

// StdioRouter is implemented by interpreters whose program-level standard
// input and output can be redirected. The returned function restores the
// previous streams.
type StdioRouter interface {
	SetStdio(in io.Reader, out io.Writer) (restore func())
}
