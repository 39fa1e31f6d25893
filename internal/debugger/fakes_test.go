package debugger

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

const demoFile = "/srv/app/demo.lua"

const demoSource = `local x = 1
-- comment

local function f(n)
  return n * 2
end
print(f(x))
`

// fakeConsole replays scripted commands and records output.
type fakeConsole struct {
	mu        sync.Mutex
	out       strings.Builder
	input     []string
	closed    bool
	flushes   int
	refreshes int
}

func newFakeConsole(cmds ...string) *fakeConsole {
	return &fakeConsole{input: cmds}
}

func (c *fakeConsole) ReadLine() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.input) == 0 {
		c.closed = true
		return "\n"
	}
	cmd := c.input[0] + "\n"
	c.input = c.input[1:]
	c.out.WriteString(cmd)
	return cmd
}

func (c *fakeConsole) WriteString(s string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out.WriteString(s)
	return len(s), nil
}

func (c *fakeConsole) Flush() {
	c.mu.Lock()
	c.flushes++
	c.mu.Unlock()
}

func (c *fakeConsole) Refresh() {
	c.mu.Lock()
	c.refreshes++
	c.mu.Unlock()
}

func (c *fakeConsole) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConsole) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConsole) output() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.String()
}

// fakeTarget is a stopped program with canned scopes.
type fakeTarget struct {
	mu         sync.Mutex
	file       string
	src        string
	frames     []Frame
	args       []Variable
	locals     []Variable
	globals    []Variable
	localObjs  map[string]Object
	globalObjs map[string]Object
	values     map[string]string
	execs      []string
	execErr    error
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{
		file: demoFile,
		src:  demoSource,
		frames: []Frame{
			{Filename: demoFile, Line: 7},
			{Filename: demoFile, Line: 5, Function: "f", FirstLine: 4, LastLine: 6},
		},
		args:    []Variable{{Name: "n", Value: "1"}},
		locals:  []Variable{{Name: "n", Value: "1"}},
		globals: []Variable{{Name: "x", Value: "1"}, {Name: "__trace__", Value: "function"}, {Name: "answer", Value: "42"}},
		localObjs: map[string]Object{
			"Foo": {Type: "table", Members: []Variable{
				{Name: "foo", Value: "'foo'"},
				{Name: "bar", Value: "2"},
				{Name: "__index", Value: "table"},
			}},
		},
		globalObjs: map[string]Object{
			"answer": {Type: "number"},
		},
		values: map[string]string{"n": "1", "x": "1", "true": "true", "false": "false"},
	}
}

func (f *fakeTarget) setLine(line int) {
	f.mu.Lock()
	f.frames = []Frame{{Filename: f.file, Line: line}}
	f.mu.Unlock()
}

func (f *fakeTarget) Stack() []Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Frame(nil), f.frames...)
}

func (f *fakeTarget) innermost(i int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return i == len(f.frames)-1
}

func (f *fakeTarget) Locals(i int) []Variable {
	if f.innermost(i) {
		return f.locals
	}
	return nil
}

func (f *fakeTarget) Args(i int) []Variable {
	if f.innermost(i) {
		return f.args
	}
	return nil
}

func (f *fakeTarget) Globals() []Variable { return f.globals }

func (f *fakeTarget) LookupLocal(i int, name string) (Object, bool) {
	if !f.innermost(i) {
		return Object{}, false
	}
	obj, ok := f.localObjs[name]
	return obj, ok
}

func (f *fakeTarget) LookupGlobal(name string) (Object, bool) {
	obj, ok := f.globalObjs[name]
	return obj, ok
}

func (f *fakeTarget) Eval(_ int, expr string, pretty bool) (string, error) {
	v, ok := f.values[expr]
	if !ok {
		return "", fmt.Errorf("undefined name '%s'", expr)
	}
	if pretty {
		return "pretty:" + v, nil
	}
	return v, nil
}

func (f *fakeTarget) Exec(_ int, stmt string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, stmt)
	return f.execErr
}

func (f *fakeTarget) Source(filename string) (string, error) {
	if filename != f.file {
		return "", os.ErrNotExist
	}
	return f.src, nil
}

// fakeTracee runs a straight-line program through whatever tracer is installed.
type fakeTracee struct {
	mu      sync.Mutex
	tracer  Tracer
	removed int
}

func (t *fakeTracee) SetTracer(tr Tracer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tr == nil && t.tracer != nil {
		t.removed++
	}
	t.tracer = tr
}

func (t *fakeTracee) current() Tracer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tracer
}

// run reports lines first..last of target's file, then finishes.
func (t *fakeTracee) run(target *fakeTarget, first, last int) {
	for line := first; line <= last; line++ {
		target.setLine(line)
		if tr := t.current(); tr != nil {
			tr.TraceLine(target, Location{Filename: target.file, Line: line, Depth: 1})
		}
	}
	if tr := t.current(); tr != nil {
		tr.TraceFinished()
	}
}

var errBoom = errors.New("boom")
