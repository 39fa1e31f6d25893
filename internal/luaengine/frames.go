package luaengine

import (
	"fmt"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"webdbg/internal/debugger"
)

// slot is a named variable of a captured frame. store writes through to the
// live interpreter; it is nil for frames captured after a fault.
type slot struct {
	name  string
	value lua.LValue
	store func(lua.LValue)
}

func (s *slot) set(v lua.LValue) {
	s.value = v
	if s.store != nil {
		s.store(v)
	}
}

type frameState struct {
	frame   debugger.Frame
	nparams int
	locals  []*slot
	upvals  []*slot
}

// captureFrames walks the Lua frames from level skip outwards and returns
// them outermost first. Go function frames are left out.
func captureFrames(L *lua.LState, skip int, live bool) []*frameState {
	var inner []*frameState
	for level := skip; ; level++ {
		dbg, ok := L.GetStack(level)
		if !ok {
			break
		}
		if !isLuaFrame(L, dbg) {
			continue
		}
		if _, err := L.GetInfo("l", dbg, lua.LNil); err != nil {
			continue
		}
		fs := &frameState{frame: debugger.Frame{Filename: dbg.Source, Line: dbg.CurrentLine}}
		if !isMainChunk(dbg) {
			if _, err := L.GetInfo("n", dbg, lua.LNil); err != nil || dbg.Name == "" {
				dbg.Name = "?"
			}
			fs.frame.Function = dbg.Name
			fs.frame.FirstLine, fs.frame.LastLine = dbg.LineDefined, dbg.LastLineDefined
		}
		for no := 1; ; no++ {
			name, v := L.GetLocal(dbg, no)
			if name == "" {
				break
			}
			s := &slot{name: name, value: v}
			if live {
				d, n := dbg, no
				s.store = func(v lua.LValue) { L.SetLocal(d, n, v) }
			}
			fs.locals = append(fs.locals, s)
		}
		fv, _ := L.GetInfo("f", dbg, lua.LNil)
		if fn, ok := fv.(*lua.LFunction); ok && !fn.IsG {
			fs.nparams = int(fn.Proto.NumParameters)
			for no := 1; ; no++ {
				name, v := L.GetUpvalue(fn, no)
				if name == "" {
					break
				}
				s := &slot{name: name, value: v}
				if live {
					n := no
					s.store = func(v lua.LValue) { L.SetUpvalue(fn, n, v) }
				}
				fs.upvals = append(fs.upvals, s)
			}
		}
		inner = append(inner, fs)
	}
	frames := make([]*frameState, len(inner))
	for i, fs := range inner {
		frames[len(inner)-1-i] = fs
	}
	return frames
}

// isLuaFrame fills in the source fields of dbg and reports whether it is a
// Lua function rather than a Go one.
func isLuaFrame(L *lua.LState, dbg *lua.Debug) bool {
	_, err := L.GetInfo("S", dbg, lua.LNil)
	return err == nil && dbg.What != "G"
}

// isMainChunk reports whether dbg is a compiled chunk rather than a function
// defined in one. Chunks start at line 0.
func isMainChunk(dbg *lua.Debug) bool {
	return dbg.What == "main" || dbg.LineDefined == 0
}

// visible returns the locals in scope, skipping internal "(for ...)" slots.
// A shadowing local hides the earlier one of the same name.
func (fs *frameState) visible() []*slot {
	index := make(map[string]int)
	var out []*slot
	for _, s := range fs.locals {
		if strings.HasPrefix(s.name, "(") {
			continue
		}
		if i, ok := index[s.name]; ok {
			out[i] = s
			continue
		}
		index[s.name] = len(out)
		out = append(out, s)
	}
	return out
}

func (fs *frameState) lookup(name string) *slot {
	vis := fs.visible()
	for i := len(vis) - 1; i >= 0; i-- {
		if vis[i].name == name {
			return vis[i]
		}
	}
	for _, s := range fs.upvals {
		if s.name == name {
			return s
		}
	}
	return nil
}

// =============================================================================
// debugger.Target
// =============================================================================

// frameTarget exposes captured Lua frames to the debugger.
type frameTarget struct {
	e      *Engine
	load   func() []*frameState
	frames []*frameState
}

// newLiveTarget captures the frames of a running program on first use. It is
// valid only while the tracer callback it was passed to runs.
func newLiveTarget(e *Engine, L *lua.LState, line int) *frameTarget {
	return &frameTarget{e: e, load: func() []*frameState {
		frames := captureFrames(L, 1, true)
		if n := len(frames); n > 0 {
			frames[n-1].frame.Line = line
		}
		return frames
	}}
}

func (t *frameTarget) all() []*frameState {
	if t.load != nil {
		t.frames, t.load = t.load(), nil
	}
	return t.frames
}

func (t *frameTarget) at(i int) (*frameState, error) {
	frames := t.all()
	if i < 0 || i >= len(frames) {
		return nil, debugger.ErrNoFrame
	}
	return frames[i], nil
}

func (t *frameTarget) Stack() []debugger.Frame {
	frames := t.all()
	out := make([]debugger.Frame, len(frames))
	for i, fs := range frames {
		out[i] = fs.frame
	}
	return out
}

func (t *frameTarget) Locals(i int) []debugger.Variable {
	fs, err := t.at(i)
	if err != nil {
		return nil
	}
	return variables(fs.visible())
}

func (t *frameTarget) Args(i int) []debugger.Variable {
	fs, err := t.at(i)
	if err != nil {
		return nil
	}
	n := min(fs.nparams, len(fs.locals))
	return variables(fs.locals[:n])
}

func (t *frameTarget) Globals() []debugger.Variable {
	var vars []debugger.Variable
	t.e.globals().ForEach(func(k, v lua.LValue) {
		name, ok := k.(lua.LString)
		if !ok || t.e.builtin[string(name)] {
			return
		}
		vars = append(vars, debugger.Variable{Name: string(name), Value: Repr(v, false)})
	})
	return vars
}

func (t *frameTarget) LookupLocal(i int, name string) (debugger.Object, bool) {
	fs, err := t.at(i)
	if err != nil {
		return debugger.Object{}, false
	}
	s := fs.lookup(name)
	if s == nil {
		return debugger.Object{}, false
	}
	return objectOf(t.e.L, s.value), true
}

func (t *frameTarget) LookupGlobal(name string) (debugger.Object, bool) {
	v := t.e.globals().RawGetString(name)
	if v == lua.LNil {
		return debugger.Object{}, false
	}
	return objectOf(t.e.L, v), true
}

// Eval evaluates expr in frame i. Several results are joined with ", ".
func (t *frameTarget) Eval(i int, expr string, pretty bool) (string, error) {
	results, err := t.run(i, "return "+expr)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "nil", nil
	}
	parts := make([]string, len(results))
	for j, v := range results {
		parts[j] = Repr(v, pretty)
	}
	return strings.Join(parts, ", "), nil
}

// Exec runs stmt in frame i. Assignments to locals of the frame change them.
func (t *frameTarget) Exec(i int, stmt string) error {
	_, err := t.run(i, stmt)
	return err
}

func (t *frameTarget) Source(filename string) (string, error) {
	return t.e.source(filename)
}

func (t *frameTarget) run(i int, code string) ([]lua.LValue, error) {
	fs, err := t.at(i)
	if err != nil {
		return nil, err
	}
	L := t.e.L
	fn, err := L.LoadString(code)
	if err != nil {
		return nil, fmt.Errorf("%s", luaMessage(err))
	}
	L.SetFEnv(fn, t.env(fs))
	return t.e.call(fn)
}

// env resolves names to the frame's locals and upvalues, then to globals.
func (t *frameTarget) env(fs *frameState) *lua.LTable {
	L := t.e.L
	globals := t.e.globals()
	env := L.NewTable()
	mt := L.NewTable()
	mt.RawSetString("__index", L.NewFunction(func(L *lua.LState) int {
		key := L.Get(2)
		if name, ok := key.(lua.LString); ok {
			if s := fs.lookup(string(name)); s != nil {
				L.Push(s.value)
				return 1
			}
		}
		L.Push(globals.RawGet(key))
		return 1
	}))
	mt.RawSetString("__newindex", L.NewFunction(func(L *lua.LState) int {
		key, val := L.Get(2), L.Get(3)
		if name, ok := key.(lua.LString); ok {
			if s := fs.lookup(string(name)); s != nil {
				s.set(val)
				return 0
			}
		}
		globals.RawSet(key, val)
		return 0
	}))
	L.SetMetatable(env, mt)
	return env
}

func variables(slots []*slot) []debugger.Variable {
	vars := make([]debugger.Variable, len(slots))
	for i, s := range slots {
		vars[i] = debugger.Variable{Name: s.name, Value: Repr(s.value, false)}
	}
	return vars
}

// objectOf describes v for the inspect command. Tables list their string
// keys and those reachable through __index tables, own keys first.
func objectOf(L *lua.LState, v lua.LValue) debugger.Object {
	obj := debugger.Object{Type: v.Type().String()}
	tbl, ok := v.(*lua.LTable)
	if !ok {
		return obj
	}
	seen := make(map[string]bool)
	for depth := 0; tbl != nil && depth < maxReprDepth; depth++ {
		var level []debugger.Variable
		tbl.ForEach(func(k, val lua.LValue) {
			name, ok := k.(lua.LString)
			if !ok || seen[string(name)] {
				return
			}
			seen[string(name)] = true
			level = append(level, debugger.Variable{Name: string(name), Value: Repr(val, false)})
		})
		sort.Slice(level, func(i, j int) bool { return level[i].Name < level[j].Name })
		obj.Members = append(obj.Members, level...)

		mt, ok := L.GetMetatable(tbl).(*lua.LTable)
		if !ok {
			break
		}
		tbl, _ = mt.RawGetString("__index").(*lua.LTable)
	}
	return obj
}

var _ debugger.Target = (*frameTarget)(nil)
