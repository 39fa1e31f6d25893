package luaengine

import (
	"io"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"webdbg/internal/config"
	"webdbg/internal/debugger"
)

func (e *Engine) installBuiltins() {
	L := e.L
	L.SetGlobal(traceFunc, L.NewFunction(e.trace))
	L.SetGlobal("print", L.NewFunction(e.print))
	if ioTbl, ok := L.GetGlobal("io").(*lua.LTable); ok {
		L.SetField(ioTbl, "write", L.NewFunction(e.ioWrite))
		L.SetField(ioTbl, "read", L.NewFunction(e.ioRead))
	}
	L.SetGlobal(ModuleName, L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"set_trace":         e.setTrace,
		"post_mortem":       e.postMortem,
		"catch_post_mortem": e.catchPostMortem,
	}))
}

func (e *Engine) print(L *lua.LState) int {
	n := L.GetTop()
	parts := make([]string, n)
	for i := 1; i <= n; i++ {
		parts[i-1] = L.ToStringMeta(L.Get(i)).String()
	}
	e.write(strings.Join(parts, "\t") + "\n")
	return 0
}

func (e *Engine) ioWrite(L *lua.LState) int {
	var sb strings.Builder
	for i := 1; i <= L.GetTop(); i++ {
		switch v := L.Get(i).(type) {
		case lua.LString, lua.LNumber:
			sb.WriteString(v.String())
		default:
			L.ArgError(i, "string expected, got "+v.Type().String())
		}
	}
	e.write(sb.String())
	return 0
}

// ioRead supports the "*l", "*n" and "*a" formats of io.read.
func (e *Engine) ioRead(L *lua.LState) int {
	format := strings.TrimPrefix(L.OptString(1, "*l"), "*")
	r := e.reader()
	switch format {
	case "a":
		data, err := io.ReadAll(r)
		if err != nil {
			L.RaiseError("read error: %v", err)
		}
		L.Push(lua.LString(data))
	case "n", "l":
		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			L.Push(lua.LNil)
			return 1
		}
		line = strings.TrimRight(line, "\r\n")
		if format == "l" {
			L.Push(lua.LString(line))
			break
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
		if err != nil {
			L.Push(lua.LNil)
			break
		}
		L.Push(lua.LNumber(n))
	default:
		L.ArgError(1, "invalid format")
	}
	return 1
}

// =============================================================================
// webdbg module
// =============================================================================

// sessionOptions applies the optional {host=, port=, patch_stdstreams=} table
// at argument idx to a copy of the engine's debugger options.
func (e *Engine) sessionOptions(L *lua.LState, idx int) debugger.Options {
	opts := e.dbgOpts
	cfg := config.Default()
	if opts.Config != nil {
		c := *opts.Config
		cfg = &c
	}
	if opts.Logger == nil {
		opts.Logger = e.logger
	}
	if tbl, ok := L.Get(idx).(*lua.LTable); ok {
		if host, ok := tbl.RawGetString("host").(lua.LString); ok {
			cfg.Server.Host = string(host)
		}
		if port, ok := tbl.RawGetString("port").(lua.LNumber); ok {
			cfg.Server.Port = int(port)
		}
		if patch, ok := tbl.RawGetString("patch_stdstreams").(lua.LBool); ok {
			cfg.Server.PatchStdStreams = bool(patch)
		}
	}
	opts.Config = cfg
	return opts
}

// setTrace starts or rebinds the debugger; the next line of the script stops.
func (e *Engine) setTrace(L *lua.LState) int {
	if _, err := debugger.Attach(e, e.sessionOptions(L, 1)); err != nil {
		L.RaiseError("%s", err.Error())
	}
	return 0
}

// postMortem opens a session on the frames an error was raised in. It is
// meant as an xpcall message handler and returns the error unchanged.
func (e *Engine) postMortem(L *lua.LState) int {
	errv := L.Get(1)
	if errv == lua.LNil {
		L.RaiseError("%s", debugger.ErrNoTraceback.Error())
	}
	fault := e.capture(L, errv)
	if err := debugger.PostMortem(fault.Traceback(), e.sessionOptions(L, 2)); err != nil {
		L.RaiseError("%s", err.Error())
	}
	L.Push(errv)
	return 1
}

// catchPostMortem calls fn and opens a post-mortem session when it fails. It
// returns true when fn succeeded.
func (e *Engine) catchPostMortem(L *lua.LState) int {
	fn := L.CheckFunction(1)
	var fault *Fault
	L.Push(fn)
	if err := L.PCall(0, 0, e.faultHandler(&fault)); err == nil {
		L.Push(lua.LTrue)
		return 1
	}
	if fault == nil {
		L.RaiseError("post-mortem: no frames captured")
	}
	if err := debugger.PostMortem(fault.Traceback(), e.sessionOptions(L, 2)); err != nil {
		L.RaiseError("%s (%s)", fault.Message, err.Error())
	}
	L.Push(lua.LFalse)
	return 1
}
