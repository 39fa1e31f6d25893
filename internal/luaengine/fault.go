package luaengine

import (
	lua "github.com/yuin/gopher-lua"

	"webdbg/internal/debugger"
)

// Fault is a Lua runtime error together with the frames it was raised in.
// The frames stay inspectable after the interpreter unwound them; their
// variables are copies.
type Fault struct {
	Message string
	target  *frameTarget
}

func (f *Fault) Error() string {
	return f.Message
}

// Traceback implements debugger.TracebackProvider.
func (f *Fault) Traceback() *debugger.Traceback {
	return &debugger.Traceback{Err: f, Target: f.target}
}

// faultHandler returns a message handler for PCall that records the fault
// in *dst before the stack unwinds.
func (e *Engine) faultHandler(dst **Fault) *lua.LFunction {
	return e.L.NewFunction(func(L *lua.LState) int {
		errv := L.Get(1)
		*dst = e.capture(L, errv)
		L.Push(errv)
		return 1
	})
}

// capture copies the Lua frames below the running Go function.
func (e *Engine) capture(L *lua.LState, errv lua.LValue) *Fault {
	msg := errv.String()
	if _, ok := errv.(lua.LString); !ok {
		msg = Repr(errv, false)
	}
	return &Fault{
		Message: msg,
		target:  &frameTarget{e: e, frames: captureFrames(L, 1, false)},
	}
}

var _ debugger.TracebackProvider = (*Fault)(nil)
