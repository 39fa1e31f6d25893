package debugger

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func assertContains(t *testing.T, out, want string) {
	t.Helper()
	if !strings.Contains(out, want) {
		t.Errorf("output missing %q\ngot:\n%s", want, out)
	}
}

// =============================================================================
// inspect
// =============================================================================

func TestInspect_WhenLocalExists_ShouldListPublicMembers(t *testing.T) {
	_, con, _ := runCommands(t, newFakeTarget(), "inspect Foo")
	out := con.output()
	assertContains(t, out, "Foo = <table>:\n    bar: 2\n    foo: 'foo'\n")
	if strings.Contains(out, "__index") {
		t.Errorf("dunder members should be hidden, got %q", out)
	}
	if con.flushes != 1 {
		t.Errorf("inspect should flush once, got %d", con.flushes)
	}
}

func TestInspect_WhenOnlyGlobalExists_ShouldFallBackToGlobals(t *testing.T) {
	_, con, _ := runCommands(t, newFakeTarget(), "i answer")
	assertContains(t, con.output(), "answer = <number>:\n")
}

func TestInspect_WhenUndefined_ShouldReportNameErrorWithoutSideEffects(t *testing.T) {
	target := newFakeTarget()
	d, con, _ := runCommands(t, target, "inspect spam")
	assertContains(t, con.output(), "NameError: name \"spam\" is not defined\n")

	if d.mode != modeStep || len(d.breaks.list()) != 0 || len(target.execs) != 0 {
		t.Errorf("inspect of an undefined name changed debugger state")
	}
	ref, _, _ := runCommands(t, newFakeTarget())
	got, _ := d.FrameData()
	want, _ := ref.FrameData()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("snapshot changed:\ngot  %+v\nwant %+v", got, want)
	}
	if con.flushes != 1 {
		t.Errorf("inspect should flush once, got %d", con.flushes)
	}
}

// =============================================================================
// Breakpoints
// =============================================================================

func TestBreak_ShouldSetAndReportBreakpoint(t *testing.T) {
	d, con, _ := runCommands(t, newFakeTarget(), "b 7", "break "+demoFile+":1")
	out := con.output()
	assertContains(t, out, "Breakpoint 1 at "+demoFile+":7\n")
	assertContains(t, out, "Breakpoint 2 at "+demoFile+":1\n")
	if got := d.breaks.lines(demoFile); !reflect.DeepEqual(got, []int{1, 7}) {
		t.Errorf("lines: got %v", got)
	}
}

func TestBreak_InvalidTargets(t *testing.T) {
	tests := []struct {
		cmd  string
		want string
	}{
		{"b 2", "*** Blank or comment\n"},
		{"b 3", "*** Blank or comment\n"},
		{"b 99", "*** Line 99 out of range for " + demoFile + "\n"},
		{"b x", "*** Bad lineno: x\n"},
		{"b /nowhere/missing.lua:1", "*** '/nowhere/missing.lua' not found\n"},
	}
	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			d, con, _ := runCommands(t, newFakeTarget(), tt.cmd)
			assertContains(t, con.output(), tt.want)
			if len(d.breaks.list()) != 0 {
				t.Error("no breakpoint should be set")
			}
		})
	}
}

func TestBreak_WithCondition_ShouldStoreCondition(t *testing.T) {
	d, con, _ := runCommands(t, newFakeTarget(), "b 5, n > 1", "b")
	bps := d.breaks.list()
	if len(bps) != 1 || bps[0].Cond != "n > 1" {
		t.Fatalf("want one conditional breakpoint, got %+v", bps)
	}
	assertContains(t, con.output(), "1   breakpoint   keep yes   at "+demoFile+":5\n\tstop only if n > 1\n")
}

func TestTbreak_ShouldSetTemporaryBreakpoint(t *testing.T) {
	d, con, _ := runCommands(t, newFakeTarget(), "tbreak 7", "b")
	bps := d.breaks.list()
	if len(bps) != 1 || !bps[0].Temporary {
		t.Fatalf("want one temporary breakpoint, got %+v", bps)
	}
	assertContains(t, con.output(), "breakpoint   del  yes   at "+demoFile+":7")
}

func TestClear_ByNumber(t *testing.T) {
	d, con, _ := runCommands(t, newFakeTarget(), "b 1", "b 7", "cl 1", "cl 9")
	out := con.output()
	assertContains(t, out, "Deleted breakpoint 1 at "+demoFile+":1\n")
	assertContains(t, out, "*** Breakpoint 9 does not exist\n")
	if got := d.breaks.lines(demoFile); !reflect.DeepEqual(got, []int{7}) {
		t.Errorf("remaining lines: got %v", got)
	}
}

func TestClear_ByLocation(t *testing.T) {
	d, con, _ := runCommands(t, newFakeTarget(), "b 7", "b 7", "clear "+demoFile+":7", "clear "+demoFile+":1")
	out := con.output()
	assertContains(t, out, "Deleted breakpoint 1 at "+demoFile+":7\n")
	assertContains(t, out, "Deleted breakpoint 2 at "+demoFile+":7\n")
	assertContains(t, out, "*** There is no breakpoint at "+demoFile+":1\n")
	if len(d.breaks.list()) != 0 {
		t.Error("all breakpoints at the line should be gone")
	}
}

func TestClear_WithoutArgument_ShouldClearAll(t *testing.T) {
	d, _, _ := runCommands(t, newFakeTarget(), "b 1", "b 7", "clear")
	if len(d.breaks.list()) != 0 || len(d.breaks.lines(demoFile)) != 0 {
		t.Error("clear should remove every breakpoint")
	}
}

// =============================================================================
// Stack navigation
// =============================================================================

func TestWhere_ShouldMarkSelectedFrame(t *testing.T) {
	_, con, _ := runCommands(t, newFakeTarget(), "w")
	want := "  " + demoFile + "(7)<main>()\n-> print(f(x))\n" +
		"> " + demoFile + "(5)f()\n-> return n * 2\n"
	assertContains(t, con.output(), want)
}

func TestUpDown_ShouldStopAtStackEnds(t *testing.T) {
	d, con, _ := runCommands(t, newFakeTarget(), "d", "u", "u", "d")
	out := con.output()
	assertContains(t, out, "*** Newest frame\n")
	assertContains(t, out, "*** Oldest frame\n")
	assertContains(t, out, "> "+demoFile+"(7)<main>()\n")
	if d.cur != 1 {
		t.Errorf("selected frame: want 1, got %d", d.cur)
	}
}

func TestUp_WithInvalidCount_ShouldFail(t *testing.T) {
	_, con, _ := runCommands(t, newFakeTarget(), "u zero")
	assertContains(t, con.output(), "*** Invalid frame count (zero)\n")
}

// =============================================================================
// Listings
// =============================================================================

func TestList_ShouldMarkCurrentLineAndBreakpoints(t *testing.T) {
	_, con, _ := runCommands(t, newFakeTarget(), "b 7", "l", "l")
	out := con.output()
	assertContains(t, out, "  1    \tlocal x = 1\n")
	assertContains(t, out, "  5  ->\t  return n * 2\n")
	assertContains(t, out, "  7 B  \tprint(f(x))\n")
	assertContains(t, out, "[EOF]\n")
}

func TestList_WithRange(t *testing.T) {
	_, con, _ := runCommands(t, newFakeTarget(), "l 4, 5")
	out := con.output()
	assertContains(t, out, "  4    \tlocal function f(n)\n  5  ->\t  return n * 2\n(Pdb) ")
	if strings.Contains(out, "  6 ") {
		t.Errorf("range should end at line 5, got %q", out)
	}
}

func TestLonglist_ShouldListCurrentFunction(t *testing.T) {
	_, con, _ := runCommands(t, newFakeTarget(), "ll")
	out := con.output()
	assertContains(t, out, "  4    \tlocal function f(n)\n  5  ->\t  return n * 2\n  6    \tend\n")
	if strings.Contains(out, "local x = 1\n") {
		t.Errorf("longlist should stay inside the function, got %q", out)
	}
}

// =============================================================================
// Data
// =============================================================================

func TestArgs_ShouldPrintArguments(t *testing.T) {
	_, con, _ := runCommands(t, newFakeTarget(), "a")
	assertContains(t, con.output(), "a\nn = 1\n")
}

func TestPrint(t *testing.T) {
	tests := []struct {
		cmd  string
		want string
	}{
		{"p n", "p n\n1\n"},
		{"pp n", "pp n\npretty:1\n"},
		{"p missing", "*** undefined name 'missing'\n"},
		{"p", "*** Argument required\n"},
	}
	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			_, con, _ := runCommands(t, newFakeTarget(), tt.cmd)
			assertContains(t, con.output(), tt.want)
		})
	}
}

// =============================================================================
// help and custom commands
// =============================================================================

func TestHelp(t *testing.T) {
	_, con, _ := runCommands(t, newFakeTarget(), "help", "h next", "help zzz")
	out := con.output()
	assertContains(t, out, "Documented commands (type help <topic>):")
	assertContains(t, out, "inspect")
	assertContains(t, out, "n(ext)\n        Continue execution until the next line")
	assertContains(t, out, "*** No help for 'zzz'\n")
}

func TestUntil_WithSmallerLine_ShouldStay(t *testing.T) {
	d, con, out := runCommands(t, newFakeTarget(), "unt 3")
	assertContains(t, con.output(), `*** "until" line number is smaller than current line number`)
	if out != outcomeClosed || d.mode != modeStep {
		t.Errorf("until with a past line should not resume")
	}
}

func TestUntil_WithLine_ShouldTargetThatLine(t *testing.T) {
	d, _, out := runCommands(t, newFakeTarget(), "until 6")
	if out != outcomeResume || d.mode != modeUntil || d.untilLine != 6 || d.stopDepth != 2 {
		t.Errorf("got outcome=%v mode=%v line=%d depth=%d", out, d.mode, d.untilLine, d.stopDepth)
	}
}

func TestRegister_ShouldDispatchCustomCommand(t *testing.T) {
	con := newFakeConsole("hello world")
	d := New(con)
	d.Register(Command{
		Names: []string{"hello"},
		Usage: "hello name",
		Help:  "Greet.",
		Run: func(d *Debugger, arg string) Action {
			d.Println(fmt.Sprintf("hi %s at frame %d", arg, d.SelectedFrame()))
			return Stay
		},
	})
	d.interact(newFakeTarget())
	assertContains(t, con.output(), "hi world at frame 1\n")
}

func TestRegister_ShouldReplaceCommandWithSameName(t *testing.T) {
	d := New(newFakeConsole())
	before := len(d.ordered)
	d.Register(Command{Names: []string{"p"}, Run: func(*Debugger, string) Action { return Stay }})
	if len(d.ordered) != before {
		t.Errorf("replacing a command should keep the count at %d, got %d", before, len(d.ordered))
	}
}

func TestColumnize(t *testing.T) {
	got := columnize([]string{"a", "bb", "c"}, 8)
	if got != "a   bb\nc" {
		t.Errorf("columnize: got %q", got)
	}
}
