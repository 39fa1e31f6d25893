package debugger

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Action tells the command loop what to do after a command ran.
type Action int

const (
	Stay   Action = iota // keep reading commands
	Resume               // continue the program
	Quit                 // end the session
)

// Command is an entry of the dispatch table.
type Command struct {
	Names []string // first is the canonical name, the rest are aliases
	Usage string
	Help  string
	Run   func(d *Debugger, arg string) Action
}

// Register adds cmd to the dispatch table, replacing any command that used
// one of its names.
func (d *Debugger) Register(cmd Command) {
	c := &cmd
	for _, name := range c.Names {
		d.commands[name] = c
	}
	kept := d.ordered[:0]
	for _, old := range d.ordered {
		if d.commands[old.Names[0]] == old {
			kept = append(kept, old)
		}
	}
	d.ordered = append(kept, c)
}

func registerBuiltins(d *Debugger) {
	for _, cmd := range []Command{
		{Names: []string{"help", "h"}, Usage: "h(elp) [command]", Help: "Without argument, list the available commands. With a command name, print help about that command.", Run: doHelp},
		{Names: []string{"step", "s"}, Usage: "s(tep)", Help: "Execute the current line, stop at the first possible occasion (either in a function that is called or in the current function).", Run: doStep},
		{Names: []string{"next", "n"}, Usage: "n(ext)", Help: "Continue execution until the next line in the current function is reached or it returns.", Run: doNext},
		{Names: []string{"return", "r"}, Usage: "r(eturn)", Help: "Continue execution until the current function returns.", Run: doReturn},
		{Names: []string{"continue", "c", "cont"}, Usage: "c(ont(inue))", Help: "Continue execution, only stop when a breakpoint is encountered.", Run: doContinue},
		{Names: []string{"until", "unt"}, Usage: "unt(il) [lineno]", Help: "Without argument, continue execution until a line with a number greater than the current one is reached. With a line number, continue until a line with a number greater or equal to that is reached. In both cases, also stop when the current frame returns.", Run: doUntil},
		{Names: []string{"break", "b"}, Usage: "b(reak) [([filename:]lineno) [, condition]]", Help: "Without argument, list all breaks. With a line number argument, set a break at this line in the current file. With a condition, the break is only honoured when the condition is true.", Run: doBreak},
		{Names: []string{"tbreak"}, Usage: "tbreak [([filename:]lineno) [, condition]]", Help: "Same arguments as break, but sets a temporary breakpoint: it is automatically deleted when first hit.", Run: doTbreak},
		{Names: []string{"clear", "cl"}, Usage: "cl(ear) [filename:lineno | bpnumber ...]", Help: "With a space separated list of breakpoint numbers, clear those breakpoints. Without argument, clear all breaks. With a filename:lineno argument, clear all breaks at that line.", Run: doClear},
		{Names: []string{"where", "w", "bt"}, Usage: "w(here)", Help: "Print a stack trace, with the most recent frame at the bottom. An arrow indicates the current frame, which determines the context of most commands.", Run: doWhere},
		{Names: []string{"up", "u"}, Usage: "u(p) [count]", Help: "Move the current frame count (default one) levels up in the stack trace (to an older frame).", Run: doUp},
		{Names: []string{"down", "d"}, Usage: "d(own) [count]", Help: "Move the current frame count (default one) levels down in the stack trace (to a newer frame).", Run: doDown},
		{Names: []string{"list", "l"}, Usage: "l(ist) [first [,last] | .]", Help: "List source code for the current file. Without arguments, list 11 lines around the current line or continue the previous listing. With . as argument, list 11 lines around the current line. With one argument, list 11 lines starting at that line. With two arguments, list the given range; if the second argument is less than the first, it is a count.", Run: doList},
		{Names: []string{"longlist", "ll"}, Usage: "ll | longlist", Help: "List the whole source code for the current function or chunk.", Run: doLonglist},
		{Names: []string{"args", "a"}, Usage: "a(rgs)", Help: "Print the argument list of the current function.", Run: doArgs},
		{Names: []string{"p"}, Usage: "p expression", Help: "Print the value of the expression.", Run: doPrint},
		{Names: []string{"pp"}, Usage: "pp expression", Help: "Pretty-print the value of the expression.", Run: doPrettyPrint},
		{Names: []string{"inspect", "i"}, Usage: "i(nspect) object", Help: "Inspect an object: print its type and all its public members.", Run: doInspect},
		{Names: []string{"quit", "q", "exit"}, Usage: "q(uit) | exit", Help: "Stop and quit the current debugging session. The program continues without the debugger.", Run: doQuit},
	} {
		d.Register(cmd)
	}
}

func doHelp(d *Debugger, arg string) Action {
	if arg != "" {
		cmd, ok := d.commands[arg]
		if !ok {
			d.fail(fmt.Sprintf("No help for '%s'", arg))
			return Stay
		}
		d.println(cmd.Usage + "\n        " + cmd.Help)
		return Stay
	}
	names := make([]string, 0, len(d.ordered))
	for _, c := range d.ordered {
		names = append(names, c.Names...)
	}
	sort.Strings(names)
	d.println("\nDocumented commands (type help <topic>):\n========================================")
	d.println(columnize(names, 80))
	d.println("\n!statement or any line that is not a command is executed in the current frame.")
	return Stay
}

func columnize(words []string, width int) string {
	maxLen := 0
	for _, w := range words {
		maxLen = max(maxLen, len(w))
	}
	colWidth := maxLen + 2
	perRow := max(1, width/colWidth)
	var sb strings.Builder
	for i, w := range words {
		if i > 0 && i%perRow == 0 {
			sb.WriteString("\n")
		}
		if (i+1)%perRow == 0 || i == len(words)-1 {
			sb.WriteString(w)
		} else {
			sb.WriteString(w + strings.Repeat(" ", colWidth-len(w)))
		}
	}
	return sb.String()
}

// =============================================================================
// Execution control
// =============================================================================

func doStep(d *Debugger, _ string) Action {
	d.setStep()
	return Resume
}

func doNext(d *Debugger, _ string) Action {
	d.setNext(d.cur + 1)
	return Resume
}

func doReturn(d *Debugger, _ string) Action {
	d.setReturn(d.cur + 1)
	return Resume
}

func doContinue(d *Debugger, _ string) Action {
	d.setContinue()
	return Resume
}

func doUntil(d *Debugger, arg string) Action {
	if d.cur < 0 {
		d.setStep()
		return Resume
	}
	line := d.stack[d.cur].Line + 1
	if arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil {
			d.fail("Error in argument: " + strconv.Quote(arg))
			return Stay
		}
		if n <= d.stack[d.cur].Line {
			d.fail(`"until" line number is smaller than current line number`)
			return Stay
		}
		line = n
	}
	d.setUntil(d.cur+1, line)
	return Resume
}

func doQuit(d *Debugger, _ string) Action {
	d.detach()
	return Quit
}

// =============================================================================
// Breakpoints
// =============================================================================

func doBreak(d *Debugger, arg string) Action {
	return setBreak(d, arg, false)
}

func doTbreak(d *Debugger, arg string) Action {
	return setBreak(d, arg, true)
}

func setBreak(d *Debugger, arg string, temporary bool) Action {
	if arg == "" {
		if !temporary {
			listBreaks(d)
		}
		return Stay
	}
	spec, cond, _ := strings.Cut(arg, ",")
	spec, cond = strings.TrimSpace(spec), strings.TrimSpace(cond)

	file := ""
	if d.cur >= 0 {
		file = d.stack[d.cur].Filename
	}
	lineStr := spec
	if i := strings.LastIndex(spec, ":"); i >= 0 {
		file, lineStr = canonicalFile(strings.TrimSpace(spec[:i])), spec[i+1:]
	}
	line, err := strconv.Atoi(strings.TrimSpace(lineStr))
	if err != nil {
		d.fail(fmt.Sprintf("Bad lineno: %s", lineStr))
		return Stay
	}
	if file == "" {
		d.fail("No current file to set a breakpoint in")
		return Stay
	}
	lines, err := d.sourceLines(file)
	if err != nil {
		d.fail(fmt.Sprintf("'%s' not found", file))
		return Stay
	}
	if line < 1 || line > len(lines) {
		d.fail(fmt.Sprintf("Line %d out of range for %s", line, file))
		return Stay
	}
	if text := strings.TrimSpace(lines[line-1]); text == "" || strings.HasPrefix(text, "--") {
		d.fail("Blank or comment")
		return Stay
	}
	bp := d.breaks.add(file, line, temporary, cond)
	d.printf("Breakpoint %d at %s:%d\n", bp.Number, bp.File, bp.Line)
	return Stay
}

func listBreaks(d *Debugger) {
	bps := d.breaks.list()
	if len(bps) == 0 {
		return
	}
	var sb strings.Builder
	sb.WriteString("Num Type         Disp Enb   Where\n")
	for _, bp := range bps {
		disp := "keep"
		if bp.Temporary {
			disp = "del "
		}
		fmt.Fprintf(&sb, "%-3d breakpoint   %s yes   at %s:%d\n", bp.Number, disp, bp.File, bp.Line)
		if bp.Cond != "" {
			fmt.Fprintf(&sb, "\tstop only if %s\n", bp.Cond)
		}
		if bp.Hits == 1 {
			sb.WriteString("\tbreakpoint already hit 1 time\n")
		} else if bp.Hits > 1 {
			fmt.Fprintf(&sb, "\tbreakpoint already hit %d times\n", bp.Hits)
		}
	}
	d.console.WriteString(sb.String())
}

func doClear(d *Debugger, arg string) Action {
	if arg == "" {
		for _, bp := range d.breaks.list() {
			d.breaks.remove(bp)
			d.printf("Deleted breakpoint %d at %s:%d\n", bp.Number, bp.File, bp.Line)
		}
		return Stay
	}
	if i := strings.LastIndex(arg, ":"); i >= 0 {
		file := canonicalFile(strings.TrimSpace(arg[:i]))
		line, err := strconv.Atoi(strings.TrimSpace(arg[i+1:]))
		if err != nil {
			d.fail(fmt.Sprintf("Invalid line number (%s)", arg[i+1:]))
			return Stay
		}
		hits := d.breaks.at(file, line)
		if len(hits) == 0 {
			d.fail(fmt.Sprintf("There is no breakpoint at %s:%d", file, line))
			return Stay
		}
		for _, bp := range hits {
			d.breaks.remove(bp)
			d.printf("Deleted breakpoint %d at %s:%d\n", bp.Number, bp.File, bp.Line)
		}
		return Stay
	}
	for _, field := range strings.Fields(arg) {
		n, err := strconv.Atoi(field)
		if err != nil {
			d.fail(fmt.Sprintf("Non-numeric breakpoint number %s", field))
			continue
		}
		bp := d.breaks.byNumber(n)
		if bp == nil {
			d.fail(fmt.Sprintf("Breakpoint %d does not exist", n))
			continue
		}
		d.breaks.remove(bp)
		d.printf("Deleted breakpoint %d at %s:%d\n", bp.Number, bp.File, bp.Line)
	}
	return Stay
}

// =============================================================================
// Stack navigation and listings
// =============================================================================

func doWhere(d *Debugger, _ string) Action {
	for i := range d.stack {
		prefix := "  "
		if i == d.cur {
			prefix = "> "
		}
		d.println(d.stackEntry(i, prefix))
	}
	return Stay
}

func parseCount(d *Debugger, arg string) (int, bool) {
	if arg == "" {
		return 1, true
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		d.fail(fmt.Sprintf("Invalid frame count (%s)", arg))
		return 0, false
	}
	return n, true
}

func doUp(d *Debugger, arg string) Action {
	n, ok := parseCount(d, arg)
	if !ok {
		return Stay
	}
	if d.cur <= 0 {
		d.fail("Oldest frame")
		return Stay
	}
	d.selectFrame(max(0, d.cur-n))
	return Stay
}

func doDown(d *Debugger, arg string) Action {
	n, ok := parseCount(d, arg)
	if !ok {
		return Stay
	}
	if d.cur+1 >= len(d.stack) {
		d.fail("Newest frame")
		return Stay
	}
	d.selectFrame(min(len(d.stack)-1, d.cur+n))
	return Stay
}

func (d *Debugger) selectFrame(i int) {
	d.cur = i
	d.lastListed = 0
	d.println(d.stackEntry(i, "> "))
}

func doList(d *Debugger, arg string) Action {
	if d.cur < 0 {
		d.fail("no current frame")
		return Stay
	}
	f := d.stack[d.cur]
	lines, err := d.sourceLines(f.Filename)
	if err != nil {
		d.fail("could not get source code")
		return Stay
	}

	var first, last int
	switch {
	case arg == "" && d.lastListed > 0:
		first = d.lastListed + 1
	case arg == "" || arg == ".":
		first = max(1, f.Line-5)
	default:
		a, b, hasLast := strings.Cut(arg, ",")
		n, err := strconv.Atoi(strings.TrimSpace(a))
		if err != nil {
			d.fail("Error in argument: " + strconv.Quote(arg))
			return Stay
		}
		if !hasLast {
			first = max(1, n-5)
			break
		}
		m, err := strconv.Atoi(strings.TrimSpace(b))
		if err != nil {
			d.fail("Error in argument: " + strconv.Quote(arg))
			return Stay
		}
		first, last = max(1, n), m
		if last < first {
			last = first + last
		}
	}
	if last == 0 {
		last = first + 10
	}
	if printed := d.printLines(f.Filename, lines, first, last, f.Line); printed > 0 {
		d.lastListed = printed
	}
	return Stay
}

func doLonglist(d *Debugger, _ string) Action {
	if d.cur < 0 {
		d.fail("no current frame")
		return Stay
	}
	f := d.stack[d.cur]
	lines, err := d.sourceLines(f.Filename)
	if err != nil {
		d.fail("could not get source code")
		return Stay
	}
	first, last := 1, len(lines)
	if f.FirstLine > 0 {
		first, last = f.FirstLine, max(f.FirstLine, f.LastLine)
	}
	d.printLines(f.Filename, lines, first, last, f.Line)
	return Stay
}

// =============================================================================
// Data inspection
// =============================================================================

func doArgs(d *Debugger, _ string) Action {
	if d.cur < 0 {
		d.fail("no current frame")
		return Stay
	}
	for _, v := range d.target.Args(d.cur) {
		d.println(v.Name + " = " + v.Value)
	}
	return Stay
}

func doPrint(d *Debugger, arg string) Action {
	return printExpr(d, arg, false)
}

func doPrettyPrint(d *Debugger, arg string) Action {
	return printExpr(d, arg, true)
}

func printExpr(d *Debugger, expr string, pretty bool) Action {
	if d.cur < 0 {
		d.fail("no current frame")
		return Stay
	}
	if expr == "" {
		d.fail("Argument required")
		return Stay
	}
	v, err := d.target.Eval(d.cur, expr, pretty)
	if err != nil {
		d.fail(err.Error())
		return Stay
	}
	d.println(v)
	return Stay
}

// doInspect looks name up in the local scope of the selected frame, then in
// the global scope, and prints its type and public members.
func doInspect(d *Debugger, name string) Action {
	obj, ok := Object{}, false
	if d.target != nil && d.cur >= 0 {
		obj, ok = d.target.LookupLocal(d.cur, name)
		if !ok {
			obj, ok = d.target.LookupGlobal(name)
		}
	}
	if !ok {
		d.printf("NameError: name \"%s\" is not defined\n", name)
		d.console.Flush()
		return Stay
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s = <%s>:\n", name, obj.Type)
	members := append([]Variable(nil), obj.Members...)
	sort.Slice(members, func(i, j int) bool { return members[i].Name < members[j].Name })
	for _, m := range members {
		if IsDunder(m.Name) {
			continue
		}
		fmt.Fprintf(&sb, "    %s: %s\n", m.Name, m.Value)
	}
	d.console.WriteString(sb.String())
	d.console.Flush()
	return Stay
}
