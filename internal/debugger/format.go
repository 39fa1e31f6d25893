package debugger

import (
	"fmt"
	"sort"
	"strings"
)

// IsDunder reports whether name is wrapped in double underscores on both ends.
// Such names are internal and hidden from listings.
func IsDunder(name string) bool {
	return len(name) >= 4 && strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__")
}

// FormatVariables renders bindings as sorted "name = repr" lines, skipping
// dunder names.
func FormatVariables(vars []Variable) string {
	lines := make([]string, 0, len(vars))
	for _, v := range vars {
		if IsDunder(v.Name) {
			continue
		}
		lines = append(lines, v.Name+" = "+v.Value)
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

func countLines(src string) int {
	if src == "" {
		return 0
	}
	n := strings.Count(src, "\n")
	if !strings.HasSuffix(src, "\n") {
		n++
	}
	return n
}

func splitLines(src string) []string {
	src = strings.TrimSuffix(src, "\n")
	if src == "" {
		return nil
	}
	return strings.Split(src, "\n")
}

func functionName(f Frame) string {
	if f.Function == "" {
		return "<main>"
	}
	return f.Function
}

// stackEntry formats frame i as pdb does: "> file(line)func()" followed by
// the source line.
func (d *Debugger) stackEntry(i int, prefix string) string {
	f := d.stack[i]
	entry := fmt.Sprintf("%s%s(%d)%s()", prefix, f.Filename, f.Line, functionName(f))
	if line, ok := d.sourceLine(f.Filename, f.Line); ok {
		entry += "\n-> " + strings.TrimSpace(line)
	}
	return entry
}

func (d *Debugger) sourceLines(filename string) ([]string, error) {
	if d.target == nil {
		return nil, ErrNoFrame
	}
	src, err := d.target.Source(filename)
	if err != nil {
		return nil, err
	}
	return splitLines(src), nil
}

func (d *Debugger) sourceLine(filename string, n int) (string, bool) {
	lines, err := d.sourceLines(filename)
	if err != nil || n < 1 || n > len(lines) {
		return "", false
	}
	return lines[n-1], true
}

// printLines lists lines first..last of filename, marking breakpoints with B
// and the selected frame's line with ->.
func (d *Debugger) printLines(filename string, lines []string, first, last, current int) int {
	bps := make(map[int]bool)
	for _, n := range d.breaks.lines(filename) {
		bps[n] = true
	}
	if last > len(lines) {
		last = len(lines)
	}
	var sb strings.Builder
	printed := 0
	for n := first; n <= last; n++ {
		mark := " "
		if bps[n] {
			mark = "B"
		}
		arrow := "  "
		if n == current {
			arrow = "->"
		}
		fmt.Fprintf(&sb, "%3d %s%s\t%s\n", n, mark, arrow, lines[n-1])
		printed = n
	}
	if printed == 0 {
		d.println("[EOF]")
		return 0
	}
	d.console.WriteString(sb.String())
	return printed
}
