package debugger

import (
	"path/filepath"
	"sort"
	"strings"
)

// Breakpoint is a line breakpoint. Temporary breakpoints are deleted on first hit.
type Breakpoint struct {
	Number    int
	File      string
	Line      int
	Temporary bool
	Cond      string
	Hits      int
}

// breakpoints is only touched from the debugger goroutine.
type breakpoints struct {
	next  int
	all   []*Breakpoint // ordered by number
	index map[string]map[int]int
}

func newBreakpoints() *breakpoints {
	return &breakpoints{next: 1, index: make(map[string]map[int]int)}
}

// canonicalFile turns a user-supplied path into the form frames report.
// Pseudo names such as "<string>" are kept as they are.
func canonicalFile(name string) string {
	if name == "" || strings.HasPrefix(name, "<") {
		return name
	}
	if abs, err := filepath.Abs(name); err == nil {
		return abs
	}
	return filepath.Clean(name)
}

func (b *breakpoints) add(file string, line int, temporary bool, cond string) *Breakpoint {
	bp := &Breakpoint{Number: b.next, File: file, Line: line, Temporary: temporary, Cond: cond}
	b.next++
	b.all = append(b.all, bp)
	if b.index[file] == nil {
		b.index[file] = make(map[int]int)
	}
	b.index[file][line]++
	return bp
}

func (b *breakpoints) remove(bp *Breakpoint) {
	for i, cur := range b.all {
		if cur == bp {
			b.all = append(b.all[:i], b.all[i+1:]...)
			break
		}
	}
	if lines := b.index[bp.File]; lines != nil {
		if lines[bp.Line]--; lines[bp.Line] <= 0 {
			delete(lines, bp.Line)
		}
		if len(lines) == 0 {
			delete(b.index, bp.File)
		}
	}
}

// at returns the breakpoints set on file:line. The fast path is a map miss.
func (b *breakpoints) at(file string, line int) []*Breakpoint {
	if b.index[file][line] == 0 {
		return nil
	}
	var hits []*Breakpoint
	for _, bp := range b.all {
		if bp.File == file && bp.Line == line {
			hits = append(hits, bp)
		}
	}
	return hits
}

func (b *breakpoints) byNumber(n int) *Breakpoint {
	for _, bp := range b.all {
		if bp.Number == n {
			return bp
		}
	}
	return nil
}

// lines returns the sorted, distinct breakpoint lines of file.
func (b *breakpoints) lines(file string) []int {
	lines := make([]int, 0, len(b.index[file]))
	for n := range b.index[file] {
		lines = append(lines, n)
	}
	sort.Ints(lines)
	return lines
}

func (b *breakpoints) list() []*Breakpoint {
	return append([]*Breakpoint(nil), b.all...)
}
