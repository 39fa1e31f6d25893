package debugger

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"webdbg/internal/domain"
)

// Prompt is written before every command read.
const Prompt = "(Pdb) "

// Console is the channel the debugger talks to the user through.
// *console.Console implements it.
type Console interface {
	ReadLine() string
	WriteString(s string) (int, error)
	Flush()
	Refresh()
	Close() error
	Closed() bool
}

// CommandLog records commands typed at the prompt. *db.History implements it.
type CommandLog interface {
	Record(session, command string) error
}

// sourceWatcher is implemented by consoles that can follow the listed file on disk.
type sourceWatcher interface {
	WatchSource(path string) error
}

type stopMode int

const (
	modeStep     stopMode = iota // stop at the next statement anywhere
	modeNext                     // stop at the next statement at or above stopDepth
	modeReturn                   // stop once the frame at stopDepth returned
	modeUntil                    // like modeReturn, or at untilLine or later in the same frame
	modeContinue                 // stop only at breakpoints
)

// outcome tells the session how an interaction ended.
type outcome int

const (
	outcomeResume outcome = iota
	outcomeQuit
	outcomeClosed
)

// Option is a functional option for configuring a Debugger.
type Option func(*Debugger)

// WithLogger sets a structured logger for the Debugger. If l is nil it is
// ignored and the default slog logger is used.
func WithLogger(l *slog.Logger) Option {
	return func(d *Debugger) {
		if l != nil {
			d.logger = l
		}
	}
}

// Debugger is a line debugger driven by trace events. It decides where to
// stop, runs the command loop while stopped and serves the frame snapshot of
// the last stop to the console.
type Debugger struct {
	console  Console
	logger   *slog.Logger
	commands map[string]*Command
	ordered  []*Command
	breaks   *breakpoints

	mode       stopMode
	stopDepth  int
	untilLine  int
	detached   bool
	postMortem bool

	// Valid only while stopped.
	target     Target
	stack      []Frame
	cur        int
	lastListed int

	lastCmd   string
	watched   string
	history   CommandLog
	sessionID string

	mu       sync.Mutex
	cache    domain.FrameSnapshot
	hasCache bool
}

// New creates a debugger talking through con. It starts in step mode so the
// first traced statement stops.
func New(con Console, opts ...Option) *Debugger {
	d := &Debugger{
		console:  con,
		commands: make(map[string]*Command),
		breaks:   newBreakpoints(),
	}
	for _, opt := range opts {
		opt(d)
	}
	registerBuiltins(d)
	return d
}

// log returns the Debugger's logger, falling back to the default slog logger.
func (d *Debugger) log() *slog.Logger {
	if d.logger != nil {
		return d.logger
	}
	return slog.Default()
}

// =============================================================================
// Stepping
// =============================================================================

// rebind clears the stop state so the next traced statement stops.
func (d *Debugger) rebind() {
	d.detached = false
	d.setStep()
}

// detach stops all further stops; breakpoints are kept.
func (d *Debugger) detach() {
	d.detached = true
}

func (d *Debugger) setStep() {
	d.mode = modeStep
}

func (d *Debugger) setNext(depth int) {
	d.mode, d.stopDepth = modeNext, depth
}

func (d *Debugger) setReturn(depth int) {
	d.mode, d.stopDepth = modeReturn, depth
}

func (d *Debugger) setUntil(depth, line int) {
	d.mode, d.stopDepth, d.untilLine = modeUntil, depth, line
}

func (d *Debugger) setContinue() {
	d.mode = modeContinue
}

// shouldStop reports whether execution must pause before loc.
func (d *Debugger) shouldStop(t Target, loc Location) bool {
	if d.detached {
		return false
	}
	if d.breakHere(t, loc) {
		return true
	}
	switch d.mode {
	case modeStep:
		return true
	case modeNext:
		return loc.Depth <= d.stopDepth
	case modeReturn:
		return loc.Depth < d.stopDepth
	case modeUntil:
		return loc.Depth < d.stopDepth || (loc.Depth == d.stopDepth && loc.Line >= d.untilLine)
	default:
		return false
	}
}

func (d *Debugger) breakHere(t Target, loc Location) bool {
	hits := d.breaks.at(loc.Filename, loc.Line)
	if len(hits) == 0 {
		return false
	}
	stop := false
	for _, bp := range hits {
		if bp.Cond != "" {
			v, err := t.Eval(loc.Depth-1, bp.Cond, false)
			// A failing condition stops, so the user can fix it.
			if err == nil && !truthy(v) {
				continue
			}
		}
		bp.Hits++
		stop = true
		if bp.Temporary {
			d.breaks.remove(bp)
			d.printf("Deleted breakpoint %d at %s:%d\n", bp.Number, bp.File, bp.Line)
		}
	}
	return stop
}

func truthy(repr string) bool {
	return repr != "false" && repr != "nil"
}

// =============================================================================
// Interaction
// =============================================================================

// interact runs the command loop at the innermost frame of t until a command
// resumes execution or the console goes away.
func (d *Debugger) interact(t Target) outcome {
	d.target = t
	d.stack = t.Stack()
	d.cur = len(d.stack) - 1
	d.lastListed = 0
	defer func() {
		d.target = nil
		d.stack = nil
	}()

	d.updateCache()
	if d.cur >= 0 {
		d.log().Debug("stopped", "file", d.stack[d.cur].Filename, "line", d.stack[d.cur].Line)
		d.println(d.stackEntry(d.cur, "> "))
	}
	for {
		d.console.WriteString(Prompt)
		line := d.console.ReadLine()
		if d.console.Closed() {
			return outcomeClosed
		}
		act := d.onecmd(line)
		d.updateCache()
		d.console.Refresh()
		switch act {
		case Resume:
			return outcomeResume
		case Quit:
			return outcomeQuit
		}
	}
}

// onecmd dispatches one command line. An empty line repeats the previous command.
func (d *Debugger) onecmd(line string) Action {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		if d.lastCmd == "" {
			return Stay
		}
		line = d.lastCmd
	} else {
		d.lastCmd = line
		d.record(line)
	}
	line = strings.TrimLeft(line, " \t")

	if strings.HasPrefix(line, "!") {
		return d.execStatement(line[1:])
	}
	name, arg, _ := strings.Cut(line, " ")
	if cmd, ok := d.commands[name]; ok {
		return cmd.Run(d, strings.TrimSpace(arg))
	}
	return d.execStatement(line)
}

func (d *Debugger) record(line string) {
	if d.history == nil {
		return
	}
	if err := d.history.Record(d.sessionID, line); err != nil {
		d.log().Warn("cannot record command", "error", err)
	}
}

func (d *Debugger) execStatement(stmt string) Action {
	if d.target == nil || d.cur < 0 {
		d.fail("no current frame")
		return Stay
	}
	if err := d.target.Exec(d.cur, stmt); err != nil {
		d.fail(err.Error())
	}
	return Stay
}

// =============================================================================
// Output helpers for commands
// =============================================================================

func (d *Debugger) printf(format string, args ...any) {
	d.console.WriteString(fmt.Sprintf(format, args...))
}

func (d *Debugger) println(s string) {
	d.console.WriteString(s + "\n")
}

// fail reports a command failure the way pdb does.
func (d *Debugger) fail(msg string) {
	d.println("*** " + msg)
}

// Println writes s and a newline to the console. For custom commands.
func (d *Debugger) Println(s string) {
	d.println(s)
}

// Target returns the stopped program, or nil while running.
func (d *Debugger) Target() Target {
	return d.target
}

// SelectedFrame returns the index of the frame commands act on, -1 while running.
func (d *Debugger) SelectedFrame() int {
	if d.target == nil {
		return -1
	}
	return d.cur
}

// =============================================================================
// Frame snapshot
// =============================================================================

// FrameData returns the snapshot taken at the last stop. It never touches the
// interpreter, so the console may call it from any goroutine. Before the
// first stop it reports ErrNoFrame.
func (d *Debugger) FrameData() (domain.FrameSnapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.hasCache {
		return domain.NoFrameSnapshot(), ErrNoFrame
	}
	return d.cache, nil
}

func (d *Debugger) updateCache() {
	snap, err := d.snapshot()
	if err != nil {
		d.log().Debug("frame snapshot unavailable", "error", err)
		snap = domain.NoFrameSnapshot()
	}
	d.mu.Lock()
	d.cache, d.hasCache = snap, true
	d.mu.Unlock()

	if err == nil {
		d.watch(filepath.Join(snap.Dirname, snap.Filename))
	}
}

func (d *Debugger) snapshot() (domain.FrameSnapshot, error) {
	if d.target == nil || d.cur < 0 || d.cur >= len(d.stack) {
		return domain.FrameSnapshot{}, ErrNoFrame
	}
	f := d.stack[d.cur]
	src, err := d.target.Source(f.Filename)
	if err != nil {
		return domain.FrameSnapshot{}, fmt.Errorf("%w: %s: %v", ErrNoSource, f.Filename, err)
	}
	abs, err := filepath.Abs(f.Filename)
	if err != nil {
		return domain.FrameSnapshot{}, err
	}
	return domain.FrameSnapshot{
		Dirname:     filepath.Dir(abs) + string(filepath.Separator),
		Filename:    filepath.Base(abs),
		FileListing: src,
		CurrentLine: f.Line,
		TotalLines:  countLines(src),
		Breakpoints: d.breaks.lines(f.Filename),
		Globals:     FormatVariables(d.target.Globals()),
		Locals:      FormatVariables(d.target.Locals(d.cur)),
	}, nil
}

func (d *Debugger) watch(path string) {
	w, ok := d.console.(sourceWatcher)
	if !ok || path == d.watched {
		return
	}
	d.watched = path
	if err := w.WatchSource(path); err != nil {
		d.log().Debug("cannot watch source", "path", path, "error", err)
	}
}
