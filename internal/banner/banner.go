package banner

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	qrterminal "github.com/mdp/qrterminal/v3"
)

// StartupOpts allows tests to capture output and disable delays.
// If nil, Startup uses os.Stderr and default animation delays.
type StartupOpts struct {
	Writer  io.Writer // if set, use instead of os.Stderr
	NoDelay bool      // if true, do not sleep between lines
	QR      bool      // Listening also prints the URL as a QR code
}

// Banner ASCII art (WEBDBG).
const bannerArt = `
 __      __  ___  ___   ___   ___   ___ 
 \ \    / / | __|| _ ) |   \ | _ ) / __|
  \ \/\/ /  | _| | _ \ | |) || _ \| (_ |
   \_/\_/   |___||___/ |___/ |___/ \___|
`

// isTerminal reports whether w is attached to a terminal; tests replace it.
var isTerminal = func(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// qrGenerate renders a QR code; tests replace it.
var qrGenerate = func(text string, w io.Writer) {
	qrterminal.GenerateHalfBlock(text, qrterminal.L, w)
}

func resolve(opts *StartupOpts) (io.Writer, time.Duration) {
	w := io.Writer(os.Stderr)
	lineDelay := 20 * time.Millisecond
	if opts != nil {
		if opts.Writer != nil {
			w = opts.Writer
		}
		if opts.NoDelay {
			lineDelay = 0
		}
	}
	if !isTerminal(w) {
		lineDelay = 0
	}
	return w, lineDelay
}

// Startup prints the ASCII banner line by line, then the version line.
// Colors and delays are only used on a terminal.
func Startup(version string, opts *StartupOpts) {
	w, lineDelay := resolve(opts)
	color := isTerminal(w)

	for _, line := range splitLines(bannerArt) {
		fmt.Fprintln(w, line)
		if lineDelay > 0 {
			time.Sleep(lineDelay)
		}
	}
	if color {
		fmt.Fprintf(w, "\033[36m  web debugger  \033[0m  v%s\n", version)
	} else {
		fmt.Fprintf(w, "  web debugger  v%s\n", version)
	}
	fmt.Fprintln(w)
}

// Listening announces the web console URL, followed by a QR code of it when
// opts.QR is set.
func Listening(url string, opts *StartupOpts) {
	w, _ := resolve(opts)
	fmt.Fprintf(w, "  web console: %s\n", url)
	if opts != nil && opts.QR {
		qrGenerate(url, w)
		fmt.Fprintln(w)
	}
}

func splitLines(s string) []string {
	var out []string
	var line []rune
	for _, r := range s {
		if r == '\n' {
			if len(line) > 0 || out != nil {
				out = append(out, string(line))
			}
			line = line[:0]
			continue
		}
		line = append(line, r)
	}
	if len(line) > 0 {
		out = append(out, string(line))
	}
	return out
}
