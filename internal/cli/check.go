// Package cli implements the webdbg subcommands that do not start a debugging run.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"webdbg/internal/config"
	"webdbg/internal/db"
	"webdbg/internal/domain"
	"webdbg/internal/luaengine"
)

const checkCmd = "check"

// netListen checks whether the configured port is free; tests replace it.
var netListen = net.Listen

// CheckOptions holds options for the check command.
type CheckOptions struct {
	Fix     bool     // if true, write default config when missing
	Scripts []string // Lua scripts to syntax-check
}

// RunCheck runs the check subcommand: validates the config file against its
// schema, tries the console port and the history database, and syntax-checks
// the given scripts. Returns the exit code.
func RunCheck(args []string, stdout, stderr io.Writer) int {
	opts := parseCheckOptions(args)
	cfgPath := config.Path()
	code := 0

	note := func(section, message string) {
		fmt.Fprintf(stdout, "  [%s] %s\n", section, message)
	}

	// 1. Config
	cfg, err := config.Load(cfgPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		note("Config", fmt.Sprintf("No config at %s.", cfgPath))
		if opts.Fix {
			if writeErr := config.WriteDefault(cfgPath); writeErr != nil {
				fmt.Fprintf(stderr, "  failed to write default config: %v\n", writeErr)
				return 1
			}
			note("Config", fmt.Sprintf("Wrote default config to %s.", cfgPath))
		} else {
			note("Config", "Run with --fix to create a default "+config.DefaultPath+".")
		}
		cfg = config.Default()
	case err != nil:
		note("Config", err.Error())
		return 1
	default:
		note("Config", fmt.Sprintf("Loaded %s.", cfgPath))
	}

	// 2. Console server
	checkServer(cfg.Server, note)

	// 3. History
	if cfg.Infra.HistoryDB != "" {
		h, err := db.OpenHistory(context.Background(), cfg.Infra.HistoryDB)
		if err != nil {
			note("History", err.Error())
			code = 1
		} else {
			h.Close()
			note("History", "database reachable.")
		}
	}

	// 4. Scripts
	for _, path := range opts.Scripts {
		if err := luaengine.CheckFile(path); err != nil {
			note("Script", err.Error())
			code = 1
			continue
		}
		note("Script", path+" ok.")
	}

	fmt.Fprintln(stdout, "  Check complete.")
	return code
}

func checkServer(s domain.ServerConfig, note func(section, message string)) {
	host := s.Host
	if host == "" {
		host = "all interfaces"
	}
	note("Server", fmt.Sprintf("host=%s port=%d patchStdStreams=%t", host, s.Port, s.PatchStdStreams))
	if s.Host == "" {
		note("Server", "The console accepts commands from any host. Consider setting server.host to 127.0.0.1.")
	}
	if s.Port <= 0 {
		return
	}
	ln, err := netListen("tcp", net.JoinHostPort(s.Host, strconv.Itoa(s.Port)))
	if err != nil {
		note("Server", fmt.Sprintf("port %d is not available: %v", s.Port, err))
		return
	}
	ln.Close()
	note("Server", fmt.Sprintf("port %d is free.", s.Port))
}

func parseCheckOptions(args []string) CheckOptions {
	var opts CheckOptions
	for i, a := range args {
		switch {
		case a == "--fix" || a == "-fix":
			opts.Fix = true
		case i < 2 || strings.HasPrefix(a, "-"):
		default:
			opts.Scripts = append(opts.Scripts, a)
		}
	}
	return opts
}
