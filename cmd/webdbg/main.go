package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"webdbg/internal/banner"
	"webdbg/internal/cli"
	"webdbg/internal/config"
	"webdbg/internal/db"
	"webdbg/internal/debugger"
	"webdbg/internal/domain"
	"webdbg/internal/luaengine"
	"webdbg/internal/signals"
)

// buildMeta holds version and build metadata (injectable via ldflags).
type buildMeta struct {
	Version string
	GoOS    string
	GoArch  string
}

func newBuildMeta(version, goos, goarch string) buildMeta {
	if goos == "" {
		goos = runtime.GOOS
	}
	if goarch == "" {
		goarch = runtime.GOARCH
	}
	return buildMeta{Version: version, GoOS: goos, GoArch: goarch}
}

func (m buildMeta) String() string {
	return fmt.Sprintf("webdbg %s %s/%s", m.Version, m.GoOS, m.GoArch)
}

// runFlags are the options of the run subcommand.
type runFlags struct {
	host       string
	port       int
	patch      bool
	qr         bool
	brk        bool
	postMortem bool
	quiet      bool
}

func newRootCommand(bm buildMeta) *cobra.Command {
	root := &cobra.Command{
		Use:           "webdbg",
		Short:         "Web console debugger for Lua scripts",
		Long:          "webdbg runs Lua scripts under a line debugger driven from a browser.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion, _ := cmd.Flags().GetBool("version"); showVersion {
				fmt.Fprintln(cmd.OutOrStdout(), bm.String())
				return nil
			}
			return cmd.Help()
		},
	}
	root.Flags().BoolP("version", "V", false, "print version and build metadata")

	var rf runFlags
	runCmd := &cobra.Command{
		Use:   "run SCRIPT",
		Short: "Run a Lua script; webdbg.set_trace() opens the web console",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(cmd, args[0], rf, bm.Version)
		},
	}
	runCmd.Flags().StringVar(&rf.host, "host", "", "console listen host (overrides server.host)")
	runCmd.Flags().IntVar(&rf.port, "port", 0, "console port, -1 for a random high port (overrides server.port)")
	runCmd.Flags().BoolVar(&rf.patch, "patch-stdstreams", false, "send process stdout/stderr to the console")
	runCmd.Flags().BoolVar(&rf.qr, "qr", false, "print the console URL as a QR code")
	runCmd.Flags().BoolVarP(&rf.brk, "break", "b", false, "stop at the first line of the script")
	runCmd.Flags().BoolVar(&rf.postMortem, "post-mortem", false, "open a post-mortem session when the script fails")
	runCmd.Flags().BoolVarP(&rf.quiet, "quiet", "q", false, "do not print the startup banner")
	root.AddCommand(runCmd)

	checkCmd := &cobra.Command{
		Use:   "check [SCRIPT...]",
		Short: "Check config, console port, history database and scripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			fix, _ := cmd.Flags().GetBool("fix")
			checkArgs := append([]string{"webdbg", "check"}, args...)
			if fix {
				checkArgs = append(checkArgs, "--fix")
			}
			if code := cli.RunCheck(checkArgs, cmd.OutOrStdout(), cmd.ErrOrStderr()); code != 0 {
				return exitCodeErr(code)
			}
			return nil
		},
	}
	checkCmd.Flags().Bool("fix", false, "write default config if missing")
	root.AddCommand(checkCmd)

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Print commands recorded at the debugger prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, _ := cmd.Flags().GetInt("limit")
			if code := cli.RunHistory(cmd.Context(), n, cmd.OutOrStdout(), cmd.ErrOrStderr()); code != 0 {
				return exitCodeErr(code)
			}
			return nil
		},
	}
	historyCmd.Flags().IntP("limit", "n", 20, "number of commands to print, 0 for all")
	root.AddCommand(historyCmd)

	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if code := cli.RunSchema(cmd.OutOrStdout(), cmd.ErrOrStderr()); code != 0 {
				return exitCodeErr(code)
			}
			return nil
		},
	}
	root.AddCommand(schemaCmd)

	return root
}

// loadRunConfig loads the config file and applies the flags the user set.
func loadRunConfig(cmd *cobra.Command, rf runFlags) (*domain.Config, error) {
	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host = rf.host
	}
	if flags.Changed("port") {
		cfg.Server.Port = rf.port
	}
	if flags.Changed("patch-stdstreams") {
		cfg.Server.PatchStdStreams = rf.patch
	}
	if flags.Changed("qr") {
		cfg.Server.QRCode = rf.qr
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runScript runs script under the debugger. A shutdown signal closes the
// active session; the script then continues without the debugger.
func runScript(cmd *cobra.Command, script string, rf runFlags, version string) error {
	cfg, err := loadRunConfig(cmd, rf)
	if err != nil {
		return err
	}
	errw := cmd.ErrOrStderr()
	logger := config.NewLogger(cfg.Infra, errw)
	if !rf.quiet {
		banner.Startup(version, &banner.StartupOpts{Writer: errw, NoDelay: true})
	}

	opts := debugger.Options{
		Config: cfg,
		Logger: logger,
		OnStart: func(s *debugger.Session) {
			banner.Listening(consoleURL(s.Addr()), &banner.StartupOpts{Writer: errw, QR: cfg.Server.QRCode})
		},
	}
	if cfg.Infra.HistoryDB != "" {
		h, err := db.OpenHistory(cmd.Context(), cfg.Infra.HistoryDB)
		if err != nil {
			logger.Warn("command history disabled", "error", err)
		} else {
			defer h.Close()
			opts.History = h
		}
	}

	eng := luaengine.New(
		luaengine.WithLogger(logger),
		luaengine.WithStdio(cmd.InOrStdin(), cmd.OutOrStdout()),
		luaengine.WithDebugOptions(opts),
	)
	defer eng.Close()

	stop := closeOnSignal(cmd.Context())
	defer stop()

	if rf.brk {
		if _, err := debugger.Attach(eng, opts); err != nil {
			return err
		}
	}
	err = eng.RunFile(script)

	var fault *luaengine.Fault
	if !errors.As(err, &fault) {
		return err
	}
	fmt.Fprintln(errw, fault.Message)
	if rf.postMortem {
		if err := debugger.PostMortem(fault.Traceback(), opts); err != nil {
			logger.Warn("post-mortem unavailable", "error", err)
		}
	}
	return exitCodeErr(1)
}

// closeOnSignal closes the active session on the first shutdown signal until
// the returned stop func is called.
func closeOnSignal(parent context.Context) (stop func()) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signalContext(parent)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			if s := debugger.Active(); s != nil {
				s.Close()
			}
		case <-done:
		}
	}()
	return func() {
		close(done)
		cancel()
	}
}

// signalContext is signals.Context; tests replace it to raise a fake signal.
var signalContext = signals.Context

// consoleURL turns a listener address into a browsable URL.
func consoleURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr + "/"
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/"
}

func getVersion() string {
	if version != "" {
		return version
	}
	b, err := os.ReadFile("VERSION")
	if err != nil {
		return "dev"
	}
	return strings.TrimSpace(string(b))
}

// version is set at build time via ldflags for build metadata, e.g.:
//
//	go build -ldflags "-X main.version=1.0.0" -o webdbg ./cmd/webdbg
var version string

// stderr is where runApp reports errors; tests capture it.
var stderr io.Writer = os.Stderr

// exitCodeErr carries an exit code for the process. When returned from a command, runApp exits with that code.
type exitCodeErr int

func (e exitCodeErr) Error() string { return fmt.Sprintf("exit %d", int(e)) }
func (e exitCodeErr) ExitCode() int { return int(e) }

// runApp runs the root command with the given args and returns the exit code.
func runApp(args []string) int {
	bm := newBuildMeta(version, "", "")
	if bm.Version == "" {
		bm.Version = getVersion()
	}
	root := newRootCommand(bm)
	root.SetArgs(args[1:])
	if err := root.Execute(); err != nil {
		if ec, ok := err.(interface{ ExitCode() int }); ok {
			return ec.ExitCode()
		}
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}
