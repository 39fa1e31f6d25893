package cli

import (
	"context"
	"fmt"
	"io"

	"webdbg/internal/config"
	"webdbg/internal/db"
)

// RunHistory prints the last n recorded console commands, oldest first.
// Returns the exit code.
func RunHistory(ctx context.Context, n int, stdout, stderr io.Writer) int {
	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if cfg.Infra.HistoryDB == "" {
		fmt.Fprintln(stderr, "command history is disabled; set infra.historyDB in the config")
		return 1
	}
	h, err := db.OpenHistory(ctx, cfg.Infra.HistoryDB)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer h.Close()

	entries, err := h.Recent(ctx, n)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	for _, e := range entries {
		fmt.Fprintf(stdout, "%s  %.8s  %s\n", e.At.Format("2006-01-02 15:04:05"), e.Session, e.Command)
	}
	return 0
}

// RunSchema prints the JSON Schema of the config file.
func RunSchema(stdout, stderr io.Writer) int {
	s, err := config.Schema()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprintln(stdout, s)
	return 0
}
