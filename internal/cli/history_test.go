package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"webdbg/internal/db"
)

func TestRunHistory_WhenDisabled_ShouldFail(t *testing.T) {
	setConfig(t, "webdbg.json", `{"server":{"port":0}}`)

	var out, errOut bytes.Buffer
	if code := RunHistory(context.Background(), 10, &out, &errOut); code != 1 {
		t.Errorf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(errOut.String(), "historyDB") {
		t.Errorf("expected a hint about infra.historyDB: %s", errOut.String())
	}
}

func TestRunHistory_ShouldPrintRecordedCommands(t *testing.T) {
	url := "file:" + filepath.ToSlash(filepath.Join(t.TempDir(), "h.db"))
	setConfig(t, "webdbg.json", `{"infra":{"historyDB":"`+url+`"}}`)
	h, err := db.OpenHistory(context.Background(), url)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range []string{"b 3", "c", "p x"} {
		if err := h.Record("0123456789abcdef", c); err != nil {
			t.Fatal(err)
		}
	}
	h.Close()

	var out, errOut bytes.Buffer
	if code := RunHistory(context.Background(), 2, &out, &errOut); code != 0 {
		t.Fatalf("expected exit code 0, got %d: %s", code, errOut.String())
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || !strings.HasSuffix(lines[0], "01234567  c") || !strings.HasSuffix(lines[1], "p x") {
		t.Errorf("unexpected history output:\n%s", out.String())
	}
}

func TestRunHistory_WhenConfigInvalid_ShouldFail(t *testing.T) {
	setConfig(t, "webdbg.json", `{"bogus":true}`)

	var out, errOut bytes.Buffer
	if code := RunHistory(context.Background(), 0, &out, &errOut); code != 1 {
		t.Errorf("expected exit code 1, got %d", code)
	}
}

func TestRunSchema_ShouldPrintJSONSchema(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := RunSchema(&out, &errOut); code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(out.String(), `"$schema"`) || !strings.Contains(out.String(), `"server"`) {
		t.Errorf("unexpected schema output: %s", out.String())
	}
}
