package config

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"webdbg/internal/domain"
)

func TestLoad_WhenFileDoesNotExist_ShouldReturnError(t *testing.T) {
	_, err := Load("/nonexistent/webdbg.json")
	if err == nil {
		t.Fatal("expected error when config file does not exist")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected wrapped ErrNotExist, got %v", err)
	}
}

func TestLoad_WhenFileIsInvalidJSON_ShouldReturnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "webdbg.json")
	if err := os.WriteFile(path, []byte(`{ invalid }`), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error when config is invalid JSON")
	}
}

func TestLoad_WhenPartialJSON_ShouldOverlayDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "webdbg.json")
	cfg := `{ "server": { "host": "127.0.0.1", "port": 6000 } }`
	if err := os.WriteFile(path, []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Server.Host != "127.0.0.1" || got.Server.Port != 6000 {
		t.Errorf("server: got %+v", got.Server)
	}
	if got.Console.PollIntervalMs != 100 || got.Console.FlushRetries != 5 {
		t.Errorf("console defaults not applied: %+v", got.Console)
	}
}

func TestLoad_WhenYAML_ShouldParse(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "webdbg.yaml")
	cfg := "server:\n  port: 7000\n  patchStdStreams: true\nconsole:\n  pollIntervalMs: 50\ninfra:\n  logFormat: json\n"
	if err := os.WriteFile(path, []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Server.Port != 7000 || !got.Server.PatchStdStreams {
		t.Errorf("server: got %+v", got.Server)
	}
	if got.Console.PollIntervalMs != 50 {
		t.Errorf("pollIntervalMs: want 50, got %d", got.Console.PollIntervalMs)
	}
	if got.Infra.LogFormat != "json" {
		t.Errorf("logFormat: want json, got %q", got.Infra.LogFormat)
	}
}

func TestLoad_WhenPortOutOfRange_ShouldReturnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "webdbg.json")
	if err := os.WriteFile(path, []byte(`{"server":{"port":70000}}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for port 70000")
	}
}

func TestLoadOrDefault_WhenMissing_ShouldReturnDefault(t *testing.T) {
	got, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if got.Server.Port != Default().Server.Port {
		t.Errorf("want default port, got %d", got.Server.Port)
	}
}

func TestWriteDefault_ThenLoad_ShouldRoundtrip(t *testing.T) {
	for _, name := range []string{"webdbg.json", "webdbg.yml"} {
		path := filepath.Join(t.TempDir(), name)
		if err := WriteDefault(path); err != nil {
			t.Fatalf("%s: WriteDefault: %v", name, err)
		}
		got, err := Load(path)
		if err != nil {
			t.Fatalf("%s: Load: %v", name, err)
		}
		if *got != *Default() {
			t.Errorf("%s: want %+v, got %+v", name, *Default(), *got)
		}
	}
}

func TestWriteDefault_WhenWriteFails_ShouldReturnError(t *testing.T) {
	orig := writeFile
	writeFile = func(string, []byte, os.FileMode) error { return errors.New("disk full") }
	defer func() { writeFile = orig }()
	if err := WriteDefault(filepath.Join(t.TempDir(), "webdbg.json")); err == nil {
		t.Fatal("expected write error")
	}
}

func TestSave_WhenNilConfig_ShouldReturnError(t *testing.T) {
	if err := Save(filepath.Join(t.TempDir(), "x.json"), nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestSave_ShouldCreateParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "webdbg.json")
	cfg := Default()
	cfg.Server.Port = 6001
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Server.Port != 6001 {
		t.Errorf("port: want 6001, got %d", got.Server.Port)
	}
}

func TestPath_WhenEnvSet_ShouldUseIt(t *testing.T) {
	t.Setenv(EnvConfigPath, "/tmp/custom.yaml")
	if got := Path(); got != "/tmp/custom.yaml" {
		t.Errorf("Path: want /tmp/custom.yaml, got %q", got)
	}
	t.Setenv(EnvConfigPath, "")
	if got := Path(); got != DefaultPath {
		t.Errorf("Path: want %q, got %q", DefaultPath, got)
	}
}

func TestResolvePort(t *testing.T) {
	if got := ResolvePort(5555); got != 5555 {
		t.Errorf("explicit port changed: %d", got)
	}
	if got := ResolvePort(0); got != 0 {
		t.Errorf("port 0 changed: %d", got)
	}
	for i := 0; i < 100; i++ {
		got := ResolvePort(RandomPort)
		if got < 32768 || got > 65535 {
			t.Fatalf("random port out of range: %d", got)
		}
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.Config)
	}{
		{"poll interval", func(c *domain.Config) { c.Console.PollIntervalMs = 0 }},
		{"flush retries", func(c *domain.Config) { c.Console.FlushRetries = -1 }},
		{"flush interval", func(c *domain.Config) { c.Console.FlushIntervalMs = 0 }},
		{"gzip", func(c *domain.Config) { c.Console.GzipMinSize = -5 }},
		{"log format", func(c *domain.Config) { c.Infra.LogFormat = "xml" }},
		{"port", func(c *domain.Config) { c.Server.Port = -2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			if err := Validate(c); err == nil {
				t.Error("expected validation error")
			}
		})
	}
	if err := Validate(nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestConsoleWithDefaults_ShouldFillUnsetFields(t *testing.T) {
	d := Default().Console
	got := ConsoleWithDefaults(domain.ConsoleConfig{FlushRetries: -3, GzipMinSize: -1})
	if got.PollIntervalMs != d.PollIntervalMs || got.FlushIntervalMs != d.FlushIntervalMs {
		t.Errorf("intervals: got %+v", got)
	}
	if got.FlushRetries != 0 || got.GzipMinSize != 0 {
		t.Errorf("negative counts should clamp to 0, got %+v", got)
	}
	if PollInterval(got) <= 0 || FlushInterval(got) <= 0 {
		t.Error("durations should be positive")
	}

	set := domain.ConsoleConfig{PollIntervalMs: 7, FlushRetries: 1, FlushIntervalMs: 9, GzipMinSize: 10, WatchSource: true}
	if got := ConsoleWithDefaults(set); got != set {
		t.Errorf("set fields should be kept: got %+v, want %+v", got, set)
	}
}

func TestNewLogger_ShouldHonourFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(domain.InfraConfig{LogFormat: "json", LogLevel: "warn"}, &buf)
	l.Info("hidden")
	l.Warn("shown", "k", "v")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("expected JSON record, got %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
