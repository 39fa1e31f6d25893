package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"webdbg/internal/domain"
)

// EnvConfigPath names the environment variable that overrides the config file path.
const EnvConfigPath = "WEBDBG_CONFIG"

// DefaultPath is used when EnvConfigPath is unset.
const DefaultPath = "webdbg.json"

// RandomPort asks ResolvePort to pick a random high port.
const RandomPort = -1

// marshalIndent and writeFile are used by WriteDefault and Save; tests may replace to force errors.
var (
	marshalIndent = json.MarshalIndent
	yamlMarshal   = yaml.Marshal
	writeFile     = os.WriteFile
)

// Default returns the configuration used when no file is present.
func Default() *domain.Config {
	return &domain.Config{
		Server: domain.ServerConfig{Host: "", Port: 5555},
		Console: domain.ConsoleConfig{
			PollIntervalMs:  100,
			FlushRetries:    5,
			FlushIntervalMs: 200,
			GzipMinSize:     1024,
			WatchSource:     true,
		},
		Infra: domain.InfraConfig{LogFormat: "text", LogLevel: "info"},
	}
}

// Path returns the config path from the environment, or DefaultPath.
func Path() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return DefaultPath
}

// WriteDefault writes a default Config to path. The format follows the file extension.
func WriteDefault(path string) error {
	data, err := encode(path, Default())
	if err != nil {
		return err
	}
	return writeFile(path, data, 0644)
}

// Load reads path (JSON, or YAML for .yaml/.yml), checks it against Schema,
// overlays it on Default and validates the result. Returns error if file is
// missing or invalid.
func Load(path string) (*domain.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	if err := ValidateDocument(path, data); err != nil {
		return nil, err
	}
	c := Default()
	if isYAML(path) {
		err = yaml.Unmarshal(data, c)
	} else {
		err = json.Unmarshal(data, c)
	}
	if err != nil {
		return nil, fmt.Errorf("config parse: %w", err)
	}
	if err := Validate(c); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadOrDefault loads path, falling back to Default when the file does not exist.
// Other load errors are returned.
func LoadOrDefault(path string) (*domain.Config, error) {
	c, err := Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	return c, nil
}

// Validate checks ranges of all numeric fields.
func Validate(c *domain.Config) error {
	if c == nil {
		return fmt.Errorf("config: nil config")
	}
	if c.Server.Port < RandomPort || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port must be -1..65535, got %d", c.Server.Port)
	}
	if c.Console.PollIntervalMs <= 0 {
		return fmt.Errorf("config: console.pollIntervalMs must be > 0")
	}
	if c.Console.FlushRetries < 0 {
		return fmt.Errorf("config: console.flushRetries must be >= 0")
	}
	if c.Console.FlushIntervalMs <= 0 {
		return fmt.Errorf("config: console.flushIntervalMs must be > 0")
	}
	if c.Console.GzipMinSize < 0 {
		return fmt.Errorf("config: console.gzipMinSize must be >= 0")
	}
	switch strings.ToLower(c.Infra.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: infra.logFormat must be text or json, got %q", c.Infra.LogFormat)
	}
	return nil
}

// Save writes cfg to path, creating the parent directory.
func Save(path string, cfg *domain.Config) error {
	if cfg == nil {
		return fmt.Errorf("config save: nil config")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("config save mkdir: %w", err)
	}
	data, err := encode(path, cfg)
	if err != nil {
		return fmt.Errorf("config save marshal: %w", err)
	}
	if err = writeFile(path, data, 0644); err != nil {
		return fmt.Errorf("config save write: %w", err)
	}
	return nil
}

// ResolvePort maps RandomPort to a random port in 32768..65535; other values are returned as is.
func ResolvePort(port int) int {
	if port == RandomPort {
		return 32768 + rand.IntN(65536-32768)
	}
	return port
}

// ConsoleWithDefaults returns c with unset or out-of-range fields taken from
// Default. Zero poll and flush intervals would make ReadLine and Flush spin.
func ConsoleWithDefaults(c domain.ConsoleConfig) domain.ConsoleConfig {
	d := Default().Console
	if c.PollIntervalMs <= 0 {
		c.PollIntervalMs = d.PollIntervalMs
	}
	if c.FlushIntervalMs <= 0 {
		c.FlushIntervalMs = d.FlushIntervalMs
	}
	if c.FlushRetries < 0 {
		c.FlushRetries = 0
	}
	if c.GzipMinSize < 0 {
		c.GzipMinSize = 0
	}
	return c
}

// PollInterval returns the ReadLine poll interval as a Duration.
func PollInterval(c domain.ConsoleConfig) time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// FlushInterval returns the sleep between Flush checks as a Duration.
func FlushInterval(c domain.ConsoleConfig) time.Duration {
	return time.Duration(c.FlushIntervalMs) * time.Millisecond
}

func encode(path string, cfg *domain.Config) ([]byte, error) {
	if isYAML(path) {
		return yamlMarshal(cfg)
	}
	return marshalIndent(cfg, "", "  ")
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
