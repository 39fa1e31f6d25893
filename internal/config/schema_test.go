package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// =============================================================================
// Schema tests
// =============================================================================

func TestSchema_ShouldDescribeConfigSections(t *testing.T) {
	s, err := Schema()
	if err != nil {
		t.Fatalf("Schema: %v", err)
	}
	for _, want := range []string{`"server"`, `"console"`, `"infra"`, `"pollIntervalMs"`, `"historyDB"`, `"additionalProperties": false`} {
		if !strings.Contains(s, want) {
			t.Errorf("schema should contain %s", want)
		}
	}
}

func TestSchema_WhenMarshalFails_ShouldReturnError(t *testing.T) {
	orig := schemaMarshal
	defer func() { schemaMarshal = orig }()
	schemaMarshal = func(interface{}) ([]byte, error) { return nil, errors.New("boom") }

	if _, err := Schema(); err == nil {
		t.Fatal("expected error from failing marshaler")
	}
}

// =============================================================================
// ValidateDocument tests
// =============================================================================

func TestValidateDocument_WhenPartialJSON_ShouldPass(t *testing.T) {
	if err := ValidateDocument("webdbg.json", []byte(`{"server":{"port":7000}}`)); err != nil {
		t.Fatalf("expected valid document, got %v", err)
	}
}

func TestValidateDocument_WhenUnknownKey_ShouldFail(t *testing.T) {
	err := ValidateDocument("webdbg.json", []byte(`{"server":{"prot":7000}}`))
	if err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestValidateDocument_WhenWrongType_ShouldFail(t *testing.T) {
	err := ValidateDocument("webdbg.json", []byte(`{"console":{"pollIntervalMs":"fast"}}`))
	if err == nil {
		t.Fatal("expected string poll interval to be rejected")
	}
}

func TestValidateDocument_WhenLogFormatNotInEnum_ShouldFail(t *testing.T) {
	err := ValidateDocument("webdbg.json", []byte(`{"infra":{"logFormat":"xml"}}`))
	if err == nil {
		t.Fatal("expected logFormat xml to be rejected")
	}
}

func TestValidateDocument_WhenYAML_ShouldValidateDataModel(t *testing.T) {
	if err := ValidateDocument("c.yaml", []byte("server:\n  port: -1\n")); err != nil {
		t.Fatalf("expected valid YAML document, got %v", err)
	}
	if err := ValidateDocument("c.yml", []byte("server:\n  port: 99999\n")); err == nil {
		t.Fatal("expected out-of-range port in YAML to be rejected")
	}
}

func TestValidateDocument_WhenEmptyYAML_ShouldPass(t *testing.T) {
	if err := ValidateDocument("c.yaml", nil); err != nil {
		t.Fatalf("empty YAML should be an empty config, got %v", err)
	}
}

func TestLoad_WhenUnknownKey_ShouldReturnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "webdbg.json")
	if err := os.WriteFile(path, []byte(`{"sever":{}}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected Load to reject unknown key")
	}
}
