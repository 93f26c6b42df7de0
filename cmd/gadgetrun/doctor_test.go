package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "gadgetrun.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write test config: %v", err)
	}
	return path
}

func TestRunDoctorFailsWithoutAnyProviderCredentials(t *testing.T) {
	path := writeTestConfig(t, `
providers:
  default: "anthropic:claude-sonnet-4-5"
`)
	if err := runDoctor(path); err == nil {
		t.Fatal("expected doctor to fail with no provider credentials configured")
	}
}

func TestRunDoctorSucceedsWithAnthropicCredentials(t *testing.T) {
	path := writeTestConfig(t, `
providers:
  default: "anthropic:claude-sonnet-4-5"
  anthropic:
    api_key: "test-key"
`)
	if err := runDoctor(path); err != nil {
		t.Fatalf("runDoctor: %v", err)
	}
}

func TestRunDoctorFailsOnMissingConfigFile(t *testing.T) {
	if err := runDoctor(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
