package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindConfig_Explicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	os.WriteFile(path, []byte("broker_url: mqtt://localhost:1883\n"), 0600)

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("broker_url: mqtt://localhost:1883\n"), 0600)

	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "config.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "config.yaml")
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("identity:\n  name: ${COMMCORE_TEST_NAME}\n"), 0600)
	os.Setenv("COMMCORE_TEST_NAME", "test-agent")
	defer os.Unsetenv("COMMCORE_TEST_NAME")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Identity.Name != "test-agent" {
		t.Errorf("identity.name = %q, want %q", cfg.Identity.Name, "test-agent")
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("broker_url: mqtt://broker.example.com:1883\n"), 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Identity.Name != "CommunicationManager" {
		t.Errorf("identity.name = %q, want default", cfg.Identity.Name)
	}
	if cfg.DataDir != "./data" {
		t.Errorf("data_dir = %q, want ./data", cfg.DataDir)
	}
	if !cfg.AdvertiseIdentity() {
		t.Error("AdvertiseIdentity() should default to true")
	}
}

func TestAdvertiseIdentity_ExplicitFalse(t *testing.T) {
	cfg := Default()
	f := false
	cfg.ShouldAdvertiseIdentity = &f
	if cfg.AdvertiseIdentity() {
		t.Error("AdvertiseIdentity() should be false when explicitly set")
	}
}

func TestValidate_NegativeDeferredQueueSize(t *testing.T) {
	cfg := Default()
	cfg.DeferredQueueSize = -1

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for negative deferred_queue_size")
	}
}

func TestValidate_BadLogLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown log level")
	}
}

func TestValidate_Default(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got: %v", err)
	}
}
