package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if cfg.Assist.Model == "" || cfg.Server.Addr == "" {
		t.Fatalf("defaults incomplete: %+v", cfg)
	}
}

func TestDefaultTemplateRoundTrip(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault()))
	if err != nil {
		t.Fatalf("template should parse: %v", err)
	}
	if *cfg != *Default() {
		t.Fatalf("template differs from Default(): %+v vs %+v", cfg, Default())
	}
}

func TestFromYAMLPartialKeepsDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("assist:\n  model: gemini-2.5-pro\n"))
	if err != nil {
		t.Fatalf("partial yaml: %v", err)
	}
	if cfg.Assist.Model != "gemini-2.5-pro" {
		t.Fatalf("override lost: %s", cfg.Assist.Model)
	}
	if cfg.Assist.TimeoutSeconds != 30 || cfg.Server.Addr == "" {
		t.Fatalf("unset fields should keep defaults: %+v", cfg)
	}
}

func TestFromYAMLRejectsBadTimeout(t *testing.T) {
	if _, err := FromYAML([]byte("assist:\n  timeout_seconds: -1\n")); err == nil {
		t.Fatal("negative timeout must be rejected")
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil {
		t.Fatalf("missing file should fall back to defaults: %v", err)
	}
	if *cfg != *Default() {
		t.Fatalf("want defaults, got %+v", cfg)
	}

	path := filepath.Join(dir, "leadline.yml")
	if err := os.WriteFile(path, []byte("server:\n  addr: 0.0.0.0:9999\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err = LoadOptional(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:9999" {
		t.Fatalf("file override lost: %s", cfg.Server.Addr)
	}
}
