package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:8000" || cfg.Database.Driver != "sqlite" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Breeds.Timeout.Duration != 10*time.Second || cfg.Server.ShutdownTimeout.Duration != 10*time.Second {
		t.Fatalf("unexpected durations: %v %v", cfg.Breeds.Timeout, cfg.Server.ShutdownTimeout)
	}
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("server:\n  addr: 0.0.0.0:9000\nlog:\n  level: debug\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:9000" || cfg.Log.Level != "debug" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Breeds.URL == "" || cfg.Log.Format != "json" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"postgres without dsn": "database:\n  driver: postgres\n",
		"unknown driver":       "database:\n  driver: mysql\n",
		"bad duration":         "breeds:\n  timeout: soon\n",
		"zero timeout":         "breeds:\n  timeout: 0s\n",
		"bad level":            "log:\n  level: loud\n",
		"relative base path":   "server:\n  base_path: api\n",
	}
	for name, doc := range cases {
		if _, err := FromYAML([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadOptionalAndLoad(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg == nil {
		t.Fatalf("load optional without file: %v", err)
	}
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(GenerateDefault()), 0o644); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Breeds.URL != "https://api.thecatapi.com/v1/breeds" {
		t.Fatalf("unexpected breeds url: %s", loaded.Breeds.URL)
	}
}
