package params

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("OBM_API_ADDR=:9999\nOBM_LOG_LEVEL=debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OBM_LOG_LEVEL", "warn") // environment wins over .env
	t.Setenv("OBM_BATCH_INTERVAL_MS", "50")
	t.Setenv("OBM_CORS_ORIGINS", "https://a.example, https://b.example,")

	cfg := LoadFromEnv(envFile)
	t.Cleanup(func() { os.Unsetenv("OBM_API_ADDR") })

	if cfg.API.Addr != ":9999" {
		t.Errorf("api addr = %q", cfg.API.Addr)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("log level = %q, want warn", cfg.Log.Level)
	}
	if cfg.Node.BatchInterval != 50*time.Millisecond {
		t.Errorf("batch interval = %v", cfg.Node.BatchInterval)
	}
	if len(cfg.API.CORSOrigins) != 2 || cfg.API.CORSOrigins[1] != "https://b.example" {
		t.Errorf("cors origins = %v", cfg.API.CORSOrigins)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	yml := `
storage:
  data_dir: /var/lib/obm
  fsync: interval
  fsync_interval: 250ms
node:
  max_capacity: 500
api:
  addr: 127.0.0.1:7000
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.DataDir != "/var/lib/obm" || cfg.Storage.FsyncInterval != 250*time.Millisecond {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Node.MaxCapacity != 500 || cfg.Node.BatchInterval != 200*time.Millisecond {
		t.Errorf("node = %+v", cfg.Node)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}

	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no data dir", func(c *Config) { c.Storage.DataDir = "" }},
		{"bad fsync", func(c *Config) { c.Storage.Fsync = "sometimes" }},
		{"interval without period", func(c *Config) { c.Storage.Fsync = "interval"; c.Storage.FsyncInterval = 0 }},
		{"zero batch interval", func(c *Config) { c.Node.BatchInterval = 0 }},
		{"zero max capacity", func(c *Config) { c.Node.MaxCapacity = 0 }},
		{"no api addr", func(c *Config) { c.API.Addr = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected error")
			}
		})
	}
}
