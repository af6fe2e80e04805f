package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "8484" {
		t.Errorf("port = %q, want 8484", cfg.Server.Port)
	}
	if !cfg.Driver.Enabled {
		t.Error("driver should default to enabled")
	}
	if got := cfg.DriverInterval(); got != 15*time.Minute {
		t.Errorf("interval = %v, want 15m", got)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("server:\n  port: \"9000\"\ndriver:\n  enabled: false\n  interval_minutes: 5\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("OPSCYCLE_PORT", "9100")
	t.Setenv("OPSCYCLE_DRIVER_INTERVAL_MINUTES", "30")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9100" {
		t.Errorf("env should win over file, port = %q", cfg.Server.Port)
	}
	if cfg.Driver.Enabled {
		t.Error("file should disable the driver")
	}
	if got := cfg.DriverInterval(); got != 30*time.Minute {
		t.Errorf("interval = %v, want 30m", got)
	}
}

func TestLoad_MissingFileIsFine(t *testing.T) {
	if _, err := Load("/nonexistent/opscycle.yaml"); err != nil {
		t.Fatalf("missing config file should not error: %v", err)
	}
}
