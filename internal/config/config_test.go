package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Heartbeat.MaxEnergy <= 0 {
		t.Error("MaxEnergy should be positive")
	}
	if cfg.Heartbeat.BaseRegen > cfg.Heartbeat.MaxEnergy {
		t.Error("BaseRegen should not exceed MaxEnergy")
	}
	if cfg.Heartbeat.Interval <= 0 || cfg.Maintenance.Interval <= 0 {
		t.Error("loop intervals should be positive")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Ollama.Model != "nomic-embed-text" {
		t.Errorf("Ollama.Model = %q, want default", cfg.Ollama.Model)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := Default()
	cfg.Heartbeat.Interval = 5 * time.Minute
	cfg.Heartbeat.MaxActiveGoals = 7

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Heartbeat.Interval != 5*time.Minute {
		t.Errorf("Interval = %v, want 5m", loaded.Heartbeat.Interval)
	}
	if loaded.Heartbeat.MaxActiveGoals != 7 {
		t.Errorf("MaxActiveGoals = %d, want 7", loaded.Heartbeat.MaxActiveGoals)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed config")
	}
}
