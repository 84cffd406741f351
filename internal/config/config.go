// Package config handles Animus configuration.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Config holds all configuration
type Config struct {
	// Paths
	DataDir string `json:"data_dir"`

	// Server
	Server ServerConfig `json:"server"`

	// Services
	Qdrant QdrantConfig `json:"qdrant"`
	Ollama OllamaConfig `json:"ollama"`

	// Loop tuning
	Heartbeat   HeartbeatConfig   `json:"heartbeat"`
	Maintenance MaintenanceConfig `json:"maintenance"`
}

// ServerConfig for HTTP server
type ServerConfig struct {
	Port int    `json:"port"`
	Host string `json:"host"`
}

// QdrantConfig for vector database
type QdrantConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// OllamaConfig for the local embedding service
type OllamaConfig struct {
	URL   string `json:"url"`
	Model string `json:"model"`
}

// HeartbeatConfig tunes the decision loop.
type HeartbeatConfig struct {
	Interval       time.Duration `json:"interval"`     // gap between epochs
	MaxEnergy      float64       `json:"max_energy"`   // energy ceiling
	BaseRegen      float64       `json:"base_regen"`   // energy regained per epoch
	TokenBudget    int           `json:"token_budget"` // budget passed to the decider
	MaxActiveGoals int           `json:"max_active_goals"`
}

// MaintenanceConfig tunes the background pass.
type MaintenanceConfig struct {
	Interval       time.Duration `json:"interval"`
	MoodBlendAlpha float64       `json:"mood_blend_alpha"` // exponential mood factor
	DecayHalfLife  time.Duration `json:"decay_half_life"`  // memory relevance half-life
}

// Default returns default configuration
func Default() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		DataDir: filepath.Join(home, ".animus"),
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Qdrant: QdrantConfig{
			Host: "localhost",
			Port: 6334,
		},
		Ollama: OllamaConfig{
			URL:   "http://localhost:11434",
			Model: "nomic-embed-text",
		},
		Heartbeat: HeartbeatConfig{
			Interval:       30 * time.Minute,
			MaxEnergy:      10,
			BaseRegen:      5,
			TokenBudget:    4096,
			MaxActiveGoals: 3,
		},
		Maintenance: MaintenanceConfig{
			Interval:       15 * time.Minute,
			MoodBlendAlpha: 0.1,
			DecayHalfLife:  90 * 24 * time.Hour,
		},
	}
}

// Load loads config from file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = filepath.Join(cfg.DataDir, "config.json")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves config to file
func (c *Config) Save(path string) error {
	if path == "" {
		path = filepath.Join(c.DataDir, "config.json")
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}
