package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"yashubustudio/reviewlens/internal/client"
	"yashubustudio/reviewlens/sentiment"
)

const (
	fyneAppID         = "studio.yashubu.reviewlens"
	defaultConfigFile = "reviewlens-dashboard.json"
	defaultLogLines   = 300
)

// Config is the dashboard's persisted settings.
type Config struct {
	BackendURL      string             `json:"backendUrl"`
	PredictTimeout  sentiment.Duration `json:"predictTimeout"`
	EvaluateTimeout sentiment.Duration `json:"evaluateTimeout"`
	HealthTimeout   sentiment.Duration `json:"healthTimeout"`
	MaxRetries      int                `json:"maxRetries"`
	LogLines        int                `json:"logLines"`
}

func defaultConfig() Config {
	d := client.DefaultConfig()
	return Config{
		BackendURL:      d.BaseURL,
		PredictTimeout:  sentiment.Duration(d.PredictTimeout),
		EvaluateTimeout: sentiment.Duration(d.EvaluateTimeout),
		HealthTimeout:   sentiment.Duration(d.HealthTimeout),
		MaxRetries:      d.MaxRetries,
		LogLines:        defaultLogLines,
	}
}

func sanitizeConfig(cfg Config) Config {
	d := defaultConfig()
	cfg.BackendURL = strings.TrimRight(strings.TrimSpace(cfg.BackendURL), "/")
	if cfg.BackendURL == "" {
		cfg.BackendURL = d.BackendURL
	}
	if cfg.PredictTimeout <= 0 {
		cfg.PredictTimeout = d.PredictTimeout
	}
	if cfg.EvaluateTimeout <= 0 {
		cfg.EvaluateTimeout = d.EvaluateTimeout
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = d.HealthTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.LogLines <= 0 {
		cfg.LogLines = defaultLogLines
	}
	return cfg
}

// ClientConfig translates the settings into an HTTP client configuration.
func (c Config) ClientConfig() client.Config {
	return client.Config{
		BaseURL:         c.BackendURL,
		PredictTimeout:  time.Duration(c.PredictTimeout),
		EvaluateTimeout: time.Duration(c.EvaluateTimeout),
		HealthTimeout:   time.Duration(c.HealthTimeout),
		MaxRetries:      c.MaxRetries,
		InitialBackoff:  time.Second,
	}
}

// LoadConfig reads the dashboard settings. A missing file yields defaults and
// REVIEWLENS_BACKEND_URL overrides the stored backend.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		path = defaultConfigFile
	}
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read dashboard config: %w", err)
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("decode dashboard config: %w", err)
		}
	}
	if v := strings.TrimSpace(os.Getenv("REVIEWLENS_BACKEND_URL")); v != "" {
		cfg.BackendURL = v
	}
	return sanitizeConfig(cfg), nil
}

// SaveConfig persists the settings through a temp file.
func SaveConfig(path string, cfg Config) error {
	if path == "" {
		path = defaultConfigFile
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(sanitizeConfig(cfg), "", "  ")
	if err != nil {
		return fmt.Errorf("encode dashboard config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	return os.Rename(tmp, path)
}
