package sentiment

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const defaultConfigFile = "reviewlens.json"

// ModelConfig describes where the classifier artifacts live and how to run them.
type ModelConfig struct {
	// ModelPath is a directory holding model.onnx and tokenizer.json.
	ModelPath       string   `json:"modelPath"`
	OnnxFile        string   `json:"onnxFile"`
	TokenizerFile   string   `json:"tokenizerFile"`
	OrtLib          string   `json:"ortLib"`
	ModelID         string   `json:"modelId"`
	MaxSeqLen       int      `json:"maxSeqLen"`
	BatchSize       int      `json:"batchSize"`
	InputNames      []string `json:"inputNames"`
	OutputName      string   `json:"outputName"`
	UseTokenTypeIDs bool     `json:"useTokenTypeIds"`
	IntraOpThreads  int      `json:"intraOpThreads"`
}

// CacheConfig controls the prediction memo.
type CacheConfig struct {
	Enabled    bool     `json:"enabled"`
	TTL        Duration `json:"ttl"`
	MaxEntries int      `json:"maxEntries"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr        string `json:"addr"`
	MaxUploadMB int    `json:"maxUploadMb"`
	TempDir     string `json:"tempDir"`
}

// TelemetryConfig enables the OTLP metrics exporter.
type TelemetryConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
	Insecure bool   `json:"insecure"`
}

// Config aggregates runtime settings persisted to reviewlens.json.
type Config struct {
	Model     ModelConfig     `json:"model"`
	Cache     CacheConfig     `json:"cache"`
	Server    ServerConfig    `json:"server"`
	Telemetry TelemetryConfig `json:"telemetry"`
	// Columns overrides the CSV header names, e.g. {"text": ["review", "text"]}.
	Columns ColumnCandidates `json:"columns"`
}

// Duration is a time.Duration that reads and writes as "30m" in JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n int64
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("duration must be a string or nanoseconds: %s", b)
		}
		*d = Duration(n)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// ApplyDefaults populates zero values with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.Model.ModelPath == "" {
		c.Model.ModelPath = "./model"
	}
	if c.Model.OnnxFile == "" {
		c.Model.OnnxFile = "model.onnx"
	}
	if c.Model.TokenizerFile == "" {
		c.Model.TokenizerFile = "tokenizer.json"
	}
	if c.Model.MaxSeqLen <= 0 {
		c.Model.MaxSeqLen = 512
	}
	if c.Model.BatchSize <= 0 {
		c.Model.BatchSize = 32
	}
	if len(c.Model.InputNames) == 0 {
		c.Model.InputNames = []string{"input_ids", "attention_mask"}
		if c.Model.UseTokenTypeIDs {
			c.Model.InputNames = append(c.Model.InputNames, "token_type_ids")
		}
	}
	if c.Model.OutputName == "" {
		c.Model.OutputName = "logits"
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = Duration(30 * time.Minute)
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = 50000
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8000"
	}
	if c.Server.MaxUploadMB <= 0 {
		c.Server.MaxUploadMB = 64
	}
	c.Columns = c.Columns.withDefaults()
}

// ApplyEnv overrides file settings with environment variables.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv("MODEL_PATH")); v != "" {
		c.Model.ModelPath = v
	}
	if v := strings.TrimSpace(os.Getenv("ORT_LIB_PATH")); v != "" {
		c.Model.OrtLib = v
	}
	if v := strings.TrimSpace(os.Getenv("REVIEWLENS_ADDR")); v != "" {
		c.Server.Addr = v
	}
	if v, err := strconv.Atoi(os.Getenv("REVIEWLENS_BATCH_SIZE")); err == nil && v > 0 {
		c.Model.BatchSize = v
	}
	if v, err := strconv.ParseBool(os.Getenv("REVIEWLENS_CACHE_ENABLED")); err == nil {
		c.Cache.Enabled = v
	}
	if v, err := strconv.ParseBool(os.Getenv("REVIEWLENS_OTEL_ENABLED")); err == nil {
		c.Telemetry.Enabled = v
	}
	if v := strings.TrimSpace(os.Getenv("REVIEWLENS_OTEL_ENDPOINT")); v != "" {
		c.Telemetry.Endpoint = v
	}
	if v, err := strconv.ParseBool(os.Getenv("REVIEWLENS_OTEL_INSECURE")); err == nil {
		c.Telemetry.Insecure = v
	}
}

// OnnxPath is the resolved path of the ONNX graph.
func (m ModelConfig) OnnxPath() string {
	if filepath.IsAbs(m.OnnxFile) {
		return m.OnnxFile
	}
	return filepath.Join(m.ModelPath, m.OnnxFile)
}

// TokenizerPath is the resolved path of tokenizer.json.
func (m ModelConfig) TokenizerPath() string {
	if filepath.IsAbs(m.TokenizerFile) {
		return m.TokenizerFile
	}
	return filepath.Join(m.ModelPath, m.TokenizerFile)
}

// LoadConfig loads configuration from the given path or the default reviewlens.json.
// A missing file yields defaults. Environment overrides are applied last.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		path = defaultConfigFile
	}
	cfg := Config{Cache: CacheConfig{Enabled: true}}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.ApplyEnv()
			cfg.ApplyDefaults()
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	cfg.ApplyEnv()
	cfg.ApplyDefaults()
	return cfg, nil
}

// SaveConfig persists configuration to disk.
func SaveConfig(path string, cfg Config) error {
	if path == "" {
		path = defaultConfigFile
	}
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	cfg.ApplyDefaults()
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
