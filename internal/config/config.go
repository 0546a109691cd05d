package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// MaxBatchSize is the largest number of records the remote importer accepts
// in a single ImportResources request.
const MaxBatchSize = 1000

// Config is the top-level configuration
type Config struct {
	Settings map[string]string `yaml:"settings"`
	Import   ImportConfig      `yaml:"import"`
	Source   SourceConfig      `yaml:"source"`
	Gateway  GatewayConfig     `yaml:"gateway"`
	Server   ServerConfig      `yaml:"server"`
}

// ImportConfig controls how manifests are turned into batches
type ImportConfig struct {
	BatchSize     int    `yaml:"batch_size"`
	PathSeparator string `yaml:"path_separator"`
	// Strict turns rejected and remotely failed batches into errors
	// instead of continuing with the next batch.
	Strict bool `yaml:"strict"`
}

// SourceConfig selects where manifests are fetched from
type SourceConfig struct {
	Type string   `yaml:"type"` // "dir" or "s3"
	Dir  string   `yaml:"dir"`
	S3   S3Config `yaml:"s3"`
}

// S3Config holds settings for an S3-compatible manifest bucket
type S3Config struct {
	Endpoint     string `yaml:"endpoint"`
	Region       string `yaml:"region"`
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// GatewayConfig holds settings for the serialized endpoint gateway
type GatewayConfig struct {
	LockFile string `yaml:"lock_file"`
}

// ServerConfig holds settings for the status API and run history
type ServerConfig struct {
	Listen string `yaml:"listen"`
	DBPath string `yaml:"db_path"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Settings: make(map[string]string),
		Import: ImportConfig{
			BatchSize:     MaxBatchSize,
			PathSeparator: `\`,
		},
		Source: SourceConfig{
			Type: "dir",
			Dir:  "/var/lib/pimsync/inbox",
		},
		Server: ServerConfig{
			Listen: "127.0.0.1:8085",
			DBPath: "/var/lib/pimsync/pimsync.db",
		},
	}
}

// Load reads a config file from the given path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if cfg.Settings == nil {
		cfg.Settings = make(map[string]string)
	}
	cfg.Import.BatchSize = normalizeBatchSize(cfg.Import.BatchSize)

	return cfg, nil
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() (string, error) {
	searchPaths := []string{
		"pimsync.yaml",
		"/etc/pimsync/pimsync.yaml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(home, ".config", "pimsync", "pimsync.yaml"),
		)
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", searchPaths)
}

// EffectiveSettings returns the settings mapping with any endpoint keys present
// in the process environment overriding the file values.
func (c *Config) EffectiveSettings() map[string]string {
	out := make(map[string]string, len(c.Settings)+len(settingKeys))
	for k, v := range c.Settings {
		out[k] = v
	}
	for _, key := range settingKeys {
		if v, ok := os.LookupEnv(key); ok {
			out[key] = v
		}
	}
	return out
}

func normalizeBatchSize(n int) int {
	if n <= 0 || n > MaxBatchSize {
		return MaxBatchSize
	}
	return n
}
