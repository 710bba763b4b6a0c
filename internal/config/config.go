// Package config loads daemon configuration from an optional YAML file
// with environment-variable overrides. Precedence: defaults < file < env.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the fully resolved daemon configuration.
type Config struct {
	// DataDir is the root for everything the daemon persists.
	DataDir string `yaml:"data_dir"`
	// BlobRoot is the media blob store root. Defaults under DataDir.
	BlobRoot string `yaml:"blob_root"`
	// SQLitePath is the asset database. Defaults under DataDir.
	SQLitePath string `yaml:"sqlite_path"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// ListenAddr serves health, readiness and metrics.
	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`

	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`

	Workers Workers `yaml:"workers"`

	// MetadataWait and PollInterval bound the orchestrator's wait on
	// extraction results.
	MetadataWait time.Duration `yaml:"metadata_wait"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Workers sets per-queue consumer counts.
type Workers struct {
	Metadata     int `yaml:"metadata"`
	Thumbnails   int `yaml:"thumbnails"`
	Optimization int `yaml:"optimization"`
	Priority     int `yaml:"priority"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DataDir:      "./data",
		RedisAddr:    "localhost:6379",
		ListenAddr:   ":8089",
		LogLevel:     "info",
		FFmpegPath:   "ffmpeg",
		FFprobePath:  "ffprobe",
		MetadataWait: 300 * time.Second,
		PollInterval: 10 * time.Second,
		Workers: Workers{
			Metadata:     2,
			Thumbnails:   2,
			Optimization: 1,
			Priority:     2,
		},
	}
}

// Load resolves the configuration: defaults, then the YAML file when path
// is non-empty, then environment overrides, then validation.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	cfg.applyDerived()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyDerived fills paths that default relative to DataDir.
func (c *Config) applyDerived() {
	if c.BlobRoot == "" {
		c.BlobRoot = c.DataDir + "/blobs"
	}
	if c.SQLitePath == "" {
		c.SQLitePath = c.DataDir + "/courtreel.db"
	}
}

// Validate rejects configurations the daemon cannot start with.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir must not be empty")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("config: redis_addr must not be empty")
	}
	if c.MetadataWait <= 0 {
		return fmt.Errorf("config: metadata_wait must be positive")
	}
	if c.PollInterval <= 0 || c.PollInterval > c.MetadataWait {
		return fmt.Errorf("config: poll_interval must be positive and below metadata_wait")
	}
	for name, n := range map[string]int{
		"metadata":     c.Workers.Metadata,
		"thumbnails":   c.Workers.Thumbnails,
		"optimization": c.Workers.Optimization,
		"priority":     c.Workers.Priority,
	} {
		if n < 1 {
			return fmt.Errorf("config: workers.%s must be at least 1", name)
		}
	}
	return nil
}

// applyEnv overrides fields from COURTREEL_* environment variables.
func applyEnv(c *Config) {
	c.DataDir = ParseString("COURTREEL_DATA_DIR", c.DataDir)
	c.BlobRoot = ParseString("COURTREEL_BLOB_ROOT", c.BlobRoot)
	c.SQLitePath = ParseString("COURTREEL_SQLITE_PATH", c.SQLitePath)
	c.RedisAddr = ParseString("COURTREEL_REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = ParseString("COURTREEL_REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = ParseInt("COURTREEL_REDIS_DB", c.RedisDB)
	c.ListenAddr = ParseString("COURTREEL_LISTEN_ADDR", c.ListenAddr)
	c.LogLevel = ParseString("COURTREEL_LOG_LEVEL", c.LogLevel)
	c.FFmpegPath = ParseString("COURTREEL_FFMPEG_PATH", c.FFmpegPath)
	c.FFprobePath = ParseString("COURTREEL_FFPROBE_PATH", c.FFprobePath)
	c.MetadataWait = ParseDuration("COURTREEL_METADATA_WAIT", c.MetadataWait)
	c.PollInterval = ParseDuration("COURTREEL_POLL_INTERVAL", c.PollInterval)
	c.Workers.Metadata = ParseInt("COURTREEL_WORKERS_METADATA", c.Workers.Metadata)
	c.Workers.Thumbnails = ParseInt("COURTREEL_WORKERS_THUMBNAILS", c.Workers.Thumbnails)
	c.Workers.Optimization = ParseInt("COURTREEL_WORKERS_OPTIMIZATION", c.Workers.Optimization)
	c.Workers.Priority = ParseInt("COURTREEL_WORKERS_PRIORITY", c.Workers.Priority)
}
