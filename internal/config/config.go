package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type CompanionConfig struct {
	BaseURL        string `yaml:"baseUrl"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

func (c CompanionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type ThrottleConfig struct {
	WindowSeconds       int   `yaml:"windowSeconds"`
	MinSpeedBytesPerSec int64 `yaml:"minSpeedBytesPerSec"`
}

type DownloadConfig struct {
	MaxConcurrent        int            `yaml:"maxConcurrent"`
	RateLimitBytesPerSec int64          `yaml:"rateLimitBytesPerSec"`
	Quality              string         `yaml:"quality"`
	Throttle             ThrottleConfig `yaml:"throttle"`
}

type RetryConfig struct {
	BaseDelayMinutes    int `yaml:"baseDelayMinutes"`
	MaxAttempts         int `yaml:"maxAttempts"`
	PollIntervalSeconds int `yaml:"pollIntervalSeconds"`
}

type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
}

type CleanupConfig struct {
	TempMaxAgeHours int    `yaml:"tempMaxAgeHours"`
	Schedule        string `yaml:"schedule"`
}

type Config struct {
	DataDir   string          `yaml:"dataDir"`
	OutputDir string          `yaml:"outputDir"`
	Companion CompanionConfig `yaml:"companion"`
	Download  DownloadConfig  `yaml:"download"`
	Retry     RetryConfig     `yaml:"retry"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Cleanup   CleanupConfig   `yaml:"cleanup"`
}

func Default() *Config {
	return &Config{
		DataDir:   "data",
		OutputDir: "media",
		Companion: CompanionConfig{
			BaseURL:        "http://127.0.0.1:8282",
			TimeoutSeconds: 30,
		},
		Download: DownloadConfig{
			MaxConcurrent: 2,
			Quality:       "best",
			Throttle: ThrottleConfig{
				WindowSeconds:       10,
				MinSpeedBytesPerSec: 64 * 1024,
			},
		},
		Retry: RetryConfig{
			BaseDelayMinutes:    1,
			MaxAttempts:         3,
			PollIntervalSeconds: 10,
		},
		Cleanup: CleanupConfig{
			TempMaxAgeHours: 48,
			Schedule:        "@hourly",
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("outputDir must not be empty")
	}
	if c.Companion.BaseURL == "" {
		return fmt.Errorf("companion.baseUrl must not be empty")
	}
	if c.Download.MaxConcurrent < 1 {
		return fmt.Errorf("download.maxConcurrent must be at least 1")
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket must be set when archive is enabled")
	}
	return nil
}
