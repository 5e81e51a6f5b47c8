package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/craftxbox/wplace-downloader/internal/progress"
	"github.com/craftxbox/wplace-downloader/internal/proxy"
)

// DefaultBaseURL is the public tile server.
const DefaultBaseURL = "https://backend.wplace.live"

// Config defines configuration for the wplace-downloader CLI.
type Config struct {
	BaseURL          string            `yaml:"base_url"`
	OutputDir        string            `yaml:"output_dir"`
	Workers          int               `yaml:"workers"`
	RequestInterval  time.Duration     `yaml:"request_interval"`
	SpawnInterval    time.Duration     `yaml:"spawn_interval"`
	Timeout          time.Duration     `yaml:"timeout"`
	Retry            RetryConfig       `yaml:"retry"`
	Probe            ProbeConfig       `yaml:"probe"`
	MergeImages      bool              `yaml:"merge"`
	MergeMemoryLimit int64             `yaml:"merge_memory_limit"`
	Placeholder      string            `yaml:"placeholder"`
	PublishURL       string            `yaml:"publish_url"`
	Progress         bool              `yaml:"progress"`
	Headers          map[string]string `yaml:"headers"`
	Proxies          []proxy.Proxy     `yaml:"proxies"`
	Jobs             []Job             `yaml:"jobs"`
}

// RetryConfig defines retry behavior for tile fetches.
type RetryConfig struct {
	// Delay is used when the server gives no Retry-After.
	Delay time.Duration `yaml:"delay"`
	// Margin multiplies every retry delay.
	Margin float64 `yaml:"margin"`
	// MaxAttempts caps attempts per tile. Zero retries forever.
	MaxAttempts int `yaml:"max_attempts"`
}

// ProbeConfig defines the reachability probe sent before each job.
type ProbeConfig struct {
	X        int  `yaml:"x"`
	Y        int  `yaml:"y"`
	Disabled bool `yaml:"disabled"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		BaseURL:          DefaultBaseURL,
		OutputDir:        "images",
		Workers:          3,
		RequestInterval:  time.Second,
		SpawnInterval:    500 * time.Millisecond,
		Timeout:          30 * time.Second,
		MergeImages:      true,
		MergeMemoryLimit: 4 * 1024 * 1024 * 1024, // 4GB
		Retry: RetryConfig{
			Delay:  10 * time.Second,
			Margin: 1.05,
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string durations and sizes.
type yamlConfig struct {
	BaseURL          string            `yaml:"base_url"`
	OutputDir        string            `yaml:"output_dir"`
	Workers          int               `yaml:"workers"`
	RequestInterval  string            `yaml:"request_interval"`
	SpawnInterval    string            `yaml:"spawn_interval"`
	Timeout          string            `yaml:"timeout"`
	Retry            yamlRetryConfig   `yaml:"retry"`
	Probe            ProbeConfig       `yaml:"probe"`
	Merge            *bool             `yaml:"merge"`
	MergeMemoryLimit string            `yaml:"merge_memory_limit"`
	Placeholder      string            `yaml:"placeholder"`
	PublishURL       string            `yaml:"publish_url"`
	Progress         bool              `yaml:"progress"`
	Headers          map[string]string `yaml:"headers"`
	Proxies          []yamlProxy       `yaml:"proxies"`
	Jobs             []Job             `yaml:"jobs"`
}

type yamlRetryConfig struct {
	Delay       string  `yaml:"delay"`
	Margin      float64 `yaml:"margin"`
	MaxAttempts int     `yaml:"max_attempts"`
}

type yamlProxy struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Type     string `yaml:"type"`
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration on top of the defaults.
func Parse(data []byte) (Config, error) {
	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.BaseURL != "" {
		cfg.BaseURL = yc.BaseURL
	}
	if yc.OutputDir != "" {
		cfg.OutputDir = yc.OutputDir
	}
	if yc.Workers != 0 {
		cfg.Workers = yc.Workers
	}
	if err := parseDuration(yc.RequestInterval, "request_interval", &cfg.RequestInterval); err != nil {
		return Config{}, err
	}
	if err := parseDuration(yc.SpawnInterval, "spawn_interval", &cfg.SpawnInterval); err != nil {
		return Config{}, err
	}
	if err := parseDuration(yc.Timeout, "timeout", &cfg.Timeout); err != nil {
		return Config{}, err
	}
	if err := parseDuration(yc.Retry.Delay, "retry.delay", &cfg.Retry.Delay); err != nil {
		return Config{}, err
	}
	if yc.Retry.Margin != 0 {
		cfg.Retry.Margin = yc.Retry.Margin
	}
	cfg.Retry.MaxAttempts = yc.Retry.MaxAttempts
	cfg.Probe = yc.Probe
	if yc.Merge != nil {
		cfg.MergeImages = *yc.Merge
	}
	if yc.MergeMemoryLimit != "" {
		size, err := progress.ParseBytes(yc.MergeMemoryLimit)
		if err != nil {
			return Config{}, fmt.Errorf("parse merge_memory_limit: %w", err)
		}
		cfg.MergeMemoryLimit = size
	}
	cfg.Placeholder = yc.Placeholder
	cfg.PublishURL = yc.PublishURL
	cfg.Progress = yc.Progress
	cfg.Headers = yc.Headers

	for i, yp := range yc.Proxies {
		kind, err := proxy.ParseKind(yp.Type)
		if err != nil {
			return Config{}, fmt.Errorf("parse proxies[%d]: %w", i, err)
		}
		cfg.Proxies = append(cfg.Proxies, proxy.Proxy{
			URL:      yp.URL,
			Username: yp.Username,
			Password: yp.Password,
			Kind:     kind,
		})
	}

	for _, job := range yc.Jobs {
		cfg.Jobs = append(cfg.Jobs, job.WithDefaultName())
	}

	return cfg, nil
}

func parseDuration(s, key string, dst *time.Duration) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = d
	return nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the WPLACE_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("WPLACE_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("WPLACE_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("WPLACE_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse WPLACE_WORKERS: %w", err)
		}
		c.Workers = n
	}
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"WPLACE_REQUEST_INTERVAL", &c.RequestInterval},
		{"WPLACE_SPAWN_INTERVAL", &c.SpawnInterval},
		{"WPLACE_TIMEOUT", &c.Timeout},
		{"WPLACE_RETRY_DELAY", &c.Retry.Delay},
	}
	for _, d := range durations {
		if err := parseDuration(os.Getenv(d.key), d.key, d.dst); err != nil {
			return err
		}
	}
	if v := os.Getenv("WPLACE_RETRY_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse WPLACE_RETRY_MAX_ATTEMPTS: %w", err)
		}
		c.Retry.MaxAttempts = n
	}
	if v := os.Getenv("WPLACE_MERGE"); v != "" {
		c.MergeImages = v == "true" || v == "1"
	}
	if v := os.Getenv("WPLACE_MERGE_MEMORY_LIMIT"); v != "" {
		size, err := progress.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse WPLACE_MERGE_MEMORY_LIMIT: %w", err)
		}
		c.MergeMemoryLimit = size
	}
	if v := os.Getenv("WPLACE_PLACEHOLDER"); v != "" {
		c.Placeholder = v
	}
	if v := os.Getenv("WPLACE_PUBLISH_URL"); v != "" {
		c.PublishURL = v
	}
	if v := os.Getenv("WPLACE_PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("config: base_url is required")
	}
	if c.OutputDir == "" {
		return errors.New("config: output_dir is required")
	}
	if c.Workers <= 0 {
		return errors.New("config: workers must be positive")
	}
	if c.RequestInterval < 0 || c.SpawnInterval < 0 {
		return errors.New("config: intervals must not be negative")
	}
	if c.Timeout <= 0 {
		return errors.New("config: timeout must be positive")
	}
	if c.Retry.Margin < 1 {
		return errors.New("config: retry.margin must be at least 1")
	}
	if c.Retry.MaxAttempts < 0 {
		return errors.New("config: retry.max_attempts must not be negative")
	}
	if c.MergeMemoryLimit < 0 {
		return errors.New("config: merge_memory_limit must not be negative")
	}
	for i, p := range c.Proxies {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("config: proxies[%d]: %w", i, err)
		}
	}
	if len(c.Jobs) == 0 {
		return errors.New("config: at least one job is required")
	}
	seen := make(map[string]bool, len(c.Jobs))
	for i, j := range c.Jobs {
		if err := j.Validate(); err != nil {
			return fmt.Errorf("config: jobs[%d]: %w", i, err)
		}
		if seen[j.Name] {
			return fmt.Errorf("config: duplicate job name %q", j.Name)
		}
		seen[j.Name] = true
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.BaseURL != "" {
		c.BaseURL = override.BaseURL
	}
	if override.OutputDir != "" {
		c.OutputDir = override.OutputDir
	}
	if override.Workers != 0 {
		c.Workers = override.Workers
	}
	if override.RequestInterval != 0 {
		c.RequestInterval = override.RequestInterval
	}
	if override.SpawnInterval != 0 {
		c.SpawnInterval = override.SpawnInterval
	}
	if override.Timeout != 0 {
		c.Timeout = override.Timeout
	}
	if override.Retry.Delay != 0 {
		c.Retry.Delay = override.Retry.Delay
	}
	if override.Retry.Margin != 0 {
		c.Retry.Margin = override.Retry.Margin
	}
	if override.Retry.MaxAttempts != 0 {
		c.Retry.MaxAttempts = override.Retry.MaxAttempts
	}
	if override.MergeMemoryLimit != 0 {
		c.MergeMemoryLimit = override.MergeMemoryLimit
	}
	if override.Placeholder != "" {
		c.Placeholder = override.Placeholder
	}
	if override.PublishURL != "" {
		c.PublishURL = override.PublishURL
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if len(override.Proxies) > 0 {
		c.Proxies = override.Proxies
	}
	if len(override.Jobs) > 0 {
		c.Jobs = override.Jobs
	}
	return c
}
