package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v2"
)

// Configuration represents the complete synchronization-layer configuration
type Configuration struct {
	Global     GlobalConfig     `yaml:"global"`
	Network    NetworkConfig    `yaml:"network"`
	Cache      CacheConfig      `yaml:"cache"`
	Resources  ResourcesConfig  `yaml:"resources"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// GlobalConfig represents global settings
type GlobalConfig struct {
	LogLevel string `yaml:"log_level"`
}

// NetworkConfig represents network and retry settings
type NetworkConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
	Retry    RetryConfig   `yaml:"retry"`
	Breaker  BreakerConfig `yaml:"circuit_breaker"`
	Probe    ProbeConfig   `yaml:"probe"`
}

// TimeoutConfig represents timeout settings
type TimeoutConfig struct {
	Connect time.Duration `yaml:"connect"`
	Request time.Duration `yaml:"request"`
}

// RetryConfig represents retry settings for the request executor
type RetryConfig struct {
	// MaxAttempts is the total attempt budget, initial call included
	MaxAttempts int `yaml:"max_attempts"`

	// BaseDelay seeds the exponential backoff: delay = base * 2^attempt
	BaseDelay time.Duration `yaml:"base_delay"`

	// MaxDelay caps the backoff growth
	MaxDelay time.Duration `yaml:"max_delay"`

	// RateLimitDelay is the fixed wait applied to 429 responses instead of
	// exponential backoff
	RateLimitDelay time.Duration `yaml:"rate_limit_delay"`

	// Jitter spreads retry times by ±20% to avoid thundering herds
	Jitter bool `yaml:"jitter"`
}

// BreakerConfig represents circuit breaker settings
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

// ProbeConfig represents connectivity probe settings
type ProbeConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// CacheConfig represents two-tier cache settings
type CacheConfig struct {
	Memory MemoryCacheConfig `yaml:"memory"`
	Disk   DiskCacheConfig   `yaml:"disk"`
}

// MemoryCacheConfig represents the in-memory tier
type MemoryCacheConfig struct {
	MaxEntries int    `yaml:"max_entries"`
	MaxSize    string `yaml:"max_size"`
}

// DiskCacheConfig represents the persistent tier
type DiskCacheConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Directory string `yaml:"directory"`
	MaxSize   string `yaml:"max_size"`

	// RetentionWindow bounds disk growth: entries older than this are swept
	// regardless of their TTL
	RetentionWindow time.Duration `yaml:"retention_window"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	IndexFile       string        `yaml:"index_file"`
}

// ResourcesConfig holds per-resource-family freshness settings
type ResourcesConfig struct {
	// DefaultTTL applies to families without an explicit override
	DefaultTTL time.Duration            `yaml:"default_ttl"`
	TTL        map[string]time.Duration `yaml:"ttl"`
}

// MonitoringConfig represents monitoring settings
type MonitoringConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig represents metrics settings
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel: "INFO",
		},
		Network: NetworkConfig{
			BaseURL: "https://api.squadsync.dev",
			Timeouts: TimeoutConfig{
				Connect: 10 * time.Second,
				Request: 15 * time.Second,
			},
			Retry: RetryConfig{
				MaxAttempts:    3,
				BaseDelay:      500 * time.Millisecond,
				MaxDelay:       30 * time.Second,
				RateLimitDelay: 5 * time.Second,
				Jitter:         true,
			},
			Breaker: BreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				Cooldown:         60 * time.Second,
			},
			Probe: ProbeConfig{
				Interval: 15 * time.Second,
			},
		},
		Cache: CacheConfig{
			Memory: MemoryCacheConfig{
				MaxEntries: 256,
				MaxSize:    "32MB",
			},
			Disk: DiskCacheConfig{
				Enabled:         true,
				Directory:       defaultCacheDir(),
				MaxSize:         "256MB",
				RetentionWindow: 72 * time.Hour,
				SweepInterval:   10 * time.Minute,
				IndexFile:       "cache-index.json",
			},
		},
		Resources: ResourcesConfig{
			DefaultTTL: 5 * time.Minute,
			TTL: map[string]time.Duration{
				"team":      15 * time.Minute,
				"dashboard": 5 * time.Minute,
				"players":   10 * time.Minute,
				"trades":    5 * time.Minute,
				"captains":  30 * time.Minute,
			},
		},
		Monitoring: MonitoringConfig{
			Metrics: MetricsConfig{
				Enabled:   false,
				Port:      9090,
				Path:      "/metrics",
				Namespace: "squadsync",
			},
		},
	}
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "squadsync")
	}
	return filepath.Join(os.TempDir(), "squadsync-cache")
}

// ResourceTTL returns the freshness TTL for a resource family
func (c *Configuration) ResourceTTL(key string) time.Duration {
	if ttl, ok := c.Resources.TTL[key]; ok {
		return ttl
	}
	return c.Resources.DefaultTTL
}

// MemoryMaxBytes parses the memory tier size limit
func (c *Configuration) MemoryMaxBytes() (int64, error) {
	return parseSize(c.Cache.Memory.MaxSize)
}

// DiskMaxBytes parses the disk tier size limit
func (c *Configuration) DiskMaxBytes() (int64, error) {
	return parseSize(c.Cache.Disk.MaxSize)
}

func parseSize(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return int64(n), nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv loads configuration overrides from environment variables
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("SQUADSYNC_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := os.Getenv("SQUADSYNC_BASE_URL"); val != "" {
		c.Network.BaseURL = val
	}
	if val := os.Getenv("SQUADSYNC_MAX_ATTEMPTS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Network.Retry.MaxAttempts = n
		}
	}
	if val := os.Getenv("SQUADSYNC_BASE_DELAY"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Network.Retry.BaseDelay = d
		}
	}
	if val := os.Getenv("SQUADSYNC_RATE_LIMIT_DELAY"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Network.Retry.RateLimitDelay = d
		}
	}
	if val := os.Getenv("SQUADSYNC_CACHE_DIR"); val != "" {
		c.Cache.Disk.Directory = val
	}
	if val := os.Getenv("SQUADSYNC_CACHE_DISK_ENABLED"); val != "" {
		c.Cache.Disk.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("SQUADSYNC_RETENTION_WINDOW"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Cache.Disk.RetentionWindow = d
		}
	}
	if val := os.Getenv("SQUADSYNC_DEFAULT_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Resources.DefaultTTL = d
		}
	}
	if val := os.Getenv("SQUADSYNC_METRICS_ENABLED"); val != "" {
		c.Monitoring.Metrics.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("SQUADSYNC_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Monitoring.Metrics.Port = port
		}
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	if c.Network.BaseURL == "" {
		return fmt.Errorf("network.base_url must be set")
	}

	if c.Network.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}

	if c.Network.Retry.BaseDelay <= 0 {
		return fmt.Errorf("retry.base_delay must be greater than 0")
	}

	if c.Network.Retry.RateLimitDelay <= 0 {
		return fmt.Errorf("retry.rate_limit_delay must be greater than 0")
	}

	if c.Cache.Memory.MaxEntries <= 0 {
		return fmt.Errorf("cache.memory.max_entries must be greater than 0")
	}

	if _, err := c.MemoryMaxBytes(); err != nil {
		return fmt.Errorf("cache.memory.max_size: %w", err)
	}

	if c.Cache.Disk.Enabled {
		if c.Cache.Disk.Directory == "" {
			return fmt.Errorf("cache.disk.directory must be set when the disk tier is enabled")
		}
		if c.Cache.Disk.RetentionWindow <= 0 {
			return fmt.Errorf("cache.disk.retention_window must be greater than 0")
		}
		if _, err := c.DiskMaxBytes(); err != nil {
			return fmt.Errorf("cache.disk.max_size: %w", err)
		}
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if strings.ToUpper(c.Global.LogLevel) == level {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return fmt.Errorf("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}

	return nil
}
