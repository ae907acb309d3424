package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"zipfetch/archive"
	"zipfetch/fetchers"
)

// Config holds all zipfetch configuration. Command-line flags override
// whatever is loaded from file.
type Config struct {
	Builder BuilderConfig `yaml:"builder"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

type BuilderConfig struct {
	Concurrency int    `yaml:"concurrency"`
	OnFailure   string `yaml:"on_failure"`   // partial, atomic
	OnCollision string `yaml:"on_collision"` // suffix, overwrite, reject
	DefaultName string `yaml:"default_name"`
}

type FetchConfig struct {
	Timeout     string `yaml:"timeout"`
	MaxBytes    int64  `yaml:"max_bytes"`
	InsecureTLS bool   `yaml:"insecure_tls"`
	// CacheEntries > 0 enables an in-process LRU of fetched payloads.
	CacheEntries int `yaml:"cache_entries"`
	// LocalRoot confines file:// and bare-path sources. The server only
	// serves local sources when it is set.
	LocalRoot string `yaml:"local_root"`
}

type ServerConfig struct {
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`
	PSK     string `yaml:"psk"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

func DefaultConfig() *Config {
	return &Config{
		Builder: BuilderConfig{
			Concurrency: archive.DefaultConcurrency,
			OnFailure:   string(archive.FailPartial),
			OnCollision: string(archive.CollisionSuffix),
			DefaultName: archive.DefaultName,
		},
		Fetch: FetchConfig{
			Timeout:  "30s",
			MaxBytes: fetchers.DefaultMaxBytes,
		},
		Server: ServerConfig{
			Port:    8080,
			DataDir: "./zipfetch-data",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

func (c *Config) Validate() error {
	if _, err := archive.ParseFailurePolicy(c.Builder.OnFailure); err != nil {
		return err
	}
	if _, err := archive.ParseCollisionPolicy(c.Builder.OnCollision); err != nil {
		return err
	}
	if _, err := c.FetchTimeout(); err != nil {
		return err
	}
	if c.Fetch.CacheEntries < 0 {
		return fmt.Errorf("fetch.cache_entries must be >= 0")
	}
	return nil
}

func (c *Config) FetchTimeout() (time.Duration, error) {
	if c.Fetch.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Fetch.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid fetch.timeout %q: %w", c.Fetch.Timeout, err)
	}
	return d, nil
}

// BuilderOptions converts the builder section into archive.Options.
func (c *Config) BuilderOptions() (archive.Options, error) {
	onFailure, err := archive.ParseFailurePolicy(c.Builder.OnFailure)
	if err != nil {
		return archive.Options{}, err
	}
	onCollision, err := archive.ParseCollisionPolicy(c.Builder.OnCollision)
	if err != nil {
		return archive.Options{}, err
	}
	return archive.Options{
		Concurrency: c.Builder.Concurrency,
		OnFailure:   onFailure,
		OnCollision: onCollision,
	}, nil
}
