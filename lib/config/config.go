// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/artefacta/lib/artifact"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Environment variables read by [Load] and [Config.ApplyEnv].
const (
	EnvConfig           = "ARTEFACTA_CONFIG"
	EnvLocalStore       = "ARTEFACTA_LOCAL_STORE"
	EnvRemoteStore      = "ARTEFACTA_REMOTE_STORE"
	EnvCompressionLevel = "ARTEFACTA_COMPRESSION_LEVEL"
)

// Config is the master configuration for artefacta.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Local is the local store directory.
	Local string `yaml:"local"`

	// Remote is the remote store location: an s3:// URL or a
	// directory. Empty runs offline.
	Remote string `yaml:"remote"`

	// RemoteName names the remote in logs, metrics, and exclusions.
	// Default: remote
	RemoteName string `yaml:"remote_name"`

	// S3 configures access to s3:// remotes.
	S3 S3Config `yaml:"s3"`

	// Compression configures how new objects are written.
	Compression CompressionConfig `yaml:"compression"`

	// Install configures plan execution.
	Install InstallConfig `yaml:"install"`

	// Push configures uploads to the remote.
	Push PushConfig `yaml:"push"`

	// Metrics configures the Prometheus textfile written at exit.
	Metrics MetricsConfig `yaml:"metrics"`

	// Log configures command logging.
	Log LogConfig `yaml:"log"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Local       string             `yaml:"local,omitempty"`
	Remote      string             `yaml:"remote,omitempty"`
	S3          *S3Config          `yaml:"s3,omitempty"`
	Compression *CompressionConfig `yaml:"compression,omitempty"`
	Install     *InstallConfig     `yaml:"install,omitempty"`
}

// S3Config configures S3 access. Empty credentials use the standard
// AWS environment variables, shared credentials file, and instance
// metadata, in that order.
type S3Config struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`

	// Insecure uses plain HTTP. For test endpoints only.
	Insecure bool `yaml:"insecure"`

	// MaxBytesPerSecond caps download and upload bandwidth.
	// 0 means unlimited.
	MaxBytesPerSecond int64 `yaml:"max_bytes_per_second"`
}

// CompressionConfig configures object compression.
type CompressionConfig struct {
	// Codec is none, lz4, or zstd.
	// Default: zstd
	Codec string `yaml:"codec"`

	// Level is the codec's compression level. zstd accepts 1-22,
	// lz4 0-9.
	// Default: 1
	Level int `yaml:"level"`
}

// InstallConfig configures plan execution.
type InstallConfig struct {
	// Workers bounds concurrent diff and apply work.
	// Default: 0 (one per CPU)
	Workers int `yaml:"workers"`

	// Prefetch downloads the next patch while the current one is
	// applied.
	// Default: true
	Prefetch bool `yaml:"prefetch"`

	// KeepIntermediate keeps builds and patches that were only
	// fetched to reach the target.
	// Default: false
	KeepIntermediate bool `yaml:"keep_intermediate"`
}

// PushConfig configures uploads.
type PushConfig struct {
	// Concurrency bounds concurrent uploads.
	// Default: 3
	Concurrency int `yaml:"concurrency"`
}

// MetricsConfig configures metrics output.
type MetricsConfig struct {
	// Textfile is written in the Prometheus text format when a
	// command exits, for node_exporter's textfile collector. Empty
	// disables it.
	Textfile string `yaml:"textfile"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	// Default: info
	Level string `yaml:"level"`

	// Format is auto, text, or json. Auto uses text on a terminal
	// and json otherwise.
	// Default: auto
	Format string `yaml:"format"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
func Default() *Config {
	return &Config{
		Environment: Development,
		RemoteName:  "remote",
		Compression: CompressionConfig{
			Codec: "zstd",
			Level: artifact.DefaultCompressionLevel,
		},
		Install: InstallConfig{
			Prefetch: true,
		},
		Push: PushConfig{
			Concurrency: 3,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load loads configuration from the file named by ARTEFACTA_CONFIG, or
// starts from [Default] when it is not set. Environment overrides
// apply in both cases.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvConfig)
	if configPath == "" {
		cfg := Default()
		if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
			return nil, err
		}
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	// Apply environment-specific overrides (development/staging/production sections in the file).
	cfg.applyEnvironmentOverrides()

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	// Expand ${HOME} and similar variables in paths for portability.
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if overrides.Local != "" {
		c.Local = overrides.Local
	}
	if overrides.Remote != "" {
		c.Remote = overrides.Remote
	}

	if overrides.S3 != nil {
		if overrides.S3.Region != "" {
			c.S3.Region = overrides.S3.Region
		}
		if overrides.S3.AccessKeyID != "" {
			c.S3.AccessKeyID = overrides.S3.AccessKeyID
		}
		if overrides.S3.SecretAccessKey != "" {
			c.S3.SecretAccessKey = overrides.S3.SecretAccessKey
		}
		if overrides.S3.SessionToken != "" {
			c.S3.SessionToken = overrides.S3.SessionToken
		}
		// Insecure is a bool, so we always apply it from overrides.
		c.S3.Insecure = overrides.S3.Insecure
		if overrides.S3.MaxBytesPerSecond != 0 {
			c.S3.MaxBytesPerSecond = overrides.S3.MaxBytesPerSecond
		}
	}

	if overrides.Compression != nil {
		if overrides.Compression.Codec != "" {
			c.Compression.Codec = overrides.Compression.Codec
		}
		if overrides.Compression.Level != 0 {
			c.Compression.Level = overrides.Compression.Level
		}
	}

	if overrides.Install != nil {
		if overrides.Install.Workers != 0 {
			c.Install.Workers = overrides.Install.Workers
		}
		c.Install.Prefetch = overrides.Install.Prefetch
		c.Install.KeepIntermediate = overrides.Install.KeepIntermediate
	}
}

// ApplyEnv overrides the store locations and compression level from
// ARTEFACTA_LOCAL_STORE, ARTEFACTA_REMOTE_STORE, and
// ARTEFACTA_COMPRESSION_LEVEL when lookup finds them. No other
// environment variables override config values.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if value, ok := lookup(EnvLocalStore); ok && value != "" {
		c.Local = value
	}
	if value, ok := lookup(EnvRemoteStore); ok && value != "" {
		c.Remote = value
	}
	if value, ok := lookup(EnvCompressionLevel); ok && value != "" {
		level, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvCompressionLevel, err)
		}
		c.Compression.Level = level
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Local = expandVars(c.Local, vars)
	c.Remote = expandVars(c.Remote, vars)
	c.Metrics.Textfile = expandVars(c.Metrics.Textfile, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// CompressionTag returns the configured codec.
func (c *Config) CompressionTag() (artifact.CompressionTag, error) {
	return artifact.ParseCompressionTag(c.Compression.Codec)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Local == "" {
		errs = append(errs, fmt.Errorf("local is required (set it in the config file, %s, or --local)", EnvLocalStore))
	}

	if c.RemoteName == "" {
		errs = append(errs, fmt.Errorf("remote_name must not be empty"))
	} else if c.RemoteName == "local" {
		errs = append(errs, fmt.Errorf("remote_name %q is reserved for the local store", c.RemoteName))
	}

	tag, err := c.CompressionTag()
	if err != nil {
		errs = append(errs, fmt.Errorf("compression.codec: %w", err))
	} else {
		switch tag {
		case artifact.CompressionZstd:
			if c.Compression.Level < 1 || c.Compression.Level > 22 {
				errs = append(errs, fmt.Errorf("compression.level must be 1-22 for zstd, got %d", c.Compression.Level))
			}
		case artifact.CompressionLZ4:
			if c.Compression.Level < 0 || c.Compression.Level > 9 {
				errs = append(errs, fmt.Errorf("compression.level must be 0-9 for lz4, got %d", c.Compression.Level))
			}
		}
	}

	if c.Install.Workers < 0 {
		errs = append(errs, fmt.Errorf("install.workers must not be negative"))
	}
	if c.Push.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("push.concurrency must not be negative"))
	}
	if c.S3.MaxBytesPerSecond < 0 {
		errs = append(errs, fmt.Errorf("s3.max_bytes_per_second must not be negative"))
	}

	levels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(levels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", levels))
	}
	formats := []string{"auto", "text", "json"}
	if !slices.Contains(formats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", formats))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the local store directory if it doesn't exist.
func (c *Config) EnsurePaths() error {
	if c.Local == "" {
		return nil
	}
	if err := os.MkdirAll(c.Local, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", c.Local, err)
	}
	return nil
}
