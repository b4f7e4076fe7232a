// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/artefacta/lib/artifact"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "artefacta.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return configPath
}

// clearEnv unsets the variables Load reads for the duration of the
// test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{EnvConfig, EnvLocalStore, EnvRemoteStore, EnvCompressionLevel} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Compression.Codec != "zstd" || cfg.Compression.Level != artifact.DefaultCompressionLevel {
		t.Errorf("expected zstd level %d, got %s level %d",
			artifact.DefaultCompressionLevel, cfg.Compression.Codec, cfg.Compression.Level)
	}
	if !cfg.Install.Prefetch {
		t.Error("expected prefetch=true")
	}
	if cfg.Push.Concurrency != 3 {
		t.Errorf("expected push concurrency 3, got %d", cfg.Push.Concurrency)
	}
	if cfg.RemoteName != "remote" {
		t.Errorf("expected remote_name=remote, got %s", cfg.RemoteName)
	}
}

func TestLoad_WithoutConfigUsesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvLocalStore, "/var/lib/artefacta")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Local != "/var/lib/artefacta" {
		t.Errorf("expected local from %s, got %q", EnvLocalStore, cfg.Local)
	}
	if cfg.Compression.Codec != "zstd" {
		t.Errorf("expected default codec, got %q", cfg.Compression.Codec)
	}
}

func TestLoad_WithConfigFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvConfig, writeConfig(t, `
environment: staging
local: /test/store
remote: s3://builds.example.com/releases
`))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}
	if cfg.Local != "/test/store" {
		t.Errorf("expected local=/test/store, got %s", cfg.Local)
	}
	if cfg.Remote != "s3://builds.example.com/releases" {
		t.Errorf("unexpected remote %s", cfg.Remote)
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	configPath := writeConfig(t, `
environment: staging
local: /custom/store
remote: /mnt/shared/builds
remote_name: nas

s3:
  region: eu-central-1
  max_bytes_per_second: 1048576

compression:
  codec: lz4
  level: 4

install:
  workers: 2
  prefetch: false
  keep_intermediate: true

push:
  concurrency: 8

metrics:
  textfile: /var/lib/node_exporter/artefacta.prom

log:
  level: debug
  format: json
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.RemoteName != "nas" {
		t.Errorf("expected remote_name=nas, got %s", cfg.RemoteName)
	}
	if cfg.S3.Region != "eu-central-1" || cfg.S3.MaxBytesPerSecond != 1048576 {
		t.Errorf("unexpected s3 config %+v", cfg.S3)
	}
	tag, err := cfg.CompressionTag()
	if err != nil || tag != artifact.CompressionLZ4 {
		t.Errorf("CompressionTag() = %v, %v; want lz4", tag, err)
	}
	if cfg.Compression.Level != 4 {
		t.Errorf("expected level 4, got %d", cfg.Compression.Level)
	}
	if cfg.Install.Workers != 2 || cfg.Install.Prefetch || !cfg.Install.KeepIntermediate {
		t.Errorf("unexpected install config %+v", cfg.Install)
	}
	if cfg.Push.Concurrency != 8 {
		t.Errorf("expected push concurrency 8, got %d", cfg.Push.Concurrency)
	}
	if cfg.Metrics.Textfile != "/var/lib/node_exporter/artefacta.prom" {
		t.Errorf("unexpected metrics textfile %s", cfg.Metrics.Textfile)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("unexpected log config %+v", cfg.Log)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFile_Malformed(t *testing.T) {
	_, err := LoadFile(writeConfig(t, "local: [unterminated"))
	if err == nil || !strings.Contains(err.Error(), "parsing") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	configPath := writeConfig(t, `
environment: production
local: /base/store
remote: /base/remote

install:
  prefetch: true
  keep_intermediate: false

staging:
  local: /staging/store

production:
  remote: s3://builds.prod.example.com/releases
  s3:
    region: us-east-1
  compression:
    level: 19
  install:
    workers: 16
    prefetch: false
    keep_intermediate: true
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Local != "/base/store" {
		t.Errorf("staging override applied in production: local=%s", cfg.Local)
	}
	if cfg.Remote != "s3://builds.prod.example.com/releases" {
		t.Errorf("expected production remote, got %s", cfg.Remote)
	}
	if cfg.S3.Region != "us-east-1" {
		t.Errorf("expected production region, got %s", cfg.S3.Region)
	}
	if cfg.Compression.Level != 19 || cfg.Compression.Codec != "zstd" {
		t.Errorf("unexpected compression %+v", cfg.Compression)
	}
	if cfg.Install.Workers != 16 || cfg.Install.Prefetch || !cfg.Install.KeepIntermediate {
		t.Errorf("unexpected install config %+v", cfg.Install)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvLocalStore:       "/env/store",
		EnvRemoteStore:      "s3://env.example.com",
		EnvCompressionLevel: "7",
	}
	lookup := func(name string) (string, bool) {
		value, ok := env[name]
		return value, ok
	}

	cfg := Default()
	cfg.Local = "/file/store"
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Local != "/env/store" || cfg.Remote != "s3://env.example.com" || cfg.Compression.Level != 7 {
		t.Errorf("environment not applied: %+v", cfg)
	}

	env[EnvCompressionLevel] = "fast"
	if err := cfg.ApplyEnv(lookup); err == nil {
		t.Error("expected error for non-numeric compression level")
	}
}

func TestOtherEnvVarsDoNotOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("ARTEFACTA_REMOTE_NAME", "sneaky")
	t.Setenv("ARTEFACTA_WORKERS", "99")

	cfg, err := LoadFile(writeConfig(t, "local: /store\n"))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.RemoteName != "remote" {
		t.Errorf("remote_name overridden by environment: %s", cfg.RemoteName)
	}
	if cfg.Install.Workers != 0 {
		t.Errorf("workers overridden by environment: %d", cfg.Install.Workers)
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("ARTEFACTA_TEST_ROOT", "/srv/artefacta")

	tests := []struct {
		input    string
		vars     map[string]string
		expected string
	}{
		{"${HOME}/store", map[string]string{"HOME": "/home/ci"}, "/home/ci/store"},
		{"${ARTEFACTA_TEST_ROOT}/store", nil, "/srv/artefacta/store"},
		{"${ARTEFACTA_TEST_UNSET:-/fallback}/store", nil, "/fallback/store"},
		{"${ARTEFACTA_TEST_UNSET}/store", nil, "/store"},
		{"/plain/path", nil, "/plain/path"},
	}

	for _, test := range tests {
		if got := expandVars(test.input, test.vars); got != test.expected {
			t.Errorf("expandVars(%q) = %q, want %q", test.input, got, test.expected)
		}
	}
}

func TestLoadFile_ExpandsPaths(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", "/home/builder")

	cfg, err := LoadFile(writeConfig(t, `
local: ${HOME}/.cache/artefacta
metrics:
  textfile: ${ARTEFACTA_TEST_TEXTFILE_DIR:-/tmp}/artefacta.prom
`))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Local != "/home/builder/.cache/artefacta" {
		t.Errorf("local not expanded: %s", cfg.Local)
	}
	if cfg.Metrics.Textfile != "/tmp/artefacta.prom" {
		t.Errorf("textfile not expanded: %s", cfg.Metrics.Textfile)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Local = "/store"
		return cfg
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"environment", func(c *Config) { c.Environment = "qa" }, "invalid environment"},
		{"local", func(c *Config) { c.Local = "" }, "local is required"},
		{"remote name", func(c *Config) { c.RemoteName = "local" }, "reserved"},
		{"codec", func(c *Config) { c.Compression.Codec = "brotli" }, "compression.codec"},
		{"zstd level", func(c *Config) { c.Compression.Level = 30 }, "1-22"},
		{"lz4 level", func(c *Config) { c.Compression.Codec = "lz4"; c.Compression.Level = 12 }, "0-9"},
		{"workers", func(c *Config) { c.Install.Workers = -1 }, "install.workers"},
		{"push", func(c *Config) { c.Push.Concurrency = -2 }, "push.concurrency"},
		{"log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := valid()
			test.modify(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, test.want)
			}
		})
	}
}

func TestEnsurePaths(t *testing.T) {
	cfg := Default()
	cfg.Local = filepath.Join(t.TempDir(), "nested", "store")
	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths: %v", err)
	}
	info, err := os.Stat(cfg.Local)
	if err != nil || !info.IsDir() {
		t.Errorf("local store directory not created: %v", err)
	}
}
