// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/artefacta/cmd/artefacta/cli"
	"github.com/bureau-foundation/artefacta/lib/artifact"
	"github.com/bureau-foundation/artefacta/lib/config"
	"github.com/bureau-foundation/artefacta/lib/engine"
	"github.com/bureau-foundation/artefacta/lib/graph"
	"github.com/bureau-foundation/artefacta/lib/metrics"
	"github.com/bureau-foundation/artefacta/lib/store"
)

// Output streams. Tests replace them to capture command output.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// StoreOptions selects the configuration and stores a command works
// on. Every command that touches a store embeds it.
//
// Exported so that [cli.BindFlags] sees the embedded field and calls
// AddFlags.
type StoreOptions struct {
	ConfigPath string
	Local      string
	Remote     string
	Offline    bool
	Verbose    bool
}

// AddFlags registers the store selection flags.
func (o *StoreOptions) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&o.ConfigPath, "config", "", "config file (default $"+config.EnvConfig+")")
	flagSet.StringVar(&o.Local, "local", "", "local store directory (overrides config and $"+config.EnvLocalStore+")")
	flagSet.StringVar(&o.Remote, "remote", "", "remote store: s3://bucket/prefix or a directory (overrides config and $"+config.EnvRemoteStore+")")
	flagSet.BoolVar(&o.Offline, "offline", false, "ignore the remote store")
	flagSet.BoolVarP(&o.Verbose, "verbose", "v", false, "log at debug level")
}

// loadConfig resolves the configuration: file or defaults, then the
// environment, then flags.
func (o *StoreOptions) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if o.ConfigPath != "" {
		cfg, err = config.LoadFile(o.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if o.Local != "" {
		cfg.Local = o.Local
	}
	if o.Remote != "" {
		cfg.Remote = o.Remote
	}
	if o.Offline {
		cfg.Remote = ""
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config:\n%w", err)
	}
	return cfg, nil
}

// session is the state one command invocation works with.
type session struct {
	config  *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	engine  *engine.Engine
}

// open loads configuration and builds the engine for command.
func (o *StoreOptions) open(ctx context.Context, command string) (*session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := cli.NewCommandLogger(stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	logger = logger.With("command", command)

	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}
	local, err := store.NewLocal(cfg.Local)
	if err != nil {
		return nil, err
	}

	var remote store.Store
	if cfg.Remote != "" {
		remote, err = store.Open(ctx, cfg.Remote, store.Options{S3: store.S3Options(cfg.S3)})
		if err != nil {
			return nil, fmt.Errorf("opening remote %s: %w", cfg.Remote, err)
		}
	}

	compression, err := cfg.CompressionTag()
	if err != nil {
		return nil, err
	}

	collectors := metrics.New()
	eng, err := engine.New(engine.Config{
		Local:            local,
		Remote:           remote,
		RemoteName:       cfg.RemoteName,
		Compression:      compression,
		CompressionLevel: cfg.Compression.Level,
		Workers:          cfg.Install.Workers,
		Prefetch:         cfg.Install.Prefetch,
		KeepIntermediate: cfg.Install.KeepIntermediate,
		PushConcurrency:  cfg.Push.Concurrency,
		Logger:           logger,
		Metrics:          collectors,
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("session opened",
		"local", cfg.Local,
		"remote", cfg.Remote,
		"compression", compression.String(),
	)
	return &session{config: cfg, logger: logger, metrics: collectors, engine: eng}, nil
}

// close writes the metrics textfile when one is configured.
func (s *session) close() {
	path := s.config.Metrics.Textfile
	if path == "" {
		return
	}
	if err := s.metrics.WriteTextfile(path); err != nil {
		s.logger.Warn("writing metrics textfile failed", "path", path, "error", err)
	}
}

// parseVersion validates a version argument.
func parseVersion(argument string) (artifact.Version, error) {
	version, err := artifact.ParseVersion(argument)
	if err != nil {
		return artifact.Version{}, fmt.Errorf("invalid version %q: %w", argument, err)
	}
	return version, nil
}

// parseExclusions parses --exclude values of the form NAME or
// NAME@SOURCE.
func parseExclusions(values []string) ([]graph.Exclusion, error) {
	var exclusions []graph.Exclusion
	for _, value := range values {
		name, source, _ := strings.Cut(value, "@")
		if _, ok := artifact.ParseName(name); !ok {
			return nil, fmt.Errorf("--exclude %q: not a build or patch name", value)
		}
		exclusions = append(exclusions, graph.Exclusion{Name: name, Source: source})
	}
	return exclusions, nil
}

// formatSize returns a human-readable byte count.
func formatSize(bytes int64) string {
	switch {
	case bytes >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(1<<30))
	case bytes >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
