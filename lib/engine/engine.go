// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine ties stores, the catalog, the graph, and the patch
// codec together into the operations artefacta performs: installing a
// version, publishing builds and patches, and pushing local objects to
// the remote store.
//
// The engine is the only writer of the local store. Every write goes
// through staging and an atomic rename, and no build is committed
// under its canonical name before its content hash has been verified.
// The current pointer moves only after a whole plan has succeeded, so
// a failure at any point (network, integrity, cancellation) leaves the
// installed version untouched.
//
// Public operations take the local store's lock for their duration.
// Two engines on the same local store, in one process or several,
// therefore never run concurrently; the second fails with
// store.ErrLocked.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"go.opentelemetry.io/otel"

	"github.com/bureau-foundation/artefacta/lib/artifact"
	"github.com/bureau-foundation/artefacta/lib/graph"
	"github.com/bureau-foundation/artefacta/lib/index"
	"github.com/bureau-foundation/artefacta/lib/metrics"
	"github.com/bureau-foundation/artefacta/lib/patch"
	"github.com/bureau-foundation/artefacta/lib/store"
)

var tracer = otel.Tracer("github.com/bureau-foundation/artefacta/lib/engine")

// LocalSource is the source name of the local store in catalogs, logs,
// and exclusions.
const LocalSource = "local"

// DefaultPushConcurrency bounds concurrent uploads.
const DefaultPushConcurrency = 3

// ErrNoRemote is returned by operations that need a remote store when
// none is configured.
var ErrNoRemote = errors.New("no remote store configured")

// ErrConflict is returned when publishing an object whose name is
// already taken by different content.
var ErrConflict = errors.New("object already exists with different content")

// Config configures an Engine. Local is required; everything else has
// a usable default.
type Config struct {
	Local *store.Local

	// Remote is the shared store. Nil runs the engine offline: only
	// local objects are visible and Push fails.
	Remote store.Store

	// RemoteName names the remote in logs and locations. Default
	// "remote".
	RemoteName string

	// Codec computes and applies patches. Default patch.BSDiff.
	Codec patch.Codec

	// Compression and CompressionLevel apply to objects this engine
	// writes. Objects read are decompressed per their own header.
	Compression      artifact.CompressionTag
	CompressionLevel int

	// Workers bounds concurrent CPU-heavy work (diff, apply, hashing
	// large buffers). Default runtime.NumCPU().
	Workers int

	// Prefetch downloads the next patch of a plan while the current
	// step is applied.
	Prefetch bool

	// KeepIntermediate retains builds and patches fetched or
	// reconstructed only to reach a plan's target. By default they
	// are removed once the target is installed.
	KeepIntermediate bool

	// PushConcurrency bounds concurrent uploads. Default 3.
	PushConcurrency int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Engine runs artefacta operations against one local store and at most
// one remote store.
type Engine struct {
	config  Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	workers chan struct{}
}

// New returns an Engine.
func New(config Config) (*Engine, error) {
	if config.Local == nil {
		return nil, fmt.Errorf("engine: local store is required")
	}
	if config.RemoteName == "" {
		config.RemoteName = "remote"
	}
	if config.RemoteName == LocalSource {
		return nil, fmt.Errorf("engine: remote cannot be named %q", LocalSource)
	}
	if config.Codec == nil {
		config.Codec = patch.BSDiff{}
	}
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	if config.PushConcurrency <= 0 {
		config.PushConcurrency = DefaultPushConcurrency
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		config:  config,
		logger:  logger,
		metrics: config.Metrics,
		workers: make(chan struct{}, config.Workers),
	}, nil
}

func (e *Engine) sources() []index.Source {
	sources := []index.Source{{Name: LocalSource, Store: e.config.Local, Local: true}}
	if e.config.Remote != nil {
		sources = append(sources, index.Source{Name: e.config.RemoteName, Store: e.config.Remote})
	}
	return sources
}

// lock takes the local store lock for one public operation.
func (e *Engine) lock() (*store.Lock, error) {
	lock, err := e.config.Local.Lock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", e.config.Local.Root(), err)
	}
	return lock, nil
}

// Catalog lists the local and remote stores.
func (e *Engine) Catalog(ctx context.Context) (*index.Catalog, error) {
	return index.Build(ctx, e.sources(), e.logger)
}

// Current returns the installed version, if any.
func (e *Engine) Current() (artifact.Version, bool, error) {
	return e.config.Local.Current()
}

// Plan resolves the cheapest plan reaching target from a fresh
// catalog, ignoring the excluded object copies.
func (e *Engine) Plan(ctx context.Context, target artifact.Version, exclude []graph.Exclusion) (*graph.Plan, error) {
	catalog, err := e.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	return e.plan(ctx, catalog, target, exclude)
}

func (e *Engine) plan(ctx context.Context, catalog *index.Catalog, target artifact.Version, exclude []graph.Exclusion) (*graph.Plan, error) {
	plan, err := graph.Resolve(ctx, graph.Build(catalog, graph.Options{Exclude: exclude}), target)
	if err != nil {
		return nil, err
	}
	e.metrics.ObservePlan(plan.Cost, len(plan.Steps))
	e.logger.Info("plan resolved",
		"event", "plan_resolved",
		"target", plan.Target,
		"base", plan.Base,
		"steps", len(plan.Steps),
		"cost", plan.Cost,
		"plan", plan.String(),
	)
	return plan, nil
}

// InstallResult describes a completed install.
type InstallResult struct {
	Plan     *graph.Plan
	Previous artifact.Version
}

// Install makes target present and verified in the local store and
// points current at it. Stale staging files left by a crashed earlier
// run are removed first.
func (e *Engine) Install(ctx context.Context, target artifact.Version, exclude []graph.Exclusion) (*InstallResult, error) {
	lock, err := e.lock()
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	if removed, err := e.config.Local.CleanStaging(staleStagingAge); err != nil {
		e.logger.Warn("cleaning stale staging files failed", "error", err)
	} else if removed > 0 {
		e.logger.Info("removed stale staging files", "count", removed)
	}

	previous, _, err := e.config.Local.Current()
	if err != nil {
		return nil, err
	}
	plan, err := e.Plan(ctx, target, exclude)
	if err != nil {
		return nil, err
	}
	if err := e.execute(ctx, plan, true); err != nil {
		return nil, err
	}
	return &InstallResult{Plan: plan, Previous: previous}, nil
}

// Execute carries out plan and points current at its target. Plans go
// stale as stores change, so callers normally use Install, which
// resolves and executes under one lock.
func (e *Engine) Execute(ctx context.Context, plan *graph.Plan) error {
	lock, err := e.lock()
	if err != nil {
		return err
	}
	defer lock.Release()
	return e.execute(ctx, plan, true)
}

// onWorker runs work once a worker slot is free.
func (e *Engine) onWorker(ctx context.Context, work func() error) error {
	select {
	case e.workers <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.workers }()
	return work()
}
