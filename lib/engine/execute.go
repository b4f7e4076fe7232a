// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bureau-foundation/artefacta/lib/artifact"
	"github.com/bureau-foundation/artefacta/lib/graph"
	"github.com/bureau-foundation/artefacta/lib/index"
	"github.com/bureau-foundation/artefacta/lib/store"
)

// staleStagingAge is how old a staging file must be before Install
// treats it as abandoned.
const staleStagingAge = time.Hour

// StepError reports a failed plan. Nothing under a canonical name was
// written for the failing step, and current was not moved.
type StepError struct {
	// Index is the 1-based position of the failing step, or 0 when
	// verifying the plan's base failed.
	Index int
	Total int
	Step  string

	// Object names the build or patch the failing step read, when the
	// failure concerns one object. Excluding it and planning again
	// avoids the failure.
	Object string

	// Current is the version current still points at, or the zero
	// Version if nothing is installed.
	Current artifact.Version

	Err error
}

func (e *StepError) Error() string {
	state := "nothing is installed"
	if !e.Current.IsZero() {
		state = "current still points at " + e.Current.String()
	}
	if e.Index == 0 {
		return fmt.Sprintf("%s failed: %v; local state unchanged, %s", e.Step, e.Err, state)
	}
	return fmt.Sprintf("step %d/%d %s failed: %v; local state unchanged, %s", e.Index, e.Total, e.Step, e.Err, state)
}

func (e *StepError) Unwrap() error { return e.Err }

// execution is the state of one plan run.
type execution struct {
	engine *Engine
	plan   *graph.Plan
	ctx    context.Context
	cancel context.CancelFunc
	span   trace.Span

	// created lists canonical objects committed during this run, in
	// order.
	created []string

	// prefetches holds started downloads not yet claimed by their step,
	// keyed by object name. It is only touched by the executing
	// goroutine.
	prefetches map[string]*prefetch
	wg         sync.WaitGroup
}

type prefetch struct {
	name   string
	done   chan struct{}
	staged *store.Staged
	header artifact.Header
	source string
	err    error
}

func (e *Engine) execute(ctx context.Context, plan *graph.Plan, repoint bool) error {
	ctx, span := tracer.Start(ctx, "engine.execute", trace.WithAttributes(
		attribute.String("target", plan.Target.String()),
		attribute.String("base", plan.Base.String()),
		attribute.Int("plan.steps", len(plan.Steps)),
		attribute.Int64("plan.cost", plan.Cost),
	))
	defer span.End()

	ctx, cancel := context.WithCancel(ctx)
	run := &execution{engine: e, plan: plan, ctx: ctx, cancel: cancel, span: span}
	defer run.finish()

	total := len(plan.Steps)
	var runningHash artifact.Hash
	if !plan.Base.IsZero() {
		header, err := e.verifyLocal(ctx, artifact.BuildName(plan.Base))
		if err != nil {
			return run.fail(0, "verify base "+plan.Base.String(), artifact.BuildName(plan.Base), err)
		}
		runningHash = header.ContentHash
	}

	for i, step := range plan.Steps {
		e.logger.Info("step started",
			"event", "step_started",
			"step", step.String(),
			"index", i+1,
			"total", total,
			"cost", step.Cost,
		)
		if e.config.Prefetch && i+1 < total {
			run.startPrefetch(plan.Steps[i+1])
		}

		var header artifact.Header
		var err error
		switch step.Kind {
		case graph.FetchFull:
			header, err = run.fetchFull(step)
		case graph.FetchPatchAndApply:
			header, err = run.patchAndApply(step, runningHash)
		default:
			err = fmt.Errorf("unknown step kind %v", step.Kind)
		}
		if err != nil {
			e.metrics.ObserveStep(step.Kind.String(), "failed")
			return run.fail(i+1, step.String(), step.ObjectName(), err)
		}

		e.metrics.ObserveStep(step.Kind.String(), "verified")
		e.logger.Info("step verified",
			"event", "step_verified",
			"step", step.String(),
			"index", i+1,
			"total", total,
			"version", step.To,
			"hash", header.ContentHash.Short(),
			"size", header.ContentSize,
		)
		runningHash = header.ContentHash
	}

	if repoint {
		if err := e.config.Local.SetCurrent(plan.Target); err != nil {
			return run.fail(total, "update current", "", err)
		}
		e.logger.Info("current updated", "event", "current_updated", "version", plan.Target)
	}

	if !e.config.KeepIntermediate {
		e.removeCreated(ctx, run.created, artifact.BuildName(plan.Target))
	}
	return nil
}

// fail logs a step failure and wraps err with the state the local
// store was left in.
func (r *execution) fail(index int, step, object string, err error) error {
	e := r.engine
	if artifact.IsIntegrity(err) {
		e.metrics.ObserveIntegrityFailure()
	}
	r.span.RecordError(err)
	r.span.SetStatus(codes.Error, step+" failed")
	current, _, currentErr := e.config.Local.Current()
	if currentErr != nil {
		e.logger.Warn("reading current pointer failed", "error", currentErr)
	}
	e.logger.Error("step failed",
		"event", "step_failed",
		"step", step,
		"index", index,
		"total", len(r.plan.Steps),
		"error", err,
	)
	if len(r.created) > 0 {
		e.logger.Info("keeping verified objects from the failed run as cache", "objects", r.created)
	}
	return &StepError{Index: index, Total: len(r.plan.Steps), Step: step, Object: object, Current: current, Err: err}
}

// finish stops any prefetch and removes its staging file if it was not
// used.
func (r *execution) finish() {
	r.cancel()
	r.wg.Wait()
	for _, fetch := range r.prefetches {
		if fetch.staged != nil {
			fetch.staged.Discard()
		}
	}
}

// startPrefetch begins downloading the object of step into staging,
// when step is a patch with no local copy.
func (r *execution) startPrefetch(step graph.Step) {
	if step.Kind != graph.FetchPatchAndApply || len(step.Locations) == 0 || step.Locations[0].Local {
		return
	}
	name := step.ObjectName()
	if _, ok := r.prefetches[name]; ok {
		return
	}
	if r.prefetches == nil {
		r.prefetches = make(map[string]*prefetch)
	}
	fetch := &prefetch{name: name, done: make(chan struct{})}
	r.prefetches[name] = fetch
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(fetch.done)
		for _, location := range step.Locations {
			staged, header, err := r.engine.download(r.ctx, location, fetch.name)
			if err == nil {
				fetch.staged, fetch.header, fetch.source = staged, header, location.Source
				fetch.err = nil
				return
			}
			fetch.err = err
			if !artifact.IsUnavailable(err) || r.ctx.Err() != nil {
				return
			}
		}
	}()
	r.engine.logger.Debug("prefetch started", "event", "prefetch_started", "object", fetch.name)
}

// takePrefetch waits for and claims a prefetch of name, if one was
// started.
func (r *execution) takePrefetch(name string) (*prefetch, error) {
	fetch, ok := r.prefetches[name]
	if !ok {
		return nil, nil
	}
	select {
	case <-fetch.done:
	case <-r.ctx.Done():
		return nil, r.ctx.Err()
	}
	delete(r.prefetches, name)
	return fetch, nil
}

// obtain ensures a verified copy of the step's object is in the local
// store and returns its header. Locations are tried in order; a
// location that cannot serve the object (missing, unreachable) passes
// to the next, but corrupt data ends the step.
func (r *execution) obtain(step graph.Step) (artifact.Header, error) {
	e := r.engine
	name := step.ObjectName()

	fetch, err := r.takePrefetch(name)
	if err != nil {
		return artifact.Header{}, err
	}
	if fetch != nil {
		if fetch.err != nil {
			return artifact.Header{}, fetch.err
		}
		existed := r.existsLocally(name)
		if err := fetch.staged.Commit(name); err != nil {
			fetch.staged.Discard()
			return artifact.Header{}, err
		}
		r.committed(name, existed)
		e.logger.Debug("used prefetched object", "event", "prefetch_used", "object", name, "store", fetch.source)
		return fetch.header, nil
	}

	if len(step.Locations) == 0 {
		return artifact.Header{}, artifact.Errorf(artifact.ErrNotFound, "fetch", name, "no known location")
	}
	var lastErr error
	for _, location := range step.Locations {
		header, err := r.fetchFrom(location, name)
		if err == nil {
			return header, nil
		}
		if !artifact.IsUnavailable(err) || r.ctx.Err() != nil {
			return artifact.Header{}, err
		}
		e.logger.Warn("object unavailable from store, trying next location",
			"event", "location_failed",
			"object", name,
			"store", location.Source,
			"error", err,
		)
		lastErr = err
	}
	return artifact.Header{}, lastErr
}

func (r *execution) fetchFrom(location index.Location, name string) (artifact.Header, error) {
	e := r.engine
	if location.Local {
		return e.verifyLocal(r.ctx, name)
	}
	staged, header, err := e.download(r.ctx, location, name)
	if err != nil {
		return artifact.Header{}, err
	}
	existed := r.existsLocally(name)
	if err := staged.Commit(name); err != nil {
		staged.Discard()
		return artifact.Header{}, err
	}
	r.committed(name, existed)
	return header, nil
}

func (r *execution) fetchFull(step graph.Step) (artifact.Header, error) {
	return r.obtain(step)
}

// patchAndApply obtains the patch of step, applies it to the verified
// local build of step.From whose content hash is sourceHash, and
// commits the result as the build of step.To once its hash matches the
// patch's declared target.
func (r *execution) patchAndApply(step graph.Step, sourceHash artifact.Hash) (artifact.Header, error) {
	e := r.engine
	name := step.ObjectName()

	patchHeader, err := r.obtain(step)
	if err != nil {
		return artifact.Header{}, err
	}
	if patchHeader.SourceHash != sourceHash {
		return artifact.Header{}, artifact.Errorf(artifact.ErrIntegrity, "apply", name,
			"patch expects %s %s, local build is %s", step.From, patchHeader.SourceHash.Short(), sourceHash.Short())
	}

	patchContent, _, err := e.readLocal(r.ctx, name)
	if err != nil {
		return artifact.Header{}, err
	}
	base, baseHeader, err := e.readLocal(r.ctx, artifact.BuildName(step.From))
	if err != nil {
		return artifact.Header{}, err
	}
	if baseHeader.ContentHash != sourceHash {
		return artifact.Header{}, artifact.Errorf(artifact.ErrIntegrity, "apply", name,
			"local build of %s changed during the run", step.From)
	}

	var result []byte
	var resultHash artifact.Hash
	err = e.onWorker(r.ctx, func() error {
		applied, err := e.config.Codec.Apply(base, patchContent)
		if err != nil {
			return err
		}
		result = applied
		resultHash = artifact.HashContent(applied)
		return nil
	})
	if err != nil {
		if artifact.IsIntegrity(err) || r.ctx.Err() != nil {
			return artifact.Header{}, err
		}
		return artifact.Header{}, artifact.NewError(artifact.ErrPatch, "apply", name, err)
	}
	if resultHash != patchHeader.TargetHash {
		return artifact.Header{}, artifact.Errorf(artifact.ErrIntegrity, "apply", name,
			"reconstructed %s has hash %s, patch declares %s", step.To, resultHash.Short(), patchHeader.TargetHash.Short())
	}

	header := artifact.BuildHeader(step.To, e.config.Compression, int64(len(result)), resultHash)
	existed := r.existsLocally(header.Name())
	if err := e.commitObject(r.ctx, header, bytes.NewReader(result)); err != nil {
		return artifact.Header{}, err
	}
	r.committed(header.Name(), existed)
	return header, nil
}

// download stages a verified copy of name from a remote location. The
// caller commits or discards the staged file.
func (e *Engine) download(ctx context.Context, location index.Location, name string) (*store.Staged, artifact.Header, error) {
	reader, err := location.Store.Get(ctx, location.Key)
	if err != nil {
		return nil, artifact.Header{}, err
	}
	staged, err := e.config.Local.Stage(ctx, reader)
	reader.Close()
	if err != nil {
		return nil, artifact.Header{}, err
	}
	e.metrics.ObserveTransfer(location.Source, "download", staged.Size)

	file, err := staged.Open()
	if err != nil {
		staged.Discard()
		return nil, artifact.Header{}, err
	}
	header, err := verifyObject(file, name)
	file.Close()
	if err != nil {
		staged.Discard()
		return nil, artifact.Header{}, fmt.Errorf("object %s from %s: %w", name, location.Source, err)
	}
	return staged, header, nil
}

// verifyLocal checks the local copy of name end to end.
func (e *Engine) verifyLocal(ctx context.Context, name string) (artifact.Header, error) {
	reader, err := e.config.Local.Get(ctx, name)
	if err != nil {
		return artifact.Header{}, err
	}
	defer reader.Close()
	header, err := verifyObject(reader, name)
	if err != nil {
		return artifact.Header{}, fmt.Errorf("local object %s: %w", name, err)
	}
	return header, nil
}

// readLocal returns the verified content of the local object name.
func (e *Engine) readLocal(ctx context.Context, name string) ([]byte, artifact.Header, error) {
	reader, err := e.config.Local.Get(ctx, name)
	if err != nil {
		return nil, artifact.Header{}, err
	}
	defer reader.Close()
	header, err := artifact.ReadHeader(reader)
	if err != nil {
		return nil, artifact.Header{}, fmt.Errorf("local object %s: %w", name, err)
	}
	if err := header.CheckName(name); err != nil {
		return nil, artifact.Header{}, err
	}
	content, err := artifact.ReadContent(reader, header)
	if err != nil {
		return nil, artifact.Header{}, fmt.Errorf("local object %s: %w", name, err)
	}
	return content, header, nil
}

// verifyObject reads an object stream to its end, checking that its
// header belongs to name and its payload matches the header.
func verifyObject(r io.Reader, name string) (artifact.Header, error) {
	header, err := artifact.ReadHeader(r)
	if err != nil {
		return artifact.Header{}, err
	}
	if err := header.CheckName(name); err != nil {
		return artifact.Header{}, err
	}
	if err := artifact.VerifyPayload(r, header); err != nil {
		return artifact.Header{}, err
	}
	return header, nil
}

// commitObject encodes content under header into staging and renames
// it to the header's name.
func (e *Engine) commitObject(ctx context.Context, header artifact.Header, content io.Reader) error {
	reader, writer := io.Pipe()
	encoded := make(chan error, 1)
	go func() {
		_, err := artifact.WriteObject(writer, header, content, e.config.CompressionLevel)
		writer.CloseWithError(err)
		encoded <- err
	}()

	staged, err := e.config.Local.Stage(ctx, reader)
	// Unblock the encoder if staging stopped early.
	reader.CloseWithError(io.ErrClosedPipe)
	encodeErr := <-encoded
	if err != nil {
		return err
	}
	if encodeErr != nil {
		staged.Discard()
		return encodeErr
	}
	if err := staged.Commit(header.Name()); err != nil {
		staged.Discard()
		return err
	}
	return nil
}

// removeCreated deletes intermediate objects by name, except those in
// keep.
func (e *Engine) removeCreated(ctx context.Context, names []string, keep ...string) {
	for _, name := range names {
		if slices.Contains(keep, name) {
			continue
		}
		if err := e.config.Local.Delete(ctx, name); err != nil {
			e.logger.Warn("removing intermediate object failed", "object", name, "error", err)
			continue
		}
		e.logger.Debug("removed intermediate object", "event", "intermediate_removed", "object", name)
	}
}

// committed records name as created by this run unless it already
// existed locally before the run wrote it.
func (r *execution) committed(name string, existed bool) {
	if !existed {
		r.created = append(r.created, name)
	}
}

func (r *execution) existsLocally(name string) bool {
	exists, err := r.engine.config.Local.Exists(r.ctx, name)
	return err == nil && exists
}
