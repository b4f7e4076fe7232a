// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bureau-foundation/artefacta/lib/artifact"
)

// AddResult describes a build added to the local store.
type AddResult struct {
	Header artifact.Header

	// Existed is true when an identical build was already present.
	Existed bool
}

// AddBuild publishes the file at path as the build of version in the
// local store. Adding the same content twice is a no-op; adding
// different content under a version that already exists, locally or
// on the remote, fails with ErrConflict.
func (e *Engine) AddBuild(ctx context.Context, version artifact.Version, path string) (*AddResult, error) {
	lock, err := e.lock()
	if err != nil {
		return nil, err
	}
	defer lock.Release()
	return e.addBuild(ctx, version, path)
}

func (e *Engine) addBuild(ctx context.Context, version artifact.Version, path string) (*AddResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, artifact.NewError(artifact.ErrIO, "add", path, err)
	}
	defer file.Close()

	// First pass: the header carries the content hash, so it must be
	// known before anything is written.
	hasher := artifact.NewHasher()
	if err := e.onWorker(ctx, func() error {
		_, err := io.Copy(hasher, file)
		return err
	}); err != nil {
		return nil, artifact.NewError(artifact.ErrIO, "add", path, err)
	}
	if hasher.Size() == 0 {
		return nil, fmt.Errorf("add %s: file is empty", path)
	}
	header := artifact.BuildHeader(version, e.config.Compression, hasher.Size(), hasher.Sum())
	name := header.Name()

	existed, err := e.checkExisting(ctx, header)
	if err != nil {
		return nil, err
	}
	if existed {
		e.logger.Info("build already present with identical content", "version", version, "hash", header.ContentHash.Short())
		return &AddResult{Header: header, Existed: true}, nil
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, artifact.NewError(artifact.ErrIO, "add", path, err)
	}
	if err := e.commitObject(ctx, header, file); err != nil {
		return nil, fmt.Errorf("add %s as %s: %w", path, name, err)
	}
	e.logger.Info("build added",
		"event", "build_added",
		"version", version,
		"path", path,
		"size", header.ContentSize,
		"hash", header.ContentHash.Short(),
	)
	return &AddResult{Header: header}, nil
}

// checkExisting reports whether an object with header's name and
// content is already in the local store. The same name with different
// content, locally or remotely, is a conflict.
func (e *Engine) checkExisting(ctx context.Context, header artifact.Header) (bool, error) {
	name := header.Name()
	local, err := e.verifyLocal(ctx, name)
	switch {
	case err == nil:
		if local.ContentHash != header.ContentHash {
			return false, fmt.Errorf("%w: local %s has hash %s, new content has %s",
				ErrConflict, name, local.ContentHash.Short(), header.ContentHash.Short())
		}
		return true, nil
	case !errors.Is(err, artifact.ErrNotFound):
		return false, err
	}

	if e.config.Remote == nil {
		return false, nil
	}
	reader, err := e.config.Remote.Get(ctx, name)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	defer reader.Close()
	remote, err := artifact.ReadHeader(reader)
	if err != nil {
		return false, fmt.Errorf("reading header of %s on %s: %w", name, e.config.RemoteName, err)
	}
	if remote.ContentHash != header.ContentHash {
		return false, fmt.Errorf("%w: %s on %s has hash %s, new content has %s",
			ErrConflict, name, e.config.RemoteName, remote.ContentHash.Short(), header.ContentHash.Short())
	}
	return false, nil
}

// PatchResult describes a patch created in the local store.
type PatchResult struct {
	Name   string
	Header artifact.Header

	// Existed is true when the patch was already known to the local
	// or remote store and nothing was created.
	Existed bool

	// TargetSize is the content size of the build the patch
	// produces.
	TargetSize int64
}

// Ratio returns the patch size as a fraction of its target build.
func (r *PatchResult) Ratio() float64 {
	if r.TargetSize == 0 {
		return 0
	}
	return float64(r.Header.ContentSize) / float64(r.TargetSize)
}

// CreatePatch computes the patch from one version to another and adds
// it to the local store. Both builds are first made present locally,
// fetching or reconstructing them as needed, without moving current.
// The patch is checked by applying it before it is committed.
func (e *Engine) CreatePatch(ctx context.Context, from, to artifact.Version) (*PatchResult, error) {
	lock, err := e.lock()
	if err != nil {
		return nil, err
	}
	defer lock.Release()
	return e.createPatch(ctx, from, to)
}

func (e *Engine) createPatch(ctx context.Context, from, to artifact.Version) (*PatchResult, error) {
	if from == to {
		return nil, fmt.Errorf("create patch: %s to itself", from)
	}
	name := artifact.PatchName(from, to)

	catalog, err := e.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	if object, ok := catalog.Lookup(name); ok {
		e.logger.Warn("patch already exists, not recreating it",
			"patch", name,
			"store", object.Locations[0].Source,
		)
		return &PatchResult{Name: name, Existed: true}, nil
	}

	for _, version := range []artifact.Version{from, to} {
		if err := e.materialize(ctx, version); err != nil {
			return nil, fmt.Errorf("create patch %s: obtaining %s: %w", name, version, err)
		}
	}

	oldBuild, oldHeader, err := e.readLocal(ctx, artifact.BuildName(from))
	if err != nil {
		return nil, err
	}
	newBuild, newHeader, err := e.readLocal(ctx, artifact.BuildName(to))
	if err != nil {
		return nil, err
	}

	var diff []byte
	err = e.onWorker(ctx, func() error {
		computed, err := e.config.Codec.Diff(oldBuild, newBuild)
		if err != nil {
			return fmt.Errorf("diff %s: %w", name, err)
		}
		rebuilt, err := e.config.Codec.Apply(oldBuild, computed)
		if err != nil {
			return fmt.Errorf("verifying %s: %w", name, err)
		}
		if !bytes.Equal(rebuilt, newBuild) {
			return artifact.Errorf(artifact.ErrPatch, "diff", name, "applying the new patch does not reproduce %s", to)
		}
		diff = computed
		return nil
	})
	if err != nil {
		return nil, err
	}

	header := artifact.PatchHeader(from, to, e.config.Compression, int64(len(diff)),
		artifact.HashContent(diff), oldHeader.ContentHash, newHeader.ContentHash)
	if err := e.commitObject(ctx, header, bytes.NewReader(diff)); err != nil {
		return nil, err
	}

	result := &PatchResult{Name: name, Header: header, TargetSize: newHeader.ContentSize}
	e.logger.Info("patch created",
		"event", "patch_created",
		"patch", name,
		"size", header.ContentSize,
		"target_size", newHeader.ContentSize,
		"percent", fmt.Sprintf("%.2f", result.Ratio()*100),
	)
	return result, nil
}

// materialize makes version's build present and verified locally
// without touching current.
func (e *Engine) materialize(ctx context.Context, version artifact.Version) error {
	plan, err := e.Plan(ctx, version, nil)
	if err != nil {
		return err
	}
	if plan.Empty() {
		return nil
	}
	return e.execute(ctx, plan, false)
}

// Export writes the verified content of version's local build to w.
// The content streams as it is verified; when an error is returned,
// whatever reached w must be discarded.
func (e *Engine) Export(ctx context.Context, version artifact.Version, w io.Writer) (artifact.Header, error) {
	name := artifact.BuildName(version)
	reader, err := e.config.Local.Get(ctx, name)
	if err != nil {
		return artifact.Header{}, err
	}
	defer reader.Close()
	header, err := artifact.ReadHeader(reader)
	if err != nil {
		return artifact.Header{}, fmt.Errorf("local object %s: %w", name, err)
	}
	if err := header.CheckName(name); err != nil {
		return artifact.Header{}, err
	}
	content, err := artifact.OpenContent(reader, header)
	if err != nil {
		return artifact.Header{}, err
	}
	defer content.Close()
	if _, err := io.Copy(w, content); err != nil {
		return artifact.Header{}, err
	}
	return header, nil
}
