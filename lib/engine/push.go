// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/artefacta/lib/artifact"
	"github.com/bureau-foundation/artefacta/lib/index"
)

// Push uploads every local object the remote store does not have and
// returns the names uploaded. A remote whose listing failed is not
// pushed to: its missing set is unknown.
func (e *Engine) Push(ctx context.Context) ([]string, error) {
	if e.config.Remote == nil {
		return nil, ErrNoRemote
	}
	lock, err := e.lock()
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	catalog, err := e.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	if catalog.IsDegraded(e.config.RemoteName) {
		return nil, artifact.Errorf(artifact.ErrNetwork, "push", e.config.RemoteName, "listing failed, not pushing")
	}
	missing := catalog.MissingFrom(e.config.RemoteName)
	if len(missing) == 0 {
		e.logger.Info("remote is up to date", "store", e.config.RemoteName)
		return nil, nil
	}
	return e.upload(ctx, missing)
}

// Upload copies the named local objects to the remote store,
// overwriting nothing the remote already holds.
func (e *Engine) Upload(ctx context.Context, names ...artifact.Name) ([]string, error) {
	if e.config.Remote == nil {
		return nil, ErrNoRemote
	}
	lock, err := e.lock()
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	catalog, err := e.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	var objects []index.Object
	for _, name := range names {
		object, ok := catalog.Lookup(name.String())
		if !ok {
			return nil, artifact.Errorf(artifact.ErrNotFound, "upload", name.String(), "not in any store")
		}
		if _, ok := object.LocalCopy(); !ok {
			return nil, artifact.Errorf(artifact.ErrNotFound, "upload", name.String(), "no local copy")
		}
		if catalog.IsDegraded(e.config.RemoteName) || !onSource(object, e.config.RemoteName) {
			objects = append(objects, object)
		}
	}
	return e.upload(ctx, objects)
}

func onSource(object index.Object, source string) bool {
	for _, location := range object.Locations {
		if location.Source == source {
			return true
		}
	}
	return false
}

// upload pushes objects concurrently. Each object is verified before
// it leaves the local store so a corrupt local copy is never
// published.
func (e *Engine) upload(ctx context.Context, objects []index.Object) ([]string, error) {
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(e.config.PushConcurrency)
	uploaded := make([]string, len(objects))
	for i, object := range objects {
		group.Go(func() error {
			name := object.Name.String()
			location, _ := object.LocalCopy()
			if _, err := e.verifyLocal(ctx, name); err != nil {
				return fmt.Errorf("not uploading %s: %w", name, err)
			}
			reader, err := e.config.Local.Get(ctx, name)
			if err != nil {
				return err
			}
			defer reader.Close()
			if err := e.config.Remote.Put(ctx, name, reader, location.Size); err != nil {
				return fmt.Errorf("uploading %s to %s: %w", name, e.config.RemoteName, err)
			}
			e.metrics.ObserveTransfer(e.config.RemoteName, "upload", location.Size)
			e.logger.Info("object uploaded",
				"event", "object_uploaded",
				"object", name,
				"store", e.config.RemoteName,
				"size", location.Size,
			)
			uploaded[i] = name
			return nil
		})
	}
	err := group.Wait()
	var names []string
	for _, name := range uploaded {
		if name != "" {
			names = append(names, name)
		}
	}
	return names, err
}
