// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"

	"github.com/bureau-foundation/artefacta/lib/artifact"
	"github.com/bureau-foundation/artefacta/lib/index"
)

// PruneOptions selects what Prune removes from the local store.
type PruneOptions struct {
	// Keep is the number of newest local builds retained besides
	// current.
	Keep int

	// Force removes objects that have no copy on the remote store.
	// Without it those are retained, as removing them loses them.
	Force bool

	// DryRun reports what would be removed without removing it.
	DryRun bool
}

// Prune removes local builds other than current and the newest
// opts.Keep builds, and local patches whose source build is no longer
// kept locally. It returns the names removed (or, for a dry run, the
// names that would be).
func (e *Engine) Prune(ctx context.Context, opts PruneOptions) ([]string, error) {
	lock, err := e.lock()
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	current, _, err := e.config.Local.Current()
	if err != nil {
		return nil, err
	}
	catalog, err := e.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	remoteKnown := e.config.Remote != nil && !catalog.IsDegraded(e.config.RemoteName)

	builds := catalog.LocalBuilds()
	kept := make(map[artifact.Version]bool)
	if !current.IsZero() {
		kept[current] = true
	}
	for i := len(builds) - 1; i >= 0 && len(builds)-i <= opts.Keep; i-- {
		kept[builds[i]] = true
	}

	var candidates []index.Object
	for _, object := range catalog.Objects() {
		if _, ok := object.LocalCopy(); !ok {
			continue
		}
		switch object.Name.Kind {
		case artifact.KindBuild:
			if kept[object.Name.Version] {
				continue
			}
		case artifact.KindPatch:
			if kept[object.Name.From] {
				continue
			}
		}
		candidates = append(candidates, object)
	}

	var removed []string
	for _, object := range candidates {
		name := object.Name.String()
		if !opts.Force && !(remoteKnown && onSource(object, e.config.RemoteName)) {
			e.logger.Info("keeping object with no remote copy", "object", name)
			continue
		}
		if !opts.DryRun {
			if err := e.config.Local.Delete(ctx, name); err != nil {
				return removed, err
			}
			e.logger.Info("object pruned", "event", "object_pruned", "object", name)
		}
		removed = append(removed, name)
	}
	return removed, nil
}
