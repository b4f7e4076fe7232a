// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package index merges store listings into a catalog of known objects.
//
// The catalog answers one question for the graph builder and the
// engine: for each build and patch, where can a copy be read from, and
// how large is it? Stores are listed concurrently. A store whose
// listing fails is treated as empty for this run and recorded as
// degraded; resolution proceeds with whatever the other stores offer.
package index

import (
	"cmp"
	"context"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/artefacta/lib/artifact"
	"github.com/bureau-foundation/artefacta/lib/store"
)

// Source is a store contributing to the catalog.
type Source struct {
	// Name identifies the store in logs, metrics, and locations.
	Name string

	Store store.Store

	// Local marks the installer's own store. Objects there cost
	// nothing to read.
	Local bool
}

// Location is one readable copy of an object.
type Location struct {
	Source string
	Local  bool
	Store  store.Store

	// Key is the object's name within Store.
	Key string

	// Size is the stored (compressed, enveloped) object size.
	Size int64
}

// Object is a build or patch together with every known copy of it,
// ordered by preference: local copies first, then smaller copies,
// then source order.
type Object struct {
	Name      artifact.Name
	Locations []Location
}

// LocalCopy returns the object's local location, if any.
func (o Object) LocalCopy() (Location, bool) {
	if len(o.Locations) > 0 && o.Locations[0].Local {
		return o.Locations[0], true
	}
	return Location{}, false
}

// RemoteCopies returns the object's non-local locations in preference
// order.
func (o Object) RemoteCopies() []Location {
	var remote []Location
	for _, location := range o.Locations {
		if !location.Local {
			remote = append(remote, location)
		}
	}
	return remote
}

// Degradation records a store whose listing failed.
type Degradation struct {
	Source string
	Err    error
}

// Catalog is an immutable merged view of store listings.
type Catalog struct {
	objects  map[string]*Object
	order    map[string]int
	Degraded []Degradation
}

// Build lists every source concurrently and merges the results. It
// returns an error only when ctx ends; individual listing failures
// degrade the failing source.
func Build(ctx context.Context, sources []Source, logger *slog.Logger) (*Catalog, error) {
	listings := make([][]store.Entry, len(sources))
	failures := make([]error, len(sources))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, source := range sources {
		group.Go(func() error {
			entries, err := source.Store.List(groupCtx)
			if err != nil {
				failures[i] = err
				return nil
			}
			listings[i] = entries
			return nil
		})
	}
	group.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	catalog := &Catalog{
		objects: make(map[string]*Object),
		order:   make(map[string]int, len(sources)),
	}
	for i, source := range sources {
		catalog.order[source.Name] = i
		if failures[i] != nil {
			logger.Warn("store listing failed, continuing without it",
				"event", "store_degraded",
				"store", source.Name,
				"error", failures[i],
			)
			catalog.Degraded = append(catalog.Degraded, Degradation{Source: source.Name, Err: failures[i]})
			continue
		}
		for _, entry := range listings[i] {
			name, ok := artifact.ParseName(entry.Name)
			if !ok {
				continue
			}
			object := catalog.objects[entry.Name]
			if object == nil {
				object = &Object{Name: name}
				catalog.objects[entry.Name] = object
			}
			object.Locations = append(object.Locations, Location{
				Source: source.Name,
				Local:  source.Local,
				Store:  source.Store,
				Key:    entry.Name,
				Size:   entry.Size,
			})
		}
	}

	for key, object := range catalog.objects {
		slices.SortStableFunc(object.Locations, func(a, b Location) int {
			if a.Local != b.Local {
				if a.Local {
					return -1
				}
				return 1
			}
			if c := cmp.Compare(a.Size, b.Size); c != 0 {
				return c
			}
			return cmp.Compare(catalog.order[a.Source], catalog.order[b.Source])
		})
		if local, ok := object.LocalCopy(); ok {
			for _, remote := range object.RemoteCopies() {
				if remote.Size != local.Size {
					logger.Warn("using locally cached object, but the remote copy differs in size",
						"event", "size_mismatch",
						"object", key,
						"local_size", local.Size,
						"store", remote.Source,
						"remote_size", remote.Size,
					)
				}
			}
		}
	}
	return catalog, nil
}

// IsDegraded reports whether the named source failed to list.
func (c *Catalog) IsDegraded(source string) bool {
	for _, degradation := range c.Degraded {
		if degradation.Source == source {
			return true
		}
	}
	return false
}

// Lookup returns the object stored under name.
func (c *Catalog) Lookup(name string) (Object, bool) {
	object, ok := c.objects[name]
	if !ok {
		return Object{}, false
	}
	return *object, true
}

// Build returns the full build of version.
func (c *Catalog) Build(version artifact.Version) (Object, bool) {
	return c.Lookup(artifact.BuildName(version))
}

// Patch returns the patch from one version to another.
func (c *Catalog) Patch(from, to artifact.Version) (Object, bool) {
	return c.Lookup(artifact.PatchName(from, to))
}

// Objects returns every known object: builds in natural version order,
// then patches ordered by source version and target version.
func (c *Catalog) Objects() []Object {
	objects := make([]Object, 0, len(c.objects))
	for _, object := range c.objects {
		objects = append(objects, *object)
	}
	slices.SortFunc(objects, compareObjects)
	return objects
}

func compareObjects(a, b Object) int {
	if c := cmp.Compare(a.Name.Kind, b.Name.Kind); c != 0 {
		return c
	}
	if a.Name.Kind == artifact.KindBuild {
		return artifact.Compare(a.Name.Version, b.Name.Version)
	}
	if c := artifact.Compare(a.Name.From, b.Name.From); c != 0 {
		return c
	}
	return artifact.Compare(a.Name.To, b.Name.To)
}

// Versions returns every version named by any object, as a build or
// as a patch endpoint, in natural order.
func (c *Catalog) Versions() []artifact.Version {
	seen := make(map[artifact.Version]struct{})
	for _, object := range c.objects {
		switch object.Name.Kind {
		case artifact.KindBuild:
			seen[object.Name.Version] = struct{}{}
		case artifact.KindPatch:
			seen[object.Name.From] = struct{}{}
			seen[object.Name.To] = struct{}{}
		}
	}
	versions := make([]artifact.Version, 0, len(seen))
	for version := range seen {
		versions = append(versions, version)
	}
	slices.SortFunc(versions, artifact.Compare)
	return versions
}

// LocalBuilds returns the versions whose full build is in a local
// source, in natural order.
func (c *Catalog) LocalBuilds() []artifact.Version {
	var versions []artifact.Version
	for _, object := range c.objects {
		if object.Name.Kind != artifact.KindBuild {
			continue
		}
		if _, ok := object.LocalCopy(); ok {
			versions = append(versions, object.Name.Version)
		}
	}
	slices.SortFunc(versions, artifact.Compare)
	return versions
}

// MissingFrom returns the objects that have a local copy but no copy
// in the named source, in Objects order.
func (c *Catalog) MissingFrom(source string) []Object {
	var missing []Object
	for _, object := range c.Objects() {
		if _, ok := object.LocalCopy(); !ok {
			continue
		}
		if !slices.ContainsFunc(object.Locations, func(location Location) bool {
			return location.Source == source
		}) {
			missing = append(missing, object)
		}
	}
	return missing
}
