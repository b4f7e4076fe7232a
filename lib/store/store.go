// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Entry is one object in a listing.
type Entry struct {
	Name string
	Size int64
}

// Store is a flat namespace of named objects.
type Store interface {
	// List returns every object directly under the store's root,
	// sorted by name. Listings may include names that are not
	// artefacta objects.
	List(ctx context.Context) ([]Entry, error)

	// Get opens the named object for reading.
	Get(ctx context.Context, name string) (io.ReadCloser, error)

	// Put stores r under name, replacing any existing object. Size is
	// the length of r if known, or -1. Readers never observe a
	// partially written object.
	Put(ctx context.Context, name string, r io.Reader, size int64) error

	// Delete removes the named object. Deleting an absent object is
	// not an error.
	Delete(ctx context.Context, name string) error

	// Exists reports whether the named object is present.
	Exists(ctx context.Context, name string) (bool, error)
}

// Options configures stores opened by location string.
type Options struct {
	S3 S3Options
}

// Open returns the store a location string refers to: "s3://..." for
// an S3 bucket, "mem://" for a fresh in-memory store, and anything else
// (optionally prefixed "file://") for a local directory, which is
// created if missing.
func Open(ctx context.Context, location string, options Options) (Store, error) {
	switch {
	case location == "":
		return nil, fmt.Errorf("empty store location")
	case strings.HasPrefix(location, "s3://"):
		return NewS3FromURL(ctx, location, options.S3)
	case strings.HasPrefix(location, "mem://"):
		return NewMemory(), nil
	default:
		return NewLocal(strings.TrimPrefix(location, "file://"))
	}
}

// readerFunc adapts a function to io.Reader.
type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }

// contextReader stops reading once ctx is done, so long copies between
// stores honor cancellation between chunks.
func contextReader(ctx context.Context, r io.Reader) io.Reader {
	return readerFunc(func(p []byte) (int, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return r.Read(p)
	})
}
