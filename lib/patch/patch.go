// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package patch computes and applies binary patches between builds.
package patch

import (
	"fmt"

	"github.com/gabstv/go-bsdiff/pkg/bsdiff"
	"github.com/gabstv/go-bsdiff/pkg/bspatch"

	"github.com/bureau-foundation/artefacta/lib/artifact"
)

// Codec turns a pair of builds into a patch and back. Implementations
// must be deterministic and safe for concurrent use.
type Codec interface {
	// Diff returns a patch that transforms old into new.
	Diff(old, new []byte) ([]byte, error)

	// Apply returns the result of applying patch to old. A patch
	// that does not fit old fails with artifact.ErrPatch.
	Apply(old, patch []byte) ([]byte, error)
}

// BSDiff is the bsdiff 4.x codec.
type BSDiff struct{}

func (BSDiff) Diff(old, new []byte) ([]byte, error) {
	patch, err := bsdiff.Bytes(old, new)
	if err != nil {
		return nil, fmt.Errorf("bsdiff: %w", err)
	}
	return patch, nil
}

func (BSDiff) Apply(old, patch []byte) (result []byte, err error) {
	// bspatch indexes into old using offsets read from the patch; a
	// patch built against different input can drive it out of range.
	defer func() {
		if recovered := recover(); recovered != nil {
			result = nil
			err = artifact.Errorf(artifact.ErrPatch, "apply", "", "bspatch: %v", recovered)
		}
	}()
	result, err = bspatch.Bytes(old, patch)
	if err != nil {
		return nil, artifact.NewError(artifact.ErrPatch, "apply", "", err)
	}
	return result, nil
}
