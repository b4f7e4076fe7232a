// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/artefacta/lib/artifact"
)

// Staged is a fully written, synced temporary file inside a Local
// store's root, not yet visible under any object name. Exactly one of
// Commit or Discard should follow; Discard after Commit is a no-op, so
// callers may defer Discard unconditionally.
type Staged struct {
	// Path is the temporary file's path.
	Path string

	// Size is the number of bytes staged.
	Size int64

	local *Local
	done  bool
}

// Stage copies r into a new staging file. The copy stops when ctx is
// done. Errors reading r are returned as r produced them, so a failed
// download keeps its network classification; errors writing the file
// are ErrIO.
func (l *Local) Stage(ctx context.Context, r io.Reader) (*Staged, error) {
	file, err := os.CreateTemp(l.root, stagingPrefix+"*")
	if err != nil {
		return nil, artifact.NewError(artifact.ErrIO, "stage", l.root, err)
	}
	path := file.Name()

	success := false
	defer func() {
		if !success {
			file.Close()
			os.Remove(path)
		}
	}()

	destination := &errorRecordingWriter{w: file}
	written, err := io.Copy(destination, contextReader(ctx, r))
	if err != nil {
		if destination.err != nil {
			return nil, artifact.NewError(artifact.ErrIO, "stage", filepath.Base(path), destination.err)
		}
		return nil, err
	}
	if err := file.Sync(); err != nil {
		return nil, artifact.NewError(artifact.ErrIO, "stage", filepath.Base(path), err)
	}
	if err := file.Close(); err != nil {
		return nil, artifact.NewError(artifact.ErrIO, "stage", filepath.Base(path), err)
	}

	success = true
	return &Staged{Path: path, Size: written, local: l}, nil
}

// Open opens the staged file for reading.
func (s *Staged) Open() (*os.File, error) {
	file, err := os.Open(s.Path)
	if err != nil {
		return nil, artifact.NewError(artifact.ErrIO, "open staged", filepath.Base(s.Path), err)
	}
	return file, nil
}

// Commit renames the staged file to name, replacing any existing
// object.
func (s *Staged) Commit(name string) error {
	if s.done {
		return artifact.Errorf(artifact.ErrIO, "commit", name, "staged file already committed or discarded")
	}
	path, err := s.local.path("commit", name)
	if err != nil {
		return err
	}
	if err := os.Rename(s.Path, path); err != nil {
		return artifact.NewError(artifact.ErrIO, "commit", name, err)
	}
	s.done = true
	if err := syncDir(s.local.root); err != nil {
		return artifact.NewError(artifact.ErrIO, "commit", name, err)
	}
	return nil
}

// Discard removes the staged file.
func (s *Staged) Discard() error {
	if s.done {
		return nil
	}
	s.done = true
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return artifact.NewError(artifact.ErrIO, "discard", filepath.Base(s.Path), err)
	}
	return nil
}

type errorRecordingWriter struct {
	w   io.Writer
	err error
}

func (e *errorRecordingWriter) Write(p []byte) (int, error) {
	n, err := e.w.Write(p)
	if err != nil {
		e.err = err
	}
	return n, err
}
