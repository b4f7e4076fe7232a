// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"errors"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/artefacta/lib/artifact"
)

// ErrLocked is returned by [Local.Lock] when another process holds the
// store lock.
var ErrLocked = errors.New("local store is locked by another process")

// Lock is an exclusive advisory lock on a Local store.
type Lock struct {
	file *os.File
}

// Lock takes the store's exclusive lock without blocking. Installs,
// pushes, and prunes hold it for their whole duration, so two
// installers never interleave writes to the current pointer.
func (l *Local) Lock() (*Lock, error) {
	path := filepath.Join(l.root, lockName)
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, artifact.NewError(artifact.ErrIO, "lock", lockName, err)
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrLocked
		}
		return nil, artifact.NewError(artifact.ErrIO, "lock", lockName, err)
	}
	return &Lock{file: file}, nil
}

// Release drops the lock. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	err := l.file.Close()
	l.file = nil
	return err
}
