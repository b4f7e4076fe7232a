// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bureau-foundation/artefacta/lib/artifact"
)

const (
	// CurrentName is the symlink naming the installed build.
	CurrentName = "current"

	stagingPrefix = ".staging-"
	pointerPrefix = ".current-"
	lockName      = ".lock"
)

// Local is a Store rooted at a directory. Objects are plain files
// directly under the root; names beginning with '.' are reserved for
// the store's own bookkeeping and never listed.
//
// Local is safe for concurrent use within one process. Separate
// processes sharing a root coordinate through [Local.Lock].
type Local struct {
	root string
}

// NewLocal returns a Local rooted at root, creating the directory if
// it does not exist.
func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, artifact.NewError(artifact.ErrIO, "create local store", root, err)
	}
	return &Local{root: root}, nil
}

// OpenLocal returns a Local rooted at an existing directory.
func OpenLocal(root string) (*Local, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, artifact.NewError(artifact.ErrNotFound, "open local store", root, err)
		}
		return nil, artifact.NewError(artifact.ErrIO, "open local store", root, err)
	}
	if !info.IsDir() {
		return nil, artifact.Errorf(artifact.ErrIO, "open local store", root, "not a directory")
	}
	return &Local{root: root}, nil
}

// Root returns the store directory.
func (l *Local) Root() string { return l.root }

func (l *Local) String() string { return l.root }

func (l *Local) path(op, name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\") {
		return "", artifact.Errorf(artifact.ErrIO, op, name, "invalid object name")
	}
	return filepath.Join(l.root, name), nil
}

// List returns the regular files under the root. Directories, symlinks
// (including the current pointer), and dot-files are skipped. A
// missing root lists as empty.
func (l *Local) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dirEntries, err := os.ReadDir(l.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, artifact.NewError(artifact.ErrIO, "list", l.root, err)
	}
	entries := make([]Entry, 0, len(dirEntries))
	for _, dirEntry := range dirEntries {
		if !dirEntry.Type().IsRegular() || strings.HasPrefix(dirEntry.Name(), ".") {
			continue
		}
		info, err := dirEntry.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, artifact.NewError(artifact.ErrIO, "list", dirEntry.Name(), err)
		}
		entries = append(entries, Entry{Name: dirEntry.Name(), Size: info.Size()})
	}
	return entries, nil
}

func (l *Local) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := l.path("get", name)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, artifact.NewError(artifact.ErrNotFound, "get", name, nil)
		}
		return nil, artifact.NewError(artifact.ErrIO, "get", name, err)
	}
	return file, nil
}

// Put stages r and renames it into place.
func (l *Local) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	if _, err := l.path("put", name); err != nil {
		return err
	}
	staged, err := l.Stage(ctx, r)
	if err != nil {
		return err
	}
	if size >= 0 && staged.Size != size {
		staged.Discard()
		return artifact.Errorf(artifact.ErrIO, "put", name, "read %d bytes, expected %d", staged.Size, size)
	}
	return staged.Commit(name)
}

func (l *Local) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := l.path("delete", name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return artifact.NewError(artifact.ErrIO, "delete", name, err)
	}
	return nil
}

func (l *Local) Exists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := l.path("stat", name)
	if err != nil {
		return false, err
	}
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, artifact.NewError(artifact.ErrIO, "stat", name, err)
	}
	return info.Mode().IsRegular(), nil
}

// Current returns the version the current pointer names. It reports
// false when no pointer exists.
func (l *Local) Current() (artifact.Version, bool, error) {
	target, err := os.Readlink(filepath.Join(l.root, CurrentName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return artifact.Version{}, false, nil
		}
		return artifact.Version{}, false, artifact.NewError(artifact.ErrIO, "read current", CurrentName, err)
	}
	name, ok := artifact.ParseName(target)
	if !ok || name.Kind != artifact.KindBuild {
		return artifact.Version{}, false, artifact.Errorf(artifact.ErrIO, "read current", CurrentName,
			"pointer targets %q, which is not a build in this store", target)
	}
	return name.Version, true, nil
}

// SetCurrent atomically repoints current at the build of version,
// which must already be present. Readers see either the old target or
// the new one, never a missing pointer.
func (l *Local) SetCurrent(version artifact.Version) error {
	target := artifact.BuildName(version)
	if _, err := os.Stat(filepath.Join(l.root, target)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return artifact.Errorf(artifact.ErrNotFound, "set current", target, "build is not present locally")
		}
		return artifact.NewError(artifact.ErrIO, "set current", target, err)
	}

	temporary := filepath.Join(l.root, fmt.Sprintf("%s%d", pointerPrefix, time.Now().UnixNano()))
	if err := os.Symlink(target, temporary); err != nil {
		return artifact.NewError(artifact.ErrIO, "set current", target, err)
	}
	if err := os.Rename(temporary, filepath.Join(l.root, CurrentName)); err != nil {
		os.Remove(temporary)
		return artifact.NewError(artifact.ErrIO, "set current", target, err)
	}
	if err := syncDir(l.root); err != nil {
		return artifact.NewError(artifact.ErrIO, "set current", target, err)
	}
	return nil
}

// CleanStaging removes staging files and pointer temporaries older
// than age, left behind by processes that died mid-install. It returns
// the number of files removed. Callers hold the store lock, so no live
// staging file of another installer can be removed.
func (l *Local) CleanStaging(age time.Duration) (int, error) {
	dirEntries, err := os.ReadDir(l.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, artifact.NewError(artifact.ErrIO, "clean staging", l.root, err)
	}
	cutoff := time.Now().Add(-age)
	removed := 0
	for _, dirEntry := range dirEntries {
		name := dirEntry.Name()
		if !strings.HasPrefix(name, stagingPrefix) && !strings.HasPrefix(name, pointerPrefix) {
			continue
		}
		info, err := dirEntry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(l.root, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, artifact.NewError(artifact.ErrIO, "clean staging", name, err)
		}
		removed++
	}
	return removed, nil
}

func syncDir(dir string) error {
	handle, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer handle.Close()
	return handle.Sync()
}
