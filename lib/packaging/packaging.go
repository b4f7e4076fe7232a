// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package packaging turns a build directory into a tar archive whose
// bytes depend only on the files' paths, contents, and executable
// bits. Packaging the same tree twice, on any machine, yields the same
// archive and therefore the same build hash, which keeps patches
// between successive packaged builds small.
package packaging

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// ModTime is the modification time recorded for every entry.
var ModTime = time.Unix(1153704088, 0).UTC()

// Package writes a tar archive of the regular files under dir to w,
// in lexical path order. Directories, symlinks, and other special
// files are not recorded. Owner, group, and times are fixed; the mode
// is 0755 for files with any executable bit and 0644 otherwise.
func Package(ctx context.Context, dir string, w io.Writer) (int, error) {
	archive := tar.NewWriter(w)
	count := 0
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		relative, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if err := addFile(archive, path, filepath.ToSlash(relative)); err != nil {
			return fmt.Errorf("adding %s: %w", relative, err)
		}
		count++
		return nil
	})
	if err != nil {
		return count, err
	}
	if err := archive.Close(); err != nil {
		return count, fmt.Errorf("finishing archive: %w", err)
	}
	return count, nil
}

func addFile(archive *tar.Writer, path, name string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return err
	}

	var mode int64 = 0o644
	if info.Mode()&0o111 != 0 {
		mode = 0o755
	}
	header := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Size:     info.Size(),
		Mode:     mode,
		ModTime:  ModTime,
		Format:   tar.FormatGNU,
	}
	if err := archive.WriteHeader(header); err != nil {
		return err
	}
	if _, err := io.Copy(archive, file); err != nil {
		return err
	}
	return nil
}

// PackageFile packages dir into a new temporary file in tempDir and
// returns its path. The caller removes it.
func PackageFile(ctx context.Context, dir, tempDir string) (string, int, error) {
	file, err := os.CreateTemp(tempDir, "artefacta-package-*.tar")
	if err != nil {
		return "", 0, err
	}
	count, err := Package(ctx, dir, file)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(file.Name())
		return "", count, err
	}
	return file.Name(), count, nil
}
