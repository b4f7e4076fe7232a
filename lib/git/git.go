// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package git runs the git CLI against a repository to discover
// release tags. Auto-patching uses the tag list to choose which
// earlier releases deserve a patch to a new one.
package git

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Repository is a git working tree or bare repository. Every command
// targets it with "git -C <dir>".
type Repository struct {
	dir string
}

// NewRepository returns a Repository targeting dir.
func NewRepository(dir string) *Repository {
	return &Repository{dir: dir}
}

// Dir returns the repository directory.
func (r *Repository) Dir() string {
	return r.dir
}

// Run executes git with args in the repository and returns its
// standard output. A failure carries git's trimmed stderr.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	command := exec.CommandContext(ctx, "git", append([]string{"-C", r.dir}, args...)...)
	output, err := command.Output()
	if err != nil {
		var detail string
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			detail = strings.TrimSpace(string(exitErr.Stderr))
		}
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)", strings.Join(args, " "), r.dir, err, detail)
	}
	return string(output), nil
}

// Tags returns every tag name in the repository, in git's order.
func (r *Repository) Tags(ctx context.Context) ([]string, error) {
	output, err := r.Run(ctx, "tag", "--list")
	if err != nil {
		return nil, err
	}
	var tags []string
	for line := range strings.Lines(output) {
		if tag := strings.TrimSpace(line); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags, nil
}

// CurrentTag returns the tag pointing exactly at HEAD.
func (r *Repository) CurrentTag(ctx context.Context) (string, error) {
	output, err := r.Run(ctx, "describe", "--tags", "--exact-match", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}
