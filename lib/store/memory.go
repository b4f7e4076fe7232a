// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"context"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/bureau-foundation/artefacta/lib/artifact"
)

// Memory is a Store backed by a map. It is safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]Entry, 0, len(m.objects))
	for name, data := range m.objects {
		entries = append(entries, Entry{Name: name, Size: int64(len(data))})
	}
	slices.SortFunc(entries, func(a, b Entry) int { return strings.Compare(a.Name, b.Name) })
	return entries, nil
}

func (m *Memory) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	data, ok := m.objects[name]
	m.mu.RUnlock()
	if !ok {
		return nil, artifact.NewError(artifact.ErrNotFound, "get", name, nil)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *Memory) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	data, err := io.ReadAll(contextReader(ctx, r))
	if err != nil {
		return err
	}
	if size >= 0 && int64(len(data)) != size {
		return artifact.Errorf(artifact.ErrIO, "put", name, "read %d bytes, expected %d", len(data), size)
	}
	m.mu.Lock()
	m.objects[name] = data
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.objects, name)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Exists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	_, ok := m.objects[name]
	m.mu.RUnlock()
	return ok, nil
}

// Bytes returns the stored content of name, or nil. Tests use it to
// inspect and corrupt objects.
func (m *Memory) Bytes(name string) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.objects[name]
}

// SetBytes stores data under name directly.
func (m *Memory) SetBytes(name string, data []byte) {
	m.mu.Lock()
	m.objects[name] = data
	m.mu.Unlock()
}
