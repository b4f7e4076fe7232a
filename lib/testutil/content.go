// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"bytes"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
)

// BuildSize is the length of every BuildContent result.
const BuildSize = 64 << 10

// BuildContent returns the content of the n-th release: fixed random
// bytes with one 32-byte region overwritten per release up to n.
//
//	base := testutil.BuildContent(0)
//	next := testutil.BuildContent(1) // differs from base in 32 bytes
func BuildContent(n int) []byte {
	rng := rand.New(rand.NewPCG(7, 11))
	data := make([]byte, BuildSize)
	for i := range data {
		data[i] = byte(rng.Uint32())
	}
	for i := 1; i <= n; i++ {
		offset := (i * 4099) % (len(data) - 32)
		copy(data[offset:], bytes.Repeat([]byte{byte(i)}, 32))
	}
	return data
}

// WriteFile writes data to a new file in a test temporary directory
// and returns its path.
func WriteFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}
