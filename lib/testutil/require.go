// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"time"
)

// TB is the part of testing.TB these helpers need.
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive returns the next value sent on ch, failing the test if
// none arrives within timeout or ch is closed first. what describes the
// awaited event in the failure message.
func RequireReceive[T any](t TB, ch <-chan T, timeout time.Duration, what ...any) T {
	t.Helper()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case value, ok := <-ch:
		if !ok {
			t.Fatalf("%s: channel closed with nothing sent", describe(what))
		}
		return value
	case <-timer.C:
		t.Fatalf("%s: nothing received after %v", describe(what), timeout)
	}
	var zero T
	return zero
}

// RequireClosed fails the test unless ch is closed, or receives, within
// timeout.
func RequireClosed(t TB, ch <-chan struct{}, timeout time.Duration, what ...any) {
	t.Helper()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
	case <-timer.C:
		t.Fatalf("%s: still open after %v", describe(what), timeout)
	}
}

// describe renders what as a message, treating a leading string with
// further arguments as a format.
func describe(what []any) string {
	switch {
	case len(what) == 0:
		return "waiting on channel"
	case len(what) > 1:
		if format, ok := what[0].(string); ok {
			return fmt.Sprintf(format, what[1:]...)
		}
	}
	return fmt.Sprint(what...)
}
