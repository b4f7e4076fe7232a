// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds helpers shared by artefacta tests.
//
// [RequireReceive] and [RequireClosed] bound every channel wait in a
// test with a timeout. [BuildContent] generates deterministic contents
// for numbered releases; successive releases differ in a few small
// regions so patches between them stay small, and [WriteFile] puts such
// content where AddBuild can read it.
//
// Helpers fail the test through t.Fatalf rather than returning errors.
// The package imports no other artefacta package.
package testutil
