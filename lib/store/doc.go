// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package store implements the object stores artefacta reads from and
// writes to.
//
// A [Store] is a flat namespace of named byte streams. Stores know
// nothing about builds, patches, or envelopes; package artifact gives
// the bytes meaning. Three implementations exist:
//
//   - [Local]: a directory on disk. Besides plain object storage it
//     owns the "current" pointer (a relative symlink to the installed
//     build), a staging area for in-flight downloads, and an advisory
//     lock that serializes installers sharing the directory.
//   - [S3]: a bucket prefix on any S3-compatible endpoint, via
//     minio-go.
//   - [Memory]: an in-process map, for tests and dry runs.
//
// Every method takes a context. Implementations classify failures with
// the kinds from package artifact: artifact.ErrNotFound for missing
// objects, artifact.ErrIO for local filesystem failures, and
// artifact.ErrNetwork for remote failures.
package store
