// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for artefacta.
//
// Configuration is loaded from a single file named by either the
// ARTEFACTA_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There is no ~/.config discovery and no
// automatic file search. Without a file, [Default] values apply.
//
// The file supports environment-specific sections (development,
// staging, production) that override base values when
// [Config].Environment matches.
//
// After the file, a small fixed set of environment variables override
// the store locations and compression level; see [Config.ApplyEnv].
// These match what CI jobs and installer units set. Finally,
// ${HOME} and ${VAR:-default} patterns in path fields are expanded.
//
// Key exports:
//
//   - [Config] -- master struct with Local, Remote, S3, Compression,
//     Install, Push, Metrics, Log
//   - [Default] -- returns a Config with defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
package config
