// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind the artefacta
// binary: a tree of [Command] values dispatched by the first
// positional argument, pflag-based flags bound from tagged params
// structs ([FlagsFromParams]), typo suggestions for unknown commands
// and flags, JSON output support ([JSONOutput]), and the command
// logger ([NewCommandLogger]).
package cli
