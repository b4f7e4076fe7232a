// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the artefacta CLI command tree.
package commands

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/artefacta/cmd/artefacta/cli"
	"github.com/bureau-foundation/artefacta/lib/version"
)

// Root builds and returns the complete artefacta command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "artefacta",
		Description: `artefacta: versioned build distribution with binary patches.

Builds and the patches between them live in a local store and a shared
remote store (S3 or a directory). Installing a version picks the
cheapest mix of downloads and patch applications, verifies every
object, and switches current atomically.

Configuration comes from the file named by --config or $ARTEFACTA_CONFIG,
then $ARTEFACTA_LOCAL_STORE, $ARTEFACTA_REMOTE_STORE and
$ARTEFACTA_COMPRESSION_LEVEL, then flags.`,
		Subcommands: []*cli.Command{
			installCommand(),
			planCommand(),
			addCommand(),
			addPackageCommand(),
			createPatchCommand(),
			autoPatchCommand(),
			pushCommand(),
			listCommand(),
			currentCommand(),
			pruneCommand(),
			exportCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, args []string) error {
					fmt.Fprintf(stdout, "artefacta %s\n", version.Full())
					return nil
				},
			},
		},
	}
}
