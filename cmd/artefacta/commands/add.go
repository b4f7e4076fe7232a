// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/artefacta/cmd/artefacta/cli"
	"github.com/bureau-foundation/artefacta/lib/artifact"
	"github.com/bureau-foundation/artefacta/lib/engine"
	"github.com/bureau-foundation/artefacta/lib/packaging"
)

// PublishOptions are the flags shared by commands that publish a new
// build.
type PublishOptions struct {
	Upload        bool
	CalcPatchFrom []string
}

// AddFlags registers --upload and --calc-patch-from.
func (o *PublishOptions) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.BoolVar(&o.Upload, "upload", false, "upload the new objects to the remote store")
	flagSet.StringArrayVar(&o.CalcPatchFrom, "calc-patch-from", nil, "also create a patch from this earlier version (repeatable)")
}

// versionFromPath derives a version from a build file name: the base
// name without its extension, and without ".tar" for "*.tar.*" names.
func versionFromPath(path string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return strings.TrimSuffix(stem, ".tar")
}

// publish adds the build at path as version, creates the requested
// patches to it, and uploads everything new when asked.
func publish(ctx context.Context, session *session, version artifact.Version, path string, options PublishOptions) error {
	added, err := session.engine.AddBuild(ctx, version, path)
	if err != nil {
		return err
	}
	if added.Existed {
		fmt.Fprintf(stdout, "%s already present with identical content\n", artifact.BuildName(version))
	} else {
		fmt.Fprintf(stdout, "added %s (%s, %s)\n",
			artifact.BuildName(version), formatSize(added.Header.ContentSize), added.Header.ContentHash.Short())
	}
	names := []artifact.Name{{Kind: artifact.KindBuild, Version: version}}

	for _, fromText := range options.CalcPatchFrom {
		from, err := parseVersion(fromText)
		if err != nil {
			return err
		}
		result, err := session.engine.CreatePatch(ctx, from, version)
		if err != nil {
			return err
		}
		printPatchResult(result)
		if !result.Existed {
			names = append(names, artifact.Name{Kind: artifact.KindPatch, From: from, To: version})
		}
	}

	if options.Upload {
		return upload(ctx, session, names)
	}
	return nil
}

func upload(ctx context.Context, session *session, names []artifact.Name) error {
	uploaded, err := session.engine.Upload(ctx, names...)
	for _, name := range uploaded {
		fmt.Fprintf(stdout, "uploaded %s\n", name)
	}
	return err
}

func printPatchResult(result *engine.PatchResult) {
	if result.Existed {
		fmt.Fprintf(stdout, "%s already exists\n", result.Name)
		return
	}
	fmt.Fprintf(stdout, "created %s (%s, %.2f%% of target)\n",
		result.Name, formatSize(result.Header.ContentSize), result.Ratio()*100)
}

// --- add ---

type addParams struct {
	StoreOptions
	PublishOptions
	Version string `json:"version" flag:"version" desc:"version to publish as (default: the file name without extension)"`
}

func addCommand() *cli.Command {
	var params addParams

	return &cli.Command{
		Name:    "add",
		Summary: "Add a build file to the local store",
		Usage:   "artefacta add <path> [flags]",
		Description: `Add the file at <path> as a full build to the local store. The version
defaults to the file name without its extension ("app-1.2.tar.gz"
becomes "app-1.2").

Adding identical content twice is harmless. Adding different content
under a version that already exists locally or on the remote fails.`,
		Examples: []cli.Example{
			{
				Description: "Add a build and upload it",
				Command:     "artefacta add dist/app-1.4.0.tar --upload",
			},
			{
				Description: "Add a build with a patch from the previous release",
				Command:     "artefacta add build.bin --version 1.4.0 --calc-patch-from 1.3.0",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("add", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("path argument required\n\nUsage: artefacta add <path> [flags]")
			}
			path := args[0]
			versionText := params.Version
			if versionText == "" {
				versionText = versionFromPath(path)
			}
			version, err := parseVersion(versionText)
			if err != nil {
				return err
			}

			session, err := params.open(ctx, "add")
			if err != nil {
				return err
			}
			defer session.close()
			return publish(ctx, session, version, path, params.PublishOptions)
		},
	}
}

// --- add-package ---

type addPackageParams struct {
	StoreOptions
	PublishOptions
}

func addPackageCommand() *cli.Command {
	var params addPackageParams

	return &cli.Command{
		Name:    "add-package",
		Summary: "Package a directory as a build and add it",
		Usage:   "artefacta add-package <version> <dir> [flags]",
		Description: `Package the regular files under <dir> into a tar archive and add it as
the build of <version>.

The archive is deterministic: entries are sorted, and ownership and
timestamps are fixed, so packaging the same tree twice yields the same
build and patches between releases stay small.`,
		Examples: []cli.Example{
			{
				Description: "Package and publish a release directory",
				Command:     "artefacta add-package 1.4.0 ./out --calc-patch-from 1.3.0 --upload",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("add-package", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("version and directory arguments required\n\nUsage: artefacta add-package <version> <dir> [flags]")
			}
			version, err := parseVersion(args[0])
			if err != nil {
				return err
			}

			session, err := params.open(ctx, "add-package")
			if err != nil {
				return err
			}
			defer session.close()

			path, count, err := packaging.PackageFile(ctx, args[1], "")
			if err != nil {
				return fmt.Errorf("packaging %s: %w", args[1], err)
			}
			defer os.Remove(path)
			session.logger.Info("packaged directory", "dir", args[1], "files", count)

			return publish(ctx, session, version, path, params.PublishOptions)
		},
	}
}

// --- create-patch ---

type createPatchParams struct {
	StoreOptions
	Upload bool `json:"upload" flag:"upload" desc:"upload the patch to the remote store"`
}

func createPatchCommand() *cli.Command {
	var params createPatchParams

	return &cli.Command{
		Name:    "create-patch",
		Summary: "Create the patch between two versions",
		Usage:   "artefacta create-patch <from> <to> [flags]",
		Description: `Compute the patch that turns build <from> into build <to> and add it to
the local store. Either build is fetched or reconstructed first if it
is not present locally; current is not changed.

The new patch is applied once before it is stored, to check that it
reproduces <to> exactly.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("create-patch", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("from and to versions required\n\nUsage: artefacta create-patch <from> <to> [flags]")
			}
			from, err := parseVersion(args[0])
			if err != nil {
				return err
			}
			to, err := parseVersion(args[1])
			if err != nil {
				return err
			}

			session, err := params.open(ctx, "create-patch")
			if err != nil {
				return err
			}
			defer session.close()

			result, err := session.engine.CreatePatch(ctx, from, to)
			if err != nil {
				return err
			}
			printPatchResult(result)
			if params.Upload && !result.Existed {
				return upload(ctx, session, []artifact.Name{{Kind: artifact.KindPatch, From: from, To: to}})
			}
			return nil
		},
	}
}
