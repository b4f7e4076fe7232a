// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/artefacta/cmd/artefacta/cli"
	"github.com/bureau-foundation/artefacta/lib/engine"
	"github.com/bureau-foundation/artefacta/lib/graph"
)

// --- push ---

type pushParams struct {
	StoreOptions
	cli.JSONOutput
}

func pushCommand() *cli.Command {
	var params pushParams

	return &cli.Command{
		Name:    "push",
		Aliases: []string{"sync"},
		Summary: "Upload local objects the remote store is missing",
		Usage:   "artefacta push [flags]",
		Description: `Upload every build and patch in the local store that the remote store
does not have. Each object is verified before upload. Nothing already
on the remote is overwritten.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("push", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("unexpected argument %q\n\nUsage: artefacta push [flags]", args[0])
			}
			session, err := params.open(ctx, "push")
			if err != nil {
				return err
			}
			defer session.close()

			uploaded, err := session.engine.Push(ctx)
			if err != nil {
				return err
			}
			params.Stdout = stdout
			if done, err := params.EmitJSON(uploaded); done {
				return err
			}
			if len(uploaded) == 0 {
				fmt.Fprintln(stdout, "remote is up to date")
				return nil
			}
			for _, name := range uploaded {
				fmt.Fprintf(stdout, "uploaded %s\n", name)
			}
			return nil
		},
	}
}

// --- list ---

type listParams struct {
	StoreOptions
	cli.JSONOutput
	Dot bool `json:"dot" flag:"dot" desc:"print the version graph in Graphviz DOT format"`
}

type listEntry struct {
	Name      string         `json:"name"`
	Current   bool           `json:"current,omitempty"`
	Locations []listLocation `json:"locations"`
}

type listLocation struct {
	Source string `json:"source"`
	Size   int64  `json:"size"`
}

type listOutput struct {
	Current  string      `json:"current,omitempty"`
	Objects  []listEntry `json:"objects"`
	Degraded []string    `json:"degraded,omitempty"`
}

func listCommand() *cli.Command {
	var params listParams

	return &cli.Command{
		Name:    "list",
		Aliases: []string{"debug"},
		Summary: "List builds and patches in every store",
		Usage:   "artefacta list [flags]",
		Description: `List every build and patch known to the local and remote stores, with
the stores holding a copy and its stored size. The installed version
is marked with '*'.

With --dot, print the version graph the resolver searches instead.`,
		Examples: []cli.Example{
			{
				Description: "Render the version graph",
				Command:     "artefacta list --dot | dot -Tsvg > graph.svg",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("list", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			session, err := params.open(ctx, "list")
			if err != nil {
				return err
			}
			defer session.close()

			catalog, err := session.engine.Catalog(ctx)
			if err != nil {
				return err
			}
			if params.Dot {
				return graph.Build(catalog, graph.Options{}).WriteDOT(stdout)
			}
			current, _, err := session.engine.Current()
			if err != nil {
				return err
			}

			output := listOutput{Current: current.String(), Objects: []listEntry{}}
			for _, object := range catalog.Objects() {
				entry := listEntry{
					Name:    object.Name.String(),
					Current: !current.IsZero() && object.Name.Version == current,
				}
				for _, location := range object.Locations {
					entry.Locations = append(entry.Locations, listLocation{Source: location.Source, Size: location.Size})
				}
				output.Objects = append(output.Objects, entry)
			}
			for _, degraded := range catalog.Degraded {
				output.Degraded = append(output.Degraded, degraded.Source)
			}

			params.Stdout = stdout
			if done, err := params.EmitJSON(output); done {
				return err
			}

			if len(output.Objects) == 0 {
				fmt.Fprintln(stdout, "No objects found.")
			} else {
				writer := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintf(writer, " \tNAME\tSTORE\tSIZE\n")
				for _, entry := range output.Objects {
					marker := " "
					if entry.Current {
						marker = "*"
					}
					for i, location := range entry.Locations {
						name := entry.Name
						if i > 0 {
							marker, name = " ", ""
						}
						fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", marker, name, location.Source, formatSize(location.Size))
					}
				}
				writer.Flush()
			}
			for _, degraded := range catalog.Degraded {
				fmt.Fprintf(stderr, "warning: listing %s failed: %v\n", degraded.Source, degraded.Err)
			}
			return nil
		},
	}
}

// --- current ---

type currentParams struct {
	StoreOptions
}

func currentCommand() *cli.Command {
	var params currentParams

	return &cli.Command{
		Name:    "current",
		Summary: "Print the installed version",
		Usage:   "artefacta current [flags]",
		Description: `Print the version current points at. Exits 1 without output when
nothing is installed.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("current", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			session, err := params.open(ctx, "current")
			if err != nil {
				return err
			}
			defer session.close()

			current, ok, err := session.engine.Current()
			if err != nil {
				return err
			}
			if !ok {
				return &cli.ExitError{Code: 1}
			}
			fmt.Fprintln(stdout, current)
			return nil
		},
	}
}

// --- prune ---

type pruneParams struct {
	StoreOptions
	cli.JSONOutput
	Keep   int  `json:"keep"    flag:"keep"    default:"2" desc:"newest local builds to keep besides current"`
	Force  bool `json:"force"   flag:"force"   desc:"also remove objects the remote store does not have"`
	DryRun bool `json:"dry_run" flag:"dry-run" desc:"print what would be removed without removing it"`
}

func pruneCommand() *cli.Command {
	var params pruneParams

	return &cli.Command{
		Name:    "prune",
		Summary: "Remove old builds and patches from the local store",
		Usage:   "artefacta prune [flags]",
		Description: `Remove local builds other than current and the newest --keep builds,
and local patches starting from a removed build.

Objects with no copy on the remote store are kept unless --force is
given, since removing them would lose them.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("prune", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if params.Keep < 0 {
				return fmt.Errorf("--keep must not be negative")
			}
			session, err := params.open(ctx, "prune")
			if err != nil {
				return err
			}
			defer session.close()

			removed, err := session.engine.Prune(ctx, engine.PruneOptions{
				Keep:   params.Keep,
				Force:  params.Force,
				DryRun: params.DryRun,
			})
			if err != nil {
				return err
			}
			params.Stdout = stdout
			if done, err := params.EmitJSON(removed); done {
				return err
			}
			verb := "removed"
			if params.DryRun {
				verb = "would remove"
			}
			for _, name := range removed {
				fmt.Fprintf(stdout, "%s %s\n", verb, name)
			}
			return nil
		},
	}
}

// --- export ---

type exportParams struct {
	StoreOptions
	OutputPath string `json:"-" flag:"output,o" desc:"output file path (default: stdout)"`
}

func exportCommand() *cli.Command {
	var params exportParams

	return &cli.Command{
		Name:    "export",
		Summary: "Write a local build's content to a file or stdout",
		Usage:   "artefacta export <version> [flags]",
		Description: `Write the decompressed, verified content of a build in the local store.
With -o the file appears only once the content has been fully
verified. Install the version first if it is not present locally.`,
		Examples: []cli.Example{
			{
				Description: "Extract the current release",
				Command:     "artefacta export \"$(artefacta current)\" -o app.tar",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("export", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("version argument required\n\nUsage: artefacta export <version> [flags]")
			}
			version, err := parseVersion(args[0])
			if err != nil {
				return err
			}
			session, err := params.open(ctx, "export")
			if err != nil {
				return err
			}
			defer session.close()

			if params.OutputPath == "" {
				_, err := session.engine.Export(ctx, version, stdout)
				return err
			}

			file, err := os.CreateTemp(filepath.Dir(params.OutputPath), ".artefacta-export-*")
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer os.Remove(file.Name())
			header, err := session.engine.Export(ctx, version, file)
			if closeErr := file.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				return err
			}
			if err := os.Rename(file.Name(), params.OutputPath); err != nil {
				return err
			}
			session.logger.Info("exported build",
				"version", version,
				"path", params.OutputPath,
				"size", header.ContentSize,
				"hash", header.ContentHash.Short(),
			)
			return nil
		},
	}
}
