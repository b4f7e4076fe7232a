// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/artefacta/cmd/artefacta/cli"
	"github.com/bureau-foundation/artefacta/lib/artifact"
	"github.com/bureau-foundation/artefacta/lib/git"
)

// envRefName is set by GitLab CI to the branch or tag being built.
const envRefName = "CI_COMMIT_REF_NAME"

type autoPatchParams struct {
	StoreOptions
	RepoRoot string `json:"repo_root" flag:"repo-root" default:"." desc:"git repository whose tags name the releases"`
	Prefix   string `json:"prefix"    flag:"prefix"    desc:"prepended to each tag to form its build version"`
	Upload   bool   `json:"upload"    flag:"upload"    desc:"upload the new patches to the remote store"`
}

func autoPatchCommand() *cli.Command {
	var params autoPatchParams

	return &cli.Command{
		Name:    "auto-patch",
		Summary: "Create patches to a new release from its predecessors",
		Usage:   "artefacta auto-patch [tag] [flags]",
		Description: `Create patches to the release named by [tag] from the releases users are
most likely to upgrade from, chosen from the repository's git tags.

For each numeric component of the tag, counting from the end, the
latest earlier tag that differs only from that component on is
selected. For 1.3.2 that is the last 1.3.1 and the last 1.2.x.

The tag defaults to $CI_COMMIT_REF_NAME, then to the tag pointing at
HEAD. Build versions are --prefix followed by the tag.`,
		Examples: []cli.Example{
			{
				Description: "Patch the release being tagged in CI",
				Command:     "artefacta auto-patch --prefix app- --upload",
			},
			{
				Description: "Patch an explicit release",
				Command:     "artefacta auto-patch 1.4.0 --repo-root ~/src/app",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("auto-patch", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 1 {
				return fmt.Errorf("at most one tag argument\n\nUsage: artefacta auto-patch [tag] [flags]")
			}
			repository := git.NewRepository(params.RepoRoot)

			var current string
			switch {
			case len(args) == 1:
				current = args[0]
			case os.Getenv(envRefName) != "":
				current = os.Getenv(envRefName)
			default:
				tag, err := repository.CurrentTag(ctx)
				if err != nil {
					return fmt.Errorf("no tag given and HEAD is not tagged: %w", err)
				}
				current = tag
			}

			tags, err := repository.Tags(ctx)
			if err != nil {
				return err
			}

			session, err := params.open(ctx, "auto-patch")
			if err != nil {
				return err
			}
			defer session.close()

			results, patchErr := session.engine.AutoPatch(ctx, current, tags, params.Prefix)
			var names []artifact.Name
			for _, result := range results {
				printPatchResult(result)
				if result.Existed {
					continue
				}
				name, ok := artifact.ParseName(result.Name)
				if ok {
					names = append(names, name)
				}
			}
			if len(results) == 0 && patchErr == nil {
				fmt.Fprintf(stdout, "no earlier release of %s to patch from\n", current)
			}

			var uploadErr error
			if params.Upload && len(names) > 0 {
				uploadErr = upload(ctx, session, names)
			}
			return errors.Join(patchErr, uploadErr)
		},
	}
}
