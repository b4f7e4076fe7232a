// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/artefacta/cmd/artefacta/cli"
	"github.com/bureau-foundation/artefacta/lib/artifact"
	"github.com/bureau-foundation/artefacta/lib/engine"
	"github.com/bureau-foundation/artefacta/lib/graph"
)

// planStep is the JSON form of a plan step.
type planStep struct {
	Kind      string   `json:"kind"`
	From      string   `json:"from,omitempty"`
	To        string   `json:"to"`
	Object    string   `json:"object"`
	Cost      int64    `json:"cost"`
	Locations []string `json:"locations"`
}

// planOutput is the JSON form of a plan.
type planOutput struct {
	Target string     `json:"target"`
	Base   string     `json:"base,omitempty"`
	Cost   int64      `json:"cost"`
	Steps  []planStep `json:"steps"`
}

func newPlanOutput(plan *graph.Plan) planOutput {
	output := planOutput{
		Target: plan.Target.String(),
		Base:   plan.Base.String(),
		Cost:   plan.Cost,
		Steps:  []planStep{},
	}
	for _, step := range plan.Steps {
		entry := planStep{
			Kind:   step.Kind.String(),
			From:   step.From.String(),
			To:     step.To.String(),
			Object: step.ObjectName(),
			Cost:   step.Cost,
		}
		for _, location := range step.Locations {
			entry.Locations = append(entry.Locations, location.Source)
		}
		output.Steps = append(output.Steps, entry)
	}
	return output
}

func printPlan(plan *graph.Plan) {
	if plan.Empty() {
		fmt.Fprintf(stdout, "%s is present locally; nothing to transfer\n", plan.Target)
		return
	}
	if plan.Base.IsZero() {
		fmt.Fprintf(stdout, "%s: %d step(s), %s to transfer\n", plan.Target, len(plan.Steps), formatSize(plan.Cost))
	} else {
		fmt.Fprintf(stdout, "%s from %s: %d step(s), %s to transfer\n", plan.Target, plan.Base, len(plan.Steps), formatSize(plan.Cost))
	}
	writer := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	for i, step := range plan.Steps {
		source := ""
		if len(step.Locations) > 0 {
			source = step.Locations[0].Source
		}
		fmt.Fprintf(writer, "  %d\t%s\t%s\t%s\n", i+1, step.String(), formatSize(step.Cost), source)
	}
	writer.Flush()
}

// --- plan ---

type planParams struct {
	StoreOptions
	cli.JSONOutput
	Exclude []string `json:"exclude" flag:"exclude" desc:"ignore an object, NAME or NAME@SOURCE (repeatable)"`
}

func planCommand() *cli.Command {
	var params planParams

	return &cli.Command{
		Name:    "plan",
		Summary: "Show the cheapest way to obtain a version",
		Usage:   "artefacta plan <version> [flags]",
		Description: `Resolve the cheapest sequence of downloads and patch applications that
produces the requested version, without transferring anything.

Cost is the total stored size of the objects the plan uses. Builds
already in the local store cost nothing; a patch costs its size wherever
it is stored.`,
		Examples: []cli.Example{
			{
				Description: "Show how 1.4.0 would be installed",
				Command:     "artefacta plan 1.4.0",
			},
			{
				Description: "Plan around a patch known to be bad on the remote",
				Command:     "artefacta plan 1.4.0 --exclude 1.3.0-1.4.0.patch@remote",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("plan", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("version argument required\n\nUsage: artefacta plan <version> [flags]")
			}
			target, err := parseVersion(args[0])
			if err != nil {
				return err
			}
			exclude, err := parseExclusions(params.Exclude)
			if err != nil {
				return err
			}

			session, err := params.open(ctx, "plan")
			if err != nil {
				return err
			}
			defer session.close()

			plan, err := session.engine.Plan(ctx, target, exclude)
			if err != nil {
				return err
			}

			params.Stdout = stdout
			if done, err := params.EmitJSON(newPlanOutput(plan)); done {
				return err
			}
			printPlan(plan)
			return nil
		},
	}
}

// --- install ---

type installParams struct {
	StoreOptions
	cli.JSONOutput
	Exclude []string `json:"exclude" flag:"exclude" desc:"ignore an object, NAME or NAME@SOURCE (repeatable)"`
	Retries int      `json:"retries" flag:"retries" default:"1" desc:"re-plan around an object that fails verification, up to this many times"`
}

type installOutput struct {
	Version  string     `json:"version"`
	Previous string     `json:"previous,omitempty"`
	Plan     planOutput `json:"plan"`
	Excluded []string   `json:"excluded,omitempty"`
}

func installCommand() *cli.Command {
	var params installParams

	return &cli.Command{
		Name:    "install",
		Summary: "Install a version and make it current",
		Usage:   "artefacta install <version> [flags]",
		Description: `Obtain the requested version as cheaply as possible, verify it, and point
current at it.

Every object is checked against its recorded hash before it is
committed to the local store, and current changes only after the
target build is in place. If a step fails, current still points at the
previously installed version.

When an object fails verification, install plans again without it and
retries, up to --retries times.`,
		Examples: []cli.Example{
			{
				Description: "Install a release",
				Command:     "artefacta install 1.4.0",
			},
			{
				Description: "Install using local objects only",
				Command:     "artefacta install 1.4.0 --offline",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("install", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("version argument required\n\nUsage: artefacta install <version> [flags]")
			}
			target, err := parseVersion(args[0])
			if err != nil {
				return err
			}
			exclude, err := parseExclusions(params.Exclude)
			if err != nil {
				return err
			}

			session, err := params.open(ctx, "install")
			if err != nil {
				return err
			}
			defer session.close()

			result, excluded, err := installWithRetries(ctx, session, target, exclude, params.Retries)
			if err != nil {
				return err
			}

			params.Stdout = stdout
			if done, err := params.EmitJSON(installOutput{
				Version:  target.String(),
				Previous: result.Previous.String(),
				Plan:     newPlanOutput(result.Plan),
				Excluded: excluded,
			}); done {
				return err
			}
			if result.Plan.Empty() {
				fmt.Fprintf(stdout, "%s installed (already present)\n", target)
			} else {
				fmt.Fprintf(stdout, "%s installed in %d step(s), %s transferred\n",
					target, len(result.Plan.Steps), formatSize(result.Plan.Cost))
			}
			return nil
		},
	}
}

// installWithRetries installs target, excluding each object that fails
// verification and planning again while retries remain.
func installWithRetries(ctx context.Context, session *session, target artifact.Version, exclude []graph.Exclusion, retries int) (*engine.InstallResult, []string, error) {
	var excluded []string
	for attempt := 0; ; attempt++ {
		result, err := session.engine.Install(ctx, target, exclude)
		if err == nil {
			return result, excluded, nil
		}
		var stepErr *engine.StepError
		if attempt >= retries || !errors.As(err, &stepErr) || stepErr.Object == "" || !artifact.IsIntegrity(err) {
			return nil, excluded, err
		}
		session.logger.Warn("object failed verification, planning without it",
			"object", stepErr.Object,
			"attempt", attempt+1,
			"error", err,
		)
		exclude = append(exclude, graph.Exclusion{Name: stepErr.Object})
		excluded = append(excluded, stepErr.Object)
	}
}
