// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

// Command is one node of the command tree. A node either runs (Run) or
// groups further commands (Subcommands); a node with both runs when the
// first argument names no subcommand.
type Command struct {
	Name string

	// Aliases dispatch to this command but are left out of help.
	Aliases []string

	// Summary is the single line shown in the parent's command list.
	Summary string

	// Description replaces Summary at the top of the command's own help.
	Description string

	// Usage defaults to "<path> [flags]" or "<path> <command> [flags]".
	Usage string

	Examples []Example

	// Flags builds a fresh flag set on every call. Nil means the
	// command takes no flags.
	Flags func() *pflag.FlagSet

	Subcommands []*Command

	// Run receives the positional arguments left after flag parsing.
	Run func(ctx context.Context, args []string) error

	// Stderr receives help text. Unset commands inherit their
	// parent's writer, falling back to os.Stderr.
	Stderr io.Writer

	parent *Command
}

// Example is one annotated command line in help output.
type Example struct {
	Description string
	Command     string
}

// Execute runs the command tree against args.
func (c *Command) Execute(ctx context.Context, args []string) error {
	if len(args) > 0 && isHelpFlag(args[0]) {
		c.PrintHelp(c.stderr())
		return nil
	}

	if len(c.Subcommands) > 0 {
		if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
			if sub := c.lookup(args[0]); sub != nil {
				sub.parent = c
				return sub.Execute(ctx, args[1:])
			}
			if c.Run == nil {
				return c.unknownCommand(args[0])
			}
		}
		if c.Run == nil {
			c.PrintHelp(c.stderr())
			if len(args) == 0 {
				return errors.New("subcommand required")
			}
			return fmt.Errorf("subcommand required (got flag %q)", args[0])
		}
	}

	positional, err := c.parseFlags(args)
	if err != nil {
		return err
	}
	if c.Run == nil {
		c.PrintHelp(c.stderr())
		return fmt.Errorf("no action defined for %q", c.fullName())
	}
	return c.Run(ctx, positional)
}

func (c *Command) lookup(name string) *Command {
	for _, sub := range c.Subcommands {
		if sub.Name == name || slices.Contains(sub.Aliases, name) {
			return sub
		}
	}
	return nil
}

func (c *Command) unknownCommand(name string) error {
	message := fmt.Sprintf("unknown command %q", name)
	if suggestion := suggestCommand(name, c.Subcommands); suggestion != "" {
		message += fmt.Sprintf(" (did you mean %q?)", suggestion)
	}
	return c.usageError(message)
}

// parseFlags returns the positional arguments. Parse errors name the
// closest defined flag when the user mistyped one.
func (c *Command) parseFlags(args []string) ([]string, error) {
	if c.Flags == nil {
		return args, nil
	}
	flagSet := c.Flags()
	flagSet.SetOutput(io.Discard)
	if err := flagSet.Parse(args); err != nil {
		message := err.Error()
		if strings.HasPrefix(message, "unknown flag") || strings.HasPrefix(message, "unknown shorthand") {
			// A failed Parse leaves the set half-populated.
			if suggestion := suggestFlag(args, c.Flags()); suggestion != "" {
				message += fmt.Sprintf(" (did you mean %s?)", suggestion)
			}
		}
		return nil, c.usageError(message)
	}
	return flagSet.Args(), nil
}

func (c *Command) usageError(message string) error {
	return fmt.Errorf("%s\n\nRun '%s --help' for usage.", message, c.fullName())
}

func (c *Command) stderr() io.Writer {
	for command := c; command != nil; command = command.parent {
		if command.Stderr != nil {
			return command.Stderr
		}
	}
	return os.Stderr
}

// PrintHelp writes the description, usage, commands, flags and
// examples sections to w, skipping empty ones.
func (c *Command) PrintHelp(w io.Writer) {
	intro := c.Description
	if intro == "" {
		intro = c.Summary
	}
	if intro != "" {
		fmt.Fprintf(w, "%s\n\n", intro)
	}
	fmt.Fprintf(w, "Usage:\n  %s\n", c.usage())

	if len(c.Subcommands) > 0 {
		fmt.Fprint(w, "\nCommands:\n")
		table := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
		for _, sub := range c.Subcommands {
			fmt.Fprintf(table, "  %s\t%s\n", sub.Name, sub.Summary)
		}
		table.Flush()
	}

	if c.Flags != nil {
		if usages := c.Flags().FlagUsages(); usages != "" {
			fmt.Fprintf(w, "\nFlags:\n%s", usages)
		}
	}

	if len(c.Examples) > 0 {
		fmt.Fprint(w, "\nExamples:\n")
		for _, example := range c.Examples {
			if example.Description == "" {
				fmt.Fprintf(w, "  %s\n", example.Command)
				continue
			}
			fmt.Fprintf(w, "  # %s\n  %s\n\n", example.Description, example.Command)
		}
	}

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nRun '%s <command> --help' for more information on a command.\n", c.fullName())
	}
}

func (c *Command) usage() string {
	switch {
	case c.Usage != "":
		return c.Usage
	case len(c.Subcommands) > 0:
		return c.fullName() + " <command> [flags]"
	default:
		return c.fullName() + " [flags]"
	}
}

// fullName is the space-separated path from the root, e.g.
// "artefacta install".
func (c *Command) fullName() string {
	if c.parent == nil {
		return c.Name
	}
	return c.parent.fullName() + " " + c.Name
}

func isHelpFlag(arg string) bool {
	switch arg {
	case "-h", "--help", "help":
		return true
	}
	return false
}
