// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"

	"github.com/spf13/pflag"
)

// maxSuggestDistance is the largest edit distance still offered as a
// "did you mean" suggestion.
const maxSuggestDistance = 3

// closest returns the candidate nearest to input by edit distance, or
// "" when none is within maxSuggestDistance. Earlier candidates win
// ties.
func closest(input string, candidates []string) string {
	best, bestDistance := "", maxSuggestDistance+1
	for _, candidate := range candidates {
		if distance := levenshtein(input, candidate); distance < bestDistance {
			best, bestDistance = candidate, distance
		}
	}
	return best
}

// suggestCommand returns the subcommand the unknown name most likely
// meant. Aliases match too, but the suggestion is always the primary
// name.
func suggestCommand(unknown string, commands []*Command) string {
	var names []string
	primary := make(map[string]string)
	for _, command := range commands {
		for _, name := range append([]string{command.Name}, command.Aliases...) {
			names = append(names, name)
			primary[name] = command.Name
		}
	}
	return primary[closest(unknown, names)]
}

// suggestFlag finds the first flag in args that flagSet does not
// define and returns the closest defined flag as "--name", or "".
// Arguments after "--" are positional and never inspected.
func suggestFlag(args []string, flagSet *pflag.FlagSet) string {
	var defined []string
	flagSet.VisitAll(func(flag *pflag.Flag) {
		defined = append(defined, flag.Name)
	})

	for _, arg := range args {
		if arg == "--" {
			return ""
		}
		if !strings.HasPrefix(arg, "-") {
			continue
		}
		name, _, _ := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if flagSet.Lookup(name) != nil {
			continue
		}
		if len(name) == 1 && flagSet.ShorthandLookup(name) != nil {
			continue
		}
		if match := closest(name, defined); match != "" {
			return "--" + match
		}
		return ""
	}
	return ""
}

// levenshtein returns the edit distance between a and b, keeping two
// rows of the distance matrix.
func levenshtein(a, b string) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	previous := make([]int, len(a)+1)
	current := make([]int, len(a)+1)
	for i := range previous {
		previous[i] = i
	}
	for j := 1; j <= len(b); j++ {
		current[0] = j
		for i := 1; i <= len(a); i++ {
			substitution := previous[i-1]
			if a[i-1] != b[j-1] {
				substitution++
			}
			current[i] = min(previous[i]+1, current[i-1]+1, substitution)
		}
		previous, current = current, previous
	}
	return previous[len(a)]
}
