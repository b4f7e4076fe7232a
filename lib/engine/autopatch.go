// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/bureau-foundation/artefacta/lib/artifact"
)

// PatchBases picks the release tags a new release should get patches
// from. Tags are split into segments on '.' and '-', case-insensitively.
// Walking the current tag's segments from the last to the first, each
// positive numeric segment is decremented and the newest tag (in
// natural order) matching the segments up to and including that
// position is chosen. For IL40.2.19 that is the newest IL40.2.18* and
// the newest IL40.1*.
//
// The result is ordered by segment position, last segment first, and
// holds each tag at most once. Tags are returned as given.
func PatchBases(current string, tags []string) []string {
	sorted := slices.Clone(tags)
	slices.SortFunc(sorted, artifact.CompareNatural)
	split := make([][]string, len(sorted))
	for i, tag := range sorted {
		split[i] = tagSegments(tag)
	}

	segments := tagSegments(current)
	var bases []string
	for position := len(segments) - 1; position >= 0; position-- {
		number, err := strconv.ParseUint(segments[position], 10, 32)
		if err != nil || number == 0 {
			continue
		}
		previous := slices.Clone(segments[:position+1])
		previous[position] = strconv.FormatUint(number-1, 10)

		match := -1
		for i, candidate := range split {
			if len(candidate) >= len(previous) && slices.Equal(candidate[:len(previous)], previous) {
				match = i
			}
		}
		if match >= 0 && !slices.Contains(bases, sorted[match]) {
			bases = append(bases, sorted[match])
		}
	}
	return bases
}

func tagSegments(tag string) []string {
	return strings.FieldsFunc(strings.ToLower(tag), func(r rune) bool {
		return r == '.' || r == '-'
	})
}

// AutoPatch creates the patches a new release needs: one from each tag
// PatchBases selects to current. Build versions are the tags with
// prefix prepended. Every base is attempted; the errors of the failed
// ones are joined.
func (e *Engine) AutoPatch(ctx context.Context, current string, tags []string, prefix string) ([]*PatchResult, error) {
	to, err := artifact.ParseVersion(prefix + current)
	if err != nil {
		return nil, fmt.Errorf("auto-patch: current tag: %w", err)
	}
	bases := PatchBases(current, tags)
	if len(bases) == 0 {
		e.logger.Info("no earlier release to patch from", "current", current, "tags", len(tags))
		return nil, nil
	}

	lock, err := e.lock()
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	var results []*PatchResult
	var errs []error
	for _, base := range bases {
		from, err := artifact.ParseVersion(prefix + base)
		if err != nil {
			errs = append(errs, fmt.Errorf("auto-patch from tag %q: %w", base, err))
			continue
		}
		e.logger.Info("creating patch for release", "event", "autopatch_selected", "from", from, "to", to)
		result, err := e.createPatch(ctx, from, to)
		if err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		results = append(results, result)
	}
	return results, errors.Join(errs...)
}
