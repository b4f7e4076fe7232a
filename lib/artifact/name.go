// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"fmt"
	"strings"
)

// Kind distinguishes builds from patches.
type Kind uint8

const (
	KindBuild Kind = iota + 1
	KindPatch
)

const (
	buildSuffix = ".build"
	patchSuffix = ".patch"
)

func (k Kind) String() string {
	switch k {
	case KindBuild:
		return "build"
	case KindPatch:
		return "patch"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	switch k {
	case KindBuild, KindPatch:
		return []byte(k.String()), nil
	default:
		return nil, fmt.Errorf("invalid object kind %d", uint8(k))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "build":
		*k = KindBuild
	case "patch":
		*k = KindPatch
	default:
		return fmt.Errorf("unknown object kind %q", text)
	}
	return nil
}

// Name is a parsed object name. For builds only Version is set; for
// patches only From and To are set.
type Name struct {
	Kind    Kind
	Version Version
	From    Version
	To      Version
}

// String returns the object name as stored.
func (n Name) String() string {
	if n.Kind == KindPatch {
		return PatchName(n.From, n.To)
	}
	return BuildName(n.Version)
}

// BuildName returns the object name of the full build of v.
func BuildName(v Version) string {
	return v.s + buildSuffix
}

// PatchName returns the object name of the patch from one version to
// another.
func PatchName(from, to Version) string {
	separator := "-"
	if strings.Contains(from.s, "-") || strings.Contains(to.s, "-") {
		separator = "---"
	}
	return from.s + separator + to.s + patchSuffix
}

// ParseName interprets a store object name. It reports false for names
// that are not artefacta objects: the current pointer, staging files,
// nested keys, and anything that does not parse cleanly. Stores list
// such names freely; the index skips them.
func ParseName(name string) (Name, bool) {
	if name == "" || name[0] == '.' || strings.Contains(name, "/") {
		return Name{}, false
	}

	if body, ok := strings.CutSuffix(name, buildSuffix); ok {
		version, err := ParseVersion(body)
		if err != nil {
			return Name{}, false
		}
		return Name{Kind: KindBuild, Version: version}, true
	}

	body, ok := strings.CutSuffix(name, patchSuffix)
	if !ok {
		return Name{}, false
	}

	var fromText, toText string
	if strings.Contains(body, "---") {
		fromText, toText, _ = strings.Cut(body, "---")
	} else {
		if strings.Count(body, "-") != 1 {
			return Name{}, false
		}
		fromText, toText, _ = strings.Cut(body, "-")
	}

	from, err := ParseVersion(fromText)
	if err != nil {
		return Name{}, false
	}
	to, err := ParseVersion(toText)
	if err != nil {
		return Name{}, false
	}
	if from == to {
		return Name{}, false
	}
	parsed := Name{Kind: KindPatch, From: from, To: to}
	// "a---b.patch" parses but is not the canonical name of a patch
	// between two dash-free versions.
	if parsed.String() != name {
		return Name{}, false
	}
	return parsed, true
}
