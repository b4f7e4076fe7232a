// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"cmp"
	"fmt"
	"strings"
	"unicode"
)

// MaxVersionLength bounds the byte length of a version identifier.
const MaxVersionLength = 128

// Version is an opaque build identifier such as "1.0" or "v2.3.1-rc1".
// The zero Version is not a valid identifier; the graph uses it as the
// origin node meaning "nothing present".
type Version struct {
	s string
}

// ParseVersion validates s as a version identifier.
func ParseVersion(s string) (Version, error) {
	if err := validateVersion(s); err != nil {
		return Version{}, err
	}
	return Version{s: s}, nil
}

// MustParseVersion is ParseVersion for constants and tests.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func validateVersion(s string) error {
	switch {
	case s == "":
		return fmt.Errorf("version is empty")
	case len(s) > MaxVersionLength:
		return fmt.Errorf("version %.16q... is %d bytes, maximum is %d", s, len(s), MaxVersionLength)
	case s[0] == '.':
		return fmt.Errorf("version %q starts with '.'", s)
	case s[0] == '-' || s[len(s)-1] == '-':
		return fmt.Errorf("version %q starts or ends with '-'", s)
	case strings.Contains(s, "---"):
		return fmt.Errorf("version %q contains \"---\"", s)
	}
	for _, r := range s {
		if r == '/' || r == '\\' || unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("version %q contains invalid character %q", s, r)
		}
	}
	return nil
}

// String returns the identifier, or "" for the zero Version.
func (v Version) String() string { return v.s }

// IsZero reports whether v is the zero Version.
func (v Version) IsZero() bool { return v.s == "" }

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty input
// decodes to the zero Version.
func (v *Version) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*v = Version{}
		return nil
	}
	parsed, err := ParseVersion(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Compare orders versions naturally: runs of digits compare by numeric
// value, so "1.9" sorts before "1.10". The zero Version sorts first.
func Compare(a, b Version) int {
	return CompareNatural(a.s, b.s)
}

// CompareNatural is the natural ordering used by Compare, applied to
// arbitrary strings (git tags, for instance). Leading zeros only break
// ties between otherwise equal strings, and the result is 0 only for
// identical inputs.
func CompareNatural(a, b string) int {
	i, j := 0, 0
	tiebreak := 0
	for i < len(a) && j < len(b) {
		if isDigit(a[i]) && isDigit(b[j]) {
			startA, startB := i, j
			for i < len(a) && isDigit(a[i]) {
				i++
			}
			for j < len(b) && isDigit(b[j]) {
				j++
			}
			runA := strings.TrimLeft(a[startA:i], "0")
			runB := strings.TrimLeft(b[startB:j], "0")
			if c := cmp.Compare(len(runA), len(runB)); c != 0 {
				return c
			}
			if c := strings.Compare(runA, runB); c != 0 {
				return c
			}
			if tiebreak == 0 {
				tiebreak = cmp.Compare(i-startA, j-startB)
			}
			continue
		}
		if c := cmp.Compare(a[i], b[j]); c != 0 {
			return c
		}
		i++
		j++
	}
	if c := cmp.Compare(len(a)-i, len(b)-j); c != 0 {
		return c
	}
	if tiebreak != 0 {
		return tiebreak
	}
	return strings.Compare(a, b)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
