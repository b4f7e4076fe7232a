// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import "testing"

func TestObjectNames(t *testing.T) {
	v10 := MustParseVersion("1.0")
	v11 := MustParseVersion("1.1")
	rc := MustParseVersion("2.0-rc1")

	tests := []struct {
		got  string
		want string
	}{
		{BuildName(v10), "1.0.build"},
		{PatchName(v10, v11), "1.0-1.1.patch"},
		{PatchName(v11, rc), "1.1---2.0-rc1.patch"},
		{PatchName(rc, v10), "2.0-rc1---1.0.patch"},
	}
	for _, test := range tests {
		if test.got != test.want {
			t.Errorf("name = %q, want %q", test.got, test.want)
		}
	}
}

func TestParseName(t *testing.T) {
	tests := []struct {
		input string
		want  Name
	}{
		{"1.0.build", Name{Kind: KindBuild, Version: MustParseVersion("1.0")}},
		{"1.0-1.1.patch", Name{Kind: KindPatch, From: MustParseVersion("1.0"), To: MustParseVersion("1.1")}},
		{"1.1---2.0-rc1.patch", Name{Kind: KindPatch, From: MustParseVersion("1.1"), To: MustParseVersion("2.0-rc1")}},
		{"a-b---c-d.patch", Name{Kind: KindPatch, From: MustParseVersion("a-b"), To: MustParseVersion("c-d")}},
	}
	for _, test := range tests {
		got, ok := ParseName(test.input)
		if !ok {
			t.Errorf("ParseName(%q) rejected a valid name", test.input)
			continue
		}
		if got != test.want {
			t.Errorf("ParseName(%q) = %+v, want %+v", test.input, got, test.want)
		}
		if got.String() != test.input {
			t.Errorf("ParseName(%q).String() = %q", test.input, got.String())
		}
	}
}

func TestPatchNamesDoNotCollide(t *testing.T) {
	versions := []string{"1", "2", "1.0", "a-b", "c-d", "a--b", "1-2"}
	seen := make(map[string][2]string)
	for _, from := range versions {
		for _, to := range versions {
			if from == to {
				continue
			}
			name := PatchName(MustParseVersion(from), MustParseVersion(to))
			if previous, ok := seen[name]; ok {
				t.Errorf("PatchName(%s, %s) = PatchName(%s, %s) = %q", from, to, previous[0], previous[1], name)
			}
			seen[name] = [2]string{from, to}

			parsed, ok := ParseName(name)
			if !ok || parsed.From.String() != from || parsed.To.String() != to {
				t.Errorf("ParseName(%q) = %+v, %v, want %s -> %s", name, parsed, ok, from, to)
			}
		}
	}
}

func TestParseNameIgnoresForeignNames(t *testing.T) {
	for _, input := range []string{
		"",
		"current",
		".lock",
		".staging-123456",
		"nested/1.0.build",
		"1.0.tar.zst",
		".build",
		"1.0.patch",
		"1.0-1.1-1.2.patch",
		"1.0---1.1.patch",
		"1.0-1.0.patch",
		"-1.0.patch",
		"1----2.patch",
		"1-----2.patch",
		"1---2-.patch",
	} {
		if name, ok := ParseName(input); ok {
			t.Errorf("ParseName(%q) = %+v, want rejection", input, name)
		}
	}
}
