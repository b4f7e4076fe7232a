// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/bureau-foundation/artefacta/cmd/artefacta/cli"
	"github.com/bureau-foundation/artefacta/lib/artifact"
	"github.com/bureau-foundation/artefacta/lib/config"
	"github.com/bureau-foundation/artefacta/lib/engine"
	"github.com/bureau-foundation/artefacta/lib/packaging"
	"github.com/bureau-foundation/artefacta/lib/testutil"
)

// stores is a publisher and an installer sharing one remote directory.
type stores struct {
	publisher string
	installer string
	remote    string
}

func newStores(t *testing.T) stores {
	t.Helper()
	for _, name := range []string{config.EnvConfig, config.EnvLocalStore, config.EnvRemoteStore, config.EnvCompressionLevel, envRefName} {
		t.Setenv(name, "")
	}
	root := t.TempDir()
	return stores{
		publisher: filepath.Join(root, "publisher"),
		installer: filepath.Join(root, "installer"),
		remote:    filepath.Join(root, "remote"),
	}
}

// runCLI executes the command tree with args and returns what it wrote
// to stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	stdout, stderr = &out, &errOut
	t.Cleanup(func() { stdout, stderr = os.Stdout, os.Stderr })
	err := Root().Execute(context.Background(), args)
	if err != nil {
		t.Logf("artefacta %s: %v\nstderr:\n%s", strings.Join(args, " "), err, errOut.String())
	}
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	output, err := runCLI(t, args...)
	if err != nil {
		t.Fatalf("artefacta %s: %v", strings.Join(args, " "), err)
	}
	return output
}

// publishReleases adds 1.0 and 1.1 with a patch between them and
// uploads everything.
func publishReleases(t *testing.T, s stores) {
	t.Helper()
	mustRun(t, "add", testutil.WriteFile(t, "1.0.bin", testutil.BuildContent(0)),
		"--local", s.publisher, "--remote", s.remote, "--upload")
	mustRun(t, "add", testutil.WriteFile(t, "build.bin", testutil.BuildContent(1)),
		"--version", "1.1", "--calc-patch-from", "1.0",
		"--local", s.publisher, "--remote", s.remote, "--upload")
}

func TestPublishAndInstall(t *testing.T) {
	s := newStores(t)
	publishReleases(t, s)

	for _, name := range []string{"1.0.build", "1.1.build", "1.0-1.1.patch"} {
		if _, err := os.Stat(filepath.Join(s.remote, name)); err != nil {
			t.Errorf("remote is missing %s: %v", name, err)
		}
	}

	output := mustRun(t, "install", "1.0", "--local", s.installer, "--remote", s.remote)
	if !strings.Contains(output, "1.0 installed") {
		t.Errorf("install output = %q", output)
	}

	output = mustRun(t, "plan", "1.1", "--json", "--local", s.installer, "--remote", s.remote)
	var plan planOutput
	if err := json.Unmarshal([]byte(output), &plan); err != nil {
		t.Fatalf("plan output %q: %v", output, err)
	}
	if plan.Base != "1.0" || len(plan.Steps) != 1 || plan.Steps[0].Kind != "FetchPatchAndApply" {
		t.Fatalf("plan = %+v, want one patch step from 1.0", plan)
	}
	if plan.Steps[0].Object != "1.0-1.1.patch" || !slices.Equal(plan.Steps[0].Locations, []string{"remote"}) {
		t.Errorf("step = %+v", plan.Steps[0])
	}

	mustRun(t, "install", "1.1", "--local", s.installer, "--remote", s.remote)
	if got := mustRun(t, "current", "--local", s.installer); got != "1.1\n" {
		t.Errorf("current = %q, want 1.1", got)
	}

	exported := filepath.Join(t.TempDir(), "out.bin")
	mustRun(t, "export", "1.1", "-o", exported, "--local", s.installer, "--offline")
	content, err := os.ReadFile(exported)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(content, testutil.BuildContent(1)) {
		t.Error("exported 1.1 differs from the published build")
	}
}

func TestInstallRetriesAroundCorruptObject(t *testing.T) {
	s := newStores(t)
	publishReleases(t, s)
	mustRun(t, "install", "1.0", "--local", s.installer, "--remote", s.remote)

	// Replace the patch with a well-formed object that claims the wrong
	// source build.
	bogus := []byte("not the patch you are looking for")
	header := artifact.PatchHeader(artifact.MustParseVersion("1.0"), artifact.MustParseVersion("1.1"),
		artifact.CompressionNone, int64(len(bogus)), artifact.HashContent(bogus),
		artifact.HashContent([]byte("some other build")), artifact.HashContent(testutil.BuildContent(1)))
	var object bytes.Buffer
	if _, err := artifact.WriteObject(&object, header, bytes.NewReader(bogus), 0); err != nil {
		t.Fatalf("WriteObject: %v", err)
	}
	if err := os.WriteFile(filepath.Join(s.remote, "1.0-1.1.patch"), object.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := runCLI(t, "install", "1.1", "--retries", "0", "--local", s.installer, "--remote", s.remote)
	var stepErr *engine.StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("install without retries: err = %v, want StepError", err)
	}
	if stepErr.Object != "1.0-1.1.patch" || !artifact.IsIntegrity(err) {
		t.Errorf("StepError = %+v", stepErr)
	}
	if got := mustRun(t, "current", "--local", s.installer); got != "1.0\n" {
		t.Errorf("current after failure = %q, want 1.0", got)
	}

	output := mustRun(t, "install", "1.1", "--json", "--local", s.installer, "--remote", s.remote)
	var result installOutput
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Fatalf("install output %q: %v", output, err)
	}
	if !slices.Equal(result.Excluded, []string{"1.0-1.1.patch"}) {
		t.Errorf("excluded = %v", result.Excluded)
	}
	if len(result.Plan.Steps) != 1 || result.Plan.Steps[0].Kind != "FetchFull" {
		t.Errorf("retry plan = %+v, want one full download", result.Plan)
	}
	if result.Previous != "1.0" {
		t.Errorf("previous = %q", result.Previous)
	}
	if got := mustRun(t, "current", "--local", s.installer); got != "1.1\n" {
		t.Errorf("current = %q, want 1.1", got)
	}
}

func TestCurrentExitsOneWhenNothingInstalled(t *testing.T) {
	s := newStores(t)
	output, err := runCLI(t, "current", "--local", s.installer)
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() != 1 {
		t.Fatalf("err = %v, want exit code 1", err)
	}
	if output != "" {
		t.Errorf("output = %q, want none", output)
	}
}

func TestPushUploadsMissing(t *testing.T) {
	s := newStores(t)
	mustRun(t, "add", testutil.WriteFile(t, "2.0.tar.gz", testutil.BuildContent(0)), "--local", s.publisher)

	output := mustRun(t, "push", "--local", s.publisher, "--remote", s.remote)
	if output != "uploaded 2.0.build\n" {
		t.Errorf("push output = %q", output)
	}
	output = mustRun(t, "sync", "--local", s.publisher, "--remote", s.remote)
	if output != "remote is up to date\n" {
		t.Errorf("second push output = %q", output)
	}
}

func TestPushWithoutRemote(t *testing.T) {
	s := newStores(t)
	_, err := runCLI(t, "push", "--local", s.publisher)
	if !errors.Is(err, engine.ErrNoRemote) {
		t.Errorf("err = %v, want ErrNoRemote", err)
	}
}

func TestAddPackage(t *testing.T) {
	s := newStores(t)
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bin", "app"), []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	mustRun(t, "add-package", "3.0", dir, "--local", s.publisher)

	var want bytes.Buffer
	if _, err := packaging.Package(context.Background(), dir, &want); err != nil {
		t.Fatalf("Package: %v", err)
	}
	exported := mustRun(t, "export", "3.0", "--local", s.publisher)
	if exported != want.String() {
		t.Error("exported package differs from packaging the directory")
	}
}

func TestAddConflict(t *testing.T) {
	s := newStores(t)
	mustRun(t, "add", testutil.WriteFile(t, "1.0.bin", testutil.BuildContent(0)), "--local", s.publisher)

	output := mustRun(t, "add", testutil.WriteFile(t, "1.0.bin", testutil.BuildContent(0)), "--local", s.publisher)
	if !strings.Contains(output, "identical content") {
		t.Errorf("re-adding identical content: output = %q", output)
	}

	_, err := runCLI(t, "add", testutil.WriteFile(t, "1.0.bin", testutil.BuildContent(5)), "--local", s.publisher)
	if !errors.Is(err, engine.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
}

func TestListJSON(t *testing.T) {
	s := newStores(t)
	publishReleases(t, s)
	mustRun(t, "install", "1.0", "--local", s.installer, "--remote", s.remote)

	output := mustRun(t, "list", "--json", "--local", s.installer, "--remote", s.remote)
	var list listOutput
	if err := json.Unmarshal([]byte(output), &list); err != nil {
		t.Fatalf("list output %q: %v", output, err)
	}
	if list.Current != "1.0" {
		t.Errorf("current = %q", list.Current)
	}
	var names []string
	for _, entry := range list.Objects {
		names = append(names, entry.Name)
		if entry.Name == "1.0.build" {
			if !entry.Current || len(entry.Locations) != 2 {
				t.Errorf("1.0.build entry = %+v, want current with two copies", entry)
			}
		}
	}
	for _, want := range []string{"1.0.build", "1.1.build", "1.0-1.1.patch"} {
		if !slices.Contains(names, want) {
			t.Errorf("list is missing %s: %v", want, names)
		}
	}
}

func TestListDot(t *testing.T) {
	s := newStores(t)
	publishReleases(t, s)

	output := mustRun(t, "debug", "--dot", "--local", s.publisher)
	if !strings.HasPrefix(output, "digraph artefacta {") {
		t.Errorf("dot output = %q", output)
	}
	if !strings.Contains(output, `"1.0" -> "1.1"`) {
		t.Errorf("dot output has no patch edge:\n%s", output)
	}
}

func TestPruneDryRun(t *testing.T) {
	s := newStores(t)
	publishReleases(t, s)
	mustRun(t, "install", "1.1", "--local", s.publisher, "--remote", s.remote)

	output := mustRun(t, "prune", "--keep", "0", "--dry-run", "--local", s.publisher, "--remote", s.remote)
	if !strings.Contains(output, "would remove 1.0.build") {
		t.Errorf("prune output = %q", output)
	}
	if _, err := os.Stat(filepath.Join(s.publisher, "1.0.build")); err != nil {
		t.Errorf("dry run removed 1.0.build: %v", err)
	}
}

func TestConfigErrors(t *testing.T) {
	newStores(t)
	_, err := runCLI(t, "current")
	if err == nil || !strings.Contains(err.Error(), "local is required") {
		t.Errorf("err = %v, want missing local store", err)
	}
}

func TestUnknownCommandSuggestion(t *testing.T) {
	_, err := runCLI(t, "instal", "1.0")
	if err == nil || !strings.Contains(err.Error(), `did you mean "install"`) {
		t.Errorf("err = %v", err)
	}
}

func TestVersionFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"1.0.bin", "1.0"},
		{"dist/app-1.4.0.tar", "app-1.4.0"},
		{"/tmp/app-1.4.0.tar.gz", "app-1.4.0"},
		{"release", "release"},
	}
	for _, test := range tests {
		if got := versionFromPath(test.path); got != test.want {
			t.Errorf("versionFromPath(%q) = %q, want %q", test.path, got, test.want)
		}
	}
}

func TestParseExclusions(t *testing.T) {
	exclusions, err := parseExclusions([]string{"1.0-1.1.patch", "1.1.build@remote"})
	if err != nil {
		t.Fatalf("parseExclusions: %v", err)
	}
	if len(exclusions) != 2 ||
		exclusions[0].Name != "1.0-1.1.patch" || exclusions[0].Source != "" ||
		exclusions[1].Name != "1.1.build" || exclusions[1].Source != "remote" {
		t.Errorf("exclusions = %+v", exclusions)
	}

	if _, err := parseExclusions([]string{"current"}); err == nil {
		t.Error("parseExclusions accepted a name that is not an object")
	}
}
