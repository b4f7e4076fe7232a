// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version identifies the running artefacta build.
//
// Release builds set the variables with -ldflags:
//
//	go build -ldflags "-X github.com/bureau-foundation/artefacta/lib/version.Version=1.4.0 \
//	    -X github.com/bureau-foundation/artefacta/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Otherwise the VCS stamp embedded by the toolchain fills in the
// commit, dirty flag and time.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	GitDirty  = "false"
	BuildTime = "unknown"
)

func init() {
	if GitCommit != "unknown" {
		return
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		fromBuildSettings(info.Settings)
	}
}

func fromBuildSettings(settings []debug.BuildSetting) {
	for _, setting := range settings {
		switch setting.Key {
		case "vcs.revision":
			GitCommit = setting.Value[:min(len(setting.Value), 12)]
		case "vcs.modified":
			GitDirty = setting.Value
		case "vcs.time":
			if BuildTime == "unknown" {
				BuildTime = setting.Value
			}
		}
	}
}

// Info is "<version> (<commit>[-dirty], <build time>)".
func Info() string {
	commit := GitCommit
	if GitDirty == "true" {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (%s, %s)", Version, commit, BuildTime)
}

// Full adds the Go release and platform to Info on indented lines.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s", Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Short is the bare version, sent as the S3 client's app version.
func Short() string { return Version }
