// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
)

type connection struct {
	Remote string
}

func (c *connection) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.Remote, "remote", "default-remote", "remote store")
}

type embedded struct {
	Verbose bool `flag:"verbose,v" desc:"debug output"`
}

type testParams struct {
	embedded
	JSONOutput
	Connection connection

	Keep     int           `flag:"keep" default:"2" desc:"builds to keep"`
	Limit    int64         `flag:"limit" default:"1048576"`
	Prefix   string        `flag:"prefix" desc:"tag prefix"`
	Timeout  time.Duration `flag:"timeout" default:"30s"`
	Exclude  []string      `flag:"exclude"`
	Untagged string
}

func TestBindFlags(t *testing.T) {
	var params testParams
	flagSet := FlagsFromParams("test", &params)

	if params.Keep != 2 || params.Limit != 1048576 || params.Timeout != 30*time.Second {
		t.Errorf("defaults not applied: %+v", params)
	}
	if params.Connection.Remote != "default-remote" {
		t.Errorf("FlagBinder default not applied: %q", params.Connection.Remote)
	}

	err := flagSet.Parse([]string{
		"-v", "--json", "--keep", "5", "--prefix", "app-",
		"--exclude", "a", "--exclude", "b,c", "--remote", "s3://bucket.example.com",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !params.Verbose || !params.OutputJSON || params.Keep != 5 || params.Prefix != "app-" {
		t.Errorf("flags not bound: %+v", params)
	}
	if len(params.Exclude) != 2 || params.Exclude[1] != "b,c" {
		t.Errorf("exclude = %v, want [a b,c]", params.Exclude)
	}
	if params.Connection.Remote != "s3://bucket.example.com" {
		t.Errorf("remote = %q", params.Connection.Remote)
	}
	if flagSet.Lookup("Untagged") != nil || flagSet.Lookup("untagged") != nil {
		t.Error("untagged field was bound")
	}
}

func TestBindFlags_Errors(t *testing.T) {
	var notPointer testParams
	if err := BindFlags(notPointer, pflag.NewFlagSet("x", pflag.ContinueOnError)); err == nil {
		t.Error("BindFlags accepted a non-pointer")
	}

	type badDefault struct {
		Count int `flag:"count" default:"many"`
	}
	if err := BindFlags(&badDefault{}, pflag.NewFlagSet("x", pflag.ContinueOnError)); err == nil {
		t.Error("BindFlags accepted an unparseable default")
	}

	type unsupported struct {
		Ratio float32 `flag:"ratio"`
	}
	if err := BindFlags(&unsupported{}, pflag.NewFlagSet("x", pflag.ContinueOnError)); err == nil {
		t.Error("BindFlags accepted an unsupported type")
	}
}
