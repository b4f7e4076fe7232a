// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command artefacta installs versioned build artifacts from local and
// remote stores, preferring the cheapest chain of binary patches.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/artefacta/cmd/artefacta/commands"
)

type exitCoder interface{ ExitCode() int }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.Root().Execute(ctx, os.Args[1:])
	stop()
	if err == nil {
		return
	}

	var coder exitCoder
	if errors.As(err, &coder) {
		os.Exit(coder.ExitCode())
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
