// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewCommandLogger creates a structured logger writing to w. Format
// "auto" uses slog.TextHandler when w is a terminal and
// slog.JSONHandler otherwise, so CI logs stay machine-parseable;
// "text" and "json" force one or the other.
//
// Callers scope the logger with command-specific context via With():
//
//	logger = logger.With("command", "install", "target", version)
func NewCommandLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	options := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	switch format {
	case "text":
		handler = slog.NewTextHandler(w, options)
	case "json":
		handler = slog.NewJSONHandler(w, options)
	case "auto", "":
		if file, ok := w.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
			handler = slog.NewTextHandler(w, options)
		} else {
			handler = slog.NewJSONHandler(w, options)
		}
	default:
		return nil, fmt.Errorf("unknown log format %q (want auto, text, or json)", format)
	}
	return slog.New(handler), nil
}
