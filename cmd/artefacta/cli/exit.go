// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "strconv"

// ExitError ends the process with Code and no further message. The
// command has already said what it needed to, or deliberately says
// nothing, as "artefacta current" does when nothing is installed.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return "exit status " + strconv.Itoa(e.Code) }

// ExitCode is the method main looks for on a returned error.
func (e *ExitError) ExitCode() int { return e.Code }
