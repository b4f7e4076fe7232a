// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"io"
	"os"
	"reflect"
)

// JSONOutput adds a --json flag to a parameter struct. Commands call
// EmitJSON first and fall through to their text rendering when it
// reports nothing was written.
type JSONOutput struct {
	OutputJSON bool `json:"-" flag:"json" desc:"output as JSON"`

	// Stdout defaults to os.Stdout.
	Stdout io.Writer `json:"-"`
}

// EmitJSON writes result as indented JSON when --json was given and
// reports whether it did. A nil slice is written as [] rather than null.
func (j *JSONOutput) EmitJSON(result any) (done bool, err error) {
	if !j.OutputJSON {
		return false, nil
	}
	if value := reflect.ValueOf(result); value.Kind() == reflect.Slice && value.IsNil() {
		result = reflect.MakeSlice(value.Type(), 0, 0).Interface()
	}
	writer := j.Stdout
	if writer == nil {
		writer = os.Stdout
	}
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return true, encoder.Encode(result)
}
