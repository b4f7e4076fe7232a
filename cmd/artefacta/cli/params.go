// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// FlagBinder is a parameter struct field that registers its own flags.
// BindFlags calls AddFlags on it instead of reading its tags.
type FlagBinder interface {
	AddFlags(flagSet *pflag.FlagSet)
}

// FlagsFromParams returns a flag set bound to the tagged fields of
// params, a pointer to a struct. Invalid params are a programming error
// and panic.
func FlagsFromParams(name string, params any) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	if err := BindFlags(params, flagSet); err != nil {
		panic(fmt.Sprintf("cli.FlagsFromParams(%q): %v", name, err))
	}
	return flagSet
}

// BindFlags registers one flag per tagged field of params:
//
//	Keep int `flag:"keep,k" default:"2" desc:"builds to keep"`
//
// The flag tag holds the long name and an optional shorthand; untagged
// fields are ignored. Defaults are parsed for the field's type, which
// must be string, bool, int, int64, time.Duration or []string. Embedded
// structs are walked, and fields implementing [FlagBinder] bind
// themselves.
func BindFlags(params any, flagSet *pflag.FlagSet) error {
	value := reflect.ValueOf(params)
	if value.Kind() != reflect.Pointer || value.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("params must be a pointer to a struct, got %T", params)
	}
	return bindStruct(value.Elem(), flagSet)
}

// flagSpec is the parsed tag set of one field.
type flagSpec struct {
	name, shorthand string
	usage           string
	fallback        string
}

func bindStruct(structValue reflect.Value, flagSet *pflag.FlagSet) error {
	structType := structValue.Type()
	for i := range structType.NumField() {
		field, fieldValue := structType.Field(i), structValue.Field(i)

		if field.IsExported() && field.Type.Kind() == reflect.Struct {
			if binder, ok := fieldValue.Addr().Interface().(FlagBinder); ok {
				binder.AddFlags(flagSet)
				continue
			}
		}
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			if err := bindStruct(fieldValue, flagSet); err != nil {
				return fmt.Errorf("embedded %s: %w", field.Name, err)
			}
			continue
		}

		tag, ok := field.Tag.Lookup("flag")
		if !ok || tag == "" {
			continue
		}
		spec := flagSpec{usage: field.Tag.Get("desc"), fallback: field.Tag.Get("default")}
		spec.name, spec.shorthand, _ = strings.Cut(tag, ",")
		if err := spec.bind(fieldValue.Addr().Interface(), flagSet); err != nil {
			return fmt.Errorf("field %s: %w", field.Name, err)
		}
	}
	return nil
}

func (s flagSpec) bind(target any, flagSet *pflag.FlagSet) error {
	var err error
	switch target := target.(type) {
	case *string:
		flagSet.StringVarP(target, s.name, s.shorthand, s.fallback, s.usage)
	case *bool:
		var fallback bool
		if fallback, err = parseFallback(s.fallback, strconv.ParseBool); err == nil {
			flagSet.BoolVarP(target, s.name, s.shorthand, fallback, s.usage)
		}
	case *int:
		var fallback int
		if fallback, err = parseFallback(s.fallback, strconv.Atoi); err == nil {
			flagSet.IntVarP(target, s.name, s.shorthand, fallback, s.usage)
		}
	case *int64:
		var fallback int64
		parseInt64 := func(text string) (int64, error) { return strconv.ParseInt(text, 10, 64) }
		if fallback, err = parseFallback(s.fallback, parseInt64); err == nil {
			flagSet.Int64VarP(target, s.name, s.shorthand, fallback, s.usage)
		}
	case *time.Duration:
		var fallback time.Duration
		if fallback, err = parseFallback(s.fallback, time.ParseDuration); err == nil {
			flagSet.DurationVarP(target, s.name, s.shorthand, fallback, s.usage)
		}
	case *[]string:
		var fallback []string
		if s.fallback != "" {
			fallback = strings.Split(s.fallback, ",")
		}
		flagSet.StringArrayVarP(target, s.name, s.shorthand, fallback, s.usage)
	default:
		return fmt.Errorf("--%s: unsupported type %T", s.name, target)
	}
	if err != nil {
		return fmt.Errorf("default for --%s: %w", s.name, err)
	}
	return nil
}

// parseFallback reads an empty default tag as the zero value.
func parseFallback[T any](text string, parse func(string) (T, error)) (T, error) {
	var zero T
	if text == "" {
		return zero, nil
	}
	return parse(text)
}
