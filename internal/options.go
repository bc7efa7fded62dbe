package internal

import (
	"errors"
	"fmt"
	"regexp"
)

// Options holds the loosely typed options handed to GetWebConfig or GetNodeConfig.
// Values usually come straight out of a YAML or JSON decoder, so slices arrive as
// []any and objects as map[string]any.
type Options map[string]any

var ErrInvalidOption = errors.New("invalid option")

// InvalidOptionError names the option that failed validation and the shape it should have had.
type InvalidOptionError struct {
	Option   string
	Expected string
	Value    any
}

func (e *InvalidOptionError) Error() string {
	return fmt.Sprintf("invalid option '%s': expected %s, got %s", e.Option, e.Expected, describe(e.Value))
}

func (e *InvalidOptionError) Is(target error) bool {
	return target == ErrInvalidOption
}

func describe(v any) string {
	switch value := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("string %q", value)
	case *regexp.Regexp:
		return fmt.Sprintf("regexp /%s/", value)
	default:
		return fmt.Sprintf("%T %v", v, v)
	}
}

// field is one row of an option table.
type field[T any] struct {
	name     string
	expected string
	// fallback builds a fresh default on every call.
	fallback func() any
	valid    func(any) bool
	assign   func(*T, any) error
}

type schema[T any] []field[T]

// decode applies defaults, validates every known option in table order and
// fills the typed options. Unknown keys are ignored.
func (s schema[T]) decode(opts Options) (T, error) {
	var out T
	for _, f := range s {
		v, ok := opts[f.name]
		if !ok {
			v = f.fallback()
		} else if !f.valid(v) {
			return out, &InvalidOptionError{Option: f.name, Expected: f.expected, Value: v}
		}
		if err := f.assign(&out, v); err != nil {
			return out, &InvalidOptionError{Option: f.name, Expected: fmt.Sprintf("%s (%v)", f.expected, err), Value: v}
		}
	}
	return out, nil
}

func (s schema[T]) names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.name
	}
	return names
}

func constant[V any](v V) func() any {
	return func() any { return v }
}

func stringList(values ...string) func() any {
	return func() any {
		out := make([]string, len(values))
		copy(out, values)
		return out
	}
}
