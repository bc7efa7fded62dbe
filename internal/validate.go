package internal

import (
	"fmt"
	"math"
	"path/filepath"
	"reflect"
	"regexp"

	"github.com/go-viper/mapstructure/v2"
)

const (
	expectAbsolutePath   = "an absolute path or an empty string"
	expectNonEmptyString = "a non-empty string"
	expectString         = "a string"
	expectOptionalString = "a string or nothing"
	expectEntry          = "an object mapping names to a path or a list of paths"
	expectBool           = "a boolean"
	expectList           = "an array"
	expectStringList     = "an array of strings"
	expectObjectList     = "an array of objects"
	expectNumber         = "a finite number"
	expectPort           = "a port number between 1 and 65535"
	expectRegexp         = "a regular expression"
	expectESTarget       = "an ECMAScript target such as es2017 or esnext"
)

func isAbsolutePath(v any) bool {
	s, ok := v.(string)
	return ok && (s == "" || filepath.IsAbs(s))
}

func isNonEmptyString(v any) bool {
	s, ok := v.(string)
	return ok && s != ""
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

func isOptionalString(v any) bool {
	return v == nil || isString(v)
}

func isBool(v any) bool {
	_, ok := v.(bool)
	return ok
}

func isRegexp(v any) bool {
	re, ok := v.(*regexp.Regexp)
	return ok && re != nil
}

func isESTarget(v any) bool {
	s, ok := v.(string)
	if !ok || s == "" {
		return false
	}
	_, err := ParseESTarget(s)
	return err == nil
}

// isList reports whether v is a slice. Element types are not inspected.
func isList(v any) bool {
	if v == nil {
		return false
	}
	return reflect.TypeOf(v).Kind() == reflect.Slice
}

func isStringList(v any) bool {
	switch list := v.(type) {
	case []string:
		return true
	case []any:
		for _, item := range list {
			if _, ok := item.(string); !ok {
				return false
			}
		}
		return true
	}
	return false
}

func isObjectList(v any) bool {
	switch list := v.(type) {
	case []map[string]any, []CopyPattern, []InjectPattern, []Page:
		return true
	case []any:
		for _, item := range list {
			if _, ok := item.(map[string]any); !ok {
				return false
			}
		}
		return true
	}
	return false
}

func isEntry(v any) bool {
	switch entry := v.(type) {
	case map[string]string, map[string][]string:
		return true
	case map[string]any:
		for _, files := range entry {
			if _, ok := files.(string); ok {
				continue
			}
			if !isStringList(files) {
				return false
			}
		}
		return true
	}
	return false
}

func toFloat(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

func isNumber(v any) bool {
	f, ok := toFloat(v)
	return ok && !math.IsNaN(f) && !math.IsInf(f, 0)
}

func isPort(v any) bool {
	if !isNumber(v) {
		return false
	}
	f, _ := toFloat(v)
	return f > 0 && f <= math.MaxUint16 && f == math.Trunc(f)
}

// asStrings flattens a validated list. Non-string elements of loosely
// checked lists are formatted with fmt.
func asStrings(v any) []string {
	switch list := v.(type) {
	case []string:
		out := make([]string, len(list))
		copy(out, list)
		return out
	case string:
		return []string{list}
	}
	rv := reflect.ValueOf(v)
	out := make([]string, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out = append(out, fmt.Sprint(rv.Index(i).Interface()))
	}
	return out
}

func asEntry(v any) map[string][]string {
	out := make(map[string][]string)
	switch entry := v.(type) {
	case map[string]string:
		for name, file := range entry {
			out[name] = []string{file}
		}
	case map[string][]string:
		for name, files := range entry {
			out[name] = asStrings(files)
		}
	case map[string]any:
		for name, files := range entry {
			out[name] = asStrings(files)
		}
	}
	return out
}

func asNumber(v any) float64 {
	f, _ := toFloat(v)
	return f
}

func asOptionalString(v any) string {
	if v == nil {
		return ""
	}
	return v.(string)
}

// decodeObjects turns a validated object list into typed values. Missing keys
// stay zero and scalar fields are converted leniently.
func decodeObjects[T any](v any) ([]T, error) {
	if typed, ok := v.([]T); ok {
		out := make([]T, len(typed))
		copy(out, typed)
		return out, nil
	}
	var out []T
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(v); err != nil {
		return nil, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}
