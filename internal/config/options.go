package config

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Options is a loosely typed option bag decoded from JSON config
// ("parser.options" and similar). Accessors never fail: a missing or
// mistyped key yields the supplied default.
type Options map[string]any

// Bool returns opts[key] as a bool. Accepts JSON booleans and the strings
// "true"/"false"/"1"/"0".
func (o Options) Bool(key string, def bool) bool {
	v, ok := o[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
			return b
		}
	}
	return def
}

// Int returns opts[key] as an int. JSON numbers decode as float64, so both
// float64 and numeric strings are accepted.
func (o Options) Int(key string, def int) int {
	v, ok := o[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
	}
	return def
}

// String returns opts[key] as a string.
func (o Options) String(key string, def string) string {
	if s, ok := o[key].(string); ok {
		return s
	}
	return def
}

// Rune returns the first rune of a string option. Used for delimiters.
func (o Options) Rune(key string, def rune) rune {
	switch t := o[key].(type) {
	case string:
		if t == "" {
			return def
		}
		r, _ := utf8.DecodeRuneInString(t)
		if r == utf8.RuneError {
			return def
		}
		return r
	case rune:
		return t
	}
	return def
}

// StringMap returns opts[key] as map[string]string, dropping non-string values.
func (o Options) StringMap(key string) map[string]string {
	out := map[string]string{}
	switch t := o[key].(type) {
	case map[string]string:
		for k, v := range t {
			out[k] = v
		}
	case map[string]any:
		for k, v := range t {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
	}
	return out
}

// With returns a copy of o with key set to v. The receiver is not modified.
func (o Options) With(key string, v any) Options {
	out := make(Options, len(o)+1)
	for k, val := range o {
		out[k] = val
	}
	out[key] = v
	return out
}
