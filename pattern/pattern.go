package pattern

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

var (
	ErrNonScalar = errors.New("pattern values must be scalar")
	ErrSyntax    = errors.New("invalid pattern syntax")
)

const (
	// NullValue is the canonical rendering of nil and NaN values.
	NullValue = "null"
	// UnsupportedValue is the canonical rendering of non-scalar values.
	// Distinct non-scalar values are indistinguishable once rendered, which is why channel verbs reject them with [Pattern.Validate].
	UnsupportedValue = "[unsupported]"

	pairSep  = ','
	valueSep = ':'
	escape   = '\\'
)

// Pattern is a structured message address made of keys and scalar values.
// A Pattern is never modified by this module.
type Pattern map[string]any

// String returns the canonical form of the Pattern.
// Keys are sorted and rendered as key:value, joined by commas.
// Commas, colons, and backslashes in keys and values are escaped with a backslash.
func (p Pattern) String() string {
	key, _ := canonical(p)
	return key
}

// Keys returns the keys of the Pattern in sorted order.
func (p Pattern) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Clone returns a shallow copy of the Pattern.
func (p Pattern) Clone() Pattern {
	if p == nil {
		return nil
	}
	cp := make(Pattern, len(p))
	for k, v := range p {
		cp[k] = v
	}
	return cp
}

// With returns a copy of the Pattern with key set to val.
func (p Pattern) With(key string, val any) Pattern {
	cp := p.Clone()
	if cp == nil {
		cp = Pattern{}
	}
	cp[key] = val
	return cp
}

// Covers reports whether every key:value pair of other is also present in p.
// Every Pattern covers the empty Pattern.
func (p Pattern) Covers(other Pattern) bool {
	_, pairs := canonical(p)
	_, otherPairs := canonical(other)
	return isSubset(otherPairs, pairs)
}

// Validate returns an error naming every key with a non-scalar value.
// Scalar values are strings, booleans, integers, and floats (including named types with those kinds), and nil.
func (p Pattern) Validate() error {
	var errs []error
	for _, k := range p.Keys() {
		if _, ok := scalarString(p[k]); !ok {
			errs = append(errs, fmt.Errorf("%w: key '%s' has type %T", ErrNonScalar, k, p[k]))
		}
	}
	return errors.Join(errs...)
}

// Parse reads a Pattern from its canonical form, e.g. "role:user,cmd:create".
// Values are always parsed as strings, which match numbers and booleans with the same canonical rendering.
// An empty (or all-space) string yields the empty Pattern.
func Parse(s string) (Pattern, error) {
	p := Pattern{}
	if len(strings.TrimSpace(s)) == 0 {
		return p, nil
	}
	for _, pair := range splitUnescaped(s, pairSep) {
		parts := splitUnescaped(pair, valueSep)
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: missing ':' in '%s'", ErrSyntax, pair)
		}
		key := strings.TrimSpace(unescape(parts[0]))
		if len(key) == 0 {
			return nil, fmt.Errorf("%w: empty key in '%s'", ErrSyntax, pair)
		}
		if _, ok := p[key]; ok {
			return nil, fmt.Errorf("%w: duplicate key '%s'", ErrSyntax, key)
		}
		// Only the first separator splits, the rest belongs to the value.
		rest := strings.Join(parts[1:], string(valueSep))
		p[key] = unescape(rest)
	}
	return p, nil
}

// MustParse is like [Parse], but panics on error.
func MustParse(s string) Pattern {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

func canonical(p Pattern) (string, map[string]string) {
	pairs := make(map[string]string, len(p))
	if len(p) == 0 {
		return "", pairs
	}
	keys := p.Keys()
	var buf strings.Builder
	for i, k := range keys {
		val, _ := scalarString(p[k])
		pairs[k] = val
		if i > 0 {
			buf.WriteRune(pairSep)
		}
		buf.WriteString(escapeString(k))
		buf.WriteRune(valueSep)
		buf.WriteString(escapeString(val))
	}
	return buf.String(), pairs
}

func isSubset(sub, super map[string]string) bool {
	if len(sub) > len(super) {
		return false
	}
	for k, v := range sub {
		if sv, ok := super[k]; !ok || sv != v {
			return false
		}
	}
	return true
}

func scalarString(val any) (string, bool) {
	switch v := val.(type) {
	case nil:
		return NullValue, true
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		return formatFloat(v), true
	}
	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32, reflect.Float64:
		return formatFloat(rv.Float()), true
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			return NullValue, true
		}
	}
	return UnsupportedValue, false
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return NullValue
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		// Negative zero renders like zero.
		return "0"
	case math.Abs(f) >= 1e21:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func escapeString(s string) string {
	if !strings.ContainsAny(s, `\,:`) {
		return s
	}
	var buf strings.Builder
	for _, r := range s {
		if r == escape || r == pairSep || r == valueSep {
			buf.WriteRune(escape)
		}
		buf.WriteRune(r)
	}
	return buf.String()
}

func unescape(s string) string {
	if !strings.ContainsRune(s, escape) {
		return s
	}
	var (
		buf     strings.Builder
		escaped bool
	)
	for _, r := range s {
		if !escaped && r == escape {
			escaped = true
			continue
		}
		escaped = false
		buf.WriteRune(r)
	}
	return buf.String()
}

// splitUnescaped splits s on sep, ignoring separators preceded by the escape rune.
// Escapes are preserved in the output so that later splits see them too.
func splitUnescaped(s string, sep rune) []string {
	var (
		parts   []string
		buf     strings.Builder
		escaped bool
	)
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == escape:
			escaped = true
		case r == sep:
			parts = append(parts, buf.String())
			buf.Reset()
			continue
		}
		buf.WriteRune(r)
	}
	return append(parts, buf.String())
}
