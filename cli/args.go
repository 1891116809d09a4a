package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/saylorsolutions/patternbus/pattern"
	flag "github.com/spf13/pflag"
)

var (
	ErrArgMap = errors.New("failed to map argument(s)")
)

var _ flag.Value = (*PatternValue)(nil)

// PatternValue is a [flag.Value] for a [pattern.Pattern] in its string form, like "role:x,op:y".
// Giving the flag more than once merges the pairs, with later values replacing earlier ones.
type PatternValue struct {
	pattern.Pattern
}

func (v *PatternValue) String() string {
	if v.Pattern == nil {
		return ""
	}
	return v.Pattern.String()
}

func (v *PatternValue) Set(s string) error {
	parsed, err := pattern.Parse(s)
	if err != nil {
		return err
	}
	if v.Pattern == nil {
		v.Pattern = pattern.Pattern{}
	}
	for key, val := range parsed {
		v.Pattern[key] = val
	}
	return nil
}

func (v *PatternValue) Type() string {
	return "pattern"
}

// PatternsValue is a [flag.Value] that collects each given pattern separately.
type PatternsValue struct {
	Patterns []pattern.Pattern
}

func (v *PatternsValue) String() string {
	strs := make([]string, len(v.Patterns))
	for i, p := range v.Patterns {
		strs[i] = "{" + p.String() + "}"
	}
	return strings.Join(strs, " ")
}

func (v *PatternsValue) Set(s string) error {
	parsed, err := pattern.Parse(s)
	if err != nil {
		return err
	}
	v.Patterns = append(v.Patterns, parsed)
	return nil
}

func (v *PatternsValue) Type() string {
	return "patterns"
}

// PatternArg parses the positional argument at index i as a [pattern.Pattern].
func PatternArg(args []string, i int) (pattern.Pattern, error) {
	if i >= len(args) {
		return nil, NewUsageError("%w: missing pattern argument", ErrArgMap)
	}
	p, err := pattern.Parse(args[i])
	if err != nil {
		return nil, NewUsageError("%w: %w", ErrArgMap, err)
	}
	return p, nil
}

// PayloadArg interprets the positional argument at index i as a message payload.
// Valid JSON is decoded, anything else is used as a plain string.
// A missing argument results in a nil payload.
func PayloadArg(args []string, i int) any {
	if i >= len(args) {
		return nil
	}
	var payload any
	if err := json.Unmarshal([]byte(args[i]), &payload); err != nil {
		return args[i]
	}
	return payload
}

// MapArgs is an easy way to map arguments to variables (targets), and require a certain amount.
// This will return an error if there are not enough args and/or targets to satisfy the amount required by minArgs.
func MapArgs(args []string, minArgs int, targets ...*string) error {
	if len(args) < minArgs {
		return NewUsageError("%w: not enough arguments (%d) to satisfy minArgs (%d)", ErrArgMap, len(args), minArgs)
	}
	if len(targets) < minArgs {
		return fmt.Errorf("%w: not enough targets (%d) to satisfy minArgs (%d)", ErrArgMap, len(targets), minArgs)
	}
	for i := 0; i < len(args) && i < len(targets); i++ {
		if targets[i] == nil {
			return fmt.Errorf("%w: target %d is nil", ErrArgMap, i)
		}
		*targets[i] = args[i]
	}
	return nil
}
