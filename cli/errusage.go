package cli

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUsage = errors.New("invalid usage")
)

// UsageError reports that a [Command] was invoked incorrectly, such as with a missing or malformed argument.
// It matches [ErrUsage] with [errors.Is], as well as the error it carries.
type UsageError struct {
	// Command is the path of the command that was misused, like "patternbus request".
	// A command fills this in when one of its own errors leaves it empty.
	Command string
	Err     error
}

func (e *UsageError) Error() string {
	var buf strings.Builder
	if len(e.Command) > 0 {
		buf.WriteString(e.Command)
		buf.WriteString(": ")
	}
	buf.WriteString(ErrUsage.Error())
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

func (e *UsageError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUsage}
	}
	return []error{ErrUsage, e.Err}
}

// NewUsageError creates a [UsageError] with an error formatted by [fmt.Errorf].
func NewUsageError(format string, args ...any) error {
	return &UsageError{Err: fmt.Errorf(format, args...)}
}

// attributeUsage reports whether err is a [UsageError], naming cmd as the misused command if none is set.
func attributeUsage(err error, cmd string) bool {
	var usageErr *UsageError
	if !errors.As(err, &usageErr) {
		return false
	}
	if len(usageErr.Command) == 0 {
		usageErr.Command = cmd
	}
	return true
}
