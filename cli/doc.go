/*
Package cli provides the sub-command structure used by the patternbus command.

There are a few policies for how this operates.

  - Results are written to STDOUT as JSON, and everything else goes to STDERR. This is handled by the [Printer].
  - This package uses [pflag] for posix style flags, and flags are NOT interspersed with arguments.
  - Flags apply to the command at hand. Shared setup, like logging, is done with [CommandSet.Before].
  - Patterns are given in their string form, like "role:x,op:y", with [PatternValue], [PatternsValue] or [PatternArg].

# Invocation

Invoking the CLI always follows this form:

	CLI_NAME SUB-COMMAND [FLAGS...] [ARGS...]

Just calling CLI_NAME, or passing one of [HelpPatterns], will print usage information for the tool.
The '-h' and '--help' flags are set up for every [Command], and print its usage with input from [Command.Usage].

# Usage errors

A [CommandFunc] may return a [UsageError], created with [NewUsageError], to report that the command was invoked incorrectly.
The error is attributed to the command, and printed along with its usage.
Every usage error matches [ErrUsage].
Other errors are returned from [CommandSet.Exec] without printing usage.

[pflag]: https://github.com/spf13/pflag
*/
package cli
