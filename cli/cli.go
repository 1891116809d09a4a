package cli

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	flag "github.com/spf13/pflag"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	HelpPatterns      = []string{"--help", "-h", "help"} // HelpPatterns are the arguments that print usage for a [CommandSet].

	keyCleansePattern = regexp.MustCompile(`\s`)
)

// CommandFunc is a function that may be executed within a [Command].
// Positional arguments are available with flags.Args().
type CommandFunc = func(ctx context.Context, flags *flag.FlagSet, printer *Printer) error

// PreExec is run before a [Command] executes, after flags are parsed.
// Returning an error stops the command from running.
type PreExec func(ctx context.Context) error

// Command is a single sub-command of a [CommandSet].
type Command struct {
	key        string
	parent     string
	shortUsage string
	usage      string
	aliases    []string
	flags      *flag.FlagSet
	exec       CommandFunc
	printer    *Printer
}

func cleanseKey(key string) string {
	return keyCleansePattern.ReplaceAllString(strings.ToLower(key), "")
}

// Does specifies the [CommandFunc] that should be executed by this [Command].
func (c *Command) Does(commandFunc CommandFunc) *Command {
	if commandFunc == nil {
		return c
	}
	c.exec = commandFunc
	return c
}

// Usage sets the longer description printed with -h or --help.
// The short description and flag usages are added to it.
func (c *Command) Usage(format string, args ...any) *Command {
	c.usage = fmt.Sprintf(format, args...)
	return c
}

// Flags returns the [flag.FlagSet] for this [Command].
func (c *Command) Flags() *flag.FlagSet {
	return c.flags
}

// CommandPath returns the full invocation of this [Command].
func (c *Command) CommandPath() string {
	return strings.TrimSpace(c.parent + " " + c.key)
}

func (c *Command) printUsage() {
	var buf strings.Builder
	buf.WriteString(c.shortUsage)
	buf.WriteString("\n")
	if len(c.usage) > 0 {
		buf.WriteString("\nUSAGE:\n")
		buf.WriteString(c.CommandPath() + " " + strings.TrimSuffix(c.usage, "\n") + "\n")
	}
	buf.WriteString("\nFLAGS\n")
	buf.WriteString(c.flags.FlagUsages())
	c.printer.Print(buf.String())
}

func (c *Command) run(ctx context.Context, args []string, before []PreExec) error {
	if err := c.flags.Parse(args); err != nil {
		return &UsageError{Command: c.CommandPath(), Err: err}
	}
	if val, _ := c.flags.GetBool("help"); val {
		c.printUsage()
		return nil
	}
	if c.exec == nil {
		c.printUsage()
		return nil
	}
	for _, fn := range before {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	err := c.exec(ctx, c.flags, c.printer)
	if attributeUsage(err, c.CommandPath()) {
		c.printer.Errorln(err)
		c.printUsage()
	}
	return err
}

// CommandSet is the root of a CLI, holding its sub-commands.
type CommandSet struct {
	name     string
	commands map[string]*Command
	aliases  map[string]*Command
	before   []PreExec
	printer  *Printer
}

// NewCommandSet creates a [CommandSet] for the CLI invoked as name.
func NewCommandSet(name string) *CommandSet {
	return &CommandSet{
		name:     name,
		commands: map[string]*Command{},
		aliases:  map[string]*Command{},
		printer:  NewPrinter(),
	}
}

// Printer returns the [Printer] shared by every [Command] in the set.
func (s *CommandSet) Printer() *Printer {
	return s.printer
}

// Before registers fn to run before any [Command] in the set executes.
// Passing a nil function will panic.
func (s *CommandSet) Before(fn PreExec) {
	if fn == nil {
		panic("nil pre-exec function")
	}
	s.before = append(s.before, fn)
}

// AddCommand adds a sub-command to this [CommandSet].
// The key and aliases are cleansed to remove spaces, and normalized to lower-case.
func (s *CommandSet) AddCommand(key, shortUsage string, aliases ...string) *Command {
	key = cleanseKey(key)
	fs := flag.NewFlagSet(key, flag.ContinueOnError)
	fs.BoolP("help", "h", false, "Prints this usage information")
	fs.SetInterspersed(false)
	fs.SetOutput(s.printer.errOut)
	cmd := &Command{
		key:        key,
		parent:     s.name,
		shortUsage: shortUsage,
		flags:      fs,
		printer:    s.printer,
	}
	s.commands[key] = cmd
	for _, alias := range aliases {
		alias = cleanseKey(alias)
		if len(alias) == 0 {
			continue
		}
		s.aliases[alias] = cmd
		cmd.aliases = append(cmd.aliases, alias)
	}
	slices.Sort(cmd.aliases)
	return cmd
}

// Exec runs the sub-command named by the first argument.
// Usage is printed if args is empty or starts with one of [HelpPatterns].
func (s *CommandSet) Exec(ctx context.Context, args []string) error {
	if len(args) == 0 || slices.Contains(HelpPatterns, args[0]) {
		s.PrintUsage()
		if len(args) == 0 {
			return fmt.Errorf("%w: no arguments", ErrUnknownCommand)
		}
		return nil
	}
	key := strings.ToLower(args[0])
	cmd, ok := s.commands[key]
	if !ok {
		cmd, ok = s.aliases[key]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownCommand, args[0])
		}
	}
	return cmd.run(ctx, args[1:], s.before)
}

// PrintUsage prints the sub-commands of the set.
func (s *CommandSet) PrintUsage() {
	s.printer.Printf("USAGE:\n%s COMMAND [FLAGS...] [ARGS...]\n\nCOMMANDS:\n%s", s.name, s.CommandUsages())
}

// CommandUsages returns usage information for every sub-command, sorted by key.
func (s *CommandSet) CommandUsages() string {
	keys := make([]string, 0, len(s.commands))
	for key := range s.commands {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	var (
		names  = make([]string, len(keys))
		maxLen int
	)
	for i, key := range keys {
		names[i] = strings.Join(append([]string{key}, s.commands[key].aliases...), ", ")
		maxLen = max(maxLen, len(names[i]))
	}
	var buf strings.Builder
	fmtStr := fmt.Sprintf("  %%-%ds\t%%s\n", maxLen)
	for i, key := range keys {
		buf.WriteString(fmt.Sprintf(fmtStr, names[i], s.commands[key].shortUsage))
	}
	return buf.String()
}
