package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Printer separates command results from diagnostic output.
// Results go to STDOUT so they can be piped, everything else goes to STDERR.
type Printer struct {
	out    io.Writer
	errOut io.Writer
}

func NewPrinter() *Printer {
	return &Printer{out: os.Stdout, errOut: os.Stderr}
}

// Redirect sends results to out and diagnostics to errOut.
func (p *Printer) Redirect(out, errOut io.Writer) {
	p.out = out
	p.errOut = errOut
}

func (p *Printer) Print(msg ...any) {
	_, _ = fmt.Fprint(p.errOut, msg...)
}

func (p *Printer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.errOut, format, args...)
}

func (p *Printer) Println(msg ...any) {
	_, _ = fmt.Fprintln(p.errOut, msg...)
}

func (p *Printer) Errorln(msg ...any) {
	_, _ = fmt.Fprintln(p.errOut, append([]any{"Error:"}, msg...)...)
}

// Result writes val to STDOUT as indented JSON.
func (p *Printer) Result(val any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(val)
}
