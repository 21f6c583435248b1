// Package report renders read-only views of run logs: a summary table,
// a per-case transcript, and a two-run comparison.
package report

import (
	"fmt"
	"io"
)

// Printer is the output sink contract. Reporters emit whole lines and
// never talk to a terminal directly.
type Printer interface {
	Print(line string)
}

// WriterPrinter adapts an io.Writer into a Printer.
type WriterPrinter struct {
	W io.Writer
}

// Print writes one line followed by a newline.
func (p WriterPrinter) Print(line string) {
	fmt.Fprintln(p.W, line)
}

// LinesPrinter collects lines in memory, for tests and buffering.
type LinesPrinter struct {
	Lines []string
}

// Print appends one line.
func (p *LinesPrinter) Print(line string) {
	p.Lines = append(p.Lines, line)
}
