package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// progressLine redraws a single terminal line as the install advances.
type progressLine struct {
	out     io.Writer
	printer *message.Printer
	drawn   bool
}

func newProgressLine(out io.Writer) *progressLine {
	return &progressLine{out: out, printer: message.NewPrinter(language.English)}
}

func (p *progressLine) update(done, total int64) {
	p.drawn = true
	fmt.Fprint(p.out, "\r\x1b[K"+formatProgress(p.printer, done, total))
}

func (p *progressLine) finish() {
	if p.drawn {
		fmt.Fprintln(p.out)
	}
}

func formatProgress(printer *message.Printer, done, total int64) string {
	if total <= 0 {
		return printer.Sprintf("installing: %d", done)
	}
	percent := float64(done) * 100 / float64(total)
	return printer.Sprintf("installing: %d / %d (%.1f%%)", done, total, percent)
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
