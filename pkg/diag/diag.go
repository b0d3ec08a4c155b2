// Package diag reports compiler warnings.
//
// The middle end never fails hard on structural or reference problems; it
// recovers and keeps generating. Everything it recovers from is routed
// through a Reporter so callers (and tests) can observe what happened.
package diag

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

type Reporter struct {
	w     io.Writer
	color bool
	count int
}

// NewReporter writes warnings to w. Color is used only when w is a terminal.
func NewReporter(w io.Writer) *Reporter {
	if w == nil {
		w = io.Discard
	}
	color := false
	if f, ok := w.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd()))
	}
	return &Reporter{w: w, color: color}
}

// Warnf reports one warning.
func (r *Reporter) Warnf(format string, args ...any) {
	r.count++
	if r.color {
		fmt.Fprint(r.w, "\033[33mwarning:\033[0m ")
	} else {
		fmt.Fprint(r.w, "warning: ")
	}
	fmt.Fprintf(r.w, format, args...)
	fmt.Fprintln(r.w)
}

// Count returns the number of warnings reported so far.
func (r *Reporter) Count() int {
	return r.count
}
