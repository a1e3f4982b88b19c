// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package main

import (
	"fmt"
	"io"
	"time"
)

// progress reports what a command is doing with the elapsed time.
type progress struct {
	w       io.Writer
	start   time.Time
	verbose bool
	now     func() time.Time
}

func newProgress(w io.Writer, verbose bool) *progress {
	return &progress{w: w, start: time.Now(), verbose: verbose, now: time.Now}
}

// logf prints a progress message prefixed with the elapsed time.
func (p *progress) logf(format string, args ...any) {
	elapsed := p.now().Sub(p.start)
	mins := int(elapsed.Minutes())
	secs := int(elapsed.Seconds()) % 60
	fmt.Fprintf(p.w, "[%02d:%02d] %s\n", mins, secs, fmt.Sprintf(format, args...))
}

// verbosef prints only in verbose mode.
func (p *progress) verbosef(format string, args ...any) {
	if p.verbose {
		p.logf(format, args...)
	}
}
