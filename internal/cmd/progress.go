package cmd

import (
	"fmt"
	"io"
	"sync"
)

// progressPrinter renders download and extract progress on one
// terminal line. Terminal events (completed > 0) are committed with a
// newline so the history of finished items stays visible.
type progressPrinter struct {
	mu  sync.Mutex
	out io.Writer
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out}
}

func (p *progressPrinter) observe(completed, total int, label string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if completed == 0 {
		fmt.Fprintf(p.out, "\r%-100.100s", label)
		return
	}
	fmt.Fprintf(p.out, "\r[%d/%d] %-90.90s\n", completed, total, label)
}
