package logger

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// Options controls verbosity of the CLI logger.
type Options struct {
	Quiet   bool
	Verbose bool
}

// New returns a structured logger writing to w. Quiet keeps warnings and errors only;
// Verbose enables per-item debug lines.
func New(w io.Writer, opts Options) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := log.InfoLevel
	switch {
	case opts.Quiet:
		level = log.WarnLevel
	case opts.Verbose:
		level = log.DebugLevel
	}
	return log.NewWithOptions(w, log.Options{
		Level:           level,
		ReportTimestamp: opts.Verbose,
	})
}

// Null returns a logger that discards everything.
func Null() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

// OrNull returns l, or a discarding logger when l is nil.
func OrNull(l *log.Logger) *log.Logger {
	if l == nil {
		return Null()
	}
	return l
}

// Phase tracks progress of one named step (e.g. "deploy", "commit").
type Phase struct {
	l         *log.Logger
	name      string
	total     int
	processed int
}

// StartPhase logs the beginning of a phase with its item count.
func StartPhase(l *log.Logger, phase string, totalItems int) *Phase {
	l = OrNull(l)
	l.Debug("starting phase", "phase", phase, "items", totalItems)
	return &Phase{l: l, name: phase, total: totalItems}
}

// Item records one processed item. Skipped items are logged at debug level only.
func (p *Phase) Item(item string, action string) {
	p.processed++
	if action == "skip" {
		p.l.Debug(action, "phase", p.name, "path", item)
		return
	}
	p.l.Info(action, "phase", p.name, "path", item)
}

// Complete logs the end of the phase and returns the number of processed items.
func (p *Phase) Complete() int {
	p.l.Debug("phase complete", "phase", p.name, "processed", p.processed, "items", p.total)
	return p.processed
}
