// Package cairnlog is the engine's logger: every message is prefixed
// with the time elapsed since the command started, matching the
// teacher's tool-output convention.
//
// Grounded on database/mpt/io/log.go, kept almost structurally
// identical and renamed; Warn/Error are added on top of Print/Printf
// since the backup/restore walkers need to distinguish a skipped,
// path-tagged problem from a fatal one in their own log stream.
package cairnlog

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

// Log is the engine's elapsed-time logger.
type Log struct {
	start  time.Time
	logger *log.Logger
	quiet  bool
	debug  bool
}

// New creates a logger writing to os.Stderr.
func New() *Log {
	return NewWithWriter(os.Stderr)
}

// NewWithWriter creates a logger writing to w.
func NewWithWriter(w io.Writer) *Log {
	return &Log{start: time.Now(), logger: log.New(w, "", 0)}
}

// SetQuiet suppresses Print/Printf/Debugf but never Warn/Error.
func (l *Log) SetQuiet(quiet bool) { l.quiet = quiet }

// SetDebug enables Debugf output.
func (l *Log) SetDebug(debug bool) { l.debug = debug }

func (l *Log) elapsed() (minutes, seconds uint64) {
	t := uint64(time.Since(l.start).Seconds())
	return t / 60, t % 60
}

// Print logs a message prefixed with elapsed time.
func (l *Log) Print(msg string) {
	if l.quiet {
		return
	}
	m, s := l.elapsed()
	l.logger.Printf("[t=%4d:%02d] %s", m, s, msg)
}

// Printf logs a formatted message prefixed with elapsed time.
func (l *Log) Printf(format string, v ...any) {
	l.Print(fmt.Sprintf(format, v...))
}

// Debugf logs a formatted message only when debug output is enabled.
func (l *Log) Debugf(format string, v ...any) {
	if !l.debug || l.quiet {
		return
	}
	m, s := l.elapsed()
	l.logger.Printf("[t=%4d:%02d] debug: %s", m, s, fmt.Sprintf(format, v...))
}

// Warnf logs a path-tagged, non-fatal problem; printed even in quiet
// mode.
func (l *Log) Warnf(path string, format string, v ...any) {
	m, s := l.elapsed()
	l.logger.Printf("[t=%4d:%02d] warn: %s: %s", m, s, path, fmt.Sprintf(format, v...))
}

// Errorf logs a fatal problem before it propagates; printed even in
// quiet mode.
func (l *Log) Errorf(format string, v ...any) {
	m, s := l.elapsed()
	l.logger.Printf("[t=%4d:%02d] error: %s", m, s, fmt.Sprintf(format, v...))
}

// ProgressLogger tracks and periodically logs throughput for a
// long-running step (e.g. blocks uploaded).
type ProgressLogger struct {
	log            *Log
	start          time.Time
	format         string
	window         int
	counter, steps int
}

// NewProgressTracker creates a ProgressLogger that logs every time the
// step counter accumulates window increments.
func (l *Log) NewProgressTracker(format string, window int) *ProgressLogger {
	return &ProgressLogger{log: l, start: time.Now(), format: format, window: window}
}

// Step advances the counter by increment, logging when it crosses the
// configured window.
func (p *ProgressLogger) Step(increment int) {
	p.counter += increment
	p.steps += increment

	if p.steps >= p.window {
		now := time.Now()
		count := p.counter / p.window * p.window
		rate := float64(p.steps) / now.Sub(p.start).Seconds()
		p.log.Printf(p.format, count, rate)
		p.steps = 0
		p.start = now
	}
}

// Counter returns the current accumulated count.
func (p *ProgressLogger) Counter() int { return p.counter }
