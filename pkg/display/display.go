// Display sinks for operator status lines
//
// The core treats the display as a write-only line stream ("LOAD
// WORKPIECE", "PAUSED", the rotation counter). Sinks: the colored
// console, the serial character LCD, a fan-out, and a no-op.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package display

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Sink consumes short status lines.
type Sink interface {
	WriteLine(text string)
	Close() error
}

// Nop discards everything.
type Nop struct{}

// WriteLine implements Sink.
func (Nop) WriteLine(string) {}

// Close implements Sink.
func (Nop) Close() error { return nil }

// Console writes status lines to a terminal, coloring the alarming
// ones.
type Console struct {
	mu  sync.Mutex
	out io.Writer

	warn  *color.Color
	alert *color.Color
}

// NewConsole creates a console sink on stderr.
func NewConsole() *Console {
	return &Console{
		out:   os.Stderr,
		warn:  color.New(color.FgYellow),
		alert: color.New(color.FgRed, color.Bold),
	}
}

// SetWriter redirects the output (for testing).
func (c *Console) SetWriter(w io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out = w
}

// WriteLine implements Sink.
func (c *Console) WriteLine(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case strings.Contains(text, "PAUSE") || strings.Contains(text, "PAUSED"):
		c.warn.Fprintln(c.out, text)
	case strings.Contains(text, "DENIED") || strings.Contains(text, "EMERGENCY"):
		c.alert.Fprintln(c.out, text)
	default:
		io.WriteString(c.out, text+"\n")
	}
}

// Close implements Sink.
func (c *Console) Close() error { return nil }

// Multi fans a line out to several sinks.
type Multi struct {
	sinks []Sink
}

// NewMulti builds a fan-out sink.
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

// WriteLine implements Sink.
func (m *Multi) WriteLine(text string) {
	for _, s := range m.sinks {
		s.WriteLine(text)
	}
}

// Close implements Sink and closes every child.
func (m *Multi) Close() error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
