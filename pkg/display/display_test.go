package display

import (
	"bytes"
	"strings"
	"testing"
)

func TestConsolePlainLine(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole()
	c.SetWriter(&buf)

	c.WriteLine("LOAD WORKPIECE")
	if got := buf.String(); got != "LOAD WORKPIECE\n" {
		t.Errorf("got %q", got)
	}
}

func TestConsoleHighlightsAlarms(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole()
	c.SetWriter(&buf)

	c.WriteLine("SAFETY PAUSE")
	c.WriteLine("PERMIT DENIED")

	out := buf.String()
	if !strings.Contains(out, "SAFETY PAUSE") || !strings.Contains(out, "PERMIT DENIED") {
		t.Errorf("lines missing from output: %q", out)
	}
}

type closableBuffer struct {
	bytes.Buffer
	closed bool
}

func (b *closableBuffer) Close() error {
	b.closed = true
	return nil
}

func TestSerialLCDFormatsRows(t *testing.T) {
	var buf closableBuffer
	l := newSerialLCDWriter(&buf)

	l.WriteLine("FINDING HOME")
	l.WriteLine("PRESS START")

	out := buf.String()
	// Second write: top row is the pushed-up first line, bottom the
	// new one, both padded to the panel width.
	if !strings.Contains(out, fitLCD("FINDING HOME")+fitLCD("PRESS START")) {
		t.Errorf("rows not scrolled/padded: %q", out)
	}

	if err := l.Close(); err != nil || !buf.closed {
		t.Error("Close should close the port")
	}
}

func TestFitLCD(t *testing.T) {
	if got := fitLCD("A VERY LONG STATUS LINE"); len(got) != lcdWidth {
		t.Errorf("long line not truncated: %q", got)
	}
	if got := fitLCD("HOME"); got != "HOME            " {
		t.Errorf("short line not padded: %q", got)
	}
}

func TestMultiFansOut(t *testing.T) {
	var a, b bytes.Buffer
	ca := NewConsole()
	ca.SetWriter(&a)
	cb := NewConsole()
	cb.SetWriter(&b)

	m := NewMulti(ca, cb)
	m.WriteLine("CYCLE 1")
	if !strings.Contains(a.String(), "CYCLE 1") || !strings.Contains(b.String(), "CYCLE 1") {
		t.Error("line did not reach every sink")
	}
	if err := m.Close(); err != nil {
		t.Error(err)
	}
}

func TestNop(t *testing.T) {
	var n Nop
	n.WriteLine("anything")
	if err := n.Close(); err != nil {
		t.Error(err)
	}
}
