package log

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func fixedNow() time.Time {
	return time.Date(2026, 3, 14, 9, 26, 53, 589_000_000, time.UTC)
}

func newTestLogger(buf *bytes.Buffer) *Logger {
	l := New("test")
	l.SetWriter(buf)
	l.SetColorize(false)
	l.SetNowFunc(fixedNow)
	return l
}

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf)
	l.SetLevel(WARN)

	l.Debug("nope")
	l.Info("nope")
	l.Warn("warned")
	l.Error("errored")

	out := buf.String()
	if strings.Contains(out, "nope") {
		t.Errorf("messages below level were written: %q", out)
	}
	if !strings.Contains(out, "warned") || !strings.Contains(out, "errored") {
		t.Errorf("messages at or above level missing: %q", out)
	}
}

func TestFormat(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf)

	l.Info("homing at %d us", 1700)

	want := "2026-03-14 09:26:53.589 [INFO ] test: homing at 1700 us\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestFieldsSorted(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf)

	l.InfoFields("stroke done", Fields{"steps": 175, "dir": "final", "axis": "linear"})

	want := "stroke done {axis=linear, dir=final, steps=175}"
	if !strings.Contains(buf.String(), want) {
		t.Errorf("fields not sorted/formatted: %q", buf.String())
	}
}

func TestColorize(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf)
	l.SetColorize(true)

	l.Error("bad")
	if !strings.Contains(buf.String(), "\x1b[31m") || !strings.Contains(buf.String(), "\x1b[0m") {
		t.Errorf("expected ANSI color codes: %q", buf.String())
	}
}

func TestSub(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf)
	l.SetLevel(DEBUG)

	sub := l.Sub("pulse")
	sub.Debug("tick")

	if !strings.Contains(buf.String(), "test/pulse: tick") {
		t.Errorf("sub-logger prefix wrong: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DEBUG,
		"INFO":    INFO,
		"Warning": WARN,
		"error":   ERROR,
		"bogus":   INFO,
	}
	for s, want := range cases {
		if got := ParseLevel(s); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", s, got, want)
		}
	}
}
