// Serial character LCD sink
//
// The original station drives a 16x2 LCD; here it hangs off a serial
// adapter. Lines are truncated or padded to the panel width and the
// two rows scroll: each new line pushes the previous one up.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package display

import (
	"fmt"
	"io"
	"sync"

	"github.com/tarm/serial"
)

// lcdWidth is the character width of the panel.
const lcdWidth = 16

// lcdFormFeed clears the panel on the common serial LCD backpacks.
const lcdFormFeed = 0x0C

// SerialLCD writes status lines to a serial character display.
type SerialLCD struct {
	mu   sync.Mutex
	port io.WriteCloser
	rows [2]string
}

// NewSerialLCD opens the display on the given device at 9600 baud.
func NewSerialLCD(device string) (*SerialLCD, error) {
	port, err := serial.OpenPort(&serial.Config{Name: device, Baud: 9600})
	if err != nil {
		return nil, fmt.Errorf("lcd: open %s: %w", device, err)
	}
	return &SerialLCD{port: port}, nil
}

// newSerialLCDWriter wires an arbitrary writer (for testing).
func newSerialLCDWriter(w io.WriteCloser) *SerialLCD {
	return &SerialLCD{port: w}
}

func fitLCD(text string) string {
	if len(text) > lcdWidth {
		return text[:lcdWidth]
	}
	for len(text) < lcdWidth {
		text += " "
	}
	return text
}

// WriteLine implements Sink: the new line lands on the bottom row, the
// previous bottom row moves up.
func (l *SerialLCD) WriteLine(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rows[0] = l.rows[1]
	l.rows[1] = fitLCD(text)

	buf := make([]byte, 0, 2*lcdWidth+1)
	buf = append(buf, lcdFormFeed)
	buf = append(buf, fitLCD(l.rows[0])...)
	buf = append(buf, l.rows[1]...)
	l.port.Write(buf)
}

// Close implements Sink.
func (l *SerialLCD) Close() error {
	return l.port.Close()
}
