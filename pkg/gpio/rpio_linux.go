// Raspberry Pi hardware backend
//
// Digital lines go through go-rpio (/dev/gpiomem). The joystick ADC is
// an MCP3008 on SPI0, driven through periph.io's SPI port registry.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/conn/spi/spireg"
	"periph.io/x/periph/host"

	"drillctl-go-migration/pkg/errors"
)

// mcp3008Channels is the channel count of the joystick ADC.
const mcp3008Channels = 8

type rpioConn struct {
	spiMu   sync.Mutex
	spiPort spi.PortCloser
	spiConn spi.Conn
}

func openRPIO(opts Options) (Conn, error) {
	if err := rpio.Open(); err != nil {
		return nil, errors.Wrap(err, errors.ErrGPIOBackend, "unable to map /dev/gpiomem").
			SetComponent("gpio")
	}

	c := &rpioConn{}

	// ADC is optional at open time: a station wired without the
	// joystick still homes and runs automatic cycles.
	if _, err := host.Init(); err != nil {
		rpio.Close()
		return nil, errors.BackendError(BackendRPIO, err)
	}
	port, err := spireg.Open(opts.SPIDev)
	if err == nil {
		conn, cerr := port.Connect(physic.MegaHertz, spi.Mode0, 8)
		if cerr != nil {
			port.Close()
		} else {
			c.spiPort = port
			c.spiConn = conn
		}
	}

	return c, nil
}

// ReadDigital implements Conn.
func (c *rpioConn) ReadDigital(pin int) int {
	if rpio.Pin(pin).Read() == rpio.High {
		return 1
	}
	return 0
}

// WriteDigital implements Conn. rpio writes are single registers, so
// the emergency-stop path may call this from a second goroutine.
func (c *rpioConn) WriteDigital(pin int, value int) {
	p := rpio.Pin(pin)
	if value != 0 {
		p.High()
	} else {
		p.Low()
	}
}

// ReadAnalog implements Conn with a 3-byte MCP3008 single-ended
// transaction.
func (c *rpioConn) ReadAnalog(channel int) (int, error) {
	if channel < 0 || channel >= mcp3008Channels {
		return 0, errors.NoSuchChannelError(channel)
	}
	if c.spiConn == nil {
		return 0, errors.Newf(errors.ErrGPIOChannel, "ADC not present (channel %d)", channel).
			SetComponent("gpio")
	}

	c.spiMu.Lock()
	defer c.spiMu.Unlock()

	tx := []byte{0x01, byte(0x08|channel) << 4, 0x00}
	rx := make([]byte, 3)
	if err := c.spiConn.Tx(tx, rx); err != nil {
		return 0, errors.Wrap(err, errors.ErrGPIOChannel,
			fmt.Sprintf("MCP3008 read channel %d", channel)).SetComponent("gpio")
	}
	return int(rx[1]&0x03)<<8 | int(rx[2]), nil
}

// NowMicros implements Conn.
func (c *rpioConn) NowMicros() uint64 { return nowMicros() }

// SleepMicros implements Conn.
func (c *rpioConn) SleepMicros(n uint64) { sleepMicros(n) }

// Close implements Conn.
func (c *rpioConn) Close() error {
	if c.spiPort != nil {
		c.spiPort.Close()
	}
	return rpio.Close()
}

// SetupInput configures an input line with the pull-up the buttons,
// limits and interlock are wired for.
func SetupInput(conn Conn, pin int) {
	if _, ok := conn.(*rpioConn); ok {
		p := rpio.Pin(pin)
		p.Input()
		p.PullUp()
	}
}

// SetupOutput configures an output line driven low.
func SetupOutput(conn Conn, pin int) {
	if _, ok := conn.(*rpioConn); ok {
		rpio.Pin(pin).Output()
	}
	conn.WriteDigital(pin, 0)
}
