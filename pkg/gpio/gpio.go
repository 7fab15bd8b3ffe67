// GPIO abstraction for the drill controller host
//
// Three backends implement Conn: real Raspberry Pi hardware (go-rpio
// digital lines + MCP3008 joystick ADC over SPI), the HTTP-addressable
// GPIO simulator (see cmd/mock-gpio), and an in-process fake with a
// virtual clock for tests. The backend is resolved once at startup;
// the control task then owns the connection exclusively, except for
// the emergency-stop disable writes, which every backend must accept
// from a second goroutine.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package gpio

import (
	"drillctl-go-migration/pkg/errors"
)

// Conn is the three-operation hardware abstraction plus the monotonic
// microsecond clock the pulse engine schedules against.
type Conn interface {
	// ReadDigital returns the level (0 or 1) of a digital line.
	ReadDigital(pin int) int

	// WriteDigital drives a digital line to the given level.
	WriteDigital(pin int, value int)

	// ReadAnalog returns a 10-bit sample (0..1023) from an analog
	// channel. Reading a missing channel fails with a GPIO_CHANNEL
	// coded error.
	ReadAnalog(channel int) (int, error)

	// NowMicros returns the monotonic clock in microseconds. It is
	// immune to wall-clock adjustment.
	NowMicros() uint64

	// SleepMicros blocks for n microseconds of the backend's clock.
	SleepMicros(n uint64)

	// Close releases the backend.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendRPIO = "rpio"
	BackendSim  = "sim"
	BackendFake = "fake"
)

// Options carries backend-specific startup parameters.
type Options struct {
	// SimURL is the base URL of the GPIO simulator (sim backend).
	SimURL string

	// SPIDev selects the MCP3008 SPI port (rpio backend); empty picks
	// the first registered port.
	SPIDev string
}

// Open resolves a backend by name. Failure to resolve real hardware is
// fatal to the caller: there is no silent fallback between backends.
func Open(backend string, opts Options) (Conn, error) {
	switch backend {
	case BackendRPIO:
		return openRPIO(opts)
	case BackendSim:
		return openSim(opts)
	case BackendFake:
		return NewFake(), nil
	}
	return nil, errors.Newf(errors.ErrGPIOBackend, "unknown backend '%s'", backend).
		SetComponent("gpio")
}
