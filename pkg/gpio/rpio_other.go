// Raspberry Pi hardware backend stub for non-Linux hosts
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

//go:build !linux

package gpio

import "drillctl-go-migration/pkg/errors"

func openRPIO(opts Options) (Conn, error) {
	return nil, errors.ErrHardwareUnavailable
}

// SetupInput is a no-op off-target; the sim and fake backends have no
// pin modes.
func SetupInput(conn Conn, pin int) {}

// SetupOutput drives the line low on any backend.
func SetupOutput(conn Conn, pin int) {
	conn.WriteDigital(pin, 0)
}
