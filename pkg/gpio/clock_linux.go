// Monotonic microsecond clock, Linux
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

//go:build linux

package gpio

import (
	"time"

	"golang.org/x/sys/unix"
)

// nowMicros reads CLOCK_MONOTONIC directly so the pulse timing source
// cannot be disturbed by wall-clock adjustment (the Pi has no RTC and
// steps its clock when NTP comes up).
func nowMicros() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		// Fall back to the runtime's monotonic reading.
		return uint64(time.Since(processStart) / time.Microsecond)
	}
	return uint64(ts.Sec)*1_000_000 + uint64(ts.Nsec)/1_000
}

var processStart = time.Now()

func sleepMicros(n uint64) {
	time.Sleep(time.Duration(n) * time.Microsecond)
}
