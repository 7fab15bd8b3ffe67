// Monotonic microsecond clock, non-Linux hosts
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

//go:build !linux

package gpio

import "time"

var processStart = time.Now()

// time.Since uses the runtime monotonic reading, which is good enough
// off-target (the rpio backend does not build here anyway).
func nowMicros() uint64 {
	return uint64(time.Since(processStart) / time.Microsecond)
}

func sleepMicros(n uint64) {
	time.Sleep(time.Duration(n) * time.Microsecond)
}
