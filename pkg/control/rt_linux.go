// Realtime scheduling for the control task, Linux
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

//go:build linux

package control

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// controlPriority is the SCHED_FIFO priority of the control task. High
// enough to outrank the web/logging goroutines, below kernel IRQ
// threads.
const controlPriority = 80

type schedParam struct {
	priority int32
}

// setRealtime pins the calling thread to SCHED_FIFO and locks the
// process address space so page faults cannot stall pulse timing.
// Requires CAP_SYS_NICE; failure is reported, not fatal.
func setRealtime() error {
	param := schedParam{priority: controlPriority}
	_, _, errno := unix.Syscall(unix.SYS_SCHED_SETSCHEDULER,
		0, uintptr(unix.SCHED_FIFO), uintptr(unsafe.Pointer(&param)))
	if errno != 0 {
		return fmt.Errorf("sched_setscheduler: %w", errno)
	}
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		return fmt.Errorf("mlockall: %w", err)
	}
	return nil
}
