// Realtime scheduling stub for non-Linux hosts
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

//go:build !linux

package control

import "fmt"

func setRealtime() error {
	return fmt.Errorf("realtime scheduling not supported on this platform")
}
