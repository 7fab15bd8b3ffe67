// Operation permit for the drill controller
//
// The cycle state machine queries a permit before every Waiting to
// Cycle-1 transition. The date-lockout implementation reproduces the
// CG4n51_L2 behavior: the machine refuses to run on or after a target
// date; the plain variant always allows (CG4n51_L1).
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package permit

import (
	"time"

	"drillctl-go-migration/pkg/log"
)

// Permit authorises the start of a new cycle.
type Permit interface {
	Allow() bool
}

// Always grants every request.
type Always struct{}

// Allow implements Permit.
func (Always) Allow() bool { return true }

// DateLockout refuses operation on or after a target date. Once the
// target is observed the lockout latches, matching the original RTC
// handler: winding the clock back does not unlock a tripped machine.
type DateLockout struct {
	target  time.Time
	now     func() time.Time
	logger  *log.Logger
	tripped bool
}

// NewDateLockout creates a lockout permit for the given target date
// (midnight, local time of the target value).
func NewDateLockout(year int, month time.Month, day int) *DateLockout {
	return &DateLockout{
		target: time.Date(year, month, day, 0, 0, 0, 0, time.Local),
		now:    time.Now,
		logger: log.Default().Sub("permit"),
	}
}

// SetNowFunc overrides the clock source (for testing).
func (d *DateLockout) SetNowFunc(now func() time.Time) { d.now = now }

// Allow implements Permit.
func (d *DateLockout) Allow() bool {
	if d.tripped {
		return false
	}
	current := d.now()
	if current.Year() < 2000 {
		// The original halts on an RTC returning garbage; refusing the
		// cycle is the host equivalent.
		d.logger.Error("clock implausible (%v), refusing operation", current)
		return false
	}
	if !current.Before(d.target) {
		d.tripped = true
		d.logger.Warn("target date %s reached, lockout active", d.target.Format("2006/01/02"))
		return false
	}
	return true
}

// Tripped reports whether the lockout has latched.
func (d *DateLockout) Tripped() bool { return d.tripped }
