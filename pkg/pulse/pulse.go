// Pulse engine for the drill controller
//
// Generates half-period-timed step edges on the two step/dir axes.
// The engine owns per-axis edge state only; limit switches and the
// interlock are enforced by the safety supervisor through the yield
// hook passed to StepBlocking.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package pulse

import (
	"drillctl-go-migration/pkg/errors"
	"drillctl-go-migration/pkg/gpio"
)

// Direction is the semantic travel direction of an axis.
type Direction int

const (
	// TowardHome moves the carriage at the home limit switch.
	TowardHome Direction = iota

	// TowardFinal moves the carriage at the final limit switch.
	TowardFinal
)

// String returns the direction name.
func (d Direction) String() string {
	if d == TowardHome {
		return "toward_home"
	}
	return "toward_final"
}

// Opposite returns the reversed direction.
func (d Direction) Opposite() Direction {
	if d == TowardHome {
		return TowardFinal
	}
	return TowardHome
}

// HookResult is returned by a yield hook between pulse edges.
type HookResult int

const (
	// Proceed continues the motion segment.
	Proceed HookResult = iota

	// Abort stops the motion segment after the edge already emitted.
	Abort
)

// YieldHook runs in the gap between pulse edges. It is the only
// cancellation point for blocking motion: the safety supervisor polls
// the interlock, stop/reset edges and pending commands inside it.
type YieldHook func() HookResult

// Axis is the pulse state of one step/dir output pair. It is owned by
// the control task; only the coordinator's emergency-stop disable
// write bypasses it.
type Axis struct {
	conn    gpio.Conn
	name    string
	stepPin int
	dirPin  int
	invert  bool

	dir          Direction
	level        int
	lastEdgeUs   uint64
	risingEdges  uint64
	enabled      bool
	halfPeriodUs uint64

	clockErr error
}

// NewAxis creates an axis over the given step/dir pins. invert flips
// the physical level written for TowardFinal.
func NewAxis(conn gpio.Conn, name string, stepPin, dirPin int, invert bool) *Axis {
	gpio.SetupOutput(conn, stepPin)
	gpio.SetupOutput(conn, dirPin)
	return &Axis{
		conn:    conn,
		name:    name,
		stepPin: stepPin,
		dirPin:  dirPin,
		invert:  invert,
	}
}

// Name returns the axis name.
func (a *Axis) Name() string { return a.name }

// Direction returns the latched semantic direction.
func (a *Axis) Direction() Direction { return a.dir }

// Enabled reports whether the axis emits edges on Tick.
func (a *Axis) Enabled() bool { return a.enabled }

// RisingEdges returns the rising edges emitted since the last reset.
func (a *Axis) RisingEdges() uint64 { return a.risingEdges }

// ResetCount zeroes the rising-edge counter. Called on stroke-direction
// flips and phase transitions.
func (a *Axis) ResetCount() { a.risingEdges = 0 }

// HalfPeriod returns the current half-period in microseconds.
func (a *Axis) HalfPeriod() uint64 { return a.halfPeriodUs }

// SetHalfPeriod sets the interval held at each edge level.
func (a *Axis) SetHalfPeriod(us uint64) { a.halfPeriodUs = us }

// Err returns the recorded fatal clock error, if any.
func (a *Axis) Err() error { return a.clockErr }

func (a *Axis) dirLevel(d Direction) int {
	level := 0
	if d == TowardFinal {
		level = 1
	}
	if a.invert {
		level ^= 1
	}
	return level
}

// SetDirection writes the dir pin immediately and clears the edge
// level, so the next emitted edge is a rising edge at least one
// half-period later. The dir line is therefore stable before the first
// step edge of the new stroke.
func (a *Axis) SetDirection(d Direction) {
	a.dir = d
	a.conn.WriteDigital(a.dirPin, a.dirLevel(d))
	if a.level != 0 {
		a.level = 0
		a.conn.WriteDigital(a.stepPin, 0)
	}
	a.lastEdgeUs = a.conn.NowMicros()
}

// Enable turns edge emission on or off. Disabling drives both step and
// dir pins to 0 immediately; enabling re-asserts the latched direction
// and restarts the half-period interval from now.
func (a *Axis) Enable(on bool) {
	if !on {
		a.enabled = false
		a.level = 0
		a.conn.WriteDigital(a.stepPin, 0)
		a.conn.WriteDigital(a.dirPin, 0)
		return
	}
	a.enabled = true
	a.conn.WriteDigital(a.dirPin, a.dirLevel(a.dir))
	a.lastEdgeUs = a.conn.NowMicros()
}

// NextDue returns the clock reading at which the next edge is due.
func (a *Axis) NextDue() uint64 {
	return a.lastEdgeUs + a.halfPeriodUs
}

// Tick emits one edge if the axis is enabled and the half-period has
// elapsed. Returns true when an edge was written.
func (a *Axis) Tick(now uint64) bool {
	if !a.enabled || a.halfPeriodUs == 0 {
		return false
	}
	if now < a.lastEdgeUs {
		if a.clockErr == nil {
			a.clockErr = errors.ClockRegressionError(a.lastEdgeUs, now)
		}
		return false
	}
	if now-a.lastEdgeUs < a.halfPeriodUs {
		return false
	}
	a.level ^= 1
	a.conn.WriteDigital(a.stepPin, a.level)
	a.lastEdgeUs = now
	if a.level == 1 {
		a.risingEdges++
	}
	return true
}

// StepBlocking emits exactly n rising edges at the given half-period,
// calling hook in the gap after every edge. On Abort it returns early
// with the rising-edge count reached.
func (a *Axis) StepBlocking(n uint64, halfPeriodUs uint64, hook YieldHook) (uint64, HookResult) {
	a.SetHalfPeriod(halfPeriodUs)
	if !a.enabled {
		a.Enable(true)
	}
	start := a.risingEdges

	for a.risingEdges-start < n {
		now := a.conn.NowMicros()
		if due := a.NextDue(); now < due {
			a.conn.SleepMicros(due - now)
			continue
		}
		a.Tick(now)
		if hook != nil && hook() == Abort {
			return a.risingEdges - start, Abort
		}
		if a.clockErr != nil {
			return a.risingEdges - start, Abort
		}
	}
	a.SettleLow()
	return n, Proceed
}

// SettleLow completes the trailing falling edge so a finished segment
// leaves the step line low. The falling edge keeps half-period spacing
// and does not affect the rising-edge count.
func (a *Axis) SettleLow() {
	if a.level != 1 || !a.enabled {
		return
	}
	now := a.conn.NowMicros()
	if due := a.NextDue(); now < due {
		a.conn.SleepMicros(due - now)
		now = a.conn.NowMicros()
	}
	a.Tick(now)
}
