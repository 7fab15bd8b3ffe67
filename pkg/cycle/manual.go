// Manual joystick mode
//
// Active only while the cycle machine is Idle. Each Step is one
// control-loop iteration: joystick-scaled linear velocity, rebound off
// a triggered limit, and the latched drill toggle.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package cycle

import (
	"drillctl-go-migration/pkg/input"
	"drillctl-go-migration/pkg/log"
	"drillctl-go-migration/pkg/pulse"
	"drillctl-go-migration/pkg/safety"
)

// drillToggleLockoutUs ignores further drill-button edges after a
// toggle.
const drillToggleLockoutUs = 50_000

// Manual is the joystick controller.
type Manual struct {
	deps Deps

	drillHalfPeriodUs uint64
	drillOn           bool
	lastToggleUs      uint64
}

// NewManual creates a manual controller sharing the machine's axes and
// supervisor. drillHalfPeriodUs is the latched drill speed, normally
// the bound mode's (or the first mode's when nothing is bound).
func NewManual(deps Deps, drillHalfPeriodUs uint64) *Manual {
	if deps.Logger == nil {
		deps.Logger = log.Default().Sub("manual")
	}
	return &Manual{deps: deps, drillHalfPeriodUs: drillHalfPeriodUs}
}

// DrillOn reports the drill latch state.
func (mc *Manual) DrillOn() bool { return mc.drillOn }

// Stop disables both axes and clears the drill latch; called when the
// coordinator leaves manual mode.
func (mc *Manual) Stop() {
	mc.deps.Linear.Enable(false)
	mc.deps.Drill.Enable(false)
	mc.drillOn = false
}

// Step runs one manual iteration and returns the clock reading at
// which the next pulse edge is due (0 when both axes are idle), so the
// control loop can sleep precisely.
func (mc *Manual) Step() uint64 {
	sup := mc.deps.Sup
	sampler := mc.deps.Sampler
	lin, dr := mc.deps.Linear, mc.deps.Drill
	conn := mc.deps.Conn

	sup.Poll()

	// Interlock-open pauses manual motion exactly as it does a cycle.
	if !sampler.SafetyOK() {
		if sup.PauseBlocking("SAFETY PAUSE", lin, dr) == pulse.Abort {
			mc.Stop()
			return 0
		}
	}

	mc.stepJoystick()
	mc.stepDrillToggle()

	now := conn.NowMicros()
	var next uint64
	if lin.Enabled() {
		lin.Tick(now)
		next = lin.NextDue()
	}
	if dr.Enabled() {
		dr.Tick(now)
		if d := dr.NextDue(); next == 0 || d < next {
			next = d
		}
	}
	return next
}

func (mc *Manual) stepJoystick() {
	sampler := mc.deps.Sampler
	lin := mc.deps.Linear

	cmd, err := sampler.Joystick()
	if err != nil || cmd.Neutral {
		if lin.Enabled() {
			lin.Enable(false)
		}
		return
	}

	// A limit already triggered in the commanded direction turns the
	// command into a rebound away from the switch.
	if cmd.Dir == pulse.TowardHome && sampler.LimitHome() {
		mc.rebound(pulse.TowardFinal)
		return
	}
	if cmd.Dir == pulse.TowardFinal && sampler.LimitFinal() {
		mc.rebound(pulse.TowardHome)
		return
	}

	if lin.Direction() != cmd.Dir || !lin.Enabled() {
		lin.SetDirection(cmd.Dir)
		lin.Enable(true)
	}
	lin.SetHalfPeriod(cmd.HalfPeriodUs)
}

// rebound backs off a triggered limit by the configured step count,
// then stops the axis.
func (mc *Manual) rebound(dir pulse.Direction) {
	c := &mc.deps.Consts
	lin := mc.deps.Linear

	mc.deps.Logger.Info("limit rebound %s", dir)
	mc.deps.Sup.ClearCause()
	lin.SetDirection(dir)
	lin.ResetCount()
	hook := mc.deps.Sup.Hook(dir, false, lin, mc.deps.Drill)
	lin.StepBlocking(c.LimitReboundSteps, c.LimitReboundHalfPeriodUs, hook)
	lin.Enable(false)

	if mc.deps.Sup.Cause() == safety.CauseReset || mc.deps.Sup.Cause() == safety.CauseEmergency {
		mc.Stop()
	}
}

func (mc *Manual) stepDrillToggle() {
	sampler := mc.deps.Sampler
	dr := mc.deps.Drill
	now := mc.deps.Conn.NowMicros()

	// The tala press is a falling edge on the raw active-low line; the
	// sampler reports it as the semantic press edge.
	if !sampler.RisingEdge(input.BtnDrill) {
		return
	}
	if now-mc.lastToggleUs < drillToggleLockoutUs && mc.lastToggleUs != 0 {
		return
	}
	mc.lastToggleUs = now

	mc.drillOn = !mc.drillOn
	if mc.drillOn {
		dr.SetDirection(pulse.TowardFinal)
		dr.SetHalfPeriod(mc.drillHalfPeriodUs)
		dr.Enable(true)
		mc.deps.Logger.Info("drill on at %d us", mc.drillHalfPeriodUs)
	} else {
		// Enable(false) also clears the dir line.
		dr.Enable(false)
		mc.deps.Logger.Info("drill off")
	}
}
