// Safety supervision for the drill controller
//
// The supervisor is polled from the pulse engine's yield hook and at
// phase boundaries. It pre-empts motion on interlock-open, stop and
// reset edges, enforces the limit guards for the commanded direction,
// and owns the blocking pause/resume sequence.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package safety

import (
	"drillctl-go-migration/pkg/gpio"
	"drillctl-go-migration/pkg/input"
	"drillctl-go-migration/pkg/log"
	"drillctl-go-migration/pkg/pulse"
)

// Cause is the reason a motion segment was aborted.
type Cause int

const (
	// CauseNone: the last segment completed normally.
	CauseNone Cause = iota

	// CauseReset: the operator pressed reset; the cycle is abandoned.
	CauseReset

	// CauseEmergency: an emergency stop disabled the axes from outside
	// the control task.
	CauseEmergency

	// CauseLimitHome: the home limit triggered while moving toward it.
	// Ends the motion segment, not the cycle.
	CauseLimitHome

	// CauseLimitFinal: the final limit triggered while moving toward it.
	CauseLimitFinal
)

// String returns the cause name.
func (c Cause) String() string {
	switch c {
	case CauseNone:
		return "none"
	case CauseReset:
		return "reset"
	case CauseEmergency:
		return "emergency"
	case CauseLimitHome:
		return "limit_home"
	case CauseLimitFinal:
		return "limit_final"
	}
	return "unknown"
}

// pollSleepUs is the poll interval of the blocking waits.
const pollSleepUs = 10_000

// Deps wires the supervisor to its collaborators. Drain must poll the
// coordinator's command channel (it may inject virtual button edges);
// ExternalAbort reports a pending emergency stop or shutdown request.
type Deps struct {
	Conn    gpio.Conn
	Sampler *input.Sampler
	Logger  *log.Logger

	Drain         func()
	ExternalAbort func() bool
	PublishPaused func(bool)
	Display       func(string)

	ResumeDelayMs uint64
}

// Supervisor mediates between operator inputs and the pulse engine.
type Supervisor struct {
	deps  Deps
	cause Cause
}

// New creates a supervisor.
func New(deps Deps) *Supervisor {
	if deps.Logger == nil {
		deps.Logger = log.Default().Sub("safety")
	}
	return &Supervisor{deps: deps}
}

// Cause returns the reason for the last Abort.
func (s *Supervisor) Cause() Cause { return s.cause }

// ClearCause resets the abort reason before a new motion segment.
func (s *Supervisor) ClearCause() { s.cause = CauseNone }

// ExternalAborted reports a pending emergency stop or shutdown request
// from outside the control task.
func (s *Supervisor) ExternalAborted() bool {
	return s.deps.ExternalAbort != nil && s.deps.ExternalAbort()
}

// PauseBlocking runs the pause/resume sequence outside a yield hook;
// the manual controller uses it for interlock-open handling.
func (s *Supervisor) PauseBlocking(banner string, axes ...*pulse.Axis) pulse.HookResult {
	return s.pause(banner, axes)
}

// Poll drains pending commands and refreshes the input frame. It is
// the common prologue of every suspension point.
func (s *Supervisor) Poll() {
	if s.deps.Drain != nil {
		s.deps.Drain()
	}
	s.deps.Sampler.Sample()
}

// Hook builds the yield hook for one motion segment moving in dir.
// guardLimits selects the cycle/home behavior where hitting the limit
// ahead ends the segment; manual mode runs its own rebound instead and
// passes false. The axes are the ones disabled and re-enabled across a
// pause.
func (s *Supervisor) Hook(dir pulse.Direction, guardLimits bool, axes ...*pulse.Axis) pulse.YieldHook {
	return func() pulse.HookResult {
		s.Poll()

		if s.deps.ExternalAbort != nil && s.deps.ExternalAbort() {
			s.cause = CauseEmergency
			return pulse.Abort
		}
		if s.deps.Sampler.RisingEdge(input.BtnReset) {
			s.cause = CauseReset
			return pulse.Abort
		}

		if guardLimits {
			if dir == pulse.TowardHome && s.deps.Sampler.LimitHome() {
				s.cause = CauseLimitHome
				return pulse.Abort
			}
			if dir == pulse.TowardFinal && s.deps.Sampler.LimitFinal() {
				s.cause = CauseLimitFinal
				return pulse.Abort
			}
		}

		if !s.deps.Sampler.SafetyOK() {
			return s.pause("SAFETY PAUSE", axes)
		}
		if s.deps.Sampler.RisingEdge(input.BtnStop) {
			return s.pause("PAUSED", axes)
		}
		return pulse.Proceed
	}
}

// pause implements the safety/stop pause: disable the axes, publish
// paused, block until a Start rising edge, wait the settle delay, then
// re-enable whatever was running. The interlock level is deliberately
// not a resume precondition; the operator acknowledges with Start.
func (s *Supervisor) pause(banner string, axes []*pulse.Axis) pulse.HookResult {
	s.deps.Logger.Warn("motion paused: %s", banner)

	wasEnabled := make([]bool, len(axes))
	for i, a := range axes {
		wasEnabled[i] = a.Enabled()
		a.Enable(false)
	}
	if s.deps.PublishPaused != nil {
		s.deps.PublishPaused(true)
	}
	if s.deps.Display != nil {
		s.deps.Display(banner)
	}

	// Discard any stale Start edge so resume needs a fresh press.
	s.deps.Sampler.RisingEdge(input.BtnStart)

	for {
		s.Poll()
		if s.deps.ExternalAbort != nil && s.deps.ExternalAbort() {
			s.finishPause(nil, nil)
			s.cause = CauseEmergency
			return pulse.Abort
		}
		if s.deps.Sampler.RisingEdge(input.BtnReset) {
			s.finishPause(nil, nil)
			s.cause = CauseReset
			return pulse.Abort
		}
		if s.deps.Sampler.RisingEdge(input.BtnStart) {
			break
		}
		s.deps.Conn.SleepMicros(pollSleepUs)
	}

	// Mechanical settle time between the acknowledge and the first
	// post-resume edge.
	s.deps.Conn.SleepMicros(s.deps.ResumeDelayMs * 1000)

	s.finishPause(axes, wasEnabled)
	s.deps.Logger.Info("motion resumed")
	return pulse.Proceed
}

func (s *Supervisor) finishPause(axes []*pulse.Axis, wasEnabled []bool) {
	for i, a := range axes {
		if wasEnabled[i] {
			a.Enable(true)
		}
	}
	if s.deps.PublishPaused != nil {
		s.deps.PublishPaused(false)
	}
}
