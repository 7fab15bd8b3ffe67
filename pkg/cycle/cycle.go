// Drill cycle state machine
//
// Sequences Homing -> Waiting -> Cycle-1 -> Intermediate -> Cycle-2 ->
// Unload on the two axes, counting spindle revolutions and enforcing
// the stroke/termination rules. All mutable motion state lives here
// and in the pulse axes; the machine runs on the control task only.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package cycle

import (
	"drillctl-go-migration/pkg/config"
	"drillctl-go-migration/pkg/errors"
	"drillctl-go-migration/pkg/gpio"
	"drillctl-go-migration/pkg/input"
	"drillctl-go-migration/pkg/log"
	"drillctl-go-migration/pkg/pulse"
	"drillctl-go-migration/pkg/safety"
)

// Phase is the cycle execution phase.
type Phase int

const (
	// Idle: no mode bound, axes stopped.
	Idle Phase = iota

	// Homing: seeking the home limit, then the rebound.
	Homing

	// Waiting: homed, waiting for the operator to load and press Start.
	Waiting

	// Cycle1: reciprocation counted in spindle revolutions.
	Cycle1

	// Intermediate: one-way advance between the cycles.
	Intermediate

	// Cycle2: reciprocation with a per-stroke drill burst.
	Cycle2

	// Unload: finished, waiting for Reset.
	Unload
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Homing:
		return "homing"
	case Waiting:
		return "waiting"
	case Cycle1:
		return "cycle1"
	case Intermediate:
		return "intermediate"
	case Cycle2:
		return "cycle2"
	case Unload:
		return "unload"
	}
	return "unknown"
}

// Outcome summarises how a cycle run ended.
type Outcome int

const (
	// OutcomeCompleted: the full sequence ran and the operator reset.
	OutcomeCompleted Outcome = iota

	// OutcomeAborted: reset or a limit overshoot abandoned the cycle;
	// the carriage was re-homed.
	OutcomeAborted

	// OutcomeEmergency: an emergency stop ended the run; no homing.
	OutcomeEmergency

	// OutcomeExit: the coordinator asked the machine to leave the
	// Waiting/Unload loop (mode rebind or change to manual).
	OutcomeExit
)

// Notify carries the machine's observable-state callbacks.
type Notify struct {
	// Phase is called on every phase transition.
	Phase func(Phase)

	// Revs is called whenever the spindle revolution counter changes.
	Revs func(uint64)

	// Error publishes a non-fatal cycle error (permit denied).
	Error func(error)
}

// Deps wires the machine to its collaborators.
type Deps struct {
	Conn    gpio.Conn
	Sampler *input.Sampler
	Sup     *safety.Supervisor
	Linear  *pulse.Axis
	Drill   *pulse.Axis
	Consts  config.Constants
	Logger  *log.Logger
	Display func(string)
	Notify  Notify
}

// Machine owns the cycle context.
type Machine struct {
	deps Deps

	phase  Phase
	mode   int
	params config.ModeParams

	strokeDir          pulse.Direction
	spindleRevs        uint64
	drillEdgeAccum     uint64
	lastDrillCount     uint64
	terminationPending bool

	exitRequested bool
}

// New creates an idle machine.
func New(deps Deps) *Machine {
	if deps.Logger == nil {
		deps.Logger = log.Default().Sub("cycle")
	}
	return &Machine{deps: deps}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase { return m.phase }

// Mode returns the bound mode index, 0 when unbound.
func (m *Machine) Mode() int { return m.mode }

// SpindleRevs returns the published revolution/burst counter.
func (m *Machine) SpindleRevs() uint64 { return m.spindleRevs }

// Params returns the bound mode parameters.
func (m *Machine) Params() config.ModeParams { return m.params }

// Bind binds mode parameters. The coordinator only calls this outside
// Cycle-1, Intermediate and Cycle-2; binding the same mode twice is a
// no-op by construction.
func (m *Machine) Bind(mode int, p config.ModeParams) {
	m.mode = mode
	m.params = p
}

// RequestExit asks a blocking Waiting/Unload loop to return control to
// the coordinator. Called from the drain path on the control task.
func (m *Machine) RequestExit() { m.exitRequested = true }

// InCycle reports whether the machine is executing motion phases where
// mode changes are refused.
func (m *Machine) InCycle() bool {
	switch m.phase {
	case Cycle1, Intermediate, Cycle2:
		return true
	}
	return false
}

func (m *Machine) setPhase(p Phase) {
	if m.phase != p {
		m.deps.Logger.Info("phase %s -> %s", m.phase, p)
	}
	m.phase = p
	if m.deps.Notify.Phase != nil {
		m.deps.Notify.Phase(p)
	}
}

func (m *Machine) display(s string) {
	if m.deps.Display != nil {
		m.deps.Display(s)
	}
}

func (m *Machine) setRevs(n uint64) {
	m.spindleRevs = n
	if m.deps.Notify.Revs != nil {
		m.deps.Notify.Revs(n)
	}
}

// awayDir is the stroke direction that advances into the workpiece.
func (m *Machine) awayDir() pulse.Direction {
	if m.deps.Consts.CycleDirectionInvert {
		return pulse.TowardHome
	}
	return pulse.TowardFinal
}

// Reset returns the context to Idle without touching the axes.
func (m *Machine) Reset() {
	m.mode = 0
	m.params = config.ModeParams{}
	m.terminationPending = false
	m.drillEdgeAccum = 0
	m.lastDrillCount = 0
	m.setRevs(0)
	m.setPhase(Idle)
}

// RunSelected executes the full sequence for the bound mode: homing,
// waiting for start (with the external permit), both cycles, unload,
// and the final re-home. It returns to Idle in every outcome except a
// fatal error and OutcomeExit, which disables the axes and leaves the
// phase and the bound mode for the coordinator.
func (m *Machine) RunSelected(permit func() bool) (Outcome, error) {
	m.exitRequested = false

	out, err := m.home()
	if err != nil {
		return out, err
	}
	if out != OutcomeCompleted {
		// The interrupted homing already stopped the axes; there is
		// nothing to return to.
		m.Reset()
		return out, nil
	}

	out, err = m.waiting(permit)
	if err != nil {
		return out, err
	}
	if out != OutcomeCompleted {
		return m.leaveOrFinish(out)
	}

	out, err = m.runCycles()
	if err != nil {
		return out, err
	}
	if out != OutcomeCompleted {
		return m.finish(out)
	}

	out, err = m.unload()
	if err != nil {
		return out, err
	}
	// Reset at Unload ends the run the same way an abort does: re-home,
	// then back to Idle.
	return m.leaveOrFinish(out)
}

// leaveOrFinish keeps the bound mode alive for a coordinator exit
// (rebind or manual selection takes over), and finishes every other
// outcome.
func (m *Machine) leaveOrFinish(out Outcome) (Outcome, error) {
	if out == OutcomeExit {
		m.deps.Linear.Enable(false)
		m.deps.Drill.Enable(false)
		return out, nil
	}
	return m.finish(out)
}

// finish routes every non-fatal ending. Completed runs and aborts
// re-home first; emergency and coordinator exits leave the carriage
// where it stopped.
func (m *Machine) finish(out Outcome) (Outcome, error) {
	m.deps.Linear.Enable(false)
	m.deps.Drill.Enable(false)

	if out == OutcomeAborted || out == OutcomeCompleted {
		if homeOut, err := m.home(); err != nil {
			return out, err
		} else if homeOut == OutcomeEmergency {
			out = OutcomeEmergency
		}
	}
	m.Reset()
	return out, nil
}

// home seeks the home limit and executes the rebound. On success the
// machine is left in Homing phase with the carriage at the work-zero
// position, exactly home_rebound_steps from the trigger point.
func (m *Machine) home() (Outcome, error) {
	m.setPhase(Homing)
	m.display("FINDING HOME")
	m.deps.Sup.ClearCause()

	lin := m.deps.Linear
	c := &m.deps.Consts

	lin.SetDirection(pulse.TowardHome)
	lin.ResetCount()
	hook := m.deps.Sup.Hook(pulse.TowardHome, true, lin, m.deps.Drill)
	_, res := lin.StepBlocking(^uint64(0), c.HomeHalfPeriodUs, hook)

	if res == pulse.Abort {
		switch m.deps.Sup.Cause() {
		case safety.CauseLimitHome:
			// Found it.
		case safety.CauseEmergency:
			lin.Enable(false)
			return OutcomeEmergency, nil
		case safety.CauseReset:
			// Reset while homing: homing is already the response.
			lin.Enable(false)
			return OutcomeAborted, nil
		default:
			lin.Enable(false)
			return OutcomeAborted, errors.New(errors.ErrSafetyFatal, "homing ended without a cause").
				SetComponent("cycle")
		}
	}
	if err := lin.Err(); err != nil {
		lin.Enable(false)
		return OutcomeAborted, err
	}

	// Rebound away from the switch. Stop and interlock stay observed;
	// the limit guards do not apply to the short rebound.
	m.deps.Sup.ClearCause()
	lin.SetDirection(pulse.TowardFinal)
	lin.ResetCount()
	hook = m.deps.Sup.Hook(pulse.TowardFinal, false, lin, m.deps.Drill)
	_, res = lin.StepBlocking(c.HomeReboundSteps, c.HomeHalfPeriodUs, hook)
	lin.Enable(false)

	if res == pulse.Abort {
		switch m.deps.Sup.Cause() {
		case safety.CauseEmergency:
			return OutcomeEmergency, nil
		default:
			return OutcomeAborted, nil
		}
	}
	m.display("HOME")
	return OutcomeCompleted, nil
}

// waiting blocks until Start is pressed with the interlock closed and
// the external permit granted.
func (m *Machine) waiting(permit func() bool) (Outcome, error) {
	m.setPhase(Waiting)
	m.display("LOAD WORKPIECE")
	m.display("PRESS START")

	sampler := m.deps.Sampler
	for {
		m.deps.Sup.Poll()

		if m.exitRequested {
			m.exitRequested = false
			return OutcomeExit, nil
		}
		if m.deps.Sup.ExternalAborted() {
			return OutcomeEmergency, nil
		}
		if sampler.RisingEdge(input.BtnReset) {
			return OutcomeAborted, nil
		}
		if sampler.RisingEdge(input.BtnStart) && sampler.SafetyOK() {
			if permit != nil && !permit() {
				m.deps.Logger.Warn("start refused: operation permit denied")
				m.display("PERMIT DENIED")
				if m.deps.Notify.Error != nil {
					m.deps.Notify.Error(errors.ErrPermitDenied)
				}
				continue
			}
			return OutcomeCompleted, nil
		}
		m.deps.Conn.SleepMicros(10_000)
	}
}

// runCycles executes warmup, Cycle-1, Intermediate and Cycle-2.
func (m *Machine) runCycles() (Outcome, error) {
	if out, err := m.cycle1(); err != nil || out != OutcomeCompleted {
		return out, err
	}
	m.idlePause()
	if out, err := m.intermediate(); err != nil || out != OutcomeCompleted {
		return out, err
	}
	m.idlePause()
	if out, err := m.cycle2(); err != nil || out != OutcomeCompleted {
		return out, err
	}
	return OutcomeCompleted, nil
}

// idlePause is the 1-second rest between phases.
func (m *Machine) idlePause() {
	m.deps.Conn.SleepMicros(1_000_000)
}

// abortOutcome maps a supervisor cause to a run outcome. Limit
// overshoot mid-cycle abandons the cycle like a reset does.
func (m *Machine) abortOutcome() Outcome {
	if m.deps.Sup.Cause() == safety.CauseEmergency {
		return OutcomeEmergency
	}
	return OutcomeAborted
}

// cycle1 runs the warmup and the counted reciprocation.
func (m *Machine) cycle1() (Outcome, error) {
	m.setPhase(Cycle1)
	m.display("CYCLE 1")
	p := &m.params
	c := &m.deps.Consts
	lin, dr := m.deps.Linear, m.deps.Drill

	m.terminationPending = false
	m.setRevs(0)

	// Drill-only warmup before the first stroke.
	m.deps.Sup.ClearCause()
	dr.SetDirection(pulse.TowardFinal)
	dr.ResetCount()
	hook := m.deps.Sup.Hook(pulse.TowardFinal, false, lin, dr)
	if res := m.runDrillTimed(c.PreCycleDrillWarmupMs*1000, p.DrillHalfPeriodUs, hook); res == pulse.Abort {
		return m.abortOutcome(), lin.Err()
	}

	// Spindle counting starts with the strokes.
	dr.ResetCount()
	m.lastDrillCount = 0
	m.drillEdgeAccum = 0

	dir := m.awayDir()
	for {
		m.strokeDir = dir
		m.deps.Sup.ClearCause()
		if res := m.runStroke(dir, p.StepsCycle1, p.LinearHalfPeriodUs, p.DrillHalfPeriodUs); res == pulse.Abort {
			lin.Enable(false)
			dr.Enable(false)
			return m.abortOutcome(), lin.Err()
		}
		if m.spindleRevs >= p.RevolutionsLevel1 {
			m.terminationPending = true
		}
		if m.terminationPending && dir == m.awayDir() {
			break
		}
		dir = dir.Opposite()
	}

	dr.Enable(false)
	lin.Enable(false)
	m.terminationPending = false
	return OutcomeCompleted, nil
}

// intermediate advances one-way to the second level.
func (m *Machine) intermediate() (Outcome, error) {
	m.setPhase(Intermediate)
	m.display("ADVANCE")
	m.setRevs(0)

	lin := m.deps.Linear
	m.deps.Sup.ClearCause()
	dir := m.awayDir()
	lin.SetDirection(dir)
	lin.ResetCount()
	hook := m.deps.Sup.Hook(dir, true, lin, m.deps.Drill)
	_, res := lin.StepBlocking(m.params.StepsIntermediate, m.params.LinearHalfPeriodUs, hook)
	lin.Enable(false)
	if res == pulse.Abort {
		return m.abortOutcome(), lin.Err()
	}
	return OutcomeCompleted, nil
}

// cycle2 runs the second-level reciprocation with per-stroke bursts.
func (m *Machine) cycle2() (Outcome, error) {
	m.setPhase(Cycle2)
	m.display("CYCLE 2")
	p := &m.params
	c := &m.deps.Consts
	lin, dr := m.deps.Linear, m.deps.Drill

	m.terminationPending = false
	m.setRevs(0)

	dir := m.awayDir()
	for {
		m.strokeDir = dir
		m.deps.Sup.ClearCause()
		// Linear only; the drill stays idle during Cycle-2 strokes.
		if res := m.runStroke(dir, p.StepsCycle2, p.LinearHalfPeriodUs, 0); res == pulse.Abort {
			lin.Enable(false)
			dr.Enable(false)
			return m.abortOutcome(), lin.Err()
		}

		if dir == m.awayDir() {
			if m.terminationPending {
				break
			}
			m.deps.Sup.ClearCause()
			if res := m.drillBurst(); res == pulse.Abort {
				lin.Enable(false)
				return m.abortOutcome(), dr.Err()
			}
			m.setRevs(m.spindleRevs + 1)
			if m.spindleRevs >= c.SpindleRevolutionsCycle2Bursts {
				m.terminationPending = true
			}
		}
		dir = dir.Opposite()
	}

	lin.Enable(false)
	dr.Enable(false)
	m.terminationPending = false
	return OutcomeCompleted, nil
}

// unload blocks until Reset with the finished workpiece.
func (m *Machine) unload() (Outcome, error) {
	m.setPhase(Unload)
	m.display("OPEN AND UNLOAD")
	m.display("PRESS START FOR NEXT CYCLE")

	sampler := m.deps.Sampler
	for {
		m.deps.Sup.Poll()

		if m.exitRequested {
			m.exitRequested = false
			return OutcomeExit, nil
		}
		if m.deps.Sup.ExternalAborted() {
			return OutcomeEmergency, nil
		}
		if sampler.RisingEdge(input.BtnReset) {
			return OutcomeCompleted, nil
		}
		m.deps.Conn.SleepMicros(10_000)
	}
}

// runStroke emits one linear stroke, optionally spinning the drill
// concurrently, until the stroke step count is reached. Spindle
// revolutions are accumulated from the drill rising edges.
func (m *Machine) runStroke(dir pulse.Direction, steps, linHalfUs, drillHalfUs uint64) pulse.HookResult {
	conn := m.deps.Conn
	lin, dr := m.deps.Linear, m.deps.Drill

	lin.SetDirection(dir)
	lin.ResetCount()
	lin.SetHalfPeriod(linHalfUs)
	lin.Enable(true)

	withDrill := drillHalfUs != 0
	if withDrill {
		dr.SetHalfPeriod(drillHalfUs)
		if !dr.Enabled() {
			dr.Enable(true)
		}
	}

	hook := m.deps.Sup.Hook(dir, true, lin, dr)

	for lin.RisingEdges() < steps {
		now := conn.NowMicros()
		edged := lin.Tick(now)
		if withDrill {
			if dr.Tick(now) {
				edged = true
			}
		}

		if edged {
			if hook() == pulse.Abort {
				return pulse.Abort
			}
			if withDrill {
				m.accumulateSpindle()
			}
			continue
		}

		next := lin.NextDue()
		if withDrill {
			if d := dr.NextDue(); d < next {
				next = d
			}
		}
		if next > now {
			conn.SleepMicros(next - now)
		}
	}

	lin.SettleLow()
	if withDrill {
		m.accumulateSpindle()
	}
	return pulse.Proceed
}

// accumulateSpindle folds new drill rising edges into the revolution
// counter.
func (m *Machine) accumulateSpindle() {
	cur := m.deps.Drill.RisingEdges()
	delta := cur - m.lastDrillCount
	m.lastDrillCount = cur
	m.drillEdgeAccum += delta

	per := m.deps.Consts.PulsesPerSpindleRevolution
	for m.drillEdgeAccum >= per {
		m.drillEdgeAccum -= per
		m.setRevs(m.spindleRevs + 1)
	}
}

// runDrillTimed spins the drill alone for the given duration.
func (m *Machine) runDrillTimed(durationUs, halfUs uint64, hook pulse.YieldHook) pulse.HookResult {
	conn := m.deps.Conn
	dr := m.deps.Drill

	dr.SetHalfPeriod(halfUs)
	dr.Enable(true)
	end := conn.NowMicros() + durationUs

	for {
		now := conn.NowMicros()
		if now >= end {
			break
		}
		if dr.Tick(now) {
			if hook() == pulse.Abort {
				return pulse.Abort
			}
			continue
		}
		next := dr.NextDue()
		if next > end {
			next = end
		}
		if next > now {
			conn.SleepMicros(next - now)
		}
	}
	dr.SettleLow()
	return pulse.Proceed
}

// drillBurst emits the fixed raw-edge packet between Cycle-2 strokes
// while the linear axis is idle.
func (m *Machine) drillBurst() pulse.HookResult {
	conn := m.deps.Conn
	dr := m.deps.Drill
	c := &m.deps.Consts

	dr.SetDirection(pulse.TowardFinal)
	dr.SetHalfPeriod(c.DrillBurstHalfPeriodUs)
	dr.Enable(true)
	hook := m.deps.Sup.Hook(pulse.TowardFinal, false, m.deps.Linear, dr)

	var edges uint64
	for edges < c.DrillBurstStepEdges {
		now := conn.NowMicros()
		if dr.Tick(now) {
			edges++
			if hook() == pulse.Abort {
				dr.Enable(false)
				return pulse.Abort
			}
			continue
		}
		if next := dr.NextDue(); next > now {
			conn.SleepMicros(next - now)
		}
	}
	dr.Enable(false)
	return pulse.Proceed
}
