// Coordinator and control task for the drill controller
//
// Owns the mode table, brokers external intents over a bounded command
// channel drained at the control task's quiescent points, and publishes
// the lock-free status snapshot. The control task is the single owner
// of all motion state; emergency stop is the one operation allowed to
// touch the hardware from another goroutine.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package control

import (
	"runtime"
	"strconv"
	"sync/atomic"

	"drillctl-go-migration/pkg/config"
	"drillctl-go-migration/pkg/cycle"
	"drillctl-go-migration/pkg/errors"
	"drillctl-go-migration/pkg/gpio"
	"drillctl-go-migration/pkg/input"
	"drillctl-go-migration/pkg/log"
	"drillctl-go-migration/pkg/pulse"
	"drillctl-go-migration/pkg/safety"
)

// commandQueueCap bounds the coordinator command channel.
const commandQueueCap = 16

type op int

const (
	opSelectMode op = iota
	opSelectManual
	opStart
	opStop
	opReset
)

type command struct {
	op       op
	mode     int
	params   config.ModeParams
	manualOn bool
}

// Status is the published observable state.
type Status struct {
	ActiveMode  int
	Phase       string
	Manual      bool
	SpindleRevs uint64
	Running     bool
	Paused      bool
	Error       string
}

// Permit is the external operation-permit query consulted before every
// Waiting to Cycle-1 transition.
type Permit interface {
	Allow() bool
}

// Deps wires the controller.
type Deps struct {
	Conn    gpio.Conn
	Config  *config.Machine
	Logger  *log.Logger
	Permit  Permit
	Display func(string)

	// Event receives operational records (phase changes, errors) for
	// the CSV log; may be nil.
	Event func(category, event, detail string)
}

// Controller is the coordinator.
type Controller struct {
	deps   Deps
	logger *log.Logger

	sampler *input.Sampler
	sup     *safety.Supervisor
	linear  *pulse.Axis
	drill   *pulse.Axis
	machine *cycle.Machine
	manual  *cycle.Manual

	commands chan command
	estop    atomic.Bool
	stopReq  atomic.Bool
	snapshot atomic.Pointer[Status]

	// Control-task-only state.
	selectedMode  int
	manualActive  bool
	manualPending bool

	done chan struct{}
}

// New builds the controller and its motion stack over the resolved
// GPIO backend.
func New(deps Deps) *Controller {
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	c := &Controller{
		deps:     deps,
		logger:   deps.Logger.Sub("control"),
		commands: make(chan command, commandQueueCap),
		done:     make(chan struct{}),
	}

	m := deps.Config
	c.sampler = input.NewSampler(deps.Conn, m)
	c.linear = pulse.NewAxis(deps.Conn, "linear", m.Pins.LinearStep, m.Pins.LinearDir,
		m.Constants.LinearDirectionInvert)
	c.drill = pulse.NewAxis(deps.Conn, "drill", m.Pins.DrillStep, m.Pins.DrillDir,
		m.Constants.DrillDirectionInvert)
	c.sup = safety.New(safety.Deps{
		Conn:          deps.Conn,
		Sampler:       c.sampler,
		Logger:        deps.Logger.Sub("safety"),
		Drain:         c.drain,
		ExternalAbort: func() bool { return c.estop.Load() || c.stopReq.Load() },
		PublishPaused: c.publishPaused,
		Display:       deps.Display,
		ResumeDelayMs: m.Constants.PauseResumeDelayMs,
	})
	c.machine = cycle.New(cycle.Deps{
		Conn:    deps.Conn,
		Sampler: c.sampler,
		Sup:     c.sup,
		Linear:  c.linear,
		Drill:   c.drill,
		Consts:  m.Constants,
		Logger:  deps.Logger.Sub("cycle"),
		Display: deps.Display,
		Notify: cycle.Notify{
			Phase: c.publishPhase,
			Revs:  c.publishRevs,
			Error: c.publishError,
		},
	})

	c.publish(func(s *Status) { s.Phase = cycle.Idle.String() })
	return c
}

// Snapshot returns the latest published status.
func (c *Controller) Snapshot() Status {
	if s := c.snapshot.Load(); s != nil {
		return *s
	}
	return Status{}
}

func (c *Controller) publish(mutate func(*Status)) {
	cur := c.Snapshot()
	mutate(&cur)
	c.snapshot.Store(&cur)
}

func (c *Controller) publishPhase(p cycle.Phase) {
	c.publish(func(s *Status) {
		s.Phase = p.String()
		s.ActiveMode = c.machine.Mode()
		s.SpindleRevs = c.machine.SpindleRevs()
		s.Running = c.machine.InCycle()
		if p == cycle.Idle {
			s.Error = ""
		}
	})
	c.event("phase", p.String(), "")
}

func (c *Controller) publishRevs(n uint64) {
	c.publish(func(s *Status) { s.SpindleRevs = n })
}

func (c *Controller) publishPaused(paused bool) {
	c.publish(func(s *Status) { s.Paused = paused })
	if paused {
		c.event("safety", "paused", "")
	} else {
		c.event("safety", "resumed", "")
	}
}

func (c *Controller) publishError(err error) {
	c.publish(func(s *Status) { s.Error = err.Error() })
	c.event("error", string(errors.CodeOf(err)), err.Error())
}

func (c *Controller) event(category, event, detail string) {
	if c.deps.Event != nil {
		c.deps.Event(category, event, detail)
	}
}

// enqueue submits a command without blocking.
func (c *Controller) enqueue(cmd command) error {
	select {
	case c.commands <- cmd:
		return nil
	default:
		return errors.ErrQueueFull
	}
}

// SelectMode binds a mode and arms the homing/waiting sequence.
// Returns ErrBusy while a cycle is executing.
func (c *Controller) SelectMode(m int) error {
	params, err := c.deps.Config.Mode(m)
	if err != nil {
		return err
	}
	if c.Snapshot().Running {
		return errors.ErrBusy
	}
	return c.enqueue(command{op: opSelectMode, mode: m, params: params})
}

// SelectManual enters or leaves manual mode. Only legal from Idle or
// Waiting.
func (c *Controller) SelectManual(on bool) error {
	if on {
		switch c.Snapshot().Phase {
		case cycle.Idle.String(), cycle.Waiting.String():
		default:
			return errors.ErrBusy
		}
	}
	return c.enqueue(command{op: opSelectManual, manualOn: on})
}

// PressStart is the virtual Start rising edge.
func (c *Controller) PressStart() error {
	return c.enqueue(command{op: opStart})
}

// PressStop is the virtual Stop rising edge.
func (c *Controller) PressStop() error {
	return c.enqueue(command{op: opStop})
}

// Reset is the virtual Reset rising edge.
func (c *Controller) Reset() error {
	return c.enqueue(command{op: opReset})
}

// EmergencyStop disables both axes synchronously before returning; the
// control task observes the disable on its next yield and falls back
// to Idle without homing.
func (c *Controller) EmergencyStop() {
	pins := c.deps.Config.Pins
	conn := c.deps.Conn
	conn.WriteDigital(pins.LinearStep, 0)
	conn.WriteDigital(pins.LinearDir, 0)
	conn.WriteDigital(pins.DrillStep, 0)
	conn.WriteDigital(pins.DrillDir, 0)
	c.estop.Store(true)
	c.logger.Warn("emergency stop")
	c.event("safety", "emergency_stop", "")
}

// Stop asks the control task to exit its loop.
func (c *Controller) Stop() {
	c.stopReq.Store(true)
}

// Done is closed when the control task has exited.
func (c *Controller) Done() <-chan struct{} { return c.done }

// drain handles every queued command. It runs on the control task:
// from the run loop between iterations and from the supervisor's
// suspension points.
func (c *Controller) drain() {
	for {
		select {
		case cmd := <-c.commands:
			c.handle(cmd)
		default:
			return
		}
	}
}

func (c *Controller) handle(cmd command) {
	switch cmd.op {
	case opSelectMode:
		if c.machine.InCycle() {
			c.logger.Warn("mode change refused mid-cycle")
			return
		}
		if c.manualActive {
			c.manual.Stop()
			c.manualActive = false
			c.publish(func(s *Status) { s.Manual = false })
		}
		c.machine.Bind(cmd.mode, cmd.params)
		c.selectedMode = cmd.mode
		c.publish(func(s *Status) { s.ActiveMode = cmd.mode })
		c.event("mode", "selected", strconv.Itoa(cmd.mode))
		switch c.machine.Phase() {
		case cycle.Waiting, cycle.Unload:
			// Rebind from Waiting or Unload re-homes before waiting
			// again.
			c.machine.RequestExit()
		}

	case opSelectManual:
		if !cmd.manualOn {
			if c.manualActive {
				c.manual.Stop()
				c.manualActive = false
				c.publish(func(s *Status) { s.Manual = false })
			}
			c.manualPending = false
			return
		}
		switch c.machine.Phase() {
		case cycle.Idle:
			c.enterManual()
		case cycle.Waiting:
			c.manualPending = true
			c.selectedMode = 0
			c.machine.RequestExit()
		default:
			c.logger.Warn("manual refused in phase %s", c.machine.Phase())
		}

	case opStart:
		c.sampler.InjectRising(input.BtnStart)
	case opStop:
		c.sampler.InjectRising(input.BtnStop)
	case opReset:
		c.sampler.InjectRising(input.BtnReset)
	}
}

func (c *Controller) enterManual() {
	drillHalf := c.machine.Params().DrillHalfPeriodUs
	if drillHalf == 0 {
		drillHalf = c.deps.Config.Modes[0].DrillHalfPeriodUs
	}
	c.manual = cycle.NewManual(cycle.Deps{
		Conn:    c.deps.Conn,
		Sampler: c.sampler,
		Sup:     c.sup,
		Linear:  c.linear,
		Drill:   c.drill,
		Consts:  c.deps.Config.Constants,
		Logger:  c.deps.Logger.Sub("manual"),
		Display: c.deps.Display,
	}, drillHalf)
	c.manualActive = true
	c.publish(func(s *Status) { s.Manual = true })
	c.event("mode", "manual", "")
}

// Run is the control task. It must be the only goroutine touching the
// motion state; callers usually run it on a dedicated goroutine and
// use the coordinator operations from elsewhere.
func (c *Controller) Run() error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(c.done)

	if err := setRealtime(); err != nil {
		c.logger.Warn("realtime scheduling unavailable: %v", err)
	}

	c.logger.Info("control task started")
	for !c.stopReq.Load() {
		c.drain()

		if c.estop.Load() {
			c.handleEmergency()
			continue
		}

		switch {
		case c.manualActive:
			next := c.manual.Step()
			now := c.deps.Conn.NowMicros()
			if next > now {
				c.deps.Conn.SleepMicros(next - now)
			} else {
				c.deps.Conn.SleepMicros(1000)
			}

		case c.selectedMode != 0:
			out, err := c.machine.RunSelected(c.permitFunc())
			if err != nil {
				return c.fatal(err)
			}
			c.selectedMode = 0
			switch out {
			case cycle.OutcomeEmergency:
				c.handleEmergency()
			case cycle.OutcomeExit:
				if c.manualPending {
					c.manualPending = false
					c.machine.Reset()
					c.enterManual()
				} else if c.machine.Mode() != 0 {
					// A new mode was bound from Waiting; rearm.
					c.selectedMode = c.machine.Mode()
				}
			}

		default:
			c.deps.Conn.SleepMicros(1000)
		}
	}

	c.linear.Enable(false)
	c.drill.Enable(false)
	c.logger.Info("control task stopped")
	return nil
}

func (c *Controller) permitFunc() func() bool {
	if c.deps.Permit == nil {
		return nil
	}
	return c.deps.Permit.Allow
}

// handleEmergency acknowledges the out-of-band disable: everything to
// Idle, no homing.
func (c *Controller) handleEmergency() {
	c.linear.Enable(false)
	c.drill.Enable(false)
	if c.manualActive {
		c.manual.Stop()
		c.manualActive = false
		c.publish(func(s *Status) { s.Manual = false })
	}
	c.selectedMode = 0
	c.machine.Reset()
	c.estop.Store(false)
	c.logger.Warn("emergency stop acknowledged, idle")
}

// fatal publishes the terminal error state; recovery needs a restart.
func (c *Controller) fatal(err error) error {
	c.linear.Enable(false)
	c.drill.Enable(false)
	c.publish(func(s *Status) {
		s.Error = err.Error()
		s.Running = false
	})
	c.logger.Error("fatal: %v", err)
	c.event("error", "fatal", err.Error())
	return err
}
