package control

import (
	"strings"
	"testing"
	"time"

	"drillctl-go-migration/pkg/config"
	"drillctl-go-migration/pkg/cycle"
	"drillctl-go-migration/pkg/errors"
	"drillctl-go-migration/pkg/gpio"
)

type fixedPermit bool

func (p fixedPermit) Allow() bool { return bool(p) }

func testConfig() *config.Machine {
	m := config.Default()
	m.Constants.HomeReboundSteps = 20
	m.Constants.HomeHalfPeriodUs = 100
	m.Constants.PulsesPerSpindleRevolution = 20
	m.Constants.SpindleRevolutionsCycle2Bursts = 2
	m.Constants.DrillBurstStepEdges = 20
	m.Constants.DrillBurstHalfPeriodUs = 50
	m.Constants.PreCycleDrillWarmupMs = 5
	m.Constants.PauseResumeDelayMs = 10
	m.Modes[0] = config.ModeParams{
		StepsCycle1:        10,
		StepsIntermediate:  5,
		StepsCycle2:        12,
		RevolutionsLevel1:  2,
		RevolutionsLevel2:  100,
		LinearHalfPeriodUs: 100,
		DrillHalfPeriodUs:  60,
	}
	return m
}

type ctlHarness struct {
	fake *gpio.Fake
	cfg  *config.Machine
	ctl  *Controller
}

func newCtlHarness(t *testing.T, permit Permit, mutate ...func(*config.Machine)) *ctlHarness {
	t.Helper()
	cfg := testConfig()
	for _, fn := range mutate {
		fn(cfg)
	}
	f := gpio.NewFake()
	for _, pin := range []int{cfg.Pins.BtnReset, cfg.Pins.BtnStart, cfg.Pins.BtnStop, cfg.Pins.BtnDrill} {
		f.SetPin(pin, 1)
	}
	f.SetPin(cfg.Pins.Safety, 1)
	f.SetAnalog(cfg.Pins.JoystickChannel, 502)
	// The home limit stays asserted: homing terminates on its first
	// edge and the short rebound ignores it.
	f.SetPin(cfg.Pins.LimitHome, 1)

	ctl := New(Deps{Conn: f, Config: cfg, Permit: permit})
	return &ctlHarness{fake: f, cfg: cfg, ctl: ctl}
}

func (h *ctlHarness) start(t *testing.T) {
	t.Helper()
	go h.ctl.Run()
	t.Cleanup(func() {
		h.ctl.Stop()
		select {
		case <-h.ctl.Done():
		case <-time.After(5 * time.Second):
			t.Error("control task did not stop")
		}
	})
}

func (h *ctlHarness) waitFor(t *testing.T, what string, cond func(Status) bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond(h.ctl.Snapshot()) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s; snapshot = %+v", what, h.ctl.Snapshot())
}

func TestSelectModeValidation(t *testing.T) {
	h := newCtlHarness(t, fixedPermit(true))
	for _, bad := range []int{0, 6, -2} {
		if err := h.ctl.SelectMode(bad); !errors.Is(err, errors.ErrInvalidMode) {
			t.Errorf("SelectMode(%d) = %v, want ErrInvalidMode", bad, err)
		}
	}
}

func TestQueueFull(t *testing.T) {
	h := newCtlHarness(t, fixedPermit(true))
	// Control task not running: the queue fills at its capacity.
	for i := 0; i < commandQueueCap; i++ {
		if err := h.ctl.PressStart(); err != nil {
			t.Fatalf("enqueue %d failed: %v", i, err)
		}
	}
	if err := h.ctl.PressStart(); !errors.Is(err, errors.ErrQueueFull) {
		t.Errorf("overflow error = %v, want ErrQueueFull", err)
	}
}

func TestInitialSnapshot(t *testing.T) {
	h := newCtlHarness(t, fixedPermit(true))
	s := h.ctl.Snapshot()
	if s.Phase != "idle" || s.Running || s.Paused || s.ActiveMode != 0 {
		t.Errorf("initial snapshot = %+v", s)
	}
}

func TestModeSelectionReachesWaiting(t *testing.T) {
	h := newCtlHarness(t, fixedPermit(true))
	h.start(t)

	if err := h.ctl.SelectMode(1); err != nil {
		t.Fatal(err)
	}
	h.waitFor(t, "waiting phase", func(s Status) bool {
		return s.Phase == cycle.Waiting.String() && s.ActiveMode == 1
	})
}

func TestPermitDeniedPublishes(t *testing.T) {
	h := newCtlHarness(t, fixedPermit(false))
	h.start(t)

	if err := h.ctl.SelectMode(1); err != nil {
		t.Fatal(err)
	}
	h.waitFor(t, "waiting phase", func(s Status) bool { return s.Phase == cycle.Waiting.String() })

	if err := h.ctl.PressStart(); err != nil {
		t.Fatal(err)
	}
	h.waitFor(t, "permit denial", func(s Status) bool {
		return strings.Contains(s.Error, "permit")
	})

	// S5: still responsive to reset after the refusal.
	if err := h.ctl.Reset(); err != nil {
		t.Fatal(err)
	}
	h.waitFor(t, "idle after reset", func(s Status) bool {
		return s.Phase == cycle.Idle.String() && s.ActiveMode == 0
	})
}

func TestFullCycleThroughCoordinator(t *testing.T) {
	h := newCtlHarness(t, fixedPermit(true))
	h.start(t)

	if err := h.ctl.SelectMode(1); err != nil {
		t.Fatal(err)
	}
	h.waitFor(t, "waiting phase", func(s Status) bool { return s.Phase == cycle.Waiting.String() })

	// Homed: release the limit so the Toward_Home strokes do not
	// retrigger it mid-cycle.
	h.fake.SetPin(h.cfg.Pins.LimitHome, 0)

	if err := h.ctl.PressStart(); err != nil {
		t.Fatal(err)
	}
	h.waitFor(t, "unload phase", func(s Status) bool { return s.Phase == cycle.Unload.String() })

	// The final re-home needs the switch again.
	h.fake.SetPin(h.cfg.Pins.LimitHome, 1)
	if err := h.ctl.Reset(); err != nil {
		t.Fatal(err)
	}
	h.waitFor(t, "idle after unload", func(s Status) bool {
		return s.Phase == cycle.Idle.String() && s.SpindleRevs == 0
	})
}

func TestBusyDuringCycle(t *testing.T) {
	// A long warmup keeps the machine visibly inside Cycle-1.
	h := newCtlHarness(t, fixedPermit(true), func(m *config.Machine) {
		m.Constants.PreCycleDrillWarmupMs = 60_000
	})
	h.start(t)

	if err := h.ctl.SelectMode(1); err != nil {
		t.Fatal(err)
	}
	h.waitFor(t, "waiting phase", func(s Status) bool { return s.Phase == cycle.Waiting.String() })
	if err := h.ctl.PressStart(); err != nil {
		t.Fatal(err)
	}
	h.waitFor(t, "cycle1 running", func(s Status) bool { return s.Running })

	if err := h.ctl.SelectMode(2); !errors.Is(err, errors.ErrBusy) {
		t.Errorf("SelectMode mid-cycle = %v, want ErrBusy", err)
	}
	if err := h.ctl.SelectManual(true); !errors.Is(err, errors.ErrBusy) {
		t.Errorf("SelectManual mid-cycle = %v, want ErrBusy", err)
	}

	h.ctl.EmergencyStop()
	h.waitFor(t, "idle after emergency", func(s Status) bool { return s.Phase == cycle.Idle.String() })
}

func TestEmergencyStopWritesSynchronously(t *testing.T) {
	h := newCtlHarness(t, fixedPermit(true))
	// No control task at all: the disable writes must not depend on it.
	h.ctl.EmergencyStop()

	pins := h.cfg.Pins
	for _, pin := range []int{pins.LinearStep, pins.LinearDir, pins.DrillStep, pins.DrillDir} {
		if h.fake.ReadDigital(pin) != 0 {
			t.Errorf("pin %d not driven low by emergency stop", pin)
		}
	}
}

func TestManualEnterAndLeave(t *testing.T) {
	h := newCtlHarness(t, fixedPermit(true))
	h.start(t)

	if err := h.ctl.SelectManual(true); err != nil {
		t.Fatal(err)
	}
	h.waitFor(t, "manual on", func(s Status) bool { return s.Manual })

	if err := h.ctl.SelectManual(false); err != nil {
		t.Fatal(err)
	}
	h.waitFor(t, "manual off", func(s Status) bool { return !s.Manual })
}

func TestSelectModeLeavesManual(t *testing.T) {
	h := newCtlHarness(t, fixedPermit(true))
	h.start(t)

	if err := h.ctl.SelectManual(true); err != nil {
		t.Fatal(err)
	}
	h.waitFor(t, "manual on", func(s Status) bool { return s.Manual })

	if err := h.ctl.SelectMode(1); err != nil {
		t.Fatal(err)
	}
	h.waitFor(t, "waiting after manual", func(s Status) bool {
		return !s.Manual && s.Phase == cycle.Waiting.String()
	})
}
