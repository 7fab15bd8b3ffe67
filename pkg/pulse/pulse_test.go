package pulse

import (
	"testing"

	"drillctl-go-migration/pkg/gpio"
)

const (
	testStepPin = 18
	testDirPin  = 23
)

func newTestAxis(invert bool) (*gpio.Fake, *Axis) {
	f := gpio.NewFake()
	a := NewAxis(f, "linear", testStepPin, testDirPin, invert)
	return f, a
}

func TestStepBlockingEmitsExactRisingEdges(t *testing.T) {
	f, a := newTestAxis(false)
	a.SetDirection(TowardFinal)

	n, res := a.StepBlocking(10, 2000, nil)
	if res != Proceed || n != 10 {
		t.Fatalf("StepBlocking = %d, %v", n, res)
	}
	rising := f.RisingWrites(testStepPin)
	if len(rising) != 10 {
		t.Errorf("rising edges on pin = %d, want 10", len(rising))
	}
	// Segment leaves the step line low.
	writes := f.Writes(testStepPin)
	if writes[len(writes)-1].Value != 0 {
		t.Error("step line left high after segment")
	}
}

func TestHalfPeriodSpacing(t *testing.T) {
	f, a := newTestAxis(false)
	a.SetDirection(TowardFinal)
	a.StepBlocking(5, 3900, nil)

	writes := f.Writes(testStepPin)
	var prev *gpio.Write
	for i := range writes {
		w := writes[i]
		if w.AtMicros == 0 && w.Value == 0 {
			continue // initial SetupOutput write
		}
		if prev != nil {
			delta := w.AtMicros - prev.AtMicros
			if delta < 3900 {
				t.Fatalf("edge spacing %d < half period 3900", delta)
			}
		}
		prev = &writes[i]
	}

	// Consecutive rising edges are at least a full period apart.
	rising := f.RisingWrites(testStepPin)
	for i := 1; i < len(rising); i++ {
		if d := rising[i].AtMicros - rising[i-1].AtMicros; d < 2*3900 {
			t.Fatalf("rising spacing %d < full period %d", d, 2*3900)
		}
	}
}

func TestDirectionWritesPrecedeSteps(t *testing.T) {
	f, a := newTestAxis(false)
	a.SetDirection(TowardFinal)
	a.StepBlocking(3, 1000, nil)

	dirWrites := f.Writes(testDirPin)
	if len(dirWrites) == 0 {
		t.Fatal("no dir writes recorded")
	}
	rising := f.RisingWrites(testStepPin)
	if rising[0].AtMicros < dirWrites[len(dirWrites)-1].AtMicros {
		t.Error("first step edge preceded the dir write")
	}
	if dirWrites[len(dirWrites)-1].Value != 1 {
		t.Error("TowardFinal should drive dir high when not inverted")
	}
}

func TestDirectionInvert(t *testing.T) {
	f, a := newTestAxis(true)
	a.SetDirection(TowardFinal)
	writes := f.Writes(testDirPin)
	if writes[len(writes)-1].Value != 0 {
		t.Error("inverted TowardFinal should drive dir low")
	}
	a.SetDirection(TowardHome)
	writes = f.Writes(testDirPin)
	if writes[len(writes)-1].Value != 1 {
		t.Error("inverted TowardHome should drive dir high")
	}
}

func TestDirectionChangeClearsLevelAndDelays(t *testing.T) {
	f, a := newTestAxis(false)
	a.SetDirection(TowardFinal)
	a.SetHalfPeriod(2000)
	a.Enable(true)

	// Emit one rising edge.
	f.SleepMicros(2000)
	if !a.Tick(f.NowMicros()) {
		t.Fatal("expected an edge")
	}
	if a.RisingEdges() != 1 {
		t.Fatalf("rising edges = %d", a.RisingEdges())
	}

	// Reverse mid-pulse: step line must drop and the next edge must be
	// a rising edge no sooner than one half-period after the reversal.
	reversedAt := f.NowMicros()
	a.SetDirection(TowardHome)
	writes := f.Writes(testStepPin)
	if writes[len(writes)-1].Value != 0 {
		t.Error("step line should be cleared on direction change")
	}

	f.SleepMicros(100)
	if a.Tick(f.NowMicros()) {
		t.Error("edge emitted within half-period of direction change")
	}
	f.SleepMicros(1900)
	if !a.Tick(f.NowMicros()) {
		t.Error("expected rising edge one half-period after reversal")
	}
	rising := f.RisingWrites(testStepPin)
	last := rising[len(rising)-1]
	if last.AtMicros-reversedAt < 2000 {
		t.Errorf("rising edge %d us after reversal, want >= 2000", last.AtMicros-reversedAt)
	}
}

func TestEnableFalseDrivesPinsLow(t *testing.T) {
	f, a := newTestAxis(false)
	a.SetDirection(TowardFinal)
	a.SetHalfPeriod(1000)
	a.Enable(true)
	f.SleepMicros(1000)
	a.Tick(f.NowMicros()) // step line now high

	a.Enable(false)
	if f.ReadDigital(testStepPin) != 0 || f.ReadDigital(testDirPin) != 0 {
		t.Error("disable must drive step and dir low")
	}
	f.SleepMicros(5000)
	if a.Tick(f.NowMicros()) {
		t.Error("disabled axis must not emit edges")
	}
}

func TestRisingCountedOnRisingOnly(t *testing.T) {
	f, a := newTestAxis(false)
	a.SetDirection(TowardFinal)
	a.SetHalfPeriod(500)
	a.Enable(true)

	for i := 0; i < 7; i++ {
		f.SleepMicros(500)
		a.Tick(f.NowMicros())
	}
	// 7 edges = 4 rising + 3 falling.
	if a.RisingEdges() != 4 {
		t.Errorf("rising edges = %d, want 4", a.RisingEdges())
	}
}

func TestStepBlockingAbort(t *testing.T) {
	_, a := newTestAxis(false)
	a.SetDirection(TowardFinal)

	calls := 0
	hook := func() HookResult {
		calls++
		if calls == 6 {
			return Abort
		}
		return Proceed
	}
	n, res := a.StepBlocking(100, 1000, hook)
	if res != Abort {
		t.Fatal("expected abort")
	}
	// Aborted after the 6th edge; 6 edges = 3 rising.
	if n != 3 {
		t.Errorf("count at abort = %d, want 3", n)
	}
}

func TestResetCount(t *testing.T) {
	_, a := newTestAxis(false)
	a.SetDirection(TowardFinal)
	a.StepBlocking(4, 100, nil)
	if a.RisingEdges() != 4 {
		t.Fatalf("rising = %d", a.RisingEdges())
	}
	a.ResetCount()
	if a.RisingEdges() != 0 {
		t.Error("ResetCount did not zero the counter")
	}
}
