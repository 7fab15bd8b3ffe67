package config

import (
	"os"
	"path/filepath"
	"testing"

	"drillctl-go-migration/pkg/errors"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default machine file invalid: %v", err)
	}
}

func TestModeLookup(t *testing.T) {
	m := Default()

	p, err := m.Mode(1)
	if err != nil {
		t.Fatal(err)
	}
	if p.StepsCycle1 != 175 || p.DrillHalfPeriodUs != 2860 {
		t.Errorf("mode 1 = %+v, want CG4n51 level 1 values", p)
	}

	for _, bad := range []int{0, 6, -1} {
		if _, err := m.Mode(bad); err == nil {
			t.Errorf("Mode(%d) should fail", bad)
		} else if !errors.Is(err, errors.ErrInvalidMode) {
			t.Errorf("Mode(%d) error = %v, want ErrInvalidMode", bad, err)
		}
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "machine.toml")
	data := `
[constants]
home_rebound_steps = 500
pause_resume_delay_ms = 1500

[pins]
linear_step = 12
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if m.Constants.HomeReboundSteps != 500 {
		t.Errorf("home_rebound_steps = %d, want 500", m.Constants.HomeReboundSteps)
	}
	if m.Constants.PauseResumeDelayMs != 1500 {
		t.Errorf("pause_resume_delay_ms = %d, want 1500", m.Constants.PauseResumeDelayMs)
	}
	if m.Pins.LinearStep != 12 {
		t.Errorf("linear_step = %d, want 12", m.Pins.LinearStep)
	}
	// Untouched values keep factory defaults.
	if m.Pins.DrillStep != 24 {
		t.Errorf("drill_step = %d, want default 24", m.Pins.DrillStep)
	}
	if len(m.Modes) != ModeCount {
		t.Errorf("modes = %d, want %d", len(m.Modes), ModeCount)
	}
}

func TestLoadRejectsMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "machine.toml")
	if err := os.WriteFile(path, []byte("[constants\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if !errors.HasCode(err, errors.ErrConfigParse) {
		t.Errorf("error = %v, want CONFIG_PARSE", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Machine)
	}{
		{"zero stroke steps", func(m *Machine) { m.Modes[2].StepsCycle1 = 0 }},
		{"zero half period", func(m *Machine) { m.Modes[0].DrillHalfPeriodUs = 0 }},
		{"zero revolutions", func(m *Machine) { m.Modes[4].RevolutionsLevel1 = 0 }},
		{"missing mode", func(m *Machine) { m.Modes = m.Modes[:4] }},
		{"zero home half period", func(m *Machine) { m.Constants.HomeHalfPeriodUs = 0 }},
		{"zero pulses per rev", func(m *Machine) { m.Constants.PulsesPerSpindleRevolution = 0 }},
		{"slow faster than fast", func(m *Machine) { m.Constants.ManualVelocitySlowUs = 500 }},
		{"thresholds inverted", func(m *Machine) {
			m.Constants.JoystickLowThreshold = 700
			m.Constants.JoystickHighThreshold = 300
		}},
	}
	for _, c := range cases {
		m := Default()
		c.mutate(m)
		if err := m.Validate(); err == nil {
			t.Errorf("%s: expected validation error", c.name)
		}
	}
}
