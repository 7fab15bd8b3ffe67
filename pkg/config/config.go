// Machine configuration for the drill controller host
//
// The machine file is TOML: five mode entries plus the system-wide
// motion constants and the pin map. The core treats the decoded record
// as immutable; persistence and editing belong to external tooling.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"drillctl-go-migration/pkg/errors"
)

// ModeCount is the number of selectable automatic modes.
const ModeCount = 5

// ModeParams is one automatic mode entry. Bound into the cycle state
// machine on selection and immutable for the duration of a cycle.
type ModeParams struct {
	// StepsCycle1 is the linear steps per reciprocation stroke in Cycle-1.
	StepsCycle1 uint64 `toml:"steps_cycle1"`

	// StepsIntermediate is the one-way advance between the cycles.
	StepsIntermediate uint64 `toml:"steps_intermediate"`

	// StepsCycle2 is the linear steps per reciprocation stroke in Cycle-2.
	StepsCycle2 uint64 `toml:"steps_cycle2"`

	// RevolutionsLevel1 is the spindle revolutions target for Cycle-1.
	RevolutionsLevel1 uint64 `toml:"revolutions_level1"`

	// RevolutionsLevel2 is the spindle revolutions target for Cycle-2.
	RevolutionsLevel2 uint64 `toml:"revolutions_level2"`

	// LinearHalfPeriodUs is the half-period between linear pulse edges.
	LinearHalfPeriodUs uint64 `toml:"linear_half_period_us"`

	// DrillHalfPeriodUs is the half-period between drill pulse edges.
	DrillHalfPeriodUs uint64 `toml:"drill_half_period_us"`
}

// Constants holds the system-wide motion constants.
type Constants struct {
	HomeReboundSteps         uint64 `toml:"home_rebound_steps"`
	LimitReboundSteps        uint64 `toml:"limit_rebound_steps"`
	LimitReboundHalfPeriodUs uint64 `toml:"limit_rebound_half_period_us"`
	HomeHalfPeriodUs         uint64 `toml:"home_half_period_us"`

	DrillBurstHalfPeriodUs         uint64 `toml:"drill_burst_half_period_us"`
	DrillBurstStepEdges            uint64 `toml:"drill_burst_step_edges"`
	SpindleRevolutionsCycle2Bursts uint64 `toml:"spindle_revolutions_cycle2_bursts"`
	PulsesPerSpindleRevolution     uint64 `toml:"pulses_per_spindle_revolution"`

	PreCycleDrillWarmupMs uint64 `toml:"pre_cycle_drill_warmup_ms"`
	PauseResumeDelayMs    uint64 `toml:"pause_resume_delay_ms"`

	ManualVelocitySlowUs  uint64 `toml:"manual_velocity_slow_us"`
	ManualVelocityFastUs  uint64 `toml:"manual_velocity_fast_us"`
	JoystickLowThreshold  int    `toml:"joystick_low_threshold"`
	JoystickHighThreshold int    `toml:"joystick_high_threshold"`

	LinearDirectionInvert bool `toml:"linear_direction_invert"`
	DrillDirectionInvert  bool `toml:"drill_direction_invert"`
	CycleDirectionInvert  bool `toml:"cycle_direction_invert"`
}

// Pins is the GPIO pin map (BCM numbering, matching the original
// CG4n51 wiring).
type Pins struct {
	LinearStep int `toml:"linear_step"`
	LinearDir  int `toml:"linear_dir"`
	DrillStep  int `toml:"drill_step"`
	DrillDir   int `toml:"drill_dir"`

	BtnReset int `toml:"btn_reset"`
	BtnStart int `toml:"btn_start"`
	BtnStop  int `toml:"btn_stop"`
	BtnDrill int `toml:"btn_drill"`

	Safety     int `toml:"safety"`
	LimitHome  int `toml:"limit_home"`
	LimitFinal int `toml:"limit_final"`

	JoystickChannel int `toml:"joystick_channel"`
}

// Machine is the full decoded machine file.
type Machine struct {
	Modes     []ModeParams `toml:"mode"`
	Constants Constants    `toml:"constants"`
	Pins      Pins         `toml:"pins"`
}

// Default returns the CG4n51 factory configuration.
func Default() *Machine {
	return &Machine{
		Modes: []ModeParams{
			{StepsCycle1: 175, StepsIntermediate: 10, StepsCycle2: 390, RevolutionsLevel1: 100, RevolutionsLevel2: 1000, LinearHalfPeriodUs: 3900, DrillHalfPeriodUs: 2860},
			{StepsCycle1: 200, StepsIntermediate: 12, StepsCycle2: 420, RevolutionsLevel1: 120, RevolutionsLevel2: 1100, LinearHalfPeriodUs: 3700, DrillHalfPeriodUs: 2750},
			{StepsCycle1: 230, StepsIntermediate: 14, StepsCycle2: 450, RevolutionsLevel1: 140, RevolutionsLevel2: 1200, LinearHalfPeriodUs: 3500, DrillHalfPeriodUs: 2640},
			{StepsCycle1: 260, StepsIntermediate: 16, StepsCycle2: 480, RevolutionsLevel1: 160, RevolutionsLevel2: 1300, LinearHalfPeriodUs: 3300, DrillHalfPeriodUs: 2420},
			{StepsCycle1: 300, StepsIntermediate: 20, StepsCycle2: 520, RevolutionsLevel1: 180, RevolutionsLevel2: 1500, LinearHalfPeriodUs: 3100, DrillHalfPeriodUs: 2200},
		},
		Constants: Constants{
			HomeReboundSteps:         425,
			LimitReboundSteps:        300,
			LimitReboundHalfPeriodUs: 2500,
			HomeHalfPeriodUs:         2000,

			DrillBurstHalfPeriodUs:         2640,
			DrillBurstStepEdges:            200,
			SpindleRevolutionsCycle2Bursts: 3,
			PulsesPerSpindleRevolution:     400,

			PreCycleDrillWarmupMs: 2000,
			PauseResumeDelayMs:    2000,

			ManualVelocitySlowUs:  3200,
			ManualVelocityFastUs:  1100,
			JoystickLowThreshold:  352,
			JoystickHighThreshold: 652,
		},
		Pins: Pins{
			LinearStep: 18,
			LinearDir:  23,
			DrillStep:  24,
			DrillDir:   25,

			BtnReset: 17,
			BtnStart: 27,
			BtnStop:  22,
			BtnDrill: 5,

			Safety:     6,
			LimitHome:  13,
			LimitFinal: 19,

			JoystickChannel: 0,
		},
	}
}

// Load reads and validates a machine file.
func Load(path string) (*Machine, error) {
	m := Default()
	if _, err := toml.DecodeFile(path, m); err != nil {
		return nil, errors.ConfigParseError(path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Mode returns the 1-based mode entry.
func (m *Machine) Mode(n int) (ModeParams, error) {
	if n < 1 || n > len(m.Modes) {
		return ModeParams{}, errors.ErrInvalidMode
	}
	return m.Modes[n-1], nil
}

// Validate checks the decoded machine file for values the motion core
// cannot operate on.
func (m *Machine) Validate() error {
	if len(m.Modes) != ModeCount {
		return errors.ConfigValidationError("mode",
			fmt.Sprintf("want %d mode entries, have %d", ModeCount, len(m.Modes)))
	}
	for i, p := range m.Modes {
		n := i + 1
		if p.StepsCycle1 == 0 || p.StepsCycle2 == 0 {
			return errors.ConfigModeError(n, "zero stroke step count")
		}
		if p.LinearHalfPeriodUs == 0 || p.DrillHalfPeriodUs == 0 {
			return errors.ConfigModeError(n, "zero half-period")
		}
		if p.RevolutionsLevel1 == 0 {
			return errors.ConfigModeError(n, "zero revolutions target")
		}
	}

	c := &m.Constants
	if c.HomeHalfPeriodUs == 0 || c.LimitReboundHalfPeriodUs == 0 || c.DrillBurstHalfPeriodUs == 0 {
		return errors.ConfigValidationError("constants", "zero half-period")
	}
	if c.PulsesPerSpindleRevolution == 0 {
		return errors.ConfigValidationError("pulses_per_spindle_revolution", "must be positive")
	}
	if c.DrillBurstStepEdges == 0 {
		return errors.ConfigValidationError("drill_burst_step_edges", "must be positive")
	}
	if c.ManualVelocityFastUs == 0 || c.ManualVelocitySlowUs < c.ManualVelocityFastUs {
		return errors.ConfigValidationError("manual_velocity_slow_us",
			"slow half-period must be >= fast half-period")
	}
	if c.JoystickLowThreshold <= 0 || c.JoystickHighThreshold >= 1023 ||
		c.JoystickLowThreshold >= c.JoystickHighThreshold {
		return errors.ConfigValidationError("joystick_low_threshold",
			"thresholds must satisfy 0 < low < high < 1023")
	}
	return nil
}
