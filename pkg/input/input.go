// Input sampling for the drill controller
//
// Converts raw pin samples into debounced one-shot button edges,
// interlock/limit levels and scaled joystick commands. Buttons are
// active-low behind pull-ups; this package exposes the semantic
// convention (pressed = 1, rising edge = press), not the raw level.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package input

import (
	"drillctl-go-migration/pkg/config"
	"drillctl-go-migration/pkg/gpio"
	"drillctl-go-migration/pkg/pulse"
)

// Button identifies one of the four operator buttons.
type Button int

const (
	// BtnReset is the reset/home button.
	BtnReset Button = iota

	// BtnStart is the start button.
	BtnStart

	// BtnStop is the stop button.
	BtnStop

	// BtnDrill is the drill toggle (tala) button.
	BtnDrill

	buttonCount
)

// String returns the button name.
func (b Button) String() string {
	switch b {
	case BtnReset:
		return "reset"
	case BtnStart:
		return "start"
	case BtnStop:
		return "stop"
	case BtnDrill:
		return "drill"
	}
	return "unknown"
}

const (
	// sampleIntervalUs rate-limits raw pin sampling.
	sampleIntervalUs = 500

	// debounceUs is the minimum hold time across two samples before a
	// button's logical state changes.
	debounceUs = 5000
)

type buttonState struct {
	stable         int // semantic level: 1 = pressed
	candidate      int
	candidateAtUs  uint64
	rising, falling bool
}

// JoystickCommand is a scaled joystick sample.
type JoystickCommand struct {
	// Neutral is set when the stick is inside the dead band.
	Neutral bool

	// Dir is the commanded travel direction when not neutral.
	Dir pulse.Direction

	// HalfPeriodUs is the commanded velocity as a pulse half-period;
	// smaller is faster.
	HalfPeriodUs uint64
}

// Sampler owns debounce state for the four buttons and samples the
// interlock, limits and joystick. It is used only from the control
// task and needs no locking.
type Sampler struct {
	conn gpio.Conn
	pins config.Pins

	lowThreshold  int
	highThreshold int
	slowUs        uint64
	fastUs        uint64

	lastSampleUs uint64
	buttons      [buttonCount]buttonState
}

// NewSampler creates a sampler and primes the debounce state from the
// current line levels so power-up does not produce phantom edges.
func NewSampler(conn gpio.Conn, m *config.Machine) *Sampler {
	s := &Sampler{
		conn:          conn,
		pins:          m.Pins,
		lowThreshold:  m.Constants.JoystickLowThreshold,
		highThreshold: m.Constants.JoystickHighThreshold,
		slowUs:        m.Constants.ManualVelocitySlowUs,
		fastUs:        m.Constants.ManualVelocityFastUs,
	}
	for _, pin := range []int{m.Pins.BtnReset, m.Pins.BtnStart, m.Pins.BtnStop,
		m.Pins.BtnDrill, m.Pins.Safety, m.Pins.LimitHome, m.Pins.LimitFinal} {
		gpio.SetupInput(conn, pin)
	}
	for b := Button(0); b < buttonCount; b++ {
		level := s.readSemantic(b)
		s.buttons[b] = buttonState{stable: level, candidate: level}
	}
	return s
}

func (s *Sampler) buttonPin(b Button) int {
	switch b {
	case BtnReset:
		return s.pins.BtnReset
	case BtnStart:
		return s.pins.BtnStart
	case BtnStop:
		return s.pins.BtnStop
	default:
		return s.pins.BtnDrill
	}
}

// readSemantic returns 1 while the active-low line reads 0.
func (s *Sampler) readSemantic(b Button) int {
	if s.conn.ReadDigital(s.buttonPin(b)) == 0 {
		return 1
	}
	return 0
}

// Sample polls the buttons once. Calls closer together than the
// sampling interval are no-ops, so the control task may call it from
// every yield without stretching the edge timing.
func (s *Sampler) Sample() {
	now := s.conn.NowMicros()
	if now-s.lastSampleUs < sampleIntervalUs && s.lastSampleUs != 0 {
		return
	}
	s.lastSampleUs = now

	for b := Button(0); b < buttonCount; b++ {
		st := &s.buttons[b]
		level := s.readSemantic(b)
		if level != st.candidate {
			st.candidate = level
			st.candidateAtUs = now
			continue
		}
		if level != st.stable && now-st.candidateAtUs >= debounceUs {
			st.stable = level
			if level == 1 {
				st.rising = true
			} else {
				st.falling = true
			}
		}
	}
}

// RisingEdge reports a debounced press since the last call; the flag
// clears on read.
func (s *Sampler) RisingEdge(b Button) bool {
	st := &s.buttons[b]
	r := st.rising
	st.rising = false
	return r
}

// FallingEdge reports a debounced release since the last call; the
// flag clears on read.
func (s *Sampler) FallingEdge(b Button) bool {
	st := &s.buttons[b]
	f := st.falling
	st.falling = false
	return f
}

// Pressed returns the debounced level of a button.
func (s *Sampler) Pressed(b Button) bool {
	return s.buttons[b].stable == 1
}

// InjectRising arms a button's one-shot rising flag. The coordinator
// uses it to make virtual presses indistinguishable from physical
// ones. Must be called from the control task.
func (s *Sampler) InjectRising(b Button) {
	s.buttons[b].rising = true
}

// SafetyOK samples the interlock level: HIGH means the guard circuit
// is closed.
func (s *Sampler) SafetyOK() bool {
	return s.conn.ReadDigital(s.pins.Safety) == 1
}

// LimitHome samples the home limit level (HIGH = triggered).
func (s *Sampler) LimitHome() bool {
	return s.conn.ReadDigital(s.pins.LimitHome) == 1
}

// LimitFinal samples the final limit level (HIGH = triggered).
func (s *Sampler) LimitFinal() bool {
	return s.conn.ReadDigital(s.pins.LimitFinal) == 1
}

// Joystick samples and scales the analog stick.
func (s *Sampler) Joystick() (JoystickCommand, error) {
	raw, err := s.conn.ReadAnalog(s.pins.JoystickChannel)
	if err != nil {
		return JoystickCommand{Neutral: true}, err
	}
	return MapJoystick(raw, s.lowThreshold, s.highThreshold, s.slowUs, s.fastUs), nil
}

// MapJoystick partitions a 10-bit sample at the dead-band thresholds
// and maps the outer-band magnitude linearly onto a half-period:
// at the threshold the command is the slow half-period, at the rail it
// is the fast one.
func MapJoystick(raw, lowThreshold, highThreshold int, slowUs, fastUs uint64) JoystickCommand {
	switch {
	case raw <= lowThreshold:
		span := uint64(lowThreshold)
		dist := uint64(lowThreshold - raw)
		return JoystickCommand{
			Dir:          pulse.TowardHome,
			HalfPeriodUs: slowUs - (slowUs-fastUs)*dist/span,
		}
	case raw >= highThreshold:
		span := uint64(1023 - highThreshold)
		dist := uint64(raw - highThreshold)
		return JoystickCommand{
			Dir:          pulse.TowardFinal,
			HalfPeriodUs: slowUs - (slowUs-fastUs)*dist/span,
		}
	default:
		return JoystickCommand{Neutral: true}
	}
}
