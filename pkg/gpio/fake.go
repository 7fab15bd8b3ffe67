// In-process fake GPIO backend
//
// The fake runs on a virtual microsecond clock: SleepMicros advances
// virtual time instantly and fires any input events scheduled inside
// the slept window, so full cycle scenarios execute in milliseconds of
// real time. Every digital write is recorded with its virtual
// timestamp for edge-timing assertions.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package gpio

import (
	"sync"

	"drillctl-go-migration/pkg/errors"
)

// Write is one recorded digital write.
type Write struct {
	AtMicros uint64
	Value    int
}

type fakeEvent struct {
	at  uint64
	seq uint64
	fn  func(*Fake)
}

// Fake is the in-process test backend.
type Fake struct {
	mu     sync.Mutex
	now    uint64
	pins   map[int]int
	analog map[int]int
	events []fakeEvent
	seq    uint64
	writes map[int][]Write
}

// NewFake creates a fake backend with all pins low and no analog
// channels. Tests seed input levels with SetPin/SetAnalog.
func NewFake() *Fake {
	return &Fake{
		pins:   make(map[int]int),
		analog: make(map[int]int),
		writes: make(map[int][]Write),
	}
}

// ReadDigital implements Conn.
func (f *Fake) ReadDigital(pin int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pins[pin]
}

// WriteDigital implements Conn and records the write.
func (f *Fake) WriteDigital(pin int, value int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pins[pin] = value
	f.writes[pin] = append(f.writes[pin], Write{AtMicros: f.now, Value: value})
}

// ReadAnalog implements Conn.
func (f *Fake) ReadAnalog(channel int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.analog[channel]
	if !ok {
		return 0, errors.NoSuchChannelError(channel)
	}
	return v, nil
}

// NowMicros implements Conn.
func (f *Fake) NowMicros() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// SleepMicros advances the virtual clock, firing scheduled events that
// fall inside the window in timestamp order. Events run without the
// lock held so they may call SetPin and friends.
func (f *Fake) SleepMicros(n uint64) {
	f.mu.Lock()
	target := f.now + n
	for {
		idx := -1
		for i, ev := range f.events {
			if ev.at <= target && (idx == -1 || ev.at < f.events[idx].at ||
				(ev.at == f.events[idx].at && ev.seq < f.events[idx].seq)) {
				idx = i
			}
		}
		if idx == -1 {
			break
		}
		ev := f.events[idx]
		f.events = append(f.events[:idx], f.events[idx+1:]...)
		if ev.at > f.now {
			f.now = ev.at
		}
		f.mu.Unlock()
		ev.fn(f)
		f.mu.Lock()
	}
	f.now = target
	f.mu.Unlock()
}

// Close implements Conn.
func (f *Fake) Close() error { return nil }

// SetPin sets an input level immediately.
func (f *Fake) SetPin(pin, value int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pins[pin] = value
}

// SetAnalog sets (and creates) an analog channel sample.
func (f *Fake) SetAnalog(channel, value int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analog[channel] = value
}

// At schedules fn to run when the virtual clock reaches the absolute
// time at. Events scheduled for the same instant fire in scheduling
// order.
func (f *Fake) At(at uint64, fn func(*Fake)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.events = append(f.events, fakeEvent{at: at, seq: f.seq, fn: fn})
}

// After schedules fn relative to the current virtual time.
func (f *Fake) After(d uint64, fn func(*Fake)) {
	f.mu.Lock()
	at := f.now + d
	f.seq++
	f.events = append(f.events, fakeEvent{at: at, seq: f.seq, fn: fn})
	f.mu.Unlock()
}

// Writes returns every recorded write to pin in order.
func (f *Fake) Writes(pin int) []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Write, len(f.writes[pin]))
	copy(out, f.writes[pin])
	return out
}

// RisingWrites returns the recorded 0->1 transitions on pin.
func (f *Fake) RisingWrites(pin int) []Write {
	all := f.Writes(pin)
	var out []Write
	prev := 0
	for _, w := range all {
		if w.Value == 1 && prev == 0 {
			out = append(out, w)
		}
		prev = w.Value
	}
	return out
}

// ClearWrites drops the recorded write history.
func (f *Fake) ClearWrites() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = make(map[int][]Write)
}

// PressButton schedules an active-low button press at the given
// virtual time, held for holdMicros before release. The hold must span
// at least two 5 ms debounce samples for the sampler to accept it.
func (f *Fake) PressButton(pin int, at, holdMicros uint64) {
	f.At(at, func(f *Fake) { f.SetPin(pin, 0) })
	f.At(at+holdMicros, func(f *Fake) { f.SetPin(pin, 1) })
}
