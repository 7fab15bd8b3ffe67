// HTTP GPIO simulator backend
//
// Client for the pin-state server in cmd/mock-gpio (the Go equivalent
// of the original RPi_GPIO_Simulator). Input levels are pushed from
// the server over a websocket and served from a local cache, so the
// hot path never blocks on the network; output writes are streamed
// back over the same connection.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package gpio

import (
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"

	"drillctl-go-migration/pkg/errors"
	"drillctl-go-migration/pkg/log"
)

// SimMessage is the wire format shared with cmd/mock-gpio.
type SimMessage struct {
	Type    string         `json:"type"`
	Pin     int            `json:"pin,omitempty"`
	Channel int            `json:"channel,omitempty"`
	Value   int            `json:"value"`
	Pins    map[string]int `json:"pins,omitempty"`
	Analog  map[string]int `json:"analog,omitempty"`
}

// Sim message types.
const (
	SimMsgState  = "state"
	SimMsgPin    = "pin"
	SimMsgAnalog = "analog"
	SimMsgWrite  = "write"
)

type simConn struct {
	ws     *websocket.Conn
	logger *log.Logger

	writeMu sync.Mutex // websocket writes need a single writer

	mu     sync.Mutex
	pins   map[int]int
	analog map[int]int
	broken bool

	done chan struct{}
}

func openSim(opts Options) (Conn, error) {
	base := opts.SimURL
	if base == "" {
		base = "http://127.0.0.1:8100"
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, errors.BackendError(BackendSim, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"

	ws, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, errors.BackendError(BackendSim,
			fmt.Errorf("dial %s: %w", u.String(), err))
	}

	s := &simConn{
		ws:     ws,
		logger: log.Default().Sub("sim"),
		pins:   make(map[int]int),
		analog: make(map[int]int),
		done:   make(chan struct{}),
	}

	// The server sends a full state snapshot first; block until it
	// lands so early reads see real levels instead of zeroes.
	var first SimMessage
	if err := ws.ReadJSON(&first); err != nil {
		ws.Close()
		return nil, errors.BackendError(BackendSim, err)
	}
	s.apply(&first)

	go s.readLoop()
	return s, nil
}

func (s *simConn) readLoop() {
	defer close(s.done)
	for {
		var msg SimMessage
		if err := s.ws.ReadJSON(&msg); err != nil {
			s.mu.Lock()
			s.broken = true
			s.mu.Unlock()
			s.logger.Warn("simulator connection lost: %v", err)
			return
		}
		s.apply(&msg)
	}
}

func (s *simConn) apply(msg *SimMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch msg.Type {
	case SimMsgState:
		for k, v := range msg.Pins {
			if pin, err := strconv.Atoi(k); err == nil {
				s.pins[pin] = v
			}
		}
		for k, v := range msg.Analog {
			if ch, err := strconv.Atoi(k); err == nil {
				s.analog[ch] = v
			}
		}
	case SimMsgPin:
		s.pins[msg.Pin] = msg.Value
	case SimMsgAnalog:
		s.analog[msg.Channel] = msg.Value
	}
}

// ReadDigital implements Conn from the pushed cache.
func (s *simConn) ReadDigital(pin int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pins[pin]
}

// WriteDigital implements Conn; the write is reflected locally and
// streamed to the simulator.
func (s *simConn) WriteDigital(pin int, value int) {
	s.mu.Lock()
	s.pins[pin] = value
	broken := s.broken
	s.mu.Unlock()
	if broken {
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	msg := SimMessage{Type: SimMsgWrite, Pin: pin, Value: value}
	if err := s.ws.WriteJSON(msg); err != nil {
		s.mu.Lock()
		s.broken = true
		s.mu.Unlock()
	}
}

// ReadAnalog implements Conn.
func (s *simConn) ReadAnalog(channel int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.analog[channel]
	if !ok {
		return 0, errors.NoSuchChannelError(channel)
	}
	return v, nil
}

// NowMicros implements Conn on the host monotonic clock.
func (s *simConn) NowMicros() uint64 { return nowMicros() }

// SleepMicros implements Conn.
func (s *simConn) SleepMicros(n uint64) { sleepMicros(n) }

// Close implements Conn.
func (s *simConn) Close() error {
	err := s.ws.Close()
	<-s.done
	return err
}

// Broken reports whether the simulator connection has failed. The
// control task does not check it; once broken, writes only update the
// local pin cache and reads return the last levels received.
func (s *simConn) Broken() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.broken
}
