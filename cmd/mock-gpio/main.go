// mock-gpio is the HTTP-addressable GPIO simulator for developing the
// drill controller off-hardware. It holds the pin state of the CG4n51
// wiring, exposes REST endpoints for scripting operator actions, and
// pushes pin changes to connected controllers over a websocket.
//
// Usage:
//
//	mock-gpio [-addr :8100]
//
// Endpoints:
//
//	GET  /api/pins              full pin and analog state
//	GET  /api/pin/{pin}         one pin level
//	POST /api/pin/{pin}         set a pin level  {"value": 0|1}
//	POST /api/pin/{pin}/toggle  flip an input pin
//	POST /api/analog/{ch}       set an ADC sample {"value": 0..1023}
//	GET  /ws                    websocket: state snapshot + change events
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/gorilla/websocket"

	"drillctl-go-migration/pkg/gpio"
	"drillctl-go-migration/pkg/log"
)

// Default pin map, matching pkg/config defaults and the original
// simulator: buttons and switches idle at their pull-up level.
var defaultPins = map[int]int{
	18: 0, 23: 0, 24: 0, 25: 0, // step/dir outputs
	17: 1, 27: 1, 22: 1, 5: 1, // buttons (active low, idle high)
	13: 0, 19: 0, // limits (triggered = high)
	6: 1, // safety interlock (closed = high)
}

type simulator struct {
	logger *log.Logger

	mu      sync.Mutex
	pins    map[int]int
	analog  map[int]int
	clients map[*websocket.Conn]chan gpio.SimMessage

	upgrader websocket.Upgrader
}

func newSimulator() *simulator {
	s := &simulator{
		logger:  log.Default().Sub("mock-gpio"),
		pins:    make(map[int]int),
		analog:  map[int]int{0: 502},
		clients: make(map[*websocket.Conn]chan gpio.SimMessage),
	}
	for pin, v := range defaultPins {
		s.pins[pin] = v
	}
	return s
}

func (s *simulator) stateLocked() gpio.SimMessage {
	msg := gpio.SimMessage{
		Type:   gpio.SimMsgState,
		Pins:   make(map[string]int, len(s.pins)),
		Analog: make(map[string]int, len(s.analog)),
	}
	for pin, v := range s.pins {
		msg.Pins[strconv.Itoa(pin)] = v
	}
	for ch, v := range s.analog {
		msg.Analog[strconv.Itoa(ch)] = v
	}
	return msg
}

func (s *simulator) broadcastLocked(msg gpio.SimMessage) {
	for conn, ch := range s.clients {
		select {
		case ch <- msg:
		default:
			s.logger.Warn("client %v lagging, dropping event", conn.RemoteAddr())
		}
	}
}

func (s *simulator) setPin(pin, value int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pins[pin] == value {
		return
	}
	s.pins[pin] = value
	s.broadcastLocked(gpio.SimMessage{Type: gpio.SimMsgPin, Pin: pin, Value: value})
}

func (s *simulator) setAnalog(ch, value int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analog[ch] = value
	s.broadcastLocked(gpio.SimMessage{Type: gpio.SimMsgAnalog, Channel: ch, Value: value})
}

func (s *simulator) handlePins(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	msg := s.stateLocked()
	s.mu.Unlock()
	writeJSON(w, msg)
}

func (s *simulator) handlePin(w http.ResponseWriter, r *http.Request) {
	pin, err := strconv.Atoi(r.PathValue("pin"))
	if err != nil {
		http.Error(w, "bad pin", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.mu.Lock()
		v := s.pins[pin]
		s.mu.Unlock()
		writeJSON(w, map[string]int{"pin": pin, "value": v})
	case http.MethodPost:
		var body struct {
			Value int `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		s.setPin(pin, clampLevel(body.Value))
		writeJSON(w, map[string]int{"pin": pin, "value": clampLevel(body.Value)})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *simulator) handleToggle(w http.ResponseWriter, r *http.Request) {
	pin, err := strconv.Atoi(r.PathValue("pin"))
	if err != nil {
		http.Error(w, "bad pin", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	v := 1 - s.pins[pin]
	s.mu.Unlock()
	s.setPin(pin, v)
	writeJSON(w, map[string]int{"pin": pin, "value": v})
}

func (s *simulator) handleAnalog(w http.ResponseWriter, r *http.Request) {
	ch, err := strconv.Atoi(r.PathValue("channel"))
	if err != nil {
		http.Error(w, "bad channel", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.mu.Lock()
		v, ok := s.analog[ch]
		s.mu.Unlock()
		if !ok {
			http.Error(w, "no such channel", http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]int{"channel": ch, "value": v})
	case http.MethodPost:
		var body struct {
			Value int `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		if body.Value < 0 {
			body.Value = 0
		}
		if body.Value > 1023 {
			body.Value = 1023
		}
		s.setAnalog(ch, body.Value)
		writeJSON(w, map[string]int{"channel": ch, "value": body.Value})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *simulator) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed: %v", err)
		return
	}
	events := make(chan gpio.SimMessage, 64)

	s.mu.Lock()
	state := s.stateLocked()
	s.clients[conn] = events
	s.mu.Unlock()

	s.logger.Info("controller connected from %v", conn.RemoteAddr())

	// Writer: initial snapshot, then change events.
	go func() {
		if err := conn.WriteJSON(state); err != nil {
			return
		}
		for msg := range events {
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}()

	// Reader: output writes from the controller.
	for {
		var msg gpio.SimMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		if msg.Type == gpio.SimMsgWrite {
			s.setPin(msg.Pin, clampLevel(msg.Value))
		}
	}

	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	close(events)
	conn.Close()
	s.logger.Info("controller disconnected")
}

func clampLevel(v int) int {
	if v != 0 {
		return 1
	}
	return 0
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func main() {
	addr := flag.String("addr", ":8100", "listen address")
	flag.Parse()

	logger := log.Default()
	sim := newSimulator()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/pins", sim.handlePins)
	mux.HandleFunc("/api/pin/{pin}", sim.handlePin)
	mux.HandleFunc("POST /api/pin/{pin}/toggle", sim.handleToggle)
	mux.HandleFunc("/api/analog/{channel}", sim.handleAnalog)
	mux.HandleFunc("/ws", sim.handleWS)

	server := &http.Server{Addr: *addr, Handler: mux}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		server.Close()
	}()

	logger.Info("GPIO simulator listening on %s", *addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "mock-gpio: %v\n", err)
		os.Exit(1)
	}
}
