package gpio

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"drillctl-go-migration/pkg/errors"
)

// testSimServer is a minimal stand-in for cmd/mock-gpio.
type testSimServer struct {
	mu       sync.Mutex
	upgrader websocket.Upgrader
	writes   []SimMessage
	conn     *websocket.Conn
}

func (s *testSimServer) handler(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conn = ws
	s.mu.Unlock()

	ws.WriteJSON(SimMessage{
		Type:   SimMsgState,
		Pins:   map[string]int{"6": 1, "13": 0},
		Analog: map[string]int{"0": 502},
	})

	for {
		var msg SimMessage
		if err := ws.ReadJSON(&msg); err != nil {
			return
		}
		s.mu.Lock()
		s.writes = append(s.writes, msg)
		s.mu.Unlock()
	}
}

func (s *testSimServer) push(msg SimMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.WriteJSON(msg)
}

func (s *testSimServer) recorded() []SimMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SimMessage, len(s.writes))
	copy(out, s.writes)
	return out
}

func startSim(t *testing.T) (*testSimServer, Conn) {
	t.Helper()
	srv := &testSimServer{}
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	t.Cleanup(ts.Close)

	conn, err := Open(BackendSim, Options{SimURL: ts.URL})
	if err != nil {
		t.Fatalf("open sim backend: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return srv, conn
}

func TestSimInitialState(t *testing.T) {
	_, conn := startSim(t)

	if conn.ReadDigital(6) != 1 {
		t.Error("safety pin should be high from initial state")
	}
	if conn.ReadDigital(13) != 0 {
		t.Error("home limit should be low from initial state")
	}
	v, err := conn.ReadAnalog(0)
	if err != nil || v != 502 {
		t.Errorf("analog 0 = %d, %v, want 502", v, err)
	}
	if _, err := conn.ReadAnalog(5); !errors.HasCode(err, errors.ErrGPIOChannel) {
		t.Errorf("missing channel error = %v", err)
	}
}

func TestSimPinPush(t *testing.T) {
	srv, conn := startSim(t)

	srv.push(SimMessage{Type: SimMsgPin, Pin: 13, Value: 1})
	srv.push(SimMessage{Type: SimMsgAnalog, Channel: 0, Value: 880})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		v, _ := conn.ReadAnalog(0)
		if conn.ReadDigital(13) == 1 && v == 880 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Error("pushed pin/analog changes never became visible")
}

func TestSimWriteStreams(t *testing.T) {
	srv, conn := startSim(t)

	conn.WriteDigital(18, 1)
	conn.WriteDigital(18, 0)

	// Local reflection is immediate.
	if conn.ReadDigital(18) != 0 {
		t.Error("write should reflect locally")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		w := srv.recorded()
		if len(w) >= 2 {
			if w[0].Type != SimMsgWrite || w[0].Pin != 18 || w[0].Value != 1 {
				t.Errorf("first write = %+v", w[0])
			}
			if w[1].Value != 0 {
				t.Errorf("second write = %+v", w[1])
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Error("writes never reached the simulator")
}

func TestSimDialFailure(t *testing.T) {
	_, err := Open(BackendSim, Options{SimURL: "http://127.0.0.1:1"})
	if !errors.HasCode(err, errors.ErrGPIOBackend) {
		t.Errorf("error = %v, want GPIO_BACKEND", err)
	}
}
