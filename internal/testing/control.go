package testing

import (
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/padbridge/padbridge/command"
	"github.com/padbridge/padbridge/internal/control"
)

// Queue records what the control channel asks of the scheduler.
type Queue struct {
	mu       sync.Mutex
	commands []command.Command
	clears   int
	hold     []bool
}

func (q *Queue) Enqueue(c command.Command) {
	q.mu.Lock()
	q.commands = append(q.commands, c)
	q.mu.Unlock()
}

func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.clears++
	return 0
}

func (q *Queue) SetHold(hold bool) {
	q.mu.Lock()
	q.hold = append(q.hold, hold)
	q.mu.Unlock()
}

// Commands returns a copy of every enqueued command.
func (q *Queue) Commands() []command.Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]command.Command(nil), q.commands...)
}

// Clears returns how often Clear was called.
func (q *Queue) Clears() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.clears
}

// HoldCalls returns the SetHold arguments in call order.
func (q *Queue) HoldCalls() []bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]bool(nil), q.hold...)
}

// ControlServers are control listeners started for a test.
type ControlServers struct {
	TCPAddr string
	WSAddr  string
	Hub     *control.Hub
}

// StartControl starts the TCP and WebSocket control servers on free local
// ports in front of q. Both are closed when the test ends.
func StartControl(t *testing.T, q control.Queue) *ControlServers {
	t.Helper()
	logger := slog.Default()
	cfg := control.Config{
		WSAddr:       "127.0.0.1:0",
		TCPAddr:      "127.0.0.1:0",
		WriteTimeout: time.Second,
	}
	hub := control.NewHub(logger)
	d := control.NewDispatcher(q, logger)

	tcp := control.NewLineServer(cfg, d, hub, logger)
	if err := tcp.Start(); err != nil {
		t.Fatalf("tcp control start failed: %v", err)
	}
	ws := control.NewWSServer(cfg, d, hub, logger)
	if err := ws.Start(); err != nil {
		tcp.Close()
		t.Fatalf("websocket control start failed: %v", err)
	}
	t.Cleanup(func() {
		ws.Close()
		tcp.Close()
	})
	return &ControlServers{TCPAddr: tcp.Addr(), WSAddr: ws.Addr(), Hub: hub}
}

// WaitClients blocks until the hub has n clients or the timeout passes.
func (s *ControlServers) WaitClients(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.Hub.Len() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d control clients, have %d", n, s.Hub.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// FreeAddr returns a local TCP address that was free a moment ago.
func FreeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}
