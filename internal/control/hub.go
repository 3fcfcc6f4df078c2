package control

import (
	"io"
	"log/slog"
	"sync"
)

// sendQueueLen is how many messages a client may fall behind before it is
// dropped.
const sendQueueLen = 64

// Client is a connected control client that can receive text messages.
type Client interface {
	SendText(msg string) error
}

type outbox struct {
	msgs chan string
	done chan struct{}
}

// Hub fans completion labels out to every connected client. It implements
// scheduler.Notifier. Each client is written from its own goroutine, so a
// slow client never blocks the caller of Notify.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[Client]*outbox
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{logger: logger, clients: make(map[Client]*outbox)}
}

// Add registers c for broadcasts. Adding a registered client is a no-op.
func (h *Hub) Add(c Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		h.mu.Unlock()
		return
	}
	ob := &outbox{msgs: make(chan string, sendQueueLen), done: make(chan struct{})}
	h.clients[c] = ob
	n := len(h.clients)
	h.mu.Unlock()

	go h.deliver(c, ob)
	h.logger.Debug("control client registered", "clients", n)
}

// Remove unregisters c and discards its undelivered messages. Removing an
// unknown client is a no-op.
func (h *Hub) Remove(c Client) {
	h.mu.Lock()
	ob, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(ob.done)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.logger.Debug("control client removed", "clients", n)
	}
}

// Len returns the number of registered clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Notify queues label for every client.
func (h *Hub) Notify(label string) {
	h.Broadcast(label)
}

// Broadcast queues msg for every client and returns how many accepted it.
// A client whose queue is full is dropped and, if it is an io.Closer,
// closed so its connection handler can finish.
func (h *Hub) Broadcast(msg string) int {
	var stalled []Client
	queued := 0
	h.mu.Lock()
	for c, ob := range h.clients {
		select {
		case ob.msgs <- msg:
			queued++
		default:
			stalled = append(stalled, c)
		}
	}
	h.mu.Unlock()

	for _, c := range stalled {
		h.logger.Warn("control client too slow, dropping", "queued", sendQueueLen)
		h.drop(c)
	}
	return queued
}

func (h *Hub) deliver(c Client, ob *outbox) {
	for {
		select {
		case <-ob.done:
			return
		case msg := <-ob.msgs:
			select {
			case <-ob.done:
				return
			default:
			}
			if err := c.SendText(msg); err != nil {
				h.logger.Warn("broadcast failed, dropping client", "error", err)
				h.drop(c)
				return
			}
		}
	}
}

func (h *Hub) drop(c Client) {
	h.Remove(c)
	if cl, ok := c.(io.Closer); ok {
		_ = cl.Close()
	}
}
