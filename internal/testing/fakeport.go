// Package testing contains helpers shared by package tests: a fake serial
// port that plays the controller emulator, and control server starters.
package testing

import (
	"io"
	"sync"

	"github.com/padbridge/padbridge/checksum"
	"github.com/padbridge/padbridge/pad"
)

// Device reply bytes.
const (
	Ack  = 0x90
	Nack = 0x92
)

// Responder returns the bytes the fake device sends back after a write.
type Responder func(written []byte) []byte

// FakePort is an in-memory serial port. Bytes passed to Inject (or returned
// by the Responder) are delivered to Read in order.
type FakePort struct {
	mu      sync.Mutex
	pending []byte
	writes  [][]byte
	notify  chan struct{}
	closed  bool
	done    chan struct{}

	respond Responder
}

// NewFakePort creates a port whose writes are answered by respond. A nil
// responder never answers.
func NewFakePort(respond Responder) *FakePort {
	return &FakePort{
		notify:  make(chan struct{}),
		done:    make(chan struct{}),
		respond: respond,
	}
}

// SetResponder replaces the responder.
func (f *FakePort) SetResponder(r Responder) {
	f.mu.Lock()
	f.respond = r
	f.mu.Unlock()
}

// Inject queues bytes for Read as if the device had sent them.
func (f *FakePort) Inject(b ...byte) {
	if len(b) == 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, b...)
	close(f.notify)
	f.notify = make(chan struct{})
}

func (f *FakePort) Read(b []byte) (int, error) {
	for {
		f.mu.Lock()
		if len(f.pending) > 0 {
			n := copy(b, f.pending)
			f.pending = f.pending[n:]
			f.mu.Unlock()
			return n, nil
		}
		if f.closed {
			f.mu.Unlock()
			return 0, io.EOF
		}
		ch := f.notify
		f.mu.Unlock()
		select {
		case <-ch:
		case <-f.done:
		}
	}
}

func (f *FakePort) Write(b []byte) (int, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	f.writes = append(f.writes, append([]byte(nil), b...))
	respond := f.respond
	f.mu.Unlock()

	if respond != nil {
		f.Inject(respond(b)...)
	}
	return len(b), nil
}

func (f *FakePort) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	close(f.done)
	return nil
}

// Flush discards undelivered input.
func (f *FakePort) Flush() error {
	f.mu.Lock()
	f.pending = nil
	f.mu.Unlock()
	return nil
}

// Writes returns a copy of every Write call so far.
func (f *FakePort) Writes() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.writes))
	copy(out, f.writes)
	return out
}

// Frames decodes every 9-byte write as a button frame.
func (f *FakePort) Frames() []pad.ButtonState {
	var out []pad.ButtonState
	for _, w := range f.Writes() {
		if len(w) != pad.FrameSize {
			continue
		}
		var s pad.ButtonState
		if err := s.UnmarshalBinary(w); err == nil {
			out = append(out, s)
		}
	}
	return out
}

// Device answers like a healthy controller emulator: handshake challenges get
// their expected reply, valid frames are acknowledged and corrupt ones
// rejected.
func Device() Responder {
	return func(w []byte) []byte {
		if len(w) == 1 {
			switch w[0] {
			case 0xFF:
				return []byte{0xFF}
			case 0x33:
				return []byte{0xCC}
			case 0xCC:
				return []byte{0x33}
			}
			return nil
		}
		if len(w) == pad.FrameSize {
			if checksum.Sum(w[:pad.PayloadSize]) == w[pad.PayloadSize] {
				return []byte{Ack}
			}
			return []byte{Nack}
		}
		return nil
	}
}

// Script answers successive writes with the given replies, one entry per
// write, then falls back to next (which may be nil).
func Script(next Responder, replies ...[]byte) Responder {
	var mu sync.Mutex
	return func(w []byte) []byte {
		mu.Lock()
		defer mu.Unlock()
		if len(replies) > 0 {
			r := replies[0]
			replies = replies[1:]
			return r
		}
		if next != nil {
			return next(w)
		}
		return nil
	}
}
