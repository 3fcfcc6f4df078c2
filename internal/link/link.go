// Package link drives the byte-level protocol spoken by the controller
// emulator: the reset handshake, button frames and their acknowledgements.
//
// Every byte received from the device is classified into one of two slots,
// the ack slot and the handshake slot. A slot is cleared before the write that
// provokes the reply it waits for and consumed when read, so a byte is never
// observed twice.
package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/padbridge/padbridge/internal/log"
	"github.com/padbridge/padbridge/pad"
)

// Reply bytes sent by the device.
const (
	Ack       = 0x90
	Nack      = 0x92
	SyncStart = 0xFF
	Sync1     = 0xCC
	SyncOK    = 0x33
)

// flushLen is the number of 0xFF bytes written before the first handshake
// step to get the device out of a half-received frame.
const flushLen = 8

var handshakeSteps = [...]struct{ send, want byte }{
	{SyncStart, SyncStart},
	{SyncOK, Sync1},
	{Sync1, SyncOK},
}

// Config controls reply timing.
type Config struct {
	// PollInterval and PollAttempts bound every wait for a reply byte to
	// PollInterval*PollAttempts.
	PollInterval time.Duration
	PollAttempts int
	// RetryDelay is the pause before a failed handshake is restarted.
	RetryDelay time.Duration
}

// DefaultConfig returns the timing the device firmware expects.
func DefaultConfig() Config {
	return Config{
		PollInterval: 10 * time.Millisecond,
		PollAttempts: 50,
		RetryDelay:   2 * time.Second,
	}
}

func (c Config) replyTimeout() time.Duration {
	return c.PollInterval * time.Duration(c.PollAttempts)
}

// Stats are running counters for a link.
type Stats struct {
	FramesSent        uint64
	Acks              uint64
	Nacks             uint64
	Timeouts          uint64
	HandshakeRestarts uint64
}

type slot struct {
	v  byte
	ok bool
}

func (s *slot) set(b byte) { s.v, s.ok = b, true }

// Link is the driver's view of the device.
type Link struct {
	port   io.ReadWriteCloser
	cfg    Config
	logger *slog.Logger
	raw    log.RawLogger

	writeMu sync.Mutex

	mu      sync.Mutex
	ack     slot
	sync    slot
	changed chan struct{}
	stats   Stats

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// New wraps an open port and starts reading from it. The link owns the port
// from here on; Close closes it.
func New(port io.ReadWriteCloser, cfg Config, logger *slog.Logger, raw log.RawLogger) *Link {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = def.PollAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if raw == nil {
		raw = log.NewRaw(nil)
	}
	l := &Link{
		port:    port,
		cfg:     cfg,
		logger:  logger,
		raw:     raw,
		changed: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go l.readLoop()
	return l
}

// Done is closed once the link is no longer open.
func (l *Link) Done() <-chan struct{} { return l.done }

// IsOpen reports whether the link can still be used.
func (l *Link) IsOpen() bool {
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

// Err returns the reason the link closed, or nil while it is open or after a
// plain Close.
func (l *Link) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeErr
}

// Stats returns a snapshot of the link counters.
func (l *Link) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Close closes the link and the underlying port. Pending waits fail with
// ErrLinkNotOpen. Close is safe to call more than once.
func (l *Link) Close() error {
	return l.shutdown(nil)
}

func (l *Link) shutdown(reason error) error {
	var err error
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closeErr = reason
		l.mu.Unlock()
		close(l.done)
		err = l.port.Close()
	})
	return err
}

func (l *Link) readLoop() {
	buf := make([]byte, 64)
	for {
		n, err := l.port.Read(buf)
		if n > 0 {
			l.raw.Log("rx", buf[:n])
			for _, b := range buf[:n] {
				l.classify(b)
			}
		}
		if err != nil {
			if l.IsOpen() {
				if !errors.Is(err, io.EOF) {
					l.logger.Error("serial read failed", "error", err)
				} else {
					l.logger.Warn("serial link closed by device")
				}
				_ = l.shutdown(err)
			}
			return
		}
	}
}

// classify files an incoming byte into the reply slots. NACK and any byte the
// protocol does not define land in both slots, so a waiter of either kind
// sees them as a wrong reply instead of timing out.
func (l *Link) classify(b byte) {
	if b == Nack {
		l.logger.Warn("NACK from device")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	switch b {
	case Ack:
		l.ack.set(b)
	case SyncStart, Sync1, SyncOK:
		l.sync.set(b)
	default:
		l.ack.set(b)
		l.sync.set(b)
	}
	close(l.changed)
	l.changed = make(chan struct{})
}

func (l *Link) clear(s *slot) {
	l.mu.Lock()
	*s = slot{}
	l.mu.Unlock()
}

// wait blocks until s holds a byte, the reply timeout expires, the link
// closes or ctx is done.
func (l *Link) wait(ctx context.Context, s *slot) (byte, error) {
	timer := time.NewTimer(l.cfg.replyTimeout())
	defer timer.Stop()
	for {
		l.mu.Lock()
		if !l.IsOpen() {
			l.mu.Unlock()
			return 0, ErrLinkNotOpen
		}
		if s.ok {
			v := s.v
			*s = slot{}
			l.mu.Unlock()
			return v, nil
		}
		changed := l.changed
		l.mu.Unlock()

		select {
		case <-changed:
		case <-timer.C:
			l.mu.Lock()
			l.stats.Timeouts++
			l.mu.Unlock()
			return 0, ErrReadTimeout
		case <-l.done:
			return 0, ErrLinkNotOpen
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func (l *Link) write(b []byte) error {
	if !l.IsOpen() {
		return ErrLinkNotOpen
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	l.raw.Log("tx", b)
	n, err := l.port.Write(b)
	if err != nil {
		if !l.IsOpen() {
			return ErrLinkNotOpen
		}
		return fmt.Errorf("serial write: %w", err)
	}
	if n != len(b) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(b))
	}
	return nil
}

// SendButtons writes one frame for s and waits for the device to acknowledge
// it. Any reply other than ACK is returned as a *NackError.
func (l *Link) SendButtons(ctx context.Context, s pad.ButtonState) error {
	if !l.IsOpen() {
		return ErrLinkNotOpen
	}
	frame, err := s.MarshalBinary()
	if err != nil {
		return err
	}
	l.clear(&l.ack)
	if err := l.write(frame); err != nil {
		return err
	}
	l.mu.Lock()
	l.stats.FramesSent++
	l.mu.Unlock()

	reply, err := l.wait(ctx, &l.ack)
	if err != nil {
		return err
	}
	if reply != Ack {
		l.mu.Lock()
		l.stats.Nacks++
		l.mu.Unlock()
		return &NackError{Byte: reply}
	}
	l.mu.Lock()
	l.stats.Acks++
	l.mu.Unlock()
	l.logger.Log(ctx, log.LevelTrace, "frame acknowledged", "buttons", s.Buttons, "dpad", s.Dpad)
	return nil
}

// Handshake resets the device protocol state. It flushes the device with
// 0xFF bytes and then runs the three-step challenge. A step that times out or
// answers wrongly restarts the whole challenge after RetryDelay; there is no
// limit on restarts. Handshake only fails when the link closes or ctx ends.
func (l *Link) Handshake(ctx context.Context) error {
	flush := make([]byte, flushLen)
	for i := range flush {
		flush[i] = SyncStart
	}
	if err := l.write(flush); err != nil {
		return err
	}

	for attempt := 1; ; attempt++ {
		err := l.challenge(ctx)
		if err == nil {
			l.logger.Info("controller initialized", "attempts", attempt)
			return nil
		}
		if !errors.Is(err, ErrHandshakeMismatch) {
			return err
		}
		l.mu.Lock()
		l.stats.HandshakeRestarts++
		l.mu.Unlock()
		l.logger.Warn("handshake failed, restarting", "attempt", attempt, "error", err, "delay", l.cfg.RetryDelay)

		timer := time.NewTimer(l.cfg.RetryDelay)
		select {
		case <-timer.C:
		case <-l.done:
			timer.Stop()
			return ErrLinkNotOpen
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

func (l *Link) challenge(ctx context.Context) error {
	for i, step := range handshakeSteps {
		l.clear(&l.sync)
		if err := l.write([]byte{step.send}); err != nil {
			return err
		}
		got, err := l.wait(ctx, &l.sync)
		if errors.Is(err, ErrReadTimeout) {
			return &HandshakeError{Step: i + 1, Want: step.want, Err: err}
		}
		if err != nil {
			return err
		}
		if got != step.want {
			return &HandshakeError{Step: i + 1, Got: got, Want: step.want}
		}
	}
	return nil
}
