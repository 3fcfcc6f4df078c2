// Package scheduler paces button commands onto the device link.
//
// Commands are queued in arrival order and sent one at a time, each held for
// its duration before the next is considered. In hold mode an empty queue
// leaves the last sent state on the device; otherwise the pad is released to
// neutral. A command equal to the last sent state is not re-sent.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/padbridge/padbridge/command"
	"github.com/padbridge/padbridge/internal/log"
	"github.com/padbridge/padbridge/pad"
)

// DefaultIdleTick is how often an idle scheduler re-checks its queue, and the
// duration of the implicit neutral command in no-hold mode.
const DefaultIdleTick = 50 * time.Millisecond

// Sender transmits a button state to the device.
type Sender interface {
	SendButtons(ctx context.Context, s pad.ButtonState) error
}

// Notifier receives the label of every command once its state was sent.
type Notifier interface {
	Notify(label string)
}

// State is the scheduler loop position.
type State int

const (
	StateIdleHolding State = iota
	StateSending
	StateWaiting
)

func (s State) String() string {
	switch s {
	case StateIdleHolding:
		return "idle-holding"
	case StateSending:
		return "sending"
	case StateWaiting:
		return "waiting"
	}
	return "unknown"
}

// Config holds the scheduler start-up settings.
type Config struct {
	Hold     bool          `help:"Hold the last sent buttons while the queue is empty" default:"true" negatable:"" env:"PADBRIDGE_HOLD"`
	IdleTick time.Duration `help:"Queue re-check interval while idle" default:"50ms" env:"PADBRIDGE_IDLE_TICK"`
}

// DefaultConfig returns hold mode on with the default idle tick.
func DefaultConfig() Config {
	return Config{Hold: true, IdleTick: DefaultIdleTick}
}

// Stats are running counters for a scheduler.
type Stats struct {
	Ticks   uint64
	Sent    uint64
	Failed  uint64
	Skipped uint64
}

// Scheduler owns the command queue and the last sent state. All of its
// methods are safe for concurrent use; Run must only be called once.
type Scheduler struct {
	sender   Sender
	notifier Notifier
	logger   *slog.Logger
	idleTick time.Duration

	mu       sync.Mutex
	queue    []command.Command
	hold     bool
	lastSent pad.ButtonState
	state    State
	stats    Stats

	wake chan struct{}
}

// New creates a scheduler. notifier may be nil.
func New(sender Sender, notifier Notifier, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.IdleTick <= 0 {
		cfg.IdleTick = DefaultIdleTick
	}
	return &Scheduler{
		sender:   sender,
		notifier: notifier,
		logger:   logger,
		idleTick: cfg.IdleTick,
		hold:     cfg.Hold,
		state:    StateWaiting,
		wake:     make(chan struct{}, 1),
	}
}

// Enqueue appends c to the queue.
func (s *Scheduler) Enqueue(c command.Command) {
	s.mu.Lock()
	s.queue = append(s.queue, c)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Clear drops every queued command and returns how many were dropped. The
// command currently being held is not affected.
func (s *Scheduler) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.queue)
	s.queue = nil
	return n
}

// SetHold switches hold mode.
func (s *Scheduler) SetHold(hold bool) {
	s.mu.Lock()
	s.hold = hold
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Hold reports whether hold mode is on.
func (s *Scheduler) Hold() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hold
}

// Len returns the number of queued commands.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// LastSent returns the state most recently handed to the sender.
func (s *Scheduler) LastSent() pad.ButtonState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSent
}

// State returns the current loop position.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns a snapshot of the scheduler counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// next picks the command for this tick. ok is false when the scheduler
// should keep holding.
func (s *Scheduler) next() (c command.Command, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Ticks++
	if len(s.queue) == 0 {
		if s.hold {
			s.state = StateIdleHolding
			return command.Command{}, false
		}
		return command.Command{State: pad.Neutral(), Duration: s.idleTick}, true
	}
	c = s.queue[0]
	s.queue[0] = command.Command{}
	s.queue = s.queue[1:]
	return c, true
}

// claim records st as sent unless it equals the last sent state.
func (s *Scheduler) claim(st pad.ButtonState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st == s.lastSent {
		s.stats.Skipped++
		s.state = StateWaiting
		return false
	}
	s.lastSent = st
	s.state = StateSending
	return true
}

func (s *Scheduler) settle(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.stats.Failed++
	} else {
		s.stats.Sent++
	}
	s.state = StateWaiting
}

// Run drives the queue until ctx is done. Send failures are logged and do
// not stop the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Debug("scheduler started", "hold", s.Hold(), "idle_tick", s.idleTick)
	for {
		c, ok := s.next()
		if !ok {
			if err := s.sleep(ctx, s.idleTick, true); err != nil {
				return err
			}
			continue
		}

		if s.claim(c.State) {
			err := s.sender.SendButtons(ctx, c.State)
			s.settle(err)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Warn("send buttons failed", "buttons", c.State.Buttons, "dpad", c.State.Dpad, "label", c.Label, "error", err)
			}
			if c.Label != "" {
				s.logger.Info("label", "label", c.Label)
				if s.notifier != nil {
					s.notifier.Notify(c.Label)
				}
			}
		} else {
			s.logger.Log(ctx, log.LevelTrace, "skipping unchanged buttons", "label", c.Label)
		}

		if err := s.sleep(ctx, c.Duration, false); err != nil {
			return err
		}
	}
}

// sleep waits for d. An idle wait also ends early when the queue or hold
// mode changes.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration, idle bool) error {
	if d <= 0 {
		return ctx.Err()
	}
	var wake <-chan struct{}
	if idle {
		wake = s.wake
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	case <-wake:
	}
	return nil
}
