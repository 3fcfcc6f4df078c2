package scheduler_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padbridge/padbridge/command"
	"github.com/padbridge/padbridge/internal/link"
	"github.com/padbridge/padbridge/internal/scheduler"
	th "github.com/padbridge/padbridge/internal/testing"
	"github.com/padbridge/padbridge/pad"
)

type sent struct {
	state pad.ButtonState
	at    time.Time
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sent
	fail func(n int) error
}

func (r *recordingSender) SendButtons(_ context.Context, s pad.ButtonState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{state: s, at: time.Now()})
	if r.fail != nil {
		return r.fail(len(r.sent))
	}
	return nil
}

func (r *recordingSender) states() []pad.ButtonState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]pad.ButtonState, len(r.sent))
	for i, s := range r.sent {
		out[i] = s.state
	}
	return out
}

type labels struct {
	mu  sync.Mutex
	got []string
}

func (l *labels) Notify(label string) {
	l.mu.Lock()
	l.got = append(l.got, label)
	l.mu.Unlock()
}

func (l *labels) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.got...)
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func press(b pad.Buttons, d time.Duration, label string) command.Command {
	return command.Command{State: pad.ButtonState{Buttons: b}, Duration: d, Label: label}
}

func start(t *testing.T, sender scheduler.Sender, n scheduler.Notifier, hold bool) *scheduler.Scheduler {
	t.Helper()
	s := scheduler.New(sender, n, scheduler.Config{Hold: hold, IdleTick: 5 * time.Millisecond}, discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
	})
	return s
}

func drained(s *scheduler.Scheduler) func() bool {
	return func() bool { return s.Len() == 0 && s.State() == scheduler.StateIdleHolding }
}

func TestDuplicateStatesAreSentOnce(t *testing.T) {
	snd := &recordingSender{}
	s := start(t, snd, nil, true)

	s.Enqueue(press(pad.ButtonA, 5*time.Millisecond, ""))
	s.Enqueue(press(pad.ButtonA, 5*time.Millisecond, ""))
	require.Eventually(t, drained(s), time.Second, time.Millisecond)

	assert.Equal(t, []pad.ButtonState{{Buttons: pad.ButtonA}}, snd.states())
	assert.Equal(t, uint64(1), s.Stats().Skipped)
	assert.Equal(t, pad.ButtonState{Buttons: pad.ButtonA}, s.LastSent())
}

func TestHoldModeSendsNothingWhenIdle(t *testing.T) {
	snd := &recordingSender{}
	s := start(t, snd, nil, true)

	s.Enqueue(press(pad.ButtonB, 5*time.Millisecond, ""))
	require.Eventually(t, drained(s), time.Second, time.Millisecond)
	ticks := s.Stats().Ticks

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []pad.ButtonState{{Buttons: pad.ButtonB}}, snd.states())
	assert.Greater(t, s.Stats().Ticks, ticks, "scheduler keeps ticking while holding")
	assert.Equal(t, scheduler.StateIdleHolding, s.State())
}

func TestNoHoldReleasesToNeutralOnce(t *testing.T) {
	snd := &recordingSender{}
	s := start(t, snd, nil, false)

	s.Enqueue(press(pad.ButtonX, 5*time.Millisecond, ""))
	require.Eventually(t, func() bool { return len(snd.states()) == 2 }, time.Second, time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []pad.ButtonState{{Buttons: pad.ButtonX}, pad.Neutral()}, snd.states())
	assert.Equal(t, pad.Neutral(), s.LastSent())
	assert.Greater(t, s.Stats().Skipped, uint64(0))
}

func TestSwitchingHoldMode(t *testing.T) {
	snd := &recordingSender{}
	s := start(t, snd, nil, true)

	s.Enqueue(press(pad.ButtonL, 5*time.Millisecond, ""))
	require.Eventually(t, drained(s), time.Second, time.Millisecond)
	assert.True(t, s.Hold())

	s.SetHold(false)
	assert.False(t, s.Hold())
	require.Eventually(t, func() bool { return len(snd.states()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, pad.Neutral(), snd.states()[1])
}

func TestLabelsReportedOnSuccessAndFailure(t *testing.T) {
	snd := &recordingSender{fail: func(n int) error {
		if n == 1 {
			return link.ErrReadTimeout
		}
		return nil
	}}
	lb := &labels{}
	s := start(t, snd, lb, true)

	s.Enqueue(press(pad.ButtonA, 5*time.Millisecond, "first"))
	s.Enqueue(press(pad.ButtonB, 5*time.Millisecond, ""))
	s.Enqueue(press(pad.ButtonB, 5*time.Millisecond, "duplicate"))
	s.Enqueue(press(pad.ButtonY, 5*time.Millisecond, "last"))
	require.Eventually(t, drained(s), time.Second, time.Millisecond)

	assert.Equal(t, []string{"first", "last"}, lb.list())
	st := s.Stats()
	assert.Equal(t, uint64(1), st.Failed)
	assert.Equal(t, uint64(2), st.Sent)
	assert.Equal(t, uint64(1), st.Skipped)
}

func TestDurationPacing(t *testing.T) {
	snd := &recordingSender{}
	s := start(t, snd, nil, true)

	s.Enqueue(press(pad.ButtonA, 80*time.Millisecond, ""))
	s.Enqueue(press(pad.ButtonB, 5*time.Millisecond, ""))
	require.Eventually(t, drained(s), time.Second, time.Millisecond)

	snd.mu.Lock()
	defer snd.mu.Unlock()
	require.Len(t, snd.sent, 2)
	assert.GreaterOrEqual(t, snd.sent[1].at.Sub(snd.sent[0].at), 80*time.Millisecond)
}

func TestSkippedCommandStillHoldsItsDuration(t *testing.T) {
	snd := &recordingSender{}
	s := start(t, snd, nil, true)

	s.Enqueue(press(pad.ButtonA, 5*time.Millisecond, ""))
	s.Enqueue(press(pad.ButtonA, 80*time.Millisecond, ""))
	s.Enqueue(press(pad.ButtonB, 5*time.Millisecond, ""))
	require.Eventually(t, drained(s), time.Second, time.Millisecond)

	snd.mu.Lock()
	defer snd.mu.Unlock()
	require.Len(t, snd.sent, 2)
	assert.GreaterOrEqual(t, snd.sent[1].at.Sub(snd.sent[0].at), 85*time.Millisecond)
}

func TestClear(t *testing.T) {
	snd := &recordingSender{}
	s := start(t, snd, nil, true)

	s.Enqueue(press(pad.ButtonA, 200*time.Millisecond, ""))
	require.Eventually(t, func() bool { return len(snd.states()) == 1 }, time.Second, time.Millisecond)
	s.Enqueue(press(pad.ButtonB, 5*time.Millisecond, ""))
	s.Enqueue(press(pad.ButtonX, 5*time.Millisecond, ""))

	assert.Equal(t, 2, s.Clear())
	assert.Equal(t, 0, s.Len())
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, []pad.ButtonState{{Buttons: pad.ButtonA}}, snd.states())
}

func TestRunStopsOnCancel(t *testing.T) {
	s := scheduler.New(&recordingSender{}, nil, scheduler.DefaultConfig(), discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	s.Enqueue(press(pad.ButtonA, time.Hour, ""))
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestConcurrentProducers(t *testing.T) {
	snd := &recordingSender{}
	s := start(t, snd, nil, true)

	buttons := []pad.Buttons{pad.ButtonA, pad.ButtonB, pad.ButtonX, pad.ButtonY}
	var wg sync.WaitGroup
	for _, b := range buttons {
		wg.Add(1)
		go func(b pad.Buttons) {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				s.Enqueue(press(b, 0, ""))
				s.Enqueue(press(0, 0, ""))
			}
		}(b)
	}
	wg.Wait()
	require.Eventually(t, drained(s), 2*time.Second, time.Millisecond)

	got := snd.states()
	assert.NotEmpty(t, got)
	for i := 1; i < len(got); i++ {
		assert.NotEqual(t, got[i-1], got[i], "consecutive frames must differ")
	}
}

func TestWithLink(t *testing.T) {
	port := th.NewFakePort(th.Device())
	l := link.New(port, link.Config{PollInterval: time.Millisecond, PollAttempts: 50}, discard(), nil)
	t.Cleanup(func() { _ = l.Close() })

	lb := &labels{}
	s := start(t, l, lb, true)

	for _, line := range []string{"a;5;one", "a;5;two", "b dup;5;three"} {
		parsed, err := command.Parse(line)
		require.NoError(t, err)
		s.Enqueue(parsed.Command)
	}
	require.Eventually(t, drained(s), time.Second, time.Millisecond)

	assert.Equal(t, []pad.ButtonState{
		{Buttons: pad.ButtonA},
		{Buttons: pad.ButtonB, Dpad: pad.DpadUp},
	}, port.Frames())
	assert.Equal(t, []string{"one", "three"}, lb.list())
	assert.Equal(t, uint64(2), l.Stats().Acks)
}
