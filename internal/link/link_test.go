package link

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	th "github.com/padbridge/padbridge/internal/testing"
	"github.com/padbridge/padbridge/pad"
)

func testConfig() Config {
	return Config{
		PollInterval: time.Millisecond,
		PollAttempts: 30,
		RetryDelay:   5 * time.Millisecond,
	}
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestLink(t *testing.T, r th.Responder, cfg Config) (*Link, *th.FakePort) {
	t.Helper()
	port := th.NewFakePort(r)
	l := New(port, cfg, discard(), nil)
	t.Cleanup(func() { _ = l.Close() })
	return l, port
}

var flush = bytes.Repeat([]byte{0xFF}, 8)

func singleBytes(writes [][]byte) []byte {
	var out []byte
	for _, w := range writes {
		if len(w) == 1 {
			out = append(out, w[0])
		}
	}
	return out
}

func TestHandshake(t *testing.T) {
	tests := []struct {
		name         string
		responder    th.Responder
		wantSent     []byte
		wantRestarts uint64
	}{
		{
			name:      "clean pass",
			responder: th.Device(),
			wantSent:  []byte{0xFF, 0x33, 0xCC},
		},
		{
			name: "mismatch at step two restarts from step one",
			responder: th.Script(th.Device(),
				nil,          // flush
				[]byte{0xFF}, // step 1 ok
				[]byte{0xFF}, // step 2 wrong
			),
			wantSent:     []byte{0xFF, 0x33, 0xFF, 0x33, 0xCC},
			wantRestarts: 1,
		},
		{
			name: "missing reply restarts",
			responder: th.Script(th.Device(),
				nil,          // flush
				[]byte{0xFF}, // step 1 ok
				[]byte{0xCC}, // step 2 ok
				nil,          // step 3 silent
			),
			wantSent:     []byte{0xFF, 0x33, 0xCC, 0xFF, 0x33, 0xCC},
			wantRestarts: 1,
		},
		{
			name: "nack during handshake counts as mismatch",
			responder: th.Script(th.Device(),
				nil,
				[]byte{Nack},
			),
			wantSent:     []byte{0xFF, 0xFF, 0x33, 0xCC},
			wantRestarts: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, port := newTestLink(t, tt.responder, testConfig())
			require.NoError(t, l.Handshake(context.Background()))

			writes := port.Writes()
			require.NotEmpty(t, writes)
			assert.Equal(t, flush, writes[0])
			assert.Equal(t, tt.wantSent, singleBytes(writes[1:]))
			assert.Equal(t, tt.wantRestarts, l.Stats().HandshakeRestarts)
		})
	}
}

func TestHandshakeWaitsRetryDelay(t *testing.T) {
	cfg := testConfig()
	cfg.RetryDelay = 80 * time.Millisecond
	l, _ := newTestLink(t, th.Script(th.Device(), nil, []byte{0x00}), cfg)

	start := time.Now()
	require.NoError(t, l.Handshake(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), cfg.RetryDelay)
}

func TestHandshakeFailsWhenLinkCloses(t *testing.T) {
	l, _ := newTestLink(t, nil, testConfig())

	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = l.Close()
	}()
	err := l.Handshake(context.Background())
	assert.ErrorIs(t, err, ErrLinkNotOpen)
	assert.Greater(t, l.Stats().HandshakeRestarts, uint64(0))
}

func TestHandshakeHonorsContext(t *testing.T) {
	l, _ := newTestLink(t, nil, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Handshake(ctx), context.DeadlineExceeded)
	assert.True(t, l.IsOpen())
}

func TestSendButtons(t *testing.T) {
	state := pad.ButtonState{Buttons: pad.ButtonA}

	tests := []struct {
		name      string
		responder th.Responder
		check     func(t *testing.T, err error)
	}{
		{
			name:      "ack",
			responder: th.Device(),
			check:     func(t *testing.T, err error) { assert.NoError(t, err) },
		},
		{
			name:      "nack",
			responder: func([]byte) []byte { return []byte{Nack} },
			check: func(t *testing.T, err error) {
				var nack *NackError
				require.ErrorAs(t, err, &nack)
				assert.Equal(t, byte(Nack), nack.Byte)
				assert.ErrorIs(t, err, ErrProtocolNack)
			},
		},
		{
			name:      "unexpected byte",
			responder: func([]byte) []byte { return []byte{0x42} },
			check: func(t *testing.T, err error) {
				var nack *NackError
				require.ErrorAs(t, err, &nack)
				assert.Equal(t, byte(0x42), nack.Byte)
				assert.Contains(t, err.Error(), "0x42")
			},
		},
		{
			name:      "handshake byte is not an ack",
			responder: func([]byte) []byte { return []byte{SyncStart} },
			check:     func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrReadTimeout) },
		},
		{
			name:      "silence",
			responder: nil,
			check:     func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrReadTimeout) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, port := newTestLink(t, tt.responder, testConfig())
			tt.check(t, l.SendButtons(context.Background(), state))

			writes := port.Writes()
			require.Len(t, writes, 1)
			assert.Equal(t, []byte{0, 4, 8, 128, 128, 128, 128, 0, 0x21}, writes[0])
		})
	}
}

func TestSendButtonsTimeoutIsBounded(t *testing.T) {
	cfg := Config{PollInterval: 2 * time.Millisecond, PollAttempts: 25, RetryDelay: time.Millisecond}
	l, _ := newTestLink(t, nil, cfg)

	start := time.Now()
	err := l.SendButtons(context.Background(), pad.Neutral())
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrReadTimeout)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
	assert.Equal(t, uint64(1), l.Stats().Timeouts)
}

func TestCloseAbortsPendingWait(t *testing.T) {
	cfg := Config{PollInterval: 10 * time.Millisecond, PollAttempts: 1000, RetryDelay: time.Second}
	l, _ := newTestLink(t, nil, cfg)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = l.Close()
	}()
	start := time.Now()
	err := l.SendButtons(context.Background(), pad.Neutral())
	assert.ErrorIs(t, err, ErrLinkNotOpen)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSendButtonsOnClosedLink(t *testing.T) {
	l, port := newTestLink(t, th.Device(), testConfig())
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	assert.ErrorIs(t, l.SendButtons(context.Background(), pad.Neutral()), ErrLinkNotOpen)
	assert.ErrorIs(t, l.Handshake(context.Background()), ErrLinkNotOpen)
	assert.Empty(t, port.Writes())
	assert.False(t, l.IsOpen())
}

func TestDeviceHangupClosesLink(t *testing.T) {
	l, port := newTestLink(t, nil, testConfig())
	_ = port.Close()

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("link did not notice closed port")
	}
	assert.True(t, errors.Is(l.Err(), io.EOF))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		b        byte
		wantAck  bool
		wantSync bool
	}{
		{b: Ack, wantAck: true},
		{b: SyncStart, wantSync: true},
		{b: Sync1, wantSync: true},
		{b: SyncOK, wantSync: true},
		{b: Nack, wantAck: true, wantSync: true},
		{b: 0x00, wantAck: true, wantSync: true},
		{b: 0x91, wantAck: true, wantSync: true},
	}
	for _, tt := range tests {
		l, _ := newTestLink(t, nil, testConfig())
		l.classify(tt.b)

		l.mu.Lock()
		assert.Equal(t, tt.wantAck, l.ack.ok, "ack slot for 0x%02x", tt.b)
		assert.Equal(t, tt.wantSync, l.sync.ok, "handshake slot for 0x%02x", tt.b)
		if tt.wantAck {
			assert.Equal(t, tt.b, l.ack.v)
		}
		if tt.wantSync {
			assert.Equal(t, tt.b, l.sync.v)
		}
		l.mu.Unlock()
	}
}

func TestStaleAckIsDiscarded(t *testing.T) {
	l, port := newTestLink(t, nil, testConfig())
	port.Inject(Ack)
	require.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.ack.ok
	}, time.Second, time.Millisecond)

	assert.ErrorIs(t, l.SendButtons(context.Background(), pad.Neutral()), ErrReadTimeout)
}

func TestStats(t *testing.T) {
	l, port := newTestLink(t, th.Device(), testConfig())
	ctx := context.Background()
	require.NoError(t, l.SendButtons(ctx, pad.Neutral()))
	require.NoError(t, l.SendButtons(ctx, pad.ButtonState{Buttons: pad.ButtonB}))

	port.SetResponder(func([]byte) []byte { return []byte{Nack} })
	require.Error(t, l.SendButtons(ctx, pad.Neutral()))

	st := l.Stats()
	assert.Equal(t, uint64(3), st.FramesSent)
	assert.Equal(t, uint64(2), st.Acks)
	assert.Equal(t, uint64(1), st.Nacks)
	assert.Equal(t, []pad.ButtonState{pad.Neutral(), {Buttons: pad.ButtonB}, pad.Neutral()}, port.Frames())
}
