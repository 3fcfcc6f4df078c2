package apiclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

// Config controls low-level transport behavior such as timeouts.
type Config struct {
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func defaultConfig() Config {
	return Config{
		DialTimeout:  3 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// ServerError is an error line reported by the bridge.
type ServerError struct {
	Msg string
}

func (e *ServerError) Error() string { return "server: " + e.Msg }

// Transport is a persistent connection to the TCP line control channel.
// Lines are written one per command; lines read back are either completion
// labels or JSON error objects.
type Transport struct {
	conn net.Conn
	r    *bufio.Reader
	cfg  Config

	writeMu sync.Mutex
	readMu  sync.Mutex
}

// DialTransport connects to addr. A nil cfg uses the default timeouts.
func DialTransport(ctx context.Context, addr string, cfg *Config) (*Transport, error) {
	c := defaultConfig()
	if cfg != nil {
		c = *cfg
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	d := &net.Dialer{Timeout: c.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return &Transport{conn: conn, r: bufio.NewReader(conn), cfg: c}, nil
}

// WriteLine sends one line. Embedded newlines are rejected; use several
// calls for several commands.
func (t *Transport) WriteLine(ctx context.Context, line string) error {
	if strings.ContainsAny(line, "\r\n") {
		return fmt.Errorf("write: line %q contains a line break", line)
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if t.cfg.WriteTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	}
	if _, err := t.conn.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// ReadLine returns the next line from the server without its trailing
// newline. Error lines are returned as *ServerError. The read gives up at
// the earlier of the ctx deadline and the configured ReadTimeout, or when
// ctx is cancelled.
func (t *Transport) ReadLine(ctx context.Context) (string, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	deadline := time.Time{}
	if t.cfg.ReadTimeout > 0 {
		deadline = time.Now().Add(t.cfg.ReadTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	_ = t.conn.SetReadDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { _ = t.conn.SetReadDeadline(time.Now()) })
	defer stop()

	line, err := t.r.ReadString('\n')
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("read: %w", ctx.Err())
		}
		if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
			return "", fmt.Errorf("read: %w", context.DeadlineExceeded)
		}
		return "", fmt.Errorf("read: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if strings.HasPrefix(line, `{"error"`) {
		var problem map[string]string
		if err := json.Unmarshal([]byte(line), &problem); err == nil {
			return "", &ServerError{Msg: problem["error"]}
		}
	}
	return line, nil
}

// Close closes the connection.
func (t *Transport) Close() error { return t.conn.Close() }
