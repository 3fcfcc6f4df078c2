// Package log sets up the bridge's slog.Logger and the raw frame logger.
//
// Console output goes to stdout and errors go to stderr. When a
// log file is configured the file receives everything at the chosen level
// and the console only shows warnings and errors. Console lines are coloured
// when the destination is a terminal, and a "component" attribute (link,
// scheduler, tcp, ws) is printed as a prefix ahead of the message.
package log

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// LevelTrace sits below Debug. Per-frame traffic and skipped frames are
// logged at this level.
const LevelTrace slog.Level = -8

// ParseLevel maps a --log.level value to a slog level. Unknown names fall
// back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// SetupLogger builds the process logger and installs it as the slog default.
// The returned closers must be closed on exit.
func SetupLogger(logLevel, logFile string) (*slog.Logger, []io.Closer, error) {
	level := ParseLevel(logLevel)

	consoleLevel := level
	var closers []io.Closer
	var handlers []slog.Handler
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		closers = append(closers, f)
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
		consoleLevel = max(level, slog.LevelWarn)
	}
	handlers = append(handlers,
		LevelFilter{pass: belowError, h: newConsoleHandler(os.Stdout, consoleLevel)},
		LevelFilter{pass: atLeastError, h: newConsoleHandler(os.Stderr, slog.LevelError)},
	)

	logger := slog.New(MultiHandler{hs: handlers})
	slog.SetDefault(logger)
	return logger, closers, nil
}

func belowError(l slog.Level) bool   { return l < slog.LevelError }
func atLeastError(l slog.Level) bool { return l >= slog.LevelError }

func newConsoleHandler(f *os.File, level slog.Leveler) slog.Handler {
	return &colorHandler{w: f, level: level, color: term.IsTerminal(int(f.Fd()))}
}

// MultiHandler hands each record to every handler that accepts its level.
type MultiHandler struct{ hs []slog.Handler }

func (m MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.hs {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle reports the errors of all handlers that failed.
func (m MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range m.hs {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (m MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return m.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (m MultiHandler) WithGroup(name string) slog.Handler {
	return m.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (m MultiHandler) each(fn func(slog.Handler) slog.Handler) MultiHandler {
	out := make([]slog.Handler, len(m.hs))
	for i, h := range m.hs {
		out[i] = fn(h)
	}
	return MultiHandler{hs: out}
}

// LevelFilter passes records to h only when pass accepts their level.
type LevelFilter struct {
	pass func(slog.Level) bool
	h    slog.Handler
}

func (f LevelFilter) Enabled(ctx context.Context, level slog.Level) bool {
	return f.pass(level) && f.h.Enabled(ctx, level)
}

func (f LevelFilter) Handle(ctx context.Context, r slog.Record) error {
	if !f.pass(r.Level) {
		return nil
	}
	return f.h.Handle(ctx, r)
}

func (f LevelFilter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return LevelFilter{pass: f.pass, h: f.h.WithAttrs(attrs)}
}

func (f LevelFilter) WithGroup(name string) slog.Handler {
	return LevelFilter{pass: f.pass, h: f.h.WithGroup(name)}
}

const (
	ansiReset   = "\033[0m"
	ansiGray    = "\033[90m"
	ansiRed     = "\033[31m"
	ansiYellow  = "\033[33m"
	ansiGreen   = "\033[32m"
	ansiBlue    = "\033[34m"
	ansiMagenta = "\033[35m"
	ansiCyan    = "\033[36m"
)

// colorHandler writes one line per record:
//
//	15:04:05.000 LEVEL [component] message key=value ...
type colorHandler struct {
	w         io.Writer
	level     slog.Leveler
	color     bool
	component string
	prefix    string // group prefix for attribute keys
	attrs     []slog.Attr
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *colorHandler) paint(code, s string) string {
	if !h.color {
		return s
	}
	return code + s + ansiReset
}

func levelName(l slog.Level) string {
	if l < slog.LevelDebug {
		return "TRACE"
	}
	return l.String()
}

func levelColor(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return ansiRed
	case l >= slog.LevelWarn:
		return ansiYellow
	case l >= slog.LevelInfo:
		return ansiGreen
	case l >= slog.LevelDebug:
		return ansiBlue
	}
	return ansiMagenta
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(h.paint(ansiGray, r.Time.Format("15:04:05.000")))
	b.WriteByte(' ')
	b.WriteString(h.paint(levelColor(r.Level), fmt.Sprintf("%-5s", levelName(r.Level))))
	b.WriteByte(' ')

	component := h.component
	var attrs []slog.Attr
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" && h.prefix == "" {
			component = a.Value.String()
			return true
		}
		attrs = append(attrs, slog.Attr{Key: h.prefix + a.Key, Value: a.Value})
		return true
	})
	if component != "" {
		b.WriteString(h.paint(ansiCyan, "["+component+"]"))
		b.WriteByte(' ')
	}
	b.WriteString(r.Message)

	for _, a := range append(h.attrs[:len(h.attrs):len(h.attrs)], attrs...) {
		b.WriteByte(' ')
		b.WriteString(a.Key)
		b.WriteByte('=')
		b.WriteString(formatValue(a.Value))
	}
	b.WriteByte('\n')

	_, err := io.WriteString(h.w, b.String())
	return err
}

// formatValue quotes values that would otherwise be ambiguous on the line,
// such as labels containing spaces.
func formatValue(v slog.Value) string {
	s := v.Resolve().String()
	if s == "" || strings.ContainsAny(s, " =\"\t\n") {
		return strconv.Quote(s)
	}
	return s
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		if a.Key == "component" && h.prefix == "" {
			nh.component = a.Value.String()
			continue
		}
		nh.attrs = append(nh.attrs, slog.Attr{Key: h.prefix + a.Key, Value: a.Value})
	}
	return &nh
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	nh.prefix = h.prefix + name + "."
	return &nh
}
