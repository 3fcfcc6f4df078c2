package control

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"
)

// LineServer accepts newline separated commands over TCP. Each connection
// is also a hub client and receives completion labels as lines.
type LineServer struct {
	addr       string
	cfg        Config
	dispatcher *Dispatcher
	hub        *Hub
	logger     *slog.Logger

	mu     sync.Mutex
	ln     net.Listener
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

func NewLineServer(cfg Config, d *Dispatcher, hub *Hub, logger *slog.Logger) *LineServer {
	return &LineServer{
		addr:       cfg.TCPAddr,
		cfg:        cfg,
		dispatcher: d,
		hub:        hub,
		logger:     logger,
		conns:      make(map[net.Conn]struct{}),
	}
}

// Start listens on the configured address and serves incoming connections.
func (s *LineServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.logger.Info("TCP control listening", "addr", ln.Addr().String())
	s.wg.Add(1)
	go s.serve(ln)
	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *LineServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Close stops accepting, drops every open connection and waits for the
// connection handlers to return.
func (s *LineServer) Close() {
	s.mu.Lock()
	s.closed = true
	if s.ln != nil {
		_ = s.ln.Close()
	}
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *LineServer) serve(ln net.Listener) {
	defer s.wg.Done()
	for {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.logger.Info("TCP control stopped")
				return
			}
			s.logger.Error("TCP control accept error", "error", err)
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = c.Close()
			return
		}
		s.conns[c] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()
		go s.handleConn(c)
	}
}

type lineClient struct {
	conn    net.Conn
	timeout time.Duration
	mu      sync.Mutex
}

func (c *lineClient) SendText(msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	_, err := fmt.Fprintf(c.conn, "%s\n", msg)
	return err
}

func (c *lineClient) Close() error { return c.conn.Close() }

func (s *LineServer) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	connLogger := s.logger.With("remote", conn.RemoteAddr().String())
	connLogger.Info("control client connected")
	client := &lineClient{conn: conn, timeout: s.cfg.writeTimeout()}
	s.hub.Add(client)
	defer s.hub.Remove(client)

	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			connLogger.Debug("control line", "line", line)
			if herr := s.dispatcher.HandleLine(line); herr != nil {
				if werr := client.SendText(ErrorLine(herr.Error())); werr != nil {
					connLogger.Error("write error reply", "error", werr)
					return
				}
			}
		}
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				connLogger.Error("read control line", "error", err)
			}
			connLogger.Info("control client disconnected")
			return
		}
	}
}
