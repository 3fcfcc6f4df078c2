package control

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSServer accepts control clients over WebSocket. A text message may hold
// several command lines separated by '\n'.
type WSServer struct {
	addr       string
	cfg        Config
	dispatcher *Dispatcher
	hub        *Hub
	logger     *slog.Logger
	upgrader   websocket.Upgrader

	mu     sync.Mutex
	ln     net.Listener
	srv    *http.Server
	conns  map[*websocket.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

func NewWSServer(cfg Config, d *Dispatcher, hub *Hub, logger *slog.Logger) *WSServer {
	return &WSServer{
		addr:       cfg.WSAddr,
		cfg:        cfg,
		dispatcher: d,
		hub:        hub,
		logger:     logger,
		upgrader: websocket.Upgrader{
			// Control clients are local tools and browser pages from any origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// Start listens on the configured address and serves WebSocket upgrades on
// every path.
func (s *WSServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	srv := &http.Server{
		Handler:           http.HandlerFunc(s.handle),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.ln, s.srv = ln, srv
	s.mu.Unlock()

	s.logger.Info("WebSocket control listening", "addr", ln.Addr().String())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("WebSocket control stopped", "error", err)
			return
		}
		s.logger.Info("WebSocket control stopped")
	}()
	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *WSServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Close stops the HTTP server, closes every WebSocket and waits for their
// handlers to return.
func (s *WSServer) Close() {
	s.mu.Lock()
	s.closed = true
	if s.srv != nil {
		_ = s.srv.Close()
	}
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

type wsClient struct {
	conn    *websocket.Conn
	timeout time.Duration
	mu      sync.Mutex
}

func (c *wsClient) SendText(msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	return c.conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

func (c *wsClient) Close() error { return c.conn.Close() }

func (s *WSServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	connLogger := s.logger.With("remote", conn.RemoteAddr().String())
	connLogger.Info("control client connected")
	client := &wsClient{conn: conn, timeout: s.cfg.writeTimeout()}
	s.hub.Add(client)
	defer s.hub.Remove(client)

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, net.ErrClosed) {
				connLogger.Debug("read control message", "error", err)
			}
			connLogger.Info("control client disconnected")
			return
		}
		if kind != websocket.TextMessage {
			connLogger.Debug("ignoring non-text message", "type", kind)
			continue
		}
		if herr := s.dispatcher.HandleMessage(string(data)); herr != nil {
			if werr := client.SendText(ErrorLine(herr.Error())); werr != nil {
				connLogger.Error("write error reply", "error", werr)
				return
			}
		}
	}
}
