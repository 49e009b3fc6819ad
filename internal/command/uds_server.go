// Package command implements command channels.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// replyTimeout bounds how long one response write may block. A stuck
// client must not pin a handler goroutine past shutdown.
const replyTimeout = 5 * time.Second

// UDSServer exposes the rule and daemon control plane as JSON-RPC 2.0
// over a Unix domain socket. Requests are a stream of JSON objects on
// the connection; each object gets exactly one response in order.
type UDSServer struct {
	socketPath string
	handler    *CommandHandler

	listener net.Listener
	closed   atomic.Bool

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// NewUDSServer creates a control server bound to socketPath.
func NewUDSServer(socketPath string, handler *CommandHandler) *UDSServer {
	return &UDSServer{
		socketPath: socketPath,
		handler:    handler,
		conns:      make(map[net.Conn]struct{}),
	}
}

// Start binds the socket and serves until ctx is cancelled or Stop is
// called, then cleans up the socket file.
func (s *UDSServer) Start(ctx context.Context) error {
	// A previous instance may have died without cleanup.
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("remove stale socket %s: %w", s.socketPath, err)
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}

	// The socket accepts rule mutations and shutdown; owner only.
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		ln.Close()
		return fmt.Errorf("restrict socket %s: %w", s.socketPath, err)
	}
	s.listener = ln

	slog.Info("control socket listening", "path", s.socketPath)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.serve(ctx)
	return s.Stop()
}

// serve accepts connections until the listener is closed by Stop.
func (s *UDSServer) serve(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() {
				return
			}
			slog.Warn("control socket accept failed", "error", err)
			continue
		}

		if !s.track(conn) {
			conn.Close()
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.serveConn(ctx, conn)
		}()
	}
}

// track registers a live connection so Stop can close it. Returns
// false when the server is already shutting down.
func (s *UDSServer) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *UDSServer) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

// serveConn runs the request loop for one client. A payload that is
// not valid JSON poisons the stream with no way to resynchronize, so
// it is answered with a parse error and the connection closed.
func (s *UDSServer) serveConn(ctx context.Context, conn net.Conn) {
	slog.Debug("control client connected")

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)

	for {
		var req JSONRPCRequest
		if err := dec.Decode(&req); err != nil {
			if err != io.EOF && !s.closed.Load() {
				slog.Warn("undecodable control request", "error", err)
				s.reply(conn, enc, JSONRPCResponse{
					JSONRPC: "2.0",
					Error: &ErrorInfo{
						Code:    ErrCodeParseError,
						Message: fmt.Sprintf("parse error: %v", err),
					},
				})
			}
			break
		}

		resp := s.dispatch(ctx, req)
		if err := s.reply(conn, enc, resp); err != nil {
			slog.Warn("control response write failed", "error", err)
			break
		}
	}

	slog.Debug("control client disconnected")
}

// dispatch validates the JSON-RPC envelope and hands the command to
// the handler.
func (s *UDSServer) dispatch(ctx context.Context, req JSONRPCRequest) JSONRPCResponse {
	if req.JSONRPC != "2.0" || req.Method == "" {
		return JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeInvalidRequest,
				Message: "request must carry jsonrpc 2.0 and a method",
			},
		}
	}

	res := s.handler.Handle(ctx, Command{
		Method: req.Method,
		Params: req.Params,
		ID:     fmt.Sprintf("%v", req.ID),
	})
	return JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  res.Result,
		Error:   res.Error,
	}
}

func (s *UDSServer) reply(conn net.Conn, enc *json.Encoder, resp JSONRPCResponse) error {
	conn.SetWriteDeadline(time.Now().Add(replyTimeout))
	return enc.Encode(resp)
}

// Stop closes the listener and all live connections, waits for their
// handlers, and removes the socket file. Safe to call more than once.
func (s *UDSServer) Stop() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	os.RemoveAll(s.socketPath)

	slog.Info("control socket closed", "path", s.socketPath)
	return nil
}

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}
