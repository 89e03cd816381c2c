package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/seantiz/tally/internal/command"
	"github.com/seantiz/tally/internal/engine"
	"github.com/seantiz/tally/internal/session"
	"github.com/seantiz/tally/internal/wire"
)

// Server accepts bridge connections and dispatches their requests to an engine.
type Server struct {
	engine *engine.Engine
	logger *slog.Logger

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	conns     map[net.Conn]struct{}
	closed    bool
	wg        sync.WaitGroup
}

// NewServer creates a bridge server for e.
func NewServer(e *engine.Engine, logger *slog.Logger) *Server {
	return &Server{
		engine:    e,
		logger:    logger,
		listeners: make(map[net.Listener]struct{}),
		conns:     make(map[net.Conn]struct{}),
	}
}

// Serve accepts connections on l until the listener fails or the server is
// closed. It returns nil after Close.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		l.Close()
		return nil
	}
	s.listeners[l] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.listeners, l)
		s.mu.Unlock()
	}()

	s.logger.Info("bridge listening", "addr", l.Addr().String())
	for {
		conn, err := l.Accept()
		if err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		if !s.track(conn) {
			conn.Close()
			return nil
		}
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

// ServeConn handles a single connection until it ends.
func (s *Server) ServeConn(conn net.Conn) {
	if !s.track(conn) {
		conn.Close()
		return
	}
	defer s.wg.Done()
	s.handleConnection(conn)
}

// Close stops every listener, ends every connection and waits for their
// sessions to be released.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	for l := range s.listeners {
		l.Close()
	}
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// track registers conn and counts it in wg. It reports false once the
// server is closed.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

// handleConnection serves requests on conn in order. Sessions created on the
// connection are closed when it ends.
func (s *Server) handleConnection(conn net.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	owned := make(map[session.Handle]struct{})

	connectionsActive.Inc()
	defer func() {
		cancel()
		for h := range owned {
			if err := s.engine.CloseSession(context.Background(), h); err != nil {
				s.logger.Error("failed to close bridge session", "handle", h, "error", err)
			}
		}
		conn.Close()

		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		connectionsActive.Dec()
	}()

	for {
		var req wire.Request
		if err := wire.ReadMessage(conn, &req); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Warn("bridge read failed", "remote", conn.RemoteAddr().String(), "error", err)
			}
			return
		}

		resp := s.dispatch(ctx, owned, &req)
		if err := wire.WriteMessage(conn, &resp); err != nil {
			s.logger.Warn("bridge write failed", "remote", conn.RemoteAddr().String(), "error", err)
			return
		}
	}
}

// dispatch runs one request. A connection may only address handles it
// created; anything else is reported as an invalid handle.
func (s *Server) dispatch(ctx context.Context, owned map[session.Handle]struct{}, req *wire.Request) wire.Response {
	resp := wire.Response{ID: req.ID}
	h := session.Handle(req.Handle)

	var (
		out string
		err error
	)
	switch req.Op {
	case wire.OpCreate:
		var info session.Info
		info, err = s.engine.CreateSession(ctx)
		if err == nil {
			owned[info.Handle] = struct{}{}
			resp.Handle = uint64(info.Handle)
		}
	case wire.OpLoad:
		if err = checkOwned(owned, h); err == nil {
			err = s.engine.LoadSession(ctx, h, req.Source, req.Data)
		}
	case wire.OpExecute:
		if err = checkOwned(owned, h); err == nil {
			out, err = s.engine.Execute(ctx, h, string(req.Command))
		}
	case wire.OpRun:
		out, err = s.engine.Run(ctx, string(req.Command))
	case wire.OpClose:
		if err = checkOwned(owned, h); err == nil {
			err = s.engine.CloseSession(ctx, h)
		}
	default:
		err = fmt.Errorf("%w: unknown op %q", command.ErrInvalidArguments, req.Op)
	}

	outcome := "ok"
	if err != nil {
		outcome = engine.ErrorKind(err)
		resp.Kind = outcome
		resp.Error = err.Error()
	} else if out != "" {
		resp.Output = []byte(out)
	}
	requestsTotal.WithLabelValues(opLabel(req.Op), outcome).Inc()
	return resp
}

func checkOwned(owned map[session.Handle]struct{}, h session.Handle) error {
	if _, ok := owned[h]; !ok {
		return session.ErrInvalidHandle
	}
	return nil
}

// opLabel bounds the metric label set to known ops.
func opLabel(op string) string {
	switch op {
	case wire.OpCreate, wire.OpLoad, wire.OpExecute, wire.OpRun, wire.OpClose:
		return op
	}
	return "unknown"
}
