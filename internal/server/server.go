// Package server implements the accept-and-dispatch loop spec section 4.7
// describes: bind a listener, and for every accepted connection, run a
// Reading -> Executing -> Writing -> Reading state machine against a
// shared Engine until the client disconnects or a decode/IO error occurs.
package server

import (
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/kvlogd/kvs/internal/engine"
	"github.com/kvlogd/kvs/internal/threadpool"
	"github.com/kvlogd/kvs/internal/wire"
)

// Config wires a Server's collaborators. Engine is the shared storage
// facade every connection's jobs call into; Pool dispatches one job per
// accepted connection (spec section 4.7: "dispatches its processing onto
// the thread pool").
type Config struct {
	Engine engine.Engine
	Pool   threadpool.ThreadPool
	Logger *zap.Logger
	// TLSConfig, if non-nil, wraps the listener with TLS. Left nil by
	// default since TLS is an explicit spec Non-goal for the required
	// path.
	TLSConfig *tls.Config
}

// Server accepts TCP connections on a configured address and dispatches
// each to Config.Pool for processing against the shared Config.Engine.
type Server struct {
	cfg      Config
	listener net.Listener

	mu     sync.Mutex
	closed bool
}

// New binds addr and returns a Server ready to Serve. The accept loop does
// not start until Serve is called.
func New(addr string, cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	var ln net.Listener
	var err error
	if cfg.TLSConfig != nil {
		ln, err = tls.Listen("tcp", addr, cfg.TLSConfig)
	} else {
		ln, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return nil, err
	}
	return &Server{cfg: cfg, listener: ln}, nil
}

// Addr returns the address the server is bound to - useful for tests that
// bind to ":0" and need the kernel-assigned port.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve runs the accept loop until the listener is closed. Each accepted
// connection is handed to the thread pool as one job running
// handleConnection; Serve itself never blocks on connection I/O.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return err
		}
		s.cfg.Pool.Spawn(func() {
			s.handleConnection(conn)
		})
	}
}

// Close stops accepting new connections. In-flight jobs run to completion;
// cancellation of in-flight operations is not first-class per spec
// section 5.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.listener.Close()
}

// handleConnection runs the per-connection Reading -> Executing -> Writing
// loop until the client closes the connection or a decode/IO error occurs,
// per spec section 4.7 and the error policy of spec section 7: a
// connection-level error is logged and the connection dropped, but the
// accept loop keeps running; an engine-internal Corrupt surfaces to the
// client as Response.Error and the loop continues.
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	logger := s.cfg.Logger.With(zap.String("remote_addr", conn.RemoteAddr().String()))

	for {
		req, err := wire.DecodeRequest(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Warn("dropping connection after protocol error", zap.Error(err))
			}
			return
		}

		resp := s.execute(req)

		if err := wire.EncodeResponse(conn, resp); err != nil {
			logger.Warn("dropping connection after write error", zap.Error(err))
			return
		}
	}
}

// execute runs one decoded request against the engine and maps its result
// to a wire.Response, continuing to accept further requests on this
// connection even when the engine reports Corrupt.
func (s *Server) execute(req wire.Request) wire.Response {
	switch {
	case req.IsGet():
		value, ok, err := s.cfg.Engine.Get(req.Key)
		if err != nil {
			s.cfg.Logger.Error("engine get failed", zap.String("key", req.Key), zap.Error(err))
			return wire.ErrorResponse(err.Error())
		}
		if !ok {
			return wire.Response{}
		}
		return wire.ValueResponse(value)

	case req.IsSet():
		if err := s.cfg.Engine.Set(req.Key, req.Value); err != nil {
			s.cfg.Logger.Error("engine set failed", zap.String("key", req.Key), zap.Error(err))
			return wire.ErrorResponse(err.Error())
		}
		return wire.OkResponse()

	case req.IsRemove():
		if err := s.cfg.Engine.Remove(req.Key); err != nil {
			if engine.KindOf(err) != engine.KeyNotFound {
				s.cfg.Logger.Error("engine remove failed", zap.String("key", req.Key), zap.Error(err))
			}
			return wire.ErrorResponse(err.Error())
		}
		return wire.OkResponse()

	default:
		return wire.ErrorResponse("unknown request")
	}
}
