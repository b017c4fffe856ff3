package server

import (
	"net"

	"github.com/kvlogd/kvs/internal/wire"
)

// clientConn is a minimal wire.Request/wire.Response round-tripper used by
// this package's own tests to exercise Server without pulling in the
// cmd/kvs-client CLI.
type clientConn struct {
	conn net.Conn
}

func dial(addr string) (*clientConn, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &clientConn{conn: conn}, nil
}

func (c *clientConn) roundTrip(req wire.Request) (wire.Response, error) {
	if err := wire.EncodeRequest(c.conn, req); err != nil {
		return wire.Response{}, err
	}
	return wire.DecodeResponse(c.conn)
}

func (c *clientConn) Close() error {
	return c.conn.Close()
}
