package server

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/travisjeffery/go-dynaport"
	"go.uber.org/zap/zaptest"

	"github.com/kvlogd/kvs/internal/engine"
	"github.com/kvlogd/kvs/internal/threadpool"
	"github.com/kvlogd/kvs/internal/wire"
)

// setupTest boots a Server against a fresh KVEngine in a temp directory,
// bound to a dynamically allocated port, and returns a ready-to-use
// wire client connection plus a teardown function.
func setupTest(t *testing.T) (conn *clientConn, srv *Server, teardown func()) {
	t.Helper()

	dir, err := os.MkdirTemp("", "server-test")
	require.NoError(t, err)

	eng, err := engine.Open(dir, engine.Config{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	pool := threadpool.NewSharedQueue(4, zaptest.NewLogger(t))

	port := dynaport.Get(1)[0]
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	srv, err = New(addr, Config{
		Engine: eng,
		Pool:   pool,
		Logger: zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	go func() {
		_ = srv.Serve()
	}()

	conn, err = dial(addr)
	require.NoError(t, err)

	teardown = func() {
		conn.Close()
		srv.Close()
		pool.Close()
		eng.Close()
		os.RemoveAll(dir)
	}
	return conn, srv, teardown
}

func TestServerSetGet(t *testing.T) {
	conn, _, teardown := setupTest(t)
	defer teardown()

	resp, err := conn.roundTrip(wire.SetRequest("foo", "bar"))
	require.NoError(t, err)
	require.False(t, resp.IsError())

	resp, err = conn.roundTrip(wire.GetRequest("foo"))
	require.NoError(t, err)
	require.False(t, resp.IsError())
	require.True(t, resp.HasValue)
	require.Equal(t, "bar", resp.Value)
}

func TestServerGetMissingKey(t *testing.T) {
	conn, _, teardown := setupTest(t)
	defer teardown()

	resp, err := conn.roundTrip(wire.GetRequest("absent"))
	require.NoError(t, err)
	require.False(t, resp.IsError())
	require.False(t, resp.HasValue)
}

func TestServerRemove(t *testing.T) {
	conn, _, teardown := setupTest(t)
	defer teardown()

	_, err := conn.roundTrip(wire.SetRequest("foo", "bar"))
	require.NoError(t, err)

	resp, err := conn.roundTrip(wire.RemoveRequest("foo"))
	require.NoError(t, err)
	require.False(t, resp.IsError())

	resp, err = conn.roundTrip(wire.GetRequest("foo"))
	require.NoError(t, err)
	require.False(t, resp.HasValue)
}

func TestServerRemoveMissingKeyErrors(t *testing.T) {
	conn, _, teardown := setupTest(t)
	defer teardown()

	resp, err := conn.roundTrip(wire.RemoveRequest("absent"))
	require.NoError(t, err)
	require.True(t, resp.IsError())
}

func TestServerMultipleRequestsOnOneConnection(t *testing.T) {
	conn, _, teardown := setupTest(t)
	defer teardown()

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("key-%d", i)
		_, err := conn.roundTrip(wire.SetRequest(key, "value"))
		require.NoError(t, err)
	}
	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("key-%d", i)
		resp, err := conn.roundTrip(wire.GetRequest(key))
		require.NoError(t, err)
		require.True(t, resp.HasValue)
		require.Equal(t, "value", resp.Value)
	}
}
