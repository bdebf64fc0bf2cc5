package broadcaster

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hokaido/hokaido/internal/protocol"
)

func TestRunHandshakesThenBridges(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	runErr := make(chan error, 1)
	go func() {
		runErr <- Run(ln.Addr().String(), "default", "/bin/true", testLog())
	}()

	var conn net.Conn
	select {
	case conn = <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("server never accepted connection")
	}
	defer conn.Close()

	req, err := protocol.NewDecoder(conn).DecodeJoinRequest()
	require.NoError(t, err)
	require.Equal(t, protocol.RoleBroadcast, req.Role)
	require.Equal(t, "default", req.Channel)

	require.NoError(t, protocol.NewEncoder(conn).EncodeJoinResponse(protocol.JoinResponse{Success: true}))

	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("broadcaster Run did not return after child exit")
	}
}

func TestRunFailsWhenServerRejects(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = protocol.NewDecoder(conn).DecodeJoinRequest()
		_ = protocol.NewEncoder(conn).EncodeJoinResponse(protocol.JoinResponse{Success: false})
	}()

	err = Run(ln.Addr().String(), "default", "/bin/true", testLog())
	require.Error(t, err)
}
