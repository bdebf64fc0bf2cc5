// Package server implements the hub: the TCP accept loop, the channel
// registry, and the per-role handlers that classify and serve each
// connection.
package server

import (
	"net"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hokaido/hokaido/internal/protocol"
)

// handshakeTimeout bounds how long the accept loop will wait for a join
// request. The handshake runs synchronously on the accept goroutine, so a
// client that connects and never sends one would otherwise stall every
// later accept indefinitely.
const handshakeTimeout = 10 * time.Second

// Serve runs the accept loop on ln until it errors (typically because ln
// was closed). It returns that error to the caller.
func Serve(ln net.Listener, log *zap.SugaredLogger) error {
	reg := NewRegistry(log.With("component", "registry"))

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		accept(conn, reg, log)
	}
}

// accept runs on the accept loop goroutine: it applies the handshake
// deadline, decodes the join request, and routes the connection into the
// registry. This is deliberately synchronous, since the registry has
// exactly one caller, so a slow or malicious handshake delays later
// accepts.
func accept(conn net.Conn, reg *Registry, log *zap.SugaredLogger) {
	connLog := log.With("conn_id", uuid.NewString(), "remote", conn.RemoteAddr().String())
	connLog.Infow("accepted")

	if err := conn.SetDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		connLog.Debugw("failed to set handshake deadline", "err", err)
		conn.Close()
		return
	}

	req, err := protocol.NewDecoder(conn).DecodeJoinRequest()
	if err != nil {
		connLog.Debugw("join handshake failed", "err", err)
		conn.Close()
		return
	}

	ch := reg.Fetch(req.Channel)
	h := newHandle(conn)

	// Clear the handshake deadline now that the join request is in. Writes
	// get their own per-call deadline from handle.send; reads thereafter
	// are either the broadcaster's relay (bounded by its own protocol, not
	// a timeout) or nonexistent (watchers are never read from again).
	if err := conn.SetDeadline(time.Time{}); err != nil {
		connLog.Debugw("failed to clear handshake deadline", "err", err)
		conn.Close()
		return
	}

	switch req.Role {
	case protocol.RoleBroadcast:
		connLog.Infow("joined as broadcaster", "channel", req.Channel)
		go spawnBroadcaster(h, ch, connLog)
	case protocol.RoleWatch:
		connLog.Infow("joined as watcher", "channel", req.Channel)
		go spawnWatcher(h, ch, connLog)
	}
}
