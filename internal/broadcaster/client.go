package broadcaster

import (
	"fmt"
	"net"
	"os"

	"go.uber.org/zap"

	"github.com/hokaido/hokaido/internal/protocol"
	"github.com/hokaido/hokaido/internal/pty"
)

// Run connects to addr, joins channel as the broadcaster, spawns shell
// under a PTY sized to the current terminal, and bridges it to the server
// until the shell exits or the session is terminated. The terminal's raw
// mode is entered once here and restored on every exit path, including
// errors, per the termios-restoration requirement.
func Run(addr, channel, shell string, log *zap.SugaredLogger) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("broadcaster: connect: %w", err)
	}
	defer conn.Close()

	if err := handshake(conn, channel); err != nil {
		return err
	}

	stdinFd := int(os.Stdin.Fd())
	size, err := pty.CurrentSize(stdinFd)
	if err != nil {
		size = pty.Size{Rows: 24, Cols: 80}
	}

	p, err := pty.Start(shell, size)
	if err != nil {
		return fmt.Errorf("broadcaster: spawn shell: %w", err)
	}
	defer p.Close()

	raw, err := pty.EnterRaw(stdinFd)
	if err != nil {
		log.Debugw("failed to enter raw mode, continuing without it", "err", err)
	}
	defer raw.Restore()

	bridge := New(p, conn, log)
	return bridge.Run()
}

// handshake sends the broadcast JoinRequest and waits for JoinResponse.
func handshake(conn net.Conn, channel string) error {
	enc := protocol.NewEncoder(conn)
	if err := enc.EncodeJoinRequest(protocol.JoinRequest{Role: protocol.RoleBroadcast, Channel: channel}); err != nil {
		return fmt.Errorf("broadcaster: send join request: %w", err)
	}

	resp, err := protocol.NewDecoder(conn).DecodeJoinResponse()
	if err != nil {
		return fmt.Errorf("broadcaster: read join response: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("broadcaster: server rejected join request")
	}
	return nil
}
