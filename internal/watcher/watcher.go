// Package watcher implements the watcher role: join a channel, then write
// every Output byte received to local stdout until the server closes it.
package watcher

import (
	"fmt"
	"net"
	"os"

	"go.uber.org/zap"

	"github.com/hokaido/hokaido/internal/protocol"
)

// Run connects to addr, joins channel as a watcher, and loops on
// Notifications until the server sends Closed or the connection fails.
func Run(addr, channel string, log *zap.SugaredLogger) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("watcher: connect: %w", err)
	}
	defer conn.Close()

	// One decoder for the whole connection: it buffers reads, so bytes of
	// notifications that arrive with the join response stay in it.
	dec := protocol.NewDecoder(conn)
	if err := handshake(conn, dec, channel); err != nil {
		return err
	}

	return receiveLoop(dec, log)
}

func handshake(conn net.Conn, dec *protocol.Decoder, channel string) error {
	enc := protocol.NewEncoder(conn)
	if err := enc.EncodeJoinRequest(protocol.JoinRequest{Role: protocol.RoleWatch, Channel: channel}); err != nil {
		return fmt.Errorf("watcher: send join request: %w", err)
	}

	resp, err := dec.DecodeJoinResponse()
	if err != nil {
		return fmt.Errorf("watcher: read join response: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("watcher: server rejected join request")
	}
	return nil
}

func receiveLoop(dec *protocol.Decoder, log *zap.SugaredLogger) error {
	for {
		n, err := dec.DecodeNotification()
		if err != nil {
			return fmt.Errorf("watcher: read notification: %w", err)
		}

		switch n.Topic {
		case protocol.TopicOutput:
			os.Stdout.WriteString(n.Payload)
		case protocol.TopicClosed:
			fmt.Printf("Connection closed: %s\n", n.Payload)
			return nil
		case protocol.TopicWatcherJoined:
			log.Debugw("ignoring watcher-joined notification")
		}
	}
}
