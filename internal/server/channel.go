package server

import (
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hokaido/hokaido/internal/protocol"
)

// writeTimeout bounds a single write to a connection, catching dead
// watchers and unresponsive broadcasters without tripping on a connection
// that is simply idle between writes.
const writeTimeout = 10 * time.Second

// handle wraps a connection with the encoder used to push notifications to
// it. Identity (not address) is what Channel compares against on cleanup,
// so two handles wrapping the same net.Conn are still distinct handles if
// constructed twice.
type handle struct {
	conn net.Conn
	enc  *protocol.Encoder
}

func newHandle(conn net.Conn) *handle {
	return &handle{conn: conn, enc: protocol.NewEncoder(conn)}
}

// send resets the write deadline immediately before encoding, since Go
// deadlines are absolute: a deadline set once at accept time would expire
// permanently after writeTimeout and silently kill every later write to a
// long-lived, healthy connection.
func (h *handle) send(n protocol.Notification) error {
	if err := h.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return h.enc.EncodeNotification(n)
}

// sendJoinResponse is send's counterpart for the one-time handshake reply,
// under the same per-write deadline.
func (h *handle) sendJoinResponse(r protocol.JoinResponse) error {
	if err := h.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return h.enc.EncodeJoinResponse(r)
}

func (h *handle) close() {
	_ = h.conn.Close()
}

// Channel is a single named rendezvous point: at most one broadcaster, any
// number of watchers, all mutations serialized behind one mutex.
type Channel struct {
	mu          sync.Mutex
	broadcaster *handle
	watchers    []*handle

	log *zap.SugaredLogger
}

func newChannel(log *zap.SugaredLogger) *Channel {
	return &Channel{log: log}
}

// takeover installs h as the channel's broadcaster, displacing and closing
// any incumbent. The incumbent is told why, best-effort, before it is shut
// down, so its handler observes the closure as a read error rather than a
// silent disconnect.
func (c *Channel) takeover(h *handle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broadcaster != nil {
		prev := c.broadcaster
		if err := prev.send(protocol.Closed("Broadcaster has changed")); err != nil {
			c.log.Debugw("failed to notify displaced broadcaster", "err", err)
		}
		prev.close()
	}
	c.broadcaster = h
}

// addWatcher appends h to the watcher set and, if a broadcaster is
// installed, tells it a watcher arrived so it can resync its size hint.
func (c *Channel) addWatcher(h *handle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.watchers = append(c.watchers, h)
	if c.broadcaster != nil {
		if err := c.broadcaster.send(protocol.WatcherJoined()); err != nil {
			c.log.Debugw("failed to notify broadcaster of new watcher", "err", err)
		}
	}
}

// fanout writes n to every watcher. A single watcher's write failure is
// swallowed: the watcher is left in place, not synchronously removed (see
// the open question in the error-handling design).
func (c *Channel) fanout(n protocol.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, w := range c.watchers {
		if err := w.send(n); err != nil {
			c.log.Debugw("fanout write failed", "err", err)
		}
	}
}

// clearBroadcaster clears the broadcaster slot only if it still points at h.
// A takeover may already have replaced it with a newer broadcaster, in
// which case the dying handler must not disturb the new one.
func (c *Channel) clearBroadcaster(h *handle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broadcaster == h {
		c.broadcaster = nil
	}
}
