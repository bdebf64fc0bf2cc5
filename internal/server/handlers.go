package server

import (
	"go.uber.org/zap"

	"github.com/hokaido/hokaido/internal/protocol"
)

// spawnBroadcaster takes over ch for conn, replies with JoinResponse, and
// starts the relay/fanout pair described in the component design: a relay
// task reads Notifications off the wire and pushes them onto an internal
// queue; the fanout loop, running on this goroutine, drains the queue and
// writes to every watcher under the channel mutex. Splitting the two means
// a slow watcher write does not block the broadcaster's socket read until
// the 64-entry queue fills.
func spawnBroadcaster(h *handle, ch *Channel, log *zap.SugaredLogger) {
	ch.takeover(h)

	if err := h.sendJoinResponse(protocol.JoinResponse{Success: true}); err != nil {
		log.Debugw("failed to send join response", "err", err)
		h.close()
		ch.clearBroadcaster(h)
		return
	}

	queue := make(chan *protocol.Notification, 64)
	dec := protocol.NewDecoder(h.conn)

	go func() {
		for {
			n, err := dec.DecodeNotification()
			if err != nil || n.Topic != protocol.TopicOutput {
				queue <- nil
				return
			}
			out := n
			queue <- &out
		}
	}()

	for n := range queue {
		if n == nil {
			break
		}
		ch.fanout(*n)
	}

	h.close()
	ch.clearBroadcaster(h)
	log.Infow("broadcaster handler exiting")
}

// spawnWatcher registers conn as a watcher of ch and replies with
// JoinResponse. The handler does not read from the connection thereafter;
// all of its writes come from the owning broadcaster's fanout loop.
func spawnWatcher(h *handle, ch *Channel, log *zap.SugaredLogger) {
	if err := h.sendJoinResponse(protocol.JoinResponse{Success: true}); err != nil {
		log.Debugw("failed to send join response", "err", err)
		h.close()
		return
	}
	ch.addWatcher(h)
}
