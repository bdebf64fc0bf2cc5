// Package broadcaster implements the broadcaster-side PTY↔network bridge:
// the four cooperating tasks described in the component design (input,
// output, resize, notification) plus the main send-loop that ships queued
// notifications to the server.
package broadcaster

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hokaido/hokaido/internal/protocol"
	"github.com/hokaido/hokaido/internal/pty"
)

// drainTimeout bounds how long Run waits, once the send queue has been
// drained and the PTY closed, for the output and notification tasks to
// observe shutdown before falling through to reap the child. The output
// task ends once the PTY is closed; the notification task ends only once
// the caller closes the server connection, so this is a safety bound, not
// the primary termination signal.
const drainTimeout = 2 * time.Second

// sendQueueSize bounds the network-send queue; producers block once it
// fills, matching the bounded-queue policy in the concurrency model.
const sendQueueSize = 256

// resizePollInterval is the cadence at which the resize task samples the
// SIGWINCH counter. Bursts within one interval coalesce into one resize.
const resizePollInterval = time.Second

// Bridge owns the PTY, the server connection, and the four tasks that move
// bytes between them.
type Bridge struct {
	pty  *pty.PTY
	conn net.Conn
	enc  *protocol.Encoder
	dec  *protocol.Decoder

	queue chan *protocol.Notification

	sigwinchCount int32
	log           *zap.SugaredLogger
}

// New wires a Bridge around an already-started PTY and an already
// handshaken server connection.
func New(p *pty.PTY, conn net.Conn, log *zap.SugaredLogger) *Bridge {
	return &Bridge{
		pty:   p,
		conn:  conn,
		enc:   protocol.NewEncoder(conn),
		dec:   protocol.NewDecoder(conn),
		queue: make(chan *protocol.Notification, sendQueueSize),
		log:   log,
	}
}

// Run starts the four tasks, seeds an initial size hint (the local
// terminal's size, or the PTY's own size when stdin is not a terminal) so
// watchers that join before the first keystroke still learn the terminal
// geometry, then runs the main send-loop until a shutdown sentinel arrives.
// Once draining completes it closes the PTY, which hangs up the child if it
// is still running, and gives the output, resize, and notification tasks a
// bounded window to observe shutdown (formalizing the ACTIVE → DRAINING →
// TERMINATED state machine) before reaping the child.
func (b *Bridge) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error { b.outputTask(); return nil })
	eg.Go(func() error { b.resizeTask(egCtx); return nil })
	eg.Go(func() error { b.notificationTask(); return nil })
	go b.inputTask()

	size, err := pty.CurrentSize(int(os.Stdin.Fd()))
	if err != nil {
		size, err = pty.CurrentSize(int(b.pty.Fd()))
	}
	if err == nil {
		b.enqueue(protocol.Output(pty.SizeHintEscape(size)))
	} else {
		b.log.Debugw("failed to read initial terminal size", "err", err)
	}

	b.mainLoop()
	cancel()
	_ = b.pty.Close()

	done := make(chan struct{})
	go func() { eg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(drainTimeout):
		b.log.Debugw("timed out waiting for tasks to drain")
	}

	return b.pty.Wait()
}

// enqueue pushes n onto the send queue, blocking if it is full.
func (b *Bridge) enqueue(n protocol.Notification) {
	b.queue <- &n
}

// mainLoop drains the send queue and ships each notification to the
// server until a nil sentinel arrives or a write fails.
func (b *Bridge) mainLoop() {
	for n := range b.queue {
		if n == nil {
			return
		}
		if err := b.enc.EncodeNotification(*n); err != nil {
			b.log.Debugw("send to server failed", "err", err)
			return
		}
	}
}

// inputTask forwards local keystrokes to the PTY master. EOF on stdin
// terminates the task and, transitively, the shell once the PTY closes.
func (b *Bridge) inputTask() {
	buf := make([]byte, 128)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			if _, werr := b.pty.Write(buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// outputTask reads PTY output, mirrors it to the local terminal, and
// enqueues it for the server. A zero-byte read (child exited) enqueues the
// shutdown sentinel exactly once.
func (b *Bridge) outputTask() {
	buf := make([]byte, 10*1024)
	for {
		n, err := b.pty.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			os.Stdout.Write(data)
			b.enqueue(protocol.Output(data))
		}
		if err != nil {
			b.queue <- nil
			return
		}
	}
}

// resizeTask polls the SIGWINCH counter on resizePollInterval, re-queries
// the local terminal size on change, pushes a fresh size hint, and
// propagates the new size to the PTY so the child shell redraws. It stops
// once ctx is canceled, at the start of the DRAINING state.
func (b *Bridge) resizeTask(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGWINCH)
	defer signal.Stop(sigCh)

	go func() {
		for range sigCh {
			atomic.AddInt32(&b.sigwinchCount, 1)
		}
	}()

	ticker := time.NewTicker(resizePollInterval)
	defer ticker.Stop()

	var lastCount int32
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count := atomic.LoadInt32(&b.sigwinchCount)
			if count == lastCount {
				continue
			}
			lastCount = count
			b.handleResize()
		}
	}
}

func (b *Bridge) handleResize() {
	size, err := pty.CurrentSize(int(os.Stdin.Fd()))
	if err != nil {
		b.log.Debugw("failed to read terminal size on resize", "err", err)
		return
	}
	b.enqueue(protocol.Output(pty.SizeHintEscape(size)))
	if err := b.pty.Resize(size); err != nil {
		b.log.Debugw("failed to propagate resize to pty", "err", err)
	}
}

// notificationTask reads Notifications from the server: Closed enqueues a
// shutdown sentinel and prints the reason; WatcherJoined enqueues a fresh
// size hint so the new watcher learns the terminal geometry immediately.
func (b *Bridge) notificationTask() {
	for {
		n, err := b.dec.DecodeNotification()
		if err != nil {
			b.queue <- nil
			return
		}

		switch n.Topic {
		case protocol.TopicClosed:
			fmt.Fprintf(os.Stderr, "Connection closed: %s\n", n.Payload)
			b.queue <- nil
			return
		case protocol.TopicWatcherJoined:
			if size, err := pty.CurrentSize(int(os.Stdin.Fd())); err == nil {
				b.enqueue(protocol.Output(pty.SizeHintEscape(size)))
			}
		}
	}
}
