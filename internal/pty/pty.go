// Package pty owns the broadcaster-local pseudo-terminal: the child shell
// process, its master file descriptor, and the saved terminal attributes of
// the broadcaster's own stdin.
package pty

import (
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"
)

// Size is the 4-tuple terminal geometry; xpixel/ypixel are carried for
// parity with TIOCGWINSZ but never used semantically.
type Size struct {
	Rows, Cols, XPixel, YPixel uint16
}

// PTY manages a child shell spawned under a pseudo-terminal.
type PTY struct {
	ptmx *os.File
	cmd  *exec.Cmd

	mu     sync.Mutex
	closed bool
}

// Start spawns shell under a new pseudo-terminal sized to size. An empty
// shell runs /bin/sh; the $HOKAIDO_SHELL / $SHELL / bash discovery is
// applied by the caller (see internal/config), not here.
func Start(shell string, size Size) (*PTY, error) {
	if shell == "" {
		shell = "/bin/sh"
	}

	cmd := exec.Command(shell)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, err
	}

	if err := pty.Setsize(ptmx, &pty.Winsize{Rows: size.Rows, Cols: size.Cols}); err != nil {
		ptmx.Close()
		cmd.Wait()
		return nil, err
	}

	return &PTY{ptmx: ptmx, cmd: cmd}, nil
}

// Read reads output produced by the child shell.
func (p *PTY) Read(buf []byte) (int, error) {
	return p.ptmx.Read(buf)
}

// Write forwards keystrokes to the child shell.
func (p *PTY) Write(data []byte) (int, error) {
	return p.ptmx.Write(data)
}

// Resize propagates a new terminal size to the child shell via TIOCSWINSZ.
func (p *PTY) Resize(size Size) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return io.ErrClosedPipe
	}
	return pty.Setsize(p.ptmx, &pty.Winsize{Rows: size.Rows, Cols: size.Cols})
}

// Name returns the PTY device path (e.g. /dev/pts/0).
func (p *PTY) Name() string {
	return p.ptmx.Name()
}

// PID returns the child shell's process ID, or 0 if it never started.
func (p *PTY) PID() int {
	if p.cmd != nil && p.cmd.Process != nil {
		return p.cmd.Process.Pid
	}
	return 0
}

// Close signals the child's process group and releases the master fd. Wait
// should still be called by the owner to reap the process.
func (p *PTY) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if pid := p.PID(); pid > 0 {
		syscall.Kill(-pid, syscall.SIGHUP)
	}
	return p.ptmx.Close()
}

// Wait blocks until the child shell exits.
func (p *PTY) Wait() error {
	return p.cmd.Wait()
}

// Fd returns the master PTY file descriptor.
func (p *PTY) Fd() uintptr {
	return p.ptmx.Fd()
}
