package pty

import (
	"fmt"

	"golang.org/x/term"
)

// SizeHintEscape builds the ANSI escape ESC[8;rows;colst carrying s as an
// in-band terminal geometry hint (xterm's DECSLPP-style query).
func SizeHintEscape(s Size) []byte {
	return []byte(fmt.Sprintf("\x1b[8;%d;%dt", s.Rows, s.Cols))
}

// RawMode puts an fd into raw mode and remembers how to restore it. It
// models the broadcaster's saved terminal attributes: acquired once at
// startup, released exactly once on every exit path.
type RawMode struct {
	fd    int
	state *term.State
}

// EnterRaw disables echo, canonical input, and signal translation on fd and
// returns a handle that restores the previous attributes. Safe to call only
// when fd refers to a real terminal.
func EnterRaw(fd int) (*RawMode, error) {
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return &RawMode{fd: fd, state: state}, nil
}

// Restore reapplies the attributes observed before EnterRaw. Idempotent:
// safe to call more than once, and safe to call on a nil receiver so
// defer-based cleanup never needs a conditional.
func (r *RawMode) Restore() error {
	if r == nil || r.state == nil {
		return nil
	}
	state := r.state
	r.state = nil
	return term.Restore(r.fd, state)
}

// CurrentSize reads the current size of the terminal at fd.
func CurrentSize(fd int) (Size, error) {
	cols, rows, err := term.GetSize(fd)
	if err != nil {
		return Size{}, err
	}
	return Size{Rows: uint16(rows), Cols: uint16(cols)}, nil
}
