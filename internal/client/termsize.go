package client

import (
	"golang.org/x/term"
)

// RawSession puts fd (typically os.Stdin's descriptor) into raw mode for
// the duration of an interactive attach session and restores it on
// Restore, the Go-native analogue of the original daemon's termios state
// handling on the client side of an interactive terminal.
type RawSession struct {
	fd    int
	state *term.State
}

// StartRawSession switches fd to raw mode. Restore must be called to put
// the terminal back the way it was found.
func StartRawSession(fd int) (*RawSession, error) {
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return &RawSession{fd: fd, state: state}, nil
}

// Restore returns the terminal to its pre-raw-mode state.
func (r *RawSession) Restore() error {
	return term.Restore(r.fd, r.state)
}

// TerminalSize reports the current window size of fd, used to populate a
// LaunchRequest's Width/Height when the caller is an interactive
// terminal rather than a fixed geometry.
func TerminalSize(fd int) (width, height int, err error) {
	return term.GetSize(fd)
}

// IsTerminal reports whether fd refers to a terminal at all — used to
// decide whether to query TerminalSize or fall back to configured
// defaults.
func IsTerminal(fd int) bool {
	return term.IsTerminal(fd)
}
