//go:build linux

package ptylaunch

import (
	"os"

	"golang.org/x/sys/unix"
)

// setUTF8Mode sets or clears the IUTF8 termios input flag on tty, so the
// kernel's line discipline treats erase/kill keys as operating on whole
// UTF-8 characters rather than bytes. This is the one piece of the launch
// request (LaunchRequest.IsUTF8) that has no equivalent in creack/pty's
// portable API and has to be done with a raw ioctl.
func setUTF8Mode(tty *os.File, isUTF8 bool) error {
	term, err := unix.IoctlGetTermios(int(tty.Fd()), unix.TCGETS)
	if err != nil {
		return err
	}
	if isUTF8 {
		term.Iflag |= unix.IUTF8
	} else {
		term.Iflag &^= unix.IUTF8
	}
	return unix.IoctlSetTermios(int(tty.Fd()), unix.TCSETS, term)
}
