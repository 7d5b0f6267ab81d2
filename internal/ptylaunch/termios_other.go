//go:build !linux

package ptylaunch

import "os"

// setUTF8Mode is a no-op outside Linux: IUTF8 is a Linux-specific termios
// input flag with no portable equivalent, and darwin/bsd line disciplines
// already treat erase/kill byte-wise regardless of locale.
func setUTF8Mode(tty *os.File, isUTF8 bool) error {
	return nil
}
