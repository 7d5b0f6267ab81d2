package client

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// socketpairConns returns a connected pair of *net.UnixConn over an
// in-kernel SOCK_SEQPACKET pair, used to hand the daemon-to-be a
// pre-accepted connection (fd 1) without a real filesystem accept.
func socketpairConns() (parent, child *net.UnixConn, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("socketpair: %w", err)
	}
	toConn := func(fd int) (*net.UnixConn, error) {
		f := os.NewFile(uintptr(fd), "socketpair")
		c, err := net.FileConn(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		uc, ok := c.(*net.UnixConn)
		if !ok {
			c.Close()
			return nil, fmt.Errorf("unexpected conn type %T", c)
		}
		return uc, nil
	}
	parent, err = toConn(fds[0])
	if err != nil {
		unix.Close(fds[1])
		return nil, nil, err
	}
	child, err = toConn(fds[1])
	if err != nil {
		parent.Close()
		return nil, nil, err
	}
	return parent, child, nil
}
