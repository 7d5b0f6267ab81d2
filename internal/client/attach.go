package client

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"syscall"

	"go.olrik.dev/ptyserver/internal/protocol"
)

// Attach tries to connect to an already-running daemon at socketPath. It
// never launches one; callers that want attach-or-launch semantics use
// AttachOrLaunch.
func Attach(socketPath string, delegate Delegate) (*Client, error) {
	conn, err := net.DialUnix(protocol.Network, nil, &net.UnixAddr{Name: socketPath, Net: protocol.Network})
	if err != nil {
		if isConnectFailure(err) {
			return nil, fmt.Errorf("%w: %v", ErrConnectFailed, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrFatal, err)
	}

	c := newClient(conn, delegate)
	if err := c.Handshake(protocol.ProtocolVersion1); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// AttachOrLaunch implements spec.md §4.4's client policy: try to connect,
// and if that fails with ENOENT/ECONNREFUSED, fork+exec daemonPath with
// an inherited listener (fd 0), the accepted half of a freshly created
// socketpair (fd 1), and a death-detection pipe (fd 2), then proceed with
// the handshake as the launching client.
func AttachOrLaunch(socketPath, daemonPath string, delegate Delegate) (*Client, error) {
	c, err := Attach(socketPath, delegate)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrConnectFailed) {
		return nil, err
	}
	return Launch(socketPath, daemonPath, delegate)
}

// Launch unconditionally forks and execs a fresh daemon bound to
// socketPath, without first trying to attach: daemonPath is run as
// `daemonPath daemon <socketPath>`. Most callers want AttachOrLaunch
// instead.
func Launch(socketPath, daemonPath string, delegate Delegate) (*Client, error) {
	os.Remove(socketPath) // stale socket from a daemon that died without unlinking

	listener, err := net.ListenUnix(protocol.Network, &net.UnixAddr{Name: socketPath, Net: protocol.Network})
	if err != nil {
		return nil, fmt.Errorf("%w: creating listener: %v", ErrFatal, err)
	}
	listenerFile, err := listener.File()
	if err != nil {
		listener.Close()
		return nil, fmt.Errorf("%w: %v", ErrFatal, err)
	}

	parentConn, childConn, err := socketpairConns()
	if err != nil {
		listener.Close()
		listenerFile.Close()
		return nil, fmt.Errorf("%w: %v", ErrFatal, err)
	}
	childConnFile, err := childConn.File()
	if err != nil {
		listener.Close()
		listenerFile.Close()
		parentConn.Close()
		childConn.Close()
		return nil, fmt.Errorf("%w: %v", ErrFatal, err)
	}

	deathR, deathW, err := os.Pipe()
	if err != nil {
		listener.Close()
		listenerFile.Close()
		parentConn.Close()
		childConn.Close()
		childConnFile.Close()
		return nil, fmt.Errorf("%w: %v", ErrFatal, err)
	}

	cmd := exec.Command(daemonPath, "daemon", socketPath)
	cmd.Stdin = listenerFile
	cmd.Stdout = childConnFile
	cmd.Stderr = deathR
	startErr := cmd.Start()

	// The parent's copies are no longer needed once the child has them;
	// the child keeps its own dup via exec.Cmd's fd inheritance.
	listenerFile.Close()
	childConnFile.Close()
	childConn.Close()
	deathR.Close()

	if startErr != nil {
		listener.Close()
		parentConn.Close()
		deathW.Close()
		return nil, fmt.Errorf("%w: starting daemon: %v", ErrFatal, startErr)
	}

	// The daemon now owns the listener; the parent process doesn't need
	// its own handle on it.
	listener.Close()
	// The write end of the death pipe stays open until this process exits:
	// its closing (deliberately or by crash) is what tells the daemon its
	// launching client is gone. An unreachable *os.File would be closed by
	// its finalizer at some later GC, so only a bare dup of the descriptor
	// is kept.
	if fd, derr := syscall.Dup(int(deathW.Fd())); derr == nil {
		syscall.CloseOnExec(fd)
		deathW.Close()
	}

	c := newClient(parentConn, delegate)
	if err := c.Handshake(protocol.ProtocolVersion1); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func isConnectFailure(err error) bool {
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENOENT)
}
