// Package daemon implements the long-lived PTY multiplexing server: the
// child table, the accept/reap event loop, and the RPC handlers that sit
// on top of internal/protocol's wire codec.
package daemon

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"

	"go.olrik.dev/ptyserver/internal/protocol"
)

// Server is the daemon's single event-loop context. Unlike the original
// C implementation's module-level globals (children, numberOfChildren,
// gPipe, gPath), every piece of mutable state here is a field on a value
// created once in Bootstrap and passed explicitly to every handler.
type Server struct {
	listener   *net.UnixListener
	deathPipe  *os.File
	socketPath string

	table *Table

	incoming  chan *net.UnixConn // connections accepted while already busy, or the next to serve
	done      chan struct{}
	closeOnce sync.Once
}

// Bootstrap reconstructs a Server from the three file descriptors the
// client is required to hand the daemon binary on exec: fd 0 = listening
// socket, fd 1 = already-accepted connection, fd 2 = death-detection
// pipe. socketPath is the positional CLI argument, kept so the daemon can
// watch for its removal and unlink it on exit.
func Bootstrap(socketPath string) (*Server, *net.UnixConn, error) {
	listenerFile := os.NewFile(0, "listener")
	connFile := os.NewFile(1, "conn")
	deathPipe := os.NewFile(2, "death-pipe")
	if listenerFile == nil || connFile == nil || deathPipe == nil {
		return nil, nil, fmt.Errorf("daemon: expected fds 0,1,2 to be open, got nil listener/conn/death-pipe file")
	}

	l, err := net.FileListener(listenerFile)
	listenerFile.Close()
	if err != nil {
		return nil, nil, fmt.Errorf("daemon: reconstructing listener from fd 0: %w", err)
	}
	ul, ok := l.(*net.UnixListener)
	if !ok {
		l.Close()
		return nil, nil, fmt.Errorf("daemon: fd 0 is not a unix listener")
	}

	c, err := net.FileConn(connFile)
	connFile.Close()
	if err != nil {
		ul.Close()
		return nil, nil, fmt.Errorf("daemon: reconstructing connection from fd 1: %w", err)
	}
	uc, ok := c.(*net.UnixConn)
	if !ok {
		ul.Close()
		c.Close()
		return nil, nil, fmt.Errorf("daemon: fd 1 is not a unix connection")
	}

	return &Server{
		listener:   ul,
		deathPipe:  deathPipe,
		socketPath: socketPath,
		table:      NewTable(),
		incoming:   make(chan *net.UnixConn, 1),
		done:       make(chan struct{}),
	}, uc, nil
}

// clientRequest is one decoded frame pulled off the current connection's
// read loop, or the error that ended the read loop.
type clientRequest struct {
	msg protocol.ClientMessage
	err error
}

// Run is the server's outer+inner event loop: while a client is
// connected it dispatches requests and reaps children; on disconnect it
// waits for the next connection (either already queued by the accept
// goroutine, or a fresh accept) and starts over. It returns only on a
// fatal listener error or an external shutdown trigger (death pipe
// closed, or the socket path removed out from under it).
func (s *Server) Run(initial *net.UnixConn) error {
	defer os.Remove(s.socketPath)
	defer s.listener.Close()

	sigchld := make(chan os.Signal, 1)
	signal.Notify(sigchld, syscall.SIGCHLD)
	signal.Ignore(syscall.SIGHUP, syscall.SIGPIPE)

	sigterm := make(chan os.Signal, 1)
	signal.Notify(sigterm, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigterm
		slog.Info("shutdown signal received")
		s.triggerShutdown()
	}()

	installParentDeathSignal()

	go s.acceptLoop()
	go s.watchDeathPipe()
	go s.watchSocketPath()

	current := initial
	for {
		if current == nil {
			select {
			case c, ok := <-s.incoming:
				if !ok {
					return nil // listener died or shut down
				}
				current = c
			case <-s.done:
				return nil
			}
		}

		slog.Info("client connected")
		requests := make(chan clientRequest, 8)
		go readRequests(current, requests)

		if err := s.serveConnection(current, requests, sigchld); err != nil {
			slog.Info("connection ended", "error", err)
		}
		current.Close()
		current = nil

		select {
		case <-s.done:
			return nil
		default:
		}
	}
}

// serveConnection is the inner select loop: it watches the reaper signal,
// the current connection's decoded requests, and stray connections on
// the listener (rejected while busy), until the connection breaks.
func (s *Server) serveConnection(conn *net.UnixConn, requests chan clientRequest, sigchld chan os.Signal) error {
	for {
		select {
		case <-sigchld:
			s.reap(conn)

		case req, ok := <-requests:
			if !ok {
				return io.EOF
			}
			if req.err != nil {
				return req.err
			}
			if err := s.dispatch(conn, req.msg); err != nil {
				return err
			}

		case extra := <-s.incoming:
			s.rejectBusy(extra)

		case <-s.done:
			return nil
		}
	}
}

func (s *Server) dispatch(conn *net.UnixConn, msg protocol.ClientMessage) error {
	switch msg.Type {
	case protocol.RPCHandshake:
		return s.handleHandshake(conn, msg.Handshake)
	case protocol.RPCLaunch:
		return s.handleLaunch(conn, msg.Launch)
	case protocol.RPCWait:
		return s.handleWait(conn, msg.Wait)
	default:
		return fmt.Errorf("%w: unexpected client message type %s", protocol.ErrProtocol, msg.Type)
	}
}

// reap performs a non-blocking waitpid sweep over every not-yet-terminated
// child, reproducing the self-pipe-triggered reaper. Termination messages
// are sent on conn, but the record is kept (not removed) until an
// explicit successful Wait — see handlers.go's handleWait.
func (s *Server) reap(conn *net.UnixConn) {
	for _, pid := range s.table.NotTerminated() {
		var wstatus syscall.WaitStatus
		gotPid, err := syscall.Wait4(int(pid), &wstatus, syscall.WNOHANG, nil)
		if err != nil || gotPid <= 0 {
			continue
		}
		s.table.MarkTerminated(pid, int32(wstatus))
		slog.Info("child terminated", "pid", pid, "status", int32(wstatus))
		if err := protocol.WriteServerMessage(conn, protocol.ServerMessage{
			Type:        protocol.RPCTermination,
			Termination: &protocol.Termination{Pid: pid},
		}, -1); err != nil {
			slog.Warn("failed to send termination notice", "pid", pid, "error", err)
		}
	}
}

// rejectBusy answers a second concurrent connector with a
// handshake-shaped rejection (protocol_version = -1), then closes —
// matching AcceptAndReject in the original, which never just drops the
// socket silently.
func (s *Server) rejectBusy(conn *net.UnixConn) {
	slog.Debug("rejecting connection while busy")
	_ = protocol.WriteServerMessage(conn, protocol.ServerMessage{
		Type:      protocol.RPCHandshake,
		Handshake: &protocol.HandshakeResponse{ProtocolVersion: protocol.ProtocolVersionRejected},
	}, -1)
	conn.Close()
}

// acceptLoop keeps calling Accept for as long as the listener lives,
// handing every connection to incoming — whichever goroutine is ready to
// treat it as "the next client" (serveConnection when busy, Run when
// idle) decides what to do with it.
func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			slog.Info("listener accept stopped", "error", err)
			close(s.incoming)
			return
		}
		uc, ok := conn.(*net.UnixConn)
		if !ok {
			conn.Close()
			continue
		}
		s.incoming <- uc
	}
}

// readRequests decodes frames off conn until it errors, publishing each
// to requests and closing the channel on the terminal error.
func readRequests(conn *net.UnixConn, requests chan<- clientRequest) {
	defer close(requests)
	for {
		msg, err := protocol.ReadClientMessage(conn)
		if err != nil {
			requests <- clientRequest{err: err}
			return
		}
		requests <- clientRequest{msg: msg}
	}
}

// watchDeathPipe blocks reading the death-detection pipe handed down as
// fd 2; any read result (including EOF) means the launching parent went
// away, so the daemon shuts down the same as on SIGTERM.
func (s *Server) watchDeathPipe() {
	buf := make([]byte, 1)
	s.deathPipe.Read(buf) //nolint:errcheck // any return (EOF or data) is the signal
	slog.Info("death pipe closed, parent is gone; shutting down")
	s.triggerShutdown()
}

// watchSocketPath uses fsnotify to notice if the control socket file is
// removed out from under the daemon (operator `rm`, filesystem issue,
// whatever) and treats that the same as a fatal listener error.
func (s *Server) watchSocketPath() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("could not start socket-path watcher", "error", err)
		return
	}
	defer watcher.Close()

	dir := parentDir(s.socketPath)
	if err := watcher.Add(dir); err != nil {
		slog.Warn("could not watch socket directory", "dir", dir, "error", err)
		return
	}

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Name == s.socketPath && (ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0) {
				slog.Warn("control socket removed externally, shutting down", "path", s.socketPath)
				s.triggerShutdown()
				return
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("socket-path watcher error", "error", err)
		case <-s.done:
			return
		}
	}
}

func (s *Server) triggerShutdown() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.listener.Close()
	})
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			if i == 0 {
				return "/"
			}
			return path[:i]
		}
	}
	return "."
}
