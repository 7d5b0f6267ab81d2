// Package client implements the attach-or-launch side of the PTY
// multiplexing protocol: connecting to (or bootstrapping) a daemon,
// correlating its FIFO-per-kind responses with outstanding requests, and
// delivering child-discovered/child-terminated events to a delegate.
package client

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"go.olrik.dev/ptyserver/internal/protocol"
)

// Delegate receives the events a Client can't simply return from a
// function call: children discovered during reattach, and terminations
// that arrive asynchronously between requests.
type Delegate interface {
	ChildDiscovered(pid int32, spec protocol.LaunchRequest, terminated bool, masterFD int)
	ChildTerminated(pid int32)
}

// ChildHandle is what a successful Launch (or a reattach's
// ChildDiscovered callback) hands the caller: everything needed to
// drive the child's PTY and later Wait on it.
type ChildHandle struct {
	Pid      int32
	MasterFD int
}

// pendingResult is the value delivered to a continuation's channel.
type pendingResult struct {
	msg protocol.ServerMessage
	fd  int
	err error
}

// Client is one attached (or just-launched) connection to the daemon.
// Per spec.md §5, all delegate callbacks and continuation completions
// are serialized onto the single readLoop goroutine — there is no
// concurrent dispatch to guard against.
type Client struct {
	conn     *net.UnixConn
	delegate Delegate

	mu       sync.Mutex
	launchQ  []chan pendingResult
	waitQ    []chan pendingResult
	closed   bool
	closeErr error
}

// newClient wraps an already-connected socket. Unexported: callers go
// through Attach or Launch in attach.go, which know how the connection
// came to exist.
func newClient(conn *net.UnixConn, delegate Delegate) *Client {
	return &Client{conn: conn, delegate: delegate}
}

// Handshake performs the protocol handshake and, on success, absorbs the
// ReportChild stream that follows it, surfacing each as a
// Delegate.ChildDiscovered call before returning.
func (c *Client) Handshake(clientMaxVersion int32) error {
	if err := protocol.WriteClientMessage(c.conn, protocol.ClientMessage{
		Type:      protocol.RPCHandshake,
		Handshake: &protocol.HandshakeRequest{ClientMaxVersion: clientMaxVersion},
	}); err != nil {
		return fmt.Errorf("%w: sending handshake: %v", ErrFatal, err)
	}

	// The handshake response and its trailing ReportChild stream are
	// read directly here rather than through the FIFO queues: nothing
	// else can be outstanding this early, and ReportChild has no
	// continuation of its own (spec.md §4.4).
	resp, _, err := protocol.ReadServerMessage(c.conn)
	if err != nil {
		return fmt.Errorf("%w: reading handshake response: %v", ErrFatal, err)
	}
	if resp.Type != protocol.RPCHandshake {
		return fmt.Errorf("%w: expected handshake response, got %s", ErrFatal, resp.Type)
	}
	if resp.Handshake.ProtocolVersion == protocol.ProtocolVersionRejected {
		return fmt.Errorf("%w: server rejected protocol version", ErrFatal)
	}

	for i := int32(0); i < resp.Handshake.NumChildren; i++ {
		rc, fd, err := protocol.ReadServerMessage(c.conn)
		if err != nil {
			return fmt.Errorf("%w: reading reportchild: %v", ErrFatal, err)
		}
		if rc.Type != protocol.RPCReportChild {
			return fmt.Errorf("%w: expected reportchild, got %s", ErrFatal, rc.Type)
		}
		spec := protocol.LaunchRequest{
			Path: rc.ReportChild.Path, Argv: rc.ReportChild.Argv, Envp: rc.ReportChild.Envp,
			IsUTF8: rc.ReportChild.IsUTF8, Pwd: rc.ReportChild.Pwd,
		}
		c.delegate.ChildDiscovered(rc.ReportChild.Pid, spec, rc.ReportChild.Terminated != 0, fd)
		if rc.ReportChild.IsLast != 0 {
			break
		}
	}

	go c.readLoop()
	return nil
}

// Launch asks the daemon to start a new child and blocks for its
// response.
func (c *Client) Launch(req protocol.LaunchRequest) (ChildHandle, error) {
	ch := make(chan pendingResult, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ChildHandle{}, fmt.Errorf("%w", ErrConnectionLost)
	}
	c.launchQ = append(c.launchQ, ch)
	c.mu.Unlock()

	if err := protocol.WriteClientMessage(c.conn, protocol.ClientMessage{
		Type: protocol.RPCLaunch, Launch: &req,
	}); err != nil {
		return ChildHandle{}, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}

	res := <-ch
	if res.err != nil {
		return ChildHandle{}, res.err
	}
	if res.msg.Launch.Status != 0 {
		return ChildHandle{}, fmt.Errorf("%w: launch failed, status=%d", errUnknown, res.msg.Launch.Status)
	}
	return ChildHandle{Pid: res.msg.Launch.Pid, MasterFD: res.fd}, nil
}

// Wait asks the daemon for a child's exit status.
func (c *Client) Wait(pid int32) (status int32, err error) {
	ch := make(chan pendingResult, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, fmt.Errorf("%w", ErrConnectionLost)
	}
	c.waitQ = append(c.waitQ, ch)
	c.mu.Unlock()

	if werr := protocol.WriteClientMessage(c.conn, protocol.ClientMessage{
		Type: protocol.RPCWait, Wait: &protocol.WaitRequest{Pid: pid},
	}); werr != nil {
		return 0, fmt.Errorf("%w: %v", ErrConnectionLost, werr)
	}

	res := <-ch
	if res.err != nil {
		return 0, res.err
	}
	switch res.msg.Wait.Errno {
	case 0:
		return res.msg.Wait.Status, nil
	case -1:
		return 0, ErrNoSuchChild
	case -2:
		return 0, ErrCanNotWait
	default:
		return 0, fmt.Errorf("%w: errno=%d", errUnknown, res.msg.Wait.Errno)
	}
}

// Close shuts down the connection and fails every outstanding
// continuation with ErrConnectionLost.
func (c *Client) Close() error {
	return c.conn.Close()
}

// readLoop is the client's single dispatch thread: it decodes every
// server message and either completes the oldest outstanding FIFO
// continuation for that RPC kind, or — for Termination — invokes the
// delegate directly, exactly as spec.md §4.4 describes.
func (c *Client) readLoop() {
	for {
		msg, fd, err := protocol.ReadServerMessage(c.conn)
		if err != nil {
			c.failAll(fmt.Errorf("%w: %v", ErrConnectionLost, err))
			return
		}

		switch msg.Type {
		case protocol.RPCLaunch:
			c.complete(&c.launchQ, pendingResult{msg: msg, fd: fd})
		case protocol.RPCWait:
			c.complete(&c.waitQ, pendingResult{msg: msg, fd: fd})
		case protocol.RPCTermination:
			c.delegate.ChildTerminated(msg.Termination.Pid)
		default:
			// ReportChild (or anything else) outside the handshake is a
			// protocol violation, not something to shrug off: fail every
			// outstanding continuation and drop the connection.
			c.failAll(fmt.Errorf("%w: unexpected message type %s outside handshake", ErrFatal, msg.Type))
			c.conn.Close()
			return
		}
	}
}

func (c *Client) complete(q *[]chan pendingResult, res pendingResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(*q) == 0 {
		slog.Warn("client: received response with no outstanding request", "type", res.msg.Type)
		return
	}
	ch := (*q)[0]
	*q = (*q)[1:]
	ch <- res
}

func (c *Client) failAll(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.closeErr = err
	for _, ch := range c.launchQ {
		ch <- pendingResult{err: err}
	}
	for _, ch := range c.waitQ {
		ch <- pendingResult{err: err}
	}
	c.launchQ, c.waitQ = nil, nil
}
