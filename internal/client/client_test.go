package client

import (
	"net"
	"os"
	"testing"

	"golang.org/x/sys/unix"

	"go.olrik.dev/ptyserver/internal/protocol"
)

type recordingDelegate struct {
	discovered []int32
	terminated []int32
}

func (d *recordingDelegate) ChildDiscovered(pid int32, spec protocol.LaunchRequest, terminated bool, fd int) {
	d.discovered = append(d.discovered, pid)
	if fd >= 0 {
		unix.Close(fd)
	}
}

func (d *recordingDelegate) ChildTerminated(pid int32) {
	d.terminated = append(d.terminated, pid)
}

func socketpair(t *testing.T) (a, b *net.UnixConn) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	toConn := func(fd int) *net.UnixConn {
		f := os.NewFile(uintptr(fd), "socketpair")
		c, err := net.FileConn(f)
		f.Close()
		if err != nil {
			t.Fatalf("FileConn: %v", err)
		}
		return c.(*net.UnixConn)
	}
	a, b = toConn(fds[0]), toConn(fds[1])
	t.Cleanup(func() { a.Close(); b.Close() })
	return a, b
}

func TestHandshakeAbsorbsReportChildren(t *testing.T) {
	clientSide, serverSide := socketpair(t)
	delegate := &recordingDelegate{}
	c := newClient(clientSide, delegate)

	serverDone := make(chan error, 1)
	go func() {
		req, err := protocol.ReadClientMessage(serverSide)
		if err != nil {
			serverDone <- err
			return
		}
		if req.Type != protocol.RPCHandshake {
			serverDone <- nil
			return
		}
		protocol.WriteServerMessage(serverSide, protocol.ServerMessage{
			Type:      protocol.RPCHandshake,
			Handshake: &protocol.HandshakeResponse{ProtocolVersion: 1, NumChildren: 2},
		}, -1)
		r, w, _ := os.Pipe()
		defer r.Close()
		protocol.WriteServerMessage(serverSide, protocol.ServerMessage{
			Type: protocol.RPCReportChild,
			ReportChild: &protocol.ReportChild{
				IsLast: 0, Pid: 10, Path: "/bin/sh", Argv: []string{"sh"}, Pwd: "/",
			},
		}, int(w.Fd()))
		w.Close()
		r2, w2, _ := os.Pipe()
		defer r2.Close()
		protocol.WriteServerMessage(serverSide, protocol.ServerMessage{
			Type: protocol.RPCReportChild,
			ReportChild: &protocol.ReportChild{
				IsLast: 1, Pid: 20, Path: "/bin/bash", Argv: []string{"bash"}, Pwd: "/",
			},
		}, int(w2.Fd()))
		w2.Close()
		serverDone <- nil
	}()

	if err := c.Handshake(protocol.ProtocolVersion1); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	if err := <-serverDone; err != nil {
		t.Fatalf("server side: %v", err)
	}
	if len(delegate.discovered) != 2 || delegate.discovered[0] != 10 || delegate.discovered[1] != 20 {
		t.Fatalf("unexpected discovered children: %v", delegate.discovered)
	}
}

func TestHandshakeRejectedVersionIsFatal(t *testing.T) {
	clientSide, serverSide := socketpair(t)
	c := newClient(clientSide, &recordingDelegate{})

	go func() {
		protocol.ReadClientMessage(serverSide)
		protocol.WriteServerMessage(serverSide, protocol.ServerMessage{
			Type:      protocol.RPCHandshake,
			Handshake: &protocol.HandshakeResponse{ProtocolVersion: protocol.ProtocolVersionRejected},
		}, -1)
	}()

	err := c.Handshake(protocol.ProtocolVersion1)
	if err == nil {
		t.Fatal("expected an error for a rejected handshake")
	}
}

func TestLaunchFIFOOrdering(t *testing.T) {
	clientSide, serverSide := socketpair(t)
	c := newClient(clientSide, &recordingDelegate{})
	go c.readLoop()

	devNull, err := os.Open(os.DevNull)
	if err != nil {
		t.Fatalf("open devnull: %v", err)
	}
	defer devNull.Close()

	go func() {
		for i := 0; i < 2; i++ {
			req, err := protocol.ReadClientMessage(serverSide)
			if err != nil {
				return
			}
			if req.Type != protocol.RPCLaunch {
				return
			}
			protocol.WriteServerMessage(serverSide, protocol.ServerMessage{
				Type:   protocol.RPCLaunch,
				Launch: &protocol.LaunchResponse{Status: 0, Pid: int32(100 + i)},
			}, int(devNull.Fd()))
		}
	}()

	h1, err := c.Launch(protocol.LaunchRequest{Path: "/bin/sh"})
	if err != nil {
		t.Fatalf("Launch 1: %v", err)
	}
	if h1.Pid != 100 {
		t.Fatalf("expected first launch to resolve first, got pid %d", h1.Pid)
	}
	unix.Close(h1.MasterFD)

	h2, err := c.Launch(protocol.LaunchRequest{Path: "/bin/bash"})
	if err != nil {
		t.Fatalf("Launch 2: %v", err)
	}
	if h2.Pid != 101 {
		t.Fatalf("expected second launch to resolve second, got pid %d", h2.Pid)
	}
	unix.Close(h2.MasterFD)
}

func TestConnectionLossFailsOutstandingWait(t *testing.T) {
	clientSide, serverSide := socketpair(t)
	c := newClient(clientSide, &recordingDelegate{})
	go c.readLoop()

	waitErrCh := make(chan error, 1)
	go func() {
		_, err := c.Wait(42)
		waitErrCh <- err
	}()

	// Give Wait a moment to register, then drop the connection.
	protocol.ReadClientMessage(serverSide)
	serverSide.Close()

	err := <-waitErrCh
	if err == nil {
		t.Fatal("expected ErrConnectionLost after connection drop")
	}
}
