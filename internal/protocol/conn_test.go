package protocol

import (
	"net"
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

// socketpair returns two *net.UnixConn connected by an in-kernel
// SOCK_SEQPACKET pair, the same transport ReadFrame/WriteFrame are built
// for, without needing a real filesystem socket path.
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
		uc, ok := c.(*net.UnixConn)
		if !ok {
			t.Fatalf("expected *net.UnixConn, got %T", c)
		}
		return uc
	}
	a = toConn(fds[0])
	b = toConn(fds[1])
	t.Cleanup(func() { a.Close(); b.Close() })
	return a, b
}

func TestWriteReadFrameCarriesFD(t *testing.T) {
	a, b := socketpair(t)

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	msg := ServerMessage{Type: RPCLaunch, Launch: &LaunchResponse{Status: 0, Pid: 4242}}
	frame, err := EncodeServerMessage(msg, int(w.Fd()))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := WriteFrame(a, frame); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	gotMsg, gotFD, err := ReadServerMessage(b)
	if err != nil {
		t.Fatalf("ReadServerMessage: %v", err)
	}
	defer unix.Close(gotFD)

	if gotMsg.Launch.Pid != 4242 {
		t.Fatalf("pid mismatch: got %d", gotMsg.Launch.Pid)
	}
	if gotFD < 0 {
		t.Fatal("expected a received fd")
	}

	// Prove gotFD really is a dup of the write end: write through it and
	// read the bytes back out the original pipe reader.
	payload := []byte("hello")
	if _, err := unix.Write(gotFD, payload); err != nil {
		t.Fatalf("write through received fd: %v", err)
	}
	buf := make([]byte, len(payload))
	if _, err := r.Read(buf); err != nil {
		t.Fatalf("read from original pipe: %v", err)
	}
	if string(buf) != "hello" {
		t.Fatalf("got %q, want %q", buf, "hello")
	}
}

func TestWriteReadFrameNoFD(t *testing.T) {
	a, b := socketpair(t)

	msg := ClientMessage{Type: RPCWait, Wait: &WaitRequest{Pid: 7}}
	if err := WriteClientMessage(a, msg); err != nil {
		t.Fatalf("WriteClientMessage: %v", err)
	}
	got, err := ReadClientMessage(b)
	if err != nil {
		t.Fatalf("ReadClientMessage: %v", err)
	}
	if got.Wait.Pid != 7 {
		t.Fatalf("pid mismatch: got %d", got.Wait.Pid)
	}
}

func TestReadFrameEOF(t *testing.T) {
	a, b := socketpair(t)
	a.Close()

	_, _, err := ReadFrame(b)
	if err == nil {
		t.Fatal("expected error reading from closed peer")
	}
}
