package protocol

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// maxFramePayload bounds a single frame's TLV payload. Argv/envp arrays are
// the only unbounded-ish fields on the wire; this is comfortably larger
// than any real shell invocation needs.
const maxFramePayload = 256 * 1024

// Network is the Unix-domain socket type ptyserver uses. SOCK_SEQPACKET
// preserves message boundaries, so one WriteFrame/ReadFrame pair is always
// exactly one recvmsg/sendmsg syscall's worth of bytes — the datagram
// semantics §4.1 calls for, without inventing a length prefix.
const Network = "unixpacket"

// WriteFrame sends one frame as a single sendmsg, attaching Frame.FD as a
// SCM_RIGHTS control message when it is set. A short write at the syscall
// level is fatal to the connection, per spec — it is never retried here.
func WriteFrame(conn *net.UnixConn, f Frame) error {
	var oob []byte
	if f.FD >= 0 {
		oob = unix.UnixRights(f.FD)
	}
	n, oobn, err := conn.WriteMsgUnix(f.Payload, oob, nil)
	if err != nil {
		return err
	}
	if n != len(f.Payload) || oobn != len(oob) {
		return ErrShortWrite
	}
	return nil
}

// ReadFrame receives exactly one frame. It returns the raw TLV payload and
// the ancillary file descriptor carried with it, or -1 if none was
// attached. Frame-shape validation (whether a descriptor was expected for
// this message type) happens one layer up, in DecodeServerMessage /
// DecodeClientMessage, since that depends on the message's type tag.
func ReadFrame(conn *net.UnixConn) (payload []byte, fd int, err error) {
	buf := make([]byte, maxFramePayload)
	oob := make([]byte, unix.CmsgSpace(4))

	for {
		n, oobn, _, _, err := conn.ReadMsgUnix(buf, oob)
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			return nil, -1, err
		}
		if n == 0 && oobn == 0 {
			return nil, -1, io.EOF
		}

		payload = append([]byte(nil), buf[:n]...)
		fd = -1
		if oobn > 0 {
			scms, perr := unix.ParseSocketControlMessage(oob[:oobn])
			if perr != nil {
				return nil, -1, fmt.Errorf("%w: parsing control message: %v", ErrProtocol, perr)
			}
			for _, scm := range scms {
				fds, rerr := unix.ParseUnixRights(&scm)
				if rerr != nil {
					continue
				}
				if len(fds) > 1 {
					for _, extra := range fds {
						unix.Close(extra)
					}
					return nil, -1, fmt.Errorf("%w: got %d fds in one control message", ErrFDCount, len(fds))
				}
				if len(fds) == 1 {
					fd = fds[0]
				}
			}
		}
		return payload, fd, nil
	}
}

// ReadClientMessage reads one frame and decodes it as a client-originated
// message.
func ReadClientMessage(conn *net.UnixConn) (ClientMessage, error) {
	payload, fd, err := ReadFrame(conn)
	if err != nil {
		return ClientMessage{}, err
	}
	fdCount := 0
	if fd >= 0 {
		fdCount = 1
		unix.Close(fd) // client-originated frames never carry one; don't leak it
	}
	return DecodeClientMessage(payload, fdCount)
}

// ReadServerMessage reads one frame and decodes it as a server-originated
// message. The caller owns the returned fd (if any) and must close it
// once done, typically by handing it to the child/PTY bookkeeping layer.
func ReadServerMessage(conn *net.UnixConn) (ServerMessage, int, error) {
	payload, fd, err := ReadFrame(conn)
	if err != nil {
		return ServerMessage{}, -1, err
	}
	fdCount := 0
	if fd >= 0 {
		fdCount = 1
	}
	msg, err := DecodeServerMessage(payload, fdCount)
	if err != nil {
		if fd >= 0 {
			unix.Close(fd)
		}
		return ServerMessage{}, -1, err
	}
	return msg, fd, nil
}

// WriteClientMessage encodes and sends a client-originated message.
func WriteClientMessage(conn *net.UnixConn, msg ClientMessage) error {
	f, err := EncodeClientMessage(msg)
	if err != nil {
		return err
	}
	return WriteFrame(conn, f)
}

// WriteServerMessage encodes and sends a server-originated message,
// attaching fd (or -1 for none) as its ancillary descriptor.
func WriteServerMessage(conn *net.UnixConn, msg ServerMessage, fd int) error {
	f, err := EncodeServerMessage(msg, fd)
	if err != nil {
		return err
	}
	return WriteFrame(conn, f)
}
