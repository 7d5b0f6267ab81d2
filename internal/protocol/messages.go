package protocol

import "fmt"

// HandshakeRequest is client-originated.
type HandshakeRequest struct {
	ClientMaxVersion int32
}

// HandshakeResponse is server-originated.
type HandshakeResponse struct {
	ProtocolVersion int32
	NumChildren     int32
}

// LaunchRequest is client-originated.
type LaunchRequest struct {
	Path     string
	Argv     []string
	Envp     []string
	Width    int32
	Height   int32
	IsUTF8   int32
	Pwd      string
	UniqueID int64
}

// LaunchResponse is server-originated. When Status == 0 the frame also
// carries the PTY master file descriptor; otherwise it carries none.
type LaunchResponse struct {
	Status int32
	Pid    int32
}

// WaitRequest is client-originated.
type WaitRequest struct {
	Pid int32
}

// WaitResponse is server-originated.
type WaitResponse struct {
	Pid    int32
	Status int32
	Errno  int32
}

// ReportChild is server-originated, sent only during a handshake reply, and
// always carries the child's PTY master file descriptor.
type ReportChild struct {
	IsLast     int32
	Pid        int32
	Path       string
	Argv       []string
	Envp       []string
	IsUTF8     int32
	Pwd        string
	Terminated int32
}

// Termination is server-originated and unsolicited: it always precedes the
// Wait response that lets the client learn the same child's exit status.
type Termination struct {
	Pid int32
}

// ClientMessage is the tagged union of client-originated RPCs.
type ClientMessage struct {
	Type      RPCType
	Handshake *HandshakeRequest
	Launch    *LaunchRequest
	Wait      *WaitRequest
}

// ServerMessage is the tagged union of server-originated RPCs.
type ServerMessage struct {
	Type        RPCType
	Handshake   *HandshakeResponse
	Launch      *LaunchResponse
	Wait        *WaitResponse
	ReportChild *ReportChild
	Termination *Termination
}

func encodeHandshakeRequest(e *Encoder, m *HandshakeRequest) {
	e.taggedInt32(TagHandshakeRequestClientMaxVersion, m.ClientMaxVersion)
}

func decodeHandshakeRequest(d *Decoder) (*HandshakeRequest, error) {
	v, err := d.expectInt32(TagHandshakeRequestClientMaxVersion)
	if err != nil {
		return nil, err
	}
	return &HandshakeRequest{ClientMaxVersion: v}, nil
}

func encodeHandshakeResponse(e *Encoder, m *HandshakeResponse) {
	e.taggedInt32(TagHandshakeResponseProtocolVersion, m.ProtocolVersion)
	e.taggedInt32(TagHandshakeResponseNumChildren, m.NumChildren)
}

func decodeHandshakeResponse(d *Decoder) (*HandshakeResponse, error) {
	pv, err := d.expectInt32(TagHandshakeResponseProtocolVersion)
	if err != nil {
		return nil, err
	}
	n, err := d.expectInt32(TagHandshakeResponseNumChildren)
	if err != nil {
		return nil, err
	}
	if n < 0 || n > MaxNumChildren {
		return nil, fmt.Errorf("%w: numChildren %d out of range", ErrProtocol, n)
	}
	return &HandshakeResponse{ProtocolVersion: pv, NumChildren: n}, nil
}

func encodeLaunchRequest(e *Encoder, m *LaunchRequest) {
	e.taggedString(TagLaunchRequestPath, m.Path)
	e.taggedStringArray(TagLaunchRequestArgv, m.Argv)
	e.taggedStringArray(TagLaunchRequestEnvp, m.Envp)
	e.taggedInt32(TagLaunchRequestWidth, m.Width)
	e.taggedInt32(TagLaunchRequestHeight, m.Height)
	e.taggedInt32(TagLaunchRequestIsUTF8, m.IsUTF8)
	e.taggedString(TagLaunchRequestPwd, m.Pwd)
	e.taggedInt64(TagLaunchRequestUniqueID, m.UniqueID)
}

func decodeLaunchRequest(d *Decoder) (*LaunchRequest, error) {
	var m LaunchRequest
	var err error
	if m.Path, err = d.expectString(TagLaunchRequestPath); err != nil {
		return nil, err
	}
	if m.Argv, err = d.expectStringArray(TagLaunchRequestArgv); err != nil {
		return nil, err
	}
	if m.Envp, err = d.expectStringArray(TagLaunchRequestEnvp); err != nil {
		return nil, err
	}
	if m.Width, err = d.expectInt32(TagLaunchRequestWidth); err != nil {
		return nil, err
	}
	if m.Height, err = d.expectInt32(TagLaunchRequestHeight); err != nil {
		return nil, err
	}
	if m.IsUTF8, err = d.expectInt32(TagLaunchRequestIsUTF8); err != nil {
		return nil, err
	}
	if m.Pwd, err = d.expectString(TagLaunchRequestPwd); err != nil {
		return nil, err
	}
	if m.UniqueID, err = d.expectInt64(TagLaunchRequestUniqueID); err != nil {
		return nil, err
	}
	return &m, nil
}

func encodeLaunchResponse(e *Encoder, m *LaunchResponse) {
	e.taggedInt32(TagLaunchResponseStatus, m.Status)
	e.taggedInt32(TagLaunchResponsePid, m.Pid)
}

func decodeLaunchResponse(d *Decoder) (*LaunchResponse, error) {
	status, err := d.expectInt32(TagLaunchResponseStatus)
	if err != nil {
		return nil, err
	}
	pid, err := d.expectInt32(TagLaunchResponsePid)
	if err != nil {
		return nil, err
	}
	return &LaunchResponse{Status: status, Pid: pid}, nil
}

func encodeWaitRequest(e *Encoder, m *WaitRequest) {
	e.taggedInt32(TagWaitRequestPid, m.Pid)
}

func decodeWaitRequest(d *Decoder) (*WaitRequest, error) {
	pid, err := d.expectInt32(TagWaitRequestPid)
	if err != nil {
		return nil, err
	}
	return &WaitRequest{Pid: pid}, nil
}

func encodeWaitResponse(e *Encoder, m *WaitResponse) {
	e.taggedInt32(TagWaitResponsePid, m.Pid)
	e.taggedInt32(TagWaitResponseStatus, m.Status)
	e.taggedInt32(TagWaitResponseErrno, m.Errno)
}

func decodeWaitResponse(d *Decoder) (*WaitResponse, error) {
	pid, err := d.expectInt32(TagWaitResponsePid)
	if err != nil {
		return nil, err
	}
	status, err := d.expectInt32(TagWaitResponseStatus)
	if err != nil {
		return nil, err
	}
	errno, err := d.expectInt32(TagWaitResponseErrno)
	if err != nil {
		return nil, err
	}
	return &WaitResponse{Pid: pid, Status: status, Errno: errno}, nil
}

func encodeReportChild(e *Encoder, m *ReportChild) {
	e.taggedInt32(TagReportChildIsLast, m.IsLast)
	e.taggedInt32(TagReportChildPid, m.Pid)
	e.taggedString(TagReportChildPath, m.Path)
	e.taggedStringArray(TagReportChildArgv, m.Argv)
	e.taggedStringArray(TagReportChildEnvp, m.Envp)
	e.taggedInt32(TagReportChildIsUTF8, m.IsUTF8)
	e.taggedString(TagReportChildPwd, m.Pwd)
	e.taggedInt32(TagReportChildTerminated, m.Terminated)
}

func decodeReportChild(d *Decoder) (*ReportChild, error) {
	var m ReportChild
	var err error
	if m.IsLast, err = d.expectInt32(TagReportChildIsLast); err != nil {
		return nil, err
	}
	if m.Pid, err = d.expectInt32(TagReportChildPid); err != nil {
		return nil, err
	}
	if m.Path, err = d.expectString(TagReportChildPath); err != nil {
		return nil, err
	}
	if m.Argv, err = d.expectStringArray(TagReportChildArgv); err != nil {
		return nil, err
	}
	if m.Envp, err = d.expectStringArray(TagReportChildEnvp); err != nil {
		return nil, err
	}
	if m.IsUTF8, err = d.expectInt32(TagReportChildIsUTF8); err != nil {
		return nil, err
	}
	if m.Pwd, err = d.expectString(TagReportChildPwd); err != nil {
		return nil, err
	}
	if m.Terminated, err = d.expectInt32(TagReportChildTerminated); err != nil {
		return nil, err
	}
	return &m, nil
}

func encodeTermination(e *Encoder, m *Termination) {
	e.taggedInt32(TagTerminationPid, m.Pid)
}

func decodeTermination(d *Decoder) (*Termination, error) {
	pid, err := d.expectInt32(TagTerminationPid)
	if err != nil {
		return nil, err
	}
	return &Termination{Pid: pid}, nil
}

// EncodeClientMessage encodes a client-originated message. None of these
// carry an ancillary file descriptor.
func EncodeClientMessage(msg ClientMessage) (Frame, error) {
	e := newEncoder()
	e.taggedInt32(TagType, int32(msg.Type))
	switch msg.Type {
	case RPCHandshake:
		if msg.Handshake == nil {
			return Frame{}, fmt.Errorf("%w: nil handshake payload", ErrProtocol)
		}
		encodeHandshakeRequest(e, msg.Handshake)
	case RPCLaunch:
		if msg.Launch == nil {
			return Frame{}, fmt.Errorf("%w: nil launch payload", ErrProtocol)
		}
		encodeLaunchRequest(e, msg.Launch)
	case RPCWait:
		if msg.Wait == nil {
			return Frame{}, fmt.Errorf("%w: nil wait payload", ErrProtocol)
		}
		encodeWaitRequest(e, msg.Wait)
	default:
		return Frame{}, fmt.Errorf("%w: %s is not client-originated", ErrProtocol, msg.Type)
	}
	return e.commit(), nil
}

// DecodeClientMessage decodes a client-originated message. fdCount is the
// number of ancillary descriptors the frame arrived with; client-originated
// frames never carry one.
func DecodeClientMessage(payload []byte, fdCount int) (ClientMessage, error) {
	if fdCount != 0 {
		return ClientMessage{}, fmt.Errorf("%w: client message carried %d fds, want 0", ErrFDCount, fdCount)
	}
	d := newDecoder(payload)
	rawType, err := d.expectInt32(TagType)
	if err != nil {
		return ClientMessage{}, err
	}
	msg := ClientMessage{Type: RPCType(rawType)}
	switch msg.Type {
	case RPCHandshake:
		msg.Handshake, err = decodeHandshakeRequest(d)
	case RPCLaunch:
		msg.Launch, err = decodeLaunchRequest(d)
	case RPCWait:
		msg.Wait, err = decodeWaitRequest(d)
	default:
		return ClientMessage{}, fmt.Errorf("%w: type %d is not client-originated", ErrProtocol, rawType)
	}
	if err != nil {
		return ClientMessage{}, err
	}
	if !d.done() {
		return ClientMessage{}, fmt.Errorf("%w: trailing bytes after %s", ErrProtocol, msg.Type)
	}
	return msg, nil
}

// EncodeServerMessage encodes a server-originated message. fd is the
// ancillary descriptor to attach, or -1 for none; the caller is
// responsible for passing one exactly when the schema requires it
// (Launch response with Status == 0, and ReportChild).
func EncodeServerMessage(msg ServerMessage, fd int) (Frame, error) {
	e := newEncoder()
	e.taggedInt32(TagType, int32(msg.Type))
	switch msg.Type {
	case RPCHandshake:
		if msg.Handshake == nil {
			return Frame{}, fmt.Errorf("%w: nil handshake payload", ErrProtocol)
		}
		encodeHandshakeResponse(e, msg.Handshake)
	case RPCLaunch:
		if msg.Launch == nil {
			return Frame{}, fmt.Errorf("%w: nil launch payload", ErrProtocol)
		}
		encodeLaunchResponse(e, msg.Launch)
	case RPCWait:
		if msg.Wait == nil {
			return Frame{}, fmt.Errorf("%w: nil wait payload", ErrProtocol)
		}
		encodeWaitResponse(e, msg.Wait)
	case RPCReportChild:
		if msg.ReportChild == nil {
			return Frame{}, fmt.Errorf("%w: nil reportChild payload", ErrProtocol)
		}
		encodeReportChild(e, msg.ReportChild)
	case RPCTermination:
		if msg.Termination == nil {
			return Frame{}, fmt.Errorf("%w: nil termination payload", ErrProtocol)
		}
		encodeTermination(e, msg.Termination)
	default:
		return Frame{}, fmt.Errorf("%w: unknown server message type %d", ErrProtocol, msg.Type)
	}
	e.setFD(fd)
	return e.commit(), nil
}

// DecodeServerMessage decodes a server-originated message and enforces the
// fd-count discipline from the wire schema: exactly one descriptor for a
// successful Launch response or any ReportChild, zero otherwise.
func DecodeServerMessage(payload []byte, fdCount int) (ServerMessage, error) {
	d := newDecoder(payload)
	rawType, err := d.expectInt32(TagType)
	if err != nil {
		return ServerMessage{}, err
	}
	msg := ServerMessage{Type: RPCType(rawType)}
	switch msg.Type {
	case RPCHandshake:
		msg.Handshake, err = decodeHandshakeResponse(d)
	case RPCLaunch:
		msg.Launch, err = decodeLaunchResponse(d)
	case RPCWait:
		msg.Wait, err = decodeWaitResponse(d)
	case RPCReportChild:
		msg.ReportChild, err = decodeReportChild(d)
	case RPCTermination:
		msg.Termination, err = decodeTermination(d)
	default:
		return ServerMessage{}, fmt.Errorf("%w: unknown server message type %d", ErrProtocol, rawType)
	}
	if err != nil {
		return ServerMessage{}, err
	}
	if !d.done() {
		return ServerMessage{}, fmt.Errorf("%w: trailing bytes after %s", ErrProtocol, msg.Type)
	}

	wantFD := 0
	switch {
	case msg.Type == RPCReportChild:
		wantFD = 1
	case msg.Type == RPCLaunch && msg.Launch.Status == 0:
		wantFD = 1
	}
	if fdCount != wantFD {
		return ServerMessage{}, fmt.Errorf("%w: %s carried %d fds, want %d", ErrFDCount, msg.Type, fdCount, wantFD)
	}
	return msg, nil
}
