// Package protocol implements the length-prefixed, tagged wire codec used
// between a ptyserver client and the daemon it attaches to or launches, and
// the SCM_RIGHTS plumbing that carries a PTY master file descriptor
// alongside certain messages.
//
// The tag layout, message field order, and RPC type enumeration mirror
// iTerm2's iTermMultiServerProtocol.h exactly so the wire shapes below are
// not an invention: they're a direct, renamed port.
package protocol

// Tag identifies a single TLV field within a frame. The first field of
// every frame is always TagType.
type Tag int32

const (
	TagType Tag = iota

	TagHandshakeRequestClientMaxVersion

	TagHandshakeResponseProtocolVersion
	TagHandshakeResponseNumChildren

	TagLaunchRequestPath
	TagLaunchRequestArgv
	TagLaunchRequestEnvp
	TagLaunchRequestWidth
	TagLaunchRequestHeight
	TagLaunchRequestIsUTF8
	TagLaunchRequestPwd
	TagLaunchRequestUniqueID

	TagWaitRequestPid

	TagWaitResponsePid
	TagWaitResponseStatus
	TagWaitResponseErrno

	TagLaunchResponseStatus
	TagLaunchResponsePid

	TagReportChildIsLast
	TagReportChildPid
	TagReportChildPath
	TagReportChildArgv
	TagReportChildEnvp
	TagReportChildPwd
	TagReportChildIsUTF8
	TagReportChildTerminated

	TagTerminationPid
)

// RPCType is the message kind carried as the first field of every frame.
type RPCType int32

const (
	RPCHandshake RPCType = iota
	RPCLaunch
	RPCWait
	RPCReportChild
	RPCTermination
)

func (t RPCType) String() string {
	switch t {
	case RPCHandshake:
		return "Handshake"
	case RPCLaunch:
		return "Launch"
	case RPCWait:
		return "Wait"
	case RPCReportChild:
		return "ReportChild"
	case RPCTermination:
		return "Termination"
	default:
		return "Unknown"
	}
}

// ProtocolVersion1 is the only protocol version this package speaks.
// ProtocolVersionRejected is returned by a server that is already serving
// a client when a second connector attempts a handshake.
const (
	ProtocolVersionRejected int32 = -1
	ProtocolVersion1        int32 = 1
)

// MaxNumChildren bounds HandshakeResponse.NumChildren, per the wire schema.
const MaxNumChildren = 1024
