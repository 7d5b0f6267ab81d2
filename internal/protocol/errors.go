package protocol

import "errors"

// ErrProtocol is wrapped by every decode failure: an unexpected tag, a
// length that would overflow the buffer, a missing field, or a duplicate
// field. Per spec the partial result is always discarded on this error.
var ErrProtocol = errors.New("protocol error")

// ErrShortWrite marks a sendmsg/send that wrote fewer bytes than requested.
// The spec treats this as fatal to the connection; there is no partial-send
// retry at this layer.
var ErrShortWrite = errors.New("short write")

// ErrFDCount marks a frame that carried an ancillary file descriptor count
// other than what the message type allows (zero, or exactly one for
// Launch-success and ReportChild).
var ErrFDCount = errors.New("unexpected ancillary fd count")
