package protocol

import (
	"bytes"
	"encoding/binary"
)

// Endianness is pinned to little-endian throughout the wire codec. The
// original iTerm2 implementation uses host-native order, which the spec
// flags as single-host-only; we follow its own recommendation and pin an
// explicit byte order instead of guessing the host's.
var byteOrder = binary.LittleEndian

// Encoder builds a single frame's worth of TLV-encoded fields in schema
// order, plus at most one file descriptor to attach as ancillary data.
// It never blocks and never partial-writes: everything accumulates in an
// in-memory buffer until Commit hands it to the connection layer.
type Encoder struct {
	buf bytes.Buffer
	fd  int
}

func newEncoder() *Encoder {
	return &Encoder{fd: -1}
}

func (e *Encoder) writeHeader(tag Tag, length int) {
	var hdr [8]byte
	byteOrder.PutUint32(hdr[0:4], uint32(tag))
	byteOrder.PutUint32(hdr[4:8], uint32(length))
	e.buf.Write(hdr[:])
}

func (e *Encoder) taggedInt32(tag Tag, v int32) {
	e.writeHeader(tag, 4)
	var b [4]byte
	byteOrder.PutUint32(b[:], uint32(v))
	e.buf.Write(b[:])
}

func (e *Encoder) taggedInt64(tag Tag, v int64) {
	e.writeHeader(tag, 8)
	var b [8]byte
	byteOrder.PutUint64(b[:], uint64(v))
	e.buf.Write(b[:])
}

func (e *Encoder) taggedString(tag Tag, s string) {
	b := append([]byte(s), 0)
	e.writeHeader(tag, len(b))
	e.buf.Write(b)
}

func (e *Encoder) taggedStringArray(tag Tag, arr []string) {
	e.taggedInt32(tag, int32(len(arr)))
	for _, s := range arr {
		e.taggedString(tag, s)
	}
}

// setFD attaches fd as the frame's single ancillary descriptor. Calling it
// twice on the same encoder is a bug in this package, not a wire error, so
// it simply overwrites.
func (e *Encoder) setFD(fd int) {
	e.fd = fd
}

// Frame is a fully encoded message ready to be handed to sendmsg: a single
// contiguous payload plus, optionally, one file descriptor.
type Frame struct {
	Payload []byte
	FD      int // -1 when the message carries no descriptor
}

// commit publishes the encoder's buffer and fd into a Frame. Mirrors
// iTermEncoderCommit in the original: the encoder is single-use afterward.
func (e *Encoder) commit() Frame {
	return Frame{Payload: e.buf.Bytes(), FD: e.fd}
}
