package protocol

import "fmt"

// Decoder walks a frame's payload left to right. Every Expect* call
// asserts the tag the schema says must come next; a mismatch, a length
// that would overflow the remaining buffer, or a truncated value is a
// protocol error and decoding stops immediately — the caller never gets a
// partially populated message.
type Decoder struct {
	data []byte
	off  int
}

func newDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

func (d *Decoder) readHeader(want Tag) (length int, err error) {
	if d.off+8 > len(d.data) {
		return 0, fmt.Errorf("%w: truncated header for tag %d", ErrProtocol, want)
	}
	tag := Tag(byteOrder.Uint32(d.data[d.off : d.off+4]))
	length = int(byteOrder.Uint32(d.data[d.off+4 : d.off+8]))
	d.off += 8
	if tag != want {
		return 0, fmt.Errorf("%w: expected tag %d, got %d", ErrProtocol, want, tag)
	}
	if length < 0 || d.off+length > len(d.data) {
		return 0, fmt.Errorf("%w: length %d for tag %d overflows buffer", ErrProtocol, length, want)
	}
	return length, nil
}

func (d *Decoder) expectInt32(tag Tag) (int32, error) {
	length, err := d.readHeader(tag)
	if err != nil {
		return 0, err
	}
	if length != 4 {
		return 0, fmt.Errorf("%w: tag %d has wrong int32 length %d", ErrProtocol, tag, length)
	}
	v := int32(byteOrder.Uint32(d.data[d.off : d.off+4]))
	d.off += length
	return v, nil
}

func (d *Decoder) expectInt64(tag Tag) (int64, error) {
	length, err := d.readHeader(tag)
	if err != nil {
		return 0, err
	}
	if length != 8 {
		return 0, fmt.Errorf("%w: tag %d has wrong int64 length %d", ErrProtocol, tag, length)
	}
	v := int64(byteOrder.Uint64(d.data[d.off : d.off+8]))
	d.off += length
	return v, nil
}

func (d *Decoder) expectString(tag Tag) (string, error) {
	length, err := d.readHeader(tag)
	if err != nil {
		return "", err
	}
	if length == 0 || d.data[d.off+length-1] != 0 {
		return "", fmt.Errorf("%w: tag %d string value is not NUL-terminated", ErrProtocol, tag)
	}
	s := string(d.data[d.off : d.off+length-1])
	d.off += length
	return s, nil
}

func (d *Decoder) expectStringArray(tag Tag) ([]string, error) {
	count, err := d.expectInt32(tag)
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, fmt.Errorf("%w: negative string array count for tag %d", ErrProtocol, tag)
	}
	// Each element costs at least 9 bytes on the wire (an 8-byte tag/length
	// header plus a 1-byte NUL terminator), so a count that could not
	// possibly fit in what's left of the buffer is rejected before
	// allocating for it — a corrupt or hostile length prefix doesn't get to
	// force a multi-gigabyte make() ahead of the per-string reads that
	// would otherwise catch it.
	const minStringSize = 9
	if remaining := len(d.data) - d.off; int64(count)*minStringSize > int64(remaining) {
		return nil, fmt.Errorf("%w: string array count %d for tag %d exceeds remaining buffer", ErrProtocol, count, tag)
	}
	arr := make([]string, count)
	for i := range arr {
		s, err := d.expectString(tag)
		if err != nil {
			return nil, err
		}
		arr[i] = s
	}
	return arr, nil
}

func (d *Decoder) done() bool {
	return d.off >= len(d.data)
}
