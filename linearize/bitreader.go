package linearize

import (
	"errors"
	"io"
)

var (
	// ErrShortHintStream is returned when a hint table ends before all of
	// its declared fields could be read.
	ErrShortHintStream = errors.New("hint stream data too short")
	// ErrInvalidPageCount is returned for a page count no document can have.
	ErrInvalidPageCount = errors.New("invalid page count")
)

// BitReader reads values written by BitWriter.
type BitReader struct {
	data []byte
	pos  int // byte position
	bit  int // bit position (0-7)
}

// NewBitReader reads from data starting at its first bit.
func NewBitReader(data []byte) *BitReader {
	return &BitReader{data: data}
}

// ReadBits reads an n-bit value, n <= 64.
func (r *BitReader) ReadBits(n int) (uint64, error) {
	if n > 64 {
		return 0, errors.New("max 64 bits")
	}
	var val uint64
	for i := 0; i < n; i++ {
		if r.pos >= len(r.data) {
			return 0, io.ErrUnexpectedEOF
		}
		bit := (r.data[r.pos] >> (7 - r.bit)) & 1
		val = (val << 1) | uint64(bit)
		r.bit++
		if r.bit == 8 {
			r.bit = 0
			r.pos++
		}
	}
	return val, nil
}

// Align skips to the next byte boundary.
func (r *BitReader) Align() {
	if r.bit != 0 {
		r.bit = 0
		r.pos++
	}
}

// Remaining returns the number of unread bits.
func (r *BitReader) Remaining() int {
	return (len(r.data)-r.pos)*8 - r.bit
}

// Offset returns the byte position of the next aligned read.
func (r *BitReader) Offset() int {
	return r.pos
}
