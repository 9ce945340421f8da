package linearize

// BitWriter packs values of arbitrary width into bytes, most significant
// bit first. It is append-only; Finish pads the last byte with zero bits.
type BitWriter struct {
	buf         []byte
	accumulator uint64
	bits        uint
}

// NewBitWriter returns an empty writer.
func NewBitWriter() *BitWriter {
	return &BitWriter{}
}

// WriteBits appends the low n bits of val. Writing zero bits is a no-op.
// Bits of val above n are dropped.
func (w *BitWriter) WriteBits(val uint64, n int) {
	if n <= 0 {
		return
	}
	for n > 32 {
		n -= 32
		w.write(val>>uint(n), 32)
	}
	w.write(val, uint(n))
}

func (w *BitWriter) write(val uint64, n uint) {
	if n == 0 {
		return
	}
	// at most 7 pending bits plus 32 new ones fit the accumulator
	w.accumulator = (w.accumulator << n) | (val & ((1 << n) - 1))
	w.bits += n
	for w.bits >= 8 {
		w.bits -= 8
		w.buf = append(w.buf, byte(w.accumulator>>w.bits))
	}
	w.accumulator &= (1 << w.bits) - 1
}

// Len reports the number of bits written so far.
func (w *BitWriter) Len() int {
	return len(w.buf)*8 + int(w.bits)
}

// Finish flushes a partial byte and returns the buffer.
func (w *BitWriter) Finish() []byte {
	if w.bits > 0 {
		w.buf = append(w.buf, byte(w.accumulator<<(8-w.bits)))
		w.bits = 0
		w.accumulator = 0
	}
	return w.buf
}
