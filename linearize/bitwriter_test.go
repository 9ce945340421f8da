package linearize

import (
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBitWriterPacksMSBFirst(t *testing.T) {
	w := NewBitWriter()
	w.WriteBits(0b101, 3)
	w.WriteBits(0b1100, 4)
	w.WriteBits(0b1, 1)
	if diff := cmp.Diff([]byte{0b10111001}, w.Finish()); diff != "" {
		t.Fatalf("bytes mismatch (-want +got):\n%s", diff)
	}
}

func TestBitWriterPadsFinalByte(t *testing.T) {
	w := NewBitWriter()
	w.WriteBits(0b11, 2)
	w.WriteBits(0, 0)
	w.WriteBits(0xFF, 8)
	if w.Len() != 10 {
		t.Fatalf("Len = %d", w.Len())
	}
	if diff := cmp.Diff([]byte{0xFF, 0xC0}, w.Finish()); diff != "" {
		t.Fatalf("bytes mismatch (-want +got):\n%s", diff)
	}
}

func TestBitWriterEmpty(t *testing.T) {
	if got := NewBitWriter().Finish(); len(got) != 0 {
		t.Fatalf("expected no bytes, got %x", got)
	}
}

func TestBitWriterTruncatesHighBits(t *testing.T) {
	w := NewBitWriter()
	w.WriteBits(0x1F, 4)
	w.WriteBits(0, 4)
	if diff := cmp.Diff([]byte{0xF0}, w.Finish()); diff != "" {
		t.Fatalf("bytes mismatch (-want +got):\n%s", diff)
	}
}

func TestBitWriterRoundTrip(t *testing.T) {
	type field struct {
		v    uint64
		bits int
	}
	rng := rand.New(rand.NewPCG(5, 6))
	fields := make([]field, 500)
	w := NewBitWriter()
	for i := range fields {
		bits := rng.IntN(65)
		var v uint64
		if bits > 0 {
			v = rng.Uint64() >> (64 - bits)
		}
		fields[i] = field{v, bits}
		w.WriteBits(v, bits)
	}
	r := NewBitReader(w.Finish())
	for i, f := range fields {
		got, err := r.ReadBits(f.bits)
		if err != nil {
			t.Fatalf("field %d: %v", i, err)
		}
		if got != f.v {
			t.Fatalf("field %d: got %d, want %d (%d bits)", i, got, f.v, f.bits)
		}
	}
}

func TestBitReaderShortInput(t *testing.T) {
	r := NewBitReader([]byte{0xAB})
	if _, err := r.ReadBits(9); err == nil {
		t.Fatal("expected error reading past the end")
	}
	r = NewBitReader([]byte{0xAB, 0xCD})
	r.ReadBits(3)
	r.Align()
	if r.Offset() != 1 {
		t.Fatalf("Offset after Align = %d", r.Offset())
	}
	v, err := r.ReadBits(8)
	if err != nil || v != 0xCD {
		t.Fatalf("ReadBits = %x, %v", v, err)
	}
}
