package linearize

import "encoding/binary"

// PageOffsetHeader is the fixed part of the page offset hint table. Bit
// widths are kept as uint8 and widened to 16 bits on the wire.
type PageOffsetHeader struct {
	MinObjectNumber   uint32 // least object number among first-page objects
	FirstPageLocation uint64 // byte offset of the first page's page object

	ObjectCountBits   uint8
	MinPageLength     uint32
	PageLengthBits    uint8
	MinContentOffset  uint32
	ContentOffsetBits uint8
	MinContentLength  uint32
	ContentLengthBits uint8
	MinObjectCount    uint32

	// SharedObjectIDBits is also the width of each page's shared object
	// count; see SharedCountBits.
	SharedObjectIDBits uint8
	NumeratorBits      uint8
	SharedDenominator  uint16
}

// SharedCountBits is the width of the per-page shared object count. The
// format reuses the shared object identifier width for it.
func (h PageOffsetHeader) SharedCountBits() uint8 { return h.SharedObjectIDBits }

// pageOffsetHeaderSize is the encoded header size in bytes.
const pageOffsetHeaderSize = 4 + 8 + 2 + 4 + 2 + 4 + 2 + 4 + 2 + 4 + 2 + 2 + 2

// PageOffsetEntry holds the per-page values of the page offset hint table.
// Deltas are relative to the matching header minimum.
type PageOffsetEntry struct {
	ObjectCountDelta uint32
	PageLengthDelta  uint32
	// SharedObjectIDs are indices into the shared object hint table.
	SharedObjectIDs []uint32
	// Numerators parallel SharedObjectIDs; missing values encode as 0.
	Numerators         []uint32
	ContentOffsetDelta uint32
	ContentLengthDelta uint32
}

// SharedObjectCount is the number of shared objects the page references.
func (e PageOffsetEntry) SharedObjectCount() int { return len(e.SharedObjectIDs) }

func (e PageOffsetEntry) numerator(i int) uint32 {
	if i < len(e.Numerators) {
		return e.Numerators[i]
	}
	return 0
}

// SharedObjectHeader is the fixed part of the shared object hint table.
type SharedObjectHeader struct {
	FirstObjectNumber   uint32
	FirstObjectLocation uint64
	FirstPageEntries    uint32
	RemainingEntries    uint32
	ObjectLengthBits    uint8
	MinObjectLength     uint32
	// ObjectNumberBits is also the width of each entry's group size; see
	// GroupCountBits.
	ObjectNumberBits uint8
}

// GroupCountBits is the width of the per-entry object count. The format
// reuses the object number width for it.
func (h SharedObjectHeader) GroupCountBits() uint8 { return h.ObjectNumberBits }

const sharedObjectHeaderSize = 4 + 8 + 4 + 4 + 2 + 4 + 2

// SharedObjectEntry describes one shared object group.
type SharedObjectEntry struct {
	ObjectLengthDelta uint32
	FirstPage         bool
	ObjectNumberDelta uint32
	ObjectCount       uint32
}

// HintTables holds the page offset and shared object hint tables of a
// linearized file.
type HintTables struct {
	PageOffset    PageOffsetHeader
	Pages         []PageOffsetEntry
	SharedObjects SharedObjectHeader
	Shared        []SharedObjectEntry
}

// NewHintTables returns empty tables.
func NewHintTables() *HintTables {
	return &HintTables{}
}

// Bytes encodes the page offset hint table followed by the shared object
// hint table.
func (t *HintTables) Bytes() []byte {
	page := t.PageOffsetTableBytes()
	shared := t.SharedObjectTableBytes()
	out := make([]byte, 0, len(page)+len(shared))
	out = append(out, page...)
	return append(out, shared...)
}

// PageOffsetTableBytes encodes the page offset hint table.
func (t *HintTables) PageOffsetTableBytes() []byte {
	h := t.PageOffset
	buf := make([]byte, 0, pageOffsetHeaderSize)
	buf = binary.BigEndian.AppendUint32(buf, h.MinObjectNumber)
	buf = binary.BigEndian.AppendUint64(buf, h.FirstPageLocation)
	buf = binary.BigEndian.AppendUint16(buf, uint16(h.ObjectCountBits))
	buf = binary.BigEndian.AppendUint32(buf, h.MinPageLength)
	buf = binary.BigEndian.AppendUint16(buf, uint16(h.PageLengthBits))
	buf = binary.BigEndian.AppendUint32(buf, h.MinContentOffset)
	buf = binary.BigEndian.AppendUint16(buf, uint16(h.ContentOffsetBits))
	buf = binary.BigEndian.AppendUint32(buf, h.MinContentLength)
	buf = binary.BigEndian.AppendUint16(buf, uint16(h.ContentLengthBits))
	buf = binary.BigEndian.AppendUint32(buf, h.MinObjectCount)
	buf = binary.BigEndian.AppendUint16(buf, uint16(h.SharedObjectIDBits))
	buf = binary.BigEndian.AppendUint16(buf, uint16(h.NumeratorBits))
	buf = binary.BigEndian.AppendUint16(buf, h.SharedDenominator)

	bw := NewBitWriter()
	for _, e := range t.Pages {
		bw.WriteBits(uint64(e.ObjectCountDelta), int(h.ObjectCountBits))
		bw.WriteBits(uint64(e.PageLengthDelta), int(h.PageLengthBits))
		bw.WriteBits(uint64(e.SharedObjectCount()), int(h.SharedCountBits()))
		for _, id := range e.SharedObjectIDs {
			bw.WriteBits(uint64(id), int(h.SharedObjectIDBits))
		}
		for i := range e.SharedObjectIDs {
			bw.WriteBits(uint64(e.numerator(i)), int(h.NumeratorBits))
		}
		bw.WriteBits(uint64(e.ContentOffsetDelta), int(h.ContentOffsetBits))
		bw.WriteBits(uint64(e.ContentLengthDelta), int(h.ContentLengthBits))
	}
	return append(buf, bw.Finish()...)
}

// SharedObjectTableBytes encodes the shared object hint table.
func (t *HintTables) SharedObjectTableBytes() []byte {
	h := t.SharedObjects
	buf := make([]byte, 0, sharedObjectHeaderSize)
	buf = binary.BigEndian.AppendUint32(buf, h.FirstObjectNumber)
	buf = binary.BigEndian.AppendUint64(buf, h.FirstObjectLocation)
	buf = binary.BigEndian.AppendUint32(buf, h.FirstPageEntries)
	buf = binary.BigEndian.AppendUint32(buf, h.RemainingEntries)
	buf = binary.BigEndian.AppendUint16(buf, uint16(h.ObjectLengthBits))
	buf = binary.BigEndian.AppendUint32(buf, h.MinObjectLength)
	buf = binary.BigEndian.AppendUint16(buf, uint16(h.ObjectNumberBits))

	bw := NewBitWriter()
	for _, e := range t.Shared {
		bw.WriteBits(uint64(e.ObjectLengthDelta), int(h.ObjectLengthBits))
		var flag uint64
		if e.FirstPage {
			flag = 1
		}
		bw.WriteBits(flag, 1)
		bw.WriteBits(uint64(e.ObjectNumberDelta), int(h.ObjectNumberBits))
		bw.WriteBits(uint64(e.ObjectCount), int(h.GroupCountBits()))
	}
	return append(buf, bw.Finish()...)
}
