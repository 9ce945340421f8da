package linearize

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/wudi/pdflinear/ir/raw"
)

// ParseHintStream decodes a hint stream object. The /S entry locates the
// shared object hint table; npages is the page count from the
// linearization dictionary.
func ParseHintStream(stream *raw.StreamObj, npages int) (*HintTables, error) {
	if stream == nil || stream.Dict == nil {
		return nil, errors.New("hint stream missing")
	}
	sVal, ok := stream.Dict.Get(raw.NameLiteral("S"))
	if !ok {
		return nil, errors.New("hint stream missing S (shared object offset)")
	}
	num, ok := sVal.(raw.NumberObj)
	if !ok {
		return nil, errors.New("hint stream S is not a number")
	}
	data := stream.Data
	if f, ok := stream.Dict.Get(raw.NameLiteral("Filter")); ok {
		name, ok := f.(raw.NameObj)
		if !ok || name.Value() != "FlateDecode" {
			return nil, fmt.Errorf("unsupported hint stream filter %v", f)
		}
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("inflate hint stream: %w", err)
		}
		defer zr.Close()
		if data, err = io.ReadAll(zr); err != nil {
			return nil, fmt.Errorf("inflate hint stream: %w", err)
		}
	}
	return DecodeHintTables(data, int(num.Int()), npages)
}

// DecodeHintTables reads the tables written by HintTables.Bytes. The page
// offset table starts at 0 and the shared object table at sharedOffset.
func DecodeHintTables(data []byte, sharedOffset, npages int) (*HintTables, error) {
	if sharedOffset < pageOffsetHeaderSize || len(data) < sharedOffset+sharedObjectHeaderSize {
		return nil, ErrShortHintStream
	}
	t := NewHintTables()
	if err := t.decodePageOffsets(data[:sharedOffset], npages); err != nil {
		return nil, fmt.Errorf("page offset hint table: %w", err)
	}
	if err := t.decodeSharedObjects(data[sharedOffset:]); err != nil {
		return nil, fmt.Errorf("shared object hint table: %w", err)
	}
	return t, nil
}

func (t *HintTables) decodePageOffsets(data []byte, npages int) error {
	be := binary.BigEndian
	h := PageOffsetHeader{
		MinObjectNumber:    be.Uint32(data[0:]),
		FirstPageLocation:  be.Uint64(data[4:]),
		ObjectCountBits:    uint8(be.Uint16(data[12:])),
		MinPageLength:      be.Uint32(data[14:]),
		PageLengthBits:     uint8(be.Uint16(data[18:])),
		MinContentOffset:   be.Uint32(data[20:]),
		ContentOffsetBits:  uint8(be.Uint16(data[24:])),
		MinContentLength:   be.Uint32(data[26:]),
		ContentLengthBits:  uint8(be.Uint16(data[30:])),
		MinObjectCount:     be.Uint32(data[32:]),
		SharedObjectIDBits: uint8(be.Uint16(data[36:])),
		NumeratorBits:      uint8(be.Uint16(data[38:])),
		SharedDenominator:  be.Uint16(data[40:]),
	}
	t.PageOffset = h

	br := NewBitReader(data[pageOffsetHeaderSize:])
	read := func(bits uint8) (uint32, error) {
		v, err := br.ReadBits(int(bits))
		if err != nil {
			return 0, ErrShortHintStream
		}
		return uint32(v), nil
	}
	if npages < 0 || npages > MaxObjectNumber {
		return fmt.Errorf("%d pages: %w", npages, ErrInvalidPageCount)
	}
	// every entry holds at least its fixed-width fields
	perPage := int(h.ObjectCountBits) + int(h.PageLengthBits) + int(h.SharedCountBits()) +
		int(h.ContentOffsetBits) + int(h.ContentLengthBits)
	if npages*perPage > br.Remaining() {
		return ErrShortHintStream
	}
	t.Pages = make([]PageOffsetEntry, npages)
	for i := range t.Pages {
		var e PageOffsetEntry
		var err error
		if e.ObjectCountDelta, err = read(h.ObjectCountBits); err != nil {
			return err
		}
		if e.PageLengthDelta, err = read(h.PageLengthBits); err != nil {
			return err
		}
		n, err := read(h.SharedCountBits())
		if err != nil {
			return err
		}
		perID := int(h.SharedObjectIDBits) + int(h.NumeratorBits)
		if n > MaxObjectNumber || int(n)*perID > br.Remaining() {
			return ErrShortHintStream
		}
		if n > 0 {
			e.SharedObjectIDs = make([]uint32, n)
			e.Numerators = make([]uint32, n)
		}
		for j := range e.SharedObjectIDs {
			if e.SharedObjectIDs[j], err = read(h.SharedObjectIDBits); err != nil {
				return err
			}
		}
		for j := range e.Numerators {
			if e.Numerators[j], err = read(h.NumeratorBits); err != nil {
				return err
			}
		}
		if e.ContentOffsetDelta, err = read(h.ContentOffsetBits); err != nil {
			return err
		}
		if e.ContentLengthDelta, err = read(h.ContentLengthBits); err != nil {
			return err
		}
		t.Pages[i] = e
	}
	return nil
}

func (t *HintTables) decodeSharedObjects(data []byte) error {
	be := binary.BigEndian
	h := SharedObjectHeader{
		FirstObjectNumber:   be.Uint32(data[0:]),
		FirstObjectLocation: be.Uint64(data[4:]),
		FirstPageEntries:    be.Uint32(data[12:]),
		RemainingEntries:    be.Uint32(data[16:]),
		ObjectLengthBits:    uint8(be.Uint16(data[20:])),
		MinObjectLength:     be.Uint32(data[22:]),
		ObjectNumberBits:    uint8(be.Uint16(data[26:])),
	}
	t.SharedObjects = h

	br := NewBitReader(data[sharedObjectHeaderSize:])
	read := func(bits uint8) (uint32, error) {
		v, err := br.ReadBits(int(bits))
		if err != nil {
			return 0, ErrShortHintStream
		}
		return uint32(v), nil
	}
	total := int(h.FirstPageEntries) + int(h.RemainingEntries)
	if total > len(data)*8 {
		return ErrShortHintStream
	}
	t.Shared = make([]SharedObjectEntry, total)
	for i := range t.Shared {
		var e SharedObjectEntry
		var err error
		if e.ObjectLengthDelta, err = read(h.ObjectLengthBits); err != nil {
			return err
		}
		flag, err := read(1)
		if err != nil {
			return err
		}
		e.FirstPage = flag == 1
		if e.ObjectNumberDelta, err = read(h.ObjectNumberBits); err != nil {
			return err
		}
		if e.ObjectCount, err = read(h.GroupCountBits()); err != nil {
			return err
		}
		t.Shared[i] = e
	}
	return nil
}
