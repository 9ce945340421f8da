package linearize

import (
	"errors"
	"fmt"
)

var (
	// ErrPageCountMismatch reports a page offset table whose entry count
	// differs from the document's page count.
	ErrPageCountMismatch = errors.New("page offset entries do not match page count")
	// ErrSharedOrder reports first-page shared entries after other entries.
	ErrSharedOrder = errors.New("first-page shared object entries must precede the others")
	// ErrSharedCount reports header entry counts that disagree with the
	// entries.
	ErrSharedCount = errors.New("shared object header counts do not match entries")
	// ErrSharedIndex reports a page referencing a missing shared entry.
	ErrSharedIndex = errors.New("shared object index out of range")
)

// WidthError reports a value that does not fit the width declared in a
// table header.
type WidthError struct {
	Table string
	Field string
	Entry int
	Value uint64
	Bits  uint8
}

func (e *WidthError) Error() string {
	return fmt.Sprintf("%s entry %d: %s value %d does not fit in %d bits", e.Table, e.Entry, e.Field, e.Value, e.Bits)
}

// Validate checks that every entry value fits the width its header
// declares. Encoding never checks this and silently drops high bits.
func (t *HintTables) Validate() error {
	h := t.PageOffset
	for i, e := range t.Pages {
		check := func(field string, v uint64, bits uint8) error {
			if BitsNeeded(v) > int(bits) {
				return &WidthError{Table: "page offset", Field: field, Entry: i, Value: v, Bits: bits}
			}
			return nil
		}
		if err := check("object count", uint64(e.ObjectCountDelta), h.ObjectCountBits); err != nil {
			return err
		}
		if err := check("page length", uint64(e.PageLengthDelta), h.PageLengthBits); err != nil {
			return err
		}
		if err := check("shared object count", uint64(e.SharedObjectCount()), h.SharedCountBits()); err != nil {
			return err
		}
		for j, id := range e.SharedObjectIDs {
			if err := check("shared object id", uint64(id), h.SharedObjectIDBits); err != nil {
				return err
			}
			if int(id) >= len(t.Shared) {
				return fmt.Errorf("page %d references shared entry %d of %d: %w", i, id, len(t.Shared), ErrSharedIndex)
			}
			if err := check("numerator", uint64(e.numerator(j)), h.NumeratorBits); err != nil {
				return err
			}
		}
		if err := check("content stream offset", uint64(e.ContentOffsetDelta), h.ContentOffsetBits); err != nil {
			return err
		}
		if err := check("content stream length", uint64(e.ContentLengthDelta), h.ContentLengthBits); err != nil {
			return err
		}
	}

	sh := t.SharedObjects
	if int(sh.FirstPageEntries)+int(sh.RemainingEntries) != len(t.Shared) {
		return fmt.Errorf("%d+%d entries declared, %d present: %w", sh.FirstPageEntries, sh.RemainingEntries, len(t.Shared), ErrSharedCount)
	}
	for i, e := range t.Shared {
		if e.FirstPage != (i < int(sh.FirstPageEntries)) {
			return fmt.Errorf("entry %d: %w", i, ErrSharedOrder)
		}
		check := func(field string, v uint64, bits uint8) error {
			if BitsNeeded(v) > int(bits) {
				return &WidthError{Table: "shared object", Field: field, Entry: i, Value: v, Bits: bits}
			}
			return nil
		}
		if err := check("object length", uint64(e.ObjectLengthDelta), sh.ObjectLengthBits); err != nil {
			return err
		}
		if err := check("object number", uint64(e.ObjectNumberDelta), sh.ObjectNumberBits); err != nil {
			return err
		}
		if err := check("group size", uint64(e.ObjectCount), sh.GroupCountBits()); err != nil {
			return err
		}
	}
	return nil
}
