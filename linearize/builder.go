package linearize

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zlib"

	"github.com/wudi/pdflinear/ir/raw"
)

// Builder collects the linearization parameters and hint tables of one
// document. It performs no consistency checks of its own.
type Builder struct {
	params Params
	hints  *HintTables
}

// NewBuilder returns a builder for a document with pageCount pages.
func NewBuilder(pageCount int) *Builder {
	return &Builder{
		params: Params{Version: DefaultVersion, PageCount: pageCount},
		hints:  NewHintTables(),
	}
}

// SetFirstPageObject sets /O, the object number of the first page.
func (b *Builder) SetFirstPageObject(num int) { b.params.FirstPageObject = num }

// SetFirstPageIndex sets /P. Zero is the default and is not written.
func (b *Builder) SetFirstPageIndex(index int) { b.params.FirstPageIndex = index }

// SetFileLength sets /L, the length of the whole file in bytes.
func (b *Builder) SetFileLength(n int64) { b.params.FileLength = n }

// SetFirstPageEnd sets /E, the offset just past the last object of the
// first page section.
func (b *Builder) SetFirstPageEnd(offset int64) { b.params.FirstPageEnd = offset }

// SetMainXRefOffset sets /T, the offset of the main cross-reference
// section.
func (b *Builder) SetMainXRefOffset(off int64) { b.params.MainXRefOffset = off }

// SetHintStream records the byte offset and length of the hint stream
// object.
func (b *Builder) SetHintStream(offset, length int64) {
	b.params.HintOffset = offset
	b.params.HintLength = length
}

// HintTables gives the caller access to the tables to fill.
func (b *Builder) HintTables() *HintTables { return b.hints }

// Params returns a copy of the current parameters.
func (b *Builder) Params() Params { return b.params }

// BuildParamsObject returns the linearization parameter dictionary.
func (b *Builder) BuildParamsObject() *raw.DictObj {
	return b.params.Object()
}

// BuildHintStream returns the encoded hint tables.
func (b *Builder) BuildHintStream() []byte {
	return b.hints.Bytes()
}

// BuildHintStreamChecked validates the tables against the declared widths
// and the page count before encoding them.
func (b *Builder) BuildHintStreamChecked() ([]byte, error) {
	if len(b.hints.Pages) != b.params.PageCount {
		return nil, fmt.Errorf("%d entries for %d pages: %w", len(b.hints.Pages), b.params.PageCount, ErrPageCountMismatch)
	}
	if err := b.hints.Validate(); err != nil {
		return nil, err
	}
	return b.hints.Bytes(), nil
}

// BuildHintStreamObject returns the checked hint tables wrapped in a stream
// object. /S gives the offset of the shared object table in the decoded
// data. With compress set the data is Flate encoded.
func (b *Builder) BuildHintStreamObject(compress bool) (*raw.StreamObj, error) {
	if _, err := b.BuildHintStreamChecked(); err != nil {
		return nil, err
	}
	page := b.hints.PageOffsetTableBytes()
	data := append(page, b.hints.SharedObjectTableBytes()...)

	dict := raw.Dict()
	dict.Set(raw.NameLiteral("S"), raw.NumberInt(int64(len(page))))
	if compress {
		var buf bytes.Buffer
		zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
		if err != nil {
			return nil, err
		}
		if _, err := zw.Write(data); err != nil {
			return nil, fmt.Errorf("compress hint stream: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("compress hint stream: %w", err)
		}
		data = buf.Bytes()
		dict.Set(raw.NameLiteral("Filter"), raw.NameLiteral("FlateDecode"))
	}
	return raw.NewStream(dict, data), nil
}
