// Package writer serializes raw documents, either in conventional order or
// linearized for Fast Web View.
//
// A linearized file is laid out as: header, parameter dictionary, first
// page xref section and trailer, catalog and page tree, primary hint
// stream, first page section, remaining pages, shared objects, other
// objects, main xref section and trailer. The first page trailer's /Prev
// points at the main xref section and the final startxref points at the
// first page xref section, so a reader that starts at the end of the file
// still finds every object.
package writer

import (
	"context"
	"errors"
	"io"

	"github.com/wudi/pdflinear/ir/raw"
	"github.com/wudi/pdflinear/observability"
)

type PDFVersion string

const (
	PDF14 PDFVersion = "1.4"
	PDF17 PDFVersion = "1.7"
)

var (
	ErrMissingCatalog = errors.New("document catalog missing")
	ErrNoPages        = errors.New("no pages found")
	ErrFirstPageRange = errors.New("first page index out of range")
	// ErrSizingDiverged is returned when the hint stream size does not
	// settle within maxSizingPasses layout passes.
	ErrSizingDiverged = errors.New("hint stream size did not converge")
	// ErrPlaceholderOverflow is returned when final content does not fit
	// the region reserved for it.
	ErrPlaceholderOverflow = errors.New("value does not fit reserved placeholder")
	// ErrLayoutMismatch is returned when emitted offsets differ from the
	// offsets the hint tables were computed from.
	ErrLayoutMismatch = errors.New("emitted layout differs from measured layout")
)

type Config struct {
	Version PDFVersion
	// Linearize writes the document in Fast Web View layout.
	Linearize bool
	// FirstPage is the zero-based index of the page shown first. It is
	// written as /P when non-zero.
	FirstPage int
	// CompressHints Flate encodes the hint stream.
	CompressHints bool
	// Deterministic derives the file identifier from the content instead
	// of generating a random one.
	Deterministic bool

	Logger  observability.Logger
	Tracer  observability.Tracer
	Metrics *observability.Metrics
}

type Writer interface {
	Write(ctx context.Context, doc *raw.Document, out io.Writer, cfg Config) error
	SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error)
}

// NewWriter returns the default Writer.
func NewWriter() Writer { return &impl{} }

func (c Config) logger() observability.Logger {
	if c.Logger == nil {
		return observability.NopLogger{}
	}
	return c.Logger
}

func (c Config) tracer() observability.Tracer {
	if c.Tracer == nil {
		return observability.NopTracer()
	}
	return c.Tracer
}
