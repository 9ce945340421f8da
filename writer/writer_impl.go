package writer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/wudi/pdflinear/ir/raw"
	"github.com/wudi/pdflinear/observability"
)

type impl struct{}

func (w *impl) SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d %d obj\n", ref.Num, ref.Gen)
	buf.Write(serializePrimitive(obj))
	buf.WriteString("\nendobj\n")
	return buf.Bytes(), nil
}

func (w *impl) Write(ctx context.Context, doc *raw.Document, out io.Writer, cfg Config) error {
	if doc == nil || len(doc.Objects) == 0 {
		return ErrMissingCatalog
	}
	start := time.Now()
	if cfg.Linearize {
		if err := w.writeLinearized(ctx, doc, out, cfg); err != nil {
			return err
		}
		cfg.Metrics.ObserveWrite("linearized", len(doc.Objects), time.Since(start))
		return nil
	}
	if err := w.writePlain(ctx, doc, out, cfg); err != nil {
		return err
	}
	cfg.Metrics.ObserveWrite("plain", len(doc.Objects), time.Since(start))
	return nil
}

// writePlain writes objects in number order followed by a single xref
// section.
func (w *impl) writePlain(ctx context.Context, doc *raw.Document, out io.Writer, cfg Config) error {
	catalogRef, ok := doc.Root()
	if !ok {
		return ErrMissingCatalog
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.Write(fileHeader(cfg))

	ordered := sortedRefs(doc.Objects)
	maxObjNum := ordered[len(ordered)-1].Num
	offsets := make([]int64, maxObjNum+1)
	serialized := make([][]byte, 0, len(ordered))
	for _, ref := range ordered {
		data, err := w.SerializeObject(ref, doc.Objects[ref])
		if err != nil {
			return fmt.Errorf("serialize %v: %w", ref, err)
		}
		offsets[ref.Num] = int64(buf.Len())
		buf.Write(data)
		serialized = append(serialized, data)
	}

	xrefOffset := buf.Len()
	writeXRefSection(&buf, 0, offsets)
	var infoRef *raw.ObjectRef
	if ref, ok := doc.Info(); ok {
		infoRef = &ref
	}
	trailer := buildTrailer(maxObjNum+1, catalogRef, infoRef, 0, fileID(serialized, cfg))
	buf.WriteString("trailer\n")
	buf.Write(serializePrimitive(trailer))
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)

	cfg.logger().Debug("document written",
		observability.Int("objects", len(ordered)),
		observability.Int("bytes", buf.Len()),
	)
	_, err := out.Write(buf.Bytes())
	return err
}
