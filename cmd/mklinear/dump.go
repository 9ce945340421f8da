package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"

	"github.com/wudi/pdflinear/ir/raw"
	"github.com/wudi/pdflinear/linearize"
	"github.com/wudi/pdflinear/scanner"
	"github.com/wudi/pdflinear/xref"
)

var errNotLinearized = errors.New("no linearization dictionary in the first kilobyte")

// document is a linearized file opened for inspection.
type document struct {
	data     []byte
	resolver xref.Resolver
	table    xref.Table
	objects  *scanner.ObjectReader
	params   *raw.DictObj
}

func open(data []byte) (*document, error) {
	resolver := xref.NewResolver(xref.ResolverConfig{})
	table, err := resolver.Resolve(context.Background(), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("cross-reference: %w", err)
	}
	if !resolver.Linearized() {
		return nil, errNotLinearized
	}
	d := &document{
		data:     data,
		resolver: resolver,
		table:    table,
		objects:  scanner.NewObjectReader(data, table, scanner.Config{}),
	}

	// the parameter dictionary is the first object of the file
	first := int64(math.MaxInt64)
	for _, num := range table.Objects() {
		if off, _, ok := table.Lookup(num); ok && off < first {
			first = off
		}
	}
	_, obj, err := d.objects.ReadAt(first)
	if err != nil {
		return nil, fmt.Errorf("first object: %w", err)
	}
	params, ok := obj.(*raw.DictObj)
	if !ok {
		return nil, errNotLinearized
	}
	if _, ok := params.KV["Linearized"]; !ok {
		return nil, errNotLinearized
	}
	d.params = params
	return d, nil
}

// intValue reads an integer, following indirect references.
func (d *document) intValue(obj raw.Object, what string) (int64, error) {
	if obj == nil {
		return 0, fmt.Errorf("missing %s", what)
	}
	v, err := d.objects.Resolve(obj)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", what, err)
	}
	n, ok := v.(raw.NumberObj)
	if !ok || !n.IsInteger() {
		return 0, fmt.Errorf("%s is not an integer", what)
	}
	return n.Int(), nil
}

func (d *document) param(key string) (int64, error) {
	return d.intValue(d.params.KV[key], "/"+key)
}

// hintStream reads the primary hint stream named by /H. The returned
// dictionary carries /S and /Filter with references resolved.
func (d *document) hintStream() (*raw.StreamObj, error) {
	h, ok := d.params.KV["H"].(*raw.ArrayObj)
	if !ok || h.Len() < 2 {
		return nil, errors.New("missing /H")
	}
	offset, err := d.intValue(h.Items[0], "/H offset")
	if err != nil {
		return nil, err
	}
	length, err := d.intValue(h.Items[1], "/H length")
	if err != nil {
		return nil, err
	}
	if offset < 0 || length <= 0 || offset+length > int64(len(d.data)) {
		return nil, fmt.Errorf("hint stream [%d %d] outside the file", offset, length)
	}
	_, obj, err := d.objects.ReadAt(offset)
	if err != nil {
		return nil, fmt.Errorf("hint stream: %w", err)
	}
	stream, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, errors.New("hint object is not a stream")
	}
	s, err := d.intValue(stream.Dict.KV["S"], "/S")
	if err != nil {
		return nil, err
	}
	dict := raw.Dict()
	dict.Set(raw.NameLiteral("S"), raw.NumberInt(s))
	if f, ok := stream.Dict.KV["Filter"]; ok {
		filter, err := d.objects.Resolve(f)
		if err != nil {
			return nil, fmt.Errorf("/Filter: %w", err)
		}
		dict.Set(raw.NameLiteral("Filter"), filter)
	}
	return &raw.StreamObj{Dict: dict, Data: stream.Data}, nil
}

// checkLayout compares the parameters with the cross-reference chain. The
// final startxref leads to the first page section; its /Prev is the main
// section named by /T.
func (d *document) checkLayout(w io.Writer) error {
	fileLen, err := d.param("L")
	if err != nil {
		return err
	}
	mainXRef, err := d.param("T")
	if err != nil {
		return err
	}
	inc := d.resolver.Incremental()
	fmt.Fprintf(w, "xref sections: %d, objects: %d\n", 1+len(inc), len(d.table.Objects()))
	if fileLen != int64(len(d.data)) {
		fmt.Fprintf(w, "warning: /L %d but file is %d bytes\n", fileLen, len(d.data))
	}
	if !slices.ContainsFunc(inc, func(t xref.Table) bool { return t.Offset() == mainXRef }) {
		fmt.Fprintf(w, "warning: /T %d is not a cross-reference section of the chain\n", mainXRef)
	}
	return nil
}

func dump(data []byte, w io.Writer) error {
	d, err := open(data)
	if err != nil {
		return err
	}
	npages, err := d.param("N")
	if err != nil {
		return err
	}
	stream, err := d.hintStream()
	if err != nil {
		return err
	}
	tables, err := linearize.ParseHintStream(stream, int(npages))
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "parameters: %s\n", formatParams(d.params))
	if err := d.checkLayout(w); err != nil {
		return err
	}
	h := tables.PageOffset
	fmt.Fprintf(w, "page offset header: first object %d at %d, counts %d+%db, lengths %d+%db, content %d+%db/%d+%db, shared ids %db, numerators %db/%d\n",
		h.MinObjectNumber, h.FirstPageLocation,
		h.MinObjectCount, h.ObjectCountBits,
		h.MinPageLength, h.PageLengthBits,
		h.MinContentOffset, h.ContentOffsetBits,
		h.MinContentLength, h.ContentLengthBits,
		h.SharedObjectIDBits, h.NumeratorBits, h.SharedDenominator)
	for i, e := range tables.Pages {
		fmt.Fprintf(w, "  page %d: objects %d length %d content %d+%d shared %v\n",
			i,
			uint64(h.MinObjectCount)+uint64(e.ObjectCountDelta),
			uint64(h.MinPageLength)+uint64(e.PageLengthDelta),
			uint64(h.MinContentOffset)+uint64(e.ContentOffsetDelta),
			uint64(h.MinContentLength)+uint64(e.ContentLengthDelta),
			e.SharedObjectIDs)
	}
	sh := tables.SharedObjects
	fmt.Fprintf(w, "shared object header: first object %d at %d, entries %d first page + %d, lengths %d+%db, numbers %db\n",
		sh.FirstObjectNumber, sh.FirstObjectLocation,
		sh.FirstPageEntries, sh.RemainingEntries,
		sh.MinObjectLength, sh.ObjectLengthBits, sh.ObjectNumberBits)
	for i, e := range tables.Shared {
		fmt.Fprintf(w, "  shared %d: length %d first page %t number delta %d objects %d\n",
			i, uint64(sh.MinObjectLength)+uint64(e.ObjectLengthDelta), e.FirstPage, e.ObjectNumberDelta, e.ObjectCount)
	}
	return nil
}

// formatParams prints the parameter dictionary in a fixed key order.
func formatParams(dict *raw.DictObj) string {
	var b bytes.Buffer
	b.WriteString("<<")
	for _, key := range []string{"Linearized", "L", "H", "O", "E", "N", "T", "P"} {
		v, ok := dict.KV[key]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, " /%s %s", key, formatValue(v))
	}
	b.WriteString(" >>")
	return b.String()
}

func formatValue(v raw.Object) string {
	switch o := v.(type) {
	case raw.NumberObj:
		if o.IsInteger() {
			return fmt.Sprint(o.Int())
		}
		return fmt.Sprintf("%.1f", o.Float())
	case *raw.ArrayObj:
		var b bytes.Buffer
		b.WriteByte('[')
		for i, it := range o.Items {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(formatValue(it))
		}
		b.WriteByte(']')
		return b.String()
	case raw.RefObj:
		return o.Ref().String()
	}
	return fmt.Sprintf("%v", v)
}
