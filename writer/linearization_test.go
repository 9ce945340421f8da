package writer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/go-kit/log"
	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pdflinear/ir/raw"
	"github.com/wudi/pdflinear/linearize"
	"github.com/wudi/pdflinear/observability"
	"github.com/wudi/pdflinear/xref"
)

// testDocument builds a document with n pages sharing one font. Page 2
// additionally draws an image used by no other page. With inheritFont the
// font is attached to the page tree root instead of every page.
func testDocument(n int, inheritFont bool) *raw.Document {
	doc := raw.NewDocument()
	catalogRef := raw.ObjectRef{Num: 1}
	pagesRef := raw.ObjectRef{Num: 2}
	fontRef := raw.ObjectRef{Num: 3}
	imageRef := raw.ObjectRef{Num: 4}

	catalog := raw.Dict()
	catalog.Set(raw.NameLiteral("Type"), raw.NameLiteral("Catalog"))
	catalog.Set(raw.NameLiteral("Pages"), raw.Ref(pagesRef.Num, 0))
	doc.Objects[catalogRef] = catalog

	font := raw.Dict()
	font.Set(raw.NameLiteral("Type"), raw.NameLiteral("Font"))
	font.Set(raw.NameLiteral("Subtype"), raw.NameLiteral("Type1"))
	font.Set(raw.NameLiteral("BaseFont"), raw.NameLiteral("Helvetica"))
	doc.Objects[fontRef] = font

	imgDict := raw.Dict()
	imgDict.Set(raw.NameLiteral("Type"), raw.NameLiteral("XObject"))
	imgDict.Set(raw.NameLiteral("Subtype"), raw.NameLiteral("Image"))
	imgDict.Set(raw.NameLiteral("Width"), raw.NumberInt(2))
	imgDict.Set(raw.NameLiteral("Height"), raw.NumberInt(2))
	imgDict.Set(raw.NameLiteral("ColorSpace"), raw.NameLiteral("DeviceGray"))
	imgDict.Set(raw.NameLiteral("BitsPerComponent"), raw.NumberInt(8))
	doc.Objects[imageRef] = raw.NewStream(imgDict, []byte{0, 255, 255, 0})

	fontRes := func() *raw.DictObj {
		fonts := raw.Dict()
		fonts.Set(raw.NameLiteral("F1"), raw.Ref(fontRef.Num, 0))
		res := raw.Dict()
		res.Set(raw.NameLiteral("Font"), fonts)
		return res
	}

	kids := raw.NewArray()
	next := 5
	for i := 0; i < n; i++ {
		pageRef := raw.ObjectRef{Num: next}
		contentRef := raw.ObjectRef{Num: next + 1}
		next += 2

		ops := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (Page %d) Tj ET", i+1)
		var res *raw.DictObj
		if !inheritFont {
			res = fontRes()
		}
		if i == 2 {
			if res == nil {
				res = raw.Dict()
			}
			xobjects := raw.Dict()
			xobjects.Set(raw.NameLiteral("Im1"), raw.Ref(imageRef.Num, 0))
			res.Set(raw.NameLiteral("XObject"), xobjects)
			ops += " q 100 0 0 100 72 500 cm /Im1 Do Q"
		}
		doc.Objects[contentRef] = raw.NewStream(nil, []byte(ops))

		page := raw.Dict()
		page.Set(raw.NameLiteral("Type"), raw.NameLiteral("Page"))
		page.Set(raw.NameLiteral("Parent"), raw.Ref(pagesRef.Num, 0))
		page.Set(raw.NameLiteral("MediaBox"), raw.NewArray(raw.NumberInt(0), raw.NumberInt(0), raw.NumberInt(612), raw.NumberInt(792)))
		page.Set(raw.NameLiteral("Contents"), raw.Ref(contentRef.Num, 0))
		if res != nil {
			page.Set(raw.NameLiteral("Resources"), res)
		}
		doc.Objects[pageRef] = page
		kids.Append(raw.Ref(pageRef.Num, 0))
	}

	pages := raw.Dict()
	pages.Set(raw.NameLiteral("Type"), raw.NameLiteral("Pages"))
	pages.Set(raw.NameLiteral("Kids"), kids)
	pages.Set(raw.NameLiteral("Count"), raw.NumberInt(int64(n)))
	if inheritFont {
		pages.Set(raw.NameLiteral("Resources"), fontRes())
	}
	doc.Objects[pagesRef] = pages

	info := raw.Dict()
	info.Set(raw.NameLiteral("Title"), raw.Str([]byte("Linearization test")))
	infoRef := raw.ObjectRef{Num: next}
	doc.Objects[infoRef] = info

	doc.Trailer.Set(raw.NameLiteral("Root"), raw.Ref(catalogRef.Num, 0))
	doc.Trailer.Set(raw.NameLiteral("Info"), raw.Ref(infoRef.Num, 0))
	return doc
}

var objectHeader = regexp.MustCompile(`(?m)^(\d+) 0 obj\n`)

// scannedObject is an indirect object located in written output.
type scannedObject struct {
	offset int64
	body   []byte // from "N 0 obj" through "endobj\n"
}

func scanObjects(t *testing.T, pdf []byte) map[int]scannedObject {
	t.Helper()
	objects := make(map[int]scannedObject)
	for _, m := range objectHeader.FindAllSubmatchIndex(pdf, -1) {
		num, err := strconv.Atoi(string(pdf[m[2]:m[3]]))
		if err != nil {
			t.Fatalf("object number: %v", err)
		}
		end := bytes.Index(pdf[m[0]:], []byte("\nendobj\n"))
		if end < 0 {
			t.Fatalf("object %d not terminated", num)
		}
		objects[num] = scannedObject{
			offset: int64(m[0]),
			body:   pdf[m[0] : m[0]+end+len("\nendobj\n")],
		}
	}
	return objects
}

func intEntry(t *testing.T, body []byte, key string) int64 {
	t.Helper()
	re := regexp.MustCompile(`/` + key + ` (\d+)`)
	m := re.FindSubmatch(body)
	if m == nil {
		t.Fatalf("missing /%s in %q", key, body)
	}
	v, err := strconv.ParseInt(string(m[1]), 10, 64)
	if err != nil {
		t.Fatalf("/%s: %v", key, err)
	}
	return v
}

// decodeHints extracts the hint stream object and decodes its tables.
func decodeHints(t *testing.T, obj scannedObject, npages int) *linearize.HintTables {
	t.Helper()
	start := bytes.Index(obj.body, []byte("\nstream\n"))
	end := bytes.LastIndex(obj.body, []byte("\nendstream"))
	if start < 0 || end < start {
		t.Fatalf("hint object is not a stream: %q", obj.body)
	}
	dictBytes := obj.body[:start]
	dict := raw.Dict()
	dict.Set(raw.NameLiteral("S"), raw.NumberInt(intEntry(t, dictBytes, "S")))
	if bytes.Contains(dictBytes, []byte("/Filter /FlateDecode")) {
		dict.Set(raw.NameLiteral("Filter"), raw.NameLiteral("FlateDecode"))
	}
	data := obj.body[start+len("\nstream\n") : end]
	if got := intEntry(t, dictBytes, "Length"); got != int64(len(data)) {
		t.Fatalf("hint stream /Length %d, data %d bytes", got, len(data))
	}
	tables, err := linearize.ParseHintStream(&raw.StreamObj{Dict: dict, Data: data}, npages)
	if err != nil {
		t.Fatalf("ParseHintStream: %v", err)
	}
	return tables
}

// hintObject returns the object at the offset named by /H.
func hintObject(t *testing.T, objects map[int]scannedObject, lin scannedObject) scannedObject {
	t.Helper()
	hm := regexp.MustCompile(`/H \[(\d+) (\d+)\]`).FindSubmatch(lin.body)
	if hm == nil {
		t.Fatalf("missing /H: %q", lin.body)
	}
	offset, _ := strconv.ParseInt(string(hm[1]), 10, 64)
	hint, ok := objectAt(objects, offset)
	if !ok {
		t.Fatalf("no object starts at /H offset %d", offset)
	}
	return hint
}

func writeLinearized(t *testing.T, doc *raw.Document, cfg Config) []byte {
	t.Helper()
	cfg.Linearize = true
	var buf bytes.Buffer
	if err := NewWriter().Write(context.Background(), doc, &buf, cfg); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	return buf.Bytes()
}

func TestLinearization_Structure(t *testing.T) {
	const npages = 4
	pdf := writeLinearized(t, testDocument(npages, false), Config{})
	objects := scanObjects(t, pdf)

	header := fileHeader(Config{})
	if !bytes.HasPrefix(pdf, header) {
		t.Fatalf("output does not start with the file header")
	}
	lin, ok := objects[1]
	if !ok || lin.offset != int64(len(header)) {
		t.Fatalf("linearization dictionary is not the first object")
	}
	if !bytes.Contains(lin.body, []byte("/Linearized 1.0")) {
		t.Fatalf("missing /Linearized: %q", lin.body)
	}
	if bytes.Contains(lin.body, []byte("/P ")) {
		t.Errorf("/P written for first page 0")
	}

	if got := intEntry(t, lin.body, "L"); got != int64(len(pdf)) {
		t.Errorf("/L = %d, file is %d bytes", got, len(pdf))
	}
	if got := intEntry(t, lin.body, "N"); got != npages {
		t.Errorf("/N = %d, want %d", got, npages)
	}

	firstPage := objects[int(intEntry(t, lin.body, "O"))]
	if !bytes.Contains(firstPage.body, []byte("/Type /Page>>")) && !bytes.Contains(firstPage.body, []byte("/Type /Page ")) {
		t.Fatalf("/O does not name a page: %q", firstPage.body)
	}
	contents := objects[int(intEntry(t, firstPage.body, "Contents"))]
	if !bytes.Contains(contents.body, []byte("(Page 1)")) {
		t.Errorf("/O is not the first page")
	}

	hm := regexp.MustCompile(`/H \[(\d+) (\d+)\]`).FindSubmatch(lin.body)
	if hm == nil {
		t.Fatalf("missing /H: %q", lin.body)
	}
	hintOffset, _ := strconv.ParseInt(string(hm[1]), 10, 64)
	hintLength, _ := strconv.ParseInt(string(hm[2]), 10, 64)
	var hint scannedObject
	var hintNum int
	for num, obj := range objects {
		if obj.offset == hintOffset {
			hint, hintNum = obj, num
		}
	}
	if hint.body == nil {
		t.Fatalf("no object starts at /H offset %d", hintOffset)
	}
	if int64(len(hint.body)) != hintLength {
		t.Errorf("/H length %d, hint object is %d bytes", hintLength, len(hint.body))
	}
	// catalog and page tree come before the hint stream, the first page
	// section right after it
	catalog := objects[int(intEntry(t, pdf[bytes.LastIndex(pdf, []byte("trailer\n")):], "Root"))]
	if catalog.offset >= hintOffset {
		t.Errorf("catalog at %d, after the hint stream at %d", catalog.offset, hintOffset)
	}
	if end := hintOffset + hintLength; end != firstPage.offset {
		t.Errorf("first page object at %d, hint stream ends at %d", firstPage.offset, end)
	}

	// first page cross-reference section follows the parameter dictionary
	fpXRef := lin.offset + int64(len(lin.body))
	resolver := xref.NewResolver(xref.ResolverConfig{})
	table, err := resolver.Resolve(context.Background(), bytes.NewReader(pdf))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !resolver.Linearized() {
		t.Fatal("Resolver did not detect linearized PDF")
	}
	if table.Offset() != fpXRef {
		t.Errorf("startxref leads to %d, want first page xref at %d", table.Offset(), fpXRef)
	}
	if !bytes.HasSuffix(pdf, []byte(fmt.Sprintf("startxref\n%d\n%%%%EOF\n", fpXRef))) {
		t.Errorf("startxref does not point at the first page xref")
	}
	mainXRef := intEntry(t, lin.body, "T")
	inc := resolver.Incremental()
	if len(inc) != 1 || inc[0].Offset() != mainXRef {
		t.Fatalf("expected one main xref section at /T %d", mainXRef)
	}
	if prev, _ := table.Trailer().Int("Prev"); prev != mainXRef {
		t.Errorf("first page trailer /Prev = %d, want %d", prev, mainXRef)
	}
	if _, ok := inc[0].Trailer().Int("Prev"); ok {
		t.Errorf("main trailer has /Prev")
	}
	if !bytes.Contains(pdf[fpXRef:hintOffset], []byte("\nstartxref\n0\n%%EOF\n")) {
		t.Errorf("first page trailer not followed by startxref 0")
	}
	if size, _ := table.Trailer().Int("Size"); size != int64(len(objects)+1) {
		t.Errorf("/Size = %d, want %d", size, len(objects)+1)
	}
	for num, obj := range objects {
		off, _, ok := table.Lookup(num)
		if !ok {
			t.Errorf("object %d missing from xref", num)
			continue
		}
		if off != obj.offset {
			t.Errorf("xref offset of object %d is %d, object is at %d", num, off, obj.offset)
		}
	}
	for _, num := range []int{hintNum, int(intEntry(t, lin.body, "O"))} {
		if _, _, ok := inc[0].Lookup(num); ok {
			t.Errorf("object %d in the main xref section", num)
		}
	}

	tables := decodeHints(t, hint, npages)
	if len(tables.Pages) != npages {
		t.Fatalf("%d page entries", len(tables.Pages))
	}
	if got := tables.PageOffset.FirstPageLocation; got != uint64(firstPage.offset) {
		t.Errorf("first page location %d, want %d", got, firstPage.offset)
	}
	if got := tables.PageOffset.MinObjectNumber; int64(got) != intEntry(t, lin.body, "O") {
		t.Errorf("least first page object %d, want /O", got)
	}
	firstLen := int64(tables.PageOffset.MinPageLength) + int64(tables.Pages[0].PageLengthDelta)
	if got := intEntry(t, lin.body, "E"); got != firstPage.offset+firstLen {
		t.Errorf("/E = %d, want end of first page section %d", got, firstPage.offset+firstLen)
	}
	// The font is used by every page, so it is stored with the first page.
	sh := tables.SharedObjects
	if sh.FirstPageEntries != 1 || sh.RemainingEntries != 0 {
		t.Errorf("shared entries = %d/%d, want 1/0", sh.FirstPageEntries, sh.RemainingEntries)
	}
	for i, entry := range tables.Pages {
		if diff := cmp.Diff([]uint32{0}, entry.SharedObjectIDs); diff != "" {
			t.Errorf("page %d shared ids (-want +got):\n%s", i, diff)
		}
	}
}

func TestLinearization_PageSections(t *testing.T) {
	const npages = 4
	pdf := writeLinearized(t, testDocument(npages, false), Config{})
	objects := scanObjects(t, pdf)
	tables := decodeHints(t, hintObject(t, objects, objects[1]), npages)

	// Page k starts at the first page location plus the lengths of pages
	// before it; content offsets are relative to that same start.
	h := tables.PageOffset
	pageStart := int64(h.FirstPageLocation)
	for i := 0; i < npages; i++ {
		page, ok := objectAt(objects, pageStart)
		if !ok || !bytes.Contains(page.body, []byte("/Type /Page")) {
			t.Fatalf("page %d: no page object at %d", i, pageStart)
		}
		entry := tables.Pages[i]
		length := int64(h.MinPageLength) + int64(entry.PageLengthDelta)
		count := int(h.MinObjectCount) + int(entry.ObjectCountDelta)
		wantCount := 2
		switch i {
		case 0:
			wantCount = 3 // page, content stream and the shared font
		case 2:
			wantCount = 3 // page, content stream and image
		}
		if count != wantCount {
			t.Errorf("page %d object count = %d, want %d", i, count, wantCount)
		}

		contentOff := int64(h.MinContentOffset) + int64(entry.ContentOffsetDelta)
		content, ok := objectAt(objects, pageStart+contentOff)
		if !ok || !bytes.Contains(content.body, []byte(fmt.Sprintf("(Page %d)", i+1))) {
			t.Errorf("page %d content stream not at section offset %d", i, contentOff)
		} else if cl := int64(h.MinContentLength) + int64(entry.ContentLengthDelta); cl != int64(len(content.body)) {
			t.Errorf("page %d content length = %d, want %d", i, cl, len(content.body))
		}
		pageStart += length
	}
	// the last page section ends where the shared and other objects begin
	if _, ok := objectAt(objects, pageStart); !ok {
		t.Errorf("no object after the last page section at %d", pageStart)
	}
}

func objectAt(objects map[int]scannedObject, offset int64) (scannedObject, bool) {
	for _, obj := range objects {
		if obj.offset == offset {
			return obj, true
		}
	}
	return scannedObject{}, false
}

func TestLinearization_InheritedResources(t *testing.T) {
	const npages = 3
	pdf := writeLinearized(t, testDocument(npages, true), Config{})
	objects := scanObjects(t, pdf)
	tables := decodeHints(t, hintObject(t, objects, objects[1]), npages)
	if tables.SharedObjects.FirstPageEntries != 1 {
		t.Fatalf("inherited font not shared: %+v", tables.SharedObjects)
	}
	for i, entry := range tables.Pages {
		if len(entry.SharedObjectIDs) != 1 {
			t.Errorf("page %d references %d shared objects", i, len(entry.SharedObjectIDs))
		}
	}
}

func TestLinearization_FirstPageIndex(t *testing.T) {
	pdf := writeLinearized(t, testDocument(3, false), Config{FirstPage: 1})
	objects := scanObjects(t, pdf)
	lin := objects[1]
	if got := intEntry(t, lin.body, "P"); got != 1 {
		t.Fatalf("/P = %d, want 1", got)
	}
	page := objects[int(intEntry(t, lin.body, "O"))]
	contents := objects[int(intEntry(t, page.body, "Contents"))]
	if !bytes.Contains(contents.body, []byte("(Page 2)")) {
		t.Errorf("/O is not page 2")
	}
	if contents.offset > intEntry(t, lin.body, "E") {
		t.Errorf("first page content is after /E")
	}
}

func TestLinearization_CompressedHints(t *testing.T) {
	pdf := writeLinearized(t, testDocument(5, false), Config{CompressHints: true})
	objects := scanObjects(t, pdf)
	lin := objects[1]
	hint := hintObject(t, objects, lin)
	if !bytes.Contains(hint.body, []byte("/Filter /FlateDecode")) {
		t.Fatalf("hint stream not compressed")
	}
	if tables := decodeHints(t, hint, 5); len(tables.Pages) != 5 {
		t.Errorf("%d page entries", len(tables.Pages))
	}
	if got := intEntry(t, lin.body, "L"); got != int64(len(pdf)) {
		t.Errorf("/L = %d, file is %d bytes", got, len(pdf))
	}
}

func TestLinearization_Deterministic(t *testing.T) {
	cfg := Config{Deterministic: true, CompressHints: true}
	a := writeLinearized(t, testDocument(3, false), cfg)
	b := writeLinearized(t, testDocument(3, false), cfg)
	if !bytes.Equal(a, b) {
		t.Fatalf("deterministic output differs")
	}
}

func TestLinearization_SinglePage(t *testing.T) {
	pdf := writeLinearized(t, testDocument(1, false), Config{})
	objects := scanObjects(t, pdf)
	lin := objects[1]
	if got := intEntry(t, lin.body, "N"); got != 1 {
		t.Fatalf("/N = %d", got)
	}
	tables := decodeHints(t, hintObject(t, objects, lin), 1)
	if n := tables.SharedObjects.FirstPageEntries + tables.SharedObjects.RemainingEntries; n != 0 {
		t.Errorf("%d shared entries for a single page", n)
	}
}

func TestLinearization_Errors(t *testing.T) {
	noPages := testDocument(1, false)
	noPages.Objects[raw.ObjectRef{Num: 1}].(*raw.DictObj).Set(raw.NameLiteral("Pages"), raw.NumberInt(0))

	noRoot := testDocument(1, false)
	noRoot.Trailer = raw.Dict()

	tests := []struct {
		name string
		doc  *raw.Document
		cfg  Config
		want error
	}{
		{"no catalog", noRoot, Config{}, ErrMissingCatalog},
		{"no pages", noPages, Config{}, ErrNoPages},
		{"first page out of range", testDocument(2, false), Config{FirstPage: 2}, ErrFirstPageRange},
		{"negative first page", testDocument(2, false), Config{FirstPage: -1}, ErrFirstPageRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Linearize = true
			err := NewWriter().Write(context.Background(), tt.doc, &bytes.Buffer{}, tt.cfg)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLinearization_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var buf bytes.Buffer
	err := NewWriter().Write(ctx, testDocument(2, false), &buf, Config{Linearize: true})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if buf.Len() != 0 {
		t.Errorf("%d bytes written after cancellation", buf.Len())
	}
}

func TestLinearization_Logging(t *testing.T) {
	var logs bytes.Buffer
	cfg := Config{Logger: observability.NewKitLogger(log.NewLogfmtLogger(&logs))}
	writeLinearized(t, testDocument(2, false), cfg)
	out := logs.String()
	for _, want := range []string{"objects classified", "hint stream sized", "linearized document written", "pages=2"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}
