package writer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/wudi/pdflinear/ir/raw"
	"github.com/wudi/pdflinear/linearize"
	"github.com/wudi/pdflinear/observability"
)

// maxSizingPasses bounds the layout iterations spent waiting for the hint
// stream length to settle.
const maxSizingPasses = 8

// linDictNum is the object number of the linearization dictionary.
const linDictNum = 1

// inheritableRefKeys are page tree attributes whose referenced objects are
// needed by every descendant page.
var inheritableRefKeys = []string{"Resources"}

type linearizer struct {
	w         *impl
	doc       *raw.Document
	log       observability.Logger
	catalog   raw.ObjectRef
	info      *raw.ObjectRef
	firstPage int

	pageList  []raw.ObjectRef
	inherited [][]raw.Object
	treeNodes []raw.ObjectRef
	// pageObjects[i] lists every object page i needs, by object number.
	pageObjects    [][]raw.ObjectRef
	contentStreams map[raw.ObjectRef]bool
	byNum          map[int]raw.ObjectRef
	measured       [][]byte

	analyzer *linearize.Analyzer

	// Sections in output order, in original numbering. docSection holds
	// the catalog and page tree nodes, which precede the hint stream. The
	// first page's entry in pageSections is empty; its objects live in
	// firstSection, which starts with the page object.
	docSection    []raw.ObjectRef
	firstSection  []raw.ObjectRef
	pageSections  [][]raw.ObjectRef
	sharedSection []raw.ObjectRef
	otherSection  []raw.ObjectRef
	// sharedTable orders the shared object hint table: objects the first
	// page needs, then the shared section.
	sharedTable      []raw.ObjectRef
	firstPageSharedN int

	renumber map[raw.ObjectRef]raw.ObjectRef
	hintNum  int
	// fpLast is the highest object number in the first page xref section.
	fpLast int
	size   int
}

func newLinearizer(w *impl, doc *raw.Document, cfg Config) (*linearizer, error) {
	catalog, ok := doc.Root()
	if !ok {
		return nil, ErrMissingCatalog
	}
	l := &linearizer{
		w:              w,
		doc:            doc,
		log:            cfg.logger(),
		catalog:        catalog,
		firstPage:      cfg.FirstPage,
		contentStreams: make(map[raw.ObjectRef]bool),
		byNum:          make(map[int]raw.ObjectRef, len(doc.Objects)),
		renumber:       make(map[raw.ObjectRef]raw.ObjectRef, len(doc.Objects)),
	}
	if ref, ok := doc.Info(); ok {
		l.info = &ref
	}
	for ref := range doc.Objects {
		l.byNum[ref.Num] = ref
	}
	return l, nil
}

// collectPages walks the page tree in document order.
func (l *linearizer) collectPages() error {
	catDict, ok := l.doc.Objects[l.catalog].(*raw.DictObj)
	if !ok {
		return fmt.Errorf("catalog %v is not a dictionary: %w", l.catalog, ErrMissingCatalog)
	}
	pagesRef, ok := catDict.KV["Pages"].(raw.RefObj)
	if !ok {
		return fmt.Errorf("catalog has no /Pages reference: %w", ErrNoPages)
	}

	seen := make(map[raw.ObjectRef]bool)
	var visit func(ref raw.ObjectRef, inherited []raw.Object)
	visit = func(ref raw.ObjectRef, inherited []raw.Object) {
		if seen[ref] {
			return
		}
		seen[ref] = true
		dict, ok := l.doc.Objects[ref].(*raw.DictObj)
		if !ok {
			return
		}
		switch dict.TypeName() {
		case "Page":
			l.pageList = append(l.pageList, ref)
			l.inherited = append(l.inherited, inherited)
		case "Pages":
			l.treeNodes = append(l.treeNodes, ref)
			next := inherited
			for _, key := range inheritableRefKeys {
				if v, ok := dict.KV[key]; ok {
					next = append(slices.Clip(next), v)
				}
			}
			kids, ok := l.doc.Resolve(dict.KV["Kids"]).(*raw.ArrayObj)
			if !ok {
				return
			}
			for _, item := range kids.Items {
				if kRef, ok := item.(raw.RefObj); ok {
					visit(kRef.Ref(), next)
				}
			}
		}
	}
	visit(pagesRef.Ref(), nil)

	if len(l.pageList) == 0 {
		return ErrNoPages
	}
	if l.firstPage < 0 || l.firstPage >= len(l.pageList) {
		return fmt.Errorf("page %d of %d: %w", l.firstPage, len(l.pageList), ErrFirstPageRange)
	}
	return nil
}

// collectReferences records the objects reachable from every page. The
// walk does not follow /Parent and never enters page tree nodes, other
// pages or the catalog, so only objects the page itself needs are found.
func (l *linearizer) collectReferences() {
	barrier := make(map[raw.ObjectRef]bool, len(l.pageList)+len(l.treeNodes)+1)
	barrier[l.catalog] = true
	for _, ref := range l.pageList {
		barrier[ref] = true
	}
	for _, ref := range l.treeNodes {
		barrier[ref] = true
	}

	l.pageObjects = make([][]raw.ObjectRef, len(l.pageList))
	for i, pageRef := range l.pageList {
		visited := map[raw.ObjectRef]bool{pageRef: true}
		var walk func(o raw.Object)
		walk = func(o raw.Object) {
			switch v := o.(type) {
			case raw.RefObj:
				ref := v.Ref()
				if visited[ref] || barrier[ref] {
					return
				}
				obj, ok := l.doc.Objects[ref]
				if !ok {
					return
				}
				visited[ref] = true
				walk(obj)
			case *raw.ArrayObj:
				for _, item := range v.Items {
					walk(item)
				}
			case *raw.DictObj:
				for k, val := range v.KV {
					if k == "Parent" {
						continue
					}
					walk(val)
				}
			case *raw.StreamObj:
				if v.Dict != nil {
					walk(v.Dict)
				}
			}
		}
		page := l.doc.Objects[pageRef].(*raw.DictObj)
		walk(page)
		for _, inh := range l.inherited[i] {
			walk(inh)
		}
		l.markContents(page)

		objs := make([]raw.ObjectRef, 0, len(visited))
		for ref := range visited {
			objs = append(objs, ref)
		}
		slices.SortFunc(objs, func(a, b raw.ObjectRef) int { return a.Num - b.Num })
		l.pageObjects[i] = objs
	}
}

func (l *linearizer) markContents(page *raw.DictObj) {
	switch v := page.KV["Contents"].(type) {
	case raw.RefObj:
		if arr, ok := l.doc.Objects[v.Ref()].(*raw.ArrayObj); ok {
			l.markContentArray(arr)
			return
		}
		l.contentStreams[v.Ref()] = true
	case *raw.ArrayObj:
		l.markContentArray(v)
	}
}

func (l *linearizer) markContentArray(arr *raw.ArrayObj) {
	for _, item := range arr.Items {
		if ref, ok := item.(raw.RefObj); ok {
			l.contentStreams[ref.Ref()] = true
		}
	}
}

// classify measures every object once and runs the analyzer over the page
// references.
func (l *linearizer) classify(headerLen int) error {
	pagesOf := make(map[raw.ObjectRef][]int)
	for i, objs := range l.pageObjects {
		for _, ref := range objs {
			pagesOf[ref] = append(pagesOf[ref], i)
		}
	}
	isPage := make(map[raw.ObjectRef]bool, len(l.pageList))
	for _, ref := range l.pageList {
		isPage[ref] = true
	}

	l.analyzer = linearize.NewAnalyzer(len(l.pageList), l.firstPage)
	offset := int64(headerLen)
	for _, ref := range sortedRefs(l.doc.Objects) {
		data, err := l.w.SerializeObject(ref, l.doc.Objects[ref])
		if err != nil {
			return fmt.Errorf("serialize %v: %w", ref, err)
		}
		l.measured = append(l.measured, data)
		l.analyzer.AddObject(linearize.ObjectDescriptor{
			Ref:             ref,
			Offset:          offset,
			Length:          int64(len(data)),
			Pages:           pagesOf[ref],
			IsContentStream: l.contentStreams[ref],
			IsPageObject:    isPage[ref],
		})
		offset += int64(len(data))
	}
	l.analyzer.Analyze()
	return nil
}

// arrange assigns every object to a section. Objects needed by the first
// page and by other pages are written once, in the first page section,
// and flagged as first-page entries of the shared object hint table.
func (l *linearizer) arrange() {
	placed := make(map[raw.ObjectRef]bool, len(l.doc.Objects))
	place := func(dst *[]raw.ObjectRef, ref raw.ObjectRef) {
		if placed[ref] {
			return
		}
		placed[ref] = true
		*dst = append(*dst, ref)
	}
	toRef := func(num int) raw.ObjectRef { return l.byNum[num] }

	place(&l.docSection, l.catalog)
	for _, ref := range l.treeNodes {
		place(&l.docSection, ref)
	}
	place(&l.firstSection, l.pageList[l.firstPage])
	for _, num := range l.analyzer.FirstPageObjects() {
		place(&l.firstSection, toRef(num))
	}

	l.pageSections = make([][]raw.ObjectRef, len(l.pageList))
	for p, pageRef := range l.pageList {
		if p == l.firstPage {
			continue
		}
		place(&l.pageSections[p], pageRef)
		for _, num := range l.analyzer.PageSpecificObjects(p) {
			place(&l.pageSections[p], toRef(num))
		}
	}

	shared := l.analyzer.SharedObjects()
	for _, num := range shared {
		if l.analyzer.Category(num) == linearize.FirstPageShared {
			l.sharedTable = append(l.sharedTable, toRef(num))
		}
	}
	l.firstPageSharedN = len(l.sharedTable)
	for _, num := range shared {
		if l.analyzer.Category(num) == linearize.Shared {
			place(&l.sharedSection, toRef(num))
			l.sharedTable = append(l.sharedTable, toRef(num))
		}
	}

	for _, ref := range sortedRefs(l.doc.Objects) {
		place(&l.otherSection, ref)
	}

	l.log.Debug("objects classified",
		observability.Int("pages", len(l.pageList)),
		observability.Int("document", len(l.docSection)),
		observability.Int("first_page", len(l.firstSection)),
		observability.Int("shared", len(l.sharedSection)),
		observability.Int("first_page_shared", l.firstPageSharedN),
		observability.Int("other", len(l.otherSection)),
	)
}

// renumberObjects numbers objects in output order: the linearization
// dictionary, the catalog and page tree, the hint stream, the first page
// section, the remaining pages, the shared section and everything else.
func (l *linearizer) renumberObjects() map[int]raw.Object {
	next := linDictNum + 1
	assign := func(refs []raw.ObjectRef) {
		for _, ref := range refs {
			l.renumber[ref] = raw.ObjectRef{Num: next, Gen: 0}
			next++
		}
	}
	assign(l.docSection)
	l.hintNum = next
	next++
	assign(l.firstSection)
	l.fpLast = next - 1
	for _, section := range l.pageSections {
		assign(section)
	}
	assign(l.sharedSection)
	assign(l.otherSection)
	l.size = next

	objects := make(map[int]raw.Object, len(l.doc.Objects))
	for oldRef, newRef := range l.renumber {
		objects[newRef.Num] = l.updateRefs(l.doc.Objects[oldRef])
	}
	return objects
}

func (l *linearizer) updateRefs(obj raw.Object) raw.Object {
	switch v := obj.(type) {
	case raw.RefObj:
		if newRef, ok := l.renumber[v.Ref()]; ok {
			return raw.Ref(newRef.Num, newRef.Gen)
		}
		// references to missing objects read as null
		return raw.NullObj{}
	case *raw.ArrayObj:
		newArr := raw.NewArray()
		for _, item := range v.Items {
			newArr.Append(l.updateRefs(item))
		}
		return newArr
	case *raw.DictObj:
		newDict := raw.Dict()
		for k, val := range v.KV {
			newDict.Set(raw.NameLiteral(k), l.updateRefs(val))
		}
		return newDict
	case *raw.StreamObj:
		newDict := raw.Dict()
		if v.Dict != nil {
			newDict = l.updateRefs(v.Dict).(*raw.DictObj)
		}
		return raw.NewStream(newDict, v.Data)
	default:
		return v
	}
}

func (l *linearizer) newNum(ref raw.ObjectRef) int { return l.renumber[ref].Num }

// layout holds predicted byte offsets, indexed by new object number.
type layout struct {
	offsets      []int64
	fpXRefOffset int64
	hintOffset   int64
	// firstPageEnd is the offset just past the first page section.
	firstPageEnd int64
}

func (l *linearizer) layout(headerLen, linDictLen, fpXRefLen int, lengths []int64) layout {
	lay := layout{offsets: make([]int64, l.size)}
	offset := int64(headerLen)
	lay.offsets[linDictNum] = offset
	offset += int64(linDictLen)
	lay.fpXRefOffset = offset
	offset += int64(fpXRefLen)
	for num := linDictNum + 1; num < l.size; num++ {
		lay.offsets[num] = offset
		offset += lengths[num]
	}
	lay.hintOffset = lay.offsets[l.hintNum]
	lay.firstPageEnd = lay.offsets[l.fpLast] + lengths[l.fpLast]
	return lay
}

// fillHints computes the hint tables for a predicted layout and returns
// the hint stream object encoding them. Page sections are contiguous from
// the first page object on, so page k starts at the first page location
// plus the lengths of the sections before it. The catalog, the page tree
// and the hint stream precede that location and belong to no page.
func (l *linearizer) fillHints(b *linearize.Builder, lay layout, lengths []int64, compress bool) (*raw.StreamObj, error) {
	sharedIndex := make(map[raw.ObjectRef]int, len(l.sharedTable))
	for i, ref := range l.sharedTable {
		sharedIndex[ref] = i
	}

	pages := make([]linearize.PageData, len(l.pageList))
	for p := range l.pageList {
		section := l.pageSections[p]
		if p == l.firstPage {
			section = l.firstSection
		}
		pd := linearize.PageData{ObjectCount: len(section)}
		start := lay.offsets[l.newNum(section[0])]
		foundContent := false
		for _, ref := range section {
			num := l.newNum(ref)
			pd.Length += lengths[num]
			if !l.contentStreams[ref] {
				continue
			}
			if !foundContent {
				pd.ContentOffset = lay.offsets[num] - start
				foundContent = true
			}
			pd.ContentLength += lengths[num]
		}
		for _, ref := range l.pageObjects[p] {
			if idx, ok := sharedIndex[ref]; ok {
				pd.SharedObjects = append(pd.SharedObjects, idx)
			}
		}
		slices.Sort(pd.SharedObjects)
		pages[p] = pd
	}

	firstPageObj := l.newNum(l.firstSection[0])

	groups := make([]linearize.SharedData, len(l.sharedTable))
	for i, ref := range l.sharedTable {
		num := l.newNum(ref)
		groups[i] = linearize.SharedData{
			ObjectNumber: num,
			Offset:       lay.offsets[num],
			Length:       lengths[num],
			FirstPage:    i < l.firstPageSharedN,
			ObjectCount:  1,
		}
	}

	ht := b.HintTables()
	ht.FillPageOffsets(pages, firstPageObj, lay.offsets[firstPageObj])
	ht.FillSharedObjects(groups)
	return b.BuildHintStreamObject(compress)
}

func (w *impl) writeLinearized(ctx context.Context, doc *raw.Document, out io.Writer, cfg Config) (err error) {
	ctx, span := cfg.tracer().StartSpan(ctx, "writer.linearize")
	defer func() {
		if err != nil {
			span.SetError(err)
		}
		span.Finish()
	}()

	// 1. Classify
	l, err := newLinearizer(w, doc, cfg)
	if err != nil {
		return err
	}
	if err := l.collectPages(); err != nil {
		return err
	}
	l.collectReferences()
	header := fileHeader(cfg)
	if err := l.classify(len(header)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	l.arrange()
	objects := l.renumberObjects()
	span.SetTag("pages", len(l.pageList))
	span.SetTag("objects", len(objects))

	// 2. Measure
	serialized := make([][]byte, l.size)
	lengths := make([]int64, l.size)
	for num := linDictNum + 1; num < l.size; num++ {
		if num == l.hintNum {
			continue
		}
		data, err := w.SerializeObject(raw.ObjectRef{Num: num}, objects[num])
		if err != nil {
			return fmt.Errorf("serialize object %d: %w", num, err)
		}
		serialized[num] = data
		lengths[num] = int64(len(data))
	}

	ids := fileID(l.measured, cfg)
	newCatalog := l.renumber[l.catalog]
	var newInfo *raw.ObjectRef
	if l.info != nil {
		if ref, ok := l.renumber[*l.info]; ok {
			newInfo = &ref
		}
	}
	// The first page trailer points back at the main xref, whose offset is
	// known only after every object is written.
	fpTrailer, err := firstPageTrailer(buildTrailer(l.size, newCatalog, newInfo, 0, ids), 0)
	if err != nil {
		return err
	}
	var fpXRef bytes.Buffer
	writeXRefSection(&fpXRef, 0, make([]int64, l.fpLast+1))
	fpXRef.Write(fpTrailer)

	b := linearize.NewBuilder(len(l.pageList))
	b.SetFirstPageIndex(l.firstPage)
	b.SetFirstPageObject(l.newNum(l.pageList[l.firstPage]))
	placeholder, err := l.linDictBytes(b)
	if err != nil {
		return err
	}

	// 3. Size the hint stream until its length is stable
	hintRef := raw.ObjectRef{Num: l.hintNum}
	hintData, err := w.SerializeObject(hintRef, raw.NewStream(nil, nil))
	if err != nil {
		return err
	}
	var lay layout
	passes, stable := 0, false
	for passes < maxSizingPasses && !stable {
		passes++
		lengths[l.hintNum] = int64(len(hintData))
		lay = l.layout(len(header), len(placeholder), fpXRef.Len(), lengths)
		stream, err := l.fillHints(b, lay, lengths, cfg.CompressHints)
		if err != nil {
			return fmt.Errorf("hint tables: %w", err)
		}
		data, err := w.SerializeObject(hintRef, stream)
		if err != nil {
			return err
		}
		stable = len(data) == len(hintData)
		hintData = data
	}
	if !stable {
		return fmt.Errorf("after %d passes: %w", passes, ErrSizingDiverged)
	}
	serialized[l.hintNum] = hintData
	l.log.Debug("hint stream sized",
		observability.Int("bytes", len(hintData)),
		observability.Int("passes", passes),
	)
	if err := ctx.Err(); err != nil {
		return err
	}

	// 4. Emit, reserving the parameter dictionary
	var buf bytes.Buffer
	patches := newPatchList()
	buf.Write(header)
	patches.reserve(&buf, "linearization", placeholder)

	if int64(buf.Len()) != lay.fpXRefOffset {
		return fmt.Errorf("first page xref at %d, expected %d: %w", buf.Len(), lay.fpXRefOffset, ErrLayoutMismatch)
	}
	writeXRefSection(&buf, 0, lay.offsets[:l.fpLast+1])
	patches.reserve(&buf, "trailer", fpTrailer)

	for num := linDictNum + 1; num < l.size; num++ {
		if int64(buf.Len()) != lay.offsets[num] {
			return fmt.Errorf("object %d at %d, expected %d: %w", num, buf.Len(), lay.offsets[num], ErrLayoutMismatch)
		}
		buf.Write(serialized[num])
	}

	mainXRefOffset := int64(buf.Len())
	writeXRefSection(&buf, l.fpLast+1, lay.offsets[l.fpLast+1:])
	trailer := buildTrailer(l.size, newCatalog, newInfo, 0, ids)
	buf.WriteString("trailer\n")
	buf.Write(serializePrimitive(trailer))
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", lay.fpXRefOffset)

	// 5. Patch the parameters now that every offset is known
	b.SetFileLength(int64(buf.Len()))
	b.SetHintStream(lay.hintOffset, int64(len(hintData)))
	b.SetFirstPageEnd(lay.firstPageEnd)
	b.SetMainXRefOffset(mainXRefOffset)
	final, err := l.linDictBytes(b)
	if err != nil {
		return err
	}
	if err := patches.apply(buf.Bytes(), "linearization", final); err != nil {
		return err
	}
	fpTrailer, err = firstPageTrailer(buildTrailer(l.size, newCatalog, newInfo, 0, ids), mainXRefOffset)
	if err != nil {
		return err
	}
	if err := patches.apply(buf.Bytes(), "trailer", fpTrailer); err != nil {
		return err
	}

	params := b.Params()
	cfg.Metrics.ObserveHintStream(len(hintData), passes)
	l.log.Info("linearized document written",
		observability.Int("pages", params.PageCount),
		observability.Int64("file_length", params.FileLength),
		observability.Int64("hint_offset", params.HintOffset),
		observability.Int64("hint_length", params.HintLength),
		observability.Int64("first_page_end", params.FirstPageEnd),
		observability.Int64("main_xref", params.MainXRefOffset),
	)

	_, err = out.Write(buf.Bytes())
	return err
}

// firstPageTrailer renders the trailer of the first page xref section with
// /Prev set to the main xref offset. Integers are zero-padded so the
// placeholder and the final rendering have the same length. The section
// carries its own startxref of 0.
func firstPageTrailer(trailer *raw.DictObj, mainXRef int64) ([]byte, error) {
	trailer.Set(raw.NameLiteral("Prev"), raw.NumberInt(mainXRef))
	dict, err := serializeFixedWidth(trailer, placeholderWidth)
	if err != nil {
		return nil, fmt.Errorf("first page trailer: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("trailer\n")
	buf.Write(dict)
	buf.WriteString("\nstartxref\n0\n%%EOF\n")
	return buf.Bytes(), nil
}

// linDictBytes renders the parameter dictionary as an indirect object with
// fixed-width integers, so every rendering has the same length.
func (l *linearizer) linDictBytes(b *linearize.Builder) ([]byte, error) {
	dict, err := serializeFixedWidth(b.BuildParamsObject(), placeholderWidth)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d 0 obj\n", linDictNum)
	buf.Write(dict)
	buf.WriteString("\nendobj\n")
	return buf.Bytes(), nil
}
