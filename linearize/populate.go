package linearize

// DefaultDenominator is written when no page uses numerators.
const DefaultDenominator = 1

// PageData is the measured layout of one page of the linearized file.
type PageData struct {
	ObjectCount int
	Length      int64
	// SharedObjects are indices into the shared object hint table.
	SharedObjects []int
	Numerators    []uint32
	// ContentOffset is relative to the start of the page's section.
	ContentOffset int64
	ContentLength int64
}

// SharedData is the measured layout of one shared object group.
type SharedData struct {
	ObjectNumber int
	Offset       int64
	Length       int64
	FirstPage    bool
	// ObjectCount is the number of consecutive objects in the group.
	ObjectCount int
}

// FillPageOffsets computes the page offset header from pages and stores
// one entry per page. Widths are derived from the same values that are
// stored, so the encoded table never truncates.
func (t *HintTables) FillPageOffsets(pages []PageData, minObjectNumber int, firstPageLocation int64) {
	counts := make([]uint64, len(pages))
	lengths := make([]uint64, len(pages))
	offsets := make([]uint64, len(pages))
	contentLengths := make([]uint64, len(pages))
	var ids, numerators []uint64
	for i, p := range pages {
		counts[i] = nonNegative(int64(p.ObjectCount))
		lengths[i] = nonNegative(p.Length)
		offsets[i] = nonNegative(p.ContentOffset)
		contentLengths[i] = nonNegative(p.ContentLength)
		ids = append(ids, uint64(len(p.SharedObjects)))
		for _, id := range p.SharedObjects {
			ids = append(ids, nonNegative(int64(id)))
		}
		for _, n := range p.Numerators {
			numerators = append(numerators, uint64(n))
		}
	}

	minCount, countBits := DeltaEncoding(counts)
	minLength, lengthBits := DeltaEncoding(lengths)
	minOffset, offsetBits := DeltaEncoding(offsets)
	minContentLength, contentLengthBits := DeltaEncoding(contentLengths)

	denominator := t.PageOffset.SharedDenominator
	if denominator == 0 {
		denominator = DefaultDenominator
	}
	t.PageOffset = PageOffsetHeader{
		MinObjectNumber:    uint32(nonNegative(int64(minObjectNumber))),
		FirstPageLocation:  nonNegative(firstPageLocation),
		ObjectCountBits:    uint8(countBits),
		MinPageLength:      uint32(minLength),
		PageLengthBits:     uint8(lengthBits),
		MinContentOffset:   uint32(minOffset),
		ContentOffsetBits:  uint8(offsetBits),
		MinContentLength:   uint32(minContentLength),
		ContentLengthBits:  uint8(contentLengthBits),
		MinObjectCount:     uint32(minCount),
		SharedObjectIDBits: uint8(maxWidth(ids...)),
		NumeratorBits:      uint8(maxWidth(numerators...)),
		SharedDenominator:  denominator,
	}

	t.Pages = make([]PageOffsetEntry, len(pages))
	for i, p := range pages {
		e := PageOffsetEntry{
			ObjectCountDelta:   uint32(counts[i] - minCount),
			PageLengthDelta:    uint32(lengths[i] - minLength),
			ContentOffsetDelta: uint32(offsets[i] - minOffset),
			ContentLengthDelta: uint32(contentLengths[i] - minContentLength),
		}
		if len(p.SharedObjects) > 0 {
			e.SharedObjectIDs = make([]uint32, len(p.SharedObjects))
			for j, id := range p.SharedObjects {
				e.SharedObjectIDs[j] = uint32(nonNegative(int64(id)))
			}
			e.Numerators = append([]uint32(nil), p.Numerators...)
		}
		t.Pages[i] = e
	}
}

// FillSharedObjects computes the shared object header and entries. Groups
// needed by the first page must come first; within each section object
// numbers must ascend. The object number delta of an entry is the gap to
// the end of the previous group of the same section.
func (t *HintTables) FillSharedObjects(groups []SharedData) {
	lengths := make([]uint64, len(groups))
	var numberFields []uint64
	deltas := make([]uint64, len(groups))

	var firstPage uint32
	for i, g := range groups {
		lengths[i] = nonNegative(g.Length)
		if g.FirstPage {
			firstPage++
		}
		if i > 0 && groups[i-1].FirstPage == g.FirstPage {
			prev := groups[i-1]
			deltas[i] = nonNegative(int64(g.ObjectNumber - prev.ObjectNumber - groupSize(prev)))
		}
		numberFields = append(numberFields, deltas[i], uint64(groupSize(g)))
	}
	minLength, lengthBits := DeltaEncoding(lengths)

	h := SharedObjectHeader{
		FirstPageEntries: firstPage,
		RemainingEntries: uint32(len(groups)) - firstPage,
		ObjectLengthBits: uint8(lengthBits),
		MinObjectLength:  uint32(minLength),
		ObjectNumberBits: uint8(maxWidth(numberFields...)),
	}
	if first, ok := firstSharedSection(groups); ok {
		h.FirstObjectNumber = uint32(nonNegative(int64(first.ObjectNumber)))
		h.FirstObjectLocation = nonNegative(first.Offset)
	}
	t.SharedObjects = h

	t.Shared = make([]SharedObjectEntry, len(groups))
	for i, g := range groups {
		t.Shared[i] = SharedObjectEntry{
			ObjectLengthDelta: uint32(lengths[i] - minLength),
			FirstPage:         g.FirstPage,
			ObjectNumberDelta: uint32(deltas[i]),
			ObjectCount:       uint32(groupSize(g)),
		}
	}
}

// firstSharedSection returns the first group stored outside the first page
// section, falling back to the first group.
func firstSharedSection(groups []SharedData) (SharedData, bool) {
	for _, g := range groups {
		if !g.FirstPage {
			return g, true
		}
	}
	if len(groups) > 0 {
		return groups[0], true
	}
	return SharedData{}, false
}

func groupSize(g SharedData) int {
	if g.ObjectCount < 1 {
		return 1
	}
	return g.ObjectCount
}

func nonNegative(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}
