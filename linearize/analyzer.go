package linearize

import (
	"slices"

	"github.com/bits-and-blooms/bitset"

	"github.com/wudi/pdflinear/ir/raw"
)

// ObjectDescriptor describes one serialized indirect object and the pages
// that reference it.
type ObjectDescriptor struct {
	Ref    raw.ObjectRef
	Offset int64
	Length int64
	// Pages holds the zero-based indices of the pages that reference the
	// object. Duplicates are ignored.
	Pages           []int
	IsContentStream bool
	IsPageObject    bool
}

// Category tags how the analyzer classified an object.
type Category int

const (
	Unreferenced Category = iota
	PageSpecific
	FirstPage
	Shared
	// FirstPageShared objects are needed by the first page and by at least
	// one other page; they appear in both FirstPageObjects and SharedObjects.
	FirstPageShared
)

func (c Category) String() string {
	switch c {
	case PageSpecific:
		return "page-specific"
	case FirstPage:
		return "first-page"
	case Shared:
		return "shared"
	case FirstPageShared:
		return "first-page-shared"
	default:
		return "unreferenced"
	}
}

// Analyzer partitions objects into first-page, shared and page-specific
// groups. An Analyzer is used for exactly one document: register every
// object with AddObject, then call Analyze once.
type Analyzer struct {
	pageCount int
	firstPage int

	objects   []ObjectDescriptor
	byNum     map[int]int // object number -> index into objects
	refCount  map[int]int
	firstSet  bitset.BitSet
	sharedSet bitset.BitSet
	pageSets  []bitset.BitSet
}

// NewAnalyzer returns an analyzer for a document with pageCount pages whose
// first displayed page is firstPageIndex.
func NewAnalyzer(pageCount, firstPageIndex int) *Analyzer {
	if pageCount < 0 {
		pageCount = 0
	}
	return &Analyzer{
		pageCount: pageCount,
		firstPage: firstPageIndex,
		byNum:     make(map[int]int),
		refCount:  make(map[int]int),
		pageSets:  make([]bitset.BitSet, pageCount),
	}
}

// PageCount returns the page count fixed at construction.
func (a *Analyzer) PageCount() int { return a.pageCount }

// FirstPageIndex returns the first page index fixed at construction.
func (a *Analyzer) FirstPageIndex() int { return a.firstPage }

// MaxObjectNumber is the largest object number a PDF file may use.
const MaxObjectNumber = 8388607

// AddObject registers an object. Each object number must be added once.
// Objects numbered outside 0..MaxObjectNumber are ignored.
func (a *Analyzer) AddObject(d ObjectDescriptor) {
	if d.Ref.Num < 0 || d.Ref.Num > MaxObjectNumber {
		return
	}
	pages := slices.Clone(d.Pages)
	slices.Sort(pages)
	d.Pages = slices.Compact(pages)
	a.byNum[d.Ref.Num] = len(a.objects)
	a.objects = append(a.objects, d)
}

// Analyze counts page references and fills the classification sets.
// Calling it more than once counts every reference again.
func (a *Analyzer) Analyze() {
	for _, d := range a.objects {
		num := uint(d.Ref.Num)
		for _, p := range d.Pages {
			a.refCount[d.Ref.Num]++
			if p >= 0 && p < a.pageCount {
				a.pageSets[p].Set(num)
			}
		}
	}
	for _, d := range a.objects {
		num := uint(d.Ref.Num)
		if slices.Contains(d.Pages, a.firstPage) {
			a.firstSet.Set(num)
		}
		if a.refCount[d.Ref.Num] > 1 {
			a.sharedSet.Set(num)
		}
	}
}

// FirstPageObjects returns the object numbers referenced by the first
// page, ascending.
func (a *Analyzer) FirstPageObjects() []int {
	return members(&a.firstSet, nil)
}

// SharedObjects returns the object numbers referenced by more than one
// page, ascending.
func (a *Analyzer) SharedObjects() []int {
	return members(&a.sharedSet, nil)
}

// PageSpecificObjects returns the objects referenced by page that are
// neither first-page nor shared objects. The first page and out-of-range
// pages have none.
func (a *Analyzer) PageSpecificObjects(page int) []int {
	if page < 0 || page >= a.pageCount || page == a.firstPage {
		return []int{}
	}
	return members(&a.pageSets[page], func(n uint) bool {
		return !a.firstSet.Test(n) && !a.sharedSet.Test(n)
	})
}

// ReferenceCount returns how many page references were counted for num.
func (a *Analyzer) ReferenceCount(num int) int {
	return a.refCount[num]
}

// Category returns the classification of object num.
func (a *Analyzer) Category(num int) Category {
	if num < 0 {
		return Unreferenced
	}
	n := uint(num)
	first, shared := a.firstSet.Test(n), a.sharedSet.Test(n)
	switch {
	case first && shared:
		return FirstPageShared
	case first:
		return FirstPage
	case shared:
		return Shared
	case a.refCount[num] > 0:
		return PageSpecific
	}
	return Unreferenced
}

// Descriptor returns the registered descriptor for object num.
func (a *Analyzer) Descriptor(num int) (ObjectDescriptor, bool) {
	i, ok := a.byNum[num]
	if !ok {
		return ObjectDescriptor{}, false
	}
	return a.objects[i], true
}

func members(set *bitset.BitSet, keep func(uint) bool) []int {
	out := make([]int, 0, set.Count())
	for i, ok := set.NextSet(0); ok; i, ok = set.NextSet(i + 1) {
		if keep == nil || keep(i) {
			out = append(out, int(i))
		}
	}
	return out
}
