package main

import (
	"fmt"

	"github.com/wudi/pdflinear/ir/raw"
)

// sampleDocument builds an n-page letter-size document. All pages share one
// font through the inherited page tree resources; every third page also
// carries a page-specific annotation.
func sampleDocument(n int) *raw.Document {
	doc := raw.NewDocument()
	next := 1
	alloc := func(obj raw.Object) raw.RefObj {
		ref := raw.ObjectRef{Num: next}
		next++
		doc.Objects[ref] = obj
		return raw.Ref(ref.Num, 0)
	}

	font := raw.Dict()
	font.Set(raw.NameLiteral("Type"), raw.NameLiteral("Font"))
	font.Set(raw.NameLiteral("Subtype"), raw.NameLiteral("Type1"))
	font.Set(raw.NameLiteral("BaseFont"), raw.NameLiteral("Helvetica"))
	font.Set(raw.NameLiteral("Encoding"), raw.NameLiteral("WinAnsiEncoding"))
	fontRef := alloc(font)

	fonts := raw.Dict()
	fonts.Set(raw.NameLiteral("F1"), fontRef)
	resources := raw.Dict()
	resources.Set(raw.NameLiteral("Font"), fonts)
	resources.Set(raw.NameLiteral("ProcSet"), raw.NewArray(raw.NameLiteral("PDF"), raw.NameLiteral("Text")))

	pages := raw.Dict()
	pagesRef := alloc(pages)
	kids := raw.NewArray()

	for i := 0; i < n; i++ {
		ops := fmt.Sprintf("BT /F1 24 Tf 72 720 Td (Page %d of %d) Tj ET\n", i+1, n)
		for line := 0; line < 20; line++ {
			ops += fmt.Sprintf("BT /F1 11 Tf 72 %d Td (Line %d of page %d.) Tj ET\n", 680-line*14, line+1, i+1)
		}
		contentRef := alloc(raw.NewStream(nil, []byte(ops)))

		page := raw.Dict()
		page.Set(raw.NameLiteral("Type"), raw.NameLiteral("Page"))
		page.Set(raw.NameLiteral("Parent"), pagesRef)
		page.Set(raw.NameLiteral("Contents"), contentRef)
		if i%3 == 2 {
			annot := raw.Dict()
			annot.Set(raw.NameLiteral("Type"), raw.NameLiteral("Annot"))
			annot.Set(raw.NameLiteral("Subtype"), raw.NameLiteral("Text"))
			annot.Set(raw.NameLiteral("Rect"), raw.NewArray(raw.NumberInt(500), raw.NumberInt(700), raw.NumberInt(520), raw.NumberInt(720)))
			annot.Set(raw.NameLiteral("Contents"), raw.Str([]byte(fmt.Sprintf("Note on page %d", i+1))))
			page.Set(raw.NameLiteral("Annots"), raw.NewArray(alloc(annot)))
		}
		kids.Append(alloc(page))
	}

	pages.Set(raw.NameLiteral("Type"), raw.NameLiteral("Pages"))
	pages.Set(raw.NameLiteral("Kids"), kids)
	pages.Set(raw.NameLiteral("Count"), raw.NumberInt(int64(n)))
	pages.Set(raw.NameLiteral("MediaBox"), raw.NewArray(raw.NumberInt(0), raw.NumberInt(0), raw.NumberInt(612), raw.NumberInt(792)))
	pages.Set(raw.NameLiteral("Resources"), resources)

	catalog := raw.Dict()
	catalog.Set(raw.NameLiteral("Type"), raw.NameLiteral("Catalog"))
	catalog.Set(raw.NameLiteral("Pages"), pagesRef)
	catalogRef := alloc(catalog)

	info := raw.Dict()
	info.Set(raw.NameLiteral("Producer"), raw.Str([]byte("mklinear")))
	infoRef := alloc(info)

	doc.Trailer.Set(raw.NameLiteral("Root"), catalogRef)
	doc.Trailer.Set(raw.NameLiteral("Info"), infoRef)
	return doc
}
