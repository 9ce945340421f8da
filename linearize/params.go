package linearize

import "github.com/wudi/pdflinear/ir/raw"

// DefaultVersion is the linearization version written to /Linearized.
const DefaultVersion = 1.0

// Params are the values of the linearization parameter dictionary.
type Params struct {
	Version         float64
	FileLength      int64
	HintOffset      int64
	HintLength      int64
	FirstPageObject int
	FirstPageEnd    int64
	PageCount       int
	MainXRefOffset  int64
	// FirstPageIndex is written as /P only when non-zero.
	FirstPageIndex int
}

// Object converts the parameters to a dictionary. /P is omitted when
// FirstPageIndex is 0.
func (p Params) Object() *raw.DictObj {
	d := raw.Dict()
	d.Set(raw.NameLiteral("Linearized"), raw.NumberFloat(p.Version))
	d.Set(raw.NameLiteral("L"), raw.NumberInt(p.FileLength))
	d.Set(raw.NameLiteral("H"), raw.NewArray(raw.NumberInt(p.HintOffset), raw.NumberInt(p.HintLength)))
	d.Set(raw.NameLiteral("O"), raw.NumberInt(int64(p.FirstPageObject)))
	d.Set(raw.NameLiteral("E"), raw.NumberInt(p.FirstPageEnd))
	d.Set(raw.NameLiteral("N"), raw.NumberInt(int64(p.PageCount)))
	d.Set(raw.NameLiteral("T"), raw.NumberInt(p.MainXRefOffset))
	if p.FirstPageIndex != 0 {
		d.Set(raw.NameLiteral("P"), raw.NumberInt(int64(p.FirstPageIndex)))
	}
	return d
}
