package linearize

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pdflinear/ir/raw"
)

func TestBuilderPassThrough(t *testing.T) {
	b := NewBuilder(1)
	b.SetFirstPageObject(6)
	b.SetFirstPageIndex(0)
	b.SetFileLength(9000)
	b.SetHintStream(700, 80)
	b.SetFirstPageEnd(3000)
	b.SetMainXRefOffset(8800)

	want := Params{
		Version:         DefaultVersion,
		FileLength:      9000,
		HintOffset:      700,
		HintLength:      80,
		FirstPageObject: 6,
		FirstPageEnd:    3000,
		PageCount:       1,
		MainXRefOffset:  8800,
	}
	if diff := cmp.Diff(want, b.Params()); diff != "" {
		t.Fatalf("params (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.Object(), b.BuildParamsObject()); diff != "" {
		t.Fatalf("dictionary (-want +got):\n%s", diff)
	}

	*b.HintTables() = *sampleTables()
	if diff := cmp.Diff(sampleTables().Bytes(), b.BuildHintStream()); diff != "" {
		t.Fatalf("hint stream (-want +got):\n%s", diff)
	}
}

func TestBuilderCheckedRejectsBadTables(t *testing.T) {
	b := NewBuilder(2)
	*b.HintTables() = *sampleTables()
	if _, err := b.BuildHintStreamChecked(); !errors.Is(err, ErrPageCountMismatch) {
		t.Fatalf("expected ErrPageCountMismatch, got %v", err)
	}

	b = NewBuilder(1)
	*b.HintTables() = *sampleTables()
	b.HintTables().Pages[0].ObjectCountDelta = 100
	if _, err := b.BuildHintStreamObject(false); err == nil {
		t.Fatal("expected width error")
	}
}

func TestBuilderHintStreamObject(t *testing.T) {
	for _, compress := range []bool{false, true} {
		b := NewBuilder(1)
		*b.HintTables() = *sampleTables()
		stream, err := b.BuildHintStreamObject(compress)
		if err != nil {
			t.Fatal(err)
		}
		s, _ := stream.Dict.Get(raw.NameLiteral("S"))
		if got := s.(raw.NumberObj).Int(); got != int64(len(sampleTables().PageOffsetTableBytes())) {
			t.Fatalf("/S = %d", got)
		}
		_, hasFilter := stream.Dict.Get(raw.NameLiteral("Filter"))
		if hasFilter != compress {
			t.Fatalf("compress=%v but /Filter present=%v", compress, hasFilter)
		}
		got, err := ParseHintStream(stream, 1)
		if err != nil {
			t.Fatalf("compress=%v: %v", compress, err)
		}
		if diff := cmp.Diff(sampleTables(), got); diff != "" {
			t.Fatalf("compress=%v round trip (-want +got):\n%s", compress, diff)
		}
	}
}

func TestParseHintStreamErrors(t *testing.T) {
	if _, err := ParseHintStream(raw.NewStream(nil, []byte{1}), 1); err == nil {
		t.Fatal("expected error for missing /S")
	}
	d := raw.Dict()
	d.Set(raw.NameLiteral("S"), raw.NumberInt(42))
	d.Set(raw.NameLiteral("Filter"), raw.NameLiteral("LZWDecode"))
	if _, err := ParseHintStream(raw.NewStream(d, make([]byte, 100)), 1); err == nil {
		t.Fatal("expected error for unsupported filter")
	}
}
