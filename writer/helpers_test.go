package writer

import (
	"bytes"
	"errors"
	"testing"

	"github.com/wudi/pdflinear/ir/raw"
	"github.com/wudi/pdflinear/linearize"
)

func TestSerializePrimitive(t *testing.T) {
	dict := raw.Dict()
	dict.Set(raw.NameLiteral("Type"), raw.NameLiteral("Font"))
	dict.Set(raw.NameLiteral("A"), raw.NewArray(raw.NumberInt(1), raw.NumberFloat(2.5), raw.Bool(true), raw.NullObj{}))

	tests := []struct {
		name string
		obj  raw.Object
		want string
	}{
		{"Name", raw.NameLiteral("Helvetica"), "/Helvetica"},
		{"Name escaped", raw.NameLiteral("A B/C"), "/A#20B#2FC"},
		{"Integer", raw.NumberInt(-42), "-42"},
		{"Whole real", raw.NumberFloat(1), "1.0"},
		{"Literal string", raw.Str([]byte("a(b)c\\")), `(a\(b\)c\\)`},
		{"Hex string", raw.HexStr([]byte{0xAB, 0x01}), "<AB01>"},
		{"Reference", raw.Ref(12, 0), "12 0 R"},
		{"Sorted dictionary", dict, "<</A [1 2.5 true null] /Type /Font>>"},
		{"Stream", raw.NewStream(nil, []byte("q Q")), "<</Length 3>>\nstream\nq Q\nendstream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(serializePrimitive(tt.obj)); got != tt.want {
				t.Errorf("serializePrimitive() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStreamLengthFollowsData(t *testing.T) {
	s := raw.NewStream(nil, []byte("abc"))
	s.Data = []byte("abcdef")
	got := string(serializePrimitive(s))
	want := "<</Length 6>>\nstream\nabcdef\nendstream"
	if got != want {
		t.Errorf("serializePrimitive() = %q, want %q", got, want)
	}
}

func TestSerializeFixedWidth(t *testing.T) {
	zero := linearize.Params{Version: linearize.DefaultVersion, PageCount: 3}
	full := linearize.Params{
		Version:         linearize.DefaultVersion,
		FileLength:      123456,
		HintOffset:      900,
		HintLength:      77,
		FirstPageObject: 4,
		FirstPageEnd:    2048,
		PageCount:       3,
		MainXRefOffset:  120000,
	}
	a, err := serializeFixedWidth(zero.Object(), placeholderWidth)
	if err != nil {
		t.Fatalf("serializeFixedWidth: %v", err)
	}
	b, err := serializeFixedWidth(full.Object(), placeholderWidth)
	if err != nil {
		t.Fatalf("serializeFixedWidth: %v", err)
	}
	if len(a) != len(b) {
		t.Fatalf("rendering length depends on values: %d vs %d", len(a), len(b))
	}
	if !bytes.Contains(b, []byte("/L 0000123456")) || !bytes.Contains(b, []byte("/H [0000000900 0000000077]")) {
		t.Errorf("unexpected rendering %q", b)
	}
	if !bytes.Contains(b, []byte("/Linearized 1.0")) {
		t.Errorf("version not rendered as a real: %q", b)
	}

	big := raw.Dict()
	big.Set(raw.NameLiteral("L"), raw.NumberInt(12345678901))
	if _, err := serializeFixedWidth(big, placeholderWidth); !errors.Is(err, ErrPlaceholderOverflow) {
		t.Errorf("err = %v, want ErrPlaceholderOverflow", err)
	}
	neg := raw.Dict()
	neg.Set(raw.NameLiteral("L"), raw.NumberInt(-1))
	if _, err := serializeFixedWidth(neg, placeholderWidth); !errors.Is(err, ErrPlaceholderOverflow) {
		t.Errorf("err = %v, want ErrPlaceholderOverflow", err)
	}
}

func TestPatchList(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("head|")
	p := newPatchList()
	p.reserve(&buf, "slot", []byte("XXXXXX"))
	buf.WriteString("|tail")

	out := buf.Bytes()
	if err := p.apply(out, "slot", []byte("abc")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := string(out); got != "head|abc   |tail" {
		t.Errorf("patched = %q", got)
	}
	if err := p.apply(out, "slot", []byte("1234567")); !errors.Is(err, ErrPlaceholderOverflow) {
		t.Errorf("err = %v, want ErrPlaceholderOverflow", err)
	}
	if err := p.apply(out, "missing", nil); err == nil {
		t.Errorf("apply to unknown region succeeded")
	}
}

func TestWriteXRefSection(t *testing.T) {
	var buf bytes.Buffer
	writeXRefSection(&buf, 0, []int64{0, 15, 0, 1234})
	want := "xref\n0 4\n" +
		"0000000000 65535 f \n" +
		"0000000015 00000 n \n" +
		"0000000000 65535 f \n" +
		"0000001234 00000 n \n"
	if got := buf.String(); got != want {
		t.Errorf("xref = %q, want %q", got, want)
	}
}

func TestFileID(t *testing.T) {
	objs := [][]byte{[]byte("1 0 obj\n<<>>\nendobj\n")}
	a := fileID(objs, Config{Deterministic: true})
	b := fileID(objs, Config{Deterministic: true})
	if !bytes.Equal(a[0], b[0]) || len(a[0]) != 16 {
		t.Fatalf("deterministic ids differ or have wrong size: %x %x", a[0], b[0])
	}
	c := fileID([][]byte{[]byte("other")}, Config{Deterministic: true})
	if bytes.Equal(a[0], c[0]) {
		t.Errorf("different content produced the same id")
	}
	r1, r2 := fileID(objs, Config{}), fileID(objs, Config{})
	if len(r1[0]) != 16 || bytes.Equal(r1[0], r2[0]) {
		t.Errorf("random ids: %x %x", r1[0], r2[0])
	}
}
