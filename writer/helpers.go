package writer

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/wudi/pdflinear/ir/raw"
)

func pdfVersion(cfg Config) string {
	if cfg.Version == "" {
		return string(PDF17)
	}
	return string(cfg.Version)
}

func fileHeader(cfg Config) []byte {
	return []byte("%PDF-" + pdfVersion(cfg) + "\n%\xE2\xE3\xCF\xD3\n")
}

// fileID returns the two trailer /ID strings. Deterministic output derives
// them from the serialized objects.
func fileID(serialized [][]byte, cfg Config) [2][]byte {
	if cfg.Deterministic {
		seed := deterministicIDSeed(serialized, cfg)
		return [2][]byte{seed, bytes.Clone(seed)}
	}
	id := uuid.New()
	return [2][]byte{bytes.Clone(id[:]), bytes.Clone(id[:])}
}

func deterministicIDSeed(serialized [][]byte, cfg Config) []byte {
	h, err := blake2b.New(16, nil)
	if err != nil {
		panic(err) // only fails for invalid sizes or keys
	}
	h.Write([]byte(pdfVersion(cfg)))
	h.Write([]byte(strconv.Itoa(len(serialized))))
	for _, data := range serialized {
		h.Write(data)
	}
	return h.Sum(nil)
}

func buildTrailer(size int, catalogRef raw.ObjectRef, infoRef *raw.ObjectRef, prev int64, ids [2][]byte) *raw.DictObj {
	trailer := raw.Dict()
	trailer.Set(raw.NameLiteral("Size"), raw.NumberInt(int64(size)))
	trailer.Set(raw.NameLiteral("Root"), raw.Ref(catalogRef.Num, catalogRef.Gen))
	if infoRef != nil {
		trailer.Set(raw.NameLiteral("Info"), raw.Ref(infoRef.Num, infoRef.Gen))
	}
	trailer.Set(raw.NameLiteral("ID"), raw.NewArray(raw.HexStr(ids[0]), raw.HexStr(ids[1])))
	if prev > 0 {
		trailer.Set(raw.NameLiteral("Prev"), raw.NumberInt(prev))
	}
	return trailer
}

// writeXRefSection writes a classic cross-reference section for objects
// first..first+len(offsets)-1. A zero offset marks a free entry; object 0
// is always free.
func writeXRefSection(buf *bytes.Buffer, first int, offsets []int64) {
	buf.WriteString("xref\n")
	fmt.Fprintf(buf, "%d %d\n", first, len(offsets))
	for i, off := range offsets {
		if first+i == 0 || off <= 0 {
			buf.WriteString("0000000000 65535 f \n")
			continue
		}
		fmt.Fprintf(buf, "%010d 00000 n \n", off)
	}
}

func serializePrimitive(o raw.Object) []byte {
	switch v := o.(type) {
	case raw.NameObj:
		return []byte("/" + pdfNameLiteral(v.Value()))
	case raw.NumberObj:
		if v.IsInteger() {
			return []byte(strconv.FormatInt(v.Int(), 10))
		}
		return []byte(formatReal(v.Float()))
	case raw.BoolObj:
		if v.Value() {
			return []byte("true")
		}
		return []byte("false")
	case raw.NullObj:
		return []byte("null")
	case raw.String:
		if v.IsHex() {
			return []byte(fmt.Sprintf("<%X>", v.Value()))
		}
		return escapeLiteralString(v.Value())
	case *raw.ArrayObj:
		var b bytes.Buffer
		b.WriteByte('[')
		for i, it := range v.Items {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.Write(serializePrimitive(it))
		}
		b.WriteByte(']')
		return b.Bytes()
	case *raw.DictObj:
		var b bytes.Buffer
		b.WriteString("<<")
		for i, k := range sortedKeys(v) {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString("/" + pdfNameLiteral(k) + " ")
			b.Write(serializePrimitive(v.KV[k]))
		}
		b.WriteString(">>")
		return b.Bytes()
	case *raw.StreamObj:
		var b bytes.Buffer
		b.Write(serializePrimitive(streamDict(v)))
		b.WriteString("\nstream\n")
		b.Write(v.Data)
		b.WriteString("\nendstream")
		return b.Bytes()
	case raw.RefObj:
		return []byte(fmt.Sprintf("%d %d R", v.Ref().Num, v.Ref().Gen))
	default:
		return []byte("null")
	}
}

// serializeFixedWidth renders a dictionary of integers (and arrays of
// integers) with every integer zero-padded to width digits, so that the
// rendering length does not depend on the values.
func serializeFixedWidth(d *raw.DictObj, width int) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString("<<")
	for i, k := range sortedKeys(d) {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("/" + pdfNameLiteral(k) + " ")
		if err := writeFixed(&b, d.KV[k], width); err != nil {
			return nil, fmt.Errorf("/%s: %w", k, err)
		}
	}
	b.WriteString(">>")
	return b.Bytes(), nil
}

func writeFixed(b *bytes.Buffer, o raw.Object, width int) error {
	switch v := o.(type) {
	case raw.NumberObj:
		if !v.IsInteger() {
			b.Write(serializePrimitive(v))
			return nil
		}
		s := strconv.FormatInt(v.Int(), 10)
		if v.Int() < 0 || len(s) > width {
			return fmt.Errorf("%d in %d digits: %w", v.Int(), width, ErrPlaceholderOverflow)
		}
		b.WriteString(strings.Repeat("0", width-len(s)))
		b.WriteString(s)
	case *raw.ArrayObj:
		b.WriteByte('[')
		for i, it := range v.Items {
			if i > 0 {
				b.WriteByte(' ')
			}
			if err := writeFixed(b, it, width); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	default:
		b.Write(serializePrimitive(v))
	}
	return nil
}

func formatReal(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}

// streamDict returns the stream dictionary with /Length matching the data.
func streamDict(s *raw.StreamObj) *raw.DictObj {
	d := raw.Dict()
	if s.Dict != nil {
		for k, v := range s.Dict.KV {
			d.KV[k] = v
		}
	}
	d.Set(raw.NameLiteral("Length"), raw.NumberInt(int64(len(s.Data))))
	return d
}

func sortedKeys(d *raw.DictObj) []string {
	keys := make([]string, 0, len(d.KV))
	for k := range d.KV {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func escapeLiteralString(rawBytes []byte) []byte {
	var b bytes.Buffer
	b.WriteByte('(')
	for _, ch := range rawBytes {
		switch ch {
		case '\\', '(', ')':
			b.WriteByte('\\')
			b.WriteByte(ch)
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		case '\b':
			b.WriteString("\\b")
		case '\f':
			b.WriteString("\\f")
		default:
			if ch < 0x20 || ch >= 0x80 {
				fmt.Fprintf(&b, "\\%03o", ch)
			} else {
				b.WriteByte(ch)
			}
		}
	}
	b.WriteByte(')')
	return b.Bytes()
}

func pdfNameLiteral(value string) string {
	if value == "" {
		return ""
	}
	if strings.Contains(value, "#") {
		return value
	}
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') || ch == '-' || ch == '_' || ch == '.' || ch == '+' {
			b.WriteByte(ch)
			continue
		}
		fmt.Fprintf(&b, "#%02X", ch)
	}
	return b.String()
}

func sortedRefs(objects map[raw.ObjectRef]raw.Object) []raw.ObjectRef {
	refs := make([]raw.ObjectRef, 0, len(objects))
	for ref := range objects {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Num < refs[j].Num })
	return refs
}
