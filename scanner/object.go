package scanner

import (
	"errors"
	"fmt"

	"github.com/wudi/pdflinear/ir/raw"
)

// maxNesting bounds array and dictionary nesting as well as chains of
// indirect references.
const maxNesting = 64

var (
	ErrNotObject = errors.New("no indirect object at offset")
	ErrNesting   = errors.New("objects nested too deeply")
)

// Locator maps an object number to the byte offset of its definition.
// xref.Table satisfies it through Lookup.
type Locator interface {
	Lookup(objNum int) (offset int64, gen int, ok bool)
}

// ObjectReader reads indirect objects from an in-memory file. Indirect
// stream lengths and references passed to Resolve are looked up through
// the locator.
type ObjectReader struct {
	data []byte
	loc  Locator
	cfg  Config
}

func NewObjectReader(data []byte, loc Locator, cfg Config) *ObjectReader {
	return &ObjectReader{data: data, loc: loc, cfg: cfg}
}

// ReadAt parses the "N G obj ... endobj" definition starting at offset.
func (r *ObjectReader) ReadAt(offset int64) (raw.ObjectRef, raw.Object, error) {
	return r.readAt(offset, 0)
}

func (r *ObjectReader) readAt(offset int64, depth int) (raw.ObjectRef, raw.Object, error) {
	if depth > maxNesting {
		return raw.ObjectRef{}, nil, ErrNesting
	}
	s := New(r.data, r.cfg)
	if err := s.Seek(offset); err != nil {
		return raw.ObjectRef{}, nil, fmt.Errorf("at %d: %w", offset, ErrNotObject)
	}
	num, err1 := s.Next()
	gen, err2 := s.Next()
	kw, err3 := s.Next()
	if err := errors.Join(err1, err2, err3); err != nil || num.Type != TokenNumber || gen.Type != TokenNumber || kw.Str != "obj" {
		return raw.ObjectRef{}, nil, fmt.Errorf("at %d: %w", offset, ErrNotObject)
	}
	ref := raw.ObjectRef{Num: int(num.Int), Gen: int(gen.Int)}

	tok, err := s.Next()
	if err != nil {
		return ref, nil, fmt.Errorf("object %v: %w", ref, err)
	}
	obj, err := r.value(s, tok, 0)
	if err != nil {
		return ref, nil, fmt.Errorf("object %v: %w", ref, err)
	}
	// a bad /Length only matters when a stream follows
	dict, isDict := obj.(*raw.DictObj)
	var lengthErr error
	if isDict {
		length, err := r.streamLength(dict, depth)
		if err != nil {
			length, lengthErr = -1, err
		}
		s.SetNextStreamLength(length)
	}
	tok, err = s.Next()
	if lengthErr != nil && (err != nil || tok.Type == TokenStream) {
		return ref, nil, fmt.Errorf("object %v: %w", ref, lengthErr)
	}
	if err != nil {
		return ref, nil, fmt.Errorf("object %v: %w", ref, err)
	}
	switch {
	case tok.Type == TokenStream && isDict:
		return ref, raw.NewStream(dict, tok.Bytes), nil
	case tok.Type == TokenKeyword && tok.Str == "endobj":
		return ref, obj, nil
	}
	return ref, nil, fmt.Errorf("object %v: unexpected token at %d", ref, tok.Pos)
}

// streamLength returns /Length of a stream dictionary, following an
// indirect reference, or -1 when there is none.
func (r *ObjectReader) streamLength(dict *raw.DictObj, depth int) (int64, error) {
	v, ok := dict.KV["Length"]
	if !ok {
		return -1, nil
	}
	v, err := r.resolve(v, depth+1)
	if err != nil {
		return 0, fmt.Errorf("/Length: %w", err)
	}
	n, ok := v.(raw.NumberObj)
	if !ok || !n.IsInteger() || n.Int() < 0 {
		return 0, errors.New("/Length is not a non-negative integer")
	}
	return n.Int(), nil
}

// Resolve returns obj with indirect references followed.
func (r *ObjectReader) Resolve(obj raw.Object) (raw.Object, error) {
	return r.resolve(obj, 0)
}

func (r *ObjectReader) resolve(obj raw.Object, depth int) (raw.Object, error) {
	for ; depth <= maxNesting; depth++ {
		ref, ok := obj.(raw.RefObj)
		if !ok {
			return obj, nil
		}
		if r.loc == nil {
			return nil, fmt.Errorf("%v: no cross-reference table", ref.Ref())
		}
		offset, _, ok := r.loc.Lookup(ref.Ref().Num)
		if !ok {
			return raw.NullObj{}, nil
		}
		_, next, err := r.readAt(offset, depth+1)
		if err != nil {
			return nil, err
		}
		obj = next
	}
	return nil, ErrNesting
}

func (r *ObjectReader) value(s Scanner, tok Token, depth int) (raw.Object, error) {
	if depth > maxNesting {
		return nil, ErrNesting
	}
	switch tok.Type {
	case TokenDict:
		dict := raw.Dict()
		for {
			key, err := s.Next()
			if err != nil {
				return nil, err
			}
			if key.Type == TokenKeyword && key.Str == ">>" {
				return dict, nil
			}
			if key.Type != TokenName {
				return nil, fmt.Errorf("dictionary key expected at %d", key.Pos)
			}
			next, err := s.Next()
			if err != nil {
				return nil, err
			}
			val, err := r.value(s, next, depth+1)
			if err != nil {
				return nil, err
			}
			dict.Set(raw.NameLiteral(key.Str), val)
		}
	case TokenArray:
		arr := raw.NewArray()
		for {
			next, err := s.Next()
			if err != nil {
				return nil, err
			}
			if next.Type == TokenKeyword && next.Str == "]" {
				return arr, nil
			}
			val, err := r.value(s, next, depth+1)
			if err != nil {
				return nil, err
			}
			arr.Append(val)
		}
	case TokenName:
		return raw.NameLiteral(tok.Str), nil
	case TokenString:
		if tok.Hex {
			return raw.HexStr(tok.Bytes), nil
		}
		return raw.Str(tok.Bytes), nil
	case TokenNumber:
		if tok.IsInt {
			return raw.NumberInt(tok.Int), nil
		}
		return raw.NumberFloat(tok.Float), nil
	case TokenBoolean:
		return raw.Bool(tok.Bool), nil
	case TokenNull:
		return raw.NullObj{}, nil
	case TokenRef:
		return raw.Ref(tok.Ref.Num, tok.Ref.Gen), nil
	}
	return nil, fmt.Errorf("unexpected token %q at %d", tok.Str, tok.Pos)
}
