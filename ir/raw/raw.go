package raw

import (
	"fmt"
)

// ObjectRef uniquely identifies an indirect PDF object.
type ObjectRef struct {
	Num int
	Gen int
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Object is the base interface for all raw PDF objects.
type Object interface {
	Type() string
	IsIndirect() bool
}

// Dictionary represents a PDF dictionary object.
type Dictionary interface {
	Object
	Get(key Name) (Object, bool)
	Set(key Name, value Object)
	Keys() []Name
	Len() int
}

// Array represents a PDF array object.
type Array interface {
	Object
	Get(index int) (Object, bool)
	Len() int
	Append(obj Object)
}

// Stream represents a raw (undecoded) PDF stream.
type Stream interface {
	Object
	Dictionary() Dictionary
	RawData() []byte
	Length() int64
}

// Name represents a PDF name object.
type Name interface {
	Object
	Value() string
}

// String represents a PDF string (literal or hex).
type String interface {
	Object
	Value() []byte
	IsHex() bool
}

// Number represents a PDF numeric value.
type Number interface {
	Object
	Int() int64
	Float() float64
	IsInteger() bool
}

// Reference represents an indirect object reference.
type Reference interface {
	Object
	Ref() ObjectRef
}

// Document is the root container for raw PDF objects. It is the unit the
// writer serializes: every indirect object plus the trailer entries that
// point into them (Root, optionally Info).
type Document struct {
	Objects map[ObjectRef]Object
	Trailer Dictionary
	Version string // e.g., "1.7"
}

// NewDocument returns an empty document with an initialized trailer.
func NewDocument() *Document {
	return &Document{
		Objects: make(map[ObjectRef]Object),
		Trailer: Dict(),
	}
}

// Root returns the catalog reference recorded in the trailer.
func (d *Document) Root() (ObjectRef, bool) {
	return d.trailerRef("Root")
}

// Info returns the document information dictionary reference, if any.
func (d *Document) Info() (ObjectRef, bool) {
	return d.trailerRef("Info")
}

func (d *Document) trailerRef(key string) (ObjectRef, bool) {
	if d == nil || d.Trailer == nil {
		return ObjectRef{}, false
	}
	v, ok := d.Trailer.Get(NameLiteral(key))
	if !ok {
		return ObjectRef{}, false
	}
	ref, ok := v.(RefObj)
	if !ok {
		return ObjectRef{}, false
	}
	return ref.Ref(), true
}

// Resolve returns the object a reference points to. Direct objects are
// returned unchanged.
func (d *Document) Resolve(obj Object) Object {
	ref, ok := obj.(RefObj)
	if !ok {
		return obj
	}
	return d.Objects[ref.Ref()]
}
