package writer

import (
	"bytes"
	"fmt"
)

// placeholderWidth is the number of digits reserved for every integer in
// the linearization parameter dictionary; it matches the xref offset width.
const placeholderWidth = 10

// region is a byte range of the output reserved before its content is
// known.
type region struct {
	name   string
	offset int
	size   int
}

// patchList records reserved regions of an output buffer and fills them
// once the final values exist.
type patchList struct {
	regions map[string]region
}

func newPatchList() *patchList {
	return &patchList{regions: make(map[string]region)}
}

// reserve appends placeholder to buf and remembers its position.
func (p *patchList) reserve(buf *bytes.Buffer, name string, placeholder []byte) {
	p.regions[name] = region{name: name, offset: buf.Len(), size: len(placeholder)}
	buf.Write(placeholder)
}

// apply overwrites the region called name. Shorter content is padded with
// spaces; longer content is an error.
func (p *patchList) apply(out []byte, name string, content []byte) error {
	r, ok := p.regions[name]
	if !ok {
		return fmt.Errorf("no region %q reserved", name)
	}
	if len(content) > r.size {
		return fmt.Errorf("%s: %d bytes for a %d byte region: %w", name, len(content), r.size, ErrPlaceholderOverflow)
	}
	n := copy(out[r.offset:r.offset+r.size], content)
	for i := r.offset + n; i < r.offset+r.size; i++ {
		out[i] = ' '
	}
	return nil
}
