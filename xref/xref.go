package xref

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/wudi/pdflinear/recovery"
)

var (
	ErrNoStartXRef = errors.New("startxref not found")
	ErrNoXRef      = errors.New("xref keyword not found at offset")
	// ErrSizeMismatch is returned when the trailer /Size does not exceed
	// every object number in the table.
	ErrSizeMismatch = errors.New("trailer size smaller than object count")
)

// defaultMaxDepth bounds the /Prev chain.
const defaultMaxDepth = 32

// Table holds object offsets for a classic xref table.
type Table interface {
	Lookup(objNum int) (offset int64, gen int, found bool)
	Objects() []int
	Type() string
	// Offset is the byte offset of the section's xref keyword, or -1 for
	// a reconstructed table.
	Offset() int64
	Trailer() Trailer
}

// Trailer holds the integer and reference entries of a trailer
// dictionary. References are stored by object number.
type Trailer map[string]int64

// Int returns the trailer entry key.
func (t Trailer) Int(key string) (int64, bool) {
	v, ok := t[key]
	return v, ok
}

// Resolver locates and parses xref information in a PDF.
type Resolver interface {
	Resolve(ctx context.Context, r io.ReaderAt) (Table, error)
	// Linearized reports whether the first object of the last resolved
	// file is a linearization parameter dictionary.
	Linearized() bool
	// Incremental returns the sections reached through /Prev, newest
	// first.
	Incremental() []Table
	Trailer() Trailer
}

type ResolverConfig struct {
	MaxXRefDepth int
	Recovery     recovery.Strategy
}

// NewResolver returns a classic-table resolver that follows /Prev chains.
func NewResolver(cfg ResolverConfig) Resolver {
	if cfg.MaxXRefDepth <= 0 {
		cfg.MaxXRefDepth = defaultMaxDepth
	}
	return &tableResolver{cfg: cfg}
}

type tableResolver struct {
	cfg         ResolverConfig
	linearized  bool
	incremental []Table
	trailer     Trailer
}

func (t *tableResolver) Resolve(ctx context.Context, r io.ReaderAt) (Table, error) {
	data := readAll(r)
	t.linearized = isLinearized(data)
	t.incremental = nil

	merged, err := t.resolveChain(ctx, data)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return t.recover(ctx, data, err)
	}
	t.trailer = merged.trailer
	return merged, nil
}

func (t *tableResolver) resolveChain(ctx context.Context, data []byte) (*table, error) {
	offset, err := startXRef(data)
	if err != nil {
		return nil, err
	}

	var sections []*table
	seen := make(map[int64]bool)
	for depth := 0; offset > 0 && depth < t.cfg.MaxXRefDepth; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if seen[offset] {
			return nil, fmt.Errorf("xref /Prev loop at %d", offset)
		}
		seen[offset] = true
		sec, err := parseSection(data, offset)
		if err != nil {
			return nil, err
		}
		sections = append(sections, sec)
		offset = sec.trailer["Prev"]
	}

	merged := &table{entries: make(map[int]entry), offset: sections[0].offset, trailer: sections[0].trailer}
	for i := len(sections) - 1; i >= 0; i-- {
		for num, e := range sections[i].entries {
			merged.entries[num] = e
		}
	}
	if size, ok := merged.trailer["Size"]; ok {
		for num := range merged.entries {
			if int64(num) >= size {
				return nil, fmt.Errorf("object %d with /Size %d: %w", num, size, ErrSizeMismatch)
			}
		}
	}
	for _, sec := range sections[1:] {
		t.incremental = append(t.incremental, sec)
	}
	return merged, nil
}

func (t *tableResolver) recover(ctx context.Context, data []byte, cause error) (Table, error) {
	if t.cfg.Recovery == nil {
		return nil, cause
	}
	action := t.cfg.Recovery.OnError(ctx, cause, recovery.Location{Component: "xref"})
	if action != recovery.ActionFix && action != recovery.ActionWarn {
		return nil, cause
	}
	tbl, err := repair(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%w (repair: %v)", cause, err)
	}
	t.trailer = tbl.trailer
	return tbl, nil
}

func (t *tableResolver) Linearized() bool     { return t.linearized }
func (t *tableResolver) Incremental() []Table { return t.incremental }
func (t *tableResolver) Trailer() Trailer     { return t.trailer }

func startXRef(data []byte) (int64, error) {
	startxref := bytes.LastIndex(data, []byte("startxref"))
	if startxref < 0 {
		return 0, ErrNoStartXRef
	}
	rest := data[startxref+len("startxref"):]
	lines := bufio.NewScanner(bytes.NewReader(rest))
	var offset int64
	for lines.Scan() {
		text := strings.TrimSpace(lines.Text())
		if text == "" {
			continue
		}
		val, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse startxref: %w", err)
		}
		offset = val
		break
	}
	if offset <= 0 || offset >= int64(len(data)) {
		return 0, fmt.Errorf("xref offset out of range: %d", offset)
	}
	return offset, nil
}

// parseSection reads the xref section at offset and its trailer.
func parseSection(data []byte, offset int64) (*table, error) {
	if offset <= 0 || offset >= int64(len(data)) {
		return nil, fmt.Errorf("xref offset out of range: %d", offset)
	}
	sc := bufio.NewScanner(bytes.NewReader(data[offset:]))
	if !sc.Scan() || strings.TrimSpace(sc.Text()) != "xref" {
		return nil, fmt.Errorf("at %d: %w", offset, ErrNoXRef)
	}

	entries := make(map[int]entry)
	var trailerText strings.Builder
	inTrailer, depth := false, 0
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if inTrailer {
			// the trailer ends with its dictionary; objects may follow
			if strings.HasPrefix(line, "startxref") {
				break
			}
			trailerText.WriteString(line)
			trailerText.WriteByte('\n')
			depth += strings.Count(line, "<<") - strings.Count(line, ">>")
			if depth <= 0 && strings.Contains(trailerText.String(), ">>") {
				break
			}
			continue
		}
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "trailer") {
			inTrailer = true
			rest := strings.TrimPrefix(line, "trailer")
			trailerText.WriteString(rest)
			depth = strings.Count(rest, "<<") - strings.Count(rest, ">>")
			if depth <= 0 && strings.Contains(rest, ">>") {
				break
			}
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid xref subsection header: %q", line)
		}
		startObj, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("parse xref start: %w", err)
		}
		count, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("parse xref count: %w", err)
		}

		for i := 0; i < count; i++ {
			if !sc.Scan() {
				return nil, errors.New("unexpected end of xref section")
			}
			entryLine := strings.TrimSpace(sc.Text())
			fields := strings.Fields(entryLine)
			if len(fields) < 3 {
				return nil, fmt.Errorf("invalid xref entry: %q", entryLine)
			}
			off, err := strconv.ParseInt(fields[0], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse xref offset: %w", err)
			}
			gen, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("parse xref gen: %w", err)
			}
			if len(fields[2]) == 0 || fields[2][0] != 'n' {
				continue // free entry
			}
			entries[startObj+i] = entry{offset: off, gen: gen}
		}
	}
	if !inTrailer {
		return nil, fmt.Errorf("xref section at %d has no trailer", offset)
	}
	return &table{entries: entries, offset: offset, trailer: parseTrailer([]byte(trailerText.String()))}, nil
}

var trailerEntry = regexp.MustCompile(`/([A-Za-z]+)\s+(\d+)`)

// parseTrailer keeps the integer-valued entries of a trailer dictionary.
// For an indirect reference the object number is kept.
func parseTrailer(text []byte) Trailer {
	tr := make(Trailer)
	for _, m := range trailerEntry.FindAllSubmatch(text, -1) {
		v, err := strconv.ParseInt(string(m[2]), 10, 64)
		if err != nil {
			continue
		}
		tr[string(m[1])] = v
	}
	return tr
}

// isLinearized reports whether the first object of the file carries
// /Linearized. Only the first kilobyte is examined.
func isLinearized(data []byte) bool {
	head := data[:min(len(data), 1024)]
	objAt := bytes.Index(head, []byte(" obj"))
	if objAt < 0 {
		return false
	}
	end := bytes.Index(head[objAt:], []byte("endobj"))
	if end < 0 {
		return false
	}
	return bytes.Contains(head[objAt:objAt+end], []byte("/Linearized"))
}

type entry struct {
	offset int64
	gen    int
}

type table struct {
	entries map[int]entry
	offset  int64
	trailer Trailer
	typ     string
}

func (t *table) Lookup(objNum int) (int64, int, bool) {
	e, ok := t.entries[objNum]
	if !ok {
		return 0, 0, false
	}
	return e.offset, e.gen, true
}

func (t *table) Objects() []int {
	out := make([]int, 0, len(t.entries))
	for k := range t.entries {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func (t *table) Type() string {
	if t.typ != "" {
		return t.typ
	}
	return "table"
}

func (t *table) Offset() int64    { return t.offset }
func (t *table) Trailer() Trailer { return t.trailer }

func readAll(r io.ReaderAt) []byte {
	var buf bytes.Buffer
	const chunk = int64(32 * 1024)
	for off := int64(0); ; off += chunk {
		tmp := make([]byte, chunk)
		n, err := r.ReadAt(tmp, off)
		if n > 0 {
			buf.Write(tmp[:n])
		}
		if err != nil {
			break
		}
		if int64(n) < chunk {
			break
		}
	}
	return buf.Bytes()
}
