package scanner

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"unicode"

	"github.com/wudi/pdflinear/ir/raw"
)

type TokenType int

const (
	TokenDict    TokenType = iota // '<<'
	TokenArray                    // '['
	TokenName                     // '/Name'
	TokenString                   // literal or hex string
	TokenNumber                   // numeric value
	TokenBoolean                  // true/false
	TokenNull                     // null
	TokenRef                      // indirect ref '5 0 R'
	TokenStream                   // 'stream' keyword with its payload
	TokenKeyword                  // other keywords (obj, endobj, >>, ], etc.)
)

type Token struct {
	Type  TokenType
	Pos   int64
	Str   string // name or keyword
	Bytes []byte // string or stream payload
	Hex   bool
	Int   int64
	Float float64
	IsInt bool
	Bool  bool
	Ref   raw.ObjectRef
}

type Scanner interface {
	Next() (Token, error)
	Position() int64
	Seek(offset int64) error
	// SetNextStreamLength tells the scanner how many bytes the next stream
	// holds. Without it the payload runs up to the next endstream keyword.
	SetNextStreamLength(n int64)
}

type Config struct {
	MaxStringLength int64
	MaxStreamLength int64
}

var (
	ErrStringTooLong = errors.New("string too long")
	ErrStreamTooLong = errors.New("stream too long")
	ErrStreamEOL     = errors.New("stream missing EOL before data")
)

type pdfScanner struct {
	data          []byte
	pos           int64
	cfg           Config
	nextStreamLen int64
}

// New returns a scanner over data, positioned at its start.
func New(data []byte, cfg Config) Scanner {
	return &pdfScanner{data: data, cfg: cfg, nextStreamLen: -1}
}

func (s *pdfScanner) Position() int64 { return s.pos }

func (s *pdfScanner) Seek(offset int64) error {
	if offset < 0 || offset > int64(len(s.data)) {
		return errors.New("seek out of range")
	}
	s.pos = offset
	return nil
}

func (s *pdfScanner) SetNextStreamLength(n int64) { s.nextStreamLen = n }

func (s *pdfScanner) Next() (Token, error) {
	s.skipWSAndComments()
	if s.pos >= int64(len(s.data)) {
		return Token{}, io.EOF
	}
	start := s.pos
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.peek(1) == '<' {
			s.pos += 2
			return Token{Type: TokenDict, Str: "<<", Pos: start}, nil
		}
		return s.scanHexString()
	case '>':
		if s.peek(1) == '>' {
			s.pos += 2
			return Token{Type: TokenKeyword, Str: ">>", Pos: start}, nil
		}
		s.pos++
		return Token{Type: TokenKeyword, Str: ">", Pos: start}, nil
	case '[':
		s.pos++
		return Token{Type: TokenArray, Str: "[", Pos: start}, nil
	case ']':
		s.pos++
		return Token{Type: TokenKeyword, Str: "]", Pos: start}, nil
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName(), nil
	}
	if isDigitStart(c) {
		return s.scanNumberOrRef()
	}
	if isAlpha(c) {
		return s.scanKeyword()
	}
	s.pos++
	return Token{Type: TokenKeyword, Str: string(c), Pos: start}, nil
}

func (s *pdfScanner) skipWSAndComments() {
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < int64(len(s.data)) && !isEOL(s.data[s.pos]) {
				s.pos++
			}
			continue
		}
		return
	}
}

func (s *pdfScanner) peek(n int64) byte {
	if s.pos+n >= int64(len(s.data)) {
		return 0
	}
	return s.data[s.pos+n]
}

func (s *pdfScanner) scanName() Token {
	start := s.pos
	s.pos++ // skip '/'
	var out bytes.Buffer
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isDelimiter(c) {
			break
		}
		if c == '#' && s.pos+2 < int64(len(s.data)) {
			out.WriteByte(fromHex(s.data[s.pos+1])<<4 | fromHex(s.data[s.pos+2]))
			s.pos += 3
			continue
		}
		out.WriteByte(c)
		s.pos++
	}
	return Token{Type: TokenName, Str: out.String(), Pos: start}
}

func (s *pdfScanner) scanLiteralString() (Token, error) {
	start := s.pos
	s.pos++ // skip '('
	var buf bytes.Buffer
	depth := 1
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '\\':
			if s.pos >= int64(len(s.data)) {
				break
			}
			esc := s.data[s.pos]
			s.pos++
			switch {
			case esc == '\r':
				if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
					s.pos++
				}
			case esc == '\n':
			case esc >= '0' && esc <= '7':
				val := int(esc - '0')
				for k := 0; k < 2 && s.pos < int64(len(s.data)); k++ {
					d := s.data[s.pos]
					if d < '0' || d > '7' {
						break
					}
					val = val<<3 + int(d-'0')
					s.pos++
				}
				buf.WriteByte(byte(val))
			default:
				buf.WriteByte(translateEscape(esc))
			}
			continue
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return Token{Type: TokenString, Bytes: buf.Bytes(), Pos: start}, nil
			}
		}
		buf.WriteByte(c)
		if s.cfg.MaxStringLength > 0 && int64(buf.Len()) > s.cfg.MaxStringLength {
			return Token{}, ErrStringTooLong
		}
	}
	return Token{}, errors.New("unterminated literal string")
}

func (s *pdfScanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++ // skip '<'
	var hexbuf []byte
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			if len(hexbuf)%2 == 1 {
				hexbuf = append(hexbuf, '0')
			}
			if s.cfg.MaxStringLength > 0 && int64(len(hexbuf)/2) > s.cfg.MaxStringLength {
				return Token{}, ErrStringTooLong
			}
			out := make([]byte, 0, len(hexbuf)/2)
			for i := 0; i < len(hexbuf); i += 2 {
				out = append(out, fromHex(hexbuf[i])<<4|fromHex(hexbuf[i+1]))
			}
			return Token{Type: TokenString, Bytes: out, Hex: true, Pos: start}, nil
		}
		if !isWhitespace(c) {
			hexbuf = append(hexbuf, c)
		}
	}
	return Token{}, errors.New("unterminated hex string")
}

func (s *pdfScanner) scanKeyword() (Token, error) {
	start := s.pos
	for s.pos < int64(len(s.data)) && !isDelimiter(s.data[s.pos]) {
		s.pos++
	}
	kw := string(s.data[start:s.pos])
	switch kw {
	case "true", "false":
		return Token{Type: TokenBoolean, Bool: kw == "true", Pos: start}, nil
	case "null":
		return Token{Type: TokenNull, Pos: start}, nil
	case "stream":
		return s.scanStream(start)
	}
	return Token{Type: TokenKeyword, Str: kw, Pos: start}, nil
}

// scanStream reads the payload following the stream keyword and consumes
// the endstream keyword.
func (s *pdfScanner) scanStream(start int64) (Token, error) {
	switch {
	case s.pos < int64(len(s.data)) && s.data[s.pos] == '\r':
		s.pos++
		if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
			s.pos++
		}
	case s.pos < int64(len(s.data)) && s.data[s.pos] == '\n':
		s.pos++
	default:
		return Token{}, ErrStreamEOL
	}
	dataStart := s.pos
	needle := []byte("endstream")

	if n := s.nextStreamLen; n >= 0 {
		s.nextStreamLen = -1
		if s.cfg.MaxStreamLength > 0 && n > s.cfg.MaxStreamLength {
			return Token{}, ErrStreamTooLong
		}
		if dataStart+n > int64(len(s.data)) {
			return Token{}, errors.New("stream ended before declared length")
		}
		payload := s.data[dataStart : dataStart+n]
		s.pos = dataStart + n
		s.skipWSAndComments()
		if !bytes.HasPrefix(s.data[s.pos:], needle) {
			return Token{}, errors.New("endstream not found after declared length")
		}
		s.pos += int64(len(needle))
		return Token{Type: TokenStream, Bytes: payload, Pos: start}, nil
	}

	idx := bytes.Index(s.data[dataStart:], needle)
	if idx < 0 {
		return Token{}, errors.New("endstream not found")
	}
	end := dataStart + int64(idx)
	if end > dataStart && s.data[end-1] == '\n' {
		end--
	}
	if end > dataStart && s.data[end-1] == '\r' {
		end--
	}
	if s.cfg.MaxStreamLength > 0 && end-dataStart > s.cfg.MaxStreamLength {
		return Token{}, ErrStreamTooLong
	}
	s.pos = dataStart + int64(idx+len(needle))
	return Token{Type: TokenStream, Bytes: s.data[dataStart:end], Pos: start}, nil
}

func (s *pdfScanner) scanNumberOrRef() (Token, error) {
	start := s.pos
	num1 := s.scanNumberString()
	if num1 == "" {
		s.pos++
		return Token{Type: TokenKeyword, Str: string(s.data[start]), Pos: start}, nil
	}

	afterFirst := s.pos
	s.skipWSAndComments()
	if num2 := s.scanNumberString(); num2 != "" {
		s.skipWSAndComments()
		if s.pos < int64(len(s.data)) && s.data[s.pos] == 'R' && (s.pos+1 == int64(len(s.data)) || isDelimiter(s.data[s.pos+1])) {
			n1, err1 := strconv.Atoi(num1)
			n2, err2 := strconv.Atoi(num2)
			if err1 == nil && err2 == nil {
				s.pos++
				return Token{Type: TokenRef, Ref: raw.ObjectRef{Num: n1, Gen: n2}, Pos: start}, nil
			}
		}
	}
	// not a reference; the second number is read by the next call
	s.pos = afterFirst

	if i, err := strconv.ParseInt(num1, 10, 64); err == nil {
		return Token{Type: TokenNumber, Int: i, Float: float64(i), IsInt: true, Pos: start}, nil
	}
	f, err := strconv.ParseFloat(num1, 64)
	if err != nil {
		return Token{}, err
	}
	return Token{Type: TokenNumber, Float: f, Pos: start}, nil
}

func (s *pdfScanner) scanNumberString() string {
	start := s.pos
	seenDigit := false
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if !isDigitStart(c) {
			break
		}
		if c >= '0' && c <= '9' {
			seenDigit = true
		}
		s.pos++
	}
	if !seenDigit {
		s.pos = start
		return ""
	}
	return string(s.data[start:s.pos])
}

func isDigitStart(c byte) bool { return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') }
func isAlpha(c byte) bool      { return unicode.IsLetter(rune(c)) }

func isWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}

func isEOL(c byte) bool { return c == '\r' || c == '\n' }

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	default:
		return isWhitespace(c)
	}
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return 0
	}
}

func translateEscape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	default:
		return c
	}
}
