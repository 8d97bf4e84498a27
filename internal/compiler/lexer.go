package compiler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// tokenKind classifies a Candid text token.
type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokText
	tokNumber
	tokFloat
	tokPunct
	tokArrow
)

type token struct {
	kind tokenKind
	text string // identifier, decoded text literal, number or punctuation
	pos  int
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokText:
		return strconv.Quote(t.text)
	}
	return t.text
}

// SyntaxError reports a lexing or parsing failure with its byte offset.
type SyntaxError struct {
	Source  string
	Offset  int
	Message string
}

// IsIncomplete reports whether err is a syntax error caused by input that
// ended too early, so that more lines could complete it.
func IsIncomplete(err error) bool {
	var se *SyntaxError
	if !errors.As(err, &se) {
		return false
	}
	if strings.HasPrefix(se.Message, "unterminated") {
		return true
	}
	return se.Offset >= len(strings.TrimRight(se.Source, " \t\r\n"))
}

func (e *SyntaxError) Error() string {
	line, col := 1, 1
	for i, r := range e.Source {
		if i >= e.Offset {
			break
		}
		if r == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return fmt.Sprintf("%d:%d: %s", line, col, e.Message)
}

// lex splits Candid text into tokens. Comments are skipped.
func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	fail := func(off int, format string, args ...any) error {
		return &SyntaxError{Source: src, Offset: off, Message: fmt.Sprintf(format, args...)}
	}
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case strings.HasPrefix(src[i:], "//"):
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case strings.HasPrefix(src[i:], "/*"):
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return nil, fail(i, "unterminated comment")
			}
			i += end + 4
		case strings.HasPrefix(src[i:], "->"):
			toks = append(toks, token{kind: tokArrow, text: "->", pos: i})
			i += 2
		case strings.HasPrefix(src[i:], "=="), strings.HasPrefix(src[i:], "!="):
			toks = append(toks, token{kind: tokPunct, text: src[i : i+2], pos: i})
			i += 2
		case strings.ContainsRune("{}();:,=.?[]", rune(c)):
			toks = append(toks, token{kind: tokPunct, text: string(c), pos: i})
			i++
		case c == '"':
			s, n, err := lexText(src[i:])
			if err != nil {
				return nil, fail(i, "%v", err)
			}
			toks = append(toks, token{kind: tokText, text: s, pos: i})
			i += n
		case isDigit(c) || ((c == '-' || c == '+') && i+1 < len(src) && isDigit(src[i+1])):
			tok, n := lexNumber(src[i:])
			tok.pos = i
			toks = append(toks, tok)
			i += n
		case isIdentStart(c):
			start := i
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: src[start:i], pos: start})
		default:
			r, _ := utf8.DecodeRuneInString(src[i:])
			return nil, fail(i, "unexpected character %q", r)
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src)})
	return toks, nil
}

func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isIdentPart(c byte) bool  { return isIdentStart(c) || isDigit(c) }
func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func lexNumber(s string) (token, int) {
	i := 0
	if s[0] == '-' || s[0] == '+' {
		i++
	}
	if strings.HasPrefix(s[i:], "0x") || strings.HasPrefix(s[i:], "0X") {
		i += 2
		for i < len(s) && (isHexDigit(s[i]) || s[i] == '_') {
			i++
		}
		return token{kind: tokNumber, text: s[:i]}, i
	}
	for i < len(s) && (isDigit(s[i]) || s[i] == '_') {
		i++
	}
	kind := tokNumber
	if i < len(s) && s[i] == '.' && !(i+1 < len(s) && isIdentStart(s[i+1])) {
		kind = tokFloat
		i++
		for i < len(s) && (isDigit(s[i]) || s[i] == '_') {
			i++
		}
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '-' || s[j] == '+') {
			j++
		}
		if j < len(s) && isDigit(s[j]) {
			kind = tokFloat
			i = j
			for i < len(s) && isDigit(s[i]) {
				i++
			}
		}
	}
	return token{kind: kind, text: s[:i]}, i
}

// lexText decodes a quoted Candid string starting at s[0] == '"'.
// The result may hold arbitrary bytes when \xx escapes are used.
func lexText(s string) (string, int, error) {
	var b strings.Builder
	i := 1
	for i < len(s) {
		c := s[i]
		switch {
		case c == '"':
			return b.String(), i + 1, nil
		case c == '\\':
			if i+1 >= len(s) {
				return "", 0, fmt.Errorf("unterminated escape")
			}
			e := s[i+1]
			switch e {
			case 'n':
				b.WriteByte('\n')
				i += 2
			case 'r':
				b.WriteByte('\r')
				i += 2
			case 't':
				b.WriteByte('\t')
				i += 2
			case '\\', '"', '\'':
				b.WriteByte(e)
				i += 2
			case 'u':
				end := strings.IndexByte(s[i:], '}')
				if i+2 >= len(s) || s[i+2] != '{' || end < 0 {
					return "", 0, fmt.Errorf("invalid unicode escape")
				}
				code, err := strconv.ParseUint(strings.ReplaceAll(s[i+3:i+end], "_", ""), 16, 32)
				if err != nil || !utf8.ValidRune(rune(code)) {
					return "", 0, fmt.Errorf("invalid unicode escape %q", s[i:i+end+1])
				}
				b.WriteRune(rune(code))
				i += end + 1
			default:
				if i+2 < len(s) && isHexDigit(s[i+1]) && isHexDigit(s[i+2]) {
					v, _ := strconv.ParseUint(s[i+1:i+3], 16, 8)
					b.WriteByte(byte(v))
					i += 3
					continue
				}
				return "", 0, fmt.Errorf("unknown escape \\%c", e)
			}
		default:
			b.WriteByte(c)
			i++
		}
	}
	return "", 0, fmt.Errorf("unterminated text literal")
}

// parser is a cursor over tokens shared by the type and value grammars.
type parser struct {
	src     string
	toks    []token
	pos     int
	pending []pendingAlias
	// script admits variables, calls and function applications where a
	// value is expected.
	script bool
}

func newParser(src string) (*parser, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	return &parser{src: src, toks: toks}, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) peekAt(n int) token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Source: p.src, Offset: p.peek().pos, Message: fmt.Sprintf(format, args...)}
}

// isPunct reports whether the next token is the punctuation s.
func (p *parser) isPunct(s string) bool {
	t := p.peek()
	return (t.kind == tokPunct || t.kind == tokArrow) && t.text == s
}

func (p *parser) isKeyword(s string) bool {
	t := p.peek()
	return t.kind == tokIdent && t.text == s
}

func (p *parser) accept(s string) bool {
	if p.isPunct(s) || p.isKeyword(s) {
		p.next()
		return true
	}
	return false
}

func (p *parser) expect(s string) error {
	if !p.accept(s) {
		return p.errorf("expected %q, found %s", s, p.peek())
	}
	return nil
}

func (p *parser) expectEOF() error {
	if p.peek().kind != tokEOF {
		return p.errorf("unexpected %s", p.peek())
	}
	return nil
}
