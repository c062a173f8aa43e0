package edl

import (
	"fmt"
	"strings"

	"github.com/edendb/edendb/internal/dberr"
)

// scanner is a minimal hand-rolled character scanner. EDL mixes two
// registers in the same grammar: strict identifiers in TABLE/DEFAULTS/PROOF
// structure, and free-form whitespace-preserving text inside DATA values,
// CHECK/GENERATED AS expressions and PROOF SQL bodies. A single
// token-stream lexer fights that; a character scanner with a handful of
// mode-specific read methods does not.
type scanner struct {
	file string
	src  string
	pos  int
	line int
	col  int
}

func newScanner(file, src string) *scanner {
	return &scanner{file: file, src: src, line: 1, col: 1}
}

func (s *scanner) eof() bool { return s.pos >= len(s.src) }

func (s *scanner) peekByte() (byte, bool) {
	if s.eof() {
		return 0, false
	}
	return s.src[s.pos], true
}

func (s *scanner) pposition() Pos { return Pos{File: s.file, Line: s.line, Col: s.col} }

func (s *scanner) advance() {
	if s.eof() {
		return
	}
	if s.src[s.pos] == '\n' {
		s.line++
		s.col = 1
	} else {
		s.col++
	}
	s.pos++
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\r' || b == '\n' }

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isIdentCont(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9')
}

func (s *scanner) skipSpaces() {
	for !s.eof() && isSpace(s.src[s.pos]) {
		s.advance()
	}
}

// peekKeyword reports whether the upcoming token (after skipping leading
// whitespace already consumed by the caller) is exactly word, not merely a
// prefix of a longer identifier.
func (s *scanner) peekKeyword(word string) bool {
	if s.pos+len(word) > len(s.src) {
		return false
	}
	if s.src[s.pos:s.pos+len(word)] != word {
		return false
	}
	end := s.pos + len(word)
	if end < len(s.src) && isIdentCont(s.src[end]) {
		return false
	}
	return true
}

func (s *scanner) consumeKeyword(word string) {
	for range word {
		s.advance()
	}
}

func (s *scanner) expectKeyword(word string) error {
	s.skipSpaces()
	if !s.peekKeyword(word) {
		return s.errorf("expected keyword %q", word)
	}
	s.consumeKeyword(word)
	return nil
}

func (s *scanner) expectByte(b byte) error {
	s.skipSpaces()
	got, ok := s.peekByte()
	if !ok || got != b {
		return s.errorf("expected %q", string(b))
	}
	s.advance()
	return nil
}

func (s *scanner) errorf(format string, args ...any) error {
	return &dberr.ParseError{File: s.file, Line: s.line, Column: s.col, Message: fmt.Sprintf(format, args...)}
}

// readIdent reads a strict identifier: letters, digits and underscores,
// starting with a letter or underscore.
func (s *scanner) readIdent() (string, error) {
	s.skipSpaces()
	start := s.pos
	if s.eof() || !isIdentStart(s.src[s.pos]) {
		return "", s.errorf("expected identifier")
	}
	for !s.eof() && isIdentCont(s.src[s.pos]) {
		s.advance()
	}
	return s.src[start:s.pos], nil
}

// readQuotedString reads a '...' or "..." literal and returns its content;
// a backslash makes the character after it literal (so \" yields " and \\
// yields \, but \n also yields a plain n).
func (s *scanner) readQuotedString() (string, error) {
	s.skipSpaces()
	quote, ok := s.peekByte()
	if !ok || (quote != '"' && quote != '\'') {
		return "", s.errorf("expected string literal")
	}
	s.advance()
	var sb strings.Builder
	for {
		if s.eof() {
			return "", s.errorf("unterminated string literal")
		}
		c := s.src[s.pos]
		if c == '\\' && s.pos+1 < len(s.src) {
			s.advance()
			sb.WriteByte(s.src[s.pos])
			s.advance()
			continue
		}
		if c == quote {
			s.advance()
			break
		}
		sb.WriteByte(c)
		s.advance()
	}
	return sb.String(), nil
}

// readBalancedRaw assumes the current position is the opening delimiter
// open; it consumes the opening and matching closing delimiter and returns
// everything between them verbatim (whitespace untouched), tracking nested
// open/close pairs and skipping over quoted strings so braces inside a Lua
// or SQL string literal don't throw off the depth count.
func (s *scanner) readBalancedRaw(open, close byte) (string, error) {
	s.skipSpaces()
	got, ok := s.peekByte()
	if !ok || got != open {
		return "", s.errorf("expected %q", string(open))
	}
	s.advance()
	start := s.pos
	depth := 1
	for {
		if s.eof() {
			return "", s.errorf("unterminated block, expected closing %q", string(close))
		}
		c := s.src[s.pos]
		switch c {
		case '\'', '"':
			if _, err := s.readQuotedString(); err != nil {
				return "", err
			}
			continue
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				text := s.src[start:s.pos]
				s.advance()
				return text, nil
			}
		}
		s.advance()
	}
}

// readBareValue reads a DATA value: a run of text up to the next top-level
// ',', ';', '}' or the start of a "WITH <ident> {" clause. Quoted values are
// read verbatim (including internal whitespace); unquoted values are
// trimmed of surrounding whitespace, and each internal whitespace character
// (space, tab, CR or LF) becomes one space, so runs are not collapsed.
func (s *scanner) readBareValue() (string, error) {
	s.skipSpaces()
	if b, ok := s.peekByte(); ok && (b == '"' || b == '\'') {
		return s.readQuotedString()
	}

	var sb strings.Builder
	for {
		b, ok := s.peekByte()
		if !ok || b == ',' || b == ';' || b == '}' {
			break
		}
		if isSpace(b) {
			save := s.pos
			saveLine, saveCol := s.line, s.col
			s.skipSpaces()
			if s.peekKeyword("WITH") {
				afterWith := s.pos + len("WITH")
				rest := s.src[afterWith:]
				trimmed := strings.TrimLeft(rest, " \t\r\n")
				if len(trimmed) > 0 && isIdentStart(trimmed[0]) {
					break
				}
			}
			s.pos, s.line, s.col = save, saveLine, saveCol
			sb.WriteByte(' ')
			s.advance()
			continue
		}
		sb.WriteByte(b)
		s.advance()
	}
	return strings.TrimSpace(sb.String()), nil
}
