package edl

import (
	"os"
	"path/filepath"
	"strings"
)

// InputSource is one unit of EDL source text: either embedded Contents or
// a Path to read from disk, plus an optional SourceDir used for the
// SOURCE_DIR constant exposed to any Lua this source includes inline.
type InputSource struct {
	Contents  *string
	Path      string
	SourceDir *string
}

// ParseSources parses every source in order and concatenates their parse
// trees, preserving declaration order within and across sources — the order
// every later phase relies on.
func ParseSources(sources []InputSource) (*File, error) {
	out := &File{}
	for _, src := range sources {
		text := ""
		if src.Contents != nil {
			text = *src.Contents
		} else {
			b, err := os.ReadFile(src.Path)
			if err != nil {
				return nil, err
			}
			text = string(b)
		}
		f, err := parseOne(src.Path, text)
		if err != nil {
			return nil, err
		}
		if src.SourceDir != nil {
			for _, inc := range f.Includes {
				if inc.Inline != nil {
					inc.SourceDir = *src.SourceDir
				}
			}
		}
		out.Tables = append(out.Tables, f.Tables...)
		out.Data = append(out.Data, f.Data...)
		out.Defaults = append(out.Defaults, f.Defaults...)
		out.Includes = append(out.Includes, f.Includes...)
		out.Proofs = append(out.Proofs, f.Proofs...)
	}
	return out, nil
}

func parseOne(file, text string) (*File, error) {
	s := newScanner(file, text)
	f := &File{}
	for {
		s.skipSpaces()
		if s.eof() {
			break
		}
		switch {
		case s.peekKeyword("TABLE"):
			t, err := parseTable(s)
			if err != nil {
				return nil, err
			}
			f.Tables = append(f.Tables, t)
		case s.peekKeyword("DATA"):
			d, err := parseData(s)
			if err != nil {
				return nil, err
			}
			f.Data = append(f.Data, d)
		case s.peekKeyword("DEFAULTS"):
			d, err := parseDefaults(s)
			if err != nil {
				return nil, err
			}
			f.Defaults = append(f.Defaults, d)
		case s.peekKeyword("INCLUDE"):
			inc, err := parseInclude(s)
			if err != nil {
				return nil, err
			}
			f.Includes = append(f.Includes, inc)
		case s.peekKeyword("PROOF"):
			p, err := parseProof(s)
			if err != nil {
				return nil, err
			}
			f.Proofs = append(f.Proofs, p)
		default:
			return nil, s.errorf("unexpected input, expected TABLE, DATA, DEFAULTS, INCLUDE or PROOF")
		}
	}
	return f, nil
}

func parseTable(s *scanner) (*TableDecl, error) {
	pos := s.pposition()
	s.consumeKeyword("TABLE")
	name, err := s.readIdent()
	if err != nil {
		return nil, err
	}
	if err := s.expectByte('{'); err != nil {
		return nil, err
	}

	t := &TableDecl{Name: name, Pos: pos}
	for {
		s.skipSpaces()
		if b, ok := s.peekByte(); ok && b == '}' {
			s.advance()
			break
		}
		switch {
		case s.peekKeyword("UNIQUE"):
			s.consumeKeyword("UNIQUE")
			if err := s.expectByte('('); err != nil {
				return nil, err
			}
			var cols []string
			for {
				s.skipSpaces()
				if b, ok := s.peekByte(); ok && b == ')' {
					s.advance()
					break
				}
				col, err := s.readIdent()
				if err != nil {
					return nil, err
				}
				cols = append(cols, col)
				s.skipSpaces()
				if b, ok := s.peekByte(); ok && b == ',' {
					s.advance()
					continue
				}
				if err := s.expectByte(')'); err != nil {
					return nil, err
				}
				break
			}
			t.Uniques = append(t.Uniques, cols)
		case s.peekKeyword("CHECK"):
			checkPos := s.pposition()
			s.consumeKeyword("CHECK")
			expr, err := s.readBalancedRaw('{', '}')
			if err != nil {
				return nil, err
			}
			t.Checks = append(t.Checks, &CheckDecl{Expression: expr, Pos: checkPos})
		default:
			col, err := parseColumn(s)
			if err != nil {
				return nil, err
			}
			t.Columns = append(t.Columns, col)
		}
		s.skipSpaces()
		if b, ok := s.peekByte(); ok && b == ',' {
			s.advance()
			continue
		}
		if err := s.expectByte('}'); err != nil {
			return nil, err
		}
		break
	}
	return t, nil
}

func parseColumn(s *scanner) (*ColumnDecl, error) {
	pos := s.pposition()
	name, err := s.readIdent()
	if err != nil {
		return nil, err
	}
	s.skipSpaces()
	if b, ok := s.peekByte(); ok && b == ':' {
		return nil, s.errorf("unexpected %q after column name %q; bare \"name TYPE\" form is required", ":", name)
	}
	col := &ColumnDecl{Name: name, Pos: pos}
	// A REF / REF FOREIGN CHILD column carries no declared type of its own:
	// its type is inferred later from what it refers to (the referred
	// table's key column, or TEXT for a dotted child-path reference).
	if !s.peekKeyword("REF") {
		typ, err := s.readIdent()
		if err != nil {
			return nil, err
		}
		col.Type = strings.ToUpper(typ)
	}

	for {
		s.skipSpaces()
		switch {
		case s.peekKeyword("PRIMARY"):
			s.consumeKeyword("PRIMARY")
			if err := s.expectKeyword("KEY"); err != nil {
				return nil, err
			}
			col.PrimaryKey = true
		case s.peekKeyword("CHILD"):
			s.consumeKeyword("CHILD")
			if err := s.expectKeyword("OF"); err != nil {
				return nil, err
			}
			parent, err := s.readIdent()
			if err != nil {
				return nil, err
			}
			col.ChildOf = parent
		case s.peekKeyword("REF"):
			s.consumeKeyword("REF")
			s.skipSpaces()
			if s.peekKeyword("FOREIGN") {
				s.consumeKeyword("FOREIGN")
				if err := s.expectKeyword("CHILD"); err != nil {
					return nil, err
				}
				tbl, err := s.readIdent()
				if err != nil {
					return nil, err
				}
				col.RefForeignChildTable = tbl
			} else {
				tbl, err := s.readIdent()
				if err != nil {
					return nil, err
				}
				col.RefTable = tbl
			}
		case s.peekKeyword("DETACHED"):
			s.consumeKeyword("DETACHED")
			if err := s.expectKeyword("DEFAULT"); err != nil {
				return nil, err
			}
			col.DetachedDefault = true
		case s.peekKeyword("GENERATED"):
			s.consumeKeyword("GENERATED")
			if err := s.expectKeyword("AS"); err != nil {
				return nil, err
			}
			expr, err := s.readBalancedRaw('{', '}')
			if err != nil {
				return nil, err
			}
			col.GeneratedExpr = &expr
		default:
			return col, nil
		}
	}
}

func parseData(s *scanner) (*DataDecl, error) {
	pos := s.pposition()
	s.consumeKeyword("DATA")
	d := &DataDecl{Pos: pos}
	for {
		s.skipSpaces()
		switch {
		case s.peekKeyword("STRUCT"):
			s.consumeKeyword("STRUCT")
			d.Struct = true
		case s.peekKeyword("EXCLUSIVE"):
			s.consumeKeyword("EXCLUSIVE")
			d.Exclusive = true
		default:
			name, err := s.readIdent()
			if err != nil {
				return nil, err
			}
			d.Table = name
			if err := s.expectByte('{'); err != nil {
				return nil, err
			}
			rows, err := parseRows(s, d.Struct)
			if err != nil {
				return nil, err
			}
			d.Rows = rows
			return d, nil
		}
	}
}

func parseRows(s *scanner, structured bool) ([]*DataRow, error) {
	var rows []*DataRow
	for {
		s.skipSpaces()
		if b, ok := s.peekByte(); ok && b == '}' {
			s.advance()
			break
		}
		row, err := parseRow(s, structured)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
		s.skipSpaces()
		if b, ok := s.peekByte(); ok && b == ';' {
			s.advance()
			continue
		}
	}
	return rows, nil
}

func parseRow(s *scanner, structured bool) (*DataRow, error) {
	pos := s.pposition()
	row := &DataRow{Pos: pos}
	if structured {
		row.Fields = map[string]string{}
		for {
			s.skipSpaces()
			if b, ok := s.peekByte(); ok && (b == '}' || b == ';') {
				break
			}
			name, err := s.readIdent()
			if err != nil {
				return nil, err
			}
			if err := s.expectByte(':'); err != nil {
				return nil, err
			}
			val, err := s.readBareValue()
			if err != nil {
				return nil, err
			}
			row.Fields[name] = val
			s.skipSpaces()
			if b, ok := s.peekByte(); ok && b == ',' {
				s.advance()
				continue
			}
			break
		}
	} else {
		for {
			s.skipSpaces()
			if b, ok := s.peekByte(); ok && (b == '}' || b == ';') {
				break
			}
			val, err := s.readBareValue()
			if err != nil {
				return nil, err
			}
			row.Values = append(row.Values, val)
			s.skipSpaces()
			if b, ok := s.peekByte(); ok && b == ',' {
				s.advance()
				continue
			}
			break
		}
	}

	for {
		s.skipSpaces()
		if !s.peekKeyword("WITH") {
			break
		}
		s.consumeKeyword("WITH")
		child, err := s.readIdent()
		if err != nil {
			return nil, err
		}
		if err := s.expectByte('{'); err != nil {
			return nil, err
		}
		childRows, err := parseRows(s, structured)
		if err != nil {
			return nil, err
		}
		row.With = append(row.With, &DataDecl{Table: child, Struct: structured, Rows: childRows})
	}
	return row, nil
}

func parseDefaults(s *scanner) (*DefaultsDecl, error) {
	pos := s.pposition()
	s.consumeKeyword("DEFAULTS")
	if err := s.expectByte('{'); err != nil {
		return nil, err
	}
	d := &DefaultsDecl{Pos: pos}
	for {
		s.skipSpaces()
		if b, ok := s.peekByte(); ok && b == '}' {
			s.advance()
			break
		}
		apos := s.pposition()
		tbl, err := s.readIdent()
		if err != nil {
			return nil, err
		}
		if err := s.expectByte('.'); err != nil {
			return nil, err
		}
		col, err := s.readIdent()
		if err != nil {
			return nil, err
		}
		val, err := s.readBareValue()
		if err != nil {
			return nil, err
		}
		d.Assignments = append(d.Assignments, &DefaultAssignment{Table: tbl, Column: col, Value: val, Pos: apos})
		s.skipSpaces()
		if b, ok := s.peekByte(); ok && b == ',' {
			s.advance()
			continue
		}
	}
	return d, nil
}

func parseInclude(s *scanner) (*IncludeLuaDecl, error) {
	pos := s.pposition()
	s.consumeKeyword("INCLUDE")
	if err := s.expectKeyword("LUA"); err != nil {
		return nil, err
	}
	s.skipSpaces()
	if b, ok := s.peekByte(); ok && (b == '"' || b == '\'') {
		path, err := s.readQuotedString()
		if err != nil {
			return nil, err
		}
		return &IncludeLuaDecl{Path: &path, Pos: pos}, nil
	}
	src, err := s.readBalancedRaw('{', '}')
	if err != nil {
		return nil, err
	}
	return &IncludeLuaDecl{Inline: &src, Pos: pos}, nil
}

func parseProof(s *scanner) (*ProofDecl, error) {
	pos := s.pposition()
	s.consumeKeyword("PROOF")
	comment, err := s.readQuotedString()
	if err != nil {
		return nil, err
	}
	if err := s.expectKeyword("NONE"); err != nil {
		return nil, err
	}
	if err := s.expectKeyword("EXIST"); err != nil {
		return nil, err
	}
	if err := s.expectKeyword("OF"); err != nil {
		return nil, err
	}
	table, err := s.readIdent()
	if err != nil {
		return nil, err
	}
	sql, err := s.readBalancedRaw('{', '}')
	if err != nil {
		return nil, err
	}
	return &ProofDecl{Comment: comment, Table: table, SQL: sql, Pos: pos}, nil
}

// ResolveIncludeSourceDir returns the directory part of an INCLUDE LUA
// "path" as written (a relative path yields a relative directory). The
// SOURCE_DIR that script.Runtime.RunFile exposes is the absolute form of
// that directory.
func ResolveIncludeSourceDir(path string) string {
	return filepath.Dir(path)
}
