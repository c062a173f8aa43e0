// Package output serialises a frozen database into the columnar binary
// artifact the compiled schema's typed accessor codegen reads: one
// independently length-prefixed sequence per column, columns in
// declaration order, tables in schema declaration order. Each vector is
// an 8-byte little-endian element count followed by the elements
// themselves. Vectors follow one another with no other framing, so a
// reader reaches a column by decoding every column written before it.
package output

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/edendb/edendb/internal/materialize"
	"github.com/edendb/edendb/internal/reference"
	"github.com/edendb/edendb/internal/schema"
)

// vecKind is the on-the-wire element shape of one column's vector.
// Reference columns (REF / REF FOREIGN CHILD) always serialise as row
// pointers — dense unsigned indices into the referred table — regardless
// of the declared column type, so they share vecKind with INT.
type vecKind int

const (
	kindInt vecKind = iota
	kindFloat
	kindBool
	kindText
)

func kindOf(col *schema.Column) vecKind {
	if col.IsReference() {
		return kindInt
	}
	switch col.Type {
	case schema.Int:
		return kindInt
	case schema.Float:
		return kindFloat
	case schema.Bool:
		return kindBool
	default:
		return kindText
	}
}

// ColumnVector is one decoded (or about-to-be-encoded) column, holding
// exactly one of its four possible element slices depending on Kind.
type ColumnVector struct {
	Name  string
	Kind  vecKind
	Ints  []int64
	Float []float64
	Bools []bool
	Texts []string
}

func (v *ColumnVector) len() int {
	switch v.Kind {
	case kindInt:
		return len(v.Ints)
	case kindFloat:
		return len(v.Float)
	case kindBool:
		return len(v.Bools)
	default:
		return len(v.Texts)
	}
}

// TableColumns is one table's column vectors, in schema declaration
// order (GENERATED columns omitted — the materialiser never populates
// them, matching the predicate engine's same exclusion).
type TableColumns struct {
	Name    string
	Columns []ColumnVector
}

// Columnar is the decoded in-memory form of the binary artifact: every
// table's column vectors, in schema declaration order. It re-encodes
// byte-identically to however it was produced, which is what makes the
// serialise/deserialise/serialise round trip deterministic.
type Columnar struct {
	Tables []TableColumns
}

// Build walks a frozen, reference-resolved database and turns it into the
// columnar in-memory form Encode writes out. It must run after
// reference.Resolve has already validated every REF / REF FOREIGN CHILD
// column; Build re-derives each one's target row index using the same
// common-ancestor lookup rather than trusting an already-passing
// validation pass, since nothing upstream stores the resolved pointer
// back onto the row.
func Build(sch *schema.Schema, db *materialize.Database) (*Columnar, error) {
	out := &Columnar{Tables: make([]TableColumns, 0, len(sch.Order))}
	for _, name := range sch.Order {
		tbl := sch.Table(name)
		mt := db.Tables[name]

		tc := TableColumns{Name: name}
		for _, col := range tbl.Columns {
			if col.GeneratedExpr != nil {
				continue
			}
			vec, err := buildColumn(sch, db, tbl, col, mt)
			if err != nil {
				return nil, err
			}
			tc.Columns = append(tc.Columns, vec)
		}
		out.Tables = append(out.Tables, tc)
	}
	return out, nil
}

func buildColumn(sch *schema.Schema, db *materialize.Database, tbl *schema.Table, col *schema.Column, mt *materialize.Table) (ColumnVector, error) {
	vec := ColumnVector{Name: col.Name, Kind: kindOf(col)}
	switch vec.Kind {
	case kindInt:
		vec.Ints = make([]int64, len(mt.Rows))
		for i, row := range mt.Rows {
			if col.IsReference() {
				idx, err := reference.ResolveColumnIndex(sch, db, tbl, col, row)
				if err != nil {
					return ColumnVector{}, err
				}
				vec.Ints[i] = int64(idx)
				continue
			}
			vec.Ints[i] = row.Values[col.Name].I
		}
	case kindFloat:
		vec.Float = make([]float64, len(mt.Rows))
		for i, row := range mt.Rows {
			vec.Float[i] = row.Values[col.Name].F
		}
	case kindBool:
		vec.Bools = make([]bool, len(mt.Rows))
		for i, row := range mt.Rows {
			vec.Bools[i] = row.Values[col.Name].B
		}
	default:
		vec.Texts = make([]string, len(mt.Rows))
		for i, row := range mt.Rows {
			vec.Texts[i] = row.Values[col.Name].S
		}
	}
	return vec, nil
}

// Serialize builds the columnar form of db and encodes it to bytes in one
// step; this is the entry point the compile CLI and codegen use.
func Serialize(sch *schema.Schema, db *materialize.Database) ([]byte, error) {
	cols, err := Build(sch, db)
	if err != nil {
		return nil, err
	}
	return cols.Encode(), nil
}

// Encode writes every table's column vectors, in order, with no framing
// beyond each vector's own length prefix: no table header, no column
// name, no magic number. The tables-in-declaration-order and
// columns-in-declaration-order invariants are carried entirely by the
// schema the reader and writer both already agree on.
func (c *Columnar) Encode() []byte {
	buf := make([]byte, 0, 4096)
	for _, t := range c.Tables {
		for _, v := range t.Columns {
			buf = encodeVector(buf, v)
		}
	}
	return buf
}

func encodeVector(buf []byte, v ColumnVector) []byte {
	buf = appendU64(buf, uint64(v.len()))
	switch v.Kind {
	case kindInt:
		for _, n := range v.Ints {
			buf = appendU64(buf, uint64(n))
		}
	case kindFloat:
		for _, f := range v.Float {
			buf = appendU64(buf, math.Float64bits(f))
		}
	case kindBool:
		for _, b := range v.Bools {
			if b {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		}
	case kindText:
		for _, s := range v.Texts {
			buf = appendU64(buf, uint64(len(s)))
			buf = append(buf, s...)
		}
	}
	return buf
}

func appendU64(buf []byte, n uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], n)
	return append(buf, tmp[:]...)
}

// Decode reads the columnar artifact back according to sch's table and
// column declaration order — the same order Build/Encode wrote it in.
// Every vector is self-describing (its own length prefix), so Decode
// never has to guess a table's row count ahead of reading its first
// column.
func Decode(sch *schema.Schema, data []byte) (*Columnar, error) {
	r := &byteReader{buf: data}
	out := &Columnar{}
	for _, name := range sch.Order {
		tbl := sch.Table(name)
		tc := TableColumns{Name: name}
		for _, col := range tbl.Columns {
			if col.GeneratedExpr != nil {
				continue
			}
			vec, err := decodeVector(r, col)
			if err != nil {
				return nil, fmt.Errorf("decode %s.%s: %w", name, col.Name, err)
			}
			tc.Columns = append(tc.Columns, vec)
		}
		out.Tables = append(out.Tables, tc)
	}
	return out, nil
}

func decodeVector(r *byteReader, col *schema.Column) (ColumnVector, error) {
	kind := kindOf(col)
	n, err := r.readU64()
	if err != nil {
		return ColumnVector{}, err
	}
	vec := ColumnVector{Name: col.Name, Kind: kind}
	switch kind {
	case kindInt:
		vec.Ints = make([]int64, n)
		for i := range vec.Ints {
			v, err := r.readU64()
			if err != nil {
				return ColumnVector{}, err
			}
			vec.Ints[i] = int64(v)
		}
	case kindFloat:
		vec.Float = make([]float64, n)
		for i := range vec.Float {
			v, err := r.readU64()
			if err != nil {
				return ColumnVector{}, err
			}
			vec.Float[i] = math.Float64frombits(v)
		}
	case kindBool:
		vec.Bools = make([]bool, n)
		for i := range vec.Bools {
			b, err := r.readByte()
			if err != nil {
				return ColumnVector{}, err
			}
			vec.Bools[i] = b != 0
		}
	case kindText:
		vec.Texts = make([]string, n)
		for i := range vec.Texts {
			slen, err := r.readU64()
			if err != nil {
				return ColumnVector{}, err
			}
			s, err := r.readString(int(slen))
			if err != nil {
				return ColumnVector{}, err
			}
			vec.Texts[i] = s
		}
	}
	return vec, nil
}

// byteReader is a minimal cursor over the artifact's bytes; it exists so
// Decode can report an unambiguous truncation error instead of panicking
// on a short read.
type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) readU64() (uint64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, fmt.Errorf("truncated artifact: need 8 bytes at offset %d, have %d", r.pos, len(r.buf)-r.pos)
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *byteReader) readByte() (byte, error) {
	if r.pos+1 > len(r.buf) {
		return 0, fmt.Errorf("truncated artifact: need 1 byte at offset %d", r.pos)
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *byteReader) readString(n int) (string, error) {
	if r.pos+n > len(r.buf) {
		return "", fmt.Errorf("truncated artifact: need %d bytes at offset %d, have %d", n, r.pos, len(r.buf)-r.pos)
	}
	s := string(r.buf[r.pos : r.pos+n])
	r.pos += n
	return s, nil
}
