// Package schema holds the immutable, resolved schema: tables, columns,
// parent chains and effective key tuples. It is built once from an
// internal/edl.File by Resolve and never mutated afterwards.
package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/edendb/edendb/internal/dberr"
)

// DBType is one of the four value kinds EDL columns may hold.
type DBType string

const (
	Int   DBType = "INT"
	Float DBType = "FLOAT"
	Bool  DBType = "BOOL"
	Text  DBType = "TEXT"
)

// ParseDBType validates a textual type name from the parse tree.
func ParseDBType(raw string) (DBType, error) {
	switch strings.ToUpper(raw) {
	case "INT":
		return Int, nil
	case "FLOAT":
		return Float, nil
	case "BOOL":
		return Bool, nil
	case "TEXT":
		return Text, nil
	default:
		return "", fmt.Errorf("unknown column type %q, expected one of INT, FLOAT, BOOL, TEXT", raw)
	}
}

// Value is a typed, already-parsed literal.
type Value struct {
	Type DBType
	I    int64
	F    float64
	B    bool
	S    string
}

// String renders the value the way row-local CHECK errors and the JSON test
// fixtures expect: ints/floats/bools print as themselves, text prints bare.
func (v Value) String() string {
	switch v.Type {
	case Int:
		return strconv.FormatInt(v.I, 10)
	case Float:
		return strconv.FormatFloat(v.F, 'g', -1, 64)
	case Bool:
		return strconv.FormatBool(v.B)
	default:
		return v.S
	}
}

// ParseValue converts a literal's raw text into a typed Value of the given
// DBType. Parsing is total for well-formed input and returns a plain error
// otherwise, whose text callers place in the Err field of a structured
// error (dberr.TypeParseError, dberr.DetachedDefaultBadValue) along with
// table/column context.
func ParseValue(t DBType, raw string) (Value, error) {
	switch t {
	case Int:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("Cannot parse value to expected type for this column")
		}
		return Value{Type: Int, I: n}, nil
	case Float:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return Value{}, fmt.Errorf("Cannot parse value to expected type for this column")
		}
		return Value{Type: Float, F: f}, nil
	case Bool:
		switch strings.TrimSpace(raw) {
		case "true":
			return Value{Type: Bool, B: true}, nil
		case "false":
			return Value{Type: Bool, B: false}, nil
		default:
			return Value{}, fmt.Errorf("Cannot parse value to expected type for this column")
		}
	case Text:
		return Value{Type: Text, S: raw}, nil
	default:
		return Value{}, fmt.Errorf("unknown type %q", t)
	}
}

// dberrType adapts a schema.DBType into the taxonomy's DBType for error fields.
func dberrType(t DBType) dberr.DBType { return dberr.DBType(t) }
