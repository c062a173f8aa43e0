// Package materialize turns DATA trees into an arena-indexed row store
// (each table an ordered slice of rows, each row a column-name-to-value
// map; no per-column vectors are kept): Insert is the single primitive
// both DATA syntaxes and script-driven data emission normalise down to.
package materialize

import (
	"fmt"
	"strings"

	"github.com/edendb/edendb/internal/dberr"
	"github.com/edendb/edendb/internal/schema"
)

// Row is one materialised row. Values holds every effective-key-tuple
// column (ancestor-prefix and local, keyed by each level's own column
// name) plus every local ordinary or detached-default column. Generated
// columns never appear here; they are realised later by the proof engine.
type Row struct {
	Index  int
	Values map[string]schema.Value
}

// Table is one table's materialised rows, plus the bookkeeping needed to
// reject duplicate keys and enforce DATA EXCLUSIVE.
type Table struct {
	Name      string
	Rows      []*Row
	keyIndex  map[string]int
	exclusive bool
	dataSites int
}

// Database is the row store for an entire resolved schema.
type Database struct {
	Schema *schema.Schema
	Tables map[string]*Table
}

// NewDatabase allocates an empty row store, one Table per schema table.
func NewDatabase(sch *schema.Schema) *Database {
	db := &Database{Schema: sch, Tables: map[string]*Table{}}
	for _, name := range sch.Order {
		db.Tables[name] = &Table{Name: name, keyIndex: map[string]int{}}
	}
	return db
}

// NoteDataSite registers one data-providing site for table (a top-level
// DATA block, or the scripts' drained data() rows for it, which count as
// a single site however many INCLUDE LUA sources emitted them).
// It returns ExclusiveDataDefinedMultipleTimes once a table marked
// EXCLUSIVE by any site sees a second site.
func (db *Database) NoteDataSite(table string, exclusive bool) error {
	mt, ok := db.Tables[table]
	if !ok {
		return fmt.Errorf("unknown table %q", table)
	}
	if exclusive {
		mt.exclusive = true
	}
	mt.dataSites++
	if mt.exclusive && mt.dataSites > 1 {
		return &dberr.ExclusiveDataDefinedMultipleTimes{TableName: table}
	}
	return nil
}

// Insert implements the compiler's single row-insertion primitive: it
// produces a new row in table whose effective key tuple equals
// inheritedKeys concatenated with the local primary-key fields extracted
// from fields. fields must supply a raw literal for every column of table
// that is neither inherited, DetachedDefault, nor Generated.
func (db *Database) Insert(table string, fields map[string]string, inheritedKeys map[string]schema.Value) (*Row, error) {
	tbl := db.Schema.Table(table)
	if tbl == nil {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	mt := db.Tables[table]

	values := make(map[string]schema.Value, len(inheritedKeys)+len(tbl.Columns))
	for k, v := range inheritedKeys {
		values[k] = v
	}

	for _, col := range tbl.Columns {
		switch {
		case col.GeneratedExpr != nil:
			continue
		case col.DetachedDefault:
			values[col.Name] = *col.DefaultValue
		default:
			raw, ok := fields[col.Name]
			if !ok {
				return nil, &dberr.MissingColumn{Table: table, Column: col.Name}
			}
			v, err := schema.ParseValue(col.Type, raw)
			if err != nil {
				return nil, &dberr.TypeParseError{
					Table: table, Column: col.Name, Expected: dberr.DBType(col.Type), Value: raw, Err: err.Error(),
				}
			}
			values[col.Name] = v
		}
	}

	// A table with no PRIMARY KEY at all (possible: not every table in the
	// test corpus declares one) has no effective key tuple, and therefore
	// no notion of a duplicate row to reject.
	if len(tbl.KeyTuple) > 0 {
		keyParts := make([]string, 0, len(tbl.KeyTuple))
		for _, k := range tbl.KeyTuple {
			v, ok := values[k.Column]
			if !ok {
				return nil, fmt.Errorf("table %q: missing value for key tuple column %q (from %q)", table, k.Column, k.Table)
			}
			keyParts = append(keyParts, v.String())
		}
		keyStr := strings.Join(keyParts, "\x1f")
		if _, dup := mt.keyIndex[keyStr]; dup {
			return nil, &dberr.DuplicateRow{Table: table, Key: keyParts}
		}
		mt.keyIndex[keyStr] = len(mt.Rows)
	}

	row := &Row{Index: len(mt.Rows), Values: values}
	mt.Rows = append(mt.Rows, row)
	return row, nil
}

// RowKeyValues extracts the inherited-key map a WITH-nested child Insert
// should receive: every entry of parentTable's own effective key tuple,
// read back out of the just-inserted parentRow.
func RowKeyValues(sch *schema.Schema, parentTable string, parentRow *Row) map[string]schema.Value {
	tbl := sch.Table(parentTable)
	out := make(map[string]schema.Value, len(tbl.KeyTuple))
	for _, k := range tbl.KeyTuple {
		out[k.Column] = parentRow.Values[k.Column]
	}
	return out
}
