package materialize

import (
	"fmt"

	"github.com/edendb/edendb/internal/dberr"
	"github.com/edendb/edendb/internal/edl"
	"github.com/edendb/edendb/internal/schema"
)

// colRef names one column an insert needs a value for, and which table it
// is declared on (its own table for local columns, an ancestor for
// inherited key-tuple entries).
type colRef struct {
	Table  string
	Column string
}

// ProcessDataDecl lowers one top-level `DATA [STRUCT] [EXCLUSIVE] table {
// rows }` block into a sequence of Inserts, recursing into any nested
// `WITH child { ... }` clauses and threading each parent row's full
// effective key tuple into its children.
func ProcessDataDecl(db *Database, sch *schema.Schema, decl *edl.DataDecl) error {
	tbl := sch.Table(decl.Table)
	if tbl == nil {
		return fmt.Errorf("DATA: unknown table %q", decl.Table)
	}
	if err := db.NoteDataSite(decl.Table, decl.Exclusive); err != nil {
		return err
	}
	for _, row := range decl.Rows {
		if err := insertRow(db, sch, tbl, row, true, nil); err != nil {
			return err
		}
	}
	return nil
}

func insertRow(db *Database, sch *schema.Schema, tbl *schema.Table, row *edl.DataRow, topLevel bool, inheritedKeys map[string]schema.Value) error {
	fields, ancestorInherited, err := buildRowValues(sch, tbl, row, topLevel)
	if err != nil {
		return err
	}
	effectiveInherited := inheritedKeys
	if topLevel {
		effectiveInherited = ancestorInherited
	}

	newRow, err := db.Insert(tbl.Name, fields, effectiveInherited)
	if err != nil {
		return err
	}

	for _, withDecl := range row.With {
		childTbl := sch.Table(withDecl.Table)
		if childTbl == nil {
			return fmt.Errorf("WITH: unknown table %q", withDecl.Table)
		}
		childInherited := RowKeyValues(sch, tbl.Name, newRow)
		for _, childRow := range withDecl.Rows {
			if err := insertRow(db, sch, childTbl, childRow, false, childInherited); err != nil {
				return err
			}
		}
	}
	return nil
}

// orderedAncestorColumns returns tbl's ancestor key-tuple prefix, in
// root-to-parent order: every KeyTuple entry not declared on tbl itself.
func orderedAncestorColumns(tbl *schema.Table) []colRef {
	var out []colRef
	for _, k := range tbl.KeyTuple {
		if k.Table != tbl.Name {
			out = append(out, colRef{Table: k.Table, Column: k.Column})
		}
	}
	return out
}

// orderedLocalColumns returns tbl's own columns that a DATA row must supply
// a literal for, in declaration order: every column except Generated (never
// supplied by data) and DetachedDefault (supplied only via DEFAULTS).
func orderedLocalColumns(tbl *schema.Table) []colRef {
	var out []colRef
	for _, c := range tbl.Columns {
		if c.GeneratedExpr != nil || c.DetachedDefault {
			continue
		}
		out = append(out, colRef{Table: tbl.Name, Column: c.Name})
	}
	return out
}

// buildRowValues normalises one positional or structured DATA row into the
// (fields, inheritedKeys) pair Insert expects. A top-level row must supply
// its full ancestor key-tuple prefix as literal values (positional, in
// root-to-parent order, or by column name in struct form); a WITH-nested
// row supplies only its own local columns, since the ancestor prefix
// arrives already-typed from the parent row.
func buildRowValues(sch *schema.Schema, tbl *schema.Table, row *edl.DataRow, topLevel bool) (map[string]string, map[string]schema.Value, error) {
	var ancestorCols []colRef
	if topLevel {
		ancestorCols = orderedAncestorColumns(tbl)
	}
	localCols := orderedLocalColumns(tbl)

	if row.Fields != nil {
		return buildStructRowValues(sch, tbl, row.Fields, ancestorCols)
	}
	return buildPositionalRowValues(sch, tbl, row.Values, ancestorCols, localCols)
}

func buildPositionalRowValues(sch *schema.Schema, tbl *schema.Table, vals []string, ancestorCols, localCols []colRef) (map[string]string, map[string]schema.Value, error) {
	expected := append(append([]colRef{}, ancestorCols...), localCols...)
	if len(vals) != len(expected) {
		return nil, nil, fmt.Errorf("table %q: expected %d positional values, got %d", tbl.Name, len(expected), len(vals))
	}
	fields := map[string]string{}
	inherited := map[string]schema.Value{}
	for i, ref := range expected {
		raw := vals[i]
		if ref.Table != tbl.Name {
			ancCol := sch.Table(ref.Table).Column(ref.Column)
			v, err := schema.ParseValue(ancCol.Type, raw)
			if err != nil {
				return nil, nil, &dberr.TypeParseError{
					Table: ref.Table, Column: ref.Column, Expected: dberr.DBType(ancCol.Type), Value: raw, Err: err.Error(),
				}
			}
			inherited[ref.Column] = v
			continue
		}
		fields[ref.Column] = raw
	}
	return fields, inherited, nil
}

func buildStructRowValues(sch *schema.Schema, tbl *schema.Table, rowFields map[string]string, ancestorCols []colRef) (map[string]string, map[string]schema.Value, error) {
	fields := make(map[string]string, len(rowFields))
	for k, v := range rowFields {
		fields[k] = v
	}
	inherited := map[string]schema.Value{}
	for _, ref := range ancestorCols {
		raw, ok := fields[ref.Column]
		if !ok {
			return nil, nil, &dberr.MissingColumn{Table: tbl.Name, Column: ref.Column}
		}
		delete(fields, ref.Column)
		ancCol := sch.Table(ref.Table).Column(ref.Column)
		v, err := schema.ParseValue(ancCol.Type, raw)
		if err != nil {
			return nil, nil, &dberr.TypeParseError{
				Table: ref.Table, Column: ref.Column, Expected: dberr.DBType(ancCol.Type), Value: raw, Err: err.Error(),
			}
		}
		inherited[ref.Column] = v
	}
	return fields, inherited, nil
}
