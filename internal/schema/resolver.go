package schema

import (
	"fmt"

	"github.com/edendb/edendb/internal/dberr"
	"github.com/edendb/edendb/internal/edl"
)

// Schema is the fully resolved, frozen set of tables produced by Resolve.
// Nothing past this point mutates it; row materialisation, reference
// resolution and proof execution all read it.
type Schema struct {
	Tables map[string]*Table
	Order  []string // declaration order, preserved for deterministic output
}

// Table looks up a resolved table by name, or nil.
func (s *Schema) Table(name string) *Table { return s.Tables[name] }

// Resolve builds a Schema from a parsed EDL file: it registers every table
// and column, validates CHILD OF / REF / REF FOREIGN CHILD targets exist,
// computes parent chains and effective key tuples (detecting cycles along
// the way), validates UNIQUE constraints, and finally applies DEFAULTS
// blocks to DETACHED DEFAULT columns.
//
// Row data, Lua scripting and SQL proofs are resolved later against the
// Schema this returns; Resolve itself never looks at a DATA block.
func Resolve(f *edl.File) (*Schema, error) {
	sch := &Schema{Tables: map[string]*Table{}}

	for _, td := range f.Tables {
		if _, exists := sch.Tables[td.Name]; exists {
			return nil, fmt.Errorf("table %q declared more than once", td.Name)
		}
		tbl := &Table{Name: td.Name}
		seen := map[string]bool{}
		for _, cd := range td.Columns {
			if seen[cd.Name] {
				return nil, fmt.Errorf("table %q: column %q declared more than once", td.Name, cd.Name)
			}
			seen[cd.Name] = true
			// REF / REF FOREIGN CHILD columns carry no type token of their
			// own (see edl.parseColumn); their type is resolved below once
			// every table is registered.
			var typ DBType
			if cd.RefTable == "" && cd.RefForeignChildTable == "" {
				t, err := ParseDBType(cd.Type)
				if err != nil {
					return nil, fmt.Errorf("table %q: column %q: %w", td.Name, cd.Name, err)
				}
				typ = t
			}
			col := &Column{
				Name:                 cd.Name,
				Type:                 typ,
				PrimaryKey:           cd.PrimaryKey,
				ForeignKeyTable:      cd.RefTable,
				ForeignChildKeyTable: cd.RefForeignChildTable,
				DetachedDefault:      cd.DetachedDefault,
				GeneratedExpr:        cd.GeneratedExpr,
			}
			if cd.ChildOf != "" {
				if tbl.ParentTable != "" {
					return nil, fmt.Errorf("table %q: CHILD OF declared more than once", td.Name)
				}
				tbl.ParentTable = cd.ChildOf
			}
			tbl.Columns = append(tbl.Columns, col)
		}
		tbl.Uniques = td.Uniques
		for _, cd := range td.Checks {
			tbl.Checks = append(tbl.Checks, &CheckConstraint{Expression: cd.Expression})
		}
		sch.Tables[td.Name] = tbl
		sch.Order = append(sch.Order, td.Name)
	}

	for _, name := range sch.Order {
		tbl := sch.Tables[name]
		if tbl.ParentTable != "" {
			if _, ok := sch.Tables[tbl.ParentTable]; !ok {
				return nil, fmt.Errorf("table %q: CHILD OF unknown table %q", name, tbl.ParentTable)
			}
		}
	}

	for _, name := range sch.Order {
		chain, err := resolveParentChain(sch, name, map[string]bool{})
		if err != nil {
			return nil, err
		}
		sch.Tables[name].parentChain = chain
	}

	for _, name := range sch.Order {
		sch.Tables[name].KeyTuple = effectiveKeyTuple(sch, name)
	}

	for _, name := range sch.Order {
		tbl := sch.Tables[name]
		for _, col := range tbl.Columns {
			if col.ForeignKeyTable != "" {
				if _, ok := sch.Tables[col.ForeignKeyTable]; !ok {
					return nil, fmt.Errorf("table %q: column %q: REF unknown table %q", name, col.Name, col.ForeignKeyTable)
				}
			}
			if col.ForeignChildKeyTable != "" {
				if _, ok := sch.Tables[col.ForeignChildKeyTable]; !ok {
					return nil, fmt.Errorf("table %q: column %q: REF FOREIGN CHILD unknown table %q", name, col.Name, col.ForeignChildKeyTable)
				}
			}
		}
	}

	// REF FOREIGN CHILD columns hold a dotted composite path and are always
	// TEXT; a flat REF column's type matches its target's own local
	// primary key column, which must be exactly one column.
	for _, name := range sch.Order {
		tbl := sch.Tables[name]
		for _, col := range tbl.Columns {
			if col.ForeignChildKeyTable != "" {
				col.Type = Text
				continue
			}
			if col.ForeignKeyTable != "" {
				target := sch.Tables[col.ForeignKeyTable]
				pks := target.LocalPrimaryKeyColumns()
				if len(pks) != 1 {
					return nil, fmt.Errorf("table %q: column %q: REF target %q must have exactly one primary key column",
						name, col.Name, col.ForeignKeyTable)
				}
				col.Type = pks[0].Type
			}
		}
	}

	for _, name := range sch.Order {
		tbl := sch.Tables[name]
		for _, u := range tbl.Uniques {
			for _, colName := range u {
				if !hasColumnOrInheritedKey(sch, tbl, colName) {
					return nil, fmt.Errorf("table %q: UNIQUE(...) names unknown column %q", name, colName)
				}
			}
		}
	}

	if err := applyDefaults(sch, f.Defaults); err != nil {
		return nil, err
	}

	return sch, nil
}

func resolveParentChain(sch *Schema, name string, visiting map[string]bool) ([]string, error) {
	tbl := sch.Tables[name]
	if tbl.parentChain != nil {
		return tbl.parentChain, nil
	}
	if visiting[name] {
		return nil, fmt.Errorf("CHILD OF cycle detected involving table %q", name)
	}
	visiting[name] = true
	if tbl.ParentTable == "" {
		return []string{}, nil
	}
	parentChain, err := resolveParentChain(sch, tbl.ParentTable, visiting)
	if err != nil {
		return nil, err
	}
	return append(append([]string{}, parentChain...), tbl.ParentTable), nil
}

func effectiveKeyTuple(sch *Schema, name string) []KeyTupleEntry {
	tbl := sch.Tables[name]
	var tuple []KeyTupleEntry
	for _, anc := range tbl.parentChain {
		ancTbl := sch.Tables[anc]
		for _, col := range ancTbl.Columns {
			if col.PrimaryKey {
				tuple = append(tuple, KeyTupleEntry{Table: anc, Column: col.Name})
			}
		}
	}
	for _, col := range tbl.Columns {
		if col.PrimaryKey {
			tuple = append(tuple, KeyTupleEntry{Table: name, Column: col.Name})
		}
	}
	return tuple
}

// hasColumnOrInheritedKey reports whether colName is a local column of tbl,
// or the name of a PRIMARY KEY column inherited from one of tbl's
// ancestors — the only way an ancestor's column legitimately appears in a
// descendant's UNIQUE(...) list.
func hasColumnOrInheritedKey(sch *Schema, tbl *Table, colName string) bool {
	if tbl.Column(colName) != nil {
		return true
	}
	for _, anc := range tbl.parentChain {
		ancTbl := sch.Tables[anc]
		for _, col := range ancTbl.Columns {
			if col.PrimaryKey && col.Name == colName {
				return true
			}
		}
	}
	return false
}

// applyDefaults resolves every DEFAULTS block against the schema, rejecting
// unknown tables/columns, duplicate assignments and values that don't parse
// as the target column's type, then requires every DETACHED DEFAULT column
// across the schema to have received a value.
func applyDefaults(sch *Schema, blocks []*edl.DefaultsDecl) error {
	type assignment struct{ value string }
	assigned := map[string]map[string]assignment{}

	for _, block := range blocks {
		for _, a := range block.Assignments {
			tbl, ok := sch.Tables[a.Table]
			if !ok {
				return &dberr.DetachedDefaultNonExistingTable{Table: a.Table, Column: a.Column, Expression: a.Value}
			}
			col := tbl.Column(a.Column)
			if col == nil {
				return &dberr.DetachedDefaultNonExistingColumn{Table: a.Table, Column: a.Column, Expression: a.Value}
			}
			if assigned[a.Table] == nil {
				assigned[a.Table] = map[string]assignment{}
			}
			if prior, dup := assigned[a.Table][a.Column]; dup {
				return &dberr.DetachedDefaultDefinedMultipleTimes{
					Table: a.Table, Column: a.Column, ExpressionA: prior.value, ExpressionB: a.Value,
				}
			}
			val, err := ParseValue(col.Type, a.Value)
			if err != nil {
				return &dberr.DetachedDefaultBadValue{
					Table: a.Table, Column: a.Column, ExpectedType: dberrType(col.Type), Value: a.Value, Err: err.Error(),
				}
			}
			col.DefaultValue = &val
			assigned[a.Table][a.Column] = assignment{value: a.Value}
		}
	}

	for _, name := range sch.Order {
		tbl := sch.Tables[name]
		for _, col := range tbl.Columns {
			if col.DetachedDefault && col.DefaultValue == nil {
				return &dberr.DetachedDefaultUndefined{Table: name, Column: col.Name}
			}
		}
	}
	return nil
}
