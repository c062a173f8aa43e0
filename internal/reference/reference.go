// Package reference resolves REF and REF FOREIGN CHILD columns against the
// materialised row store once every table has its data, enforcing the
// common-ancestor rule for child-table addressing.
package reference

import (
	"strings"

	"github.com/edendb/edendb/internal/dberr"
	"github.com/edendb/edendb/internal/materialize"
	"github.com/edendb/edendb/internal/schema"
)

// Resolve walks every materialised row and validates every REF / REF
// FOREIGN CHILD column against the rows already present in its target
// table, in schema declaration order, short-circuiting on the first
// failure.
func Resolve(sch *schema.Schema, db *materialize.Database) error {
	for _, name := range sch.Order {
		tbl := sch.Table(name)
		mt := db.Tables[name]
		for _, col := range tbl.Columns {
			if col.ForeignKeyTable == "" && col.ForeignChildKeyTable == "" {
				continue
			}
			for _, row := range mt.Rows {
				if _, err := ResolveColumnIndex(sch, db, tbl, col, row); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// ResolveColumnIndex resolves a single REF / REF FOREIGN CHILD column value
// on one row to the zero-based index of the row it addresses within the
// referred table's row array. It is the same lookup Resolve uses to
// validate every reference, exposed here so the output serialiser can turn
// a reference column's stored value into the row-pointer the columnar
// format requires without re-deriving the common-ancestor logic.
func ResolveColumnIndex(sch *schema.Schema, db *materialize.Database, referrer *schema.Table, col *schema.Column, row *materialize.Row) (int, error) {
	if col.ForeignKeyTable != "" {
		referred := sch.Table(col.ForeignKeyTable)
		if len(referred.ParentChain()) == 0 {
			return resolveFlatRootReference(db, referrer, referred, col, row)
		}
		return resolveHierarchical(sch, db, referrer, referred, col, row, false)
	}
	referred := sch.Table(col.ForeignChildKeyTable)
	return resolveHierarchical(sch, db, referrer, referred, col, row, true)
}

// resolveFlatRootReference handles a plain `REF table` pointing at a table
// with no CHILD OF ancestor of its own: simple equality against its sole
// local primary key column, no common-ancestor scoping needed.
func resolveFlatRootReference(db *materialize.Database, referrer, referred *schema.Table, col *schema.Column, row *materialize.Row) (int, error) {
	pks := referred.LocalPrimaryKeyColumns()
	value := row.Values[col.Name]
	for _, cand := range db.Tables[referred.Name].Rows {
		if cand.Values[pks[0].Name].String() == value.String() {
			return cand.Index, nil
		}
	}
	return 0, &dberr.NonExistingForeignKey{
		TableWithForeignKey: referrer.Name,
		ForeignKeyColumn:    col.Name,
		ReferredTable:       referred.Name,
		ReferredTableColumn: pks[0].Name,
		KeyValue:            value.String(),
	}
}

// resolveHierarchical handles both a plain `REF` pointing at a child table
// and a `REF FOREIGN CHILD`: it finds the nearest table that is an
// ancestor of both referrer and referred, filters referred's rows down to
// those sharing the referrer's own value for every key column at or above
// that ancestor, then matches the remaining (below-ancestor) key columns
// against either the single stored value (flat REF) or the dotted path
// segments (REF FOREIGN CHILD).
func resolveHierarchical(sch *schema.Schema, db *materialize.Database, referrer, referred *schema.Table, col *schema.Column, row *materialize.Row, dotted bool) (int, error) {
	common, ok := commonAncestor(referrer, referred)
	if !ok {
		return 0, &dberr.ForeignKeyTableDoesNotShareCommonAncestorWithRefereeTable{
			ReferrerTable: referrer.Name, ReferrerColumn: col.Name, ReferredTable: referred.Name,
		}
	}

	bPath := append(append([]string{}, referred.ParentChain()...), referred.Name)
	atOrAbove := map[string]bool{}
	for _, t := range bPath {
		atOrAbove[t] = true
		if t == common {
			break
		}
	}

	var prefix, suffix []schema.KeyTupleEntry
	for _, k := range referred.KeyTuple {
		if atOrAbove[k.Table] {
			prefix = append(prefix, k)
		} else {
			suffix = append(suffix, k)
		}
	}

	rawValue := row.Values[col.Name]
	if dotted {
		segments := strings.Split(rawValue.S, "->")
		if len(segments) == len(suffix) {
			for _, cand := range db.Tables[referred.Name].Rows {
				if matchesPrefix(row, cand, prefix) && matchesSuffix(sch, cand, suffix, segments) {
					return cand.Index, nil
				}
			}
		}
	} else if len(suffix) > 0 {
		// A flat REF stores only the referred table's own local primary
		// key; intermediate ancestor keys between the common ancestor and
		// the referred table stay unconstrained and resolve by uniqueness.
		local := suffix[len(suffix)-1:]
		segment := []string{rawValue.String()}
		for _, cand := range db.Tables[referred.Name].Rows {
			if matchesPrefix(row, cand, prefix) && matchesSuffix(sch, cand, local, segment) {
				return cand.Index, nil
			}
		}
	}

	tableParentKeys := make([]string, len(prefix))
	tableParentTables := make([]string, len(prefix))
	tableParentColumns := make([]string, len(prefix))
	for i, k := range prefix {
		tableParentKeys[i] = row.Values[k.Column].String()
		tableParentTables[i] = k.Table
		tableParentColumns[i] = k.Column
	}
	referredColumn := col.Name
	if len(suffix) > 0 {
		referredColumn = suffix[len(suffix)-1].Column
	}
	return 0, &dberr.NonExistingForeignKeyToChildTable{
		TableParentKeys:     tableParentKeys,
		TableParentTables:   tableParentTables,
		TableParentColumns:  tableParentColumns,
		TableWithForeignKey: referrer.Name,
		ForeignKeyColumn:    col.Name,
		ReferredTable:       referred.Name,
		ReferredTableColumn: referredColumn,
		KeyValue:            rawValue.String(),
	}
}

func matchesPrefix(referrerRow, candidate *materialize.Row, prefix []schema.KeyTupleEntry) bool {
	for _, k := range prefix {
		if candidate.Values[k.Column].String() != referrerRow.Values[k.Column].String() {
			return false
		}
	}
	return true
}

func matchesSuffix(sch *schema.Schema, candidate *materialize.Row, suffix []schema.KeyTupleEntry, segments []string) bool {
	for i, k := range suffix {
		col := sch.Table(k.Table).Column(k.Column)
		v, err := schema.ParseValue(col.Type, segments[i])
		if err != nil {
			return false
		}
		if candidate.Values[k.Column].String() != v.String() {
			return false
		}
	}
	return true
}

// commonAncestor returns the deepest table present in both a's and b's
// root-to-self CHILD OF path (each table is its own ancestor), or false if
// their paths diverge immediately.
func commonAncestor(a, b *schema.Table) (string, bool) {
	aPath := append(append([]string{}, a.ParentChain()...), a.Name)
	bPath := append(append([]string{}, b.ParentChain()...), b.Name)
	common := ""
	for i := 0; i < len(aPath) && i < len(bPath); i++ {
		if aPath[i] != bPath[i] {
			break
		}
		common = aPath[i]
	}
	if common == "" {
		return "", false
	}
	return common, true
}
