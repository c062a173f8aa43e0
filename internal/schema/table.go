package schema

// KeyTupleEntry is one column in a table's effective key tuple: the
// concatenation of PRIMARY KEY columns along the CHILD OF chain, from the
// root ancestor down to the table itself.
type KeyTupleEntry struct {
	Table  string
	Column string
}

// Table is a resolved, frozen table definition.
type Table struct {
	Name    string
	Columns []*Column
	Uniques [][]string
	Checks  []*CheckConstraint

	// ParentTable is the immediate CHILD OF target, or "" for a root table.
	ParentTable string

	// parentChain is every ancestor from root to immediate parent, computed
	// once by Resolve and cached here.
	parentChain []string

	// KeyTuple is the effective key tuple: ancestor PRIMARY KEY columns
	// (root-to-parent order) followed by this table's own PRIMARY KEY
	// columns in declaration order.
	KeyTuple []KeyTupleEntry

	// Exclusive is not set by Resolve or by the materialiser: DATA
	// EXCLUSIVE is tracked in the materialiser's own per-table bookkeeping
	// (materialize.Database.NoteDataSite), which is what enforces at most
	// one data-providing site.
	Exclusive bool
}

// ParentChain returns the table's ancestors from root to immediate parent.
func (t *Table) ParentChain() []string { return t.parentChain }

// Column looks up a column by name, or nil.
func (t *Table) Column(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// LocalPrimaryKeyColumns returns this table's own PRIMARY KEY columns, in
// declaration order (excluding anything inherited from an ancestor, which
// never appears in Columns at all — it is implicit, carried only in
// KeyTuple and in materialised rows).
func (t *Table) LocalPrimaryKeyColumns() []*Column {
	var out []*Column
	for _, c := range t.Columns {
		if c.PrimaryKey {
			out = append(out, c)
		}
	}
	return out
}

// IsDescendantOf reports whether t has anc somewhere in its parent chain,
// counting t itself as its own ancestor.
func (t *Table) IsDescendantOf(anc string) bool {
	if t.Name == anc {
		return true
	}
	for _, a := range t.parentChain {
		if a == anc {
			return true
		}
	}
	return false
}
