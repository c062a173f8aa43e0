package schema

// Column is a resolved, frozen column definition. A column may be
// PrimaryKey and also carry a foreign-key reference at the same time
// (a child table's whole key can itself be a reference), so these are
// independent flags rather than a single exclusive kind tag.
type Column struct {
	Name string
	Type DBType

	PrimaryKey bool

	// ForeignKeyTable is set for a flat `REF table` column.
	ForeignKeyTable string

	// ForeignChildKeyTable is set for a `REF FOREIGN CHILD table` column.
	ForeignChildKeyTable string

	// DetachedDefault marks a column whose value comes from a schema-level
	// DEFAULTS assignment rather than per-row data. DefaultValue is filled
	// in by Resolve once the DEFAULTS blocks are processed.
	DetachedDefault bool
	DefaultValue    *Value

	// GeneratedExpr holds the raw `GENERATED AS { ... }` expression text.
	// The column is never populated by the materialiser; it is realised
	// as a SQL generated column by the proof engine.
	GeneratedExpr *string
}

// IsReference reports whether this column resolves against another table's
// rows, flat or child-addressed.
func (c *Column) IsReference() bool {
	return c.ForeignKeyTable != "" || c.ForeignChildKeyTable != ""
}

// IsOrdinaryData reports whether Insert's field map is expected to supply
// this column directly (i.e. it's neither detached-default nor computed).
func (c *Column) IsOrdinaryData() bool {
	return c.GeneratedExpr == nil && !c.DetachedDefault
}

// CheckConstraint is a row-local `CHECK { expr }` attached to a table.
type CheckConstraint struct {
	Expression string
}
