package output

import (
	"fmt"
	"strings"

	"github.com/edendb/edendb/internal/materialize"
	"github.com/edendb/edendb/internal/schema"
)

// Describe formats a frozen database as a compact human-readable summary
// of table, row, and column counts.
// Example output:
//
//	Compiled database
//	==================
//
//	server:                     1 row(s),  1 col(s)
//	reserved_port:              1 row(s),  1 col(s)
func Describe(sch *schema.Schema, db *materialize.Database) string {
	var sb strings.Builder
	sb.WriteString("Compiled database\n")
	sb.WriteString("==================\n\n")

	for _, name := range sch.Order {
		tbl := sch.Table(name)
		mt := db.Tables[name]

		cols := 0
		for _, c := range tbl.Columns {
			if c.GeneratedExpr == nil {
				cols++
			}
		}

		fmt.Fprintf(&sb, "%-24s %4d row(s), %2d col(s)\n", name+":", len(mt.Rows), cols)
	}

	return sb.String()
}
