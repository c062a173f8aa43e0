// Package proofsql freezes a materialised database into an in-memory SQLite
// instance and executes every PROOF block against it. Each query is first
// prepared by SQLite, which reports syntax errors; its output shape is then
// checked statically against the TiDB SQL parser's AST wherever that parser
// can parse the query. Queries the TiDB parser cannot handle (SQLite-only
// dialect features like RETURNING) skip the shape check and are left to
// SQLite, which reports any error at execution time.
package proofsql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
	_ "modernc.org/sqlite"

	"github.com/edendb/edendb/internal/dberr"
	"github.com/edendb/edendb/internal/edl"
	"github.com/edendb/edendb/internal/materialize"
	"github.com/edendb/edendb/internal/schema"
)

// Engine holds the frozen database. writer keeps the shared-cache in-memory
// database alive for the engine's lifetime; every proof runs against reader,
// a second connection opened read-only so write attempts fail exactly the
// way a real read-only SQLite handle fails.
type Engine struct {
	sch    *schema.Schema
	writer *sql.DB
	reader *sql.DB
}

// Load creates a private in-memory SQLite database, creates one table per
// schema table (GENERATED AS columns become SQLite generated columns) and
// inserts every materialised row, then reopens it read-only for proofs.
func Load(sch *schema.Schema, db *materialize.Database) (*Engine, error) {
	name := fmt.Sprintf("edendb_proof_%p", db)
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("proofsql: opening database: %w", err)
	}
	writer.SetMaxOpenConns(1)

	for _, tname := range sch.Order {
		tbl := sch.Table(tname)
		if _, err := writer.Exec(createTableStmt(sch, tbl)); err != nil {
			writer.Close()
			return nil, fmt.Errorf("proofsql: creating table %q: %w", tname, err)
		}
	}
	for _, tname := range sch.Order {
		tbl := sch.Table(tname)
		mt := db.Tables[tname]
		insertSQL, cols := insertStmt(tbl)
		if len(cols) == 0 {
			continue
		}
		for _, row := range mt.Rows {
			args := make([]any, len(cols))
			for i, c := range cols {
				args[i] = valueToDriver(row.Values[c])
			}
			if _, err := writer.Exec(insertSQL, args...); err != nil {
				writer.Close()
				return nil, fmt.Errorf("proofsql: inserting into %q: %w", tname, err)
			}
		}
	}

	// A shared in-memory database's URI mode is already taken by
	// mode=memory, so the reader can't be opened mode=ro; query_only on
	// its single pooled connection gives the same SQLITE_READONLY
	// behavior, including the engine's own "attempt to write a readonly
	// database" message.
	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("proofsql: opening read-only handle: %w", err)
	}
	reader.SetMaxOpenConns(1)
	reader.SetMaxIdleConns(1)
	if _, err := reader.Exec("PRAGMA query_only = 1"); err != nil {
		reader.Close()
		writer.Close()
		return nil, fmt.Errorf("proofsql: setting query_only: %w", err)
	}

	return &Engine{sch: sch, writer: writer, reader: reader}, nil
}

// Close releases both connections, tearing down the in-memory database.
func (e *Engine) Close() {
	e.reader.Close()
	e.writer.Close()
}

// insertColumns returns, in a stable order, every column a materialised row
// actually carries a value for: the effective key tuple plus every local
// column that is neither PRIMARY KEY (already covered by the key tuple) nor
// GENERATED (never populated by the materialiser).
func insertColumns(tbl *schema.Table) []string {
	cols := make([]string, 0, len(tbl.KeyTuple)+len(tbl.Columns))
	for _, k := range tbl.KeyTuple {
		cols = append(cols, k.Column)
	}
	for _, c := range tbl.Columns {
		if c.PrimaryKey || c.GeneratedExpr != nil {
			continue
		}
		cols = append(cols, c.Name)
	}
	return cols
}

func sqliteType(t schema.DBType) string {
	switch t {
	case schema.Int, schema.Bool:
		return "INTEGER"
	case schema.Float:
		return "REAL"
	default:
		return "TEXT"
	}
}

func createTableStmt(sch *schema.Schema, tbl *schema.Table) string {
	var defs []string
	for _, k := range tbl.KeyTuple {
		col := tbl.Column(k.Column)
		if col == nil {
			col = sch.Table(k.Table).Column(k.Column)
		}
		defs = append(defs, fmt.Sprintf("%q %s", k.Column, sqliteType(col.Type)))
	}
	for _, c := range tbl.Columns {
		if c.PrimaryKey {
			continue
		}
		if c.GeneratedExpr != nil {
			defs = append(defs, fmt.Sprintf("%q %s GENERATED ALWAYS AS (%s) VIRTUAL", c.Name, sqliteType(c.Type), *c.GeneratedExpr))
			continue
		}
		defs = append(defs, fmt.Sprintf("%q %s", c.Name, sqliteType(c.Type)))
	}
	return fmt.Sprintf("CREATE TABLE %q (%s)", tbl.Name, joinComma(defs))
}

func insertStmt(tbl *schema.Table) (string, []string) {
	cols := insertColumns(tbl)
	placeholders := make([]string, len(cols))
	quoted := make([]string, len(cols))
	for i, c := range cols {
		placeholders[i] = "?"
		quoted[i] = fmt.Sprintf("%q", c)
	}
	sql := fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)", tbl.Name, joinComma(quoted), joinComma(placeholders))
	return sql, cols
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

func valueToDriver(v schema.Value) any {
	switch v.Type {
	case schema.Int:
		return v.I
	case schema.Float:
		return v.F
	case schema.Bool:
		if v.B {
			return int64(1)
		}
		return int64(0)
	default:
		return v.S
	}
}

// Run executes every PROOF block in source order against the frozen
// database, short-circuiting on the first failure.
func Run(e *Engine, proofs []*edl.ProofDecl) error {
	for _, p := range proofs {
		if err := e.runOne(p); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) runOne(p *edl.ProofDecl) error {
	if e.sch.Table(p.Table) == nil {
		return &dberr.SqlProofTableNotFound{TableName: p.Table, Comment: p.Comment, ProofExpression: p.SQL}
	}

	stmt, err := e.reader.Prepare(p.SQL)
	if err != nil {
		return &dberr.SqlProofQueryPlanningError{TableName: p.Table, ProofExpression: p.SQL, Error_: err.Error(), Comment: p.Comment}
	}
	defer stmt.Close()

	if shapeErr := e.checkShape(p); shapeErr != nil {
		return shapeErr
	}

	n, err := e.numInput(p.SQL)
	if err == nil && n > 0 {
		return &dberr.SqlProofQueryError{
			TableName: p.Table, ProofExpression: p.SQL, Comment: p.Comment,
			Error_: fmt.Sprintf("Wrong number of parameters passed to query. Got 0, needed %d", n),
		}
	}

	rows, err := stmt.Query()
	if err != nil {
		return &dberr.SqlProofQueryError{TableName: p.Table, ProofExpression: p.SQL, Comment: p.Comment, Error_: err.Error()}
	}
	defer rows.Close()

	var rowids []int64
	for rows.Next() {
		var rowid int64
		if err := rows.Scan(&rowid); err != nil {
			return &dberr.SqlProofQueryError{TableName: p.Table, ProofExpression: p.SQL, Comment: p.Comment, Error_: err.Error()}
		}
		rowids = append(rowids, rowid)
	}
	if err := rows.Err(); err != nil {
		return &dberr.SqlProofQueryError{TableName: p.Table, ProofExpression: p.SQL, Comment: p.Comment, Error_: err.Error()}
	}

	if len(rowids) == 0 {
		return nil
	}

	offenders := make([]string, len(rowids))
	for i, rowid := range rowids {
		offender, err := e.renderOffender(p.Table, rowid)
		if err != nil {
			return &dberr.SqlProofQueryError{TableName: p.Table, ProofExpression: p.SQL, Comment: p.Comment, Error_: err.Error()}
		}
		offenders[i] = offender
	}
	return &dberr.SqlProofOffendersFound{TableName: p.Table, ProofExpression: p.SQL, Comment: p.Comment, OffendingColumns: offenders}
}

// renderOffender re-fetches every column of the offending row by rowid, so
// that GENERATED columns (absent from the materialised row store) are
// included in the diagnostic exactly as the SQL engine computed them.
func (e *Engine) renderOffender(table string, rowid int64) (string, error) {
	rows, err := e.reader.Query(fmt.Sprintf("SELECT * FROM %q WHERE rowid = ?", table), rowid)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", err
	}
	if !rows.Next() {
		return "", fmt.Errorf("proofsql: offending rowid %d vanished from %q", rowid, table)
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return "", err
	}
	return renderOffendingRow(e.sch, table, cols, vals), nil
}

// checkShape statically validates the query's output shape using the TiDB
// SQL AST: exactly one result column named rowid, originating from the
// declared table. Queries the TiDB parser cannot handle (SQLite-only
// dialect, e.g. RETURNING) are left for the real engine to accept or reject
// at execution time; that is the only way test fixtures exercising that
// syntax ever reach the engine at all.
func (e *Engine) checkShape(p *edl.ProofDecl) error {
	stmtNode, err := parser.New().ParseOneStmt(p.SQL, "", "")
	if err != nil {
		return nil
	}
	sel, ok := stmtNode.(*ast.SelectStmt)
	if !ok || sel.Fields == nil {
		return nil
	}

	fields := sel.Fields.Fields
	if len(fields) != 1 {
		return &dberr.SqlProofQueryErrorSingleRowIdColumnExpected{
			TableName: p.Table, ProofExpression: p.SQL, Comment: p.Comment,
			Error_: fmt.Sprintf("Required output column count is 1, got %d", len(fields)),
		}
	}

	field := fields[0]
	outName, originTable, originColumn := describeField(field, fromTableName(sel))
	if outName != "rowid" {
		return &dberr.SqlProofQueryErrorSingleRowIdColumnExpected{
			TableName: p.Table, ProofExpression: p.SQL, Comment: p.Comment,
			Error_: fmt.Sprintf("Required output column name must be rowid, got %s", outName),
		}
	}

	if originTable != p.Table || originColumn != "rowid" {
		return &dberr.SqlProofQueryColumnOriginMismatchesExpected{
			ProofExpression: p.SQL, Comment: p.Comment,
			Error_:                    "Actual column origin table name or origin mistmaches expectations",
			ExpectedColumnOriginTable: p.Table,
			ExpectedColumnOriginName:  "rowid",
			ActualColumnOriginTable:   originTable,
			ActualColumnOriginName:    originColumn,
		}
	}
	return nil
}

// fromTableName extracts the single source table name out of a SELECT's
// FROM clause, for resolving an unqualified column's origin. Proof queries
// are single-table scans in every fixture this compiler targets; a FROM
// clause more complex than one bare table name (a join, a subquery) simply
// yields no resolvable origin, which the caller treats as a mismatch.
func fromTableName(sel *ast.SelectStmt) string {
	if sel.From == nil {
		return ""
	}
	src, ok := sel.From.TableRefs.Left.(*ast.TableSource)
	if !ok || sel.From.TableRefs.Right != nil {
		return ""
	}
	name, ok := src.Source.(*ast.TableName)
	if !ok {
		return ""
	}
	return name.Name.O
}

// describeField returns the output name of a SELECT field, plus the source
// table/column it resolves to when it is a plain column reference. An
// unqualified column name resolves against fromTable, the query's own FROM
// target. Anything else (a literal, a call, an arithmetic expression) has
// no table origin at all, reported as the literal string "NULL" to match
// the origin-mismatch diagnostic's convention for expression-derived
// columns.
func describeField(field *ast.SelectField, fromTable string) (outName, originTable, originColumn string) {
	if field.AsName.O != "" {
		outName = field.AsName.O
	}
	if col, ok := field.Expr.(*ast.ColumnNameExpr); ok {
		if outName == "" {
			outName = col.Name.Name.O
		}
		originColumn = col.Name.Name.O
		originTable = col.Name.Table.O
		if originTable == "" {
			originTable = fromTable
		}
		return outName, originTable, originColumn
	}
	if outName == "" {
		outName = "?column?"
	}
	return outName, "NULL", "NULL"
}

// renderOffendingRow pretty-prints one offending row as a key→value JSON
// object, one column per line, two-space indented, keys in the table's own
// column order as SQLite returned them.
func renderOffendingRow(sch *schema.Schema, tableName string, cols []string, vals []any) string {
	tbl := sch.Table(tableName)
	lines := make([]string, len(cols))
	for i, c := range cols {
		lines[i] = fmt.Sprintf("  %q: %s", c, renderOffendingValue(tbl, c, vals[i]))
	}
	return "{\n" + joinLines(lines) + "\n}"
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += ",\n"
		}
		out += l
	}
	return out
}

// renderOffendingValue mirrors a stored value the way the row itself was
// typed: BOOL columns come back from SQLite as 0/1 integers and are re-boxed
// as true/false; every other numeric column renders as a float (2 prints as
// 2.0), matching the diagnostic's JSON convention.
func renderOffendingValue(tbl *schema.Table, colName string, v any) string {
	col := tbl.Column(colName)
	if col != nil && col.Type == schema.Bool {
		switch n := v.(type) {
		case int64:
			if n != 0 {
				return "true"
			}
			return "false"
		}
	}
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", t)
	case int64:
		return jsonFloat(float64(t))
	case float64:
		return jsonFloat(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// jsonFloat renders a number the way a float serialises to JSON: integral
// values keep a trailing .0 so 2 prints as 2.0, not 2.
func jsonFloat(f float64) string {
	if f == math.Trunc(f) && !math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// numInput reports the exact bind-parameter count SQLite compiled the query
// with, obtained from the raw driver connection since database/sql's own
// *sql.Stmt does not expose it.
func (e *Engine) numInput(query string) (int, error) {
	ctx := context.Background()
	conn, err := e.reader.Conn(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	var n int
	err = conn.Raw(func(driverConn any) error {
		dc, ok := driverConn.(driver.Conn)
		if !ok {
			return fmt.Errorf("proofsql: driver connection does not implement driver.Conn")
		}
		stmt, err := dc.Prepare(query)
		if err != nil {
			return err
		}
		defer stmt.Close()
		n = stmt.NumInput()
		return nil
	})
	return n, err
}
