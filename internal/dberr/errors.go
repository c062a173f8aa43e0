// Package dberr is the structured diagnostic taxonomy for the EDL compiler.
//
// Every compile-time failure the checker can produce is a distinct Go type
// here rather than a formatted string, so callers (tests, the CLI reporter,
// eventually codegen) can errors.As against the exact kind and inspect its
// fields instead of scraping text. Each type's Error() still renders a
// human-readable line for the CLI.
package dberr

import (
	"fmt"
	"strings"
)

// DBType names a literal's kind, echoed into error messages below.
type DBType string

const (
	Int   DBType = "INT"
	Float DBType = "FLOAT"
	Bool  DBType = "BOOL"
	Text  DBType = "TEXT"
)

// TypeParseError reports a literal that does not parse as its column's
// declared DBType.
type TypeParseError struct {
	Table    string
	Column   string
	Expected DBType
	Value    string
	Err      string
}

func (e *TypeParseError) Error() string {
	return fmt.Sprintf("%s.%s: cannot parse %q as %s: %s", e.Table, e.Column, e.Value, e.Expected, e.Err)
}

// MissingColumn reports a row that did not supply a value for a required column.
type MissingColumn struct {
	Table  string
	Column string
}

func (e *MissingColumn) Error() string {
	return fmt.Sprintf("%s: missing value for column %q", e.Table, e.Column)
}

// DuplicateRow reports a key-tuple collision within a table.
type DuplicateRow struct {
	Table string
	Key   []string
}

func (e *DuplicateRow) Error() string {
	return fmt.Sprintf("%s: duplicate row for key (%s)", e.Table, strings.Join(e.Key, ", "))
}

// ExclusiveDataDefinedMultipleTimes reports a second data-providing site for
// a DATA EXCLUSIVE table.
type ExclusiveDataDefinedMultipleTimes struct {
	TableName string
}

func (e *ExclusiveDataDefinedMultipleTimes) Error() string {
	return fmt.Sprintf("table %q is DATA EXCLUSIVE but has more than one data-providing site", e.TableName)
}

// NonExistingForeignKey reports a flat REF value with no matching row.
type NonExistingForeignKey struct {
	TableWithForeignKey string
	ForeignKeyColumn    string
	ReferredTable       string
	ReferredTableColumn string
	KeyValue            string
}

func (e *NonExistingForeignKey) Error() string {
	return fmt.Sprintf("%s.%s: no row in %s.%s matches %q",
		e.TableWithForeignKey, e.ForeignKeyColumn, e.ReferredTable, e.ReferredTableColumn, e.KeyValue)
}

// NonExistingForeignKeyToChildTable reports a reference into a table with
// a CHILD OF ancestor (a REF FOREIGN CHILD dotted key path, or a flat REF
// value) that matches no row sharing the referrer's key prefix down to
// their common ancestor.
type NonExistingForeignKeyToChildTable struct {
	TableParentKeys     []string
	TableParentTables   []string
	TableParentColumns  []string
	TableWithForeignKey string
	ForeignKeyColumn    string
	ReferredTable       string
	ReferredTableColumn string
	KeyValue            string
}

func (e *NonExistingForeignKeyToChildTable) Error() string {
	return fmt.Sprintf("%s.%s: no row in %s under parent prefix %v matches %q",
		e.TableWithForeignKey, e.ForeignKeyColumn, e.ReferredTable, e.TableParentKeys, e.KeyValue)
}

// ForeignKeyTableDoesNotShareCommonAncestorWithRefereeTable reports a
// REF FOREIGN CHILD column, or a flat REF column pointing at a table with
// a CHILD OF ancestor, whose referrer and referred table share no
// ancestor in the CHILD OF graph.
type ForeignKeyTableDoesNotShareCommonAncestorWithRefereeTable struct {
	ReferrerTable  string
	ReferrerColumn string
	ReferredTable  string
}

func (e *ForeignKeyTableDoesNotShareCommonAncestorWithRefereeTable) Error() string {
	return fmt.Sprintf("%s.%s: %s shares no common ancestor with %s",
		e.ReferrerTable, e.ReferrerColumn, e.ReferrerTable, e.ReferredTable)
}

// DetachedDefaultUndefined reports a DETACHED DEFAULT column with no
// DEFAULTS assignment.
type DetachedDefaultUndefined struct {
	Table  string
	Column string
}

func (e *DetachedDefaultUndefined) Error() string {
	return fmt.Sprintf("%s.%s: DETACHED DEFAULT column has no value in a DEFAULTS block", e.Table, e.Column)
}

// DetachedDefaultDefinedMultipleTimes reports two DEFAULTS assignments for
// the same column.
type DetachedDefaultDefinedMultipleTimes struct {
	Table       string
	Column      string
	ExpressionA string
	ExpressionB string
}

func (e *DetachedDefaultDefinedMultipleTimes) Error() string {
	return fmt.Sprintf("%s.%s: defined twice in DEFAULTS (%q and %q)", e.Table, e.Column, e.ExpressionA, e.ExpressionB)
}

// DetachedDefaultNonExistingTable reports a DEFAULTS assignment naming an
// unknown table.
type DetachedDefaultNonExistingTable struct {
	Table      string
	Column     string
	Expression string
}

func (e *DetachedDefaultNonExistingTable) Error() string {
	return fmt.Sprintf("DEFAULTS: table %q does not exist (assigning %s=%s)", e.Table, e.Column, e.Expression)
}

// DetachedDefaultNonExistingColumn reports a DEFAULTS assignment naming an
// unknown column.
type DetachedDefaultNonExistingColumn struct {
	Table      string
	Column     string
	Expression string
}

func (e *DetachedDefaultNonExistingColumn) Error() string {
	return fmt.Sprintf("DEFAULTS: %s.%s does not exist (assigning =%s)", e.Table, e.Column, e.Expression)
}

// DetachedDefaultBadValue reports a DEFAULTS value that fails to parse as
// its column's declared type.
type DetachedDefaultBadValue struct {
	Table        string
	Column       string
	ExpectedType DBType
	Value        string
	Err          string
}

func (e *DetachedDefaultBadValue) Error() string {
	return fmt.Sprintf("DEFAULTS: %s.%s: cannot parse %q as %s: %s", e.Table, e.Column, e.Value, e.ExpectedType, e.Err)
}

// LuaSourcesLoadError reports a syntax error while loading an INCLUDE LUA
// block or file.
type LuaSourcesLoadError struct {
	SourceFile string
	Error_     string
}

func (e *LuaSourcesLoadError) Error() string {
	return fmt.Sprintf("lua source %q failed to load: %s", e.SourceFile, e.Error_)
}

// LuaCheckExpressionLoadError reports a syntax error compiling a CHECK
// expression.
type LuaCheckExpressionLoadError struct {
	TableName  string
	Expression string
	Error_     string
}

func (e *LuaCheckExpressionLoadError) Error() string {
	return fmt.Sprintf("%s: CHECK expression %q failed to compile: %s", e.TableName, e.Expression, e.Error_)
}

// LuaCheckEvaluationErrorUnexpectedReturnType reports a CHECK expression
// whose evaluated result was not a boolean.
type LuaCheckEvaluationErrorUnexpectedReturnType struct {
	TableName   string
	Expression  string
	ColumnNames []string
	RowValues   []string
	Error_      string
}

func (e *LuaCheckEvaluationErrorUnexpectedReturnType) Error() string {
	return fmt.Sprintf("%s: CHECK %q: %s", e.TableName, e.Expression, e.Error_)
}

// LuaCheckEvaluationFailed reports a CHECK expression that evaluated to
// false for a row.
type LuaCheckEvaluationFailed struct {
	TableName   string
	Expression  string
	ColumnNames []string
	RowValues   []string
	Error_      string
}

func (e *LuaCheckEvaluationFailed) Error() string {
	return fmt.Sprintf("%s: CHECK %q failed for row (%s): %s",
		e.TableName, e.Expression, strings.Join(e.RowValues, ", "), e.Error_)
}

// LuaDataTableError reports the private data() buffer having been
// overwritten with something other than a table.
type LuaDataTableError struct {
	Error_ string
}

func (e *LuaDataTableError) Error() string {
	return fmt.Sprintf("lua data table corrupted: %s", e.Error_)
}

// LuaDataTableInvalidKeyTypeIsNotString reports a data() call keyed by a
// non-string table name.
type LuaDataTableInvalidKeyTypeIsNotString struct {
	FoundValue string
}

func (e *LuaDataTableInvalidKeyTypeIsNotString) Error() string {
	return fmt.Sprintf("lua data table key must be a string, found %s", e.FoundValue)
}

// LuaDataTableInvalidKeyTypeIsNotValidUtf8String reports a data() table name
// key that is not valid UTF-8.
type LuaDataTableInvalidKeyTypeIsNotValidUtf8String struct {
	LossyValue string
	Bytes      []byte
}

func (e *LuaDataTableInvalidKeyTypeIsNotValidUtf8String) Error() string {
	return fmt.Sprintf("lua data table key is not valid utf-8: %q", e.LossyValue)
}

// LuaDataTableInvalidTableValue reports a non-table value assigned under a
// table-name key of the pending data buffer.
type LuaDataTableInvalidTableValue struct {
	FoundValue string
}

func (e *LuaDataTableInvalidTableValue) Error() string {
	return fmt.Sprintf("lua data table entry must be a table of records, found %s", e.FoundValue)
}

// LuaDataTableNoSuchTable reports a data() call naming a table absent from
// the schema.
type LuaDataTableNoSuchTable struct {
	ExpectedInsertionTable string
}

func (e *LuaDataTableNoSuchTable) Error() string {
	return fmt.Sprintf("data(): no such table %q", e.ExpectedInsertionTable)
}

// LuaDataTableInvalidRecordValue reports a data() record argument that is
// not a Lua table.
type LuaDataTableInvalidRecordValue struct {
	FoundValue string
}

func (e *LuaDataTableInvalidRecordValue) Error() string {
	return fmt.Sprintf("data(): record must be a table, found %s", e.FoundValue)
}

// LuaDataTableInvalidRecordColumnNameValue reports a record whose key is
// not a string.
type LuaDataTableInvalidRecordColumnNameValue struct {
	FoundValue string
}

func (e *LuaDataTableInvalidRecordColumnNameValue) Error() string {
	return fmt.Sprintf("data(): record column name must be a string, found %s", e.FoundValue)
}

// LuaDataTableRecordInvalidColumnNameUtf8String reports a record key that is
// not valid UTF-8.
type LuaDataTableRecordInvalidColumnNameUtf8String struct {
	LossyValue string
	Bytes      []byte
}

func (e *LuaDataTableRecordInvalidColumnNameUtf8String) Error() string {
	return fmt.Sprintf("data(): record column name is not valid utf-8: %q", e.LossyValue)
}

// LuaDataTableRecordInvalidColumnValue reports a record value that cannot be
// converted to a column value (e.g. a function).
type LuaDataTableRecordInvalidColumnValue struct {
	ColumnName  string
	ColumnValue string
}

func (e *LuaDataTableRecordInvalidColumnValue) Error() string {
	return fmt.Sprintf("data(): column %q has invalid value %s", e.ColumnName, e.ColumnValue)
}

// SqlProofTableNotFound reports a PROOF naming an unknown table.
type SqlProofTableNotFound struct {
	TableName       string
	Comment         string
	ProofExpression string
}

func (e *SqlProofTableNotFound) Error() string {
	return fmt.Sprintf("PROOF %q: table %q not found", e.Comment, e.TableName)
}

// SqlProofQueryPlanningError reports a PROOF whose SQL failed to parse or plan.
type SqlProofQueryPlanningError struct {
	TableName       string
	ProofExpression string
	Error_          string
	Comment         string
}

func (e *SqlProofQueryPlanningError) Error() string {
	return fmt.Sprintf("PROOF %q: query planning error: %s", e.Comment, e.Error_)
}

// SqlProofQueryErrorSingleRowIdColumnExpected reports a PROOF query whose
// output shape is not exactly one column named rowid.
type SqlProofQueryErrorSingleRowIdColumnExpected struct {
	TableName       string
	ProofExpression string
	Error_          string
	Comment         string
}

func (e *SqlProofQueryErrorSingleRowIdColumnExpected) Error() string {
	return fmt.Sprintf("PROOF %q: %s", e.Comment, e.Error_)
}

// SqlProofQueryColumnOriginMismatchesExpected reports a PROOF query whose
// sole output column does not originate from the declared table.
type SqlProofQueryColumnOriginMismatchesExpected struct {
	ProofExpression           string
	Error_                    string
	ExpectedColumnOriginTable string
	ExpectedColumnOriginName  string
	ActualColumnOriginTable   string
	ActualColumnOriginName    string
	Comment                   string
}

func (e *SqlProofQueryColumnOriginMismatchesExpected) Error() string {
	return fmt.Sprintf("PROOF %q: %s (expected %s.%s, got %s.%s)",
		e.Comment, e.Error_, e.ExpectedColumnOriginTable, e.ExpectedColumnOriginName,
		e.ActualColumnOriginTable, e.ActualColumnOriginName)
}

// SqlProofQueryError reports a runtime error executing a PROOF query
// (parameter binding, write attempts, etc). Error_ is passed through
// verbatim from the SQL engine.
type SqlProofQueryError struct {
	Error_          string
	TableName       string
	ProofExpression string
	Comment         string
}

func (e *SqlProofQueryError) Error() string {
	return fmt.Sprintf("PROOF %q: %s", e.Comment, e.Error_)
}

// SqlProofOffendersFound reports a PROOF query that returned at least one row.
type SqlProofOffendersFound struct {
	TableName        string
	ProofExpression  string
	Comment          string
	OffendingColumns []string
}

func (e *SqlProofOffendersFound) Error() string {
	return fmt.Sprintf("PROOF %q: %d offending row(s) found in %s", e.Comment, len(e.OffendingColumns), e.TableName)
}

// ParseError reports a syntax error in the EDL surface grammar.
type ParseError struct {
	File    string
	Line    int
	Column  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
}
