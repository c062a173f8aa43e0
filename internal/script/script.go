// Package script backs INCLUDE LUA blocks and row-local CHECK predicates
// with a real embedded gopher-lua VM. Row data a script emits via data()
// lands in a private pending-rows table that is drained — and only then
// validated — once every include has finished running, matching the way
// CHECK expressions are compiled lazily against each materialised row.
package script

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	lua "github.com/yuin/gopher-lua"

	"github.com/edendb/edendb/internal/dberr"
	"github.com/edendb/edendb/internal/materialize"
	"github.com/edendb/edendb/internal/schema"
)

const pendingRowsGlobal = "__edendb_pending_rows__"

// Runtime is one gopher-lua VM shared across every INCLUDE LUA source in a
// compilation and every row-local CHECK evaluation.
type Runtime struct {
	L   *lua.LState
	sch *schema.Schema
}

// NewRuntime allocates a VM, wires the pending-rows table and the data()
// host function, and leaves SOURCE_DIR unset until the first file include.
func NewRuntime(sch *schema.Schema) *Runtime {
	L := lua.NewState()
	L.SetGlobal(pendingRowsGlobal, L.NewTable())
	rt := &Runtime{L: L, sch: sch}
	L.SetGlobal("data", L.NewFunction(rt.dataFn))
	return rt
}

// Close releases the VM.
func (rt *Runtime) Close() { rt.L.Close() }

// SetSourceDir rebinds the SOURCE_DIR constant, used for inline include
// blocks whose enclosing input source declared a source_dir.
func (rt *Runtime) SetSourceDir(dir string) {
	rt.L.SetGlobal("SOURCE_DIR", lua.LString(dir))
}

// RunInline executes an `INCLUDE LUA { ... }` block's source text.
func (rt *Runtime) RunInline(source string) error {
	if err := rt.L.DoString(source); err != nil {
		return &dberr.LuaSourcesLoadError{SourceFile: "inline", Error_: err.Error()}
	}
	return nil
}

// RunFile executes an `INCLUDE LUA "path"` file, rebinding SOURCE_DIR to
// the absolute directory containing it before running its top-level code.
func (rt *Runtime) RunFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("script: resolving %q: %w", path, err)
	}
	rt.L.SetGlobal("SOURCE_DIR", lua.LString(filepath.Dir(abs)))
	if err := rt.L.DoFile(path); err != nil {
		return &dberr.LuaSourcesLoadError{SourceFile: path, Error_: err.Error()}
	}
	return nil
}

// dataFn implements the data(table_name, record) host function. It performs
// no validation itself: it writes whatever it was given into the pending
// table, keyed first by table name then appended as a new record, exactly
// as Lua table semantics allow regardless of the argument types — every
// check of those types happens later, in Drain.
func (rt *Runtime) dataFn(L *lua.LState) int {
	name := L.Get(1)
	record := L.Get(2)

	pending, ok := L.GetGlobal(pendingRowsGlobal).(*lua.LTable)
	if !ok {
		L.RaiseError("internal pending-rows table corrupted")
		return 0
	}

	bucket, ok := pending.RawGet(name).(*lua.LTable)
	if !ok {
		bucket = L.NewTable()
		pending.RawSet(name, bucket)
	}
	bucket.Append(record)
	return 0
}

// Drain walks every table.record entry the scripts accumulated via data(),
// validating it against db as it goes, and inserts every valid record.
// Validation order is enumeration order of the pending table (insertion
// order within a bucket, buckets visited in the order Lua first saw them).
func (rt *Runtime) Drain(db *materialize.Database) error {
	raw := rt.L.GetGlobal(pendingRowsGlobal)
	pending, ok := raw.(*lua.LTable)
	if !ok {
		return &dberr.LuaDataTableError{Error_: fmt.Sprintf("error converting Lua %s to table", luaTypeName(raw))}
	}

	// Iterate with Next rather than ForEach: Next walks the table's keys in
	// insertion order, ForEach ranges over Go maps and would make the drain
	// order of multi-table scripts nondeterministic.
	key := lua.LValue(lua.LNil)
	for {
		k, v := pending.Next(key)
		if k == lua.LNil {
			break
		}
		if err := rt.drainTableBucket(db, k, v); err != nil {
			return err
		}
		key = k
	}
	return nil
}

func (rt *Runtime) drainTableBucket(db *materialize.Database, key, value lua.LValue) error {
	tableName, ok := key.(lua.LString)
	if !ok {
		return &dberr.LuaDataTableInvalidKeyTypeIsNotString{FoundValue: describeLua(key)}
	}
	if !utf8.ValidString(string(tableName)) {
		return &dberr.LuaDataTableInvalidKeyTypeIsNotValidUtf8String{
			LossyValue: lossyUTF8(string(tableName)),
			Bytes:      []byte(tableName),
		}
	}

	bucket, ok := value.(*lua.LTable)
	if !ok {
		return &dberr.LuaDataTableInvalidTableValue{FoundValue: describeLua(value)}
	}

	tbl := rt.sch.Table(string(tableName))
	if tbl == nil {
		return &dberr.LuaDataTableNoSuchTable{ExpectedInsertionTable: string(tableName)}
	}
	if err := db.NoteDataSite(string(tableName), false); err != nil {
		return err
	}

	var recordErr error
	bucket.ForEach(func(_, record lua.LValue) {
		if recordErr != nil {
			return
		}
		recordErr = rt.insertRecord(db, tbl, record)
	})
	return recordErr
}

func (rt *Runtime) insertRecord(db *materialize.Database, tbl *schema.Table, record lua.LValue) error {
	recTable, ok := record.(*lua.LTable)
	if !ok {
		return &dberr.LuaDataTableInvalidRecordValue{FoundValue: describeLua(record)}
	}

	fields := map[string]string{}
	var fieldErr error
	recTable.ForEach(func(k, v lua.LValue) {
		if fieldErr != nil {
			return
		}
		colName, ok := k.(lua.LString)
		if !ok {
			fieldErr = &dberr.LuaDataTableInvalidRecordColumnNameValue{FoundValue: describeLua(k)}
			return
		}
		if !utf8.ValidString(string(colName)) {
			fieldErr = &dberr.LuaDataTableRecordInvalidColumnNameUtf8String{
				LossyValue: lossyUTF8(string(colName)),
				Bytes:      []byte(colName),
			}
			return
		}
		raw, err := luaValueToRaw(v)
		if err != nil {
			fieldErr = &dberr.LuaDataTableRecordInvalidColumnValue{ColumnName: string(colName), ColumnValue: describeLua(v)}
			return
		}
		fields[string(colName)] = raw
	})
	if fieldErr != nil {
		return fieldErr
	}

	_, err := db.Insert(tbl.Name, fields, nil)
	return err
}

// lossyUTF8 decodes a byte string the way lossy UTF-8 decoding renders
// diagnostics: every invalid byte becomes its own U+FFFD, so a run of n
// bad bytes keeps its length instead of collapsing into one replacement.
func lossyUTF8(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			sb.WriteRune(utf8.RuneError)
		} else {
			sb.WriteString(s[i : i+size])
		}
		i += size
	}
	return sb.String()
}

// luaValueToRaw converts a scalar Lua value into the raw literal text
// schema.ParseValue expects; it rejects tables and functions.
func luaValueToRaw(v lua.LValue) (string, error) {
	switch t := v.(type) {
	case lua.LString:
		return string(t), nil
	case lua.LBool:
		return strconv.FormatBool(bool(t)), nil
	case lua.LNumber:
		f := float64(t)
		if f == float64(int64(f)) {
			return strconv.FormatInt(int64(f), 10), nil
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	default:
		return "", fmt.Errorf("unsupported lua value %s", v.Type().String())
	}
}

// describeLua renders a Lua value the way the diagnostics above report
// "found_value": a type name followed by a best-effort rendering of it.
func describeLua(v lua.LValue) string {
	switch t := v.(type) {
	case lua.LString:
		return fmt.Sprintf("string %q", string(t))
	case lua.LNumber:
		f := float64(t)
		if f == float64(int64(f)) {
			return fmt.Sprintf("integer %d", int64(f))
		}
		return fmt.Sprintf("float %v", f)
	case lua.LBool:
		return fmt.Sprintf("boolean %v", bool(t))
	case *lua.LFunction:
		return "*lua function*"
	case *lua.LTable:
		return "table"
	case *lua.LNilType:
		return "nil"
	default:
		return v.Type().String()
	}
}

// CompileCheck loads a row-local `CHECK { expr }` body as a Lua function.
// The body is usually a bare trailing expression (e.g. `id > 0`), which is
// not itself a valid Lua statement, so the last non-blank line is rewritten
// with an explicit `return` unless it already starts with a statement
// keyword listed in chunkEndingKeywords
// (return/end/until/else/elseif/break/goto).
func (rt *Runtime) CompileCheck(tableName, expression string) (*lua.LFunction, error) {
	src := addImplicitReturn(expression)
	fn, err := rt.L.LoadString(src)
	if err != nil {
		return nil, &dberr.LuaCheckExpressionLoadError{TableName: tableName, Expression: expression, Error_: err.Error()}
	}
	return fn, nil
}

var chunkEndingKeywords = []string{"return", "end", "until", "else", "elseif", "break", "goto"}

func addImplicitReturn(body string) string {
	lines := strings.Split(body, "\n")
	lastIdx := -1
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			lastIdx = i
			break
		}
	}
	if lastIdx == -1 {
		return body
	}
	trimmed := strings.TrimSpace(lines[lastIdx])
	for _, kw := range chunkEndingKeywords {
		if trimmed == kw || strings.HasPrefix(trimmed, kw+" ") || strings.HasPrefix(trimmed, kw+"(") {
			return body
		}
	}
	lines[lastIdx] = "return " + lines[lastIdx]
	return strings.Join(lines, "\n")
}

// EvaluateCheck runs a compiled CHECK function against one row's column
// values, bound as same-named Lua globals, and reports whether it passed.
func (rt *Runtime) EvaluateCheck(tableName, expression string, fn *lua.LFunction, columns []string, values map[string]schema.Value) error {
	saved := make(map[string]lua.LValue, len(columns))
	for _, c := range columns {
		saved[c] = rt.L.GetGlobal(c)
		rt.L.SetGlobal(c, valueToLua(values[c]))
	}
	defer func() {
		for _, c := range columns {
			rt.L.SetGlobal(c, saved[c])
		}
	}()

	rt.L.Push(fn)
	if err := rt.L.PCall(0, 1, nil); err != nil {
		return fmt.Errorf("%s: CHECK %q: runtime error: %w", tableName, expression, err)
	}
	result := rt.L.Get(-1)
	rt.L.Pop(1)

	rowValues := make([]string, len(columns))
	for i, c := range columns {
		rowValues[i] = values[c].String()
	}

	b, ok := result.(lua.LBool)
	if !ok {
		return &dberr.LuaCheckEvaluationErrorUnexpectedReturnType{
			TableName: tableName, Expression: expression, ColumnNames: columns, RowValues: rowValues,
			Error_: fmt.Sprintf("Unexpected expression return value, expected boolean, got %s", luaTypeName(result)),
		}
	}
	if !bool(b) {
		return &dberr.LuaCheckEvaluationFailed{
			TableName: tableName, Expression: expression, ColumnNames: columns, RowValues: rowValues,
			Error_: "Expression check for the row didn't pass.",
		}
	}
	return nil
}

// luaTypeName names a Lua value's kind for diagnostics: an integral number
// is "integer", any other number "number", and every other kind uses the
// name Lua's own type() gives it.
func luaTypeName(v lua.LValue) string {
	switch t := v.(type) {
	case lua.LNumber:
		if f := float64(t); f != float64(int64(f)) {
			return "number"
		}
		return "integer"
	case *lua.LNilType:
		return "nil"
	case lua.LString:
		return "string"
	case *lua.LTable:
		return "table"
	case *lua.LFunction:
		return "function"
	default:
		return v.Type().String()
	}
}

func valueToLua(v schema.Value) lua.LValue {
	switch v.Type {
	case schema.Int:
		return lua.LNumber(v.I)
	case schema.Float:
		return lua.LNumber(v.F)
	case schema.Bool:
		return lua.LBool(v.B)
	default:
		return lua.LString(v.S)
	}
}
