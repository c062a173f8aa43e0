package edl_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edendb/edendb/internal/dberr"
	"github.com/edendb/edendb/internal/edl"
)

func parse(t *testing.T, src string) *edl.File {
	t.Helper()
	f, err := edl.ParseSources([]edl.InputSource{{Contents: &src, Path: "test.edl"}})
	require.NoError(t, err)
	return f
}

func TestParseTableColumns(t *testing.T) {
	f := parse(t, `
TABLE thic_boi {
	id INT,
	name TEXT,
	b BOOL,
	f FLOAT,
	fk REF some_enum,
}
`)
	require.Len(t, f.Tables, 1)
	tbl := f.Tables[0]
	require.Equal(t, "thic_boi", tbl.Name)
	require.Len(t, tbl.Columns, 5)
	require.Equal(t, "id", tbl.Columns[0].Name)
	require.Equal(t, "INT", tbl.Columns[0].Type)
	require.Equal(t, "some_enum", tbl.Columns[4].RefTable)
}

func TestParseRejectsColonAfterColumnName(t *testing.T) {
	src := `
TABLE docker_container_port {
	port_name: TEXT PRIMARY KEY CHILD OF docker_container,
	reserved_port: REF reserved_port,
}
`
	_, err := edl.ParseSources([]edl.InputSource{{Contents: &src, Path: "test.edl"}})
	require.Error(t, err)
	var target *dberr.ParseError
	require.ErrorAs(t, err, &target)
}

func TestParseColumnModifiers(t *testing.T) {
	f := parse(t, `
TABLE t {
	a TEXT PRIMARY KEY CHILD OF p,
	b REF other,
	c REF FOREIGN CHILD descendant,
	d INT DETACHED DEFAULT,
	e BOOL GENERATED AS { a % 2 == 0 },
}
`)
	cols := f.Tables[0].Columns
	require.True(t, cols[0].PrimaryKey)
	require.Equal(t, "p", cols[0].ChildOf)
	require.Equal(t, "other", cols[1].RefTable)
	require.Equal(t, "descendant", cols[2].RefForeignChildTable)
	require.True(t, cols[3].DetachedDefault)
	require.NotNil(t, cols[4].GeneratedExpr)
	require.Equal(t, " a % 2 == 0 ", *cols[4].GeneratedExpr)
}

func TestParseCheckPreservesWhitespace(t *testing.T) {
	f := parse(t, `
TABLE cholo {
	id INT PRIMARY KEY,
	CHECK { id > 7 }
}
`)
	require.Len(t, f.Tables[0].Checks, 1)
	require.Equal(t, " id > 7 ", f.Tables[0].Checks[0].Expression)
}

func TestParsePositionalRowsAndNestedWith(t *testing.T) {
	f := parse(t, `
DATA EXCLUSIVE some_enum {
	warm WITH enum_child_a {
		barely warm;
		medium warm;
	} WITH enum_child_b {
		barely degrees;
	};
	hot;
}
`)
	require.Len(t, f.Data, 1)
	d := f.Data[0]
	require.True(t, d.Exclusive)
	require.Equal(t, "some_enum", d.Table)
	require.Len(t, d.Rows, 2)

	warm := d.Rows[0]
	require.Equal(t, []string{"warm"}, warm.Values)
	require.Len(t, warm.With, 2)
	require.Equal(t, "enum_child_a", warm.With[0].Table)
	require.Len(t, warm.With[0].Rows, 2)
	require.Equal(t, []string{"barely warm"}, warm.With[0].Rows[0].Values)
	require.Equal(t, "enum_child_b", warm.With[1].Table)

	require.Equal(t, []string{"hot"}, d.Rows[1].Values)
}

func TestParseMultiValuePositionalRows(t *testing.T) {
	f := parse(t, `
DATA thic_boi {
	1, hey ho, true, 1.23, warm;
	2, here she goes, false, 3.21, hot;
}
`)
	rows := f.Data[0].Rows
	require.Len(t, rows, 2)
	require.Equal(t, []string{"1", "hey ho", "true", "1.23", "warm"}, rows[0].Values)
	require.Equal(t, []string{"2", "here she goes", "false", "3.21", "hot"}, rows[1].Values)
}

func TestParseStructRows(t *testing.T) {
	f := parse(t, `
DATA STRUCT docker_container {
	hostname: epyc-1, container_name: doofus WITH docker_container_port {
		port_name: somethin, reserved_port: 1234
	}
}
`)
	d := f.Data[0]
	require.True(t, d.Struct)
	require.Len(t, d.Rows, 1)
	row := d.Rows[0]
	require.Equal(t, "epyc-1", row.Fields["hostname"])
	require.Equal(t, "doofus", row.Fields["container_name"])
	require.Len(t, row.With, 1)
	require.Equal(t, "somethin", row.With[0].Rows[0].Fields["port_name"])
	require.Equal(t, "1234", row.With[0].Rows[0].Fields["reserved_port"])
}

func TestParseDefaultsBlock(t *testing.T) {
	f := parse(t, `
DEFAULTS {
	kukushkin.int_col 7,
	kukushkin.text_col "hello detached defaults",
}
`)
	require.Len(t, f.Defaults, 1)
	a := f.Defaults[0].Assignments
	require.Len(t, a, 2)
	require.Equal(t, "kukushkin", a[0].Table)
	require.Equal(t, "int_col", a[0].Column)
	require.Equal(t, "7", a[0].Value)
	require.Equal(t, "hello detached defaults", a[1].Value)
}

func TestParseIncludeLuaForms(t *testing.T) {
	f := parse(t, `
INCLUDE LUA "scripts/shared.lua"
INCLUDE LUA {
	function double(x) return x * 2 end
}
`)
	require.Len(t, f.Includes, 2)
	require.NotNil(t, f.Includes[0].Path)
	require.Equal(t, "scripts/shared.lua", *f.Includes[0].Path)
	require.NotNil(t, f.Includes[1].Inline)
	require.Contains(t, *f.Includes[1].Inline, "function double(x)")
}

func TestParseInlineIncludeCarriesSourceDir(t *testing.T) {
	src := `INCLUDE LUA { x = 1 }`
	dir := "/srv/edl"
	f, err := edl.ParseSources([]edl.InputSource{{Contents: &src, Path: "test.edl", SourceDir: &dir}})
	require.NoError(t, err)
	require.Equal(t, "/srv/edl", f.Includes[0].SourceDir)
}

func TestParseProof(t *testing.T) {
	f := parse(t, `
PROOF "no id is more than 1" NONE EXIST OF cholo { SELECT rowid FROM cholo WHERE id > 1 }
`)
	require.Len(t, f.Proofs, 1)
	p := f.Proofs[0]
	require.Equal(t, "no id is more than 1", p.Comment)
	require.Equal(t, "cholo", p.Table)
	require.Equal(t, " SELECT rowid FROM cholo WHERE id > 1 ", p.SQL)
}

func TestParseQuotedValuesKeepInnerWhitespace(t *testing.T) {
	f := parse(t, `
DATA server_volume {
	host-a, "/volumes/vol a"
}
`)
	require.Equal(t, []string{"host-a", "/volumes/vol a"}, f.Data[0].Rows[0].Values)
}

func TestParseUnexpectedTopLevel(t *testing.T) {
	src := `GARBAGE { }`
	_, err := edl.ParseSources([]edl.InputSource{{Contents: &src, Path: "test.edl"}})
	require.Error(t, err)
	var target *dberr.ParseError
	require.ErrorAs(t, err, &target)
}
