package compiler_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edendb/edendb/internal/compiler"
	"github.com/edendb/edendb/internal/dberr"
	"github.com/edendb/edendb/internal/edl"
)

func sources(src string) []edl.InputSource {
	return []edl.InputSource{{Contents: &src, Path: "t.edl"}}
}

func TestCompileFlatReferenceOK(t *testing.T) {
	res, err := compiler.Compile(sources(`
TABLE pkey_table { some_key TEXT PRIMARY KEY }
TABLE other_table { other_key REF pkey_table PRIMARY KEY }
DATA pkey_table { point_to }
DATA other_table { point_to }
`))
	require.NoError(t, err)
	require.Len(t, res.Database.Tables["pkey_table"].Rows, 1)
	require.Equal(t, "point_to", res.Database.Tables["pkey_table"].Rows[0].Values["some_key"].S)
	require.Len(t, res.Database.Tables["other_table"].Rows, 1)
	require.Equal(t, "point_to", res.Database.Tables["other_table"].Rows[0].Values["other_key"].S)
}

func TestCompileFlatReferenceMissing(t *testing.T) {
	_, err := compiler.Compile(sources(`
TABLE pkey_table { some_key TEXT PRIMARY KEY }
TABLE other_table { other_key REF pkey_table PRIMARY KEY }
DATA pkey_table { point_to }
DATA other_table { point_toz }
`))
	require.Error(t, err)
	var target *dberr.NonExistingForeignKey
	require.ErrorAs(t, err, &target)
	require.Equal(t, "other_table", target.TableWithForeignKey)
	require.Equal(t, "other_key", target.ForeignKeyColumn)
	require.Equal(t, "pkey_table", target.ReferredTable)
	require.Equal(t, "some_key", target.ReferredTableColumn)
	require.Equal(t, "point_toz", target.KeyValue)
}

func TestCompileCommonParentForeignKeys(t *testing.T) {
	src := `
TABLE server { hostname TEXT PRIMARY KEY }
TABLE reserved_port { port_number INT PRIMARY KEY CHILD OF server }
TABLE docker_container { container_name TEXT PRIMARY KEY CHILD OF server }
TABLE docker_container_port {
	port_name TEXT PRIMARY KEY CHILD OF docker_container,
	reserved_port REF reserved_port,
}
DATA server { epyc-1 }
DATA reserved_port { epyc-1, 1234 }
DATA docker_container { epyc-1, doofus }
DATA docker_container_port { epyc-1, doofus, somethin, %d }
`
	good := fmt.Sprintf(src, 1234)
	res, err := compiler.Compile(sources(good))
	require.NoError(t, err)
	for _, name := range []string{"server", "reserved_port", "docker_container", "docker_container_port"} {
		require.Len(t, res.Database.Tables[name].Rows, 1)
	}
	require.Equal(t, "epyc-1", res.Database.Tables["docker_container_port"].Rows[0].Values["hostname"].S)

	bad := fmt.Sprintf(src, 4321)
	_, err = compiler.Compile(sources(bad))
	require.Error(t, err)
	var target *dberr.NonExistingForeignKeyToChildTable
	require.ErrorAs(t, err, &target)
	require.Equal(t, []string{"epyc-1"}, target.TableParentKeys)
	require.Equal(t, []string{"server"}, target.TableParentTables)
	require.Equal(t, []string{"hostname"}, target.TableParentColumns)
	require.Equal(t, "4321", target.KeyValue)
}

func TestCompileCheckFails(t *testing.T) {
	_, err := compiler.Compile(sources(`
TABLE cholo {
	id INT PRIMARY KEY,
	CHECK { id > 7 }
}
DATA cholo { 2 }
`))
	require.Error(t, err)
	var target *dberr.LuaCheckEvaluationFailed
	require.ErrorAs(t, err, &target)
	require.Equal(t, "cholo", target.TableName)
	require.Equal(t, " id > 7 ", target.Expression)
	require.Equal(t, []string{"id"}, target.ColumnNames)
	require.Equal(t, []string{"2"}, target.RowValues)
	require.Equal(t, "Expression check for the row didn't pass.", target.Error_)
}

func TestCompileProofOffendersFound(t *testing.T) {
	_, err := compiler.Compile(sources(`
TABLE cholo { id INT PRIMARY KEY }
DATA cholo { 1; 2; 3; }
PROOF "no id is more than 1" NONE EXIST OF cholo { SELECT rowid FROM cholo WHERE id > 1 }
`))
	require.Error(t, err)
	var target *dberr.SqlProofOffendersFound
	require.ErrorAs(t, err, &target)
	require.Equal(t, "cholo", target.TableName)
	require.Equal(t, []string{
		"{\n  \"id\": 2.0\n}",
		"{\n  \"id\": 3.0\n}",
	}, target.OffendingColumns)
}

func TestCompileLuaEmittedRows(t *testing.T) {
	res, err := compiler.Compile(sources(`
TABLE stuff { id INT PRIMARY KEY }
DATA stuff { 1 }
INCLUDE LUA {
	for i = 2, 4 do
		data('stuff', { id = i })
	end
}
`))
	require.NoError(t, err)
	rows := res.Database.Tables["stuff"].Rows
	require.Len(t, rows, 4)
	// Textual rows first, then script rows in emission order.
	for i, row := range rows {
		require.Equal(t, int64(i+1), row.Values["id"].I)
	}
}

func TestCompileLuaIncludeSyntaxError(t *testing.T) {
	_, err := compiler.Compile(sources(`
TABLE stuff { id INT PRIMARY KEY }
INCLUDE LUA { this is not lua }
`))
	require.Error(t, err)
	var target *dberr.LuaSourcesLoadError
	require.ErrorAs(t, err, &target)
	require.Equal(t, "inline", target.SourceFile)
}

func TestCompileSharedLuaDefinitionsVisibleToChecks(t *testing.T) {
	res, err := compiler.Compile(sources(`
TABLE cholo {
	id INT PRIMARY KEY,
	CHECK { isSmall(id) }
}
INCLUDE LUA {
	function isSmall(x) return x < 100 end
}
DATA cholo { 7 }
`))
	require.NoError(t, err)
	require.Len(t, res.Database.Tables["cholo"].Rows, 1)
}

func TestCompileDetachedDefaultsRoundTrip(t *testing.T) {
	res, err := compiler.Compile(sources(`
TABLE kukushkin {
	id INT PRIMARY KEY,
	int_col INT DETACHED DEFAULT,
	bool_col BOOL DETACHED DEFAULT,
	text_col TEXT DETACHED DEFAULT,
	float_col FLOAT DETACHED DEFAULT,
}
DEFAULTS {
	kukushkin.int_col 7,
	kukushkin.bool_col true,
	kukushkin.text_col "hello detached defaults",
	kukushkin.float_col 7.77,
}
DATA kukushkin { 1 }
`))
	require.NoError(t, err)
	row := res.Database.Tables["kukushkin"].Rows[0]
	require.Equal(t, int64(1), row.Values["id"].I)
	require.Equal(t, int64(7), row.Values["int_col"].I)
	require.Equal(t, true, row.Values["bool_col"].B)
	require.Equal(t, "hello detached defaults", row.Values["text_col"].S)
	require.InDelta(t, 7.77, row.Values["float_col"].F, 0.0001)
}
