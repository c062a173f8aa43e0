package schema_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edendb/edendb/internal/dberr"
	"github.com/edendb/edendb/internal/edl"
	"github.com/edendb/edendb/internal/schema"
)

func mustParse(t *testing.T, src string) *edl.File {
	t.Helper()
	f, err := edl.ParseSources([]edl.InputSource{{Contents: &src, Path: "test.edl"}})
	require.NoError(t, err)
	return f
}

func TestResolveEffectiveKeyTuple(t *testing.T) {
	f := mustParse(t, `
TABLE server {
	hostname TEXT PRIMARY KEY,
}
TABLE server_volume {
	directory_path TEXT PRIMARY KEY CHILD OF server,
	UNIQUE(hostname, directory_path),
}
`)
	sch, err := schema.Resolve(f)
	require.NoError(t, err)

	vol := sch.Table("server_volume")
	require.NotNil(t, vol)
	require.Equal(t, []string{"server"}, vol.ParentChain())
	require.Equal(t, []schema.KeyTupleEntry{
		{Table: "server", Column: "hostname"},
		{Table: "server_volume", Column: "directory_path"},
	}, vol.KeyTuple)
}

func TestResolveMultiLevelEffectiveKeyTuple(t *testing.T) {
	f := mustParse(t, `
TABLE server {
	hostname TEXT PRIMARY KEY,
}
TABLE docker_container {
	container_name TEXT PRIMARY KEY CHILD OF server,
}
TABLE docker_container_port {
	port_name TEXT PRIMARY KEY CHILD OF docker_container,
}
`)
	sch, err := schema.Resolve(f)
	require.NoError(t, err)

	port := sch.Table("docker_container_port")
	require.Equal(t, []string{"server", "docker_container"}, port.ParentChain())
	require.Equal(t, []schema.KeyTupleEntry{
		{Table: "server", Column: "hostname"},
		{Table: "docker_container", Column: "container_name"},
		{Table: "docker_container_port", Column: "port_name"},
	}, port.KeyTuple)
}

func TestResolveUniqueRejectsUnknownColumn(t *testing.T) {
	f := mustParse(t, `
TABLE server_volume {
	directory_path TEXT PRIMARY KEY,
	UNIQUE(bogus),
}
`)
	_, err := schema.Resolve(f)
	require.Error(t, err)
}

func TestResolveDetectsParentCycle(t *testing.T) {
	f := mustParse(t, `
TABLE a {
	id TEXT PRIMARY KEY CHILD OF b,
}
TABLE b {
	id TEXT PRIMARY KEY CHILD OF a,
}
`)
	_, err := schema.Resolve(f)
	require.Error(t, err)
}

func TestResolveUnknownChildOfTarget(t *testing.T) {
	f := mustParse(t, `
TABLE a {
	id TEXT PRIMARY KEY CHILD OF ghost,
}
`)
	_, err := schema.Resolve(f)
	require.Error(t, err)
}

func TestResolveDefaultsAppliedToDetachedColumn(t *testing.T) {
	f := mustParse(t, `
TABLE widget {
	id TEXT PRIMARY KEY,
	color TEXT DETACHED DEFAULT,
}
DEFAULTS {
	widget.color "red",
}
`)
	sch, err := schema.Resolve(f)
	require.NoError(t, err)
	col := sch.Table("widget").Column("color")
	require.NotNil(t, col.DefaultValue)
	require.Equal(t, "red", col.DefaultValue.S)
}

func TestResolveDetachedDefaultUndefined(t *testing.T) {
	f := mustParse(t, `
TABLE widget {
	id TEXT PRIMARY KEY,
	color TEXT DETACHED DEFAULT,
}
`)
	_, err := schema.Resolve(f)
	require.Error(t, err)
	var target *dberr.DetachedDefaultUndefined
	require.ErrorAs(t, err, &target)
	require.Equal(t, "widget", target.Table)
	require.Equal(t, "color", target.Column)
}

func TestResolveDetachedDefaultDefinedTwice(t *testing.T) {
	f := mustParse(t, `
TABLE widget {
	id TEXT PRIMARY KEY,
	color TEXT DETACHED DEFAULT,
}
DEFAULTS {
	widget.color "red",
	widget.color "blue",
}
`)
	_, err := schema.Resolve(f)
	require.Error(t, err)
	var target *dberr.DetachedDefaultDefinedMultipleTimes
	require.ErrorAs(t, err, &target)
}

func TestResolveDetachedDefaultBadValue(t *testing.T) {
	f := mustParse(t, `
TABLE widget {
	id TEXT PRIMARY KEY,
	count INT DETACHED DEFAULT,
}
DEFAULTS {
	widget.count "not-a-number",
}
`)
	_, err := schema.Resolve(f)
	require.Error(t, err)
	var target *dberr.DetachedDefaultBadValue
	require.ErrorAs(t, err, &target)
	require.Equal(t, "Cannot parse value to expected type for this column", target.Err)
}

func TestResolveChildKeyCanAlsoBeForeignKey(t *testing.T) {
	f := mustParse(t, `
TABLE base_image {
	id TEXT PRIMARY KEY,
}
TABLE derived_image {
	id REF base_image PRIMARY KEY,
}
`)
	sch, err := schema.Resolve(f)
	require.NoError(t, err)
	col := sch.Table("derived_image").Column("id")
	require.True(t, col.PrimaryKey)
	require.Equal(t, "base_image", col.ForeignKeyTable)
}
