package output_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edendb/edendb/internal/edl"
	"github.com/edendb/edendb/internal/materialize"
	"github.com/edendb/edendb/internal/output"
	"github.com/edendb/edendb/internal/reference"
	"github.com/edendb/edendb/internal/schema"
)

func compile(t *testing.T, src string) (*schema.Schema, *materialize.Database) {
	t.Helper()
	f, err := edl.ParseSources([]edl.InputSource{{Contents: &src, Path: "t.edl"}})
	require.NoError(t, err)
	sch, err := schema.Resolve(f)
	require.NoError(t, err)
	db := materialize.NewDatabase(sch)
	for _, d := range f.Data {
		require.NoError(t, materialize.ProcessDataDecl(db, sch, d))
	}
	require.NoError(t, reference.Resolve(sch, db))
	return sch, db
}

const thicBoiSrc = `
TABLE some_enum {
	name TEXT PRIMARY KEY,
}
TABLE thic_boi {
	id INT PRIMARY KEY,
	text TEXT,
	var REF some_enum,
}
DATA some_enum {
	A;
	B;
}
DATA thic_boi {
	1, a, A;
	2, b, B;
	3, c, A;
}
`

func TestSerializeColumnLayout(t *testing.T) {
	sch, db := compile(t, thicBoiSrc)

	cols, err := output.Build(sch, db)
	require.NoError(t, err)
	require.Len(t, cols.Tables, 2)

	// some_enum declares before thic_boi, matching schema order.
	require.Equal(t, "some_enum", cols.Tables[0].Name)
	require.Equal(t, "thic_boi", cols.Tables[1].Name)

	thicBoi := cols.Tables[1]
	require.Equal(t, []int64{1, 2, 3}, thicBoi.Columns[0].Ints)
	require.Equal(t, []string{"a", "b", "c"}, thicBoi.Columns[1].Texts)
	// var REF some_enum: A is row 0, B is row 1.
	require.Equal(t, []int64{0, 1, 0}, thicBoi.Columns[2].Ints)
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	sch, db := compile(t, thicBoiSrc)

	bytes1, err := output.Serialize(sch, db)
	require.NoError(t, err)

	decoded, err := output.Decode(sch, bytes1)
	require.NoError(t, err)

	bytes2 := decoded.Encode()
	require.Equal(t, bytes1, bytes2)
}

func TestSerializeSkipsGeneratedColumns(t *testing.T) {
	sch, db := compile(t, `
TABLE boof {
	id INT PRIMARY KEY,
	is_even BOOL GENERATED AS { id % 2 == 0 },
}
DATA boof {
	1;
	2;
}
`)
	cols, err := output.Build(sch, db)
	require.NoError(t, err)
	require.Len(t, cols.Tables[0].Columns, 1)
	require.Equal(t, []int64{1, 2}, cols.Tables[0].Columns[0].Ints)
}

func TestSerializeIsDeterministic(t *testing.T) {
	sch, db := compile(t, thicBoiSrc)
	b1, err := output.Serialize(sch, db)
	require.NoError(t, err)
	b2, err := output.Serialize(sch, db)
	require.NoError(t, err)
	require.Equal(t, b1, b2)
}

func TestDescribe(t *testing.T) {
	sch, db := compile(t, thicBoiSrc)
	out := output.Describe(sch, db)
	require.Contains(t, out, "some_enum:")
	require.Contains(t, out, "thic_boi:")
	require.Contains(t, out, "2 row(s)")
	require.Contains(t, out, "3 row(s)")
}

func TestNewFormatterDispatch(t *testing.T) {
	sch, db := compile(t, thicBoiSrc)

	bin, err := output.NewFormatter("binary")
	require.NoError(t, err)
	binOut, err := bin.Format(sch, db)
	require.NoError(t, err)
	expected, _ := output.Serialize(sch, db)
	require.Equal(t, expected, binOut)

	desc, err := output.NewFormatter("describe")
	require.NoError(t, err)
	descOut, err := desc.Format(sch, db)
	require.NoError(t, err)
	require.Contains(t, string(descOut), "Compiled database")

	_, err = output.NewFormatter("bogus")
	require.Error(t, err)
}
