package result

import (
	"encoding/json"
	"math"
	"math/big"
	"net/netip"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fields(cols ...any) []pgconn.FieldDescription {
	var out []pgconn.FieldDescription
	for i := 0; i < len(cols); i += 2 {
		out = append(out, pgconn.FieldDescription{Name: cols[i].(string), DataTypeOID: cols[i+1].(uint32)})
	}
	return out
}

func TestMapper_PreservesColumnOrder(t *testing.T) {
	m := NewMapper(fields("zeta", uint32(pgtype.TextOID), "alpha", uint32(pgtype.Int4OID), "mid", uint32(pgtype.BoolOID)))

	rec, err := m.Map([]any{"z", int32(1), true})
	require.NoError(t, err)

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":"z","alpha":1,"mid":true}`, string(data))
}

func TestMapper_NullIsExplicit(t *testing.T) {
	m := NewMapper(fields("a", uint32(pgtype.TextOID), "b", uint32(pgtype.TextOID)))
	rec, err := m.Map([]any{nil, "x"})
	require.NoError(t, err)

	v, present := rec.Get("a")
	assert.True(t, present)
	assert.Equal(t, Null, v)

	_, present = rec.Get("c")
	assert.False(t, present)

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Equal(t, `{"a":null,"b":"x"}`, string(data))
}

func TestMapper_DuplicateNames(t *testing.T) {
	m := NewMapper(fields(
		"id", uint32(pgtype.Int4OID),
		"id", uint32(pgtype.Int4OID),
		"id_2", uint32(pgtype.Int4OID),
		"id", uint32(pgtype.Int4OID),
	))

	var names []string
	for _, c := range m.Columns() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"id", "id_3", "id_2", "id_4"}, names)

	rec, err := m.Map([]any{int32(1), int32(2), int32(3), int32(4)})
	require.NoError(t, err)
	assert.Equal(t, 4, rec.Len())
}

func TestMapper_ColumnTypes(t *testing.T) {
	m := NewMapper(fields("n", uint32(pgtype.NumericOID), "tags", uint32(pgtype.TextArrayOID), "x", uint32(99999)))
	cols := m.Columns()
	assert.Equal(t, "NUMERIC", cols[0].Type)
	assert.Equal(t, "TEXT[]", cols[1].Type)
	assert.Equal(t, "UNKNOWN", cols[2].Type)
}

func TestMapper_ValueCountMismatch(t *testing.T) {
	m := NewMapper(fields("a", uint32(pgtype.TextOID)))
	_, err := m.Map([]any{"x", "y"})
	assert.Error(t, err)
}

func TestMapValue(t *testing.T) {
	ts := time.Date(2024, 3, 5, 14, 30, 0, 123000000, time.UTC)
	id := uuid.MustParse("6f1c2a9e-2d4b-4c1a-9a55-0c8f6f2a7b10")

	tests := []struct {
		name string
		oid  uint32
		in   any
		want any
	}{
		{name: "string", oid: pgtype.TextOID, in: "hi", want: "hi"},
		{name: "int", oid: pgtype.Int8OID, in: int64(42), want: int64(42)},
		{name: "float", oid: pgtype.Float8OID, in: 1.5, want: 1.5},
		{name: "nan", oid: pgtype.Float8OID, in: math.NaN(), want: "NaN"},
		{name: "infinity", oid: pgtype.Float8OID, in: math.Inf(-1), want: "-Infinity"},
		{name: "timestamp", oid: pgtype.TimestamptzOID, in: ts, want: "2024-03-05T14:30:00.123Z"},
		{name: "date", oid: pgtype.DateOID, in: ts, want: "2024-03-05"},
		{name: "bytea", oid: pgtype.ByteaOID, in: []byte{0xde, 0xad}, want: `\xdead`},
		{name: "uuid bytes", oid: pgtype.UUIDOID, in: [16]byte(id), want: id.String()},
		{name: "numeric keeps scale", oid: pgtype.NumericOID, in: pgtype.Numeric{Int: big.NewInt(1050), Exp: -2, Valid: true}, want: "10.50"},
		{name: "numeric integer", oid: pgtype.NumericOID, in: pgtype.Numeric{Int: big.NewInt(12), Exp: 3, Valid: true}, want: "12000"},
		{name: "numeric nan", oid: pgtype.NumericOID, in: pgtype.Numeric{NaN: true, Valid: true}, want: "NaN"},
		{name: "numeric null", oid: pgtype.NumericOID, in: pgtype.Numeric{}, want: Null},
		{name: "inet", oid: pgtype.InetOID, in: netip.MustParsePrefix("10.0.0.0/8"), want: "10.0.0.0/8"},
		{name: "array with null", oid: pgtype.Int4ArrayOID, in: []any{int32(1), nil}, want: []any{int32(1), Null}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapValue(tt.oid, tt.in))
		})
	}
}

func TestMapValue_JSONObject(t *testing.T) {
	in := map[string]any{
		"b":    float64(1),
		"a":    []any{"x", nil},
		"nest": map[string]any{"k": "v"},
	}
	out := MapValue(pgtype.JSONBOID, in)

	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.Equal(t, `{"a":["x",null],"b":1,"nest":{"k":"v"}}`, string(data))
}

func TestSet_JSON(t *testing.T) {
	m := NewMapper(fields("id", uint32(pgtype.Int4OID)))
	rec, err := m.Map([]any{int32(7)})
	require.NoError(t, err)

	set := &Set{Columns: m.Columns(), Records: []Record{rec}}
	assert.Equal(t, 1, set.Len())

	data, err := json.Marshal(set)
	require.NoError(t, err)
	assert.JSONEq(t, `{"columns":[{"name":"id","type":"INT4"}],"rows":[{"id":7}]}`, string(data))
}
