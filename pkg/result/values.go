package result

import (
	"database/sql/driver"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// MapValue converts a value decoded by pgx into a JSON-friendly one. oid
// is the column type, used where the Go type alone is ambiguous.
func MapValue(oid uint32, v any) any {
	switch v := v.(type) {
	case nil:
		return Null
	case bool, string, int16, int32, int64, int:
		return v
	case float32:
		return mapFloat(float64(v))
	case float64:
		return mapFloat(v)
	case time.Time:
		if oid == pgtype.DateOID {
			return v.Format(time.DateOnly)
		}
		return v.UTC().Format(time.RFC3339Nano)
	case []byte:
		return "\\x" + hex.EncodeToString(v)
	case [16]byte:
		return uuid.UUID(v).String()
	case uuid.UUID:
		return v.String()
	case pgtype.Numeric:
		return mapNumeric(v)
	case decimal.Decimal:
		return v.String()
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = MapValue(elementOID(oid), elem)
		}
		return out
	case map[string]any:
		return mapObject(v)
	case driver.Valuer:
		inner, err := v.Value()
		if err != nil {
			return fmt.Sprint(v)
		}
		if _, same := inner.(driver.Valuer); same {
			return fmt.Sprint(inner)
		}
		return MapValue(oid, inner)
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(v)
}

func mapFloat(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return f
}

// mapNumeric renders an exact decimal string, keeping the column's scale.
func mapNumeric(n pgtype.Numeric) any {
	switch {
	case !n.Valid:
		return Null
	case n.NaN:
		return "NaN"
	case n.InfinityModifier == pgtype.Infinity:
		return "Infinity"
	case n.InfinityModifier == pgtype.NegativeInfinity:
		return "-Infinity"
	case n.Int == nil:
		return "0"
	}
	d := decimal.NewFromBigInt(n.Int, n.Exp)
	if n.Exp < 0 {
		return d.StringFixed(-n.Exp)
	}
	return d.String()
}

// mapObject converts a decoded JSON object. Keys are sorted so the output
// is deterministic.
func mapObject(m map[string]any) Record {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := orderedmap.New[string, any](orderedmap.WithCapacity[string, any](len(m)))
	for _, k := range keys {
		out.Set(k, MapValue(0, m[k]))
	}
	return out
}

var arrayElements = map[uint32]uint32{
	pgtype.BoolArrayOID:        pgtype.BoolOID,
	pgtype.Int2ArrayOID:        pgtype.Int2OID,
	pgtype.Int4ArrayOID:        pgtype.Int4OID,
	pgtype.Int8ArrayOID:        pgtype.Int8OID,
	pgtype.TextArrayOID:        pgtype.TextOID,
	pgtype.VarcharArrayOID:     pgtype.VarcharOID,
	pgtype.Float4ArrayOID:      pgtype.Float4OID,
	pgtype.Float8ArrayOID:      pgtype.Float8OID,
	pgtype.NumericArrayOID:     pgtype.NumericOID,
	pgtype.DateArrayOID:        pgtype.DateOID,
	pgtype.TimestampArrayOID:   pgtype.TimestampOID,
	pgtype.TimestamptzArrayOID: pgtype.TimestamptzOID,
	pgtype.UUIDArrayOID:        pgtype.UUIDOID,
	pgtype.JSONBArrayOID:       pgtype.JSONBOID,
}

func elementOID(oid uint32) uint32 {
	return arrayElements[oid]
}

var typeNames = map[uint32]string{
	pgtype.BoolOID:        "BOOL",
	pgtype.ByteaOID:       "BYTEA",
	pgtype.QCharOID:       "CHAR",
	pgtype.NameOID:        "NAME",
	pgtype.Int8OID:        "INT8",
	pgtype.Int2OID:        "INT2",
	pgtype.Int4OID:        "INT4",
	pgtype.TextOID:        "TEXT",
	pgtype.OIDOID:         "OID",
	pgtype.JSONOID:        "JSON",
	pgtype.XMLOID:         "XML",
	pgtype.Float4OID:      "FLOAT4",
	pgtype.Float8OID:      "FLOAT8",
	pgtype.InetOID:        "INET",
	pgtype.CIDROID:        "CIDR",
	pgtype.BPCharOID:      "BPCHAR",
	pgtype.VarcharOID:     "VARCHAR",
	pgtype.DateOID:        "DATE",
	pgtype.TimeOID:        "TIME",
	pgtype.TimestampOID:   "TIMESTAMP",
	pgtype.TimestamptzOID: "TIMESTAMPTZ",
	pgtype.IntervalOID:    "INTERVAL",
	pgtype.TimetzOID:      "TIMETZ",
	pgtype.NumericOID:     "NUMERIC",
	pgtype.UUIDOID:        "UUID",
	pgtype.JSONBOID:       "JSONB",
	790:                   "MONEY",

	pgtype.BoolArrayOID:        "BOOL[]",
	pgtype.Int2ArrayOID:        "INT2[]",
	pgtype.Int4ArrayOID:        "INT4[]",
	pgtype.Int8ArrayOID:        "INT8[]",
	pgtype.TextArrayOID:        "TEXT[]",
	pgtype.VarcharArrayOID:     "VARCHAR[]",
	pgtype.Float4ArrayOID:      "FLOAT4[]",
	pgtype.Float8ArrayOID:      "FLOAT8[]",
	pgtype.NumericArrayOID:     "NUMERIC[]",
	pgtype.DateArrayOID:        "DATE[]",
	pgtype.TimestampArrayOID:   "TIMESTAMP[]",
	pgtype.TimestamptzArrayOID: "TIMESTAMPTZ[]",
	pgtype.UUIDArrayOID:        "UUID[]",
	pgtype.JSONBArrayOID:       "JSONB[]",
}

// TypeName maps a type OID to a short upper-case name, or "UNKNOWN".
func TypeName(oid uint32) string {
	if name, ok := typeNames[oid]; ok {
		return name
	}
	return "UNKNOWN"
}
