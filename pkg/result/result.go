// Package result converts driver row values into generic, order-preserving
// records that serialize cleanly to JSON.
package result

import (
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Record is one row. Keys are in column order.
type Record = *orderedmap.OrderedMap[string, any]

// NullValue marks SQL NULL. A key holding Null is present with a null
// value, unlike a missing key.
type NullValue struct{}

func (NullValue) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

func (NullValue) String() string {
	return "NULL"
}

// Null is the value stored for SQL NULL.
var Null = NullValue{}

// Column describes one output column.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Set is a fully consumed result.
type Set struct {
	Columns []Column `json:"columns"`
	Records []Record `json:"rows"`
}

func (s *Set) Len() int {
	return len(s.Records)
}

// Mapper turns value slices of one result into records. It is built once
// per result from the field descriptions.
type Mapper struct {
	columns []Column
	oids    []uint32
}

// NewMapper prepares a mapper. Duplicate column names get a numeric
// suffix: id, id_2, id_3.
func NewMapper(fields []pgconn.FieldDescription) *Mapper {
	m := &Mapper{
		columns: make([]Column, len(fields)),
		oids:    make([]uint32, len(fields)),
	}
	names := make([]string, len(fields))
	for i, fd := range fields {
		names[i] = fd.Name
		m.oids[i] = fd.DataTypeOID
	}
	for i, name := range uniqueNames(names) {
		m.columns[i] = Column{Name: name, Type: TypeName(fields[i].DataTypeOID)}
	}
	return m
}

func (m *Mapper) Columns() []Column {
	out := make([]Column, len(m.columns))
	copy(out, m.columns)
	return out
}

// Map converts one row.
func (m *Mapper) Map(values []any) (Record, error) {
	if len(values) != len(m.columns) {
		return nil, fmt.Errorf("row has %d values for %d columns", len(values), len(m.columns))
	}
	rec := orderedmap.New[string, any](orderedmap.WithCapacity[string, any](len(values)))
	for i, v := range values {
		rec.Set(m.columns[i].Name, MapValue(m.oids[i], v))
	}
	return rec, nil
}

// Map converts a single row without reusing a Mapper.
func Map(fields []pgconn.FieldDescription, values []any) (Record, error) {
	return NewMapper(fields).Map(values)
}

func uniqueNames(names []string) []string {
	out := make([]string, len(names))
	used := make(map[string]bool, len(names))
	for _, n := range names {
		used[n] = true
	}
	seen := make(map[string]bool, len(names))
	for i, n := range names {
		if !seen[n] {
			seen[n] = true
			out[i] = n
			continue
		}
		for k := 2; ; k++ {
			candidate := n + "_" + strconv.Itoa(k)
			if !used[candidate] {
				used[candidate] = true
				out[i] = candidate
				break
			}
		}
	}
	return out
}
