package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-gateway/pkg/apperrors"
)

func testFeed() Feed {
	return Feed{
		Tables: []TableSpec{
			{
				Name:    "users",
				Comment: "registered accounts",
				Columns: []ColumnDescriptor{
					{Name: "id", Type: "integer"},
					{Name: "name", Type: "text"},
					{Name: "city", Type: "text", Nullable: true, Comment: "home city"},
				},
			},
			{
				Name: "orders",
				Columns: []ColumnDescriptor{
					{Name: "id", Type: "integer"},
					{Name: "user_id", Type: "integer"},
					{Name: "total", Type: "numeric(10,2)"},
				},
				ForeignKeys: []ForeignKey{
					{Columns: []string{"user_id"}, TargetTable: "users", TargetColumns: []string{"id"}},
				},
			},
			{
				Schema: "Sales",
				Name:   "Invoices",
				Columns: []ColumnDescriptor{
					{Name: "ID", Type: "bigint"},
				},
			},
		},
		Routines: []string{"Score_User"},
	}
}

func mustCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := New(testFeed())
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		feed Feed
	}{
		{
			name: "empty table name",
			feed: Feed{Tables: []TableSpec{{Name: " "}}},
		},
		{
			name: "duplicate table differing in case",
			feed: Feed{Tables: []TableSpec{{Name: "users"}, {Name: "USERS"}}},
		},
		{
			name: "duplicate table via explicit public schema",
			feed: Feed{Tables: []TableSpec{{Name: "users"}, {Schema: "public", Name: "users"}}},
		},
		{
			name: "empty column name",
			feed: Feed{Tables: []TableSpec{{Name: "users", Columns: []ColumnDescriptor{{Name: ""}}}}},
		},
		{
			name: "duplicate column",
			feed: Feed{Tables: []TableSpec{{Name: "users", Columns: []ColumnDescriptor{{Name: "id"}, {Name: "ID"}}}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.feed)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrInvalidFeed)
		})
	}
}

func TestCatalog_Lookup(t *testing.T) {
	c := mustCatalog(t)

	tests := []struct {
		schema, name string
		want         string
		found        bool
	}{
		{"", "users", "users", true},
		{"", "USERS", "users", true},
		{"public", "Users", "users", true},
		{"sales", "invoices", "sales.invoices", true},
		{"SALES", "INVOICES", "sales.invoices", true},
		{"", "invoices", "", false},
		{"sales", "users", "", false},
		{"", "secrets", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.schema+"."+tt.name, func(t *testing.T) {
			td, ok := c.Lookup(tt.schema, tt.name)
			assert.Equal(t, tt.found, ok)
			if ok {
				assert.Equal(t, tt.want, td.QualifiedName())
			}
		})
	}
}

func TestTableDescriptor_Columns(t *testing.T) {
	c := mustCatalog(t)
	users, ok := c.Lookup("", "users")
	require.True(t, ok)

	assert.True(t, users.HasColumn("CITY"))
	assert.False(t, users.HasColumn("email"))

	col, ok := users.Column("City")
	require.True(t, ok)
	assert.Equal(t, "text", col.Type)
	assert.True(t, col.Nullable)

	cols := users.Columns()
	require.Len(t, cols, 3)
	assert.Equal(t, []string{"id", "name", "city"}, []string{cols[0].Name, cols[1].Name, cols[2].Name})

	// The returned slice is a copy.
	cols[0].Name = "mutated"
	again, _ := users.Column("id")
	assert.Equal(t, "id", again.Name)
}

func TestCatalog_TablesSorted(t *testing.T) {
	c := mustCatalog(t)
	var names []string
	for _, td := range c.Tables() {
		names = append(names, td.QualifiedName())
	}
	assert.Equal(t, []string{"orders", "sales.invoices", "users"}, names)
	assert.Equal(t, 3, c.Len())
}

func TestCatalog_HasRoutine(t *testing.T) {
	c := mustCatalog(t)
	assert.True(t, c.HasRoutine("score_user"))
	assert.False(t, c.HasRoutine("lower"))
}

func TestCatalog_Suggest(t *testing.T) {
	c := mustCatalog(t)

	tests := []struct {
		schema, name string
		want         string
		ok           bool
	}{
		{"", "user", "users", true},
		{"", "order", "orders", true},
		{"", "invoice", "", false},
		{"", "invoices", "sales.invoices", true},
		{"", "secrets", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := c.Suggest(tt.schema, tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCatalog_Describe(t *testing.T) {
	c := mustCatalog(t)

	got := c.Describe(0)
	assert.Contains(t, got, "Database schema:\n")
	assert.Contains(t, got, "Table: users -- registered accounts\n")
	assert.Contains(t, got, "  - city text NULL -- home city\n")
	assert.Contains(t, got, "  - id integer NOT NULL\n")
	assert.Contains(t, got, "  FK (user_id) -> users(id)\n")
	assert.Contains(t, got, "Table: sales.invoices\n")
	assert.NotContains(t, got, "omitted")

	truncated := c.Describe(1)
	assert.Contains(t, truncated, "Table: orders")
	assert.NotContains(t, truncated, "Table: users")
	assert.Contains(t, truncated, "(2 more tables omitted)")
}
