// Package catalog holds the immutable snapshot of queryable tables that the
// policy validator whitelists against, and the machinery that loads and
// refreshes it.
package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/ekaya-inc/ekaya-gateway/pkg/apperrors"
)

const defaultSchema = "public"

// ColumnDescriptor describes one queryable column.
type ColumnDescriptor struct {
	Name     string `yaml:"name" json:"name"`
	Type     string `yaml:"type" json:"type"`
	Nullable bool   `yaml:"nullable" json:"nullable"`
	Comment  string `yaml:"comment,omitempty" json:"comment,omitempty"`
}

// ForeignKey links columns of one table to another.
type ForeignKey struct {
	Columns       []string `yaml:"columns" json:"columns"`
	TargetSchema  string   `yaml:"target_schema,omitempty" json:"target_schema,omitempty"`
	TargetTable   string   `yaml:"target_table" json:"target_table"`
	TargetColumns []string `yaml:"target_columns" json:"target_columns"`
}

// TableSpec is the feed form of a table.
type TableSpec struct {
	Schema      string             `yaml:"schema,omitempty" json:"schema,omitempty"`
	Name        string             `yaml:"name" json:"name"`
	Comment     string             `yaml:"comment,omitempty" json:"comment,omitempty"`
	Columns     []ColumnDescriptor `yaml:"columns" json:"columns"`
	ForeignKeys []ForeignKey       `yaml:"foreign_keys,omitempty" json:"foreign_keys,omitempty"`
}

// Feed is the startup input a Catalog is built from.
type Feed struct {
	Tables []TableSpec `yaml:"tables" json:"tables"`
	// Routines lists user-defined function and procedure names.
	Routines []string `yaml:"routines,omitempty" json:"routines,omitempty"`
}

// TableDescriptor is a read-only view of one table.
type TableDescriptor struct {
	schema      string
	name        string
	comment     string
	columns     []ColumnDescriptor
	byName      map[string]int
	foreignKeys []ForeignKey
}

func (t *TableDescriptor) Schema() string  { return t.schema }
func (t *TableDescriptor) Name() string    { return t.name }
func (t *TableDescriptor) Comment() string { return t.comment }

// QualifiedName is the key the table is registered under: the bare name
// for public tables, schema.name otherwise.
func (t *TableDescriptor) QualifiedName() string {
	return key(t.schema, t.name)
}

// Columns returns a copy of the columns in declaration order.
func (t *TableDescriptor) Columns() []ColumnDescriptor {
	out := make([]ColumnDescriptor, len(t.columns))
	copy(out, t.columns)
	return out
}

// Column looks a column up case-insensitively.
func (t *TableDescriptor) Column(name string) (ColumnDescriptor, bool) {
	i, ok := t.byName[strings.ToLower(name)]
	if !ok {
		return ColumnDescriptor{}, false
	}
	return t.columns[i], true
}

func (t *TableDescriptor) HasColumn(name string) bool {
	_, ok := t.byName[strings.ToLower(name)]
	return ok
}

func (t *TableDescriptor) ForeignKeys() []ForeignKey {
	out := make([]ForeignKey, len(t.foreignKeys))
	copy(out, t.foreignKeys)
	return out
}

// Catalog is an immutable snapshot. It is never modified after New returns,
// so it is safe to share between goroutines without locking.
type Catalog struct {
	tables   map[string]*TableDescriptor
	order    []string
	routines map[string]struct{}
}

// New validates feed and builds a catalog from it. Validation failures
// wrap apperrors.ErrInvalidFeed.
func New(feed Feed) (*Catalog, error) {
	c := &Catalog{
		tables:   make(map[string]*TableDescriptor, len(feed.Tables)),
		routines: make(map[string]struct{}, len(feed.Routines)),
	}

	for _, spec := range feed.Tables {
		if strings.TrimSpace(spec.Name) == "" {
			return nil, fmt.Errorf("%w: table with empty name", apperrors.ErrInvalidFeed)
		}
		schema := spec.Schema
		if schema == "" {
			schema = defaultSchema
		}
		k := key(schema, spec.Name)
		if _, dup := c.tables[k]; dup {
			return nil, fmt.Errorf("%w: duplicate table %q", apperrors.ErrInvalidFeed, k)
		}

		t := &TableDescriptor{
			schema:      schema,
			name:        spec.Name,
			comment:     spec.Comment,
			columns:     make([]ColumnDescriptor, 0, len(spec.Columns)),
			byName:      make(map[string]int, len(spec.Columns)),
			foreignKeys: append([]ForeignKey(nil), spec.ForeignKeys...),
		}
		for _, col := range spec.Columns {
			if strings.TrimSpace(col.Name) == "" {
				return nil, fmt.Errorf("%w: table %q has a column with empty name", apperrors.ErrInvalidFeed, k)
			}
			lower := strings.ToLower(col.Name)
			if _, dup := t.byName[lower]; dup {
				return nil, fmt.Errorf("%w: table %q has duplicate column %q", apperrors.ErrInvalidFeed, k, col.Name)
			}
			t.byName[lower] = len(t.columns)
			t.columns = append(t.columns, col)
		}

		c.tables[k] = t
		c.order = append(c.order, k)
	}

	for _, r := range feed.Routines {
		c.routines[strings.ToLower(r)] = struct{}{}
	}

	sort.Strings(c.order)
	return c, nil
}

// key folds schema and name into the lookup key.
func key(schema, name string) string {
	schema = strings.ToLower(schema)
	name = strings.ToLower(name)
	if schema == "" || schema == defaultSchema {
		return name
	}
	return schema + "." + name
}

// Lookup finds a table by optional schema and name, case-insensitively.
// An empty schema means public.
func (c *Catalog) Lookup(schema, name string) (*TableDescriptor, bool) {
	t, ok := c.tables[key(schema, name)]
	return t, ok
}

// HasRoutine reports whether name is a user-defined routine.
func (c *Catalog) HasRoutine(name string) bool {
	_, ok := c.routines[strings.ToLower(name)]
	return ok
}

// Tables returns all tables ordered by qualified name.
func (c *Catalog) Tables() []*TableDescriptor {
	out := make([]*TableDescriptor, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.tables[k])
	}
	return out
}

func (c *Catalog) Len() int {
	return len(c.tables)
}

// Suggest proposes a known table for a name that failed Lookup: the
// singular or plural form, or the same bare name in another schema.
func (c *Catalog) Suggest(schema, name string) (string, bool) {
	lower := strings.ToLower(name)
	for _, candidate := range []string{inflection.Plural(lower), inflection.Singular(lower)} {
		if candidate == lower {
			continue
		}
		if t, ok := c.Lookup(schema, candidate); ok {
			return t.QualifiedName(), true
		}
	}
	for _, k := range c.order {
		t := c.tables[k]
		if strings.EqualFold(t.name, name) && !strings.EqualFold(t.schema, schema) {
			return t.QualifiedName(), true
		}
	}
	return "", false
}

// Describe renders the catalog as the text handed to the SQL generator.
// maxTables <= 0 means no limit.
func (c *Catalog) Describe(maxTables int) string {
	var b strings.Builder
	tables := c.Tables()
	if maxTables > 0 && len(tables) > maxTables {
		tables = tables[:maxTables]
	}

	b.WriteString("Database schema:\n")
	for _, t := range tables {
		fmt.Fprintf(&b, "\nTable: %s", t.QualifiedName())
		if t.comment != "" {
			fmt.Fprintf(&b, " -- %s", t.comment)
		}
		b.WriteString("\n")
		for _, col := range t.columns {
			null := "NOT NULL"
			if col.Nullable {
				null = "NULL"
			}
			fmt.Fprintf(&b, "  - %s %s %s", col.Name, col.Type, null)
			if col.Comment != "" {
				fmt.Fprintf(&b, " -- %s", col.Comment)
			}
			b.WriteString("\n")
		}
		for _, fk := range t.foreignKeys {
			fmt.Fprintf(&b, "  FK (%s) -> %s(%s)\n",
				strings.Join(fk.Columns, ", "),
				key(fk.TargetSchema, fk.TargetTable),
				strings.Join(fk.TargetColumns, ", "))
		}
	}
	if omitted := c.Len() - len(tables); omitted > 0 {
		fmt.Fprintf(&b, "\n(%d more tables omitted)\n", omitted)
	}
	return b.String()
}
