package policy

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-gateway/pkg/catalog"
	"github.com/ekaya-inc/ekaya-gateway/pkg/sql"
)

// resolver checks every table and column reference against the catalog.
// It walks the whole tree once, remembering the first unknown table and the
// first unknown column separately; an unknown table outranks an unknown
// column wherever each appears. Both are reported as UnknownTable.
//
// Catalog matching is case-insensitive. Every matched table and column
// reference is rewritten to the catalog's spelling, so the statement that
// runs names exactly the whitelisted object and never a case variant of it.
// CTE names, aliases and output names are compared exactly: the parser has
// already folded the unquoted ones.
type resolver struct {
	cat       *catalog.Catalog
	lookups   map[string]*catalog.TableDescriptor
	tableErr  *Violation
	columnErr *Violation
}

func newResolver(cat *catalog.Catalog) *resolver {
	return &resolver{cat: cat, lookups: make(map[string]*catalog.TableDescriptor)}
}

func (r *resolver) check(q sql.Query) *Violation {
	r.query(q, nil, nil)
	if r.tableErr != nil {
		return r.tableErr
	}
	return r.columnErr
}

// ctes is the set of WITH names visible at some point of the tree.
type ctes struct {
	names  map[string]struct{}
	parent *ctes
}

func (c *ctes) has(name string) bool {
	for ; c != nil; c = c.parent {
		if _, ok := c.names[name]; ok {
			return true
		}
	}
	return false
}

// source is one FROM item visible to column references.
type source struct {
	name string
	// canonical is the catalog spelling of an unaliased table, used to
	// rewrite qualifiers that match name.
	canonical string
	// table is nil for sources whose columns are not statically known:
	// CTEs, derived tables, function ranges and renamed columns.
	table *catalog.TableDescriptor
}

// scope is one query level.
type scope struct {
	sources []source
	// outputs are SELECT-list names, usable in ORDER BY and GROUP BY.
	outputs map[string]struct{}
	// allowOutputs is set while checking ORDER BY and GROUP BY.
	allowOutputs bool
	parent       *scope
}

func (r *resolver) lookup(schema, name string) *catalog.TableDescriptor {
	k := strings.ToLower(schema) + "." + strings.ToLower(name)
	if t, seen := r.lookups[k]; seen {
		return t
	}
	t, ok := r.cat.Lookup(schema, name)
	if !ok {
		t = nil
		if r.tableErr == nil {
			r.tableErr = r.unknownTable(schema, name)
		}
	}
	r.lookups[k] = t
	return t
}

func (r *resolver) unknownTable(schema, name string) *Violation {
	display := name
	if schema != "" {
		display = schema + "." + name
	}
	v := violation(UnknownTable, display, "table %q does not exist", display)
	if suggestion, ok := r.cat.Suggest(schema, name); ok {
		v.Detail += fmt.Sprintf("; did you mean %q?", suggestion)
	}
	return v
}

func (r *resolver) query(q sql.Query, outer *scope, env *ctes) {
	switch q := q.(type) {
	case *sql.Select:
		r.selectQuery(q, outer, env)
	case *sql.SetOp:
		env = r.with(q.With, outer, env)
		r.query(q.Left, outer, env)
		r.query(q.Right, outer, env)
		// Set operation ORDER BY sees only output columns, which are not
		// tracked across arms.
		opaque := &scope{sources: []source{{}}, parent: outer}
		for _, item := range q.OrderBy {
			r.expr(item.Expr, opaque, env)
		}
		r.limit(q.Limit, q.Offset, outer, env)
	}
}

// with validates CTE bodies and returns the environment the main query
// sees. Without RECURSIVE a CTE sees only earlier siblings.
func (r *resolver) with(w *sql.With, outer *scope, env *ctes) *ctes {
	if w == nil {
		return env
	}
	inner := &ctes{names: make(map[string]struct{}, len(w.CTEs)), parent: env}
	if w.Recursive {
		for _, cte := range w.CTEs {
			inner.names[cte.Name] = struct{}{}
		}
	}
	for _, cte := range w.CTEs {
		r.query(cte.Query, outer, inner)
		inner.names[cte.Name] = struct{}{}
	}
	return inner
}

func (r *resolver) selectQuery(q *sql.Select, outer *scope, env *ctes) {
	env = r.with(q.With, outer, env)
	s := &scope{parent: outer, outputs: make(map[string]struct{})}

	for _, item := range q.From {
		r.fromItem(item, s, env)
	}

	for _, t := range q.Targets {
		r.expr(t.Expr, s, env)
		if name := outputName(t); name != "" {
			s.outputs[name] = struct{}{}
		}
	}
	r.expr(q.Where, s, env)
	r.expr(q.Having, s, env)
	for _, e := range q.DistinctOn {
		r.expr(e, s, env)
	}

	s.allowOutputs = true
	for _, e := range q.GroupBy {
		r.expr(e, s, env)
	}
	for _, item := range q.OrderBy {
		r.expr(item.Expr, s, env)
	}
	s.allowOutputs = false

	r.limit(q.Limit, q.Offset, s, env)
}

func (r *resolver) limit(l *sql.Limit, offset sql.Expr, s *scope, env *ctes) {
	if l != nil {
		r.expr(l.Expr, s, env)
	}
	r.expr(offset, s, env)
}

func outputName(t sql.Target) string {
	if t.Alias != "" {
		return t.Alias
	}
	if c, ok := t.Expr.(*sql.ColumnRef); ok && !c.Star && len(c.Fields) > 0 {
		return c.Fields[len(c.Fields)-1]
	}
	return ""
}

func aliasName(a *sql.Alias, fallback string) string {
	if a != nil && a.Name != "" {
		return a.Name
	}
	return fallback
}

// fromItem registers the sources introduced by t in s.
func (r *resolver) fromItem(t sql.TableExpr, s *scope, env *ctes) {
	switch t := t.(type) {
	case *sql.TableRef:
		name := aliasName(t.Alias, t.Name)
		if t.Schema == "" && env.has(t.Name) {
			s.sources = append(s.sources, source{name: name})
			return
		}
		desc := r.lookup(t.Schema, t.Name)
		canonical := ""
		if desc != nil {
			t.Name = desc.Name()
			if t.Schema != "" {
				t.Schema = desc.Schema()
			}
			if t.Alias == nil || t.Alias.Name == "" {
				canonical = desc.Name()
			}
		}
		if desc != nil && len(desc.Columns()) == 0 {
			// Declared without columns: nothing to check against.
			desc = nil
		}
		if t.Alias != nil && len(t.Alias.Columns) > 0 {
			desc = nil
		}
		s.sources = append(s.sources, source{name: name, canonical: canonical, table: desc})

	case *sql.Join:
		r.fromItem(t.Left, s, env)
		r.fromItem(t.Right, s, env)
		r.expr(t.On, s, env)
		if t.Alias != nil {
			s.sources = append(s.sources, source{name: t.Alias.Name})
		}

	case *sql.SubqueryRef:
		if t.Lateral {
			r.query(t.Query, s, env)
		} else {
			r.query(t.Query, s.parent, env)
		}
		s.sources = append(s.sources, source{name: aliasName(t.Alias, "")})

	case *sql.FunctionRef:
		fallback := ""
		if t.Call != nil {
			// Function arguments may refer to earlier FROM items.
			r.expr(t.Call, s, env)
			if len(t.Call.Name) > 0 {
				fallback = t.Call.Name[len(t.Call.Name)-1]
			}
		}
		s.sources = append(s.sources, source{name: aliasName(t.Alias, fallback)})

	default:
		// Unsupported items are rejected later; treat them as opaque so they
		// do not produce a misleading column error first.
		s.sources = append(s.sources, source{})
	}
}

func (r *resolver) expr(e sql.Expr, s *scope, env *ctes) {
	if e == nil {
		return
	}
	sql.Inspect(e, func(node any) bool {
		switch n := node.(type) {
		case *sql.ColumnRef:
			r.column(n, s)
		case *sql.SubLink:
			r.expr(n.Test, s, env)
			r.query(n.Query, s, env)
			return false
		}
		return true
	})
}

func (r *resolver) column(c *sql.ColumnRef, s *scope) {
	if len(c.Fields) == 0 {
		return
	}

	if len(c.Fields) == 1 && !c.Star {
		r.unqualifiedColumn(c, s)
		return
	}

	qualifierAt := len(c.Fields) - 2
	if c.Star {
		qualifierAt = len(c.Fields) - 1
	}
	qualifier := c.Fields[qualifierAt]

	src, ok := findSource(s, qualifier)
	if !ok {
		// An unknown qualifier fails in the database itself.
		return
	}
	if src.canonical != "" {
		c.Fields[qualifierAt] = src.canonical
	}
	if src.table == nil || c.Star {
		return
	}

	column := c.Fields[len(c.Fields)-1]
	col, found := src.table.Column(column)
	if !found {
		if r.columnErr == nil {
			ref := qualifier + "." + column
			r.columnErr = violation(UnknownTable, ref,
				"column %q does not exist in table %q", column, src.table.QualifiedName())
		}
		return
	}
	c.Fields[len(c.Fields)-1] = col.Name
}

// findSource resolves a qualifier. An unaliased table answers to the name
// it was written with and to its catalog spelling.
func findSource(s *scope, name string) (source, bool) {
	if name == "" {
		return source{}, false
	}
	for ; s != nil; s = s.parent {
		// Later sources shadow earlier ones with the same name.
		for i := len(s.sources) - 1; i >= 0; i-- {
			src := s.sources[i]
			if src.name == name || src.canonical == name {
				return src, true
			}
		}
	}
	return source{}, false
}

// unqualifiedColumn resolves a bare name level by level, innermost first.
// Within a level a catalog column wins; an opaque source ends the search
// because the name may be one of its columns.
func (r *resolver) unqualifiedColumn(c *sql.ColumnRef, s *scope) {
	name := c.Fields[0]
	for level := s; level != nil; level = level.parent {
		opaque := false
		for _, src := range level.sources {
			if src.table == nil {
				opaque = true
				continue
			}
			if col, ok := src.table.Column(name); ok {
				c.Fields[0] = col.Name
				return
			}
		}
		if opaque {
			return
		}
	}
	// A bare source name is a whole-row reference.
	if src, ok := findSource(s, name); ok {
		if src.canonical != "" {
			c.Fields[0] = src.canonical
		}
		return
	}
	if s.allowOutputs {
		if _, ok := s.outputs[name]; ok {
			return
		}
	}
	if r.columnErr == nil {
		r.columnErr = violation(UnknownTable, name, "column %q does not exist", name)
	}
}
