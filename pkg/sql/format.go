package sql

import (
	"fmt"
	"strconv"
	"strings"
)

// BindFunc renders a non-null literal. The rewriter uses it to replace
// literals with placeholders; the order of calls is the left-to-right
// order of the literals in the rendered text.
type BindFunc func(lit *Literal) string

// Format renders q as PostgreSQL text. When bind is nil, literals are
// rendered inline.
func Format(q Query, bind BindFunc) string {
	f := &formatter{bind: bind}
	f.query(q)
	return f.b.String()
}

// FormatExpr renders a single expression with literals inline.
func FormatExpr(e Expr) string {
	f := &formatter{}
	f.expr(e)
	return f.b.String()
}

type formatter struct {
	b    strings.Builder
	bind BindFunc
}

func (f *formatter) write(parts ...string) {
	for _, p := range parts {
		f.b.WriteString(p)
	}
}

func (f *formatter) query(q Query) {
	switch q := q.(type) {
	case *Select:
		f.selectStmt(q)
	case *SetOp:
		f.with(q.With)
		f.setOperand(q.Left)
		f.write(" ", string(q.Op))
		if q.All {
			f.write(" ALL")
		}
		f.write(" ")
		f.setOperand(q.Right)
		f.tail(q.OrderBy, q.Limit, q.Offset, q.Locking)
	case *OtherStatement:
		f.write(q.Kind)
	case *Unsupported:
		f.write(q.Construct)
	}
}

// setOperand parenthesizes an arm unless it is a bare SELECT.
func (f *formatter) setOperand(q Query) {
	if s, ok := q.(*Select); ok && s.With == nil && len(s.OrderBy) == 0 &&
		s.Limit == nil && s.Offset == nil && len(s.Locking) == 0 {
		f.selectStmt(s)
		return
	}
	f.write("(")
	f.query(q)
	f.write(")")
}

func (f *formatter) selectStmt(s *Select) {
	f.with(s.With)
	f.write("SELECT")
	if s.Distinct {
		f.write(" DISTINCT")
	}
	if len(s.DistinctOn) > 0 {
		f.write(" DISTINCT ON (")
		f.exprList(s.DistinctOn)
		f.write(")")
	}
	for i, t := range s.Targets {
		if i == 0 {
			f.write(" ")
		} else {
			f.write(", ")
		}
		f.expr(t.Expr)
		if t.Alias != "" {
			f.write(" AS ", QuoteIdent(t.Alias))
		}
	}
	if s.Into != "" {
		f.write(" INTO ", s.Into)
	}
	for i, t := range s.From {
		if i == 0 {
			f.write(" FROM ")
		} else {
			f.write(", ")
		}
		f.tableExpr(t)
	}
	if s.Where != nil {
		f.write(" WHERE ")
		f.expr(s.Where)
	}
	if len(s.GroupBy) > 0 {
		f.write(" GROUP BY ")
		f.exprList(s.GroupBy)
	}
	if s.Having != nil {
		f.write(" HAVING ")
		f.expr(s.Having)
	}
	f.tail(s.OrderBy, s.Limit, s.Offset, s.Locking)
}

func (f *formatter) tail(order []OrderItem, limit *Limit, offset Expr, locking []string) {
	if len(order) > 0 {
		f.write(" ORDER BY ")
		f.orderList(order)
	}
	if limit != nil {
		f.write(" LIMIT ")
		switch {
		case limit.Count != nil:
			f.write(strconv.FormatInt(*limit.Count, 10))
		case limit.Expr != nil:
			f.expr(limit.Expr)
		default:
			f.write("ALL")
		}
	}
	if offset != nil {
		f.write(" OFFSET ")
		f.expr(offset)
	}
	for _, l := range locking {
		f.write(" ", l)
	}
}

func (f *formatter) with(w *With) {
	if w == nil || len(w.CTEs) == 0 {
		return
	}
	f.write("WITH ")
	if w.Recursive {
		f.write("RECURSIVE ")
	}
	for i, cte := range w.CTEs {
		if i > 0 {
			f.write(", ")
		}
		f.write(QuoteIdent(cte.Name))
		if len(cte.Columns) > 0 {
			f.write("(", identList(cte.Columns), ")")
		}
		f.write(" AS ")
		if cte.Materialized != "" {
			f.write(cte.Materialized, " ")
		}
		f.write("(")
		f.query(cte.Query)
		f.write(")")
	}
	f.write(" ")
}

func (f *formatter) tableExpr(t TableExpr) {
	switch t := t.(type) {
	case *TableRef:
		if t.Only {
			f.write("ONLY ")
		}
		if t.Schema != "" {
			f.write(QuoteIdent(t.Schema), ".")
		}
		f.write(QuoteIdent(t.Name))
		f.alias(t.Alias)
	case *Join:
		if t.Alias != nil {
			f.write("(")
		}
		f.tableExpr(t.Left)
		f.write(" ")
		if t.Natural {
			f.write("NATURAL ")
		}
		f.write(string(t.Type), " ")
		if _, nested := t.Right.(*Join); nested {
			f.write("(")
			f.tableExpr(t.Right)
			f.write(")")
		} else {
			f.tableExpr(t.Right)
		}
		if t.On != nil {
			f.write(" ON ")
			f.expr(t.On)
		}
		if len(t.Using) > 0 {
			f.write(" USING (", identList(t.Using), ")")
		}
		if t.Alias != nil {
			f.write(")")
			f.alias(t.Alias)
		}
	case *SubqueryRef:
		if t.Lateral {
			f.write("LATERAL ")
		}
		f.write("(")
		f.query(t.Query)
		f.write(")")
		f.alias(t.Alias)
	case *FunctionRef:
		if t.Lateral {
			f.write("LATERAL ")
		}
		f.funcCall(t.Call)
		if t.WithOrdinality {
			f.write(" WITH ORDINALITY")
		}
		f.alias(t.Alias)
	case *Unsupported:
		f.write(t.Construct)
	}
}

func (f *formatter) alias(a *Alias) {
	if a == nil {
		return
	}
	f.write(" AS ", QuoteIdent(a.Name))
	if len(a.Columns) > 0 {
		f.write("(", identList(a.Columns), ")")
	}
}

func identList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

func (f *formatter) exprList(list []Expr) {
	for i, e := range list {
		if i > 0 {
			f.write(", ")
		}
		f.expr(e)
	}
}

func (f *formatter) orderList(items []OrderItem) {
	for i, item := range items {
		if i > 0 {
			f.write(", ")
		}
		f.expr(item.Expr)
		if item.Direction != "" {
			f.write(" ", item.Direction)
		}
		if item.Nulls != "" {
			f.write(" ", item.Nulls)
		}
	}
}

// Operator precedence, lowest first, following PostgreSQL's table.
const (
	precOr = iota + 1
	precAnd
	precNot
	precIs
	precCompare
	precLike
	precOther
	precAdd
	precMul
	precExp
	precUnary
	precCast = precUnary + 2
	precAtom = 100
)

var binaryPrec = map[string]int{
	"=": precCompare, "<>": precCompare, "!=": precCompare,
	"<": precCompare, ">": precCompare, "<=": precCompare, ">=": precCompare,
	"LIKE": precLike, "NOT LIKE": precLike, "ILIKE": precLike, "NOT ILIKE": precLike,
	"IS DISTINCT FROM": precIs, "IS NOT DISTINCT FROM": precIs,
	"+": precAdd, "-": precAdd,
	"*": precMul, "/": precMul, "%": precMul,
	"^": precExp,
}

func (f *formatter) prec(e Expr) int {
	switch e := e.(type) {
	case *BoolExpr:
		switch e.Op {
		case Or:
			return precOr
		case And:
			return precAnd
		}
		return precNot
	case *NullTest, *BoolTest:
		return precIs
	case *BinaryExpr:
		if p, ok := binaryPrec[e.Op]; ok {
			return p
		}
		return precOther
	case *Quantified:
		return precCompare
	case *SubLink:
		if e.Kind == AnySubLink || e.Kind == AllSubLink {
			return precCompare
		}
	case *InList, *Between:
		return precLike
	case *UnaryExpr:
		return precUnary
	case *Cast:
		return precCast
	case *Literal:
		if f.bind == nil && strings.HasPrefix(e.Text, "-") {
			return precUnary
		}
	}
	return precAtom
}

// operand renders e, parenthesized when it binds looser than min.
func (f *formatter) operand(e Expr, min int) {
	if f.prec(e) < min {
		f.write("(")
		f.expr(e)
		f.write(")")
		return
	}
	f.expr(e)
}

// nonAssociative levels need parentheses on both sides.
func nonAssociative(p int) bool {
	return p == precIs || p == precCompare || p == precLike
}

func (f *formatter) expr(e Expr) {
	switch e := e.(type) {
	case nil:
	case *ColumnRef:
		parts := make([]string, 0, len(e.Fields)+1)
		for _, field := range e.Fields {
			parts = append(parts, QuoteIdent(field))
		}
		if e.Star {
			parts = append(parts, "*")
		}
		f.write(strings.Join(parts, "."))
	case *Literal:
		f.literal(e)
	case *Param:
		f.write("$", strconv.Itoa(e.Number))
	case *Ordinal:
		f.write(strconv.Itoa(e.Position))
	case *BinaryExpr:
		p := f.prec(e)
		left := p
		if nonAssociative(p) {
			left = p + 1
		}
		f.operand(e.Left, left)
		f.write(" ", e.Op, " ")
		f.operand(e.Right, p+1)
	case *UnaryExpr:
		f.write(e.Op)
		// One above unary so that "- -1" never collapses into a comment.
		f.operand(e.Operand, precUnary+1)
	case *BoolExpr:
		p := f.prec(e)
		if e.Op == Not {
			f.write("NOT ")
			if len(e.Args) == 1 {
				f.operand(e.Args[0], p)
			}
			return
		}
		for i, arg := range e.Args {
			if i > 0 {
				f.write(" ", string(e.Op), " ")
			}
			f.operand(arg, p+1)
		}
	case *FuncCall:
		f.funcCall(e)
	case *Cast:
		f.operand(e.Arg, precCast)
		f.write("::", formatType(e.Type))
	case *CaseExpr:
		f.write("CASE")
		if e.Arg != nil {
			f.write(" ")
			f.expr(e.Arg)
		}
		for _, w := range e.Whens {
			f.write(" WHEN ")
			f.expr(w.Cond)
			f.write(" THEN ")
			f.expr(w.Result)
		}
		if e.Else != nil {
			f.write(" ELSE ")
			f.expr(e.Else)
		}
		f.write(" END")
	case *NullTest:
		f.operand(e.Arg, precIs+1)
		if e.Not {
			f.write(" IS NOT NULL")
		} else {
			f.write(" IS NULL")
		}
	case *BoolTest:
		f.operand(e.Arg, precIs+1)
		f.write(" ", e.Test)
	case *InList:
		f.operand(e.Arg, precLike+1)
		if e.Not {
			f.write(" NOT")
		}
		f.write(" IN (")
		f.exprList(e.List)
		f.write(")")
	case *Between:
		f.operand(e.Arg, precLike+1)
		if e.Not {
			f.write(" NOT")
		}
		f.write(" BETWEEN ")
		if e.Symmetric {
			f.write("SYMMETRIC ")
		}
		f.operand(e.Low, precLike+1)
		f.write(" AND ")
		f.operand(e.High, precLike+1)
	case *Quantified:
		f.operand(e.Left, precCompare+1)
		f.write(" ", e.Op)
		if e.All {
			f.write(" ALL (")
		} else {
			f.write(" ANY (")
		}
		f.expr(e.Right)
		f.write(")")
	case *SubLink:
		f.subLink(e)
	case *KeywordCall:
		f.write(e.Name, "(")
		f.exprList(e.Args)
		f.write(")")
	case *ArrayExpr:
		f.write("ARRAY[")
		f.exprList(e.Elems)
		f.write("]")
	case *SQLValue:
		f.write(e.Keyword)
	case *Unsupported:
		f.write(e.Construct)
	default:
		f.write(fmt.Sprintf("%T", e))
	}
}

func (f *formatter) literal(l *Literal) {
	if l.Kind == NullLiteral {
		f.write("NULL")
		return
	}
	if f.bind != nil {
		f.write(f.bind(l))
		return
	}
	switch l.Kind {
	case StringLiteral:
		f.write(QuoteLiteral(l.Text))
	case BoolLiteral:
		f.write(strings.ToUpper(l.Text))
	default:
		f.write(l.Text)
	}
}

func (f *formatter) funcCall(c *FuncCall) {
	f.write(identPath(c.Name), "(")
	switch {
	case c.Star:
		f.write("*")
	default:
		if c.Distinct {
			f.write("DISTINCT ")
		}
		for i, arg := range c.Args {
			if i > 0 {
				f.write(", ")
			}
			if c.Variadic && i == len(c.Args)-1 {
				f.write("VARIADIC ")
			}
			f.expr(arg)
		}
		if len(c.OrderBy) > 0 && !c.WithinGroup {
			f.write(" ORDER BY ")
			f.orderList(c.OrderBy)
		}
	}
	f.write(")")
	if c.WithinGroup {
		f.write(" WITHIN GROUP (ORDER BY ")
		f.orderList(c.OrderBy)
		f.write(")")
	}
	if c.Filter != nil {
		f.write(" FILTER (WHERE ")
		f.expr(c.Filter)
		f.write(")")
	}
	if c.Over != nil {
		f.window(c.Over)
	}
}

func (f *formatter) window(w *Window) {
	f.write(" OVER (")
	sep := ""
	if len(w.PartitionBy) > 0 {
		f.write("PARTITION BY ")
		f.exprList(w.PartitionBy)
		sep = " "
	}
	if len(w.OrderBy) > 0 {
		f.write(sep, "ORDER BY ")
		f.orderList(w.OrderBy)
		sep = " "
	}
	if w.Frame != "" {
		f.write(sep, w.Frame)
	}
	f.write(")")
}

func (f *formatter) subLink(s *SubLink) {
	switch s.Kind {
	case ExistsSubLink:
		f.write("EXISTS (")
	case AnySubLink:
		f.operand(s.Test, precCompare+1)
		if s.Op == "" {
			f.write(" IN (")
		} else {
			f.write(" ", s.Op, " ANY (")
		}
	case AllSubLink:
		f.operand(s.Test, precCompare+1)
		f.write(" ", s.Op, " ALL (")
	case ScalarSubLink:
		f.write("(")
	case ArraySubLink:
		f.write("ARRAY(")
	}
	f.query(s.Query)
	f.write(")")
}

func identPath(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = QuoteIdent(n)
	}
	return strings.Join(quoted, ".")
}

// builtinTypes maps the grammar's internal names back to their SQL
// spelling.
var builtinTypes = map[string]string{
	"int2":        "smallint",
	"int4":        "integer",
	"int8":        "bigint",
	"float4":      "real",
	"float8":      "double precision",
	"bool":        "boolean",
	"numeric":     "numeric",
	"varchar":     "varchar",
	"timestamp":   "timestamp",
	"timestamptz": "timestamp with time zone",
	"time":        "time",
	"timetz":      "time with time zone",
	"interval":    "interval",
}

// modifiableTypes are the builtins whose SQL spelling takes modifiers
// directly, as in numeric(10, 2).
var modifiableTypes = map[string]string{
	"numeric":   "numeric",
	"varchar":   "varchar",
	"bpchar":    "char",
	"timestamp": "timestamp",
	"time":      "time",
}

func formatType(t TypeName) string {
	var name string
	if len(t.Names) == 2 && t.Names[0] == "pg_catalog" {
		if len(t.Mods) == 0 {
			name = builtinTypes[t.Names[1]]
		} else {
			name = modifiableTypes[t.Names[1]]
		}
	}
	if name == "" {
		name = identPath(t.Names)
	}
	if len(t.Mods) > 0 {
		mods := make([]string, len(t.Mods))
		for i, m := range t.Mods {
			mods[i] = strconv.FormatInt(m, 10)
		}
		name += "(" + strings.Join(mods, ", ") + ")"
	}
	return name + strings.Repeat("[]", t.ArrayDims)
}
