// Package sqltest builds syntax trees in memory for tests that should not
// depend on the parser.
package sqltest

import (
	"strconv"

	"github.com/ekaya-inc/ekaya-gateway/pkg/sql"
)

func Stmt(q sql.Query) *sql.Statement {
	return &sql.Statement{Query: q}
}

// Col is a column reference; Col("u", "id") is u.id.
func Col(fields ...string) *sql.ColumnRef {
	return &sql.ColumnRef{Fields: fields}
}

func Str(s string) *sql.Literal {
	return &sql.Literal{Kind: sql.StringLiteral, Text: s}
}

func Int(n int64) *sql.Literal {
	return &sql.Literal{Kind: sql.IntegerLiteral, Text: strconv.FormatInt(n, 10)}
}

func Float(text string) *sql.Literal {
	return &sql.Literal{Kind: sql.FloatLiteral, Text: text}
}

func Bool(b bool) *sql.Literal {
	return &sql.Literal{Kind: sql.BoolLiteral, Text: strconv.FormatBool(b)}
}

func Null() *sql.Literal {
	return &sql.Literal{Kind: sql.NullLiteral, Text: "NULL"}
}

func Op(op string, l, r sql.Expr) *sql.BinaryExpr {
	return &sql.BinaryExpr{Op: op, Left: l, Right: r}
}

func Eq(l, r sql.Expr) *sql.BinaryExpr {
	return Op("=", l, r)
}

func And(args ...sql.Expr) *sql.BoolExpr {
	return &sql.BoolExpr{Op: sql.And, Args: args}
}

func Call(name string, args ...sql.Expr) *sql.FuncCall {
	return &sql.FuncCall{Name: []string{name}, Args: args}
}

// QualifiedCall is schema.name(args...).
func QualifiedCall(schema, name string, args ...sql.Expr) *sql.FuncCall {
	return &sql.FuncCall{Name: []string{schema, name}, Args: args}
}

func Table(name string) *sql.TableRef {
	return &sql.TableRef{Name: name}
}

func TableAs(name, alias string) *sql.TableRef {
	return &sql.TableRef{Name: name, Alias: &sql.Alias{Name: alias}}
}

func SchemaTable(schema, name string) *sql.TableRef {
	return &sql.TableRef{Schema: schema, Name: name}
}

// Star is the target list "*".
func Star() []sql.Target {
	return []sql.Target{{Expr: &sql.ColumnRef{Star: true}}}
}

func Targets(exprs ...sql.Expr) []sql.Target {
	out := make([]sql.Target, len(exprs))
	for i, e := range exprs {
		out[i] = sql.Target{Expr: e}
	}
	return out
}

func Limit(n int64) *sql.Limit {
	return &sql.Limit{Count: &n}
}

// LimitAll is LIMIT ALL.
func LimitAll() *sql.Limit {
	return &sql.Limit{}
}

func Exists(q sql.Query) *sql.SubLink {
	return &sql.SubLink{Kind: sql.ExistsSubLink, Query: q}
}

// In is expr IN (subquery).
func In(test sql.Expr, q sql.Query) *sql.SubLink {
	return &sql.SubLink{Kind: sql.AnySubLink, Test: test, Query: q}
}

// SelectFrom is SELECT targets FROM from.
func SelectFrom(targets []sql.Target, from ...sql.TableExpr) *sql.Select {
	return &sql.Select{Targets: targets, From: from}
}
