// Package rewrite turns an approved statement into bounded, parameterized
// SQL: the outermost query gets a LIMIT and every literal constant moves
// into the parameter list.
package rewrite

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ekaya-inc/ekaya-gateway/pkg/policy"
	"github.com/ekaya-inc/ekaya-gateway/pkg/sql"
)

// BoundStatement is SQL text with $n placeholders and their values in
// order. Values are string, int64, bool or decimal.Decimal.
type BoundStatement struct {
	SQL    string
	Params []any
}

var ErrInvalidCeiling = errors.New("row limit ceiling must be positive")

// Rewrite renders approved with a row bound and extracted literals. The
// approved tree is not modified.
//
// A root LIMIT at or below ceiling is kept; a missing one becomes
// LIMIT ceiling. LIMIT counts are rendered inline because they are the
// bound itself, not data. NULL is a keyword and stays inline too.
func Rewrite(approved *policy.Approved, ceiling int64) (*BoundStatement, error) {
	if ceiling <= 0 {
		return nil, ErrInvalidCeiling
	}

	root, err := bounded(approved.Query(), ceiling)
	if err != nil {
		return nil, err
	}

	b := &binder{next: approved.MaxParam()}
	text := sql.Format(root, b.bind)
	if b.err != nil {
		return nil, b.err
	}
	return &BoundStatement{SQL: text, Params: b.params}, nil
}

// bounded returns a shallow copy of q whose root limit is provably at most
// ceiling.
func bounded(q sql.Query, ceiling int64) (sql.Query, error) {
	switch q := q.(type) {
	case *sql.Select:
		limit, err := boundLimit(q.Limit, ceiling)
		if err != nil {
			return nil, err
		}
		cp := *q
		cp.Limit = limit
		return &cp, nil
	case *sql.SetOp:
		limit, err := boundLimit(q.Limit, ceiling)
		if err != nil {
			return nil, err
		}
		cp := *q
		cp.Limit = limit
		return &cp, nil
	}
	return nil, fmt.Errorf("rewrite: unexpected root %T", q)
}

func boundLimit(l *sql.Limit, ceiling int64) (*sql.Limit, error) {
	if l == nil {
		n := ceiling
		return &sql.Limit{Count: &n}, nil
	}
	if l.Count == nil || *l.Count < 0 || *l.Count > ceiling {
		return nil, &policy.Violation{
			Kind:   policy.LimitExceeded,
			Object: "LIMIT",
			Detail: fmt.Sprintf("LIMIT cannot be proven within the maximum of %d rows", ceiling),
		}
	}
	return l, nil
}

type binder struct {
	next   int
	params []any
	err    error
}

// bind appends the literal's value and returns its placeholder. Numeric
// and boolean placeholders carry the type PostgreSQL would have given the
// inline constant, so operator and function resolution does not change.
func (b *binder) bind(l *sql.Literal) string {
	value, cast, err := literalValue(l)
	if err != nil {
		if b.err == nil {
			b.err = err
		}
		return "NULL"
	}
	b.next++
	b.params = append(b.params, value)
	return "$" + strconv.Itoa(b.next) + cast
}

func literalValue(l *sql.Literal) (any, string, error) {
	text := strings.ReplaceAll(l.Text, "_", "")
	switch l.Kind {
	case sql.StringLiteral:
		return l.Text, "", nil

	case sql.IntegerLiteral:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			// Beyond bigint PostgreSQL reads the constant as numeric.
			d, derr := decimal.NewFromString(text)
			if derr != nil {
				return nil, "", fmt.Errorf("rewrite: invalid integer constant %q", l.Text)
			}
			return d, "::numeric", nil
		}
		if n >= math.MinInt32 && n <= math.MaxInt32 {
			return n, "::int4", nil
		}
		return n, "::int8", nil

	case sql.FloatLiteral:
		d, err := decimal.NewFromString(text)
		if err != nil {
			return nil, "", fmt.Errorf("rewrite: invalid numeric constant %q", l.Text)
		}
		return d, "::numeric", nil

	case sql.BoolLiteral:
		v, err := strconv.ParseBool(l.Text)
		if err != nil {
			return nil, "", fmt.Errorf("rewrite: invalid boolean constant %q", l.Text)
		}
		return v, "::bool", nil
	}
	return nil, "", fmt.Errorf("rewrite: cannot bind %s constant", l.Kind)
}
