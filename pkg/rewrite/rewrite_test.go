package rewrite

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-gateway/pkg/catalog"
	"github.com/ekaya-inc/ekaya-gateway/pkg/policy"
	"github.com/ekaya-inc/ekaya-gateway/pkg/sql"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New(catalog.Feed{Tables: []catalog.TableSpec{
		{Name: "users", Columns: []catalog.ColumnDescriptor{
			{Name: "id", Type: "integer"},
			{Name: "name", Type: "text"},
			{Name: "city", Type: "text"},
			{Name: "active", Type: "boolean"},
			{Name: "created_at", Type: "date"},
		}},
		{Name: "orders", Columns: []catalog.ColumnDescriptor{
			{Name: "id", Type: "bigint"},
			{Name: "user_id", Type: "integer"},
			{Name: "total", Type: "numeric"},
		}},
	}})
	require.NoError(t, err)
	return c
}

func approve(t *testing.T, text string) *policy.Approved {
	t.Helper()
	stmt, err := sql.NewParser().Parse(text)
	require.NoError(t, err, text)
	approved, err := policy.NewValidator(1000).Validate(stmt, testCatalog(t))
	require.NoError(t, err, text)
	return approved
}

func TestRewrite_ReferenceScenario(t *testing.T) {
	bound, err := Rewrite(approve(t, "SELECT name FROM users WHERE city = 'Boston'"), 100)
	require.NoError(t, err)

	assert.Equal(t, "SELECT name FROM users WHERE city = $1 LIMIT 100", bound.SQL)
	assert.Equal(t, []any{"Boston"}, bound.Params)
}

func TestRewrite(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   string
		params []any
	}{
		{
			name:   "existing lower limit is kept",
			in:     "SELECT id FROM users LIMIT 10",
			want:   "SELECT id FROM users LIMIT 10",
			params: nil,
		},
		{
			name:   "typed numeric and boolean placeholders",
			in:     "SELECT id FROM orders WHERE total > 10.5 AND user_id = 3",
			want:   "SELECT id FROM orders WHERE total > $1::numeric AND user_id = $2::int4 LIMIT 100",
			params: []any{decimal.RequireFromString("10.5"), int64(3)},
		},
		{
			name:   "boolean",
			in:     "SELECT id FROM users WHERE active = true",
			want:   "SELECT id FROM users WHERE active = $1::bool LIMIT 100",
			params: []any{true},
		},
		{
			name:   "bigint and beyond",
			in:     "SELECT id FROM orders WHERE id IN (3000000000, 99999999999999999999)",
			want:   "SELECT id FROM orders WHERE id IN ($1::int8, $2::numeric) LIMIT 100",
			params: []any{int64(3000000000), decimal.RequireFromString("99999999999999999999")},
		},
		{
			name:   "negative constant",
			in:     "SELECT id FROM orders WHERE total > -1.25",
			want:   "SELECT id FROM orders WHERE total > $1::numeric LIMIT 100",
			params: []any{decimal.RequireFromString("-1.25")},
		},
		{
			name:   "null stays inline",
			in:     "SELECT COALESCE(city, NULL, 'none') FROM users",
			want:   "SELECT COALESCE(city, NULL, $1) FROM users LIMIT 100",
			params: []any{"none"},
		},
		{
			name:   "typed string constant",
			in:     "SELECT id FROM users WHERE created_at > DATE '2024-01-01'",
			want:   "SELECT id FROM users WHERE created_at > $1::date LIMIT 100",
			params: []any{"2024-01-01"},
		},
		{
			name:   "ordinals and limits are structural",
			in:     "SELECT city, count(*) FROM users GROUP BY 1 ORDER BY 2 DESC LIMIT 5 OFFSET 20",
			want:   "SELECT city, count(*) FROM users GROUP BY 1 ORDER BY 2 DESC LIMIT 5 OFFSET $1::int4",
			params: []any{int64(20)},
		},
		{
			name:   "aggregate ordering constant is a value",
			in:     "SELECT string_agg(name, ',' ORDER BY 1) FROM users",
			want:   "SELECT string_agg(name, $1 ORDER BY $2::int4) FROM users LIMIT 100",
			params: []any{",", int64(1)},
		},
		{
			name:   "window ordering constant is a value",
			in:     "SELECT rank() OVER (ORDER BY 1) FROM orders ORDER BY 1",
			want:   "SELECT rank() OVER (ORDER BY $1::int4) FROM orders ORDER BY 1 LIMIT 100",
			params: []any{int64(1)},
		},
		{
			name:   "left to right across cte and subquery",
			in:     "WITH b AS (SELECT id FROM users WHERE city = 'a') SELECT id FROM b WHERE id > 5 AND id IN (SELECT user_id FROM orders WHERE total < 7)",
			want:   "WITH b AS (SELECT id FROM users WHERE city = $1) SELECT id FROM b WHERE id > $2::int4 AND id IN (SELECT user_id FROM orders WHERE total < $3::int4) LIMIT 100",
			params: []any{"a", int64(5), int64(7)},
		},
		{
			name:   "nested limit is left alone",
			in:     "SELECT t.id FROM (SELECT id FROM orders LIMIT 500) t",
			want:   "SELECT t.id FROM (SELECT id FROM orders LIMIT 500) AS t LIMIT 100",
			params: nil,
		},
		{
			name:   "set operation",
			in:     "SELECT id FROM users WHERE city = 'x' UNION ALL SELECT user_id FROM orders",
			want:   "SELECT id FROM users WHERE city = $1 UNION ALL SELECT user_id FROM orders LIMIT 100",
			params: []any{"x"},
		},
		{
			name:   "quotes in strings are data",
			in:     "SELECT id FROM users WHERE name = 'O''Brien; DROP TABLE users; --'",
			want:   "SELECT id FROM users WHERE name = $1 LIMIT 100",
			params: []any{"O'Brien; DROP TABLE users; --"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bound, err := Rewrite(approve(t, tt.in), 100)
			require.NoError(t, err)
			assert.Equal(t, tt.want, bound.SQL)
			require.Len(t, bound.Params, len(tt.params))
			for i, want := range tt.params {
				if d, ok := want.(decimal.Decimal); ok {
					got, isDecimal := bound.Params[i].(decimal.Decimal)
					require.True(t, isDecimal, "param %d is %T", i+1, bound.Params[i])
					assert.True(t, d.Equal(got), "param %d: want %s, got %s", i+1, d, got)
					continue
				}
				assert.Equal(t, want, bound.Params[i], "param %d", i+1)
			}
		})
	}
}

func TestRewrite_DoesNotModifyApprovedTree(t *testing.T) {
	approved := approve(t, "SELECT id FROM users WHERE city = 'a'")
	_, err := Rewrite(approved, 100)
	require.NoError(t, err)

	sel := approved.Query().(*sql.Select)
	assert.Nil(t, sel.Limit)
	assert.Equal(t, "SELECT id FROM users WHERE city = 'a'", sql.Format(sel, nil))
}

func TestRewrite_RoundTripIsIdempotent(t *testing.T) {
	inputs := []string{
		"SELECT name FROM users WHERE city = 'Boston'",
		"SELECT id FROM orders WHERE total BETWEEN 1.5 AND 20 ORDER BY id LIMIT 7",
		"SELECT u.name, count(o.id) FROM users u LEFT JOIN orders o ON o.user_id = u.id AND o.total > 0 GROUP BY u.name",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			first, err := Rewrite(approve(t, in), 100)
			require.NoError(t, err)

			// The rewritten text parses, validates and contains no literal
			// constants other than NULL.
			again := approve(t, first.SQL)
			sql.Inspect(again.Query(), func(node any) bool {
				if l, ok := node.(*sql.Literal); ok {
					assert.Equal(t, sql.NullLiteral, l.Kind, "inlined constant %q in %s", l.Text, first.SQL)
				}
				return true
			})

			second, err := Rewrite(again, 100)
			require.NoError(t, err)
			assert.Equal(t, first.SQL, second.SQL)
			assert.Empty(t, second.Params)
		})
	}
}

func TestRewrite_PlaceholderNumberingContinues(t *testing.T) {
	bound, err := Rewrite(approve(t, "SELECT id FROM users WHERE id = $2 AND city = 'x'"), 100)
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM users WHERE id = $2 AND city = $3 LIMIT 100", bound.SQL)
	assert.Equal(t, []any{"x"}, bound.Params)
}

func TestRewrite_LimitAboveCeiling(t *testing.T) {
	_, err := Rewrite(approve(t, "SELECT id FROM users LIMIT 500"), 100)
	var v *policy.Violation
	require.ErrorAs(t, err, &v)
	assert.Equal(t, policy.LimitExceeded, v.Kind)
}

func TestRewrite_InvalidCeiling(t *testing.T) {
	_, err := Rewrite(approve(t, "SELECT id FROM users"), 0)
	assert.ErrorIs(t, err, ErrInvalidCeiling)
}
