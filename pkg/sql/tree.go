// Package sql turns candidate PostgreSQL text into a closed syntax tree and
// renders trees back into PostgreSQL text.
//
// The tree is a deliberately small model of the read-only subset of
// PostgreSQL that the gateway accepts. Anything the parser recognizes but
// the tree does not model is kept as an Unsupported node so that later
// stages can reject it instead of silently dropping it.
package sql

// Statement is a single parsed statement.
type Statement struct {
	Query Query
	Text  string
}

// Query is the root of a statement or a nested query.
type Query interface {
	queryNode()
}

// Expr is a scalar expression.
type Expr interface {
	exprNode()
}

// TableExpr is an item of a FROM clause.
type TableExpr interface {
	tableNode()
}

// Select is a plain SELECT.
type Select struct {
	With       *With
	Distinct   bool
	DistinctOn []Expr
	Targets    []Target
	From       []TableExpr
	Where      Expr
	GroupBy    []Expr
	Having     Expr
	OrderBy    []OrderItem
	Limit      *Limit
	Offset     Expr
	Locking    []string
	// Into is the target of SELECT ... INTO, which creates a table.
	Into string
}

// SetOperator combines the two arms of a SetOp.
type SetOperator string

const (
	Union     SetOperator = "UNION"
	Intersect SetOperator = "INTERSECT"
	Except    SetOperator = "EXCEPT"
)

// SetOp is UNION, INTERSECT or EXCEPT over two queries.
type SetOp struct {
	With    *With
	Op      SetOperator
	All     bool
	Left    Query
	Right   Query
	OrderBy []OrderItem
	Limit   *Limit
	Offset  Expr
	Locking []string
}

// OtherStatement is any statement that is not a query.
// Kind names the statement, e.g. "DELETE" or "CREATE TABLE".
type OtherStatement struct {
	Kind string
}

// Unsupported stands in for syntax the tree does not model.
// It can appear wherever a Query, Expr or TableExpr is expected.
type Unsupported struct {
	Construct string
}

// With is a WITH clause.
type With struct {
	Recursive bool
	CTEs      []CTE
}

// CTE is one named query of a WITH clause.
type CTE struct {
	Name    string
	Columns []string
	// Materialized is "", "MATERIALIZED" or "NOT MATERIALIZED".
	Materialized string
	Query        Query
}

// Limit is a LIMIT (or FETCH FIRST) clause.
//
// Count is set for an integer constant. Expr is set for anything else.
// Both nil means LIMIT ALL.
type Limit struct {
	Count *int64
	Expr  Expr
}

// Target is one item of the SELECT list.
type Target struct {
	Expr  Expr
	Alias string
}

// OrderItem is one ORDER BY item.
type OrderItem struct {
	Expr Expr
	// Direction is "", "ASC" or "DESC".
	Direction string
	// Nulls is "", "NULLS FIRST" or "NULLS LAST".
	Nulls string
}

// Alias renames a FROM item and optionally its columns.
type Alias struct {
	Name    string
	Columns []string
}

// TableRef names a table or view.
type TableRef struct {
	Schema string
	Name   string
	Alias  *Alias
	Only   bool
}

// JoinType is the kind of a Join.
type JoinType string

const (
	InnerJoin JoinType = "JOIN"
	LeftJoin  JoinType = "LEFT JOIN"
	RightJoin JoinType = "RIGHT JOIN"
	FullJoin  JoinType = "FULL JOIN"
	CrossJoin JoinType = "CROSS JOIN"
)

type Join struct {
	Type    JoinType
	Natural bool
	Left    TableExpr
	Right   TableExpr
	On      Expr
	Using   []string
	Alias   *Alias
}

// SubqueryRef is a parenthesized query in FROM.
type SubqueryRef struct {
	Lateral bool
	Query   Query
	Alias   *Alias
}

// FunctionRef is a set-returning function call in FROM.
type FunctionRef struct {
	Lateral        bool
	Call           *FuncCall
	WithOrdinality bool
	Alias          *Alias
}

// ColumnRef is a possibly qualified column name. A trailing star is kept
// in Star, so "u.*" has Fields ["u"] and "*" has no fields.
type ColumnRef struct {
	Fields []string
	Star   bool
}

// LiteralKind classifies a Literal.
type LiteralKind int

const (
	StringLiteral LiteralKind = iota
	IntegerLiteral
	FloatLiteral
	BoolLiteral
	NullLiteral
)

func (k LiteralKind) String() string {
	switch k {
	case StringLiteral:
		return "string"
	case IntegerLiteral:
		return "integer"
	case FloatLiteral:
		return "float"
	case BoolLiteral:
		return "bool"
	case NullLiteral:
		return "null"
	}
	return "unknown"
}

// Literal is a constant. Text holds the value as written, without quotes
// for strings and as "true"/"false" for booleans.
type Literal struct {
	Kind LiteralKind
	Text string
}

// Param is a positional placeholder ($1, $2, ...).
type Param struct {
	Number int
}

// Ordinal is a positional reference in ORDER BY or GROUP BY.
type Ordinal struct {
	Position int
}

// BinaryExpr is an infix operator. Op is the operator symbol or one of the
// keyword forms LIKE, NOT LIKE, ILIKE, NOT ILIKE, IS DISTINCT FROM and
// IS NOT DISTINCT FROM.
type BinaryExpr struct {
	Op    string
	Left  Expr
	Right Expr
}

// UnaryExpr is a prefix operator.
type UnaryExpr struct {
	Op      string
	Operand Expr
}

// BoolOp is AND, OR or NOT.
type BoolOp string

const (
	And BoolOp = "AND"
	Or  BoolOp = "OR"
	Not BoolOp = "NOT"
)

// BoolExpr is a boolean combination. NOT has exactly one argument.
type BoolExpr struct {
	Op   BoolOp
	Args []Expr
}

type FuncCall struct {
	Name     []string
	Args     []Expr
	Star     bool
	Distinct bool
	Variadic bool
	// OrderBy is the aggregate ordering, or the WITHIN GROUP ordering when
	// WithinGroup is set.
	OrderBy     []OrderItem
	WithinGroup bool
	Filter      Expr
	Over        *Window
}

// Window is an inline OVER clause. Frame holds a frame clause made only of
// keywords, e.g. "ROWS BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW".
type Window struct {
	PartitionBy []Expr
	OrderBy     []OrderItem
	Frame       string
}

type Cast struct {
	Arg  Expr
	Type TypeName
}

// TypeName is a type reference with optional integer modifiers.
type TypeName struct {
	Names     []string
	Mods      []int64
	ArrayDims int
}

type CaseExpr struct {
	Arg   Expr
	Whens []When
	Else  Expr
}

type When struct {
	Cond   Expr
	Result Expr
}

// NullTest is IS [NOT] NULL.
type NullTest struct {
	Arg Expr
	Not bool
}

// BoolTest is IS [NOT] TRUE/FALSE/UNKNOWN. Test holds the full phrase,
// e.g. "IS NOT TRUE".
type BoolTest struct {
	Arg  Expr
	Test string
}

// InList is x [NOT] IN (a, b, ...).
type InList struct {
	Arg  Expr
	List []Expr
	Not  bool
}

type Between struct {
	Arg       Expr
	Low       Expr
	High      Expr
	Not       bool
	Symmetric bool
}

// Quantified is x op ANY (array) or x op ALL (array).
type Quantified struct {
	Left  Expr
	Op    string
	All   bool
	Right Expr
}

// SubLinkKind classifies a SubLink.
type SubLinkKind int

const (
	ExistsSubLink SubLinkKind = iota
	// AnySubLink with an empty Op is IN (subquery).
	AnySubLink
	AllSubLink
	ScalarSubLink
	ArraySubLink
)

// SubLink is a subquery used as an expression.
type SubLink struct {
	Kind  SubLinkKind
	Test  Expr
	Op    string
	Query Query
}

// KeywordCall is one of the function-like keywords COALESCE, GREATEST,
// LEAST and NULLIF.
type KeywordCall struct {
	Name string
	Args []Expr
}

// ArrayExpr is ARRAY[...].
type ArrayExpr struct {
	Elems []Expr
}

// SQLValue is a keyword value such as CURRENT_DATE or CURRENT_TIMESTAMP(3).
type SQLValue struct {
	Keyword string
}

func (*Select) queryNode()         {}
func (*SetOp) queryNode()          {}
func (*OtherStatement) queryNode() {}
func (*Unsupported) queryNode()    {}

func (*TableRef) tableNode()    {}
func (*Join) tableNode()        {}
func (*SubqueryRef) tableNode() {}
func (*FunctionRef) tableNode() {}
func (*Unsupported) tableNode() {}

func (*ColumnRef) exprNode()   {}
func (*Literal) exprNode()     {}
func (*Param) exprNode()       {}
func (*Ordinal) exprNode()     {}
func (*BinaryExpr) exprNode()  {}
func (*UnaryExpr) exprNode()   {}
func (*BoolExpr) exprNode()    {}
func (*FuncCall) exprNode()    {}
func (*Cast) exprNode()        {}
func (*CaseExpr) exprNode()    {}
func (*NullTest) exprNode()    {}
func (*BoolTest) exprNode()    {}
func (*InList) exprNode()      {}
func (*Between) exprNode()     {}
func (*Quantified) exprNode()  {}
func (*SubLink) exprNode()     {}
func (*KeywordCall) exprNode() {}
func (*ArrayExpr) exprNode()   {}
func (*SQLValue) exprNode()    {}
func (*Unsupported) exprNode() {}
