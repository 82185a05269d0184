package sql

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"github.com/pganalyze/pg_query_go/v6/parser"
)

// Parser turns candidate text into a Statement.
type Parser interface {
	Parse(text string) (*Statement, error)
}

// PgParser parses with PostgreSQL's own grammar (libpg_query). It is
// stateless and safe for concurrent use.
type PgParser struct{}

func NewParser() *PgParser {
	return &PgParser{}
}

// Parse accepts exactly one statement. Empty input, input that holds only
// comments, multiple statements and grammar errors all return a
// *SyntaxError.
func (p *PgParser) Parse(text string) (*Statement, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &SyntaxError{Message: ErrEmptyStatement.Error(), cause: ErrEmptyStatement}
	}

	result, err := pg_query.Parse(text)
	if err != nil {
		return nil, newSyntaxError(err)
	}

	switch len(result.Stmts) {
	case 0:
		return nil, &SyntaxError{Message: ErrEmptyStatement.Error(), cause: ErrEmptyStatement}
	case 1:
	default:
		return nil, &SyntaxError{
			Position: int(result.Stmts[1].StmtLocation) + 1,
			Message:  ErrMultipleStatements.Error(),
			cause:    ErrMultipleStatements,
		}
	}

	raw := result.Stmts[0].Stmt
	if raw == nil {
		return nil, &SyntaxError{Message: ErrEmptyStatement.Error(), cause: ErrEmptyStatement}
	}

	return &Statement{Query: statement(raw), Text: text}, nil
}

func newSyntaxError(err error) *SyntaxError {
	var pgErr *parser.Error
	if errors.As(err, &pgErr) {
		return &SyntaxError{Position: pgErr.Cursorpos, Message: pgErr.Message, cause: err}
	}
	return &SyntaxError{Message: err.Error(), cause: err}
}

// statement converts a statement root. Anything that is not a query keeps
// only its kind.
func statement(n *pg_query.Node) Query {
	if s := n.GetSelectStmt(); s != nil {
		return selectStmt(s)
	}
	return &OtherStatement{Kind: statementKind(n)}
}

func statementKind(n *pg_query.Node) string {
	switch n.GetNode().(type) {
	case *pg_query.Node_InsertStmt:
		return "INSERT"
	case *pg_query.Node_UpdateStmt:
		return "UPDATE"
	case *pg_query.Node_DeleteStmt:
		return "DELETE"
	case *pg_query.Node_MergeStmt:
		return "MERGE"
	case *pg_query.Node_CallStmt:
		return "CALL"
	case *pg_query.Node_DoStmt:
		return "DO"
	case *pg_query.Node_CopyStmt:
		return "COPY"
	case *pg_query.Node_ExplainStmt:
		return "EXPLAIN"
	case *pg_query.Node_TransactionStmt:
		return "transaction control"
	case *pg_query.Node_VariableSetStmt:
		return "SET"
	case *pg_query.Node_VariableShowStmt:
		return "SHOW"
	case *pg_query.Node_CreateStmt:
		return "CREATE TABLE"
	case *pg_query.Node_CreateTableAsStmt:
		return "CREATE TABLE AS"
	case *pg_query.Node_ViewStmt:
		return "CREATE VIEW"
	case *pg_query.Node_IndexStmt:
		return "CREATE INDEX"
	case *pg_query.Node_CreateFunctionStmt:
		return "CREATE FUNCTION"
	case *pg_query.Node_DropStmt:
		return "DROP"
	case *pg_query.Node_TruncateStmt:
		return "TRUNCATE"
	case *pg_query.Node_AlterTableStmt:
		return "ALTER TABLE"
	case *pg_query.Node_GrantStmt:
		return "GRANT"
	case *pg_query.Node_GrantRoleStmt:
		return "GRANT ROLE"
	case *pg_query.Node_LockStmt:
		return "LOCK"
	case *pg_query.Node_VacuumStmt:
		return "VACUUM"
	case *pg_query.Node_PrepareStmt:
		return "PREPARE"
	case *pg_query.Node_ExecuteStmt:
		return "EXECUTE"
	case *pg_query.Node_ListenStmt:
		return "LISTEN"
	case *pg_query.Node_NotifyStmt:
		return "NOTIFY"
	}
	return strings.TrimSuffix(nodeName(n), "Stmt")
}

// nodeName is the protobuf node type, e.g. "XmlExpr".
func nodeName(n *pg_query.Node) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", n.GetNode()), "*pg_query.Node_")
}

// query converts a nested query. Only SELECT forms are modeled.
func query(n *pg_query.Node) Query {
	if s := n.GetSelectStmt(); s != nil {
		return selectStmt(s)
	}
	return &Unsupported{Construct: nodeName(n)}
}

func selectStmt(s *pg_query.SelectStmt) Query {
	var with *With
	if s.WithClause != nil {
		with = withClause(s.WithClause)
	}

	if op, ok := setOperator(s.Op); ok {
		if s.Larg == nil || s.Rarg == nil {
			return &Unsupported{Construct: "set operation"}
		}
		set := &SetOp{
			With:    with,
			Op:      op,
			All:     s.All,
			Left:    selectStmt(s.Larg),
			Right:   selectStmt(s.Rarg),
			OrderBy: orderItems(s.SortClause, true),
			Locking: locking(s.LockingClause),
		}
		set.Limit, set.Offset = limitClause(s)
		return set
	}

	if len(s.ValuesLists) > 0 {
		return &Unsupported{Construct: "VALUES list"}
	}

	sel := &Select{With: with}
	if s.IntoClause != nil && s.IntoClause.Rel != nil {
		sel.Into = qualifiedName(s.IntoClause.Rel.Schemaname, s.IntoClause.Rel.Relname)
	}

	if len(s.DistinctClause) == 1 && s.DistinctClause[0].GetNode() == nil {
		sel.Distinct = true
	} else if len(s.DistinctClause) > 0 {
		for _, n := range s.DistinctClause {
			sel.DistinctOn = append(sel.DistinctOn, sortExpr(n))
		}
	}

	for _, n := range s.TargetList {
		sel.Targets = append(sel.Targets, target(n))
	}
	for _, n := range s.FromClause {
		sel.From = append(sel.From, tableExpr(n))
	}
	sel.Where = optExpr(s.WhereClause)

	for _, n := range s.GroupClause {
		sel.GroupBy = append(sel.GroupBy, groupItem(n))
	}
	if s.GroupDistinct {
		sel.GroupBy = append(sel.GroupBy, &Unsupported{Construct: "GROUP BY DISTINCT"})
	}
	sel.Having = optExpr(s.HavingClause)
	if len(s.WindowClause) > 0 {
		sel.Targets = append(sel.Targets, Target{Expr: &Unsupported{Construct: "WINDOW clause"}})
	}

	sel.OrderBy = orderItems(s.SortClause, true)
	sel.Limit, sel.Offset = limitClause(s)
	sel.Locking = locking(s.LockingClause)
	return sel
}

func setOperator(op pg_query.SetOperation) (SetOperator, bool) {
	switch op {
	case pg_query.SetOperation_SETOP_UNION:
		return Union, true
	case pg_query.SetOperation_SETOP_INTERSECT:
		return Intersect, true
	case pg_query.SetOperation_SETOP_EXCEPT:
		return Except, true
	}
	return "", false
}

func withClause(w *pg_query.WithClause) *With {
	with := &With{Recursive: w.Recursive}
	for _, n := range w.Ctes {
		c := n.GetCommonTableExpr()
		if c == nil {
			continue
		}
		cte := CTE{Name: c.Ctename, Columns: names(c.Aliascolnames)}
		switch c.Ctematerialized {
		case pg_query.CTEMaterialize_CTEMaterializeAlways:
			cte.Materialized = "MATERIALIZED"
		case pg_query.CTEMaterialize_CTEMaterializeNever:
			cte.Materialized = "NOT MATERIALIZED"
		}
		if c.SearchClause != nil || c.CycleClause != nil {
			cte.Query = &Unsupported{Construct: "SEARCH or CYCLE clause"}
		} else {
			cte.Query = statement(c.Ctequery)
		}
		with.CTEs = append(with.CTEs, cte)
	}
	return with
}

func limitClause(s *pg_query.SelectStmt) (*Limit, Expr) {
	var lim *Limit
	switch {
	case s.LimitOption == pg_query.LimitOption_LIMIT_OPTION_WITH_TIES:
		lim = &Limit{Expr: &Unsupported{Construct: "FETCH FIRST ... WITH TIES"}}
	case s.LimitCount != nil:
		lim = limitCount(s.LimitCount)
	}
	return lim, optExpr(s.LimitOffset)
}

func limitCount(n *pg_query.Node) *Limit {
	if c := n.GetAConst(); c != nil {
		if c.Isnull {
			return &Limit{}
		}
		if iv := c.GetIval(); iv != nil {
			v := int64(iv.Ival)
			return &Limit{Count: &v}
		}
		if fv := c.GetFval(); fv != nil {
			if v, err := strconv.ParseInt(fv.Fval, 10, 64); err == nil {
				return &Limit{Count: &v}
			}
		}
	}
	return &Limit{Expr: expr(n)}
}

func locking(nodes []*pg_query.Node) []string {
	var out []string
	for _, n := range nodes {
		lc := n.GetLockingClause()
		if lc == nil {
			continue
		}
		switch lc.Strength {
		case pg_query.LockClauseStrength_LCS_FORKEYSHARE:
			out = append(out, "FOR KEY SHARE")
		case pg_query.LockClauseStrength_LCS_FORSHARE:
			out = append(out, "FOR SHARE")
		case pg_query.LockClauseStrength_LCS_FORNOKEYUPDATE:
			out = append(out, "FOR NO KEY UPDATE")
		default:
			out = append(out, "FOR UPDATE")
		}
	}
	return out
}

func target(n *pg_query.Node) Target {
	rt := n.GetResTarget()
	if rt == nil {
		return Target{Expr: &Unsupported{Construct: nodeName(n)}}
	}
	if len(rt.Indirection) > 0 {
		return Target{Expr: &Unsupported{Construct: "target indirection"}}
	}
	return Target{Expr: expr(rt.Val), Alias: rt.Name}
}

func groupItem(n *pg_query.Node) Expr {
	if n.GetGroupingSet() != nil {
		return &Unsupported{Construct: "grouping sets"}
	}
	if c := n.GetAConst(); c != nil {
		if iv := c.GetIval(); iv != nil {
			return &Ordinal{Position: int(iv.Ival)}
		}
	}
	return expr(n)
}

// orderItems converts a sort clause. Integer constants are column positions
// only in a statement-level ORDER BY; inside an aggregate or a window they
// are ordinary constants.
func orderItems(nodes []*pg_query.Node, positional bool) []OrderItem {
	var out []OrderItem
	for _, n := range nodes {
		sb := n.GetSortBy()
		if sb == nil {
			out = append(out, OrderItem{Expr: &Unsupported{Construct: nodeName(n)}})
			continue
		}
		item := OrderItem{Expr: expr(sb.Node)}
		if positional {
			item.Expr = sortExpr(sb.Node)
		}
		switch sb.SortbyDir {
		case pg_query.SortByDir_SORTBY_ASC:
			item.Direction = "ASC"
		case pg_query.SortByDir_SORTBY_DESC:
			item.Direction = "DESC"
		case pg_query.SortByDir_SORTBY_USING:
			item.Expr = &Unsupported{Construct: "ORDER BY ... USING"}
		}
		switch sb.SortbyNulls {
		case pg_query.SortByNulls_SORTBY_NULLS_FIRST:
			item.Nulls = "NULLS FIRST"
		case pg_query.SortByNulls_SORTBY_NULLS_LAST:
			item.Nulls = "NULLS LAST"
		}
		out = append(out, item)
	}
	return out
}

func sortExpr(n *pg_query.Node) Expr {
	if c := n.GetAConst(); c != nil {
		if iv := c.GetIval(); iv != nil {
			return &Ordinal{Position: int(iv.Ival)}
		}
	}
	return expr(n)
}

func tableExpr(n *pg_query.Node) TableExpr {
	switch t := n.GetNode().(type) {
	case *pg_query.Node_RangeVar:
		rv := t.RangeVar
		if rv.Catalogname != "" {
			return &Unsupported{Construct: "database-qualified table reference"}
		}
		return &TableRef{Schema: rv.Schemaname, Name: rv.Relname, Alias: alias(rv.Alias), Only: !rv.Inh}

	case *pg_query.Node_JoinExpr:
		j := t.JoinExpr
		if j.JoinUsingAlias != nil {
			return &Unsupported{Construct: "JOIN USING alias"}
		}
		join := &Join{
			Natural: j.IsNatural,
			Left:    tableExpr(j.Larg),
			Right:   tableExpr(j.Rarg),
			On:      optExpr(j.Quals),
			Using:   names(j.UsingClause),
			Alias:   alias(j.Alias),
		}
		switch j.Jointype {
		case pg_query.JoinType_JOIN_INNER:
			join.Type = InnerJoin
			if j.Quals == nil && len(j.UsingClause) == 0 && !j.IsNatural {
				join.Type = CrossJoin
			}
		case pg_query.JoinType_JOIN_LEFT:
			join.Type = LeftJoin
		case pg_query.JoinType_JOIN_RIGHT:
			join.Type = RightJoin
		case pg_query.JoinType_JOIN_FULL:
			join.Type = FullJoin
		default:
			return &Unsupported{Construct: "join type " + j.Jointype.String()}
		}
		return join

	case *pg_query.Node_RangeSubselect:
		rs := t.RangeSubselect
		return &SubqueryRef{Lateral: rs.Lateral, Query: query(rs.Subquery), Alias: alias(rs.Alias)}

	case *pg_query.Node_RangeFunction:
		return rangeFunction(t.RangeFunction)
	}
	return &Unsupported{Construct: nodeName(n)}
}

func rangeFunction(rf *pg_query.RangeFunction) TableExpr {
	if rf.IsRowsfrom || len(rf.Functions) != 1 || len(rf.Coldeflist) > 0 {
		return &Unsupported{Construct: "ROWS FROM or column definition list"}
	}
	items := rf.Functions[0].GetList().GetItems()
	if len(items) == 0 {
		return &Unsupported{Construct: "function in FROM"}
	}
	call, ok := expr(items[0]).(*FuncCall)
	if !ok {
		return &Unsupported{Construct: "function in FROM"}
	}
	return &FunctionRef{
		Lateral:        rf.Lateral,
		Call:           call,
		WithOrdinality: rf.Ordinality,
		Alias:          alias(rf.Alias),
	}
}

func alias(a *pg_query.Alias) *Alias {
	if a == nil {
		return nil
	}
	return &Alias{Name: a.Aliasname, Columns: names(a.Colnames)}
}

// names collects the String values of a node list.
func names(nodes []*pg_query.Node) []string {
	var out []string
	for _, n := range nodes {
		if s := n.GetString_(); s != nil {
			out = append(out, s.Sval)
		}
	}
	return out
}

func qualifiedName(schema, name string) string {
	if schema == "" {
		return name
	}
	return schema + "." + name
}

func optExpr(n *pg_query.Node) Expr {
	if n == nil {
		return nil
	}
	return expr(n)
}

func exprs(nodes []*pg_query.Node) []Expr {
	out := make([]Expr, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, expr(n))
	}
	return out
}

func expr(n *pg_query.Node) Expr {
	switch e := n.GetNode().(type) {
	case *pg_query.Node_ColumnRef:
		ref := &ColumnRef{}
		for _, f := range e.ColumnRef.Fields {
			switch {
			case f.GetString_() != nil:
				ref.Fields = append(ref.Fields, f.GetString_().Sval)
			case f.GetAStar() != nil:
				ref.Star = true
			}
		}
		return ref
	case *pg_query.Node_AConst:
		return literal(e.AConst)
	case *pg_query.Node_ParamRef:
		return &Param{Number: int(e.ParamRef.Number)}
	case *pg_query.Node_AExpr:
		return aExpr(e.AExpr)
	case *pg_query.Node_BoolExpr:
		return boolExpr(e.BoolExpr)
	case *pg_query.Node_FuncCall:
		return funcCall(e.FuncCall)
	case *pg_query.Node_TypeCast:
		tn, ok := typeName(e.TypeCast.TypeName)
		if !ok {
			return &Unsupported{Construct: "type name"}
		}
		return &Cast{Arg: expr(e.TypeCast.Arg), Type: tn}
	case *pg_query.Node_CaseExpr:
		c := &CaseExpr{Arg: optExpr(e.CaseExpr.Arg), Else: optExpr(e.CaseExpr.Defresult)}
		for _, w := range e.CaseExpr.Args {
			cw := w.GetCaseWhen()
			if cw == nil {
				return &Unsupported{Construct: nodeName(w)}
			}
			c.Whens = append(c.Whens, When{Cond: expr(cw.Expr), Result: expr(cw.Result)})
		}
		return c
	case *pg_query.Node_NullTest:
		return &NullTest{Arg: expr(e.NullTest.Arg), Not: e.NullTest.Nulltesttype == pg_query.NullTestType_IS_NOT_NULL}
	case *pg_query.Node_BooleanTest:
		return boolTest(e.BooleanTest)
	case *pg_query.Node_SubLink:
		return subLink(e.SubLink)
	case *pg_query.Node_CoalesceExpr:
		return &KeywordCall{Name: "COALESCE", Args: exprs(e.CoalesceExpr.Args)}
	case *pg_query.Node_MinMaxExpr:
		name := "GREATEST"
		if e.MinMaxExpr.Op == pg_query.MinMaxOp_IS_LEAST {
			name = "LEAST"
		}
		return &KeywordCall{Name: name, Args: exprs(e.MinMaxExpr.Args)}
	case *pg_query.Node_AArrayExpr:
		return &ArrayExpr{Elems: exprs(e.AArrayExpr.Elements)}
	case *pg_query.Node_SqlvalueFunction:
		return sqlValue(e.SqlvalueFunction)
	}
	return &Unsupported{Construct: nodeName(n)}
}

func literal(c *pg_query.A_Const) Expr {
	switch {
	case c.Isnull:
		return &Literal{Kind: NullLiteral}
	case c.GetIval() != nil:
		return &Literal{Kind: IntegerLiteral, Text: strconv.FormatInt(int64(c.GetIval().Ival), 10)}
	case c.GetFval() != nil:
		text := c.GetFval().Fval
		if strings.ContainsAny(text, ".eE") {
			return &Literal{Kind: FloatLiteral, Text: text}
		}
		// Integers too large for int4 arrive as Float nodes.
		return &Literal{Kind: IntegerLiteral, Text: text}
	case c.GetBoolval() != nil:
		return &Literal{Kind: BoolLiteral, Text: strconv.FormatBool(c.GetBoolval().Boolval)}
	case c.GetSval() != nil:
		return &Literal{Kind: StringLiteral, Text: c.GetSval().Sval}
	case c.GetBsval() != nil:
		return &Unsupported{Construct: "bit string literal"}
	}
	return &Unsupported{Construct: "constant"}
}

// operatorName returns the operator symbol, or false for a schema
// qualified OPERATOR(...) form.
func operatorName(nodes []*pg_query.Node) (string, bool) {
	ops := names(nodes)
	if len(ops) != 1 {
		return "", false
	}
	return ops[0], true
}

func aExpr(e *pg_query.A_Expr) Expr {
	op, ok := operatorName(e.Name)
	if !ok {
		return &Unsupported{Construct: "qualified operator"}
	}

	switch e.Kind {
	case pg_query.A_Expr_Kind_AEXPR_OP:
		if e.Lexpr == nil {
			return &UnaryExpr{Op: op, Operand: expr(e.Rexpr)}
		}
		if e.Rexpr == nil {
			return &Unsupported{Construct: "postfix operator"}
		}
		return &BinaryExpr{Op: op, Left: expr(e.Lexpr), Right: expr(e.Rexpr)}

	case pg_query.A_Expr_Kind_AEXPR_OP_ANY, pg_query.A_Expr_Kind_AEXPR_OP_ALL:
		return &Quantified{
			Left:  expr(e.Lexpr),
			Op:    op,
			All:   e.Kind == pg_query.A_Expr_Kind_AEXPR_OP_ALL,
			Right: expr(e.Rexpr),
		}

	case pg_query.A_Expr_Kind_AEXPR_DISTINCT:
		return &BinaryExpr{Op: "IS DISTINCT FROM", Left: expr(e.Lexpr), Right: expr(e.Rexpr)}
	case pg_query.A_Expr_Kind_AEXPR_NOT_DISTINCT:
		return &BinaryExpr{Op: "IS NOT DISTINCT FROM", Left: expr(e.Lexpr), Right: expr(e.Rexpr)}

	case pg_query.A_Expr_Kind_AEXPR_NULLIF:
		return &KeywordCall{Name: "NULLIF", Args: []Expr{expr(e.Lexpr), expr(e.Rexpr)}}

	case pg_query.A_Expr_Kind_AEXPR_IN:
		list := e.Rexpr.GetList()
		if list == nil {
			return &Unsupported{Construct: "IN"}
		}
		return &InList{Arg: expr(e.Lexpr), List: exprs(list.Items), Not: op == "<>"}

	case pg_query.A_Expr_Kind_AEXPR_LIKE, pg_query.A_Expr_Kind_AEXPR_ILIKE:
		word, ok := likeOperators[op]
		if !ok {
			return &Unsupported{Construct: "LIKE operator " + op}
		}
		return &BinaryExpr{Op: word, Left: expr(e.Lexpr), Right: expr(e.Rexpr)}

	case pg_query.A_Expr_Kind_AEXPR_BETWEEN, pg_query.A_Expr_Kind_AEXPR_NOT_BETWEEN,
		pg_query.A_Expr_Kind_AEXPR_BETWEEN_SYM, pg_query.A_Expr_Kind_AEXPR_NOT_BETWEEN_SYM:
		bounds := e.Rexpr.GetList().GetItems()
		if len(bounds) != 2 {
			return &Unsupported{Construct: "BETWEEN"}
		}
		return &Between{
			Arg:  expr(e.Lexpr),
			Low:  expr(bounds[0]),
			High: expr(bounds[1]),
			Not: e.Kind == pg_query.A_Expr_Kind_AEXPR_NOT_BETWEEN ||
				e.Kind == pg_query.A_Expr_Kind_AEXPR_NOT_BETWEEN_SYM,
			Symmetric: e.Kind == pg_query.A_Expr_Kind_AEXPR_BETWEEN_SYM ||
				e.Kind == pg_query.A_Expr_Kind_AEXPR_NOT_BETWEEN_SYM,
		}
	}
	return &Unsupported{Construct: e.Kind.String()}
}

var likeOperators = map[string]string{
	"~~":   "LIKE",
	"!~~":  "NOT LIKE",
	"~~*":  "ILIKE",
	"!~~*": "NOT ILIKE",
}

func boolExpr(b *pg_query.BoolExpr) Expr {
	var op BoolOp
	switch b.Boolop {
	case pg_query.BoolExprType_AND_EXPR:
		op = And
	case pg_query.BoolExprType_OR_EXPR:
		op = Or
	case pg_query.BoolExprType_NOT_EXPR:
		op = Not
	default:
		return &Unsupported{Construct: b.Boolop.String()}
	}
	return &BoolExpr{Op: op, Args: exprs(b.Args)}
}

func boolTest(b *pg_query.BooleanTest) Expr {
	var test string
	switch b.Booltesttype {
	case pg_query.BoolTestType_IS_TRUE:
		test = "IS TRUE"
	case pg_query.BoolTestType_IS_NOT_TRUE:
		test = "IS NOT TRUE"
	case pg_query.BoolTestType_IS_FALSE:
		test = "IS FALSE"
	case pg_query.BoolTestType_IS_NOT_FALSE:
		test = "IS NOT FALSE"
	case pg_query.BoolTestType_IS_UNKNOWN:
		test = "IS UNKNOWN"
	case pg_query.BoolTestType_IS_NOT_UNKNOWN:
		test = "IS NOT UNKNOWN"
	default:
		return &Unsupported{Construct: b.Booltesttype.String()}
	}
	return &BoolTest{Arg: expr(b.Arg), Test: test}
}

func funcCall(f *pg_query.FuncCall) Expr {
	call := &FuncCall{
		Name:        names(f.Funcname),
		Args:        exprs(f.Args),
		Star:        f.AggStar,
		Distinct:    f.AggDistinct,
		Variadic:    f.FuncVariadic,
		OrderBy:     orderItems(f.AggOrder, false),
		WithinGroup: f.AggWithinGroup,
		Filter:      optExpr(f.AggFilter),
	}
	if len(call.Name) == 0 {
		return &Unsupported{Construct: "function name"}
	}
	if f.Over != nil {
		w, ok := window(f.Over)
		if !ok {
			return &Unsupported{Construct: "window definition"}
		}
		call.Over = w
	}
	return call
}

// Window frame option bits, as defined by PostgreSQL.
const (
	frameNonDefault              = 0x00001
	frameRange                   = 0x00002
	frameRows                    = 0x00004
	frameGroups                  = 0x00008
	frameStartUnboundedPreceding = 0x00020
	frameEndUnboundedFollowing   = 0x00100
	frameStartCurrentRow         = 0x00200
	frameEndCurrentRow           = 0x00400
	frameOffsets                 = 0x00800 | 0x01000 | 0x02000 | 0x04000
	frameExclusions              = 0x08000 | 0x10000 | 0x20000
)

func window(w *pg_query.WindowDef) (*Window, bool) {
	if w.Name != "" || w.Refname != "" {
		return nil, false
	}
	out := &Window{PartitionBy: exprs(w.PartitionClause), OrderBy: orderItems(w.OrderClause, false)}
	if len(out.PartitionBy) == 0 {
		out.PartitionBy = nil
	}

	opts := w.FrameOptions
	if opts&frameNonDefault == 0 {
		return out, true
	}
	if opts&(frameOffsets|frameExclusions) != 0 {
		return nil, false
	}

	var mode string
	switch {
	case opts&frameRows != 0:
		mode = "ROWS"
	case opts&frameGroups != 0:
		mode = "GROUPS"
	case opts&frameRange != 0:
		mode = "RANGE"
	default:
		return nil, false
	}

	start := "UNBOUNDED PRECEDING"
	if opts&frameStartCurrentRow != 0 {
		start = "CURRENT ROW"
	} else if opts&frameStartUnboundedPreceding == 0 {
		return nil, false
	}
	end := "CURRENT ROW"
	if opts&frameEndUnboundedFollowing != 0 {
		end = "UNBOUNDED FOLLOWING"
	} else if opts&frameEndCurrentRow == 0 {
		return nil, false
	}

	out.Frame = fmt.Sprintf("%s BETWEEN %s AND %s", mode, start, end)
	return out, true
}

func typeName(t *pg_query.TypeName) (TypeName, bool) {
	if t == nil || t.Setof || t.PctType {
		return TypeName{}, false
	}
	tn := TypeName{Names: names(t.Names), ArrayDims: len(t.ArrayBounds)}
	if len(tn.Names) == 0 {
		return TypeName{}, false
	}
	for _, m := range t.Typmods {
		iv := m.GetAConst().GetIval()
		if iv == nil {
			return TypeName{}, false
		}
		tn.Mods = append(tn.Mods, int64(iv.Ival))
	}
	// INTERVAL field qualifiers are encoded as modifiers and cannot be
	// written back as interval(n).
	if len(tn.Mods) > 0 && tn.Names[len(tn.Names)-1] == "interval" {
		return TypeName{}, false
	}
	return tn, true
}

func subLink(s *pg_query.SubLink) Expr {
	link := &SubLink{Query: query(s.Subselect)}
	switch s.SubLinkType {
	case pg_query.SubLinkType_EXISTS_SUBLINK:
		link.Kind = ExistsSubLink
	case pg_query.SubLinkType_ANY_SUBLINK, pg_query.SubLinkType_ALL_SUBLINK:
		link.Kind = AnySubLink
		if s.SubLinkType == pg_query.SubLinkType_ALL_SUBLINK {
			link.Kind = AllSubLink
		}
		link.Test = optExpr(s.Testexpr)
		if len(s.OperName) > 0 {
			op, ok := operatorName(s.OperName)
			if !ok {
				return &Unsupported{Construct: "qualified operator"}
			}
			link.Op = op
		}
	case pg_query.SubLinkType_EXPR_SUBLINK:
		link.Kind = ScalarSubLink
	case pg_query.SubLinkType_ARRAY_SUBLINK:
		link.Kind = ArraySubLink
	default:
		return &Unsupported{Construct: s.SubLinkType.String()}
	}
	return link
}

func sqlValue(f *pg_query.SQLValueFunction) Expr {
	keyword, ok := sqlValueKeywords[f.Op]
	if !ok {
		return &Unsupported{Construct: f.Op.String()}
	}
	switch f.Op {
	case pg_query.SQLValueFunctionOp_SVFOP_CURRENT_TIME_N,
		pg_query.SQLValueFunctionOp_SVFOP_CURRENT_TIMESTAMP_N,
		pg_query.SQLValueFunctionOp_SVFOP_LOCALTIME_N,
		pg_query.SQLValueFunctionOp_SVFOP_LOCALTIMESTAMP_N:
		keyword = fmt.Sprintf("%s(%d)", keyword, f.Typmod)
	}
	return &SQLValue{Keyword: keyword}
}

var sqlValueKeywords = map[pg_query.SQLValueFunctionOp]string{
	pg_query.SQLValueFunctionOp_SVFOP_CURRENT_DATE:        "CURRENT_DATE",
	pg_query.SQLValueFunctionOp_SVFOP_CURRENT_TIME:        "CURRENT_TIME",
	pg_query.SQLValueFunctionOp_SVFOP_CURRENT_TIME_N:      "CURRENT_TIME",
	pg_query.SQLValueFunctionOp_SVFOP_CURRENT_TIMESTAMP:   "CURRENT_TIMESTAMP",
	pg_query.SQLValueFunctionOp_SVFOP_CURRENT_TIMESTAMP_N: "CURRENT_TIMESTAMP",
	pg_query.SQLValueFunctionOp_SVFOP_LOCALTIME:           "LOCALTIME",
	pg_query.SQLValueFunctionOp_SVFOP_LOCALTIME_N:         "LOCALTIME",
	pg_query.SQLValueFunctionOp_SVFOP_LOCALTIMESTAMP:      "LOCALTIMESTAMP",
	pg_query.SQLValueFunctionOp_SVFOP_LOCALTIMESTAMP_N:    "LOCALTIMESTAMP",
	pg_query.SQLValueFunctionOp_SVFOP_CURRENT_ROLE:        "CURRENT_ROLE",
	pg_query.SQLValueFunctionOp_SVFOP_CURRENT_USER:        "CURRENT_USER",
	pg_query.SQLValueFunctionOp_SVFOP_USER:                "USER",
	pg_query.SQLValueFunctionOp_SVFOP_SESSION_USER:        "SESSION_USER",
	pg_query.SQLValueFunctionOp_SVFOP_CURRENT_CATALOG:     "CURRENT_CATALOG",
	pg_query.SQLValueFunctionOp_SVFOP_CURRENT_SCHEMA:      "CURRENT_SCHEMA",
}
