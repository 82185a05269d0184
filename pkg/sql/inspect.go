package sql

// Inspect traverses the tree rooted at node in depth-first order, calling
// fn for every Query, TableExpr and Expr it reaches. If fn returns false,
// the children of that node are skipped. Nil nodes are never passed to fn.
func Inspect(node any, fn func(node any) bool) {
	switch n := node.(type) {
	case nil:
		return
	case Query:
		inspectQuery(n, fn)
	case TableExpr:
		inspectTable(n, fn)
	case Expr:
		inspectExpr(n, fn)
	}
}

func inspectQuery(q Query, fn func(any) bool) {
	if q == nil || !fn(q) {
		return
	}
	switch q := q.(type) {
	case *Select:
		inspectWith(q.With, fn)
		inspectExprs(q.DistinctOn, fn)
		for _, t := range q.Targets {
			inspectExpr(t.Expr, fn)
		}
		for _, f := range q.From {
			inspectTable(f, fn)
		}
		inspectExpr(q.Where, fn)
		inspectExprs(q.GroupBy, fn)
		inspectExpr(q.Having, fn)
		inspectOrder(q.OrderBy, fn)
		inspectLimit(q.Limit, fn)
		inspectExpr(q.Offset, fn)
	case *SetOp:
		inspectWith(q.With, fn)
		inspectQuery(q.Left, fn)
		inspectQuery(q.Right, fn)
		inspectOrder(q.OrderBy, fn)
		inspectLimit(q.Limit, fn)
		inspectExpr(q.Offset, fn)
	}
}

func inspectWith(w *With, fn func(any) bool) {
	if w == nil {
		return
	}
	for _, cte := range w.CTEs {
		inspectQuery(cte.Query, fn)
	}
}

func inspectLimit(l *Limit, fn func(any) bool) {
	if l != nil {
		inspectExpr(l.Expr, fn)
	}
}

func inspectOrder(items []OrderItem, fn func(any) bool) {
	for _, item := range items {
		inspectExpr(item.Expr, fn)
	}
}

func inspectExprs(exprs []Expr, fn func(any) bool) {
	for _, e := range exprs {
		inspectExpr(e, fn)
	}
}

func inspectTable(t TableExpr, fn func(any) bool) {
	if t == nil || !fn(t) {
		return
	}
	switch t := t.(type) {
	case *Join:
		inspectTable(t.Left, fn)
		inspectTable(t.Right, fn)
		inspectExpr(t.On, fn)
	case *SubqueryRef:
		inspectQuery(t.Query, fn)
	case *FunctionRef:
		if t.Call != nil {
			inspectExpr(t.Call, fn)
		}
	}
}

func inspectExpr(e Expr, fn func(any) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch e := e.(type) {
	case *BinaryExpr:
		inspectExpr(e.Left, fn)
		inspectExpr(e.Right, fn)
	case *UnaryExpr:
		inspectExpr(e.Operand, fn)
	case *BoolExpr:
		inspectExprs(e.Args, fn)
	case *FuncCall:
		inspectExprs(e.Args, fn)
		inspectOrder(e.OrderBy, fn)
		inspectExpr(e.Filter, fn)
		if e.Over != nil {
			inspectExprs(e.Over.PartitionBy, fn)
			inspectOrder(e.Over.OrderBy, fn)
		}
	case *Cast:
		inspectExpr(e.Arg, fn)
	case *CaseExpr:
		inspectExpr(e.Arg, fn)
		for _, w := range e.Whens {
			inspectExpr(w.Cond, fn)
			inspectExpr(w.Result, fn)
		}
		inspectExpr(e.Else, fn)
	case *NullTest:
		inspectExpr(e.Arg, fn)
	case *BoolTest:
		inspectExpr(e.Arg, fn)
	case *InList:
		inspectExpr(e.Arg, fn)
		inspectExprs(e.List, fn)
	case *Between:
		inspectExpr(e.Arg, fn)
		inspectExpr(e.Low, fn)
		inspectExpr(e.High, fn)
	case *Quantified:
		inspectExpr(e.Left, fn)
		inspectExpr(e.Right, fn)
	case *SubLink:
		inspectExpr(e.Test, fn)
		inspectQuery(e.Query, fn)
	case *KeywordCall:
		inspectExprs(e.Args, fn)
	case *ArrayExpr:
		inspectExprs(e.Elems, fn)
	}
}
