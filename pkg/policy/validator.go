// Package policy decides whether a parsed statement is a safe, read-only,
// schema-conformant query.
package policy

import (
	"strings"

	"github.com/ekaya-inc/ekaya-gateway/pkg/catalog"
	"github.com/ekaya-inc/ekaya-gateway/pkg/sql"
)

// DefaultMaxLimit is the row ceiling used when none is configured.
const DefaultMaxLimit = 100

// Approved is a statement that passed validation. Only Validate creates
// one, so holding an Approved proves the checks ran.
type Approved struct {
	stmt     *sql.Statement
	maxParam int
}

func (a *Approved) Statement() *sql.Statement { return a.stmt }

func (a *Approved) Query() sql.Query { return a.stmt.Query }

// MaxParam is the highest $n placeholder in the statement, 0 if none.
func (a *Approved) MaxParam() int { return a.maxParam }

// Validator enforces the read-only policy. It holds no per-request state
// and is safe for concurrent use.
type Validator struct {
	maxLimit         int64
	allowedFunctions map[string]struct{}
}

type Option func(*Validator)

// WithAllowedFunctions permits calls to the named user-defined routines.
// Names may be bare or schema-qualified. The deny list always wins.
func WithAllowedFunctions(names ...string) Option {
	return func(v *Validator) {
		for _, n := range names {
			if n = strings.TrimSpace(n); n != "" {
				v.allowedFunctions[strings.ToLower(n)] = struct{}{}
			}
		}
	}
}

// NewValidator creates a validator with the given LIMIT ceiling.
// A ceiling <= 0 uses DefaultMaxLimit.
func NewValidator(maxLimit int64, opts ...Option) *Validator {
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	v := &Validator{
		maxLimit:         maxLimit,
		allowedFunctions: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Validator) MaxLimit() int64 {
	return v.maxLimit
}

// Validate runs the checks in order and returns the first violation:
// statement kind, object whitelist, forbidden constructs, limit soundness.
// The returned error is always a *Violation.
func (v *Validator) Validate(stmt *sql.Statement, cat *catalog.Catalog) (*Approved, error) {
	if viol := checkStatementKind(stmt.Query); viol != nil {
		return nil, viol
	}
	if viol := newResolver(cat).check(stmt.Query); viol != nil {
		return nil, viol
	}
	if viol := v.checkConstructs(stmt.Query, cat); viol != nil {
		return nil, viol
	}
	if viol := v.checkLimit(stmt.Query); viol != nil {
		return nil, viol
	}
	return &Approved{stmt: stmt, maxParam: maxParam(stmt.Query)}, nil
}

func checkStatementKind(q sql.Query) *Violation {
	switch q := q.(type) {
	case *sql.OtherStatement:
		return violation(NonReadOperation, q.Kind, "only SELECT queries are allowed, got %s", q.Kind)
	case *sql.Select:
		if q.Into != "" {
			return violation(NonReadOperation, "SELECT INTO", "SELECT INTO creates table %q and is not allowed", q.Into)
		}
	case *sql.SetOp:
		// INTO is only legal on the leftmost arm.
		return checkStatementKind(q.Left)
	}
	return nil
}

func (v *Validator) checkConstructs(root sql.Query, cat *catalog.Catalog) *Violation {
	var found *Violation
	sql.Inspect(root, func(node any) bool {
		if found != nil {
			return false
		}
		switch n := node.(type) {
		case *sql.Unsupported:
			found = violation(ForbiddenConstruct, n.Construct, "%s is not supported", n.Construct)
		case *sql.OtherStatement:
			found = violation(ForbiddenConstruct, n.Kind, "data-modifying statement %s inside WITH is not allowed", n.Kind)
		case *sql.Select:
			if len(n.Locking) > 0 {
				found = violation(ForbiddenConstruct, n.Locking[0], "row locking clause %s is not allowed", n.Locking[0])
			} else if n.Into != "" {
				found = violation(ForbiddenConstruct, "SELECT INTO", "SELECT INTO is not allowed")
			}
		case *sql.SetOp:
			if len(n.Locking) > 0 {
				found = violation(ForbiddenConstruct, n.Locking[0], "row locking clause %s is not allowed", n.Locking[0])
			}
		case *sql.FuncCall:
			found = v.checkFunction(n, cat)
		}
		return found == nil
	})
	return found
}

func (v *Validator) checkFunction(call *sql.FuncCall, cat *catalog.Catalog) *Violation {
	if len(call.Name) == 0 {
		return violation(ForbiddenConstruct, "function", "function call without a name is not supported")
	}
	parts := make([]string, len(call.Name))
	for i, p := range call.Name {
		parts[i] = strings.ToLower(p)
	}
	name := parts[len(parts)-1]
	qualified := strings.Join(parts, ".")

	if isDenied(name) {
		return violation(ForbiddenConstruct, qualified, "function %s is not allowed", qualified)
	}

	userDefined := false
	if len(parts) > 1 {
		userDefined = parts[len(parts)-2] != "pg_catalog"
	} else {
		userDefined = cat.HasRoutine(name)
	}
	if userDefined && !v.isAllowed(qualified, name) {
		return violation(ForbiddenConstruct, qualified, "calling user-defined routine %s is not allowed", qualified)
	}
	return nil
}

func (v *Validator) isAllowed(qualified, name string) bool {
	if _, ok := v.allowedFunctions[qualified]; ok {
		return true
	}
	_, ok := v.allowedFunctions[name]
	return ok
}

func rootLimit(q sql.Query) *sql.Limit {
	switch q := q.(type) {
	case *sql.Select:
		return q.Limit
	case *sql.SetOp:
		return q.Limit
	}
	return nil
}

// checkLimit enforces the ceiling on the outermost LIMIT. A missing limit
// is fine because the rewriter adds one. Anything whose value cannot be
// proven within the ceiling is rejected, never clamped.
func (v *Validator) checkLimit(q sql.Query) *Violation {
	limit := rootLimit(q)
	if limit == nil {
		return nil
	}
	switch {
	case limit.Count != nil:
		n := *limit.Count
		if n < 0 {
			return violation(LimitExceeded, "LIMIT", "negative LIMIT %d is not allowed", n)
		}
		if n > v.maxLimit {
			return violation(LimitExceeded, "LIMIT", "LIMIT %d exceeds the maximum of %d rows", n, v.maxLimit)
		}
		return nil
	case limit.Expr != nil:
		return violation(LimitExceeded, "LIMIT", "LIMIT must be an integer constant no greater than %d", v.maxLimit)
	default:
		return violation(LimitExceeded, "LIMIT ALL", "LIMIT ALL is not allowed, the maximum is %d rows", v.maxLimit)
	}
}

func maxParam(q sql.Query) int {
	highest := 0
	sql.Inspect(q, func(node any) bool {
		if p, ok := node.(*sql.Param); ok && p.Number > highest {
			highest = p.Number
		}
		return true
	})
	return highest
}
