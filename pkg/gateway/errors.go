package gateway

import (
	"errors"

	"github.com/ekaya-inc/ekaya-gateway/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-gateway/pkg/executor"
	"github.com/ekaya-inc/ekaya-gateway/pkg/policy"
	"github.com/ekaya-inc/ekaya-gateway/pkg/sql"
)

// Category groups rejection codes by who can act on them.
type Category string

const (
	CategorySyntax      Category = "syntax"
	CategoryPolicy      Category = "policy"
	CategoryExecution   Category = "execution"
	CategoryUnavailable Category = "unavailable"
	CategoryInternal    Category = "internal"
)

// Rejection is the transport-neutral form of a gateway error. Code is
// stable: a policy violation kind, an execution error kind, or one of the
// syntax and availability codes below.
type Rejection struct {
	Category Category       `json:"category"`
	Code     string         `json:"error"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
}

const (
	CodeSyntaxError        = "syntax_error"
	CodeMultipleStatements = "multiple_statements"
	CodeEmptyStatement     = "empty_statement"
	CodeCatalogNotLoaded   = "catalog_not_loaded"
	CodeInternal           = "internal_error"
)

// Describe converts err into a Rejection. Unknown errors become an opaque
// internal error so no unexpected text leaks to the caller.
func Describe(err error) Rejection {
	var (
		syntaxErr *sql.SyntaxError
		viol      *policy.Violation
		execErr   *executor.ExecutionError
	)

	switch {
	case errors.As(err, &syntaxErr):
		r := Rejection{Category: CategorySyntax, Code: CodeSyntaxError, Message: syntaxErr.Error()}
		switch {
		case errors.Is(err, sql.ErrMultipleStatements):
			r.Code = CodeMultipleStatements
		case errors.Is(err, sql.ErrEmptyStatement):
			r.Code = CodeEmptyStatement
		}
		if syntaxErr.Position > 0 {
			r.Details = map[string]any{"position": syntaxErr.Position}
		}
		return r

	case errors.As(err, &viol):
		r := Rejection{Category: CategoryPolicy, Code: string(viol.Kind), Message: viol.Detail}
		if viol.Object != "" {
			r.Details = map[string]any{"object": viol.Object}
		}
		return r

	case errors.As(err, &execErr):
		r := Rejection{Category: CategoryExecution, Code: string(execErr.Kind), Message: execErr.Message}
		if execErr.Code != "" {
			r.Details = map[string]any{"sqlstate": execErr.Code}
		}
		return r

	case errors.Is(err, apperrors.ErrCatalogNotLoaded):
		return Rejection{
			Category: CategoryUnavailable,
			Code:     CodeCatalogNotLoaded,
			Message:  "schema catalog is not loaded yet",
		}
	}

	return Rejection{Category: CategoryInternal, Code: CodeInternal, Message: "internal error"}
}
