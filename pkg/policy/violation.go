package policy

import "fmt"

// Kind classifies a Violation. The values are stable and appear in API
// responses.
type Kind string

const (
	NonReadOperation Kind = "non_read_operation"
	// UnknownTable covers every object missing from the catalog, columns
	// included; Object names the table or the column reference.
	UnknownTable       Kind = "unknown_table"
	ForbiddenConstruct Kind = "forbidden_construct"
	LimitExceeded      Kind = "limit_exceeded"
)

// Violation is the single reason a statement was rejected.
type Violation struct {
	Kind Kind
	// Object names the offending table, column, construct or statement kind.
	Object string
	Detail string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s: %s", v.Kind, v.Detail)
}

func violation(kind Kind, object, format string, args ...any) *Violation {
	return &Violation{Kind: kind, Object: object, Detail: fmt.Sprintf(format, args...)}
}
