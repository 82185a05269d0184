package sql

import (
	"errors"
	"fmt"
)

var (
	// ErrMultipleStatements indicates the text holds more than one statement.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")

	// ErrEmptyStatement indicates the text holds no statement at all.
	ErrEmptyStatement = errors.New("empty SQL statement")
)

// SyntaxError reports text that could not be parsed as exactly one
// PostgreSQL statement. Position is the 1-based character offset reported
// by the parser, or 0 when unknown.
type SyntaxError struct {
	Position int
	Message  string
	cause    error
}

func (e *SyntaxError) Error() string {
	if e.Position > 0 {
		return fmt.Sprintf("syntax error at position %d: %s", e.Position, e.Message)
	}
	return "syntax error: " + e.Message
}

func (e *SyntaxError) Unwrap() error {
	return e.cause
}
