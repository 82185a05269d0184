package tools

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/ekaya-gateway/pkg/executor"
	"github.com/ekaya-inc/ekaya-gateway/pkg/gateway"
)

// ErrorResponse is the structured error carried in a tool result. Gateway
// rejections are returned this way, as a result flagged isError, so the
// client model sees the reason and can rewrite its SQL.
type ErrorResponse struct {
	Error    bool   `json:"error"`
	Category string `json:"category,omitempty"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Details  any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return newErrorResult(ErrorResponse{Error: true, Code: code, Message: message})
}

// NewErrorResultWithDetails creates an error result with additional context.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	return newErrorResult(ErrorResponse{Error: true, Code: code, Message: message, Details: details})
}

// NewRejectionResult converts any gateway error into a tool error result.
// Database errors get a readable reason next to their SQLSTATE.
func NewRejectionResult(err error) *mcp.CallToolResult {
	r := gateway.Describe(err)
	details := r.Details
	if r.Code == string(executor.DatabaseError) {
		if state, ok := details["sqlstate"].(string); ok {
			details = map[string]any{
				"sqlstate": state,
				"reason":   SQLStateReason(state),
			}
		}
	}
	resp := ErrorResponse{
		Error:    true,
		Category: string(r.Category),
		Code:     r.Code,
		Message:  r.Message,
	}
	if len(details) > 0 {
		resp.Details = details
	}
	return newErrorResult(resp)
}

func newErrorResult(resp ErrorResponse) *mcp.CallToolResult {
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// SQLStateReason maps a SQLSTATE code to a short readable reason.
func SQLStateReason(sqlState string) string {
	if len(sqlState) < 2 {
		return "sql_error"
	}

	switch sqlState {
	case "42601":
		return "syntax_error"
	case "42703":
		return "undefined_column"
	case "42P01":
		return "undefined_table"
	case "42883":
		return "undefined_function"
	case "42501":
		return "insufficient_privilege"
	case "25006":
		return "read_only_transaction"
	case "22001":
		return "value_too_long"
	case "22003":
		return "numeric_out_of_range"
	case "22007", "22008":
		return "invalid_datetime"
	case "22012":
		return "division_by_zero"
	case "22P02":
		return "invalid_input"
	case "53200":
		return "out_of_memory"
	case "54001":
		return "statement_too_complex"
	}

	switch sqlState[:2] {
	case "22":
		return "data_exception"
	case "42":
		return "sql_error"
	case "53":
		return "insufficient_resources"
	case "54":
		return "program_limit_exceeded"
	}
	return "sql_error"
}
